// Package reports drives a report from uploaded photos to a paid, rendered document.
package reports

import (
	"context"
	"log"
	"time"

	"github.com/snaglog/snaglog-api/internal/models"
	"github.com/snaglog/snaglog-api/internal/photo"
	"github.com/snaglog/snaglog-api/internal/services/payment"
)

// Progress events pushed to the report owner
const (
	EventReportStatus   = "report.status"
	EventSnagAnalyzed   = "snag.analyzed"
	EventReportDocument = "report.document"
)

// Store persists reports and snags
type Store interface {
	CreateReportWithSnags(ctx context.Context, report *models.Report, snags []models.Snag) error
	AppendSnags(ctx context.Context, ownerID, reportID string, snags []models.Snag) error
	GetReport(ctx context.Context, ownerID, reportID string) (*models.Report, error)
	GetReportByID(ctx context.Context, reportID string) (*models.Report, error)
	ListReports(ctx context.Context, ownerID string) ([]models.Report, error)
	UpdateReportDetails(ctx context.Context, ownerID, reportID string, cols map[string]interface{}) (*models.Report, error)
	DeleteReport(ctx context.Context, ownerID, reportID string) (*models.Report, error)
	GetSnag(ctx context.Context, ownerID, reportID, snagID string) (*models.Snag, error)
	UpdateSnag(ctx context.Context, ownerID, reportID, snagID string, cols map[string]interface{}) (*models.Snag, error)
	DeleteSnag(ctx context.Context, ownerID, reportID, snagID string) (*models.Snag, error)
	ApplyAssessment(ctx context.Context, snagID string, a models.Assessment, overwriteEdited bool) (bool, error)
	Transition(ctx context.Context, reportID string, t models.Transition) error
	MarkPaid(ctx context.Context, reportID, paymentRef string) error
}

// BlobStore keeps photos and documents
type BlobStore interface {
	Put(ctx context.Context, data []byte, contentType, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Normalizer prepares uploaded photo bytes for storage and analysis
type Normalizer interface {
	Normalize(data []byte, contentType, filename string) photo.Result
}

// Analyzer produces an assessment for one stored photo; it never fails
type Analyzer interface {
	Assess(ctx context.Context, photoURL string) models.Assessment
}

// Renderer produces the report document
type Renderer interface {
	Render(ctx context.Context, report *models.Report, snags []models.Snag) ([]byte, error)
}

// PaymentGateway creates and inspects checkout sessions
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.Session, error)
	GetSession(ctx context.Context, sessionID string) (*payment.Session, error)
}

// Notifier pushes progress events to a report owner
type Notifier interface {
	Notify(ownerID, event string, payload interface{})
}

// Deps are the collaborators of the service
type Deps struct {
	Store      Store
	Blobs      BlobStore
	Normalizer Normalizer
	Analyzer   Analyzer
	Renderer   Renderer
	Payments   PaymentGateway
	Notifier   Notifier
}

// Options tunes concurrency and limits
type Options struct {
	AnalysisConcurrency int
	UploadConcurrency   int
	AnalysisStaleAfter  time.Duration
	RenderStaleAfter    time.Duration
	MaxPhotos           int
	FrontendURL         string
}

// Service is the report pipeline
type Service struct {
	store      Store
	blobs      BlobStore
	normalizer Normalizer
	analyzer   Analyzer
	renderer   Renderer
	payments   PaymentGateway
	notifier   Notifier
	opts       Options

	now   func() time.Time
	spawn func(func())
}

// NewService creates the report pipeline
func NewService(deps Deps, opts Options) *Service {
	if opts.AnalysisConcurrency < 1 {
		opts.AnalysisConcurrency = 5
	}
	if opts.UploadConcurrency < 1 {
		opts.UploadConcurrency = 4
	}
	if opts.MaxPhotos < 1 {
		opts.MaxPhotos = 100
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		store:      deps.Store,
		blobs:      deps.Blobs,
		normalizer: deps.Normalizer,
		analyzer:   deps.Analyzer,
		renderer:   deps.Renderer,
		payments:   deps.Payments,
		notifier:   notifier,
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
		spawn:      func(fn func()) { go fn() },
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string, interface{}) {}

func (s *Service) notifyStatus(report *models.Report, status models.ReportStatus) {
	s.notifier.Notify(report.UserID, EventReportStatus, map[string]interface{}{
		"reportId": report.ID,
		"status":   status,
	})
}

// cleanupBlobs deletes blobs best-effort; failures are only logged
func (s *Service) cleanupBlobs(ctx context.Context, keys []string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, key); err != nil {
			log.Printf("⚠️ Blob cleanup failed for %s: %v", key, err)
		}
	}
}
