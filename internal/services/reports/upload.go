package reports

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/snaglog/snaglog-api/internal/apperr"
	"github.com/snaglog/snaglog-api/internal/models"
	"github.com/snaglog/snaglog-api/internal/storage"
	"golang.org/x/sync/errgroup"
)

// ReportDetails are the user-supplied report fields
type ReportDetails struct {
	PropertyAddress string
	PropertyType    string
	DeveloperName   string
	InspectionDate  *time.Time
}

// PhotoUpload is one uploaded file
type PhotoUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (s *Service) validateBatch(op string, photos []PhotoUpload) error {
	if len(photos) == 0 {
		return apperr.Validation(op, "At least one photo is required")
	}
	if len(photos) > s.opts.MaxPhotos {
		return apperr.Validation(op, fmt.Sprintf("At most %d photos can be uploaded at once", s.opts.MaxPhotos))
	}
	for i, p := range photos {
		if len(p.Data) == 0 {
			return apperr.Validation(op, fmt.Sprintf("Photo %d (%s) is empty", i+1, p.Filename))
		}
	}
	return nil
}

// CreateReport creates a report from its first batch of photos. Snag display
// orders follow submission order. Nothing is committed if any photo fails to store.
func (s *Service) CreateReport(ctx context.Context, ownerID string, details ReportDetails, photos []PhotoUpload) (*models.Report, error) {
	const op = "reports.CreateReport"

	address := strings.TrimSpace(details.PropertyAddress)
	if address == "" {
		return nil, apperr.Validation(op, "Property address is required")
	}
	if err := s.validateBatch(op, photos); err != nil {
		return nil, err
	}

	report := &models.Report{
		ID:              uuid.New().String(),
		UserID:          ownerID,
		PropertyAddress: address,
		PropertyType:    strings.TrimSpace(details.PropertyType),
		DeveloperName:   strings.TrimSpace(details.DeveloperName),
	}
	if details.InspectionDate != nil {
		report.InspectionDate = details.InspectionDate.UTC()
	}

	snags, err := s.storePhotos(ctx, report.ID, photos)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateReportWithSnags(ctx, report, snags); err != nil {
		s.cleanupBlobs(ctx, photoKeys(snags))
		return nil, err
	}

	log.Printf("📸 Report %s created with %d photos", report.ShortID(), len(snags))
	return s.store.GetReport(ctx, ownerID, report.ID)
}

// AddPhotos appends a batch to an existing report. Display orders continue
// after the highest existing one.
func (s *Service) AddPhotos(ctx context.Context, ownerID, reportID string, photos []PhotoUpload) (*models.Report, error) {
	const op = "reports.AddPhotos"

	report, err := s.store.GetReport(ctx, ownerID, reportID)
	if err != nil {
		return nil, err
	}
	if !report.AcceptsPhotos() {
		return nil, apperr.StateConflict(op, "Cannot add photos to a completed report")
	}
	if err := s.validateBatch(op, photos); err != nil {
		return nil, err
	}

	snags, err := s.storePhotos(ctx, reportID, photos)
	if err != nil {
		return nil, err
	}

	if err := s.store.AppendSnags(ctx, ownerID, reportID, snags); err != nil {
		s.cleanupBlobs(ctx, photoKeys(snags))
		return nil, err
	}

	log.Printf("📸 Added %d photos to report %s", len(snags), report.ShortID())
	return s.store.GetReport(ctx, ownerID, reportID)
}

// storePhotos normalizes and uploads a batch with bounded concurrency. The
// returned snags are in submission order with DisplayOrder set to the index.
// On failure every blob already written is removed.
func (s *Service) storePhotos(ctx context.Context, reportID string, photos []PhotoUpload) ([]models.Snag, error) {
	const op = "reports.storePhotos"

	snags := make([]models.Snag, len(photos))
	var (
		mu     sync.Mutex
		stored []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.UploadConcurrency)

	for i, p := range photos {
		g.Go(func() error {
			norm := s.normalizer.Normalize(p.Data, p.ContentType, p.Filename)
			key := storage.PhotoKey(reportID, norm.Ext)

			url, err := s.blobs.Put(gctx, norm.Data, norm.ContentType, key)
			if err != nil {
				return fmt.Errorf("photo %d (%s): %w", i+1, p.Filename, err)
			}

			mu.Lock()
			stored = append(stored, key)
			mu.Unlock()

			snags[i] = models.Snag{
				ReportID:     reportID,
				PhotoURL:     url,
				PhotoKey:     key,
				DisplayOrder: i,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Printf("❌ Photo upload failed for report %s: %v", reportID, err)
		s.cleanupBlobs(ctx, stored)
		return nil, apperr.Storage(op, err)
	}
	return snags, nil
}

func photoKeys(snags []models.Snag) []string {
	keys := make([]string, 0, len(snags))
	for _, s := range snags {
		keys = append(keys, s.PhotoKey)
	}
	return keys
}
