package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	gorillaws "github.com/gorilla/websocket"
	"github.com/snaglog/snaglog-api/internal/apperr"
	"github.com/snaglog/snaglog-api/internal/buildinfo"
	"github.com/snaglog/snaglog-api/internal/middleware"
	"github.com/snaglog/snaglog-api/internal/models"
	"github.com/snaglog/snaglog-api/internal/services/payment"
	"github.com/snaglog/snaglog-api/internal/services/reports"
	"github.com/snaglog/snaglog-api/internal/websocket"
)

// ReportService is the report pipeline as seen by the HTTP layer
type ReportService interface {
	CreateReport(ctx context.Context, ownerID string, details reports.ReportDetails, photos []reports.PhotoUpload) (*models.Report, error)
	AddPhotos(ctx context.Context, ownerID, reportID string, photos []reports.PhotoUpload) (*models.Report, error)
	AnalyzeReport(ctx context.Context, ownerID, reportID string, opts reports.AnalyzeOptions) (*models.Report, reports.AnalysisSummary, error)
	AnalyzeSnag(ctx context.Context, ownerID, reportID, snagID string) (*models.Snag, error)
	GetReport(ctx context.Context, ownerID, reportID string) (*models.Report, error)
	ListReports(ctx context.Context, ownerID string) ([]models.Report, error)
	UpdateReport(ctx context.Context, ownerID, reportID string, patch reports.ReportPatch) (*models.Report, error)
	DeleteReport(ctx context.Context, ownerID, reportID string) error
	UpdateSnag(ctx context.Context, ownerID, reportID, snagID string, edit models.SnagEdit) (*models.Snag, error)
	DeleteSnag(ctx context.Context, ownerID, reportID, snagID string) error
	CreateCheckout(ctx context.Context, ownerID, reportID string) (*payment.Session, error)
	VerifyPayment(ctx context.Context, ownerID, reportID, sessionID string) (*models.Report, error)
	HandlePaymentEvent(ctx context.Context, evt *payment.Event) error
	PaymentStatus(ctx context.Context, ownerID, reportID string) (*models.Report, error)
}

// EventParser verifies and decodes signed gateway webhooks
type EventParser interface {
	ParseEvent(payload []byte, signature string) (*payment.Event, error)
}

// UploadLimits bound a single multipart upload
type UploadLimits struct {
	MaxPhotoBytes int64
	MaxPhotos     int
}

// Deps are the collaborators of the router
type Deps struct {
	Reports  ReportService
	Events   EventParser
	Auth     *middleware.Authenticator
	Hub      *websocket.Hub
	Upgrader gorillaws.Upgrader
	Limits   UploadLimits
	// Ping checks backing services for /health; nil skips the check
	Ping func(ctx context.Context) error
}

// Router wraps the mux router and the report pipeline
type Router struct {
	*mux.Router
	reports  ReportService
	events   EventParser
	hub      *websocket.Hub
	upgrader gorillaws.Upgrader
	limits   UploadLimits
	ping     func(ctx context.Context) error
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(deps Deps) *Router {
	r := &Router{
		Router:   mux.NewRouter(),
		reports:  deps.Reports,
		events:   deps.Events,
		hub:      deps.Hub,
		upgrader: deps.Upgrader,
		limits:   deps.Limits,
		ping:     deps.Ping,
	}
	if r.limits.MaxPhotoBytes <= 0 {
		r.limits.MaxPhotoBytes = 10 << 20
	}
	if r.limits.MaxPhotos <= 0 {
		r.limits.MaxPhotos = 100
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Signed by the gateway, not by the user
	r.HandleFunc("/api/payment/webhook", r.paymentWebhook).Methods("POST")

	// Websocket progress events
	if r.hub != nil {
		r.Handle("/ws", deps.Auth.QueryAuthMiddleware(http.HandlerFunc(r.serveWs))).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(deps.Auth.AuthMiddleware)

	// Upload routes
	api.HandleFunc("/upload", r.uploadReport).Methods("POST")
	api.HandleFunc("/upload/{reportId}/photos", r.addPhotos).Methods("POST")

	// Analysis routes
	api.HandleFunc("/analyze/{reportId}", r.analyzeReport).Methods("POST")
	api.HandleFunc("/analyze/{reportId}/snag/{snagId}", r.analyzeSnag).Methods("POST")

	// Report routes
	api.HandleFunc("/report", r.listReports).Methods("GET")
	api.HandleFunc("/report/{reportId}", r.getReport).Methods("GET")
	api.HandleFunc("/report/{reportId}", r.updateReport).Methods("PATCH")
	api.HandleFunc("/report/{reportId}", r.deleteReport).Methods("DELETE")
	api.HandleFunc("/report/{reportId}/snag/{snagId}", r.updateSnag).Methods("PATCH")
	api.HandleFunc("/report/{reportId}/snag/{snagId}", r.deleteSnag).Methods("DELETE")

	// Payment routes
	api.HandleFunc("/payment/checkout/{reportId}", r.createCheckout).Methods("POST")
	api.HandleFunc("/payment/verify/{reportId}", r.verifyPayment).Methods("POST")
	api.HandleFunc("/payment/status/{reportId}", r.paymentStatus).Methods("GET")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	body := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"build":     buildinfo.Info(),
	}
	if r.ping != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := r.ping(ctx); err != nil {
			log.Printf("⚠️ Health check: database unreachable: %v", err)
			body["status"] = "degraded"
			respondJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	respondJSON(w, http.StatusOK, body)
}

func (r *Router) serveWs(w http.ResponseWriter, req *http.Request) {
	owner, _ := middleware.OwnerFromContext(req.Context())
	websocket.ServeWs(r.hub, r.upgrader, owner, w, req)
}

// owner returns the authenticated owner id; the auth middleware guarantees it
func owner(req *http.Request) string {
	id, _ := middleware.OwnerFromContext(req.Context())
	return id
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondAppError maps a pipeline error kind to its HTTP status
func respondAppError(w http.ResponseWriter, err error, fallback string) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindStateConflict:
		status = http.StatusConflict
	case apperr.KindStorage, apperr.KindRender, apperr.KindGateway:
		status = http.StatusBadGateway
	}

	message := apperr.MessageOf(err)
	if status >= http.StatusInternalServerError || message == "" {
		log.Printf("❌ %s: %v", fallback, err)
		message = fallback
	}
	respondError(w, status, message)
}
