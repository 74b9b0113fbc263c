package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/snaglog/snaglog-api/internal/apperr"
	"github.com/snaglog/snaglog-api/internal/middleware"
	"github.com/snaglog/snaglog-api/internal/models"
	"github.com/snaglog/snaglog-api/internal/services/payment"
	"github.com/snaglog/snaglog-api/internal/services/reports"
)

const testSecret = "handler-test-secret"

type stubService struct {
	err error

	owner   string
	details reports.ReportDetails
	photos  []reports.PhotoUpload
	analyze reports.AnalyzeOptions
	edit    models.SnagEdit
	session string
	event   *payment.Event

	report *models.Report
	list   []models.Report
}

func (s *stubService) result() (*models.Report, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.report, nil
}

func (s *stubService) CreateReport(ctx context.Context, ownerID string, details reports.ReportDetails, photos []reports.PhotoUpload) (*models.Report, error) {
	s.owner, s.details, s.photos = ownerID, details, photos
	return s.result()
}

func (s *stubService) AddPhotos(ctx context.Context, ownerID, reportID string, photos []reports.PhotoUpload) (*models.Report, error) {
	s.owner, s.photos = ownerID, photos
	return s.result()
}

func (s *stubService) AnalyzeReport(ctx context.Context, ownerID, reportID string, opts reports.AnalyzeOptions) (*models.Report, reports.AnalysisSummary, error) {
	s.owner, s.analyze = ownerID, opts
	report, err := s.result()
	if err != nil {
		return nil, reports.AnalysisSummary{}, err
	}
	return report, reports.AnalysisSummary{Targeted: len(report.Snags), Analyzed: len(report.Snags)}, nil
}

func (s *stubService) AnalyzeSnag(ctx context.Context, ownerID, reportID, snagID string) (*models.Snag, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &s.report.Snags[0], nil
}

func (s *stubService) GetReport(ctx context.Context, ownerID, reportID string) (*models.Report, error) {
	s.owner = ownerID
	return s.result()
}

func (s *stubService) ListReports(ctx context.Context, ownerID string) ([]models.Report, error) {
	s.owner = ownerID
	return s.list, s.err
}

func (s *stubService) UpdateReport(ctx context.Context, ownerID, reportID string, patch reports.ReportPatch) (*models.Report, error) {
	return s.result()
}

func (s *stubService) DeleteReport(ctx context.Context, ownerID, reportID string) error {
	return s.err
}

func (s *stubService) UpdateSnag(ctx context.Context, ownerID, reportID, snagID string, edit models.SnagEdit) (*models.Snag, error) {
	s.edit = edit
	if s.err != nil {
		return nil, s.err
	}
	return &s.report.Snags[0], nil
}

func (s *stubService) DeleteSnag(ctx context.Context, ownerID, reportID, snagID string) error {
	return s.err
}

func (s *stubService) CreateCheckout(ctx context.Context, ownerID, reportID string) (*payment.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &payment.Session{ID: "cs_test_1", URL: "https://checkout.test/cs_test_1"}, nil
}

func (s *stubService) VerifyPayment(ctx context.Context, ownerID, reportID, sessionID string) (*models.Report, error) {
	s.session = sessionID
	return s.result()
}

func (s *stubService) HandlePaymentEvent(ctx context.Context, evt *payment.Event) error {
	s.event = evt
	return s.err
}

func (s *stubService) PaymentStatus(ctx context.Context, ownerID, reportID string) (*models.Report, error) {
	return s.result()
}

type stubParser struct {
	err error
}

func (p stubParser) ParseEvent(payload []byte, signature string) (*payment.Event, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &payment.Event{ID: "evt_1", Type: payment.EventCheckoutCompleted, Session: &payment.Session{ID: "cs_1", ReportID: "r1", Paid: true}}, nil
}

func sampleReport() *models.Report {
	return &models.Report{
		ID:              "r1",
		UserID:          "user-1",
		PropertyAddress: "12 Elm Street",
		Status:          models.ReportStatusReview,
		PaymentStatus:   models.PaymentStatusUnpaid,
		Snags: []models.Snag{
			{ID: "s1", ReportID: "r1", DisplayOrder: 0, Room: "Kitchen", Severity: models.SeverityMinor},
			{ID: "s2", ReportID: "r1", DisplayOrder: 1, Room: "Bathroom", Severity: models.SeverityMajor},
		},
	}
}

func newTestRouter(t *testing.T, svc *stubService) (*Router, string) {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	r := NewRouter(Deps{
		Reports: svc,
		Events:  stubParser{},
		Auth:    middleware.NewAuthenticator(testSecret),
		Limits:  UploadLimits{MaxPhotoBytes: 1024, MaxPhotos: 3},
	})
	return r, token
}

func doRequest(r http.Handler, method, path, token string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

type part struct {
	name        string
	filename    string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, fields map[string]string, parts []part) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+p.name+`"; filename="`+p.filename+`"`)
		h.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		w.Write(p.data)
	}
	mw.Close()
	return buf.Bytes(), mw.FormDataContentType()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealthCheck(t *testing.T) {
	r, _ := newTestRouter(t, &stubService{})
	rec := doRequest(r, http.MethodGet, "/health", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if decode(t, rec)["status"] != "ok" {
		t.Error("Expected status ok")
	}

	r.ping = func(ctx context.Context) error { return errors.New("connection refused") }
	rec = doRequest(r, http.MethodGet, "/health", "", nil, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when the database is down, got %d", rec.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	r, _ := newTestRouter(t, &stubService{report: sampleReport()})
	rec := doRequest(r, http.MethodGet, "/api/report/r1", "", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}

func TestUploadReport(t *testing.T) {
	svc := &stubService{report: sampleReport()}
	r, token := newTestRouter(t, svc)

	body, ct := multipartBody(t,
		map[string]string{"propertyAddress": "12 Elm Street", "propertyType": "Detached house", "inspectionDate": "2026-03-04"},
		[]part{
			{"photos", "a.jpg", "image/jpeg", []byte("jpeg-a")},
			{"photos", "b.heic", "application/octet-stream", []byte("heic-b")},
		})
	rec := doRequest(r, http.MethodPost, "/api/upload", token, body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	if svc.owner != "user-1" {
		t.Errorf("Expected owner from token, got %q", svc.owner)
	}
	if len(svc.photos) != 2 || svc.photos[0].Filename != "a.jpg" || string(svc.photos[1].Data) != "heic-b" {
		t.Errorf("Photos not passed in order: %+v", svc.photos)
	}
	if svc.details.PropertyType != "Detached house" || svc.details.InspectionDate == nil || svc.details.InspectionDate.Day() != 4 {
		t.Errorf("Unexpected details %+v", svc.details)
	}

	report := decode(t, rec)["report"].(map[string]interface{})
	if report["photoCount"] != float64(2) {
		t.Errorf("Expected photoCount 2, got %v", report["photoCount"])
	}
}

func TestUploadRejections(t *testing.T) {
	tests := []struct {
		name   string
		parts  []part
		status int
	}{
		{"no photos", nil, http.StatusBadRequest},
		{"not an image", []part{{"photos", "notes.txt", "text/plain", []byte("hello")}}, http.StatusBadRequest},
		{"too large", []part{{"photos", "big.jpg", "image/jpeg", bytes.Repeat([]byte("x"), 2048)}}, http.StatusRequestEntityTooLarge},
		{"too many", []part{
			{"photos", "1.jpg", "image/jpeg", []byte("1")},
			{"photos", "2.jpg", "image/jpeg", []byte("2")},
			{"photos", "3.jpg", "image/jpeg", []byte("3")},
			{"photos", "4.jpg", "image/jpeg", []byte("4")},
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{report: sampleReport()}
			r, token := newTestRouter(t, svc)
			body, ct := multipartBody(t, map[string]string{"propertyAddress": "12 Elm Street"}, tt.parts)
			rec := doRequest(r, http.MethodPost, "/api/upload", token, body, ct)
			if rec.Code != tt.status {
				t.Errorf("Expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if svc.photos != nil {
				t.Error("Service should not be called for a rejected upload")
			}
		})
	}
}

func TestErrorKindsMapToStatus(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		message string
	}{
		{apperr.Validation("op", "Property address is required"), http.StatusBadRequest, "Property address is required"},
		{apperr.NotFound("op", "Report not found"), http.StatusNotFound, "Report not found"},
		{apperr.StateConflict("op", "Report is not paid"), http.StatusConflict, "Report is not paid"},
		{apperr.Storage("op", errors.New("bucket gone")), http.StatusBadGateway, "Failed to get report"},
		{apperr.Render("op", errors.New("font missing")), http.StatusBadGateway, "Failed to get report"},
		{apperr.Gateway("op", errors.New("stripe down")), http.StatusBadGateway, "Failed to get report"},
		{errors.New("boom"), http.StatusInternalServerError, "Failed to get report"},
	}
	for _, tt := range tests {
		r, token := newTestRouter(t, &stubService{err: tt.err})
		rec := doRequest(r, http.MethodGet, "/api/report/r1", token, nil, "")
		if rec.Code != tt.status {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.status, rec.Code)
		}
		if got := decode(t, rec)["error"]; got != tt.message {
			t.Errorf("%v: expected message %q, got %v", tt.err, tt.message, got)
		}
	}
}

func TestGetReportIncludesSummary(t *testing.T) {
	r, token := newTestRouter(t, &stubService{report: sampleReport()})
	rec := doRequest(r, http.MethodGet, "/api/report/r1", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	report := decode(t, rec)["report"].(map[string]interface{})
	if report["id"] != "r1" || len(report["snags"].([]interface{})) != 2 {
		t.Errorf("Expected flattened report with snags, got %v", report)
	}
	counts := report["summary"].(map[string]interface{})["severityCounts"].(map[string]interface{})
	if counts["minor"] != float64(1) || counts["major"] != float64(1) || counts["total"] != float64(2) {
		t.Errorf("Unexpected counts %v", counts)
	}
}

func TestListReports(t *testing.T) {
	svc := &stubService{list: []models.Report{*sampleReport()}}
	r, token := newTestRouter(t, svc)
	rec := doRequest(r, http.MethodGet, "/api/report", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	items := decode(t, rec)["reports"].([]interface{})
	item := items[0].(map[string]interface{})
	if item["snagCount"] != float64(2) {
		t.Errorf("Expected snagCount 2, got %v", item["snagCount"])
	}
	if _, ok := item["snags"]; ok {
		t.Error("List items should not carry snags")
	}
}

func TestAnalyzeQueryOptions(t *testing.T) {
	svc := &stubService{report: sampleReport()}
	r, token := newTestRouter(t, svc)
	rec := doRequest(r, http.MethodPost, "/api/analyze/r1?force=true&pending=1", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !svc.analyze.Force || !svc.analyze.PendingOnly {
		t.Errorf("Query options not applied: %+v", svc.analyze)
	}
	if decode(t, rec)["analysis"].(map[string]interface{})["analyzed"] != float64(2) {
		t.Error("Expected analysis summary in response")
	}
}

func TestUpdateSnag(t *testing.T) {
	svc := &stubService{report: sampleReport()}
	r, token := newTestRouter(t, svc)
	rec := doRequest(r, http.MethodPatch, "/api/report/r1/snag/s1", token, []byte(`{"severity":"major","room":"Hall"}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if svc.edit.Severity == nil || *svc.edit.Severity != "major" || *svc.edit.Room != "Hall" {
		t.Errorf("Edit not decoded: %+v", svc.edit)
	}

	rec = doRequest(r, http.MethodPatch, "/api/report/r1/snag/s1", token, []byte(`{`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad JSON, got %d", rec.Code)
	}
}

func TestCheckoutAndVerify(t *testing.T) {
	report := sampleReport()
	report.DocumentURL = "https://cdn.test/pdfs/r1.pdf"
	svc := &stubService{report: report}
	r, token := newTestRouter(t, svc)

	rec := doRequest(r, http.MethodPost, "/api/payment/checkout/r1", token, nil, "")
	if rec.Code != http.StatusOK || decode(t, rec)["sessionId"] != "cs_test_1" {
		t.Fatalf("Unexpected checkout response %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(r, http.MethodPost, "/api/payment/verify/r1", token, []byte(`{}`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without session id, got %d", rec.Code)
	}

	rec = doRequest(r, http.MethodPost, "/api/payment/verify/r1", token, []byte(`{"sessionId":"cs_test_1"}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if svc.session != "cs_test_1" || decode(t, rec)["pdfUrl"] != report.DocumentURL {
		t.Errorf("Unexpected verify result %s", rec.Body.String())
	}
}

func TestPaymentWebhook(t *testing.T) {
	svc := &stubService{}
	r, _ := newTestRouter(t, svc)

	rec := doRequest(r, http.MethodPost, "/api/payment/webhook", "", []byte(`{"id":"evt_1"}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if svc.event == nil || svc.event.Session.ReportID != "r1" {
		t.Errorf("Event not forwarded: %+v", svc.event)
	}

	r.events = stubParser{err: errors.New("no signatures found matching the expected signature")}
	rec = doRequest(r, http.MethodPost, "/api/payment/webhook", "", []byte(`{}`), "application/json")
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Webhook Error") {
		t.Errorf("Expected 400 for bad signature, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestParseInspectionDate(t *testing.T) {
	if d, err := parseInspectionDate(""); err != nil || d != nil {
		t.Error("Empty date should be nil")
	}
	if d, err := parseInspectionDate("2026-03-04T09:30:00Z"); err != nil || d.Hour() != 9 {
		t.Errorf("RFC 3339 date not parsed: %v %v", d, err)
	}
	if _, err := parseInspectionDate("yesterday"); err == nil {
		t.Error("Expected error for bad date")
	}
}
