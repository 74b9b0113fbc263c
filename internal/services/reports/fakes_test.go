package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/snaglog/snaglog-api/internal/apperr"
	"github.com/snaglog/snaglog-api/internal/models"
	"github.com/snaglog/snaglog-api/internal/photo"
	"github.com/snaglog/snaglog-api/internal/services/payment"
)

// memStore is an in-memory Store honouring the same guards as the repository
type memStore struct {
	mu      sync.Mutex
	reports map[string]*models.Report
	snags   map[string]*models.Snag
	now     time.Time

	applyErr    map[string]error
	transitions []string
}

func newMemStore() *memStore {
	return &memStore{
		reports:  map[string]*models.Report{},
		snags:    map[string]*models.Snag{},
		now:      time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		applyErr: map[string]error{},
	}
}

func (m *memStore) snapshot(r *models.Report) *models.Report {
	cp := *r
	cp.Snags = nil
	for _, s := range m.snags {
		if s.ReportID == r.ID {
			cp.Snags = append(cp.Snags, *s)
		}
	}
	sort.Slice(cp.Snags, func(i, j int) bool { return cp.Snags[i].DisplayOrder < cp.Snags[j].DisplayOrder })
	return &cp
}

func (m *memStore) owned(ownerID, reportID string) (*models.Report, error) {
	r, ok := m.reports[reportID]
	if !ok || r.UserID != ownerID {
		return nil, apperr.NotFound("mem", "Report not found")
	}
	return r, nil
}

func (m *memStore) insertSnags(reportID string, snags []models.Snag) {
	for i := range snags {
		snags[i].ReportID = reportID
		if snags[i].ID == "" {
			snags[i].ID = uuid.New().String()
		}
		cp := snags[i]
		m.snags[cp.ID] = &cp
	}
}

func (m *memStore) CreateReportWithSnags(ctx context.Context, report *models.Report, snags []models.Snag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	report.Status = models.ReportStatusDraft
	report.PaymentStatus = models.PaymentStatusUnpaid
	report.CreatedAt, report.UpdatedAt = m.now, m.now
	cp := *report
	cp.Snags = nil
	m.reports[report.ID] = &cp
	m.insertSnags(report.ID, snags)
	return nil
}

func (m *memStore) AppendSnags(ctx context.Context, ownerID, reportID string, snags []models.Snag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.owned(ownerID, reportID)
	if err != nil {
		return err
	}
	if !r.AcceptsPhotos() {
		return apperr.StateConflict("mem", "completed")
	}
	maxOrder := -1
	for _, s := range m.snags {
		if s.ReportID == reportID && s.DisplayOrder > maxOrder {
			maxOrder = s.DisplayOrder
		}
	}
	for i := range snags {
		snags[i].DisplayOrder = maxOrder + 1 + i
	}
	m.insertSnags(reportID, snags)
	return nil
}

func (m *memStore) GetReport(ctx context.Context, ownerID, reportID string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.owned(ownerID, reportID)
	if err != nil {
		return nil, err
	}
	return m.snapshot(r), nil
}

func (m *memStore) GetReportByID(ctx context.Context, reportID string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[reportID]
	if !ok {
		return nil, apperr.NotFound("mem", "Report not found")
	}
	return m.snapshot(r), nil
}

func (m *memStore) ListReports(ctx context.Context, ownerID string) ([]models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Report
	for _, r := range m.reports {
		if r.UserID == ownerID {
			out = append(out, *m.snapshot(r))
		}
	}
	return out, nil
}

func (m *memStore) UpdateReportDetails(ctx context.Context, ownerID, reportID string, cols map[string]interface{}) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.owned(ownerID, reportID)
	if err != nil {
		return nil, err
	}
	if v, ok := cols["property_address"]; ok {
		r.PropertyAddress = v.(string)
	}
	if v, ok := cols["property_type"]; ok {
		r.PropertyType = v.(string)
	}
	if v, ok := cols["developer_name"]; ok {
		r.DeveloperName = v.(string)
	}
	if v, ok := cols["inspection_date"]; ok {
		r.InspectionDate = v.(time.Time)
	}
	return m.snapshot(r), nil
}

func (m *memStore) DeleteReport(ctx context.Context, ownerID, reportID string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.owned(ownerID, reportID)
	if err != nil {
		return nil, err
	}
	snap := m.snapshot(r)
	for id, s := range m.snags {
		if s.ReportID == reportID {
			delete(m.snags, id)
		}
	}
	delete(m.reports, reportID)
	return snap, nil
}

func (m *memStore) ownedSnag(ownerID, reportID, snagID string) (*models.Snag, error) {
	if _, err := m.owned(ownerID, reportID); err != nil {
		return nil, err
	}
	s, ok := m.snags[snagID]
	if !ok || s.ReportID != reportID {
		return nil, apperr.NotFound("mem", "Snag not found")
	}
	return s, nil
}

func (m *memStore) GetSnag(ctx context.Context, ownerID, reportID, snagID string) (*models.Snag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.ownedSnag(ownerID, reportID, snagID)
	if err != nil {
		return nil, err
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) UpdateSnag(ctx context.Context, ownerID, reportID, snagID string, cols map[string]interface{}) (*models.Snag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.ownedSnag(ownerID, reportID, snagID)
	if err != nil {
		return nil, err
	}
	if !m.reports[reportID].SnagsEditable() {
		return nil, apperr.StateConflict("mem", "locked")
	}
	for k, v := range cols {
		switch k {
		case "room":
			s.Room = v.(string)
		case "defect_type":
			s.DefectType = v.(string)
		case "description":
			s.Description = v.(string)
		case "severity":
			s.Severity = v.(models.Severity)
		case "suggested_trade":
			s.SuggestedTrade = v.(string)
		case "remedial_action":
			s.RemedialAction = v.(string)
		case "user_edited":
			s.UserEdited = v.(bool)
		}
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) DeleteSnag(ctx context.Context, ownerID, reportID, snagID string) (*models.Snag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.ownedSnag(ownerID, reportID, snagID)
	if err != nil {
		return nil, err
	}
	if !m.reports[reportID].SnagsEditable() {
		return nil, apperr.StateConflict("mem", "locked")
	}
	delete(m.snags, snagID)
	return s, nil
}

func (m *memStore) ApplyAssessment(ctx context.Context, snagID string, a models.Assessment, overwriteEdited bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.applyErr[snagID]; err != nil {
		return false, err
	}
	s, ok := m.snags[snagID]
	if !ok {
		return false, apperr.NotFound("mem", "Snag not found")
	}
	if !m.reports[s.ReportID].SnagsEditable() {
		return false, apperr.StateConflict("mem", "locked")
	}
	if s.UserEdited && !overwriteEdited {
		return false, nil
	}
	now := m.now
	s.DefectType = a.DefectType
	s.Description = a.Description
	s.Severity = a.Severity
	s.SuggestedTrade = a.SuggestedTrade
	s.RemedialAction = a.RemedialAction
	s.AIConfidence = a.Confidence
	s.UserEdited = false
	s.AnalysisFailed = a.Sentinel
	s.PromptVersion = a.PromptVersion
	s.AnalyzedAt = &now
	if r := m.reports[s.ReportID]; r.Status == models.ReportStatusAnalyzing {
		r.UpdatedAt = now
	}
	return true, nil
}

func (m *memStore) Transition(ctx context.Context, reportID string, t models.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[reportID]
	if !ok {
		return apperr.NotFound("mem", "Report not found")
	}
	if !t.Allows(m.snapshot(r), m.now) {
		return apperr.StateConflict("mem", fmt.Sprintf("%s not allowed from %s", t.Name, r.Status))
	}
	r.Status = t.To
	r.UpdatedAt = m.now
	for col, v := range t.Columns() {
		switch col {
		case "document_url":
			r.DocumentURL = v.(string)
		case "render_claim":
			r.RenderClaim = v.(string)
		}
	}
	m.transitions = append(m.transitions, t.Name)
	return nil
}

func (m *memStore) MarkPaid(ctx context.Context, reportID, paymentRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[reportID]
	if !ok {
		return apperr.NotFound("mem", "Report not found")
	}
	if !r.IsPaid() {
		r.PaymentStatus = models.PaymentStatusPaid
		r.PaymentRef = paymentRef
	}
	return nil
}

func (m *memStore) status(reportID string) models.ReportStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reports[reportID].Status
}

// memBlobs records puts and deletes; failOn makes puts of matching content fail
type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	failOn  string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}}
}

func (b *memBlobs) Put(ctx context.Context, data []byte, contentType, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failOn != "" && string(data) == b.failOn {
		return "", errors.New("bucket unavailable")
	}
	b.objects[key] = data
	return "https://blobs.test/" + key, nil
}

func (b *memBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	b.deleted = append(b.deleted, key)
	return nil
}

func (b *memBlobs) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

// passNormalizer returns the input bytes untouched
type passNormalizer struct{}

func (passNormalizer) Normalize(data []byte, contentType, filename string) photo.Result {
	return photo.Result{Data: data, ContentType: "image/jpeg", Ext: ".jpg"}
}

// scriptedAnalyzer returns a sentinel for stored photos whose bytes equal failing
// during, when set, runs once inside the first assessment
type scriptedAnalyzer struct {
	mu      sync.Mutex
	calls   int
	blobs   *memBlobs
	failing string
	during  func()
}

func (a *scriptedAnalyzer) Assess(ctx context.Context, photoURL string) models.Assessment {
	a.mu.Lock()
	a.calls++
	hook := a.during
	a.during = nil
	a.mu.Unlock()
	if hook != nil {
		hook()
	}
	if a.failing != "" && a.blobs != nil {
		a.blobs.mu.Lock()
		data := a.blobs.objects[strings.TrimPrefix(photoURL, "https://blobs.test/")]
		a.blobs.mu.Unlock()
		if string(data) == a.failing {
			return models.SentinelAssessment("model unavailable")
		}
	}
	return models.Assessment{
		DefectType:     "Paint defect",
		Description:    "Scuffed paintwork.",
		Severity:       models.SeverityModerate,
		SuggestedTrade: "Decorator",
		RemedialAction: "Repaint.",
		Confidence:     0.8,
		PromptVersion:  "defect-v1",
	}
}

func (a *scriptedAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// fakeRenderer runs during once inside the first render
type fakeRenderer struct {
	calls  int
	err    error
	during func()
}

func (r *fakeRenderer) Render(ctx context.Context, report *models.Report, snags []models.Snag) ([]byte, error) {
	r.calls++
	if hook := r.during; hook != nil {
		r.during = nil
		hook()
	}
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.3 fake"), nil
}

// gauge records the highest number of calls in flight at once
type gauge struct {
	mu      sync.Mutex
	current int
	peak    int
	total   int
}

func (g *gauge) enter() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current++
	g.total++
	if g.current > g.peak {
		g.peak = g.current
	}
}

func (g *gauge) leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current--
}

func (g *gauge) stats() (peak, total int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak, g.total
}

const slowCall = 20 * time.Millisecond

type slowAnalyzer struct {
	gauge *gauge
}

func (a *slowAnalyzer) Assess(ctx context.Context, photoURL string) models.Assessment {
	a.gauge.enter()
	defer a.gauge.leave()
	time.Sleep(slowCall)
	return models.Assessment{DefectType: "Crack", Severity: models.SeverityMinor, Confidence: 0.6}
}

type slowNormalizer struct {
	gauge *gauge
}

func (n *slowNormalizer) Normalize(data []byte, contentType, filename string) photo.Result {
	n.gauge.enter()
	defer n.gauge.leave()
	time.Sleep(slowCall)
	return passNormalizer{}.Normalize(data, contentType, filename)
}

type slowBlobs struct {
	*memBlobs
	gauge *gauge
}

func (b *slowBlobs) Put(ctx context.Context, data []byte, contentType, key string) (string, error) {
	b.gauge.enter()
	defer b.gauge.leave()
	time.Sleep(slowCall)
	return b.memBlobs.Put(ctx, data, contentType, key)
}

type fakeGateway struct {
	sessions map[string]*payment.Session
	gets     int
	created  []payment.CheckoutRequest
}

func (g *fakeGateway) CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.Session, error) {
	g.created = append(g.created, req)
	return &payment.Session{ID: "cs_new", URL: "https://checkout.test/cs_new"}, nil
}

func (g *fakeGateway) GetSession(ctx context.Context, sessionID string) (*payment.Session, error) {
	g.gets++
	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, errors.New("no such session")
	}
	return s, nil
}

type recordedEvent struct {
	owner string
	event string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *fakeNotifier) Notify(ownerID, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{owner: ownerID, event: event})
}

func (n *fakeNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.event == event {
			c++
		}
	}
	return c
}
