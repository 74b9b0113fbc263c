package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/snaglog/snaglog-api/internal/models"
	"github.com/snaglog/snaglog-api/internal/services/reports"
)

// ReportListItem is one row of the report list
type ReportListItem struct {
	ID              string                `json:"id"`
	PropertyAddress string                `json:"propertyAddress"`
	PropertyType    string                `json:"propertyType,omitempty"`
	InspectionDate  time.Time             `json:"inspectionDate"`
	Status          models.ReportStatus   `json:"status"`
	PaymentStatus   models.PaymentStatus  `json:"paymentStatus"`
	DocumentURL     string                `json:"pdfUrl,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	SnagCount       int                   `json:"snagCount"`
	SeverityCounts  models.SeverityCounts `json:"severityCounts"`
}

// ReportView is a report with its derived summary
type ReportView struct {
	*models.Report
	Summary models.Summary `json:"summary"`
}

func newReportView(report *models.Report) ReportView {
	return ReportView{Report: report, Summary: models.Summarize(report.Snags)}
}

// listReports returns the caller's reports, newest first
func (r *Router) listReports(w http.ResponseWriter, req *http.Request) {
	list, err := r.reports.ListReports(req.Context(), owner(req))
	if err != nil {
		respondAppError(w, err, "Failed to get reports")
		return
	}

	items := make([]ReportListItem, 0, len(list))
	for _, rep := range list {
		items = append(items, ReportListItem{
			ID:              rep.ID,
			PropertyAddress: rep.PropertyAddress,
			PropertyType:    rep.PropertyType,
			InspectionDate:  rep.InspectionDate,
			Status:          rep.Status,
			PaymentStatus:   rep.PaymentStatus,
			DocumentURL:     rep.DocumentURL,
			CreatedAt:       rep.CreatedAt,
			SnagCount:       len(rep.Snags),
			SeverityCounts:  models.CountSeverities(rep.Snags),
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"reports": items})
}

// getReport returns one report with ordered snags and summary
func (r *Router) getReport(w http.ResponseWriter, req *http.Request) {
	report, err := r.reports.GetReport(req.Context(), owner(req), mux.Vars(req)["reportId"])
	if err != nil {
		respondAppError(w, err, "Failed to get report")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"report": newReportView(report)})
}

// updateReport patches report details
func (r *Router) updateReport(w http.ResponseWriter, req *http.Request) {
	var patch reports.ReportPatch
	if err := json.NewDecoder(req.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	report, err := r.reports.UpdateReport(req.Context(), owner(req), mux.Vars(req)["reportId"], patch)
	if err != nil {
		respondAppError(w, err, "Failed to update report")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "report": report})
}

// deleteReport removes a report, its snags and stored files
func (r *Router) deleteReport(w http.ResponseWriter, req *http.Request) {
	if err := r.reports.DeleteReport(req.Context(), owner(req), mux.Vars(req)["reportId"]); err != nil {
		respondAppError(w, err, "Failed to delete report")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// updateSnag applies a manual edit and marks the snag as overridden
func (r *Router) updateSnag(w http.ResponseWriter, req *http.Request) {
	var edit models.SnagEdit
	if err := json.NewDecoder(req.Body).Decode(&edit); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	vars := mux.Vars(req)
	snag, err := r.reports.UpdateSnag(req.Context(), owner(req), vars["reportId"], vars["snagId"], edit)
	if err != nil {
		respondAppError(w, err, "Failed to update snag")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "snag": snag})
}

// deleteSnag removes one snag; other display orders are unchanged
func (r *Router) deleteSnag(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	if err := r.reports.DeleteSnag(req.Context(), owner(req), vars["reportId"], vars["snagId"]); err != nil {
		respondAppError(w, err, "Failed to delete snag")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
