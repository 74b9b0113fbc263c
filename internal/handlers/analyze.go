package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/snaglog/snaglog-api/internal/services/reports"
)

func queryBool(req *http.Request, key string) bool {
	v, _ := strconv.ParseBool(req.URL.Query().Get(key))
	return v
}

// analyzeReport runs a batch analysis and returns the report in REVIEW
func (r *Router) analyzeReport(w http.ResponseWriter, req *http.Request) {
	opts := reports.AnalyzeOptions{
		Force:       queryBool(req, "force"),
		PendingOnly: queryBool(req, "pending"),
	}

	report, summary, err := r.reports.AnalyzeReport(req.Context(), owner(req), mux.Vars(req)["reportId"], opts)
	if err != nil {
		respondAppError(w, err, "Failed to analyze photos")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"report":   newReportView(report),
		"analysis": summary,
	})
}

// analyzeSnag re-analyzes a single snag, replacing any manual edit
func (r *Router) analyzeSnag(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	snag, err := r.reports.AnalyzeSnag(req.Context(), owner(req), vars["reportId"], vars["snagId"])
	if err != nil {
		respondAppError(w, err, "Failed to re-analyze snag")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "snag": snag})
}
