package models

import "time"

// Transition describes a compare-and-swap status change. It only applies when
// the stored status is one of From, or when the report already sits in To and
// the reclaim rules below hold.
type Transition struct {
	Name        string
	From        []ReportStatus
	To          ReportStatus
	RequirePaid bool
	DocumentURL string

	// RequireSnags only lets the change through while the report has a snag
	RequireSnags bool

	// ReclaimBefore lets a report that has sat in To since before this instant be taken over
	ReclaimBefore time.Time
	// ReclaimReleased lets a report in To be taken over once no render claim is held
	ReclaimReleased bool

	// Claim is stored as the render claim of the report
	Claim string
	// Holder requires the report's render claim to equal it and clears the claim
	Holder string
}

var transitions = map[ReportStatus][]ReportStatus{
	ReportStatusDraft:      {ReportStatusAnalyzing},
	ReportStatusAnalyzing:  {ReportStatusReview},
	ReportStatusReview:     {ReportStatusAnalyzing, ReportStatusGenerating},
	ReportStatusGenerating: {ReportStatusComplete},
	ReportStatusComplete:   {},
}

// CanTransition reports whether the lifecycle allows moving from one status to another
func CanTransition(from, to ReportStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BeginAnalysis enters ANALYZING. A run abandoned for longer than staleAfter
// may be reclaimed by a new one.
func BeginAnalysis(now time.Time, staleAfter time.Duration) Transition {
	t := Transition{
		Name:         "begin_analysis",
		From:         []ReportStatus{ReportStatusDraft, ReportStatusReview},
		To:           ReportStatusAnalyzing,
		RequireSnags: true,
	}
	if staleAfter > 0 {
		t.ReclaimBefore = now.Add(-staleAfter)
	}
	return t
}

// FinishAnalysis leaves ANALYZING once every targeted snag was attempted
func FinishAnalysis() Transition {
	return Transition{
		Name: "finish_analysis",
		From: []ReportStatus{ReportStatusAnalyzing},
		To:   ReportStatusReview,
	}
}

// BeginRendering is the payment gate. It takes the render claim of the report;
// a GENERATING report is only taken over once its claim was released by a
// failed render or has been held for longer than staleAfter.
func BeginRendering(claim string, now time.Time, staleAfter time.Duration) Transition {
	t := Transition{
		Name:            "begin_rendering",
		From:            []ReportStatus{ReportStatusReview},
		To:              ReportStatusGenerating,
		RequirePaid:     true,
		ReclaimReleased: true,
		Claim:           claim,
	}
	if staleAfter > 0 {
		t.ReclaimBefore = now.Add(-staleAfter)
	}
	return t
}

// ReleaseRendering gives up a render claim after a failed render. The report
// stays GENERATING.
func ReleaseRendering(claim string) Transition {
	return Transition{
		Name:   "release_rendering",
		From:   []ReportStatus{ReportStatusGenerating},
		To:     ReportStatusGenerating,
		Holder: claim,
	}
}

// Complete persists the document URL together with the terminal status. Only
// the holder of the render claim may complete.
func Complete(documentURL, claim string) Transition {
	return Transition{
		Name:        "complete",
		From:        []ReportStatus{ReportStatusGenerating},
		To:          ReportStatusComplete,
		DocumentURL: documentURL,
		Holder:      claim,
	}
}

// Allows evaluates the transition guard against an in-memory report. Snags
// must be loaded for RequireSnags to hold.
func (t Transition) Allows(r *Report, now time.Time) bool {
	if t.RequirePaid && !r.IsPaid() {
		return false
	}
	if t.RequireSnags && len(r.Snags) == 0 {
		return false
	}
	if t.Holder != "" && r.RenderClaim != t.Holder {
		return false
	}
	for _, from := range t.From {
		if r.Status == from {
			return true
		}
	}
	if r.Status != t.To {
		return false
	}
	if t.ReclaimReleased && r.RenderClaim == "" {
		return true
	}
	return !t.ReclaimBefore.IsZero() && r.UpdatedAt.Before(t.ReclaimBefore)
}

// Columns returns the report columns written besides status and updated_at
func (t Transition) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if t.DocumentURL != "" {
		cols["document_url"] = t.DocumentURL
	}
	switch {
	case t.Claim != "":
		cols["render_claim"] = t.Claim
	case t.Holder != "":
		cols["render_claim"] = ""
	}
	return cols
}
