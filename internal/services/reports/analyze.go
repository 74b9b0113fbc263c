package reports

import (
	"context"
	"log"
	"sync"

	"github.com/snaglog/snaglog-api/internal/apperr"
	"github.com/snaglog/snaglog-api/internal/models"
	"golang.org/x/sync/errgroup"
)

// AnalyzeOptions selects which snags a batch run overwrites
type AnalyzeOptions struct {
	// PendingOnly restricts the run to snags never analyzed before
	PendingOnly bool
	// Force also overwrites snags edited by a human
	Force bool
}

// AnalysisSummary counts the outcome of one batch run
type AnalysisSummary struct {
	Targeted      int `json:"targeted"`
	Analyzed      int `json:"analyzed"`
	Sentinel      int `json:"sentinel"`
	Skipped       int `json:"skipped"`
	WriteFailures int `json:"writeFailures"`
}

func (sum *AnalysisSummary) record(applied, sentinel bool, err error) {
	switch {
	case err != nil:
		sum.WriteFailures++
	case !applied:
		sum.Skipped++
	default:
		sum.Analyzed++
		if sentinel {
			sum.Sentinel++
		}
	}
}

func selectTargets(snags []models.Snag, opts AnalyzeOptions) []models.Snag {
	targets := make([]models.Snag, 0, len(snags))
	for _, snag := range snags {
		if snag.UserEdited && !opts.Force {
			continue
		}
		if opts.PendingOnly && snag.Analyzed() {
			continue
		}
		targets = append(targets, snag)
	}
	return targets
}

// AnalyzeReport runs the analysis over a report's snags. The report enters
// ANALYZING once before dispatch and leaves it once after every unit returned.
// Per-photo analysis failures are stored as sentinel results and never fail the run.
func (s *Service) AnalyzeReport(ctx context.Context, ownerID, reportID string, opts AnalyzeOptions) (*models.Report, AnalysisSummary, error) {
	const op = "reports.AnalyzeReport"
	var summary AnalysisSummary

	report, err := s.store.GetReport(ctx, ownerID, reportID)
	if err != nil {
		return nil, summary, err
	}
	if len(report.Snags) == 0 {
		return nil, summary, apperr.Validation(op, "Report has no photos to analyze")
	}

	// A started batch always runs to completion, even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	if err := s.store.Transition(ctx, reportID, models.BeginAnalysis(s.now(), s.opts.AnalysisStaleAfter)); err != nil {
		return nil, summary, err
	}
	s.notifyStatus(report, models.ReportStatusAnalyzing)

	targets := selectTargets(report.Snags, opts)
	summary.Targeted = len(targets)
	log.Printf("🔍 Analyzing %d of %d snags for report %s", len(targets), len(report.Snags), report.ShortID())

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.opts.AnalysisConcurrency)

	for _, snag := range targets {
		g.Go(func() error {
			assessment := s.analyzer.Assess(ctx, snag.PhotoURL)
			applied, err := s.store.ApplyAssessment(ctx, snag.ID, assessment, opts.Force)
			if err != nil {
				log.Printf("❌ Failed to save analysis for snag %s: %v", snag.ID, err)
			}

			mu.Lock()
			summary.record(applied, assessment.Sentinel, err)
			mu.Unlock()

			if applied {
				s.notifier.Notify(ownerID, EventSnagAnalyzed, map[string]interface{}{
					"reportId":   reportID,
					"snagId":     snag.ID,
					"assessment": assessment,
					"sentinel":   assessment.Sentinel,
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := s.store.Transition(ctx, reportID, models.FinishAnalysis()); err != nil {
		return nil, summary, err
	}
	s.notifyStatus(report, models.ReportStatusReview)

	log.Printf("✅ Analysis finished for report %s (analyzed: %d, sentinel: %d, skipped: %d, write failures: %d)",
		report.ShortID(), summary.Analyzed, summary.Sentinel, summary.Skipped, summary.WriteFailures)

	updated, err := s.store.GetReport(ctx, ownerID, reportID)
	if err != nil {
		return nil, summary, err
	}
	return updated, summary, nil
}

// AnalyzeSnag re-runs the analysis for one snag without touching the report
// status. The result replaces any manual edit.
func (s *Service) AnalyzeSnag(ctx context.Context, ownerID, reportID, snagID string) (*models.Snag, error) {
	const op = "reports.AnalyzeSnag"

	report, err := s.store.GetReport(ctx, ownerID, reportID)
	if err != nil {
		return nil, err
	}
	if !report.SnagsEditable() {
		return nil, apperr.StateConflict(op, "Report is locked while the document is generated or complete")
	}
	snag, err := s.store.GetSnag(ctx, ownerID, reportID, snagID)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	assessment := s.analyzer.Assess(ctx, snag.PhotoURL)
	if _, err := s.store.ApplyAssessment(ctx, snag.ID, assessment, true); err != nil {
		return nil, err
	}

	s.notifier.Notify(ownerID, EventSnagAnalyzed, map[string]interface{}{
		"reportId":   reportID,
		"snagId":     snag.ID,
		"assessment": assessment,
		"sentinel":   assessment.Sentinel,
	})
	return s.store.GetSnag(ctx, ownerID, reportID, snagID)
}
