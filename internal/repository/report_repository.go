// Package repository persists reports and snags through GORM.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/snaglog/snaglog-api/internal/apperr"
	"github.com/snaglog/snaglog-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReportRepository is the GORM-backed store for reports and their snags
type ReportRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewReportRepository creates a repository over db
func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func orderedSnags(db *gorm.DB) *gorm.DB {
	return db.Order("display_order ASC")
}

// notFound maps gorm's missing-record error to a NotFound kind
func notFound(op, what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(op, what+" not found")
	}
	return apperr.Internal(op, err)
}

// CreateReportWithSnags inserts a report and its first batch in one transaction.
// Snag display orders are taken as given.
func (r *ReportRepository) CreateReportWithSnags(ctx context.Context, report *models.Report, snags []models.Snag) error {
	const op = "repository.CreateReportWithSnags"

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(report).Error; err != nil {
			return apperr.Internal(op, fmt.Errorf("failed to create report: %w", err))
		}
		for i := range snags {
			snags[i].ReportID = report.ID
		}
		if len(snags) > 0 {
			if err := tx.Create(&snags).Error; err != nil {
				return apperr.Internal(op, fmt.Errorf("failed to create snags: %w", err))
			}
		}
		report.Snags = snags
		return nil
	})
}

// AppendSnags adds a batch to an existing report. The report row is locked so
// concurrent batches get disjoint display orders continuing after the current maximum.
func (r *ReportRepository) AppendSnags(ctx context.Context, ownerID, reportID string, snags []models.Snag) error {
	const op = "repository.AppendSnags"

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var report models.Report
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", reportID, ownerID).
			First(&report).Error
		if err != nil {
			return notFound(op, "Report", err)
		}
		if !report.AcceptsPhotos() {
			return apperr.StateConflict(op, "Cannot add photos to a completed report")
		}

		var maxOrder int
		if err := tx.Model(&models.Snag{}).
			Where("report_id = ?", reportID).
			Select("COALESCE(MAX(display_order), -1)").
			Scan(&maxOrder).Error; err != nil {
			return apperr.Internal(op, fmt.Errorf("failed to read display order: %w", err))
		}

		for i := range snags {
			snags[i].ReportID = reportID
			snags[i].DisplayOrder = maxOrder + 1 + i
		}
		if err := tx.Create(&snags).Error; err != nil {
			return apperr.Internal(op, fmt.Errorf("failed to create snags: %w", err))
		}

		return tx.Model(&models.Report{}).Where("id = ?", reportID).
			Update("updated_at", r.now()).Error
	})
}

// GetReport loads an owned report with its snags in display order
func (r *ReportRepository) GetReport(ctx context.Context, ownerID, reportID string) (*models.Report, error) {
	var report models.Report
	err := r.db.WithContext(ctx).
		Preload("Snags", orderedSnags).
		Where("id = ? AND user_id = ?", reportID, ownerID).
		First(&report).Error
	if err != nil {
		return nil, notFound("repository.GetReport", "Report", err)
	}
	return &report, nil
}

// GetReportByID loads a report without owner scoping; only signed gateway events use it
func (r *ReportRepository) GetReportByID(ctx context.Context, reportID string) (*models.Report, error) {
	var report models.Report
	err := r.db.WithContext(ctx).
		Preload("Snags", orderedSnags).
		Where("id = ?", reportID).
		First(&report).Error
	if err != nil {
		return nil, notFound("repository.GetReportByID", "Report", err)
	}
	return &report, nil
}

// ListReports returns the owner's reports, newest first, with snags
func (r *ReportRepository) ListReports(ctx context.Context, ownerID string) ([]models.Report, error) {
	var reports []models.Report
	err := r.db.WithContext(ctx).
		Preload("Snags", orderedSnags).
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Find(&reports).Error
	if err != nil {
		return nil, apperr.Internal("repository.ListReports", err)
	}
	return reports, nil
}

// UpdateReportDetails patches descriptive report columns
func (r *ReportRepository) UpdateReportDetails(ctx context.Context, ownerID, reportID string, cols map[string]interface{}) (*models.Report, error) {
	const op = "repository.UpdateReportDetails"

	if len(cols) > 0 {
		res := r.db.WithContext(ctx).Model(&models.Report{}).
			Where("id = ? AND user_id = ?", reportID, ownerID).
			Updates(cols)
		if res.Error != nil {
			return nil, apperr.Internal(op, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, apperr.NotFound(op, "Report not found")
		}
	}
	return r.GetReport(ctx, ownerID, reportID)
}

// DeleteReport removes the report and its snags, returning what was deleted
// so the caller can clean up blobs.
func (r *ReportRepository) DeleteReport(ctx context.Context, ownerID, reportID string) (*models.Report, error) {
	const op = "repository.DeleteReport"

	var report models.Report
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Preload("Snags", orderedSnags).
			Where("id = ? AND user_id = ?", reportID, ownerID).
			First(&report).Error
		if err != nil {
			return notFound(op, "Report", err)
		}
		// Explicit delete; SQLite skips the FK cascade unless foreign keys are enabled
		if err := tx.Where("report_id = ?", reportID).Delete(&models.Snag{}).Error; err != nil {
			return apperr.Internal(op, fmt.Errorf("failed to delete snags: %w", err))
		}
		if err := tx.Delete(&models.Report{}, "id = ?", reportID).Error; err != nil {
			return apperr.Internal(op, fmt.Errorf("failed to delete report: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// lockEditable locks an owned report and checks that its snags may change
func lockEditable(tx *gorm.DB, op, ownerID, reportID string) error {
	var report models.Report
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND user_id = ?", reportID, ownerID).
		First(&report).Error
	if err != nil {
		return notFound(op, "Report", err)
	}
	if !report.SnagsEditable() {
		return apperr.StateConflict(op, "Report is locked while the document is generated or complete")
	}
	return nil
}

// GetSnag loads one snag of an owned report
func (r *ReportRepository) GetSnag(ctx context.Context, ownerID, reportID, snagID string) (*models.Snag, error) {
	var snag models.Snag
	err := r.db.WithContext(ctx).
		Joins("JOIN reports ON reports.id = snags.report_id").
		Where("snags.id = ? AND snags.report_id = ? AND reports.user_id = ?", snagID, reportID, ownerID).
		First(&snag).Error
	if err != nil {
		return nil, notFound("repository.GetSnag", "Snag", err)
	}
	return &snag, nil
}

// UpdateSnag applies a manual edit while the report is still editable
func (r *ReportRepository) UpdateSnag(ctx context.Context, ownerID, reportID, snagID string, cols map[string]interface{}) (*models.Snag, error) {
	const op = "repository.UpdateSnag"

	var snag models.Snag
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockEditable(tx, op, ownerID, reportID); err != nil {
			return err
		}
		res := tx.Model(&models.Snag{}).
			Where("id = ? AND report_id = ?", snagID, reportID).
			Updates(cols)
		if res.Error != nil {
			return apperr.Internal(op, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound(op, "Snag not found")
		}
		if err := tx.Where("id = ?", snagID).First(&snag).Error; err != nil {
			return notFound(op, "Snag", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snag, nil
}

// DeleteSnag removes one snag without renumbering the others
func (r *ReportRepository) DeleteSnag(ctx context.Context, ownerID, reportID, snagID string) (*models.Snag, error) {
	const op = "repository.DeleteSnag"

	var snag models.Snag
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockEditable(tx, op, ownerID, reportID); err != nil {
			return err
		}
		if err := tx.Where("id = ? AND report_id = ?", snagID, reportID).First(&snag).Error; err != nil {
			return notFound(op, "Snag", err)
		}
		if err := tx.Delete(&models.Snag{}, "id = ?", snagID).Error; err != nil {
			return apperr.Internal(op, err)
		}
		return tx.Model(&models.Report{}).Where("id = ?", reportID).
			Update("updated_at", r.now()).Error
	})
	if err != nil {
		return nil, err
	}
	return &snag, nil
}

// lockedStatuses freeze snag content while the document is rendered
var lockedStatuses = []models.ReportStatus{models.ReportStatusGenerating, models.ReportStatusComplete}

// ApplyAssessment overwrites a snag's descriptive fields with an analysis result.
// Unless overwriteEdited is set, a snag edited by a human in the meantime is left
// alone and applied is false. The write only lands while the report is not
// GENERATING or COMPLETE, and it refreshes updated_at of a report in ANALYZING
// so a live run is never mistaken for an abandoned one.
func (r *ReportRepository) ApplyAssessment(ctx context.Context, snagID string, a models.Assessment, overwriteEdited bool) (bool, error) {
	const op = "repository.ApplyAssessment"

	now := r.now()
	cols := a.Columns()
	cols["analyzed_at"] = now

	var applied bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.Snag{}).
			Where("id = ?", snagID).
			Where("report_id IN (?)", tx.Model(&models.Report{}).Select("id").Where("status NOT IN ?", lockedStatuses))
		if !overwriteEdited {
			q = q.Where("user_edited = ?", false)
		}
		res := q.Updates(cols)
		if res.Error != nil {
			return apperr.Internal(op, res.Error)
		}
		if res.RowsAffected == 0 {
			return r.assessmentRejected(tx, op, snagID)
		}
		applied = true

		err := tx.Model(&models.Report{}).
			Where("id IN (?)", tx.Model(&models.Snag{}).Select("report_id").Where("id = ?", snagID)).
			Where("status = ?", models.ReportStatusAnalyzing).
			Update("updated_at", now).Error
		if err != nil {
			return apperr.Internal(op, fmt.Errorf("failed to refresh report: %w", err))
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// assessmentRejected explains why an assessment write touched no row. A snag
// kept because of a manual edit is not an error.
func (r *ReportRepository) assessmentRejected(tx *gorm.DB, op, snagID string) error {
	var snag models.Snag
	if err := tx.Where("id = ?", snagID).First(&snag).Error; err != nil {
		return notFound(op, "Snag", err)
	}
	var report models.Report
	if err := tx.Where("id = ?", snag.ReportID).First(&report).Error; err != nil {
		return notFound(op, "Report", err)
	}
	if !report.SnagsEditable() {
		return apperr.StateConflict(op, "Report is locked while the document is generated or complete")
	}
	return nil
}

// Transition performs a compare-and-swap status update. Zero affected rows
// means the guard did not hold and nothing changed.
func (r *ReportRepository) Transition(ctx context.Context, reportID string, t models.Transition) error {
	op := "repository.Transition." + t.Name

	q := r.db.WithContext(ctx).Model(&models.Report{}).Where("id = ?", reportID)

	var reclaim []string
	var args []interface{}
	if t.ReclaimReleased {
		reclaim = append(reclaim, "(render_claim IS NULL OR render_claim = '')")
	}
	if !t.ReclaimBefore.IsZero() {
		reclaim = append(reclaim, "updated_at < ?")
		args = append(args, t.ReclaimBefore)
	}
	if len(reclaim) == 0 {
		q = q.Where("status IN ?", t.From)
	} else {
		cond := "(status IN ? OR (status = ? AND (" + strings.Join(reclaim, " OR ") + ")))"
		q = q.Where(cond, append([]interface{}{t.From, t.To}, args...)...)
	}
	if t.RequirePaid {
		q = q.Where("payment_status = ?", models.PaymentStatusPaid)
	}
	if t.RequireSnags {
		q = q.Where("EXISTS (SELECT 1 FROM snags WHERE snags.report_id = reports.id)")
	}
	if t.Holder != "" {
		q = q.Where("render_claim = ?", t.Holder)
	}

	cols := t.Columns()
	cols["status"] = t.To
	cols["updated_at"] = r.now()

	res := q.Updates(cols)
	if res.Error != nil {
		return apperr.Internal(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return r.conflict(ctx, op, reportID, t)
	}
	return nil
}

// conflict distinguishes a missing report from a guard that did not hold
func (r *ReportRepository) conflict(ctx context.Context, op, reportID string, t models.Transition) error {
	var report models.Report
	if err := r.db.WithContext(ctx).Where("id = ?", reportID).First(&report).Error; err != nil {
		return notFound(op, "Report", err)
	}
	if t.RequirePaid && !report.IsPaid() {
		return apperr.StateConflict(op, "Payment required before generating the report")
	}
	if t.RequireSnags {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Snag{}).Where("report_id = ?", reportID).Count(&count).Error; err != nil {
			return apperr.Internal(op, err)
		}
		if count == 0 {
			return apperr.Validation(op, "Report has no photos to analyze")
		}
	}
	if t.Holder != "" && report.RenderClaim != t.Holder && report.Status == models.ReportStatusGenerating {
		return apperr.StateConflict(op, "Report is being rendered by another request")
	}
	return apperr.StateConflict(op, fmt.Sprintf("Report is %s", report.Status))
}

// MarkPaid records a confirmed payment. Marking an already paid report is a no-op.
func (r *ReportRepository) MarkPaid(ctx context.Context, reportID, paymentRef string) error {
	const op = "repository.MarkPaid"

	res := r.db.WithContext(ctx).Model(&models.Report{}).
		Where("id = ? AND payment_status = ?", reportID, models.PaymentStatusUnpaid).
		Updates(map[string]interface{}{
			"payment_status": models.PaymentStatusPaid,
			"payment_ref":    paymentRef,
			"updated_at":     r.now(),
		})
	if res.Error != nil {
		return apperr.Internal(op, res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Report{}).Where("id = ?", reportID).Count(&count).Error; err != nil {
			return apperr.Internal(op, err)
		}
		if count == 0 {
			return apperr.NotFound(op, "Report not found")
		}
	}
	return nil
}
