package reports

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/snaglog/snaglog-api/internal/apperr"
	"github.com/snaglog/snaglog-api/internal/models"
	"github.com/snaglog/snaglog-api/internal/storage"
)

// ReportPatch is a partial update of report details; nil fields are untouched
type ReportPatch struct {
	PropertyAddress *string    `json:"propertyAddress,omitempty"`
	PropertyType    *string    `json:"propertyType,omitempty"`
	DeveloperName   *string    `json:"developerName,omitempty"`
	InspectionDate  *time.Time `json:"inspectionDate,omitempty"`
}

func (p ReportPatch) columns(op string) (map[string]interface{}, error) {
	cols := map[string]interface{}{}
	if p.PropertyAddress != nil {
		address := strings.TrimSpace(*p.PropertyAddress)
		if address == "" {
			return nil, apperr.Validation(op, "Property address cannot be empty")
		}
		cols["property_address"] = address
	}
	if p.PropertyType != nil {
		cols["property_type"] = strings.TrimSpace(*p.PropertyType)
	}
	if p.DeveloperName != nil {
		cols["developer_name"] = strings.TrimSpace(*p.DeveloperName)
	}
	if p.InspectionDate != nil {
		cols["inspection_date"] = p.InspectionDate.UTC()
	}
	return cols, nil
}

// GetReport returns an owned report with its snags in display order
func (s *Service) GetReport(ctx context.Context, ownerID, reportID string) (*models.Report, error) {
	return s.store.GetReport(ctx, ownerID, reportID)
}

// ListReports returns the owner's reports, newest first
func (s *Service) ListReports(ctx context.Context, ownerID string) ([]models.Report, error) {
	return s.store.ListReports(ctx, ownerID)
}

// UpdateReport patches report details. Details are frozen once rendering starts.
func (s *Service) UpdateReport(ctx context.Context, ownerID, reportID string, patch ReportPatch) (*models.Report, error) {
	const op = "reports.UpdateReport"

	cols, err := patch.columns(op)
	if err != nil {
		return nil, err
	}
	report, err := s.store.GetReport(ctx, ownerID, reportID)
	if err != nil {
		return nil, err
	}
	if !report.SnagsEditable() {
		return nil, apperr.StateConflict(op, "Report is locked while the document is generated or complete")
	}
	return s.store.UpdateReportDetails(ctx, ownerID, reportID, cols)
}

// UpdateSnag applies a manual edit and marks the snag as overridden
func (s *Service) UpdateSnag(ctx context.Context, ownerID, reportID, snagID string, edit models.SnagEdit) (*models.Snag, error) {
	const op = "reports.UpdateSnag"

	cols, ok := edit.Columns()
	if !ok {
		return nil, apperr.Validation(op, "Severity must be MINOR, MODERATE or MAJOR")
	}
	return s.store.UpdateSnag(ctx, ownerID, reportID, snagID, cols)
}

// DeleteSnag removes one snag and its photo. Remaining snags keep their display order.
func (s *Service) DeleteSnag(ctx context.Context, ownerID, reportID, snagID string) error {
	snag, err := s.store.DeleteSnag(ctx, ownerID, reportID, snagID)
	if err != nil {
		return err
	}
	s.cleanupBlobs(ctx, []string{snag.PhotoKey})
	return nil
}

// DeleteReport removes a report, its snags, photos and document
func (s *Service) DeleteReport(ctx context.Context, ownerID, reportID string) error {
	report, err := s.store.DeleteReport(ctx, ownerID, reportID)
	if err != nil {
		return err
	}

	keys := photoKeys(report.Snags)
	if report.DocumentURL != "" {
		keys = append(keys, storage.DocumentKey(report.ID))
	}
	s.cleanupBlobs(ctx, keys)

	log.Printf("🗑️ Report %s deleted (%d photos)", report.ShortID(), len(report.Snags))
	return nil
}
