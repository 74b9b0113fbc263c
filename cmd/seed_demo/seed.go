package main

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/snaglog/snaglog-api/internal/models"
	"github.com/snaglog/snaglog-api/internal/storage"
)

type demoSnag struct {
	room       string
	assessment models.Assessment
	tint       color.NRGBA
}

var demoSnags = []demoSnag{
	{"Kitchen", models.Assessment{DefectType: "Paint defect", Description: "Paint runs and patchy coverage on the wall above the worktop.", Severity: models.SeverityMinor, SuggestedTrade: "Decorator", RemedialAction: "Sand back and apply a further coat.", Confidence: 0.91}, color.NRGBA{214, 196, 170, 255}},
	{"Kitchen", models.Assessment{DefectType: "Joinery issue", Description: "Cupboard door is misaligned and catches the adjacent unit.", Severity: models.SeverityModerate, SuggestedTrade: "Joiner", RemedialAction: "Adjust hinges and realign door.", Confidence: 0.84}, color.NRGBA{150, 120, 90, 255}},
	{"Bathroom", models.Assessment{DefectType: "Sealant issue", Description: "Silicone bead around the bath has separated from the tiles.", Severity: models.SeverityModerate, SuggestedTrade: "Plumber", RemedialAction: "Remove and reapply sanitary silicone.", Confidence: 0.88}, color.NRGBA{225, 232, 238, 255}},
	{"Bedroom 1", models.Assessment{DefectType: "Crack", Description: "Diagonal crack running from the window head to the ceiling.", Severity: models.SeverityMajor, SuggestedTrade: "Builder", RemedialAction: "Investigate cause, rake out and make good.", Confidence: 0.76}, color.NRGBA{240, 236, 228, 255}},
	{"", models.Assessment{DefectType: "Missing component", Description: "Socket faceplate missing in the hallway.", Severity: models.SeverityMajor, SuggestedTrade: "Electrician", RemedialAction: "Fit faceplate and test circuit.", Confidence: 0.93}, color.NRGBA{200, 200, 200, 255}},
}

// DemoStore is the subset of the report repository the seeder needs
type DemoStore interface {
	CreateReportWithSnags(ctx context.Context, report *models.Report, snags []models.Snag) error
	ApplyAssessment(ctx context.Context, snagID string, a models.Assessment, overwriteEdited bool) (bool, error)
	Transition(ctx context.Context, reportID string, t models.Transition) error
	GetReport(ctx context.Context, ownerID, reportID string) (*models.Report, error)
}

// DemoBlobs stores the generated demo photos
type DemoBlobs interface {
	Put(ctx context.Context, data []byte, contentType, key string) (string, error)
}

// seedDemoReport creates the "12 Elm Street" report already analyzed and in REVIEW
func seedDemoReport(ctx context.Context, repo DemoStore, blobs DemoBlobs, ownerID string) (*models.Report, error) {
	report := &models.Report{
		ID:              uuid.New().String(),
		UserID:          ownerID,
		PropertyAddress: "12 Elm Street",
		PropertyType:    "Detached house",
		DeveloperName:   "Demo Homes Ltd",
		InspectionDate:  time.Now().UTC(),
	}

	snags := make([]models.Snag, 0, len(demoSnags))
	for i, d := range demoSnags {
		var buf bytes.Buffer
		img := imaging.New(640, 480, d.tint)
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
			return nil, fmt.Errorf("failed to encode demo photo: %w", err)
		}
		key := storage.PhotoKey(report.ID, ".jpg")
		url, err := blobs.Put(ctx, buf.Bytes(), "image/jpeg", key)
		if err != nil {
			return nil, fmt.Errorf("failed to store demo photo: %w", err)
		}
		snags = append(snags, models.Snag{
			ID:           uuid.New().String(),
			PhotoURL:     url,
			PhotoKey:     key,
			DisplayOrder: i,
			Room:         d.room,
		})
	}

	if err := repo.CreateReportWithSnags(ctx, report, snags); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := repo.Transition(ctx, report.ID, models.BeginAnalysis(now, 15*time.Minute)); err != nil {
		return nil, err
	}
	for i, d := range demoSnags {
		if _, err := repo.ApplyAssessment(ctx, snags[i].ID, d.assessment, true); err != nil {
			return nil, err
		}
	}
	if err := repo.Transition(ctx, report.ID, models.FinishAnalysis()); err != nil {
		return nil, err
	}

	return repo.GetReport(ctx, ownerID, report.ID)
}
