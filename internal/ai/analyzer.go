package ai

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/snaglog/snaglog-api/internal/models"
)

// VisionModel is a vision-capable model taking one inline image and a prompt
type VisionModel interface {
	Describe(ctx context.Context, prompt, contentType string, image []byte) (string, error)
}

// ImageFetcher retrieves photo bytes by URL
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// Analyzer turns a stored photo into a defect assessment
type Analyzer struct {
	model   VisionModel
	fetcher ImageFetcher
	timeout time.Duration
}

// NewAnalyzer creates an analyzer; timeout bounds one fetch+model attempt
func NewAnalyzer(model VisionModel, fetcher ImageFetcher, timeout time.Duration) *Analyzer {
	return &Analyzer{
		model:   model,
		fetcher: fetcher,
		timeout: timeout,
	}
}

// Assess always returns an assessment. Any failure along the way yields the
// sentinel variant, so one bad photo or provider outage never blocks a batch.
func (a *Analyzer) Assess(ctx context.Context, photoURL string) models.Assessment {
	result, err := a.assess(ctx, photoURL)
	if err != nil {
		log.Printf("⚠️ Analysis fell back to sentinel for %s: %v", photoURL, err)
		result = models.SentinelAssessment(err.Error())
	}
	result.PromptVersion = DefectPromptVersion
	return result
}

func (a *Analyzer) assess(ctx context.Context, photoURL string) (result models.Assessment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis panic: %v", r)
		}
	}()

	if a.model == nil {
		return models.Assessment{}, fmt.Errorf("vision model is not configured")
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	data, contentType, err := a.fetcher.Fetch(ctx, photoURL)
	if err != nil {
		return models.Assessment{}, fmt.Errorf("failed to fetch photo: %w", err)
	}
	if len(data) == 0 {
		return models.Assessment{}, fmt.Errorf("photo is empty")
	}

	text, err := a.model.Describe(ctx, DefectPrompt, contentType, data)
	if err != nil {
		return models.Assessment{}, err
	}

	return parseAssessment(text)
}
