package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/snaglog/snaglog-api/internal/models"
)

var errNoJSON = errors.New("no JSON object found in response")

// sanitizeJSON removes Markdown code fences (```json ... ```) around model output
func sanitizeJSON(input string) string {
	cleaned := strings.TrimSpace(input)

	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
	}

	if strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimSuffix(cleaned, "```")
	}

	return strings.TrimSpace(cleaned)
}

// extractJSONObject returns the first balanced, well-formed {...} span in text.
// Braces inside JSON strings are ignored while matching.
func extractJSONObject(text string) (string, error) {
	text = sanitizeJSON(text)
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > start {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", errNoJSON
}

// matchBrace returns the index of the brace closing the one at open, or -1
func matchBrace(text string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

type defectRecord struct {
	DefectType     string          `json:"defectType"`
	Description    string          `json:"description"`
	Severity       string          `json:"severity"`
	SuggestedTrade string          `json:"suggestedTrade"`
	RemedialAction string          `json:"remedialAction"`
	Confidence     json.RawMessage `json:"confidence"`
}

// parseAssessment decodes the model's free-form text into an assessment.
// Unknown severities are rated MINOR and confidence is clamped to [0, 1].
func parseAssessment(text string) (models.Assessment, error) {
	span, err := extractJSONObject(text)
	if err != nil {
		return models.Assessment{}, err
	}

	var rec defectRecord
	if err := json.Unmarshal([]byte(span), &rec); err != nil {
		return models.Assessment{}, fmt.Errorf("failed to decode defect record: %w", err)
	}

	defectType := strings.TrimSpace(rec.DefectType)
	if defectType == "" {
		return models.Assessment{}, errors.New("defect record has no defectType")
	}

	severity, ok := models.ParseSeverity(rec.Severity)
	if !ok {
		severity = models.SeverityMinor
	}

	return models.Assessment{
		DefectType:     defectType,
		Description:    strings.TrimSpace(rec.Description),
		Severity:       severity,
		SuggestedTrade: strings.TrimSpace(rec.SuggestedTrade),
		RemedialAction: strings.TrimSpace(rec.RemedialAction),
		Confidence:     parseConfidence(rec.Confidence),
		Raw:            json.RawMessage(span),
	}, nil
}

// parseConfidence accepts numbers and numeric strings; anything else is 0
func parseConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%g", &f); err != nil {
			return 0
		}
	}
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
