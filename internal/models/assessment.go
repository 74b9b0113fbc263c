package models

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// Sentinel content used when the analysis service cannot produce a usable record
const (
	SentinelDefectType     = "Unidentified defect"
	SentinelDescription    = "Unable to analyze this image. Please review manually."
	SentinelTrade          = "Builder"
	SentinelRemedialAction = "Manual inspection required"
)

// Assessment is the structured defect record produced for one photo.
// Sentinel marks the placeholder variant returned instead of an error.
type Assessment struct {
	DefectType     string          `json:"defectType"`
	Description    string          `json:"description"`
	Severity       Severity        `json:"severity"`
	SuggestedTrade string          `json:"suggestedTrade"`
	RemedialAction string          `json:"remedialAction"`
	Confidence     float64         `json:"confidence"`
	Sentinel       bool            `json:"-"`
	Reason         string          `json:"-"`
	PromptVersion  string          `json:"-"`
	Raw            json.RawMessage `json:"-"`
}

// SentinelAssessment builds the low-confidence placeholder record
func SentinelAssessment(reason string) Assessment {
	return Assessment{
		DefectType:     SentinelDefectType,
		Description:    SentinelDescription,
		Severity:       SeverityMinor,
		SuggestedTrade: SentinelTrade,
		RemedialAction: SentinelRemedialAction,
		Confidence:     0.0,
		Sentinel:       true,
		Reason:         reason,
	}
}

// Columns is the wholesale overwrite applied to a snag by an analysis attempt.
// Any automated overwrite clears the human override flag.
func (a Assessment) Columns() map[string]interface{} {
	cols := map[string]interface{}{
		"defect_type":     a.DefectType,
		"description":     a.Description,
		"severity":        a.Severity,
		"suggested_trade": a.SuggestedTrade,
		"remedial_action": a.RemedialAction,
		"ai_confidence":   a.Confidence,
		"user_edited":     false,
		"analysis_failed": a.Sentinel,
		"prompt_version":  a.PromptVersion,
	}
	if len(a.Raw) > 0 && !a.Sentinel {
		cols["analysis_raw"] = datatypes.JSON(a.Raw)
	} else {
		cols["analysis_raw"] = nil
	}
	return cols
}
