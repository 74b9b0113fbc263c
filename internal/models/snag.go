package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Severity of a defect as rated by the analysis model or a reviewer
type Severity string

const (
	SeverityMinor    Severity = "MINOR"
	SeverityModerate Severity = "MODERATE"
	SeverityMajor    Severity = "MAJOR"
)

// ParseSeverity accepts any casing and surrounding whitespace
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityMinor:
		return SeverityMinor, true
	case SeverityModerate:
		return SeverityModerate, true
	case SeverityMajor:
		return SeverityMajor, true
	}
	return "", false
}

// Snag is one photo-derived defect record within a Report
type Snag struct {
	ID           string `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	ReportID     string `gorm:"column:report_id;type:varchar(36);not null;index;uniqueIndex:idx_snag_report_order,priority:1" json:"reportId"`
	PhotoURL     string `gorm:"column:photo_url;not null" json:"photoUrl"`
	PhotoKey     string `gorm:"column:photo_key" json:"-"`
	DisplayOrder int    `gorm:"column:display_order;not null;uniqueIndex:idx_snag_report_order,priority:2" json:"displayOrder"`

	Room           string   `gorm:"column:room" json:"room,omitempty"`
	DefectType     string   `gorm:"column:defect_type" json:"defectType,omitempty"`
	Description    string   `gorm:"column:description;type:text" json:"description,omitempty"`
	Severity       Severity `gorm:"column:severity;type:varchar(16)" json:"severity,omitempty"`
	SuggestedTrade string   `gorm:"column:suggested_trade" json:"suggestedTrade,omitempty"`
	RemedialAction string   `gorm:"column:remedial_action;type:text" json:"remedialAction,omitempty"`
	AIConfidence   float64  `gorm:"column:ai_confidence" json:"aiConfidence"`
	UserEdited     bool     `gorm:"column:user_edited;not null;default:false" json:"userEdited"`

	AnalyzedAt     *time.Time     `gorm:"column:analyzed_at" json:"analyzedAt,omitempty"`
	AnalysisFailed bool           `gorm:"column:analysis_failed;not null;default:false" json:"analysisFailed"`
	AnalysisRaw    datatypes.JSON `gorm:"column:analysis_raw" json:"-"`
	PromptVersion  string         `gorm:"column:prompt_version" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name
func (Snag) TableName() string {
	return "snags"
}

// BeforeCreate assigns an id when the caller did not
func (s *Snag) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// Analyzed reports whether at least one analysis attempt has been applied
func (s *Snag) Analyzed() bool {
	return s.AnalyzedAt != nil
}

// SnagEdit is a partial manual edit; nil fields are left untouched
type SnagEdit struct {
	Room           *string `json:"room,omitempty"`
	DefectType     *string `json:"defectType,omitempty"`
	Description    *string `json:"description,omitempty"`
	Severity       *string `json:"severity,omitempty"`
	SuggestedTrade *string `json:"suggestedTrade,omitempty"`
	RemedialAction *string `json:"remedialAction,omitempty"`
}

// Columns converts the edit into a column update map. Every edit marks the
// snag as overridden by a human.
func (e SnagEdit) Columns() (map[string]interface{}, bool) {
	cols := map[string]interface{}{}
	if e.Room != nil {
		cols["room"] = strings.TrimSpace(*e.Room)
	}
	if e.DefectType != nil && *e.DefectType != "" {
		cols["defect_type"] = *e.DefectType
	}
	if e.Description != nil && *e.Description != "" {
		cols["description"] = *e.Description
	}
	if e.Severity != nil && *e.Severity != "" {
		sev, ok := ParseSeverity(*e.Severity)
		if !ok {
			return nil, false
		}
		cols["severity"] = sev
	}
	if e.SuggestedTrade != nil && *e.SuggestedTrade != "" {
		cols["suggested_trade"] = *e.SuggestedTrade
	}
	if e.RemedialAction != nil && *e.RemedialAction != "" {
		cols["remedial_action"] = *e.RemedialAction
	}
	cols["user_edited"] = true
	return cols, true
}
