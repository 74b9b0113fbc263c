package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReportStatus is the lifecycle state of an inspection report
type ReportStatus string

const (
	ReportStatusDraft      ReportStatus = "DRAFT"
	ReportStatusAnalyzing  ReportStatus = "ANALYZING"
	ReportStatusReview     ReportStatus = "REVIEW"
	ReportStatusGenerating ReportStatus = "GENERATING"
	ReportStatusComplete   ReportStatus = "COMPLETE"
)

// PaymentStatus is independent of the lifecycle status and only moves UNPAID -> PAID
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
	PaymentStatusPaid   PaymentStatus = "PAID"
)

// Report is one inspection unit owned by a single user
type Report struct {
	ID              string        `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	UserID          string        `gorm:"column:user_id;not null;index" json:"userId"`
	PropertyAddress string        `gorm:"column:property_address;not null" json:"propertyAddress"`
	PropertyType    string        `gorm:"column:property_type" json:"propertyType,omitempty"`
	DeveloperName   string        `gorm:"column:developer_name" json:"developerName,omitempty"`
	InspectionDate  time.Time     `gorm:"column:inspection_date" json:"inspectionDate"`
	Status          ReportStatus  `gorm:"column:status;type:varchar(16);not null;default:'DRAFT';index" json:"status"`
	PaymentStatus   PaymentStatus `gorm:"column:payment_status;type:varchar(16);not null;default:'UNPAID'" json:"paymentStatus"`
	PaymentRef      string        `gorm:"column:payment_ref" json:"-"`
	DocumentURL     string        `gorm:"column:document_url" json:"pdfUrl,omitempty"`
	RenderClaim     string        `gorm:"column:render_claim;type:varchar(36)" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`

	// Relations
	Snags []Snag `gorm:"foreignKey:ReportID;constraint:OnDelete:CASCADE" json:"snags,omitempty"`
}

// TableName specifies the table name
func (Report) TableName() string {
	return "reports"
}

// BeforeCreate assigns an id and the initial lifecycle state
func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = ReportStatusDraft
	}
	if r.PaymentStatus == "" {
		r.PaymentStatus = PaymentStatusUnpaid
	}
	if r.InspectionDate.IsZero() {
		r.InspectionDate = time.Now().UTC()
	}
	return nil
}

// ShortID is the human-facing report reference printed on documents
func (r *Report) ShortID() string {
	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return strings.ToUpper(id)
}

// IsPaid reports whether the payment gate has been passed
func (r *Report) IsPaid() bool {
	return r.PaymentStatus == PaymentStatusPaid
}

// AcceptsPhotos reports whether new photos may still be added
func (r *Report) AcceptsPhotos() bool {
	return r.Status != ReportStatusComplete
}

// SnagsEditable reports whether snags may still be edited, re-analyzed or deleted
func (r *Report) SnagsEditable() bool {
	return r.Status != ReportStatusGenerating && r.Status != ReportStatusComplete
}
