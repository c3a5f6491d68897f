package models

import (
	"time"

	"github.com/gosimple/slug"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// VerificationMethod selects the proof evaluator for a task.
type VerificationMethod string

const (
	VerificationGPS          VerificationMethod = "GPS"
	VerificationQRScan       VerificationMethod = "QR_SCAN"
	VerificationQuiz         VerificationMethod = "QUIZ"
	VerificationPhotoUpload  VerificationMethod = "PHOTO_UPLOAD"
	VerificationManualReport VerificationMethod = "MANUAL_REPORT"
)

// Frequency controls how a task is rotated and assigned.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyMonthly  Frequency = "monthly"
	FrequencyOnDemand Frequency = "on_demand"
)

// RecurringFrequencies are the frequencies that get per-user assignments.
var RecurringFrequencies = []Frequency{FrequencyDaily, FrequencyWeekly, FrequencyMonthly}

// IsRecurring reports whether f is assigned on a rotation.
func (f Frequency) IsRecurring() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskStatusActive  TaskStatus = "active"
	TaskStatusExpired TaskStatus = "expired"
)

// VerificationCriteria is method specific; unused fields stay empty.
type VerificationCriteria struct {
	TargetLocation    []float64 `json:"target_location,omitempty"` // [lat, lon]
	MinDistanceMeters *float64  `json:"min_distance_meters,omitempty"`
	QRCodeSecret      string    `json:"qr_code_secret,omitempty"`
	QuizID            string    `json:"quiz_id,omitempty"`
}

// ImpactMetrics are the ambient deltas credited for one approved completion.
type ImpactMetrics struct {
	CO2Saved      float64 `json:"co2_saved" gorm:"default:0"`
	WasteRecycled float64 `json:"waste_recycled" gorm:"default:0"`
	Distance      float64 `json:"distance" gorm:"default:0"`
}

// Ambient maps the task impact onto the user accumulators.
func (m ImpactMetrics) Ambient() AmbientImpact {
	return AmbientImpact{CO2Saved: m.CO2Saved, WasteRecycled: m.WasteRecycled, KmGreen: m.Distance}
}

// Task is an operator-defined civic action.
type Task struct {
	Identity
	Title              string                                   `gorm:"not null" json:"title"`
	Slug               string                                   `gorm:"index" json:"slug"`
	Description        string                                   `gorm:"type:text" json:"description"`
	Category           string                                   `gorm:"index;size:64" json:"category"`
	VerificationMethod VerificationMethod                       `gorm:"size:32;not null" json:"verification_method"`
	Criteria           datatypes.JSONType[VerificationCriteria] `json:"verification_criteria"`
	BasePoints         int64                                    `gorm:"not null" json:"base_points"`
	Impact             ImpactMetrics                            `gorm:"embedded;embeddedPrefix:impact_" json:"impact_metrics"`
	Frequency          Frequency                                `gorm:"size:16;index;not null" json:"frequency"`
	NeighborhoodID     *string                                  `gorm:"index;size:36" json:"neighborhood_id,omitempty"`
	IsActive           bool                                     `gorm:"index" json:"is_active"`
	Status             TaskStatus                               `gorm:"size:16;default:'active';index" json:"status"`
	ExpiresAt          *time.Time                               `gorm:"index" json:"expires_at,omitempty"`

	// Rotation lineage: a rotated definition points at the instance that replaced it.
	RotatedFromID *string `gorm:"size:36" json:"rotated_from_id,omitempty"`
	RotatedIntoID *string `gorm:"size:36;index" json:"rotated_into_id,omitempty"`

	Timestamps
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if err := t.Identity.BeforeCreate(tx); err != nil {
		return err
	}
	if t.Slug == "" {
		t.Slug = slug.Make(t.Title)
	}
	t.Category = NormalizeCategory(t.Category)
	return nil
}

// AvailableTo reports whether a user in neighborhoodID may see the task.
func (t *Task) AvailableTo(neighborhoodID *string) bool {
	if t.NeighborhoodID == nil {
		return true
	}
	return neighborhoodID != nil && *neighborhoodID == *t.NeighborhoodID
}
