package models

import (
	"time"

	"gorm.io/datatypes"
)

type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "PENDING"
	SubmissionApproved SubmissionStatus = "APPROVED"
	SubmissionRejected SubmissionStatus = "REJECTED"
)

// Submission is one proof-verification attempt. It is immutable once decided,
// except through manual review.
type Submission struct {
	Identity
	UserID          string           `gorm:"index;size:36;not null" json:"user_id"`
	TaskID          string           `gorm:"index;size:36;not null" json:"task_id"`
	AssignmentID    *string          `gorm:"index;size:36" json:"assignment_id,omitempty"`
	Status          SubmissionStatus `gorm:"size:16;index;not null" json:"status"`
	Proof           datatypes.JSON   `json:"proof"`
	PointsAwarded   int64            `gorm:"default:0" json:"points_awarded"`
	CompletedAt     *time.Time       `gorm:"index" json:"completed_at,omitempty"`
	RejectionReason string           `gorm:"type:text" json:"rejection_reason,omitempty"`
	ReviewedBy      string           `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time       `json:"reviewed_at,omitempty"`
	ReviewNote      string           `gorm:"type:text" json:"review_note,omitempty"`
	Timestamps
}
