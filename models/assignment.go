package models

import (
	"time"
)

type AssignmentStatus string

const (
	AssignmentAssigned  AssignmentStatus = "ASSIGNED"
	AssignmentCompleted AssignmentStatus = "COMPLETED"
	AssignmentExpired   AssignmentStatus = "EXPIRED"
)

// Assignment (a.k.a. user task) binds one recurring task instance to one user
// for one rotation period.
//
// SlotKey is set to SlotKeyFor(user, frequency) while the assignment is valid and
// cleared once it expires. The unique index keeps a single valid assignment per
// (user, frequency) slot.
type Assignment struct {
	Identity
	UserID      string           `gorm:"index;size:36;not null" json:"user_id"`
	TaskID      string           `gorm:"index;size:36;not null" json:"task_id"`
	Task        *Task            `gorm:"foreignKey:TaskID" json:"task,omitempty"`
	Frequency   Frequency        `gorm:"size:16;not null" json:"frequency"`
	Status      AssignmentStatus `gorm:"size:16;index;not null" json:"status"`
	SlotKey     *string          `gorm:"uniqueIndex;size:64" json:"-"`
	AssignedAt  time.Time        `json:"assigned_at"`
	ExpiresAt   time.Time        `gorm:"index" json:"expires_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Timestamps
}

// SlotKeyFor builds the uniqueness key of a (user, frequency) slot.
func SlotKeyFor(userID string, f Frequency) string {
	return userID + ":" + string(f)
}

// ValidAt reports whether the assignment occupies its slot at now.
func (a *Assignment) ValidAt(now time.Time) bool {
	if a.Status != AssignmentAssigned && a.Status != AssignmentCompleted {
		return false
	}
	return now.Before(a.ExpiresAt)
}
