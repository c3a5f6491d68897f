package models

import (
	"time"
)

// User is the engine's view of a participant. Identity fields are mirrored from
// the profile service; points, streak, ambient and level are owned here.
type User struct {
	Identity
	ExternalUserID string  `gorm:"uniqueIndex;not null" json:"external_user_id"`
	Username       string  `gorm:"index" json:"username"`
	NeighborhoodID *string `gorm:"index;size:36" json:"neighborhood_id,omitempty"`
	IsActive       bool    `gorm:"not null;index" json:"is_active"`

	Points           int64      `json:"points" gorm:"default:0"`
	Streak           int        `json:"streak" gorm:"default:0"`
	LongestStreak    int        `json:"longest_streak" gorm:"default:0"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty" gorm:"index"`
	Level            int        `json:"level" gorm:"default:1"`
	LastLevelUpAt    *time.Time `json:"last_level_up_at,omitempty"`

	Ambient             AmbientImpact `json:"ambient" gorm:"embedded;embeddedPrefix:ambient_"`
	TotalTasksCompleted int64         `json:"total_tasks_completed" gorm:"default:0"`

	Timestamps
}

// UserCategoryStat counts approved completions per task category.
type UserCategoryStat struct {
	UserID      string `gorm:"primaryKey;size:36" json:"user_id"`
	Category    string `gorm:"primaryKey;size:64" json:"category"`
	Completions int64  `gorm:"not null;default:0" json:"completions"`
}
