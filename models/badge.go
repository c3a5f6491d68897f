package models

import (
	"time"

	"github.com/gosimple/slug"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BadgeRequirements is the closed requirement schema of a badge. A nil or empty
// field is not a constraint.
type BadgeRequirements struct {
	MinPoints         *int64           `json:"min_points,omitempty"`
	MinTasksCompleted *int64           `json:"min_tasks_completed,omitempty"`
	TasksByCategory   map[string]int64 `json:"tasks_by_category,omitempty"`
	MinStreak         *int             `json:"min_streak,omitempty"`
	MinCO2Saved       *float64         `json:"min_co2_saved,omitempty"`
	MinWasteRecycled  *float64         `json:"min_waste_recycled,omitempty"`
	MinKmGreen        *float64         `json:"min_km_green,omitempty"`
}

// Badge is a catalog entry.
type Badge struct {
	Identity
	Code         string                                `gorm:"uniqueIndex;not null" json:"code"` // e.g., "FIRST_STEP", "RECYCLER_10"
	Name         string                                `gorm:"not null" json:"name"`
	Description  string                                `json:"description"`
	IconURL      string                                `gorm:"type:text" json:"icon_url"`
	Rarity       string                                `gorm:"type:varchar(16);default:'common'" json:"rarity"` // common, rare, epic, legendary
	Requirements datatypes.JSONType[BadgeRequirements] `json:"requirements"`
	CreatedAt    time.Time                             `gorm:"autoCreateTime" json:"created_at"`
}

func (b *Badge) BeforeCreate(tx *gorm.DB) error {
	if err := b.Identity.BeforeCreate(tx); err != nil {
		return err
	}
	if b.Code == "" {
		b.Code = slug.Make(b.Name)
	}
	return nil
}

// UserBadge is an awarded instance. Grants are append-only.
type UserBadge struct {
	Identity
	UserID    string    `gorm:"not null;size:36;uniqueIndex:idx_user_badge" json:"user_id"`
	BadgeID   string    `gorm:"not null;size:36;uniqueIndex:idx_user_badge" json:"badge_id"`
	AwardedAt time.Time `json:"awarded_at"`
}

func ptr[T any](v T) *T { return &v }

// DefaultBadges seeds a fresh catalog.
var DefaultBadges = []Badge{
	{
		Code:         "FIRST_STEP",
		Name:         "First Step",
		Description:  "Completed your first civic task",
		Rarity:       "common",
		Requirements: datatypes.NewJSONType(BadgeRequirements{MinTasksCompleted: ptr[int64](1)}),
	},
	{
		Code:         "POINTS_1000",
		Name:         "Thousand Club",
		Description:  "Earned 1,000 points",
		Rarity:       "rare",
		Requirements: datatypes.NewJSONType(BadgeRequirements{MinPoints: ptr[int64](1000)}),
	},
	{
		Code:         "WEEK_STREAK",
		Name:         "Seven Day Streak",
		Description:  "Stayed active seven days in a row",
		Rarity:       "rare",
		Requirements: datatypes.NewJSONType(BadgeRequirements{MinStreak: ptr(7)}),
	},
	{
		Code:        "RECYCLER_10",
		Name:        "Recycler",
		Description: "Completed ten recycling tasks and recycled 25 kg",
		Rarity:      "epic",
		Requirements: datatypes.NewJSONType(BadgeRequirements{
			TasksByCategory:  map[string]int64{"recycling": 10},
			MinWasteRecycled: ptr(25.0),
		}),
	},
	{
		Code:         "GREEN_COMMUTER",
		Name:         "Green Commuter",
		Description:  "Travelled 100 km by bike, foot or transit",
		Rarity:       "epic",
		Requirements: datatypes.NewJSONType(BadgeRequirements{MinKmGreen: ptr(100.0)}),
	},
	{
		Code:         "CARBON_CUTTER",
		Name:         "Carbon Cutter",
		Description:  "Saved 50 kg of CO2",
		Rarity:       "legendary",
		Requirements: datatypes.NewJSONType(BadgeRequirements{MinCO2Saved: ptr(50.0)}),
	},
}

// Level is a display tier reached at MinPoints.
type Level struct {
	Number    int    `json:"level"`
	Name      string `json:"name"`
	MinPoints int64  `json:"min_points"`
}

// DefaultLevels are the built-in tiers.
var DefaultLevels = []Level{
	{Number: 1, Name: "Seedling", MinPoints: 0},
	{Number: 2, Name: "Sprout", MinPoints: 100},
	{Number: 3, Name: "Sapling", MinPoints: 500},
	{Number: 4, Name: "Tree", MinPoints: 1500},
	{Number: 5, Name: "Grove", MinPoints: 5000},
	{Number: 6, Name: "Forest", MinPoints: 10000},
}
