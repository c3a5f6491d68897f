package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"gorm.io/gorm"
)

// Identity is the UUID primary key shared by engine tables.
type Identity struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`
}

// BeforeCreate assigns an ID when the caller did not.
func (i *Identity) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// AmbientImpact accumulates environmental metrics. Embedded with a column prefix.
type AmbientImpact struct {
	CO2Saved      float64 `json:"co2_saved" gorm:"default:0"`
	WasteRecycled float64 `json:"waste_recycled" gorm:"default:0"`
	KmGreen       float64 `json:"km_green" gorm:"default:0"`
}

// Add returns the sum of both impacts.
func (a AmbientImpact) Add(b AmbientImpact) AmbientImpact {
	return AmbientImpact{
		CO2Saved:      a.CO2Saved + b.CO2Saved,
		WasteRecycled: a.WasteRecycled + b.WasteRecycled,
		KmGreen:       a.KmGreen + b.KmGreen,
	}
}

// NormalizeCategory folds a category so "Recycling" and "recycling " count as one key.
// A Caser is stateful, so each call takes its own.
func NormalizeCategory(category string) string {
	return cases.Fold().String(strings.TrimSpace(category))
}

// AutoMigrate creates or updates every engine table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Neighborhood{},
		&User{},
		&UserCategoryStat{},
		&Quiz{},
		&Task{},
		&Assignment{},
		&Submission{},
		&Badge{},
		&UserBadge{},
	)
}
