package models

import (
	"time"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// Neighborhood aggregates the points and impact of the users living in it.
type Neighborhood struct {
	Identity
	Name              string        `gorm:"not null" json:"name"`
	Slug              string        `gorm:"uniqueIndex" json:"slug"`
	BasePoints        int64         `gorm:"default:0" json:"base_points"`
	NormalizedPoints  float64       `gorm:"default:0" json:"normalized_points"`
	RankingPosition   int           `gorm:"default:0" json:"ranking_position"`
	Environment       AmbientImpact `gorm:"embedded;embeddedPrefix:env_" json:"environmental_data"`
	LastRankingUpdate *time.Time    `json:"last_ranking_update,omitempty"`
	Timestamps
}

func (n *Neighborhood) BeforeCreate(tx *gorm.DB) error {
	if err := n.Identity.BeforeCreate(tx); err != nil {
		return err
	}
	if n.Slug == "" {
		n.Slug = slug.Make(n.Name)
	}
	if n.Slug == "" {
		n.Slug = n.ID
	}
	return nil
}
