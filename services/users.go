package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"civic-task-engine/models"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Profile is the identity slice of a user owned by the profile service.
type Profile struct {
	ExternalID   string
	Username     string
	Neighborhood string // display name; empty means none
	Active       bool
}

// UserDirectory maps gateway identities onto engine users.
type UserDirectory struct {
	DB *gorm.DB
}

func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{DB: db}
}

// ByExternalID finds the engine user mirrored from the profile service id.
func (d *UserDirectory) ByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	var user models.User
	if err := d.DB.WithContext(ctx).First(&user, "external_user_id = ?", externalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpsertProfile creates or refreshes the identity fields of a mirrored user.
// Points, streak, ambient impact and level are never touched. Unknown
// neighborhoods are created on first sight.
func (d *UserDirectory) UpsertProfile(ctx context.Context, p Profile) error {
	if strings.TrimSpace(p.ExternalID) == "" {
		return errors.New("profile without external id")
	}
	return d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hoodID, err := neighborhoodFor(tx, p.Neighborhood)
		if err != nil {
			return err
		}
		user := models.User{
			ExternalUserID: p.ExternalID,
			Username:       p.Username,
			NeighborhoodID: hoodID,
			IsActive:       p.Active,
			Level:          1,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "neighborhood_id", "is_active", "updated_at"}),
		}).Create(&user).Error
	})
}

func neighborhoodFor(tx *gorm.DB, name string) (*string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	n := models.Neighborhood{Name: name, Slug: slug.Make(name)}
	if n.Slug == "" {
		return nil, fmt.Errorf("neighborhood %q has no usable slug", name)
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(&n).Error; err != nil {
		return nil, fmt.Errorf("ensure neighborhood %q: %w", name, err)
	}
	var stored models.Neighborhood
	if err := tx.First(&stored, "slug = ?", n.Slug).Error; err != nil {
		return nil, err
	}
	return &stored.ID, nil
}

