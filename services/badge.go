package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"civic-task-engine/models"
	"civic-task-engine/notifications"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BadgeService struct {
	DB     *gorm.DB
	Clock  Clock
	Levels []models.Level
	Notify notifications.Sink
}

func NewBadgeService(db *gorm.DB, clock Clock, notify notifications.Sink) *BadgeService {
	if clock == nil {
		clock = SystemClock{}
	}
	if notify == nil {
		notify = notifications.NopSink{}
	}
	return &BadgeService{DB: db, Clock: clock, Levels: models.DefaultLevels, Notify: notify}
}

// BadgeStatus is a catalog badge annotated for one user.
type BadgeStatus struct {
	models.Badge
	Earned   bool       `json:"earned"`
	EarnedAt *time.Time `json:"earned_at,omitempty"`
}

// SeedCatalog inserts badges whose code is not in the catalog yet. A badge
// without requirements fails the whole seed before anything is written.
func (s *BadgeService) SeedCatalog(ctx context.Context, badges []models.Badge) error {
	for _, b := range badges {
		if len(CompileRequirements(b.Requirements.Data())) == 0 {
			return fmt.Errorf("seed badge %s: %w", b.Code, ErrBadgeWithoutRequirements)
		}
	}
	for _, b := range badges {
		badge := b
		badge.ID = ""
		if err := s.DB.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
			Create(&badge).Error; err != nil {
			return fmt.Errorf("seed badge %s: %w", b.Code, err)
		}
	}
	return nil
}

// EvaluateBadges grants every catalog badge the user now qualifies for and
// returns the newly granted ones.
func (s *BadgeService) EvaluateBadges(ctx context.Context, userID string) ([]models.Badge, error) {
	var awarded []models.Badge
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		var err error
		awarded, err = s.evaluate(tx, &user)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.announce(ctx, userID, awarded)
	return awarded, nil
}

// evaluate runs inside the caller's transaction. Held badges are skipped by id
// and grants are inserts only, so re-running never revokes or duplicates.
func (s *BadgeService) evaluate(tx *gorm.DB, user *models.User) ([]models.Badge, error) {
	var catalog []models.Badge
	if err := tx.Order("created_at ASC, id ASC").Find(&catalog).Error; err != nil {
		return nil, fmt.Errorf("load badge catalog: %w", err)
	}
	if len(catalog) == 0 {
		return nil, nil
	}

	held, err := s.heldBadges(tx, user.ID)
	if err != nil {
		return nil, err
	}
	byCategory, err := categoryCounts(tx, user.ID)
	if err != nil {
		return nil, err
	}
	stats := StatsOf(user, byCategory)

	now := s.Clock.Now()
	var awarded []models.Badge
	for _, badge := range catalog {
		if _, ok := held[badge.ID]; ok {
			continue
		}
		if !AllSatisfied(CompileRequirements(badge.Requirements.Data()), stats) {
			continue
		}
		grant := models.UserBadge{UserID: user.ID, BadgeID: badge.ID, AwardedAt: now}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&grant)
		if res.Error != nil {
			return nil, fmt.Errorf("grant badge %s: %w", badge.Code, res.Error)
		}
		if res.RowsAffected == 1 {
			awarded = append(awarded, badge)
			badgesAwardedTotal.Inc()
			log.Printf("[Badges] awarded %s → %s", badge.Code, user.ID)
		}
	}
	return awarded, nil
}

func (s *BadgeService) heldBadges(tx *gorm.DB, userID string) (map[string]time.Time, error) {
	var grants []models.UserBadge
	if err := tx.Where("user_id = ?", userID).Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("load user badges: %w", err)
	}
	held := make(map[string]time.Time, len(grants))
	for _, g := range grants {
		held[g.BadgeID] = g.AwardedAt
	}
	return held, nil
}

func categoryCounts(tx *gorm.DB, userID string) (map[string]int64, error) {
	var rows []models.UserCategoryStat
	if err := tx.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load category stats: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Category] = r.Completions
	}
	return counts, nil
}

// refreshLevel recomputes the user's level from points and persists a change.
func (s *BadgeService) refreshLevel(tx *gorm.DB, user *models.User) (bool, error) {
	level := LevelFor(s.Levels, user.Points)
	if level.Number == user.Level {
		return false, nil
	}
	leveledUp := level.Number > user.Level
	updates := map[string]interface{}{"level": level.Number}
	if leveledUp {
		now := s.Clock.Now()
		updates["last_level_up_at"] = now
		user.LastLevelUpAt = &now
	}
	if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return false, fmt.Errorf("update level: %w", err)
	}
	user.Level = level.Number
	return leveledUp, nil
}

// GetUserBadges lists the catalog with earned flags for userID.
func (s *BadgeService) GetUserBadges(ctx context.Context, userID string) ([]BadgeStatus, error) {
	db := s.DB.WithContext(ctx)
	var count int64
	if err := db.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrUserNotFound
	}

	var catalog []models.Badge
	if err := db.Order("created_at ASC, id ASC").Find(&catalog).Error; err != nil {
		return nil, fmt.Errorf("load badge catalog: %w", err)
	}
	held, err := s.heldBadges(db, userID)
	if err != nil {
		return nil, err
	}

	out := make([]BadgeStatus, 0, len(catalog))
	for _, b := range catalog {
		st := BadgeStatus{Badge: b}
		if at, ok := held[b.ID]; ok {
			st.Earned = true
			st.EarnedAt = &at
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *BadgeService) announce(ctx context.Context, userID string, badges []models.Badge) {
	for _, b := range badges {
		ev := notifications.Event{
			Kind:   notifications.KindBadgeGranted,
			UserID: userID,
			Title:  "New badge: " + b.Name,
			Body:   b.Description,
			Data:   map[string]string{"badge_code": b.Code, "badge_id": b.ID},
		}
		if err := s.Notify.Notify(ctx, ev); err != nil {
			log.Printf("[Badges] notify %s failed: %v", userID, err)
		}
	}
}
