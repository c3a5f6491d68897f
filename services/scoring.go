package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"civic-task-engine/models"
	"civic-task-engine/notifications"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AwardResult describes one scored completion.
type AwardResult struct {
	PointsAwarded int64          `json:"points_awarded"`
	Multiplier    float64        `json:"multiplier"`
	NewStreak     int            `json:"new_streak"`
	TotalPoints   int64          `json:"total_points"`
	Level         int            `json:"level"`
	LeveledUp     bool           `json:"leveled_up"`
	NewBadges     []models.Badge `json:"new_badges"`
}

// ScoringService credits approved completions: points with the streak
// multiplier, streak, ambient impact and per-category counters.
type ScoringService struct {
	DB          *gorm.DB
	Clock       Clock
	Badges      *BadgeService
	Leaderboard *LeaderboardService
	Notify      notifications.Sink
}

func NewScoringService(db *gorm.DB, clock Clock, badges *BadgeService, leaderboard *LeaderboardService, notify notifications.Sink) *ScoringService {
	if clock == nil {
		clock = SystemClock{}
	}
	if notify == nil {
		notify = notifications.NopSink{}
	}
	return &ScoringService{DB: db, Clock: clock, Badges: badges, Leaderboard: leaderboard, Notify: notify}
}

// AwardPoints scores one approved completion of task by userID in its own transaction.
func (s *ScoringService) AwardPoints(ctx context.Context, userID string, task *models.Task) (*AwardResult, error) {
	var res *AwardResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.award(tx, userID, task)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.announce(ctx, userID, res)
	return res, nil
}

// award runs inside the caller's transaction. The user is updated first, then
// badges and level are evaluated against the post-award totals, then the
// neighborhood receives the delta.
func (s *ScoringService) award(tx *gorm.DB, userID string, task *models.Task) (*AwardResult, error) {
	var user models.User
	if err := tx.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	now := s.Clock.Now()
	streak := NextStreak(user.Streak, user.LastActivityDate, now)
	points := PointsFor(task.BasePoints, streak)
	impact := task.Impact.Ambient()
	longest := user.LongestStreak
	if streak > longest {
		longest = streak
	}

	updates := map[string]interface{}{
		"points":                 gorm.Expr("points + ?", points),
		"streak":                 streak,
		"longest_streak":         longest,
		"last_activity_date":     now,
		"ambient_co2_saved":      gorm.Expr("ambient_co2_saved + ?", impact.CO2Saved),
		"ambient_waste_recycled": gorm.Expr("ambient_waste_recycled + ?", impact.WasteRecycled),
		"ambient_km_green":       gorm.Expr("ambient_km_green + ?", impact.KmGreen),
		"total_tasks_completed":  gorm.Expr("total_tasks_completed + ?", 1),
	}
	if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update user %s: %w", user.ID, err)
	}

	if category := models.NormalizeCategory(task.Category); category != "" {
		stat := models.UserCategoryStat{UserID: user.ID, Category: category, Completions: 1}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "category"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"completions": gorm.Expr("user_category_stats.completions + ?", 1),
			}),
		}).Create(&stat).Error; err != nil {
			return nil, fmt.Errorf("increment category %s: %w", category, err)
		}
	}

	if err := tx.First(&user, "id = ?", user.ID).Error; err != nil {
		return nil, err
	}

	res := &AwardResult{
		PointsAwarded: points,
		Multiplier:    StreakMultiplier(streak),
		NewStreak:     streak,
	}

	if s.Badges != nil {
		badges, err := s.Badges.evaluate(tx, &user)
		if err != nil {
			return nil, err
		}
		res.NewBadges = badges
		if res.LeveledUp, err = s.Badges.refreshLevel(tx, &user); err != nil {
			return nil, err
		}
	}

	if s.Leaderboard != nil && user.NeighborhoodID != nil {
		if err := s.Leaderboard.applyDelta(tx, *user.NeighborhoodID, points, impact); err != nil {
			return nil, err
		}
	}

	res.TotalPoints = user.Points
	res.Level = user.Level
	pointsAwardedTotal.Add(float64(points))
	log.Printf("[Scoring] %s +%d pts (streak=%d ×%.2f, total=%d, level=%d) for task %s",
		user.ID, points, streak, res.Multiplier, user.Points, user.Level, task.ID)
	return res, nil
}

func (s *ScoringService) announce(ctx context.Context, userID string, res *AwardResult) {
	if res == nil {
		return
	}
	if s.Badges != nil {
		s.Badges.announce(ctx, userID, res.NewBadges)
	}
	if res.LeveledUp {
		ev := notifications.Event{
			Kind:   notifications.KindLevelUp,
			UserID: userID,
			Title:  fmt.Sprintf("Level %d reached", res.Level),
			Body:   fmt.Sprintf("You now have %d points", res.TotalPoints),
			Data:   map[string]string{"level": fmt.Sprint(res.Level)},
		}
		if err := s.Notify.Notify(ctx, ev); err != nil {
			log.Printf("[Scoring] notify %s failed: %v", userID, err)
		}
	}
}
