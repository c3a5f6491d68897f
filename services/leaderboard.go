package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"civic-task-engine/models"

	"gorm.io/gorm"
)

type Period string

const (
	PeriodWeekly   Period = "weekly"
	PeriodMonthly  Period = "monthly"
	PeriodAnnually Period = "annually"
	PeriodAllTime  Period = "all_time"
)

// ParsePeriod accepts the period names plus "all-time"; empty means all time.
func ParsePeriod(raw string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "all_time", "all-time", "alltime":
		return PeriodAllTime, nil
	case "weekly", "week":
		return PeriodWeekly, nil
	case "monthly", "month":
		return PeriodMonthly, nil
	case "annually", "yearly", "year":
		return PeriodAnnually, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
}

// Window is the length of the period. All time has none.
func (p Period) Window() time.Duration {
	switch p {
	case PeriodWeekly:
		return 7 * 24 * time.Hour
	case PeriodMonthly:
		return 30 * 24 * time.Hour
	case PeriodAnnually:
		return 365 * 24 * time.Hour
	}
	return 0
}

// LeaderboardEntry is one ranked neighborhood.
type LeaderboardEntry struct {
	Rank              int                  `json:"rank"`
	NeighborhoodID    string               `json:"neighborhood_id"`
	Name              string               `json:"name"`
	BasePoints        int64                `json:"base_points"`
	NormalizedPoints  float64              `json:"normalized_points"`
	PointsEarned      int64                `json:"points_earned"`
	ActiveUsers       int64                `json:"active_users"`
	TotalUsers        int64                `json:"total_users"`
	ParticipationRate float64              `json:"participation_rate"`
	ImprovementFactor float64              `json:"improvement_factor"`
	Environment       models.AmbientImpact `json:"environmental_data"`
	LastRankingUpdate time.Time            `json:"last_ranking_update"`
}

// LeaderboardRefreshResult summarizes one bulk recomputation.
type LeaderboardRefreshResult struct {
	Neighborhoods int           `json:"neighborhoods"`
	ComputedAt    time.Time     `json:"computed_at"`
	Duration      time.Duration `json:"duration"`
}

// LeaderboardService ranks neighborhoods on per-capita points.
type LeaderboardService struct {
	DB    *gorm.DB
	Clock Clock
}

func NewLeaderboardService(db *gorm.DB, clock Clock) *LeaderboardService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &LeaderboardService{DB: db, Clock: clock}
}

// NormalizedPoints divides base points by the active user count, 0 without users.
func NormalizedPoints(basePoints, users int64) float64 {
	if users <= 0 {
		return 0
	}
	return float64(basePoints) / float64(users)
}

// ImprovementFactor is the percent change of current over previous.
func ImprovementFactor(current, previous int64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return roundTenth(float64(current-previous) / float64(previous) * 100)
}

// ParticipationRate is the share of active users in percent, one decimal.
func ParticipationRate(active, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return roundTenth(float64(active) / float64(total) * 100)
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

// GetLeaderboard computes the ranking for period, persists rank and normalized
// points onto every neighborhood, and returns at most limit entries (all when
// limit <= 0). A failed persist leaves the previous rankings untouched.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, period Period, limit int) ([]LeaderboardEntry, error) {
	if period.Window() == 0 && period != PeriodAllTime {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	started := time.Now()
	defer func() { leaderboardRefreshDuration.Observe(time.Since(started).Seconds()) }()

	db := s.DB.WithContext(ctx)
	now := s.Clock.Now()

	var hoods []models.Neighborhood
	if err := db.Order("created_at ASC, id ASC").Find(&hoods).Error; err != nil {
		return nil, fmt.Errorf("load neighborhoods: %w", err)
	}

	totals, err := countUsers(db, nil)
	if err != nil {
		return nil, err
	}

	var active, current, previous map[string]int64
	if period == PeriodAllTime {
		if active, err = countUsers(db, &time.Time{}); err != nil {
			return nil, err
		}
	} else {
		window := period.Window()
		start := now.Add(-window)
		if active, err = countUsers(db, &start); err != nil {
			return nil, err
		}
		if current, err = sumApprovedPoints(db, start, now); err != nil {
			return nil, err
		}
		if previous, err = sumApprovedPoints(db, start.Add(-window), start); err != nil {
			return nil, err
		}
	}

	entries := make([]LeaderboardEntry, 0, len(hoods))
	for _, n := range hoods {
		e := LeaderboardEntry{
			NeighborhoodID:    n.ID,
			Name:              n.Name,
			BasePoints:        n.BasePoints,
			TotalUsers:        totals[n.ID],
			ActiveUsers:       active[n.ID],
			Environment:       n.Environment,
			LastRankingUpdate: now,
		}
		e.NormalizedPoints = NormalizedPoints(n.BasePoints, e.TotalUsers)
		e.ParticipationRate = ParticipationRate(e.ActiveUsers, e.TotalUsers)
		if period == PeriodAllTime {
			e.PointsEarned = n.BasePoints
		} else {
			e.PointsEarned = current[n.ID]
			e.ImprovementFactor = ImprovementFactor(current[n.ID], previous[n.ID])
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].NormalizedPoints > entries[j].NormalizedPoints
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			if err := tx.Model(&models.Neighborhood{}).Where("id = ?", e.NeighborhoodID).Updates(map[string]interface{}{
				"ranking_position":    e.Rank,
				"normalized_points":   e.NormalizedPoints,
				"last_ranking_update": now,
			}).Error; err != nil {
				return fmt.Errorf("persist rank of %s: %w", e.NeighborhoodID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// RunLeaderboardRefresh recomputes and persists the all-time ranking.
func (s *LeaderboardService) RunLeaderboardRefresh(ctx context.Context) (*LeaderboardRefreshResult, error) {
	started := time.Now()
	entries, err := s.GetLeaderboard(ctx, PeriodAllTime, 0)
	recordJobRun("leaderboard_refresh", err)
	if err != nil {
		log.Printf("[Leaderboard] refresh failed, keeping previous rankings: %v", err)
		return nil, err
	}
	res := &LeaderboardRefreshResult{
		Neighborhoods: len(entries),
		ComputedAt:    s.Clock.Now(),
		Duration:      time.Since(started),
	}
	log.Printf("[Leaderboard] ranked %d neighborhoods in %s", res.Neighborhoods, res.Duration)
	return res, nil
}

// applyDelta credits an award to a neighborhood inside the caller's transaction
// and refreshes its normalized points.
func (s *LeaderboardService) applyDelta(tx *gorm.DB, neighborhoodID string, points int64, impact models.AmbientImpact) error {
	res := tx.Model(&models.Neighborhood{}).Where("id = ?", neighborhoodID).Updates(map[string]interface{}{
		"base_points":        gorm.Expr("base_points + ?", points),
		"env_co2_saved":      gorm.Expr("env_co2_saved + ?", impact.CO2Saved),
		"env_waste_recycled": gorm.Expr("env_waste_recycled + ?", impact.WasteRecycled),
		"env_km_green":       gorm.Expr("env_km_green + ?", impact.KmGreen),
	})
	if res.Error != nil {
		return fmt.Errorf("credit neighborhood %s: %w", neighborhoodID, res.Error)
	}
	if res.RowsAffected == 0 {
		log.Printf("[Leaderboard] neighborhood %s not found, skipping delta", neighborhoodID)
		return nil
	}

	var users int64
	if err := tx.Model(&models.User{}).
		Where("neighborhood_id = ? AND is_active = ?", neighborhoodID, true).
		Count(&users).Error; err != nil {
		return err
	}
	var n models.Neighborhood
	if err := tx.First(&n, "id = ?", neighborhoodID).Error; err != nil {
		return err
	}
	return tx.Model(&n).Update("normalized_points", NormalizedPoints(n.BasePoints, users)).Error
}

type neighborhoodCount struct {
	NeighborhoodID string
	Total          int64
}

// countUsers counts active users per neighborhood. With since set, only users
// active at or after since count; a zero since means any recorded activity.
func countUsers(db *gorm.DB, since *time.Time) (map[string]int64, error) {
	q := db.Model(&models.User{}).
		Select("neighborhood_id, COUNT(*) AS total").
		Where("is_active = ? AND neighborhood_id IS NOT NULL", true)
	if since != nil {
		if since.IsZero() {
			q = q.Where("last_activity_date IS NOT NULL")
		} else {
			q = q.Where("last_activity_date >= ?", *since)
		}
	}
	var rows []neighborhoodCount
	if err := q.Group("neighborhood_id").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.NeighborhoodID] = r.Total
	}
	return out, nil
}

type neighborhoodPoints struct {
	NeighborhoodID string
	Points         int64
}

// sumApprovedPoints sums points of approved submissions completed in [from, to).
// Points follow the user's current neighborhood, so a move carries history along.
func sumApprovedPoints(db *gorm.DB, from, to time.Time) (map[string]int64, error) {
	var rows []neighborhoodPoints
	err := db.Model(&models.Submission{}).
		Select("users.neighborhood_id AS neighborhood_id, COALESCE(SUM(submissions.points_awarded), 0) AS points").
		Joins("JOIN users ON users.id = submissions.user_id").
		Where("submissions.status = ? AND submissions.completed_at >= ? AND submissions.completed_at < ?",
			models.SubmissionApproved, from, to).
		Where("users.is_active = ? AND users.neighborhood_id IS NOT NULL", true).
		Group("users.neighborhood_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sum approved points: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.NeighborhoodID] = r.Points
	}
	return out, nil
}
