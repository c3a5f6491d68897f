package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"civic-task-engine/models"
	"civic-task-engine/notifications"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(ts string) *fixedClock {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return &fixedClock{now: t.UTC()}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingSink) Notify(_ context.Context, ev notifications.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) kinds() []notifications.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notifications.Kind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func seedNeighborhood(t *testing.T, db *gorm.DB, name string, basePoints int64) *models.Neighborhood {
	t.Helper()
	n := &models.Neighborhood{Name: name, BasePoints: basePoints}
	require.NoError(t, db.Create(n).Error)
	return n
}

func seedUser(t *testing.T, db *gorm.DB, neighborhood *models.Neighborhood, mutate ...func(*models.User)) *models.User {
	t.Helper()
	u := &models.User{ExternalUserID: uuid.NewString(), Username: "user", IsActive: true, Level: 1}
	if neighborhood != nil {
		u.NeighborhoodID = &neighborhood.ID
	}
	for _, m := range mutate {
		m(u)
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedTask(t *testing.T, db *gorm.DB, mutate ...func(*models.Task)) *models.Task {
	t.Helper()
	task := &models.Task{
		Title:              "Plant a tree",
		Category:           "greening",
		VerificationMethod: models.VerificationQRScan,
		Criteria:           datatypes.NewJSONType(models.VerificationCriteria{QRCodeSecret: "secret"}),
		BasePoints:         100,
		Frequency:          models.FrequencyOnDemand,
		IsActive:           true,
		Status:             models.TaskStatusActive,
	}
	for _, m := range mutate {
		m(task)
	}
	require.NoError(t, db.Create(task).Error)
	return task
}

func reloadUser(t *testing.T, db *gorm.DB, id string) models.User {
	t.Helper()
	var u models.User
	require.NoError(t, db.First(&u, "id = ?", id).Error)
	return u
}

func timePtr(t time.Time) *time.Time { return &t }

func float64Ptr(v float64) *float64 { return &v }

func int64Ptr(v int64) *int64 { return &v }

type engine struct {
	clock       *fixedClock
	sink        *recordingSink
	badges      *BadgeService
	leaderboard *LeaderboardService
	scoring     *ScoringService
	assignments *AssignmentScheduler
	submissions *SubmissionService
}

func newEngine(db *gorm.DB, clock *fixedClock) *engine {
	sink := &recordingSink{}
	badges := NewBadgeService(db, clock, sink)
	leaderboard := NewLeaderboardService(db, clock)
	scoring := NewScoringService(db, clock, badges, leaderboard, sink)
	assignments := NewAssignmentScheduler(db, clock, sink)
	assignments.Pick = func(int) int { return 0 }
	return &engine{
		clock:       clock,
		sink:        sink,
		badges:      badges,
		leaderboard: leaderboard,
		scoring:     scoring,
		assignments: assignments,
		submissions: NewSubmissionService(db, clock, scoring, 0),
	}
}
