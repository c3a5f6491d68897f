package services

import (
	"context"
	"testing"
	"time"

	"civic-task-engine/models"
	"civic-task-engine/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func withFrequency(f models.Frequency, title string) func(*models.Task) {
	return func(task *models.Task) {
		task.Frequency = f
		task.Title = title
	}
}

func countAssignments(t *testing.T, db *gorm.DB, userID string, status models.AssignmentStatus) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Assignment{}).Where("user_id = ? AND status = ?", userID, status).Count(&n).Error)
	return n
}

func TestExpiryFor(t *testing.T) {
	now := time.Date(2025, 1, 31, 15, 4, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), ExpiryFor(models.FrequencyDaily, now))
	assert.Equal(t, time.Date(2025, 2, 7, 15, 4, 0, 0, time.UTC), ExpiryFor(models.FrequencyWeekly, now))
	assert.Equal(t, now.AddDate(0, 1, 0), ExpiryFor(models.FrequencyMonthly, now))
	assert.True(t, ExpiryFor(models.FrequencyOnDemand, now).IsZero())
}

func TestEnsureAssignmentsFillsEverySlotOnce(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, newClock("2025-06-10T12:00:00Z"))
	user := seedUser(t, db, nil)
	seedTask(t, db, withFrequency(models.FrequencyDaily, "Pick up litter"))
	seedTask(t, db, withFrequency(models.FrequencyWeekly, "Bike to work"))
	seedTask(t, db, withFrequency(models.FrequencyMonthly, "Repair café"))
	ctx := context.Background()

	created, err := e.assignments.EnsureAssignments(ctx, user)
	require.NoError(t, err)
	require.Len(t, created, 3)
	for _, a := range created {
		require.NotNil(t, a.SlotKey)
		assert.Equal(t, models.SlotKeyFor(user.ID, a.Frequency), *a.SlotKey)
		assert.Equal(t, models.AssignmentAssigned, a.Status)
	}

	again, err := e.assignments.EnsureAssignments(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Equal(t, int64(3), countAssignments(t, db, user.ID, models.AssignmentAssigned))

	kinds := e.sink.kinds()
	assert.Len(t, kinds, 3)
	assert.Equal(t, notifications.KindTaskAssigned, kinds[0])
}

func TestSecondValidAssignmentIsRejected(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, newClock("2025-06-10T12:00:00Z"))
	user := seedUser(t, db, nil)
	task := seedTask(t, db, withFrequency(models.FrequencyDaily, "Pick up litter"))

	_, err := e.assignments.EnsureAssignments(context.Background(), user)
	require.NoError(t, err)

	key := models.SlotKeyFor(user.ID, models.FrequencyDaily)
	dup := models.Assignment{
		UserID:    user.ID,
		TaskID:    task.ID,
		Frequency: models.FrequencyDaily,
		Status:    models.AssignmentAssigned,
		SlotKey:   &key,
		ExpiresAt: e.clock.Now().Add(time.Hour),
	}
	err = db.Create(&dup).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestEnsureAssignmentsReplacesExpired(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, newClock("2025-06-10T12:00:00Z"))
	user := seedUser(t, db, nil)
	seedTask(t, db, withFrequency(models.FrequencyDaily, "Pick up litter"))
	seedTask(t, db, withFrequency(models.FrequencyWeekly, "Bike to work"))
	ctx := context.Background()

	first, err := e.assignments.EnsureAssignments(ctx, user)
	require.NoError(t, err)
	require.Len(t, first, 2)

	e.clock.Advance(13 * time.Hour) // past midnight UTC
	second, err := e.assignments.EnsureAssignments(ctx, user)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, models.FrequencyDaily, second[0].Frequency)

	assert.Equal(t, int64(1), countAssignments(t, db, user.ID, models.AssignmentExpired))
	assert.Equal(t, int64(2), countAssignments(t, db, user.ID, models.AssignmentAssigned))

	var expired models.Assignment
	require.NoError(t, db.First(&expired, "user_id = ? AND status = ?", user.ID, models.AssignmentExpired).Error)
	assert.Nil(t, expired.SlotKey)
}

func TestCompletedAssignmentHoldsSlotUntilExpiry(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, newClock("2025-06-10T12:00:00Z"))
	user := seedUser(t, db, nil)
	seedTask(t, db, withFrequency(models.FrequencyDaily, "Pick up litter"))
	ctx := context.Background()

	created, err := e.assignments.EnsureAssignments(ctx, user)
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.NoError(t, claimAssignment(db, created[0].ID, e.clock.Now()))

	again, err := e.assignments.EnsureAssignments(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, again)

	e.clock.Advance(24 * time.Hour)
	next, err := e.assignments.EnsureAssignments(ctx, user)
	require.NoError(t, err)
	assert.Len(t, next, 1)
	assert.Equal(t, int64(1), countAssignments(t, db, user.ID, models.AssignmentCompleted))
}

func TestEnsureAssignmentsRespectsNeighborhood(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, newClock("2025-06-10T12:00:00Z"))
	home := seedNeighborhood(t, db, "Home", 0)
	other := seedNeighborhood(t, db, "Other", 0)
	user := seedUser(t, db, home)
	seedTask(t, db, withFrequency(models.FrequencyDaily, "Elsewhere"), func(task *models.Task) { task.NeighborhoodID = &other.ID })
	local := seedTask(t, db, withFrequency(models.FrequencyDaily, "Local"), func(task *models.Task) { task.NeighborhoodID = &home.ID })

	created, err := e.assignments.EnsureAssignments(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, local.ID, created[0].TaskID)
}

func TestEnsureAssignmentsSkipsInactiveAndExpiredTasks(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, newClock("2025-06-10T12:00:00Z"))
	user := seedUser(t, db, nil)
	seedTask(t, db, withFrequency(models.FrequencyDaily, "Lapsed"), func(task *models.Task) {
		task.ExpiresAt = timePtr(e.clock.Now().Add(-time.Minute))
	})
	inactive := seedTask(t, db, withFrequency(models.FrequencyDaily, "Paused"))
	require.NoError(t, db.Model(inactive).Update("is_active", false).Error)

	created, err := e.assignments.EnsureAssignments(context.Background(), user)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestEnsureAssignmentsUsesPicker(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, newClock("2025-06-10T12:00:00Z"))
	user := seedUser(t, db, nil)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var tasks []*models.Task
	for i, title := range []string{"A", "B", "C"} {
		created := base.Add(time.Duration(i) * time.Hour)
		tasks = append(tasks, seedTask(t, db, withFrequency(models.FrequencyDaily, title), func(task *models.Task) {
			task.CreatedAt = created
		}))
	}
	var seen int
	e.assignments.Pick = func(n int) int {
		seen = n
		return n - 1
	}

	created, err := e.assignments.EnsureAssignments(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, 3, seen)
	assert.Equal(t, tasks[2].ID, created[0].TaskID)
}

func TestGetAssignedTasksListsOnDemand(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, newClock("2025-06-10T12:00:00Z"))
	user := seedUser(t, db, nil)
	daily := seedTask(t, db, withFrequency(models.FrequencyDaily, "Pick up litter"))
	onDemand := seedTask(t, db, withFrequency(models.FrequencyOnDemand, "Report a pothole"))

	tasks, err := e.assignments.GetAssignedTasks(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assert.Equal(t, daily.ID, tasks[0].Task.ID)
	require.NotNil(t, tasks[0].Assignment)
	assert.Equal(t, models.AssignmentAssigned, tasks[0].Assignment.Status)
	assert.Equal(t, onDemand.ID, tasks[1].Task.ID)
	assert.Nil(t, tasks[1].Assignment)

	var n int64
	require.NoError(t, db.Model(&models.Assignment{}).Where("task_id = ?", onDemand.ID).Count(&n).Error)
	assert.Zero(t, n)
}

func TestGetAssignedTasksUnknownUser(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, newClock("2025-06-10T12:00:00Z"))

	_, err := e.assignments.GetAssignedTasks(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
