package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"civic-task-engine/models"
	"civic-task-engine/notifications"

	"gorm.io/gorm"
)

// AssignedTask is a task visible to a user, with its assignment when the task
// is recurring. On-demand tasks carry no assignment.
type AssignedTask struct {
	Task       models.Task        `json:"task"`
	Assignment *models.Assignment `json:"assignment,omitempty"`
}

// AssignmentScheduler keeps one valid assignment per (user, frequency) slot.
type AssignmentScheduler struct {
	DB     *gorm.DB
	Clock  Clock
	Notify notifications.Sink
	// Pick returns a uniform index in [0, n). Replaced in tests.
	Pick func(n int) int
}

func NewAssignmentScheduler(db *gorm.DB, clock Clock, notify notifications.Sink) *AssignmentScheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	if notify == nil {
		notify = notifications.NopSink{}
	}
	return &AssignmentScheduler{DB: db, Clock: clock, Notify: notify, Pick: rand.Intn}
}

// ExpiryFor computes when an assignment of frequency f made at now lapses.
// Daily assignments end at the next UTC midnight.
func ExpiryFor(f models.Frequency, now time.Time) time.Time {
	switch f {
	case models.FrequencyDaily:
		return startOfDay(now).AddDate(0, 0, 1)
	case models.FrequencyWeekly:
		return now.AddDate(0, 0, 7)
	case models.FrequencyMonthly:
		return now.AddDate(0, 1, 0)
	}
	return time.Time{}
}

// GetAssignedTasks fills the user's empty slots and lists the valid
// assignments followed by the on-demand tasks the user may complete.
func (s *AssignmentScheduler) GetAssignedTasks(ctx context.Context, userID string) ([]AssignedTask, error) {
	db := s.DB.WithContext(ctx)
	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if _, err := s.EnsureAssignments(ctx, &user); err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	var valid []models.Assignment
	if err := validAssignments(db, user.ID, now).
		Preload("Task").
		Order("expires_at ASC, id ASC").
		Find(&valid).Error; err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}

	out := make([]AssignedTask, 0, len(valid))
	for i := range valid {
		a := valid[i]
		if a.Task == nil {
			continue
		}
		task := *a.Task
		a.Task = nil
		out = append(out, AssignedTask{Task: task, Assignment: &a})
	}

	var onDemand []models.Task
	if err := availableTasks(db, models.FrequencyOnDemand, user.NeighborhoodID, now).
		Order("created_at ASC, id ASC").
		Find(&onDemand).Error; err != nil {
		return nil, fmt.Errorf("load on-demand tasks: %w", err)
	}
	for _, t := range onDemand {
		out = append(out, AssignedTask{Task: t})
	}
	return out, nil
}

// EnsureAssignments expires lapsed assignments and creates one for every
// recurring frequency without a valid one. It returns the created assignments.
func (s *AssignmentScheduler) EnsureAssignments(ctx context.Context, user *models.User) ([]models.Assignment, error) {
	db := s.DB.WithContext(ctx)
	now := s.Clock.Now()

	if _, err := expireAssignments(db, user.ID, now); err != nil {
		return nil, err
	}

	var valid []models.Assignment
	if err := validAssignments(db, user.ID, now).Find(&valid).Error; err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	filled := make(map[models.Frequency]bool, len(valid))
	for _, a := range valid {
		filled[a.Frequency] = true
	}

	var created []models.Assignment
	for _, f := range models.RecurringFrequencies {
		if filled[f] {
			continue
		}
		a, err := s.assign(db, user, f, now)
		if err != nil {
			return created, err
		}
		if a != nil {
			created = append(created, *a)
		}
	}
	s.announce(ctx, user.ID, created)
	return created, nil
}

// assign picks one eligible task of frequency f uniformly at random and binds
// it to the user. A concurrent fill of the same slot loses on the unique slot
// key and yields nil.
func (s *AssignmentScheduler) assign(db *gorm.DB, user *models.User, f models.Frequency, now time.Time) (*models.Assignment, error) {
	var n int64
	if err := availableTasks(db, f, user.NeighborhoodID, now).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("count %s tasks: %w", f, err)
	}
	if n == 0 {
		return nil, nil
	}

	var task models.Task
	if err := availableTasks(db, f, user.NeighborhoodID, now).
		Order("created_at ASC, id ASC").
		Offset(s.Pick(int(n))).
		Take(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("pick %s task: %w", f, err)
	}

	key := models.SlotKeyFor(user.ID, f)
	a := models.Assignment{
		UserID:     user.ID,
		TaskID:     task.ID,
		Frequency:  f,
		Status:     models.AssignmentAssigned,
		SlotKey:    &key,
		AssignedAt: now,
		ExpiresAt:  ExpiryFor(f, now),
	}
	if err := db.Create(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("create %s assignment: %w", f, err)
	}
	a.Task = &task
	assignmentsCreatedTotal.WithLabelValues(string(f)).Inc()
	return &a, nil
}

func (s *AssignmentScheduler) announce(ctx context.Context, userID string, created []models.Assignment) {
	for _, a := range created {
		if a.Task == nil {
			continue
		}
		ev := notifications.Event{
			Kind:   notifications.KindTaskAssigned,
			UserID: userID,
			Title:  "New " + string(a.Frequency) + " task",
			Body:   a.Task.Title,
			Data:   map[string]string{"task_id": a.TaskID, "assignment_id": a.ID},
		}
		if err := s.Notify.Notify(ctx, ev); err != nil {
			log.Printf("[Scheduler] notify %s failed: %v", userID, err)
		}
	}
}

// availableTasks scopes tasks of frequency f a user in neighborhoodID can take at now.
func availableTasks(db *gorm.DB, f models.Frequency, neighborhoodID *string, now time.Time) *gorm.DB {
	q := db.Model(&models.Task{}).
		Where("frequency = ? AND is_active = ?", f, true).
		Where("(expires_at IS NULL OR expires_at > ?)", now)
	if neighborhoodID == nil {
		return q.Where("neighborhood_id IS NULL")
	}
	return q.Where("(neighborhood_id IS NULL OR neighborhood_id = ?)", *neighborhoodID)
}

func validAssignments(db *gorm.DB, userID string, now time.Time) *gorm.DB {
	return db.Model(&models.Assignment{}).
		Where("user_id = ? AND status IN ? AND expires_at > ?", userID,
			[]models.AssignmentStatus{models.AssignmentAssigned, models.AssignmentCompleted}, now)
}

// expireAssignments moves lapsed ASSIGNED rows to EXPIRED and frees the slot of
// every lapsed row. An empty userID sweeps all users.
func expireAssignments(db *gorm.DB, userID string, now time.Time) (int64, error) {
	scope := func() *gorm.DB {
		q := db.Model(&models.Assignment{}).Where("expires_at <= ?", now)
		if userID != "" {
			q = q.Where("user_id = ?", userID)
		}
		return q
	}
	res := scope().Where("status = ?", models.AssignmentAssigned).Updates(map[string]interface{}{
		"status":   models.AssignmentExpired,
		"slot_key": gorm.Expr("NULL"),
	})
	if res.Error != nil {
		return 0, fmt.Errorf("expire assignments: %w", res.Error)
	}
	if err := scope().Where("slot_key IS NOT NULL").Update("slot_key", gorm.Expr("NULL")).Error; err != nil {
		return res.RowsAffected, fmt.Errorf("release slots: %w", err)
	}
	return res.RowsAffected, nil
}
