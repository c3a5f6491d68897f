package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"civic-task-engine/models"

	"gorm.io/gorm"
)

// RotationResult summarizes one catalog rotation run.
type RotationResult struct {
	ExpiredTasks       int64     `json:"expired_tasks"`
	ExpiredAssignments int64     `json:"expired_assignments"`
	Cloned             int       `json:"cloned"`
	Errors             []string  `json:"errors,omitempty"`
	RanAt              time.Time `json:"ran_at"`
}

// RotationService rotates recurring task definitions. Every mutation is keyed
// on the row's current state, so overlapping runs act on each task once.
type RotationService struct {
	DB    *gorm.DB
	Clock Clock
}

func NewRotationService(db *gorm.DB, clock Clock) *RotationService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &RotationService{DB: db, Clock: clock}
}

var errAlreadyRotated = errors.New("task already rotated")

// RunHourlyRotation deactivates lapsed recurring definitions, clones a fresh
// instance of each, and sweeps lapsed user assignments. Per-task failures are
// logged and collected; they never stop the run.
func (s *RotationService) RunHourlyRotation(ctx context.Context) (*RotationResult, error) {
	db := s.DB.WithContext(ctx)
	now := s.Clock.Now()
	res := &RotationResult{RanAt: now}

	flip := db.Model(&models.Task{}).
		Where("is_active = ? AND frequency IN ? AND expires_at IS NOT NULL AND expires_at <= ?",
			true, models.RecurringFrequencies, now).
		Updates(map[string]interface{}{"is_active": false, "status": models.TaskStatusExpired})
	if flip.Error != nil {
		recordJobRun("rotation", flip.Error)
		return nil, fmt.Errorf("expire tasks: %w", flip.Error)
	}
	res.ExpiredTasks = flip.RowsAffected

	var expired []models.Task
	if err := db.Where("status = ? AND frequency IN ? AND rotated_into_id IS NULL",
		models.TaskStatusExpired, models.RecurringFrequencies).
		Order("created_at ASC, id ASC").
		Find(&expired).Error; err != nil {
		recordJobRun("rotation", err)
		return nil, fmt.Errorf("load expired tasks: %w", err)
	}

	for i := range expired {
		t := &expired[i]
		switch err := s.rotate(db, t, now); {
		case err == nil:
			res.Cloned++
		case errors.Is(err, errAlreadyRotated):
		default:
			log.Printf("[Scheduler] rotate task %s failed: %v", t.ID, err)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", t.ID, err))
		}
	}

	n, err := expireAssignments(db, "", now)
	if err != nil {
		log.Printf("[Scheduler] assignment sweep failed: %v", err)
		res.Errors = append(res.Errors, err.Error())
	}
	res.ExpiredAssignments = n

	var runErr error
	if len(res.Errors) > 0 {
		runErr = fmt.Errorf("%d rotation errors", len(res.Errors))
	}
	recordJobRun("rotation", runErr)
	log.Printf("[Scheduler] rotation: %d expired, %d cloned, %d assignments expired, %d errors",
		res.ExpiredTasks, res.Cloned, res.ExpiredAssignments, len(res.Errors))
	return res, nil
}

// rotate clones t with a fresh expiry and marks t as rotated in one
// transaction. The claim on rotated_into_id makes a second rotation a no-op.
func (s *RotationService) rotate(db *gorm.DB, t *models.Task, now time.Time) error {
	return db.Transaction(func(tx *gorm.DB) error {
		expires := rotationExpiry(t.Frequency, now)
		clone := models.Task{
			Title:              t.Title,
			Slug:               t.Slug,
			Description:        t.Description,
			Category:           t.Category,
			VerificationMethod: t.VerificationMethod,
			Criteria:           t.Criteria,
			BasePoints:         t.BasePoints,
			Impact:             t.Impact,
			Frequency:          t.Frequency,
			NeighborhoodID:     t.NeighborhoodID,
			IsActive:           true,
			Status:             models.TaskStatusActive,
			ExpiresAt:          &expires,
			RotatedFromID:      &t.ID,
		}
		if err := tx.Create(&clone).Error; err != nil {
			return fmt.Errorf("clone: %w", err)
		}
		claim := tx.Model(&models.Task{}).
			Where("id = ? AND rotated_into_id IS NULL", t.ID).
			Update("rotated_into_id", clone.ID)
		if claim.Error != nil {
			return fmt.Errorf("claim: %w", claim.Error)
		}
		if claim.RowsAffected != 1 {
			return errAlreadyRotated
		}
		log.Printf("[Scheduler] rotated %s task %q → %s (expires %s)", t.Frequency, t.Title, clone.ID, expires.Format(time.RFC3339))
		return nil
	})
}

// rotationExpiry is the lifetime of a cloned definition, counted from now.
func rotationExpiry(f models.Frequency, now time.Time) time.Time {
	switch f {
	case models.FrequencyWeekly:
		return now.AddDate(0, 0, 7)
	case models.FrequencyMonthly:
		return now.AddDate(0, 1, 0)
	}
	return now.AddDate(0, 0, 1)
}
