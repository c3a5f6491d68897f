package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"civic-task-engine/models"
	"civic-task-engine/verifier"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QuizStore loads quizzes from the database for QUIZ verification.
type QuizStore struct {
	DB *gorm.DB
}

func (q QuizStore) QuizByID(ctx context.Context, id string) (*models.Quiz, error) {
	var quiz models.Quiz
	if err := q.DB.WithContext(ctx).First(&quiz, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", verifier.ErrQuizNotFound, id)
		}
		return nil, err
	}
	return &quiz, nil
}

// SubmitResult is the outcome of a submission or a review.
type SubmitResult struct {
	Status        models.SubmissionStatus `json:"status"`
	PointsAwarded int64                   `json:"points_awarded"`
	NewBadges     []models.Badge          `json:"new_badges"`
	Reason        string                  `json:"reason,omitempty"`
	Award         *AwardResult            `json:"award,omitempty"`
	Submission    *models.Submission      `json:"submission"`
}

// SubmissionService runs proof submission: verify, claim the assignment, score.
type SubmissionService struct {
	DB      *gorm.DB
	Clock   Clock
	Scoring *ScoringService
	Quizzes verifier.QuizSource
	// OnDemandCooldown blocks repeating an on-demand task within the window.
	// Zero leaves on-demand tasks freely repeatable.
	OnDemandCooldown time.Duration
}

func NewSubmissionService(db *gorm.DB, clock Clock, scoring *ScoringService, cooldown time.Duration) *SubmissionService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &SubmissionService{DB: db, Clock: clock, Scoring: scoring, Quizzes: QuizStore{DB: db}, OnDemandCooldown: cooldown}
}

// SubmitProof verifies proof for taskID on behalf of userID. Rejections are
// returned as a REJECTED result; lookup, state and input problems as errors.
// Points are persisted only after verification passed and the assignment was
// claimed, all in one transaction.
func (s *SubmissionService) SubmitProof(ctx context.Context, userID, taskID string, proof verifier.Proof) (*SubmitResult, error) {
	db := s.DB.WithContext(ctx)
	now := s.Clock.Now()

	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	var task models.Task
	if err := db.First(&task, "id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	// A held assignment stays completable after rotation deactivated its
	// definition; it lapses with the assignment's own expiry.
	var assignment *models.Assignment
	if task.Frequency.IsRecurring() {
		a, err := s.currentAssignment(db, user.ID, task.ID, now)
		if errors.Is(err, ErrAssignmentNotFound) {
			if offerErr := checkOffered(&task, &user); offerErr != nil {
				return nil, offerErr
			}
		}
		if err != nil {
			return nil, err
		}
		if err := checkPendingReview(db, a.ID); err != nil {
			return nil, err
		}
		assignment = a
	} else {
		if err := checkOffered(&task, &user); err != nil {
			return nil, err
		}
		if err := s.checkCooldown(db, user.ID, task.ID, now); err != nil {
			return nil, err
		}
	}

	verdict, err := verifier.Verify(ctx, &task, proof, s.Quizzes)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(verdict.Proof)
	if err != nil {
		return nil, fmt.Errorf("encode proof: %w", err)
	}

	sub := &models.Submission{
		UserID: user.ID,
		TaskID: task.ID,
		Status: verdict.Status,
		Proof:  datatypes.JSON(raw),
	}
	sub.CreatedAt = now
	if assignment != nil {
		sub.AssignmentID = &assignment.ID
	}
	res := &SubmitResult{Status: verdict.Status, Submission: sub}

	if !verdict.Approved() {
		if verdict.Reason != nil {
			sub.RejectionReason = verdict.Reason.Error()
			res.Reason = sub.RejectionReason
		}
		if err := db.Create(sub).Error; err != nil {
			return nil, fmt.Errorf("store submission: %w", err)
		}
		submissionsTotal.WithLabelValues(string(task.VerificationMethod), string(sub.Status)).Inc()
		return res, nil
	}

	var award *AwardResult
	err = db.Transaction(func(tx *gorm.DB) error {
		if assignment != nil {
			if err := claimAssignment(tx, assignment.ID, now); err != nil {
				return err
			}
		}
		var err error
		if award, err = s.Scoring.award(tx, user.ID, &task); err != nil {
			return err
		}
		sub.CompletedAt = &now
		sub.PointsAwarded = award.PointsAwarded
		return tx.Create(sub).Error
	})
	if err != nil {
		return nil, err
	}
	submissionsTotal.WithLabelValues(string(task.VerificationMethod), string(sub.Status)).Inc()
	s.Scoring.announce(ctx, user.ID, award)

	res.PointsAwarded = award.PointsAwarded
	res.NewBadges = award.NewBadges
	res.Award = award
	return res, nil
}

// ReviewSubmission decides a PENDING submission. Approval runs the same scoring
// path as automatic approval and completes the linked assignment if it is
// still open.
func (s *SubmissionService) ReviewSubmission(ctx context.Context, submissionID string, approve bool, reviewer, note string) (*SubmitResult, error) {
	db := s.DB.WithContext(ctx)
	now := s.Clock.Now()

	var sub models.Submission
	if err := db.First(&sub, "id = ?", submissionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	if sub.Status != models.SubmissionPending {
		return nil, ErrSubmissionNotPending
	}
	var task models.Task
	if err := db.First(&task, "id = ?", sub.TaskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	status := models.SubmissionRejected
	if approve {
		status = models.SubmissionApproved
	}

	var award *AwardResult
	err := db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":      status,
			"reviewed_by": reviewer,
			"reviewed_at": now,
			"review_note": note,
		}
		if !approve {
			updates["rejection_reason"] = note
		}
		decided := tx.Model(&models.Submission{}).
			Where("id = ? AND status = ?", sub.ID, models.SubmissionPending).
			Updates(updates)
		if decided.Error != nil {
			return decided.Error
		}
		if decided.RowsAffected != 1 {
			return ErrSubmissionNotPending
		}
		if !approve {
			return nil
		}

		if sub.AssignmentID != nil {
			if err := claimReviewedAssignment(tx, *sub.AssignmentID, now); err != nil {
				return err
			}
		}
		var err error
		if award, err = s.Scoring.award(tx, sub.UserID, &task); err != nil {
			return err
		}
		if sub.AssignmentID != nil {
			if err := rejectSiblings(tx, *sub.AssignmentID, sub.ID, reviewer, now); err != nil {
				return err
			}
		}
		return tx.Model(&models.Submission{}).Where("id = ?", sub.ID).Updates(map[string]interface{}{
			"points_awarded": award.PointsAwarded,
			"completed_at":   now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	submissionsTotal.WithLabelValues(string(task.VerificationMethod), string(status)).Inc()
	log.Printf("[Scoring] submission %s reviewed by %s: %s", sub.ID, reviewer, status)

	if err := db.First(&sub, "id = ?", sub.ID).Error; err != nil {
		return nil, err
	}
	res := &SubmitResult{Status: status, Submission: &sub, Reason: sub.RejectionReason}
	if award != nil {
		s.Scoring.announce(ctx, sub.UserID, award)
		res.PointsAwarded = award.PointsAwarded
		res.NewBadges = award.NewBadges
		res.Award = award
	}
	return res, nil
}

// currentAssignment returns the user's valid assignment for task, failing when
// there is none or it is already completed.
func (s *SubmissionService) currentAssignment(db *gorm.DB, userID, taskID string, now time.Time) (*models.Assignment, error) {
	var a models.Assignment
	err := validAssignments(db, userID, now).
		Where("task_id = ?", taskID).
		Order("assigned_at DESC").
		Take(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	if a.Status == models.AssignmentCompleted {
		return nil, ErrAssignmentAlreadyCompleted
	}
	return &a, nil
}

func checkOffered(task *models.Task, user *models.User) error {
	if !task.IsActive {
		return ErrTaskInactive
	}
	if !task.AvailableTo(user.NeighborhoodID) {
		return fmt.Errorf("%w: not offered in user's neighborhood", ErrTaskNotFound)
	}
	return nil
}

// checkPendingReview allows one PENDING submission per assignment.
func checkPendingReview(db *gorm.DB, assignmentID string) error {
	var n int64
	if err := db.Model(&models.Submission{}).
		Where("assignment_id = ? AND status = ?", assignmentID, models.SubmissionPending).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrReviewPending
	}
	return nil
}

// rejectSiblings closes the other PENDING submissions of an assignment that
// approvedID just completed.
func rejectSiblings(tx *gorm.DB, assignmentID, approvedID, reviewer string, now time.Time) error {
	return tx.Model(&models.Submission{}).
		Where("assignment_id = ? AND status = ? AND id <> ?", assignmentID, models.SubmissionPending, approvedID).
		Updates(map[string]interface{}{
			"status":           models.SubmissionRejected,
			"reviewed_by":      reviewer,
			"reviewed_at":      now,
			"rejection_reason": "assignment completed by submission " + approvedID,
		}).Error
}

func (s *SubmissionService) checkCooldown(db *gorm.DB, userID, taskID string, now time.Time) error {
	if s.OnDemandCooldown <= 0 {
		return nil
	}
	var n int64
	err := db.Model(&models.Submission{}).
		Where("user_id = ? AND task_id = ? AND status IN ? AND created_at > ?", userID, taskID,
			[]models.SubmissionStatus{models.SubmissionApproved, models.SubmissionPending},
			now.Add(-s.OnDemandCooldown)).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrSubmissionCooldown
	}
	return nil
}

// claimAssignment moves an assignment from ASSIGNED to COMPLETED. Only one
// caller can win; the others get ErrAssignmentAlreadyCompleted.
func claimAssignment(tx *gorm.DB, assignmentID string, now time.Time) error {
	res := tx.Model(&models.Assignment{}).
		Where("id = ? AND status = ?", assignmentID, models.AssignmentAssigned).
		Updates(map[string]interface{}{"status": models.AssignmentCompleted, "completed_at": now})
	if res.Error != nil {
		return fmt.Errorf("claim assignment: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return ErrAssignmentAlreadyCompleted
	}
	return nil
}

// claimReviewedAssignment completes the assignment of a late-reviewed
// submission. An assignment that expired while the review was pending is left
// as is and the award still goes through.
func claimReviewedAssignment(tx *gorm.DB, assignmentID string, now time.Time) error {
	err := claimAssignment(tx, assignmentID, now)
	if !errors.Is(err, ErrAssignmentAlreadyCompleted) {
		return err
	}
	var a models.Assignment
	if err := tx.First(&a, "id = ?", assignmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if a.Status == models.AssignmentCompleted {
		return ErrAssignmentAlreadyCompleted
	}
	return nil
}
