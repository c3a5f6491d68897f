package services

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskOrUserNotFound is the parent of ErrUserNotFound and ErrTaskNotFound.
	ErrTaskOrUserNotFound = errors.New("task or user not found")
	ErrUserNotFound       = fmt.Errorf("user: %w", ErrTaskOrUserNotFound)
	ErrTaskNotFound       = fmt.Errorf("task: %w", ErrTaskOrUserNotFound)

	ErrTaskInactive = errors.New("task is not active")

	// ErrAssignmentNotFound is returned when a recurring task is submitted
	// without a valid assignment.
	ErrAssignmentNotFound         = errors.New("no valid assignment for task")
	ErrAssignmentAlreadyCompleted = errors.New("assignment already completed")

	ErrSubmissionNotFound   = errors.New("submission not found")
	ErrSubmissionNotPending = errors.New("submission is not pending review")
	ErrSubmissionCooldown   = errors.New("task was completed too recently")
	// ErrReviewPending is returned when the assignment already has a submission
	// waiting for review.
	ErrReviewPending = errors.New("a submission for this assignment is awaiting review")

	ErrBadgeWithoutRequirements = errors.New("badge has no requirements")

	ErrInvalidPeriod = errors.New("invalid leaderboard period")
)
