package verifier

import (
	"errors"
	"fmt"
)

var (
	// ErrVerificationInputInvalid means the proof is malformed or missing fields,
	// as opposed to a legitimate failed check.
	ErrVerificationInputInvalid = errors.New("verification input invalid")
	ErrIncompleteQuizAnswers    = fmt.Errorf("%w: incomplete quiz answers", ErrVerificationInputInvalid)
	ErrMissingPhotoURL          = fmt.Errorf("%w: photo_url is required", ErrVerificationInputInvalid)
	ErrUnsupportedMethod        = fmt.Errorf("%w: unsupported verification method", ErrVerificationInputInvalid)

	ErrQuizNotFound      = errors.New("quiz not found")
	ErrQuizMisconfigured = errors.New("quiz misconfigured")

	// ErrVerificationRejected is the parent of every deterministic rejection reason.
	// Rejections are reported through Result.Reason, never returned as errors.
	ErrVerificationRejected = errors.New("verification rejected")
	ErrMissingLocation      = fmt.Errorf("%w: target or proof location missing", ErrVerificationRejected)
	ErrOutOfRange           = fmt.Errorf("%w: proof location outside the allowed radius", ErrVerificationRejected)
	ErrQRMismatch           = fmt.Errorf("%w: qr code does not match", ErrVerificationRejected)
)

// QuizBelowThresholdError carries both scores of a failed quiz.
type QuizBelowThresholdError struct {
	Score        float64
	PassingScore float64
}

func (e *QuizBelowThresholdError) Error() string {
	return fmt.Sprintf("quiz score %.2f below passing score %.2f", e.Score, e.PassingScore)
}

func (e *QuizBelowThresholdError) Is(target error) bool {
	return target == ErrVerificationRejected
}
