// Package verifier judges submitted proofs against a task's verification criteria.
//
// Verification is a pure function of (task, proof, quiz lookup): nothing here
// writes to the store. GPS, QR_SCAN and QUIZ are decided automatically;
// PHOTO_UPLOAD and MANUAL_REPORT always defer to a human reviewer.
package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"civic-task-engine/models"
)

// EarthRadiusMeters is the mean radius used by the haversine distance.
const EarthRadiusMeters = 6371000.0

// DefaultRadiusMeters applies when a GPS task leaves min_distance_meters unset.
const DefaultRadiusMeters = 100.0

// Proof is the user-submitted evidence. Only the fields the task's method reads matter.
type Proof struct {
	Location   []float64       `json:"location,omitempty"` // [lat, lon]
	QRCodeData string          `json:"qr_code_data,omitempty"`
	Answers    json.RawMessage `json:"answers,omitempty"`
	PhotoURL   string          `json:"photo_url,omitempty"`
	Notes      string          `json:"notes,omitempty"`
}

// EnrichedProof is the proof plus what verification computed, stored for auditing.
type EnrichedProof struct {
	Proof
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
	QuizScore      *float64 `json:"quiz_score,omitempty"`
}

// Result is the outcome of one verification.
type Result struct {
	Status models.SubmissionStatus
	Proof  EnrichedProof
	// Reason explains a REJECTED status; it wraps ErrVerificationRejected.
	Reason error
}

// Approved reports whether the proof passed an automatic check.
func (r Result) Approved() bool { return r.Status == models.SubmissionApproved }

// QuizSource loads quizzes referenced by QUIZ tasks.
type QuizSource interface {
	QuizByID(ctx context.Context, id string) (*models.Quiz, error)
}

// Verify dispatches to the evaluator of the task's verification method.
func Verify(ctx context.Context, task *models.Task, proof Proof, quizzes QuizSource) (Result, error) {
	criteria := task.Criteria.Data()
	switch task.VerificationMethod {
	case models.VerificationGPS:
		return VerifyGPS(criteria, proof), nil
	case models.VerificationQRScan:
		return VerifyQR(criteria, proof), nil
	case models.VerificationQuiz:
		if criteria.QuizID == "" {
			return Result{}, fmt.Errorf("%w: task %s has no quiz_id", ErrQuizMisconfigured, task.ID)
		}
		if quizzes == nil {
			return Result{}, fmt.Errorf("%w: no quiz source", ErrQuizNotFound)
		}
		quiz, err := quizzes.QuizByID(ctx, criteria.QuizID)
		if err != nil {
			return Result{}, err
		}
		return VerifyQuiz(quiz, proof)
	case models.VerificationPhotoUpload:
		return VerifyPhoto(proof)
	case models.VerificationManualReport:
		return Result{Status: models.SubmissionPending, Proof: EnrichedProof{Proof: proof}}, nil
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedMethod, task.VerificationMethod)
	}
}

// VerifyGPS approves when the proof lies within the criteria radius of the target.
func VerifyGPS(criteria models.VerificationCriteria, proof Proof) Result {
	res := Result{Proof: EnrichedProof{Proof: proof}}
	if len(criteria.TargetLocation) != 2 || len(proof.Location) != 2 {
		res.Status = models.SubmissionRejected
		res.Reason = ErrMissingLocation
		return res
	}

	radius := DefaultRadiusMeters
	if criteria.MinDistanceMeters != nil {
		radius = *criteria.MinDistanceMeters
	}

	d := Haversine(criteria.TargetLocation[0], criteria.TargetLocation[1], proof.Location[0], proof.Location[1])
	res.Proof.DistanceMeters = &d
	if d <= radius {
		res.Status = models.SubmissionApproved
		return res
	}
	res.Status = models.SubmissionRejected
	res.Reason = fmt.Errorf("%w: %.1fm > %.1fm", ErrOutOfRange, d, radius)
	return res
}

// VerifyQR approves on a byte-exact match with the task secret.
func VerifyQR(criteria models.VerificationCriteria, proof Proof) Result {
	res := Result{Proof: EnrichedProof{Proof: proof}}
	if criteria.QRCodeSecret != "" && proof.QRCodeData == criteria.QRCodeSecret {
		res.Status = models.SubmissionApproved
		return res
	}
	res.Status = models.SubmissionRejected
	res.Reason = ErrQRMismatch
	return res
}

// VerifyQuiz scores the answers against quiz. A score at or above the passing
// score approves; anything lower is rejected with a *QuizBelowThresholdError.
func VerifyQuiz(quiz *models.Quiz, proof Proof) (Result, error) {
	if quiz == nil {
		return Result{}, ErrQuizNotFound
	}
	questions := quiz.Questions.Data()
	if len(questions) == 0 {
		return Result{}, fmt.Errorf("%w: quiz %s has no questions", ErrQuizMisconfigured, quiz.ID)
	}

	answers, err := parseAnswers(proof.Answers)
	if err != nil {
		return Result{}, err
	}
	if len(answers) != len(questions) {
		return Result{}, fmt.Errorf("%w: got %d answers for %d questions", ErrIncompleteQuizAnswers, len(answers), len(questions))
	}

	correct := 0
	for i, q := range questions {
		if answers[i] < 0 || (len(q.Options) > 0 && answers[i] >= len(q.Options)) {
			return Result{}, fmt.Errorf("%w: answer %d is not an option index", ErrIncompleteQuizAnswers, i)
		}
		if answers[i] == q.CorrectIndex {
			correct++
		}
	}

	score := float64(correct) / float64(len(questions))
	res := Result{Proof: EnrichedProof{Proof: proof, QuizScore: &score}}
	passing := quiz.Threshold()
	if score >= passing {
		res.Status = models.SubmissionApproved
		return res, nil
	}
	res.Status = models.SubmissionRejected
	res.Reason = &QuizBelowThresholdError{Score: score, PassingScore: passing}
	return res, nil
}

func parseAnswers(raw json.RawMessage) ([]int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: answers missing", ErrIncompleteQuizAnswers)
	}
	var answers []int
	if err := json.Unmarshal(raw, &answers); err != nil {
		return nil, fmt.Errorf("%w: answers must be an array of option indexes", ErrIncompleteQuizAnswers)
	}
	return answers, nil
}

// VerifyPhoto requires a photo reference and always defers to review.
func VerifyPhoto(proof Proof) (Result, error) {
	if proof.PhotoURL == "" {
		return Result{}, ErrMissingPhotoURL
	}
	return Result{Status: models.SubmissionPending, Proof: EnrichedProof{Proof: proof}}, nil
}

// Haversine returns the great-circle distance in meters between two coordinates.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}
