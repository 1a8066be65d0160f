package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type RunState string

const (
	RunStateCreated           RunState = "CREATED"
	RunStateMetadataValidated RunState = "METADATA_VALIDATED"
	RunStateFramesExtracted   RunState = "FRAMES_EXTRACTED"
	RunStatePosesEstimated    RunState = "POSES_ESTIMATED"
	RunStateScored            RunState = "SCORED"
	RunStateFailed            RunState = "FAILED"
	RunStateCleaned           RunState = "CLEANED"
)

// runTransitions lists the legal forward transitions. Failed is reachable
// from every non-terminal state; Cleaned only from Scored or Failed.
var runTransitions = map[RunState][]RunState{
	RunStateCreated:           {RunStateMetadataValidated, RunStateFailed},
	RunStateMetadataValidated: {RunStateFramesExtracted, RunStateFailed},
	RunStateFramesExtracted:   {RunStatePosesEstimated, RunStateFailed},
	RunStatePosesEstimated:    {RunStateScored, RunStateFailed},
	RunStateScored:            {RunStateCleaned},
	RunStateFailed:            {RunStateCleaned},
	RunStateCleaned:           {},
}

// Run is one movement-comparison invocation: two source clips, a target
// frame count, and the lifecycle state of the pipeline that scores them.
type Run struct {
	ID                uuid.UUID
	UserID            string
	ShortVideoKey     string
	ReferenceVideoKey string
	TargetFrames      int
	State             RunState
	Score             float64
	AnalysisText      string
	ErrorKind         ErrorKind
	ErrorMessage      string
	Attempt           int
	MaxAttempts       int
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ScoredAt          *time.Time
}

func NewRun(userID, shortKey, referenceKey string, targetFrames, maxAttempts int) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:                uuid.New(),
		UserID:            userID,
		ShortVideoKey:     shortKey,
		ReferenceVideoKey: referenceKey,
		TargetFrames:      targetFrames,
		State:             RunStateCreated,
		Attempt:           0,
		MaxAttempts:       maxAttempts,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (r *Run) transition(to RunState) error {
	for _, allowed := range runTransitions[r.State] {
		if allowed == to {
			r.State = to
			r.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("illegal run transition %s -> %s", r.State, to)
}

// BeginAttempt rewinds the run to Created for a fresh pass through the
// pipeline and counts the attempt. Retried runs re-enter from the top.
func (r *Run) BeginAttempt() {
	r.State = RunStateCreated
	r.Attempt++
	r.ErrorKind = ""
	r.ErrorMessage = ""
	r.UpdatedAt = time.Now().UTC()
}

func (r *Run) MarkMetadataValidated() error {
	return r.transition(RunStateMetadataValidated)
}

func (r *Run) MarkFramesExtracted() error {
	return r.transition(RunStateFramesExtracted)
}

func (r *Run) MarkPosesEstimated() error {
	return r.transition(RunStatePosesEstimated)
}

func (r *Run) MarkScored(result SimilarityResult) error {
	if err := r.transition(RunStateScored); err != nil {
		return err
	}
	now := time.Now().UTC()
	r.Score = result.Score
	r.AnalysisText = result.AnalysisText
	r.ScoredAt = &now
	return nil
}

// MarkFailed absorbs an error from any non-terminal state. It never
// returns an error itself: failure capture must not fail.
func (r *Run) MarkFailed(kind ErrorKind, message string) {
	if r.State == RunStateScored || r.State == RunStateCleaned {
		return
	}
	r.State = RunStateFailed
	r.ErrorKind = kind
	r.ErrorMessage = message
	r.UpdatedAt = time.Now().UTC()
}

func (r *Run) MarkCleaned() error {
	return r.transition(RunStateCleaned)
}

func (r *Run) CanRetry() bool {
	return r.Attempt < r.MaxAttempts
}

// Succeeded reports whether the run produced a score, regardless of
// whether workspace cleanup has happened yet.
func (r *Run) Succeeded() bool {
	return r.ScoredAt != nil
}
