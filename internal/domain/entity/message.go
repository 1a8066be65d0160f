package entity

import "github.com/google/uuid"

// ComparisonRequestMessage is the inbound message from the
// comparison.request queue.
type ComparisonRequestMessage struct {
	RunID             uuid.UUID `json:"run_id"`
	UserID            string    `json:"user_id"`
	ShortVideoKey     string    `json:"short_video_key"`
	ReferenceVideoKey string    `json:"reference_video_key"`
	TargetFrames      int       `json:"target_frames"`
	UserEmail         string    `json:"user_email"`
}

// ComparisonStatusMessage is the outbound message published to the
// comparison.status queue. Score is meaningful only for a scored run.
type ComparisonStatusMessage struct {
	RunID        uuid.UUID `json:"run_id"`
	UserID       string    `json:"user_id"`
	State        RunState  `json:"state"`
	Score        float64   `json:"score,omitempty"`
	AnalysisText string    `json:"analysis_text,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempt      int       `json:"attempt"`
	MaxAttempts  int       `json:"max_attempts"`
}
