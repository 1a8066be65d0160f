package entity

// PoseLandmarkCount is the fixed number of body landmarks the pose model
// emits per detected pose. Scoring rejects sets of any other size.
const PoseLandmarkCount = 33

// Landmark is one normalized 3D body point. Visibility is informational
// and does not currently gate the distance computation.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// LandmarkSet holds the landmarks detected in a single frame. A nil
// *LandmarkSet is the explicit "no pose detected" sentinel; it occupies
// its frame index rather than shortening the sequence.
type LandmarkSet struct {
	Points []Landmark
}

// LandmarkSequence is one LandmarkSet (or nil) per sampled frame, index
// aligned with the FrameSet it was estimated from.
type LandmarkSequence []*LandmarkSet

// FrameSet is the ordered frame-image paths sampled from one video.
// Its length always equals the requested target frame count.
type FrameSet []string

// MediaMetadata is the container metadata probed from one source video.
// Duration and FPS may legitimately be zero for malformed containers;
// downstream stages must tolerate that rather than assume it is an error.
type MediaMetadata struct {
	DurationSeconds float64
	Width           int
	Height          int
	FPS             float64
}

// SimilarityResult is the terminal output of a scored run.
type SimilarityResult struct {
	Score            float64
	AnalysisText     string
	AvgDissimilarity float64
	MismatchedFrames int
}
