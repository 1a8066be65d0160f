// Package scoring turns two index-aligned landmark sequences into a single
// bounded similarity percentage. It is pure: malformed input degrades to a
// defined low score instead of returning an error.
package scoring

import (
	"fmt"
	"math"

	"github.com/motionlab/movement-analyzer/internal/domain/entity"
)

// Empirical constants. Changing either silently changes the meaning of
// every historical score, so they are fixed here rather than configurable.
const (
	// bothAbsentDissimilarity is charged when neither frame has a pose:
	// weakly similar, but distinguishable from a true landmark match.
	bothAbsentDissimilarity = 0.1
	// normalizationCap is the average dissimilarity, in normalized
	// coordinate units, that maps to a score of zero.
	normalizationCap = 0.5
	// maxDissimilarity is charged for one-sided detections and malformed
	// landmark sets.
	maxDissimilarity = 1.0
)

// Score compares two landmark sequences frame by frame. Both sequences
// must have exactly targetFrames entries; anything else is a caller
// contract violation reported as a zero score, not an error.
func Score(a, b entity.LandmarkSequence, targetFrames int) entity.SimilarityResult {
	if len(a) != targetFrames || len(b) != targetFrames {
		return entity.SimilarityResult{
			Score: 0,
			AnalysisText: fmt.Sprintf(
				"landmark sequence length mismatch: expected %d frames per video, got %d and %d",
				targetFrames, len(a), len(b)),
		}
	}
	if targetFrames <= 0 {
		return entity.SimilarityResult{
			Score:        0,
			AnalysisText: "no frames to compare",
		}
	}

	var total float64
	mismatched := 0
	malformed := 0

	for i := 0; i < targetFrames; i++ {
		switch {
		case a[i] != nil && b[i] != nil:
			d, ok := frameDissimilarity(a[i], b[i])
			if !ok {
				malformed++
			}
			total += d
		case a[i] != nil || b[i] != nil:
			// Pose detected on one side only.
			total += maxDissimilarity
			mismatched++
		default:
			total += bothAbsentDissimilarity
		}
	}

	avg := total / float64(targetFrames)
	score := (1 - avg/normalizationCap) * 100
	score = math.Round(clamp(score, 0, 100)*10) / 10

	text := fmt.Sprintf("similarity %.1f%% (average landmark dissimilarity %.3f over %d frames)",
		score, avg, targetFrames)
	if mismatched > 0 {
		text += fmt.Sprintf("; %d frame(s) had a pose detected in only one video", mismatched)
	}
	if malformed > 0 {
		text += fmt.Sprintf("; %d frame(s) had malformed landmark data", malformed)
	}

	return entity.SimilarityResult{
		Score:            score,
		AnalysisText:     text,
		AvgDissimilarity: avg,
		MismatchedFrames: mismatched,
	}
}

// frameDissimilarity is the mean 3D euclidean distance across all landmark
// pairs of one frame. Sets without exactly the expected landmark count are
// malformed and charged the maximum.
func frameDissimilarity(a, b *entity.LandmarkSet) (float64, bool) {
	if len(a.Points) != entity.PoseLandmarkCount || len(b.Points) != entity.PoseLandmarkCount {
		return maxDissimilarity, false
	}

	var sum float64
	for j := 0; j < entity.PoseLandmarkCount; j++ {
		dx := a.Points[j].X - b.Points[j].X
		dy := a.Points[j].Y - b.Points[j].Y
		dz := a.Points[j].Z - b.Points[j].Z
		sum += math.Sqrt(dx*dx + dy*dy + dz*dz)
	}
	return sum / entity.PoseLandmarkCount, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
