package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRun() *Run {
	return NewRun("user-1", "user-1/short.mp4", "user-1/reference.mp4", 30, 3)
}

func TestRunHappyPathTransitions(t *testing.T) {
	run := newTestRun()
	assert.Equal(t, RunStateCreated, run.State)

	require.NoError(t, run.MarkMetadataValidated())
	require.NoError(t, run.MarkFramesExtracted())
	require.NoError(t, run.MarkPosesEstimated())
	require.NoError(t, run.MarkScored(SimilarityResult{Score: 87.5, AnalysisText: "close match"}))

	assert.Equal(t, RunStateScored, run.State)
	assert.Equal(t, 87.5, run.Score)
	assert.Equal(t, "close match", run.AnalysisText)
	assert.NotNil(t, run.ScoredAt)
	assert.True(t, run.Succeeded())

	require.NoError(t, run.MarkCleaned())
	assert.Equal(t, RunStateCleaned, run.State)
}

func TestRunRejectsSkippedStates(t *testing.T) {
	run := newTestRun()

	assert.Error(t, run.MarkFramesExtracted())
	assert.Error(t, run.MarkPosesEstimated())
	assert.Error(t, run.MarkScored(SimilarityResult{}))
	assert.Error(t, run.MarkCleaned())
	assert.Equal(t, RunStateCreated, run.State)
}

func TestRunFailedReachableFromAnyNonTerminalState(t *testing.T) {
	states := []func(*Run){
		func(r *Run) {},
		func(r *Run) { _ = r.MarkMetadataValidated() },
		func(r *Run) { _ = r.MarkMetadataValidated(); _ = r.MarkFramesExtracted() },
		func(r *Run) {
			_ = r.MarkMetadataValidated()
			_ = r.MarkFramesExtracted()
			_ = r.MarkPosesEstimated()
		},
	}

	for _, advance := range states {
		run := newTestRun()
		advance(run)
		run.MarkFailed(ErrorKindExternalTool, "ffmpeg exploded")
		assert.Equal(t, RunStateFailed, run.State)
		assert.Equal(t, ErrorKindExternalTool, run.ErrorKind)
	}
}

func TestRunFailedDoesNotOverrideScored(t *testing.T) {
	run := newTestRun()
	require.NoError(t, run.MarkMetadataValidated())
	require.NoError(t, run.MarkFramesExtracted())
	require.NoError(t, run.MarkPosesEstimated())
	require.NoError(t, run.MarkScored(SimilarityResult{Score: 91.0}))

	run.MarkFailed(ErrorKindResource, "cleanup hiccup")

	assert.Equal(t, RunStateScored, run.State)
	assert.Equal(t, 91.0, run.Score)
	assert.True(t, run.Succeeded())
}

func TestRunCleanedReachableFromFailed(t *testing.T) {
	run := newTestRun()
	run.MarkFailed(ErrorKindValidation, "clip too long")

	require.NoError(t, run.MarkCleaned())
	assert.Equal(t, RunStateCleaned, run.State)
}

func TestRunRetryAccounting(t *testing.T) {
	run := newTestRun()
	assert.True(t, run.CanRetry())

	for i := 0; i < 3; i++ {
		run.BeginAttempt()
		run.MarkFailed(ErrorKindExternalTool, "transient")
	}

	assert.Equal(t, 3, run.Attempt)
	assert.False(t, run.CanRetry())
}

func TestBeginAttemptResetsFailure(t *testing.T) {
	run := newTestRun()
	run.BeginAttempt()
	run.MarkFailed(ErrorKindExternalTool, "transient")

	run.BeginAttempt()

	assert.Equal(t, RunStateCreated, run.State)
	assert.Empty(t, string(run.ErrorKind))
	assert.Empty(t, run.ErrorMessage)
	assert.Equal(t, 2, run.Attempt)
}
