package ffmpeg

import (
	"testing"

	"github.com/motionlab/movement-analyzer/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbeOutput(t *testing.T) {
	raw := []byte(`{
		"format": {"duration": "4.2"},
		"streams": [
			{"codec_type": "audio", "width": 0, "height": 0},
			{"codec_type": "video", "width": 1280, "height": 720, "r_frame_rate": "30000/1001", "avg_frame_rate": "30/1"}
		]
	}`)

	meta, err := parseProbeOutput(raw)

	require.NoError(t, err)
	assert.Equal(t, 1280, meta.Width)
	assert.Equal(t, 720, meta.Height)
	assert.InDelta(t, 4.2, meta.DurationSeconds, 1e-9)
	assert.InDelta(t, 29.97, meta.FPS, 0.01)
}

func TestParseProbeOutputNoVideoStream(t *testing.T) {
	raw := []byte(`{"format": {"duration": "4.2"}, "streams": [{"codec_type": "audio"}]}`)

	_, err := parseProbeOutput(raw)

	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrNoVideoStream)
	assert.Equal(t, entity.ErrorKindValidation, entity.KindOf(err))
}

func TestParseProbeOutputZeroDenominatorFallsBack(t *testing.T) {
	raw := []byte(`{
		"format": {"duration": "2.0"},
		"streams": [{"codec_type": "video", "width": 640, "height": 480, "r_frame_rate": "25/0", "avg_frame_rate": "0/0"}]
	}`)

	meta, err := parseProbeOutput(raw)

	require.NoError(t, err)
	assert.Equal(t, defaultFPS, meta.FPS)
}

func TestParseProbeOutputBadDurationNormalizesToZero(t *testing.T) {
	raw := []byte(`{
		"format": {"duration": "N/A"},
		"streams": [{"codec_type": "video", "width": 640, "height": 480, "r_frame_rate": "25/1"}]
	}`)

	meta, err := parseProbeOutput(raw)

	require.NoError(t, err)
	assert.Equal(t, 0.0, meta.DurationSeconds)
	assert.InDelta(t, 25.0, meta.FPS, 1e-9)
}

func TestParseProbeOutputMissingDuration(t *testing.T) {
	raw := []byte(`{
		"format": {},
		"streams": [{"codec_type": "video", "width": 640, "height": 480, "r_frame_rate": "garbage", "avg_frame_rate": "24/1"}]
	}`)

	meta, err := parseProbeOutput(raw)

	require.NoError(t, err)
	assert.Equal(t, 0.0, meta.DurationSeconds)
	// r_frame_rate is unusable, avg_frame_rate takes over.
	assert.InDelta(t, 24.0, meta.FPS, 1e-9)
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		name  string
		rates []string
		want  float64
	}{
		{"integer ratio", []string{"30/1"}, 30.0},
		{"ntsc ratio", []string{"30000/1001"}, 29.970029970029973},
		{"zero denominator", []string{"30/0"}, defaultFPS},
		{"not a ratio", []string{"thirty"}, defaultFPS},
		{"empty", []string{""}, defaultFPS},
		{"first broken second good", []string{"0/0", "60/1"}, 60.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, parseFrameRate(tt.rates...), 1e-9)
		})
	}
}
