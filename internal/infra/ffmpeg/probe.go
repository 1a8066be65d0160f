package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/motionlab/movement-analyzer/internal/domain/entity"
	"go.uber.org/zap"
)

// defaultFPS is assumed when the container reports a zero or unparseable
// frame-rate ratio. Callers tolerate an approximate fps.
const defaultFPS = 30.0

type Probe struct {
	logger *zap.Logger
}

func NewProbe(logger *zap.Logger) *Probe {
	return &Probe{logger: logger}
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

// Probe reads container metadata via ffprobe. Missing or unparseable
// duration normalizes to 0.0 and a broken frame-rate ratio falls back to
// defaultFPS; only an absent video stream or a dead container fails.
func (p *Probe) Probe(ctx context.Context, videoPath string) (entity.MediaMetadata, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath,
	)

	output, err := cmd.Output()
	if err != nil {
		return entity.MediaMetadata{}, entity.NewExternalToolError(
			fmt.Sprintf("ffprobe failed for %s", videoPath), err)
	}

	meta, err := parseProbeOutput(output)
	if err != nil {
		return entity.MediaMetadata{}, err
	}

	p.logger.Debug("probed video",
		zap.String("path", videoPath),
		zap.Float64("duration_secs", meta.DurationSeconds),
		zap.Float64("fps", meta.FPS),
		zap.Int("width", meta.Width),
		zap.Int("height", meta.Height),
	)
	return meta, nil
}

func parseProbeOutput(raw []byte) (entity.MediaMetadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(raw, &probe); err != nil {
		return entity.MediaMetadata{}, entity.NewExternalToolError("parse ffprobe output", err)
	}

	var video *ffprobeStream
	for i := range probe.Streams {
		if probe.Streams[i].CodecType == "video" {
			video = &probe.Streams[i]
			break
		}
	}
	if video == nil {
		return entity.MediaMetadata{}, entity.NewValidationError(
			"container has no usable video stream", entity.ErrNoVideoStream)
	}
	if video.Width <= 0 || video.Height <= 0 {
		return entity.MediaMetadata{}, entity.NewValidationError(
			fmt.Sprintf("invalid video dimensions %dx%d", video.Width, video.Height),
			entity.ErrNoVideoStream)
	}

	meta := entity.MediaMetadata{
		Width:  video.Width,
		Height: video.Height,
		FPS:    parseFrameRate(video.RFrameRate, video.AvgFrameRate),
	}

	// Duration parse failures normalize to 0.0; the sampler reacts to it.
	if probe.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil && d > 0 {
			meta.DurationSeconds = d
		}
	}

	return meta, nil
}

// parseFrameRate resolves a rational "num/den" frame rate, trying the real
// frame rate first, then the average. A zero denominator or garbage input
// yields defaultFPS.
func parseFrameRate(rates ...string) float64 {
	for _, rate := range rates {
		num, den, ok := splitRatio(rate)
		if ok && den != 0 && num > 0 {
			return num / den
		}
	}
	return defaultFPS
}

func splitRatio(s string) (num, den float64, ok bool) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	num, errN := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	den, errD := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errN != nil || errD != nil {
		return 0, 0, false
	}
	return num, den, true
}
