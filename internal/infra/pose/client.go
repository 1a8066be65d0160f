// Package pose is the adapter for the external pose-inference sidecar. The
// sidecar holds the landmark model; this client only moves frames in and
// landmark sets out, one session per frame batch.
package pose

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/motionlab/movement-analyzer/internal/domain/entity"
	"github.com/motionlab/movement-analyzer/internal/domain/port"
	"go.uber.org/zap"
)

type Client struct {
	baseURL     string
	httpClient  *http.Client
	concurrency int
	logger      *zap.Logger
}

type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	// Concurrency caps in-flight detect calls per session. Single-instance
	// model runtimes cannot serve concurrent inference; default 1.
	Concurrency int
}

func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		httpClient:  &http.Client{Timeout: timeout},
		concurrency: concurrency,
		logger:      logger,
	}
}

type openSessionResponse struct {
	SessionID string `json:"session_id"`
}

type detectRequest struct {
	Image  string `json:"image"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type detectResponse struct {
	Detected  bool              `json:"detected"`
	Landmarks []entity.Landmark `json:"landmarks"`
}

// OpenSession acquires a model instance on the sidecar. The returned
// session must be closed so the instance is released.
func (c *Client) OpenSession(ctx context.Context) (port.PoseSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sessions", nil)
	if err != nil {
		return nil, entity.NewExternalToolError("build open-session request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, entity.NewExternalToolError("open pose session", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, entity.NewExternalToolError(
			fmt.Sprintf("open pose session: sidecar returned %d: %s", resp.StatusCode, body), nil)
	}

	var open openSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&open); err != nil {
		return nil, entity.NewExternalToolError("decode open-session response", err)
	}

	c.logger.Debug("pose session opened", zap.String("session_id", open.SessionID))
	return &session{
		client:  c,
		id:      open.SessionID,
		permits: make(chan struct{}, c.concurrency),
	}, nil
}

type session struct {
	client  *Client
	id      string
	permits chan struct{}
}

// EstimatePose sends one frame image to the sidecar. A frame with no
// detectable pose returns (nil, nil).
func (s *session) EstimatePose(ctx context.Context, framePath string, width, height int) (*entity.LandmarkSet, error) {
	select {
	case s.permits <- struct{}{}:
		defer func() { <-s.permits }()
	case <-ctx.Done():
		return nil, entity.NewExternalToolError("pose inference cancelled", ctx.Err())
	}

	image, err := os.ReadFile(framePath)
	if err != nil {
		return nil, entity.NewExternalToolError(
			fmt.Sprintf("read frame %s", framePath), err)
	}

	payload, err := json.Marshal(detectRequest{
		Image:  base64.StdEncoding.EncodeToString(image),
		Width:  width,
		Height: height,
	})
	if err != nil {
		return nil, entity.NewExternalToolError("encode detect request", err)
	}

	url := fmt.Sprintf("%s/v1/sessions/%s/detect", s.client.baseURL, s.id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, entity.NewExternalToolError("build detect request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return nil, entity.NewExternalToolError("pose inference call", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, entity.NewExternalToolError(
			fmt.Sprintf("pose inference: sidecar returned %d: %s", resp.StatusCode, body), nil)
	}

	var detect detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&detect); err != nil {
		return nil, entity.NewExternalToolError("decode detect response", err)
	}

	if !detect.Detected {
		return nil, nil
	}
	return &entity.LandmarkSet{Points: detect.Landmarks}, nil
}

// Close releases the model instance. Run cleanup calls this on every exit
// path, including mid-batch failures.
func (s *session) Close(ctx context.Context) error {
	url := fmt.Sprintf("%s/v1/sessions/%s", s.client.baseURL, s.id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("build close-session request: %w", err)
	}

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("close pose session %s: %w", s.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("close pose session %s: sidecar returned %d", s.id, resp.StatusCode)
	}
	s.client.logger.Debug("pose session closed", zap.String("session_id", s.id))
	return nil
}
