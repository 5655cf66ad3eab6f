// Package captionpipeline talks to the internal caption generation service
// over HTTP. Entitlement checks have already happened by the time a request
// reaches this client.
package captionpipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"captionly/internal/application/generation"
	"captionly/internal/shared/config"
	"captionly/internal/shared/logger"
)

const (
	defaultTimeout = 30 * time.Second
	// Maximum response body size for the pipeline API (1MB)
	maxResponseSize = 1 << 20
)

type generateRequest struct {
	UserID    uint     `json:"user_id"`
	ImageURL  string   `json:"image_url"`
	Platforms []string `json:"platforms"`
	Tone      string   `json:"tone,omitempty"`
}

// HTTPPipeline implements generation.CaptionPipeline against the internal
// generation service.
type HTTPPipeline struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Interface
}

func NewHTTPPipeline(cfg *config.PipelineConfig, logger logger.Interface) *HTTPPipeline {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &HTTPPipeline{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("caption-pipeline"),
	}
}

func (p *HTTPPipeline) GenerateCaptions(ctx context.Context, req generation.PipelineRequest) (*generation.PipelineResult, error) {
	body, err := json.Marshal(generateRequest{
		UserID:    req.UserID,
		ImageURL:  req.ImageURL,
		Platforms: req.Platforms,
		Tone:      req.Tone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pipeline request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/captions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("pipeline request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		p.logger.Warnw("pipeline returned non-200 status",
			"status", resp.StatusCode,
			"body_size", len(respBody))
		return nil, fmt.Errorf("pipeline returned status %d", resp.StatusCode)
	}

	var result generation.PipelineResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline response: %w", err)
	}

	return &result, nil
}
