// Package generation defines the boundary to the caption generation service.
// This service only gates access; the actual model inference lives elsewhere.
package generation

import "context"

// PipelineRequest describes one generation request. Platforms lists the
// target social platforms; its length is validated against the tier limit
// before the pipeline is ever invoked.
type PipelineRequest struct {
	UserID    uint
	ImageURL  string
	Platforms []string
	Tone      string
}

// Caption is one generated caption variant.
type Caption struct {
	Platform string `json:"platform"`
	Text     string `json:"text"`
	Hashtags string `json:"hashtags,omitempty"`
}

type PipelineResult struct {
	Captions []Caption `json:"captions"`
}

// CaptionPipeline produces captions for a request that already passed the
// quota gate.
type CaptionPipeline interface {
	GenerateCaptions(ctx context.Context, req PipelineRequest) (*PipelineResult, error)
}
