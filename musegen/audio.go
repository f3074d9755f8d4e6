package musegen

import (
	"context"
	"errors"
	"strings"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/asset"
	"github.com/musewave/maestro/job"
)

// AudioParams drives the instrumental stage.
type AudioParams struct {
	Slug     string `json:"slug"`
	Prompt   string `json:"prompt"`
	Genre    string `json:"genre,omitempty"`
	Mood     string `json:"mood,omitempty"`
	Seed     int64  `json:"seed,omitempty"`
	Duration int    `json:"duration,omitempty"` // seconds, bridge default if zero
}

// AudioResult points at the rendered instrumental.
type AudioResult struct {
	Slug            string `json:"slug"`
	InstrumentalURL string `json:"instrumentalUrl"`
}

type audioBridgeRequest struct {
	Prompt   string `json:"prompt"`
	Genre    string `json:"genre,omitempty"`
	Mood     string `json:"mood,omitempty"`
	Seed     int64  `json:"seed,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// ComposeAudio builds the audio-stage definition: the riffusion bridge
// renders an instrumental track which is stored as the slug's
// instrumental.wav.
func ComposeAudio(c *Client, assets asset.Store, opts ...job.Option) *job.Definition[AudioParams, AudioResult] {
	return job.NewDefinition(job.TypeAudio, EngineRiffusion,
		func(ctx context.Context, p AudioParams, progress job.ProgressFunc) (AudioResult, error) {
			if strings.TrimSpace(p.Prompt) == "" {
				return AudioResult{}, maestro.Permanent(errors.New("prompt is required"))
			}
			if p.Slug == "" {
				p.Slug = asset.Slugify(p.Prompt)
			}

			progress(10, "loading riffusion")
			body, err := c.postMedia(ctx, "/v1/audio", audioBridgeRequest{
				Prompt:   p.Prompt,
				Genre:    p.Genre,
				Mood:     p.Mood,
				Seed:     p.Seed,
				Duration: p.Duration,
			})
			if err != nil {
				return AudioResult{}, err
			}
			defer body.Close()

			progress(80, "writing instrumental")
			url, err := assets.Save(ctx, p.Slug, asset.FileInstrumental, body)
			if err != nil {
				return AudioResult{}, err
			}

			progress(100, "instrumental ready")
			return AudioResult{Slug: p.Slug, InstrumentalURL: url}, nil
		},
		opts...,
	)
}
