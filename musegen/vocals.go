package musegen

import (
	"context"
	"errors"
	"strings"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/asset"
	"github.com/musewave/maestro/job"
)

// VocalsParams drives the vocal synthesis stage.
type VocalsParams struct {
	Slug       string `json:"slug"`
	Lyrics     string `json:"lyrics"`
	Language   string `json:"language,omitempty"`
	VoiceStyle string `json:"voiceStyle,omitempty"`
}

// VocalsResult points at the synthesized vocal track.
type VocalsResult struct {
	Slug      string `json:"slug"`
	VocalsURL string `json:"vocalsUrl"`
}

type vocalsBridgeRequest struct {
	Lyrics     string `json:"lyrics"`
	Language   string `json:"language,omitempty"`
	VoiceStyle string `json:"voice_style,omitempty"`
}

// SynthesizeVocals builds the vocals-stage definition: the coqui bridge
// sings the lyrics, stored as the slug's vocals.wav.
func SynthesizeVocals(c *Client, assets asset.Store, opts ...job.Option) *job.Definition[VocalsParams, VocalsResult] {
	return job.NewDefinition(job.TypeVocals, EngineCoqui,
		func(ctx context.Context, p VocalsParams, progress job.ProgressFunc) (VocalsResult, error) {
			if p.Slug == "" {
				return VocalsResult{}, maestro.Permanent(errors.New("slug is required"))
			}
			if strings.TrimSpace(p.Lyrics) == "" {
				return VocalsResult{}, maestro.Permanent(errors.New("lyrics are required"))
			}

			progress(10, "loading voice model")
			body, err := c.postMedia(ctx, "/v1/vocals", vocalsBridgeRequest{
				Lyrics:     p.Lyrics,
				Language:   p.Language,
				VoiceStyle: p.VoiceStyle,
			})
			if err != nil {
				return VocalsResult{}, err
			}
			defer body.Close()

			progress(80, "writing vocals")
			url, err := assets.Save(ctx, p.Slug, asset.FileVocals, body)
			if err != nil {
				return VocalsResult{}, err
			}

			progress(100, "vocals ready")
			return VocalsResult{Slug: p.Slug, VocalsURL: url}, nil
		},
		opts...,
	)
}
