package musegen

import (
	"context"
	"errors"
	"fmt"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/asset"
	"github.com/musewave/maestro/job"
)

// The mix and video bridges share the asset volume with this process:
// they read earlier stage outputs by slug, and the handler stores the
// rendered result back through the asset store.

// MixParams drives the mixdown stage.
type MixParams struct {
	Slug string `json:"slug"`
}

// MixResult points at the mastered mixdown.
type MixResult struct {
	Slug   string `json:"slug"`
	MixURL string `json:"mixUrl"`
}

// VideoParams drives the lyric-video stage.
type VideoParams struct {
	Slug   string `json:"slug"`
	Title  string `json:"title,omitempty"`
	Lyrics string `json:"lyrics,omitempty"`
}

// VideoResult points at the rendered lyric video.
type VideoResult struct {
	Slug     string `json:"slug"`
	VideoURL string `json:"videoUrl"`
}

type mixBridgeRequest struct {
	Slug string `json:"slug"`
}

type videoBridgeRequest struct {
	Slug   string `json:"slug"`
	Title  string `json:"title,omitempty"`
	Lyrics string `json:"lyrics,omitempty"`
}

// RenderMix builds the mix-stage definition: the ffmpeg bridge combines
// the slug's instrumental and vocals into mix.mp3.
func RenderMix(c *Client, assets asset.Store, opts ...job.Option) *job.Definition[MixParams, MixResult] {
	return job.NewDefinition(job.TypeMix, EngineFFmpeg,
		func(ctx context.Context, p MixParams, progress job.ProgressFunc) (MixResult, error) {
			if p.Slug == "" {
				return MixResult{}, maestro.Permanent(errors.New("slug is required"))
			}
			if err := requireStage(ctx, assets, p.Slug, asset.FileInstrumental); err != nil {
				return MixResult{}, err
			}
			if err := requireStage(ctx, assets, p.Slug, asset.FileVocals); err != nil {
				return MixResult{}, err
			}

			progress(10, "aligning stems")
			body, err := c.postMedia(ctx, "/v1/mix", mixBridgeRequest{Slug: p.Slug})
			if err != nil {
				return MixResult{}, err
			}
			defer body.Close()

			progress(80, "writing mixdown")
			url, err := assets.Save(ctx, p.Slug, asset.FileMix, body)
			if err != nil {
				return MixResult{}, err
			}

			progress(100, "mix ready")
			return MixResult{Slug: p.Slug, MixURL: url}, nil
		},
		opts...,
	)
}

// RenderVideo builds the video-stage definition: the ffmpeg bridge
// renders a lyric video over the slug's mixdown.
func RenderVideo(c *Client, assets asset.Store, opts ...job.Option) *job.Definition[VideoParams, VideoResult] {
	return job.NewDefinition(job.TypeVideo, EngineFFmpeg,
		func(ctx context.Context, p VideoParams, progress job.ProgressFunc) (VideoResult, error) {
			if p.Slug == "" {
				return VideoResult{}, maestro.Permanent(errors.New("slug is required"))
			}
			if err := requireStage(ctx, assets, p.Slug, asset.FileMix); err != nil {
				return VideoResult{}, err
			}

			progress(10, "laying out frames")
			body, err := c.postMedia(ctx, "/v1/video", videoBridgeRequest{
				Slug:   p.Slug,
				Title:  p.Title,
				Lyrics: p.Lyrics,
			})
			if err != nil {
				return VideoResult{}, err
			}
			defer body.Close()

			progress(85, "writing video")
			url, err := assets.Save(ctx, p.Slug, asset.FileVideo, body)
			if err != nil {
				return VideoResult{}, err
			}

			progress(100, "video ready")
			return VideoResult{Slug: p.Slug, VideoURL: url}, nil
		},
		opts...,
	)
}

// requireStage verifies an earlier pipeline stage left its output in
// place. A missing input means the stages ran out of order, which no
// retry will fix.
func requireStage(ctx context.Context, assets asset.Store, slug, name string) error {
	rc, err := assets.Open(ctx, slug, name)
	if err != nil {
		return maestro.Permanent(fmt.Errorf("missing %s for %s: %w", name, slug, err))
	}
	return rc.Close()
}
