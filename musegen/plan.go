package musegen

import (
	"context"
	"errors"
	"strings"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/asset"
	"github.com/musewave/maestro/job"
)

// PlanParams describes the user's track idea.
type PlanParams struct {
	Prompt   string   `json:"prompt"`
	Genres   []string `json:"genres,omitempty"`
	Mood     string   `json:"mood,omitempty"`
	Language string   `json:"language,omitempty"`
}

// PlanResult is the composed track plan later stages build on. Slug
// names the asset directory the whole pipeline shares.
type PlanResult struct {
	Slug              string `json:"slug"`
	Title             string `json:"title"`
	Lyrics            string `json:"lyrics"`
	Genre             string `json:"genre"`
	Mood              string `json:"mood"`
	Language          string `json:"language"`
	ArtistInspiration string `json:"artistInspiration,omitempty"`
}

type planBridgeRequest struct {
	Prompt   string   `json:"prompt"`
	Genres   []string `json:"genres,omitempty"`
	Mood     string   `json:"mood,omitempty"`
	Language string   `json:"language,omitempty"`
}

type planBridgeResponse struct {
	Title             string `json:"title"`
	Lyrics            string `json:"lyrics"`
	Genre             string `json:"genre"`
	Mood              string `json:"mood"`
	Language          string `json:"language"`
	ArtistInspiration string `json:"artist_inspiration,omitempty"`
}

// ComposePlan builds the plan-stage definition: the LLM bridge turns a
// free-form prompt into a title, lyrics, and arrangement metadata.
func ComposePlan(c *Client, opts ...job.Option) *job.Definition[PlanParams, PlanResult] {
	return job.NewDefinition(job.TypePlan, EngineLLM,
		func(ctx context.Context, p PlanParams, progress job.ProgressFunc) (PlanResult, error) {
			if strings.TrimSpace(p.Prompt) == "" {
				return PlanResult{}, maestro.Permanent(errors.New("prompt is required"))
			}

			progress(10, "writing lyrics")
			var out planBridgeResponse
			err := c.postJSON(ctx, "/v1/plan", planBridgeRequest(p), &out)
			if err != nil {
				return PlanResult{}, err
			}

			progress(85, "selecting arrangement")
			res := PlanResult{
				Title:             out.Title,
				Lyrics:            out.Lyrics,
				Genre:             out.Genre,
				Mood:              out.Mood,
				Language:          out.Language,
				ArtistInspiration: out.ArtistInspiration,
			}
			if res.Title == "" {
				res.Title = strings.Join(strings.Fields(p.Prompt)[:min(4, len(strings.Fields(p.Prompt)))], " ")
			}
			if res.Language == "" {
				res.Language = "English"
			}
			res.Slug = asset.Slugify(res.Title)

			progress(100, "plan ready")
			return res, nil
		},
		opts...,
	)
}
