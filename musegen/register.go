package musegen

import (
	"time"

	"github.com/musewave/maestro/asset"
	"github.com/musewave/maestro/engine"
	"github.com/musewave/maestro/job"
)

// RegisterAll registers every pipeline stage on the engine. The video
// stage gets a longer timeout than the per-job default; rendering is
// the slowest step in the pipeline.
func RegisterAll(eng *engine.Engine, c *Client, assets asset.Store) {
	engine.Register(eng, ComposePlan(c))
	engine.Register(eng, ComposeAudio(c, assets))
	engine.Register(eng, SynthesizeVocals(c, assets))
	engine.Register(eng, RenderMix(c, assets))
	engine.Register(eng, RenderVideo(c, assets, job.WithTimeout(30*time.Minute)))
}
