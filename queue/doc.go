// Package queue enforces per-type execution limits in front of the
// worker pool.
//
// Jobs carry a Type field (plan, audio, vocals, mix, video) and each
// type can be given its own concurrency cap and throughput budget:
//
//	queue.Config{
//	    Type:           "video",
//	    MaxConcurrency: 2,      // at most 2 concurrent renders
//	    RateLimit:      0.5,    // max one render started every 2s
//	    RateBurst:      1,
//	}
//
// [Manager] enforces the limits at execution time. It uses a
// token-bucket rate limiter (golang.org/x/time/rate) and an
// active-count gate for concurrency limits.
//
//	m := queue.NewManager(configs...)
//	if m.Acquire(jobType) {
//	    defer m.Release(jobType)
//	    // process the job
//	}
//
// Types without a [Config] have no limits beyond the pool-wide
// concurrency. A denied Acquire returns the claimed job to the queue
// rather than dropping it.
package queue
