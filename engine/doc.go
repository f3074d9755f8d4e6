// Package engine wires all Maestro subsystems together and provides
// the primary application-level API for registering handlers and
// admitting generation requests.
//
// The engine package exists to break a fundamental import cycle: the
// root maestro package defines Entity (imported by job, dlq, auth,
// etc.) and therefore cannot import those packages back. Engine sits
// above all subsystem packages and below the application layer.
//
// # Building an Engine
//
//	o, err := maestro.New(
//	    maestro.WithStore(pgStore),
//	    maestro.WithConcurrency(8),
//	)
//
//	eng, err := engine.Build(o,
//	    engine.WithExtension(myExtension),
//	    engine.WithBackoff(backoff.NewExponential(2*time.Second, 5*time.Minute)),
//	    engine.WithQueueConfig(queue.Config{
//	        Type:           "video",
//	        MaxConcurrency: 2,
//	    }),
//	)
//
// # Registering Handlers
//
//	engine.Register(eng, musegen.ComposeAudio(client, assets))
//
// # Admitting Requests
//
//	res, err := engine.Enqueue(ctx, eng, job.TypeAudio, params,
//	    job.WithCredential(credID),
//	    job.WithDedupeKey(key),
//	)
//
// A cache hit returns the finished result synchronously; a dedupe hit
// returns the existing in-flight job with Reused set. Otherwise a new
// job is queued and its ID can be used with Status, Cancel, and the
// progress broker.
package engine
