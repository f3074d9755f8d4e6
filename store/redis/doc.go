// Package redis provides Redis-backed implementations of the result
// cache and the fixed-window rate limiter, for deployments where several
// orchestrator processes must share cache hits and request budgets.
//
// It deliberately does not implement the job store: job claims need the
// transactional lease semantics the postgres backend provides, while the
// cache and the limiter are pure key/counter workloads that Redis serves
// natively (TTL expiry replaces retention sweeps, INCR gives the atomic
// check-and-increment).
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	c := redisstore.NewCache(client)
//	l := redisstore.NewLimiter(client, time.Minute)
package redis
