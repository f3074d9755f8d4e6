package redis

import (
	"fmt"

	"github.com/musewave/maestro/id"
)

// Redis key naming conventions for maestro data.
// All keys are prefixed with "maestro:" to avoid collisions.

const keyPrefix = "maestro:"

// cacheKey returns the key for a cached result: maestro:cache:{key}
func cacheKey(key string) string { return keyPrefix + "cache:" + key }

// rateKey returns the counter key for a credential's fixed window:
// maestro:rl:{credID}:{windowStartUnix}
func rateKey(credID id.CredentialID, windowStart int64) string {
	return fmt.Sprintf("%srl:%s:%d", keyPrefix, credID, windowStart)
}
