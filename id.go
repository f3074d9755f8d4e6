package maestro

import "github.com/musewave/maestro/id"

// ID is the primary identifier type for all maestro entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
