package maestro

import "time"

// Entity carries the bookkeeping timestamps shared by all persisted
// maestro records.
type Entity struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewEntity returns an Entity stamped with the current UTC time.
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Touch advances UpdatedAt to now.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}
