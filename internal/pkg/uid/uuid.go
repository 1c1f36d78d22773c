package uid

import "github.com/google/uuid"

// UUID produces time-ordered v7 identifiers, used for correlation ids and
// stored object names.
type UUID struct{}

// NewUUID returns a UUID generator.
func NewUUID() *UUID { return &UUID{} }

// Generate falls back to a random v4 when the v7 source fails.
func (*UUID) Generate() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
