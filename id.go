package stacktheory

import "github.com/oklog/ulid/v2"

// IDGenerator provides identifiers for plans and deployments.
type IDGenerator interface {
	NewID() string
}

// ULIDGenerator generates lexically sortable ULIDs.
type ULIDGenerator struct{}

func (ULIDGenerator) NewID() string {
	return ulid.Make().String()
}
