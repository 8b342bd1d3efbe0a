package snap

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so run timestamps are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation for runs and stored objects.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// runIDLayout sorts lexically in start order.
const runIDLayout = "20060102T150405Z"

// NewRunID builds a run identifier from the start time and a generated suffix,
// e.g. "20240115T103000Z-id-1".
func NewRunID(clock Clock, idgen IDGenerator) string {
	return clock.Now().UTC().Format(runIDLayout) + "-" + idgen.New()
}
