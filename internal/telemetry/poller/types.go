package poller

import (
	"context"
	"time"

	"github.com/bestk/zeeho-widgets/internal/telemetry"
	"github.com/bestk/zeeho-widgets/internal/telemetry/model"
)

// State is a poller state.
type State string

const (
	StateIdle      State = "idle"
	StateFetching  State = "fetching"
	StateMapping   State = "mapping"
	StatePublished State = "published"
	StateBackoff   State = "backoff"
	StateStopped   State = "stopped"
)

var allStates = []string{
	string(StateIdle), string(StateFetching), string(StateMapping),
	string(StatePublished), string(StateBackoff), string(StateStopped),
}

const (
	eventFetch   = "fetch"
	eventFetched = "fetched"
	eventPublish = "publish"
	eventFail    = "fail"
	eventRetry   = "retry"
	eventStop    = "stop"
)

// Fetcher retrieves the raw vehicle payload.
type Fetcher interface {
	Fetch(ctx context.Context, cfg telemetry.Config) (*model.RawPayload, error)
}

// Mapper turns the payload data into a VehicleData.
type Mapper interface {
	Map(raw map[string]any) (*model.VehicleData, error)
}

// Enricher adds derived data to a mapped record. It must not fail the cycle
// and must not modify its argument.
type Enricher interface {
	Enrich(ctx context.Context, v *model.VehicleData) *model.VehicleData
}

// Snapshot is a published record and the time it was fetched.
type Snapshot struct {
	Data      *model.VehicleData `json:"data"`
	FetchedAt time.Time          `json:"fetchedAt"`
}

// Event is delivered to subscribers after every finished cycle.
type Event struct {
	State State
	// Snapshot is the latest published snapshot; on failure it is the
	// previous one, possibly nil.
	Snapshot *Snapshot
	// Err is the cycle error, nil on success.
	Err error
}

// Status describes the poller for presentation.
type Status struct {
	State       State
	LastError   error
	Failures    int
	LastSuccess time.Time
	NextAttempt time.Time
}
