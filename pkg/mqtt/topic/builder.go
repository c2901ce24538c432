package topic

import (
	"fmt"
)

// Topic suffixes under {root}/vehicle/{vehicleID}/. Widgets subscribe to
// these names, so changing them breaks deployed clients.
const (
	// SuffixState carries the latest snapshot as retained JSON.
	SuffixState = "state"

	// SuffixError carries the last cycle error, or an empty retained
	// message once polling recovers.
	SuffixError = "error"

	// SuffixAvailability is "online" while the daemon runs and "offline"
	// once it is gone (set through the will message).
	SuffixAvailability = "availability"

	// SuffixRefresh is subscribed to; any message requests an immediate poll.
	SuffixRefresh = "refresh"

	segmentVehicle = "vehicle"
)

// TopicBuilder constructs topic names below a root namespace.
type TopicBuilder struct {
	// root is the base namespace, e.g. "zeeho/v1".
	root string
}

// NewTopicBuilder creates a TopicBuilder for root.
func NewTopicBuilder(root string) *TopicBuilder {
	return &TopicBuilder{root: root}
}

// State returns the retained snapshot topic of a vehicle.
func (b *TopicBuilder) State(vehicleID string) string {
	return b.build(vehicleID, SuffixState)
}

// Error returns the error topic of a vehicle.
func (b *TopicBuilder) Error(vehicleID string) string {
	return b.build(vehicleID, SuffixError)
}

// Availability returns the online/offline topic of a vehicle.
func (b *TopicBuilder) Availability(vehicleID string) string {
	return b.build(vehicleID, SuffixAvailability)
}

// Refresh returns the topic on which refresh requests are received.
func (b *TopicBuilder) Refresh(vehicleID string) string {
	return b.build(vehicleID, SuffixRefresh)
}

// StateWildcard matches the state topic of every vehicle.
func (b *TopicBuilder) StateWildcard() string {
	return b.build(Wildcard, SuffixState)
}

// build returns {root}/vehicle/{id}/{suffix}.
func (b *TopicBuilder) build(id, suffix string) string {
	return fmt.Sprintf("%s/%s/%s/%s", b.root, segmentVehicle, id, suffix)
}
