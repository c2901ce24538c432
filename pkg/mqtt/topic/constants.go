package topic

// MQTT wildcards.
const (
	// Wildcard matches exactly one topic level.
	Wildcard = "+"

	// MultiWildcard matches the remaining levels and must come last.
	MultiWildcard = "#"
)

// All returns a filter matching every topic below root.
func (b *TopicBuilder) All() string {
	return b.root + "/" + MultiWildcard
}
