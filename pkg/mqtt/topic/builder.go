package topic

import (
	"fmt"
	"strings"
)

// Constants defining the standard topic segments published by the relay.
// Consumers subscribe to these, so renaming one is a breaking change.
const (
	// SuffixResult carries one JSON document per processed command.
	// Structure: {root}/result/{vehicleID}
	SuffixResult = "result"

	// SuffixLink carries vehicle link up/down transitions.
	// Structure: {root}/link/{vehicleID}
	SuffixLink = "link"
)

// TopicBuilder encapsulates the logic for constructing MQTT topic strings.
type TopicBuilder struct {
	// root is the base namespace for all topics (e.g., "flightrelay/v1").
	root string
}

// NewTopicBuilder creates a new instance of TopicBuilder with the specified root namespace.
// Trailing slashes on root are dropped.
func NewTopicBuilder(root string) *TopicBuilder {
	return &TopicBuilder{root: strings.TrimRight(root, "/")}
}

// Result returns the topic command results for a vehicle are published on.
func (b *TopicBuilder) Result(vehicleID string) string {
	return b.build(SuffixResult, vehicleID)
}

// Link returns the topic link state changes for a vehicle are published on.
func (b *TopicBuilder) Link(vehicleID string) string {
	return b.build(SuffixLink, vehicleID)
}

// build is a private helper to construct the final topic string.
// Pattern: {root}/{suffix}/{identifier}
func (b *TopicBuilder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
