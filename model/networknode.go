package model

// NetworkNode represents a terminal attached to a platform.
type NetworkNode struct {
	ID   string
	Name string

	// PlatformID links this node to a PlatformDefinition.
	// Consumers obtain the node's position by looking up the platform.
	PlatformID string

	// Context tags every event delivered to this node.
	Context uint32
}
