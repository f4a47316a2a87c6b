package model

import (
	"fmt"
)

// ErrInvalidName is returned when an entity is created with an empty or
// invalid base name.
type ErrInvalidName struct {
	BaseName string
}

func (e *ErrInvalidName) Error() string {
	return fmt.Sprintf("invalid base name: %q", e.BaseName)
}

// ErrNodeNotFound is returned when an operation requires a node that
// does not exist in the store.
type ErrNodeNotFound struct {
	ID string
}

func (e *ErrNodeNotFound) Error() string {
	return fmt.Sprintf("node not found: %s", e.ID)
}

// ErrRelationNotFound is returned when an operation requires a relation
// that does not exist in the store.
type ErrRelationNotFound struct {
	ID string
}

func (e *ErrRelationNotFound) Error() string {
	return fmt.Sprintf("relation not found: %s", e.ID)
}

// ErrAttributeNotFound is returned when an operation requires an
// attribute that does not exist in the store.
type ErrAttributeNotFound struct {
	ID string
}

func (e *ErrAttributeNotFound) Error() string {
	return fmt.Sprintf("attribute not found: %s", e.ID)
}

// ErrMissingEndpoint is returned when relation creation references one
// or both nonexistent (or deleted) endpoint nodes.
type ErrMissingEndpoint struct {
	SourceID string
	TargetID string
}

func (e *ErrMissingEndpoint) Error() string {
	return fmt.Sprintf("relation endpoint missing: source=%s target=%s", e.SourceID, e.TargetID)
}

// ErrMissingSource is returned when attribute creation references a
// nonexistent source node.
type ErrMissingSource struct {
	SourceID string
}

func (e *ErrMissingSource) Error() string {
	return fmt.Sprintf("attribute source node missing: %s", e.SourceID)
}

// ErrMorphNotFound is returned when a morph ID does not resolve to any
// morph of the given node.
type ErrMorphNotFound struct {
	NodeID  string
	MorphID string
}

func (e *ErrMorphNotFound) Error() string {
	return fmt.Sprintf("morph %s not found on node %s", e.MorphID, e.NodeID)
}
