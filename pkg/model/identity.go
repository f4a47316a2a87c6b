package model

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/oklog/ulid/v2"
)

// DeriveNodeID derives a node ID from a base name: lower-cased, with
// runs of whitespace collapsed to single underscores. The derivation is
// deterministic so re-ingesting the same name resolves to the same node.
func DeriveNodeID(baseName string) string {
	return strings.Join(strings.Fields(strings.ToLower(baseName)), "_")
}

// DeriveRelationID derives a relation ID from its defining triple.
// The name is normalized the same way node base names are, so names
// that differ only in case or whitespace ("Part Of", "part of") address
// the same relation. The same (source, name, target) always yields the
// same ID, which makes re-creating an existing relation idempotent.
func DeriveRelationID(sourceID, targetID, name string) string {
	return fmt.Sprintf("%s__%s__%s", sourceID, DeriveNodeID(name), targetID)
}

// DeriveAttributeID derives a content-addressed attribute ID. The name
// is normalized like a node base name; the ID incorporates a short hash
// of the value so that two attributes with the same name but different
// values never collide, while identical (source, name, value) triples
// always resolve to the same ID.
func DeriveAttributeID(sourceID, name, value string) string {
	return fmt.Sprintf("%s__%s__%s", sourceID, DeriveNodeID(name), ValueHash(value))
}

// ValueHash returns a short deterministic hash of an attribute value.
func ValueHash(value string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(value))[:8]
}

// NewMorphID derives a morph ID from the owning node ID and a ULID.
// ULIDs carry a millisecond timestamp plus monotonic entropy, so two
// morphs created for the same node in the same millisecond still get
// distinct, time-ordered IDs.
func NewMorphID(nodeID string) string {
	return nodeID + "/" + ulid.Make().String()
}
