package common

import (
	"testing"
)

func TestKeyFormatting(t *testing.T) {
	if NodeKey("water") != "nodes/water" {
		t.Errorf("Unexpected node key: %q", NodeKey("water"))
	}
	if RelationKey("r1") != "relations/r1" {
		t.Errorf("Unexpected relation key: %q", RelationKey("r1"))
	}
	if AttributeKey("a1") != "attributes/a1" {
		t.Errorf("Unexpected attribute key: %q", AttributeKey("a1"))
	}
}

func TestPrefixRange(t *testing.T) {
	start, end := PrefixRange(NodeKeyPrefix)
	if start != "nodes/" || end != "nodes0" {
		t.Errorf("Unexpected range: [%q, %q)", start, end)
	}

	// Every prefixed key falls inside the range, the next namespace outside
	if !(start <= "nodes/water" && "nodes/water" < end) {
		t.Error("Expected prefixed key inside range")
	}
	if "relations/r1" < end {
		t.Error("Expected other namespace outside range")
	}
}
