package model

import (
	"strings"
	"testing"
)

func TestNewNode(t *testing.T) {
	node, err := NewNode("Water", NodeOptions{})
	if err != nil {
		t.Fatalf("NewNode failed: %v", err)
	}

	if node.ID != "water" {
		t.Errorf("Expected derived ID 'water', got %q", node.ID)
	}

	if node.BaseName != "Water" {
		t.Errorf("Expected base name 'Water', got %q", node.BaseName)
	}

	if len(node.Morphs) != 1 {
		t.Fatalf("Expected exactly one morph, got %d", len(node.Morphs))
	}

	basic := node.Morphs[0]
	if basic.Name != BasicMorphName {
		t.Errorf("Expected morph name %q, got %q", BasicMorphName, basic.Name)
	}

	if node.ActiveMorphID != basic.ID {
		t.Errorf("Expected active morph to be %q, got %q", basic.ID, node.ActiveMorphID)
	}

	if len(basic.RelationIDs) != 0 || len(basic.AttributeIDs) != 0 {
		t.Error("Expected fresh morph to have empty reference lists")
	}
}

func TestNewNodeDerivesID(t *testing.T) {
	node, err := NewNode("  Heavy   Water Molecule ", NodeOptions{})
	if err != nil {
		t.Fatalf("NewNode failed: %v", err)
	}

	if node.ID != "heavy_water_molecule" {
		t.Errorf("Expected whitespace collapsed to underscores, got %q", node.ID)
	}
}

func TestNewNodeExplicitID(t *testing.T) {
	node, err := NewNode("Water", NodeOptions{ID: "custom_id", ParentTypes: []string{"substance"}})
	if err != nil {
		t.Fatalf("NewNode failed: %v", err)
	}

	if node.ID != "custom_id" {
		t.Errorf("Expected explicit ID 'custom_id', got %q", node.ID)
	}

	if len(node.ParentTypes) != 1 || node.ParentTypes[0] != "substance" {
		t.Errorf("Expected parent types [substance], got %v", node.ParentTypes)
	}
}

func TestNewNodeEmptyName(t *testing.T) {
	_, err := NewNode("", NodeOptions{})
	if err == nil {
		t.Fatal("Expected error for empty base name")
	}

	if _, ok := err.(*ErrInvalidName); !ok {
		t.Errorf("Expected ErrInvalidName, got %T", err)
	}

	// Whitespace-only names derive to an empty ID and are rejected too
	if _, err := NewNode("   ", NodeOptions{}); err == nil {
		t.Error("Expected error for whitespace-only base name")
	}
}

func TestNewMorphIDs(t *testing.T) {
	a := NewMorph("water", "liquid")
	b := NewMorph("water", "solid")

	if a.ID == b.ID {
		t.Error("Expected distinct morph IDs for morphs created back to back")
	}

	if !strings.HasPrefix(a.ID, "water/") {
		t.Errorf("Expected morph ID prefixed with owning node ID, got %q", a.ID)
	}

	if a.NodeID != "water" {
		t.Errorf("Expected morph back-reference 'water', got %q", a.NodeID)
	}
}

func TestActiveMorph(t *testing.T) {
	node, err := NewNode("Water", NodeOptions{})
	if err != nil {
		t.Fatalf("NewNode failed: %v", err)
	}

	if node.ActiveMorph() == nil {
		t.Fatal("Expected active morph to resolve")
	}

	solid := NewMorph(node.ID, "solid")
	node.Morphs = append(node.Morphs, solid)
	node.ActiveMorphID = solid.ID

	active := node.ActiveMorph()
	if active == nil || active.Name != "solid" {
		t.Errorf("Expected active morph 'solid', got %+v", active)
	}

	node.ActiveMorphID = "water/missing"
	if node.ActiveMorph() != nil {
		t.Error("Expected nil for unresolvable active morph pointer")
	}
}

func TestMorphReferenceLists(t *testing.T) {
	m := NewMorph("water", BasicMorphName)

	if !m.AddRelationRef("r1") {
		t.Error("Expected first append to change the list")
	}
	if m.AddRelationRef("r1") {
		t.Error("Expected duplicate append to be a no-op")
	}
	if len(m.RelationIDs) != 1 {
		t.Errorf("Expected one relation ref, got %d", len(m.RelationIDs))
	}

	m.AddAttributeRef("a1")
	m.AddAttributeRef("a2")
	if !m.RemoveAttributeRef("a1") {
		t.Error("Expected removal of existing ref to report a change")
	}
	if m.RemoveAttributeRef("a1") {
		t.Error("Expected removal of absent ref to be a no-op")
	}
	if len(m.AttributeIDs) != 1 || m.AttributeIDs[0] != "a2" {
		t.Errorf("Expected [a2] after removal, got %v", m.AttributeIDs)
	}
}
