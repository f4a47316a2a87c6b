package model

import (
	"reflect"
	"testing"
)

func TestNodeSerializationRoundTrip(t *testing.T) {
	node, err := NewNode("Water", NodeOptions{
		Description: "The liquid of life",
		ParentTypes: []string{"substance", "liquid"},
	})
	if err != nil {
		t.Fatalf("NewNode failed: %v", err)
	}
	node.ActiveMorph().AddRelationRef("hydrogen__part_of__water")

	data, err := SerializeNode(node)
	if err != nil {
		t.Fatalf("SerializeNode failed: %v", err)
	}

	decoded, err := DeserializeNode(data)
	if err != nil {
		t.Fatalf("DeserializeNode failed: %v", err)
	}

	if !reflect.DeepEqual(node, decoded) {
		t.Errorf("Round trip changed the node:\n got %+v\nwant %+v", decoded, node)
	}
}

func TestAttributeSerializationKeepsVariant(t *testing.T) {
	fn, err := NewFunctionAttribute("water", "molar mass", "18.015", "sum(atomic_mass(parts))", AttributeOptions{})
	if err != nil {
		t.Fatalf("NewFunctionAttribute failed: %v", err)
	}

	data, err := SerializeAttribute(fn)
	if err != nil {
		t.Fatalf("SerializeAttribute failed: %v", err)
	}

	decoded, err := DeserializeAttribute(data)
	if err != nil {
		t.Fatalf("DeserializeAttribute failed: %v", err)
	}

	if !decoded.Derived || decoded.Expression != fn.Expression {
		t.Errorf("Derived variant lost on round trip: %+v", decoded)
	}
}

func TestDeserializeRejectsBadEnvelope(t *testing.T) {
	if _, err := DeserializeNode([]byte{0x01, 0x02}); err != ErrInvalidSerializedData {
		t.Errorf("Expected ErrInvalidSerializedData for short input, got %v", err)
	}

	node, _ := NewNode("Water", NodeOptions{})
	data, _ := SerializeNode(node)

	corrupted := append([]byte{}, data...)
	corrupted[0] ^= 0xff
	if _, err := DeserializeNode(corrupted); err != ErrInvalidSerializedData {
		t.Errorf("Expected ErrInvalidSerializedData for bad magic, got %v", err)
	}

	// A node envelope is not a relation
	if _, err := DeserializeRelation(data); err != ErrInvalidEntityType {
		t.Errorf("Expected ErrInvalidEntityType, got %v", err)
	}
}

func TestDeserializeEntityDispatch(t *testing.T) {
	rel, _ := NewRelation("hydrogen", "water", "part of", RelationOptions{})
	data, err := SerializeRelation(rel)
	if err != nil {
		t.Fatalf("SerializeRelation failed: %v", err)
	}

	entity, err := DeserializeEntity(data)
	if err != nil {
		t.Fatalf("DeserializeEntity failed: %v", err)
	}

	decoded, ok := entity.(*Relation)
	if !ok {
		t.Fatalf("Expected *Relation, got %T", entity)
	}

	if decoded.ID != rel.ID {
		t.Errorf("Expected ID %q, got %q", rel.ID, decoded.ID)
	}
}
