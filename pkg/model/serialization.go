package model

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/fxamacker/cbor/v2"
)

const (
	// Magic bytes that identify our serialized format
	SerializationMagic uint32 = 0x50475242 // "PGRB"

	// Version of the serialization format
	SerializationVersion uint16 = 1

	// Type constants for serialized entities
	TypeNode      uint8 = 1
	TypeRelation  uint8 = 2
	TypeAttribute uint8 = 3
)

// ErrInvalidSerializedData is returned when attempting to deserialize invalid data
var ErrInvalidSerializedData = errors.New("invalid serialized data")

// ErrUnsupportedVersion is returned when attempting to deserialize data with an unsupported version
var ErrUnsupportedVersion = errors.New("unsupported serialization version")

// ErrInvalidEntityType is returned when encountering an invalid entity type during deserialization
var ErrInvalidEntityType = errors.New("invalid entity type")

const headerSize = 7 // Magic(4) + Version(2) + Type(1)

// encode writes the envelope header followed by the CBOR payload.
func encode(entityType uint8, entity interface{}) ([]byte, error) {
	payload, err := cbor.Marshal(entity)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, SerializationMagic)
	binary.Write(&buf, binary.LittleEndian, SerializationVersion)
	binary.Write(&buf, binary.LittleEndian, entityType)
	buf.Write(payload)
	return buf.Bytes(), nil
}

// decodeHeader validates the envelope and returns the entity type and
// the CBOR payload.
func decodeHeader(data []byte) (uint8, []byte, error) {
	if len(data) < headerSize {
		return 0, nil, ErrInvalidSerializedData
	}

	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != SerializationMagic {
		return 0, nil, ErrInvalidSerializedData
	}

	version := binary.LittleEndian.Uint16(data[4:6])
	if version != SerializationVersion {
		return 0, nil, ErrUnsupportedVersion
	}

	return data[6], data[headerSize:], nil
}

// SerializeNode serializes a Node into the envelope format.
func SerializeNode(node *Node) ([]byte, error) {
	if node == nil {
		return nil, errors.New("cannot serialize nil Node")
	}
	return encode(TypeNode, node)
}

// DeserializeNode deserializes envelope bytes into a Node.
func DeserializeNode(data []byte) (*Node, error) {
	entityType, payload, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	if entityType != TypeNode {
		return nil, ErrInvalidEntityType
	}

	var node Node
	if err := cbor.Unmarshal(payload, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// SerializeRelation serializes a Relation into the envelope format.
func SerializeRelation(relation *Relation) ([]byte, error) {
	if relation == nil {
		return nil, errors.New("cannot serialize nil Relation")
	}
	return encode(TypeRelation, relation)
}

// DeserializeRelation deserializes envelope bytes into a Relation.
func DeserializeRelation(data []byte) (*Relation, error) {
	entityType, payload, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	if entityType != TypeRelation {
		return nil, ErrInvalidEntityType
	}

	var relation Relation
	if err := cbor.Unmarshal(payload, &relation); err != nil {
		return nil, err
	}
	return &relation, nil
}

// SerializeAttribute serializes an Attribute (authored or derived) into
// the envelope format. Derived attributes share the attribute shape, so
// no separate type byte is needed.
func SerializeAttribute(attribute *Attribute) ([]byte, error) {
	if attribute == nil {
		return nil, errors.New("cannot serialize nil Attribute")
	}
	return encode(TypeAttribute, attribute)
}

// DeserializeAttribute deserializes envelope bytes into an Attribute.
func DeserializeAttribute(data []byte) (*Attribute, error) {
	entityType, payload, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	if entityType != TypeAttribute {
		return nil, ErrInvalidEntityType
	}

	var attribute Attribute
	if err := cbor.Unmarshal(payload, &attribute); err != nil {
		return nil, err
	}
	return &attribute, nil
}

// DeserializeEntity deserializes envelope bytes into the appropriate
// entity based on the type byte.
func DeserializeEntity(data []byte) (interface{}, error) {
	entityType, _, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	switch entityType {
	case TypeNode:
		return DeserializeNode(data)
	case TypeRelation:
		return DeserializeRelation(data)
	case TypeAttribute:
		return DeserializeAttribute(data)
	default:
		return nil, ErrInvalidEntityType
	}
}
