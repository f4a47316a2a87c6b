package model

// BasicMorphName is the name of the single morph every freshly created
// node starts with.
const BasicMorphName = "basic"

// Morph is an alternate contextual version of a node. It holds its own
// sets of relation and attribute references; exactly one morph per node
// is active at any time.
type Morph struct {
	ID           string   `json:"morph_id"`
	NodeID       string   `json:"node_id"`
	Name         string   `json:"name"`
	RelationIDs  []string `json:"relation_ids"`
	AttributeIDs []string `json:"attribute_ids"`
}

// NewMorph creates an empty morph owned by the given node.
func NewMorph(nodeID, name string) Morph {
	return Morph{
		ID:           NewMorphID(nodeID),
		NodeID:       nodeID,
		Name:         name,
		RelationIDs:  []string{},
		AttributeIDs: []string{},
	}
}

// Node represents a poly-morphic vertex in the knowledge graph. A node
// carries one or more morphs; ActiveMorphID points at the morph new
// relations and attributes attach to.
type Node struct {
	ID            string   `json:"id"`
	BaseName      string   `json:"base_name"`
	Adjective     string   `json:"adjective,omitempty"`
	Quantifier    string   `json:"quantifier,omitempty"`
	Role          string   `json:"role,omitempty"`
	Description   string   `json:"description,omitempty"`
	ParentTypes   []string `json:"parent_types"`
	Deleted       bool     `json:"is_deleted"`
	Morphs        []Morph  `json:"morphs"`
	ActiveMorphID string   `json:"active_morph"`
}

// NodeOptions holds the optional fields for node creation.
type NodeOptions struct {
	// ID overrides the ID derived from the base name.
	ID          string
	Adjective   string
	Quantifier  string
	Role        string
	Description string
	ParentTypes []string
}

// NewNode creates a new node with an ID derived from the base name
// (unless overridden) and a single "basic" morph that is active.
func NewNode(baseName string, opts NodeOptions) (*Node, error) {
	id := opts.ID
	if id == "" {
		id = DeriveNodeID(baseName)
	}
	if id == "" {
		return nil, &ErrInvalidName{BaseName: baseName}
	}

	parentTypes := opts.ParentTypes
	if parentTypes == nil {
		parentTypes = []string{}
	}

	basic := NewMorph(id, BasicMorphName)
	return &Node{
		ID:            id,
		BaseName:      baseName,
		Adjective:     opts.Adjective,
		Quantifier:    opts.Quantifier,
		Role:          opts.Role,
		Description:   opts.Description,
		ParentTypes:   parentTypes,
		Morphs:        []Morph{basic},
		ActiveMorphID: basic.ID,
	}, nil
}

// ActiveMorph returns a pointer to the node's active morph, or nil if
// ActiveMorphID does not resolve to any morph in the list.
func (n *Node) ActiveMorph() *Morph {
	return n.FindMorph(n.ActiveMorphID)
}

// FindMorph returns a pointer to the morph with the given ID, or nil.
func (n *Node) FindMorph(morphID string) *Morph {
	for i := range n.Morphs {
		if n.Morphs[i].ID == morphID {
			return &n.Morphs[i]
		}
	}
	return nil
}

// AddRelationRef appends a relation ID to the morph's reference list if
// it is not already present. Returns true if the list changed.
func (m *Morph) AddRelationRef(relationID string) bool {
	for _, id := range m.RelationIDs {
		if id == relationID {
			return false
		}
	}
	m.RelationIDs = append(m.RelationIDs, relationID)
	return true
}

// AddAttributeRef appends an attribute ID to the morph's reference list
// if it is not already present. Returns true if the list changed.
func (m *Morph) AddAttributeRef(attributeID string) bool {
	for _, id := range m.AttributeIDs {
		if id == attributeID {
			return false
		}
	}
	m.AttributeIDs = append(m.AttributeIDs, attributeID)
	return true
}

// RemoveRelationRef removes a relation ID from the morph's reference
// list. Returns true if the list changed.
func (m *Morph) RemoveRelationRef(relationID string) bool {
	for i, id := range m.RelationIDs {
		if id == relationID {
			m.RelationIDs = append(m.RelationIDs[:i], m.RelationIDs[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAttributeRef removes an attribute ID from the morph's reference
// list. Returns true if the list changed.
func (m *Morph) RemoveAttributeRef(attributeID string) bool {
	for i, id := range m.AttributeIDs {
		if id == attributeID {
			m.AttributeIDs = append(m.AttributeIDs[:i], m.AttributeIDs[i+1:]...)
			return true
		}
	}
	return false
}
