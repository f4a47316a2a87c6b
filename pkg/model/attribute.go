package model

// Attribute represents a named value attached to a node. Its ID is
// content-addressed: it incorporates a short hash of the value, so two
// attributes with the same name but different values never collide and
// identical (source, name, value) triples are idempotent.
//
// A derived attribute ("function") is the same shape with Expression set
// and Derived true; storage and traversal handle one shape.
type Attribute struct {
	ID       string   `json:"id"`
	SourceID string   `json:"source_id"`
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Adverb   string   `json:"adverb,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Modality string   `json:"modality,omitempty"`
	MorphIDs []string `json:"morph_ids"`
	Deleted  bool     `json:"is_deleted"`

	// Expression is the computation that derives Value; only set when
	// Derived is true.
	Expression string `json:"expression,omitempty"`
	Derived    bool   `json:"is_derived,omitempty"`
}

// AttributeOptions holds the optional fields for attribute creation.
type AttributeOptions struct {
	Adverb   string
	Unit     string
	Modality string
}

// NewAttribute creates an attribute with a content-addressed ID. Source
// existence is the store's responsibility, not the model's.
func NewAttribute(sourceID, name, value string, opts AttributeOptions) (*Attribute, error) {
	if sourceID == "" || name == "" {
		return nil, &ErrInvalidName{BaseName: name}
	}
	return &Attribute{
		ID:       DeriveAttributeID(sourceID, name, value),
		SourceID: sourceID,
		Name:     name,
		Value:    value,
		Adverb:   opts.Adverb,
		Unit:     opts.Unit,
		Modality: opts.Modality,
		MorphIDs: []string{},
	}, nil
}

// NewFunctionAttribute creates a derived attribute carrying the
// expression that computes its value.
func NewFunctionAttribute(sourceID, name, value, expression string, opts AttributeOptions) (*Attribute, error) {
	attr, err := NewAttribute(sourceID, name, value, opts)
	if err != nil {
		return nil, err
	}
	attr.Expression = expression
	attr.Derived = true
	return attr, nil
}
