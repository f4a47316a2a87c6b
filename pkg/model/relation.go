package model

// Relation represents a directed, named edge between two nodes. Its ID
// is derived from the (source, name, target) triple, so creating the
// same relation twice resolves to the same entity.
type Relation struct {
	ID       string   `json:"id"`
	SourceID string   `json:"source_id"`
	TargetID string   `json:"target_id"`
	Name     string   `json:"name"`
	Adverb   string   `json:"adverb,omitempty"`
	Modality string   `json:"modality,omitempty"`
	MorphIDs []string `json:"morph_ids"`
	Deleted  bool     `json:"is_deleted"`
}

// RelationOptions holds the optional fields for relation creation.
type RelationOptions struct {
	Adverb   string
	Modality string
}

// NewRelation creates a relation with a deterministic ID. Endpoint
// existence is the store's responsibility, not the model's; the morph
// ID list starts empty and is populated by the store when the relation
// is attached to a morph.
func NewRelation(sourceID, targetID, name string, opts RelationOptions) (*Relation, error) {
	if sourceID == "" || targetID == "" || name == "" {
		return nil, &ErrInvalidName{BaseName: name}
	}
	return &Relation{
		ID:       DeriveRelationID(sourceID, targetID, name),
		SourceID: sourceID,
		TargetID: targetID,
		Name:     name,
		Adverb:   opts.Adverb,
		Modality: opts.Modality,
		MorphIDs: []string{},
	}, nil
}
