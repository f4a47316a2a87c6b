package graph

import (
	"errors"
	"fmt"

	"git.canoozie.net/riddling/polygraph/pkg/common"
	"git.canoozie.net/riddling/polygraph/pkg/model"
	"git.canoozie.net/riddling/polygraph/pkg/storage"
)

// AddRelation creates a relation between two existing nodes and attaches
// it to the source node's active morph. Both endpoints must exist and
// not be soft-deleted. Because relation IDs are derived from the triple,
// calling this twice with the same arguments persists the same relation
// and leaves exactly one reference in the morph.
//
// The relation write and the morph patch run under the source node's
// lock; a crash between them can leave a relation not yet referenced by
// any morph, which Reconcile repairs.
func (s *Store) AddRelation(sourceID, targetID, name string, opts model.RelationOptions) (*model.Relation, error) {
	unlock := s.locks.lock(sourceID)
	defer unlock()

	source, exists, err := s.GetNode(sourceID)
	if err != nil {
		return nil, err
	}
	if !exists || source.Deleted {
		return nil, &model.ErrMissingEndpoint{SourceID: sourceID, TargetID: targetID}
	}

	target, exists, err := s.GetNode(targetID)
	if err != nil {
		return nil, err
	}
	if !exists || target.Deleted {
		return nil, &model.ErrMissingEndpoint{SourceID: sourceID, TargetID: targetID}
	}

	relation, err := model.NewRelation(sourceID, targetID, name, opts)
	if err != nil {
		return nil, err
	}

	data, err := model.SerializeRelation(relation)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize relation: %w", err)
	}
	if err := s.engine.Put(common.RelationKey(relation.ID), data); err != nil {
		return nil, fmt.Errorf("failed to store relation: %w", err)
	}

	active := source.ActiveMorph()
	if active == nil {
		return nil, &model.ErrMorphNotFound{NodeID: sourceID, MorphID: source.ActiveMorphID}
	}
	if active.AddRelationRef(relation.ID) {
		if err := s.putNode(source); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("Added relation %s to morph %s", relation.ID, active.ID)
	return relation, nil
}

// GetRelation retrieves a relation by ID. Absence is not an error.
func (s *Store) GetRelation(id string) (*model.Relation, bool, error) {
	data, err := s.engine.Get(common.RelationKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to retrieve relation: %w", err)
	}

	relation, err := model.DeserializeRelation(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to deserialize relation: %w", err)
	}
	return relation, true, nil
}

// DeleteRelation removes a relation and detaches its ID from every morph
// of the source node that references it.
func (s *Store) DeleteRelation(id string) error {
	relation, exists, err := s.GetRelation(id)
	if err != nil {
		return err
	}
	if !exists {
		return &model.ErrRelationNotFound{ID: id}
	}

	unlock := s.locks.lock(relation.SourceID)
	defer unlock()

	if err := s.engine.Delete(common.RelationKey(id)); err != nil {
		return fmt.Errorf("failed to delete relation: %w", err)
	}

	source, sourceExists, err := s.GetNode(relation.SourceID)
	if err != nil {
		return err
	}
	if sourceExists {
		changed := false
		for i := range source.Morphs {
			if source.Morphs[i].RemoveRelationRef(id) {
				changed = true
			}
		}
		if changed {
			if err := s.putNode(source); err != nil {
				return err
			}
		}
	}

	s.logger.Debug("Deleted relation %s", id)
	return nil
}

// ListRelations returns all relations in key order.
func (s *Store) ListRelations() ([]*model.Relation, error) {
	start, end := common.PrefixRange(common.RelationKeyPrefix)
	entries, err := s.engine.Scan(start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to scan relations: %w", err)
	}

	relations := make([]*model.Relation, 0, len(entries))
	for _, entry := range entries {
		relation, err := model.DeserializeRelation(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize relation at %s: %w", entry.Key, err)
		}
		relations = append(relations, relation)
	}
	return relations, nil
}
