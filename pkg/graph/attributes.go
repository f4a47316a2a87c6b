package graph

import (
	"errors"
	"fmt"

	"git.canoozie.net/riddling/polygraph/pkg/common"
	"git.canoozie.net/riddling/polygraph/pkg/model"
	"git.canoozie.net/riddling/polygraph/pkg/storage"
)

// AddAttribute creates an attribute on an existing node and attaches it
// to the node's active morph. Attribute IDs are content-addressed, so
// repeating the same (source, name, value) resolves to the same entity,
// while a different value for the same name creates a second attribute.
func (s *Store) AddAttribute(sourceID, name, value string, opts model.AttributeOptions) (*model.Attribute, error) {
	attribute, err := model.NewAttribute(sourceID, name, value, opts)
	if err != nil {
		return nil, err
	}
	return s.attachAttribute(attribute)
}

// AddFunction creates a derived attribute carrying the expression that
// computes its value, with the same morph bookkeeping as AddAttribute.
func (s *Store) AddFunction(sourceID, name, value, expression string, opts model.AttributeOptions) (*model.Attribute, error) {
	attribute, err := model.NewFunctionAttribute(sourceID, name, value, expression, opts)
	if err != nil {
		return nil, err
	}
	return s.attachAttribute(attribute)
}

// attachAttribute persists the attribute and appends its ID to the
// source node's active morph, both under the source node's lock.
func (s *Store) attachAttribute(attribute *model.Attribute) (*model.Attribute, error) {
	unlock := s.locks.lock(attribute.SourceID)
	defer unlock()

	source, exists, err := s.GetNode(attribute.SourceID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &model.ErrMissingSource{SourceID: attribute.SourceID}
	}

	data, err := model.SerializeAttribute(attribute)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize attribute: %w", err)
	}
	if err := s.engine.Put(common.AttributeKey(attribute.ID), data); err != nil {
		return nil, fmt.Errorf("failed to store attribute: %w", err)
	}

	active := source.ActiveMorph()
	if active == nil {
		return nil, &model.ErrMorphNotFound{NodeID: source.ID, MorphID: source.ActiveMorphID}
	}
	if active.AddAttributeRef(attribute.ID) {
		if err := s.putNode(source); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("Added attribute %s to morph %s", attribute.ID, active.ID)
	return attribute, nil
}

// GetAttribute retrieves an attribute by ID. Absence is not an error.
func (s *Store) GetAttribute(id string) (*model.Attribute, bool, error) {
	data, err := s.engine.Get(common.AttributeKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to retrieve attribute: %w", err)
	}

	attribute, err := model.DeserializeAttribute(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to deserialize attribute: %w", err)
	}
	return attribute, true, nil
}

// DeleteAttribute removes an attribute and detaches its ID from every
// morph of the source node that references it.
func (s *Store) DeleteAttribute(id string) error {
	attribute, exists, err := s.GetAttribute(id)
	if err != nil {
		return err
	}
	if !exists {
		return &model.ErrAttributeNotFound{ID: id}
	}

	unlock := s.locks.lock(attribute.SourceID)
	defer unlock()

	if err := s.engine.Delete(common.AttributeKey(id)); err != nil {
		return fmt.Errorf("failed to delete attribute: %w", err)
	}

	source, sourceExists, err := s.GetNode(attribute.SourceID)
	if err != nil {
		return err
	}
	if sourceExists {
		changed := false
		for i := range source.Morphs {
			if source.Morphs[i].RemoveAttributeRef(id) {
				changed = true
			}
		}
		if changed {
			if err := s.putNode(source); err != nil {
				return err
			}
		}
	}

	s.logger.Debug("Deleted attribute %s", id)
	return nil
}

// ListAttributes returns all attributes in key order.
func (s *Store) ListAttributes() ([]*model.Attribute, error) {
	start, end := common.PrefixRange(common.AttributeKeyPrefix)
	entries, err := s.engine.Scan(start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to scan attributes: %w", err)
	}

	attributes := make([]*model.Attribute, 0, len(entries))
	for _, entry := range entries {
		attribute, err := model.DeserializeAttribute(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize attribute at %s: %w", entry.Key, err)
		}
		attributes = append(attributes, attribute)
	}
	return attributes, nil
}
