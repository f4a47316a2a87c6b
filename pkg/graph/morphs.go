package graph

import (
	"git.canoozie.net/riddling/polygraph/pkg/model"
)

// AddMorph creates a new empty morph on an existing node. The new morph
// is not activated; callers switch with SetActiveMorph when they want to
// author into it.
func (s *Store) AddMorph(nodeID, name string) (*model.Morph, error) {
	unlock := s.locks.lock(nodeID)
	defer unlock()

	node, exists, err := s.GetNode(nodeID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &model.ErrNodeNotFound{ID: nodeID}
	}

	morph := model.NewMorph(nodeID, name)
	node.Morphs = append(node.Morphs, morph)

	if err := s.putNode(node); err != nil {
		return nil, err
	}

	s.logger.Debug("Added morph %s (%s) to node %s", morph.ID, name, nodeID)
	return &morph, nil
}

// SetActiveMorph switches which morph new relations and attributes
// attach to. The morph must already be present in the node's morph list;
// this preserves the invariant that the active morph always resolves.
func (s *Store) SetActiveMorph(nodeID, morphID string) error {
	unlock := s.locks.lock(nodeID)
	defer unlock()

	node, exists, err := s.GetNode(nodeID)
	if err != nil {
		return err
	}
	if !exists {
		return &model.ErrNodeNotFound{ID: nodeID}
	}

	if node.FindMorph(morphID) == nil {
		return &model.ErrMorphNotFound{NodeID: nodeID, MorphID: morphID}
	}

	node.ActiveMorphID = morphID
	if err := s.putNode(node); err != nil {
		return err
	}

	s.logger.Debug("Set active morph of node %s to %s", nodeID, morphID)
	return nil
}
