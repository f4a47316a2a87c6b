// Package graph implements CRUD over poly-morphic knowledge graph
// entities with morph-consistency enforcement, backed by the replicable
// key-value engine in pkg/storage.
package graph

import (
	"errors"
	"fmt"

	"git.canoozie.net/riddling/polygraph/pkg/common"
	"git.canoozie.net/riddling/polygraph/pkg/model"
	"git.canoozie.net/riddling/polygraph/pkg/storage"
)

// Store provides graph-level operations over the storage engine. All
// read-modify-write sequences touching a node run under that node's
// lock, so the two-step "persist child entity, then patch parent morph"
// writes in AddRelation/AddAttribute cannot interleave with a concurrent
// update of the same node.
//
// Entities arriving through the engine's replication path bypass this
// layer entirely and overwrite local copies directly.
type Store struct {
	engine *storage.Engine
	logger model.Logger
	locks  *nodeLocks
}

// NewStore creates a graph store over the given engine.
func NewStore(engine *storage.Engine, logger model.Logger) *Store {
	if logger == nil {
		logger = model.DefaultLoggerInstance
	}
	return &Store{
		engine: engine,
		logger: logger,
		locks:  newNodeLocks(),
	}
}

// Engine exposes the underlying storage engine, e.g. for wiring a
// replication orchestrator.
func (s *Store) Engine() *storage.Engine {
	return s.engine
}

// AddNode constructs a node from the base name and persists it. Adding a
// name that derives to an existing ID overwrites that node; the
// deterministic derivation makes this idempotent rather than an error.
func (s *Store) AddNode(baseName string, opts model.NodeOptions) (*model.Node, error) {
	node, err := model.NewNode(baseName, opts)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(node.ID)
	defer unlock()

	if err := s.putNode(node); err != nil {
		return nil, err
	}

	s.logger.Debug("Added node %s (%s)", node.ID, node.BaseName)
	return node, nil
}

// GetNode retrieves a node by ID. Absence is not an error: the second
// return value reports whether the node exists.
func (s *Store) GetNode(id string) (*model.Node, bool, error) {
	data, err := s.engine.Get(common.NodeKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to retrieve node: %w", err)
	}

	node, err := model.DeserializeNode(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to deserialize node: %w", err)
	}
	return node, true, nil
}

// NodePatch describes a shallow field-overwrite update of a node. Only
// non-nil fields are applied. Callers patching Morphs or ActiveMorphID
// are responsible for morph-list integrity.
type NodePatch struct {
	BaseName      *string
	Adjective     *string
	Quantifier    *string
	Role          *string
	Description   *string
	ParentTypes   []string
	Morphs        []model.Morph
	ActiveMorphID *string
	Deleted       *bool
}

// UpdateNode merges the patch into the stored node and persists it.
func (s *Store) UpdateNode(id string, patch NodePatch) (*model.Node, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	node, exists, err := s.GetNode(id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &model.ErrNodeNotFound{ID: id}
	}

	if patch.BaseName != nil {
		node.BaseName = *patch.BaseName
	}
	if patch.Adjective != nil {
		node.Adjective = *patch.Adjective
	}
	if patch.Quantifier != nil {
		node.Quantifier = *patch.Quantifier
	}
	if patch.Role != nil {
		node.Role = *patch.Role
	}
	if patch.Description != nil {
		node.Description = *patch.Description
	}
	if patch.ParentTypes != nil {
		node.ParentTypes = patch.ParentTypes
	}
	if patch.Morphs != nil {
		node.Morphs = patch.Morphs
	}
	if patch.ActiveMorphID != nil {
		node.ActiveMorphID = *patch.ActiveMorphID
	}
	if patch.Deleted != nil {
		node.Deleted = *patch.Deleted
	}

	if err := s.putNode(node); err != nil {
		return nil, err
	}

	s.logger.Debug("Updated node %s", id)
	return node, nil
}

// DeleteNode removes a node from the store. Relations and attributes
// referencing the node are NOT cascade-deleted; dangling references are
// a documented limitation that Reconcile does not repair either (it
// never invents deletes).
func (s *Store) DeleteNode(id string) error {
	unlock := s.locks.lock(id)
	defer unlock()

	_, exists, err := s.GetNode(id)
	if err != nil {
		return err
	}
	if !exists {
		return &model.ErrNodeNotFound{ID: id}
	}

	if err := s.engine.Delete(common.NodeKey(id)); err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}

	s.logger.Debug("Deleted node %s", id)
	return nil
}

// ListNodes returns all nodes in key order.
func (s *Store) ListNodes() ([]*model.Node, error) {
	start, end := common.PrefixRange(common.NodeKeyPrefix)
	entries, err := s.engine.Scan(start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to scan nodes: %w", err)
	}

	nodes := make([]*model.Node, 0, len(entries))
	for _, entry := range entries {
		node, err := model.DeserializeNode(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize node at %s: %w", entry.Key, err)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// putNode serializes and persists a node.
func (s *Store) putNode(node *model.Node) error {
	data, err := model.SerializeNode(node)
	if err != nil {
		return fmt.Errorf("failed to serialize node: %w", err)
	}
	if err := s.engine.Put(common.NodeKey(node.ID), data); err != nil {
		return fmt.Errorf("failed to store node: %w", err)
	}
	return nil
}
