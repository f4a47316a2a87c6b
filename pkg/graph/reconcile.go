package graph

// ReconcileStats reports what a reconciliation pass changed.
type ReconcileStats struct {
	// ReattachedRelations counts relations that existed in the store but
	// were not referenced by any morph of their source node.
	ReattachedRelations int
	// ReattachedAttributes counts attributes in the same situation.
	ReattachedAttributes int
	// PrunedRefs counts morph references whose target entity no longer
	// exists in the store.
	PrunedRefs int
}

// Reconcile repairs the recoverable inconsistencies the store can get
// into: a crash between the child-entity write and the parent morph
// patch leaves an orphaned relation or attribute, which is re-attached
// to the source node's active morph; morph references to entities that
// no longer exist are pruned. Reconcile never deletes entities — a
// relation whose source node is gone is left in place, since no-cascade
// deletion is a documented store behavior, not damage to repair.
//
// Intended to run once at startup, before concurrent writers.
func (s *Store) Reconcile() (ReconcileStats, error) {
	var stats ReconcileStats

	relations, err := s.ListRelations()
	if err != nil {
		return stats, err
	}
	for _, relation := range relations {
		reattached, err := s.reattach(relation.SourceID, relation.ID, false)
		if err != nil {
			return stats, err
		}
		if reattached {
			stats.ReattachedRelations++
		}
	}

	attributes, err := s.ListAttributes()
	if err != nil {
		return stats, err
	}
	for _, attribute := range attributes {
		reattached, err := s.reattach(attribute.SourceID, attribute.ID, true)
		if err != nil {
			return stats, err
		}
		if reattached {
			stats.ReattachedAttributes++
		}
	}

	pruned, err := s.pruneDanglingRefs()
	if err != nil {
		return stats, err
	}
	stats.PrunedRefs = pruned

	if stats.ReattachedRelations > 0 || stats.ReattachedAttributes > 0 || stats.PrunedRefs > 0 {
		s.logger.Info("Reconcile: reattached %d relations, %d attributes; pruned %d refs",
			stats.ReattachedRelations, stats.ReattachedAttributes, stats.PrunedRefs)
	}
	return stats, nil
}

// reattach adds the child ID to the source node's active morph if no
// morph of that node references it. Returns true if the node changed.
func (s *Store) reattach(sourceID, childID string, isAttribute bool) (bool, error) {
	unlock := s.locks.lock(sourceID)
	defer unlock()

	node, exists, err := s.GetNode(sourceID)
	if err != nil || !exists {
		return false, err
	}

	for i := range node.Morphs {
		refs := node.Morphs[i].RelationIDs
		if isAttribute {
			refs = node.Morphs[i].AttributeIDs
		}
		for _, id := range refs {
			if id == childID {
				return false, nil
			}
		}
	}

	active := node.ActiveMorph()
	if active == nil {
		return false, nil
	}
	if isAttribute {
		active.AddAttributeRef(childID)
	} else {
		active.AddRelationRef(childID)
	}

	if err := s.putNode(node); err != nil {
		return false, err
	}
	return true, nil
}

// pruneDanglingRefs removes morph references to relations or attributes
// that no longer exist in the store.
func (s *Store) pruneDanglingRefs() (int, error) {
	nodes, err := s.ListNodes()
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, listed := range nodes {
		unlock := s.locks.lock(listed.ID)

		// Re-read under the lock; the listing may be stale
		node, exists, err := s.GetNode(listed.ID)
		if err != nil || !exists {
			unlock()
			if err != nil {
				return pruned, err
			}
			continue
		}

		changed := false
		for i := range node.Morphs {
			morph := &node.Morphs[i]

			kept := morph.RelationIDs[:0]
			for _, id := range morph.RelationIDs {
				if _, exists, err := s.GetRelation(id); err != nil {
					unlock()
					return pruned, err
				} else if exists {
					kept = append(kept, id)
				} else {
					pruned++
					changed = true
				}
			}
			morph.RelationIDs = kept

			keptAttrs := morph.AttributeIDs[:0]
			for _, id := range morph.AttributeIDs {
				if _, exists, err := s.GetAttribute(id); err != nil {
					unlock()
					return pruned, err
				} else if exists {
					keptAttrs = append(keptAttrs, id)
				} else {
					pruned++
					changed = true
				}
			}
			morph.AttributeIDs = keptAttrs
		}

		if changed {
			if err := s.putNode(node); err != nil {
				unlock()
				return pruned, err
			}
		}
		unlock()
	}
	return pruned, nil
}
