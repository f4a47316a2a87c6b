package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"git.canoozie.net/riddling/polygraph/pkg/common"
	"git.canoozie.net/riddling/polygraph/pkg/model"
)

func TestReconcileReattachesOrphans(t *testing.T) {
	store := testStore(t)

	_, err := store.AddNode("Water", model.NodeOptions{})
	require.NoError(t, err)
	_, err = store.AddNode("Hydrogen", model.NodeOptions{})
	require.NoError(t, err)

	// Simulate a crash between the relation write and the morph patch by
	// persisting the child entities directly through the engine.
	orphanRel, err := model.NewRelation("hydrogen", "water", "part of", model.RelationOptions{})
	require.NoError(t, err)
	data, err := model.SerializeRelation(orphanRel)
	require.NoError(t, err)
	require.NoError(t, store.Engine().Put(common.RelationKey(orphanRel.ID), data))

	orphanAttr, err := model.NewAttribute("water", "chemical formula", "H2O", model.AttributeOptions{})
	require.NoError(t, err)
	data, err = model.SerializeAttribute(orphanAttr)
	require.NoError(t, err)
	require.NoError(t, store.Engine().Put(common.AttributeKey(orphanAttr.ID), data))

	stats, err := store.Reconcile()
	require.NoError(t, err)
	require.Equal(t, 1, stats.ReattachedRelations)
	require.Equal(t, 1, stats.ReattachedAttributes)
	require.Zero(t, stats.PrunedRefs)

	source, _, err := store.GetNode("hydrogen")
	require.NoError(t, err)
	require.Equal(t, []string{orphanRel.ID}, source.ActiveMorph().RelationIDs)

	node, _, err := store.GetNode("water")
	require.NoError(t, err)
	require.Equal(t, []string{orphanAttr.ID}, node.ActiveMorph().AttributeIDs)

	// A second pass finds nothing to do
	stats, err = store.Reconcile()
	require.NoError(t, err)
	require.Zero(t, stats.ReattachedRelations)
	require.Zero(t, stats.ReattachedAttributes)
}

func TestReconcilePrunesDanglingRefs(t *testing.T) {
	store := testStore(t)

	_, err := store.AddNode("Water", model.NodeOptions{})
	require.NoError(t, err)
	_, err = store.AddNode("Hydrogen", model.NodeOptions{})
	require.NoError(t, err)

	relation, err := store.AddRelation("hydrogen", "water", "part of", model.RelationOptions{})
	require.NoError(t, err)
	attribute, err := store.AddAttribute("water", "chemical formula", "H2O", model.AttributeOptions{})
	require.NoError(t, err)

	// Remove the children behind the store's back
	require.NoError(t, store.Engine().Delete(common.RelationKey(relation.ID)))
	require.NoError(t, store.Engine().Delete(common.AttributeKey(attribute.ID)))

	stats, err := store.Reconcile()
	require.NoError(t, err)
	require.Equal(t, 2, stats.PrunedRefs)

	source, _, err := store.GetNode("hydrogen")
	require.NoError(t, err)
	require.Empty(t, source.ActiveMorph().RelationIDs)

	node, _, err := store.GetNode("water")
	require.NoError(t, err)
	require.Empty(t, node.ActiveMorph().AttributeIDs)
}

func TestReconcileLeavesDanglingRelationsAlone(t *testing.T) {
	store := testStore(t)

	_, err := store.AddNode("Water", model.NodeOptions{})
	require.NoError(t, err)
	_, err = store.AddNode("Hydrogen", model.NodeOptions{})
	require.NoError(t, err)

	relation, err := store.AddRelation("hydrogen", "water", "part of", model.RelationOptions{})
	require.NoError(t, err)

	// Deleting the target leaves the relation dangling; Reconcile must
	// not delete it
	require.NoError(t, store.DeleteNode("water"))

	_, err = store.Reconcile()
	require.NoError(t, err)

	_, exists, err := store.GetRelation(relation.ID)
	require.NoError(t, err)
	require.True(t, exists)
}
