package replication

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"git.canoozie.net/riddling/polygraph/pkg/model"
	"git.canoozie.net/riddling/polygraph/pkg/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openTestEngine(t *testing.T, storeName string) *storage.Engine {
	t.Helper()

	engine, err := storage.OpenEngine(storage.EngineConfig{
		DataDir:   t.TempDir(),
		StoreName: storeName,
		Logger:    model.NewNoOpLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func newTestOrchestrator(t *testing.T, engine *storage.Engine) *Orchestrator {
	t.Helper()

	orch, err := NewOrchestrator(Config{
		Engine:     engine,
		ListenAddr: "127.0.0.1:0",
		Logger:     model.NewNoOpLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { orch.LeaveNetwork() })
	return orch
}

func waitForKey(t *testing.T, engine *storage.Engine, key string) {
	t.Helper()

	require.Eventually(t, func() bool {
		ok, err := engine.Contains(key)
		return err == nil && ok
	}, 5*time.Second, 10*time.Millisecond, "key %q never arrived", key)
}

func TestNewOrchestratorRequiresEngine(t *testing.T) {
	_, err := NewOrchestrator(Config{})
	require.ErrorIs(t, err, ErrNilEngine)
}

func TestJoinLeaveLifecycle(t *testing.T) {
	engine := openTestEngine(t, "lifecycle")
	orch := newTestOrchestrator(t, engine)
	ctx := context.Background()

	require.NoError(t, orch.JoinNetwork(ctx))
	require.NotEmpty(t, orch.Addr())

	require.ErrorIs(t, orch.JoinNetwork(ctx), ErrAlreadyJoined)

	require.NoError(t, orch.LeaveNetwork())
	require.Empty(t, orch.Addr())

	// Leaving when not joined is a no-op, and a fresh join works.
	require.NoError(t, orch.LeaveNetwork())
	require.NoError(t, orch.JoinNetwork(ctx))
	require.NoError(t, orch.LeaveNetwork())
}

func TestSyncCatchesUpBothDirections(t *testing.T) {
	engineA := openTestEngine(t, "catchup")
	engineB := openTestEngine(t, "catchup")

	require.NoError(t, engineA.Put("nodes/water", []byte("a")))
	require.NoError(t, engineB.Put("nodes/hydrogen", []byte("b")))

	orchA := newTestOrchestrator(t, engineA)
	orchB := newTestOrchestrator(t, engineB)
	ctx := context.Background()

	require.NoError(t, orchA.JoinNetwork(ctx))
	require.NoError(t, orchB.SyncWithPeer(ctx, orchA.Addr()))

	waitForKey(t, engineB, "nodes/water")
	waitForKey(t, engineA, "nodes/hydrogen")
}

func TestSyncForwardsLiveWrites(t *testing.T) {
	engineA := openTestEngine(t, "live")
	engineB := openTestEngine(t, "live")

	orchA := newTestOrchestrator(t, engineA)
	orchB := newTestOrchestrator(t, engineB)
	ctx := context.Background()

	require.NoError(t, orchA.JoinNetwork(ctx))
	require.NoError(t, orchB.SyncWithPeer(ctx, orchA.Addr()))

	// Writes made after the session is up flow both ways.
	require.NoError(t, engineA.Put("nodes/oxygen", []byte("o")))
	waitForKey(t, engineB, "nodes/oxygen")

	require.NoError(t, engineB.Put("nodes/helium", []byte("h")))
	waitForKey(t, engineA, "nodes/helium")

	// Deletes replicate too.
	require.NoError(t, engineA.Delete("nodes/oxygen"))
	require.Eventually(t, func() bool {
		ok, err := engineB.Contains("nodes/oxygen")
		return err == nil && !ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSyncRelaysThroughMiddleReplica(t *testing.T) {
	engineA := openTestEngine(t, "relay")
	engineB := openTestEngine(t, "relay")
	engineC := openTestEngine(t, "relay")

	orchA := newTestOrchestrator(t, engineA)
	orchB := newTestOrchestrator(t, engineB)
	orchC := newTestOrchestrator(t, engineC)
	ctx := context.Background()

	// A <- B -> C: B is the only replica connected to both.
	require.NoError(t, orchA.JoinNetwork(ctx))
	require.NoError(t, orchC.JoinNetwork(ctx))
	require.NoError(t, orchB.SyncWithPeer(ctx, orchA.Addr()))
	require.NoError(t, orchB.SyncWithPeer(ctx, orchC.Addr()))

	require.NoError(t, engineA.Put("nodes/carbon", []byte("c")))
	waitForKey(t, engineB, "nodes/carbon")
	waitForKey(t, engineC, "nodes/carbon")
}

func TestSyncRejectsDifferentStore(t *testing.T) {
	engineA := openTestEngine(t, "store-one")
	engineB := openTestEngine(t, "store-two")

	orchA := newTestOrchestrator(t, engineA)
	orchB := newTestOrchestrator(t, engineB)
	ctx := context.Background()

	require.NoError(t, orchA.JoinNetwork(ctx))
	require.ErrorIs(t, orchB.SyncWithPeer(ctx, orchA.Addr()), ErrDiscoveryKeyMismatch)
}

func TestSyncUnreachablePeer(t *testing.T) {
	engine := openTestEngine(t, "unreachable")
	orch := newTestOrchestrator(t, engine)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.Error(t, orch.SyncWithPeer(ctx, "127.0.0.1:1"))
}

func TestSessionsEndWhenEngineCloses(t *testing.T) {
	engineA := openTestEngine(t, "engine-close")
	engineB := openTestEngine(t, "engine-close")

	orchA := newTestOrchestrator(t, engineA)
	orchB := newTestOrchestrator(t, engineB)
	ctx := context.Background()

	require.NoError(t, orchA.JoinNetwork(ctx))
	require.NoError(t, orchB.SyncWithPeer(ctx, orchA.Addr()))

	require.NoError(t, engineB.Put("nodes/neon", []byte("n")))
	waitForKey(t, engineA, "nodes/neon")

	require.Eventually(t, func() bool {
		return orchA.ActiveSessions() == 1 && orchB.ActiveSessions() == 1
	}, 5*time.Second, 10*time.Millisecond)

	// Closing the engine closes the session's live tail. Both ends must
	// wind down instead of pumping empty frames off the closed channel.
	require.NoError(t, engineA.Close())

	require.Eventually(t, func() bool {
		return orchA.ActiveSessions() == 0 && orchB.ActiveSessions() == 0
	}, 5*time.Second, 10*time.Millisecond)

	// The surviving replica's store is untouched by the teardown.
	exists, err := engineB.Contains("nodes/neon")
	require.NoError(t, err)
	require.True(t, exists)
}
