package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"

	"git.canoozie.net/riddling/polygraph/pkg/graph"
	"git.canoozie.net/riddling/polygraph/pkg/model"
	"git.canoozie.net/riddling/polygraph/pkg/replication"
	"git.canoozie.net/riddling/polygraph/pkg/storage"
)

// config is populated from the environment.
type config struct {
	DataDir   string   `env:"POLYGRAPH_DATA_DIR" envDefault:"./data"`
	StoreName string   `env:"POLYGRAPH_STORE" envDefault:"polygraph"`
	Listen    string   `env:"POLYGRAPH_LISTEN" envDefault:":7474"`
	Peers     []string `env:"POLYGRAPH_PEERS" envSeparator:","`
	LogLevel  string   `env:"LOG_LEVEL" envDefault:"info"`
	SyncWrite bool     `env:"POLYGRAPH_SYNC_WRITES" envDefault:"true"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("Failed to parse configuration: %v", err)
	}

	logLevel := model.LogLevelInfo
	if cfg.LogLevel == "debug" {
		logLevel = model.LogLevelDebug
	}
	logger := model.NewZapLogger(logLevel)
	logger.Info("Starting polygraph replica")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	engineConfig := storage.DefaultEngineConfig()
	engineConfig.DataDir = cfg.DataDir
	engineConfig.StoreName = cfg.StoreName
	engineConfig.SyncWrites = cfg.SyncWrite
	engineConfig.Logger = logger

	engine, err := storage.OpenEngine(engineConfig)
	if err != nil {
		log.Fatalf("Failed to open storage engine: %v", err)
	}
	defer engine.Close()
	logger.Info("Replica %s serving store %q (discovery key %s)",
		engine.ReplicaID(), cfg.StoreName, engine.DiscoveryKey())

	// Repair any half-applied writes from a previous run before the
	// store goes on the network.
	store := graph.NewStore(engine, logger)
	stats, err := store.Reconcile()
	if err != nil {
		log.Fatalf("Failed to reconcile store: %v", err)
	}
	if stats.ReattachedRelations+stats.ReattachedAttributes+stats.PrunedRefs > 0 {
		logger.Info("Reconcile repaired store: %d relations reattached, %d attributes reattached, %d dangling refs pruned",
			stats.ReattachedRelations, stats.ReattachedAttributes, stats.PrunedRefs)
	}

	orch, err := replication.NewOrchestrator(replication.Config{
		Engine:     engine,
		ListenAddr: cfg.Listen,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	ctx := context.Background()
	if err := orch.JoinNetwork(ctx); err != nil {
		log.Fatalf("Failed to join network: %v", err)
	}

	for _, peer := range cfg.Peers {
		if err := orch.SyncWithPeer(ctx, peer); err != nil {
			logger.Warn("Failed to sync with peer %s: %v", peer, err)
		}
	}

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("Shutting down")
	if err := orch.LeaveNetwork(); err != nil {
		logger.Error("Failed to leave network: %v", err)
	}
	if err := engine.Close(); err != nil {
		logger.Error("Failed to close engine: %v", err)
	}
}
