package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"git.canoozie.net/riddling/polygraph/pkg/graph"
	"git.canoozie.net/riddling/polygraph/pkg/model"
	"git.canoozie.net/riddling/polygraph/pkg/replication"
	"git.canoozie.net/riddling/polygraph/pkg/storage"
)

var (
	dataDir   = flag.String("data", "./data", "Path to the local replica's data directory")
	storeName = flag.String("store", "polygraph", "Name of the store the replica carries")
	op        = flag.String("op", "LIST_NODES", "The operation to execute")
	id        = flag.String("id", "", "Entity id (GET/DELETE operations, or the node for morph operations)")
	name      = flag.String("name", "", "Base name, relation name, attribute name, morph name, or morph id for SET_ACTIVE_MORPH")
	source    = flag.String("source", "", "Source node id (relations and attributes)")
	target    = flag.String("target", "", "Target node id (relations)")
	value     = flag.String("value", "", "Attribute value")
	expr      = flag.String("expr", "", "Function attribute expression")
	params    = flag.String("params", "", "JSON-encoded optional fields (adjective, adverb, modality, unit, ...)")
	peer      = flag.String("peer", "", "Peer address for SYNC, host:port")
)

func main() {
	flag.Parse()

	engineConfig := storage.DefaultEngineConfig()
	engineConfig.DataDir = *dataDir
	engineConfig.StoreName = *storeName
	engineConfig.Logger = model.NewNoOpLogger()

	engine, err := storage.OpenEngine(engineConfig)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer engine.Close()

	store := graph.NewStore(engine, model.NewNoOpLogger())

	result, err := execute(store, engine)
	if err != nil {
		errorResponse := map[string]interface{}{
			"error":     err.Error(),
			"operation": *op,
			"success":   false,
		}
		respJson, _ := json.MarshalIndent(errorResponse, "", "  ")
		fmt.Println(string(respJson))
		os.Exit(1)
	}

	prettyResponse, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal response: %v", err)
	}
	fmt.Println(string(prettyResponse))
}

func execute(store *graph.Store, engine *storage.Engine) (interface{}, error) {
	switch *op {
	case "ADD_NODE":
		var opts model.NodeOptions
		if err := parseParams(&opts); err != nil {
			return nil, err
		}
		return store.AddNode(*name, opts)
	case "GET_NODE":
		node, found, err := store.GetNode(*id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("node %q not found", *id)
		}
		return node, nil
	case "DELETE_NODE":
		return deleted(*id, store.DeleteNode(*id))
	case "LIST_NODES":
		return store.ListNodes()
	case "ADD_RELATION":
		var opts model.RelationOptions
		if err := parseParams(&opts); err != nil {
			return nil, err
		}
		return store.AddRelation(*source, *target, *name, opts)
	case "DELETE_RELATION":
		return deleted(*id, store.DeleteRelation(*id))
	case "LIST_RELATIONS":
		return store.ListRelations()
	case "ADD_ATTRIBUTE":
		var opts model.AttributeOptions
		if err := parseParams(&opts); err != nil {
			return nil, err
		}
		return store.AddAttribute(*source, *name, *value, opts)
	case "ADD_FUNCTION":
		var opts model.AttributeOptions
		if err := parseParams(&opts); err != nil {
			return nil, err
		}
		return store.AddFunction(*source, *name, *value, *expr, opts)
	case "DELETE_ATTRIBUTE":
		return deleted(*id, store.DeleteAttribute(*id))
	case "LIST_ATTRIBUTES":
		return store.ListAttributes()
	case "ADD_MORPH":
		return store.AddMorph(*id, *name)
	case "SET_ACTIVE_MORPH":
		if err := store.SetActiveMorph(*id, *name); err != nil {
			return nil, err
		}
		node, _, err := store.GetNode(*id)
		return node, err
	case "RECONCILE":
		return store.Reconcile()
	case "SYNC":
		return handleSync(engine)
	case "STATS":
		return engine.Stats(), nil
	default:
		flag.Usage()
		return nil, fmt.Errorf("unknown operation: %s", *op)
	}
}

// handleSync dials a peer, waits for both sides to drain, and reports
// the local version map. The client has no long-lived session: it
// leaves the network as soon as the store stops changing.
func handleSync(engine *storage.Engine) (interface{}, error) {
	if *peer == "" {
		return nil, fmt.Errorf("SYNC requires -peer")
	}

	orch, err := replication.NewOrchestrator(replication.Config{
		Engine: engine,
		Logger: model.NewNoOpLogger(),
	})
	if err != nil {
		return nil, err
	}
	defer orch.LeaveNetwork()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := orch.SyncWithPeer(ctx, *peer); err != nil {
		return nil, err
	}

	// The protocol has no completion signal visible here, so settle on
	// quiescence: stop once no record has arrived for a full beat.
	last := engine.Stats().LogRecords
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
		current := engine.Stats().LogRecords
		if current == last {
			return map[string]interface{}{
				"success":  true,
				"peer":     *peer,
				"records":  current,
				"versions": engine.Versions(),
			}, nil
		}
		last = current
	}
}

func parseParams(opts interface{}) error {
	if *params == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(*params), opts); err != nil {
		return fmt.Errorf("failed to parse parameters: %w", err)
	}
	return nil
}

func deleted(id string, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"deleted": id, "success": true}, nil
}
