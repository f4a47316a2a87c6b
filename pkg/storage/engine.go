package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/oklog/ulid/v2"

	"git.canoozie.net/riddling/polygraph/pkg/model"
)

// Engine errors
var (
	ErrEngineClosed = errors.New("storage engine is closed")
)

const (
	logFileName     = "store.plog"
	replicaFileName = "REPLICA"

	// subscriberBuffer is the channel capacity for live record
	// subscriptions. A subscriber that falls this far behind starts
	// dropping records and must request a resync.
	subscriberBuffer = 1024
)

// Engine is the key-addressed, replicable substrate backing the graph
// store. It materializes an ordered in-memory table from an append-only
// log; every write becomes a log record stamped with this replica's ID
// and sequence number, and records arriving from peers are applied
// through Apply as valid overwrites of the local copy.
type Engine struct {
	mu          sync.RWMutex
	config      EngineConfig
	table       *Table
	log         *Log
	logger      model.Logger
	replicaID   string
	versions    map[string]uint64 // highest seq seen per origin
	history     []Record          // all records, replay order then append order
	subscribers map[uint64]chan Record
	nextSubID   uint64
	isOpen      bool
}

// EngineConfig holds configuration options for the storage engine
type EngineConfig struct {
	// Directory where the log and replica identity are stored
	DataDir string

	// StoreName identifies the logical store; replicas of the same
	// store share a discovery key derived from it
	StoreName string

	// Whether to sync log appends immediately to disk
	SyncWrites bool

	// Logger for storage engine operations
	Logger model.Logger
}

// DefaultEngineConfig returns a default configuration for the storage engine
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DataDir:    "data",
		StoreName:  "polygraph",
		SyncWrites: true,
		Logger:     model.DefaultLoggerInstance,
	}
}

// OpenEngine opens (or creates) a storage engine in the configured data
// directory and replays the log to rebuild the in-memory table.
func OpenEngine(config EngineConfig) (*Engine, error) {
	if config.Logger == nil {
		config.Logger = model.DefaultLoggerInstance
	}
	if config.StoreName == "" {
		config.StoreName = DefaultEngineConfig().StoreName
	}

	if err := os.MkdirAll(config.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	replicaID, err := loadOrCreateReplicaID(filepath.Join(config.DataDir, replicaFileName))
	if err != nil {
		return nil, err
	}

	log, err := OpenLog(LogConfig{
		Path:        filepath.Join(config.DataDir, logFileName),
		SyncOnWrite: config.SyncWrites,
		Logger:      config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}

	engine := &Engine{
		config:      config,
		table:       NewTable(),
		log:         log,
		logger:      config.Logger,
		replicaID:   replicaID,
		versions:    make(map[string]uint64),
		subscribers: make(map[uint64]chan Record),
		isOpen:      true,
	}

	if err := log.Replay(func(record Record) error {
		if err := engine.applyToTable(record); err != nil {
			return err
		}
		engine.trackRecord(record)
		return nil
	}); err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to replay log: %w", err)
	}

	engine.logger.Info("Opened storage engine in %s (replica %s, %d keys)",
		config.DataDir, replicaID, engine.table.Len())
	return engine, nil
}

// loadOrCreateReplicaID reads the persisted replica identity, minting a
// new ULID on first open.
func loadOrCreateReplicaID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, err := ulid.ParseStrict(id); err != nil {
			return "", fmt.Errorf("invalid replica identity in %s: %w", path, err)
		}
		return id, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read replica identity: %w", err)
	}

	id := ulid.Make().String()
	if err := os.WriteFile(path, []byte(id+"\n"), 0644); err != nil {
		return "", fmt.Errorf("failed to persist replica identity: %w", err)
	}
	return id, nil
}

// Close closes the engine and its log. Subscriber channels are closed so
// live tails terminate.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isOpen {
		return nil
	}

	e.isOpen = false

	for id, ch := range e.subscribers {
		close(ch)
		delete(e.subscribers, id)
	}

	if err := e.log.Close(); err != nil {
		return fmt.Errorf("failed to close log: %w", err)
	}

	e.logger.Info("Closed storage engine")
	return nil
}

// Put adds or updates a key-value pair. Values may be empty but not
// nil; rejecting nil here keeps it out of the log, so a put that
// succeeds is a put that replays.
func (e *Engine) Put(key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if value == nil {
		return ErrNilValue
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isOpen {
		return ErrEngineClosed
	}

	record := Record{
		Origin:    e.replicaID,
		Seq:       e.versions[e.replicaID] + 1,
		Type:      RecordPut,
		Key:       key,
		Value:     value,
		Timestamp: time.Now().UnixNano(),
	}
	return e.appendLocked(record)
}

// Delete removes a key. Deleting an absent key still appends a tombstone
// record so the removal replicates.
func (e *Engine) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isOpen {
		return ErrEngineClosed
	}

	record := Record{
		Origin:    e.replicaID,
		Seq:       e.versions[e.replicaID] + 1,
		Type:      RecordDelete,
		Key:       key,
		Timestamp: time.Now().UnixNano(),
	}
	return e.appendLocked(record)
}

// Apply applies a record received from a peer. Records from this replica
// or with an already-seen sequence number are ignored, which makes Apply
// idempotent and loop-safe; everything else overwrites the local copy
// with no veto.
func (e *Engine) Apply(record Record) error {
	if record.Key == "" {
		return ErrInvalidLogRecord
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isOpen {
		return ErrEngineClosed
	}

	if record.Origin == e.replicaID {
		return nil
	}
	if record.Seq <= e.versions[record.Origin] {
		return nil
	}

	return e.appendLocked(record)
}

// appendLocked writes a record to the log, applies it to the table, and
// notifies subscribers. Caller must hold the write lock.
func (e *Engine) appendLocked(record Record) error {
	if err := e.log.Append(record); err != nil {
		return fmt.Errorf("failed to append to log: %w", err)
	}

	if err := e.applyToTable(record); err != nil {
		return fmt.Errorf("failed to apply record to table: %w", err)
	}
	e.trackRecord(record)

	for id, ch := range e.subscribers {
		select {
		case ch <- record:
		default:
			e.logger.Warn("Subscriber %d is behind, dropping record %s@%d", id, record.Origin, record.Seq)
		}
	}
	return nil
}

func (e *Engine) applyToTable(record Record) error {
	switch record.Type {
	case RecordPut:
		value := record.Value
		if value == nil {
			// Wire and replay paths cannot distinguish nil from empty,
			// so a put always lands as at least an empty value.
			value = []byte{}
		}
		return e.table.Put(record.Key, value)
	case RecordDelete:
		e.table.Delete(record.Key)
	}
	return nil
}

func (e *Engine) trackRecord(record Record) {
	if record.Seq > e.versions[record.Origin] {
		e.versions[record.Origin] = record.Seq
	}
	e.history = append(e.history, record)
}

// Get retrieves a value by key.
func (e *Engine) Get(key string) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.isOpen {
		return nil, ErrEngineClosed
	}

	return e.table.Get(key)
}

// Contains checks if a key exists.
func (e *Engine) Contains(key string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.isOpen {
		return false, ErrEngineClosed
	}

	return e.table.Contains(key), nil
}

// Scan returns all entries with start <= key < end in key order. An
// empty end bound scans to the end of the keyspace.
func (e *Engine) Scan(start, end string) ([]Entry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.isOpen {
		return nil, ErrEngineClosed
	}

	return e.table.Scan(start, end), nil
}

// Sync ensures all pending log appends are flushed to disk.
func (e *Engine) Sync() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.isOpen {
		return ErrEngineClosed
	}

	return e.log.Sync()
}

// ReplicaID returns this replica's persistent identity.
func (e *Engine) ReplicaID() string {
	return e.replicaID
}

// DiscoveryKey returns the topic key peers of this store rendezvous on,
// derived from the store name.
func (e *Engine) DiscoveryKey() string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(e.config.StoreName))
}

// Versions returns the highest sequence number seen per origin replica.
func (e *Engine) Versions() map[string]uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	versions := make(map[string]uint64, len(e.versions))
	for origin, seq := range e.versions {
		versions[origin] = seq
	}
	return versions
}

// RecordsAfter returns every record not covered by the given version
// map, in log order. This is the sparse pull a syncing peer performs: it
// sends what it has seen and receives only what it is missing.
func (e *Engine) RecordsAfter(versions map[string]uint64) []Record {
	e.mu.RLock()
	defer e.mu.RUnlock()

	missing := make([]Record, 0)
	for _, record := range e.history {
		if record.Seq > versions[record.Origin] {
			missing = append(missing, record)
		}
	}
	return missing
}

// Subscribe registers a live tail of the log. The returned channel
// receives every record appended after the call and is closed when the
// engine closes or Unsubscribe is called.
func (e *Engine) Subscribe() (uint64, <-chan Record) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSubID
	e.nextSubID++
	ch := make(chan Record, subscriberBuffer)
	e.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a live tail and closes its channel.
func (e *Engine) Unsubscribe(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ch, exists := e.subscribers[id]; exists {
		close(ch)
		delete(e.subscribers, id)
	}
}

// Stats returns statistics about the storage engine
func (e *Engine) Stats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return EngineStats{
		IsOpen:     e.isOpen,
		Keys:       e.table.Len(),
		TableSize:  e.table.Size(),
		LogRecords: len(e.history),
		Replicas:   len(e.versions),
	}
}

// EngineStats contains statistics about the storage engine
type EngineStats struct {
	IsOpen     bool   // Whether the engine is open
	Keys       int    // Number of live keys in the table
	TableSize  uint64 // Size of the table in bytes
	LogRecords int    // Total records in the log, all origins
	Replicas   int    // Number of distinct origin replicas seen
}
