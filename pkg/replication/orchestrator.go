package replication

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"git.canoozie.net/riddling/polygraph/pkg/model"
	"git.canoozie.net/riddling/polygraph/pkg/storage"
)

// Orchestrator errors
var (
	ErrAlreadyJoined = errors.New("orchestrator has already joined the network")
	ErrNilEngine     = errors.New("orchestrator requires an engine")
)

// Settings holds the timeouts applied to replication sessions.
type Settings struct {
	// DialTimeout bounds the TCP and websocket handshake when dialing
	// a peer.
	DialTimeout time.Duration

	// HandshakeTimeout bounds the protocol-level hello exchange.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds every frame write on an established session.
	WriteTimeout time.Duration
}

// DefaultSettings returns the timeouts used when a Config leaves
// Settings zero.
func DefaultSettings() Settings {
	return Settings{
		DialTimeout:      5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// Config holds the configuration for an Orchestrator.
type Config struct {
	// Engine is the storage engine to replicate. Required.
	Engine *storage.Engine

	// ListenAddr is the address the sync endpoint listens on when
	// JoinNetwork is called, e.g. ":7474" or "127.0.0.1:0".
	ListenAddr string

	// Logger receives orchestrator and session events. Defaults to the
	// package default logger.
	Logger model.Logger

	// Settings holds session timeouts. Zero values are replaced by
	// DefaultSettings.
	Settings Settings
}

// Orchestrator connects a storage engine to its peers. It serves the
// store's sync endpoint for inbound peers and dials outbound ones;
// every connection becomes a symmetric session exchanging log records.
type Orchestrator struct {
	mu       sync.Mutex
	engine   *storage.Engine
	logger   model.Logger
	settings Settings

	listenAddr string
	listener   net.Listener
	server     *http.Server

	// rootCtx bounds the lifetime of every session; LeaveNetwork
	// cancels it.
	rootCtx    context.Context
	rootCancel context.CancelFunc

	sessions sync.WaitGroup
	active   int
	joined   bool

	upgrader websocket.Upgrader
}

// NewOrchestrator creates an orchestrator for the given engine. It does
// not touch the network until JoinNetwork or SyncWithPeer is called.
func NewOrchestrator(config Config) (*Orchestrator, error) {
	if config.Engine == nil {
		return nil, ErrNilEngine
	}
	if config.Logger == nil {
		config.Logger = model.GetDefaultLogger()
	}
	if config.Settings == (Settings{}) {
		config.Settings = DefaultSettings()
	}

	return &Orchestrator{
		engine:     config.Engine,
		logger:     config.Logger,
		settings:   config.Settings,
		listenAddr: config.ListenAddr,
	}, nil
}

// syncPath returns the HTTP path of the sync endpoint. Peers serving a
// different store land on a 404 before any session state exists.
func (o *Orchestrator) syncPath() string {
	return "/v1/sync/" + o.engine.DiscoveryKey()
}

// JoinNetwork starts serving the sync endpoint so peers can dial in.
// Calling it while joined returns ErrAlreadyJoined.
func (o *Orchestrator) JoinNetwork(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.joined {
		return ErrAlreadyJoined
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", o.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", o.listenAddr, err)
	}

	o.ensureRootLocked()

	mux := http.NewServeMux()
	mux.HandleFunc(o.syncPath(), o.handleSync)
	o.listener = listener
	server := &http.Server{Handler: mux}
	o.server = server
	o.joined = true

	o.sessions.Add(1)
	go func() {
		defer o.sessions.Done()
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			o.logger.Error("sync listener failed: %v", err)
		}
	}()

	o.logger.Info("joined network: serving %s on %s", o.syncPath(), listener.Addr())
	return nil
}

// LeaveNetwork stops the listener and tears down every session,
// inbound and outbound. It blocks until all of them have finished and
// is a no-op when nothing was ever started.
func (o *Orchestrator) LeaveNetwork() error {
	o.mu.Lock()
	if o.rootCancel != nil {
		o.rootCancel()
		o.rootCancel = nil
		o.rootCtx = nil
	}
	server := o.server
	o.server = nil
	o.listener = nil
	o.joined = false
	o.mu.Unlock()

	if server != nil {
		server.Close()
	}
	o.sessions.Wait()

	o.logger.Info("left network")
	return nil
}

// Addr returns the address the sync endpoint is bound to, or empty when
// not joined. Useful when ListenAddr asked for an ephemeral port.
func (o *Orchestrator) Addr() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.listener == nil {
		return ""
	}
	return o.listener.Addr().String()
}

// SyncWithPeer dials a peer's sync endpoint and starts a session with
// it. It returns once the handshake has completed; the session then
// runs in the background until the peer hangs up or LeaveNetwork is
// called. remoteAddr is a host:port or a ws:// URL.
func (o *Orchestrator) SyncWithPeer(ctx context.Context, remoteAddr string) error {
	endpoint := remoteAddr
	if !strings.Contains(endpoint, "://") {
		endpoint = "ws://" + endpoint
	}
	endpoint = strings.TrimSuffix(endpoint, "/") + o.syncPath()

	dialer := websocket.Dialer{HandshakeTimeout: o.settings.DialTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return ErrDiscoveryKeyMismatch
		}
		return fmt.Errorf("failed to dial peer %s: %w", remoteAddr, err)
	}

	peerID, err := o.handshake(conn)
	if err != nil {
		conn.Close()
		return err
	}

	o.mu.Lock()
	o.ensureRootLocked()
	rootCtx := o.rootCtx
	o.sessions.Add(1)
	o.mu.Unlock()

	sess := newSession(conn, peerID, o.engine, o.logger, o.settings)
	o.logger.Info("session %s: connected to peer %s at %s", sess.id, peerID, remoteAddr)

	go func() {
		defer o.sessions.Done()
		o.runSession(rootCtx, sess)
	}()
	return nil
}

// runSession counts the session while it runs; ActiveSessions exposes
// the count.
func (o *Orchestrator) runSession(ctx context.Context, sess *session) {
	o.mu.Lock()
	o.active++
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.active--
		o.mu.Unlock()
	}()

	sess.run(ctx)
}

// ActiveSessions returns the number of established peer sessions,
// inbound and outbound.
func (o *Orchestrator) ActiveSessions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// handleSync upgrades an inbound peer connection and runs its session
// to completion.
func (o *Orchestrator) handleSync(w http.ResponseWriter, r *http.Request) {
	// Register with the session group while still joined. The joined
	// check and the Add share the lock with LeaveNetwork, so a handler
	// can never Add after LeaveNetwork has started waiting on a drained
	// group.
	o.mu.Lock()
	if !o.joined {
		o.mu.Unlock()
		http.Error(w, "not accepting sessions", http.StatusServiceUnavailable)
		return
	}
	o.sessions.Add(1)
	rootCtx := o.rootCtx
	o.mu.Unlock()
	defer o.sessions.Done()

	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		o.logger.Warn("failed to upgrade peer connection from %s: %v", r.RemoteAddr, err)
		return
	}

	peerID, err := o.handshake(conn)
	if err != nil {
		o.logger.Warn("handshake with %s failed: %v", r.RemoteAddr, err)
		conn.Close()
		return
	}

	sess := newSession(conn, peerID, o.engine, o.logger, o.settings)
	o.logger.Info("session %s: accepted peer %s from %s", sess.id, peerID, r.RemoteAddr)
	o.runSession(rootCtx, sess)
}

// handshake exchanges hello frames and verifies the peer replicates the
// same store. Both sides send first and read second, so the exchange
// has no server/client asymmetry.
func (o *Orchestrator) handshake(conn *websocket.Conn) (string, error) {
	hello := message{
		Type:         messageHello,
		DiscoveryKey: o.engine.DiscoveryKey(),
		ReplicaID:    o.engine.ReplicaID(),
	}
	conn.SetWriteDeadline(time.Now().Add(o.settings.HandshakeTimeout))
	if err := writeMessage(conn, hello); err != nil {
		return "", fmt.Errorf("failed to send hello: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(o.settings.HandshakeTimeout))
	msg, err := readMessage(conn)
	if err != nil {
		return "", fmt.Errorf("failed to read hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	if msg.Type != messageHello {
		return "", ErrUnexpectedMessage
	}
	if msg.DiscoveryKey != o.engine.DiscoveryKey() {
		return "", ErrDiscoveryKeyMismatch
	}
	return msg.ReplicaID, nil
}

func (o *Orchestrator) ensureRootLocked() {
	if o.rootCtx == nil {
		o.rootCtx, o.rootCancel = context.WithCancel(context.Background())
	}
}
