package replication

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"git.canoozie.net/riddling/polygraph/pkg/model"
	"git.canoozie.net/riddling/polygraph/pkg/storage"
)

// session is one replication conversation with a single peer. A session
// is symmetric once established: both sides request missing records,
// stream answers, and forward live writes for as long as the connection
// holds.
type session struct {
	id       string
	peerID   string
	conn     *websocket.Conn
	engine   *storage.Engine
	logger   model.Logger
	settings Settings

	// outbound carries frames from the read loop (which answers peer
	// requests) to the write loop, which is the only goroutine allowed
	// to write to the connection.
	outbound chan message
}

func newSession(conn *websocket.Conn, peerID string, engine *storage.Engine, logger model.Logger, settings Settings) *session {
	return &session{
		id:       ulid.Make().String(),
		peerID:   peerID,
		conn:     conn,
		engine:   engine,
		logger:   logger,
		settings: settings,
		outbound: make(chan message, 256),
	}
}

// run drives the session until the context is cancelled, the peer hangs
// up, or either pump fails. It owns the connection and closes it on the
// way out.
func (s *session) run(parent context.Context) error {
	subID, live := s.engine.Subscribe()
	defer s.engine.Unsubscribe(subID)

	// Either pump ending, cleanly or not, ends the session: errgroup
	// only cancels on error, so each pump cancels on the way out.
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	// Unblock the read loop when the context ends: closing the
	// connection is the only way to interrupt a blocked ReadMessage.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		s.conn.Close()
	}()

	g.Go(func() error {
		defer cancel()
		return s.readLoop(ctx)
	})
	g.Go(func() error {
		defer cancel()
		return s.writeLoop(ctx, live)
	})

	// Open the conversation: ask the peer for everything we are
	// missing, by our current version map.
	s.enqueue(ctx, message{Type: messageRequest, Versions: s.engine.Versions()})

	err := g.Wait()
	if err != nil && parent.Err() == nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, storage.ErrEngineClosed) {
		s.logger.Warn("session %s with peer %s ended: %v", s.id, s.peerID, err)
	}
	return err
}

// readLoop consumes peer frames: requests are answered through the
// outbound channel, records are applied to the local engine.
func (s *session) readLoop(ctx context.Context) error {
	for {
		msg, err := readMessage(s.conn)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		switch msg.Type {
		case messageRequest:
			records := s.engine.RecordsAfter(msg.Versions)
			s.logger.Debug("session %s: peer %s requested catch-up, sending %d records", s.id, s.peerID, len(records))
			for i := range records {
				rec := records[i]
				s.enqueue(ctx, message{Type: messageRecord, Record: &rec})
			}
			s.enqueue(ctx, message{Type: messageDone})
		case messageRecord:
			if msg.Record == nil {
				return ErrUnexpectedMessage
			}
			if err := s.engine.Apply(*msg.Record); err != nil {
				return err
			}
		case messageDone:
			s.logger.Debug("session %s: caught up with peer %s", s.id, s.peerID)
		default:
			return ErrUnexpectedMessage
		}
	}
}

// writeLoop is the sole writer on the connection. It drains the
// outbound channel and forwards live engine writes, skipping records
// the peer originated itself.
func (s *session) writeLoop(ctx context.Context, live <-chan storage.Record) error {
	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(s.settings.WriteTimeout)
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return ctx.Err()
		case msg := <-s.outbound:
			if err := s.write(msg); err != nil {
				return err
			}
		case rec, ok := <-live:
			if !ok {
				// The engine closed underneath us; say goodbye and end
				// the session instead of reading the closed channel.
				deadline := time.Now().Add(s.settings.WriteTimeout)
				s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)
				return storage.ErrEngineClosed
			}
			if rec.Origin == s.peerID {
				continue
			}
			if err := s.write(message{Type: messageRecord, Record: &rec}); err != nil {
				return err
			}
		}
	}
}

func (s *session) write(msg message) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
	return writeMessage(s.conn, msg)
}

func (s *session) enqueue(ctx context.Context, msg message) {
	select {
	case s.outbound <- msg:
	case <-ctx.Done():
	}
}
