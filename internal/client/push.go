// ABOUTME: WebSocket push session: request/confirm correlation plus event stream
// ABOUTME: Calls are bounded by a confirm timeout that maps to ErrPushUnavailable

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/corretora/chat-gateway/internal/gateway"
)

// ErrPushUnavailable means the push channel is down or did not confirm
// within the timeout. The caller may safely retry via pull with the same
// idempotency key: the server only confirms after the store write, so an
// unconfirmed send guarantees either no write or a write the retry will
// deduplicate.
var ErrPushUnavailable = errors.New("push channel unavailable")

// eventBufferSize bounds the broadcast event queue. Events past it are
// dropped; polling recovers the state.
const eventBufferSize = 64

// PushSession is one long-lived websocket connection to the gateway.
type PushSession struct {
	conn           *websocket.Conn
	confirmTimeout time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	pending map[string]chan *gateway.ServerFrame
	closed  bool

	events chan *gateway.ServerFrame
	done   chan struct{}
}

// DialPush opens a push session against the gateway at baseURL.
// confirmTimeout bounds how long Send and MarkRead wait for the server's
// confirmation before reporting ErrPushUnavailable.
func DialPush(ctx context.Context, baseURL, token string, confirmTimeout time.Duration, logger *slog.Logger) (*PushSession, error) {
	if logger == nil {
		logger = slog.Default()
	}

	wsURL := strings.Replace(baseURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL += "/api/ws?token=" + token

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPushUnavailable, err)
	}

	s := &PushSession{
		conn:           conn,
		confirmTimeout: confirmTimeout,
		logger:         logger.With("component", "push-session"),
		pending:        make(map[string]chan *gateway.ServerFrame),
		events:         make(chan *gateway.ServerFrame, eventBufferSize),
		done:           make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Events returns the stream of broadcast events (message-received,
// message-read) from other sessions. The channel closes when the
// session ends. A reconnected session sees only new events; missed
// history is recovered via pull.
func (s *PushSession) Events() <-chan *gateway.ServerFrame {
	return s.events
}

// Done is closed when the session has ended (socket dropped or Close).
func (s *PushSession) Done() <-chan struct{} {
	return s.done
}

// Send transmits a message over the push channel and waits for the
// server's confirmation. requestID is the idempotency key; reuse it on a
// pull retry after ErrPushUnavailable.
func (s *PushSession) Send(ctx context.Context, requestID, body string, contactID int64) (*gateway.MessageResponse, error) {
	frame, err := s.roundTrip(ctx, gateway.ClientFrame{
		Type:      "send_message",
		RequestID: requestID,
		Body:      body,
		ContactID: contactID,
	})
	if err != nil {
		return nil, err
	}
	if frame.Message == nil {
		return nil, errors.New("confirmation missing message")
	}
	return frame.Message, nil
}

// MarkRead marks a message read over the push channel. Returns false
// when the id is unknown.
func (s *PushSession) MarkRead(ctx context.Context, requestID string, messageID int64) (bool, error) {
	frame, err := s.roundTrip(ctx, gateway.ClientFrame{
		Type:      "mark_read",
		RequestID: requestID,
		MessageID: messageID,
	})
	if err != nil {
		return false, err
	}
	if frame.Found == nil {
		return false, errors.New("confirmation missing found flag")
	}
	return *frame.Found, nil
}

// RemoteError is a server-side rejection of one request (validation or
// policy failure). It is not a transport failure: the server processed
// the request and refused it, so a retry over pull would also fail.
type RemoteError struct {
	Reason string
}

func (e *RemoteError) Error() string {
	return "request rejected: " + e.Reason
}

// roundTrip writes one frame and waits for the correlated response,
// bounded by the confirm timeout.
func (s *PushSession) roundTrip(ctx context.Context, frame gateway.ClientFrame) (*gateway.ServerFrame, error) {
	ch := make(chan *gateway.ServerFrame, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrPushUnavailable
	}
	s.pending[frame.RequestID] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, frame.RequestID)
		s.mu.Unlock()
	}()

	writeCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	if err := wsjson.Write(writeCtx, s.conn, frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPushUnavailable, err)
	}

	select {
	case resp := <-ch:
		if resp.Type == "error" {
			return nil, &RemoteError{Reason: resp.Reason}
		}
		return resp, nil
	case <-time.After(s.confirmTimeout):
		return nil, fmt.Errorf("%w: confirmation timed out", ErrPushUnavailable)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrPushUnavailable
	}
}

// readLoop routes incoming frames: confirmations to their waiting
// request, broadcast events to the event stream.
func (s *PushSession) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		var frame gateway.ServerFrame
		if err := wsjson.Read(context.Background(), s.conn, &frame); err != nil {
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
			s.logger.Debug("push session read ended", "error", err)
			return
		}

		if frame.RequestID != "" {
			s.mu.Lock()
			ch, ok := s.pending[frame.RequestID]
			s.mu.Unlock()
			if ok {
				ch <- &frame
				continue
			}
		}

		select {
		case s.events <- &frame:
		default:
			s.logger.Debug("dropped push event, buffer full", "type", frame.Type)
		}
	}
}

// Close tears down the session.
func (s *PushSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.conn.Close(websocket.StatusNormalClosure, "client closed")
}
