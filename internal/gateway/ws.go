// ABOUTME: WebSocket push transport: one long-lived session per connection
// ABOUTME: Confirms sends only after the store write is durable

package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/corretora/chat-gateway/internal/auth"
	"github.com/corretora/chat-gateway/internal/chat"
	"github.com/corretora/chat-gateway/internal/conversation"
)

// Client frame types.
const (
	frameSendMessage = "send_message"
	frameMarkRead    = "mark_read"
)

// Server event types. message-received and message-read also arrive via
// the broadcaster; message-confirmed and error go only to the requester.
const (
	eventMessageReceived  = "message-received"
	eventMessageConfirmed = "message-confirmed"
	eventMessageRead      = "message-read"
	eventError            = "error"
)

// ClientFrame is one request from a connected client. RequestID doubles
// as the idempotency key, so a send that times out here can be retried
// over the pull transport without a duplicate write.
type ClientFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Body      string `json:"body,omitempty"`
	ContactID int64  `json:"contact_id,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
}

// ServerFrame is one event pushed to a connected client.
type ServerFrame struct {
	Type      string           `json:"type"`
	RequestID string           `json:"request_id,omitempty"`
	Message   *MessageResponse `json:"message,omitempty"`
	MessageID int64            `json:"message_id,omitempty"`
	Found     *bool            `json:"found,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

// wsSession is one connected push client.
type wsSession struct {
	conn    *websocket.Conn
	chat    *chat.Service
	subID   string
	logger  *slog.Logger
	writeMu sync.Mutex

	// writeTimeout bounds each frame write so a stalled socket cannot
	// pin the event pump or the read loop. Zero disables the bound.
	writeTimeout time.Duration
}

// handleWebSocket handles GET /api/ws: upgrades the connection and runs
// the session until the client disconnects.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket accept failed", "error", err)
		return
	}

	audience := conversation.AudienceContact(identity.ContactID)
	if identity.IsStaff() {
		audience = conversation.AudienceStaff
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, subID := g.broadcaster.Subscribe(ctx, audience)

	session := &wsSession{
		conn:         conn,
		chat:         g.chat,
		subID:        subID,
		logger:       g.logger.With("component", "ws", "audience", audience),
		writeTimeout: g.config.Chat.PushSendTimeout,
	}

	session.logger.Info("push session opened")
	defer session.logger.Info("push session closed")
	defer conn.Close(websocket.StatusNormalClosure, "session ended")

	// Event pump: broadcaster events out to the socket. A write failure
	// cancels the session; the client recovers missed state via pull.
	go func() {
		for event := range events {
			if err := session.writeEvent(ctx, event); err != nil {
				cancel()
				return
			}
		}
	}()

	session.readLoop(ctx)
}

// readLoop handles client frames until the connection drops or the
// context is canceled.
func (s *wsSession) readLoop(ctx context.Context) {
	for {
		var frame ClientFrame
		if err := wsjson.Read(ctx, s.conn, &frame); err != nil {
			return
		}

		switch frame.Type {
		case frameSendMessage:
			s.handleSend(ctx, frame)
		case frameMarkRead:
			s.handleMarkRead(ctx, frame)
		default:
			s.writeError(ctx, frame.RequestID, "unknown frame type")
		}
	}
}

// handleSend appends the message and confirms to the requester. The
// confirmation is written only after the store write returns, so a
// missing confirmation guarantees the caller may retry via pull.
func (s *wsSession) handleSend(ctx context.Context, frame ClientFrame) {
	result, err := s.chat.SendMessage(ctx, chat.SendInput{
		Body:                 frame.Body,
		DestinationContactID: frame.ContactID,
		IdempotencyKey:       frame.RequestID,
		Notify:               true,
		ExcludeSubID:         s.subID,
	})
	if err != nil {
		s.writeError(ctx, frame.RequestID, err.Error())
		return
	}

	resp := messageResponse(result.Message)
	s.write(ctx, &ServerFrame{
		Type:      eventMessageConfirmed,
		RequestID: frame.RequestID,
		Message:   &resp,
	})
}

// handleMarkRead marks a message read and answers the requester; other
// sessions learn via the broadcast.
func (s *wsSession) handleMarkRead(ctx context.Context, frame ClientFrame) {
	found, err := s.chat.MarkRead(ctx, frame.MessageID, true, s.subID)
	if err != nil {
		s.writeError(ctx, frame.RequestID, err.Error())
		return
	}

	s.write(ctx, &ServerFrame{
		Type:      eventMessageConfirmed,
		RequestID: frame.RequestID,
		MessageID: frame.MessageID,
		Found:     &found,
	})
}

// writeEvent translates a broadcaster event into a server frame.
func (s *wsSession) writeEvent(ctx context.Context, event *conversation.Event) error {
	frame := &ServerFrame{}
	switch event.Kind {
	case conversation.EventMessageReceived:
		resp := messageResponse(event.Message)
		frame.Type = eventMessageReceived
		frame.Message = &resp
	case conversation.EventMessageRead:
		frame.Type = eventMessageRead
		frame.MessageID = event.MessageID
	default:
		return nil
	}
	return s.write(ctx, frame)
}

func (s *wsSession) writeError(ctx context.Context, requestID, reason string) {
	s.write(ctx, &ServerFrame{
		Type:      eventError,
		RequestID: requestID,
		Reason:    reason,
	})
}

// write serializes frame writes; the event pump and the read loop both
// produce output.
func (s *wsSession) write(ctx context.Context, frame *ServerFrame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}

	if err := wsjson.Write(ctx, s.conn, frame); err != nil {
		s.logger.Debug("websocket write failed", "error", err)
		return err
	}
	return nil
}
