// ABOUTME: HTTP API handlers for the pull transport
// ABOUTME: Message send/list, conversation listing, read marks, contact admin

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/corretora/chat-gateway/internal/auth"
	"github.com/corretora/chat-gateway/internal/chat"
	"github.com/corretora/chat-gateway/internal/conversation"
	"github.com/corretora/chat-gateway/internal/store"
)

// SendMessageRequest is the JSON request body for POST /api/messages.
// ContactID names the destination; required for staff, rejected for
// contacts.
type SendMessageRequest struct {
	Body      string `json:"body"`
	ContactID int64  `json:"contact_id,omitempty"`
}

// MessageResponse is the JSON shape of one stored message.
type MessageResponse struct {
	ID         int64  `json:"id"`
	ContactID  int64  `json:"contact_id"`
	StaffID    *int64 `json:"staff_id,omitempty"`
	Body       string `json:"body"`
	SenderRole string `json:"sender_role"`
	Read       bool   `json:"read"`
	CreatedAt  string `json:"created_at"`
}

// SendMessageResponse is the JSON response for POST /api/messages.
// Status is "created", or "duplicate" when the Idempotency-Key matched
// an earlier send.
type SendMessageResponse struct {
	Message MessageResponse `json:"message"`
	Status  string          `json:"status"`
}

// MessagesResponse is the JSON response for GET /api/messages.
type MessagesResponse struct {
	ContactID int64             `json:"contact_id"`
	Messages  []MessageResponse `json:"messages"`
}

// ConversationResponse is the JSON shape of one aggregated conversation.
type ConversationResponse struct {
	ContactID   int64             `json:"contact_id"`
	Email       string            `json:"email,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	DisplayName string            `json:"display_name"`
	Subject     string            `json:"subject,omitempty"`
	Preview     string            `json:"preview"`
	UnreadCount int               `json:"unread_count"`
	Latest      MessageResponse   `json:"latest"`
	Messages    []MessageResponse `json:"messages"`
}

// MarkReadResponse is the JSON response for POST /api/messages/{id}/read.
type MarkReadResponse struct {
	Found bool `json:"found"`
}

// UnreadCountResponse is the JSON response for GET /api/messages/unread/count.
type UnreadCountResponse struct {
	Count int `json:"count"`
}

// CreateContactRequest is the JSON request body for POST /api/contacts.
type CreateContactRequest struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ContactResponse is the JSON shape of one directory contact.
type ContactResponse struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt string `json:"created_at"`
}

func messageResponse(msg *store.Message) MessageResponse {
	return MessageResponse{
		ID:         msg.ID,
		ContactID:  msg.ContactID,
		StaffID:    msg.StaffID,
		Body:       msg.Body,
		SenderRole: string(msg.SenderRole),
		Read:       msg.Read,
		CreatedAt:  msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func messageResponses(messages []*store.Message) []MessageResponse {
	out := make([]MessageResponse, len(messages))
	for i, msg := range messages {
		out[i] = messageResponse(msg)
	}
	return out
}

// mustIdentity returns the caller identity. Handlers run behind the auth
// middleware, so it is always present.
func mustIdentity(r *http.Request) *auth.Identity {
	return auth.MustFromContext(r.Context())
}

// handleMessages routes POST (send) and GET (list) on /api/messages.
func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		g.handleSendMessage(w, r)
	case http.MethodGet:
		g.handleListMessages(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleSendMessage handles POST /api/messages. An Idempotency-Key
// header makes the send replay-safe across channel retries.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	req, err := parseSendRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := g.chat.SendMessage(r.Context(), chat.SendInput{
		Body:                 req.Body,
		DestinationContactID: req.ContactID,
		IdempotencyKey:       r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	status := "created"
	code := http.StatusCreated
	if result.Duplicate {
		status = "duplicate"
		code = http.StatusOK
	}

	g.writeJSON(w, code, SendMessageResponse{
		Message: messageResponse(result.Message),
		Status:  status,
	})
}

// handleListMessages handles GET /api/messages?contact_id=N[&limit=M].
// Contact callers may omit contact_id; it defaults to their own thread.
func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request) {
	identity := mustIdentity(r)

	contactID := identity.ContactID
	if raw := r.URL.Query().Get("contact_id"); raw != "" {
		var err error
		contactID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid contact_id")
			return
		}
	}
	if contactID == 0 {
		g.sendJSONError(w, http.StatusBadRequest, "contact_id is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			g.sendJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	messages, err := g.chat.ListMessages(r.Context(), contactID, limit)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, MessagesResponse{
		ContactID: contactID,
		Messages:  messageResponses(messages),
	})
}

// handleMessageRoutes dispatches subpaths of /api/messages/:
// POST /api/messages/{id}/read and GET /api/messages/unread/count.
func (g *Gateway) handleMessageRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/messages/")

	if path == "unread/count" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.handleUnreadCount(w, r)
		return
	}

	if id, ok := strings.CutSuffix(path, "/read"); ok {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		messageID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid message id")
			return
		}
		g.handleMarkRead(w, r, messageID)
		return
	}

	w.WriteHeader(http.StatusNotFound)
}

// handleMarkRead handles POST /api/messages/{id}/read. Pull path: no
// broadcast; other clients observe the change on their next poll.
func (g *Gateway) handleMarkRead(w http.ResponseWriter, r *http.Request, messageID int64) {
	found, err := g.chat.MarkRead(r.Context(), messageID, false, "")
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, MarkReadResponse{Found: found})
}

// handleUnreadCount handles GET /api/messages/unread/count.
func (g *Gateway) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := g.chat.CountUnread(r.Context())
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, UnreadCountResponse{Count: count})
}

// handleConversations handles GET /api/conversations. Staff only,
// enforced by middleware and again by the service.
func (g *Gateway) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	conversations, err := g.chat.ListConversations(r.Context())
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	out := make([]ConversationResponse, len(conversations))
	for i, conv := range conversations {
		out[i] = conversationResponse(conv)
	}
	g.writeJSON(w, http.StatusOK, out)
}

func conversationResponse(conv *conversation.Conversation) ConversationResponse {
	return ConversationResponse{
		ContactID:   conv.ContactID,
		Email:       conv.Email,
		Phone:       conv.Phone,
		DisplayName: conv.DisplayName,
		Subject:     conv.Subject,
		Preview:     conv.PreviewText(),
		UnreadCount: conv.UnreadCount,
		Latest:      messageResponse(conv.Latest),
		Messages:    messageResponses(conv.Messages),
	}
}

// handleContacts routes GET (list) and POST (create) on /api/contacts.
// Staff-only directory administration.
func (g *Gateway) handleContacts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		contacts, err := g.store.ListContacts(r.Context())
		if err != nil {
			g.logger.Error("listing contacts", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		out := make([]ContactResponse, len(contacts))
		for i, c := range contacts {
			out[i] = contactResponse(c)
		}
		g.writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var req CreateContactRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Email) == "" {
			g.sendJSONError(w, http.StatusBadRequest, "email is required")
			return
		}

		contact := &store.Contact{Email: req.Email, Name: req.Name, Phone: req.Phone}
		if err := g.store.CreateContact(r.Context(), contact); err != nil {
			if errors.Is(err, store.ErrDuplicateContact) {
				g.sendJSONError(w, http.StatusConflict, "contact already exists")
				return
			}
			g.logger.Error("creating contact", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		g.writeJSON(w, http.StatusCreated, contactResponse(contact))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func contactResponse(c *store.Contact) ContactResponse {
	return ContactResponse{
		ID:        c.ID,
		Email:     c.Email,
		Name:      c.Name,
		Phone:     c.Phone,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// sendServiceError maps chat service errors to HTTP statuses.
func (g *Gateway) sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrForbidden):
		g.sendJSONError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, chat.ErrDestinationRequired),
		errors.Is(err, chat.ErrDestinationForbidden),
		errors.Is(err, store.ErrBodyEmpty),
		errors.Is(err, store.ErrBodyTooLong):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrContactNotFound), errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, err.Error())
	default:
		g.logger.Error("request failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeJSON writes a JSON response with the given status code.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("encoding response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// parseSendRequest parses and validates a SendMessageRequest from the
// given reader.
func parseSendRequest(r io.Reader) (*SendMessageRequest, error) {
	var req SendMessageRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if req.Body == "" {
		return nil, errors.New("body is required")
	}
	return &req, nil
}
