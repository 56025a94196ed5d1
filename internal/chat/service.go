// ABOUTME: Chat service: access policy enforcement over the message store
// ABOUTME: Single write path shared by the push and pull transports

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/corretora/chat-gateway/internal/auth"
	"github.com/corretora/chat-gateway/internal/conversation"
	"github.com/corretora/chat-gateway/internal/dedupe"
	"github.com/corretora/chat-gateway/internal/store"
)

// Policy errors
var (
	ErrForbidden            = errors.New("forbidden")
	ErrDestinationRequired  = errors.New("staff message requires a destination contact")
	ErrDestinationForbidden = errors.New("contact message cannot set a destination")
)

// Service enforces the access policy and owns the single write path to
// the message store. Both transports (websocket push and REST pull) call
// through here, so a send is durably stored exactly once no matter which
// path carried it.
type Service struct {
	store       store.Store
	broadcaster *conversation.Broadcaster
	dedupe      *dedupe.Cache
	logger      *slog.Logger

	// maxBodyLength is the operator-configured body limit in code
	// points; zero means the protocol cap.
	maxBodyLength int

	// sendMu serializes keyed sends so a dedupe lookup and the append it
	// guards are atomic with respect to a concurrent retry of the same key.
	sendMu sync.Mutex
}

// NewService creates a chat service. maxBodyLength 0 means the protocol
// cap. Pass nil logger for default.
func NewService(st store.Store, broadcaster *conversation.Broadcaster, dd *dedupe.Cache, maxBodyLength int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:         st,
		broadcaster:   broadcaster,
		dedupe:        dd,
		maxBodyLength: maxBodyLength,
		logger:        logger.With("component", "chat"),
	}
}

// SendInput describes one send attempt.
type SendInput struct {
	Body string

	// DestinationContactID is required for staff senders and rejected for
	// contact senders. Zero means unset.
	DestinationContactID int64

	// IdempotencyKey, when non-empty, makes the send replay-safe: a
	// retried key returns the originally stored message.
	IdempotencyKey string

	// Notify broadcasts the stored message to push subscribers. The pull
	// transport leaves this false; polling observes the write instead.
	Notify bool

	// ExcludeSubID skips the originating push subscription during
	// broadcast; it receives a direct confirmation instead.
	ExcludeSubID string
}

// SendResult is the outcome of a send. Duplicate is true when the
// idempotency key matched an earlier send and no new write occurred.
type SendResult struct {
	Message   *store.Message
	Duplicate bool
}

// SendMessage validates the caller against the access policy, appends the
// message, and (for the push path) fans it out. Contact senders are always
// attributed to their own contact id; staff senders must name a
// destination contact.
func (s *Service) SendMessage(ctx context.Context, in SendInput) (*SendResult, error) {
	identity := auth.FromContext(ctx)
	if identity == nil {
		return nil, ErrForbidden
	}

	if err := store.ValidateBody(in.Body, s.maxBodyLength); err != nil {
		return nil, err
	}

	msg := &store.Message{Body: in.Body}
	switch identity.Role {
	case auth.RoleContact:
		if in.DestinationContactID != 0 && in.DestinationContactID != identity.ContactID {
			return nil, ErrDestinationForbidden
		}
		msg.ContactID = identity.ContactID
		msg.SenderRole = store.RoleContact
	case auth.RoleStaff:
		if in.DestinationContactID == 0 {
			return nil, ErrDestinationRequired
		}
		staffID := identity.StaffID
		msg.ContactID = in.DestinationContactID
		msg.StaffID = &staffID
		msg.SenderRole = store.RoleStaff
	default:
		return nil, ErrForbidden
	}

	if in.IdempotencyKey != "" {
		s.sendMu.Lock()
		defer s.sendMu.Unlock()

		if messageID, ok := s.dedupe.Lookup(in.IdempotencyKey); ok {
			stored, err := s.store.GetMessage(ctx, messageID)
			if err != nil {
				return nil, fmt.Errorf("resolving deduplicated message: %w", err)
			}
			s.logger.Debug("send replay resolved from dedupe cache",
				"key", in.IdempotencyKey, "message_id", messageID)
			return &SendResult{Message: stored, Duplicate: true}, nil
		}
	}

	stored, err := s.store.AppendMessage(ctx, msg)
	if err != nil {
		return nil, err
	}

	if in.IdempotencyKey != "" {
		s.dedupe.Remember(in.IdempotencyKey, stored.ID)
	}

	if in.Notify {
		s.broadcastMessage(stored, in.ExcludeSubID)
	}

	s.logger.Info("message sent",
		"id", stored.ID,
		"contact_id", stored.ContactID,
		"role", stored.SenderRole)
	return &SendResult{Message: stored}, nil
}

// broadcastMessage routes a stored message to push audiences: a contact
// send reaches all staff sessions plus the contact's other sessions; a
// staff send reaches the destination contact plus the other staff.
func (s *Service) broadcastMessage(msg *store.Message, excludeSubID string) {
	event := &conversation.Event{
		Kind:    conversation.EventMessageReceived,
		Message: msg,
	}
	s.broadcaster.Publish(conversation.AudienceStaff, event, excludeSubID)
	s.broadcaster.Publish(conversation.AudienceContact(msg.ContactID), event, excludeSubID)
}

// MarkRead sets the read flag on a contact-authored message. Staff only.
// Returns false when no message with the given id exists. Marking a
// staff-authored message is a no-op that still reports success: staff
// messages are never unread to staff.
func (s *Service) MarkRead(ctx context.Context, messageID int64, notify bool, excludeSubID string) (bool, error) {
	identity := auth.FromContext(ctx)
	if identity == nil || !identity.IsStaff() {
		return false, ErrForbidden
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if !msg.FromContact() {
		return true, nil
	}

	found, err := s.store.MarkRead(ctx, messageID)
	if err != nil || !found {
		return found, err
	}

	if notify {
		event := &conversation.Event{
			Kind:      conversation.EventMessageRead,
			MessageID: messageID,
		}
		s.broadcaster.Publish(conversation.AudienceStaff, event, excludeSubID)
		s.broadcaster.Publish(conversation.AudienceContact(msg.ContactID), event, excludeSubID)
	}

	return true, nil
}

// ListMessages returns a contact's thread, newest first. Contact callers
// may only read their own thread; any other contact id is rejected, not
// filtered.
func (s *Service) ListMessages(ctx context.Context, contactID int64, limit int) ([]*store.Message, error) {
	identity := auth.FromContext(ctx)
	if identity == nil {
		return nil, ErrForbidden
	}
	if !identity.IsStaff() && identity.ContactID != contactID {
		return nil, ErrForbidden
	}
	return s.store.ListByContact(ctx, contactID, limit)
}

// ListConversations aggregates the whole message log into per-contact
// conversations, newest activity first. Staff only.
func (s *Service) ListConversations(ctx context.Context) ([]*conversation.Conversation, error) {
	identity := auth.FromContext(ctx)
	if identity == nil || !identity.IsStaff() {
		return nil, ErrForbidden
	}

	messages, err := s.store.ListAll(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	contacts, err := s.store.ListContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing contacts: %w", err)
	}

	profiles := make(map[int64]conversation.Profile, len(contacts))
	for _, c := range contacts {
		profiles[c.ID] = conversation.Profile{
			Email:     c.Email,
			KnownName: c.Name,
			Phone:     c.Phone,
		}
	}

	return conversation.Aggregate(messages, profiles), nil
}

// CountUnread counts unread contact-authored messages across all
// conversations. Staff only.
func (s *Service) CountUnread(ctx context.Context) (int, error) {
	identity := auth.FromContext(ctx)
	if identity == nil || !identity.IsStaff() {
		return 0, ErrForbidden
	}
	return s.store.CountUnread(ctx)
}
