// ABOUTME: Tests for the chat service access policy and write path
// ABOUTME: Covers role rules, idempotent sends, mark-read semantics, aggregation

package chat

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corretora/chat-gateway/internal/auth"
	"github.com/corretora/chat-gateway/internal/conversation"
	"github.com/corretora/chat-gateway/internal/dedupe"
	"github.com/corretora/chat-gateway/internal/store"
)

type fixture struct {
	service     *Service
	store       *store.SQLiteStore
	broadcaster *conversation.Broadcaster
	contactID   int64
	staffID     int64
}

func setupService(t *testing.T) *fixture {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := conversation.NewBroadcaster(nil)
	t.Cleanup(b.Close)

	dd := dedupe.New(time.Minute, 100)
	t.Cleanup(dd.Close)

	ctx := context.Background()
	contact := &store.Contact{Email: "ana@example.com"}
	require.NoError(t, st.CreateContact(ctx, contact))
	staff := &store.Staff{Username: "broker", Name: "Carlos", PasswordHash: "x"}
	require.NoError(t, st.CreateStaff(ctx, staff))

	return &fixture{
		service:     NewService(st, b, dd, 0, nil),
		store:       st,
		broadcaster: b,
		contactID:   contact.ID,
		staffID:     staff.ID,
	}
}

func contactCtx(contactID int64) context.Context {
	return auth.WithIdentity(context.Background(), &auth.Identity{
		Role: auth.RoleContact, ContactID: contactID,
	})
}

func staffCtx(staffID int64) context.Context {
	return auth.WithIdentity(context.Background(), &auth.Identity{
		Role: auth.RoleStaff, StaffID: staffID,
	})
}

func TestService_SendMessage_Contact(t *testing.T) {
	f := setupService(t)

	result, err := f.service.SendMessage(contactCtx(f.contactID), SendInput{Body: "hello"})
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, f.contactID, result.Message.ContactID)
	assert.Equal(t, store.RoleContact, result.Message.SenderRole)
	assert.Nil(t, result.Message.StaffID)
}

func TestService_SendMessage_ContactCannotSetDestination(t *testing.T) {
	f := setupService(t)

	_, err := f.service.SendMessage(contactCtx(f.contactID), SendInput{
		Body:                 "hello",
		DestinationContactID: f.contactID + 1,
	})
	assert.ErrorIs(t, err, ErrDestinationForbidden)

	// Naming their own id is harmless.
	_, err = f.service.SendMessage(contactCtx(f.contactID), SendInput{
		Body:                 "hello",
		DestinationContactID: f.contactID,
	})
	assert.NoError(t, err)
}

func TestService_SendMessage_Staff(t *testing.T) {
	f := setupService(t)

	result, err := f.service.SendMessage(staffCtx(f.staffID), SendInput{
		Body:                 "how can I help?",
		DestinationContactID: f.contactID,
	})
	require.NoError(t, err)
	assert.Equal(t, f.contactID, result.Message.ContactID)
	assert.Equal(t, store.RoleStaff, result.Message.SenderRole)
	require.NotNil(t, result.Message.StaffID)
	assert.Equal(t, f.staffID, *result.Message.StaffID)
}

func TestService_SendMessage_StaffRequiresDestination(t *testing.T) {
	f := setupService(t)

	_, err := f.service.SendMessage(staffCtx(f.staffID), SendInput{Body: "hello"})
	assert.ErrorIs(t, err, ErrDestinationRequired)
}

func TestService_SendMessage_Unauthenticated(t *testing.T) {
	f := setupService(t)

	_, err := f.service.SendMessage(context.Background(), SendInput{Body: "hello"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestService_SendMessage_ValidationPropagates(t *testing.T) {
	f := setupService(t)

	_, err := f.service.SendMessage(contactCtx(f.contactID), SendInput{Body: "  "})
	assert.ErrorIs(t, err, store.ErrBodyEmpty)
}

func TestService_SendMessage_ConfiguredBodyLimit(t *testing.T) {
	f := setupService(t)
	dd := dedupe.New(time.Minute, 100)
	t.Cleanup(dd.Close)
	tight := NewService(f.store, f.broadcaster, dd, 10, nil)

	_, err := tight.SendMessage(contactCtx(f.contactID), SendInput{Body: strings.Repeat("a", 11)})
	assert.ErrorIs(t, err, store.ErrBodyTooLong)

	result, err := tight.SendMessage(contactCtx(f.contactID), SendInput{Body: strings.Repeat("a", 10)})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 10), result.Message.Body)
}

func TestService_SendMessage_IdempotencyKey(t *testing.T) {
	f := setupService(t)
	ctx := contactCtx(f.contactID)

	first, err := f.service.SendMessage(ctx, SendInput{
		Body:           "retried across channels",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	// A retry over the other channel reuses the key and must not write again.
	second, err := f.service.SendMessage(ctx, SendInput{
		Body:           "retried across channels",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Message.ID, second.Message.ID)

	messages, err := f.store.ListByContact(context.Background(), f.contactID, 0)
	require.NoError(t, err)
	assert.Len(t, messages, 1, "exactly one stored message despite the retry")
}

func TestService_SendMessage_BroadcastRouting(t *testing.T) {
	f := setupService(t)

	staffCh, _ := f.broadcaster.Subscribe(t.Context(), conversation.AudienceStaff)
	contactCh, _ := f.broadcaster.Subscribe(t.Context(), conversation.AudienceContact(f.contactID))

	result, err := f.service.SendMessage(contactCtx(f.contactID), SendInput{
		Body:   "hello",
		Notify: true,
	})
	require.NoError(t, err)

	for name, ch := range map[string]<-chan *conversation.Event{"staff": staffCh, "contact": contactCh} {
		select {
		case event := <-ch:
			assert.Equal(t, conversation.EventMessageReceived, event.Kind)
			assert.Equal(t, result.Message.ID, event.Message.ID)
		case <-time.After(time.Second):
			t.Fatalf("%s audience did not receive the event", name)
		}
	}
}

func TestService_SendMessage_PullDoesNotBroadcast(t *testing.T) {
	f := setupService(t)

	staffCh, _ := f.broadcaster.Subscribe(t.Context(), conversation.AudienceStaff)

	_, err := f.service.SendMessage(contactCtx(f.contactID), SendInput{Body: "hello"})
	require.NoError(t, err)

	select {
	case <-staffCh:
		t.Fatal("pull-path send must not broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestService_MarkRead(t *testing.T) {
	f := setupService(t)

	sent, err := f.service.SendMessage(contactCtx(f.contactID), SendInput{Body: "hello"})
	require.NoError(t, err)

	found, err := f.service.MarkRead(staffCtx(f.staffID), sent.Message.ID, false, "")
	require.NoError(t, err)
	assert.True(t, found)

	// Idempotent: a second mark still reports success.
	found, err = f.service.MarkRead(staffCtx(f.staffID), sent.Message.ID, false, "")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = f.service.MarkRead(staffCtx(f.staffID), 99999, false, "")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestService_MarkRead_ContactForbidden(t *testing.T) {
	f := setupService(t)

	sent, err := f.service.SendMessage(contactCtx(f.contactID), SendInput{Body: "hello"})
	require.NoError(t, err)

	_, err = f.service.MarkRead(contactCtx(f.contactID), sent.Message.ID, false, "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestService_MarkRead_StaffMessageNoOp(t *testing.T) {
	f := setupService(t)

	sent, err := f.service.SendMessage(staffCtx(f.staffID), SendInput{
		Body:                 "reply",
		DestinationContactID: f.contactID,
	})
	require.NoError(t, err)

	staffCh, _ := f.broadcaster.Subscribe(t.Context(), conversation.AudienceStaff)

	found, err := f.service.MarkRead(staffCtx(f.staffID), sent.Message.ID, true, "")
	require.NoError(t, err)
	assert.True(t, found, "marking own message reports success")

	// Nothing mutated, nothing broadcast.
	msg, err := f.store.GetMessage(context.Background(), sent.Message.ID)
	require.NoError(t, err)
	assert.False(t, msg.Read)

	select {
	case <-staffCh:
		t.Fatal("no-op mark must not broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestService_MarkRead_Broadcasts(t *testing.T) {
	f := setupService(t)

	sent, err := f.service.SendMessage(contactCtx(f.contactID), SendInput{Body: "hello"})
	require.NoError(t, err)

	contactCh, _ := f.broadcaster.Subscribe(t.Context(), conversation.AudienceContact(f.contactID))

	found, err := f.service.MarkRead(staffCtx(f.staffID), sent.Message.ID, true, "")
	require.NoError(t, err)
	assert.True(t, found)

	select {
	case event := <-contactCh:
		assert.Equal(t, conversation.EventMessageRead, event.Kind)
		assert.Equal(t, sent.Message.ID, event.MessageID)
	case <-time.After(time.Second):
		t.Fatal("read notification not delivered")
	}
}

func TestService_ListMessages_Policy(t *testing.T) {
	f := setupService(t)

	_, err := f.service.SendMessage(contactCtx(f.contactID), SendInput{Body: "hello"})
	require.NoError(t, err)

	// Own thread is readable.
	messages, err := f.service.ListMessages(contactCtx(f.contactID), f.contactID, 0)
	require.NoError(t, err)
	assert.Len(t, messages, 1)

	// Another contact's thread is rejected, not filtered.
	_, err = f.service.ListMessages(contactCtx(5), 6, 0)
	assert.ErrorIs(t, err, ErrForbidden)

	// Staff read anything.
	messages, err = f.service.ListMessages(staffCtx(f.staffID), f.contactID, 0)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestService_ListConversations(t *testing.T) {
	f := setupService(t)

	_, err := f.service.SendMessage(contactCtx(f.contactID), SendInput{
		Body: "Subject: Visit\nI'd like to schedule a visit.\n---\nContact: Joao Silva",
	})
	require.NoError(t, err)

	conversations, err := f.service.ListConversations(staffCtx(f.staffID))
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, "Visit", conversations[0].Subject)
	assert.Equal(t, "Joao silva", conversations[0].DisplayName)
	assert.Equal(t, 1, conversations[0].UnreadCount)
	assert.Equal(t, "ana@example.com", conversations[0].Email)

	_, err = f.service.ListConversations(contactCtx(f.contactID))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestService_CountUnread(t *testing.T) {
	f := setupService(t)
	ctx := contactCtx(f.contactID)

	var ids []int64
	for i := 0; i < 3; i++ {
		result, err := f.service.SendMessage(ctx, SendInput{Body: "question"})
		require.NoError(t, err)
		ids = append(ids, result.Message.ID)
	}

	count, err := f.service.CountUnread(staffCtx(f.staffID))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = f.service.MarkRead(staffCtx(f.staffID), ids[0], false, "")
	require.NoError(t, err)

	count, err = f.service.CountUnread(staffCtx(f.staffID))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = f.service.CountUnread(ctx)
	assert.ErrorIs(t, err, ErrForbidden)
}
