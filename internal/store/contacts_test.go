// ABOUTME: Tests for contact directory and staff account persistence
// ABOUTME: Covers uniqueness constraints and lookup by id, email, and username

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateContact(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	contact := &Contact{Email: "ana@example.com", Name: "Ana Souza", Phone: "+55 11 99999-0001"}
	require.NoError(t, store.CreateContact(ctx, contact))
	assert.Greater(t, contact.ID, int64(0))

	retrieved, err := store.GetContact(ctx, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", retrieved.Name)
	assert.Equal(t, "+55 11 99999-0001", retrieved.Phone)

	byEmail, err := store.GetContactByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, contact.ID, byEmail.ID)
}

func TestStore_CreateContact_DuplicateEmail(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateContact(ctx, &Contact{Email: "ana@example.com"}))

	err := store.CreateContact(ctx, &Contact{Email: "ana@example.com", Name: "Other"})
	assert.ErrorIs(t, err, ErrDuplicateContact)
}

func TestStore_GetContact_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetContact(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetContactByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListContacts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateContact(ctx, &Contact{Email: "a@example.com"}))
	require.NoError(t, store.CreateContact(ctx, &Contact{Email: "b@example.com"}))

	contacts, err := store.ListContacts(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "a@example.com", contacts[0].Email)
	assert.Equal(t, "b@example.com", contacts[1].Email)
}

func TestStore_CreateStaff(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	staff := &Staff{Username: "broker", Name: "Carlos Lima", PasswordHash: "$2a$10$fake"}
	require.NoError(t, store.CreateStaff(ctx, staff))
	assert.Greater(t, staff.ID, int64(0))

	retrieved, err := store.GetStaff(ctx, staff.ID)
	require.NoError(t, err)
	assert.Equal(t, "Carlos Lima", retrieved.Name)

	byUsername, err := store.GetStaffByUsername(ctx, "broker")
	require.NoError(t, err)
	assert.Equal(t, staff.ID, byUsername.ID)

	_, err = store.GetStaffByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CreateStaff_DuplicateUsername(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateStaff(ctx, &Staff{Username: "broker", Name: "A", PasswordHash: "x"}))

	err := store.CreateStaff(ctx, &Staff{Username: "broker", Name: "B", PasswordHash: "y"})
	assert.ErrorIs(t, err, ErrDuplicateStaff)
}

func TestStore_CountStaff(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	count, err := store.CountStaff(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	seedStaff(t, store, "broker")
	seedStaff(t, store, "assistant")

	count, err = store.CountStaff(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
