// ABOUTME: Authenticated identity carried through request handling via context
// ABOUTME: Provides WithIdentity/FromContext for propagating caller role and ids

package auth

import (
	"context"
)

// Role of an authenticated caller.
type Role string

const (
	RoleContact Role = "contact"
	RoleStaff   Role = "staff"
)

// Identity holds the authenticated caller information extracted from a
// request. Populated by the HTTP middleware; the messaging core trusts
// this input and performs no credential verification itself.
type Identity struct {
	Role      Role
	ContactID int64 // set when Role == RoleContact
	StaffID   int64 // set when Role == RoleStaff
}

// IsStaff returns true for staff callers.
func (id *Identity) IsStaff() bool {
	return id.Role == RoleStaff
}

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the Identity from the context, returning nil if
// not present.
func FromContext(ctx context.Context) *Identity {
	val := ctx.Value(identityKey{})
	if val == nil {
		return nil
	}
	id, ok := val.(*Identity)
	if !ok {
		return nil
	}
	return id
}

// MustFromContext retrieves the Identity from the context, panicking if
// not present. Use only behind the auth middleware.
func MustFromContext(ctx context.Context) *Identity {
	id := FromContext(ctx)
	if id == nil {
		panic("auth: Identity not found in context")
	}
	return id
}
