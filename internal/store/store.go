// ABOUTME: Store interface and data types for chat-gateway persistence
// ABOUTME: Defines Message, Contact, Staff structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrContactNotFound is returned when a message references an unknown contact
var ErrContactNotFound = errors.New("contact not found")

// ErrDuplicateContact is returned when creating a contact with an email that already exists
var ErrDuplicateContact = errors.New("contact already exists")

// ErrDuplicateStaff is returned when creating a staff member with a username that already exists
var ErrDuplicateStaff = errors.New("staff member already exists")

// Validation errors for message bodies
var (
	ErrBodyEmpty   = errors.New("message body is empty")
	ErrBodyTooLong = errors.New("message body exceeds maximum length")
)

// MaxBodyLength is the maximum message body length in Unicode code points.
const MaxBodyLength = 2000

// SenderRole identifies which side of a conversation authored a message
type SenderRole string

const (
	RoleContact SenderRole = "contact"
	RoleStaff   SenderRole = "staff"
)

// Message is the atomic persisted unit of a conversation. Messages are
// append-only: once written, only the Read flag ever changes.
type Message struct {
	ID         int64
	ContactID  int64
	StaffID    *int64 // set iff SenderRole == RoleStaff
	Body       string
	SenderRole SenderRole
	Read       bool
	CreatedAt  time.Time
}

// FromContact reports whether the message was authored by the contact side.
func (m *Message) FromContact() bool {
	return m.SenderRole == RoleContact
}

// Contact is a customer-side party. The contacts table is the local
// implementation of the contact directory boundary: message appends are
// validated against it and display-name resolution reads from it.
type Contact struct {
	ID        int64
	Email     string
	Name      string // "known name"; empty until the profile is filled in
	Phone     string
	CreatedAt time.Time
}

// Staff is an operator-side account. Staff id 0 is reserved for the
// legacy synthetic root operator and is rejected by a schema CHECK, so
// it can never collide with a real row.
type Staff struct {
	ID           int64
	Username     string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// Store defines the interface for message and directory persistence
type Store interface {
	// Messages. AppendMessage and MarkRead are the only mutators.
	AppendMessage(ctx context.Context, msg *Message) (*Message, error)
	GetMessage(ctx context.Context, id int64) (*Message, error)
	ListAll(ctx context.Context, limit int) ([]*Message, error)
	ListByContact(ctx context.Context, contactID int64, limit int) ([]*Message, error)
	MarkRead(ctx context.Context, id int64) (bool, error)
	CountUnread(ctx context.Context) (int, error)
	ListUnread(ctx context.Context) ([]*Message, error)

	// Contact directory
	CreateContact(ctx context.Context, contact *Contact) error
	GetContact(ctx context.Context, id int64) (*Contact, error)
	GetContactByEmail(ctx context.Context, email string) (*Contact, error)
	ListContacts(ctx context.Context) ([]*Contact, error)

	// Staff accounts
	CreateStaff(ctx context.Context, staff *Staff) error
	GetStaff(ctx context.Context, id int64) (*Staff, error)
	GetStaffByUsername(ctx context.Context, username string) (*Staff, error)
	CountStaff(ctx context.Context) (int, error)

	// Close releases any resources held by the store
	Close() error
}
