// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides message persistence with automatic schema creation and ordered appends

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	// appendMu serializes AppendMessage so that created_at assignment is
	// linearizable: concurrent appends always receive distinct, strictly
	// increasing timestamps and ids.
	appendMu   sync.Mutex
	lastappend time.Time
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS contacts (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			email      TEXT NOT NULL UNIQUE,
			name       TEXT NOT NULL DEFAULT '',
			phone      TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts(email);

		CREATE TABLE IF NOT EXISTS staff (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			username      TEXT NOT NULL UNIQUE,
			name          TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at    TEXT NOT NULL,

			CHECK (id > 0)
		);

		CREATE INDEX IF NOT EXISTS idx_staff_username ON staff(username);

		CREATE TABLE IF NOT EXISTS messages (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			contact_id  INTEGER NOT NULL REFERENCES contacts(id),
			staff_id    INTEGER REFERENCES staff(id),
			body        TEXT NOT NULL,
			sender_role TEXT NOT NULL,
			read        INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL,

			CHECK (sender_role IN ('contact', 'staff')),
			CHECK ((sender_role = 'staff') = (staff_id IS NOT NULL))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_contact ON messages(contact_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(read) WHERE read = 0;
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// Migration: add phone column to contacts (pre-directory databases)
	migrations := []struct {
		check  string
		apply  string
		column string
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('contacts') WHERE name = 'phone'`,
			apply:  `ALTER TABLE contacts ADD COLUMN phone TEXT NOT NULL DEFAULT ''`,
			column: "phone",
		},
		{
			check:  `SELECT 1 FROM pragma_table_info('contacts') WHERE name = 'name'`,
			apply:  `ALTER TABLE contacts ADD COLUMN name TEXT NOT NULL DEFAULT ''`,
			column: "name",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to contacts: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", "contacts")
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// ValidateBody checks a message body against the length rules.
// maxLength <= 0 means the protocol cap, MaxBodyLength. A configured
// limit can only tighten the cap, never exceed it.
func ValidateBody(body string, maxLength int) error {
	if maxLength <= 0 || maxLength > MaxBodyLength {
		maxLength = MaxBodyLength
	}
	if strings.TrimSpace(body) == "" {
		return ErrBodyEmpty
	}
	if utf8.RuneCountInString(body) > maxLength {
		return ErrBodyTooLong
	}
	return nil
}

// AppendMessage validates and stores a new message, returning the stored
// copy with its assigned id and timestamp. The caller's CreatedAt is
// ignored; the store assigns it so ordering is reproducible.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) (*Message, error) {
	if err := ValidateBody(msg.Body, 0); err != nil {
		return nil, err
	}

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM contacts WHERE id = ?`, msg.ContactID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolving contact: %w", err)
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	now := time.Now().UTC()
	if !now.After(s.lastappend) {
		now = s.lastappend.Add(time.Microsecond)
	}
	s.lastappend = now

	var staffID any
	if msg.StaffID != nil {
		staffID = *msg.StaffID
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (contact_id, staff_id, body, sender_role, read, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`, msg.ContactID, staffID, msg.Body, string(msg.SenderRole), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting message id: %w", err)
	}

	stored := &Message{
		ID:         id,
		ContactID:  msg.ContactID,
		StaffID:    msg.StaffID,
		Body:       msg.Body,
		SenderRole: msg.SenderRole,
		Read:       false,
		CreatedAt:  now,
	}

	s.logger.Debug("appended message", "id", id, "contact_id", msg.ContactID, "role", msg.SenderRole)
	return stored, nil
}

// GetMessage retrieves a message by id.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, contact_id, staff_id, body, sender_role, read, created_at
		FROM messages
		WHERE id = ?
	`, id)
	return scanMessage(row)
}

// ListAll retrieves messages across all contacts, newest first.
// If limit is 0 or negative, all messages are returned.
func (s *SQLiteStore) ListAll(ctx context.Context, limit int) ([]*Message, error) {
	query := `
		SELECT id, contact_id, staff_id, body, sender_role, read, created_at
		FROM messages
		ORDER BY created_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryMessages(ctx, query, args...)
}

// ListByContact retrieves messages for one contact, newest first.
// If limit is 0 or negative, all of the contact's messages are returned.
func (s *SQLiteStore) ListByContact(ctx context.Context, contactID int64, limit int) ([]*Message, error) {
	query := `
		SELECT id, contact_id, staff_id, body, sender_role, read, created_at
		FROM messages
		WHERE contact_id = ?
		ORDER BY created_at DESC, id DESC
	`
	args := []any{contactID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryMessages(ctx, query, args...)
}

// ListUnread returns all unread contact-authored messages, newest first.
func (s *SQLiteStore) ListUnread(ctx context.Context) ([]*Message, error) {
	return s.queryMessages(ctx, `
		SELECT id, contact_id, staff_id, body, sender_role, read, created_at
		FROM messages
		WHERE read = 0 AND sender_role = 'contact'
		ORDER BY created_at DESC, id DESC
	`)
}

// MarkRead sets the read flag on a message. The operation is idempotent:
// marking an already-read message succeeds and the flag never reverts.
// Returns false if no message with the given id exists.
func (s *SQLiteStore) MarkRead(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE messages SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("marking message read: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	if rows > 0 {
		s.logger.Debug("marked message read", "id", id)
		return true, nil
	}

	// Zero rows affected can mean "already read" on some drivers; report
	// success whenever the row exists.
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking message: %w", err)
	}
	return true, nil
}

// CountUnread counts unread contact-authored messages across all contacts.
func (s *SQLiteStore) CountUnread(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE read = 0 AND sender_role = 'contact'
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unread messages: %w", err)
	}
	return count, nil
}

// queryMessages runs a message query and scans all rows.
func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row *sql.Row) (*Message, error) {
	msg, err := scanMessageFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return msg, err
}

func scanMessageRow(rows *sql.Rows) (*Message, error) {
	return scanMessageFrom(rows)
}

func scanMessageFrom(sc rowScanner) (*Message, error) {
	var msg Message
	var staffID sql.NullInt64
	var role string
	var read int
	var createdAtStr string

	err := sc.Scan(&msg.ID, &msg.ContactID, &staffID, &msg.Body, &role, &read, &createdAtStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning message row: %w", err)
	}

	if staffID.Valid {
		msg.StaffID = &staffID.Int64
	}
	msg.SenderRole = SenderRole(role)
	msg.Read = read != 0

	msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing message created_at: %w", err)
	}

	return &msg, nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
