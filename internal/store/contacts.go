// ABOUTME: Contact directory and staff account persistence on SQLiteStore
// ABOUTME: Backs referential checks on append and display-name resolution

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateContact inserts a new contact, assigning its id.
// Returns ErrDuplicateContact if the email is already registered.
func (s *SQLiteStore) CreateContact(ctx context.Context, contact *Contact) error {
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (email, name, phone, created_at)
		VALUES (?, ?, ?, ?)
	`, contact.Email, contact.Name, contact.Phone, contact.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateContact
		}
		return fmt.Errorf("inserting contact: %w", err)
	}

	contact.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting contact id: %w", err)
	}

	s.logger.Debug("created contact", "id", contact.ID, "email", contact.Email)
	return nil
}

// GetContact retrieves a contact by id.
// Returns ErrNotFound if the contact doesn't exist.
func (s *SQLiteStore) GetContact(ctx context.Context, id int64) (*Contact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, phone, created_at
		FROM contacts
		WHERE id = ?
	`, id)
	return scanContact(row)
}

// GetContactByEmail retrieves a contact by email address.
// Returns ErrNotFound if no contact has the given email.
func (s *SQLiteStore) GetContactByEmail(ctx context.Context, email string) (*Contact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, phone, created_at
		FROM contacts
		WHERE email = ?
	`, email)
	return scanContact(row)
}

// ListContacts returns all contacts ordered by creation time.
func (s *SQLiteStore) ListContacts(ctx context.Context) ([]*Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, name, phone, created_at
		FROM contacts
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		var c Contact
		var createdAtStr string
		if err := rows.Scan(&c.ID, &c.Email, &c.Name, &c.Phone, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning contact row: %w", err)
		}
		c.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing contact created_at: %w", err)
		}
		contacts = append(contacts, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating contact rows: %w", err)
	}
	return contacts, nil
}

func scanContact(row *sql.Row) (*Contact, error) {
	var c Contact
	var createdAtStr string

	err := row.Scan(&c.ID, &c.Email, &c.Name, &c.Phone, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning contact: %w", err)
	}

	c.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing contact created_at: %w", err)
	}
	return &c, nil
}

// CreateStaff inserts a new staff account, assigning its id.
// Returns ErrDuplicateStaff if the username is already taken.
func (s *SQLiteStore) CreateStaff(ctx context.Context, staff *Staff) error {
	if staff.CreatedAt.IsZero() {
		staff.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO staff (username, name, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, staff.Username, staff.Name, staff.PasswordHash, staff.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateStaff
		}
		return fmt.Errorf("inserting staff: %w", err)
	}

	staff.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting staff id: %w", err)
	}

	s.logger.Debug("created staff", "id", staff.ID, "username", staff.Username)
	return nil
}

// GetStaff retrieves a staff account by id.
// Returns ErrNotFound if the account doesn't exist.
func (s *SQLiteStore) GetStaff(ctx context.Context, id int64) (*Staff, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, name, password_hash, created_at
		FROM staff
		WHERE id = ?
	`, id)
	return scanStaff(row)
}

// GetStaffByUsername retrieves a staff account by username.
// Returns ErrNotFound if no account has the given username.
func (s *SQLiteStore) GetStaffByUsername(ctx context.Context, username string) (*Staff, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, name, password_hash, created_at
		FROM staff
		WHERE username = ?
	`, username)
	return scanStaff(row)
}

// CountStaff returns the number of staff accounts. Used by bootstrap to
// refuse re-running against an initialized database.
func (s *SQLiteStore) CountStaff(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM staff`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting staff: %w", err)
	}
	return count, nil
}

func scanStaff(row *sql.Row) (*Staff, error) {
	var st Staff
	var createdAtStr string

	err := row.Scan(&st.ID, &st.Username, &st.Name, &st.PasswordHash, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning staff: %w", err)
	}

	st.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing staff created_at: %w", err)
	}
	return &st, nil
}
