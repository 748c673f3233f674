package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Case groups the archives imported for one investigation.
type Case struct {
	ID        string
	Name      string
	Subject   sql.NullString
	Notes     sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateCase creates a new case with a generated ID.
func (s *Store) CreateCase(name, subject, notes string) (*Case, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO cases (id, name, subject, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'), datetime('now'))
	`, id, name, nullString(subject), nullString(notes))
	if err != nil {
		if isSQLiteError(err, "UNIQUE constraint failed: cases.name") {
			return nil, fmt.Errorf("case %q already exists", name)
		}
		return nil, fmt.Errorf("insert case: %w", err)
	}
	return s.GetCase(id)
}

// GetCase returns a case by ID, or nil if it does not exist.
func (s *Store) GetCase(id string) (*Case, error) {
	return s.scanCaseRow(s.db.QueryRow(`
		SELECT id, name, subject, notes, created_at, updated_at
		FROM cases WHERE id = ?
	`, id))
}

// GetCaseByName returns a case by its unique name, or nil if it does not exist.
func (s *Store) GetCaseByName(name string) (*Case, error) {
	return s.scanCaseRow(s.db.QueryRow(`
		SELECT id, name, subject, notes, created_at, updated_at
		FROM cases WHERE name = ?
	`, name))
}

// ResolveCase accepts either a case ID or a case name and returns the case.
// Unlike the getters it fails when nothing matches.
func (s *Store) ResolveCase(ref string) (*Case, error) {
	c, err := s.GetCase(ref)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c, err = s.GetCaseByName(ref)
		if err != nil {
			return nil, err
		}
	}
	if c == nil {
		return nil, fmt.Errorf("case %q not found", ref)
	}
	return c, nil
}

func (s *Store) scanCaseRow(row *sql.Row) (*Case, error) {
	var c Case
	var createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.Name, &c.Subject, &c.Notes, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
	c.UpdatedAt, _ = time.Parse("2006-01-02 15:04:05", updatedAt)
	return &c, nil
}

// ListCases returns all cases ordered by name.
func (s *Store) ListCases() ([]*Case, error) {
	rows, err := s.db.Query(`
		SELECT id, name, subject, notes, created_at, updated_at
		FROM cases
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var cases []*Case
	for rows.Next() {
		var c Case
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.Name, &c.Subject, &c.Notes, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		c.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
		c.UpdatedAt, _ = time.Parse("2006-01-02 15:04:05", updatedAt)
		cases = append(cases, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return cases, nil
}

// RemoveCase deletes a case and all its associated data.
// FTS5 rows are cleaned up explicitly (no FK cascade for virtual tables).
// CASCADE handles imports, conversations, messages, attachments, participants.
func (s *Store) RemoveCase(id string) error {
	return s.withTx(func(tx *sql.Tx) error {
		if s.fts5Available {
			_, err := tx.Exec(`
				DELETE FROM messages_fts
				WHERE message_id IN (
					SELECT m.id FROM messages m
					JOIN conversations c ON c.id = m.conversation_id
					WHERE c.case_id = ?
				)
			`, id)
			if err != nil {
				return fmt.Errorf("delete FTS rows: %w", err)
			}
		}

		res, err := tx.Exec(`DELETE FROM cases WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete case: %w", err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("case %q not found", id)
		}

		return nil
	})
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
