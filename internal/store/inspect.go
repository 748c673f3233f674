package store

import (
	"database/sql"
)

// ConversationInspection contains stored conversation data for test assertions.
type ConversationInspection struct {
	ID               int64
	Section          string
	StartedAt        string
	LastActiveAt     string
	MessageCount     int64
	ParticipantCount int64
}

// InspectConversation retrieves stored conversation state by thread ID.
// This consolidates schema-aware queries into one method, keeping schema
// knowledge in the store package.
func (s *Store) InspectConversation(threadID string) (*ConversationInspection, error) {
	insp := &ConversationInspection{}
	var startedAt, lastActiveAt sql.NullString
	err := s.db.QueryRow(s.Rebind(`
		SELECT id, section, started_at, last_active_at, message_count
		FROM conversations
		WHERE thread_id = ?
	`), threadID).Scan(&insp.ID, &insp.Section, &startedAt, &lastActiveAt, &insp.MessageCount)
	if err != nil {
		return nil, err
	}
	insp.StartedAt = startedAt.String
	insp.LastActiveAt = lastActiveAt.String

	err = s.db.QueryRow(s.Rebind(`
		SELECT COUNT(*) FROM conversation_participants WHERE conversation_id = ?
	`), insp.ID).Scan(&insp.ParticipantCount)
	if err != nil {
		return nil, err
	}
	return insp, nil
}

// MessageInspection contains stored message data for test assertions.
type MessageInspection struct {
	ID              int64
	Author          string
	SentAt          sql.NullString
	Body            string
	Type            string
	RemovedBySender bool
	Placeholder     bool
	AttachmentCount int64
	HasShare        bool
	HasCall         bool
	InFTS           bool
}

// InspectMessage retrieves a stored message by thread ID and position.
func (s *Store) InspectMessage(threadID string, seq int) (*MessageInspection, error) {
	insp := &MessageInspection{}
	var body sql.NullString
	err := s.db.QueryRow(s.Rebind(`
		SELECT m.id, COALESCE(p.username, ''), m.sent_at, m.body, m.message_type,
		       m.removed_by_sender, m.placeholder, m.attachment_count
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		LEFT JOIN participants p ON p.id = m.author_id
		WHERE c.thread_id = ? AND m.seq = ?
	`), threadID, seq).Scan(&insp.ID, &insp.Author, &insp.SentAt, &body,
		&insp.Type, &insp.RemovedBySender, &insp.Placeholder, &insp.AttachmentCount)
	if err != nil {
		return nil, err
	}
	insp.Body = body.String

	var n int
	err = s.db.QueryRow(s.Rebind(
		`SELECT COUNT(*) FROM shares WHERE message_id = ?`), insp.ID).Scan(&n)
	if err != nil {
		return nil, err
	}
	insp.HasShare = n > 0

	err = s.db.QueryRow(s.Rebind(
		`SELECT COUNT(*) FROM call_records WHERE message_id = ?`), insp.ID).Scan(&n)
	if err != nil {
		return nil, err
	}
	insp.HasCall = n > 0

	if s.fts5Available {
		err = s.db.QueryRow(s.Rebind(
			`SELECT COUNT(*) FROM messages_fts WHERE rowid = ?`), insp.ID).Scan(&n)
		if err != nil {
			return nil, err
		}
		insp.InFTS = n > 0
	}
	return insp, nil
}

// InspectSectionState returns the stored audit state for a section of an import.
func (s *Store) InspectSectionState(importID int64, name string) (string, error) {
	var state string
	err := s.db.QueryRow(s.Rebind(`
		SELECT state FROM import_sections WHERE import_id = ? AND name = ?
	`), importID, name).Scan(&state)
	return state, err
}

// InspectCount returns a row count scoped to an import for the given table.
// Only tables carrying an import_id column are valid.
func (s *Store) InspectCount(table string, importID int64) (int64, error) {
	switch table {
	case "conversations", "messages", "social_links", "devices", "logins",
		"photos", "cyber_tips", "diagnostics", "import_sections":
	default:
		return 0, sql.ErrNoRows
	}
	var n int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM `+table+` WHERE import_id = ?`, importID).Scan(&n)
	return n, err
}

// InspectParticipant returns the stored username for a platform ID within a case.
func (s *Store) InspectParticipant(caseID, platformID string) (string, error) {
	var username sql.NullString
	err := s.db.QueryRow(s.Rebind(`
		SELECT username FROM participants WHERE case_id = ? AND platform_id = ?
	`), caseID, platformID).Scan(&username)
	return username.String, err
}
