package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ConversationSummary is a conversation row for list views.
type ConversationSummary struct {
	ID              int64
	ImportID        int64
	ThreadID        string
	Section         string
	Participants    []string
	StartedAt       time.Time
	LastActiveAt    time.Time
	MessageCount    int64
	AttachmentCount int64
	ShareCount      int64
	CallCount       int64
}

// AttachmentView is attachment metadata for display and download.
type AttachmentView struct {
	ID          int64
	MessageID   int64
	SourcePath  string
	ExternalURL string
	MIMEType    string
	Size        int64
	ContentHash string
	StoragePath string
	Resolved    bool
}

// ShareView is a link-share payload for display.
type ShareView struct {
	URL         string
	Text        string
	DateCreated *time.Time
}

// CallView is a call record for display.
type CallView struct {
	Type            string
	Missed          bool
	DurationSeconds int64
}

// MessageView is a message with its payloads for display.
type MessageView struct {
	ID              int64
	ConversationID  int64
	ThreadID        string
	Seq             int64
	Author          string
	SentAt          *time.Time
	Body            string
	Type            string
	RemovedBySender bool
	Placeholder     bool
	Attachments     []AttachmentView
	Share           *ShareView
	Call            *CallView
}

// ListConversations returns a page of conversations for a case, most
// recently active first, with the total count.
func (s *Store) ListConversations(caseID string, offset, limit int) ([]ConversationSummary, int64, error) {
	var total int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM conversations WHERE case_id = ?`, caseID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT id, import_id, thread_id, section, started_at, last_active_at,
		       message_count, attachment_count, share_count, call_count
		FROM conversations
		WHERE case_id = ?
		ORDER BY last_active_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, caseID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var convs []ConversationSummary
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, 0, err
		}
		convs = append(convs, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range convs {
		convs[i].Participants, err = s.conversationParticipants(convs[i].ID)
		if err != nil {
			return nil, 0, err
		}
	}
	return convs, total, nil
}

// GetConversation returns one conversation with its participant names,
// or nil if it does not exist.
func (s *Store) GetConversation(id int64) (*ConversationSummary, error) {
	row := s.db.QueryRow(`
		SELECT id, import_id, thread_id, section, started_at, last_active_at,
		       message_count, attachment_count, share_count, call_count
		FROM conversations
		WHERE id = ?
	`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Participants, err = s.conversationParticipants(c.ID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetConversationByThreadID returns a conversation by its platform thread
// ID, or nil if none exists. When an archive was force-imported more than
// once the same thread ID appears under several imports; the newest row wins.
func (s *Store) GetConversationByThreadID(threadID string) (*ConversationSummary, error) {
	row := s.db.QueryRow(`
		SELECT id, import_id, thread_id, section, started_at, last_active_at,
		       message_count, attachment_count, share_count, call_count
		FROM conversations
		WHERE thread_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, threadID)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Participants, err = s.conversationParticipants(c.ID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func scanConversation(row interface{ Scan(...interface{}) error }) (*ConversationSummary, error) {
	var c ConversationSummary
	var startedAt, lastActiveAt sql.NullString
	err := row.Scan(&c.ID, &c.ImportID, &c.ThreadID, &c.Section,
		&startedAt, &lastActiveAt,
		&c.MessageCount, &c.AttachmentCount, &c.ShareCount, &c.CallCount)
	if err != nil {
		return nil, err
	}
	if t := parseNullTime(startedAt); t.Valid {
		c.StartedAt = t.Time
	}
	if t := parseNullTime(lastActiveAt); t.Valid {
		c.LastActiveAt = t.Time
	}
	return &c, nil
}

func (s *Store) conversationParticipants(conversationID int64) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT COALESCE(NULLIF(p.username, ''), p.platform_id)
		FROM conversation_participants cp
		JOIN participants p ON p.id = cp.participant_id
		WHERE cp.conversation_id = ?
		ORDER BY p.id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get participants: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListMessages returns a page of a conversation's messages in stored
// order (ascending seq), with the total count.
func (s *Store) ListMessages(conversationID int64, offset, limit int) ([]MessageView, int64, error) {
	var total int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT m.id, m.conversation_id, c.thread_id, m.seq,
		       COALESCE(p.username, ''), m.sent_at, COALESCE(m.body, ''),
		       m.message_type, m.removed_by_sender, m.placeholder
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		LEFT JOIN participants p ON p.id = m.author_id
		WHERE m.conversation_id = ?
		ORDER BY m.seq
		LIMIT ? OFFSET ?
	`, conversationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var messages []MessageView
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := s.loadPayloadsBatch(messages); err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// loadPayloadsBatch fills attachments, shares, and call records for a page
// of messages with one chunked query per payload table instead of three
// queries per message.
func (s *Store) loadPayloadsBatch(messages []MessageView) error {
	if len(messages) == 0 {
		return nil
	}
	byID := make(map[int64]*MessageView, len(messages))
	ids := make([]int64, 0, len(messages))
	for i := range messages {
		byID[messages[i].ID] = &messages[i]
		ids = append(ids, messages[i].ID)
	}

	err := queryInChunks(s.db, ids, nil, `
		SELECT id, message_id, COALESCE(source_path, ''), COALESCE(external_url, ''),
		       COALESCE(mime_type, ''), size, COALESCE(content_hash, ''),
		       COALESCE(storage_path, ''), resolved
		FROM attachments WHERE message_id IN (%s) ORDER BY id`,
		func(rows *sql.Rows) error {
			var a AttachmentView
			if err := rows.Scan(&a.ID, &a.MessageID, &a.SourcePath, &a.ExternalURL,
				&a.MIMEType, &a.Size, &a.ContentHash, &a.StoragePath, &a.Resolved); err != nil {
				return err
			}
			if m := byID[a.MessageID]; m != nil {
				m.Attachments = append(m.Attachments, a)
			}
			return nil
		})
	if err != nil {
		return fmt.Errorf("load attachments: %w", err)
	}

	err = queryInChunks(s.db, ids, nil, `
		SELECT message_id, COALESCE(url, ''), COALESCE(share_text, ''), date_created
		FROM shares WHERE message_id IN (%s)`,
		func(rows *sql.Rows) error {
			var msgID int64
			var url, text string
			var dateCreated sql.NullString
			if err := rows.Scan(&msgID, &url, &text, &dateCreated); err != nil {
				return err
			}
			if m := byID[msgID]; m != nil {
				sh := &ShareView{URL: url, Text: text}
				if t := parseNullTime(dateCreated); t.Valid {
					created := t.Time
					sh.DateCreated = &created
				}
				m.Share = sh
			}
			return nil
		})
	if err != nil {
		return fmt.Errorf("load shares: %w", err)
	}

	err = queryInChunks(s.db, ids, nil, `
		SELECT message_id, call_type, missed, duration_seconds
		FROM call_records WHERE message_id IN (%s)`,
		func(rows *sql.Rows) error {
			var msgID int64
			var c CallView
			if err := rows.Scan(&msgID, &c.Type, &c.Missed, &c.DurationSeconds); err != nil {
				return err
			}
			if m := byID[msgID]; m != nil {
				call := c
				m.Call = &call
			}
			return nil
		})
	if err != nil {
		return fmt.Errorf("load call records: %w", err)
	}
	return nil
}

// GetMessage returns a single message with its payloads, or nil.
func (s *Store) GetMessage(id int64) (*MessageView, error) {
	row := s.db.QueryRow(`
		SELECT m.id, m.conversation_id, c.thread_id, m.seq,
		       COALESCE(p.username, ''), m.sent_at, COALESCE(m.body, ''),
		       m.message_type, m.removed_by_sender, m.placeholder
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		LEFT JOIN participants p ON p.id = m.author_id
		WHERE m.id = ?
	`, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadMessagePayloads(m); err != nil {
		return nil, err
	}
	return m, nil
}

func scanMessage(row interface{ Scan(...interface{}) error }) (*MessageView, error) {
	var m MessageView
	var sentAt sql.NullString
	err := row.Scan(&m.ID, &m.ConversationID, &m.ThreadID, &m.Seq,
		&m.Author, &sentAt, &m.Body, &m.Type, &m.RemovedBySender, &m.Placeholder)
	if err != nil {
		return nil, err
	}
	if t := parseNullTime(sentAt); t.Valid {
		sent := t.Time
		m.SentAt = &sent
	}
	return &m, nil
}

func (s *Store) loadMessagePayloads(m *MessageView) error {
	rows, err := s.db.Query(`
		SELECT id, message_id, COALESCE(source_path, ''), COALESCE(external_url, ''),
		       COALESCE(mime_type, ''), size, COALESCE(content_hash, ''),
		       COALESCE(storage_path, ''), resolved
		FROM attachments WHERE message_id = ? ORDER BY id
	`, m.ID)
	if err != nil {
		return fmt.Errorf("get attachments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a AttachmentView
		if err := rows.Scan(&a.ID, &a.MessageID, &a.SourcePath, &a.ExternalURL,
			&a.MIMEType, &a.Size, &a.ContentHash, &a.StoragePath, &a.Resolved); err != nil {
			return fmt.Errorf("scan attachment: %w", err)
		}
		m.Attachments = append(m.Attachments, a)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var shareURL, shareText, dateCreated sql.NullString
	err = s.db.QueryRow(`
		SELECT url, share_text, date_created FROM shares WHERE message_id = ?
	`, m.ID).Scan(&shareURL, &shareText, &dateCreated)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("get share: %w", err)
	}
	if err == nil {
		sh := &ShareView{URL: shareURL.String, Text: shareText.String}
		if t := parseNullTime(dateCreated); t.Valid {
			created := t.Time
			sh.DateCreated = &created
		}
		m.Share = sh
	}

	var callType string
	var missed bool
	var duration int64
	err = s.db.QueryRow(`
		SELECT call_type, missed, duration_seconds FROM call_records WHERE message_id = ?
	`, m.ID).Scan(&callType, &missed, &duration)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("get call record: %w", err)
	}
	if err == nil {
		m.Call = &CallView{Type: callType, Missed: missed, DurationSeconds: duration}
	}

	return nil
}

// GetAttachment returns attachment metadata by ID, or nil.
func (s *Store) GetAttachment(id int64) (*AttachmentView, error) {
	var a AttachmentView
	err := s.db.QueryRow(`
		SELECT id, message_id, COALESCE(source_path, ''), COALESCE(external_url, ''),
		       COALESCE(mime_type, ''), size, COALESCE(content_hash, ''),
		       COALESCE(storage_path, ''), resolved
		FROM attachments WHERE id = ?
	`, id).Scan(&a.ID, &a.MessageID, &a.SourcePath, &a.ExternalURL,
		&a.MIMEType, &a.Size, &a.ContentHash, &a.StoragePath, &a.Resolved)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// SearchMessages searches a case's messages. FTS5 when available, LIKE
// otherwise. The query string is passed to FTS5 verbatim.
func (s *Store) SearchMessages(caseID, query string, offset, limit int) ([]MessageView, int64, error) {
	if s.fts5Available {
		messages, total, err := s.searchMessagesFTS(caseID, query, offset, limit)
		if err == nil {
			return messages, total, nil
		}
		// Malformed FTS queries (stray operators) fall back to LIKE
		// rather than erroring out of a search box.
		if !isSQLiteError(err, "fts5: syntax error") {
			return nil, 0, err
		}
	}
	return s.searchMessagesLike(caseID, query, offset, limit)
}

func (s *Store) searchMessagesFTS(caseID, query string, offset, limit int) ([]MessageView, int64, error) {
	var total int64
	err := s.db.QueryRow(`
		SELECT COUNT(*)
		FROM messages_fts fts
		JOIN messages m ON m.id = fts.rowid
		JOIN conversations c ON c.id = m.conversation_id
		WHERE messages_fts MATCH ? AND c.case_id = ?
	`, query, caseID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT m.id
		FROM messages_fts fts
		JOIN messages m ON m.id = fts.rowid
		JOIN conversations c ON c.id = m.conversation_id
		WHERE messages_fts MATCH ? AND c.case_id = ?
		ORDER BY rank
		LIMIT ? OFFSET ?
	`, query, caseID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	messages := make([]MessageView, 0, len(ids))
	for _, id := range ids {
		m, err := s.GetMessage(id)
		if err != nil {
			return nil, 0, err
		}
		if m != nil {
			messages = append(messages, *m)
		}
	}
	return messages, total, nil
}

// searchMessagesLike is a fallback search using LIKE over body and author.
func (s *Store) searchMessagesLike(caseID, query string, offset, limit int) ([]MessageView, int64, error) {
	likePattern := "%" + strings.TrimSpace(query) + "%"

	var total int64
	err := s.db.QueryRow(`
		SELECT COUNT(*)
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		LEFT JOIN participants p ON p.id = m.author_id
		WHERE c.case_id = ? AND (m.body LIKE ? OR p.username LIKE ?)
	`, caseID, likePattern, likePattern).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT m.id, m.conversation_id, c.thread_id, m.seq,
		       COALESCE(p.username, ''), m.sent_at, COALESCE(m.body, ''),
		       m.message_type, m.removed_by_sender, m.placeholder
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		LEFT JOIN participants p ON p.id = m.author_id
		WHERE c.case_id = ? AND (m.body LIKE ? OR p.username LIKE ?)
		ORDER BY m.sent_at DESC
		LIMIT ? OFFSET ?
	`, caseID, likePattern, likePattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var messages []MessageView
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := s.loadPayloadsBatch(messages); err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// CaseProfile is the stored subject profile of an import.
type CaseProfile struct {
	ImportID         int64
	Username         string
	PlatformID       string
	DisplayName      string
	RegistrationIP   string
	RegistrationDate *time.Time
	AccountStatus    string
	Inferred         bool
	Emails           []string
	PhoneNumbers     []string
}

// GetProfile returns the stored profile for an import, or nil.
func (s *Store) GetProfile(importID int64) (*CaseProfile, error) {
	var p CaseProfile
	var profileID int64
	var username, platformID, displayName, regIP, regDate, status sql.NullString
	err := s.db.QueryRow(`
		SELECT id, import_id, username, platform_id, display_name,
		       registration_ip, registration_date, account_status, inferred
		FROM profiles WHERE import_id = ?
	`, importID).Scan(&profileID, &p.ImportID, &username, &platformID,
		&displayName, &regIP, &regDate, &status, &p.Inferred)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Username = username.String
	p.PlatformID = platformID.String
	p.DisplayName = displayName.String
	p.RegistrationIP = regIP.String
	p.AccountStatus = status.String
	if t := parseNullTime(regDate); t.Valid {
		reg := t.Time
		p.RegistrationDate = &reg
	}

	rows, err := s.db.Query(`
		SELECT kind, value FROM profile_contacts WHERE profile_id = ? ORDER BY id
	`, profileID)
	if err != nil {
		return nil, fmt.Errorf("get profile contacts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind, value string
		if err := rows.Scan(&kind, &value); err != nil {
			return nil, fmt.Errorf("scan profile contact: %w", err)
		}
		switch kind {
		case "email":
			p.Emails = append(p.Emails, value)
		case "phone":
			p.PhoneNumbers = append(p.PhoneNumbers, value)
		}
	}
	return &p, rows.Err()
}

// LoginRow is one login or logout event from an import's login history.
type LoginRow struct {
	ImportID   int64
	OccurredAt *time.Time
	IPAddress  string
	Action     string
}

// ListLogins returns every login event recorded for a case, oldest first.
func (s *Store) ListLogins(caseID string) ([]LoginRow, error) {
	rows, err := s.db.Query(`
		SELECT l.import_id, l.occurred_at, l.ip_address, l.action
		FROM logins l
		JOIN imports i ON i.id = l.import_id
		WHERE i.case_id = ?
		ORDER BY l.occurred_at, l.id
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list logins: %w", err)
	}
	defer rows.Close()

	var logins []LoginRow
	for rows.Next() {
		var l LoginRow
		var occurred, ip sql.NullString
		if err := rows.Scan(&l.ImportID, &occurred, &ip, &l.Action); err != nil {
			return nil, fmt.Errorf("scan login: %w", err)
		}
		if t := parseNullTime(occurred); t.Valid {
			at := t.Time
			l.OccurredAt = &at
		}
		l.IPAddress = ip.String
		logins = append(logins, l)
	}
	return logins, rows.Err()
}
