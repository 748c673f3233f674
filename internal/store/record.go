package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/recordvault/recordvault/internal/instagram"
)

// SaveResult reports what SaveRecord wrote.
type SaveResult struct {
	ImportID        int64
	ConversationIDs map[string]int64 // thread ID -> conversation row ID
	Conversations   int
	Messages        int
	Attachments     int
	Participants    int
	Diagnostics     int
}

// SaveRecord persists a parsed record under an import created with
// StartImport. All rows are written in a single transaction; on error
// nothing of the record remains in the database. documentName is the
// archive-relative path of the parsed document.
func (s *Store) SaveRecord(ctx context.Context, importID int64, documentName string, rec *instagram.Record) (*SaveResult, error) {
	if rec == nil {
		return nil, fmt.Errorf("nil record")
	}

	var caseID string
	err := s.db.QueryRowContext(ctx,
		`SELECT case_id FROM imports WHERE id = ?`, importID).Scan(&caseID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("import %d not found", importID)
	}
	if err != nil {
		return nil, fmt.Errorf("look up import: %w", err)
	}

	res := &SaveResult{
		ImportID:        importID,
		ConversationIDs: make(map[string]int64),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if err := s.updateImportRecord(tx, importID, documentName, rec); err != nil {
		return nil, err
	}
	if err := insertSections(tx, importID, rec.Sections); err != nil {
		return nil, err
	}
	if err := insertProfile(tx, importID, rec.Profile); err != nil {
		return nil, err
	}

	participantIDs, err := ensureParticipants(tx, caseID, rec.Directory)
	if err != nil {
		return nil, err
	}
	res.Participants = len(participantIDs)

	for i := range rec.Conversations {
		conv := &rec.Conversations[i]
		convID, n, err := s.insertConversation(tx, importID, caseID, conv, participantIDs)
		if err != nil {
			return nil, fmt.Errorf("save conversation %s: %w", conv.ThreadID, err)
		}
		res.ConversationIDs[conv.ThreadID] = convID
		res.Conversations++
		res.Messages += len(conv.Messages)
		res.Attachments += n
	}

	if err := insertSocialLinks(tx, importID, "following", rec.Following); err != nil {
		return nil, err
	}
	if err := insertSocialLinks(tx, importID, "followers", rec.Followers); err != nil {
		return nil, err
	}
	if err := insertDevices(tx, importID, rec.Devices); err != nil {
		return nil, err
	}
	if err := insertLogins(tx, importID, rec.Logins); err != nil {
		return nil, err
	}
	if err := insertPhotos(tx, importID, rec.Photos); err != nil {
		return nil, err
	}
	if err := insertCyberTips(tx, importID, rec.CyberTips); err != nil {
		return nil, err
	}
	if err := insertDiagnostics(tx, importID, rec.Diagnostics); err != nil {
		return nil, err
	}
	res.Diagnostics = len(rec.Diagnostics)

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit record: %w", err)
	}
	return res, nil
}

// updateImportRecord fills the import row with the record-level metadata.
func (s *Store) updateImportRecord(tx *sql.Tx, importID int64, documentName string, rec *instagram.Record) error {
	rp := rec.RequestParameters
	attachments := 0
	for i := range rec.Conversations {
		attachments += rec.Conversations[i].AttachmentCount
	}
	_, err := tx.Exec(`
		UPDATE imports SET
			document_name = ?,
			layout = ?,
			service = ?, target = ?, account_identifier = ?, ticket_number = ?,
			generated_at = ?, range_start = ?, range_end = ?,
			conversation_count = ?, message_count = ?, attachment_count = ?,
			media_resolved = ?, media_missing = ?, diagnostic_count = ?
		WHERE id = ?
	`,
		documentName, rec.Layout.String(),
		nullString(rp.Service), nullString(rp.Target),
		nullString(rp.AccountIdentifier), nullString(rp.TicketNumber),
		dbTime(rp.GeneratedAt), dbTime(rp.RangeStart), dbTime(rp.RangeEnd),
		len(rec.Conversations), rec.MessageCount(), attachments,
		rec.MediaResolved, rec.MediaMissing, len(rec.Diagnostics),
		importID)
	if err != nil {
		return fmt.Errorf("update import metadata: %w", err)
	}
	return nil
}

func insertSections(tx *sql.Tx, importID int64, sections []instagram.SectionAudit) error {
	if len(sections) == 0 {
		return nil
	}
	err := insertInChunks(tx, len(sections), 3,
		"INSERT INTO import_sections (import_id, name, state) VALUES ",
		func(start, end int) ([]string, []interface{}) {
			values := make([]string, end-start)
			args := make([]interface{}, 0, (end-start)*3)
			for i := start; i < end; i++ {
				values[i-start] = "(?, ?, ?)"
				args = append(args, importID, sections[i].Name, string(sections[i].State))
			}
			return values, args
		})
	if err != nil {
		return fmt.Errorf("insert sections: %w", err)
	}
	return nil
}

func insertProfile(tx *sql.Tx, importID int64, p *instagram.Profile) error {
	if p == nil {
		return nil
	}

	var picPath, picMIME, picStorage, picHash sql.NullString
	var picSize sql.NullInt64
	if pic := p.Picture; pic != nil {
		picPath = nullString(pic.SourcePath)
		picMIME = nullString(pic.MIME)
		picSize = sql.NullInt64{Int64: pic.Size, Valid: true}
		if pic.Resolved() {
			hash, rel := blobKey(pic.Blob)
			picHash = nullString(hash)
			picStorage = nullString(rel)
		}
	}

	result, err := tx.Exec(`
		INSERT INTO profiles (
			import_id, username, platform_id, display_name,
			registration_ip, registration_date, account_status, inferred,
			picture_source_path, picture_mime, picture_size,
			picture_storage_path, picture_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		importID, nullString(p.Username), nullString(p.PlatformID),
		nullString(p.DisplayName), nullString(p.RegistrationIP),
		dbTime(p.RegistrationDate), nullString(p.AccountStatus), p.Inferred,
		picPath, picMIME, picSize, picStorage, picHash)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}

	profileID, err := result.LastInsertId()
	if err != nil {
		return err
	}
	for _, email := range p.Emails {
		if _, err := tx.Exec(`
			INSERT INTO profile_contacts (profile_id, kind, value) VALUES (?, 'email', ?)
		`, profileID, email); err != nil {
			return fmt.Errorf("insert profile email: %w", err)
		}
	}
	for _, phone := range p.PhoneNumbers {
		if _, err := tx.Exec(`
			INSERT INTO profile_contacts (profile_id, kind, value) VALUES (?, 'phone', ?)
		`, profileID, phone); err != nil {
			return fmt.Errorf("insert profile phone: %w", err)
		}
	}
	return nil
}

// ensureParticipants upserts the record's participant directory for the case
// and returns platform ID -> row ID. A username recorded on an earlier
// import is kept; empty usernames are filled in.
func ensureParticipants(tx *sql.Tx, caseID string, directory []instagram.Participant) (map[string]int64, error) {
	ids := make(map[string]int64, len(directory))
	for _, p := range directory {
		if p.PlatformID == "" {
			continue
		}
		_, err := tx.Exec(`
			INSERT INTO participants (case_id, username, platform_id)
			VALUES (?, ?, ?)
			ON CONFLICT(case_id, platform_id) DO UPDATE SET
				username = COALESCE(NULLIF(participants.username, ''), excluded.username)
		`, caseID, p.Username, p.PlatformID)
		if err != nil {
			return nil, fmt.Errorf("upsert participant %s: %w", p.PlatformID, err)
		}

		var id int64
		err = tx.QueryRow(`
			SELECT id FROM participants WHERE case_id = ? AND platform_id = ?
		`, caseID, p.PlatformID).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("fetch participant %s: %w", p.PlatformID, err)
		}
		ids[p.PlatformID] = id
	}
	return ids, nil
}

// insertConversation writes one conversation with its messages and payloads.
// Returns the conversation row ID and the number of attachment rows written.
func (s *Store) insertConversation(tx *sql.Tx, importID int64, caseID string, conv *instagram.Conversation, participantIDs map[string]int64) (int64, int, error) {
	result, err := tx.Exec(`
		INSERT INTO conversations (
			import_id, case_id, thread_id, section,
			started_at, last_active_at,
			message_count, attachment_count, share_count, call_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		importID, caseID, conv.ThreadID, conv.Section,
		dbTimeVal(conv.StartedAt), dbTimeVal(conv.LastActiveAt),
		conv.MessageCount, conv.AttachmentCount, conv.ShareCount, conv.CallCount)
	if err != nil {
		return 0, 0, fmt.Errorf("insert conversation: %w", err)
	}
	convID, err := result.LastInsertId()
	if err != nil {
		return 0, 0, err
	}

	memberIDs := make([]int64, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		if id, ok := participantIDs[p.PlatformID]; ok {
			memberIDs = append(memberIDs, id)
		}
	}
	if len(memberIDs) > 0 {
		err := insertInChunks(tx, len(memberIDs), 2,
			"INSERT OR IGNORE INTO conversation_participants (conversation_id, participant_id) VALUES ",
			func(start, end int) ([]string, []interface{}) {
				values := make([]string, end-start)
				args := make([]interface{}, 0, (end-start)*2)
				for i := start; i < end; i++ {
					values[i-start] = "(?, ?)"
					args = append(args, convID, memberIDs[i])
				}
				return values, args
			})
		if err != nil {
			return 0, 0, fmt.Errorf("insert conversation participants: %w", err)
		}
	}

	attachments := 0
	for seq := range conv.Messages {
		n, err := s.insertMessage(tx, importID, convID, seq, &conv.Messages[seq], participantIDs, conv)
		if err != nil {
			return 0, 0, fmt.Errorf("message %d: %w", seq, err)
		}
		attachments += n
	}
	return convID, attachments, nil
}

func (s *Store) insertMessage(tx *sql.Tx, importID, convID int64, seq int, m *instagram.Message, participantIDs map[string]int64, conv *instagram.Conversation) (int, error) {
	var authorID sql.NullInt64
	authorName := ""
	if m.Author != nil {
		authorName = m.Author.Username
		if id, ok := participantIDs[m.Author.PlatformID]; ok {
			authorID = sql.NullInt64{Int64: id, Valid: true}
		}
	}

	result, err := tx.Exec(`
		INSERT INTO messages (
			conversation_id, import_id, seq, author_id, sent_at, body,
			message_type, removed_by_sender, placeholder, attachment_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		convID, importID, seq, authorID, dbTime(m.Sent), nullString(m.Body),
		string(m.Type), m.RemovedBySender, m.Placeholder, len(m.Attachments))
	if err != nil {
		return 0, err
	}
	msgID, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i := range m.Attachments {
		a := &m.Attachments[i]
		var hash, storage sql.NullString
		if a.Resolved() {
			h, rel := blobKey(a.Blob)
			hash = nullString(h)
			storage = nullString(rel)
		}
		_, err := tx.Exec(`
			INSERT INTO attachments (
				message_id, source_path, external_url, mime_type, size,
				content_hash, storage_path, resolved
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			msgID, nullString(a.SourcePath), nullString(a.URL),
			nullString(a.MIME), a.Size, hash, storage, a.Resolved())
		if err != nil {
			return 0, fmt.Errorf("insert attachment: %w", err)
		}
	}

	if sh := m.Share; sh != nil {
		_, err := tx.Exec(`
			INSERT INTO shares (message_id, url, share_text, date_created)
			VALUES (?, ?, ?, ?)
		`, msgID, nullString(sh.URL), nullString(sh.Text), dbTime(sh.DateCreated))
		if err != nil {
			return 0, fmt.Errorf("insert share: %w", err)
		}
	}
	if c := m.Call; c != nil {
		_, err := tx.Exec(`
			INSERT INTO call_records (message_id, call_type, missed, duration_seconds)
			VALUES (?, ?, ?, ?)
		`, msgID, string(c.Type), c.Missed, int64(c.Duration.Seconds()))
		if err != nil {
			return 0, fmt.Errorf("insert call record: %w", err)
		}
	}

	if s.fts5Available {
		names := make([]string, 0, len(conv.Participants))
		for _, p := range conv.Participants {
			names = append(names, p.Username)
		}
		_, err := tx.Exec(`
			INSERT INTO messages_fts (rowid, message_id, body, author, thread)
			VALUES (?, ?, ?, ?, ?)
		`, msgID, msgID, m.Body, authorName, strings.Join(names, " "))
		if err != nil {
			return 0, fmt.Errorf("insert FTS row: %w", err)
		}
	}

	return len(m.Attachments), nil
}

func insertSocialLinks(tx *sql.Tx, importID int64, direction string, links []instagram.SocialLink) error {
	for _, l := range links {
		_, err := tx.Exec(`
			INSERT INTO social_links (import_id, direction, username, platform_id)
			VALUES (?, ?, ?, ?)
		`, importID, direction, nullString(l.Username), nullString(l.PlatformID))
		if err != nil {
			return fmt.Errorf("insert %s link: %w", direction, err)
		}
	}
	return nil
}

func insertDevices(tx *sql.Tx, importID int64, devices []instagram.Device) error {
	for _, d := range devices {
		_, err := tx.Exec(`
			INSERT INTO devices (import_id, name, os, device_type, status, last_seen)
			VALUES (?, ?, ?, ?, ?, ?)
		`, importID, nullString(d.Name), nullString(d.OS), nullString(d.Type),
			nullString(d.Status), dbTime(d.LastSeen))
		if err != nil {
			return fmt.Errorf("insert device: %w", err)
		}
	}
	return nil
}

func insertLogins(tx *sql.Tx, importID int64, logins []instagram.LoginEvent) error {
	for _, l := range logins {
		_, err := tx.Exec(`
			INSERT INTO logins (import_id, occurred_at, ip_address, action)
			VALUES (?, ?, ?, ?)
		`, importID, dbTime(l.At), nullString(l.IP), l.Action)
		if err != nil {
			return fmt.Errorf("insert login: %w", err)
		}
	}
	return nil
}

func insertPhotos(tx *sql.Tx, importID int64, photos []instagram.Photo) error {
	for i := range photos {
		p := &photos[i]
		var hash, storage sql.NullString
		if p.Resolved() {
			h, rel := blobKey(p.Blob)
			hash = nullString(h)
			storage = nullString(rel)
		}
		_, err := tx.Exec(`
			INSERT INTO photos (
				import_id, source_path, external_url, mime_type, size,
				content_hash, storage_path, taken_at, caption
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			importID, nullString(p.SourcePath), nullString(p.URL),
			nullString(p.MIME), p.Size, hash, storage,
			dbTime(p.Taken), nullString(p.Caption))
		if err != nil {
			return fmt.Errorf("insert photo: %w", err)
		}
	}
	return nil
}

func insertCyberTips(tx *sql.Tx, importID int64, tips []instagram.CyberTip) error {
	for _, t := range tips {
		_, err := tx.Exec(`
			INSERT INTO cyber_tips (import_id, report_id, reported_at)
			VALUES (?, ?, ?)
		`, importID, t.ReportID, dbTime(t.Time))
		if err != nil {
			return fmt.Errorf("insert cyber tip: %w", err)
		}
	}
	return nil
}

func insertDiagnostics(tx *sql.Tx, importID int64, diags []instagram.Diagnostic) error {
	if len(diags) == 0 {
		return nil
	}
	err := insertInChunks(tx, len(diags), 4,
		"INSERT INTO diagnostics (import_id, section, context, message) VALUES ",
		func(start, end int) ([]string, []interface{}) {
			values := make([]string, end-start)
			args := make([]interface{}, 0, (end-start)*4)
			for i := start; i < end; i++ {
				values[i-start] = "(?, ?, ?, ?)"
				args = append(args, importID, nullString(diags[i].Section),
					nullString(diags[i].Context), diags[i].Message)
			}
			return values, args
		})
	if err != nil {
		return fmt.Errorf("insert diagnostics: %w", err)
	}
	return nil
}

// dbTime formats an optional time for storage, normalized to UTC.
// Nil stays NULL; it is never substituted with the time of writing.
func dbTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return dbTimeVal(*t)
}

func dbTimeVal(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
