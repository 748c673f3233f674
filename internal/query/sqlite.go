package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/recordvault/recordvault/internal/search"
	"github.com/recordvault/recordvault/internal/store"
	"github.com/recordvault/recordvault/internal/textutil"
)

// snippetRunes caps the snippet attached to each search hit.
const snippetRunes = 160

// SQLiteEngine implements Engine with direct queries against the vault.
type SQLiteEngine struct {
	store *store.Store
}

// NewSQLiteEngine creates a SQLite-backed query engine over an open store.
// The engine does not own the store; closing the engine leaves it open.
func NewSQLiteEngine(st *store.Store) *SQLiteEngine {
	return &SQLiteEngine{store: st}
}

// Close is a no-op: the store belongs to the caller.
func (e *SQLiteEngine) Close() error { return nil }

func (e *SQLiteEngine) TopSenders(ctx context.Context, caseID string, opts Options) ([]AggregateRow, error) {
	dateCond, dateArgs := dateConditions(opts)
	limit := opts.Limit
	if limit <= 0 {
		limit = topSendersDefaultLimit
	}

	args := append([]interface{}{caseID}, dateArgs...)
	args = append(args, limit)
	return scanAggregateRows(ctx, e.store.DB(), topSendersSQL("", dateCond), args)
}

func (e *SQLiteEngine) MessagesByDay(ctx context.Context, caseID string, opts Options) ([]AggregateRow, error) {
	dateCond, dateArgs := dateConditions(opts)

	limitClause := ""
	args := append([]interface{}{caseID}, dateArgs...)
	if opts.Limit > 0 {
		limitClause = "LIMIT ?"
		args = append(args, opts.Limit)
	}
	return scanAggregateRows(ctx, e.store.DB(), messagesByDaySQL("", dateCond, limitClause), args)
}

func (e *SQLiteEngine) TypeBreakdown(ctx context.Context, caseID string, opts Options) ([]AggregateRow, error) {
	dateCond, dateArgs := dateConditions(opts)

	limitClause := ""
	args := append([]interface{}{caseID}, dateArgs...)
	if opts.Limit > 0 {
		limitClause = "LIMIT ?"
		args = append(args, opts.Limit)
	}
	return scanAggregateRows(ctx, e.store.DB(), typeBreakdownSQL("", dateCond, limitClause), args)
}

func (e *SQLiteEngine) CaseTotals(ctx context.Context, caseID string) (*CaseTotals, error) {
	return caseTotals(ctx, e.store.DB(), "", caseID)
}

// ListConversations delegates to the store; its reads are synchronous.
func (e *SQLiteEngine) ListConversations(_ context.Context, caseID string, offset, limit int) ([]store.ConversationSummary, int64, error) {
	return e.store.ListConversations(caseID, offset, limit)
}

// ListMessages delegates to the store; its reads are synchronous.
func (e *SQLiteEngine) ListMessages(_ context.Context, conversationID int64, offset, limit int) ([]store.MessageView, int64, error) {
	return e.store.ListMessages(conversationID, offset, limit)
}

// Search runs a parsed search query. Text terms use FTS5 when the vault
// has it and fall back to LIKE matching on the body otherwise; operator
// filters become plain WHERE conditions either way.
func (e *SQLiteEngine) Search(ctx context.Context, caseID string, q *search.Query, offset, limit int) ([]MessageHit, int64, error) {
	if q == nil {
		q = &search.Query{}
	}
	if limit <= 0 {
		limit = 100
	}

	conds := []string{"c.case_id = ?"}
	args := []interface{}{caseID}

	if len(q.Senders) > 0 {
		ph := placeholders(len(q.Senders))
		conds = append(conds, fmt.Sprintf(
			"(LOWER(COALESCE(p.username, '')) IN (%s) OR p.platform_id IN (%s))", ph, ph))
		for i := 0; i < 2; i++ {
			for _, s := range q.Senders {
				args = append(args, s)
			}
		}
	}

	if len(q.Threads) > 0 {
		conds = append(conds, fmt.Sprintf("c.thread_id IN (%s)", placeholders(len(q.Threads))))
		for _, t := range q.Threads {
			args = append(args, t)
		}
	}

	if len(q.Types) > 0 {
		conds = append(conds, fmt.Sprintf("m.message_type IN (%s)", placeholders(len(q.Types))))
		for _, t := range q.Types {
			args = append(args, t)
		}
	}

	if q.HasAttachment != nil {
		if *q.HasAttachment {
			conds = append(conds, "m.attachment_count > 0")
		} else {
			conds = append(conds, "m.attachment_count = 0")
		}
	}
	if q.HasShare != nil {
		conds = append(conds, existsCond("shares", *q.HasShare))
	}
	if q.HasCall != nil {
		conds = append(conds, existsCond("call_records", *q.HasCall))
	}
	if q.Removed != nil {
		if *q.Removed {
			conds = append(conds, "m.removed_by_sender = 1")
		} else {
			conds = append(conds, "m.removed_by_sender = 0")
		}
	}

	if q.AfterDate != nil {
		conds = append(conds, "m.sent_at >= ?")
		args = append(args, q.AfterDate.UTC().Format(sqlTimeLayout))
	}
	if q.BeforeDate != nil {
		conds = append(conds, "m.sent_at < ?")
		args = append(args, q.BeforeDate.UTC().Format(sqlTimeLayout))
	}

	ftsJoin := ""
	if len(q.TextTerms) > 0 {
		if e.store.FTSAvailable() {
			ftsJoin = "JOIN messages_fts fts ON fts.rowid = m.id"
			conds = append(conds, "messages_fts MATCH ?")
			args = append(args, ftsMatchExpr(q.TextTerms))
		} else {
			for _, term := range q.TextTerms {
				conds = append(conds, "m.body LIKE ?")
				args = append(args, "%"+term+"%")
			}
		}
	}

	where := strings.Join(conds, " AND ")

	var total int64
	countQuery := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		LEFT JOIN participants p ON p.id = m.author_id
		%s
		WHERE %s
	`, ftsJoin, where)
	if err := e.store.DB().QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search hits: %w", err)
	}

	pageQuery := fmt.Sprintf(`
		SELECT m.id, m.conversation_id, c.thread_id, m.seq,
			COALESCE(NULLIF(p.username, ''), p.platform_id, ''),
			m.sent_at, COALESCE(m.body, ''), m.message_type,
			m.removed_by_sender, m.attachment_count
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		LEFT JOIN participants p ON p.id = m.author_id
		%s
		WHERE %s
		ORDER BY m.sent_at DESC, m.id DESC
		LIMIT ? OFFSET ?
	`, ftsJoin, where)
	args = append(args, limit, offset)

	rows, err := e.store.DB().QueryContext(ctx, pageQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	var hits []MessageHit
	for rows.Next() {
		var h MessageHit
		var sentAt sql.NullString
		if err := rows.Scan(
			&h.ID, &h.ConversationID, &h.ThreadID, &h.Seq,
			&h.Author, &sentAt, &h.Body, &h.Type,
			&h.RemovedBySender, &h.AttachmentCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan search hit: %w", err)
		}
		if sentAt.Valid {
			h.SentAt = parseStoredTime(sentAt.String)
		}
		h.Snippet = textutil.Snippet(h.Body, snippetRunes)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search hits: %w", err)
	}

	return hits, total, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func existsCond(table string, want bool) string {
	cond := fmt.Sprintf("EXISTS (SELECT 1 FROM %s x WHERE x.message_id = m.id)", table)
	if !want {
		return "NOT " + cond
	}
	return cond
}

// ftsMatchExpr renders text terms as an FTS5 match expression. Every term
// is quoted so user input can never be mistaken for FTS syntax.
func ftsMatchExpr(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}
