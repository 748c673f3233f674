package query

import (
	"context"

	"github.com/recordvault/recordvault/internal/search"
	"github.com/recordvault/recordvault/internal/store"
)

// Engine provides read-side queries over a vault database.
// Two backends implement it:
//   - SQLiteEngine: direct queries against the vault (the default)
//   - DuckDBEngine: read-only attach of the vault for aggregate queries
//     on large cases, delegating list and FTS queries back to SQLite
type Engine interface {
	// TopSenders ranks message authors in a case by message count.
	TopSenders(ctx context.Context, caseID string, opts Options) ([]AggregateRow, error)

	// MessagesByDay buckets dated messages by calendar day (UTC),
	// ascending. Undated messages are excluded.
	MessagesByDay(ctx context.Context, caseID string, opts Options) ([]AggregateRow, error)

	// TypeBreakdown counts messages per message type, largest first.
	TypeBreakdown(ctx context.Context, caseID string, opts Options) ([]AggregateRow, error)

	// CaseTotals returns overall counts and the dated-message window.
	CaseTotals(ctx context.Context, caseID string) (*CaseTotals, error)

	// ListConversations pages conversations, most recently active first.
	ListConversations(ctx context.Context, caseID string, offset, limit int) ([]store.ConversationSummary, int64, error)

	// ListMessages pages a conversation transcript in document order.
	ListMessages(ctx context.Context, conversationID int64, offset, limit int) ([]store.MessageView, int64, error)

	// Search runs a parsed query against a case, newest hits first.
	Search(ctx context.Context, caseID string, q *search.Query, offset, limit int) ([]MessageHit, int64, error)

	// Close releases any resources held by the engine. It never closes
	// the underlying store.
	Close() error
}
