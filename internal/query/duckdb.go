package query

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/recordvault/recordvault/internal/search"
	"github.com/recordvault/recordvault/internal/store"
)

// DuckDBEngine implements Engine with the vault attached read-only to an
// in-memory DuckDB instance via its sqlite extension. Aggregate queries
// run in DuckDB, which scans the attached file far faster than SQLite on
// large cases. List queries and FTS search still need SQLite (the sqlite
// extension cannot use FTS5 or the store's payload loading), so those
// delegate to the fallback engine.
type DuckDBEngine struct {
	db       *sql.DB
	fallback *SQLiteEngine
}

// NewDuckDBEngine opens an in-memory DuckDB, loads the sqlite extension
// and attaches the vault at vaultPath read-only. fallback serves the list
// and search queries; it must wrap the same vault.
func NewDuckDBEngine(vaultPath string, fallback *SQLiteEngine) (*DuckDBEngine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	// Session settings (SET, ATTACH) do not propagate across pooled
	// connections; a single connection keeps them consistent.
	db.SetMaxOpenConns(1)

	// GOMAXPROCS rather than NumCPU so container CPU limits are honored.
	if _, err := db.Exec(fmt.Sprintf("SET threads = %d", runtime.GOMAXPROCS(0))); err != nil {
		db.Close()
		return nil, fmt.Errorf("set threads: %w", err)
	}

	if _, err := db.Exec("INSTALL sqlite; LOAD sqlite;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("load sqlite extension: %w", err)
	}

	escaped := strings.ReplaceAll(vaultPath, "'", "''")
	attach := fmt.Sprintf("ATTACH '%s' AS vault (TYPE sqlite, READ_ONLY)", escaped)
	if _, err := db.Exec(attach); err != nil {
		db.Close()
		return nil, fmt.Errorf("attach vault: %w", err)
	}

	return &DuckDBEngine{db: db, fallback: fallback}, nil
}

// Close releases the DuckDB instance. The fallback engine and its store
// belong to the caller.
func (e *DuckDBEngine) Close() error {
	return e.db.Close()
}

func (e *DuckDBEngine) TopSenders(ctx context.Context, caseID string, opts Options) ([]AggregateRow, error) {
	dateCond, dateArgs := dateConditions(opts)
	limit := opts.Limit
	if limit <= 0 {
		limit = topSendersDefaultLimit
	}

	args := append([]interface{}{caseID}, dateArgs...)
	args = append(args, limit)
	return scanAggregateRows(ctx, e.db, topSendersSQL("vault.", dateCond), args)
}

func (e *DuckDBEngine) MessagesByDay(ctx context.Context, caseID string, opts Options) ([]AggregateRow, error) {
	dateCond, dateArgs := dateConditions(opts)

	limitClause := ""
	args := append([]interface{}{caseID}, dateArgs...)
	if opts.Limit > 0 {
		limitClause = "LIMIT ?"
		args = append(args, opts.Limit)
	}
	return scanAggregateRows(ctx, e.db, messagesByDaySQL("vault.", dateCond, limitClause), args)
}

func (e *DuckDBEngine) TypeBreakdown(ctx context.Context, caseID string, opts Options) ([]AggregateRow, error) {
	dateCond, dateArgs := dateConditions(opts)

	limitClause := ""
	args := append([]interface{}{caseID}, dateArgs...)
	if opts.Limit > 0 {
		limitClause = "LIMIT ?"
		args = append(args, opts.Limit)
	}
	return scanAggregateRows(ctx, e.db, typeBreakdownSQL("vault.", dateCond, limitClause), args)
}

func (e *DuckDBEngine) CaseTotals(ctx context.Context, caseID string) (*CaseTotals, error) {
	return caseTotals(ctx, e.db, "vault.", caseID)
}

func (e *DuckDBEngine) ListConversations(ctx context.Context, caseID string, offset, limit int) ([]store.ConversationSummary, int64, error) {
	if e.fallback == nil {
		return nil, 0, fmt.Errorf("ListConversations requires the sqlite fallback engine")
	}
	return e.fallback.ListConversations(ctx, caseID, offset, limit)
}

func (e *DuckDBEngine) ListMessages(ctx context.Context, conversationID int64, offset, limit int) ([]store.MessageView, int64, error) {
	if e.fallback == nil {
		return nil, 0, fmt.Errorf("ListMessages requires the sqlite fallback engine")
	}
	return e.fallback.ListMessages(ctx, conversationID, offset, limit)
}

func (e *DuckDBEngine) Search(ctx context.Context, caseID string, q *search.Query, offset, limit int) ([]MessageHit, int64, error) {
	if e.fallback == nil {
		return nil, 0, fmt.Errorf("Search requires the sqlite fallback engine")
	}
	return e.fallback.Search(ctx, caseID, q, offset, limit)
}
