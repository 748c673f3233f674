package cmd

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/recordvault/recordvault/internal/query"
	"github.com/recordvault/recordvault/internal/store"
)

// openStore opens the vault database and brings the schema up to date.
// Failures are wrapped with eris so --verbose shows where an unusable
// vault was first touched.
func openStore() (*store.Store, error) {
	dbPath := cfg.DatabasePath()
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, eris.Wrapf(err, "open vault database %s", dbPath)
	}
	if err := s.InitSchema(); err != nil {
		s.Close()
		return nil, eris.Wrap(err, "initialize vault schema")
	}
	return s, nil
}

// resolveCase resolves a case ID or name against the vault.
func resolveCase(s *store.Store, ref string) (*store.Case, error) {
	c, err := s.ResolveCase(ref)
	if err != nil {
		return nil, fmt.Errorf("%w\n\n"+
			"Run 'recordvault case list' to see cases,\n"+
			"or 'recordvault case create <name>' to start one.", err)
	}
	return c, nil
}

// defaultCase picks the only case in the vault. With zero or several
// cases the caller has to name one.
func defaultCase(s *store.Store) (*store.Case, error) {
	cases, err := s.ListCases()
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	switch len(cases) {
	case 0:
		return nil, fmt.Errorf("the vault has no cases yet\n\n" +
			"Create one with 'recordvault case create <name>'.")
	case 1:
		return cases[0], nil
	default:
		return nil, fmt.Errorf("the vault has %d cases; name the one to open\n\n"+
			"Run 'recordvault case list' to see them.", len(cases))
	}
}

// resolveConversation accepts a conversation row ID or a platform thread
// ID. Thread IDs are long digit strings that usually fit an int64, so the
// row ID lookup is tried first and the thread lookup covers the miss.
func resolveConversation(s *store.Store, ref string) (*store.ConversationSummary, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		conv, err := s.GetConversation(id)
		if err != nil {
			return nil, fmt.Errorf("get conversation: %w", err)
		}
		if conv != nil {
			return conv, nil
		}
	}
	conv, err := s.GetConversationByThreadID(ref)
	if err != nil {
		return nil, fmt.Errorf("get conversation by thread: %w", err)
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %q not found\n\n"+
			"Run 'recordvault conversations <case>' to list threads.", ref)
	}
	return conv, nil
}

// newEngine returns the query engine named by selection: "sqlite" runs
// directly against the vault, "duckdb" attaches it via sqlite_scan for
// analytic queries over large cases.
func newEngine(s *store.Store, selection string) (query.Engine, error) {
	sqlEngine := query.NewSQLiteEngine(s)
	switch selection {
	case "", "sqlite":
		return sqlEngine, nil
	case "duckdb":
		engine, err := query.NewDuckDBEngine(s.Path(), sqlEngine)
		if err != nil {
			return nil, eris.Wrap(err, "open duckdb engine")
		}
		return engine, nil
	default:
		return nil, fmt.Errorf("unknown query engine %q (use sqlite or duckdb)", selection)
	}
}
