package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// sqlTimeLayout matches the TEXT timestamp format the store writes.
const sqlTimeLayout = "2006-01-02 15:04:05"

// topSendersDefaultLimit caps TopSenders when Options.Limit is zero.
const topSendersDefaultLimit = 20

// dateConditions renders optional sent_at range conditions for aggregate
// queries. The returned SQL starts with " AND" when non-empty.
func dateConditions(opts Options) (string, []interface{}) {
	var cond string
	var args []interface{}
	if opts.After != nil {
		cond += " AND m.sent_at >= ?"
		args = append(args, opts.After.UTC().Format(sqlTimeLayout))
	}
	if opts.Before != nil {
		cond += " AND m.sent_at < ?"
		args = append(args, opts.Before.UTC().Format(sqlTimeLayout))
	}
	return cond, args
}

// The aggregate SQL below is shared by both engines. prefix is "" for
// direct SQLite and "vault." for DuckDB's read-only attach. Only portable
// expressions are used (substr, COALESCE, alias grouping) so the same
// statement runs under either engine.

func topSendersSQL(prefix, dateCond string) string {
	return fmt.Sprintf(`
		SELECT COALESCE(NULLIF(p.username, ''), p.platform_id) AS key, COUNT(*) AS n
		FROM %smessages m
		JOIN %sconversations c ON c.id = m.conversation_id
		JOIN %sparticipants p ON p.id = m.author_id
		WHERE c.case_id = ?%s
		GROUP BY key
		ORDER BY n DESC, key ASC
		LIMIT ?
	`, prefix, prefix, prefix, dateCond)
}

func messagesByDaySQL(prefix, dateCond, limitClause string) string {
	return fmt.Sprintf(`
		SELECT substr(m.sent_at, 1, 10) AS key, COUNT(*) AS n
		FROM %smessages m
		JOIN %sconversations c ON c.id = m.conversation_id
		WHERE c.case_id = ? AND m.sent_at IS NOT NULL%s
		GROUP BY key
		ORDER BY key ASC
		%s
	`, prefix, prefix, dateCond, limitClause)
}

func typeBreakdownSQL(prefix, dateCond, limitClause string) string {
	return fmt.Sprintf(`
		SELECT m.message_type AS key, COUNT(*) AS n
		FROM %smessages m
		JOIN %sconversations c ON c.id = m.conversation_id
		WHERE c.case_id = ?%s
		GROUP BY key
		ORDER BY n DESC, key ASC
		%s
	`, prefix, prefix, dateCond, limitClause)
}

// caseTotalsSQL counts every entity belonging to a case in one statement.
// The case ID parameter repeats once per subquery.
func caseTotalsSQL(prefix string) (sql string, paramCount int) {
	sql = fmt.Sprintf(`
		SELECT
			(SELECT COUNT(*) FROM %[1]simports WHERE case_id = ?),
			(SELECT COUNT(*) FROM %[1]sconversations WHERE case_id = ?),
			(SELECT COUNT(*) FROM %[1]smessages m
				JOIN %[1]sconversations c ON c.id = m.conversation_id WHERE c.case_id = ?),
			(SELECT COUNT(*) FROM %[1]sattachments a
				JOIN %[1]smessages m ON m.id = a.message_id
				JOIN %[1]sconversations c ON c.id = m.conversation_id WHERE c.case_id = ?),
			(SELECT COUNT(*) FROM %[1]sparticipants WHERE case_id = ?),
			(SELECT COUNT(*) FROM %[1]ssocial_links s
				JOIN %[1]simports i ON i.id = s.import_id WHERE i.case_id = ?),
			(SELECT COUNT(*) FROM %[1]sdevices d
				JOIN %[1]simports i ON i.id = d.import_id WHERE i.case_id = ?),
			(SELECT COUNT(*) FROM %[1]slogins l
				JOIN %[1]simports i ON i.id = l.import_id WHERE i.case_id = ?),
			(SELECT COUNT(*) FROM %[1]sphotos ph
				JOIN %[1]simports i ON i.id = ph.import_id WHERE i.case_id = ?)
	`, prefix)
	return sql, 9
}

func messageWindowSQL(prefix string) string {
	return fmt.Sprintf(`
		SELECT MIN(m.sent_at), MAX(m.sent_at)
		FROM %smessages m
		JOIN %sconversations c ON c.id = m.conversation_id
		WHERE c.case_id = ? AND m.sent_at IS NOT NULL
	`, prefix, prefix)
}

// parseStoredTime parses a stored TEXT timestamp into UTC.
func parseStoredTime(s string) *time.Time {
	t, err := time.ParseInLocation(sqlTimeLayout, s, time.UTC)
	if err != nil {
		return nil
	}
	return &t
}

// scanAggregateRows runs a two-column (key, count) query on either engine.
func scanAggregateRows(ctx context.Context, db *sql.DB, query string, args []interface{}) ([]AggregateRow, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate query: %w", err)
	}
	defer rows.Close()

	var results []AggregateRow
	for rows.Next() {
		var row AggregateRow
		if err := rows.Scan(&row.Key, &row.Count); err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate rows: %w", err)
	}
	return results, nil
}

// caseTotals is the shared CaseTotals implementation for both engines.
func caseTotals(ctx context.Context, db *sql.DB, prefix, caseID string) (*CaseTotals, error) {
	query, paramCount := caseTotalsSQL(prefix)
	args := make([]interface{}, paramCount)
	for i := range args {
		args[i] = caseID
	}

	totals := &CaseTotals{}
	if err := db.QueryRowContext(ctx, query, args...).Scan(
		&totals.Imports, &totals.Conversations, &totals.Messages,
		&totals.Attachments, &totals.Participants, &totals.SocialLinks,
		&totals.Devices, &totals.Logins, &totals.Photos,
	); err != nil {
		return nil, fmt.Errorf("case totals: %w", err)
	}

	var first, last sql.NullString
	if err := db.QueryRowContext(ctx, messageWindowSQL(prefix), caseID).Scan(&first, &last); err != nil {
		return nil, fmt.Errorf("message window: %w", err)
	}
	if first.Valid {
		totals.FirstMessage = parseStoredTime(first.String)
	}
	if last.Valid {
		totals.LastMessage = parseStoredTime(last.String)
	}
	return totals, nil
}
