// Package search parses the message search grammar used by the CLI, API
// and TUI: bare terms and quoted phrases go to full-text search, and
// operator:value pairs narrow by sender, thread, message type, payload,
// removal state or date.
package search

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Query is a parsed search query.
type Query struct {
	TextTerms []string // full-text terms and quoted phrases
	Senders   []string // from: username or platform ID
	Threads   []string // thread: thread IDs
	Types     []string // type: message type filters

	HasAttachment *bool // has:attachment
	HasShare      *bool // has:share
	HasCall       *bool // has:call
	Removed       *bool // removed:true|false

	BeforeDate *time.Time // before: (exclusive)
	AfterDate  *time.Time // after: (inclusive)
}

// IsEmpty reports whether the query has no criteria at all.
func (q *Query) IsEmpty() bool {
	return len(q.TextTerms) == 0 &&
		len(q.Senders) == 0 &&
		len(q.Threads) == 0 &&
		len(q.Types) == 0 &&
		q.HasAttachment == nil &&
		q.HasShare == nil &&
		q.HasCall == nil &&
		q.Removed == nil &&
		q.BeforeDate == nil &&
		q.AfterDate == nil
}

// messageTypes are the values accepted by type:.
var messageTypes = map[string]bool{
	"text":  true,
	"image": true,
	"video": true,
	"audio": true,
	"file":  true,
	"share": true,
	"call":  true,
}

// operatorFn applies one operator:value pair to the query.
type operatorFn func(q *Query, value string, now time.Time)

var operators = map[string]operatorFn{
	"from": func(q *Query, v string, _ time.Time) {
		q.Senders = append(q.Senders, strings.ToLower(v))
	},
	"thread": func(q *Query, v string, _ time.Time) {
		q.Threads = append(q.Threads, v)
	},
	"type": func(q *Query, v string, _ time.Time) {
		if low := strings.ToLower(v); messageTypes[low] {
			q.Types = append(q.Types, low)
		}
	},
	"has": func(q *Query, v string, _ time.Time) {
		b := true
		switch strings.ToLower(v) {
		case "attachment", "attachments":
			q.HasAttachment = &b
		case "share", "link":
			q.HasShare = &b
		case "call":
			q.HasCall = &b
		}
	},
	"removed": func(q *Query, v string, _ time.Time) {
		if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
			q.Removed = &b
		}
	},
	"before": func(q *Query, v string, _ time.Time) {
		if t := parseDate(v); t != nil {
			q.BeforeDate = t
		}
	},
	"after": func(q *Query, v string, _ time.Time) {
		if t := parseDate(v); t != nil {
			q.AfterDate = t
		}
	},
	"older_than": func(q *Query, v string, now time.Time) {
		if t := parseRelativeDate(v, now); t != nil {
			q.BeforeDate = t
		}
	},
	"newer_than": func(q *Query, v string, now time.Time) {
		if t := parseRelativeDate(v, now); t != nil {
			q.AfterDate = t
		}
	},
}

// Parser holds configuration for query parsing.
type Parser struct {
	Now func() time.Time // time source (mockable for testing)
}

// NewParser creates a Parser with default settings.
func NewParser() *Parser {
	return &Parser{Now: func() time.Time { return time.Now().UTC() }}
}

// Parse parses a search query string.
//
// Supported operators:
//   - from: - sender username or platform ID
//   - thread: - thread ID
//   - type: - message type (text, image, video, audio, file, share, call)
//   - has:attachment, has:share, has:call - payload filters
//   - removed:true|false - removed-by-sender filter
//   - before:, after: - absolute date filters (YYYY-MM-DD)
//   - older_than:, newer_than: - relative date filters (7d, 2w, 1m, 1y)
//   - bare words and "quoted phrases" - full-text search
//
// Unknown operators and invalid operator values degrade gracefully: the
// whole token becomes a text term or the pair is dropped, never an error,
// so anything typed into a search box produces a best-effort query.
func (p *Parser) Parse(queryStr string) *Query {
	q := &Query{}
	now := time.Now().UTC()
	if p.Now != nil {
		now = p.Now()
	}

	for _, token := range tokenize(queryStr) {
		if isQuotedPhrase(token) {
			q.TextTerms = append(q.TextTerms, unquote(token))
			continue
		}

		if idx := strings.Index(token, ":"); idx != -1 {
			op := strings.ToLower(token[:idx])
			value := unquote(token[idx+1:])
			if handler, ok := operators[op]; ok {
				handler(q, value, now)
				continue
			}
		}

		q.TextTerms = append(q.TextTerms, token)
	}

	return q
}

// Parse parses using default settings.
func Parse(queryStr string) *Query {
	return NewParser().Parse(queryStr)
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func isQuotedPhrase(token string) bool {
	return len(token) > 2 && token[0] == '"' && token[len(token)-1] == '"'
}

// tokenize splits on spaces while keeping double-quoted phrases together,
// both standalone ("some phrase") and as operator values (from:"jane doe").
func tokenize(queryStr string) []string {
	var tokens []string
	var current strings.Builder
	inQuotes := false

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, char := range queryStr {
		switch {
		case char == '"':
			inQuotes = !inQuotes
			current.WriteRune(char)
		case char == ' ' && !inQuotes:
			flush()
		default:
			current.WriteRune(char)
		}
	}
	flush()
	return tokens
}

// parseDate parses absolute dates like YYYY-MM-DD or YYYY/MM/DD.
func parseDate(value string) *time.Time {
	formats := []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
	}

	value = strings.TrimSpace(value)
	for _, format := range formats {
		if t, err := time.Parse(format, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

var relativeDateRe = regexp.MustCompile(`^(\d+)([dwmy])$`)

// parseRelativeDate parses relative dates like 7d, 2w, 1m, 1y against now.
func parseRelativeDate(value string, now time.Time) *time.Time {
	match := relativeDateRe.FindStringSubmatch(strings.TrimSpace(strings.ToLower(value)))
	if match == nil {
		return nil
	}

	amount, _ := strconv.Atoi(match[1])
	var result time.Time
	switch match[2] {
	case "d":
		result = now.AddDate(0, 0, -amount)
	case "w":
		result = now.AddDate(0, 0, -amount*7)
	case "m":
		result = now.AddDate(0, -amount, 0)
	case "y":
		result = now.AddDate(-amount, 0, 0)
	default:
		return nil
	}
	return &result
}
