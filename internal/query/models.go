// Package query is the read-side analytics layer over a vault database.
// It answers the aggregate questions an investigator asks of a case (who
// talks the most, when, with what) and runs grammar-driven message search.
// The package is backend-agnostic: SQLiteEngine queries the vault
// directly, DuckDBEngine attaches it read-only for faster aggregates on
// large cases.
package query

import "time"

// AggregateRow is one bucket of an aggregate view: a sender, a day, or a
// message type, with its message count.
type AggregateRow struct {
	Key   string
	Count int64
}

// CaseTotals summarizes everything stored for one case.
type CaseTotals struct {
	Imports       int64
	Conversations int64
	Messages      int64
	Attachments   int64
	Participants  int64
	SocialLinks   int64
	Devices       int64
	Logins        int64
	Photos        int64

	// Earliest and latest dated message, nil when the case has none.
	FirstMessage *time.Time
	LastMessage  *time.Time
}

// Options narrows an aggregate query.
type Options struct {
	// After/Before restrict to messages sent in [After, Before).
	After  *time.Time
	Before *time.Time

	// Limit caps the number of buckets returned. Zero means the
	// per-view default (TopSenders: 20; day and type views: unlimited).
	Limit int
}

// MessageHit is one search result. It carries enough for a result list
// without loading attachment, share, or call payloads.
type MessageHit struct {
	ID              int64
	ConversationID  int64
	ThreadID        string
	Seq             int64
	Author          string
	SentAt          *time.Time
	Body            string
	Snippet         string
	Type            string
	RemovedBySender bool
	AttachmentCount int64
}
