// Package querytest provides shared test doubles for the query.Engine interface.
package querytest

import (
	"context"

	"github.com/recordvault/recordvault/internal/query"
	"github.com/recordvault/recordvault/internal/search"
	"github.com/recordvault/recordvault/internal/store"
)

// MockEngine implements query.Engine for testing. Fixed fields supply
// canned results; the optional function fields override per-test.
type MockEngine struct {
	Senders       []query.AggregateRow
	Days          []query.AggregateRow
	TypeCounts    []query.AggregateRow
	Totals        *query.CaseTotals
	Conversations []store.ConversationSummary
	Messages      []store.MessageView
	Hits          []query.MessageHit

	TopSendersFunc        func(context.Context, string, query.Options) ([]query.AggregateRow, error)
	MessagesByDayFunc     func(context.Context, string, query.Options) ([]query.AggregateRow, error)
	TypeBreakdownFunc     func(context.Context, string, query.Options) ([]query.AggregateRow, error)
	CaseTotalsFunc        func(context.Context, string) (*query.CaseTotals, error)
	ListConversationsFunc func(context.Context, string, int, int) ([]store.ConversationSummary, int64, error)
	ListMessagesFunc      func(context.Context, int64, int, int) ([]store.MessageView, int64, error)
	SearchFunc            func(context.Context, string, *search.Query, int, int) ([]query.MessageHit, int64, error)
}

// Compile-time check.
var _ query.Engine = (*MockEngine)(nil)

func (m *MockEngine) TopSenders(ctx context.Context, caseID string, opts query.Options) ([]query.AggregateRow, error) {
	if m.TopSendersFunc != nil {
		return m.TopSendersFunc(ctx, caseID, opts)
	}
	return m.Senders, nil
}

func (m *MockEngine) MessagesByDay(ctx context.Context, caseID string, opts query.Options) ([]query.AggregateRow, error) {
	if m.MessagesByDayFunc != nil {
		return m.MessagesByDayFunc(ctx, caseID, opts)
	}
	return m.Days, nil
}

func (m *MockEngine) TypeBreakdown(ctx context.Context, caseID string, opts query.Options) ([]query.AggregateRow, error) {
	if m.TypeBreakdownFunc != nil {
		return m.TypeBreakdownFunc(ctx, caseID, opts)
	}
	return m.TypeCounts, nil
}

func (m *MockEngine) CaseTotals(ctx context.Context, caseID string) (*query.CaseTotals, error) {
	if m.CaseTotalsFunc != nil {
		return m.CaseTotalsFunc(ctx, caseID)
	}
	if m.Totals != nil {
		return m.Totals, nil
	}
	return &query.CaseTotals{}, nil
}

func (m *MockEngine) ListConversations(ctx context.Context, caseID string, offset, limit int) ([]store.ConversationSummary, int64, error) {
	if m.ListConversationsFunc != nil {
		return m.ListConversationsFunc(ctx, caseID, offset, limit)
	}
	return m.Conversations, int64(len(m.Conversations)), nil
}

func (m *MockEngine) ListMessages(ctx context.Context, conversationID int64, offset, limit int) ([]store.MessageView, int64, error) {
	if m.ListMessagesFunc != nil {
		return m.ListMessagesFunc(ctx, conversationID, offset, limit)
	}
	return m.Messages, int64(len(m.Messages)), nil
}

func (m *MockEngine) Search(ctx context.Context, caseID string, q *search.Query, offset, limit int) ([]query.MessageHit, int64, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, caseID, q, offset, limit)
	}
	return m.Hits, int64(len(m.Hits)), nil
}

func (m *MockEngine) Close() error { return nil }
