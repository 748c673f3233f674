// Package mcp exposes a vault to MCP clients over stdio: read-only tools
// for listing cases, browsing conversations, searching messages, and
// pulling stats and attachment content.
package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/recordvault/recordvault/internal/query"
	"github.com/recordvault/recordvault/internal/store"
)

// Tool name constants.
const (
	ToolListCases         = "list_cases"
	ToolListConversations = "list_conversations"
	ToolGetConversation   = "get_conversation"
	ToolSearchMessages    = "search_messages"
	ToolCaseStats         = "case_stats"
	ToolAggregate         = "aggregate"
	ToolGetAttachment     = "get_attachment"
)

// Common argument helpers for recurring tool option definitions.

func withCase() mcp.ToolOption {
	return mcp.WithString("case",
		mcp.Required(),
		mcp.Description("Case ID or case name (use list_cases to discover)"),
	)
}

func withLimit(defaultDesc string) mcp.ToolOption {
	return mcp.WithNumber("limit",
		mcp.Description("Maximum results to return (default "+defaultDesc+")"),
	)
}

func withOffset() mcp.ToolOption {
	return mcp.WithNumber("offset",
		mcp.Description("Number of results to skip for pagination (default 0)"),
	)
}

func withAfter() mcp.ToolOption {
	return mcp.WithString("after",
		mcp.Description("Only messages on or after this date (YYYY-MM-DD)"),
	)
}

func withBefore() mcp.ToolOption {
	return mcp.WithString("before",
		mcp.Description("Only messages before this date (YYYY-MM-DD)"),
	)
}

// Serve creates an MCP server with vault tools and serves over stdio.
// It blocks until stdin is closed or the context is cancelled.
func Serve(ctx context.Context, st *store.Store, engine query.Engine, attachmentsDir string) error {
	s := server.NewMCPServer(
		"recordvault",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	h := &handlers{store: st, engine: engine, attachmentsDir: attachmentsDir}

	s.AddTool(listCasesTool(), h.listCases)
	s.AddTool(listConversationsTool(), h.listConversations)
	s.AddTool(getConversationTool(), h.getConversation)
	s.AddTool(searchMessagesTool(), h.searchMessages)
	s.AddTool(caseStatsTool(), h.caseStats)
	s.AddTool(aggregateTool(), h.aggregate)
	s.AddTool(getAttachmentTool(), h.getAttachment)

	stdio := server.NewStdioServer(s)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func listCasesTool() mcp.Tool {
	return mcp.NewTool(ToolListCases,
		mcp.WithDescription("List the cases in the vault with their IDs, names, and subjects."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func listConversationsTool() mcp.Tool {
	return mcp.NewTool(ToolListConversations,
		mcp.WithDescription("List a case's conversations, most recently active first, with participants and message counts."),
		mcp.WithReadOnlyHintAnnotation(true),
		withCase(),
		withLimit("20"),
		withOffset(),
	)
}

func getConversationTool() mcp.Tool {
	return mcp.NewTool(ToolGetConversation,
		mcp.WithDescription("Get a conversation transcript page in thread order, including attachment, share, and call payloads."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithNumber("conversation_id",
			mcp.Required(),
			mcp.Description("Conversation ID (from list_conversations or search_messages)"),
		),
		withLimit("50"),
		withOffset(),
	)
}

func searchMessagesTool() mcp.Tool {
	return mcp.NewTool(ToolSearchMessages,
		mcp.WithDescription("Search a case's messages. Supports from:, thread:, type:, has:attachment, has:share, has:call, removed:, before:, after:, quoted phrases, and free text."),
		mcp.WithReadOnlyHintAnnotation(true),
		withCase(),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query (e.g. 'from:janedoe pier after:2020-01-01')"),
		),
		withLimit("20"),
		withOffset(),
	)
}

func caseStatsTool() mcp.Tool {
	return mcp.NewTool(ToolCaseStats,
		mcp.WithDescription("Get case totals: imports, conversations, messages, attachments, participants, logins, and the dated-message window."),
		mcp.WithReadOnlyHintAnnotation(true),
		withCase(),
	)
}

func aggregateTool() mcp.Tool {
	return mcp.NewTool(ToolAggregate,
		mcp.WithDescription("Get grouped message counts for a case (top senders, volume per day, or counts per message type)."),
		mcp.WithReadOnlyHintAnnotation(true),
		withCase(),
		mcp.WithString("group_by",
			mcp.Required(),
			mcp.Description("Dimension to group by"),
			mcp.Enum("sender", "day", "type"),
		),
		withLimit("50"),
		withAfter(),
		withBefore(),
	)
}

func getAttachmentTool() mcp.Tool {
	return mcp.NewTool(ToolGetAttachment,
		mcp.WithDescription("Get stored attachment content by attachment ID. Returns base64-encoded content with metadata. Use get_conversation first to find attachment IDs."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithNumber("attachment_id",
			mcp.Required(),
			mcp.Description("Attachment ID (from get_conversation response)"),
		),
	)
}
