package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"path"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/recordvault/recordvault/internal/query"
	"github.com/recordvault/recordvault/internal/search"
	"github.com/recordvault/recordvault/internal/store"
)

const (
	maxLimit          = 1000
	maxAttachmentSize = 50 * 1024 * 1024 // base64 content goes into a JSON result
)

type handlers struct {
	store          *store.Store
	engine         query.Engine
	attachmentsDir string
}

// Result shapes. The store types carry no JSON tags; these do.

type caseInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Subject   string `json:"subject,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type conversationInfo struct {
	ID           int64    `json:"id"`
	ThreadID     string   `json:"thread_id"`
	Section      string   `json:"section,omitempty"`
	Participants []string `json:"participants,omitempty"`
	StartedAt    string   `json:"started_at,omitempty"`
	LastActiveAt string   `json:"last_active_at,omitempty"`
	Messages     int64    `json:"messages"`
	Attachments  int64    `json:"attachments"`
	Shares       int64    `json:"shares"`
	Calls        int64    `json:"calls"`
}

type attachmentInfo struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size"`
	Stored   bool   `json:"stored"`
}

type messageInfo struct {
	ID          int64            `json:"id"`
	Seq         int64            `json:"seq"`
	Author      string           `json:"author,omitempty"`
	SentAt      string           `json:"sent_at,omitempty"`
	Type        string           `json:"type"`
	Body        string           `json:"body,omitempty"`
	Removed     bool             `json:"removed,omitempty"`
	Attachments []attachmentInfo `json:"attachments,omitempty"`
	ShareURL    string           `json:"share_url,omitempty"`
	CallSeconds int64            `json:"call_seconds,omitempty"`
}

type searchHit struct {
	ID              int64  `json:"id"`
	ConversationID  int64  `json:"conversation_id"`
	ThreadID        string `json:"thread_id"`
	Seq             int64  `json:"seq"`
	Author          string `json:"author,omitempty"`
	SentAt          string `json:"sent_at,omitempty"`
	Type            string `json:"type"`
	Snippet         string `json:"snippet,omitempty"`
	Removed         bool   `json:"removed,omitempty"`
	AttachmentCount int64  `json:"attachment_count,omitempty"`
}

type aggregateRow struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// resolveCase extracts the required case argument and resolves it by ID
// or name.
func (h *handlers) resolveCase(args map[string]any) (*store.Case, error) {
	ref, _ := args["case"].(string)
	if ref == "" {
		return nil, fmt.Errorf("case parameter is required")
	}
	return h.store.ResolveCase(ref)
}

// getIDArg extracts a required positive integer ID from the arguments map.
func getIDArg(args map[string]any, key string) (int64, error) {
	v, ok := args[key].(float64)
	if !ok {
		return 0, fmt.Errorf("%s parameter is required", key)
	}
	if v != math.Trunc(v) || v < 1 || v > math.MaxInt64 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return int64(v), nil
}

// getDateArg extracts an optional date (YYYY-MM-DD) from the arguments map.
func getDateArg(args map[string]any, key string) (*time.Time, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s date %q: expected YYYY-MM-DD", key, v)
	}
	return &t, nil
}

func (h *handlers) listCases(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cases, err := h.store.ListCases()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list cases failed: %v", err)), nil
	}

	out := make([]caseInfo, 0, len(cases))
	for _, c := range cases {
		out = append(out, caseInfo{
			ID:        c.ID,
			Name:      c.Name,
			Subject:   c.Subject.String,
			CreatedAt: formatTime(c.CreatedAt),
		})
	}
	return jsonResult(out)
}

func (h *handlers) listConversations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	c, err := h.resolveCase(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	limit := intArg(args, "limit", 20)
	offset := intArg(args, "offset", 0)

	convs, total, err := h.engine.ListConversations(ctx, c.ID, offset, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list conversations failed: %v", err)), nil
	}

	resp := struct {
		Conversations []conversationInfo `json:"conversations"`
		Total         int64              `json:"total"`
	}{Conversations: make([]conversationInfo, 0, len(convs)), Total: total}
	for i := range convs {
		resp.Conversations = append(resp.Conversations, toConversationInfo(&convs[i]))
	}
	return jsonResult(resp)
}

func (h *handlers) getConversation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	id, err := getIDArg(args, "conversation_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	conv, err := h.store.GetConversation(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get conversation failed: %v", err)), nil
	}
	if conv == nil {
		return mcp.NewToolResultError("conversation not found"), nil
	}

	limit := intArg(args, "limit", 50)
	offset := intArg(args, "offset", 0)

	msgs, total, err := h.engine.ListMessages(ctx, id, offset, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list messages failed: %v", err)), nil
	}

	resp := struct {
		Conversation conversationInfo `json:"conversation"`
		Messages     []messageInfo    `json:"messages"`
		Total        int64            `json:"total"`
	}{Conversation: toConversationInfo(conv), Messages: make([]messageInfo, 0, len(msgs)), Total: total}
	for i := range msgs {
		resp.Messages = append(resp.Messages, toMessageInfo(&msgs[i]))
	}
	return jsonResult(resp)
}

func (h *handlers) searchMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	c, err := h.resolveCase(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	queryStr, _ := args["query"].(string)
	if queryStr == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	limit := intArg(args, "limit", 20)
	offset := intArg(args, "offset", 0)

	hits, total, err := h.engine.Search(ctx, c.ID, search.Parse(queryStr), offset, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	resp := struct {
		Hits  []searchHit `json:"hits"`
		Total int64       `json:"total"`
	}{Hits: make([]searchHit, 0, len(hits)), Total: total}
	for _, hit := range hits {
		resp.Hits = append(resp.Hits, searchHit{
			ID:              hit.ID,
			ConversationID:  hit.ConversationID,
			ThreadID:        hit.ThreadID,
			Seq:             hit.Seq,
			Author:          hit.Author,
			SentAt:          formatTimePtr(hit.SentAt),
			Type:            hit.Type,
			Snippet:         hit.Snippet,
			Removed:         hit.RemovedBySender,
			AttachmentCount: hit.AttachmentCount,
		})
	}
	return jsonResult(resp)
}

func (h *handlers) caseStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	c, err := h.resolveCase(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	totals, err := h.engine.CaseTotals(ctx, c.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stats failed: %v", err)), nil
	}

	resp := struct {
		Case          caseInfo `json:"case"`
		Imports       int64    `json:"imports"`
		Conversations int64    `json:"conversations"`
		Messages      int64    `json:"messages"`
		Attachments   int64    `json:"attachments"`
		Participants  int64    `json:"participants"`
		SocialLinks   int64    `json:"social_links"`
		Devices       int64    `json:"devices"`
		Logins        int64    `json:"logins"`
		Photos        int64    `json:"photos"`
		FirstMessage  string   `json:"first_message,omitempty"`
		LastMessage   string   `json:"last_message,omitempty"`
	}{
		Case:          caseInfo{ID: c.ID, Name: c.Name, Subject: c.Subject.String},
		Imports:       totals.Imports,
		Conversations: totals.Conversations,
		Messages:      totals.Messages,
		Attachments:   totals.Attachments,
		Participants:  totals.Participants,
		SocialLinks:   totals.SocialLinks,
		Devices:       totals.Devices,
		Logins:        totals.Logins,
		Photos:        totals.Photos,
		FirstMessage:  formatTimePtr(totals.FirstMessage),
		LastMessage:   formatTimePtr(totals.LastMessage),
	}
	return jsonResult(resp)
}

func (h *handlers) aggregate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	c, err := h.resolveCase(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	groupBy, _ := args["group_by"].(string)
	if groupBy == "" {
		return mcp.NewToolResultError("group_by parameter is required"), nil
	}

	opts := query.Options{Limit: intArg(args, "limit", 50)}
	if opts.After, err = getDateArg(args, "after"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if opts.Before, err = getDateArg(args, "before"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var rows []query.AggregateRow
	switch groupBy {
	case "sender":
		rows, err = h.engine.TopSenders(ctx, c.ID, opts)
	case "day":
		rows, err = h.engine.MessagesByDay(ctx, c.ID, opts)
	case "type":
		rows, err = h.engine.TypeBreakdown(ctx, c.ID, opts)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("invalid group_by: %s", groupBy)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("aggregate failed: %v", err)), nil
	}

	out := make([]aggregateRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, aggregateRow{Key: r.Key, Count: r.Count})
	}
	return jsonResult(out)
}

func (h *handlers) getAttachment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	id, err := getIDArg(args, "attachment_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	att, err := h.store.GetAttachment(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get attachment failed: %v", err)), nil
	}
	if att == nil {
		return mcp.NewToolResultError("attachment not found"), nil
	}
	if !att.Resolved || att.StoragePath == "" {
		return mcp.NewToolResultError("attachment content was not present in the archive"), nil
	}

	if h.attachmentsDir == "" {
		return mcp.NewToolResultError("attachments directory not configured"), nil
	}
	if att.Size > maxAttachmentSize {
		return mcp.NewToolResultError(fmt.Sprintf("attachment too large: %d bytes (max %d)", att.Size, maxAttachmentSize)), nil
	}

	data, err := store.OpenBlob(h.attachmentsDir, att.StoragePath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("attachment file not available: %v", err)), nil
	}
	if int64(len(data)) > maxAttachmentSize {
		return mcp.NewToolResultError(fmt.Sprintf("attachment too large: %d bytes (max %d)", len(data), maxAttachmentSize)), nil
	}

	resp := struct {
		Filename      string `json:"filename"`
		MimeType      string `json:"mime_type"`
		Size          int64  `json:"size"`
		ContentBase64 string `json:"content_base64"`
	}{
		Filename:      attachmentFilename(att),
		MimeType:      att.MIMEType,
		Size:          att.Size,
		ContentBase64: base64.StdEncoding.EncodeToString(data),
	}
	return jsonResult(resp)
}

func toConversationInfo(c *store.ConversationSummary) conversationInfo {
	return conversationInfo{
		ID:           c.ID,
		ThreadID:     c.ThreadID,
		Section:      c.Section,
		Participants: c.Participants,
		StartedAt:    formatTime(c.StartedAt),
		LastActiveAt: formatTime(c.LastActiveAt),
		Messages:     c.MessageCount,
		Attachments:  c.AttachmentCount,
		Shares:       c.ShareCount,
		Calls:        c.CallCount,
	}
}

func toMessageInfo(m *store.MessageView) messageInfo {
	info := messageInfo{
		ID:      m.ID,
		Seq:     m.Seq,
		Author:  m.Author,
		SentAt:  formatTimePtr(m.SentAt),
		Type:    m.Type,
		Body:    m.Body,
		Removed: m.RemovedBySender,
	}
	for i := range m.Attachments {
		a := &m.Attachments[i]
		info.Attachments = append(info.Attachments, attachmentInfo{
			ID:       a.ID,
			Filename: attachmentFilename(a),
			MIMEType: a.MIMEType,
			Size:     a.Size,
			Stored:   a.Resolved && a.StoragePath != "",
		})
	}
	if m.Share != nil {
		info.ShareURL = m.Share.URL
	}
	if m.Call != nil {
		info.CallSeconds = m.Call.DurationSeconds
	}
	return info
}

func attachmentFilename(att *store.AttachmentView) string {
	name := path.Base(att.SourcePath)
	if name == "." || name == "/" || name == "" {
		name = "attachment-" + strconv.FormatInt(att.ID, 10)
	}
	return name
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// intArg extracts a non-negative integer from a map, with a default.
// JSON numbers arrive as float64. Clamps to maxLimit to prevent
// excessive result sets.
func intArg(args map[string]any, key string, def int) int {
	v, ok := args[key].(float64)
	if !ok {
		return def
	}
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) || v > float64(maxLimit) {
		return maxLimit
	}
	return int(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
