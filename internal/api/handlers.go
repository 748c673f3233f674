package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/recordvault/recordvault/internal/importer"
	"github.com/recordvault/recordvault/internal/query"
	"github.com/recordvault/recordvault/internal/search"
	"github.com/recordvault/recordvault/internal/store"
)

// apiTimeLayout is the timestamp format in JSON responses.
const apiTimeLayout = "2006-01-02T15:04:05Z"

// maxUploadBytes caps multipart archive uploads.
const maxUploadBytes = 2 << 30

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(apiTimeLayout)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// pageParams reads page/page_size query parameters.
func pageParams(r *http.Request) (page, pageSize, offset int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize, (page - 1) * pageSize
}

// StatsResponse represents vault-wide statistics.
type StatsResponse struct {
	TotalCases         int64 `json:"total_cases"`
	TotalImports       int64 `json:"total_imports"`
	TotalConversations int64 `json:"total_conversations"`
	TotalMessages      int64 `json:"total_messages"`
	TotalAttachments   int64 `json:"total_attachments"`
	TotalParticipants  int64 `json:"total_participants"`
	DatabaseSize       int64 `json:"database_size_bytes"`
}

// handleStats returns vault statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Database not available")
		return
	}

	stats, err := s.store.GetStats()
	if err != nil {
		s.logger.Error("failed to get stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve statistics")
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		TotalCases:         stats.CaseCount,
		TotalImports:       stats.ImportCount,
		TotalConversations: stats.ConversationCount,
		TotalMessages:      stats.MessageCount,
		TotalAttachments:   stats.AttachmentCount,
		TotalParticipants:  stats.ParticipantCount,
		DatabaseSize:       stats.DatabaseSize,
	})
}

// CaseResponse represents a case in API responses.
type CaseResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Subject   string `json:"subject,omitempty"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func caseResponse(c *store.Case) CaseResponse {
	return CaseResponse{
		ID:        c.ID,
		Name:      c.Name,
		Subject:   c.Subject.String,
		Notes:     c.Notes.String,
		CreatedAt: formatTime(c.CreatedAt),
		UpdatedAt: formatTime(c.UpdatedAt),
	}
}

// handleListCases returns all cases.
func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Database not available")
		return
	}

	cases, err := s.store.ListCases()
	if err != nil {
		s.logger.Error("failed to list cases", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list cases")
		return
	}

	resp := make([]CaseResponse, len(cases))
	for i, c := range cases {
		resp[i] = caseResponse(c)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cases": resp})
}

// handleCreateCase creates a new case.
func (s *Server) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Database not available")
		return
	}

	var req struct {
		Name    string `json:"name"`
		Subject string `json:"subject"`
		Notes   string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Request body must be JSON")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "missing_name", "Case name is required")
		return
	}

	c, err := s.store.CreateCase(req.Name, req.Subject, req.Notes)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			writeError(w, http.StatusConflict, "case_exists", err.Error())
			return
		}
		s.logger.Error("failed to create case", "name", req.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create case")
		return
	}

	s.logger.Info("case created via API", "case", c.ID, "name", c.Name)
	writeJSON(w, http.StatusCreated, caseResponse(c))
}

// handleGetCase returns a single case.
func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Database not available")
		return
	}

	c, err := s.store.GetCase(chi.URLParam(r, "caseID"))
	if err != nil {
		s.logger.Error("failed to get case", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve case")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "not_found", "Case not found")
		return
	}
	writeJSON(w, http.StatusOK, caseResponse(c))
}

// ImportResponse represents an import run in API responses.
type ImportResponse struct {
	ID            int64  `json:"id"`
	Status        string `json:"status"`
	ArchivePath   string `json:"archive_path"`
	DocumentName  string `json:"document_name,omitempty"`
	Layout        string `json:"layout,omitempty"`
	Service       string `json:"service,omitempty"`
	Target        string `json:"target,omitempty"`
	TicketNumber  string `json:"ticket_number,omitempty"`
	Conversations int64  `json:"conversations"`
	Messages      int64  `json:"messages"`
	Attachments   int64  `json:"attachments"`
	MediaResolved int64  `json:"media_resolved"`
	MediaMissing  int64  `json:"media_missing"`
	StartedAt     string `json:"started_at"`
	CompletedAt   string `json:"completed_at,omitempty"`
	Error         string `json:"error,omitempty"`
}

func importResponse(imp *store.Import) ImportResponse {
	resp := ImportResponse{
		ID:            imp.ID,
		Status:        imp.Status,
		ArchivePath:   imp.ArchivePath,
		DocumentName:  imp.DocumentName.String,
		Layout:        imp.Layout.String,
		Service:       imp.Service.String,
		Target:        imp.Target.String,
		TicketNumber:  imp.TicketNumber.String,
		Conversations: imp.ConversationCount,
		Messages:      imp.MessageCount,
		Attachments:   imp.AttachmentCount,
		MediaResolved: imp.MediaResolved,
		MediaMissing:  imp.MediaMissing,
		StartedAt:     formatTime(imp.StartedAt),
		Error:         imp.ErrorMessage.String,
	}
	if imp.CompletedAt.Valid {
		resp.CompletedAt = formatTime(imp.CompletedAt.Time)
	}
	return resp
}

// handleListImports returns a case's import history.
func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Database not available")
		return
	}

	caseID := chi.URLParam(r, "caseID")
	c, err := s.store.GetCase(caseID)
	if err != nil {
		s.logger.Error("failed to get case", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve case")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "not_found", "Case not found")
		return
	}

	imports, err := s.store.ListImports(caseID)
	if err != nil {
		s.logger.Error("failed to list imports", "case", caseID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list imports")
		return
	}

	resp := make([]ImportResponse, len(imports))
	for i, imp := range imports {
		resp[i] = importResponse(imp)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"imports": resp})
}

// UploadResponse reports what an uploaded archive produced.
type UploadResponse struct {
	ImportID      int64    `json:"import_id"`
	CaseID        string   `json:"case_id"`
	DocumentName  string   `json:"document_name"`
	Layout        string   `json:"layout"`
	Conversations int      `json:"conversations"`
	Messages      int      `json:"messages"`
	Attachments   int      `json:"attachments"`
	MediaCopied   int      `json:"media_copied"`
	MediaMissing  int      `json:"media_missing"`
	Warnings      []string `json:"warnings,omitempty"`
	DurationMS    int64    `json:"duration_ms"`
}

// handleUploadArchive imports a multipart ZIP upload into a case.
func (s *Server) handleUploadArchive(w http.ResponseWriter, r *http.Request) {
	if s.store == nil || s.importer == nil {
		writeError(w, http.StatusServiceUnavailable, "import_unavailable", "Import pipeline not available")
		return
	}

	caseID := chi.URLParam(r, "caseID")
	c, err := s.store.GetCase(caseID)
	if err != nil {
		s.logger.Error("failed to get case", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve case")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "not_found", "Case not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("archive")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file", "Multipart file field 'archive' is required")
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "recordvault-upload-*.zip")
	if err != nil {
		s.logger.Error("failed to create temp file", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to store upload")
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		writeError(w, http.StatusBadRequest, "upload_failed", "Failed to read upload")
		return
	}
	if err := tmp.Close(); err != nil {
		s.logger.Error("failed to flush upload", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to store upload")
		return
	}

	opts := importer.Options{
		AttachmentsDir: s.cfg.AttachmentsDir(),
		Force:          r.URL.Query().Get("force") == "true",
	}
	summary, err := s.importer.Import(r.Context(), caseID, tmp.Name(), opts)
	if err != nil {
		if errors.Is(err, importer.ErrDuplicateArchive) {
			writeError(w, http.StatusConflict, "duplicate_archive", "Archive already imported into this case")
			return
		}
		s.logger.Error("import failed", "case", caseID, "archive", header.Filename, "error", err)
		writeError(w, http.StatusUnprocessableEntity, "import_failed", err.Error())
		return
	}

	s.logger.Info("archive imported via API",
		"case", caseID, "archive", header.Filename, "import_id", summary.ImportID)
	writeJSON(w, http.StatusCreated, UploadResponse{
		ImportID:      summary.ImportID,
		CaseID:        summary.CaseID,
		DocumentName:  summary.DocumentName,
		Layout:        summary.Layout,
		Conversations: summary.Conversations,
		Messages:      summary.Messages,
		Attachments:   summary.Attachments,
		MediaCopied:   summary.MediaCopied,
		MediaMissing:  summary.MediaMissing,
		Warnings:      summary.Warnings,
		DurationMS:    summary.Duration.Milliseconds(),
	})
}

// ConversationResponse represents a conversation summary.
type ConversationResponse struct {
	ID           int64    `json:"id"`
	ThreadID     string   `json:"thread_id"`
	Section      string   `json:"section,omitempty"`
	Participants []string `json:"participants"`
	StartedAt    string   `json:"started_at,omitempty"`
	LastActiveAt string   `json:"last_active_at,omitempty"`
	Messages     int64    `json:"messages"`
	Attachments  int64    `json:"attachments"`
	Shares       int64    `json:"shares"`
	Calls        int64    `json:"calls"`
}

// handleListConversations returns a paginated list of a case's conversations.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine_unavailable", "Query engine not available")
		return
	}

	caseID := chi.URLParam(r, "caseID")
	page, pageSize, offset := pageParams(r)

	convs, total, err := s.engine.ListConversations(r.Context(), caseID, offset, pageSize)
	if err != nil {
		s.logger.Error("failed to list conversations", "case", caseID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list conversations")
		return
	}

	resp := make([]ConversationResponse, len(convs))
	for i, c := range convs {
		resp[i] = ConversationResponse{
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

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":         total,
		"page":          page,
		"page_size":     pageSize,
		"conversations": resp,
	})
}

// AttachmentResponse represents attachment metadata.
type AttachmentResponse struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size_bytes,omitempty"`
	Resolved bool   `json:"resolved"`
	URL      string `json:"url,omitempty"`
}

// ShareResponse represents a link-share payload.
type ShareResponse struct {
	URL         string `json:"url,omitempty"`
	Text        string `json:"text,omitempty"`
	DateCreated string `json:"date_created,omitempty"`
}

// CallResponse represents a call payload.
type CallResponse struct {
	Type            string `json:"type"`
	Missed          bool   `json:"missed"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// MessageResponse represents a full message.
type MessageResponse struct {
	ID          int64                `json:"id"`
	Seq         int64                `json:"seq"`
	Author      string               `json:"author,omitempty"`
	SentAt      string               `json:"sent_at,omitempty"`
	Type        string               `json:"type"`
	Body        string               `json:"body,omitempty"`
	Removed     bool                 `json:"removed,omitempty"`
	Placeholder bool                 `json:"placeholder,omitempty"`
	Attachments []AttachmentResponse `json:"attachments,omitempty"`
	Share       *ShareResponse       `json:"share,omitempty"`
	Call        *CallResponse        `json:"call,omitempty"`
}

func messageResponse(m store.MessageView) MessageResponse {
	resp := MessageResponse{
		ID:          m.ID,
		Seq:         m.Seq,
		Author:      m.Author,
		SentAt:      formatTimePtr(m.SentAt),
		Type:        m.Type,
		Body:        m.Body,
		Removed:     m.RemovedBySender,
		Placeholder: m.Placeholder,
	}
	for _, a := range m.Attachments {
		att := AttachmentResponse{
			ID:       a.ID,
			Filename: path.Base(a.SourcePath),
			MIMEType: a.MIMEType,
			Size:     a.Size,
			Resolved: a.Resolved,
		}
		if a.SourcePath == "" {
			att.Filename = ""
		}
		if a.Resolved {
			att.URL = "/api/v1/attachments/" + strconv.FormatInt(a.ID, 10)
		}
		resp.Attachments = append(resp.Attachments, att)
	}
	if m.Share != nil {
		resp.Share = &ShareResponse{
			URL:         m.Share.URL,
			Text:        m.Share.Text,
			DateCreated: formatTimePtr(m.Share.DateCreated),
		}
	}
	if m.Call != nil {
		resp.Call = &CallResponse{
			Type:            m.Call.Type,
			Missed:          m.Call.Missed,
			DurationSeconds: m.Call.DurationSeconds,
		}
	}
	return resp
}

// handleListMessages returns a page of a conversation's messages.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine_unavailable", "Query engine not available")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "Conversation ID must be a number")
		return
	}
	page, pageSize, offset := pageParams(r)

	messages, total, err := s.engine.ListMessages(r.Context(), id, offset, pageSize)
	if err != nil {
		s.logger.Error("failed to list messages", "conversation", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list messages")
		return
	}

	resp := make([]MessageResponse, len(messages))
	for i, m := range messages {
		resp[i] = messageResponse(m)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"messages":  resp,
	})
}

// SearchHitResponse represents one search hit.
type SearchHitResponse struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	ThreadID       string `json:"thread_id"`
	Author         string `json:"author,omitempty"`
	SentAt         string `json:"sent_at,omitempty"`
	Type           string `json:"type"`
	Snippet        string `json:"snippet,omitempty"`
	Removed        bool   `json:"removed,omitempty"`
	Attachments    int64  `json:"attachments,omitempty"`
}

// SearchResult represents search results.
type SearchResult struct {
	Query    string              `json:"query"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
	Hits     []SearchHitResponse `json:"hits"`
}

// handleSearch searches a case's messages.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine_unavailable", "Query engine not available")
		return
	}

	queryStr := r.URL.Query().Get("q")
	if queryStr == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "Query parameter 'q' is required")
		return
	}

	caseID := chi.URLParam(r, "caseID")
	page, pageSize, offset := pageParams(r)

	hits, total, err := s.engine.Search(r.Context(), caseID, search.Parse(queryStr), offset, pageSize)
	if err != nil {
		s.logger.Error("search failed", "case", caseID, "query", queryStr, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Search failed")
		return
	}

	resp := make([]SearchHitResponse, len(hits))
	for i, h := range hits {
		resp[i] = SearchHitResponse{
			ID:             h.ID,
			ConversationID: h.ConversationID,
			ThreadID:       h.ThreadID,
			Author:         h.Author,
			SentAt:         formatTimePtr(h.SentAt),
			Type:           h.Type,
			Snippet:        h.Snippet,
			Removed:        h.RemovedBySender,
			Attachments:    h.AttachmentCount,
		}
	}

	writeJSON(w, http.StatusOK, SearchResult{
		Query:    queryStr,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Hits:     resp,
	})
}

// AggregateResponse is one key/count aggregate row.
type AggregateResponse struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// CaseStatsResponse represents per-case statistics.
type CaseStatsResponse struct {
	Totals struct {
		Imports       int64  `json:"imports"`
		Conversations int64  `json:"conversations"`
		Messages      int64  `json:"messages"`
		Attachments   int64  `json:"attachments"`
		Participants  int64  `json:"participants"`
		SocialLinks   int64  `json:"social_links"`
		Devices       int64  `json:"devices"`
		Logins        int64  `json:"logins"`
		Photos        int64  `json:"photos"`
		FirstMessage  string `json:"first_message,omitempty"`
		LastMessage   string `json:"last_message,omitempty"`
	} `json:"totals"`
	TopSenders   []AggregateResponse `json:"top_senders"`
	MessageTypes []AggregateResponse `json:"message_types"`
	ByDay        []AggregateResponse `json:"by_day"`
}

func aggregateResponses(rows []query.AggregateRow) []AggregateResponse {
	resp := make([]AggregateResponse, len(rows))
	for i, r := range rows {
		resp[i] = AggregateResponse{Key: r.Key, Count: r.Count}
	}
	return resp
}

// handleCaseStats returns per-case aggregate statistics.
func (s *Server) handleCaseStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil || s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine_unavailable", "Query engine not available")
		return
	}

	caseID := chi.URLParam(r, "caseID")
	c, err := s.store.GetCase(caseID)
	if err != nil {
		s.logger.Error("failed to get case", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve case")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "not_found", "Case not found")
		return
	}

	ctx := r.Context()
	totals, err := s.engine.CaseTotals(ctx, caseID)
	if err == nil {
		var senders, types, days []query.AggregateRow
		senders, err = s.engine.TopSenders(ctx, caseID, query.Options{Limit: 10})
		if err == nil {
			types, err = s.engine.TypeBreakdown(ctx, caseID, query.Options{})
		}
		if err == nil {
			days, err = s.engine.MessagesByDay(ctx, caseID, query.Options{})
		}
		if err == nil {
			var resp CaseStatsResponse
			resp.Totals.Imports = totals.Imports
			resp.Totals.Conversations = totals.Conversations
			resp.Totals.Messages = totals.Messages
			resp.Totals.Attachments = totals.Attachments
			resp.Totals.Participants = totals.Participants
			resp.Totals.SocialLinks = totals.SocialLinks
			resp.Totals.Devices = totals.Devices
			resp.Totals.Logins = totals.Logins
			resp.Totals.Photos = totals.Photos
			resp.Totals.FirstMessage = formatTimePtr(totals.FirstMessage)
			resp.Totals.LastMessage = formatTimePtr(totals.LastMessage)
			resp.TopSenders = aggregateResponses(senders)
			resp.MessageTypes = aggregateResponses(types)
			resp.ByDay = aggregateResponses(days)
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}

	s.logger.Error("failed to compute case stats", "case", caseID, "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "Failed to compute statistics")
}

// handleGetAttachment serves stored attachment bytes.
func (s *Server) handleGetAttachment(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Database not available")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "Attachment ID must be a number")
		return
	}

	att, err := s.store.GetAttachment(id)
	if err != nil {
		s.logger.Error("failed to get attachment", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve attachment")
		return
	}
	if att == nil {
		writeError(w, http.StatusNotFound, "not_found", "Attachment not found")
		return
	}
	if !att.Resolved || att.StoragePath == "" {
		writeError(w, http.StatusNotFound, "content_missing",
			"Attachment content was not present in the archive")
		return
	}

	data, err := store.OpenBlob(s.cfg.AttachmentsDir(), att.StoragePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "content_missing", "Stored attachment file is missing")
			return
		}
		s.logger.Error("failed to open blob", "id", id, "path", att.StoragePath, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to read attachment")
		return
	}

	name := path.Base(att.SourcePath)
	if name == "." || name == "/" || name == "" {
		name = "attachment-" + strconv.FormatInt(att.ID, 10)
	}
	ct := att.MIMEType
	if ct == "" {
		ct = "application/octet-stream"
	}

	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// SchedulerStatusResponse represents scheduler status.
type SchedulerStatusResponse struct {
	Running bool          `json:"running"`
	Watches []WatchStatus `json:"watches"`
}

// handleSchedulerStatus returns the watch scheduler status.
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler_unavailable", "Scheduler not running")
		return
	}
	writeJSON(w, http.StatusOK, SchedulerStatusResponse{
		Running: s.scheduler.IsRunning(),
		Watches: s.scheduler.Status(),
	})
}

// handleTriggerScan starts an immediate scan of all watch directories.
func (s *Server) handleTriggerScan(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler_unavailable", "Scheduler not running")
		return
	}

	if err := s.scheduler.TriggerScan(); err != nil {
		s.logger.Error("failed to trigger scan", "error", err)
		writeError(w, http.StatusConflict, "scan_error", err.Error())
		return
	}

	s.logger.Info("watch scan triggered via API")
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "Watch directory scan started",
	})
}
