package instagram

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/recordvault/recordvault/internal/archive"
)

// Parser turns a loaded archive into a Record. A Parser holds no per-parse
// state and is safe to reuse.
type Parser struct {
	log *slog.Logger
	now func() time.Time
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(p *Parser) { p.log = log }
}

// WithClock injects the time source used for ParsedAt and for activity
// bounds of conversations with no dated messages. Tests pin it.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) { p.now = now }
}

func NewParser(opts ...Option) *Parser {
	p := &Parser{log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse maps an export to a Record. Fatal failures are limited to an
// unusable document (ErrMalformedDocument) and context cancellation;
// everything else degrades to diagnostics on the Record.
//
// Cancellation is honored between top-level section extractions: a
// section in flight runs to completion, then the context is checked
// before the next one starts.
func (p *Parser) Parse(ctx context.Context, ex *archive.Export) (*Record, error) {
	if ex == nil {
		return nil, fmt.Errorf("%w: no export", ErrMalformedDocument)
	}

	doc, err := loadDocument(ex.DocumentHTML)
	if err != nil {
		return nil, err
	}

	sm := locateSections(doc)
	now := p.now().UTC()
	rec := &Record{Layout: sm.layout, ParsedAt: now}

	diagFor := func(section string) func(context, msg string) {
		return func(context, msg string) {
			rec.Diagnostics = append(rec.Diagnostics, Diagnostic{
				Section: section, Context: context, Message: msg,
			})
		}
	}

	if sm.layout == LayoutUnknown {
		diagFor("")("", "no known sections located in document")
	}

	steps := []struct {
		name string
		run  func()
	}{
		{secRequestParameters, func() {
			rec.RequestParameters = extractRequestParameters(sm.get(secRequestParameters), diagFor(secRequestParameters))
		}},
		{"profile", func() {
			rec.Profile = extractProfile(sm, diagFor("profile"))
		}},
		{secUnifiedMessages, func() {
			p.appendConversations(rec, sm, secUnifiedMessages, diagFor(secUnifiedMessages))
		}},
		{secThreadsPosts, func() {
			p.appendConversations(rec, sm, secThreadsPosts, diagFor(secThreadsPosts))
		}},
		{secDisappearingMessages, func() {
			p.appendConversations(rec, sm, secDisappearingMessages, diagFor(secDisappearingMessages))
		}},
		{secPhotos, func() {
			rec.Photos = extractPhotos(sm.get(secPhotos), diagFor(secPhotos))
		}},
		{secFollowing, func() {
			rec.Following = extractSocialLinks(sm.get(secFollowing))
		}},
		{secFollowers, func() {
			rec.Followers = extractSocialLinks(sm.get(secFollowers))
		}},
		{secDevices, func() {
			rec.Devices = extractDevices(sm.get(secDevices), diagFor(secDevices))
		}},
		{secLogins, func() {
			rec.Logins = extractLogins(sm.get(secLogins), "login", diagFor(secLogins))
			rec.Logins = append(rec.Logins, extractLogins(sm.get(secIPAddresses), "ip", diagFor(secIPAddresses))...)
		}},
		{secNCMECReports, func() {
			rec.CyberTips = extractCyberTips(sm.get(secNCMECReports), diagFor(secNCMECReports))
		}},
		{"media_association", func() {
			p.associateMedia(rec, ex.Media, diagFor)
		}},
		{"entities", func() {
			p.resolveEntities(rec, diagFor("entities"))
		}},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("parse canceled before %s: %w", step.name, err)
		}
		step.run()
	}

	p.finalize(rec, now)
	rec.Sections = sm.audit()

	p.log.Debug("record parsed",
		"layout", rec.Layout.String(),
		"conversations", len(rec.Conversations),
		"messages", rec.MessageCount(),
		"media_resolved", rec.MediaResolved,
		"media_missing", rec.MediaMissing,
		"diagnostics", len(rec.Diagnostics))

	return rec, nil
}

// appendConversations extracts one thread-shaped section. Threads with
// neither participants nor messages are dropped silently; a thread ID
// appearing twice merges into its first occurrence.
func (p *Parser) appendConversations(rec *Record, sm *sectionMap, name string, diag func(context, msg string)) {
	s := sm.get(name)
	if s == nil || s.state != SectionFound {
		return
	}
	spans, strategy := s.threadSpans()
	p.log.Debug("extracting threads", "section", name, "strategy", strategy, "threads", len(spans))

	byID := map[string]int{}
	for i := range rec.Conversations {
		byID[rec.Conversations[i].ThreadID] = i
	}

	for _, span := range spans {
		asm := newThreadAssembler(span.id, diag)
		participants, messages := asm.run(span.events)
		if len(participants) == 0 && len(messages) == 0 {
			continue
		}
		if i, ok := byID[span.id]; ok {
			conv := &rec.Conversations[i]
			conv.Messages = append(conv.Messages, messages...)
			for _, pt := range participants {
				mergeParticipant(conv, pt)
			}
			continue
		}
		byID[span.id] = len(rec.Conversations)
		rec.Conversations = append(rec.Conversations, Conversation{
			ThreadID:     span.id,
			Section:      name,
			Participants: participants,
			Messages:     messages,
		})
	}
}

func mergeParticipant(conv *Conversation, p Participant) {
	for i := range conv.Participants {
		if conv.Participants[i].PlatformID == p.PlatformID {
			if conv.Participants[i].Username == "" {
				conv.Participants[i].Username = p.Username
			}
			return
		}
	}
	conv.Participants = append(conv.Participants, p)
}

// associateMedia resolves every media reference in the record against the
// archive's media map. An unresolved reference is a diagnostic, never an
// error: records routinely ship without some linked file.
func (p *Parser) associateMedia(rec *Record, media *archive.MediaMap, diagFor func(string) func(context, msg string)) {
	resolve := func(att *Attachment, section, context string) {
		if att == nil || att.SourcePath == "" {
			return
		}
		if b := media.Resolve(att.SourcePath); b != nil {
			att.Blob = b
			if att.MIME == "" {
				att.MIME = b.MIME
			}
			if att.Size < 0 {
				att.Size = int64(len(b.Data))
			}
			rec.MediaResolved++
			return
		}
		rec.MediaMissing++
		diagFor(section)(context, "media not found: "+att.SourcePath)
	}

	for ci := range rec.Conversations {
		conv := &rec.Conversations[ci]
		for mi := range conv.Messages {
			for ai := range conv.Messages[mi].Attachments {
				resolve(&conv.Messages[mi].Attachments[ai], conv.Section, conv.ThreadID)
			}
		}
	}
	for i := range rec.Photos {
		resolve(&rec.Photos[i].Attachment, secPhotos, "")
	}
	if rec.Profile != nil {
		resolve(rec.Profile.Picture, secProfilePicture, "")
	}
}

// resolveEntities builds the record-wide directory and, when no profile
// sections existed, falls back to the most-referenced participant as the
// record subject.
func (p *Parser) resolveEntities(rec *Record, diag func(context, msg string)) {
	r := newEntityResolver()
	for ci := range rec.Conversations {
		conv := &rec.Conversations[ci]
		for _, pt := range conv.Participants {
			if r.note(pt) {
				diag(conv.ThreadID, "conflicting usernames for participant "+pt.PlatformID)
			}
		}
		for mi := range conv.Messages {
			if a := conv.Messages[mi].Author; a != nil {
				if r.note(*a) {
					diag(conv.ThreadID, "conflicting usernames for participant "+a.PlatformID)
				}
			}
		}
	}
	rec.Directory = r.directory()

	if rec.Profile == nil {
		if subject, ok := r.mostReferenced(); ok {
			rec.Profile = &Profile{
				Username:   subject.Username,
				PlatformID: subject.PlatformID,
				Inferred:   true,
			}
		}
	}
}

// finalize normalizes ordering and refreshes derived state. Messages sort
// ascending by sent time; undated messages keep their source order after
// every dated one. Conversations keep document order.
func (p *Parser) finalize(rec *Record, now time.Time) {
	for ci := range rec.Conversations {
		conv := &rec.Conversations[ci]
		sort.SliceStable(conv.Messages, func(i, j int) bool {
			a, b := conv.Messages[i].Sent, conv.Messages[j].Sent
			switch {
			case a == nil:
				return false
			case b == nil:
				return true
			default:
				return a.Before(*b)
			}
		})
		conv.recount(now)
	}
}
