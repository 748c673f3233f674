// Package instagram parses Meta Business Record exports for Instagram
// accounts: the records.html document produced in response to legal
// process, together with its linked media files.
//
// The parser is pure: it maps an archive.Export to a Record and performs
// no I/O. Everything extracted is plain serializable data.
package instagram

import (
	"time"

	"github.com/recordvault/recordvault/internal/archive"
)

// LayoutVariant identifies the structural convention of a record document.
// Exactly one variant is selected per document and every extractor follows
// it; strategies are never mixed silently.
type LayoutVariant int

const (
	// LayoutUnknown means no known section convention was detected.
	LayoutUnknown LayoutVariant = iota
	// LayoutStructuralID: sections are containers with id="property-<name>".
	LayoutStructuralID
	// LayoutHeaderHeuristic: sections are introduced by heading text; the
	// spans between headings are the section bodies.
	LayoutHeaderHeuristic
	// LayoutFlatText: label/value lines over the flattened document text.
	LayoutFlatText
)

func (v LayoutVariant) String() string {
	switch v {
	case LayoutStructuralID:
		return "structural_id"
	case LayoutHeaderHeuristic:
		return "header_heuristic"
	case LayoutFlatText:
		return "flat_text"
	default:
		return "unknown"
	}
}

// SectionState records whether a known section was located.
type SectionState string

const (
	// SectionFound: located with content.
	SectionFound SectionState = "found"
	// SectionEmpty: located, but served with the "No responsive records
	// located" marker. An empty section is a valid answer, not an error.
	SectionEmpty SectionState = "empty"
	// SectionMissing: not present in the document at all.
	SectionMissing SectionState = "missing"
)

// SectionAudit is one entry of the per-document section inventory.
type SectionAudit struct {
	Name  string       `json:"name"`
	State SectionState `json:"state"`
}

// Diagnostic is a non-fatal extraction problem. Diagnostics never abort a
// parse; they exist so a reviewer can judge how much of the document was
// understood.
type Diagnostic struct {
	Section string `json:"section,omitempty"`
	Context string `json:"context,omitempty"` // e.g. thread ID
	Message string `json:"message"`
}

// Participant is a person referenced by the record.
type Participant struct {
	Username   string `json:"username"`
	PlatformID string `json:"platform_id"` // numeric Instagram account ID, kept as string
}

// MessageType classifies a message by its dominant payload.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeVideo MessageType = "video"
	TypeAudio MessageType = "audio"
	TypeFile  MessageType = "file"
	TypeShare MessageType = "share"
	TypeCall  MessageType = "call"
)

// CallType distinguishes audio from video calls.
type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

// Attachment is a media payload referenced by a message, a photo post, or
// the profile picture.
type Attachment struct {
	MIME       string `json:"mime,omitempty"`
	Size       int64  `json:"size"` // -1 when the record does not state it
	SourcePath string `json:"source_path,omitempty"`
	URL        string `json:"url,omitempty"` // external URL when the record carries one

	// Blob is the materialized media file, nil when the reference could
	// not be resolved against the archive.
	Blob *archive.Blob `json:"-"`
}

// Resolved reports whether the attachment was matched to archive media.
func (a *Attachment) Resolved() bool { return a.Blob != nil }

// Share is a link-share payload embedded in a message.
type Share struct {
	DateCreated *time.Time `json:"date_created,omitempty"`
	Text        string     `json:"text,omitempty"`
	URL         string     `json:"url,omitempty"`
}

// Call is a call record embedded in a message.
type Call struct {
	Type     CallType      `json:"type"`
	Missed   bool          `json:"missed"`
	Duration time.Duration `json:"duration"`
}

// Message is a single message within a conversation.
type Message struct {
	ThreadID string       `json:"thread_id"`
	Author   *Participant `json:"author,omitempty"` // nil when the record names no parseable author

	// Sent is nil when the record's timestamp is absent or unparseable.
	// It is never substituted with the time of parsing.
	Sent *time.Time `json:"sent,omitempty"`

	Body            string       `json:"body,omitempty"`
	Type            MessageType  `json:"type"`
	Attachments     []Attachment `json:"attachments,omitempty"`
	Share           *Share       `json:"share,omitempty"`
	Call            *Call        `json:"call,omitempty"`
	RemovedBySender bool         `json:"removed_by_sender,omitempty"`

	// Placeholder marks bodies that were service boilerplate ("Liked a
	// message" and similar). The body is emptied but the message is kept.
	Placeholder bool `json:"placeholder,omitempty"`
}

// Conversation is one message thread.
type Conversation struct {
	// ThreadID is the 13+ digit thread identifier, kept verbatim as a
	// string; these exceed float64 precision.
	ThreadID string `json:"thread_id"`

	// Section names the record section the thread came from
	// (unified_messages, reported_disappearing_messages, ...).
	Section string `json:"section"`

	Participants []Participant `json:"participants"`
	Messages     []Message     `json:"messages"`

	// StartedAt and LastActiveAt are the chronological extremes of the
	// known sent times; both equal the parse time when no message has one.
	StartedAt    time.Time `json:"started_at"`
	LastActiveAt time.Time `json:"last_active_at"`

	// Derived counters; always consistent with Messages.
	MessageCount    int `json:"message_count"`
	AttachmentCount int `json:"attachment_count"`
	ShareCount      int `json:"share_count"`
	CallCount       int `json:"call_count"`
}

// recount refreshes the derived counters and activity bounds. now supplies
// the fallback for conversations without any dated message.
func (c *Conversation) recount(now time.Time) {
	c.MessageCount = len(c.Messages)
	c.AttachmentCount = 0
	c.ShareCount = 0
	c.CallCount = 0
	var first, last *time.Time
	for i := range c.Messages {
		m := &c.Messages[i]
		c.AttachmentCount += len(m.Attachments)
		if m.Share != nil {
			c.ShareCount++
		}
		if m.Call != nil {
			c.CallCount++
		}
		if m.Sent != nil {
			if first == nil || m.Sent.Before(*first) {
				first = m.Sent
			}
			if last == nil || m.Sent.After(*last) {
				last = m.Sent
			}
		}
	}
	if first != nil {
		c.StartedAt, c.LastActiveAt = *first, *last
	} else {
		c.StartedAt, c.LastActiveAt = now, now
	}
}

// Profile describes the subject account.
type Profile struct {
	Username         string      `json:"username,omitempty"`
	PlatformID       string      `json:"platform_id,omitempty"`
	DisplayName      string      `json:"display_name,omitempty"`
	Emails           []string    `json:"emails,omitempty"`
	PhoneNumbers     []string    `json:"phone_numbers,omitempty"`
	RegistrationIP   string      `json:"registration_ip,omitempty"`
	RegistrationDate *time.Time  `json:"registration_date,omitempty"`
	AccountStatus    string      `json:"account_status,omitempty"`
	Picture          *Attachment `json:"picture,omitempty"`

	// Inferred is set when no profile sections existed and the subject was
	// chosen as the most-referenced conversation participant instead.
	Inferred bool `json:"inferred,omitempty"`
}

// RequestParameters describes the legal request the record answers.
type RequestParameters struct {
	Service           string     `json:"service,omitempty"`
	Target            string     `json:"target,omitempty"`
	AccountIdentifier string     `json:"account_identifier,omitempty"`
	TicketNumber      string     `json:"ticket_number,omitempty"`
	GeneratedAt       *time.Time `json:"generated_at,omitempty"`
	RangeStart        *time.Time `json:"range_start,omitempty"`
	RangeEnd          *time.Time `json:"range_end,omitempty"`
}

// SocialLink is one following/followers edge.
type SocialLink struct {
	Username   string `json:"username"`
	PlatformID string `json:"platform_id,omitempty"`
}

// Device is a device fingerprint row from the devices section.
type Device struct {
	Name     string     `json:"name,omitempty"`
	OS       string     `json:"os,omitempty"`
	Type     string     `json:"type,omitempty"`
	Status   string     `json:"status,omitempty"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// LoginEvent is one entry from the logins or ip_addresses sections.
type LoginEvent struct {
	At     *time.Time `json:"at,omitempty"`
	IP     string     `json:"ip,omitempty"`
	Action string     `json:"action"` // login | logout | ip
}

// Photo is a standalone media post from the photos section.
type Photo struct {
	Attachment
	Taken   *time.Time `json:"taken,omitempty"`
	Caption string     `json:"caption,omitempty"`
}

// CyberTip is one NCMEC report reference.
type CyberTip struct {
	ReportID string     `json:"report_id"`
	Time     *time.Time `json:"time,omitempty"`
}

// Record is the complete parsed Meta Business Record.
type Record struct {
	Layout            LayoutVariant     `json:"layout"`
	RequestParameters RequestParameters `json:"request_parameters"`
	Profile           *Profile          `json:"profile,omitempty"`
	Conversations     []Conversation    `json:"conversations"`

	// Directory lists every participant seen anywhere in the record,
	// deduplicated by platform ID, in first-seen order.
	Directory []Participant `json:"directory"`

	Following []SocialLink `json:"following,omitempty"`
	Followers []SocialLink `json:"followers,omitempty"`
	Devices   []Device     `json:"devices,omitempty"`
	Logins    []LoginEvent `json:"logins,omitempty"`
	Photos    []Photo      `json:"photos,omitempty"`
	CyberTips []CyberTip   `json:"cyber_tips,omitempty"`

	Sections    []SectionAudit `json:"sections"`
	Diagnostics []Diagnostic   `json:"diagnostics,omitempty"`

	MediaResolved int       `json:"media_resolved"`
	MediaMissing  int       `json:"media_missing"`
	ParsedAt      time.Time `json:"parsed_at"`
}

// Section returns the audit entry for a section name, or nil.
func (r *Record) Section(name string) *SectionAudit {
	for i := range r.Sections {
		if r.Sections[i].Name == name {
			return &r.Sections[i]
		}
	}
	return nil
}

// MessageCount totals messages across all conversations.
func (r *Record) MessageCount() int {
	n := 0
	for i := range r.Conversations {
		n += len(r.Conversations[i].Messages)
	}
	return n
}
