package instagram

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/recordvault/recordvault/internal/archive"
	"github.com/recordvault/recordvault/internal/textutil"
)

// participantRe matches one "username (Instagram: 1234567)" reference,
// anchored, allowing display names with spaces before the parenthesis.
var participantRe = regexp.MustCompile(`^(.+?)\s*\(\s*Instagram:\s*(\d+)\s*\)$`)

// participantListRe finds every participant reference in a run of text,
// for roster lines that jam several onto one line. Usernames here are
// handle-shaped (no spaces), which is what rosters contain.
var participantListRe = regexp.MustCompile(`([A-Za-z0-9._][A-Za-z0-9._-]*)\s*\(\s*Instagram:\s*(\d+)\s*\)`)

func parseParticipant(s string) (Participant, bool) {
	m := participantRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Participant{}, false
	}
	return Participant{Username: strings.TrimSpace(m[1]), PlatformID: m[2]}, true
}

func parseParticipantList(s string) []Participant {
	var out []Participant
	for _, m := range participantListRe.FindAllStringSubmatch(s, -1) {
		out = append(out, Participant{Username: m[1], PlatformID: m[2]})
	}
	return out
}

// parseRosterLine handles both one-per-line rosters (where display names
// may contain spaces, so the anchored pattern is right) and lines that jam
// several references together (where only handle-shaped matching works).
func parseRosterLine(s string) []Participant {
	list := parseParticipantList(s)
	if len(list) > 1 {
		return list
	}
	if p, ok := parseParticipant(s); ok {
		return []Participant{p}
	}
	return list
}

// parseAuthorValue resolves one Author value. A jammed line can fool the
// anchored pattern into swallowing a neighbor, so the list form wins when
// it finds more than one reference.
func parseAuthorValue(s string) (Participant, bool) {
	list := parseParticipantList(s)
	if len(list) > 1 {
		return list[0], true
	}
	if p, ok := parseParticipant(s); ok {
		return p, true
	}
	if len(list) == 1 {
		return list[0], true
	}
	return Participant{}, false
}

// sentFormats are the timestamp spellings observed across export
// generations, most common first.
var sentFormats = []string{
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05 -0700",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04 MST",
	"Jan 2, 2006 3:04:05 PM MST",
	"January 2, 2006 3:04:05 PM MST",
	"2006-01-02",
}

// parseTimestamp parses a record timestamp into UTC. A value it cannot
// parse yields ok=false; callers keep the field nil rather than inventing
// a time.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range sentFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// placeholderBodies are service boilerplate, not authored content.
var placeholderBodies = map[string]bool{
	"liked a message":                     true,
	"you sent an attachment.":             true,
	"you sent an attachment":              true,
	"sent an attachment":                  true,
	"<media omitted>":                     true,
	"this message is no longer available": true,
}

func isPlaceholderBody(s string) bool {
	return placeholderBodies[strings.ToLower(strings.TrimSpace(s))]
}

// parseSizeValue accepts a bare byte count or a decimal with a B/KB/MB/GB
// suffix.
var sizeRe = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*(B|KB|MB|GB|TB)?$`)

func parseSizeValue(s string) (int64, bool) {
	m := sizeRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil {
		return 0, false
	}
	val, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	switch m[2] {
	case "", "B":
		return int64(val), true
	case "KB":
		return int64(val * 1024), true
	case "MB":
		return int64(val * 1024 * 1024), true
	case "GB":
		return int64(val * 1024 * 1024 * 1024), true
	case "TB":
		return int64(val * 1024 * 1024 * 1024 * 1024), true
	}
	return 0, false
}

func parseBoolValue(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1":
		return true, true
	case "false", "no", "n", "0":
		return false, true
	}
	return false, false
}

// parseDurationValue accepts whole seconds ("73") or mm:ss / hh:mm:ss.
func parseDurationValue(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	total := int64(0)
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || n < 0 {
			return 0, false
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, true
}

// normalizeMIMEHint maps the record's attachment Type values (sometimes
// MIME strings, sometimes words like "Photo") to a MIME type.
func normalizeMIMEHint(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "photo", "image", "picture":
		return "image/jpeg"
	case "video":
		return "video/mp4"
	case "audio", "voice message", "voicemessage":
		return "audio/mp4"
	case "gif", "animated gif":
		return "image/gif"
	case "file", "attachment", "other":
		return "application/octet-stream"
	}
	if strings.Contains(v, "/") {
		return v
	}
	return ""
}

// subBlock tracks which message sub-structure is receiving fields.
type subBlock int

const (
	sbNone subBlock = iota
	sbParticipants
	sbAttachments
	sbShare
	sbCall
)

// threadAssembler folds a thread span's field events into participants and
// messages. One assembler instance handles one thread.
type threadAssembler struct {
	threadID string
	diag     func(context, msg string)

	participants []Participant
	byPlatform   map[string]int

	messages []Message
	cur      *Message

	sub      subBlock
	curField label // field awaiting its value event
	curAtt   *Attachment
	attSeen  map[string]bool
}

func newThreadAssembler(threadID string, diag func(context, msg string)) *threadAssembler {
	return &threadAssembler{
		threadID:   threadID,
		diag:       diag,
		byPlatform: map[string]int{},
	}
}

func (a *threadAssembler) addParticipant(p Participant) {
	if p.PlatformID == "" {
		return
	}
	if i, ok := a.byPlatform[p.PlatformID]; ok {
		if a.participants[i].Username == "" {
			a.participants[i].Username = p.Username
		} else if p.Username != "" && p.Username != a.participants[i].Username {
			a.diag(a.threadID, "conflicting usernames for participant "+p.PlatformID+
				": "+a.participants[i].Username+" vs "+p.Username)
		}
		return
	}
	a.byPlatform[p.PlatformID] = len(a.participants)
	a.participants = append(a.participants, p)
}

// ensureMessage opens a message when a field arrives before any Author
// label; the record is defective there but the data is still kept.
func (a *threadAssembler) ensureMessage() {
	if a.cur == nil {
		a.cur = &Message{ThreadID: a.threadID}
		a.attSeen = map[string]bool{}
	}
}

// flush finalizes the current message. Messages that carry nothing at all
// are artifacts of markup noise and are discarded silently.
func (a *threadAssembler) flush() {
	m := a.cur
	a.cur = nil
	a.sub = sbNone
	a.curField = lbNone
	a.curAtt = nil
	if m == nil {
		return
	}

	m.Body = textutil.CollapseWhitespace(m.Body)
	if m.Body == "" && m.Author == nil && m.Sent == nil &&
		len(m.Attachments) == 0 && m.Share == nil && m.Call == nil && !m.RemovedBySender {
		return
	}
	if isPlaceholderBody(m.Body) {
		m.Body = ""
		m.Placeholder = true
	}
	if m.Author == nil {
		a.diag(a.threadID, "message has no parseable author")
	}
	if m.Sent == nil {
		a.diag(a.threadID, "message has no parseable sent time")
	}
	m.Type = classifyMessage(m)
	a.messages = append(a.messages, *m)
}

// classifyMessage derives the single message type. Call records dominate,
// then link shares, then attachment media, then plain text.
func classifyMessage(m *Message) MessageType {
	switch {
	case m.Call != nil:
		return TypeCall
	case m.Share != nil && m.Share.URL != "":
		return TypeShare
	case len(m.Attachments) > 0:
		att := m.Attachments[0]
		mime := att.MIME
		if mime == "" {
			mime, _, _ = archive.TypeByPath(att.SourcePath)
		}
		switch archive.KindOfMIME(mime) {
		case archive.KindImage:
			return TypeImage
		case archive.KindVideo:
			return TypeVideo
		case archive.KindAudio:
			return TypeAudio
		default:
			return TypeFile
		}
	default:
		return TypeText
	}
}

func (a *threadAssembler) addMediaRef(src string) {
	if a.cur == nil {
		// Media outside any message (decorative markup); nothing to
		// attach it to.
		return
	}
	key := strings.TrimSpace(src)
	if key == "" || a.attSeen[key] {
		return
	}
	a.attSeen[key] = true
	att := Attachment{SourcePath: key, Size: -1}
	att.MIME, _, _ = archive.TypeByPath(key)
	a.cur.Attachments = append(a.cur.Attachments, att)
}

// openAttachment starts a fresh attachment when the given slot is already
// occupied on the current one, matching the Type/Size/URL triple layout.
func (a *threadAssembler) openAttachment(slotTaken bool) *Attachment {
	a.ensureMessage()
	if a.curAtt == nil || slotTaken {
		a.cur.Attachments = append(a.cur.Attachments, Attachment{Size: -1})
		a.curAtt = &a.cur.Attachments[len(a.cur.Attachments)-1]
	}
	return a.curAtt
}

// run consumes the span's events and returns the assembled thread.
func (a *threadAssembler) run(events []fieldEvent) ([]Participant, []Message) {
	for _, ev := range events {
		switch ev.kind {
		case evMedia:
			// addMediaRef ignores media with no open message, which keeps
			// roster avatars and section chrome from becoming attachments.
			a.addMediaRef(ev.src)
		case evLabel:
			a.handleLabel(ev)
		case evText:
			a.handleText(ev.text)
		}
	}
	a.flush()
	return a.participants, a.messages
}

func (a *threadAssembler) handleLabel(ev fieldEvent) {
	switch ev.label {
	case lbThread:
		// Own marker; the span carries the identifier already.
		a.curField = lbNone

	case lbCurrentParticipants:
		a.flush()
		a.sub = sbParticipants

	case lbAuthor:
		// A second Author starts the next message; an Author arriving
		// late (some layouts put Sent first) joins the open one.
		if a.cur != nil && a.cur.Author != nil {
			a.flush()
		}
		a.ensureMessage()
		a.sub = sbNone
		a.curField = lbAuthor

	case lbSent:
		if a.cur != nil && a.cur.Sent != nil {
			a.flush()
		}
		a.ensureMessage()
		a.sub = sbNone
		a.curField = lbSent

	case lbBody:
		if a.cur != nil && a.cur.Body != "" {
			a.flush()
		}
		a.ensureMessage()
		a.sub = sbNone
		a.curField = lbBody

	case lbShare:
		a.ensureMessage()
		if a.cur.Share != nil {
			a.flush()
			a.ensureMessage()
		}
		a.cur.Share = &Share{}
		a.sub = sbShare
		a.curField = lbNone

	case lbAttachments:
		a.ensureMessage()
		a.sub = sbAttachments
		a.curAtt = nil
		a.curField = lbNone

	case lbCallRecord:
		a.ensureMessage()
		if a.cur.Call != nil {
			a.flush()
			a.ensureMessage()
		}
		a.cur.Call = &Call{Type: CallAudio}
		a.sub = sbCall
		a.curField = lbNone

	case lbRemovedBySender:
		a.ensureMessage()
		a.cur.RemovedBySender = true
		a.sub = sbNone
		a.curField = lbRemovedBySender

	case lbType:
		switch a.sub {
		case sbAttachments:
			a.openAttachment(a.curAtt != nil && a.curAtt.MIME != "")
			a.curField = lbType
		case sbCall:
			a.curField = lbType
		default:
			a.textFallback(ev)
		}

	case lbSize:
		if a.sub == sbAttachments {
			a.openAttachment(a.curAtt != nil && a.curAtt.Size >= 0)
			a.curField = lbSize
		} else {
			a.textFallback(ev)
		}

	case lbURL:
		switch a.sub {
		case sbAttachments:
			a.openAttachment(a.curAtt != nil && (a.curAtt.SourcePath != "" || a.curAtt.URL != ""))
			a.curField = lbURL
		case sbShare:
			a.curField = lbURL
		default:
			a.textFallback(ev)
		}

	case lbLinkedMedia:
		if a.sub == sbNone {
			// Linked media lines appear outside an Attachments block in
			// some exports.
			a.ensureMessage()
			a.sub = sbAttachments
		}
		if a.sub == sbAttachments {
			a.openAttachment(a.curAtt != nil && a.curAtt.SourcePath != "")
			a.curField = lbLinkedMedia
		} else {
			a.textFallback(ev)
		}

	case lbDateCreated, lbSummary, lbText:
		if a.sub == sbShare {
			a.curField = ev.label
		} else {
			a.textFallback(ev)
		}

	case lbMissed, lbDuration:
		if a.sub == sbCall {
			a.curField = ev.label
		} else {
			a.textFallback(ev)
		}

	default:
		a.textFallback(ev)
	}
}

// textFallback reinstates a label event that is not valid in the current
// context; the line was ordinary content that happened to resemble one.
func (a *threadAssembler) textFallback(ev fieldEvent) {
	if ev.raw != "" {
		a.handleText(ev.raw)
	}
}

func (a *threadAssembler) handleText(text string) {
	if text == "" {
		return
	}

	switch a.sub {
	case sbParticipants:
		found := parseRosterLine(text)
		if len(found) == 0 {
			a.diag(a.threadID, "unrecognized participant line: "+textutil.Snippet(text, 80))
			return
		}
		for _, p := range found {
			a.addParticipant(p)
		}
		return

	case sbShare:
		s := a.cur.Share
		switch a.curField {
		case lbDateCreated:
			if t, ok := parseTimestamp(text); ok {
				s.DateCreated = &t
			} else {
				a.diag(a.threadID, "unparseable share date: "+textutil.Snippet(text, 40))
			}
			a.curField = lbNone
		case lbSummary, lbText:
			if s.Text != "" {
				s.Text += " "
			}
			s.Text += text
		case lbURL:
			s.URL = text
			a.curField = lbNone
		default:
			// Untagged share content: URLs fill the link, prose the text.
			if s.URL == "" && (strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://")) {
				s.URL = text
			} else {
				if s.Text != "" {
					s.Text += " "
				}
				s.Text += text
			}
		}
		return

	case sbCall:
		c := a.cur.Call
		switch a.curField {
		case lbType:
			if strings.Contains(strings.ToLower(text), "video") {
				c.Type = CallVideo
			} else {
				c.Type = CallAudio
			}
		case lbMissed:
			if v, ok := parseBoolValue(text); ok {
				c.Missed = v
			} else {
				a.diag(a.threadID, "unparseable call missed flag: "+textutil.Snippet(text, 40))
			}
		case lbDuration:
			if d, ok := parseDurationValue(text); ok {
				c.Duration = d
			} else {
				a.diag(a.threadID, "unparseable call duration: "+textutil.Snippet(text, 40))
			}
		default:
			return
		}
		a.curField = lbNone
		return

	case sbAttachments:
		switch a.curField {
		case lbType:
			att := a.openAttachment(false)
			if mime := normalizeMIMEHint(text); mime != "" {
				att.MIME = mime
			} else {
				a.diag(a.threadID, "unrecognized attachment type: "+textutil.Snippet(text, 40))
			}
		case lbSize:
			att := a.openAttachment(false)
			if n, ok := parseSizeValue(text); ok {
				att.Size = n
			} else {
				a.diag(a.threadID, "unparseable attachment size: "+textutil.Snippet(text, 40))
			}
		case lbURL, lbLinkedMedia:
			att := a.openAttachment(false)
			if strings.Contains(text, "://") {
				att.URL = text
			} else {
				att.SourcePath = text
				if att.MIME == "" {
					att.MIME, _, _ = archive.TypeByPath(text)
				}
			}
		default:
			if looksLikeMediaPath(text) {
				a.addMediaRef(text)
			}
			return
		}
		a.curField = lbNone
		return
	}

	// Singular message fields.
	switch a.curField {
	case lbAuthor:
		if p, ok := parseAuthorValue(text); ok {
			a.cur.Author = &p
		} else {
			a.diag(a.threadID, "unrecognized author: "+textutil.Snippet(text, 80))
		}
		a.curField = lbNone
	case lbSent:
		if t, ok := parseTimestamp(text); ok {
			a.cur.Sent = &t
		} else {
			a.diag(a.threadID, "unparseable sent time: "+textutil.Snippet(text, 60))
		}
		a.curField = lbNone
	case lbBody:
		if a.cur.Body != "" {
			a.cur.Body += "\n"
		}
		a.cur.Body += text
	case lbRemovedBySender:
		if v, ok := parseBoolValue(text); ok {
			a.cur.RemovedBySender = v
		}
		a.curField = lbNone
	default:
		// Text with no field context: section chrome between threads.
	}
}
