package instagram

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/recordvault/recordvault/internal/textutil"
)

// The extractors reduce a document region to an ordered stream of field
// events: labels, values, and media references. One assembler consumes the
// stream regardless of which layout variant produced it, so nested
// container markup and flat label/value text parse identically.

type eventKind int

const (
	evLabel eventKind = iota
	evText
	evMedia
)

type label int

const (
	lbNone label = iota
	lbThread
	lbCurrentParticipants
	lbAuthor
	lbSent
	lbBody
	lbShare
	lbAttachments
	lbCallRecord
	lbRemovedBySender
	lbType
	lbSize
	lbURL
	lbLinkedMedia
	lbDateCreated
	lbSummary
	lbText
	lbMissed
	lbDuration
	lbTaken
	lbTime
	lbIPAddress
)

// fieldLabels maps normalized label text to its identity. The trailing
// colon, letter case, and separator characters are ignored by normKey.
var fieldLabels = map[string]label{
	"thread":              lbThread,
	"currentparticipants": lbCurrentParticipants,
	"participants":        lbCurrentParticipants,
	"author":              lbAuthor,
	"sender":              lbAuthor,
	"sent":                lbSent,
	"body":                lbBody,
	"share":               lbShare,
	"attachments":         lbAttachments,
	"attachment":          lbAttachments,
	"callrecord":          lbCallRecord,
	"removedbysender":     lbRemovedBySender,
	"unsentbysender":      lbRemovedBySender,
	"type":                lbType,
	"size":                lbSize,
	"url":                 lbURL,
	"linkedmediafile":     lbLinkedMedia,
	"linkedmedia":         lbLinkedMedia,
	"datecreated":         lbDateCreated,
	"summary":             lbSummary,
	"text":                lbText,
	"title":               lbText,
	"missed":              lbMissed,
	"duration":            lbDuration,
	"durationinseconds":   lbDuration,
	"taken":               lbTaken,
	"time":                lbTime,
	"ipaddress":           lbIPAddress,
}

type fieldEvent struct {
	kind    eventKind
	label   label  // evLabel
	section string // evLabel: set when the label is a section heading
	text    string // evText value, or evLabel inline remainder
	src     string // evMedia reference
	raw     string // evLabel: the original text, for contexts where the
	// label reading turns out to be wrong (free text that merely
	// resembles a label)
	inline bool // evText split off an inline label value; raw holds the full line
}

// normKey lowercases and strips everything but letters and digits, so
// "Current Participants:", "current_participants" and "CurrentParticipants"
// compare equal.
func normKey(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			sb.WriteRune(r + ('a' - 'A'))
		}
	}
	return sb.String()
}

// threadInlineRe matches the remainder of a "Thread" label carrying the
// parenthesized identifier inline.
var threadInlineRe = regexp.MustCompile(`^\(?\s*(\d{13,})\s*\)?$`)

// classifyText turns one normalized text run into a label event (possibly
// with an inline remainder) or a plain value event. sections controls
// whether section headings are recognized in this region.
func classifyText(text string, sections bool) []fieldEvent {
	if text == "" {
		return nil
	}

	// Exact label, e.g. "Author" or "Sent:".
	if lb, sec, ok := lookupLabel(strings.TrimSuffix(text, ":"), sections); ok {
		return []fieldEvent{{kind: evLabel, label: lb, section: sec, raw: text}}
	}

	// Label with inline value, e.g. "Author: jdoe (Instagram: 123)" or
	// "Thread (1234567890123456789)".
	if i := strings.IndexByte(text, ':'); i > 0 {
		if lb, sec, ok := lookupLabel(text[:i], sections); ok {
			evs := []fieldEvent{{kind: evLabel, label: lb, section: sec, raw: text}}
			if rest := strings.TrimSpace(text[i+1:]); rest != "" {
				evs = append(evs, fieldEvent{kind: evText, text: rest, inline: true})
			}
			return evs
		}
	}
	if i := strings.IndexByte(text, '('); i > 0 {
		head := strings.TrimSpace(text[:i])
		if normKey(head) == "thread" {
			evs := []fieldEvent{{kind: evLabel, label: lbThread, raw: text}}
			if rest := strings.TrimSpace(text[i:]); rest != "" {
				evs = append(evs, fieldEvent{kind: evText, text: rest, inline: true})
			}
			return evs
		}
	}

	return []fieldEvent{{kind: evText, text: text}}
}

// lookupLabel resolves normalized text to a field label or, when enabled,
// a section heading.
func lookupLabel(text string, sections bool) (label, string, bool) {
	key := normKey(text)
	if key == "" {
		return lbNone, "", false
	}
	if lb, ok := fieldLabels[key]; ok {
		return lb, "", true
	}
	if sections {
		if name, ok := sectionsByKey[key]; ok {
			return lbNone, name, true
		}
	}
	return lbNone, "", false
}

// inlineTags merge their text into the enclosing block; the walker never
// descends into them separately.
var inlineTags = map[string]bool{
	"a": true, "b": true, "i": true, "u": true, "em": true, "strong": true,
	"span": true, "small": true, "sub": true, "sup": true, "code": true,
	"abbr": true, "mark": true, "q": true, "s": true, "wbr": true,
	"font": true, "time": true, "label": true,
}

// mediaTags contribute media events from their src-like attributes.
var mediaTags = map[string]bool{
	"img": true, "video": true, "audio": true, "source": true, "picture": true,
}

// looksLikeMediaPath reports whether a link target plausibly names an
// archived media file rather than an external page.
func looksLikeMediaPath(ref string) bool {
	if ref == "" || strings.Contains(ref, "://") {
		return false
	}
	switch strings.ToLower(pathExt(ref)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic", ".bmp",
		".mp4", ".m4v", ".mov", ".webm", ".mp3", ".m4a", ".aac", ".ogg", ".wav":
		return true
	}
	return false
}

func pathExt(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if i := strings.LastIndexByte(ref, '.'); i >= 0 {
		return ref[i:]
	}
	return ""
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// ownContent collects the block's direct text (merging inline descendants)
// and any media references found among them.
func ownContent(n *html.Node) (string, []string) {
	var sb strings.Builder
	var media []string
	var walk func(*html.Node, bool)
	walk = func(c *html.Node, top bool) {
		for ; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				sb.WriteString(c.Data)
				sb.WriteByte(' ')
			case html.ElementNode:
				tag := strings.ToLower(c.Data)
				if mediaTags[tag] {
					for _, key := range []string{"src", "poster", "href"} {
						if v := attrVal(c, key); v != "" {
							media = append(media, v)
						}
					}
					walk(c.FirstChild, false)
					continue
				}
				if inlineTags[tag] {
					// Anchors that point straight at archived media count
					// as media references too.
					if tag == "a" {
						if href := attrVal(c, "href"); looksLikeMediaPath(href) {
							media = append(media, href)
						}
					}
					walk(c.FirstChild, false)
				}
				// Block children are handled by the outer walker.
				_ = top
			}
		}
	}
	walk(n.FirstChild, true)
	return textutil.CollapseWhitespace(sb.String()), media
}

// walkBlocks traverses a region depth-first, emitting events for each
// block element's own content, then descending into block children only.
func walkBlocks(n *html.Node, sections bool, emit func(fieldEvent)) {
	if n == nil {
		return
	}
	if n.Type == html.ElementNode {
		tag := strings.ToLower(n.Data)
		if inlineTags[tag] || mediaTags[tag] {
			// Consumed by the parent block's ownContent.
			return
		}
		text, media := ownContent(n)
		for _, src := range media {
			emit(fieldEvent{kind: evMedia, src: src})
		}
		for _, ev := range classifyText(text, sections) {
			emit(ev)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			walkBlocks(c, sections, emit)
		}
	}
}

// domEvents flattens a selection into its field-event stream.
func domEvents(sel *goquery.Selection, sections bool) []fieldEvent {
	var evs []fieldEvent
	for _, n := range sel.Nodes {
		walkBlocks(n, sections, func(ev fieldEvent) { evs = append(evs, ev) })
	}
	return evs
}

// flatLines renders a region to text with line breaks at block boundaries,
// the input form for the flat-text layout.
func flatLines(sel *goquery.Selection) []string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
		case html.ElementNode:
			tag := strings.ToLower(n.Data)
			if tag == "br" {
				sb.WriteByte('\n')
			} else if !inlineTags[tag] {
				sb.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && !inlineTags[strings.ToLower(n.Data)] {
			sb.WriteByte('\n')
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}

	raw := strings.Split(sb.String(), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = textutil.CollapseWhitespace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// textEvents classifies flattened lines into the same event stream the DOM
// walker produces.
func textEvents(lines []string, sections bool) []fieldEvent {
	var evs []fieldEvent
	for _, line := range lines {
		evs = append(evs, classifyText(line, sections)...)
	}
	return evs
}

// textItem is one reconstructed content line or media reference, the raw
// form consumed by key/value sections whose keys are not message labels.
type textItem struct {
	text  string
	media string
}

// textItems restores a section to its raw lines, undoing message-label
// classification (label events carry their original text in raw).
func (s *section) textItems() []textItem {
	evs := s.eventStream()
	items := make([]textItem, 0, len(evs))
	for _, ev := range evs {
		switch ev.kind {
		case evMedia:
			items = append(items, textItem{media: ev.src})
		case evLabel:
			if ev.raw != "" {
				items = append(items, textItem{text: ev.raw})
			}
		case evText:
			if ev.inline {
				// Already part of the preceding label's raw line.
				continue
			}
			items = append(items, textItem{text: ev.text})
		}
	}
	return items
}

// textLines is textItems without the media references.
func (s *section) textLines() []string {
	items := s.textItems()
	lines := make([]string, 0, len(items))
	for _, it := range items {
		if it.text != "" {
			lines = append(lines, it.text)
		}
	}
	return lines
}
