// Package record builds synthetic Meta Business Record documents for
// tests: the same content rendered in any of the layout conventions the
// parser supports.
package record

import (
	"fmt"
	"html"
	"strings"
)

// Layout selects the rendering convention.
type Layout int

const (
	// Structural renders sections as id="property-<name>" containers with
	// nested label/value divs.
	Structural Layout = iota
	// Headings renders sections as <h2> headings over flat sibling divs.
	Headings
	// Flat renders everything as "Label: value" text lines in a pre block.
	Flat
)

// Attachment is a Type/Size/URL triple inside a message.
type Attachment struct {
	Type string
	Size string
	URL  string
}

// Share is a link-share sub-block.
type Share struct {
	DateCreated string
	Text        string
	URL         string
}

// Call is a call-record sub-block.
type Call struct {
	Type     string
	Missed   string
	Duration string
}

// Message builds one message block.
type Message struct {
	author      string
	sent        string
	body        string
	attachments []Attachment
	share       *Share
	call        *Call
	removed     string
	inlineMedia []string
}

func (m *Message) Author(v string) *Message { m.author = v; return m }
func (m *Message) Sent(v string) *Message   { m.sent = v; return m }
func (m *Message) Body(v string) *Message   { m.body = v; return m }

// Attachment adds a Type/Size/URL triple.
func (m *Message) Attachment(typ, size, url string) *Message {
	m.attachments = append(m.attachments, Attachment{Type: typ, Size: size, URL: url})
	return m
}

// Share adds a share sub-block.
func (m *Message) Share(dateCreated, text, url string) *Message {
	m.share = &Share{DateCreated: dateCreated, Text: text, URL: url}
	return m
}

// Call adds a call-record sub-block.
func (m *Message) Call(typ, missed, duration string) *Message {
	m.call = &Call{Type: typ, Missed: missed, Duration: duration}
	return m
}

// Removed marks the message removed by sender; v is the rendered value
// ("true"), or "" for a bare marker.
func (m *Message) Removed(v string) *Message { m.removed = v; return m }

// InlineImage embeds an <img> directly in the message block (markup
// layouts only).
func (m *Message) InlineImage(src string) *Message {
	m.inlineMedia = append(m.inlineMedia, src)
	return m
}

// Thread builds one thread.
type Thread struct {
	id           string
	participants []string
	messages     []*Message
}

// Participants sets the Current Participants roster lines.
func (t *Thread) Participants(lines ...string) *Thread {
	t.participants = append(t.participants, lines...)
	return t
}

// Message appends a message and returns it for chaining.
func (t *Thread) Message() *Message {
	m := &Message{}
	t.messages = append(t.messages, m)
	return m
}

// Builder assembles a record document.
type Builder struct {
	layout        Layout
	requestParams [][2]string
	profile       [][2]string // section name -> single value sections
	emails        []string
	phones        []string
	picture       string

	sections     map[string][]*Thread // thread-shaped sections
	sectionOrder []string

	photos    [][2]string // src, taken
	following []string
	followers []string
	devices   [][][2]string
	logins    [][][2]string
	cyberTips [][][2]string
	empty     []string
	rawExtra  string
}

// New returns a Builder rendering the structural-ID layout by default.
func New() *Builder {
	return &Builder{layout: Structural, sections: map[string][]*Thread{}}
}

// Layout selects the rendering convention.
func (b *Builder) Layout(l Layout) *Builder { b.layout = l; return b }

// RequestParam appends one request_parameters row.
func (b *Builder) RequestParam(key, value string) *Builder {
	b.requestParams = append(b.requestParams, [2]string{key, value})
	return b
}

// Name, Vanity and friends fill the single-value profile sections.
func (b *Builder) Name(v string) *Builder   { return b.profileSection("name", "Name", v) }
func (b *Builder) Vanity(v string) *Builder { return b.profileSection("vanity", "Vanity", v) }
func (b *Builder) RegistrationDate(v string) *Builder {
	return b.profileSection("registration_date", "Registration Date", v)
}
func (b *Builder) RegistrationIP(v string) *Builder {
	return b.profileSection("registration_ip", "Registration IP", v)
}
func (b *Builder) AccountStatus(v string) *Builder {
	return b.profileSection("account_status", "Account Status", v)
}

func (b *Builder) profileSection(name, label, v string) *Builder {
	b.profile = append(b.profile, [2]string{name, v})
	_ = label
	return b
}

func (b *Builder) Emails(v ...string) *Builder { b.emails = append(b.emails, v...); return b }
func (b *Builder) Phones(v ...string) *Builder { b.phones = append(b.phones, v...); return b }

// ProfilePicture sets the profile_picture media reference.
func (b *Builder) ProfilePicture(src string) *Builder { b.picture = src; return b }

// Thread adds a thread to unified_messages.
func (b *Builder) Thread(id string) *Thread { return b.ThreadIn("unified_messages", id) }

// ThreadIn adds a thread to any thread-shaped section.
func (b *Builder) ThreadIn(section, id string) *Thread {
	t := &Thread{id: id}
	if _, ok := b.sections[section]; !ok {
		b.sectionOrder = append(b.sectionOrder, section)
	}
	b.sections[section] = append(b.sections[section], t)
	return t
}

// Photo adds a photos-section entry.
func (b *Builder) Photo(src, taken string) *Builder {
	b.photos = append(b.photos, [2]string{src, taken})
	return b
}

func (b *Builder) Following(lines ...string) *Builder {
	b.following = append(b.following, lines...)
	return b
}

func (b *Builder) Followers(lines ...string) *Builder {
	b.followers = append(b.followers, lines...)
	return b
}

// Device adds a devices-section group of rows.
func (b *Builder) Device(rows ...[2]string) *Builder {
	b.devices = append(b.devices, rows)
	return b
}

// Login adds a logins-section group of rows.
func (b *Builder) Login(rows ...[2]string) *Builder {
	b.logins = append(b.logins, rows)
	return b
}

// CyberTip adds an ncmec_reports group of rows.
func (b *Builder) CyberTip(rows ...[2]string) *Builder {
	b.cyberTips = append(b.cyberTips, rows)
	return b
}

// EmptySection renders a section holding only the no-records marker.
func (b *Builder) EmptySection(names ...string) *Builder {
	b.empty = append(b.empty, names...)
	return b
}

// Raw appends arbitrary markup to the document body.
func (b *Builder) Raw(markup string) *Builder { b.rawExtra = b.rawExtra + markup; return b }

var sectionTitles = map[string]string{
	"name":                           "Name",
	"vanity":                         "Vanity",
	"emails":                         "Emails",
	"phone_numbers":                  "Phone Numbers",
	"registration_date":              "Registration Date",
	"registration_ip":                "Registration IP",
	"account_status":                 "Account Status",
	"request_parameters":             "Request Parameters",
	"profile_picture":                "Profile Picture",
	"unified_messages":               "Unified Messages",
	"threads_posts_and_replies":      "Threads Posts and Replies",
	"reported_disappearing_messages": "Reported Disappearing Messages",
	"photos":                         "Photos",
	"following":                      "Following",
	"followers":                      "Followers",
	"devices":                        "Devices",
	"logins":                         "Logins",
	"ip_addresses":                   "IP Addresses",
	"ncmec_reports":                  "NCMEC Reports",
}

const noRecords = "No responsive records located"

// HTML renders the document.
func (b *Builder) HTML() string {
	switch b.layout {
	case Flat:
		return b.renderFlat()
	case Headings:
		return b.renderHeadings()
	default:
		return b.renderStructural()
	}
}

func esc(s string) string { return html.EscapeString(s) }

// --- structural rendering ---

func (b *Builder) renderStructural() string {
	var sb strings.Builder
	sb.WriteString("<html><head><meta charset=\"utf-8\"><title>Instagram</title></head><body><div id=\"wrapper\">\n")

	open := func(name string) {
		fmt.Fprintf(&sb, "<div id=\"property-%s\"><div class=\"t o\"><div class=\"v\">%s</div><div class=\"m\">\n",
			name, esc(sectionTitles[name]))
	}
	closeSec := func() { sb.WriteString("</div></div></div>\n") }
	row := func(label, value string) {
		fmt.Fprintf(&sb, "<div class=\"t i\"><div class=\"v\">%s</div><div class=\"m\"><div class=\"v\">%s</div></div></div>\n",
			esc(label), esc(value))
	}
	value := func(v string) {
		fmt.Fprintf(&sb, "<div class=\"v\">%s</div>\n", esc(v))
	}

	if len(b.requestParams) > 0 {
		open("request_parameters")
		for _, kv := range b.requestParams {
			row(kv[0], kv[1])
		}
		closeSec()
	}
	for _, kv := range b.profile {
		open(kv[0])
		value(kv[1])
		closeSec()
	}
	if len(b.emails) > 0 {
		open("emails")
		for _, e := range b.emails {
			value(e)
		}
		closeSec()
	}
	if len(b.phones) > 0 {
		open("phone_numbers")
		for _, p := range b.phones {
			value(p)
		}
		closeSec()
	}
	if b.picture != "" {
		open("profile_picture")
		fmt.Fprintf(&sb, "<img src=\"%s\">\n", esc(b.picture))
		closeSec()
	}

	for _, name := range b.sectionOrder {
		open(name)
		for _, t := range b.sections[name] {
			b.renderStructuralThread(&sb, t)
		}
		closeSec()
	}

	if len(b.photos) > 0 {
		open("photos")
		for _, p := range b.photos {
			fmt.Fprintf(&sb, "<div class=\"t i\"><img src=\"%s\">\n", esc(p[0]))
			if p[1] != "" {
				sb.WriteString("<div class=\"m\">")
				fmt.Fprintf(&sb, "<div class=\"v\">Taken</div><div class=\"v\">%s</div>", esc(p[1]))
				sb.WriteString("</div>")
			}
			sb.WriteString("</div>\n")
		}
		closeSec()
	}
	if len(b.following) > 0 {
		open("following")
		for _, l := range b.following {
			value(l)
		}
		closeSec()
	}
	if len(b.followers) > 0 {
		open("followers")
		for _, l := range b.followers {
			value(l)
		}
		closeSec()
	}
	if len(b.devices) > 0 {
		open("devices")
		for _, group := range b.devices {
			for _, kv := range group {
				row(kv[0], kv[1])
			}
		}
		closeSec()
	}
	if len(b.logins) > 0 {
		open("logins")
		for _, group := range b.logins {
			for _, kv := range group {
				row(kv[0], kv[1])
			}
		}
		closeSec()
	}
	if len(b.cyberTips) > 0 {
		open("ncmec_reports")
		for _, group := range b.cyberTips {
			for _, kv := range group {
				row(kv[0], kv[1])
			}
		}
		closeSec()
	}
	for _, name := range b.empty {
		open(name)
		value(noRecords)
		closeSec()
	}

	sb.WriteString(b.rawExtra)
	sb.WriteString("</div></body></html>\n")
	return sb.String()
}

func (b *Builder) renderStructuralThread(sb *strings.Builder, t *Thread) {
	fmt.Fprintf(sb, "<div class=\"t i\"><div class=\"v\">Thread (%s)</div><div class=\"m\">\n", esc(t.id))

	sub := func(label string, values ...string) {
		fmt.Fprintf(sb, "<div class=\"t i\"><div class=\"v\">%s</div><div class=\"m\">", esc(label))
		for _, v := range values {
			fmt.Fprintf(sb, "<div class=\"v\">%s</div>", esc(v))
		}
		sb.WriteString("</div></div>\n")
	}

	if len(t.participants) > 0 {
		sub("Current Participants", t.participants...)
	}
	for _, m := range t.messages {
		if m.author != "" {
			sub("Author", m.author)
		}
		if m.sent != "" {
			sub("Sent", m.sent)
		}
		if m.body != "" {
			sub("Body", m.body)
		}
		if m.share != nil {
			sb.WriteString("<div class=\"t i\"><div class=\"v\">Share</div><div class=\"m\">\n")
			if m.share.DateCreated != "" {
				sub("Date Created", m.share.DateCreated)
			}
			if m.share.Text != "" {
				sub("Text", m.share.Text)
			}
			if m.share.URL != "" {
				sub("Url", m.share.URL)
			}
			sb.WriteString("</div></div>\n")
		}
		if m.call != nil {
			sb.WriteString("<div class=\"t i\"><div class=\"v\">Call Record</div><div class=\"m\">\n")
			if m.call.Type != "" {
				sub("Type", m.call.Type)
			}
			if m.call.Missed != "" {
				sub("Missed", m.call.Missed)
			}
			if m.call.Duration != "" {
				sub("Duration", m.call.Duration)
			}
			sb.WriteString("</div></div>\n")
		}
		if len(m.attachments) > 0 {
			sb.WriteString("<div class=\"t i\"><div class=\"v\">Attachments</div><div class=\"m\">\n")
			for _, att := range m.attachments {
				if att.Type != "" {
					sub("Type", att.Type)
				}
				if att.Size != "" {
					sub("Size", att.Size)
				}
				if att.URL != "" {
					sub("URL", att.URL)
				}
			}
			sb.WriteString("</div></div>\n")
		}
		if m.removed != "" {
			if m.removed == "bare" {
				sub("Removed by Sender")
			} else {
				sub("Removed by Sender", m.removed)
			}
		}
		for _, src := range m.inlineMedia {
			fmt.Fprintf(sb, "<div class=\"t i\"><img src=\"%s\"></div>\n", esc(src))
		}
	}
	sb.WriteString("</div></div>\n")
}

// --- headings rendering ---

func (b *Builder) renderHeadings() string {
	var sb strings.Builder
	sb.WriteString("<html><head><meta charset=\"utf-8\"></head><body>\n")

	h := func(name string) { fmt.Fprintf(&sb, "<h2>%s</h2>\n", esc(sectionTitles[name])) }
	line := func(v string) { fmt.Fprintf(&sb, "<div>%s</div>\n", esc(v)) }
	pair := func(k, v string) { line(k); line(v) }

	if len(b.requestParams) > 0 {
		h("request_parameters")
		for _, kv := range b.requestParams {
			pair(kv[0], kv[1])
		}
	}
	for _, kv := range b.profile {
		h(kv[0])
		line(kv[1])
	}
	if len(b.emails) > 0 {
		h("emails")
		for _, e := range b.emails {
			line(e)
		}
	}
	if len(b.phones) > 0 {
		h("phone_numbers")
		for _, p := range b.phones {
			line(p)
		}
	}
	if b.picture != "" {
		h("profile_picture")
		fmt.Fprintf(&sb, "<img src=\"%s\">\n", esc(b.picture))
	}
	for _, name := range b.sectionOrder {
		h(name)
		for _, t := range b.sections[name] {
			line(fmt.Sprintf("Thread (%s)", t.id))
			if len(t.participants) > 0 {
				line("Current Participants")
				for _, p := range t.participants {
					line(p)
				}
			}
			for _, m := range t.messages {
				if m.author != "" {
					pair("Author", m.author)
				}
				if m.sent != "" {
					pair("Sent", m.sent)
				}
				if m.body != "" {
					pair("Body", m.body)
				}
				if m.share != nil {
					line("Share")
					if m.share.DateCreated != "" {
						pair("Date Created", m.share.DateCreated)
					}
					if m.share.Text != "" {
						pair("Text", m.share.Text)
					}
					if m.share.URL != "" {
						pair("Url", m.share.URL)
					}
				}
				if m.call != nil {
					line("Call Record")
					if m.call.Type != "" {
						pair("Type", m.call.Type)
					}
					if m.call.Missed != "" {
						pair("Missed", m.call.Missed)
					}
					if m.call.Duration != "" {
						pair("Duration", m.call.Duration)
					}
				}
				if len(m.attachments) > 0 {
					line("Attachments")
					for _, att := range m.attachments {
						if att.Type != "" {
							pair("Type", att.Type)
						}
						if att.Size != "" {
							pair("Size", att.Size)
						}
						if att.URL != "" {
							pair("URL", att.URL)
						}
					}
				}
				if m.removed != "" {
					if m.removed == "bare" {
						line("Removed by Sender")
					} else {
						pair("Removed by Sender", m.removed)
					}
				}
				for _, src := range m.inlineMedia {
					fmt.Fprintf(&sb, "<img src=\"%s\">\n", esc(src))
				}
			}
		}
	}
	if len(b.photos) > 0 {
		h("photos")
		for _, p := range b.photos {
			fmt.Fprintf(&sb, "<img src=\"%s\">\n", esc(p[0]))
			if p[1] != "" {
				pair("Taken", p[1])
			}
		}
	}
	if len(b.following) > 0 {
		h("following")
		for _, l := range b.following {
			line(l)
		}
	}
	if len(b.followers) > 0 {
		h("followers")
		for _, l := range b.followers {
			line(l)
		}
	}
	if len(b.devices) > 0 {
		h("devices")
		for _, group := range b.devices {
			for _, kv := range group {
				pair(kv[0], kv[1])
			}
		}
	}
	if len(b.logins) > 0 {
		h("logins")
		for _, group := range b.logins {
			for _, kv := range group {
				pair(kv[0], kv[1])
			}
		}
	}
	if len(b.cyberTips) > 0 {
		h("ncmec_reports")
		for _, group := range b.cyberTips {
			for _, kv := range group {
				pair(kv[0], kv[1])
			}
		}
	}
	for _, name := range b.empty {
		h(name)
		line(noRecords)
	}

	sb.WriteString(b.rawExtra)
	sb.WriteString("</body></html>\n")
	return sb.String()
}

// --- flat rendering ---

func (b *Builder) renderFlat() string {
	var lines []string
	add := func(l string) { lines = append(lines, l) }
	kv := func(k, v string) { add(k + ": " + v) }

	if len(b.requestParams) > 0 {
		add(sectionTitles["request_parameters"])
		for _, p := range b.requestParams {
			kv(p[0], p[1])
		}
	}
	for _, p := range b.profile {
		add(sectionTitles[p[0]])
		add(p[1])
	}
	if len(b.emails) > 0 {
		add(sectionTitles["emails"])
		lines = append(lines, b.emails...)
	}
	if len(b.phones) > 0 {
		add(sectionTitles["phone_numbers"])
		lines = append(lines, b.phones...)
	}
	if b.picture != "" {
		add(sectionTitles["profile_picture"])
		add(b.picture)
	}
	for _, name := range b.sectionOrder {
		add(sectionTitles[name])
		for _, t := range b.sections[name] {
			add(fmt.Sprintf("Thread (%s)", t.id))
			if len(t.participants) > 0 {
				add("Current Participants")
				lines = append(lines, t.participants...)
			}
			for _, m := range t.messages {
				if m.author != "" {
					kv("Author", m.author)
				}
				if m.sent != "" {
					kv("Sent", m.sent)
				}
				if m.body != "" {
					kv("Body", m.body)
				}
				if m.share != nil {
					add("Share")
					if m.share.DateCreated != "" {
						kv("Date Created", m.share.DateCreated)
					}
					if m.share.Text != "" {
						kv("Text", m.share.Text)
					}
					if m.share.URL != "" {
						kv("Url", m.share.URL)
					}
				}
				if m.call != nil {
					add("Call Record")
					if m.call.Type != "" {
						kv("Type", m.call.Type)
					}
					if m.call.Missed != "" {
						kv("Missed", m.call.Missed)
					}
					if m.call.Duration != "" {
						kv("Duration", m.call.Duration)
					}
				}
				if len(m.attachments) > 0 {
					add("Attachments")
					for _, att := range m.attachments {
						if att.Type != "" {
							kv("Type", att.Type)
						}
						if att.Size != "" {
							kv("Size", att.Size)
						}
						if att.URL != "" {
							kv("URL", att.URL)
						}
					}
				}
				if m.removed != "" {
					if m.removed == "bare" {
						add("Removed by Sender")
					} else {
						kv("Removed by Sender", m.removed)
					}
				}
				for _, src := range m.inlineMedia {
					kv("Linked Media File", src)
				}
			}
		}
	}
	if len(b.photos) > 0 {
		add(sectionTitles["photos"])
		for _, p := range b.photos {
			add(p[0])
			if p[1] != "" {
				kv("Taken", p[1])
			}
		}
	}
	if len(b.following) > 0 {
		add(sectionTitles["following"])
		lines = append(lines, b.following...)
	}
	if len(b.followers) > 0 {
		add(sectionTitles["followers"])
		lines = append(lines, b.followers...)
	}
	if len(b.devices) > 0 {
		add(sectionTitles["devices"])
		for _, group := range b.devices {
			for _, p := range group {
				kv(p[0], p[1])
			}
		}
	}
	if len(b.logins) > 0 {
		add(sectionTitles["logins"])
		for _, group := range b.logins {
			for _, p := range group {
				kv(p[0], p[1])
			}
		}
	}
	if len(b.cyberTips) > 0 {
		add(sectionTitles["ncmec_reports"])
		for _, group := range b.cyberTips {
			for _, p := range group {
				kv(p[0], p[1])
			}
		}
	}
	for _, name := range b.empty {
		add(sectionTitles[name])
		add(noRecords)
	}

	var sb strings.Builder
	sb.WriteString("<html><body><pre>")
	sb.WriteString(esc(strings.Join(lines, "\n")))
	sb.WriteString("</pre></body></html>\n")
	return sb.String()
}
