package instagram

import (
	"net"
	"strings"

	"github.com/recordvault/recordvault/internal/archive"
	"github.com/recordvault/recordvault/internal/textutil"
)

// kvPair is one key/value row from a generic record section.
type kvPair struct {
	key   string
	value string
}

// extractPairs reduces raw section lines to key/value pairs. keys maps
// normalized line heads to canonical key names; a line equal to a key
// starts a pair, a "Key: value" line starts a complete one, and other
// lines extend the open pair's value.
func extractPairs(lines []string, keys map[string]string) []kvPair {
	var pairs []kvPair
	open := false
	for _, line := range lines {
		if canon, ok := keys[normKey(line)]; ok {
			pairs = append(pairs, kvPair{key: canon})
			open = true
			continue
		}
		if i := strings.IndexByte(line, ':'); i > 0 {
			if canon, ok := keys[normKey(line[:i])]; ok {
				pairs = append(pairs, kvPair{key: canon, value: strings.TrimSpace(line[i+1:])})
				open = true
				continue
			}
		}
		if open {
			p := &pairs[len(pairs)-1]
			if p.value != "" {
				p.value += " "
			}
			p.value += line
		}
	}
	return pairs
}

// groupPairs splits a pair stream into records: a key recurring within the
// current group closes it, which is how repeated Device or Login blocks
// are laid out.
func groupPairs(pairs []kvPair) []map[string]string {
	var groups []map[string]string
	cur := map[string]string{}
	for _, p := range pairs {
		if _, dup := cur[p.key]; dup {
			groups = append(groups, cur)
			cur = map[string]string{}
		}
		cur[p.key] = p.value
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

var requestKeys = map[string]string{
	"service":              "service",
	"target":               "target",
	"account":              "target",
	"accountidentifier":    "account_identifier",
	"ticketnumber":         "ticket",
	"internalticketnumber": "ticket",
	"tasknumber":           "ticket",
	"generated":            "generated",
	"dategenerated":        "generated",
	"daterangestart":       "range_start",
	"rangestart":           "range_start",
	"daterangeend":         "range_end",
	"rangeend":             "range_end",
	"daterange":            "range",
}

// extractRequestParameters reads the request_parameters section.
func extractRequestParameters(s *section, diag func(context, msg string)) RequestParameters {
	var rp RequestParameters
	if s == nil || s.state != SectionFound {
		return rp
	}
	for _, p := range extractPairs(s.textLines(), requestKeys) {
		switch p.key {
		case "service":
			rp.Service = p.value
		case "target":
			rp.Target = p.value
		case "account_identifier":
			rp.AccountIdentifier = p.value
		case "ticket":
			rp.TicketNumber = p.value
		case "generated":
			if t, ok := parseTimestamp(p.value); ok {
				rp.GeneratedAt = &t
			} else if p.value != "" {
				diag("", "unparseable generation time: "+textutil.Snippet(p.value, 40))
			}
		case "range_start":
			if t, ok := parseTimestamp(p.value); ok {
				rp.RangeStart = &t
			}
		case "range_end":
			if t, ok := parseTimestamp(p.value); ok {
				rp.RangeEnd = &t
			}
		case "range":
			// Single "start to end" spelling.
			lo, hi, found := strings.Cut(p.value, " to ")
			if !found {
				lo, hi, found = strings.Cut(p.value, " - ")
			}
			if found {
				if t, ok := parseTimestamp(strings.TrimSpace(lo)); ok {
					rp.RangeStart = &t
				}
				if t, ok := parseTimestamp(strings.TrimSpace(hi)); ok {
					rp.RangeEnd = &t
				}
			}
		}
	}
	if rp.AccountIdentifier == "" {
		rp.AccountIdentifier = rp.Target
	}
	if rp.RangeStart != nil && rp.RangeEnd != nil && rp.RangeStart.After(*rp.RangeEnd) {
		// Kept verbatim; evidence is never silently repaired.
		diag("", "request range start is after range end")
	}
	return rp
}

// extractProfile assembles the subject profile from the per-field profile
// sections. Returns nil when none of them carried anything.
func extractProfile(sm *sectionMap, diag func(context, msg string)) *Profile {
	var pr Profile
	got := false

	if lines := foundLines(sm, secName); len(lines) > 0 {
		pr.DisplayName = strings.Join(lines, " ")
		got = true
	}
	if lines := foundLines(sm, secVanity); len(lines) > 0 {
		pr.Username = strings.TrimPrefix(lines[0], "@")
		got = true
	}
	for _, line := range foundLines(sm, secEmails) {
		if strings.ContainsRune(line, '@') {
			pr.Emails = append(pr.Emails, line)
			got = true
		}
	}
	for _, line := range foundLines(sm, secPhoneNumbers) {
		pr.PhoneNumbers = append(pr.PhoneNumbers, line)
		got = true
	}
	if lines := foundLines(sm, secRegistrationIP); len(lines) > 0 {
		pr.RegistrationIP = lines[0]
		got = true
	}
	if lines := foundLines(sm, secRegistrationDate); len(lines) > 0 {
		if t, ok := parseTimestamp(lines[0]); ok {
			pr.RegistrationDate = &t
		} else {
			diag(secRegistrationDate, "unparseable registration date: "+textutil.Snippet(lines[0], 40))
		}
		got = true
	}
	if lines := foundLines(sm, secAccountStatus); len(lines) > 0 {
		pr.AccountStatus = strings.Join(lines, " ")
		got = true
	}

	if s := sm.get(secProfilePicture); s != nil && s.state == SectionFound {
		for _, it := range s.textItems() {
			ref := it.media
			if ref == "" && looksLikeMediaPath(it.text) {
				ref = it.text
			}
			if ref != "" {
				att := Attachment{SourcePath: ref, Size: -1}
				att.MIME, _, _ = archive.TypeByPath(ref)
				pr.Picture = &att
				got = true
				break
			}
		}
	}

	if !got {
		return nil
	}
	return &pr
}

func foundLines(sm *sectionMap, name string) []string {
	s := sm.get(name)
	if s == nil || s.state != SectionFound {
		return nil
	}
	return s.textLines()
}

// extractSocialLinks reads a following/followers section. Rows are either
// full participant references or bare handles.
func extractSocialLinks(s *section) []SocialLink {
	if s == nil || s.state != SectionFound {
		return nil
	}
	var links []SocialLink
	seen := map[string]bool{}
	add := func(l SocialLink) {
		key := l.PlatformID
		if key == "" {
			key = "@" + l.Username
		}
		if key == "@" || seen[key] {
			return
		}
		seen[key] = true
		links = append(links, l)
	}
	for _, line := range s.textLines() {
		if ps := parseRosterLine(line); len(ps) > 0 {
			for _, p := range ps {
				add(SocialLink{Username: p.Username, PlatformID: p.PlatformID})
			}
			continue
		}
		if isBareHandle(line) {
			add(SocialLink{Username: strings.TrimPrefix(line, "@")})
		}
	}
	return links
}

func isBareHandle(s string) bool {
	s = strings.TrimPrefix(s, "@")
	if s == "" || len(s) > 64 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

var deviceKeys = map[string]string{
	"device":     "name",
	"devicename": "name",
	"name":       "name",
	"model":      "name",
	"type":       "type",
	"devicetype": "type",
	"os":         "os",
	"osversion":  "os",
	"status":     "status",
	"lastseen":   "last_seen",
	"lastactive": "last_seen",
}

func extractDevices(s *section, diag func(context, msg string)) []Device {
	if s == nil || s.state != SectionFound {
		return nil
	}
	var devices []Device
	for _, g := range groupPairs(extractPairs(s.textLines(), deviceKeys)) {
		d := Device{Name: g["name"], Type: g["type"], OS: g["os"], Status: g["status"]}
		if v := g["last_seen"]; v != "" {
			if t, ok := parseTimestamp(v); ok {
				d.LastSeen = &t
			} else {
				diag(secDevices, "unparseable device last seen: "+textutil.Snippet(v, 40))
			}
		}
		if d != (Device{}) {
			devices = append(devices, d)
		}
	}
	return devices
}

var loginKeys = map[string]string{
	"time":      "time",
	"timestamp": "time",
	"date":      "time",
	"login":     "time",
	"logout":    "logout_time",
	"ipaddress": "ip",
	"ip":        "ip",
}

// extractLogins reads the logins or ip_addresses section; action labels
// the rows as login events or bare IP observations.
func extractLogins(s *section, action string, diag func(context, msg string)) []LoginEvent {
	if s == nil || s.state != SectionFound {
		return nil
	}
	var events []LoginEvent
	lines := s.textLines()
	pairs := extractPairs(lines, loginKeys)

	if len(pairs) > 0 {
		for _, g := range groupPairs(pairs) {
			ev := LoginEvent{Action: action, IP: g["ip"]}
			when := g["time"]
			if when == "" && g["logout_time"] != "" {
				when = g["logout_time"]
				ev.Action = "logout"
			}
			if when != "" {
				if t, ok := parseTimestamp(when); ok {
					ev.At = &t
				} else {
					diag(s.name, "unparseable login time: "+textutil.Snippet(when, 40))
				}
			}
			if ev.IP != "" || ev.At != nil {
				events = append(events, ev)
			}
		}
		return events
	}

	// Keyless layout: bare "ip" or "ip timestamp" rows.
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if net.ParseIP(fields[0]) == nil {
			continue
		}
		ev := LoginEvent{Action: action, IP: fields[0]}
		if rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0])); rest != "" {
			if t, ok := parseTimestamp(rest); ok {
				ev.At = &t
			}
		}
		events = append(events, ev)
	}
	return events
}

var photoKeys = map[string]string{
	"taken":    "taken",
	"uploaded": "taken",
	"caption":  "caption",
	"title":    "caption",
	"text":     "caption",
}

// extractPhotos reads the photos section: media references interleaved
// with Taken/Caption rows that describe the preceding photo.
func extractPhotos(s *section, diag func(context, msg string)) []Photo {
	if s == nil || s.state != SectionFound {
		return nil
	}
	var photos []Photo
	var cur *Photo
	curKey := ""
	for _, it := range s.textItems() {
		if it.media != "" || looksLikeMediaPath(it.text) {
			ref := it.media
			if ref == "" {
				ref = it.text
			}
			photos = append(photos, Photo{Attachment: Attachment{SourcePath: ref, Size: -1}})
			cur = &photos[len(photos)-1]
			cur.MIME, _, _ = archive.TypeByPath(ref)
			curKey = ""
			continue
		}
		if cur == nil {
			continue
		}
		line := it.text
		if canon, ok := photoKeys[normKey(line)]; ok {
			curKey = canon
			continue
		}
		if i := strings.IndexByte(line, ':'); i > 0 {
			if canon, ok := photoKeys[normKey(line[:i])]; ok {
				applyPhotoField(cur, canon, strings.TrimSpace(line[i+1:]), diag)
				curKey = ""
				continue
			}
		}
		if curKey != "" {
			applyPhotoField(cur, curKey, line, diag)
			curKey = ""
			continue
		}
		if t, ok := parseTimestamp(line); ok {
			cur.Taken = &t
		}
	}
	return photos
}

func applyPhotoField(p *Photo, key, value string, diag func(context, msg string)) {
	switch key {
	case "taken":
		if t, ok := parseTimestamp(value); ok {
			p.Taken = &t
		} else if value != "" {
			diag(secPhotos, "unparseable photo time: "+textutil.Snippet(value, 40))
		}
	case "caption":
		if p.Caption != "" {
			p.Caption += " "
		}
		p.Caption += value
	}
}

var cyberTipKeys = map[string]string{
	"cybertipreportid": "report_id",
	"ncmecreportid":    "report_id",
	"reportid":         "report_id",
	"cybertipid":       "report_id",
	"time":             "time",
	"reporttime":       "time",
	"date":             "time",
}

func extractCyberTips(s *section, diag func(context, msg string)) []CyberTip {
	if s == nil || s.state != SectionFound {
		return nil
	}
	var tips []CyberTip
	for _, g := range groupPairs(extractPairs(s.textLines(), cyberTipKeys)) {
		tip := CyberTip{ReportID: g["report_id"]}
		if v := g["time"]; v != "" {
			if t, ok := parseTimestamp(v); ok {
				tip.Time = &t
			} else {
				diag(secNCMECReports, "unparseable report time: "+textutil.Snippet(v, 40))
			}
		}
		if tip.ReportID != "" || tip.Time != nil {
			tips = append(tips, tip)
		}
	}
	return tips
}

// entityResolver accumulates the record-wide participant directory and
// reference counts for the subject fallback heuristic.
type entityResolver struct {
	order []Participant
	index map[string]int
	refs  map[string]int
}

func newEntityResolver() *entityResolver {
	return &entityResolver{index: map[string]int{}, refs: map[string]int{}}
}

// note registers one sighting of a participant. Reports whether the
// sighting conflicts with an earlier username for the same platform ID.
func (r *entityResolver) note(p Participant) bool {
	if p.PlatformID == "" {
		return false
	}
	r.refs[p.PlatformID]++
	if i, ok := r.index[p.PlatformID]; ok {
		if r.order[i].Username == "" {
			r.order[i].Username = p.Username
			return false
		}
		return p.Username != "" && p.Username != r.order[i].Username
	}
	r.index[p.PlatformID] = len(r.order)
	r.order = append(r.order, p)
	return false
}

// directory returns all participants in first-seen order.
func (r *entityResolver) directory() []Participant {
	return r.order
}

// mostReferenced returns the participant with the highest reference count;
// ties resolve to the earliest seen.
func (r *entityResolver) mostReferenced() (Participant, bool) {
	best := -1
	bestRefs := 0
	for i, p := range r.order {
		if n := r.refs[p.PlatformID]; n > bestRefs {
			best, bestRefs = i, n
		}
	}
	if best < 0 {
		return Participant{}, false
	}
	return r.order[best], true
}
