package instagram

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Canonical section names. Export tooling on Meta's side has varied over
// the years; these names follow the structural-ID convention
// (id="property-<name>") and double as the audit vocabulary.
const (
	secName                 = "name"
	secEmails               = "emails"
	secVanity               = "vanity"
	secRegistrationDate     = "registration_date"
	secRegistrationIP       = "registration_ip"
	secPhoneNumbers         = "phone_numbers"
	secAccountStatus        = "account_status"
	secRequestParameters    = "request_parameters"
	secProfilePicture       = "profile_picture"
	secUnifiedMessages      = "unified_messages"
	secNCMECReports         = "ncmec_reports"
	secThreadsPosts         = "threads_posts_and_replies"
	secDisappearingMessages = "reported_disappearing_messages"
	secPhotos               = "photos"
	secFollowing            = "following"
	secFollowers            = "followers"
	secDevices              = "devices"
	secLogins               = "logins"
	secIPAddresses          = "ip_addresses"
)

// knownSections is the audit order.
var knownSections = []string{
	secRequestParameters,
	secName,
	secVanity,
	secEmails,
	secPhoneNumbers,
	secRegistrationDate,
	secRegistrationIP,
	secAccountStatus,
	secProfilePicture,
	secUnifiedMessages,
	secThreadsPosts,
	secDisappearingMessages,
	secPhotos,
	secFollowing,
	secFollowers,
	secDevices,
	secLogins,
	secIPAddresses,
	secNCMECReports,
}

// sectionLabels are the human headings used by layouts without structural
// IDs.
var sectionLabels = map[string]string{
	secName:                 "Name",
	secEmails:               "Emails",
	secVanity:               "Vanity",
	secRegistrationDate:     "Registration Date",
	secRegistrationIP:       "Registration IP",
	secPhoneNumbers:         "Phone Numbers",
	secAccountStatus:        "Account Status",
	secRequestParameters:    "Request Parameters",
	secProfilePicture:       "Profile Picture",
	secUnifiedMessages:      "Unified Messages",
	secNCMECReports:         "NCMEC Reports",
	secThreadsPosts:         "Threads Posts and Replies",
	secDisappearingMessages: "Reported Disappearing Messages",
	secPhotos:               "Photos",
	secFollowing:            "Following",
	secFollowers:            "Followers",
	secDevices:              "Devices",
	secLogins:               "Logins",
	secIPAddresses:          "IP Addresses",
}

// sectionsByKey resolves normalized heading text or id suffixes to the
// canonical section name.
var sectionsByKey = func() map[string]string {
	m := make(map[string]string, len(sectionLabels)*2)
	for name, lbl := range sectionLabels {
		m[normKey(name)] = name
		m[normKey(lbl)] = name
	}
	return m
}()

// noRecordsMarker is how an in-scope section with nothing responsive is
// served. Its presence means "present but empty", never an error.
const noRecordsMarker = "no responsive records located"

// section is one located region of the document.
type section struct {
	name  string
	state SectionState

	// sel holds the container in the structural-ID layout.
	sel *goquery.Selection
	// events holds the region's field events in the heading and flat-text
	// layouts, where no dedicated container exists.
	events []fieldEvent
}

// eventStream returns the section's field events regardless of layout.
func (s *section) eventStream() []fieldEvent {
	if s.sel == nil {
		return s.events
	}
	evs := domEvents(s.sel, false)
	// Structural containers repeat the section label as a heading line;
	// that line is chrome, not content.
	for i, ev := range evs {
		if ev.kind == evMedia {
			continue
		}
		if ev.kind == evText && sectionsByKey[normKey(ev.text)] == s.name {
			evs = append(evs[:i], evs[i+1:]...)
		}
		break
	}
	return evs
}

// sectionMap is the outcome of locating every known section once.
type sectionMap struct {
	layout   LayoutVariant
	sections map[string]*section
}

func (sm *sectionMap) get(name string) *section {
	return sm.sections[name]
}

// audit reports the inventory of every known section in canonical order.
func (sm *sectionMap) audit() []SectionAudit {
	out := make([]SectionAudit, 0, len(knownSections))
	for _, name := range knownSections {
		state := SectionMissing
		if s, ok := sm.sections[name]; ok {
			state = s.state
		}
		out = append(out, SectionAudit{Name: name, State: state})
	}
	return out
}

// locateSections detects the document's layout variant and carves it into
// sections. Exactly one strategy is used for the whole document.
func locateSections(doc *goquery.Document) *sectionMap {
	if sm := locateByStructuralID(doc); sm != nil {
		return sm
	}

	body := doc.Find("body")
	if evs := domEvents(body, true); hasSectionHeading(evs) {
		return segmentEvents(evs, LayoutHeaderHeuristic)
	}
	if evs := textEvents(flatLines(body), true); hasSectionHeading(evs) {
		return segmentEvents(evs, LayoutFlatText)
	}

	return &sectionMap{layout: LayoutUnknown, sections: map[string]*section{}}
}

func locateByStructuralID(doc *goquery.Document) *sectionMap {
	found := map[string]*section{}
	doc.Find("[id^='property-']").Each(func(_ int, sel *goquery.Selection) {
		id, _ := sel.Attr("id")
		name, ok := sectionsByKey[normKey(strings.TrimPrefix(id, "property-"))]
		if !ok {
			return
		}
		if _, dup := found[name]; dup {
			return
		}
		s := &section{name: name, sel: sel}
		s.state = stateOfEvents(s.eventStream())
		found[name] = s
	})
	if len(found) == 0 {
		return nil
	}
	return &sectionMap{layout: LayoutStructuralID, sections: found}
}

func hasSectionHeading(evs []fieldEvent) bool {
	for _, ev := range evs {
		if ev.kind == evLabel && ev.section != "" {
			return true
		}
	}
	return false
}

// segmentEvents splits one event stream at section headings; the events
// between two headings form the earlier section's body. A heading for a
// section already seen is demoted to plain text, so record content that
// merely repeats a heading word cannot fragment an earlier section.
func segmentEvents(evs []fieldEvent, layout LayoutVariant) *sectionMap {
	sections := map[string]*section{}
	var cur *section
	for _, ev := range evs {
		if ev.kind == evLabel && ev.section != "" {
			if _, dup := sections[ev.section]; dup {
				if cur != nil {
					cur.events = append(cur.events, fieldEvent{kind: evText, text: ev.raw})
				}
				continue
			}
			cur = &section{name: ev.section}
			sections[ev.section] = cur
			continue
		}
		if cur != nil {
			cur.events = append(cur.events, ev)
		}
	}

	for _, s := range sections {
		s.state = stateOfEvents(s.events)
	}
	return &sectionMap{layout: layout, sections: sections}
}

// stateOfEvents decides found vs empty for a section body. The no-records
// marker only empties a section that carries no field structure; a marker
// quoted inside real content (a message body, say) does not.
func stateOfEvents(evs []fieldEvent) SectionState {
	sawContent := false
	sawLabel := false
	sawMarker := false
	for _, ev := range evs {
		switch ev.kind {
		case evLabel, evMedia:
			sawLabel = true
			sawContent = true
		case evText:
			if isNoRecordsText(ev.text) {
				sawMarker = true
				continue
			}
			sawContent = true
		}
	}
	if sawMarker && !sawLabel {
		return SectionEmpty
	}
	if !sawContent {
		return SectionEmpty
	}
	return SectionFound
}

func isNoRecordsText(s string) bool {
	return strings.Contains(strings.ToLower(s), noRecordsMarker)
}
