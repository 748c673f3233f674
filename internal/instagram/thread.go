package instagram

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// threadMarkerRe recognizes a thread boundary: the word Thread followed by
// a parenthesized identifier of 13 or more digits. Shorter digit runs are
// ordinary text, not markers.
var threadMarkerRe = regexp.MustCompile(`Thread\s*\(\s*(\d{13,})\s*\)`)

// threadSpan is one thread's identifier plus the field events inside its
// span.
type threadSpan struct {
	id     string
	events []fieldEvent
}

// threadSpans carves a section into thread spans. Two strategies exist:
//
//   - container: each marker sits in a dedicated ancestor element holding
//     exactly that one thread (nested-container exports);
//   - sibling scan: markers and their content are laid out as a flat run,
//     so the span reaches from one marker to the next.
//
// The section's structure picks the strategy once; the two are never mixed
// within a section. The returned string names the strategy for logging.
func (s *section) threadSpans() ([]*threadSpan, string) {
	if s.sel != nil {
		if spans, ok := containerThreadSpans(s.sel.Nodes); ok {
			return spans, "container"
		}
		return segmentThreadEvents(s.eventStream()), "sibling-scan"
	}
	return segmentThreadEvents(s.events), "sibling-scan"
}

// nodeEvents flattens a single node subtree into field events.
func nodeEvents(n *html.Node) []fieldEvent {
	var evs []fieldEvent
	walkBlocks(n, false, func(ev fieldEvent) { evs = append(evs, ev) })
	return evs
}

type threadMarker struct {
	node *html.Node
	id   string
}

// findThreadMarkers locates the block elements whose own text carries a
// thread marker, in document order.
func findThreadMarkers(roots []*html.Node) []threadMarker {
	var markers []threadMarker
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			if inlineTags[tag] || mediaTags[tag] {
				return
			}
			if text, _ := ownContent(n); text != "" {
				if m := threadMarkerRe.FindStringSubmatch(text); m != nil {
					markers = append(markers, threadMarker{node: n, id: m[1]})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				visit(c)
			}
		}
	}
	for _, r := range roots {
		visit(r)
	}
	return markers
}

// containerThreadSpans tries the container strategy: for each marker, the
// highest ancestor below the section root containing exactly that one
// marker is the thread's own container. Reports ok=false when the section
// is not structured that way, so the caller can fall back to scanning.
func containerThreadSpans(roots []*html.Node) ([]*threadSpan, bool) {
	markers := findThreadMarkers(roots)
	if len(markers) == 0 {
		return nil, true // nothing to find; no reason to rescan
	}

	rootSet := make(map[*html.Node]bool, len(roots))
	for _, r := range roots {
		rootSet[r] = true
	}

	// markerCount[node] = markers inside that subtree.
	markerCount := map[*html.Node]int{}
	for _, m := range markers {
		for p := m.node; p != nil; p = p.Parent {
			markerCount[p]++
			if rootSet[p] {
				break
			}
		}
	}

	spans := make([]*threadSpan, 0, len(markers))
	for _, m := range markers {
		container := m.node
		for p := m.node.Parent; p != nil && !rootSet[p]; p = p.Parent {
			if markerCount[p] != 1 {
				break
			}
			container = p
		}
		if container == m.node && !hasBlockChild(m.node) {
			// The marker is a bare line with no enclosing per-thread
			// element; this section is laid out flat.
			return nil, false
		}
		spans = append(spans, &threadSpan{id: m.id, events: nodeEvents(container)})
	}
	return spans, true
}

// hasBlockChild reports whether a node has any non-inline element child,
// i.e. whether it can hold thread content beyond its own marker line.
func hasBlockChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(c.Data)
		if !inlineTags[tag] && !mediaTags[tag] {
			return true
		}
	}
	return false
}

// segmentThreadEvents implements the sibling-scan strategy on an event
// stream: spans run from one thread marker to the next. A Thread label
// without a 13+ digit identifier is not a marker and stays in the current
// span as text.
func segmentThreadEvents(evs []fieldEvent) []*threadSpan {
	var spans []*threadSpan
	var cur *threadSpan
	for i := 0; i < len(evs); i++ {
		ev := evs[i]
		if ev.kind == evLabel && ev.label == lbThread {
			id := ""
			skip := 0
			if i+1 < len(evs) && evs[i+1].kind == evText {
				if m := threadInlineRe.FindStringSubmatch(evs[i+1].text); m != nil {
					id = m[1]
					skip = 1
				}
			}
			if id != "" {
				cur = &threadSpan{id: id}
				spans = append(spans, cur)
				i += skip
				continue
			}
			if cur != nil && ev.raw != "" {
				cur.events = append(cur.events, fieldEvent{kind: evText, text: ev.raw})
			}
			continue
		}
		if cur != nil {
			cur.events = append(cur.events, ev)
		}
	}
	return spans
}
