package instagram

import (
	"testing"
)

func mustSections(t *testing.T, html string) *sectionMap {
	t.Helper()
	doc, err := loadDocument(html)
	if err != nil {
		t.Fatalf("loadDocument: %v", err)
	}
	return locateSections(doc)
}

func TestThreadSpansContainerStrategy(t *testing.T) {
	html := `<html><body>
<div id="property-unified_messages">
  <div class="v">Unified Messages</div>
  <div class="t">
    <div class="v">Thread (1111111111111)</div>
    <div class="m">
      <div class="v">Author</div><div class="v">a (Instagram: 1)</div>
      <div class="v">Body</div><div class="v">first thread</div>
    </div>
  </div>
  <div class="t">
    <div class="v">Thread (2222222222222)</div>
    <div class="m">
      <div class="v">Author</div><div class="v">b (Instagram: 2)</div>
      <div class="v">Body</div><div class="v">second thread</div>
    </div>
  </div>
</div>
</body></html>`

	sm := mustSections(t, html)
	if sm.layout != LayoutStructuralID {
		t.Fatalf("layout = %v", sm.layout)
	}
	s := sm.get(secUnifiedMessages)
	if s == nil || s.state != SectionFound {
		t.Fatalf("section = %+v", s)
	}

	spans, strategy := s.threadSpans()
	if strategy != "container" {
		t.Errorf("strategy = %q, want container", strategy)
	}
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].id != "1111111111111" || spans[1].id != "2222222222222" {
		t.Errorf("span ids = %q, %q", spans[0].id, spans[1].id)
	}

	// Each container's events stay inside its own thread.
	asm := newThreadAssembler(spans[0].id, func(string, string) {})
	_, msgs := asm.run(spans[0].events)
	if len(msgs) != 1 || msgs[0].Body != "first thread" {
		t.Errorf("first span messages = %+v", msgs)
	}
}

func TestThreadSpansSiblingScan(t *testing.T) {
	html := `<html><body>
<div id="property-unified_messages">
  <div>Unified Messages</div>
  <div>Thread (1111111111111)</div>
  <div>Author</div><div>a (Instagram: 1)</div>
  <div>Body</div><div>from the first</div>
  <div>Thread (2222222222222)</div>
  <div>Author</div><div>b (Instagram: 2)</div>
  <div>Body</div><div>from the second</div>
</div>
</body></html>`

	sm := mustSections(t, html)
	s := sm.get(secUnifiedMessages)
	if s == nil {
		t.Fatal("section not located")
	}

	spans, strategy := s.threadSpans()
	if strategy != "sibling-scan" {
		t.Errorf("strategy = %q, want sibling-scan", strategy)
	}
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}

	asm := newThreadAssembler(spans[1].id, func(string, string) {})
	_, msgs := asm.run(spans[1].events)
	if len(msgs) != 1 || msgs[0].Body != "from the second" {
		t.Errorf("second span messages = %+v", msgs)
	}
}

func TestThreadMarkerRequiresLongID(t *testing.T) {
	// A parenthesized run shorter than 13 digits is content, not a marker.
	html := `<html><body>
<div id="property-unified_messages">
  <div>Thread (1111111111111)</div>
  <div>Body</div><div>see Thread (12345) for details</div>
</div>
</body></html>`

	sm := mustSections(t, html)
	spans, _ := sm.get(secUnifiedMessages).threadSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	asm := newThreadAssembler(spans[0].id, func(string, string) {})
	_, msgs := asm.run(spans[0].events)
	if len(msgs) != 1 {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[0].Body != "see Thread (12345) for details" {
		t.Errorf("body = %q", msgs[0].Body)
	}
}

func TestSegmentThreadEventsLeadingContentDropped(t *testing.T) {
	// Events before the first marker belong to no thread.
	evs := []fieldEvent{
		{kind: evText, text: "stray chrome"},
		{kind: evLabel, label: lbThread, raw: "Thread"},
		{kind: evText, text: "(1111111111111)"},
		{kind: evLabel, label: lbBody, raw: "Body"},
		{kind: evText, text: "hello"},
	}
	spans := segmentThreadEvents(evs)
	if len(spans) != 1 || spans[0].id != "1111111111111" {
		t.Fatalf("spans = %+v", spans)
	}
	for _, ev := range spans[0].events {
		if ev.kind == evText && ev.text == "stray chrome" {
			t.Error("pre-marker content leaked into the first span")
		}
	}
}
