package store

import (
	"strings"
	"testing"
)

func TestCreateCase(t *testing.T) {
	s := newTestStore(t)
	c, err := s.CreateCase("operation-nightjar", "janedoe", "priority")
	if err != nil {
		t.Fatalf("CreateCase: %v", err)
	}
	if c.ID == "" {
		t.Error("case ID is empty")
	}
	if c.Name != "operation-nightjar" {
		t.Errorf("Name = %q", c.Name)
	}
	if c.Subject.String != "janedoe" || c.Notes.String != "priority" {
		t.Errorf("case = %+v", c)
	}
	if c.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}

	// Omitted fields stay NULL rather than empty strings.
	bare, err := s.CreateCase("bare", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if bare.Subject.Valid || bare.Notes.Valid {
		t.Errorf("bare case = %+v, want NULL subject and notes", bare)
	}
}

func TestCreateCaseDuplicateName(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.CreateCase("dup", "", ""); err != nil {
		t.Fatal(err)
	}
	_, err := s.CreateCase("dup", "other subject", "")
	if err == nil {
		t.Fatal("duplicate case name accepted")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("error = %v", err)
	}
}

func TestResolveCase(t *testing.T) {
	s := newTestStore(t)
	c, err := s.CreateCase("resolve-me", "", "")
	if err != nil {
		t.Fatal(err)
	}

	byID, err := s.ResolveCase(c.ID)
	if err != nil {
		t.Fatalf("ResolveCase(id): %v", err)
	}
	if byID.ID != c.ID {
		t.Errorf("resolved %q, want %q", byID.ID, c.ID)
	}

	byName, err := s.ResolveCase("resolve-me")
	if err != nil {
		t.Fatalf("ResolveCase(name): %v", err)
	}
	if byName.ID != c.ID {
		t.Errorf("resolved %q, want %q", byName.ID, c.ID)
	}

	if _, err := s.ResolveCase("no-such-case"); err == nil {
		t.Error("ResolveCase accepted unknown reference")
	}
}

func TestListCases(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"zulu", "alpha", "mike"} {
		if _, err := s.CreateCase(name, "", ""); err != nil {
			t.Fatal(err)
		}
	}
	cases, err := s.ListCases()
	if err != nil {
		t.Fatalf("ListCases: %v", err)
	}
	var names []string
	for _, c := range cases {
		names = append(names, c.Name)
	}
	want := []string{"alpha", "mike", "zulu"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestRemoveCase(t *testing.T) {
	s := newTestStore(t)
	caseID, importID, _ := saveSampleRecord(t, s)

	if err := s.RemoveCase(caseID); err != nil {
		t.Fatalf("RemoveCase: %v", err)
	}

	c, err := s.GetCase(caseID)
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Error("case still present after removal")
	}

	// Cascade took the import and everything under it.
	imp, err := s.GetImport(importID)
	if err != nil {
		t.Fatal(err)
	}
	if imp != nil {
		t.Error("import survived case removal")
	}
	stats, err := s.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.ConversationCount != 0 || stats.MessageCount != 0 || stats.ParticipantCount != 0 {
		t.Errorf("orphaned rows after removal: %+v", stats)
	}

	// Virtual tables have no FK cascade; the FTS rows must be gone too.
	if s.FTSAvailable() {
		var n int64
		if err := s.DB().QueryRow(`SELECT COUNT(*) FROM messages_fts`).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("%d FTS rows survived case removal", n)
		}
	}
}

func TestRemoveCaseNotFound(t *testing.T) {
	s := newTestStore(t)
	if err := s.RemoveCase("bogus-id"); err == nil {
		t.Error("RemoveCase accepted unknown ID")
	}
}
