package cmd

import (
	"encoding/hex"
	"testing"

	"github.com/recordvault/recordvault/internal/config"
)

func TestNewAPIKey(t *testing.T) {
	key, err := newAPIKey()
	if err != nil {
		t.Fatalf("newAPIKey() error = %v", err)
	}
	if len(key) != 64 {
		t.Errorf("key length = %d, want 64", len(key))
	}
	if _, err := hex.DecodeString(key); err != nil {
		t.Errorf("key is not hex: %v", err)
	}

	other, err := newAPIKey()
	if err != nil {
		t.Fatalf("newAPIKey() error = %v", err)
	}
	if key == other {
		t.Error("two generated keys are identical")
	}
}

func TestAddWatchReplacesSameDir(t *testing.T) {
	cfg := &config.Config{}

	addWatch(cfg, config.WatchEntry{Dir: "/drops/a", Case: "one", Schedule: "0 * * * *", Enabled: true})
	addWatch(cfg, config.WatchEntry{Dir: "/drops/b", Case: "two", Schedule: "0 * * * *", Enabled: true})
	if len(cfg.Watch) != 2 {
		t.Fatalf("Watch entries = %d, want 2", len(cfg.Watch))
	}

	// Re-adding the same directory updates in place.
	addWatch(cfg, config.WatchEntry{Dir: "/drops/a", Case: "three", Schedule: "*/15 * * * *", Enabled: true})
	if len(cfg.Watch) != 2 {
		t.Fatalf("Watch entries after replace = %d, want 2", len(cfg.Watch))
	}
	if cfg.Watch[0].Case != "three" || cfg.Watch[0].Schedule != "*/15 * * * *" {
		t.Errorf("entry not replaced: %+v", cfg.Watch[0])
	}
}

func TestValidateWatchDir(t *testing.T) {
	if err := validateWatchDir(""); err != nil {
		t.Errorf("empty watch dir should be accepted (watch is optional), got %v", err)
	}
	if err := validateWatchDir("   "); err != nil {
		t.Errorf("blank watch dir should be accepted, got %v", err)
	}
	if err := validateWatchDir(t.TempDir()); err != nil {
		t.Errorf("existing dir rejected: %v", err)
	}
	if err := validateWatchDir("/does/not/exist/anywhere"); err == nil {
		t.Error("missing dir should be rejected")
	}
}
