package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("RECORDVAULT_HOME", tmpDir)

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HomeDir != tmpDir {
		t.Errorf("HomeDir = %q, want %q", cfg.HomeDir, tmpDir)
	}
	if cfg.Storage.DataDir != tmpDir {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, tmpDir)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.API.BindAddress != "127.0.0.1" {
		t.Errorf("API.BindAddress = %q, want 127.0.0.1", cfg.API.BindAddress)
	}
	if cfg.API.Key != "" {
		t.Errorf("API.Key = %q, want empty", cfg.API.Key)
	}
	if cfg.Update.DisableCheck {
		t.Error("Update.DisableCheck = true, want false")
	}
	if len(cfg.Watch) != 0 {
		t.Errorf("Watch = %v, want empty", cfg.Watch)
	}
}

func TestHomeArgumentWinsOverEnv(t *testing.T) {
	t.Setenv("RECORDVAULT_HOME", t.TempDir())
	explicit := t.TempDir()

	cfg, err := Load(explicit, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HomeDir != explicit {
		t.Errorf("HomeDir = %q, want %q", cfg.HomeDir, explicit)
	}
}

func TestLoadConfigFile(t *testing.T) {
	tmpDir := t.TempDir()

	configContent := `
[storage]
data_dir = "` + filepath.ToSlash(tmpDir) + `/data"

[api]
port = 9090
key = "test-secret-key"
rate_limit = 30
cors_origins = ["http://localhost:3000"]

[update]
disable_check = true

[[watch]]
dir = "` + filepath.ToSlash(tmpDir) + `/incoming"
case = "operation-x"
schedule = "*/15 * * * *"
enabled = true

[[watch]]
dir = "` + filepath.ToSlash(tmpDir) + `/paused"
case = "operation-y"
schedule = "0 2 * * *"
enabled = false
`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(configContent), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.Port != 9090 || cfg.API.Key != "test-secret-key" {
		t.Errorf("API = %+v", cfg.API)
	}
	if cfg.API.RateLimit != 30 {
		t.Errorf("API.RateLimit = %d, want 30", cfg.API.RateLimit)
	}
	if len(cfg.API.CORSOrigins) != 1 || cfg.API.CORSOrigins[0] != "http://localhost:3000" {
		t.Errorf("API.CORSOrigins = %v", cfg.API.CORSOrigins)
	}
	if !cfg.Update.DisableCheck {
		t.Error("Update.DisableCheck = false, want true")
	}
	if !strings.HasSuffix(cfg.Storage.DataDir, "data") {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if len(cfg.Watch) != 2 {
		t.Fatalf("Watch = %v, want 2 entries", cfg.Watch)
	}
	if cfg.Watch[0].Case != "operation-x" || cfg.Watch[0].Schedule != "*/15 * * * *" {
		t.Errorf("Watch[0] = %+v", cfg.Watch[0])
	}

	active := cfg.EnabledWatches()
	if len(active) != 1 || active[0].Case != "operation-x" {
		t.Errorf("EnabledWatches() = %v", active)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	home := t.TempDir()
	other := filepath.Join(t.TempDir(), "elsewhere.toml")
	if err := os.WriteFile(other, []byte("[api]\nport = 7070\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(home, other)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Port != 7070 {
		t.Errorf("API.Port = %d, want 7070", cfg.API.Port)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[api\nport ="), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(tmpDir, ""); err == nil {
		t.Error("Load() accepted malformed TOML")
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := Default(filepath.Join("vault", "home"))
	if got := cfg.DatabasePath(); got != filepath.Join("vault", "home", "vault.db") {
		t.Errorf("DatabasePath() = %q", got)
	}
	if got := cfg.AttachmentsDir(); got != filepath.Join("vault", "home", "attachments") {
		t.Errorf("AttachmentsDir() = %q", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no user home dir")
	}
	if got := expandPath("~/evidence"); got != filepath.Join(home, "evidence") {
		t.Errorf("expandPath(~/evidence) = %q", got)
	}
	if got := expandPath("/absolute/path"); got != "/absolute/path" {
		t.Errorf("expandPath(absolute) = %q", got)
	}
	if got := expandPath(""); got != "" {
		t.Errorf("expandPath(empty) = %q", got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	home := t.TempDir()

	cfg := Default(home)
	cfg.API.Key = "generated-key"
	cfg.Watch = append(cfg.Watch, WatchEntry{
		Dir:      filepath.Join(home, "incoming"),
		Case:     "operation-x",
		Schedule: "0 * * * *",
		Enabled:  true,
	})
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(home, "config.toml"))
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("config.toml mode = %o, want 600", perm)
		}
	}

	loaded, err := Load(home, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.API.Key != "generated-key" {
		t.Errorf("API.Key = %q after round trip", loaded.API.Key)
	}
	if len(loaded.Watch) != 1 || loaded.Watch[0].Case != "operation-x" {
		t.Errorf("Watch = %v after round trip", loaded.Watch)
	}
}

func TestEnsureHomeDir(t *testing.T) {
	home := filepath.Join(t.TempDir(), "nested", "home")
	cfg := Default(home)
	cfg.Storage.DataDir = filepath.Join(home, "data")

	if err := cfg.EnsureHomeDir(); err != nil {
		t.Fatalf("EnsureHomeDir() error = %v", err)
	}
	for _, dir := range []string{home, cfg.Storage.DataDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}
