package update

import (
	"archive/tar"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/recordvault/recordvault/internal/testutil"
)

const testHash64 = "abc123def456789012345678901234567890123456789012345678901234abcd"

func TestSanitizeTarPath(t *testing.T) {
	t.Parallel()
	destDir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"normal file", "recordvault", false},
		{"nested file", "bin/recordvault", false},
		{"absolute path", "/etc/passwd", true},
		{"path traversal with ..", "../../../etc/passwd", true},
		{"path traversal mid-path", "foo/../../../etc/passwd", true},
		{"hidden traversal", "foo/bar/../../..", true},
		{"dot only", ".", false},
		{"double dot only", "..", true},
		{"empty path", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := sanitizeTarPath(destDir, tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("sanitizeTarPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestExtractTarGzPathTraversal(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	archivePath := filepath.Join(tmpDir, "malicious.tar.gz")
	extractDir := filepath.Join(tmpDir, "extract")
	outsideFile := filepath.Join(tmpDir, "pwned")

	testutil.CreateTarGz(t, archivePath, []testutil.ArchiveEntry{
		{Name: "../pwned", Content: "owned"},
	})

	if err := extractTarGz(archivePath, extractDir); err == nil {
		t.Error("extractTarGz should fail with path traversal attempt")
	}

	testutil.MustNotExist(t, outsideFile)
}

func TestExtractTarGzSymlinkSkipped(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	archivePath := filepath.Join(tmpDir, "symlink.tar.gz")
	extractDir := filepath.Join(tmpDir, "extract")

	testutil.CreateTarGz(t, archivePath, []testutil.ArchiveEntry{
		{Name: "evil-link", TypeFlag: tar.TypeSymlink, LinkName: "/etc/passwd"},
		{Name: "normal.txt", Content: "test"},
	})

	if err := extractTarGz(archivePath, extractDir); err != nil {
		t.Fatalf("extractTarGz failed: %v", err)
	}

	testutil.MustExist(t, filepath.Join(extractDir, "normal.txt"))
	testutil.MustNotExist(t, filepath.Join(extractDir, "evil-link"))
}

func TestExtractChecksum(t *testing.T) {
	t.Parallel()

	hashAAAA := "abc123def456789012345678901234567890123456789012345678901234aaaa"
	hashBBBB := "abc123def456789012345678901234567890123456789012345678901234bbbb"

	tests := []struct {
		name      string
		body      string
		assetName string
		want      string
	}{
		{
			name:      "standard sha256sum format",
			body:      fmt.Sprintf("%s  recordvault_darwin_arm64.tar.gz", testHash64),
			assetName: "recordvault_darwin_arm64.tar.gz",
			want:      testHash64,
		},
		{
			name:      "uppercase checksum",
			body:      "ABC123DEF456789012345678901234567890123456789012345678901234ABCD  recordvault_linux_amd64.tar.gz",
			assetName: "recordvault_linux_amd64.tar.gz",
			want:      testHash64,
		},
		{
			name:      "multiline with target in middle",
			body:      fmt.Sprintf("%s  recordvault_linux_amd64.tar.gz\n%s  recordvault_darwin_arm64.tar.gz", hashAAAA, hashBBBB),
			assetName: "recordvault_darwin_arm64.tar.gz",
			want:      hashBBBB,
		},
		{
			name:      "no match",
			body:      fmt.Sprintf("%s  recordvault_linux_amd64.tar.gz", testHash64),
			assetName: "recordvault_darwin_arm64.tar.gz",
			want:      "",
		},
		{
			name:      "empty body",
			body:      "",
			assetName: "recordvault_darwin_arm64.tar.gz",
			want:      "",
		},
		{
			name:      "substring filename should not match",
			body:      fmt.Sprintf("%s  recordvault_darwin_arm64.tar.gz.sig", testHash64),
			assetName: "recordvault_darwin_arm64.tar.gz",
			want:      "",
		},
		{
			name:      "exact match with superset also present",
			body:      fmt.Sprintf("%s  recordvault_darwin_arm64.tar.gz.sig\n%s  recordvault_darwin_arm64.tar.gz", hashAAAA, hashBBBB),
			assetName: "recordvault_darwin_arm64.tar.gz",
			want:      hashBBBB,
		},
		{
			name:      "binary mode star prefix",
			body:      fmt.Sprintf("%s *recordvault_darwin_arm64.tar.gz", testHash64),
			assetName: "recordvault_darwin_arm64.tar.gz",
			want:      testHash64,
		},
		{
			name:      "trailing comment ignored",
			body:      fmt.Sprintf("%s  recordvault_darwin_arm64.tar.gz  # some comment", testHash64),
			assetName: "recordvault_darwin_arm64.tar.gz",
			want:      testHash64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := extractChecksum(tt.body, tt.assetName)
			if got != tt.want {
				t.Errorf("extractChecksum() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFindAssets(t *testing.T) {
	t.Parallel()
	assets := []Asset{
		{Name: "recordvault_linux_amd64.tar.gz", Size: 1000, BrowserDownloadURL: "https://example.com/linux_amd64"},
		{Name: "recordvault_darwin_arm64.tar.gz", Size: 2000, BrowserDownloadURL: "https://example.com/darwin_arm64"},
		{Name: "SHA256SUMS", Size: 500, BrowserDownloadURL: "https://example.com/checksums"},
		{Name: "recordvault_darwin_amd64.tar.gz", Size: 3000, BrowserDownloadURL: "https://example.com/darwin_amd64"},
	}

	asset, checksums := findAssets(assets, "recordvault_darwin_arm64.tar.gz")
	if asset == nil {
		t.Fatal("expected asset to be found")
	}
	if asset.BrowserDownloadURL != "https://example.com/darwin_arm64" || asset.Size != 2000 {
		t.Errorf("unexpected asset: %+v", asset)
	}
	if checksums == nil || checksums.BrowserDownloadURL != "https://example.com/checksums" {
		t.Errorf("unexpected checksums asset: %+v", checksums)
	}

	asset, checksums = findAssets(assets, "recordvault_freebsd_amd64.tar.gz")
	if asset != nil {
		t.Errorf("expected no asset for unknown platform, got %+v", asset)
	}
	if checksums == nil {
		t.Error("checksums asset should be found regardless of platform")
	}
}

func TestInstallBinaryTo(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()

	srcPath := filepath.Join(tmpDir, "new-binary")
	if err := os.WriteFile(srcPath, []byte("new"), 0755); err != nil {
		t.Fatal(err)
	}
	dstPath := filepath.Join(tmpDir, "recordvault")
	if err := os.WriteFile(dstPath, []byte("old"), 0755); err != nil {
		t.Fatal(err)
	}

	if err := installBinaryTo(srcPath, dstPath); err != nil {
		t.Fatalf("installBinaryTo failed: %v", err)
	}

	data, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new" {
		t.Errorf("expected replaced binary, got %q", data)
	}

	// Backup is removed once the install succeeds.
	testutil.MustNotExist(t, dstPath+".old")
}

func TestFormatSize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{10485760, "10.0 MB"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			got := FormatSize(tt.bytes)
			if got != tt.want {
				t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

// TestSaveCacheFilePermissions verifies that the update check cache file is
// saved with restrictive permissions (0600).
func TestSaveCacheFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX file permissions not enforced on Windows")
	}

	tmpDir := t.TempDir()
	t.Setenv("RECORDVAULT_HOME", tmpDir)

	saveCache("1.0.0")

	cachePath := filepath.Join(tmpDir, cacheFileName)
	info, err := os.Stat(cachePath)
	if err != nil {
		t.Fatalf("Stat(%s) error = %v", cachePath, err)
	}

	got := info.Mode().Perm()
	want := os.FileMode(0600)
	if got != want {
		t.Errorf("cache file permissions = %04o, want %04o", got, want)
	}
}
