//go:build windows

package export

import "os"

// openNoFollow is a best-effort equivalent of O_NOFOLLOW. Windows has no
// easy O_NOFOLLOW-style open here, so this may follow reparse points and
// symlinks; blob paths are still validated before the open.
func openNoFollow(path string) (*os.File, error) {
	return os.Open(path)
}
