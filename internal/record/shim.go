package record

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

// ShimName is the file name of the installed registration shim.
const ShimName = "recorder.rb"

//go:embed shim/recorder.rb
var shimSource []byte

// InstallShim writes the registration shim into dir, creating it as needed,
// and returns the shim's path. The file is only rewritten when its contents
// differ.
func InstallShim(dir string) (string, error) {
	path := filepath.Join(dir, ShimName)
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, shimSource) {
		return path, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating shim directory: %w", err)
	}
	if err := os.WriteFile(path, shimSource, 0o644); err != nil {
		return "", fmt.Errorf("writing shim: %w", err)
	}
	return path, nil
}

// ShimDir returns the default shim directory under the user cache dir.
func ShimDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "respec")
	}
	return filepath.Join(dir, "respec")
}
