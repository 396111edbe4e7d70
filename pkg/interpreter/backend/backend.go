// Package backend embeds the Python program the supervisor drives.
package backend

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed arepl_backend.py
var Source []byte

// FileName is the name the backend is written under.
const FileName = "arepl_backend.py"

// Write stores the embedded backend in dir and returns its path.
func Write(dir string) (string, error) {
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, Source, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backend: %w", err)
	}
	return path, nil
}
