// Package utils provides small path helpers shared by the commands.
package utils

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// ExpandPath expands a leading tilde and environment variables, and cleans
// the result. Empty paths stay empty.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if expanded, err := homedir.Expand(path); err == nil {
		path = expanded
	}
	return filepath.Clean(os.ExpandEnv(path))
}
