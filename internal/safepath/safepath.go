// Package safepath validates the opaque filenames the registry hands to
// the file store. The registry checks the data-list and schema filenames it
// records; segment filenames listed inside a data list are not checked here.
package safepath

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidName rejects names that could escape the data directory: absolute
// paths, parent references, and empty names. Forward slashes are allowed
// so stores may shard into subdirectories.
func ValidName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("data filename is required")
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return fmt.Errorf("data filename %q must be relative", name)
	}
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == ".." {
			return fmt.Errorf("data filename %q must not contain parent references", name)
		}
	}
	return nil
}

// JoinUnder joins name beneath root, rejecting names that ValidName
// rejects.
func JoinUnder(root, name string) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}
	return filepath.Join(root, name), nil
}
