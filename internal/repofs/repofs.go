// Package repofs implements the local file operations exposed over the wire:
// listing visible YAML files in a working-tree directory and reading file
// content for transport.
package repofs

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrFileNotFound marks a requested directory or file that does not exist.
var ErrFileNotFound = errors.New("file not found")

// ListFiles returns the visible YAML files directly under the directory at
// path (joined with subpath when non-empty), in lexicographic order. Entries
// are visible when their name has no leading dot and a .yaml or .yml
// extension. The listing is non-recursive.
func ListFiles(path, subpath string) ([]string, error) {
	dir := path
	if subpath != "" {
		dir = filepath.Join(path, subpath)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, dir)
		}
		return nil, err
	}

	files := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		files = append(files, name)
	}

	// Deterministic ordering is part of the contract, not a nicety.
	sort.Strings(files)

	return files, nil
}

// ReadFile returns the content of file under path, base64-encoded for
// text-safe transport regardless of whether the content is binary.
func ReadFile(path, file string) (string, error) {
	full := filepath.Join(path, file)

	content, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, full)
		}
		return "", err
	}

	return base64.StdEncoding.EncodeToString(content), nil
}
