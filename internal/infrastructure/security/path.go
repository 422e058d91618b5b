// Package security provides path validation for files the sync engine reads and removes.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for a path that is not inside any allowed root.
var ErrOutsideRoot = errors.New("path is outside allowed directories")

// PathValidator accepts regular files that sit inside one of its roots.
type PathValidator struct {
	allowedRoots []string
}

// NewPathValidator creates a validator for the given root directories.
// Relative roots are resolved against the working directory.
func NewPathValidator(roots ...string) *PathValidator {
	v := &PathValidator{}
	for _, r := range roots {
		v.AddAllowedRoot(r)
	}
	return v
}

// AddAllowedRoot adds a root directory.
func (v *PathValidator) AddAllowedRoot(root string) {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	v.allowedRoots = append(v.allowedRoots, filepath.Clean(root))
}

// Validate checks that path is absolute, free of traversal, strictly inside an
// allowed root and names a regular file rather than a symlink or directory.
// A missing file yields an error matching os.ErrNotExist.
func (v *PathValidator) Validate(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path must be absolute: %s", path)
	}

	cleanPath := filepath.Clean(path)
	if cleanPath != path && strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal components: %s", path)
	}

	if !v.within(cleanPath) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}

	info, err := os.Lstat(cleanPath)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("refusing symlink: %s", path)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", path)
	}
	return nil
}

func (v *PathValidator) within(path string) bool {
	for _, root := range v.allowedRoots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
