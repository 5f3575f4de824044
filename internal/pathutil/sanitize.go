// Package pathutil provides secure path handling utilities for davgate.
package pathutil

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/ebogdum/davgate/metadata"
)

// Clean sanitizes a WebDAV resource name to prevent directory traversal attacks.
// Names are slash separated and rooted at the mount point, so "/a/b" and "a/b"
// both clean to "/a/b". It performs the following security checks:
// 1. Rejects names containing NUL bytes
// 2. Rejects names whose ".." components climb above the root
// 3. Normalizes the name for consistent handling
func Clean(name string) (string, error) {
	if name == "" {
		return "/", nil
	}

	if strings.ContainsRune(name, 0) {
		return "", metadata.ErrForbidden
	}

	// Simulate the resolution so "a/../../b" is rejected instead of silently
	// clamped to "/b" by path.Clean.
	depth := 0
	for _, part := range strings.Split(name, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			depth--
			if depth < 0 {
				return "", metadata.ErrForbidden
			}
		default:
			depth++
		}
	}

	return path.Clean("/" + strings.TrimPrefix(name, "/")), nil
}

// Parent returns the parent collection of a cleaned name. The parent of "/" is "/".
func Parent(name string) string {
	if name == "/" || name == "" {
		return "/"
	}
	return path.Dir(name)
}

// SafeJoin safely joins a root path with a relative path, ensuring
// the result stays within the root directory boundary.
// Returns an error if the path would escape the root.
func SafeJoin(root, rel string) (string, error) {
	cleanRoot := filepath.Clean(root)

	cleanRel, err := Clean(rel)
	if err != nil {
		return "", err
	}

	joined := filepath.Join(cleanRoot, filepath.FromSlash(strings.TrimPrefix(cleanRel, "/")))

	// Resolve symlinks so a link inside the root cannot point outside of it
	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		// The file might not exist yet; check the parent directory instead
		dir := filepath.Dir(joined)
		if dir != cleanRoot {
			resolvedDir, dirErr := filepath.EvalSymlinks(dir)
			if dirErr == nil && !within(resolveRoot(cleanRoot), resolvedDir) {
				return "", metadata.ErrForbidden
			}
		}
		if !within(cleanRoot, joined) {
			return "", metadata.ErrForbidden
		}
	} else if !within(resolveRoot(cleanRoot), resolved) {
		return "", metadata.ErrForbidden
	}

	return joined, nil
}

// resolveRoot resolves symlinks in the root itself (e.g. /tmp on macOS) so
// that comparisons against resolved children are meaningful.
func resolveRoot(root string) string {
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		return resolved
	}
	return root
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ValidatePath performs comprehensive path validation for security.
// It checks for common attack patterns and ensures the path is safe to use.
func ValidatePath(name string) error {
	if name == "" {
		return fmt.Errorf("path cannot be empty")
	}

	// Check for control characters, NUL included
	for _, char := range name {
		if char < 32 && char != '\t' {
			return metadata.ErrForbidden
		}
	}

	_, err := Clean(name)
	return err
}
