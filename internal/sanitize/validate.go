// Package sanitize provides path validation for untrusted project names and
// file paths before they reach the filesystem.
package sanitize

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Validation errors for security checks.
var (
	// ErrPathTraversal indicates a path contains directory traversal sequences.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrAbsolutePath indicates an absolute path was provided where relative was expected.
	ErrAbsolutePath = errors.New("absolute path not allowed")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrInvalidName indicates a path contains characters that cannot name a file.
	ErrInvalidName = errors.New("path contains invalid characters")
)

// ValidatePath checks a path for security issues:
//   - No directory traversal segments
//   - Resolves to absolute path and validates it stays within expected root
//   - Returns the cleaned, absolute path or an error
//
// If allowedRoot is empty, only traversal checks are performed.
// If allowedRoot is provided, the path must resolve within that directory.
// Relative paths are resolved against allowedRoot when it is set, and
// against the working directory otherwise.
func ValidatePath(p, allowedRoot string) (string, error) {
	if p == "" {
		return "", ErrEmptyPath
	}

	if hasParentSegment(p) {
		return "", fmt.Errorf("%w: contains '..'", ErrPathTraversal)
	}

	cleanPath := filepath.Clean(p)

	absPath := cleanPath
	if !filepath.IsAbs(cleanPath) {
		base := allowedRoot
		if base == "" {
			base = "."
		}
		absBase, err := filepath.Abs(base)
		if err != nil {
			return "", fmt.Errorf("failed to resolve path: %w", err)
		}
		absPath = filepath.Join(absBase, cleanPath)
	}

	if allowedRoot != "" {
		absRoot, err := filepath.Abs(allowedRoot)
		if err != nil {
			return "", fmt.Errorf("failed to resolve allowed root: %w", err)
		}

		rel, err := filepath.Rel(absRoot, absPath)
		if err != nil {
			return "", fmt.Errorf("%w: path outside allowed root", ErrPathTraversal)
		}

		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: path escapes allowed root", ErrPathTraversal)
		}
	}

	return absPath, nil
}

// ValidateRelPath validates a slash-separated path that must stay below the
// directory it is joined to. Backslashes are treated as separators so that
// Windows-style input cannot smuggle a traversal past the check.
//
// Returns the cleaned slash-separated path.
func ValidateRelPath(p string) (string, error) {
	if p == "" {
		return "", ErrEmptyPath
	}
	if strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("%w: NUL byte", ErrInvalidName)
	}

	slashed := strings.ReplaceAll(p, `\`, "/")
	if path.IsAbs(slashed) || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return "", fmt.Errorf("%w: %q", ErrAbsolutePath, p)
	}
	if hasParentSegment(slashed) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, p)
	}

	clean := path.Clean(slashed)
	if clean == "." {
		return "", fmt.Errorf("%w: %q names the root itself", ErrEmptyPath, p)
	}
	return clean, nil
}

// ValidateProjectName validates a project directory name. Nested names such
// as "clients/acme/site" are allowed; absolute names and traversal are not.
func ValidateProjectName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrEmptyPath
	}
	clean, err := ValidateRelPath(name)
	if err != nil {
		return "", err
	}
	return filepath.FromSlash(clean), nil
}

// SafeBasename returns the base name of a path after validation.
// This is a secure replacement for filepath.Base() on untrusted input.
// Relative paths are resolved against the working directory, so "." yields
// the name of the current directory.
func SafeBasename(p string) (string, error) {
	cleanPath, err := ValidatePath(p, "")
	if err != nil {
		return "", err
	}

	base := filepath.Base(cleanPath)

	if base == "" || base == "." || base == "/" || base == string(filepath.Separator) {
		return "", fmt.Errorf("%w: invalid path base", ErrPathTraversal)
	}

	return base, nil
}

// hasParentSegment reports whether any slash- or backslash-separated segment is "..".
// Names that merely contain two dots ("app..min.js") are allowed.
func hasParentSegment(p string) bool {
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool {
		return r == '/' || r == '\\'
	}) {
		if seg == ".." {
			return true
		}
	}
	return false
}
