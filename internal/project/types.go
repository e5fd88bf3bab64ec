package project

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors.
var (
	ErrInvalidProjectName = errors.New("invalid project name")
	ErrUnsafePath         = errors.New("unsafe file path")
	ErrInvalidFileSet     = errors.New("invalid file set")
)

// File is a single file to write, relative to the project root.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Category is a labelled group of files.
type Category struct {
	Name  string `json:"name"`
	Files []File `json:"files"`
}

// FileSet is an ordered list of categories. Files are written in slice order.
type FileSet []Category

// Add appends a file. It joins the last category when the name matches and
// starts a new category otherwise, so insertion order is kept.
func (fs *FileSet) Add(category, path, content string) {
	n := len(*fs)
	if n > 0 && (*fs)[n-1].Name == category {
		(*fs)[n-1].Files = append((*fs)[n-1].Files, File{Path: path, Content: content})
		return
	}
	*fs = append(*fs, Category{Name: category, Files: []File{{Path: path, Content: content}}})
}

// Len returns the number of entries, counting repeated paths.
func (fs FileSet) Len() int {
	n := 0
	for _, c := range fs {
		n += len(c.Files)
	}
	return n
}

// Bytes returns the total content size in bytes.
func (fs FileSet) Bytes() int64 {
	var n int64
	for _, c := range fs {
		for _, f := range c.Files {
			n += int64(len(f.Content))
		}
	}
	return n
}

// Result describes a successful Materialize call.
type Result struct {
	// Root is the absolute path of the project directory.
	Root string `json:"root"`
	// Written lists relative paths in write order. A path written twice
	// appears twice.
	Written []string `json:"written"`
	// Files is the number of distinct files written.
	Files int `json:"files"`
	// Created is true when the project directory did not exist before.
	Created bool `json:"created"`
}

// MaterializeError reports a failed Materialize call.
type MaterializeError struct {
	Project  string
	Category string
	Path     string
	// Written lists files already committed to disk before the failure.
	// It is empty when the call left nothing behind.
	Written []string
	Err     error
}

func (e *MaterializeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "materialize %q", e.Project)
	if e.Path != "" {
		fmt.Fprintf(&b, ": %q", e.Path)
		if e.Category != "" {
			fmt.Fprintf(&b, " (category %s)", e.Category)
		}
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	if len(e.Written) > 0 {
		fmt.Fprintf(&b, " (%d files already written)", len(e.Written))
	}
	return b.String()
}

func (e *MaterializeError) Unwrap() error {
	return e.Err
}

// Partial reports whether files were left on disk by the failed call.
func (e *MaterializeError) Partial() bool {
	return len(e.Written) > 0
}
