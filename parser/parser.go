// Package parser extracts plain text from input documents so it can be fed
// to the tagging pipeline.
package parser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrNoParser is returned when no parser is registered for a format.
var ErrNoParser = errors.New("parser: no parser for format")

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Sections []Section // Ordered sections extracted from the document
	Method   string    // "native"
	Metadata map[string]string
}

// Section represents a logical section of a parsed document.
type Section struct {
	Heading    string
	Content    string
	Level      int // Heading level (1=top, 2=sub, etc.)
	PageNumber int
	Type       string // "paragraph", "table"
	Metadata   map[string]string
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}

// Text joins the section contents with blank lines.
func (r *ParseResult) Text() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Sections))
	for _, s := range r.Sections {
		if c := strings.TrimSpace(s.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n\n")
}

// FormatOf returns the lower-case extension of path without the dot.
func FormatOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// ExtractText parses path with the parser registered for its extension and
// returns the document text.
func ExtractText(ctx context.Context, r *Registry, path string) (string, error) {
	p, err := r.Get(FormatOf(path))
	if err != nil {
		return "", err
	}
	res, err := p.Parse(ctx, path)
	if err != nil {
		return "", fmt.Errorf("parser.ExtractText %s: %w", filepath.Base(path), err)
	}
	return res.Text(), nil
}
