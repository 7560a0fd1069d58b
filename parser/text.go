package parser

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TextParser reads plain text and markdown. Blank lines separate sections;
// markdown headings become section headings.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt", "text", "md"} }

func (p *TextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}
	content := strings.TrimPrefix(string(data), "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")

	res := &ParseResult{Method: "native"}
	heading, level := "", 0
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if h, l, rest, ok := markdownHeading(block); ok {
			heading, level = h, l
			res.Sections = append(res.Sections, Section{Heading: h, Content: h, Level: l, Type: "heading"})
			if rest == "" {
				continue
			}
			block = rest
		}
		res.Sections = append(res.Sections, Section{
			Heading: heading,
			Content: block,
			Level:   level,
			Type:    "paragraph",
		})
	}
	return res, nil
}

// markdownHeading splits a leading "# Title" line off block.
func markdownHeading(block string) (heading string, level int, rest string, ok bool) {
	line, rest, _ := strings.Cut(block, "\n")
	trimmed := strings.TrimLeft(line, "#")
	level = len(line) - len(trimmed)
	if level == 0 || level > 6 || !strings.HasPrefix(trimmed, " ") {
		return "", 0, block, false
	}
	return strings.TrimSpace(trimmed), level, strings.TrimSpace(rest), true
}
