package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	sections := make([]Section, 0)

	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Debug("parser: skipping unreadable pdf page", "page", i, "error", err)
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		sections = append(sections, splitPageIntoSections(text, i)...)
	}

	return &ParseResult{
		Sections: sections,
		Method:   "native",
		Metadata: map[string]string{"pages": fmt.Sprintf("%d", totalPages)},
	}, nil
}

// splitPageIntoSections breaks page text into paragraphs. Blank lines end a
// paragraph. Heading-like lines become their own "heading" section and are
// recorded as the heading of the paragraphs that follow. Wrapped lines inside
// a paragraph are joined with spaces.
func splitPageIntoSections(text string, pageNum int) []Section {
	lines := strings.Split(text, "\n")
	var sections []Section
	var current []string
	var heading string
	level := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		sections = append(sections, Section{
			Heading:    heading,
			Content:    strings.Join(current, " "),
			Level:      level,
			PageNumber: pageNum,
			Type:       "paragraph",
		})
		current = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if isLikelyHeading(trimmed) {
			flush()
			heading = trimmed
			level = detectHeadingLevel(trimmed)
			sections = append(sections, Section{
				Heading:    heading,
				Content:    heading,
				Level:      level,
				PageNumber: pageNum,
				Type:       "heading",
			})
			continue
		}
		current = append(current, trimmed)
	}
	flush()

	return sections
}

func isLikelyHeading(line string) bool {
	if len(line) > 100 {
		return false
	}
	// All caps and more than a couple of letters.
	letters := 0
	for _, r := range line {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') {
			letters++
		}
	}
	if letters > 2 && line == strings.ToUpper(line) {
		return true
	}
	// Numbered section like "1.", "1.1", "3.9.1"
	if line[0] >= '0' && line[0] <= '9' && strings.Contains(line[:min(10, len(line))], ".") &&
		!strings.HasSuffix(line, ".") {
		return true
	}
	lower := strings.ToLower(line)
	return strings.HasPrefix(lower, "section ") || strings.HasPrefix(lower, "chapter ")
}

func detectHeadingLevel(heading string) int {
	// Count dots in numbering to determine depth
	parts := strings.SplitN(heading, " ", 2)
	if len(parts) > 0 {
		dots := strings.Count(strings.TrimSuffix(parts[0], "."), ".")
		if parts[0][0] >= '0' && parts[0][0] <= '9' {
			return dots + 1
		}
	}
	// All-caps = top level
	if heading == strings.ToUpper(heading) {
		return 1
	}
	return 2
}
