package parser

import (
	"context"
	"strings"

	"foldermcp/internal/model"
)

type markdownParser struct{}

func (*markdownParser) Type() string { return "markdown" }

func (*markdownParser) Extensions() []string { return []string{"md", "markdown", "mdx"} }

func (p *markdownParser) Supports(extension string) bool {
	return supportsExt(p, extension)
}

// Parse reads the file as text and additionally records heading-scoped
// sections so chunks can carry a section path.
func (p *markdownParser) Parse(_ context.Context, absPath string) (model.ParsedDocument, error) {
	raw, meta, err := readFileWithMeta(absPath, p.Type())
	if err != nil {
		return model.ParsedDocument{}, err
	}
	content := normalizeNewlines(string(raw))
	return model.ParsedDocument{
		Kind:     model.ParsedText,
		Content:  content,
		Sections: extractSections(content),
		Meta:     meta,
	}, nil
}

// extractSections walks ATX headings and scopes each heading to the lines up
// to the next heading of equal or shallower depth.
func extractSections(content string) []model.Section {
	lines := strings.Split(content, "\n")

	type open struct {
		section model.Section
		level   int
		index   int
	}

	var sections []model.Section
	var stack []open

	closeDownTo := func(level, endLine int) {
		for len(stack) > 0 && stack[len(stack)-1].level >= level {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			top.section.EndLine = endLine
			sections[top.index] = top.section
		}
	}

	for i, line := range lines {
		level, heading, ok := parseHeading(line)
		if !ok {
			continue
		}
		closeDownTo(level, i)

		path := make([]string, 0, len(stack)+1)
		for _, o := range stack {
			path = append(path, o.section.Heading)
		}
		path = append(path, heading)

		section := model.Section{
			Path:      path,
			Heading:   heading,
			StartLine: i + 1,
			EndLine:   len(lines),
		}
		sections = append(sections, section)
		stack = append(stack, open{section: section, level: level, index: len(sections) - 1})
	}
	closeDownTo(1, len(lines))

	return sections
}

func parseHeading(line string) (level int, heading string, ok bool) {
	trimmed := strings.TrimLeft(line, " ")
	if !strings.HasPrefix(trimmed, "#") {
		return 0, "", false
	}
	level = 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level > 6 {
		return 0, "", false
	}
	rest := trimmed[level:]
	if rest != "" && !strings.HasPrefix(rest, " ") {
		return 0, "", false
	}
	heading = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(rest), "#"))
	if heading == "" {
		heading = strings.TrimSpace(rest)
	}
	return level, heading, true
}
