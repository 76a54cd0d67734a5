package chunker

import "strings"

// Split levels, tried in order. Each level produces contiguous pieces whose
// concatenation equals the input; separators stay attached to the preceding
// piece.
const (
	levelParagraph = iota
	levelSentence
	levelWhitespace
	levelRunes
)

// split packs the text into pieces near the target size. Pieces that exceed
// the hard cap at one level are re-split at the next finer level, down to raw
// rune windows for pathological inputs with no break points at all.
func (c *Chunker) split(text string, level int) []string {
	if text == "" {
		return nil
	}
	if level >= levelRunes {
		return splitRunes(text, c.hardCap*4)
	}

	var parts []string
	switch level {
	case levelParagraph:
		parts = splitParagraphs(text)
	case levelSentence:
		parts = splitSentences(text)
	case levelWhitespace:
		parts = splitWords(text)
	}
	if len(parts) <= 1 && EstimateTokens(text) > c.hardCap {
		return c.split(text, level+1)
	}

	var out []string
	var buf strings.Builder
	bufTokens := 0
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
			bufTokens = 0
		}
	}
	for _, p := range parts {
		t := EstimateTokens(p)
		if t > c.hardCap {
			flush()
			out = append(out, c.split(p, level+1)...)
			continue
		}
		if bufTokens > 0 && bufTokens+t > c.softCap {
			flush()
		}
		buf.WriteString(p)
		bufTokens += t
	}
	flush()
	return mergeWhitespaceOnly(out)
}

// mergeWhitespaceOnly folds pieces with no visible content into a neighbor so
// concatenation is preserved without emitting separator-only chunks.
func mergeWhitespaceOnly(pieces []string) []string {
	var out []string
	for _, p := range pieces {
		if len(out) > 0 && (strings.TrimSpace(p) == "" || strings.TrimSpace(out[len(out)-1]) == "") {
			out[len(out)-1] += p
			continue
		}
		out = append(out, p)
	}
	return out
}

// splitParagraphs cuts after blank-line runs. Whitespace-only leading runs
// merge into the following piece so no piece is pure separator.
func splitParagraphs(s string) []string {
	var out []string
	start := 0
	i := 0
	for i < len(s) {
		j := strings.Index(s[i:], "\n\n")
		if j < 0 {
			break
		}
		end := i + j
		for end < len(s) && s[end] == '\n' {
			end++
		}
		if strings.TrimSpace(s[start:end]) != "" {
			out = append(out, s[start:end])
			start = end
		}
		i = end
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// splitSentences cuts after terminal punctuation followed by whitespace, or
// after a newline.
func splitSentences(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		cut := false
		switch s[i] {
		case '\n':
			cut = true
		case '.', '!', '?':
			if i+1 < len(s) && (s[i+1] == ' ' || s[i+1] == '\t' || s[i+1] == '\n') {
				// keep the following whitespace with this sentence
				i++
				cut = true
			}
		}
		if cut {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// splitWords cuts after each whitespace run.
func splitWords(s string) []string {
	var out []string
	start := 0
	inSpace := false
	for i := 0; i < len(s); i++ {
		isSpace := s[i] == ' ' || s[i] == '\t' || s[i] == '\n'
		if inSpace && !isSpace {
			out = append(out, s[start:i])
			start = i
		}
		inSpace = isSpace
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// splitRunes cuts fixed windows of maxRunes runes, the last resort for inputs
// with no whitespace.
func splitRunes(s string, maxRunes int) []string {
	if maxRunes <= 0 {
		maxRunes = 1
	}
	var out []string
	count := 0
	start := 0
	for i := range s {
		if count == maxRunes {
			out = append(out, s[start:i])
			start = i
			count = 0
		}
		count++
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
