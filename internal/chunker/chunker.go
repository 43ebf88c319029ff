// Package chunker splits novel text into ordered, line-boundary-preserving
// segments for translation, and provides the binary and sentence splits used
// by the translator's content-safety retry path.
package chunker

import (
	"regexp"
	"strings"

	"github.com/oukeidos/kotoba/internal/apperrors"
)

// Segment is a single ordered slice of the input text.
type Segment struct {
	Index int
	Text  string
}

// Split splits text by newline boundaries, greedily appending lines to the
// current chunk while its rune length stays within maxSize. A single line
// longer than maxSize is hard-split into equal runs of exactly maxSize
// runes. The concatenation of all returned segments equals text exactly.
func Split(text string, maxSize int) ([]Segment, error) {
	if maxSize <= 0 {
		return nil, apperrors.Validation(nil)
	}
	if text == "" {
		return nil, nil
	}

	var chunks []string
	var current strings.Builder

	for _, line := range splitKeepEnds(text) {
		if runeLen(current.String())+runeLen(line) <= maxSize {
			current.WriteString(line)
			continue
		}

		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}

		if runeLen(line) > maxSize {
			chunks = append(chunks, hardSplit(line, maxSize)...)
			continue
		}
		current.WriteString(line)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	segments := make([]Segment, len(chunks))
	for i, c := range chunks {
		segments[i] = Segment{Index: i, Text: c}
	}
	return segments, nil
}

// SplitInTwo returns exactly one or two segments. It runs Split at the
// target size (half of text's rune length), then coalesces extra pieces so
// exactly two chunks remain; if the final chunk would be smaller than
// minRatio of the target size, the last two produced pieces are merged
// instead of the leading ones.
func SplitInTwo(text string, minRatio float64) ([]Segment, error) {
	if minRatio <= 0 {
		minRatio = 0.3
	}
	textLen := runeLen(text)
	if textLen == 0 {
		return nil, nil
	}
	target := textLen / 2
	if target <= 0 {
		return []Segment{{Index: 0, Text: text}}, nil
	}
	minChunkSize := int(float64(target) * minRatio)

	initialSegments, err := Split(text, target)
	if err != nil {
		return nil, err
	}
	initial := make([]string, len(initialSegments))
	for i, s := range initialSegments {
		initial[i] = s.Text
	}

	if len(initial) <= 2 {
		return toSegments(initial), nil
	}

	last := initial[len(initial)-1]
	if runeLen(last) >= minChunkSize {
		first := strings.Join(initial[:len(initial)-1], "")
		return toSegments([]string{first, last}), nil
	}

	first := strings.Join(initial[:len(initial)-2], "")
	second := strings.Join(initial[len(initial)-2:], "")
	return toSegments([]string{first, second}), nil
}

var sentenceSplitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[.!?]+\s+`),
	regexp.MustCompile(`[。!?]+\s*`),
	regexp.MustCompile(`[\r\n]+`),
}

// SplitBySentences splits text on sentence-ending punctuation and newline
// runs, then regroups perChunk sentences per returned segment. Used as a
// last-resort fallback when binary splitting cannot make progress.
func SplitBySentences(text string, perChunk int) []Segment {
	if perChunk <= 0 {
		perChunk = 1
	}

	pieces := []string{text}
	for _, re := range sentenceSplitPatterns {
		var next []string
		for _, p := range pieces {
			next = append(next, re.Split(p, -1)...)
		}
		pieces = next
	}

	var sentences []string
	for _, s := range pieces {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}

	if len(sentences) <= 1 {
		return []Segment{{Index: 0, Text: text}}
	}

	var chunks []string
	for i := 0; i < len(sentences); i += perChunk {
		end := i + perChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		chunks = append(chunks, strings.Join(sentences[i:end], " "))
	}
	return toSegments(chunks)
}

func toSegments(chunks []string) []Segment {
	segments := make([]Segment, len(chunks))
	for i, c := range chunks {
		segments[i] = Segment{Index: i, Text: c}
	}
	return segments
}

func runeLen(s string) int {
	return len([]rune(s))
}

// hardSplit cuts a single line into equal runs of exactly maxSize runes.
func hardSplit(line string, maxSize int) []string {
	runes := []rune(line)
	var parts []string
	for i := 0; i < len(runes); i += maxSize {
		end := i + maxSize
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[i:end]))
	}
	return parts
}

// splitKeepEnds splits text into lines, each retaining its trailing
// newline (mirroring Python's str.splitlines(keepends=True)).
func splitKeepEnds(text string) []string {
	var lines []string
	start := 0
	for i, r := range text {
		if r == '\n' {
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
