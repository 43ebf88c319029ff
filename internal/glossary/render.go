package glossary

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rivo/uniseg"
)

// NoGlossaryContext is substituted when injection is disabled or yields no
// matching entries.
const NoGlossaryContext = "no glossary context"

// RenderContext builds the {{glossary_context}} substitution for a single
// chunk: entries whose keyword appears case-insensitively in chunkText,
// ordered by occurrence count descending then keyword ascending, capped at
// maxEntries and maxChars. The entry that would overflow the character
// budget is dropped unless it's the first one selected.
func RenderContext(entries []Entry, chunkText string, maxEntries, maxChars int) string {
	lowerChunk := strings.ToLower(chunkText)

	var matched []Entry
	for _, e := range entries {
		if e.Keyword == "" {
			continue
		}
		if strings.Contains(lowerChunk, strings.ToLower(e.Keyword)) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return NoGlossaryContext
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].OccurrenceCount != matched[j].OccurrenceCount {
			return matched[i].OccurrenceCount > matched[j].OccurrenceCount
		}
		return strings.ToLower(matched[i].Keyword) < strings.ToLower(matched[j].Keyword)
	})

	if maxEntries > 0 && len(matched) > maxEntries {
		matched = matched[:maxEntries]
	}

	var lines []string
	total := 0
	for _, e := range matched {
		line := fmt.Sprintf("- %s -> %s", e.Keyword, e.TranslatedKeyword)
		lineLen := uniseg.GraphemeClusterCount(line) + 1 // +1 for the joining newline
		if maxChars > 0 && total+lineLen > maxChars && len(lines) > 0 {
			break
		}
		lines = append(lines, line)
		total += lineLen
	}

	if len(lines) == 0 {
		return NoGlossaryContext
	}
	return strings.Join(lines, "\n")
}
