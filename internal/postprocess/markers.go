// Package postprocess owns the chunk-index marker format written to scratch
// and sidecar files during a job, and the cleanup that turns marker-bearing
// merged text into the user-facing output.
package postprocess

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	chunkIndexPrefix = "##CHUNK_INDEX: "
	chunkIndexSuffix = "##"
	endChunkMarker   = "##END_CHUNK##"
)

// FormatChunkBlock renders one chunk's marker-delimited block, as appended
// to the scratch file by the Orchestrator and retained verbatim in the
// chunked-backup sidecar.
func FormatChunkBlock(index int, text string) string {
	return fmt.Sprintf("%s%d%s\n%s\n%s\n\n", chunkIndexPrefix, index, chunkIndexSuffix, text, endChunkMarker)
}

var chunkBlockRegex = regexp.MustCompile(`(?s)##CHUNK_INDEX: (-?\d+)##\n(.*?)\n##END_CHUNK##`)

// ParseChunkedText extracts the index -> text mapping from marker-delimited
// content, as read back from the scratch file or the chunked-backup sidecar
// on resume.
func ParseChunkedText(text string) map[int]string {
	matches := chunkBlockRegex.FindAllStringSubmatch(text, -1)
	out := make(map[int]string, len(matches))
	for _, m := range matches {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out[idx] = m[2]
	}
	return out
}

// BuildChunkedText renders a dense 0..total-1 sequence of marker blocks for
// whichever indices are present in chunks, in index order. Missing indices
// are simply omitted; the caller decides whether that is acceptable.
func BuildChunkedText(chunks map[int]string, total int) string {
	var b strings.Builder
	for i := 0; i < total; i++ {
		if text, ok := chunks[i]; ok {
			b.WriteString(FormatChunkBlock(i, text))
		}
	}
	return b.String()
}

// StripMarkers removes chunk-index and end-chunk markers from merged text,
// leaving only the translated prose. Markers must never reach the
// user-facing output; this runs unconditionally, independent of whether the
// optional header/boilerplate cleanup below is enabled.
func StripMarkers(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, chunkIndexPrefix) && strings.HasSuffix(trimmed, chunkIndexSuffix) {
			continue
		}
		if trimmed == endChunkMarker {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
