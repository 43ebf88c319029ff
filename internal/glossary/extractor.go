package glossary

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/oukeidos/kotoba/internal/chunker"
	"github.com/oukeidos/kotoba/internal/genai"
	"github.com/oukeidos/kotoba/internal/logger"
)

// SamplingMethod selects how segments are chosen for term extraction.
type SamplingMethod string

const (
	SamplingUniform SamplingMethod = "uniform"
	SamplingRandom  SamplingMethod = "random"
)

// ExtractOptions configures a single extraction run.
type ExtractOptions struct {
	ChunkSize       int
	SamplingMethod  SamplingMethod
	SamplingRatio   float64 // percent, e.g. 10 for 10%
	Temperature     float32
	TargetLanguage  string
	MaxWorkers      int
	MaxTotalEntries int
}

// Progress reports extraction progress to the caller.
type Progress struct {
	TotalSegments         int
	ProcessedSegments     int
	StatusMessage         string
	ExtractedEntriesCount int
}

type extractionResponse struct {
	Terms []Entry `json:"terms"`
}

// ExtractAndSave samples segments of novelText, asks the generator for
// glossary terms per sample, aggregates and caps the result, optionally
// merging in a seed set, and returns the final entry list. Persistence is
// the caller's responsibility (via a FileStore atomic write), since this
// package has no filesystem dependency.
func ExtractAndSave(ctx context.Context, gen genai.Generator, model, novelText string, opts ExtractOptions, seed []Entry, onProgress func(Progress)) ([]Entry, error) {
	segments, err := chunker.Split(novelText, normalizeChunkSize(opts.ChunkSize))
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		result := SortAndCap(Merge(seed), opts.MaxTotalEntries)
		if onProgress != nil {
			onProgress(Progress{ExtractedEntriesCount: len(result)})
		}
		return result, nil
	}

	sample := selectSample(segments, opts.SamplingMethod, opts.SamplingRatio)

	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	var mu sync.Mutex
	var collected []Entry
	processed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for _, seg := range sample {
		seg := seg
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			entries, err := extractFromSegment(gctx, gen, model, seg.Text, opts)
			mu.Lock()
			processed++
			if err != nil {
				logger.Warn("glossary extraction failed for segment, skipping", "index", seg.Index, "error", err)
			} else {
				collected = append(collected, entries...)
			}
			count := len(collected)
			p := processed
			mu.Unlock()

			if onProgress != nil {
				onProgress(Progress{
					TotalSegments:         len(sample),
					ProcessedSegments:     p,
					StatusMessage:         fmt.Sprintf("extracted from segment %d", seg.Index),
					ExtractedEntriesCount: count,
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	merged := Merge(collected, seed)
	return SortAndCap(merged, opts.MaxTotalEntries), nil
}

func extractFromSegment(ctx context.Context, gen genai.Generator, model, segmentText string, opts ExtractOptions) ([]Entry, error) {
	prompt := fmt.Sprintf(`Identify recurring proper nouns, character names, and invented terminology in the following text that a translator into %s should render consistently.
Respond ONLY with a JSON object: {"terms": [{"keyword": "...", "translated_keyword": "...", "target_language": "%s", "occurrence_count": <int>}]}.

Text:
%s`, opts.TargetLanguage, opts.TargetLanguage, segmentText)

	result, err := gen.Generate(ctx, genai.GenerateParams{
		Model:        model,
		Temperature:  opts.Temperature,
		ResponseJSON: true,
	}, prompt, nil)
	if err != nil {
		return nil, err
	}

	var parsed extractionResponse
	if err := genai.ParseJSON(result.Text, &parsed); err != nil {
		return nil, err
	}
	return parsed.Terms, nil
}

func normalizeChunkSize(size int) int {
	if size <= 0 {
		return 6000
	}
	return size
}

// selectSample implements uniform and random sampling over segments, sized
// to sampleRatio percent of the total (minimum one segment).
func selectSample(segments []chunker.Segment, method SamplingMethod, ratioPercent float64) []chunker.Segment {
	total := len(segments)
	ratio := ratioPercent / 100.0
	if ratio <= 0 || ratio > 1.0 {
		ratio = 0.1
	}
	size := int(float64(total) * ratio)
	if size < 1 {
		size = 1
	}
	if size >= total {
		return segments
	}

	var indices []int
	switch method {
	case SamplingRandom:
		indices = rand.Perm(total)[:size]
	default: // uniform
		step := float64(total) / float64(size)
		seen := make(map[int]bool, size)
		for i := 0; i < size; i++ {
			idx := int(float64(i) * step)
			if idx >= total {
				idx = total - 1
			}
			if !seen[idx] {
				seen[idx] = true
				indices = append(indices, idx)
			}
		}
		if len(indices) < size {
			for _, idx := range rand.Perm(total) {
				if len(indices) >= size {
					break
				}
				if !seen[idx] {
					seen[idx] = true
					indices = append(indices, idx)
				}
			}
		}
	}

	sortedIdx := append([]int(nil), indices...)
	sort.Ints(sortedIdx)

	out := make([]chunker.Segment, 0, len(sortedIdx))
	for _, idx := range sortedIdx {
		out = append(out, segments[idx])
	}
	return out
}
