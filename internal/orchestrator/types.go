// Package orchestrator drives a single translation job end to end: it owns
// the JobMetadata state machine, determines the work set for a fresh or
// resumed run, dispatches a bounded worker pool against the Translator, and
// performs the completion merge that turns a scratch file into final
// output. It is the only component that writes JobMetadata.
package orchestrator

import (
	"context"

	"github.com/oukeidos/kotoba/internal/genai"
	"github.com/oukeidos/kotoba/internal/postprocess"
	"github.com/oukeidos/kotoba/internal/store"
)

// TranslateEngine is the narrow interface Orchestrator depends on,
// satisfied by *translator.Translator. Defining it here (rather than
// depending on the concrete type) keeps the dispatch loop testable without
// a real generative API behind it.
type TranslateEngine interface {
	Translate(ctx context.Context, chunkText string) (string, error)
	TranslateWithSafetyRetry(ctx context.Context, chunkText string, maxDepth, minSize int) (string, error)
}

// UsageSource reports accumulated token usage for the end-of-run cost
// summary, satisfied by *genai.Client. Optional: a nil source yields a
// zero-valued Result.Usage.
type UsageSource interface {
	GetUsage() genai.UsageMetadata
}

// Progress is fired after every chunk (success or failure) and once more at
// completion, mirroring the teacher's OnProgress callback idiom.
type Progress struct {
	Total         int
	Processed     int
	Successful    int
	Failed        int
	StatusMessage string
	CurrentIndex  *int
	LastError     string
}

// Options configures a single run of a job.
type Options struct {
	Engine TranslateEngine
	Usage  UsageSource

	InputPath  string
	OutputPath string

	// MaxWorkers bounds the worker pool. Rate limiting happens inside the
	// genai.Client behind Engine, not here.
	MaxWorkers int

	UseContentSafetyRetry        bool
	MaxContentSafetySplitAttempts int
	MinContentSafetyChunkSize    int

	ChunkSize int

	// ForceFresh discards any existing metadata/output regardless of
	// config-hash agreement (the CLI's --force-new flag).
	ForceFresh bool
	// RetranslateFailedOnly restricts the work set to indices already
	// recorded as failed, rather than every untranslated index.
	RetranslateFailedOnly bool

	ConfigHash string

	PostProcess    postprocess.Options
	PronounGroups  []postprocess.PronounGroup

	// OnConfirmOverwrite is consulted before a fresh run discards an
	// existing, already-complete output file. A nil callback allows the
	// overwrite unconditionally.
	OnConfirmOverwrite func(path string) bool

	OnProgress func(Progress)
}

// Result summarizes a finished (or skipped) run.
type Result struct {
	Skipped      bool
	Status       store.JobStatus
	OutputPath   string
	TotalChunks  int
	Successful   int
	Failed       int
	Usage        genai.UsageMetadata
	Warnings     []postprocess.ConsistencyWarning
}
