package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oukeidos/kotoba/internal/apperrors"
	"github.com/oukeidos/kotoba/internal/chunker"
	"github.com/oukeidos/kotoba/internal/logger"
	"github.com/oukeidos/kotoba/internal/postprocess"
	"github.com/oukeidos/kotoba/internal/store"
)

// Run executes one job: it resolves resume-vs-fresh, determines the work
// set, dispatches the worker pool, and performs the completion merge. It is
// safe to call again after a STOPPED or ERROR result, provided the input
// file and config are unchanged, to resume where it left off.
func Run(ctx context.Context, fs *store.FileStore, opts Options) (Result, error) {
	paths := store.ResolvePaths(opts.InputPath, opts.OutputPath)

	existing, err := fs.ReadMetadata(paths.Metadata)
	if err != nil {
		return Result{}, err
	}

	inputText, err := fs.ReadInput(paths.Input)
	if err != nil {
		return Result{}, err
	}
	segments, err := chunker.Split(inputText, opts.ChunkSize)
	if err != nil {
		return Result{}, apperrors.Config(fmt.Sprintf("chunking input: %s", err))
	}
	totalChunks := len(segments)

	resume := existing != nil &&
		!opts.ForceFresh &&
		existing.ConfigHash == opts.ConfigHash &&
		existing.Status != store.StatusError &&
		existing.TotalChunks == totalChunks

	if !resume && existing != nil {
		if store.Exists(paths.Output) && opts.OnConfirmOverwrite != nil && !opts.OnConfirmOverwrite(paths.Output) {
			return Result{Skipped: true, OutputPath: paths.Output}, nil
		}
		logger.Info("starting fresh job, discarding prior run", "input", paths.Input, "reason", freshReason(existing, opts, totalChunks))
		if err := fs.DeleteOutput(paths.Output); err != nil {
			return Result{}, err
		}
		if err := fs.DeleteMetadata(paths.Metadata); err != nil {
			return Result{}, err
		}
		if err := fs.DeleteScratch(paths.Scratch); err != nil {
			return Result{}, err
		}
		existing = nil
	}

	now := time.Now().Unix()
	var meta *store.JobMetadata
	if resume {
		meta = existing
		meta.Status = store.StatusInProgress
	} else {
		meta = store.NewJobMetadata(paths.Input, opts.ConfigHash, totalChunks, now)
		meta.Status = store.StatusInProgress
	}

	workSet := determineWorkSet(meta, totalChunks, opts.RetranslateFailedOnly)
	logger.Info("job dispatch starting", "input", paths.Input, "total_chunks", totalChunks, "to_translate", len(workSet), "resume", resume)

	state := &jobState{
		fs:    fs,
		paths: paths,
		meta:  meta,
		total: totalChunks,
	}
	state.successful = len(meta.TranslatedChunks)
	state.failed = len(meta.FailedChunks)
	if opts.RetranslateFailedOnly {
		// Failures about to be retried no longer count against the run
		// until they resolve one way or the other again.
		state.failed -= len(workSet)
	}

	if err := fs.WriteMetadata(paths.Metadata, meta); err != nil {
		return Result{}, err
	}

	dispatchErr := dispatch(ctx, state, opts, segments, workSet)

	result, err := complete(fs, state, opts, dispatchErr, ctx.Err() != nil)
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func freshReason(existing *store.JobMetadata, opts Options, totalChunks int) string {
	switch {
	case opts.ForceFresh:
		return "force-new requested"
	case existing.ConfigHash != opts.ConfigHash:
		return "config changed since last run"
	case existing.Status == store.StatusError:
		return "previous run ended in error"
	case existing.TotalChunks != totalChunks:
		return "chunk count changed since last run"
	default:
		return "unknown"
	}
}

// determineWorkSet returns the sorted chunk indices a dispatch pass must
// translate: either every index not yet recorded as translated, or (in
// retranslate-failed-only mode) exactly the indices currently in
// FailedChunks.
func determineWorkSet(meta *store.JobMetadata, totalChunks int, failedOnly bool) []int {
	var indices []int
	if failedOnly {
		for k := range meta.FailedChunks {
			idx, err := strconv.Atoi(k)
			if err != nil {
				continue
			}
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		return indices
	}

	for i := 0; i < totalChunks; i++ {
		key := strconv.Itoa(i)
		if _, done := meta.TranslatedChunks[key]; done {
			continue
		}
		indices = append(indices, i)
	}
	return indices
}

// jobState carries everything the dispatch loop and a single task share;
// mu guards every field below it, matching the single-mutex discipline
// JobMetadata requires for the life of a job.
type jobState struct {
	fs    *store.FileStore
	paths store.Paths
	meta  *store.JobMetadata
	total int

	mu         sync.Mutex
	successful int
	failed     int
	processed  int
}

func dispatch(ctx context.Context, state *jobState, opts Options, segments []chunker.Segment, workSet []int) error {
	if len(workSet) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxWorkers)

	for _, idx := range workSet {
		idx := idx
		text := segments[idx].Text
		g.Go(func() error {
			runTask(gctx, state, opts, idx, text)
			return nil
		})
	}
	return g.Wait()
}

// runTask translates one chunk and records its outcome in metadata. It
// never returns an error to its errgroup caller: every outcome (success,
// classified failure, or cancellation) is recorded as chunk state instead,
// so one chunk's fate never aborts its siblings.
func runTask(ctx context.Context, state *jobState, opts Options, idx int, text string) {
	if ctx.Err() != nil {
		return
	}

	var result string
	var err error
	if opts.UseContentSafetyRetry {
		result, err = opts.Engine.TranslateWithSafetyRetry(ctx, text, opts.MaxContentSafetySplitAttempts, opts.MinContentSafetyChunkSize)
	} else {
		result, err = opts.Engine.Translate(ctx, text)
	}

	if ctx.Err() != nil {
		// Cancellation landed after the API returned; discard the result
		// rather than persist work done after the stop signal.
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	key := strconv.Itoa(idx)
	if err != nil {
		kind, _ := apperrors.KindOf(err)
		if kind == apperrors.KindCancellation {
			return
		}
		block := postprocess.FormatChunkBlock(idx, fmt.Sprintf("[translation failure: %s]", apperrors.PublicMessage(err)))
		if werr := state.fs.AppendScratch(state.paths.Scratch, block); werr != nil {
			logger.Error("failed to append scratch block", "index", idx, "error", werr)
		}
		state.meta.FailedChunks[key] = apperrors.PublicMessage(err)
		delete(state.meta.TranslatedChunks, key)
		state.failed++
	} else {
		block := postprocess.FormatChunkBlock(idx, result)
		if werr := state.fs.AppendScratch(state.paths.Scratch, block); werr != nil {
			logger.Error("failed to append scratch block", "index", idx, "error", werr)
		}
		state.meta.TranslatedChunks[key] = time.Now().Unix()
		delete(state.meta.FailedChunks, key)
		state.successful++
	}
	state.processed++
	state.meta.LastUpdated = time.Now().Unix()

	if werr := state.fs.WriteMetadata(state.paths.Metadata, state.meta); werr != nil {
		logger.Error("failed to persist job metadata", "error", werr)
	}

	if opts.OnProgress != nil {
		current := idx
		var lastErr string
		if err != nil {
			lastErr = apperrors.PublicMessage(err)
		}
		opts.OnProgress(Progress{
			Total:         state.total,
			Processed:     state.processed,
			Successful:    state.successful,
			Failed:        state.failed,
			StatusMessage: "translating",
			CurrentIndex:  &current,
			LastError:     lastErr,
		})
	}
}

// complete merges the scratch file and any previous sidecar into a dense
// chunk-indexed sidecar, runs post-processing, writes the final output, and
// advances metadata to a terminal status.
func complete(fs *store.FileStore, state *jobState, opts Options, dispatchErr error, cancelled bool) (Result, error) {
	scratchText, err := fs.ReadScratch(state.paths.Scratch)
	if err != nil {
		return Result{}, err
	}
	prevSidecar, err := fs.ReadSidecar(state.paths.Sidecar)
	if err != nil {
		return Result{}, err
	}

	merged := postprocess.ParseChunkedText(prevSidecar)
	for idx, text := range postprocess.ParseChunkedText(scratchText) {
		merged[idx] = text
	}

	chunkedText := postprocess.BuildChunkedText(merged, state.total)
	if err := fs.WriteSidecar(state.paths.Sidecar, chunkedText); err != nil {
		return Result{}, err
	}

	postOpts := opts.PostProcess
	if len(opts.PronounGroups) > 0 {
		postOpts.PronounConsistencyCheck = opts.PronounGroups
	}
	postResult := postprocess.Apply(chunkedText, postOpts)

	if err := fs.WriteOutput(state.paths.Output, postResult.Text); err != nil {
		return Result{}, err
	}
	if err := fs.DeleteScratch(state.paths.Scratch); err != nil {
		return Result{}, err
	}

	status := calculateStatus(cancelled, dispatchErr, state.failed, state.successful, state.total)
	state.meta.Status = status
	state.meta.LastUpdated = time.Now().Unix()
	if err := fs.WriteMetadata(state.paths.Metadata, state.meta); err != nil {
		return Result{}, err
	}

	result := Result{
		Status:      status,
		OutputPath:  state.paths.Output,
		TotalChunks: state.total,
		Successful:  state.successful,
		Failed:      state.failed,
		Warnings:    postResult.Warnings,
	}
	if opts.Usage != nil {
		result.Usage = opts.Usage.GetUsage()
	}

	if opts.OnProgress != nil {
		opts.OnProgress(Progress{
			Total:         state.total,
			Processed:     state.successful + state.failed,
			Successful:    state.successful,
			Failed:        state.failed,
			StatusMessage: string(status),
		})
	}

	logger.Info("job finished", "input", state.paths.Input, "status", status, "successful", state.successful, "failed", state.failed)
	return result, nil
}

func calculateStatus(cancelled bool, dispatchErr error, failed, successful, total int) store.JobStatus {
	if cancelled || dispatchErr != nil {
		return store.StatusStopped
	}
	if failed == 0 && successful == total {
		return store.StatusCompleted
	}
	if successful > 0 || failed > 0 {
		return store.StatusCompletedWithErrors
	}
	return store.StatusError
}
