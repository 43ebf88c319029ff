// Package translator builds per-chunk prompts (template substitution,
// optional prefill history, optional glossary injection), invokes the
// generative API through a genai.Generator, and implements the recursive
// content-safety split that works around model refusals.
package translator

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/oukeidos/kotoba/internal/apperrors"
	"github.com/oukeidos/kotoba/internal/chunker"
	"github.com/oukeidos/kotoba/internal/genai"
	"github.com/oukeidos/kotoba/internal/glossary"
)

const (
	slotPlaceholder      = "{{slot}}"
	glossaryPlaceholder  = "{{glossary_context}}"
	maxFailureMarkerRunes = 80
)

// Options configures a Translator for the lifetime of a job.
type Options struct {
	Model             string
	Temperature       float32
	TopP              float32
	Template          string
	SystemInstruction string
	ThinkingBudget    *int32

	EnableGlossaryInjection bool
	GlossaryEntries         []glossary.Entry
	MaxGlossaryEntries      int
	MaxGlossaryChars        int

	EnablePrefill   bool
	PrefillHistory  []genai.HistoryTurn
}

// Translator builds prompts and calls the generative API for one job's
// chunks. It holds no reference back to the Orchestrator; stop signaling is
// carried entirely by the context passed into each call.
type Translator struct {
	gen  genai.Generator
	opts Options
}

// New constructs a Translator after validating that Template contains the
// required placeholders. A missing placeholder is a fatal configuration
// error, checked once here rather than discovered mid-job.
func New(gen genai.Generator, opts Options) (*Translator, error) {
	if !strings.Contains(opts.Template, slotPlaceholder) {
		return nil, apperrors.Config(fmt.Sprintf("prompt template must contain %s", slotPlaceholder))
	}
	if opts.EnableGlossaryInjection && !strings.Contains(opts.Template, glossaryPlaceholder) {
		return nil, apperrors.Config(fmt.Sprintf("prompt template must contain %s when glossary injection is enabled", glossaryPlaceholder))
	}
	return &Translator{gen: gen, opts: opts}, nil
}

// Translate sends a single chunk through the generative API and returns the
// translated text, or a classified error.
func (t *Translator) Translate(ctx context.Context, chunkText string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.Cancellation(err)
	}

	params := genai.GenerateParams{
		Model:             t.opts.Model,
		SystemInstruction: t.opts.SystemInstruction,
		Temperature:       t.opts.Temperature,
		TopP:              t.opts.TopP,
		ThinkingBudget:    t.opts.ThinkingBudget,
	}

	glossaryCtx := glossary.NoGlossaryContext
	if t.opts.EnableGlossaryInjection {
		glossaryCtx = glossary.RenderContext(t.opts.GlossaryEntries, chunkText, t.opts.MaxGlossaryEntries, t.opts.MaxGlossaryChars)
	}

	if t.opts.EnablePrefill && len(t.opts.PrefillHistory) > 0 {
		if history, hasSlot := t.inlaidHistory(chunkText, glossaryCtx); hasSlot {
			result, err := t.gen.Generate(ctx, params, " ", history)
			if err != nil {
				return "", err
			}
			return result.Text, nil
		}
		prompt := t.renderPrompt(chunkText, glossaryCtx)
		result, err := t.gen.Generate(ctx, params, prompt, t.opts.PrefillHistory)
		if err != nil {
			return "", err
		}
		return result.Text, nil
	}

	prompt := t.renderPrompt(chunkText, glossaryCtx)
	result, err := t.gen.Generate(ctx, params, prompt, nil)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

func (t *Translator) renderPrompt(chunkText, glossaryCtx string) string {
	prompt := strings.ReplaceAll(t.opts.Template, glossaryPlaceholder, glossaryCtx)
	prompt = strings.ReplaceAll(prompt, slotPlaceholder, chunkText)
	return prompt
}

// inlaidHistory checks whether any prefill history turn itself contains
// {{slot}}; if so it returns a deep copy with the placeholders substituted
// into those turns, since the SDK rejects a history ending on the model
// role and the template's own user turn is replaced by a single space.
func (t *Translator) inlaidHistory(chunkText, glossaryCtx string) ([]genai.HistoryTurn, bool) {
	hasSlot := false
	for _, turn := range t.opts.PrefillHistory {
		if strings.Contains(turn.Text, slotPlaceholder) {
			hasSlot = true
			break
		}
	}
	if !hasSlot {
		return nil, false
	}

	inlaid := make([]genai.HistoryTurn, len(t.opts.PrefillHistory))
	for i, turn := range t.opts.PrefillHistory {
		text := strings.ReplaceAll(turn.Text, glossaryPlaceholder, glossaryCtx)
		text = strings.ReplaceAll(text, slotPlaceholder, chunkText)
		inlaid[i] = genai.HistoryTurn{Role: turn.Role, Text: text}
	}
	return inlaid, true
}

// TranslateWithSafetyRetry translates chunkText, recursively halving on a
// content-safety refusal up to maxDepth or down to minSize runes. An
// unresolved refusal becomes an embedded failure marker rather than an
// error, so the caller always gets contiguous output text; only
// cancellation propagates as an error.
func (t *Translator) TranslateWithSafetyRetry(ctx context.Context, chunkText string, maxDepth, minSize int) (string, error) {
	return t.translateRecursive(ctx, chunkText, 0, maxDepth, minSize)
}

func (t *Translator) translateRecursive(ctx context.Context, chunkText string, depth, maxDepth, minSize int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.Cancellation(err)
	}

	text, err := t.Translate(ctx, chunkText)
	if err == nil {
		return text, nil
	}

	kind, _ := apperrors.KindOf(err)
	if kind == apperrors.KindCancellation {
		return "", err
	}
	if kind != apperrors.KindContentSafety {
		return failureMarker(chunkText, err), nil
	}
	if runeLen(chunkText) <= minSize || depth >= maxDepth {
		return failureMarker(chunkText, err), nil
	}

	subs := splitForRetry(chunkText)
	if len(subs) < 2 {
		return failureMarker(chunkText, err), nil
	}

	results := make([]string, len(subs))
	g, gctx := errgroup.WithContext(ctx)
	for i, sub := range subs {
		i, sub := i, sub
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			r, subErr := t.translateRecursive(gctx, sub.Text, depth+1, maxDepth, minSize)
			if subErr != nil {
				return subErr
			}
			results[i] = r
			return nil
		})
	}
	if waitErr := g.Wait(); waitErr != nil {
		return "", apperrors.Cancellation(waitErr)
	}
	return strings.Join(results, "\n\n"), nil
}

// splitForRetry obtains sub-chunks for a content-safety retry, preferring
// the binary split and falling back to sentence splitting when the binary
// split cannot make progress (e.g. a single unsplittable line).
func splitForRetry(text string) []chunker.Segment {
	subs, err := chunker.SplitInTwo(text, 0.3)
	if err == nil && len(subs) >= 2 {
		return subs
	}
	return chunker.SplitBySentences(text, 1)
}

func failureMarker(original string, err error) string {
	runes := []rune(original)
	truncated := original
	if len(runes) > maxFailureMarkerRunes {
		truncated = string(runes[:maxFailureMarkerRunes]) + "…"
	}
	return fmt.Sprintf("[translation failure: %s — %s]", apperrors.PublicMessage(err), truncated)
}

func runeLen(s string) int {
	return len([]rune(s))
}
