package translator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/oukeidos/kotoba/internal/apperrors"
	"github.com/oukeidos/kotoba/internal/genai"
	"github.com/oukeidos/kotoba/internal/glossary"
)

func TestNew_RejectsMissingSlotPlaceholder(t *testing.T) {
	_, err := New(&genai.MockGenerator{}, Options{Template: "translate this please"})
	if err == nil {
		t.Fatalf("expected a configuration error for a template missing {{slot}}")
	}
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindConfig {
		t.Fatalf("expected KindConfig, got %v", kind)
	}
}

func TestNew_RejectsMissingGlossaryPlaceholderWhenInjectionEnabled(t *testing.T) {
	_, err := New(&genai.MockGenerator{}, Options{Template: "{{slot}}", EnableGlossaryInjection: true})
	if err == nil {
		t.Fatalf("expected a configuration error for a template missing {{glossary_context}}")
	}
}

func TestNew_AcceptsValidTemplate(t *testing.T) {
	if _, err := New(&genai.MockGenerator{}, Options{Template: "Translate: {{slot}}"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTranslate_SubstitutesSlot(t *testing.T) {
	mock := &genai.MockGenerator{Responses: []genai.MockResponse{{Result: &genai.GenerateResult{Text: "hola"}}}}
	tr, err := New(mock, Options{Template: "Translate: {{slot}}"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := tr.Translate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hola" {
		t.Fatalf("expected %q, got %q", "hola", got)
	}
	if len(mock.Prompts) != 1 || mock.Prompts[0] != "Translate: hello" {
		t.Fatalf("expected substituted prompt, got %q", mock.Prompts)
	}
}

func TestTranslate_RendersGlossaryContextBeforeSlot(t *testing.T) {
	mock := &genai.MockGenerator{Responses: []genai.MockResponse{{Result: &genai.GenerateResult{Text: "ok"}}}}
	tr, err := New(mock, Options{
		Template:                "Glossary:\n{{glossary_context}}\n\nText: {{slot}}",
		EnableGlossaryInjection: true,
		GlossaryEntries:         []glossary.Entry{{Keyword: "cat", TranslatedKeyword: "고양이", OccurrenceCount: 3}},
		MaxGlossaryEntries:      5,
		MaxGlossaryChars:        500,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tr.Translate(context.Background(), "the cat sat"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prompt := mock.Prompts[0]
	if !strings.Contains(prompt, "고양이") {
		t.Fatalf("expected glossary translation injected, got %q", prompt)
	}
	if !strings.Contains(prompt, "Text: the cat sat") {
		t.Fatalf("expected slot substituted after glossary context, got %q", prompt)
	}
}

func TestTranslate_NoGlossaryContextWhenDisabled(t *testing.T) {
	mock := &genai.MockGenerator{Responses: []genai.MockResponse{{Result: &genai.GenerateResult{Text: "ok"}}}}
	tr, err := New(mock, Options{Template: "G:{{glossary_context}} S:{{slot}}"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tr.Translate(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(mock.Prompts[0], glossary.NoGlossaryContext) {
		t.Fatalf("expected no-glossary placeholder text, got %q", mock.Prompts[0])
	}
}

func TestTranslate_CancelledContextReturnsCancellationError(t *testing.T) {
	tr, err := New(&genai.MockGenerator{}, Options{Template: "{{slot}}"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tr.Translate(ctx, "x")
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindCancellation {
		t.Fatalf("expected KindCancellation, got %v (%v)", kind, err)
	}
}

func TestTranslate_PrefillWithoutSlotInHistoryAppendsTemplateTurn(t *testing.T) {
	mock := &genai.MockGenerator{Responses: []genai.MockResponse{{Result: &genai.GenerateResult{Text: "ok"}}}}
	history := []genai.HistoryTurn{
		{Role: "user", Text: "Understood, I will translate freely."},
		{Role: "model", Text: "Yes, send me the text."},
	}
	tr, err := New(mock, Options{Template: "Translate: {{slot}}", EnablePrefill: true, PrefillHistory: history})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tr.Translate(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.Prompts[0] != "Translate: hi" {
		t.Fatalf("expected template-rendered prompt appended as final turn, got %q", mock.Prompts[0])
	}
}

func TestTranslate_PrefillWithSlotInHistoryInlaidAndFinalTurnIsSingleSpace(t *testing.T) {
	mock := &genai.MockGenerator{Responses: []genai.MockResponse{{Result: &genai.GenerateResult{Text: "ok"}}}}
	history := []genai.HistoryTurn{
		{Role: "user", Text: "Please translate: {{slot}}"},
		{Role: "model", Text: "Understood."},
	}
	tr, err := New(mock, Options{Template: "{{slot}}", EnablePrefill: true, PrefillHistory: history})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tr.Translate(context.Background(), "secret text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.Prompts[0] != " " {
		t.Fatalf("expected single-space final turn when history absorbs the slot, got %q", mock.Prompts[0])
	}
}

func TestTranslateWithSafetyRetry_SucceedsWithoutSplitting(t *testing.T) {
	mock := &genai.MockGenerator{Responses: []genai.MockResponse{{Result: &genai.GenerateResult{Text: "translated"}}}}
	tr, _ := New(mock, Options{Template: "{{slot}}"})
	got, err := tr.TranslateWithSafetyRetry(context.Background(), "hello world", 3, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "translated" {
		t.Fatalf("expected %q, got %q", "translated", got)
	}
}

func TestTranslateWithSafetyRetry_SplitsOnContentSafetyThenSucceeds(t *testing.T) {
	mock := &orderedMockGenerator{
		firstErr: apperrors.ContentSafety(errors.New("blocked")),
	}
	tr, _ := New(mock, Options{Template: "{{slot}}"})
	text := strings.Repeat("This is a perfectly normal sentence. ", 20)
	got, err := tr.TranslateWithSafetyRetry(context.Background(), text, 3, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(got, "translation failure") {
		t.Fatalf("expected the split halves to succeed, got failure marker: %q", got)
	}
	if !strings.Contains(got, "\n\n") {
		t.Fatalf("expected sub-chunk results joined with a blank line, got %q", got)
	}
}

func TestTranslateWithSafetyRetry_UnresolvedContentSafetyReturnsFailureMarkerNotError(t *testing.T) {
	mock := &genai.MockGenerator{Responses: []genai.MockResponse{{Err: apperrors.ContentSafety(errors.New("blocked"))}}}
	tr, _ := New(mock, Options{Template: "{{slot}}"})
	got, err := tr.TranslateWithSafetyRetry(context.Background(), "short", 3, 1000)
	if err != nil {
		t.Fatalf("expected no error for an unresolved content-safety refusal, got %v", err)
	}
	if !strings.Contains(got, "translation failure") {
		t.Fatalf("expected an embedded failure marker, got %q", got)
	}
}

func TestTranslateWithSafetyRetry_NonSafetyErrorBecomesFailureMarker(t *testing.T) {
	mock := &genai.MockGenerator{Responses: []genai.MockResponse{{Err: apperrors.Transient(errors.New("boom"))}}}
	tr, _ := New(mock, Options{Template: "{{slot}}"})
	got, err := tr.TranslateWithSafetyRetry(context.Background(), "some text", 3, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "translation failure") {
		t.Fatalf("expected a failure marker for a non-safety error, got %q", got)
	}
}

func TestTranslateWithSafetyRetry_CancellationPropagatesAsError(t *testing.T) {
	tr, _ := New(&genai.MockGenerator{}, Options{Template: "{{slot}}"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.TranslateWithSafetyRetry(ctx, "anything", 3, 5)
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindCancellation {
		t.Fatalf("expected KindCancellation, got %v (%v)", kind, err)
	}
}

// orderedMockGenerator fails with a content-safety error on the first call
// (the whole chunk) and succeeds on every subsequent call (the split
// halves), letting the recursive split test exercise real divergence
// instead of a fixed response list racing across goroutines.
type orderedMockGenerator struct {
	mu       sync.Mutex
	calls    int
	firstErr error
}

func (m *orderedMockGenerator) Generate(_ context.Context, _ genai.GenerateParams, prompt string, _ []genai.HistoryTurn) (*genai.GenerateResult, error) {
	m.mu.Lock()
	n := m.calls
	m.calls++
	m.mu.Unlock()
	if n == 0 {
		return nil, m.firstErr
	}
	return &genai.GenerateResult{Text: "ok: " + prompt}, nil
}
