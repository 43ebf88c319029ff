// Package genai wraps the generative API behind a small pool of
// per-credential sub-clients, applying global rate limiting, retry with
// classification, and key rotation with cooldown uniformly across callers.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	sdk "google.golang.org/genai"

	"github.com/oukeidos/kotoba/internal/apperrors"
	"github.com/oukeidos/kotoba/internal/logger"
	"github.com/oukeidos/kotoba/internal/ratelimiter"
)

const (
	quotaCooldown       = 100 * time.Second
	defaultTimeout      = 500 * time.Second
	defaultMaxRetries   = 5
	initialBackoff      = 2 * time.Second
	maxBackoff          = 60 * time.Second
)

var harmCategories = []sdk.HarmCategory{
	sdk.HarmCategoryHateSpeech,
	sdk.HarmCategoryDangerousContent,
	sdk.HarmCategorySexuallyExplicit,
	sdk.HarmCategoryHarassment,
}

// HistoryTurn is one entry of a prefill/jailbreak conversation history sent
// ahead of the user prompt.
type HistoryTurn struct {
	Role string // "user" or "model"
	Text string
}

// Options configures a Client's credential pool and operating limits.
type Options struct {
	Credential        Credential
	RequestsPerMinute int
	MaxRetries        int
	TimeoutSeconds    int
}

// Client owns a pool of per-credential SDK clients and performs rate-limit
// admission, retry with classification, and key rotation uniformly across
// whichever credential is currently selected.
type Client struct {
	mu         sync.Mutex
	pool       []*pooledClient
	current    int
	multiKey   bool
	limiter    *ratelimiter.Limiter
	maxRetries int
	timeout    time.Duration

	usageMu sync.Mutex
	usage   UsageMetadata
}

type pooledClient struct {
	keyState
	sdk *sdk.Client
}

var _ Generator = (*Client)(nil)

// New constructs the client pool. In API-key mode it eagerly builds one
// sub-client per key; in service-account/default mode it builds a single
// Vertex-backed sub-client.
func New(ctx context.Context, opts Options) (*Client, error) {
	timeout := defaultTimeout
	if opts.TimeoutSeconds > 0 {
		timeout = time.Duration(opts.TimeoutSeconds) * time.Second
	}
	maxRetries := defaultMaxRetries
	if opts.MaxRetries > 0 {
		maxRetries = opts.MaxRetries
	}

	c := &Client{
		limiter:    ratelimiter.New(opts.RequestsPerMinute),
		maxRetries: maxRetries,
		timeout:    timeout,
	}

	if opts.Credential.IsMultiKey() {
		c.multiKey = true
		for _, key := range opts.Credential.ApiKeys {
			sub, err := sdk.NewClient(ctx, &sdk.ClientConfig{
				APIKey:  key,
				Backend: sdk.BackendGeminiAPI,
			})
			if err != nil {
				return nil, apperrors.Auth(fmt.Errorf("constructing client for pooled key: %w", err))
			}
			c.pool = append(c.pool, &pooledClient{keyState: keyState{key: key}, sdk: sub})
		}
		return c, nil
	}

	cfg := &sdk.ClientConfig{
		Backend:  sdk.BackendVertexAI,
		Project:  opts.Credential.Project,
		Location: opts.Credential.Location,
	}
	sub, err := sdk.NewClient(ctx, cfg)
	if err != nil {
		return nil, apperrors.Auth(fmt.Errorf("constructing vertex client: %w", err))
	}
	c.pool = append(c.pool, &pooledClient{sdk: sub})
	return c, nil
}

// Generate performs the retry/rotation algorithm for a single chunk:
// rate-limit admission, SDK invocation, error classification, backoff, and
// (in multi-key mode) rotation to the next eligible key.
func (c *Client) Generate(ctx context.Context, params GenerateParams, prompt string, history []HistoryTurn) (*GenerateResult, error) {
	keysAttempted := 0
	totalKeys := c.poolSize()

	for keysAttempted < totalKeys {
		idx, pc, err := c.selectEligible()
		if err != nil {
			return nil, err
		}

		result, genErr := c.generateWithBackoff(ctx, pc, params, prompt, history)
		if genErr == nil {
			c.addUsage(result.Usage)
			return result, nil
		}

		kind, _ := apperrors.KindOf(genErr)
		switch kind {
		case apperrors.KindContentSafety, apperrors.KindCancellation:
			return nil, genErr
		case apperrors.KindQuotaExhausted:
			c.markCooldown(idx)
			keysAttempted++
			if !c.multiKey {
				return nil, genErr
			}
			c.advance(idx)
			continue
		case apperrors.KindBadRequest, apperrors.KindAuth:
			keysAttempted++
			if !c.multiKey {
				return nil, genErr
			}
			c.advance(idx)
			continue
		default:
			// Transient/RateLimit already exhausted their backoff budget
			// inside generateWithBackoff; rotate if there's another key,
			// otherwise surface the error.
			keysAttempted++
			if !c.multiKey {
				return nil, genErr
			}
			c.advance(idx)
			continue
		}
	}

	return nil, apperrors.AllKeysExhausted(fmt.Errorf("no eligible credential remaining after %d attempt(s)", keysAttempted))
}

// generateWithBackoff retries a single selected credential with exponential
// backoff for transient/rate-limit classifications, then returns whatever
// classified error survives.
func (c *Client) generateWithBackoff(ctx context.Context, pc *pooledClient, params GenerateParams, prompt string, history []HistoryTurn) (*GenerateResult, error) {
	backoff := initialBackoff
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apperrors.Cancellation(err)
		}

		result, err := c.generateOnce(ctx, pc, params, prompt, history)
		if err == nil {
			return result, nil
		}
		lastErr = err

		kind, _ := apperrors.KindOf(err)
		if kind != apperrors.KindTransient && kind != apperrors.KindRateLimit {
			return nil, err
		}
		if attempt == c.maxRetries {
			break
		}

		jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
		sleep := backoff + jitter
		timer := time.NewTimer(sleep)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, apperrors.Cancellation(ctx.Err())
		}
		backoff = time.Duration(math.Min(float64(backoff*2), float64(maxBackoff)))
	}

	return nil, lastErr
}

// generateOnce issues a single SDK call against the given sub-client.
func (c *Client) generateOnce(ctx context.Context, pc *pooledClient, params GenerateParams, prompt string, history []HistoryTurn) (*GenerateResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	config := &sdk.GenerateContentConfig{
		Temperature:    sdk.Ptr(params.Temperature),
		TopP:           sdk.Ptr(params.TopP),
		SafetySettings: buildSafetySettings(),
		ThinkingConfig: buildThinkingConfig(params.Model, params.ThinkingBudget),
	}
	if params.SystemInstruction != "" {
		config.SystemInstruction = &sdk.Content{Parts: []*sdk.Part{{Text: params.SystemInstruction}}}
	}
	if params.ResponseJSON {
		config.ResponseMIMEType = "application/json"
	}

	contents := buildContents(history, prompt)

	resp, err := pc.sdk.Models.GenerateContent(callCtx, params.Model, contents, config)
	if err != nil {
		return nil, classifyGenaiError(err)
	}

	if len(resp.Candidates) > 0 {
		reason := string(resp.Candidates[0].FinishReason)
		if isContentSafetyFinishReason(reason) {
			return nil, apperrors.ContentSafety(fmt.Errorf("model declined to respond: %s", reason))
		}
	}

	text := resp.Text()
	if text == "" {
		return nil, apperrors.Transient(fmt.Errorf("empty response from generative API"))
	}

	result := &GenerateResult{Text: stripJSONFence(text, params.ResponseJSON)}
	if resp.UsageMetadata != nil {
		result.Usage = UsageMetadata{
			PromptTokens:    resp.UsageMetadata.PromptTokenCount,
			CandidateTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:     resp.UsageMetadata.TotalTokenCount,
		}
	}
	return result, nil
}

// ParseJSON unmarshals a JSON-mime-type result into v, tolerating a
// ```json fenced response; on failure the raw text is returned unparsed so
// the caller can decide how to handle it.
func ParseJSON(text string, v any) error {
	clean := stripJSONFence(text, true)
	if err := json.Unmarshal([]byte(clean), v); err != nil {
		return apperrors.Validation(fmt.Errorf("parsing generative API JSON response: %w", err))
	}
	return nil
}

func stripJSONFence(text string, jsonMode bool) string {
	if !jsonMode {
		return text
	}
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

func buildSafetySettings() []*sdk.SafetySetting {
	settings := make([]*sdk.SafetySetting, len(harmCategories))
	for i, cat := range harmCategories {
		settings[i] = &sdk.SafetySetting{Category: cat, Threshold: sdk.HarmBlockThresholdBlockNone}
	}
	return settings
}

// buildThinkingConfig resolves the model-dependent thinking parameter. This
// is a small lookup from model-name substring to parameter kind so new
// model families can be added without touching the retry core.
func buildThinkingConfig(model string, explicitBudget *int32) *sdk.ThinkingConfig {
	switch {
	case strings.Contains(model, "gemini-3"):
		return &sdk.ThinkingConfig{ThinkingLevel: sdk.ThinkingLevelHigh}
	case strings.Contains(model, "gemini-2.5"):
		budget := int32(-1)
		if explicitBudget != nil {
			budget = *explicitBudget
		}
		return &sdk.ThinkingConfig{ThinkingBudget: &budget}
	default:
		return nil
	}
}

func buildContents(history []HistoryTurn, prompt string) []*sdk.Content {
	contents := make([]*sdk.Content, 0, len(history)+1)
	for _, turn := range history {
		contents = append(contents, &sdk.Content{Role: turn.Role, Parts: []*sdk.Part{{Text: turn.Text}}})
	}
	contents = append(contents, &sdk.Content{Role: "user", Parts: []*sdk.Part{{Text: prompt}}})
	return contents
}

func (c *Client) poolSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pool)
}

// selectEligible returns the current key if it's out of cooldown, otherwise
// advances cyclically until an eligible one is found or every key has been
// checked.
func (c *Client) selectEligible() (int, *pooledClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	n := len(c.pool)
	for i := 0; i < n; i++ {
		idx := (c.current + i) % n
		if !c.pool[idx].inCooldown(now, quotaCooldown) {
			c.current = idx
			return idx, c.pool[idx], nil
		}
	}
	return 0, nil, apperrors.AllKeysExhausted(fmt.Errorf("all %d credential(s) are in cooldown", n))
}

func (c *Client) markCooldown(idx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx >= 0 && idx < len(c.pool) {
		c.pool[idx].lastQuotaFailureAt = time.Now()
		logger.Warn("marking credential in cooldown", "index", idx)
	}
}

func (c *Client) addUsage(u UsageMetadata) {
	c.usageMu.Lock()
	defer c.usageMu.Unlock()
	c.usage.PromptTokens += u.PromptTokens
	c.usage.CandidateTokens += u.CandidateTokens
	c.usage.TotalTokens += u.TotalTokens
}

// GetUsage returns the token usage accumulated across every successful call
// made through this client, for the end-of-run cost summary.
func (c *Client) GetUsage() UsageMetadata {
	c.usageMu.Lock()
	defer c.usageMu.Unlock()
	return c.usage
}

func (c *Client) advance(idx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pool) == 0 {
		return
	}
	c.current = (idx + 1) % len(c.pool)
}
