package genai

import (
	"context"
	"time"
)

// Generator is the narrow interface the Translator and GlossaryExtractor
// depend on, satisfied by both *Client and MockGenerator.
type Generator interface {
	Generate(ctx context.Context, params GenerateParams, prompt string, history []HistoryTurn) (*GenerateResult, error)
}

// Credential selects how the client pool authenticates with the generative
// API. Exactly one of the three shapes applies; ApiKeys is the common case.
type Credential struct {
	ApiKeys           []string
	UseServiceAccount bool
	ServiceAccountPath string
	Project           string
	Location          string
}

// IsMultiKey reports whether this credential authenticates through a
// rotating pool of API keys rather than a single cloud identity.
func (c Credential) IsMultiKey() bool {
	return !c.UseServiceAccount && len(c.ApiKeys) > 0
}

// GenerateParams carries the per-call knobs the Translator and
// GlossaryExtractor set on top of the client's own defaults.
type GenerateParams struct {
	Model              string
	SystemInstruction  string
	Temperature        float32
	TopP               float32
	ResponseJSON       bool
	ThinkingBudget     *int32 // explicit override; nil defers to model-family default
}

// UsageMetadata mirrors the SDK's token accounting, kept provider-agnostic
// so the Orchestrator's cost summary does not import the SDK package.
type UsageMetadata struct {
	PromptTokens    int32
	CandidateTokens int32
	TotalTokens     int32
}

// GenerateResult is the normalized outcome of a single generation call.
type GenerateResult struct {
	Text  string
	Usage UsageMetadata
}

// ModelInfo normalizes a listed model across API-key and Vertex backends.
type ModelInfo struct {
	Name              string
	ShortName         string
	DisplayName       string
	Description       string
	InputTokenLimit   int32
	OutputTokenLimit  int32
	SupportedActions  []string
}

// keyState tracks one pooled API key's rotation eligibility.
type keyState struct {
	key                string
	lastQuotaFailureAt time.Time
}

func (k *keyState) inCooldown(now time.Time, window time.Duration) bool {
	if k.lastQuotaFailureAt.IsZero() {
		return false
	}
	return now.Sub(k.lastQuotaFailureAt) < window
}
