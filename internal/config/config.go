// Package config holds the job-wide Config struct, its defaulting and
// validation, and the config-hash used to gate resume-vs-fresh decisions.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/oukeidos/kotoba/internal/apperrors"
)

// HistoryTurn is one turn of a configured prefill/jailbreak history.
type HistoryTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Config is the effective configuration for a translation job, assembled
// from an optional JSON config file overlaid with CLI flags (flags win).
type Config struct {
	// Credentials
	ApiKeys               []string `json:"api_keys,omitempty"`
	UseVertexAI           bool     `json:"use_vertex_ai"`
	ServiceAccountFilePath string  `json:"service_account_file_path,omitempty"`
	GCPProject            string   `json:"gcp_project,omitempty"`
	GCPLocation           string   `json:"gcp_location,omitempty"`

	// Model
	ModelName      string `json:"model_name"`
	Temperature    float32 `json:"temperature"`
	TopP           float32 `json:"top_p"`
	ThinkingLevel  string  `json:"thinking_level,omitempty"`
	ThinkingBudget *int32  `json:"thinking_budget,omitempty"`

	// Throughput
	RequestsPerMinute int `json:"requests_per_minute"`
	MaxWorkers        int `json:"max_workers"`
	ChunkSize         int `json:"chunk_size"`

	// Language
	NovelLanguage             string `json:"novel_language"`
	NovelLanguageFallback     string `json:"novel_language_fallback"`
	TargetTranslationLanguage string `json:"target_translation_language"`

	// Prompting
	Prompts                  string        `json:"prompts"`
	EnablePrefillTranslation bool          `json:"enable_prefill_translation"`
	PrefillSystemInstruction string        `json:"prefill_system_instruction,omitempty"`
	PrefillCachedHistory     []HistoryTurn `json:"prefill_cached_history,omitempty"`

	// Glossary
	EnableDynamicGlossaryInjection   bool    `json:"enable_dynamic_glossary_injection"`
	GlossaryJSONPath                 string  `json:"glossary_json_path,omitempty"`
	MaxGlossaryEntriesPerChunk       int     `json:"max_glossary_entries_per_chunk_injection"`
	MaxGlossaryCharsPerChunk         int     `json:"max_glossary_chars_per_chunk_injection"`
	GlossarySamplingRatio            float64 `json:"glossary_sampling_ratio"`
	GlossaryExtractionTemperature    float32 `json:"glossary_extraction_temperature"`
	GlossaryOutputJSONFilenameSuffix string  `json:"glossary_output_json_filename_suffix"`
	GlossarySamplingMethod           string  `json:"glossary_sampling_method"`
	GlossaryMaxTotalEntries          int     `json:"glossary_max_total_entries"`

	// Safety
	UseContentSafetyRetry        bool `json:"use_content_safety_retry"`
	MaxContentSafetySplitAttempts int `json:"max_content_safety_split_attempts"`
	MinContentSafetyChunkSize    int `json:"min_content_safety_chunk_size"`

	// Post-processing (§4.6, §9)
	EnablePostProcessing         bool `json:"enable_post_processing"`
	EnablePronounConsistencyCheck bool `json:"enable_pronoun_consistency_check"`

	// Retry/timeout
	MaxRetries          int `json:"max_retries"`
	ApiTimeoutSeconds   int `json:"api_timeout_seconds"`
	QuotaCooldownSeconds int `json:"quota_cooldown_seconds"`
}

const (
	defaultModelName                  = "gemini-2.0-flash"
	defaultTemperature                = 0.7
	defaultTopP                       = 0.9
	defaultRequestsPerMinute          = 60
	defaultChunkSize                  = 6000
	defaultNovelLanguage              = "auto"
	defaultNovelLanguageFallback      = "ja"
	defaultTargetTranslationLanguage  = "ko"
	defaultMaxGlossaryEntriesPerChunk = 3
	defaultMaxGlossaryCharsPerChunk   = 500
	defaultGlossarySamplingRatio      = 10
	defaultGlossaryExtractionTemp     = 0.3
	defaultGlossaryFilenameSuffix     = "_glossary.json"
	defaultGlossarySamplingMethod     = "uniform"
	defaultGlossaryMaxTotalEntries    = 500
	defaultMaxContentSafetySplits     = 3
	defaultMinContentSafetyChunkSize  = 100
	defaultMaxRetries                = 5
	defaultApiTimeoutSeconds         = 500
	defaultQuotaCooldownSeconds      = 100

	minChunkSize       = 200
	maxChunkSize        = 50000
	minRequestsPerMinute = 0
	maxRequestsPerMinute = 6000
)

// Normalize fills zero-valued fields with defaults and clamps
// throughput-affecting values to sane bounds, matching the teacher's
// clamp-and-report idiom.
func (c Config) Normalize() (Config, []string) {
	var notes []string

	if c.ModelName == "" {
		c.ModelName = defaultModelName
	}
	if c.Prompts == "" {
		c.Prompts = defaultPrompts
	}
	if c.Temperature == 0 {
		c.Temperature = defaultTemperature
	}
	if c.TopP == 0 {
		c.TopP = defaultTopP
	}
	if c.RequestsPerMinute == 0 {
		c.RequestsPerMinute = defaultRequestsPerMinute
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = runtime.NumCPU()
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.NovelLanguage == "" {
		c.NovelLanguage = defaultNovelLanguage
	}
	if c.NovelLanguageFallback == "" {
		c.NovelLanguageFallback = defaultNovelLanguageFallback
	}
	if c.TargetTranslationLanguage == "" {
		c.TargetTranslationLanguage = defaultTargetTranslationLanguage
	}
	if c.MaxGlossaryEntriesPerChunk == 0 {
		c.MaxGlossaryEntriesPerChunk = defaultMaxGlossaryEntriesPerChunk
	}
	if c.MaxGlossaryCharsPerChunk == 0 {
		c.MaxGlossaryCharsPerChunk = defaultMaxGlossaryCharsPerChunk
	}
	if c.GlossarySamplingRatio == 0 {
		c.GlossarySamplingRatio = defaultGlossarySamplingRatio
	}
	if c.GlossaryExtractionTemperature == 0 {
		c.GlossaryExtractionTemperature = defaultGlossaryExtractionTemp
	}
	if c.GlossaryOutputJSONFilenameSuffix == "" {
		c.GlossaryOutputJSONFilenameSuffix = defaultGlossaryFilenameSuffix
	}
	if c.GlossarySamplingMethod == "" {
		c.GlossarySamplingMethod = defaultGlossarySamplingMethod
	}
	if c.GlossaryMaxTotalEntries == 0 {
		c.GlossaryMaxTotalEntries = defaultGlossaryMaxTotalEntries
	}
	if c.MaxContentSafetySplitAttempts == 0 {
		c.MaxContentSafetySplitAttempts = defaultMaxContentSafetySplits
	}
	if c.MinContentSafetyChunkSize == 0 {
		c.MinContentSafetyChunkSize = defaultMinContentSafetyChunkSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.ApiTimeoutSeconds == 0 {
		c.ApiTimeoutSeconds = defaultApiTimeoutSeconds
	}
	if c.QuotaCooldownSeconds == 0 {
		c.QuotaCooldownSeconds = defaultQuotaCooldownSeconds
	}

	if c.ChunkSize < minChunkSize {
		notes = append(notes, fmt.Sprintf("chunk-size clamped from %d to %d (min %d)", c.ChunkSize, minChunkSize, minChunkSize))
		c.ChunkSize = minChunkSize
	}
	if c.ChunkSize > maxChunkSize {
		notes = append(notes, fmt.Sprintf("chunk-size clamped from %d to %d (max %d)", c.ChunkSize, maxChunkSize, maxChunkSize))
		c.ChunkSize = maxChunkSize
	}
	if c.RequestsPerMinute < minRequestsPerMinute {
		notes = append(notes, fmt.Sprintf("requests-per-minute clamped from %d to %d", c.RequestsPerMinute, minRequestsPerMinute))
		c.RequestsPerMinute = minRequestsPerMinute
	}
	if c.RequestsPerMinute > maxRequestsPerMinute {
		notes = append(notes, fmt.Sprintf("requests-per-minute clamped from %d to %d (max %d)", c.RequestsPerMinute, maxRequestsPerMinute, maxRequestsPerMinute))
		c.RequestsPerMinute = maxRequestsPerMinute
	}
	if c.MaxWorkers > 64 {
		notes = append(notes, fmt.Sprintf("max-workers clamped from %d to 64", c.MaxWorkers))
		c.MaxWorkers = 64
	}

	return c, notes
}

// Validate rejects missing prompt placeholders, self-contradictory
// credential combinations, and other configuration that would otherwise
// only fail after the first API call. Call after Normalize.
func (c Config) Validate() error {
	if !strings.Contains(c.Prompts, "{{slot}}") {
		return apperrors.Config("prompts must contain the {{slot}} placeholder")
	}
	if c.EnableDynamicGlossaryInjection && !strings.Contains(c.Prompts, "{{glossary_context}}") {
		return apperrors.Config("prompts must contain {{glossary_context}} when dynamic glossary injection is enabled")
	}

	hasApiKeys := len(c.ApiKeys) > 0
	hasServiceAccount := c.ServiceAccountFilePath != ""

	if c.UseVertexAI {
		if hasApiKeys {
			return apperrors.Config("api_keys and use_vertex_ai are mutually exclusive")
		}
		if c.GCPProject == "" || c.GCPLocation == "" {
			return apperrors.Config("gcp_project and gcp_location are required when use_vertex_ai is set")
		}
	} else if !hasApiKeys && !hasServiceAccount {
		return apperrors.Config("at least one of api_keys, service_account_file_path, or use_vertex_ai is required")
	}

	if c.ChunkSize <= 0 {
		return apperrors.Config("chunk_size must be greater than 0")
	}
	if c.MaxWorkers <= 0 {
		return apperrors.Config("max_workers must be greater than 0")
	}
	if c.MaxRetries < 0 {
		return apperrors.Config("max_retries must be 0 or greater")
	}
	if c.ApiTimeoutSeconds <= 0 {
		return apperrors.Config("api_timeout_seconds must be greater than 0")
	}
	if c.GlossarySamplingRatio <= 0 || c.GlossarySamplingRatio > 100 {
		return apperrors.Config("glossary_sampling_ratio must be between 0 (exclusive) and 100")
	}
	if c.GlossarySamplingMethod != "uniform" && c.GlossarySamplingMethod != "random" {
		return apperrors.Config(fmt.Sprintf("unknown glossary_sampling_method %q", c.GlossarySamplingMethod))
	}

	return nil
}
