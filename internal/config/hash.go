package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// hashable is Config stripped of every credential field, struct-tagged
// identically so ComputeConfigHash is stable across Go versions without
// depending on map key ordering.
type hashable struct {
	ModelName      string  `json:"model_name"`
	Temperature    float32 `json:"temperature"`
	TopP           float32 `json:"top_p"`
	ThinkingLevel  string  `json:"thinking_level,omitempty"`
	ThinkingBudget *int32  `json:"thinking_budget,omitempty"`

	RequestsPerMinute int `json:"requests_per_minute"`
	MaxWorkers        int `json:"max_workers"`
	ChunkSize         int `json:"chunk_size"`

	NovelLanguage             string `json:"novel_language"`
	NovelLanguageFallback     string `json:"novel_language_fallback"`
	TargetTranslationLanguage string `json:"target_translation_language"`

	Prompts                  string        `json:"prompts"`
	EnablePrefillTranslation bool          `json:"enable_prefill_translation"`
	PrefillSystemInstruction string        `json:"prefill_system_instruction,omitempty"`
	PrefillCachedHistory     []HistoryTurn `json:"prefill_cached_history,omitempty"`

	EnableDynamicGlossaryInjection   bool    `json:"enable_dynamic_glossary_injection"`
	MaxGlossaryEntriesPerChunk       int     `json:"max_glossary_entries_per_chunk_injection"`
	MaxGlossaryCharsPerChunk         int     `json:"max_glossary_chars_per_chunk_injection"`
	GlossarySamplingRatio            float64 `json:"glossary_sampling_ratio"`
	GlossaryExtractionTemperature    float32 `json:"glossary_extraction_temperature"`
	GlossaryOutputJSONFilenameSuffix string  `json:"glossary_output_json_filename_suffix"`
	GlossarySamplingMethod           string  `json:"glossary_sampling_method"`
	GlossaryMaxTotalEntries          int     `json:"glossary_max_total_entries"`

	UseContentSafetyRetry        bool `json:"use_content_safety_retry"`
	MaxContentSafetySplitAttempts int `json:"max_content_safety_split_attempts"`
	MinContentSafetyChunkSize    int `json:"min_content_safety_chunk_size"`

	EnablePostProcessing          bool `json:"enable_post_processing"`
	EnablePronounConsistencyCheck bool `json:"enable_pronoun_consistency_check"`

	MaxRetries           int `json:"max_retries"`
	ApiTimeoutSeconds    int `json:"api_timeout_seconds"`
	QuotaCooldownSeconds int `json:"quota_cooldown_seconds"`
}

// ComputeConfigHash hashes the effective configuration excluding every
// credential field (api_keys, use_vertex_ai, service_account_file_path,
// gcp_project, gcp_location) and IO paths (input/output are tracked
// separately in JobMetadata.InputFile), matching the credential-exclusion
// discipline JobMetadata's resume-vs-fresh gating depends on.
func (c Config) ComputeConfigHash() (string, error) {
	h := hashable{
		ModelName:                        c.ModelName,
		Temperature:                      c.Temperature,
		TopP:                             c.TopP,
		ThinkingLevel:                    c.ThinkingLevel,
		ThinkingBudget:                   c.ThinkingBudget,
		RequestsPerMinute:                c.RequestsPerMinute,
		MaxWorkers:                       c.MaxWorkers,
		ChunkSize:                        c.ChunkSize,
		NovelLanguage:                    c.NovelLanguage,
		NovelLanguageFallback:            c.NovelLanguageFallback,
		TargetTranslationLanguage:        c.TargetTranslationLanguage,
		Prompts:                          c.Prompts,
		EnablePrefillTranslation:         c.EnablePrefillTranslation,
		PrefillSystemInstruction:         c.PrefillSystemInstruction,
		PrefillCachedHistory:             c.PrefillCachedHistory,
		EnableDynamicGlossaryInjection:   c.EnableDynamicGlossaryInjection,
		MaxGlossaryEntriesPerChunk:       c.MaxGlossaryEntriesPerChunk,
		MaxGlossaryCharsPerChunk:         c.MaxGlossaryCharsPerChunk,
		GlossarySamplingRatio:            c.GlossarySamplingRatio,
		GlossaryExtractionTemperature:    c.GlossaryExtractionTemperature,
		GlossaryOutputJSONFilenameSuffix: c.GlossaryOutputJSONFilenameSuffix,
		GlossarySamplingMethod:           c.GlossarySamplingMethod,
		GlossaryMaxTotalEntries:          c.GlossaryMaxTotalEntries,
		UseContentSafetyRetry:            c.UseContentSafetyRetry,
		MaxContentSafetySplitAttempts:    c.MaxContentSafetySplitAttempts,
		MinContentSafetyChunkSize:        c.MinContentSafetyChunkSize,
		EnablePostProcessing:             c.EnablePostProcessing,
		EnablePronounConsistencyCheck:    c.EnablePronounConsistencyCheck,
		MaxRetries:                       c.MaxRetries,
		ApiTimeoutSeconds:                c.ApiTimeoutSeconds,
		QuotaCooldownSeconds:             c.QuotaCooldownSeconds,
	}

	data, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
