package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oukeidos/kotoba/internal/cleanup"
	"github.com/oukeidos/kotoba/internal/config"
	"github.com/oukeidos/kotoba/internal/files"
	"github.com/oukeidos/kotoba/internal/genai"
	"github.com/oukeidos/kotoba/internal/glossary"
	"github.com/oukeidos/kotoba/internal/logger"
	"github.com/oukeidos/kotoba/internal/orchestrator"
	"github.com/oukeidos/kotoba/internal/postprocess"
	"github.com/oukeidos/kotoba/internal/prompt"
	"github.com/oukeidos/kotoba/internal/store"
	"github.com/oukeidos/kotoba/internal/translator"
	"github.com/spf13/cobra"
)

type translateOptions struct {
	outputPath     string
	configPath     string
	resume         bool
	forceNew       bool
	retranslateFailed bool
	extractGlossaryOnly bool

	apiKeys       []string
	useVertexAI   bool
	gcpProject    string
	gcpLocation   string
	serviceAccount string

	novelLanguage  string
	targetLanguage string

	rpm       int
	workers   int
	chunkSize int

	enableDynamicGlossaryInjection bool

	yes      bool
	allowEnv bool
	envOnly  bool
	debug    bool
	logFilePath string
}

func newTranslateCmd() *cobra.Command {
	opts := translateOptions{}
	cmd := &cobra.Command{
		Use:   "translate <input_file>...",
		Short: "Translate one or more novel text files using Gemini",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Usage()
				return fmt.Errorf("at least one input file is required")
			}
			return runTranslate(cmd, args, &opts)
		},
		SilenceUsage: true,
	}
	cmd.SetUsageTemplate(subcommandUsageTemplate)
	addTranslateFlags(cmd, &opts)
	return cmd
}

func addTranslateFlags(cmd *cobra.Command, opts *translateOptions) {
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Output file path (single-input runs only; default <input>.translated.<ext>)")
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to a JSON or YAML config file")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "Explicitly resume a prior run (default behavior when config matches)")
	cmd.Flags().BoolVar(&opts.forceNew, "force-new", false, "Discard any existing job state and start fresh")
	cmd.Flags().BoolVar(&opts.retranslateFailed, "retranslate-failed", false, "Limit this run to chunks previously recorded as failed")
	cmd.Flags().BoolVar(&opts.extractGlossaryOnly, "extract-glossary-only", false, "Extract and save a glossary without translating")

	cmd.Flags().StringSliceVar(&opts.apiKeys, "api-keys", nil, "Comma-separated Gemini API keys (rotated as a pool)")
	cmd.Flags().BoolVar(&opts.useVertexAI, "use-vertex-ai", false, "Authenticate through Vertex AI instead of an API key pool")
	cmd.Flags().StringVar(&opts.gcpProject, "gcp-project", "", "GCP project (required with --use-vertex-ai)")
	cmd.Flags().StringVar(&opts.gcpLocation, "gcp-location", "", "GCP location (required with --use-vertex-ai)")
	cmd.Flags().StringVar(&opts.serviceAccount, "service-account", "", "Path to a service account JSON file")

	cmd.Flags().StringVar(&opts.novelLanguage, "novel-language", "", "Source novel language (default: auto)")
	cmd.Flags().StringVar(&opts.targetLanguage, "target-language", "", "Target translation language (default: ko)")

	cmd.Flags().IntVar(&opts.rpm, "rpm", 0, "Requests per minute (0 = unlimited; default 60)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Worker pool size (default: CPU count)")
	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", 0, "Chunk size in runes (default 6000)")

	cmd.Flags().BoolVar(&opts.enableDynamicGlossaryInjection, "enable-dynamic-glossary-injection", false, "Inject extracted glossary terms into each chunk's prompt")

	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Overwrite existing output without asking")
	cmd.Flags().BoolVar(&opts.allowEnv, "allow-env", false, "Allow reading the API key from the environment")
	cmd.Flags().BoolVar(&opts.envOnly, "env-only", false, "Use only the environment variable for the API key")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&opts.logFilePath, "log-file", "", "Path to a JSONL log file")
}

// overlayFlags applies every explicitly set CLI flag onto a config loaded
// from file (or the zero value, if none was given), following the spec's
// "flags take precedence" merge rule.
func overlayFlags(cmd *cobra.Command, cfg config.Config, opts *translateOptions) config.Config {
	flags := cmd.Flags()
	if flags.Changed("api-keys") {
		cfg.ApiKeys = opts.apiKeys
	}
	if flags.Changed("use-vertex-ai") {
		cfg.UseVertexAI = opts.useVertexAI
	}
	if flags.Changed("gcp-project") {
		cfg.GCPProject = opts.gcpProject
	}
	if flags.Changed("gcp-location") {
		cfg.GCPLocation = opts.gcpLocation
	}
	if flags.Changed("service-account") {
		cfg.ServiceAccountFilePath = opts.serviceAccount
	}
	if flags.Changed("novel-language") {
		cfg.NovelLanguage = opts.novelLanguage
	}
	if flags.Changed("target-language") {
		cfg.TargetTranslationLanguage = opts.targetLanguage
	}
	if flags.Changed("rpm") {
		cfg.RequestsPerMinute = opts.rpm
	}
	if flags.Changed("workers") {
		cfg.MaxWorkers = opts.workers
	}
	if flags.Changed("chunk-size") {
		cfg.ChunkSize = opts.chunkSize
	}
	if flags.Changed("enable-dynamic-glossary-injection") {
		cfg.EnableDynamicGlossaryInjection = opts.enableDynamicGlossaryInjection
	}
	return cfg
}

func runTranslate(cmd *cobra.Command, args []string, opts *translateOptions) error {
	if len(args) > 1 && opts.outputPath != "" {
		return fmt.Errorf("--output cannot be used with more than one input file")
	}

	logLevel := logger.LevelInfo
	if opts.debug {
		logLevel = logger.LevelDebug
	}
	var logFileW *os.File
	if opts.logFilePath != "" {
		if err := files.RejectSymlinkPath(opts.logFilePath); err != nil {
			return err
		}
		f, err := os.OpenFile(opts.logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		cleanup.Register(f.Close)
		logFileW = f
	}
	if logFileW != nil {
		logger.Init(logLevel, logFileW)
	} else {
		logger.Init(logLevel, nil)
	}

	fileCfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	cfg := overlayFlags(cmd, fileCfg, opts)
	cfg, notes := cfg.Normalize()
	for _, n := range notes {
		logger.Warn("config normalized", "note", n)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	var cred genai.Credential
	if cfg.UseVertexAI || cfg.ServiceAccountFilePath != "" {
		cred = genai.Credential{UseServiceAccount: true, ServiceAccountPath: cfg.ServiceAccountFilePath, Project: cfg.GCPProject, Location: cfg.GCPLocation}
	} else {
		keys, source, err := resolveAPIKeys(cfg.ApiKeys, opts.allowEnv, opts.envOnly)
		if err != nil {
			return err
		}
		logger.Info("using API key pool", "source", source, "keys", len(keys))
		cred = genai.Credential{ApiKeys: keys}
	}

	client, err := genai.New(ctx, genai.Options{
		Credential:        cred,
		RequestsPerMinute: cfg.RequestsPerMinute,
		MaxRetries:        cfg.MaxRetries,
		TimeoutSeconds:    cfg.ApiTimeoutSeconds,
	})
	if err != nil {
		return err
	}

	startTime := time.Now()
	var finalErr error
	for _, inputPath := range args {
		outputPath := opts.outputPath
		if err := processOneInput(ctx, client, cfg, inputPath, outputPath, opts); err != nil {
			logger.Error("job failed", "input", inputPath, "error", err)
			if finalErr == nil {
				finalErr = err
			}
		}
	}

	printUsageStats(client.GetUsage(), time.Since(startTime), cfg.ModelName)
	return finalErr
}

func processOneInput(ctx context.Context, client *genai.Client, cfg config.Config, inputPath, outputPath string, opts *translateOptions) error {
	fs := store.New()

	if opts.extractGlossaryOnly {
		return runGlossaryExtraction(ctx, client, fs, cfg, inputPath)
	}

	var entries []glossary.Entry
	if cfg.EnableDynamicGlossaryInjection {
		path := cfg.GlossaryJSONPath
		if path == "" {
			path = glossaryPath(inputPath, cfg.GlossaryOutputJSONFilenameSuffix)
		}
		if store.Exists(path) {
			loaded, err := fs.ReadGlossary(path)
			if err != nil {
				return err
			}
			entries = loaded
		}
	}

	tr, err := translator.New(client, translator.Options{
		Model:                   cfg.ModelName,
		Temperature:             cfg.Temperature,
		TopP:                    cfg.TopP,
		Template:                strings.ReplaceAll(cfg.Prompts, "{{target_language}}", cfg.TargetTranslationLanguage),
		SystemInstruction:       cfg.PrefillSystemInstruction,
		ThinkingBudget:          cfg.ThinkingBudget,
		EnableGlossaryInjection: cfg.EnableDynamicGlossaryInjection,
		GlossaryEntries:         entries,
		MaxGlossaryEntries:      cfg.MaxGlossaryEntriesPerChunk,
		MaxGlossaryChars:        cfg.MaxGlossaryCharsPerChunk,
		EnablePrefill:           cfg.EnablePrefillTranslation,
		PrefillHistory:          convertHistory(cfg.PrefillCachedHistory),
	})
	if err != nil {
		return err
	}

	hash, err := cfg.ComputeConfigHash()
	if err != nil {
		return err
	}

	result, err := orchestrator.Run(ctx, fs, orchestrator.Options{
		Engine:                        tr,
		Usage:                         client,
		InputPath:                     inputPath,
		OutputPath:                    outputPath,
		MaxWorkers:                    cfg.MaxWorkers,
		UseContentSafetyRetry:         cfg.UseContentSafetyRetry,
		MaxContentSafetySplitAttempts: cfg.MaxContentSafetySplitAttempts,
		MinContentSafetyChunkSize:     cfg.MinContentSafetyChunkSize,
		ChunkSize:                     cfg.ChunkSize,
		ForceFresh:                    opts.forceNew,
		RetranslateFailedOnly:         opts.retranslateFailed,
		ConfigHash:                    hash,
		PostProcess: postprocess.Options{
			EnableHeaderStrip:      cfg.EnablePostProcessing,
			EnableBoilerplateStrip: cfg.EnablePostProcessing,
			EnableCodeFenceStrip:   cfg.EnablePostProcessing,
		},
		PronounGroups: pronounGroupsFor(cfg),
		OnConfirmOverwrite: func(path string) bool {
			confirmed, err := prompt.DefaultConfirmer().ConfirmOverwrite(path, opts.yes)
			if err != nil {
				logger.Error("overwrite confirmation failed", "error", err)
				return false
			}
			return confirmed
		},
		OnProgress: func(p orchestrator.Progress) {
			logger.Info("progress", "input", inputPath, "processed", p.Processed, "total", p.Total, "successful", p.Successful, "failed", p.Failed)
		},
	})
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		logger.Warn("pronoun consistency warning", "line", w.LineNumber, "register", w.Register, "form", w.Form)
	}

	return jobStatusError(result)
}

func jobStatusError(result orchestrator.Result) error {
	if result.Skipped {
		return nil
	}
	switch result.Status {
	case store.StatusCompleted:
		return nil
	case store.StatusCompletedWithErrors:
		return fmt.Errorf("job finished with errors: %d/%d chunks failed", result.Failed, result.TotalChunks)
	case store.StatusStopped:
		return fmt.Errorf("job stopped before completion")
	default:
		return fmt.Errorf("job finished with status: %s", result.Status)
	}
}

func runGlossaryExtraction(ctx context.Context, client *genai.Client, fs *store.FileStore, cfg config.Config, inputPath string) error {
	text, err := fs.ReadInput(inputPath)
	if err != nil {
		return err
	}

	var seed []glossary.Entry
	path := cfg.GlossaryJSONPath
	if path == "" {
		path = glossaryPath(inputPath, cfg.GlossaryOutputJSONFilenameSuffix)
	}
	if store.Exists(path) {
		seed, err = fs.ReadGlossary(path)
		if err != nil {
			return err
		}
	}

	entries, err := glossary.ExtractAndSave(ctx, client, cfg.ModelName, text, glossary.ExtractOptions{
		ChunkSize:       cfg.ChunkSize,
		SamplingMethod:  glossary.SamplingMethod(cfg.GlossarySamplingMethod),
		SamplingRatio:   cfg.GlossarySamplingRatio,
		Temperature:     cfg.GlossaryExtractionTemperature,
		TargetLanguage:  cfg.TargetTranslationLanguage,
		MaxWorkers:      cfg.MaxWorkers,
		MaxTotalEntries: cfg.GlossaryMaxTotalEntries,
	}, seed, func(p glossary.Progress) {
		logger.Info("glossary extraction progress", "input", inputPath, "processed", p.ProcessedSegments, "total", p.TotalSegments, "entries", p.ExtractedEntriesCount)
	})
	if err != nil {
		return err
	}

	if err := fs.WriteGlossary(path, entries); err != nil {
		return err
	}
	logger.Info("glossary saved", "path", path, "entries", len(entries))
	return nil
}

func glossaryPath(inputPath, suffix string) string {
	ext := filepath.Ext(inputPath)
	return strings.TrimSuffix(inputPath, ext) + suffix
}

func convertHistory(turns []config.HistoryTurn) []genai.HistoryTurn {
	if len(turns) == 0 {
		return nil
	}
	out := make([]genai.HistoryTurn, len(turns))
	for i, t := range turns {
		out[i] = genai.HistoryTurn{Role: t.Role, Text: t.Text}
	}
	return out
}

// pronounGroupsFor builds the postprocess pronoun-consistency groups for
// the configured target language when the check is enabled. Only the
// handful of languages with a well-known closed pronoun set are covered;
// an unrecognized target language disables the check rather than guess.
func pronounGroupsFor(cfg config.Config) []postprocess.PronounGroup {
	if !cfg.EnablePronounConsistencyCheck {
		return nil
	}
	switch cfg.TargetTranslationLanguage {
	case "ko":
		return []postprocess.PronounGroup{
			{Register: "formal", Forms: []string{"저는", "저의", "제가"}},
			{Register: "informal", Forms: []string{"나는", "나의", "내가"}},
		}
	case "en":
		return []postprocess.PronounGroup{
			{Register: "masculine", Forms: []string{"he", "him", "his"}},
			{Register: "feminine", Forms: []string{"she", "her", "hers"}},
		}
	default:
		return nil
	}
}
