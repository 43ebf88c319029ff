package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/oukeidos/kotoba/internal/auth"
	"github.com/oukeidos/kotoba/internal/genai"
	"github.com/oukeidos/kotoba/internal/logger"
	"github.com/oukeidos/kotoba/internal/metadata"
	"golang.org/x/term"
)

var (
	isTerminal   = term.IsTerminal
	getKey       = auth.GetKey
	getEnvKeys   = auth.GetEnvKeys
	getStatus    = auth.GetStatus
	promptForKey = auth.PromptForAPIKey
)

// resolveAPIKeys resolves the generative-API key pool: an explicit
// --api-keys flag wins outright, then the keychain, then (if allowed) the
// environment variable, then an interactive terminal prompt. Returns the
// resolved keys and a human-readable source label.
func resolveAPIKeys(explicit []string, allowEnv, envOnly bool) ([]string, string, error) {
	if len(explicit) > 0 {
		return explicit, "--api-keys flag", nil
	}
	if envOnly {
		allowEnv = true
	}

	if envOnly {
		if keys, ok := getEnvKeys(); ok {
			return keys, "Environment Variable", nil
		}
		return nil, "", fmt.Errorf("env-only set but GEMINI_API_KEY is not set")
	}

	if key, source := getKey(false); key != "" {
		return []string{key}, source, nil
	}

	if allowEnv {
		if keys, ok := getEnvKeys(); ok {
			return keys, "Environment Variable", nil
		}
	}

	if isTerminal(int(os.Stdin.Fd())) {
		key, err := promptForKey("Gemini API Key (press Enter to skip): ")
		if err != nil {
			return nil, "", fmt.Errorf("error reading API key: %w", err)
		}
		if strings.TrimSpace(key) != "" {
			return []string{strings.TrimSpace(key)}, "Terminal Prompt", nil
		}
	}

	if !isTerminal(int(os.Stdin.Fd())) {
		return nil, "", fmt.Errorf("no API key available (non-interactive shell); set keychain, use --api-keys, or --allow-env")
	}
	if allowEnv {
		return nil, "", fmt.Errorf("API key is required; not found in keychain or environment")
	}
	return nil, "", fmt.Errorf("API key is required; not found in keychain (environment disabled by default; use --allow-env)")
}

// printUsageStats prints the end-of-run cost summary. Always called, even
// after a partial failure, so a partially completed job still reports what
// it spent.
func printUsageStats(usage genai.UsageMetadata, duration time.Duration, model string) {
	fmt.Println("\n--- Execution Stats ---")
	fmt.Printf("Time: %s\n", duration)
	fmt.Printf("Model: %s\n", model)
	if usage.TotalTokens <= 0 {
		return
	}
	fmt.Printf("Tokens: In=%d, Out=%d, Total=%d\n", usage.PromptTokens, usage.CandidateTokens, usage.TotalTokens)

	pricing, _ := metadata.GeminiPricing(model)
	inCost := (float64(usage.PromptTokens) / 1_000_000) * pricing.InputPerMillion
	outCost := (float64(usage.CandidateTokens) / 1_000_000) * pricing.OutputPerMillion
	fmt.Printf("Estimated Cost: $%.5f\n", inCost+outCost)
}

func signalContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("cancellation requested")
		cancel()
	}()
	stop := func() {
		signal.Stop(sigCh)
		cancel()
	}
	return ctx, stop
}
