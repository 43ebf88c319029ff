package main

import (
	"testing"

	"github.com/oukeidos/kotoba/internal/config"
	"github.com/oukeidos/kotoba/internal/orchestrator"
	"github.com/oukeidos/kotoba/internal/store"
)

func TestOverlayFlags_FlagsWinOverConfigFile(t *testing.T) {
	opts := translateOptions{
		targetLanguage: "fr",
		chunkSize:      1234,
		apiKeys:        []string{"flag-key"},
	}
	cmd := newTranslateCmd()
	if err := cmd.Flags().Set("target-language", "fr"); err != nil {
		t.Fatalf("set target-language: %v", err)
	}
	if err := cmd.Flags().Set("chunk-size", "1234"); err != nil {
		t.Fatalf("set chunk-size: %v", err)
	}
	if err := cmd.Flags().Set("api-keys", "flag-key"); err != nil {
		t.Fatalf("set api-keys: %v", err)
	}

	fileCfg := config.Config{
		TargetTranslationLanguage: "ko",
		ChunkSize:                 6000,
		ApiKeys:                   []string{"file-key"},
		NovelLanguage:             "ja",
	}

	merged := overlayFlags(cmd, fileCfg, &opts)

	if merged.TargetTranslationLanguage != "fr" {
		t.Errorf("expected flag target-language to win, got %q", merged.TargetTranslationLanguage)
	}
	if merged.ChunkSize != 1234 {
		t.Errorf("expected flag chunk-size to win, got %d", merged.ChunkSize)
	}
	if len(merged.ApiKeys) != 1 || merged.ApiKeys[0] != "flag-key" {
		t.Errorf("expected flag api-keys to win, got %v", merged.ApiKeys)
	}
	if merged.NovelLanguage != "ja" {
		t.Errorf("expected untouched config field to survive, got %q", merged.NovelLanguage)
	}
}

func TestOverlayFlags_UnsetFlagsPreserveConfigFile(t *testing.T) {
	opts := translateOptions{}
	cmd := newTranslateCmd()

	fileCfg := config.Config{
		TargetTranslationLanguage: "ko",
		ChunkSize:                 6000,
		MaxWorkers:                4,
	}

	merged := overlayFlags(cmd, fileCfg, &opts)

	if merged.TargetTranslationLanguage != "ko" || merged.ChunkSize != 6000 || merged.MaxWorkers != 4 {
		t.Errorf("expected config file values preserved when no flags set, got %+v", merged)
	}
}

func TestJobStatusError(t *testing.T) {
	cases := []struct {
		name    string
		result  orchestrator.Result
		wantErr bool
	}{
		{"skipped", orchestrator.Result{Skipped: true, Status: store.StatusCompletedWithErrors}, false},
		{"completed", orchestrator.Result{Status: store.StatusCompleted}, false},
		{"completed with errors", orchestrator.Result{Status: store.StatusCompletedWithErrors, Failed: 2, TotalChunks: 10}, true},
		{"stopped", orchestrator.Result{Status: store.StatusStopped}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := jobStatusError(tc.result)
			if (err != nil) != tc.wantErr {
				t.Errorf("jobStatusError(%+v) error=%v, wantErr=%v", tc.result, err, tc.wantErr)
			}
		})
	}
}

func TestGlossaryPath(t *testing.T) {
	got := glossaryPath("novel/chapter1.txt", "_glossary.json")
	want := "novel/chapter1_glossary.json"
	if got != want {
		t.Errorf("glossaryPath() = %q, want %q", got, want)
	}
}

func TestConvertHistory(t *testing.T) {
	if convertHistory(nil) != nil {
		t.Errorf("expected nil history for empty input")
	}
	turns := []config.HistoryTurn{{Role: "user", Text: "hi"}, {Role: "model", Text: "hello"}}
	got := convertHistory(turns)
	if len(got) != 2 || got[0].Role != "user" || got[1].Text != "hello" {
		t.Errorf("convertHistory() = %+v", got)
	}
}

func TestPronounGroupsFor(t *testing.T) {
	disabled := config.Config{EnablePronounConsistencyCheck: false, TargetTranslationLanguage: "ko"}
	if groups := pronounGroupsFor(disabled); groups != nil {
		t.Errorf("expected nil groups when check disabled, got %v", groups)
	}

	enabledKo := config.Config{EnablePronounConsistencyCheck: true, TargetTranslationLanguage: "ko"}
	if groups := pronounGroupsFor(enabledKo); len(groups) == 0 {
		t.Errorf("expected pronoun groups for ko")
	}

	enabledUnknown := config.Config{EnablePronounConsistencyCheck: true, TargetTranslationLanguage: "xx"}
	if groups := pronounGroupsFor(enabledUnknown); groups != nil {
		t.Errorf("expected nil groups for unrecognized language, got %v", groups)
	}
}
