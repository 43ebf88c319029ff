package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oukeidos/kotoba/internal/store"
)

func TestRunList_NoJobsFound(t *testing.T) {
	dir := t.TempDir()
	cmd := newListCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := runList(cmd, dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "No jobs found.") {
		t.Errorf("expected no-jobs message, got %q", out.String())
	}
}

func TestRunList_PrintsJobSummary(t *testing.T) {
	dir := t.TempDir()
	fs := store.New()

	meta := store.NewJobMetadata(filepath.Join(dir, "chapter1.txt"), "hash1", 10, 1000)
	meta.TranslatedChunks["0"] = 1001
	meta.TranslatedChunks["1"] = 1002
	meta.FailedChunks["2"] = "content safety"
	meta.Status = store.StatusCompletedWithErrors

	metaPath := filepath.Join(dir, "chapter1_metadata.json")
	if err := fs.WriteMetadata(metaPath, meta); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	cmd := newListCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := runList(cmd, dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "chapter1") {
		t.Errorf("expected job name in output, got %q", got)
	}
	if !strings.Contains(got, "2/10 translated") {
		t.Errorf("expected translated count in output, got %q", got)
	}
	if !strings.Contains(got, "1 failed") {
		t.Errorf("expected failed count in output, got %q", got)
	}
}
