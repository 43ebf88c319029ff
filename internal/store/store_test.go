package store

import (
	"path/filepath"
	"testing"

	"github.com/oukeidos/kotoba/internal/glossary"
)

func TestResolvePaths_DefaultsOutputWhenEmpty(t *testing.T) {
	p := ResolvePaths("/tmp/novel.txt", "")
	if p.Output != "/tmp/novel.translated.txt" {
		t.Fatalf("unexpected default output path: %q", p.Output)
	}
	if p.Metadata != "/tmp/novel_metadata.json" {
		t.Fatalf("unexpected metadata path: %q", p.Metadata)
	}
	if p.Sidecar != p.Output+".chunked.txt" {
		t.Fatalf("unexpected sidecar path: %q", p.Sidecar)
	}
	if p.Scratch != p.Output+".current_run.tmp" {
		t.Fatalf("unexpected scratch path: %q", p.Scratch)
	}
}

func TestResolvePaths_RespectsExplicitOutput(t *testing.T) {
	p := ResolvePaths("/tmp/novel.txt", "/tmp/out/result.txt")
	if p.Output != "/tmp/out/result.txt" {
		t.Fatalf("unexpected output path: %q", p.Output)
	}
}

func TestFileStore_WriteAndReadOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	fs := New()
	if err := fs.WriteOutput(path, "translated text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := fs.ReadInput(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "translated text" {
		t.Fatalf("got %q, want %q", got, "translated text")
	}
}

func TestFileStore_ReadSidecar_MissingReturnsEmptyNoError(t *testing.T) {
	fs := New()
	got, err := fs.ReadSidecar(filepath.Join(t.TempDir(), "missing.chunked.txt"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty string for missing sidecar, got %q", got)
	}
}

func TestFileStore_AppendScratch_Accumulates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scratch.tmp")
	fs := New()
	if err := fs.AppendScratch(path, "block one\n"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := fs.AppendScratch(path, "block two\n"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := fs.ReadScratch(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "block one\nblock two\n" {
		t.Fatalf("got %q", got)
	}
}

func TestFileStore_DeleteScratch_MissingIsNotAnError(t *testing.T) {
	fs := New()
	if err := fs.DeleteScratch(filepath.Join(t.TempDir(), "missing.tmp")); err != nil {
		t.Fatalf("unexpected error for missing scratch file: %v", err)
	}
}

func TestFileStore_MetadataRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job_metadata.json")
	fs := New()

	meta := NewJobMetadata("/tmp/novel.txt", "abc123", 10, 1000)
	meta.TranslatedChunks["0"] = 1001
	meta.Status = StatusInProgress

	if err := fs.WriteMetadata(path, meta); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := fs.ReadMetadata(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded == nil {
		t.Fatalf("expected loaded metadata, got nil")
	}
	if loaded.TotalChunks != 10 || loaded.ConfigHash != "abc123" || loaded.Status != StatusInProgress {
		t.Fatalf("unexpected loaded metadata: %+v", loaded)
	}
	if loaded.TranslatedChunks["0"] != 1001 {
		t.Fatalf("expected translated chunk 0 timestamp preserved, got %+v", loaded.TranslatedChunks)
	}
}

func TestFileStore_ReadMetadata_MissingReturnsNilNoError(t *testing.T) {
	fs := New()
	meta, err := fs.ReadMetadata(filepath.Join(t.TempDir(), "missing_metadata.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta != nil {
		t.Fatalf("expected nil metadata for a missing file, got %+v", meta)
	}
}

func TestFileStore_GlossaryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "glossary.json")
	fs := New()

	entries := []glossary.Entry{
		{Keyword: "cat", TranslatedKeyword: "고양이", TargetLanguage: "ko", OccurrenceCount: 4},
	}
	if err := fs.WriteGlossary(path, entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loaded, err := fs.ReadGlossary(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Keyword != "cat" {
		t.Fatalf("unexpected loaded glossary: %+v", loaded)
	}
}

func TestFileStore_ReadGlossary_EmptyPathReturnsNilNoError(t *testing.T) {
	fs := New()
	entries, err := fs.ReadGlossary("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entries != nil {
		t.Fatalf("expected nil entries for empty path, got %+v", entries)
	}
}
