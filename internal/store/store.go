package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oukeidos/kotoba/internal/apperrors"
	"github.com/oukeidos/kotoba/internal/files"
	"github.com/oukeidos/kotoba/internal/glossary"
)

const filePerms = 0600

// ResolvePaths derives every on-disk path for a job from its input file and
// an optional explicit output path.
func ResolvePaths(inputPath, outputPath string) Paths {
	if outputPath == "" {
		ext := filepath.Ext(inputPath)
		outputPath = strings.TrimSuffix(inputPath, ext) + ".translated" + ext
	}
	return Paths{
		Input:    inputPath,
		Output:   outputPath,
		Metadata: strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + "_metadata.json",
		Sidecar:  outputPath + ".chunked.txt",
		Scratch:  outputPath + ".current_run.tmp",
	}
}

// FileStore serializes concurrent access to the handful of paths a job
// writes from multiple goroutines (the metadata sidecar and the scratch
// file); every other operation is a stateless pure function over the
// filesystem.
type FileStore struct {
	metadataMu sync.Mutex
	scratchMu  sync.Mutex
}

func New() *FileStore {
	return &FileStore{}
}

// ReadInput reads a UTF-8 text file in full.
func (fs *FileStore) ReadInput(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperrors.FileIO(err)
	}
	return string(data), nil
}

// Exists reports whether path is present on disk.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteOutput atomically writes the final, marker-free translated text.
func (fs *FileStore) WriteOutput(path, text string) error {
	if err := files.AtomicWrite(path, []byte(text), filePerms); err != nil {
		return apperrors.FileIO(err)
	}
	return nil
}

// WriteSidecar atomically (re)writes the chunked-backup sidecar, the
// resumability source of truth, regardless of whether post-processing is
// enabled for the user-facing output.
func (fs *FileStore) WriteSidecar(path, chunkedText string) error {
	if err := files.AtomicWrite(path, []byte(chunkedText), filePerms); err != nil {
		return apperrors.FileIO(err)
	}
	return nil
}

// ReadSidecar reads the chunked-backup sidecar, returning "" if absent
// (a fresh job has none yet).
func (fs *FileStore) ReadSidecar(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", apperrors.FileIO(err)
	}
	return string(data), nil
}

// AppendScratch appends one marker block to the append-only scratch file,
// serialized against concurrent workers writing their own chunk results.
func (fs *FileStore) AppendScratch(path, block string) error {
	fs.scratchMu.Lock()
	defer fs.scratchMu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerms)
	if err != nil {
		return apperrors.FileIO(err)
	}
	defer f.Close()

	if _, err := f.WriteString(block); err != nil {
		return apperrors.FileIO(err)
	}
	return nil
}

// ReadScratch reads the scratch file, returning "" if it does not exist
// (nothing has been translated yet this run).
func (fs *FileStore) ReadScratch(path string) (string, error) {
	return fs.ReadSidecar(path)
}

// DeleteScratch removes the scratch file after a job completes. Absence is
// not an error.
func (fs *FileStore) DeleteScratch(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperrors.FileIO(err)
	}
	return nil
}

// ReadMetadata loads job metadata, returning (nil, nil) if no metadata
// file exists yet.
func (fs *FileStore) ReadMetadata(path string) (*JobMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.FileIO(err)
	}
	var meta JobMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, apperrors.Validation(err)
	}
	return &meta, nil
}

// WriteMetadata atomically persists job metadata, serialized against
// concurrent worker updates so no update is lost to a write race.
func (fs *FileStore) WriteMetadata(path string, meta *JobMetadata) error {
	fs.metadataMu.Lock()
	defer fs.metadataMu.Unlock()

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return apperrors.Validation(err)
	}
	if err := files.AtomicWrite(path, data, filePerms); err != nil {
		return apperrors.FileIO(err)
	}
	return nil
}

// DeleteMetadata removes the metadata sidecar, used when a config-hash
// mismatch forces a fresh job.
func (fs *FileStore) DeleteMetadata(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperrors.FileIO(err)
	}
	return nil
}

// DeleteOutput removes the final output file, used when a fresh job
// discards a prior (config-hash-mismatched or force-new) run's result.
// Absence is not an error.
func (fs *FileStore) DeleteOutput(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperrors.FileIO(err)
	}
	return nil
}

// ReadGlossary loads a glossary JSON array, returning nil if the file does
// not exist (no seed glossary configured).
func (fs *FileStore) ReadGlossary(path string) ([]glossary.Entry, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.FileIO(err)
	}
	var entries []glossary.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, apperrors.Validation(err)
	}
	return entries, nil
}

// WriteGlossary atomically persists a glossary entry list as a JSON array.
func (fs *FileStore) WriteGlossary(path string, entries []glossary.Entry) error {
	if entries == nil {
		entries = []glossary.Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return apperrors.Validation(err)
	}
	if err := files.AtomicWrite(path, data, filePerms); err != nil {
		return apperrors.FileIO(err)
	}
	return nil
}
