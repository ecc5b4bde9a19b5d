// Package checkpoint persists run progress so a multi-hour extraction can
// survive crashes and interrupts. The store owns a hidden subfolder of the
// output directory holding the single current-run checkpoint and the
// append-only log of completed documents.
package checkpoint

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	recoveryDirName   = ".recovery"
	progressFileName  = "progress.json"
	processedFileName = "processed_files.txt"
)

// Checkpoint is the durable snapshot of where the run is right now. At most
// one exists per output folder; its presence implies an incomplete prior run.
type Checkpoint struct {
	CurrentIndex int       `json:"current_index"`
	CurrentFile  string    `json:"current_file"`
	Timestamp    time.Time `json:"timestamp"`
	KeyIndex     int       `json:"current_key_index"`
}

// Store reads and writes checkpoint state under <outputDir>/.recovery.
type Store struct {
	dir           string
	progressPath  string
	processedPath string
	logger        *slog.Logger
}

// NewStore creates the recovery folder if needed.
func NewStore(outputDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Join(outputDir, recoveryDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recovery dir %s: %w", dir, err)
	}
	return &Store{
		dir:           dir,
		progressPath:  filepath.Join(dir, progressFileName),
		processedPath: filepath.Join(dir, processedFileName),
		logger:        logger,
	}, nil
}

// Load returns the current checkpoint, or nil when no prior run was
// interrupted.
func (s *Store) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(s.progressPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	return &cp, nil
}

// Save writes the checkpoint atomically: a reader never observes a
// half-written file because the content lands under a temp name first and is
// renamed into place.
func (s *Store) Save(cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, progressFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to finalize checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.progressPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}

// Clear removes the checkpoint. Called only after the full document list has
// been visited.
func (s *Store) Clear() error {
	err := os.Remove(s.progressPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	return nil
}

// MarkCompleted appends the document path to the completed log and syncs it,
// so the record survives a crash immediately after the document finishes.
func (s *Store) MarkCompleted(docPath string) error {
	f, err := os.OpenFile(s.processedPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open completed log: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, docPath); err != nil {
		return fmt.Errorf("failed to append to completed log: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync completed log: %w", err)
	}
	return nil
}

// completedLog reads the append-only log into a set. A missing log is an
// empty set, not an error.
func (s *Store) completedLog() (map[string]bool, error) {
	f, err := os.Open(s.processedPath)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open completed log: %w", err)
	}
	defer f.Close()

	done := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			done[line] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read completed log: %w", err)
	}
	return done, nil
}

// Reconcile merges log-based and artifact-existence-based evidence into one
// authoritative completed set. A document counts as done if it appears in the
// log or its expected output artifact already exists on disk; the latter
// recovers from a lost log.
func (s *Store) Reconcile(docs []string, artifactFor func(docPath string) string) (map[string]bool, error) {
	done, err := s.completedLog()
	if err != nil {
		return nil, err
	}
	logged := len(done)

	fromArtifacts := 0
	for _, doc := range docs {
		if done[doc] {
			continue
		}
		if _, err := os.Stat(artifactFor(doc)); err == nil {
			done[doc] = true
			fromArtifacts++
		}
	}

	if logged > 0 || fromArtifacts > 0 {
		s.logger.Info("Reconciled completed documents.",
			"fromLog", logged, "fromArtifacts", fromArtifacts)
	}
	return done, nil
}

// IsCompleted checks a single document against both evidence sources.
func (s *Store) IsCompleted(docPath, artifactPath string) (bool, error) {
	done, err := s.completedLog()
	if err != nil {
		return false, err
	}
	if done[docPath] {
		return true, nil
	}
	if _, err := os.Stat(artifactPath); err == nil {
		return true, nil
	}
	return false, nil
}
