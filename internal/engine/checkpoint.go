package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint records where a previous run finished. It is an explicit
// value passed into and returned from Run, never package state, so
// concurrent runs in tests cannot interfere. Read once at run start,
// written once at run end; a cancelled run never advances it.
type Checkpoint struct {
	LastGenerated     time.Time       `json:"lastGeneratedTimestamp"`
	HasHistoricalData bool            `json:"hasHistoricalData"`
	Tables            map[string]bool `json:"perTableCompletionFlags"`
}

// IsZero reports whether the checkpoint carries no prior run.
func (c Checkpoint) IsZero() bool {
	return !c.HasHistoricalData && c.LastGenerated.IsZero()
}

// LoadCheckpoint reads a checkpoint file. A missing file is not an
// error: it returns the zero checkpoint, meaning a fresh run.
func LoadCheckpoint(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Checkpoint{}, nil
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return Checkpoint{}, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	return c, nil
}

// Save writes the checkpoint atomically via a temp file rename, so a
// crash mid-write cannot corrupt the previous checkpoint.
func (c Checkpoint) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}
