package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Checkpoint is a durable map from job ID to extraction result. It is
// rewritten after every completed batch, so a killed run resumes by
// skipping every job already present. Only set membership matters; the
// file's internal order does not.
type Checkpoint struct {
	path string

	mu      sync.RWMutex
	results map[string]JobResult

	// saveMu serializes Save: concurrent batch workers flush after every
	// batch, and interleaved writes to the shared tmp file would tear it
	// or rename it twice.
	saveMu sync.Mutex
}

// NewCheckpoint creates a checkpoint persisted at path.
func NewCheckpoint(path string) *Checkpoint {
	return &Checkpoint{path: path, results: make(map[string]JobResult)}
}

// Load reads the checkpoint file. A missing file is an empty
// checkpoint, not an error.
func (c *Checkpoint) Load() error {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}

	results := make(map[string]JobResult)
	if err := json.Unmarshal(data, &results); err != nil {
		return fmt.Errorf("decode checkpoint: %w", err)
	}

	c.mu.Lock()
	c.results = results
	c.mu.Unlock()
	return nil
}

// Save rewrites the checkpoint file via temp file and rename. Safe to
// call from concurrent workers; saves are applied one at a time.
func (c *Checkpoint) Save() error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.RLock()
	data, err := json.Marshal(c.results)
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// Get returns the stored result for a job ID.
func (c *Checkpoint) Get(jobID string) (JobResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[jobID]
	return r, ok
}

// Put records results for completed jobs.
func (c *Checkpoint) Put(results ...JobResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range results {
		if r.JobID == "" {
			continue
		}
		c.results[r.JobID] = r
	}
}

// Len returns the number of checkpointed jobs.
func (c *Checkpoint) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}
