package extract

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")

	cp := NewCheckpoint(path)
	cp.Put(
		JobResult{JobID: "a", Mentions: []Mention{{Name: "Go", Confidence: 0.9}}},
		JobResult{JobID: "b", Err: "provider down"},
	)
	if err := cp.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	resumed := NewCheckpoint(path)
	if err := resumed.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resumed.Len() != 2 {
		t.Fatalf("Len = %d, want 2", resumed.Len())
	}

	a, ok := resumed.Get("a")
	if !ok || len(a.Mentions) != 1 || a.Mentions[0].Name != "Go" {
		t.Errorf("Get(a) = %+v, %v", a, ok)
	}
	b, ok := resumed.Get("b")
	if !ok || !b.Failed() {
		t.Errorf("Get(b) = %+v, %v; want failed result", b, ok)
	}
}

func TestCheckpointMissingFileIsEmpty(t *testing.T) {
	cp := NewCheckpoint(filepath.Join(t.TempDir(), "nope.json"))
	if err := cp.Load(); err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if cp.Len() != 0 {
		t.Fatalf("Len = %d, want 0", cp.Len())
	}
}

func TestCheckpointConcurrentSavesStayParseable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	cp := NewCheckpoint(path)

	// Workers flush after every batch; payload sizes shrink over time so
	// an unserialized write sequence would leave a longer earlier write's
	// tail behind the shorter later one.
	const workers, rounds = 4, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				cp.Put(JobResult{
					JobID:    fmt.Sprintf("job-%d-%d", w, i),
					Mentions: []Mention{{Name: strings.Repeat("x", (rounds-i)*8), Confidence: 0.5}},
				})
				if err := cp.Save(); err != nil {
					t.Errorf("Save: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	resumed := NewCheckpoint(path)
	if err := resumed.Load(); err != nil {
		t.Fatalf("Load after concurrent saves: %v", err)
	}
	if resumed.Len() != workers*rounds {
		t.Errorf("Len = %d, want %d", resumed.Len(), workers*rounds)
	}
}

func TestCheckpointPutOverwrites(t *testing.T) {
	cp := NewCheckpoint(filepath.Join(t.TempDir(), "run.json"))
	cp.Put(JobResult{JobID: "a", Err: "transient"})
	cp.Put(JobResult{JobID: "a", Mentions: []Mention{{Name: "Go"}}})

	got, ok := cp.Get("a")
	if !ok || got.Failed() || len(got.Mentions) != 1 {
		t.Fatalf("Get(a) = %+v, %v; want the retried result", got, ok)
	}
	if cp.Len() != 1 {
		t.Fatalf("Len = %d, want 1", cp.Len())
	}
}
