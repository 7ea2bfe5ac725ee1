package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/truthcast/internal/model"
)

// mockVerifier implements Verifier
type mockVerifier struct {
	failPaths map[string]bool
}

func (m *mockVerifier) VerifyFile(ctx context.Context, path string) (*model.ParentWork, error) {
	time.Sleep(5 * time.Millisecond)
	if m.failPaths[path] {
		return nil, errors.New("verify error")
	}
	w := model.NewPodcastWork("w-"+path, "cli", model.PodcastWork{Title: path})
	w.Status = model.StatusCompleted
	return w, nil
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBatchProcessor_ProcessFiles(t *testing.T) {
	processor := NewBatchProcessor(&mockVerifier{}, 2)

	paths := []string{"ep1.json", "ep2.txt", "ep3.json", "ep4.txt", "ep5.txt"}
	results := processor.ProcessFiles(context.Background(), paths)

	if len(results) != len(paths) {
		t.Fatalf("expected %d results, got %d", len(paths), len(results))
	}

	for i, res := range results {
		if res.Path != paths[i] {
			t.Errorf("expected results in input order, got %s at %d", res.Path, i)
		}
		if res.Error != nil {
			t.Errorf("unexpected error for %s: %v", res.Path, res.Error)
		}
		if res.Work == nil || res.Work.Status != model.StatusCompleted {
			t.Errorf("expected completed work for %s", res.Path)
		}
	}
}

func TestBatchProcessor_ProcessFiles_Error(t *testing.T) {
	processor := NewBatchProcessor(&mockVerifier{failPaths: map[string]bool{"bad.json": true}}, 2)

	results := processor.ProcessFiles(context.Background(), []string{"good.json", "bad.json"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Error != nil {
		t.Errorf("expected success for good.json, got %v", results[0].Error)
	}
	if results[1].Error == nil {
		t.Error("expected error for bad.json, got nil")
	}
	if results[1].Work != nil {
		t.Error("expected nil work on error")
	}
}

func TestBatchProcessor_ProcessFiles_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockVerifier{}, 2)

	results := processor.ProcessFiles(context.Background(), []string{})
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestReadLinesFromFile(t *testing.T) {
	path := writeTempFile(t, "list.txt", "episodes/one.json\n# comment\nepisodes/two.txt\n   \nepisodes/three.json   \nepisodes/one.json\n")

	lines, err := ReadLinesFromFile(path)
	if err != nil {
		t.Fatalf("ReadLinesFromFile failed: %v", err)
	}

	expected := []string{"episodes/one.json", "episodes/two.txt", "episodes/three.json"}
	if strings.Join(lines, ",") != strings.Join(expected, ",") {
		t.Errorf("expected %v, got %v", expected, lines)
	}
}

func TestReadLinesFromFile_NonExistent(t *testing.T) {
	if _, err := ReadLinesFromFile("non_existent_file.txt"); err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestBatchProcessor_ProcessListFile(t *testing.T) {
	path := writeTempFile(t, "list.txt", "a.json\nb.json\n# skipped\n\nc.json\n")

	processor := NewBatchProcessor(&mockVerifier{}, 2)
	results, err := processor.ProcessListFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessListFile failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}

	if _, err := processor.ProcessListFile(context.Background(), "no_such_file.txt"); err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestVerifyResult_GetError(t *testing.T) {
	r1 := &VerifyResult{Path: "a.json"}
	if r1.GetError() != nil {
		t.Errorf("expected nil error, got %v", r1.GetError())
	}

	expected := errors.New("verify failed")
	r2 := &VerifyResult{Path: "a.json", Error: expected}
	if r2.GetError() != expected {
		t.Errorf("expected %v, got %v", expected, r2.GetError())
	}
}
