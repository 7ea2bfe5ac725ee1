package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ppiankov/truthcast/internal/model"
)

// Verifier runs a complete verification of one transcript file
type Verifier interface {
	VerifyFile(ctx context.Context, path string) (*model.ParentWork, error)
}

// VerifyJob represents one transcript file to verify
type VerifyJob struct {
	Index    int
	Path     string
	Verifier Verifier
}

// Execute executes the verification job
func (j *VerifyJob) Execute(ctx context.Context) Result {
	work, err := j.Verifier.VerifyFile(ctx, j.Path)
	return &VerifyResult{
		Index: j.Index,
		Path:  j.Path,
		Work:  work,
		Error: err,
	}
}

// VerifyResult represents the result of a verification job
type VerifyResult struct {
	Index int
	Path  string
	Work  *model.ParentWork
	Error error
}

// GetError returns the error from the verification result
func (r *VerifyResult) GetError() error {
	return r.Error
}

// BatchProcessor verifies multiple transcript files concurrently
type BatchProcessor struct {
	verifier    Verifier
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(verifier Verifier, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		verifier:    verifier,
		concurrency: concurrency,
	}
}

// ProcessFiles verifies the given transcript files, returning results in input order
func (b *BatchProcessor) ProcessFiles(ctx context.Context, paths []string) []*VerifyResult {
	if len(paths) == 0 {
		return []*VerifyResult{}
	}

	pool := NewPool(ctx, b.concurrency, len(paths))
	pool.Start()

	out := make([]*VerifyResult, 0, len(paths))
	for i, path := range paths {
		job := &VerifyJob{Index: i, Path: path, Verifier: b.verifier}
		if err := pool.Submit(job); err != nil {
			out = append(out, &VerifyResult{Index: i, Path: path, Error: fmt.Errorf("submit: %w", err)})
		}
	}

	for _, result := range pool.Wait() {
		out = append(out, result.(*VerifyResult))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// ProcessListFile reads transcript paths from a list file and verifies them
func (b *BatchProcessor) ProcessListFile(ctx context.Context, listPath string) ([]*VerifyResult, error) {
	paths, err := ReadLinesFromFile(listPath)
	if err != nil {
		return nil, fmt.Errorf("read transcript list: %w", err)
	}

	return b.ProcessFiles(ctx, paths), nil
}

// ReadLinesFromFile reads entries from a file (one per line), skipping blanks, comments and duplicates
func ReadLinesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return lines, nil
}
