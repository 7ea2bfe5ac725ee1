package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/truthcast/internal/logging"
	"github.com/ppiankov/truthcast/internal/metrics"
	"github.com/ppiankov/truthcast/internal/model"
	"github.com/ppiankov/truthcast/internal/session"
	"github.com/ppiankov/truthcast/internal/store"
	"github.com/ppiankov/truthcast/internal/transcript"
	"github.com/ppiankov/truthcast/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	concurrency   int
	outputDir     string
	listFile      string
	ownerID       string
	verifyTimeout time.Duration
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify [transcript...]",
	Short: "Verify transcript or audio files offline",
	Long: `Verify runs complete batch sessions over local files:
- JSON transcripts (a list of units, or {"units": [...]})
- Plain-text transcripts (one unit per line)
- Audio files, when a transcription API key is configured

One report per input is written to the output directory. With a sqlite
or postgres store, re-running the same file resumes where it stopped.

Example:
  truthcast verify episode-12.json
  truthcast verify --list episodes.txt --concurrency 4 --output-dir ./reports
  truthcast verify episode.mp3 --store-driver sqlite --store-dsn runs.db`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of files verified concurrently")
	verifyCmd.Flags().StringVar(&outputDir, "output-dir", "./truthcast-reports", "output directory for reports")
	verifyCmd.Flags().StringVar(&listFile, "list", "", "file listing transcript paths, one per line")
	verifyCmd.Flags().StringVar(&ownerID, "owner", "cli", "owner id recorded on each work")
	verifyCmd.Flags().DurationVar(&verifyTimeout, "timeout", 30*time.Minute, "total timeout")
	verifyCmd.Flags().String("store-driver", "memory", "persistence backend (memory, sqlite, postgres)")
	verifyCmd.Flags().String("store-dsn", "", "sqlite path or postgres DSN")
}

// report is the JSON document written per verified file
type report struct {
	Source   string            `json:"source"`
	Work     *model.ParentWork `json:"work"`
	Verdicts []model.Verdict   `json:"verdicts"`
}

// fileVerifier runs one batch session per file against the shared deps
type fileVerifier struct {
	deps        *session.Deps
	transcriber session.Transcriber
	owner       string
}

// VerifyFile loads or transcribes path and verifies it. A work that already
// completed for the same path is returned as is.
func (v *fileVerifier) VerifyFile(ctx context.Context, path string) (*model.ParentWork, error) {
	units, ct, err := v.load(ctx, path)
	if err != nil {
		return nil, err
	}

	work := model.NewPodcastWork(workIDFor(path), v.owner, model.PodcastWork{
		Title:       filepath.Base(path),
		AudioRef:    path,
		ContentType: ct,
	})
	err = v.deps.Store.CreateParentWork(ctx, work)
	if errors.Is(err, store.ErrAlreadyExists) {
		work, err = v.deps.Store.LoadParentWork(ctx, work.ID)
		if err == nil && work.Status == model.StatusFailed {
			return nil, fmt.Errorf("previous run of %s failed: %s", path, work.Error)
		}
		if err == nil && work.Status.IsTerminal() {
			return work, nil
		}
	}
	if err != nil {
		return nil, err
	}

	if err := session.RunBatch(ctx, v.deps, work, units); err != nil {
		return work, err
	}
	return work, nil
}

func (v *fileVerifier) load(ctx context.Context, path string) ([]model.TranscriptUnit, string, error) {
	ct := transcript.ContentTypeFor(path)
	if !strings.HasPrefix(ct, "audio/") {
		units, err := transcript.LoadTranscriptFile(path)
		return units, "", err
	}
	if v.transcriber == nil {
		return nil, ct, fmt.Errorf("%s is audio but no transcription API key is configured", path)
	}
	units, err := v.transcriber.Transcribe(ctx, path)
	return units, ct, err
}

// workIDFor derives a stable id so re-runs over the same file resume
func workIDFor(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+path)).String()
}

func runVerify(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && listFile == "" {
		return errors.New("pass transcript files or --list")
	}

	v := viper.GetViper()
	for _, name := range []string{"store-driver", "store-dsn"} {
		if f := cmd.Flags().Lookup(name); f.Changed {
			v.Set("store."+strings.TrimPrefix(name, "store-"), f.Value.String())
		}
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	logger := logging.Must(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg, logger, metrics.NewNop())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Truthcast Verification\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Store:        %s\n", cfg.Store.Driver)
	fmt.Fprintf(os.Stderr, "  Providers:    %s\n", strings.Join(a.gateway.Providers(), ", "))
	if cfg.LLM.Provider != "" {
		fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	}
	fmt.Fprintf(os.Stderr, "\n")

	processor := worker.NewBatchProcessor(&fileVerifier{
		deps:        a.deps,
		transcriber: a.transcriber,
		owner:       ownerID,
	}, concurrency)

	var results []*worker.VerifyResult
	if listFile != "" {
		results, err = processor.ProcessListFile(ctx, listFile)
		if err != nil {
			return err
		}
	}
	results = append(results, processor.ProcessFiles(ctx, args)...)

	failures := 0
	for _, res := range results {
		if res.Error != nil {
			failures++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", res.Path, res.Error)
			continue
		}
		out, err := writeReport(ctx, a.store, res)
		if err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "✗ %s: write report: %v\n", res.Path, err)
			continue
		}
		s := res.Work.Stats
		fmt.Fprintf(os.Stderr, "✓ %s: %d claims, %d flagged, mean confidence %.0f → %s\n",
			res.Path, s.TotalClaims, s.FlaggedClaims, s.MeanConfidence, out)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d files\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", len(results)-failures)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failures)
	fmt.Fprintf(os.Stderr, "\n")

	if failures > 0 {
		return fmt.Errorf("%d of %d files failed", failures, len(results))
	}
	return nil
}

// writeReport stores the work and its verdicts as JSON next to the other reports
func writeReport(ctx context.Context, st store.Store, res *worker.VerifyResult) (string, error) {
	verdicts, err := st.ListVerdicts(ctx, res.Work.ID)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(report{Source: res.Path, Work: res.Work, Verdicts: verdicts}, "", "  ")
	if err != nil {
		return "", err
	}

	name := strings.TrimSuffix(filepath.Base(res.Path), filepath.Ext(res.Path)) + ".verdicts.json"
	out := filepath.Join(outputDir, name)
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", err
	}
	return out, nil
}
