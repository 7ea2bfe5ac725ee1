package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ppiankov/truthcast/internal/api"
	"github.com/ppiankov/truthcast/internal/logging"
	"github.com/ppiankov/truthcast/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the verification API server",
	Long: `Serve starts the HTTP API for podcast and live verification sessions.

Routes:
  POST /v1/podcasts                      register a recording or transcript
  POST /v1/live-sessions                 start a live session
  POST /v1/live-sessions/:id/segments    push one transcript unit
  GET  /v1/live-sessions/:id/stream      websocket segment stream
  POST /v1/live-sessions/:id/end         end a live session
  GET  /v1/works/:id[/status|/verdicts]  inspect results
  GET  /metrics                          prometheus metrics

Example:
  truthcast serve --addr :8080 --store-driver sqlite --store-dsn truthcast.db`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().String("store-driver", "memory", "persistence backend (memory, sqlite, postgres)")
	serveCmd.Flags().String("store-dsn", "", "sqlite path or postgres DSN")
	serveCmd.Flags().String("probe-schedule", "@every 5m", "cron spec for provider health probes (empty disables)")

	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("store.driver", serveCmd.Flags().Lookup("store-driver"))
	_ = viper.BindPFlag("store.dsn", serveCmd.Flags().Lookup("store-dsn"))
	_ = viper.BindPFlag("server.probe_schedule", serveCmd.Flags().Lookup("probe-schedule"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := newApp(ctx, cfg, logger, metrics.New(reg))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	manager, err := a.newManager()
	if err != nil {
		return err
	}

	scheduler, err := startProbes(ctx, a, cfg.Server.ProbeSchedule)
	if err != nil {
		return err
	}
	defer scheduler.Stop()

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.New(manager,
		api.WithAllowedAudio(cfg.Transcript.AllowedContentTypes),
		api.WithGatherer(reg),
		api.WithLogger(logger.Named("api")),
	).Handler()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("store", cfg.Store.Driver),
			zap.Strings("providers", a.gateway.Providers()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("session shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// startProbes checks provider reachability once, then on the cron schedule
func startProbes(ctx context.Context, a *app, schedule string) (*cron.Cron, error) {
	c := cron.New()
	if schedule == "" {
		return c, nil
	}

	probe := func() {
		pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		results := a.gateway.Probe(pctx)
		up := 0
		for _, err := range results {
			if err == nil {
				up++
			}
		}
		a.logger.Debug("provider probe", zap.Int("up", up), zap.Int("total", len(results)))
	}

	if _, err := c.AddFunc(schedule, probe); err != nil {
		return nil, fmt.Errorf("invalid probe schedule %q: %w", schedule, err)
	}
	go probe()
	c.Start()
	return c, nil
}
