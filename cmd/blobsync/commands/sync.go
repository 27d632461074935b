package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/datallboy/blobsync/internal/app"
	"github.com/datallboy/blobsync/internal/blob"
	"github.com/datallboy/blobsync/internal/engine"
	"github.com/datallboy/blobsync/internal/infra/config"
	"github.com/datallboy/blobsync/internal/metrics"
	"github.com/datallboy/blobsync/internal/resume"
	"github.com/datallboy/blobsync/internal/store"
)

var (
	syncWorkers     int
	syncRetries     int
	syncMetricsAddr string
	syncNoProgress  bool
)

var syncCmd = &cobra.Command{
	Use:   "sync <path>",
	Short: "Upload or download one file",
	Long: `Synchronize a single file with the configured container.

If <path> exists it is uploaded: only blocks the store does not already hold
are sent, then the block list is committed. If <path> does not exist the
object with the same base name is downloaded into <path>.blobdl/ and moved
into place once complete. An interrupted download resumes on the next run.

Examples:
  # Upload (or resume uploading) a file
  blobsync sync ./backup.tar

  # Download with 8 workers and 3 retries per block
  blobsync sync ./backup.tar --workers 8 --retries 3

  # Expose Prometheus counters while running
  blobsync sync ./backup.tar --metrics-addr :9090`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().IntVar(&syncWorkers, "workers", 0, "override transfer.workers")
	syncCmd.Flags().IntVar(&syncRetries, "retries", -1, "override transfer.retries")
	syncCmd.Flags().StringVar(&syncMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	syncCmd.Flags().BoolVar(&syncNoProgress, "no-progress", false, "do not draw the progress line")
}

func runSync(cmd *cobra.Command, args []string) error {
	appCtx, err := bootstrap()
	if err != nil {
		return err
	}
	cfg := appCtx.Config

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if syncWorkers > 0 {
		cfg.Transfer.Workers = syncWorkers
	}
	if syncRetries >= 0 {
		cfg.Transfer.Retries = syncRetries
	}

	signer, err := newSigner(cfg)
	if err != nil {
		return err
	}
	appCtx.Blobs = blob.NewClient(cfg.BaseURL(), cfg.Container, signer, &http.Client{}, appCtx.Logger)

	// Resume state backend; the sqlite store also keeps run history
	var history *store.PersistentStore
	switch cfg.Transfer.StateBackend {
	case config.StateBackendSQLite:
		history, err = store.NewPersistentStore(cfg.Transfer.StatePath)
		if err != nil {
			return err
		}
		defer history.Close()
		appCtx.Resume = history
	default:
		appCtx.Resume = resume.NewFileProvider()
	}

	if syncMetricsAddr != "" {
		reg := prometheus.NewRegistry()
		appCtx.Metrics = metrics.New(reg)
		stopMetrics := serveMetrics(appCtx, reg, syncMetricsAddr)
		defer stopMetrics()
	}

	// Setup Signal Handling for Graceful Shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.NewEngine(appCtx, nil)

	progressCtx, stopProgress := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if !syncNoProgress {
			renderProgress(progressCtx, eng.Progress())
		}
	}()

	res, err := eng.Sync(ctx, args[0])
	stopProgress()
	<-done

	if err != nil {
		if !syncNoProgress {
			fmt.Println()
		}
		return fmt.Errorf("sync failed: %w", err)
	}

	if !syncNoProgress {
		fmt.Printf("\r%s\n", engine.FormatProgress(eng.Progress().Snapshot()))
	}

	appCtx.Logger.Info("%s of %s finished: %d/%d blocks transferred (%s) in %s, committed=%v",
		res.Mode, res.Name, res.Transferred, res.Blocks,
		humanize.Bytes(uint64(res.Bytes)), res.Elapsed.Round(time.Millisecond), res.Committed)

	if history != nil {
		// Use a fresh context: history is written even after Ctrl+C cancelled ctx
		if err := history.RecordRun(context.Background(), res.Run(time.Now())); err != nil {
			appCtx.Logger.Warn("Could not record run %s: %v", res.RunID, err)
		}
	}

	return nil
}

func newSigner(cfg *config.Config) (blob.Signer, error) {
	if cfg.Key == "" {
		return blob.Anonymous, nil
	}
	signer, err := blob.NewSharedKeySigner(cfg.Account, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("invalid account key: %w", err)
	}
	return signer, nil
}

// renderProgress redraws the status line every second until ctx is done.
func renderProgress(ctx context.Context, p *engine.Progress) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s := p.Snapshot()
			if s.TotalBlocks == 0 {
				continue
			}
			fmt.Printf("\r%s", engine.FormatProgress(s))
		case <-ctx.Done():
			return
		}
	}
}

// serveMetrics exposes reg on addr and returns a function that stops it.
func serveMetrics(appCtx *app.Context, reg *prometheus.Registry, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appCtx.Logger.Error("Metrics server failed: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
