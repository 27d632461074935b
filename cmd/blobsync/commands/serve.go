package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/datallboy/blobsync/internal/api"
	"github.com/datallboy/blobsync/internal/api/controllers"
	"github.com/datallboy/blobsync/internal/blob"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an in-memory block store for local testing",
	Long: `Start an in-memory block blob store that speaks the subset of the wire
protocol blobsync uses. Point a client at it with endpoint: http://localhost:<port>.

When key is configured, requests must carry a valid SharedKey signature for
the configured account. Nothing is persisted; stopping the server drops every blob.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "override server.port")
}

func runServe(cmd *cobra.Command, args []string) error {
	appCtx, err := bootstrap()
	if err != nil {
		return err
	}
	cfg := appCtx.Config
	if servePort != "" {
		cfg.Server.Port = servePort
	}

	var verifier *blob.SharedKeySigner
	if cfg.Key != "" {
		verifier, err = blob.NewSharedKeySigner(cfg.Account, cfg.Key)
		if err != nil {
			return fmt.Errorf("invalid account key: %w", err)
		}
	}

	e := api.NewServer(appCtx, controllers.NewMemoryStore(), verifier)
	srv := &http.Server{
		Addr:    net.JoinHostPort("", cfg.Server.Port),
		Handler: e,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		appCtx.Logger.Info("Block store emulator listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	appCtx.Logger.Info("Shutting down emulator...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
