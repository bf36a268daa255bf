package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/lecture-ingest/cmd/lecture-ingest/ui"
	"github.com/spherical/lecture-ingest/internal/api"
	"github.com/spherical/lecture-ingest/internal/observability"
	"github.com/spherical/lecture-ingest/pkg/ingest"
)

var (
	serveAddr        string
	serveMaxUploadMB int64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve PDF ingestion over HTTP",
	Long: `Serve accepts PDF uploads on POST /api/v1/ingest (multipart field "file")
and answers with the page documents as JSON. With a document store configured,
GET /api/v1/documents?source=<name> returns previously ingested documents.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().Int64Var(&serveMaxUploadMB, "max-upload-mb", api.DefaultMaxUploadBytes>>20, "maximum PDF upload size in MiB")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: "lecture-ingest",
	})

	client, err := ingest.NewClientWithConfig(ctx, cfg, ingest.WithLogger(logger))
	if err != nil {
		return err
	}
	defer client.Close()

	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           api.NewRouter(logger, client, api.Config{MaxUploadBytes: serveMaxUploadMB << 20}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	ui.Success("Listening on %s", serveAddr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	ui.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
