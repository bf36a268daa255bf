package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/lecture-ingest/cmd/lecture-ingest/ui"
	"github.com/spherical/lecture-ingest/internal/config"
	"github.com/spherical/lecture-ingest/pkg/ingest"
)

var (
	ingestOutputDir   string
	ingestProvider    string
	ingestModel       string
	ingestBatchSize   int
	ingestConcurrency int
	ingestNoFailFast  bool
	ingestStagingDir  string
	ingestKeepImages  bool
	ingestCache       string
	ingestStore       string
	ingestDSN         string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [flags] <pdf>...",
	Short: "Ingest one or more lecture PDFs",
	Long: `Ingest renders each PDF, extracts one markdown document per slide and writes
them as JSON lines to <name>-docs.jsonl. Each line has the form
{"content": "...", "metadata": {"source": "...", "page": N}}.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.StringVarP(&ingestOutputDir, "output-dir", "o", "", "directory for JSONL output (default: next to each PDF)")
	f.StringVar(&ingestProvider, "provider", "", "extraction backend: openrouter, openai or gemini")
	f.StringVarP(&ingestModel, "model", "m", "", "model name override")
	f.IntVarP(&ingestBatchSize, "batch-size", "b", 0, "pages per extraction request")
	f.IntVar(&ingestConcurrency, "concurrency", 0, "maximum in-flight batch requests")
	f.BoolVar(&ingestNoFailFast, "no-fail-fast", false, "let in-flight batches finish after a failure")
	f.StringVar(&ingestStagingDir, "staging-dir", "", "directory for rendered page images")
	f.BoolVar(&ingestKeepImages, "keep-images", false, "keep rendered page images after ingestion")
	f.StringVar(&ingestCache, "cache", "", "response cache: none, memory or redis")
	f.StringVar(&ingestStore, "store", "", "document store: none, sqlite or postgres")
	f.StringVar(&ingestDSN, "dsn", "", "document store connection string")
	rootCmd.AddCommand(ingestCmd)
}

// loadConfig reads the config file and applies command line overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	config.LoadDotEnv()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("provider") {
		cfg.Extraction.Provider = ingestProvider
	}
	if f.Changed("model") {
		cfg.Extraction.Model = ingestModel
	}
	if f.Changed("batch-size") {
		cfg.Extraction.BatchSize = ingestBatchSize
	}
	if f.Changed("concurrency") {
		cfg.Extraction.Concurrency = ingestConcurrency
	}
	if ingestNoFailFast {
		cfg.Extraction.FailFast = false
	}
	if f.Changed("staging-dir") {
		cfg.Render.StagingDir = ingestStagingDir
	}
	if ingestKeepImages {
		cfg.Render.KeepImages = true
	}
	if f.Changed("cache") {
		cfg.Cache.Driver = ingestCache
	}
	if f.Changed("store") {
		cfg.Store.Driver = ingestStore
	}
	if f.Changed("dsn") {
		cfg.Store.DSN = ingestDSN
	}
	if verbose {
		cfg.Observability.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate flags: %w", err)
	}
	return cfg, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Cancel in-flight requests on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := ingest.NewClientWithConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ui.Section("Lecture Ingestion")
	ui.Info("Provider: %s, batch size %d, concurrency %d",
		cfg.Extraction.Provider, cfg.Extraction.BatchSize, cfg.Extraction.Concurrency)

	failed := 0
	for _, pdfPath := range args {
		if err := ingestOne(ctx, client, pdfPath); err != nil {
			ui.Error("%s: %v", pdfPath, err)
			failed++
		}
		if ctx.Err() != nil {
			break
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d PDFs failed", failed, len(args))
	}
	return nil
}

func ingestOne(ctx context.Context, client *ingest.Client, pdfPath string) error {
	start := time.Now()
	ui.Info("Processing PDF: %s", pdfPath)

	events := make(chan ingest.StreamEvent, 100)
	done := make(chan struct{})
	go func() {
		defer close(done)
		renderProgress(events)
	}()

	docs, err := client.ParseWithEvents(ctx, pdfPath, events)
	close(events)
	<-done
	if err != nil {
		return err
	}

	outPath := outputPath(pdfPath, ingestOutputDir)
	if err := writeJSONL(outPath, docs); err != nil {
		return err
	}

	ui.Success("Wrote %d documents to %s in %v", len(docs), outPath, time.Since(start).Round(time.Millisecond))
	return nil
}

// renderProgress shows a spinner while rendering and a bar over batches
func renderProgress(events <-chan ingest.StreamEvent) {
	var (
		spin *ui.Spinner
		bar  *ui.ProgressBar
	)
	stopSpin := func() {
		if spin != nil {
			spin.Stop()
			spin = nil
		}
	}
	defer stopSpin()

	for ev := range events {
		switch ev.Type {
		case ingest.EventRendering:
			spin = ui.NewSpinner("Rendering pages...")
			spin.Start()

		case ingest.EventBatchProcessing:
			stopSpin()
			if bar == nil {
				bar = ui.NewProgressBar(int64(ev.Total), "Extracting")
			}
			if ui.Verbose() {
				ui.Info("%v", ev.Payload)
			}

		case ingest.EventBatchComplete:
			if bar != nil {
				bar.Add(1)
			}

		case ingest.EventError:
			stopSpin()

		case ingest.EventComplete:
			if bar != nil {
				bar.Finish()
			}
			if stats, ok := ev.Payload.(ingest.ProcessingStats); ok && ui.Verbose() {
				ui.Info("Run %s: %d pages in %d batches", stats.RunID, stats.Pages, stats.Batches)
			}
		}
	}
}
