package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spherical/lecture-ingest/internal/domain"
	"github.com/spherical/lecture-ingest/internal/observability"
	"github.com/spherical/lecture-ingest/internal/pdf"
	"golang.org/x/sync/errgroup"
)

// Options configures an ingestion run
type Options struct {
	Prompt      string
	BatchSize   int  // Pages per extraction request
	Concurrency int  // Maximum in-flight batch calls, 1 is strictly sequential
	FailFast    bool // Cancel outstanding calls on the first failure
}

// DefaultOptions returns the sequential, fail-fast configuration
func DefaultOptions(prompt string) Options {
	return Options{
		Prompt:      prompt,
		BatchSize:   domain.DefaultBatchSize,
		Concurrency: 1,
		FailFast:    true,
	}
}

// invalidator is implemented by callers that cache responses
type invalidator interface {
	Invalidate(ctx context.Context, prompt string, batch domain.Batch) error
}

// Service orchestrates rendering, encoding, batched extraction and assembly
type Service struct {
	renderer domain.Renderer
	encoder  domain.Encoder
	caller   domain.Caller
	opts     Options
	logger   *observability.Logger
}

// NewService creates a new ingestion service
func NewService(renderer domain.Renderer, encoder domain.Encoder, caller domain.Caller, opts Options, logger *observability.Logger) *Service {
	if opts.BatchSize == 0 {
		opts.BatchSize = domain.DefaultBatchSize
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Service{
		renderer: renderer,
		encoder:  encoder,
		caller:   caller,
		opts:     opts,
		logger:   logger.WithOperation("ingest"),
	}
}

// Ingest converts one PDF into page-aligned documents. It returns either the
// complete ordered list or an error, never a partial list.
func (s *Service) Ingest(ctx context.Context, pdfPath string, eventCh chan<- domain.StreamEvent) ([]domain.OutputDocument, error) {
	docs, stats, err := s.Run(ctx, pdfPath, eventCh)
	if err != nil {
		s.emitEvent(eventCh, ErrorEvent(err))
		return nil, err
	}
	s.emitEvent(eventCh, CompleteEvent(stats))
	return docs, nil
}

// Run is Ingest without the terminal event. Start and progress events are
// emitted; the caller reports completion or failure itself, using the
// returned stats to tie its records to the run.
func (s *Service) Run(ctx context.Context, pdfPath string, eventCh chan<- domain.StreamEvent) ([]domain.OutputDocument, domain.ProcessingStats, error) {
	startTime := time.Now()
	runID := uuid.NewString()
	logger := s.logger.With().Str("run_id", runID).Str("source", pdfPath).Logger()

	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventStart,
		Batch:     domain.NoBatch,
		Payload:   fmt.Sprintf("Starting ingestion of %s", pdfPath),
		Timestamp: time.Now(),
	})

	docs, stats, err := s.pipeline(ctx, logger, pdfPath, eventCh)
	stats.RunID = runID
	stats.TotalTime = time.Since(startTime)
	if err != nil {
		logger.Error().Err(err).Msg("ingestion failed")
		return nil, stats, err
	}

	logger.Info().
		Int("pages", stats.Pages).
		Int("batches", stats.Batches).
		Dur("duration", stats.TotalTime).
		Msg("ingestion complete")

	return docs, stats, nil
}

// CompleteEvent builds the terminal event for a successful run
func CompleteEvent(stats domain.ProcessingStats) domain.StreamEvent {
	return domain.StreamEvent{
		Type:      domain.EventComplete,
		Batch:     domain.NoBatch,
		Total:     stats.Batches,
		Payload:   stats,
		Timestamp: time.Now(),
	}
}

// ErrorEvent builds the terminal event for a failed run
func ErrorEvent(err error) domain.StreamEvent {
	event := domain.StreamEvent{
		Type:      domain.EventError,
		Batch:     domain.NoBatch,
		Payload:   err.Error(),
		Timestamp: time.Now(),
	}
	if batch, ok := domain.BatchOf(err); ok {
		event.Batch = batch
	}
	return event
}

func (s *Service) pipeline(ctx context.Context, logger *observability.Logger, pdfPath string, eventCh chan<- domain.StreamEvent) ([]domain.OutputDocument, domain.ProcessingStats, error) {
	var stats domain.ProcessingStats

	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventRendering,
		Batch:     domain.NoBatch,
		Payload:   fmt.Sprintf("Rendering %s", pdfPath),
		Timestamp: time.Now(),
	})

	source, err := s.renderer.Render(ctx, pdfPath)
	defer func() {
		if cerr := s.renderer.Cleanup(); cerr != nil {
			logger.Warn().Err(cerr).Msg("failed to clean staging files")
		}
	}()
	if err != nil {
		return nil, stats, err
	}
	stats.Pages = len(source.Pages)
	logger.Info().Int("pages", stats.Pages).Msg("rendered PDF")

	encoded, err := pdf.EncodeAll(ctx, s.encoder, source)
	if err != nil {
		return nil, stats, err
	}

	batches, err := Partition(encoded, s.opts.BatchSize)
	if err != nil {
		return nil, stats, err
	}
	stats.Batches = len(batches)

	responses, err := s.callBatches(ctx, logger, batches, eventCh)
	if err != nil {
		return nil, stats, err
	}

	docs, err := Assemble(source.Path, batches, responses)
	if err != nil {
		s.invalidate(ctx, logger, batches, err)
		return nil, stats, err
	}

	if len(docs) != len(source.Pages) {
		return nil, stats, domain.ValidationError(
			fmt.Sprintf("assembled %d documents for %d pages", len(docs), len(source.Pages)), nil)
	}
	stats.Documents = len(docs)

	return docs, stats, nil
}

// callBatches sends every batch and returns responses indexed by batch number.
// Results are only read after all calls finish, so completion order never
// affects page order.
func (s *Service) callBatches(ctx context.Context, logger *observability.Logger, batches []domain.Batch, eventCh chan<- domain.StreamEvent) ([]string, error) {
	responses := make([]string, len(batches))
	errs := make([]error, len(batches))
	total := len(batches)

	var (
		g      *errgroup.Group
		runCtx = ctx
	)
	if s.opts.FailFast {
		g, runCtx = errgroup.WithContext(ctx)
	} else {
		g = &errgroup.Group{}
	}
	g.SetLimit(s.opts.Concurrency)

	for _, batch := range batches {
		if s.opts.FailFast && runCtx.Err() != nil {
			break
		}

		g.Go(func() error {
			if err := runCtx.Err(); err != nil {
				return err
			}

			s.emitEvent(eventCh, domain.StreamEvent{
				Type:      domain.EventBatchProcessing,
				Batch:     batch.Index,
				Total:     total,
				Payload:   fmt.Sprintf("Processing batch %d/%d", batch.Index+1, total),
				Timestamp: time.Now(),
			})
			logger.Info().
				Int("batch", batch.Index).
				Int("first_page", batch.FirstPage()).
				Int("pages", len(batch.Pages)).
				Msgf("Processing batch %d/%d", batch.Index+1, total)

			text, err := s.caller.Extract(runCtx, s.opts.Prompt, batch)
			if err != nil {
				errs[batch.Index] = domain.ServiceCallError(batch.Index, err)
				return errs[batch.Index]
			}
			responses[batch.Index] = text

			s.emitEvent(eventCh, domain.StreamEvent{
				Type:      domain.EventBatchComplete,
				Batch:     batch.Index,
				Total:     total,
				Payload:   fmt.Sprintf("Completed batch %d/%d", batch.Index+1, total),
				Timestamp: time.Now(),
			})
			return nil
		})
	}

	waitErr := g.Wait()
	if waitErr == nil {
		return responses, nil
	}
	if s.opts.FailFast {
		return nil, waitErr
	}

	// Drain mode reports the earliest failing batch
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return nil, waitErr
}

// invalidate drops cached responses for a batch that failed reconciliation
func (s *Service) invalidate(ctx context.Context, logger *observability.Logger, batches []domain.Batch, err error) {
	inv, ok := s.caller.(invalidator)
	if !ok {
		return
	}
	idx, ok := domain.BatchOf(err)
	if !ok || idx < 0 || idx >= len(batches) {
		return
	}
	if ierr := inv.Invalidate(ctx, s.opts.Prompt, batches[idx]); ierr != nil {
		logger.Warn().Err(ierr).Int("batch", idx).Msg("failed to invalidate cached response")
	}
}

// emitEvent emits an event without blocking the pipeline
func (s *Service) emitEvent(eventCh chan<- domain.StreamEvent, event domain.StreamEvent) {
	if eventCh != nil {
		select {
		case eventCh <- event:
		default:
			s.logger.Warn().Str("event", string(event.Type)).Msg("event channel full, dropping event")
		}
	}
}
