// Package pipeline drives a batch of URLs from an input stream through the archiving workflow,
// checkpointing results as it goes.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-archiver/internal/archiver"
	"github.com/JakeFAU/wayback-archiver/internal/cache"
	"github.com/JakeFAU/wayback-archiver/internal/metrics"
	"github.com/JakeFAU/wayback-archiver/internal/storage"
)

// DefaultCheckpointEvery is the number of processed URLs between checkpoints.
const DefaultCheckpointEvery = 100

// DefaultFinalCheckpointTimeout bounds the end-of-run checkpoint, which runs even after the
// run context is cancelled.
const DefaultFinalCheckpointTimeout = 30 * time.Second

const tracerName = "github.com/JakeFAU/wayback-archiver/internal/pipeline"

// Archiver resolves one URL into a record. It never fails; err only explains a tombstone.
type Archiver interface {
	Archive(ctx context.Context, url string) (archiver.Result, archiver.Outcome, error)
}

// Queue is the bounded hand-off between ingestion and the worker.
type Queue interface {
	Enqueue(ctx context.Context, item archiver.QueueItem) error
	Dequeue(ctx context.Context) (archiver.QueueItem, error)
	Close()
	Len() int
}

// Config controls Pipeline behavior.
type Config struct {
	RunID                  string
	CheckpointEvery        int
	ReuseWindow            time.Duration
	Topic                  string
	FinalCheckpointTimeout time.Duration
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Notification is the per-URL message sent to the publisher.
type Notification struct {
	RunID        string    `json:"run_id"`
	InputURL     string    `json:"input_url"`
	SnapshotURL  *string   `json:"snapshot_url"`
	LastArchived time.Time `json:"last_archived"`
	Outcome      string    `json:"outcome"`
	Error        string    `json:"error,omitempty"`
}

// Stats is a point-in-time view of a run.
type Stats struct {
	RunID       string                   `json:"run_id"`
	StartedAt   time.Time                `json:"started_at"`
	Running     bool                     `json:"running"`
	Read        int                      `json:"read"`
	Processed   int                      `json:"processed"`
	Skipped     int                      `json:"skipped"`
	Succeeded   int                      `json:"succeeded"`
	Failed      int                      `json:"failed"`
	Interrupted int                      `json:"interrupted"`
	Checkpoints int                      `json:"checkpoints"`
	Queued      int                      `json:"queued"`
	Current     string                   `json:"current,omitempty"`
	Outcomes    map[archiver.Outcome]int `json:"outcomes"`
}

// Pipeline owns the cache and the store for the duration of a run. Only the worker goroutine
// touches either.
type Pipeline struct {
	archiver  Archiver
	store     storage.Provider
	cache     *cache.Cache
	queue     Queue
	publisher archiver.Publisher
	clock     archiver.Clock
	cfg       Config
	logger    *zap.Logger
	tracer    trace.Tracer

	mu    sync.RWMutex
	stats Stats
}

// New constructs a Pipeline. A nil publisher disables notifications.
func New(
	arch Archiver,
	store storage.Provider,
	c *cache.Cache,
	queue Queue,
	publisher archiver.Publisher,
	clock archiver.Clock,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = cache.New()
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = DefaultCheckpointEvery
	}
	if cfg.ReuseWindow <= 0 {
		cfg.ReuseWindow = archiver.DefaultPolicy().ReuseWindow
	}
	if cfg.FinalCheckpointTimeout <= 0 {
		cfg.FinalCheckpointTimeout = DefaultFinalCheckpointTimeout
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	return &Pipeline{
		archiver:  arch,
		store:     store,
		cache:     c,
		queue:     queue,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
		tracer:    cfg.TracerProvider.Tracer(tracerName),
		stats: Stats{
			RunID:    cfg.RunID,
			Outcomes: make(map[archiver.Outcome]int),
		},
	}
}

// Run reads URLs from input and archives them one at a time. It always attempts a final
// checkpoint, and returns the first fatal error: an input read error or a failed checkpoint.
// Cancelling ctx stops the worker between URLs and is not itself an error.
func (p *Pipeline) Run(ctx context.Context, input io.Reader) (*cache.Cache, error) {
	p.mu.Lock()
	p.stats.StartedAt = p.clock.Now()
	p.stats.Running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.stats.Running = false
		p.stats.Current = ""
		p.mu.Unlock()
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ingestErr := make(chan error, 1)
	go func() {
		ingestErr <- p.ingest(runCtx, input)
	}()

	fatal := p.work(runCtx)
	if fatal == nil && runCtx.Err() == nil {
		// The queue drained, so ingestion has finished or is about to.
		if err := <-ingestErr; err != nil {
			fatal = err
		}
	} else {
		// The worker stopped early. Ingestion may be parked in a read that cancellation cannot
		// interrupt, so it is abandoned rather than awaited.
		cancel()
		select {
		case err := <-ingestErr:
			if err != nil && fatal == nil {
				fatal = err
			}
		default:
		}
	}

	finalCtx, finalCancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FinalCheckpointTimeout)
	defer finalCancel()
	if err := p.checkpoint(finalCtx, true); err != nil && fatal == nil {
		fatal = err
	}
	return p.cache, fatal
}

// Stats returns a copy of the current counters.
func (p *Pipeline) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := p.stats
	out.Outcomes = make(map[archiver.Outcome]int, len(p.stats.Outcomes))
	for k, v := range p.stats.Outcomes {
		out.Outcomes[k] = v
	}
	if p.queue != nil {
		out.Queued = p.queue.Len()
	}
	return out
}

func (p *Pipeline) ingest(ctx context.Context, input io.Reader) error {
	defer p.queue.Close()

	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		url := strings.TrimSpace(scanner.Text())
		if url == "" || strings.HasPrefix(url, "#") {
			continue
		}
		if err := p.queue.Enqueue(ctx, archiver.QueueItem{URL: url, Line: line}); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("enqueue line %d: %w", line, err)
		}
		p.mu.Lock()
		p.stats.Read++
		p.mu.Unlock()
	}
	if err := scanner.Err(); err != nil {
		p.logger.Error("input read failed", zap.Int("line", line), zap.Error(err))
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

func (p *Pipeline) work(ctx context.Context) error {
	processed := 0
	for {
		item, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				p.logger.Info("run interrupted", zap.Int("processed", processed))
			}
			return nil
		}
		p.process(ctx, item)
		processed++
		if processed%p.cfg.CheckpointEvery == 0 {
			if err := p.checkpoint(ctx, false); err != nil {
				return err
			}
		}
	}
}

func (p *Pipeline) process(ctx context.Context, item archiver.QueueItem) {
	ctx, span := p.tracer.Start(ctx, "archive.url", trace.WithAttributes(
		attribute.String("archive.input_url", item.URL),
		attribute.Int("archive.line", item.Line),
	))
	defer span.End()

	p.setCurrent(item.URL)
	logger := p.logger.With(zap.Int("line", item.Line), zap.String("url", item.URL))

	now := p.clock.Now()
	if prev, ok := p.cache.Lookup(item.URL); ok && cache.IsReusable(prev, now, p.cfg.ReuseWindow) {
		logger.Debug("reusing cached snapshot", zap.Time("last_archived", prev.LastArchived))
		p.record(archiver.OutcomeCached)
		metrics.ObserveOutcome(string(archiver.OutcomeCached))
		span.SetAttributes(attribute.String("archive.outcome", string(archiver.OutcomeCached)))
		return
	}

	logger.Info("archiving")
	res, outcome, cause := p.archiver.Archive(ctx, item.URL)
	if outcome == archiver.OutcomeInterrupted {
		// Any prior record for the URL stays as it was.
		logger.Info("archiving interrupted; record left unchanged")
		p.record(outcome)
		metrics.ObserveOutcome(string(outcome))
		span.SetAttributes(attribute.String("archive.outcome", string(outcome)))
		return
	}
	p.cache.Update(item.URL, res)
	p.record(outcome)
	metrics.ObserveOutcome(string(outcome))
	metrics.SetCacheEntries(p.cache.Len())
	span.SetAttributes(attribute.String("archive.outcome", string(outcome)))
	if cause != nil {
		span.RecordError(cause)
		span.SetStatus(codes.Error, archiver.KindOf(cause).String())
	}

	if res.Succeeded() {
		logger.Info("archived",
			zap.String("outcome", string(outcome)),
			zap.String("snapshot_url", res.SnapshotURL()),
			zap.Time("last_archived", res.LastArchived),
		)
	}
	p.notify(ctx, item.URL, res, outcome, cause)
}

func (p *Pipeline) notify(ctx context.Context, url string, res archiver.Result, outcome archiver.Outcome, cause error) {
	if p.publisher == nil {
		return
	}
	msg := Notification{
		RunID:        p.cfg.RunID,
		InputURL:     url,
		SnapshotURL:  res.URL,
		LastArchived: res.LastArchived,
		Outcome:      string(outcome),
	}
	if cause != nil {
		msg.Error = cause.Error()
	}
	if _, err := p.publisher.Publish(ctx, p.cfg.Topic, msg); err != nil {
		p.logger.Warn("publish outcome failed", zap.String("url", url), zap.Error(err))
	}
}

func (p *Pipeline) checkpoint(ctx context.Context, final bool) error {
	ctx, span := p.tracer.Start(ctx, "archive.checkpoint", trace.WithAttributes(
		attribute.String("checkpoint.backend", p.store.Name()),
		attribute.Bool("checkpoint.final", final),
	))
	defer span.End()

	err := p.store.Checkpoint(ctx, p.cache, final)
	metrics.ObserveCheckpoint(p.store.Name(), err, p.cache.Len())
	if err != nil {
		p.logger.Error("checkpoint failed",
			zap.String("backend", p.store.Name()),
			zap.Bool("final", final),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkpoint failed")
		return fmt.Errorf("checkpoint: %w", err)
	}
	p.cache.MarkClean()
	p.mu.Lock()
	p.stats.Checkpoints++
	p.mu.Unlock()
	p.logger.Info("checkpoint written",
		zap.String("backend", p.store.Name()),
		zap.Int("entries", p.cache.Len()),
		zap.Bool("final", final),
	)
	return nil
}

func (p *Pipeline) setCurrent(url string) {
	p.mu.Lock()
	p.stats.Current = url
	p.mu.Unlock()
}

func (p *Pipeline) record(outcome archiver.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Outcomes[outcome]++
	if outcome == archiver.OutcomeInterrupted {
		p.stats.Interrupted++
		return
	}
	p.stats.Processed++
	switch outcome {
	case archiver.OutcomeCached:
		p.stats.Skipped++
	case archiver.OutcomeFailed:
		p.stats.Failed++
	case archiver.OutcomeExisting, archiver.OutcomeFresh, archiver.OutcomeStaleFallback:
		p.stats.Succeeded++
	}
}
