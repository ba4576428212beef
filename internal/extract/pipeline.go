package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vesto-app/tenk/internal/artifact"
	"github.com/vesto-app/tenk/internal/locator"
	"github.com/vesto-app/tenk/internal/model"
	"github.com/vesto-app/tenk/internal/resilience"
)

// Sink persists finished records, keyed by symbol and access number.
type Sink interface {
	SaveRecord(ctx context.Context, rec *model.EntityRecord) error
}

// Publisher announces finished records. Failures never affect the record.
type Publisher interface {
	Publish(ctx context.Context, rec *model.EntityRecord) error
}

// Pacer waits between outbound calls.
type Pacer interface {
	Pause(ctx context.Context, d time.Duration) error
}

// TimerPacer pauses with a context-aware timer.
type TimerPacer struct{}

// Pause implements Pacer.
func (TimerPacer) Pause(ctx context.Context, d time.Duration) error {
	return resilience.Sleep(ctx, d)
}

// Options tunes a Pipeline.
type Options struct {
	// MaxEntities caps how many symbols a batch processes. 0 means no cap.
	MaxEntities int
	// MaxAttempts is the per-section attempt budget handed to the executor.
	MaxAttempts int
	// StepDelay follows every section call.
	StepDelay time.Duration
	// EntityDelay separates consecutive companies.
	EntityDelay time.Duration
}

// DefaultOptions returns the standard batch settings.
func DefaultOptions() Options {
	return Options{
		MaxEntities: 10,
		MaxAttempts: 3,
		StepDelay:   500 * time.Millisecond,
		EntityDelay: time.Second,
	}
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithSink persists every extracted record through s.
func WithSink(s Sink) Option {
	return func(p *Pipeline) { p.sink = s }
}

// WithPublisher announces every extracted record through pub.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithArtifacts sets where fallback and summary artifacts are written.
func WithArtifacts(w artifact.Writer) Option {
	return func(p *Pipeline) { p.artifacts = w }
}

// WithPacer replaces the timer-based pacer.
func WithPacer(pc Pacer) Option {
	return func(p *Pipeline) { p.pacer = pc }
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline walks companies sequentially and extracts every catalog section
// for each of them.
type Pipeline struct {
	catalog   model.Catalog
	resolver  locator.Resolver
	executor  StepExecutor
	opts      Options
	sink      Sink
	publisher Publisher
	artifacts artifact.Writer
	pacer     Pacer
	now       func() time.Time
}

// New builds a Pipeline. The catalog must not be empty.
func New(catalog model.Catalog, resolver locator.Resolver, executor StepExecutor, opts Options, options ...Option) (*Pipeline, error) {
	if len(catalog) == 0 {
		return nil, eris.New("extract: empty section catalog")
	}
	if resolver == nil || executor == nil {
		return nil, eris.New("extract: resolver and executor are required")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	if opts.MaxEntities < 0 {
		opts.MaxEntities = 0
	}
	p := &Pipeline{
		catalog:  catalog,
		resolver: resolver,
		executor: executor,
		opts:     opts,
		pacer:    TimerPacer{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range options {
		o(p)
	}
	return p, nil
}

// Symbols normalizes, de-duplicates and caps the input list.
func (p *Pipeline) Symbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	var out []string
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if p.opts.MaxEntities > 0 && len(out) == p.opts.MaxEntities {
			break
		}
	}
	return out
}

// RunBatch processes symbols in order and writes the summary artifact. A
// cancelled context stops the batch; the partial summary is returned
// without being written.
func (p *Pipeline) RunBatch(ctx context.Context, symbols []string) (*model.BatchSummary, error) {
	batch := p.Symbols(symbols)
	summary := model.NewBatchSummary(p.now())
	log := zap.L().With(zap.String("run_id", summary.RunID))

	log.Info("extract: batch starting",
		zap.Int("companies", len(batch)),
		zap.Int("sections", len(p.catalog)),
		zap.Int("expected_api_calls", len(batch)*len(p.catalog)),
	)

	for i, sym := range batch {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		log.Info("extract: processing company",
			zap.String("symbol", sym),
			zap.Int("index", i+1),
			zap.Int("of", len(batch)),
		)

		summary.Add(p.processEntity(ctx, sym))

		if i < len(batch)-1 {
			if err := p.pacer.Pause(ctx, p.opts.EntityDelay); err != nil {
				return summary, err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	counts := summary.CountByStatus()
	log.Info("extract: batch complete",
		zap.Int("companies", len(summary.Records)),
		zap.Int("total_api_calls", summary.TotalAPICalls()),
		zap.Int("completed", counts[model.StatusCompleted]),
		zap.Int("partial", counts[model.StatusPartial]),
		zap.Int("failed", counts[model.StatusFailed]),
	)

	if p.artifacts != nil {
		loc, err := p.artifacts.Write(ctx, artifact.SummaryFile, summary)
		if err != nil {
			return summary, eris.Wrap(err, "extract: write summary")
		}
		log.Info("extract: summary written", zap.String("location", loc))
	}
	return summary, nil
}

// RunEntity processes a single symbol without writing a summary.
func (p *Pipeline) RunEntity(ctx context.Context, symbol string) (*model.EntityRecord, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, eris.New("extract: empty symbol")
	}
	rec := p.processEntity(ctx, symbol)
	if err := ctx.Err(); err != nil {
		return rec, err
	}
	return rec, nil
}

// processEntity never panics and always returns a finalized record.
func (p *Pipeline) processEntity(ctx context.Context, symbol string) (rec *model.EntityRecord) {
	log := zap.L().With(zap.String("symbol", symbol))
	rec = model.NewEntityRecord(model.Entity{Symbol: symbol}, p.now())

	defer func() {
		if r := recover(); r != nil {
			log.Error("extract: recovered panic", zap.Any("panic", r))
			rec.Error = fmt.Sprintf("panic: %v", r)
			rec.Finalize(len(p.catalog))
		}
	}()

	ent, err := p.resolver.Resolve(symbol)
	if err != nil {
		if errors.Is(err, locator.ErrNotFound) {
			rec.Error = locator.ErrNotFound.Error()
		} else {
			rec.Error = "resolve filing: " + err.Error()
		}
		log.Warn("extract: no filing to extract", zap.Error(err))
		rec.Finalize(len(p.catalog))
		return rec
	}

	rec = model.NewEntityRecord(ent, p.now())
	log = log.With(zap.String("access_number", ent.AccessNumber))

	for _, section := range p.catalog {
		res := p.executor.Execute(ctx, ent.FilingURL, section, p.opts.MaxAttempts)
		if res == nil {
			res = model.Failed{Reason: "executor returned no result"}
		}
		rec.Add(section, res)

		if err := p.pacer.Pause(ctx, p.opts.StepDelay); err != nil {
			rec.Error = "cancelled: " + err.Error()
			break
		}
	}
	rec.Finalize(len(p.catalog))

	log.Info("extract: company finished",
		zap.String("status", string(rec.Status)),
		zap.Int("sections_extracted", rec.Completed),
		zap.Int("api_calls", rec.Attempted),
	)

	if ctx.Err() != nil {
		// Interrupted records are never persisted.
		return rec
	}
	p.persist(ctx, rec, log)
	return rec
}

// persist upserts rec through the sink, falling back to a per-company
// artifact when there is no sink or it rejects the record.
func (p *Pipeline) persist(ctx context.Context, rec *model.EntityRecord, log *zap.Logger) {
	stored := false
	if p.sink != nil {
		if err := p.sink.SaveRecord(ctx, rec); err != nil {
			log.Warn("extract: sink rejected record", zap.Error(err))
			rec.Error = "persist: " + err.Error()
		} else {
			stored = true
		}
	}

	if !stored && p.artifacts != nil {
		loc, err := p.artifacts.Write(ctx, artifact.RecordFile(rec.Symbol), rec)
		if err != nil {
			log.Error("extract: write fallback artifact", zap.Error(err))
		} else {
			log.Info("extract: saved fallback artifact", zap.String("location", loc))
		}
	}

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, rec); err != nil {
			log.Warn("extract: publish record", zap.Error(err))
		}
	}
}
