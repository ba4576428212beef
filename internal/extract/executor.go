// Package extract runs 10-K section extraction for batches of companies.
package extract

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vesto-app/tenk/internal/model"
	"github.com/vesto-app/tenk/internal/resilience"
)

// processingSentinel is the body the extractor returns while a filing is
// still being indexed.
const processingSentinel = "processing"

var errProcessing = errors.New("extract: filing still processing")

// Extractor fetches one item of a filing as text. secapi.Client satisfies it.
type Extractor interface {
	Extract(ctx context.Context, filingURL, item string) (string, error)
}

// StepExecutor runs a single section extraction.
type StepExecutor interface {
	Execute(ctx context.Context, locator string, section model.Section, maxAttempts int) model.StepResult
}

// ExecutorConfig tunes retry and classification.
type ExecutorConfig struct {
	// MinContentLength is the trimmed body length below which a section is
	// considered empty. Default: 100.
	MinContentLength int
	// ProcessingBackoff is multiplied by the 1-based attempt number to get
	// the wait after a "processing" answer. Default: 500ms.
	ProcessingBackoff time.Duration
	// ErrorBackoff is the wait after a transport error or non-2xx status.
	// Default: 1s.
	ErrorBackoff time.Duration
}

// DefaultExecutorConfig returns the standard thresholds.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MinContentLength:  100,
		ProcessingBackoff: 500 * time.Millisecond,
		ErrorBackoff:      time.Second,
	}
}

// Executor implements StepExecutor against an Extractor. It keeps no state
// between calls.
type Executor struct {
	client  Extractor
	catalog model.Catalog
	cfg     ExecutorConfig
}

// NewExecutor creates an Executor accepting sections from catalog.
func NewExecutor(client Extractor, catalog model.Catalog, cfg ExecutorConfig) *Executor {
	if cfg.MinContentLength < 0 {
		cfg.MinContentLength = 0
	}
	return &Executor{client: client, catalog: catalog, cfg: cfg}
}

// Execute extracts section from the filing at locator, making at most
// maxAttempts requests. It never returns nil.
func (e *Executor) Execute(ctx context.Context, locator string, section model.Section, maxAttempts int) model.StepResult {
	if strings.TrimSpace(locator) == "" {
		return model.Failed{Reason: "empty filing locator"}
	}
	if known, ok := e.catalog.Lookup(section.Code); !ok || known != section {
		return model.Failedf("item %s is not in the section catalog", section.Code)
	}
	if maxAttempts <= 0 {
		return model.Failedf("invalid attempt budget %d", maxAttempts)
	}

	log := zap.L().With(zap.String("item", section.Code), zap.String("section", section.Name))

	attempts := 0
	retry := resilience.RetryConfig{
		MaxAttempts: maxAttempts,
		ShouldRetry: func(error) bool { return true },
		Backoff: func(attempt int, err error) time.Duration {
			if errors.Is(err, errProcessing) {
				return time.Duration(attempt) * e.cfg.ProcessingBackoff
			}
			return e.cfg.ErrorBackoff
		},
		OnRetry: resilience.RetryLogger("secapi", "extract item "+section.Code),
	}

	body, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
		attempts++
		body, err := e.client.Extract(ctx, locator, section.Code)
		if err != nil {
			return "", err
		}
		if strings.EqualFold(strings.TrimSpace(body), processingSentinel) {
			return "", errProcessing
		}
		return body, nil
	})

	switch {
	case err == nil:
	case ctx.Err() != nil:
		return model.Failedf("cancelled after %d attempts: %v", attempts, ctx.Err())
	case errors.Is(err, errProcessing):
		log.Warn("extract: section still processing", zap.Int("attempts", attempts))
		return model.Failedf("still processing after %d attempts", attempts)
	default:
		log.Warn("extract: section failed",
			zap.Int("attempts", attempts),
			zap.String("error_type", resilience.Classify(err)),
			zap.Error(err),
		)
		return model.Failed{Reason: err.Error()}
	}

	trimmed := len(strings.TrimSpace(body))
	if trimmed < e.cfg.MinContentLength {
		log.Info("extract: section empty", zap.Int("length", trimmed))
		return model.Empty{Length: trimmed}
	}

	log.Debug("extract: section extracted", zap.Int("length", len(body)))
	return model.NewContent(body)
}
