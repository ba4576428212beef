package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/vesto-app/tenk/internal/artifact"
	"github.com/vesto-app/tenk/internal/events"
	"github.com/vesto-app/tenk/internal/extract"
	"github.com/vesto-app/tenk/internal/locator"
	"github.com/vesto-app/tenk/internal/model"
	"github.com/vesto-app/tenk/internal/store"
	"github.com/vesto-app/tenk/pkg/secapi"
)

// pipelineEnv holds the initialized clients and the pipeline needed by the
// extract command.
type pipelineEnv struct {
	Store     store.Store       // may be nil
	Publisher *events.Publisher // may be nil
	Pipeline  *extract.Pipeline
	Resolver  *locator.TableResolver
	Catalog   model.Catalog
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Publisher != nil {
		if err := pe.Publisher.Close(); err != nil {
			zap.L().Warn("close publisher", zap.Error(err))
		}
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

type pipelineFlags struct {
	sections []string
	max      int
	noStore  bool
}

// initPipeline wires the extraction client, resolver, sink, artifacts and
// publisher into a Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, flags pipelineFlags) (*pipelineEnv, error) {
	if err := cfg.Validate("extract"); err != nil {
		return nil, err
	}

	sections := flags.sections
	if len(sections) == 0 {
		sections = cfg.Extract.Sections
	}
	catalog, err := model.DefaultCatalog().Subset(sections)
	if err != nil {
		return nil, err
	}

	resolver, err := initResolver()
	if err != nil {
		return nil, err
	}

	env := &pipelineEnv{Resolver: resolver, Catalog: catalog}
	var options []extract.Option

	if !flags.noStore {
		if st := initSink(ctx); st != nil {
			env.Store = st
			options = append(options, extract.WithSink(st))
		}
	}

	writer, err := initArtifacts(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}
	options = append(options, extract.WithArtifacts(writer))

	if len(cfg.Events.Brokers) > 0 {
		pub, err := events.NewPublisher(events.Config{Brokers: cfg.Events.Brokers, Topic: cfg.Events.Topic})
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Publisher = pub
		options = append(options, extract.WithPublisher(pub))
		zap.L().Info("publishing records", zap.String("topic", cfg.Events.Topic))
	}

	client := secapi.NewClient(cfg.SecAPI.Token,
		secapi.WithBaseURL(cfg.SecAPI.BaseURL),
		secapi.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.SecAPI.TimeoutSecs) * time.Second}),
		secapi.WithRateLimit(cfg.SecAPI.RateLimit, cfg.SecAPI.Burst),
	)
	executor := extract.NewExecutor(client, catalog, extract.ExecutorConfig{
		MinContentLength:  cfg.Extract.MinContentLength,
		ProcessingBackoff: cfg.Extract.ProcessingBackoff,
		ErrorBackoff:      cfg.Extract.ErrorBackoff,
	})

	limit := cfg.Extract.MaxCompanies
	if flags.max > 0 {
		limit = flags.max
	}
	p, err := extract.New(catalog, resolver, executor, extract.Options{
		MaxEntities: limit,
		MaxAttempts: cfg.Extract.MaxAttempts,
		StepDelay:   cfg.Extract.StepDelay,
		EntityDelay: cfg.Extract.EntityDelay,
	}, options...)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Pipeline = p
	return env, nil
}

// initSink opens and migrates the configured store. It returns nil when the
// store is not configured or unreachable; records then go to local files.
func initSink(ctx context.Context) store.Store {
	if !storeConfigured() {
		zap.L().Warn("database not configured, records will be written as local files",
			zap.String("driver", cfg.Store.Driver))
		return nil
	}
	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("database unavailable, records will be written as local files",
			zap.String("driver", cfg.Store.Driver), zap.Error(err))
		return nil
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		zap.L().Warn("database migration failed, records will be written as local files",
			zap.String("driver", cfg.Store.Driver), zap.Error(err))
		return nil
	}
	return st
}

// initResolver loads the override table and, when present, the harvested
// filings artifact.
func initResolver() (*locator.TableResolver, error) {
	overrides, err := locator.LoadOverrides(cfg.Extract.OverridesFile)
	if err != nil {
		return nil, err
	}
	src, err := loadSourceIfExists(cfg.Extract.SourceFile)
	if err != nil {
		return nil, err
	}
	zap.L().Info("resolver ready",
		zap.Int("overrides", len(overrides)),
		zap.Bool("source_loaded", src != nil),
	)
	return &locator.TableResolver{Overrides: overrides, Source: src}, nil
}

// loadSourceIfExists returns nil without error when path does not exist.
func loadSourceIfExists(path string) (*locator.Source, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		zap.L().Warn("filings source not found", zap.String("path", path))
		return nil, nil
	}
	return locator.LoadSource(path)
}

// defaultSymbols picks the batch when none were given: every company of the
// source artifact, or a single-company run when there is none.
func defaultSymbols(resolver *locator.TableResolver) []string {
	if syms := resolver.Symbols(); len(syms) > 0 {
		return syms
	}
	return []string{"AAPL"}
}

// initArtifacts writes locally and, when configured, copies to object
// storage.
func initArtifacts(ctx context.Context) (artifact.Writer, error) {
	local := artifact.NewLocal(cfg.Artifact.Dir)
	if !cfg.ObjectStore.Enabled() {
		return local, nil
	}
	s3, err := artifact.NewS3(ctx, artifact.S3Config{
		Endpoint:  cfg.ObjectStore.Endpoint,
		AccessKey: cfg.ObjectStore.AccessKey,
		SecretKey: cfg.ObjectStore.SecretKey,
		Bucket:    cfg.ObjectStore.Bucket,
		Prefix:    cfg.ObjectStore.Prefix,
		Region:    cfg.ObjectStore.Region,
		UseSSL:    cfg.ObjectStore.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return artifact.Tee{local, s3}, nil
}
