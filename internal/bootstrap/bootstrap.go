package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/docvault/internal/config"
	"github.com/kirillkom/docvault/internal/core/ports"
	"github.com/kirillkom/docvault/internal/core/usecase"
	"github.com/kirillkom/docvault/internal/infrastructure/classifier/keyword"
	"github.com/kirillkom/docvault/internal/infrastructure/extractor/textlayer"
	"github.com/kirillkom/docvault/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/docvault/internal/infrastructure/ner"
	"github.com/kirillkom/docvault/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docvault/internal/infrastructure/repository/memory"
	"github.com/kirillkom/docvault/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docvault/internal/infrastructure/resilience"
	"github.com/kirillkom/docvault/internal/infrastructure/storage/localfs"
)

// Observers lets each binary plug its own metrics registry into the core.
// Nil fields are skipped.
type Observers struct {
	Pipeline ports.PipelineObserver
	Rules    ports.RuleObserver
	Search   ports.SearchObserver
	Breakers func(operation string, state gobreaker.State)
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue    ports.MessageQueue
	Docs     ports.DocumentRepository
	RulesDB  ports.RuleRepository
	Pipeline *usecase.Pipeline

	IngestUC    *usecase.IngestDocumentUseCase
	ProcessUC   *usecase.ProcessDocumentUseCase
	DocumentsUC *usecase.DocumentQueryUseCase
	Rules       *usecase.RuleEngine
	Search      *usecase.SearchUseCase
	Sweeper     *usecase.StaleUploadSweeper

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, obs Observers) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	docs, rulesRepo, db, err := openRepositories(ctx, cfg)
	if err != nil {
		return nil, err
	}
	closeDB := func() {
		if db != nil {
			_ = db.Close()
		}
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilienceConfig(cfg))
	executor.SetLogger(logger)
	if obs.Breakers != nil {
		executor.SetStateObserver(obs.Breakers)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	dispatcher := nats.NewActionDispatcher(queue, cfg.NATSActionSubjectPrefix)

	var (
		classifier ports.Classifier
		ocr        ports.OCR
		recognizer ner.Recognizer
	)
	if cfg.OllamaEnabled {
		client := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaVisionModel, ollama.Options{
			Timeout:            cfg.OllamaTimeout,
			ResilienceExecutor: executor,
		})
		classifier = ollama.NewClassifier(client)
		ocr = ollama.NewVisionOCR(client)
		recognizer = ollama.NewEntityRecognizer(client)
	}

	extractor := textlayer.New(ocr, logger, textlayer.WithMaxOCRImages(cfg.MaxOCRImages))
	entities := ner.NewExtractor(recognizer, logger, ner.WithWindow(cfg.EntityWindowChars, cfg.EntityWindowOverlap))
	pipeline := usecase.NewPipeline(extractor, classifier, keyword.New(), entities, usecase.PipelineConfig{
		ClassifyMaxChars: cfg.ClassifyMaxChars,
		ExtractMaxChars:  cfg.ExtractMaxChars,
		TextTimeout:      cfg.OCRTimeout,
		ClassifyTimeout:  cfg.ClassifyTimeout,
		ExtractTimeout:   cfg.ExtractTimeout,
	})
	pipeline.SetLogger(logger)
	if obs.Pipeline != nil {
		pipeline.SetObserver(obs.Pipeline)
	}

	rules := usecase.NewRuleEngine(rulesRepo, docs, dispatcher, logger)
	rules.SetParallelism(cfg.RuleEvalParallelism)
	if obs.Rules != nil {
		rules.SetObserver(obs.Rules)
	}

	search := usecase.NewSearchUseCase(docs)
	if obs.Search != nil {
		search.SetObserver(obs.Search)
	}

	ingestUC := usecase.NewIngestDocumentUseCase(docs, storage, queue, usecase.IngestConfig{
		MaxUploadBytes:    cfg.MaxUploadBytes,
		AllowedExtensions: cfg.AllowedExtensions,
	})
	processUC := usecase.NewProcessDocumentUseCase(docs, storage, pipeline, rules, logger)
	documentsUC := usecase.NewDocumentQueryUseCase(docs, storage, logger)
	sweeper := usecase.NewStaleUploadSweeper(docs, queue, cfg.SweepStaleAfter, logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Queue:    queue,
		Docs:     docs,
		RulesDB:  rulesRepo,
		Pipeline: pipeline,

		IngestUC:    ingestUC,
		ProcessUC:   processUC,
		DocumentsUC: documentsUC,
		Rules:       rules,
		Search:      search,
		Sweeper:     sweeper,

		closeFn: func() {
			queue.Close()
			closeDB()
		},
	}, nil
}

func openRepositories(ctx context.Context, cfg config.Config) (ports.DocumentRepository, ports.RuleRepository, *sql.DB, error) {
	switch cfg.RepositoryDriver {
	case "memory":
		return memory.NewDocumentRepository(), memory.NewRuleRepository(), nil, nil
	case "postgres", "":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return postgres.NewDocumentRepository(db), postgres.NewRuleRepository(db), db, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown repository driver %q", cfg.RepositoryDriver)
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.Retry.MaxAttempts = cfg.RetryMaxAttempts
	rc.Retry.InitialBackoff = cfg.RetryInitialBackoff
	rc.Retry.MaxBackoff = cfg.RetryMaxBackoff
	rc.Breaker.Enabled = cfg.BreakerEnabled
	rc.Breaker.OpenTimeout = cfg.BreakerOpenTimeout
	return rc
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
