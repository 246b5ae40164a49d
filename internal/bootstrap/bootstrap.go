// Package bootstrap wires configuration, infrastructure adapters, and core
// components into a runnable worker.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docuflow/capture/internal/config"
	"github.com/docuflow/capture/internal/core/draft"
	"github.com/docuflow/capture/internal/core/flow"
	"github.com/docuflow/capture/internal/core/pipeline"
	"github.com/docuflow/capture/internal/core/ports"
	"github.com/docuflow/capture/internal/core/usecase"
	"github.com/docuflow/capture/internal/infrastructure/inspect"
	"github.com/docuflow/capture/internal/infrastructure/ocr/docuscan"
	"github.com/docuflow/capture/internal/infrastructure/optimizer/jpegopt"
	"github.com/docuflow/capture/internal/infrastructure/queue/nats"
	"github.com/docuflow/capture/internal/infrastructure/report/xlsx"
	"github.com/docuflow/capture/internal/infrastructure/repository/postgres"
	"github.com/docuflow/capture/internal/infrastructure/resilience"
	"github.com/docuflow/capture/internal/infrastructure/storage/localfs"
	"github.com/docuflow/capture/internal/infrastructure/validation"
	"github.com/docuflow/capture/internal/observability/logging"
	"github.com/docuflow/capture/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     *nats.Queue
	Flows     ports.Orchestrator
	Pipeline  ports.ImageProcessor
	Editor    *draft.Editor
	Journey   *usecase.CaptureJourneyUseCase
	Metrics   *metrics.PipelineMetrics
	Validator ports.DraftValidator
	Reports   *xlsx.Builder

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := logging.NewJSONLogger("capture-worker", cfg.LogLevel)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	flowRepo := postgres.NewFlowRepository(db)
	if err := flowRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init image storage: %w", err)
	}

	exec := resilience.NewExecutor(resilience.DefaultConfig())
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSCaptureSubject, cfg.NATSEventsSubject, nats.Options{
		ResilienceExecutor: exec,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	validator, err := validation.Load(cfg.ValidationRulesPath)
	if err != nil {
		return nil, fmt.Errorf("load validation rules: %w", err)
	}

	pipelineMetrics := metrics.NewPipelineMetrics("capture-worker")
	ocr := docuscan.New(cfg.DocuScanURL, cfg.DocuScanAPIKey)
	optimizer := jpegopt.New(jpegopt.Config{
		MaxDimension: cfg.OptimizerMaxDimension,
		Quality:      cfg.OptimizerQuality,
	})

	engine := pipeline.NewEngine(
		pipeline.Config{
			MaxFileBytes:   cfg.MaxFileBytes,
			AllowedFormats: cfg.AllowedFormats,
			ChunkBytes:     cfg.UploadChunkBytes,
			PollInterval:   cfg.PollInterval,
			PollTimeout:    cfg.PollTimeout,
		},
		storage,
		inspect.New(),
		optimizer,
		ocr,
		exec,
		pipelineMetrics,
		flow.SystemClock{},
		logger,
	)

	orchestrator := flow.New(
		flow.Config{
			MaxRetained:         cfg.FlowMaxRetained,
			CompleteRetention:   cfg.CompleteRetention,
			IncompleteRetention: cfg.IncompleteRetention,
		},
		flow.SystemClock{},
		flowRepo,
		queue,
		logger,
	)

	editor := draft.NewEditor(cfg.DraftHistoryDepth, flow.SystemClock{}, logger)
	journey := usecase.NewCaptureJourneyUseCase(orchestrator, engine, editor, validator, queue, logger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Queue:     queue,
		Flows:     orchestrator,
		Pipeline:  engine,
		Editor:    editor,
		Journey:   journey,
		Metrics:   pipelineMetrics,
		Validator: validator,
		Reports:   xlsx.NewBuilder(),

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
