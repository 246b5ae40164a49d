package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/docuflow/capture/internal/core/domain"
	"github.com/docuflow/capture/internal/core/ports"
	"github.com/docuflow/capture/internal/infrastructure/resilience"
	"github.com/docuflow/capture/internal/observability/metrics"
)

// Config bounds what the engine accepts and how it talks to the backend.
type Config struct {
	MaxFileBytes   int64
	AllowedFormats []string
	ChunkBytes     int
	PollInterval   time.Duration
	PollTimeout    time.Duration
	CancelTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxFileBytes:   10 << 20,
		AllowedFormats: []string{"jpeg", "png", "pdf"},
		ChunkBytes:     256 << 10,
		PollInterval:   time.Second,
		PollTimeout:    2 * time.Minute,
		CancelTimeout:  5 * time.Second,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()
	if out.MaxFileBytes <= 0 {
		out.MaxFileBytes = def.MaxFileBytes
	}
	if len(out.AllowedFormats) == 0 {
		out.AllowedFormats = def.AllowedFormats
	}
	if out.ChunkBytes <= 0 {
		out.ChunkBytes = def.ChunkBytes
	}
	if out.PollInterval <= 0 {
		out.PollInterval = def.PollInterval
	}
	if out.PollTimeout <= 0 {
		out.PollTimeout = def.PollTimeout
	}
	if out.CancelTimeout <= 0 {
		out.CancelTimeout = def.CancelTimeout
	}
	return out
}

// Engine drives one image through validation, optimization, upload, remote
// processing and finalization, reporting weighted progress. Execution is
// single-flight: a second concurrent run is rejected, not queued.
type Engine struct {
	cfg       Config
	images    ports.ImageStore
	inspector ports.ImageInspector
	optimizer ports.ImageOptimizer
	ocr       ports.OCRService
	exec      *resilience.Executor
	metrics   *metrics.PipelineMetrics
	clock     ports.Clock
	logger    *slog.Logger

	mu        sync.Mutex
	busy      bool
	cancelRun context.CancelFunc
	uploadID  string
	jobID     string
	lastPct   float64
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func NewEngine(
	cfg Config,
	images ports.ImageStore,
	inspector ports.ImageInspector,
	optimizer ports.ImageOptimizer,
	ocr ports.OCRService,
	exec *resilience.Executor,
	pm *metrics.PipelineMetrics,
	clock ports.Clock,
	logger *slog.Logger,
) *Engine {
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig())
	}
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:       cfg.normalize(),
		images:    images,
		inspector: inspector,
		optimizer: optimizer,
		ocr:       ocr,
		exec:      exec,
		metrics:   pm,
		clock:     clock,
		logger:    logger,
	}
}

// ProcessImage runs the full pipeline for one stored image. Every failure is
// normalized to a domain.PipelineError before it is returned; job and
// session handles and the single-flight lock are cleared regardless of
// outcome.
func (e *Engine) ProcessImage(ctx context.Context, imageRef string, onProgress ports.ProgressFunc, correlationID string) (*domain.ProcessingResult, error) {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return nil, domain.AlreadyProcessingError()
	}
	runCtx, cancel := context.WithCancel(domain.WithCorrelationID(ctx, correlationID))
	e.busy = true
	e.cancelRun = cancel
	e.lastPct = 0
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RunStarted()
	}
	started := e.clock.Now()

	defer func() {
		cancel()
		e.mu.Lock()
		e.busy = false
		e.cancelRun = nil
		e.uploadID = ""
		e.jobID = ""
		e.mu.Unlock()
	}()

	result, err := e.run(runCtx, imageRef, e.reporter(onProgress), correlationID)
	if err != nil {
		perr := domain.Normalize(err)
		if e.metrics != nil {
			e.metrics.RunFinished(string(perr.Code), e.clock.Now().Sub(started))
		}
		e.logger.Warn("pipeline_failed",
			"image_ref", imageRef,
			"correlation_id", correlationID,
			"code", perr.Code,
			"retryable", perr.Retryable,
			"error", perr,
		)
		return nil, perr
	}

	if e.metrics != nil {
		e.metrics.RunFinished("ok", e.clock.Now().Sub(started))
	}
	e.logger.Info("pipeline_completed",
		"image_ref", imageRef,
		"correlation_id", correlationID,
		"confidence", result.Confidence,
	)
	return result, nil
}

// reporter wraps the caller's callback, forcing reported percentages to be
// non-decreasing for the lifetime of one run.
func (e *Engine) reporter(onProgress ports.ProgressFunc) ports.ProgressFunc {
	return func(pct float64, stage, description string) {
		e.mu.Lock()
		if pct < e.lastPct {
			pct = e.lastPct
		} else {
			e.lastPct = pct
		}
		e.mu.Unlock()
		if onProgress != nil {
			onProgress(pct, stage, description)
		}
	}
}

func (e *Engine) run(ctx context.Context, imageRef string, report ports.ProgressFunc, correlationID string) (*domain.ProcessingResult, error) {
	data, info, err := e.validate(ctx, imageRef, report)
	if err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	optimized, err := e.optimize(ctx, data, info, report)
	if err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	if err := e.upload(ctx, imageRef, optimized.Data, info, report, correlationID); err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	if err := e.startProcessing(ctx, report); err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	remote, err := e.poll(ctx, report)
	if err != nil {
		return nil, err
	}

	return e.finalize(remote, optimized.Metrics, report)
}

func (e *Engine) validate(ctx context.Context, imageRef string, report ports.ProgressFunc) ([]byte, ports.ImageInfo, error) {
	report(stageProgress(StageValidation, 0), string(StageValidation), "validating capture")

	stat, err := e.images.Stat(ctx, imageRef)
	if err != nil {
		ve := domain.ValidationError(fmt.Sprintf("image %q not found", imageRef))
		ve.Err = err
		return nil, ports.ImageInfo{}, ve
	}
	if stat.SizeBytes == 0 {
		return nil, ports.ImageInfo{}, domain.ValidationError("image file is empty")
	}
	if stat.SizeBytes > e.cfg.MaxFileBytes {
		return nil, ports.ImageInfo{}, domain.ValidationError(
			fmt.Sprintf("image is %d bytes, limit is %d", stat.SizeBytes, e.cfg.MaxFileBytes))
	}

	reader, err := e.images.Open(ctx, imageRef)
	if err != nil {
		ve := domain.ValidationError("image could not be opened")
		ve.Err = err
		return nil, ports.ImageInfo{}, ve
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		ve := domain.ValidationError("image could not be read")
		ve.Err = err
		return nil, ports.ImageInfo{}, ve
	}

	info, err := e.inspector.Inspect(data, stat.Name)
	if err != nil {
		ve := domain.ValidationError("image format could not be determined")
		ve.Err = err
		return nil, ports.ImageInfo{}, ve
	}
	if !e.formatAllowed(info.Format) {
		return nil, ports.ImageInfo{}, domain.ValidationError(
			fmt.Sprintf("format %q is not supported (allowed: %s)", info.Format, strings.Join(e.cfg.AllowedFormats, ", ")))
	}
	if strings.EqualFold(info.Format, "pdf") && info.Pages > 1 {
		return nil, ports.ImageInfo{}, domain.ValidationError(
			fmt.Sprintf("pdf has %d pages, capture documents must be single-page", info.Pages))
	}

	report(stageProgress(StageValidation, 1), string(StageValidation), "capture validated")
	return data, info, nil
}

func (e *Engine) formatAllowed(format string) bool {
	for _, allowed := range e.cfg.AllowedFormats {
		if strings.EqualFold(allowed, format) {
			return true
		}
	}
	return false
}

func (e *Engine) optimize(ctx context.Context, data []byte, info ports.ImageInfo, report ports.ProgressFunc) (ports.OptimizedImage, error) {
	report(stageProgress(StageOptimization, 0), string(StageOptimization), "optimizing image")

	optimized, err := e.optimizer.Optimize(ctx, data, info)
	if err != nil {
		return ports.OptimizedImage{}, domain.ProcessingFailedError("optimize image", err)
	}

	report(stageProgress(StageOptimization, 1), string(StageOptimization), "image optimized")
	return optimized, nil
}

func (e *Engine) upload(ctx context.Context, imageRef string, data []byte, info ports.ImageInfo, report ports.ProgressFunc, correlationID string) error {
	report(stageProgress(StageUpload, 0), string(StageUpload), "creating upload session")

	var session ports.UploadSession
	err := e.networkCall(ctx, "create_upload_session", func(callCtx context.Context) error {
		var callErr error
		session, callErr = e.ocr.CreateUploadSession(callCtx, ports.UploadMeta{
			Filename:      imageRef,
			SizeBytes:     int64(len(data)),
			Format:        info.Format,
			CorrelationID: correlationID,
		})
		return callErr
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.uploadID = session.UploadID
	e.mu.Unlock()

	chunks := chunkCount(len(data), e.cfg.ChunkBytes)
	if session.MaxChunks > 0 && chunks > session.MaxChunks {
		return domain.ValidationError(
			fmt.Sprintf("payload needs %d chunks, session allows %d", chunks, session.MaxChunks))
	}

	for i := 0; i < chunks; i++ {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		start := i * e.cfg.ChunkBytes
		end := start + e.cfg.ChunkBytes
		if end > len(data) {
			end = len(data)
		}
		chunkIndex := i
		err := e.networkCall(ctx, "upload_chunk", func(callCtx context.Context) error {
			return e.ocr.UploadChunk(callCtx, session.UploadID, chunkIndex, data[start:end])
		})
		if err != nil {
			return err
		}
		report(
			stageProgress(StageUpload, float64(i+1)/float64(chunks)),
			string(StageUpload),
			fmt.Sprintf("uploaded chunk %d/%d", i+1, chunks),
		)
	}
	return nil
}

func chunkCount(size, chunkBytes int) int {
	if size == 0 {
		return 1
	}
	return (size + chunkBytes - 1) / chunkBytes
}

func (e *Engine) startProcessing(ctx context.Context, report ports.ProgressFunc) error {
	report(stageProgress(StageProcessingStart, 0), string(StageProcessingStart), "starting remote processing")

	e.mu.Lock()
	uploadID := e.uploadID
	e.mu.Unlock()

	var jobID string
	err := e.networkCall(ctx, "start_processing", func(callCtx context.Context) error {
		var callErr error
		jobID, callErr = e.ocr.StartProcessing(callCtx, uploadID)
		return callErr
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.jobID = jobID
	e.mu.Unlock()

	report(stageProgress(StageProcessingStart, 1), string(StageProcessingStart), "remote processing started")
	return nil
}

// poll watches the remote job until it completes, fails, or the wall-clock
// timeout elapses. Backend-reported progress is mapped into the remote
// processing band; the backend's stage name passes through so consumers can
// distinguish extraction from classification.
func (e *Engine) poll(ctx context.Context, report ports.ProgressFunc) (*ports.RemoteResult, error) {
	e.mu.Lock()
	jobID := e.jobID
	e.mu.Unlock()

	limiter := rate.NewLimiter(rate.Every(e.cfg.PollInterval), 1)
	deadline := e.clock.Now().Add(e.cfg.PollTimeout)

	for {
		if e.clock.Now().After(deadline) {
			if e.metrics != nil {
				e.metrics.PollTimedOut()
			}
			return nil, domain.TimeoutError("remote processing")
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, domain.Normalize(err)
		}

		var status ports.JobStatus
		err := e.networkCall(ctx, "get_job_status", func(callCtx context.Context) error {
			var callErr error
			status, callErr = e.ocr.GetJobStatus(callCtx, jobID)
			return callErr
		})
		if err != nil {
			return nil, err
		}

		switch status.State {
		case ports.JobCompleted:
			if status.Result == nil {
				return nil, domain.ProcessingFailedError("job completed without a result", nil)
			}
			report(stageProgress(StageRemoteProcessing, 1), string(StageRemoteProcessing), "remote processing complete")
			return status.Result, nil
		case ports.JobFailed:
			message := status.ErrorMessage
			if message == "" {
				message = "remote processing failed"
			}
			return nil, domain.ProcessingFailedError(message, nil)
		case ports.JobQueued, ports.JobProcessing:
			stage := status.Stage
			if stage == "" {
				stage = string(StageRemoteProcessing)
			}
			report(
				stageProgress(StageRemoteProcessing, status.Progress/100),
				stage,
				status.StageDescription,
			)
		default:
			return nil, domain.ProcessingFailedError(fmt.Sprintf("unknown job state %q", status.State), nil)
		}
	}
}

// finalize transforms the backend payload into the canonical processing
// result, defaulting any classification field the backend left empty.
func (e *Engine) finalize(remote *ports.RemoteResult, opt domain.OptimizationMetrics, report ports.ProgressFunc) (*domain.ProcessingResult, error) {
	report(stageProgress(StageFinalize, 0), string(StageFinalize), "building result")

	if remote.Text == "" && remote.Classification == (domain.DocumentClassification{}) {
		return nil, domain.ClassificationFailedError("backend returned an empty result", nil)
	}

	result := &domain.ProcessingResult{
		ExtractedText:  remote.Text,
		Classification: remote.Classification.Normalized(),
		Optimization:   opt,
		ProcessedAt:    e.clock.Now(),
		Confidence:     remote.Confidence,
	}

	report(stageProgress(StageFinalize, 1), string(StageFinalize), "complete")
	return result, nil
}

// CancelProcessing aborts the in-flight run and makes a best-effort attempt
// to cancel the remote job. It always succeeds locally; a failed remote
// cancel is logged, never surfaced.
func (e *Engine) CancelProcessing(ctx context.Context) {
	e.mu.Lock()
	cancel := e.cancelRun
	jobID := e.jobID
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if jobID == "" {
		return
	}

	cancelCtx, done := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CancelTimeout)
	defer done()
	if err := e.ocr.CancelJob(cancelCtx, jobID); err != nil {
		e.logger.Warn("remote_cancel_failed", "job_id", jobID, "error", err)
	}
}

// networkCall runs one backend call through the resilience executor and maps
// the outcome into the pipeline taxonomy.
func (e *Engine) networkCall(ctx context.Context, operation string, fn func(context.Context) error) error {
	err := e.exec.Execute(ctx, operation, fn, classifyBackendError)
	if err == nil {
		return nil
	}
	if perr := asPipelineError(err); perr != nil {
		return perr
	}
	if ctx.Err() != nil {
		return domain.Normalize(ctx.Err())
	}
	return domain.NetworkError(operation, err)
}

func asPipelineError(err error) *domain.PipelineError {
	perr := domain.Normalize(err)
	if perr.Code == domain.CodeUnknown {
		return nil
	}
	return perr
}

func classifyBackendError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	code := domain.CodeOf(err)
	if code == domain.CodeCancelled {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ErrorClassification{
		Retryable:     domain.IsRetryable(err),
		RecordFailure: true,
	}
}

func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return domain.Normalize(err)
	}
	return nil
}
