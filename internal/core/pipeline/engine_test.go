package pipeline

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/docuflow/capture/internal/core/domain"
	"github.com/docuflow/capture/internal/core/ports"
	"github.com/docuflow/capture/internal/infrastructure/resilience"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeStore struct {
	files map[string][]byte
}

func (s *fakeStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	data, ok := s.files[ref]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) Stat(_ context.Context, ref string) (ports.FileInfo, error) {
	data, ok := s.files[ref]
	if !ok {
		return ports.FileInfo{}, io.ErrUnexpectedEOF
	}
	return ports.FileInfo{Name: ref, SizeBytes: int64(len(data))}, nil
}

type fakeInspector struct {
	info ports.ImageInfo
	err  error
}

func (i *fakeInspector) Inspect([]byte, string) (ports.ImageInfo, error) {
	return i.info, i.err
}

type fakeOptimizer struct{}

func (fakeOptimizer) Optimize(_ context.Context, data []byte, _ ports.ImageInfo) (ports.OptimizedImage, error) {
	return ports.OptimizedImage{
		Data: data,
		Metrics: domain.OptimizationMetrics{
			OriginalBytes:  int64(len(data)),
			OptimizedBytes: int64(len(data)),
		},
	}, nil
}

type fakeOCR struct {
	mu            sync.Mutex
	chunks        []int
	statusCalls   int
	cancelledJobs []string

	session   ports.UploadSession
	uploadErr error
	onStatus  func(call int) (ports.JobStatus, error)
}

func (o *fakeOCR) CreateUploadSession(context.Context, ports.UploadMeta) (ports.UploadSession, error) {
	if o.session.UploadID == "" {
		o.session = ports.UploadSession{UploadID: "up-1", MaxChunks: 1000}
	}
	return o.session, nil
}

func (o *fakeOCR) UploadChunk(_ context.Context, _ string, chunkIndex int, _ []byte) error {
	if o.uploadErr != nil {
		return o.uploadErr
	}
	o.mu.Lock()
	o.chunks = append(o.chunks, chunkIndex)
	o.mu.Unlock()
	return nil
}

func (o *fakeOCR) StartProcessing(context.Context, string) (string, error) {
	return "job-1", nil
}

func (o *fakeOCR) GetJobStatus(context.Context, string) (ports.JobStatus, error) {
	o.mu.Lock()
	o.statusCalls++
	call := o.statusCalls
	o.mu.Unlock()
	return o.onStatus(call)
}

func (o *fakeOCR) CancelJob(_ context.Context, jobID string) error {
	o.mu.Lock()
	o.cancelledJobs = append(o.cancelledJobs, jobID)
	o.mu.Unlock()
	return nil
}

type progressLog struct {
	mu      sync.Mutex
	pcts    []float64
	stages  []string
	entries int
}

func (p *progressLog) record(pct float64, stage, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pcts = append(p.pcts, pct)
	p.stages = append(p.stages, stage)
	p.entries++
}

func (p *progressLog) assertNonDecreasing(t *testing.T) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 1; i < len(p.pcts); i++ {
		if p.pcts[i] < p.pcts[i-1] {
			t.Fatalf("progress regressed at %d: %v", i, p.pcts)
		}
	}
}

func completedStatus() ports.JobStatus {
	return ports.JobStatus{
		State: ports.JobCompleted,
		Result: &ports.RemoteResult{
			Text: "TOTAL 12.50",
			Classification: domain.DocumentClassification{
				Date:   "2026-03-01",
				Amount: "12.50",
				Vendor: "Cafe Rosa",
			},
			Confidence: 0.9,
		},
	}
}

func testEngine(store *fakeStore, ocr *fakeOCR, clock ports.Clock) *Engine {
	exec := resilience.NewExecutor(resilience.Config{
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
		BreakerEnabled: false,
	})
	return NewEngine(
		Config{
			MaxFileBytes:   1 << 20,
			AllowedFormats: []string{"jpeg", "png", "pdf"},
			ChunkBytes:     4,
			PollInterval:   time.Millisecond,
			PollTimeout:    time.Minute,
		},
		store,
		&fakeInspector{info: ports.ImageInfo{Format: "jpeg", Width: 100, Height: 80, Pages: 1}},
		fakeOptimizer{},
		ocr,
		exec,
		nil,
		clock,
		nil,
	)
}

func TestProcessImageHappyPath(t *testing.T) {
	store := &fakeStore{files: map[string][]byte{"receipt.jpg": []byte("0123456789")}}
	ocr := &fakeOCR{onStatus: func(call int) (ports.JobStatus, error) {
		if call == 1 {
			return ports.JobStatus{State: ports.JobProcessing, Progress: 50, Stage: "ocr", StageDescription: "Reading text"}, nil
		}
		return completedStatus(), nil
	}}
	engine := testEngine(store, ocr, newFakeClock())
	progress := &progressLog{}

	result, err := engine.ProcessImage(context.Background(), "receipt.jpg", progress.record, "corr-1")
	if err != nil {
		t.Fatalf("ProcessImage() error = %v", err)
	}
	if result.ExtractedText != "TOTAL 12.50" {
		t.Fatalf("unexpected text: %q", result.ExtractedText)
	}
	if result.Classification.Category != "uncategorized" {
		t.Fatalf("empty category must be defaulted, got %q", result.Classification.Category)
	}
	if result.Classification.Vendor != "Cafe Rosa" {
		t.Fatalf("unexpected vendor: %q", result.Classification.Vendor)
	}

	// 10 bytes in 4-byte chunks.
	if len(ocr.chunks) != 3 {
		t.Fatalf("expected 3 chunks uploaded, got %v", ocr.chunks)
	}

	progress.assertNonDecreasing(t)
	if progress.pcts[len(progress.pcts)-1] != 100 {
		t.Fatalf("expected final progress 100, got %v", progress.pcts[len(progress.pcts)-1])
	}
	foundBackendStage := false
	for _, stage := range progress.stages {
		if stage == "ocr" {
			foundBackendStage = true
		}
	}
	if !foundBackendStage {
		t.Fatalf("backend stage name must pass through, got %v", progress.stages)
	}
}

func TestProcessImageRejectsConcurrentRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	store := &fakeStore{files: map[string][]byte{"receipt.jpg": []byte("0123")}}
	ocr := &fakeOCR{onStatus: func(call int) (ports.JobStatus, error) {
		if call == 1 {
			close(started)
			<-release
		}
		return completedStatus(), nil
	}}
	engine := testEngine(store, ocr, newFakeClock())

	done := make(chan error, 1)
	go func() {
		_, err := engine.ProcessImage(context.Background(), "receipt.jpg", nil, "")
		done <- err
	}()
	<-started

	_, err := engine.ProcessImage(context.Background(), "receipt.jpg", nil, "")
	if domain.CodeOf(err) != domain.CodeAlreadyProcessing {
		t.Fatalf("expected ALREADY_PROCESSING, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// The slot is free again once the first run finishes.
	if _, err := engine.ProcessImage(context.Background(), "receipt.jpg", nil, ""); err != nil {
		t.Fatalf("expected slot released, got %v", err)
	}
}

func TestProcessImageValidationFailures(t *testing.T) {
	store := &fakeStore{files: map[string][]byte{
		"big.jpg":   bytes.Repeat([]byte("x"), 2<<20),
		"empty.jpg": {},
	}}
	engine := testEngine(store, &fakeOCR{}, newFakeClock())

	_, err := engine.ProcessImage(context.Background(), "big.jpg", nil, "")
	if domain.CodeOf(err) != domain.CodeValidation || domain.IsRetryable(err) {
		t.Fatalf("expected non-retryable VALIDATION for oversize, got %v", err)
	}

	_, err = engine.ProcessImage(context.Background(), "empty.jpg", nil, "")
	if domain.CodeOf(err) != domain.CodeValidation {
		t.Fatalf("expected VALIDATION for empty file, got %v", err)
	}

	_, err = engine.ProcessImage(context.Background(), "missing.jpg", nil, "")
	if domain.CodeOf(err) != domain.CodeValidation {
		t.Fatalf("expected VALIDATION for missing file, got %v", err)
	}
}

func TestProcessImageRejectsDisallowedFormat(t *testing.T) {
	store := &fakeStore{files: map[string][]byte{"scan.tiff": []byte("0123")}}
	exec := resilience.NewExecutor(resilience.Config{MaxAttempts: 1, BreakerEnabled: false})
	engine := NewEngine(
		Config{AllowedFormats: []string{"jpeg"}, PollInterval: time.Millisecond},
		store,
		&fakeInspector{info: ports.ImageInfo{Format: "tiff"}},
		fakeOptimizer{},
		&fakeOCR{},
		exec,
		nil,
		newFakeClock(),
		nil,
	)

	_, err := engine.ProcessImage(context.Background(), "scan.tiff", nil, "")
	if domain.CodeOf(err) != domain.CodeValidation {
		t.Fatalf("expected VALIDATION for format, got %v", err)
	}
}

func TestProcessImageRejectsMultiPagePDF(t *testing.T) {
	store := &fakeStore{files: map[string][]byte{"scan.pdf": []byte("%PDF-1.7 payload")}}
	exec := resilience.NewExecutor(resilience.Config{MaxAttempts: 1, BreakerEnabled: false})
	ocr := &fakeOCR{}
	engine := NewEngine(
		Config{AllowedFormats: []string{"jpeg", "pdf"}, PollInterval: time.Millisecond},
		store,
		&fakeInspector{info: ports.ImageInfo{Format: "pdf", Pages: 3}},
		fakeOptimizer{},
		ocr,
		exec,
		nil,
		newFakeClock(),
		nil,
	)

	_, err := engine.ProcessImage(context.Background(), "scan.pdf", nil, "")
	if domain.CodeOf(err) != domain.CodeValidation || domain.IsRetryable(err) {
		t.Fatalf("expected non-retryable VALIDATION for multi-page pdf, got %v", err)
	}
	if len(ocr.chunks) != 0 {
		t.Fatalf("rejected pdf must never reach upload, got chunks %v", ocr.chunks)
	}
}

func TestNewEngineDefaultsNilClock(t *testing.T) {
	store := &fakeStore{files: map[string][]byte{"receipt.jpg": []byte("0123")}}
	ocr := &fakeOCR{onStatus: func(int) (ports.JobStatus, error) {
		return completedStatus(), nil
	}}
	engine := testEngine(store, ocr, nil)

	if _, err := engine.ProcessImage(context.Background(), "receipt.jpg", nil, ""); err != nil {
		t.Fatalf("ProcessImage() with defaulted clock error = %v", err)
	}
}

func TestProcessImageRemoteFailure(t *testing.T) {
	store := &fakeStore{files: map[string][]byte{"receipt.jpg": []byte("0123")}}
	ocr := &fakeOCR{onStatus: func(int) (ports.JobStatus, error) {
		return ports.JobStatus{State: ports.JobFailed, ErrorMessage: "blurry image"}, nil
	}}
	engine := testEngine(store, ocr, newFakeClock())

	_, err := engine.ProcessImage(context.Background(), "receipt.jpg", nil, "")
	if domain.CodeOf(err) != domain.CodeProcessingFailed {
		t.Fatalf("expected PROCESSING_FAILED, got %v", err)
	}
	if !domain.IsRetryable(err) {
		t.Fatalf("remote failure must be retryable")
	}
}

func TestProcessImagePollTimeout(t *testing.T) {
	clock := newFakeClock()
	store := &fakeStore{files: map[string][]byte{"receipt.jpg": []byte("0123")}}
	ocr := &fakeOCR{onStatus: func(int) (ports.JobStatus, error) {
		clock.Advance(2 * time.Minute)
		return ports.JobStatus{State: ports.JobProcessing, Progress: 10}, nil
	}}
	engine := testEngine(store, ocr, clock)

	_, err := engine.ProcessImage(context.Background(), "receipt.jpg", nil, "")
	if domain.CodeOf(err) != domain.CodeTimeout {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if !domain.IsRetryable(err) {
		t.Fatalf("poll timeout must be retryable")
	}
}

func TestCancelProcessingAbortsRunAndCancelsRemoteJob(t *testing.T) {
	store := &fakeStore{files: map[string][]byte{"receipt.jpg": []byte("0123")}}
	var engine *Engine
	ocr := &fakeOCR{}
	ocr.onStatus = func(call int) (ports.JobStatus, error) {
		if call == 1 {
			engine.CancelProcessing(context.Background())
		}
		return ports.JobStatus{State: ports.JobProcessing, Progress: 10}, nil
	}
	engine = testEngine(store, ocr, newFakeClock())

	_, err := engine.ProcessImage(context.Background(), "receipt.jpg", nil, "")
	if domain.CodeOf(err) != domain.CodeCancelled {
		t.Fatalf("expected CANCELLED, got %v", err)
	}
	if domain.IsRetryable(err) {
		t.Fatalf("cancellation must not be retryable")
	}

	ocr.mu.Lock()
	defer ocr.mu.Unlock()
	if len(ocr.cancelledJobs) != 1 || ocr.cancelledJobs[0] != "job-1" {
		t.Fatalf("expected remote cancel for job-1, got %v", ocr.cancelledJobs)
	}
}

func TestProcessImageEmptyRemoteResult(t *testing.T) {
	store := &fakeStore{files: map[string][]byte{"receipt.jpg": []byte("0123")}}
	ocr := &fakeOCR{onStatus: func(int) (ports.JobStatus, error) {
		return ports.JobStatus{State: ports.JobCompleted, Result: &ports.RemoteResult{}}, nil
	}}
	engine := testEngine(store, ocr, newFakeClock())

	_, err := engine.ProcessImage(context.Background(), "receipt.jpg", nil, "")
	if domain.CodeOf(err) != domain.CodeClassificationFailed {
		t.Fatalf("expected CLASSIFICATION_FAILED, got %v", err)
	}
}
