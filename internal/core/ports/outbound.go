package ports

import (
	"context"
	"io"
	"time"

	"github.com/docuflow/capture/internal/core/domain"
)

// UploadMeta describes the payload an upload session is sized for.
type UploadMeta struct {
	Filename      string
	SizeBytes     int64
	Format        string
	CorrelationID string
}

// UploadSession is the handle returned when an upload session is created.
type UploadSession struct {
	UploadID  string
	MaxChunks int
}

// JobState is the remote job lifecycle state.
type JobState string

const (
	JobQueued     JobState = "queued"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// JobStatus is one poll response from the remote service.
type JobStatus struct {
	State            JobState
	Progress         float64
	Stage            string
	StageDescription string
	Result           *RemoteResult
	ErrorMessage     string
}

// RemoteResult is the backend's raw extraction/classification payload before
// it is transformed into a domain.ProcessingResult.
type RemoteResult struct {
	Text           string
	Classification domain.DocumentClassification
	Confidence     float64
}

// OCRService is the remote optical-extraction and classification
// collaborator. All calls are idempotent on retry except UploadChunk, which
// must only be retried with the same chunk index.
type OCRService interface {
	CreateUploadSession(ctx context.Context, meta UploadMeta) (UploadSession, error)
	UploadChunk(ctx context.Context, uploadID string, chunkIndex int, data []byte) error
	StartProcessing(ctx context.Context, uploadID string) (string, error)
	GetJobStatus(ctx context.Context, jobID string) (JobStatus, error)
	CancelJob(ctx context.Context, jobID string) error
}

// FileInfo describes a stored capture image.
type FileInfo struct {
	Name      string
	SizeBytes int64
}

// ImageStore reads captured source images by opaque ref.
type ImageStore interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Stat(ctx context.Context, ref string) (FileInfo, error)
}

// ImageInfo is what inspection learned about a capture payload.
type ImageInfo struct {
	Format string
	Width  int
	Height int
	Pages  int
}

// ImageInspector sniffs and validates a capture payload.
type ImageInspector interface {
	Inspect(data []byte, filename string) (ImageInfo, error)
}

// OptimizedImage is the optimization stage output.
type OptimizedImage struct {
	Data    []byte
	Metrics domain.OptimizationMetrics
}

// ImageOptimizer re-encodes a capture image for extraction quality.
type ImageOptimizer interface {
	Optimize(ctx context.Context, data []byte, info ImageInfo) (OptimizedImage, error)
}

// FlowSnapshotStore persists and rehydrates the retained flow set.
type FlowSnapshotStore interface {
	Load(ctx context.Context) (*domain.FlowSnapshot, error)
	Save(ctx context.Context, snapshot *domain.FlowSnapshot) error
}

// Flow lifecycle event types.
const (
	EventFlowCompleted      = "flow.completed"
	EventFlowCancelled      = "flow.cancelled"
	EventFlowFailed         = "flow.failed"
	EventFlowAwaitingReview = "flow.awaiting_review"
)

// FlowEvent is a best-effort lifecycle notification.
type FlowEvent struct {
	Type          string      `json:"type"`
	FlowID        string      `json:"flow_id"`
	Step          domain.Step `json:"step"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// CaptureRequest asks the worker to run a journey for a stored image.
type CaptureRequest struct {
	ImageRef      string `json:"image_ref"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// FlowEventPublisher emits best-effort flow lifecycle events.
type FlowEventPublisher interface {
	PublishFlowEvent(ctx context.Context, event FlowEvent) error
}

// CaptureQueue publishes flow events and consumes capture requests.
type CaptureQueue interface {
	FlowEventPublisher
	SubscribeCaptureRequested(ctx context.Context, handler func(context.Context, CaptureRequest) error) error
}

// DraftValidator checks draft fields against review policy.
type DraftValidator interface {
	Validate(fields map[string]string) map[string][]domain.FieldError
}

// Clock supplies time so journey timing is testable.
type Clock interface {
	Now() time.Time
}
