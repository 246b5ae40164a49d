package ports

import (
	"context"

	"github.com/docuflow/capture/internal/core/domain"
)

// Orchestrator is the inbound contract for journey state. It is the single
// authority for which step the active flow is allowed to be on.
type Orchestrator interface {
	CreateFlow(ctx context.Context, imageRef, correlationID string) (*domain.Flow, error)
	AdvanceStep(ctx context.Context, step domain.Step, reason domain.TransitionReason) error
	CanNavigateTo(step domain.Step) bool
	RecordError(ctx context.Context, stage string, err error)
	SetResult(ctx context.Context, result *domain.ProcessingResult) error
	SetDraft(ctx context.Context, draft *domain.Draft) error
	CompleteFlow(ctx context.Context) (*domain.Flow, error)
	CancelFlow(ctx context.Context)
	GetFlow(id string) (*domain.Flow, error)
	ActiveFlow() (*domain.Flow, bool)
	Cleanup(ctx context.Context)
}

// ProgressFunc receives weighted pipeline progress on a 0-100 scale.
// Callbacks for one attempt fire in non-decreasing percentage order.
type ProgressFunc func(pct float64, stage, description string)

// ImageProcessor drives one image through the staged extraction pipeline.
// Execution is single-flight: a concurrent call fails fast with
// ALREADY_PROCESSING rather than queueing.
type ImageProcessor interface {
	ProcessImage(ctx context.Context, imageRef string, onProgress ProgressFunc, correlationID string) (*domain.ProcessingResult, error)
	CancelProcessing(ctx context.Context)
}
