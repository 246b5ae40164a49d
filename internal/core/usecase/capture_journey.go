package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docuflow/capture/internal/core/attempt"
	"github.com/docuflow/capture/internal/core/domain"
	"github.com/docuflow/capture/internal/core/draft"
	"github.com/docuflow/capture/internal/core/ports"
)

// CaptureJourneyUseCase drives one capture request from flow creation
// through processing to a validated draft awaiting review.
type CaptureJourneyUseCase struct {
	flows     ports.Orchestrator
	processor ports.ImageProcessor
	editor    *draft.Editor
	validator ports.DraftValidator
	events    ports.FlowEventPublisher
	logger    *slog.Logger
}

func NewCaptureJourneyUseCase(
	flows ports.Orchestrator,
	processor ports.ImageProcessor,
	editor *draft.Editor,
	validator ports.DraftValidator,
	events ports.FlowEventPublisher,
	logger *slog.Logger,
) *CaptureJourneyUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &CaptureJourneyUseCase{
		flows:     flows,
		processor: processor,
		editor:    editor,
		validator: validator,
		events:    events,
		logger:    logger,
	}
}

// Run executes a capture journey. On success the flow is parked at the
// review step with an initialized, validated draft; on failure the error is
// recorded on the flow and a failure event is emitted.
func (uc *CaptureJourneyUseCase) Run(ctx context.Context, request ports.CaptureRequest) error {
	flow, err := uc.flows.CreateFlow(ctx, request.ImageRef, request.CorrelationID)
	if err != nil {
		return fmt.Errorf("create flow: %w", err)
	}

	machine := attempt.NewMachine(uc.logger)
	if err := machine.StartCapture("queue"); err != nil {
		return fmt.Errorf("start attempt: %w", err)
	}

	result, err := uc.processor.ProcessImage(ctx, request.ImageRef, func(pct float64, stage, description string) {
		machine.HandleProgress(pct, stage, description)
	}, flow.CorrelationID)
	if err != nil {
		machine.Fail(err)
		uc.flows.RecordError(ctx, "pipeline", err)
		uc.publish(ctx, ports.EventFlowFailed, flow)
		return fmt.Errorf("process image: %w", err)
	}

	if err := machine.SetResult(result); err != nil {
		return fmt.Errorf("accept result: %w", err)
	}
	if err := uc.flows.SetResult(ctx, result); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	if err := uc.flows.AdvanceStep(ctx, domain.StepReview, domain.ReasonAutoAdvance); err != nil {
		return fmt.Errorf("advance to review: %w", err)
	}

	working, err := uc.editor.Initialize(result)
	if err != nil {
		return fmt.Errorf("initialize draft: %w", err)
	}
	if uc.validator != nil {
		findings := uc.validator.Validate(working.Fields)
		if err := uc.editor.SetFormFindings(findings); err != nil {
			return fmt.Errorf("apply validation findings: %w", err)
		}
	}
	working, err = uc.editor.Draft()
	if err != nil {
		return fmt.Errorf("read draft: %w", err)
	}
	if err := uc.flows.SetDraft(ctx, working); err != nil {
		return fmt.Errorf("store draft: %w", err)
	}

	uc.publish(ctx, ports.EventFlowAwaitingReview, flow)
	uc.logger.Info("journey_awaiting_review",
		"flow_id", flow.ID,
		"image_ref", request.ImageRef,
		"attempt_progress", machine.Progress(),
	)
	return nil
}

func (uc *CaptureJourneyUseCase) publish(ctx context.Context, eventType string, flow *domain.Flow) {
	if uc.events == nil {
		return
	}
	event := ports.FlowEvent{
		Type:          eventType,
		FlowID:        flow.ID,
		Step:          flow.CurrentStep,
		CorrelationID: flow.CorrelationID,
	}
	if err := uc.events.PublishFlowEvent(ctx, event); err != nil {
		uc.logger.Warn("journey_event_publish_failed",
			"flow_id", flow.ID,
			"event_type", eventType,
			"error", err,
		)
	}
}
