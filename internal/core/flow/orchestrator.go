package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/capture/internal/core/domain"
	"github.com/docuflow/capture/internal/core/ports"
)

// Config bounds how many flows are retained and for how long.
type Config struct {
	MaxRetained         int
	CompleteRetention   time.Duration
	IncompleteRetention time.Duration
	SnapshotTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetained:         10,
		CompleteRetention:   24 * time.Hour,
		IncompleteRetention: time.Hour,
		SnapshotTimeout:     5 * time.Second,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()
	if out.MaxRetained <= 0 {
		out.MaxRetained = def.MaxRetained
	}
	if out.CompleteRetention <= 0 {
		out.CompleteRetention = def.CompleteRetention
	}
	if out.IncompleteRetention <= 0 {
		out.IncompleteRetention = def.IncompleteRetention
	}
	if out.SnapshotTimeout <= 0 {
		out.SnapshotTimeout = def.SnapshotTimeout
	}
	return out
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Orchestrator owns the retained flow set and the active-flow slot. All
// mutation goes through its operations; callers only ever see clones.
type Orchestrator struct {
	cfg    Config
	clock  ports.Clock
	store  ports.FlowSnapshotStore
	events ports.FlowEventPublisher
	logger *slog.Logger

	mu         sync.Mutex
	flows      map[string]*domain.Flow
	activeID   string
	hasActive  bool
	lastStepAt time.Time
}

// New builds an orchestrator and rehydrates the persisted snapshot when a
// store is supplied. An active incomplete flow found in the snapshot is
// demoted to history: its session no longer exists, so it is recorded as an
// error-recovery abandonment rather than silently resumed.
func New(cfg Config, clock ports.Clock, store ports.FlowSnapshotStore, events ports.FlowEventPublisher, logger *slog.Logger) *Orchestrator {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		cfg:    cfg.normalize(),
		clock:  clock,
		store:  store,
		events: events,
		logger: logger,
		flows:  make(map[string]*domain.Flow),
	}
	o.rehydrate()
	return o
}

func (o *Orchestrator) rehydrate() {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.SnapshotTimeout)
	defer cancel()

	snapshot, err := o.store.Load(ctx)
	if err != nil {
		o.logger.Warn("snapshot_load_failed", "error", err)
		return
	}
	if snapshot == nil {
		return
	}
	for id, f := range snapshot.Flows {
		if f == nil {
			continue
		}
		o.flows[id] = f.Clone()
	}
	if !snapshot.HasActiveFlow {
		return
	}
	if restored, ok := o.flows[snapshot.ActiveFlowID]; ok && !restored.IsComplete {
		now := o.clock.Now()
		step := restored.CurrentStep
		restored.Metrics.AbandonedAt = &step
		restored.Metrics.TotalDuration = now.Sub(restored.CreatedAt)
		record := domain.NewErrorRecord(step, "", domain.CancelledError(), now)
		restored.ErrorHistory = append(restored.ErrorHistory, record)
		restored.LastError = &record
		o.logger.Info("flow_demoted_on_restart", "flow_id", restored.ID, "step", step)
	}
}

// CreateFlow allocates a new flow at the capture step, immediately advances
// it to processing, and makes it the active flow. An existing active flow is
// cancelled first; at most one flow owns the active slot.
func (o *Orchestrator) CreateFlow(ctx context.Context, imageRef, correlationID string) (*domain.Flow, error) {
	if imageRef == "" {
		return nil, domain.ValidationError("image reference is required")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.hasActive {
		o.cancelActiveLocked(ctx)
	}

	now := o.clock.Now()
	f := &domain.Flow{
		ID:            newFlowID(now),
		ImageRef:      imageRef,
		CorrelationID: correlationID,
		CurrentStep:   domain.StepCapture,
		CreatedAt:     now,
		StepHistory:   []domain.Step{domain.StepCapture},
		Metrics: domain.FlowMetrics{
			StepDurations: make(map[domain.Step]time.Duration),
		},
	}
	o.flows[f.ID] = f
	o.activeID = f.ID
	o.hasActive = true
	o.lastStepAt = now

	o.advanceLocked(f, domain.StepProcessing, domain.ReasonAutoAdvance)
	o.cleanupLocked(now)
	o.persistLocked()

	o.logger.Info("flow_created", "flow_id", f.ID, "image_ref", imageRef, "correlation_id", correlationID)
	return f.Clone(), nil
}

// newFlowID derives an id from creation time plus randomness so ids sort by
// recency and never collide.
func newFlowID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

// AdvanceStep moves the active flow to step if the navigation guard permits
// it, logging the transition and closing out the previous step's duration.
func (o *Orchestrator) AdvanceStep(ctx context.Context, step domain.Step, reason domain.TransitionReason) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, ok := o.activeLocked()
	if !ok {
		return domain.ErrNoActiveFlow
	}
	if !canNavigateTo(f, step) {
		return domain.ValidationError(fmt.Sprintf("cannot navigate to step %q from %q", step, f.CurrentStep))
	}

	o.advanceLocked(f, step, reason)
	o.persistLocked()
	return nil
}

func (o *Orchestrator) advanceLocked(f *domain.Flow, step domain.Step, reason domain.TransitionReason) {
	now := o.clock.Now()
	f.Metrics.StepDurations[f.CurrentStep] += now.Sub(o.lastStepAt)

	if !f.HasVisited(step) {
		f.StepHistory = append(f.StepHistory, step)
	}
	f.Transitions = append(f.Transitions, domain.StepTransition{
		From:      f.CurrentStep,
		To:        step,
		Reason:    reason,
		Timestamp: now,
	})
	if reason == domain.ReasonRetry {
		f.Metrics.RetryCount++
	}
	f.CurrentStep = step
	o.lastStepAt = now
}

// CanNavigateTo evaluates the navigation guard against the active flow.
func (o *Orchestrator) CanNavigateTo(step domain.Step) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, ok := o.activeLocked()
	if !ok {
		return step == domain.StepCapture
	}
	return canNavigateTo(f, step)
}

// canNavigateTo checks the data each step requires to be present on the flow.
func canNavigateTo(f *domain.Flow, step domain.Step) bool {
	switch step {
	case domain.StepCapture:
		return true
	case domain.StepProcessing:
		return f.ImageRef != ""
	case domain.StepReview, domain.StepVerification:
		return f.ImageRef != "" && f.Result != nil
	case domain.StepReport:
		return f.ImageRef != "" && f.Draft != nil
	default:
		return false
	}
}

// RecordError appends to the active flow's error history. It never fails:
// with no active flow the error is only logged, so teardown paths can call
// it unconditionally.
func (o *Orchestrator) RecordError(ctx context.Context, stage string, err error) {
	if err == nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	f, ok := o.activeLocked()
	if !ok {
		o.logger.Warn("error_without_active_flow", "stage", stage, "error", err)
		return
	}

	record := domain.NewErrorRecord(f.CurrentStep, stage, err, o.clock.Now())
	f.ErrorHistory = append(f.ErrorHistory, record)
	f.LastError = &record
	f.Metrics.ErrorCount++

	o.logger.Warn("flow_error_recorded",
		"flow_id", f.ID,
		"step", f.CurrentStep,
		"stage", stage,
		"code", record.Code,
		"retryable", record.Retryable,
	)
	o.persistLocked()
}

// SetResult attaches the immutable processing result to the active flow.
func (o *Orchestrator) SetResult(ctx context.Context, result *domain.ProcessingResult) error {
	if result == nil {
		return domain.ValidationError("processing result is required")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	f, ok := o.activeLocked()
	if !ok {
		return domain.ErrNoActiveFlow
	}
	f.Result = result.Clone()
	o.persistLocked()
	return nil
}

// SetDraft stores the current editable draft on the active flow.
func (o *Orchestrator) SetDraft(ctx context.Context, draft *domain.Draft) error {
	if draft == nil {
		return domain.ValidationError("draft is required")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	f, ok := o.activeLocked()
	if !ok {
		return domain.ErrNoActiveFlow
	}
	f.Draft = draft.Clone()
	o.persistLocked()
	return nil
}

// CompleteFlow finalizes the active flow. It requires the draft (the final
// payload) to be present, marks the flow complete, and releases the active
// slot; the flow stays in history.
func (o *Orchestrator) CompleteFlow(ctx context.Context) (*domain.Flow, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, ok := o.activeLocked()
	if !ok {
		return nil, domain.ErrNoActiveFlow
	}
	if f.Draft == nil {
		return nil, domain.WrapError(domain.ErrDraftNotInitialized, "complete flow", fmt.Errorf("flow %s has no draft", f.ID))
	}

	now := o.clock.Now()
	f.Metrics.StepDurations[f.CurrentStep] += now.Sub(o.lastStepAt)
	f.IsComplete = true
	f.Metrics.CompletionRate = 1
	f.Metrics.TotalDuration = now.Sub(f.CreatedAt)
	o.activeID = ""
	o.hasActive = false

	o.publishLocked(ctx, ports.EventFlowCompleted, f)
	o.persistLocked()
	o.logger.Info("flow_completed", "flow_id", f.ID, "total_duration", f.Metrics.TotalDuration)
	return f.Clone(), nil
}

// CancelFlow abandons the active flow, recording the step it was abandoned
// at. Calling it with no active flow is a no-op.
func (o *Orchestrator) CancelFlow(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.hasActive {
		return
	}
	o.cancelActiveLocked(ctx)
	o.persistLocked()
}

func (o *Orchestrator) cancelActiveLocked(ctx context.Context) {
	f, ok := o.activeLocked()
	if !ok {
		o.activeID = ""
		o.hasActive = false
		return
	}

	now := o.clock.Now()
	step := f.CurrentStep
	f.Metrics.StepDurations[step] += now.Sub(o.lastStepAt)
	f.Metrics.AbandonedAt = &step
	f.Metrics.TotalDuration = now.Sub(f.CreatedAt)
	o.activeID = ""
	o.hasActive = false

	o.publishLocked(ctx, ports.EventFlowCancelled, f)
	o.logger.Info("flow_cancelled", "flow_id", f.ID, "abandoned_at", step)
}

// GetFlow looks up a retained flow, active or historical.
func (o *Orchestrator) GetFlow(id string) (*domain.Flow, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, ok := o.flows[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrFlowNotFound, "get flow", fmt.Errorf("id %q", id))
	}
	return f.Clone(), nil
}

// ActiveFlow returns a clone of the flow owning the active slot, if any.
func (o *Orchestrator) ActiveFlow() (*domain.Flow, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, ok := o.activeLocked()
	if !ok {
		return nil, false
	}
	return f.Clone(), true
}

func (o *Orchestrator) activeLocked() (*domain.Flow, bool) {
	if !o.hasActive {
		return nil, false
	}
	f, ok := o.flows[o.activeID]
	return f, ok
}

func (o *Orchestrator) publishLocked(ctx context.Context, eventType string, f *domain.Flow) {
	if o.events == nil {
		return
	}
	event := ports.FlowEvent{
		Type:          eventType,
		FlowID:        f.ID,
		Step:          f.CurrentStep,
		CorrelationID: f.CorrelationID,
	}
	if err := o.events.PublishFlowEvent(ctx, event); err != nil {
		o.logger.Warn("flow_event_publish_failed", "type", eventType, "flow_id", f.ID, "error", err)
	}
}

// persistLocked snapshots the retained set and writes it in the background.
// Writes are fire-and-forget: failures are logged, never surfaced.
func (o *Orchestrator) persistLocked() {
	if o.store == nil {
		return
	}
	snapshot := &domain.FlowSnapshot{
		Flows:         make(map[string]*domain.Flow, len(o.flows)),
		ActiveFlowID:  o.activeID,
		HasActiveFlow: o.hasActive,
	}
	for id, f := range o.flows {
		snapshot.Flows[id] = f.Clone()
	}

	timeout := o.cfg.SnapshotTimeout
	logger := o.logger
	store := o.store
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := store.Save(ctx, snapshot); err != nil {
			logger.Warn("snapshot_save_failed", "error", err)
		}
	}()
}
