package domain

import "time"

// Step is a position in the capture journey.
type Step string

const (
	StepCapture      Step = "capture"
	StepProcessing   Step = "processing"
	StepReview       Step = "review"
	StepVerification Step = "verification"
	StepReport       Step = "report"
)

// TransitionReason explains why a step transition happened.
type TransitionReason string

const (
	ReasonUserAction    TransitionReason = "user_action"
	ReasonAutoAdvance   TransitionReason = "auto_advance"
	ReasonErrorRecovery TransitionReason = "error_recovery"
	ReasonRetry         TransitionReason = "retry"
)

// StepTransition is one entry in a flow's ordered transition log.
type StepTransition struct {
	From      Step             `json:"from"`
	To        Step             `json:"to"`
	Reason    TransitionReason `json:"reason"`
	Timestamp time.Time        `json:"timestamp"`
}

// FlowMetrics aggregates timing and outcome data for one flow.
type FlowMetrics struct {
	StepDurations  map[Step]time.Duration `json:"step_durations"`
	RetryCount     int                    `json:"retry_count"`
	ErrorCount     int                    `json:"error_count"`
	CompletionRate float64                `json:"completion_rate"`
	AbandonedAt    *Step                  `json:"abandoned_at,omitempty"`
	TotalDuration  time.Duration          `json:"total_duration"`
}

// Flow is one user journey from image capture to final saved record.
type Flow struct {
	ID            string            `json:"id"`
	ImageRef      string            `json:"image_ref"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	CurrentStep   Step              `json:"current_step"`
	CreatedAt     time.Time         `json:"created_at"`
	IsComplete    bool              `json:"is_complete"`
	StepHistory   []Step            `json:"step_history"`
	Transitions   []StepTransition  `json:"transitions"`
	ErrorHistory  []ErrorRecord     `json:"error_history"`
	LastError     *ErrorRecord      `json:"last_error,omitempty"`
	Metrics       FlowMetrics       `json:"metrics"`
	Result        *ProcessingResult `json:"result,omitempty"`
	Draft         *Draft            `json:"draft,omitempty"`
}

// HasVisited reports whether step appears in the flow's step history.
func (f *Flow) HasVisited(step Step) bool {
	for _, s := range f.StepHistory {
		if s == step {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand out to readers while the
// orchestrator keeps mutating the original.
func (f *Flow) Clone() *Flow {
	if f == nil {
		return nil
	}
	out := *f

	out.StepHistory = append([]Step(nil), f.StepHistory...)
	out.Transitions = append([]StepTransition(nil), f.Transitions...)
	out.ErrorHistory = append([]ErrorRecord(nil), f.ErrorHistory...)
	if f.LastError != nil {
		last := *f.LastError
		out.LastError = &last
	}

	out.Metrics.StepDurations = make(map[Step]time.Duration, len(f.Metrics.StepDurations))
	for step, d := range f.Metrics.StepDurations {
		out.Metrics.StepDurations[step] = d
	}
	if f.Metrics.AbandonedAt != nil {
		step := *f.Metrics.AbandonedAt
		out.Metrics.AbandonedAt = &step
	}

	out.Result = f.Result.Clone()
	out.Draft = f.Draft.Clone()
	return &out
}

// FlowSnapshot is the durable form of the retained flow set. Writes are
// fire-and-forget, last write wins; the three fields carry no transactional
// guarantee relative to each other.
type FlowSnapshot struct {
	Flows         map[string]*Flow `json:"flows"`
	ActiveFlowID  string           `json:"active_flow_id"`
	HasActiveFlow bool             `json:"has_active_flow"`
}
