package attempt

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/docuflow/capture/internal/core/domain"
)

// MaxRetries caps how often one attempt may be resumed after an error.
const MaxRetries = 3

// Pipeline stage names the machine understands, matching what the engine and
// the backend report.
const (
	stageValidation      = "validation"
	stageOptimization    = "optimization"
	stageUpload          = "upload"
	stageProcessingStart = "processing_start"
	stageRemote          = "remote_processing"
	stageQueued          = "queued"
	stageOCR             = "ocr"
	stageExtraction      = "extraction"
	stageClassification  = "classification"
	stageFinalize        = "finalize"
)

// Machine is the fine-grained state machine for one processing attempt. It
// is driven by pipeline progress events and by user actions; it never starts
// work itself.
type Machine struct {
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	retries   int
	highWater float64
}

func NewMachine(logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		logger: logger,
		state:  Idle{},
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Retries reports how many resumes this attempt has used.
func (m *Machine) Retries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries
}

// Progress is the aggregate 0-100 progress for the attempt. It never
// regresses as the attempt advances, even if a late or repeated callback
// reports an earlier stage.
func (m *Machine) Progress() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progressLocked()
}

func (m *Machine) progressLocked() float64 {
	p := stateProgress(m.state)
	if p < m.highWater {
		return m.highWater
	}
	return p
}

// StartCapture begins an attempt. Valid only from idle.
func (m *Machine) StartCapture(source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.(Idle); !ok {
		return invalidTransition(m.state, "start capture")
	}
	m.setLocked(Capturing{Source: source})
	return nil
}

// HandleProgress applies one pipeline progress callback. Callbacks arriving
// after the attempt errored or completed are discarded, so late progress
// from a cancelled run cannot regress the state.
func (m *Machine) HandleProgress(pct float64, stage, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state.(type) {
	case Idle, Errored, Complete, Reviewing, Editing, Saving:
		return
	}

	switch stage {
	case stageValidation:
		// Still acquiring; capturing covers validation.
	case stageOptimization:
		m.setLocked(Optimizing{Progress: bandFraction(pct, 5, 15)})
	case stageUpload:
		m.setLocked(Uploading{Progress: bandFraction(pct, 15, 30)})
	case stageProcessingStart, stageRemote, stageQueued, stageOCR:
		m.setLocked(Processing{Progress: bandFraction(pct, 30, 90)})
	case stageExtraction:
		m.setLocked(Extracting{Progress: bandFraction(pct, 35, 90)})
	case stageClassification, stageFinalize:
		m.setLocked(Classifying{Progress: bandFraction(pct, 35, 100)})
	default:
		m.logger.Debug("progress_stage_ignored", "stage", stage, "pct", pct, "description", description)
	}
}

// SetResult moves the attempt into review once a processing result exists.
func (m *Machine) SetResult(result *domain.ProcessingResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state.(type) {
	case Capturing, Optimizing, Uploading, Processing, Extracting, Classifying:
		m.setLocked(Reviewing{Result: result})
		return nil
	default:
		return invalidTransition(m.state, "set result")
	}
}

// BeginEditing moves from review into editing.
func (m *Machine) BeginEditing() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reviewing, ok := m.state.(Reviewing)
	if !ok {
		return invalidTransition(m.state, "begin editing")
	}
	m.setLocked(Editing{Result: reviewing.Result, PendingChanges: make(map[string]string)})
	return nil
}

// RecordEdit notes a pending field change while editing.
func (m *Machine) RecordEdit(field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	editing, ok := m.state.(Editing)
	if !ok {
		return invalidTransition(m.state, "record edit")
	}
	editing.PendingChanges[field] = value
	m.state = editing
	return nil
}

// StartSave moves into saving with the record about to be persisted.
func (m *Machine) StartSave(record *domain.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state.(type) {
	case Reviewing, Editing:
		m.setLocked(Saving{Record: record})
		return nil
	default:
		return invalidTransition(m.state, "start save")
	}
}

// CompleteSave finishes the attempt with the saved record.
func (m *Machine) CompleteSave(record *domain.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.(Saving); !ok {
		return invalidTransition(m.state, "complete save")
	}
	m.setLocked(Complete{Record: record})
	return nil
}

// Fail interrupts the current state. The interrupted state is remembered so
// Retry can resume it; retryability honors both the error and the cap.
func (m *Machine) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	perr := domain.Normalize(err)
	switch m.state.(type) {
	case Idle, Complete:
		m.logger.Warn("failure_in_terminal_state", "state", m.state.Name(), "code", perr.Code)
		return
	case Errored:
		return
	}

	m.state = Errored{
		Err:      perr,
		Previous: m.state,
		CanRetry: perr.Retryable && m.retries < MaxRetries,
	}
	m.logger.Warn("attempt_errored",
		"code", perr.Code,
		"retryable", perr.Retryable,
		"retries", m.retries,
		"previous", m.state.(Errored).Previous.Name(),
	)
}

// Retry resumes the state the error interrupted. The fourth retry of one
// attempt fails with a non-retryable cap-exceeded error.
func (m *Machine) Retry() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	errored, ok := m.state.(Errored)
	if !ok {
		return invalidTransition(m.state, "retry")
	}
	if m.retries >= MaxRetries {
		capErr := domain.RetryLimitError(m.retries)
		m.state = Errored{Err: capErr, Previous: errored.Previous, CanRetry: false}
		return capErr
	}
	if !errored.CanRetry {
		return errored.Err
	}

	m.retries++
	m.state = errored.Previous
	m.logger.Info("attempt_retrying", "retries", m.retries, "resumed", m.state.Name())
	return nil
}

// Cancel aborts the attempt. Valid from every state except idle and
// complete; cancellation is silent and non-retryable.
func (m *Machine) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state.(type) {
	case Idle, Complete:
		return invalidTransition(m.state, "cancel")
	case Errored:
		previous := m.state.(Errored).Previous
		m.state = Errored{Err: domain.CancelledError(), Previous: previous, CanRetry: false}
		return nil
	}
	m.state = Errored{Err: domain.CancelledError(), Previous: m.state, CanRetry: false}
	return nil
}

// Reset returns the machine to idle for a fresh attempt.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = Idle{}
	m.retries = 0
	m.highWater = 0
}

func (m *Machine) setLocked(next State) {
	m.state = next
	if p := stateProgress(next); p > m.highWater {
		m.highWater = p
	}
}

func invalidTransition(from State, action string) error {
	return domain.ValidationError(fmt.Sprintf("cannot %s from state %q", action, from.Name()))
}
