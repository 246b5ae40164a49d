package attempt

import (
	"testing"

	"github.com/docuflow/capture/internal/core/domain"
)

func startedMachine(t *testing.T) *Machine {
	t.Helper()
	m := NewMachine(nil)
	if err := m.StartCapture("camera"); err != nil {
		t.Fatalf("StartCapture() error = %v", err)
	}
	return m
}

func TestStartCaptureOnlyFromIdle(t *testing.T) {
	m := startedMachine(t)
	if err := m.StartCapture("camera"); err == nil {
		t.Fatalf("expected error starting from capturing")
	}
}

func TestHandleProgressWalksPipelineStates(t *testing.T) {
	m := startedMachine(t)

	m.HandleProgress(2, "validation", "validating capture")
	if _, ok := m.State().(Capturing); !ok {
		t.Fatalf("validation must not leave capturing, got %s", m.State().Name())
	}

	m.HandleProgress(10, "optimization", "optimizing image")
	if _, ok := m.State().(Optimizing); !ok {
		t.Fatalf("expected optimizing, got %s", m.State().Name())
	}

	m.HandleProgress(22, "upload", "uploaded chunk 1/2")
	if _, ok := m.State().(Uploading); !ok {
		t.Fatalf("expected uploading, got %s", m.State().Name())
	}

	m.HandleProgress(60, "ocr", "Reading text")
	if _, ok := m.State().(Processing); !ok {
		t.Fatalf("backend ocr stage must map to processing, got %s", m.State().Name())
	}

	m.HandleProgress(70, "extraction", "Extracting fields")
	if _, ok := m.State().(Extracting); !ok {
		t.Fatalf("expected extracting, got %s", m.State().Name())
	}

	m.HandleProgress(95, "classification", "Classifying document")
	if _, ok := m.State().(Classifying); !ok {
		t.Fatalf("expected classifying, got %s", m.State().Name())
	}
}

func TestProgressNeverRegresses(t *testing.T) {
	m := startedMachine(t)

	m.HandleProgress(25, "upload", "uploading")
	mid := m.Progress()

	// A repeated callback for an earlier stage must not lower progress.
	m.HandleProgress(8, "optimization", "optimizing")
	if m.Progress() < mid {
		t.Fatalf("progress regressed from %v to %v", mid, m.Progress())
	}

	m.HandleProgress(80, "remote_processing", "processing")
	high := m.Progress()
	if high < mid {
		t.Fatalf("expected progress to advance, got %v", high)
	}
}

func TestLateCallbacksDiscardedAfterCancel(t *testing.T) {
	m := startedMachine(t)
	m.HandleProgress(25, "upload", "uploading")

	if err := m.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	errored, ok := m.State().(Errored)
	if !ok || errored.Err.Code != domain.CodeCancelled {
		t.Fatalf("expected cancelled error state, got %+v", m.State())
	}
	if errored.CanRetry {
		t.Fatalf("cancellation must not be retryable")
	}

	before := m.Progress()
	m.HandleProgress(80, "remote_processing", "late callback from dead run")
	if _, ok := m.State().(Errored); !ok {
		t.Fatalf("late callback must not leave errored state")
	}
	if m.Progress() != before {
		t.Fatalf("late callback must not move progress: %v -> %v", before, m.Progress())
	}
}

func TestReviewEditSaveLifecycle(t *testing.T) {
	m := startedMachine(t)
	m.HandleProgress(95, "classification", "classifying")

	result := &domain.ProcessingResult{ExtractedText: "TOTAL 12.50"}
	if err := m.SetResult(result); err != nil {
		t.Fatalf("SetResult() error = %v", err)
	}
	if m.Progress() != 100 {
		t.Fatalf("review must report 100, got %v", m.Progress())
	}

	if err := m.BeginEditing(); err != nil {
		t.Fatalf("BeginEditing() error = %v", err)
	}
	if err := m.RecordEdit(domain.FieldVendor, "Cafe Rosa"); err != nil {
		t.Fatalf("RecordEdit() error = %v", err)
	}
	editing := m.State().(Editing)
	if editing.PendingChanges[domain.FieldVendor] != "Cafe Rosa" {
		t.Fatalf("unexpected pending changes: %v", editing.PendingChanges)
	}

	record := domain.NewDraftFromResult(result)
	if err := m.StartSave(record); err != nil {
		t.Fatalf("StartSave() error = %v", err)
	}
	if err := m.CompleteSave(record); err != nil {
		t.Fatalf("CompleteSave() error = %v", err)
	}
	if _, ok := m.State().(Complete); !ok {
		t.Fatalf("expected complete, got %s", m.State().Name())
	}
}

func TestFailRemembersInterruptedState(t *testing.T) {
	m := startedMachine(t)
	m.HandleProgress(25, "upload", "uploading")

	m.Fail(domain.NetworkError("upload chunk", nil))

	errored, ok := m.State().(Errored)
	if !ok {
		t.Fatalf("expected errored, got %s", m.State().Name())
	}
	if !errored.CanRetry {
		t.Fatalf("network failure under the cap must be retryable")
	}
	if _, ok := errored.Previous.(Uploading); !ok {
		t.Fatalf("expected uploading remembered, got %s", errored.Previous.Name())
	}
	if m.Progress() == 0 {
		t.Fatalf("errored state must keep the interrupted progress")
	}
}

func TestRetryResumesInterruptedState(t *testing.T) {
	m := startedMachine(t)
	m.HandleProgress(25, "upload", "uploading")
	m.Fail(domain.NetworkError("upload chunk", nil))

	if err := m.Retry(); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if _, ok := m.State().(Uploading); !ok {
		t.Fatalf("expected uploading resumed, got %s", m.State().Name())
	}
	if m.Retries() != 1 {
		t.Fatalf("expected 1 retry used, got %d", m.Retries())
	}
}

func TestRetryCapExhaustion(t *testing.T) {
	m := startedMachine(t)
	m.HandleProgress(25, "upload", "uploading")

	for i := 0; i < MaxRetries; i++ {
		m.Fail(domain.NetworkError("upload chunk", nil))
		if err := m.Retry(); err != nil {
			t.Fatalf("retry %d error = %v", i+1, err)
		}
	}

	m.Fail(domain.NetworkError("upload chunk", nil))
	errored := m.State().(Errored)
	if errored.CanRetry {
		t.Fatalf("failure past the cap must not be retryable")
	}

	err := m.Retry()
	if domain.CodeOf(err) != domain.CodeRetryLimit {
		t.Fatalf("expected RETRY_LIMIT_EXCEEDED, got %v", err)
	}
	final := m.State().(Errored)
	if final.Err.Code != domain.CodeRetryLimit || final.CanRetry {
		t.Fatalf("unexpected final state: %+v", final)
	}
}

func TestRetryRejectsNonRetryableError(t *testing.T) {
	m := startedMachine(t)
	m.Fail(domain.ValidationError("bad file"))

	err := m.Retry()
	if domain.CodeOf(err) != domain.CodeValidation {
		t.Fatalf("expected stored validation error returned, got %v", err)
	}
	if _, ok := m.State().(Errored); !ok {
		t.Fatalf("machine must stay errored")
	}
}

func TestCancelInvalidFromIdleAndComplete(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Cancel(); err == nil {
		t.Fatalf("expected error cancelling from idle")
	}

	m = startedMachine(t)
	result := &domain.ProcessingResult{ExtractedText: "x"}
	if err := m.SetResult(result); err != nil {
		t.Fatalf("SetResult() error = %v", err)
	}
	record := domain.NewDraftFromResult(result)
	if err := m.StartSave(record); err != nil {
		t.Fatalf("StartSave() error = %v", err)
	}
	if err := m.CompleteSave(record); err != nil {
		t.Fatalf("CompleteSave() error = %v", err)
	}
	if err := m.Cancel(); err == nil {
		t.Fatalf("expected error cancelling from complete")
	}
}

func TestResetClearsEverything(t *testing.T) {
	m := startedMachine(t)
	m.HandleProgress(25, "upload", "uploading")
	m.Fail(domain.NetworkError("upload", nil))
	if err := m.Retry(); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}

	m.Reset()
	if _, ok := m.State().(Idle); !ok {
		t.Fatalf("expected idle after reset")
	}
	if m.Retries() != 0 || m.Progress() != 0 {
		t.Fatalf("reset must clear retries and progress")
	}
}
