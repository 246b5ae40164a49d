// Package draft implements the editable working copy of a processing result:
// field mutation, externally supplied validation findings, bounded undo/redo
// history, and the save lifecycle.
package draft

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docuflow/capture/internal/core/domain"
	"github.com/docuflow/capture/internal/core/ports"
)

// DefaultHistoryDepth bounds the undo stack.
const DefaultHistoryDepth = 20

// Editor owns one draft at a time. A failed save never discards edits; only
// an explicit reset or clear does.
type Editor struct {
	historyDepth int
	clock        ports.Clock
	logger       *slog.Logger

	mu          sync.Mutex
	initialized bool
	original    *domain.ProcessingResult
	draft       *domain.Draft
	history     *history
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func NewEditor(historyDepth int, clock ports.Clock, logger *slog.Logger) *Editor {
	if historyDepth <= 0 {
		historyDepth = DefaultHistoryDepth
	}
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Editor{
		historyDepth: historyDepth,
		clock:        clock,
		logger:       logger,
	}
}

// Initialize builds the first draft from a processing result, seeding the
// history with a single entry. The draft starts valid until validation says
// otherwise.
func (e *Editor) Initialize(result *domain.ProcessingResult) (*domain.Draft, error) {
	if result == nil {
		return nil, domain.ValidationError("processing result is required to initialize a draft")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.original = result.Clone()
	e.draft = domain.NewDraftFromResult(result)
	e.history = newHistory(e.historyDepth, snapshotOf(e.draft))
	e.initialized = true
	return e.draft.Clone(), nil
}

// Draft returns a copy of the current draft.
func (e *Editor) Draft() (*domain.Draft, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil, domain.ErrDraftNotInitialized
	}
	return e.draft.Clone(), nil
}

// UpdateField applies one field change: the field is marked modified, any
// stored finding on it is cleared, and a new history entry is pushed
// (truncating the redo tail).
func (e *Editor) UpdateField(field, value string) error {
	return e.UpdateFields(map[string]string{field: value})
}

// UpdateFields applies several changes as a single undoable step.
func (e *Editor) UpdateFields(updates map[string]string) error {
	if len(updates) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return domain.ErrDraftNotInitialized
	}
	for field := range updates {
		if !knownField(field) {
			return domain.ValidationError(fmt.Sprintf("unknown draft field %q", field))
		}
	}

	for field, value := range updates {
		e.draft.Fields[field] = value
		e.draft.ModifiedFields[field] = true
		delete(e.draft.FieldErrors, field)
	}
	e.draft.IsDirty = true
	e.history.push(snapshotOf(e.draft))
	return nil
}

func knownField(field string) bool {
	for _, name := range domain.DraftFieldNames {
		if name == field {
			return true
		}
	}
	return false
}

// SetFieldFindings stores externally supplied validation findings for one
// field verbatim. The editor does not decide validity rules.
func (e *Editor) SetFieldFindings(field string, findings []domain.FieldError) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return domain.ErrDraftNotInitialized
	}
	if len(findings) == 0 {
		delete(e.draft.FieldErrors, field)
	} else {
		e.draft.FieldErrors[field] = append([]domain.FieldError(nil), findings...)
	}
	e.draft.IsValid = !e.draft.HasBlockingErrors()
	return nil
}

// SetFormFindings replaces all stored findings with a full validation pass.
func (e *Editor) SetFormFindings(findings map[string][]domain.FieldError) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return domain.ErrDraftNotInitialized
	}
	e.draft.FieldErrors = make(map[string][]domain.FieldError, len(findings))
	for field, fieldFindings := range findings {
		if len(fieldFindings) == 0 {
			continue
		}
		e.draft.FieldErrors[field] = append([]domain.FieldError(nil), fieldFindings...)
	}
	e.draft.IsValid = !e.draft.HasBlockingErrors()
	return nil
}

// CanUndo reports whether an undo step exists. Never inconsistent with the
// history cursor.
func (e *Editor) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized && e.history.canUndo()
}

// CanRedo reports whether a redo step exists.
func (e *Editor) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized && e.history.canRedo()
}

// Undo steps the draft back one history entry. Out of bounds is a no-op.
func (e *Editor) Undo() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return domain.ErrDraftNotInitialized
	}
	if s, ok := e.history.undo(); ok {
		s.restoreInto(e.draft)
		e.draft.IsDirty = true
	}
	return nil
}

// Redo steps the draft forward one history entry. Out of bounds is a no-op.
func (e *Editor) Redo() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return domain.ErrDraftNotInitialized
	}
	if s, ok := e.history.redo(); ok {
		s.restoreInto(e.draft)
		e.draft.IsDirty = true
	}
	return nil
}

// StartSave marks the draft as saving and returns the record to persist.
func (e *Editor) StartSave() (*domain.Draft, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil, domain.ErrDraftNotInitialized
	}
	if e.draft.IsSaving {
		return nil, domain.ValidationError("a save is already in progress")
	}
	e.draft.IsSaving = true
	e.draft.SaveError = ""
	return e.draft.Clone(), nil
}

// SaveSucceeded resolves a save: dirty state and the modified-field set are
// cleared and the save timestamp is stamped.
func (e *Editor) SaveSucceeded() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return domain.ErrDraftNotInitialized
	}
	if !e.draft.IsSaving {
		return domain.ValidationError("no save in progress")
	}
	now := e.clock.Now()
	e.draft.IsSaving = false
	e.draft.IsDirty = false
	e.draft.ModifiedFields = make(map[string]bool)
	e.draft.SaveError = ""
	e.draft.LastSavedAt = &now
	return nil
}

// SaveFailed resolves a save with an error. Every pending edit is retained;
// the draft is never discarded on a failed save.
func (e *Editor) SaveFailed(err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return domain.ErrDraftNotInitialized
	}
	if !e.draft.IsSaving {
		return domain.ValidationError("no save in progress")
	}
	e.draft.IsSaving = false
	e.draft.SaveError = domain.Normalize(err).Message
	e.logger.Warn("draft_save_failed", "error", err)
	return nil
}

// ResetToOriginal regenerates a fresh draft from the stored original result,
// discarding all edits and history.
func (e *Editor) ResetToOriginal() (*domain.Draft, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil, domain.ErrDraftNotInitialized
	}
	e.draft = domain.NewDraftFromResult(e.original)
	e.history = newHistory(e.historyDepth, snapshotOf(e.draft))
	return e.draft.Clone(), nil
}

// Clear returns the editor to its pristine, uninitialized state.
func (e *Editor) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.initialized = false
	e.original = nil
	e.draft = nil
	e.history = nil
}
