// Package attempt tracks one in-flight processing attempt as a closed set of
// states. Every consumption site switches exhaustively over the set so a new
// state cannot be silently ignored.
package attempt

import "github.com/docuflow/capture/internal/core/domain"

// State is the tagged variant for an attempt. Exactly one state is active at
// a time; the concrete types below are the full set.
type State interface {
	Name() string
	attemptState()
}

// Idle is the rest state before a capture starts.
type Idle struct{}

// Capturing means an image source is being acquired or validated.
type Capturing struct {
	Source string
}

// Optimizing means the image is being re-encoded locally.
type Optimizing struct {
	Progress float64
}

// Uploading means optimized bytes are being chunk-uploaded.
type Uploading struct {
	Progress float64
}

// Processing means the remote job is queued or running.
type Processing struct {
	Progress float64
}

// Extracting means the backend reports text extraction in progress.
type Extracting struct {
	Progress float64
}

// Classifying means the backend reports classification in progress.
type Classifying struct {
	Progress float64
}

// Reviewing means a result exists and is awaiting human review.
type Reviewing struct {
	Result *domain.ProcessingResult
}

// Editing means the reviewer is changing draft fields.
type Editing struct {
	Result         *domain.ProcessingResult
	PendingChanges map[string]string
}

// Saving means the edited record is being persisted.
type Saving struct {
	Record *domain.Draft
}

// Complete means the record was saved; the attempt is finished.
type Complete struct {
	Record *domain.Draft
}

// Errored interrupts any other state. Previous remembers the state the error
// interrupted so a retry can resume instead of restarting from idle.
type Errored struct {
	Err      *domain.PipelineError
	Previous State
	CanRetry bool
}

func (Idle) Name() string        { return "idle" }
func (Capturing) Name() string   { return "capturing" }
func (Optimizing) Name() string  { return "optimizing" }
func (Uploading) Name() string   { return "uploading" }
func (Processing) Name() string  { return "processing" }
func (Extracting) Name() string  { return "extracting" }
func (Classifying) Name() string { return "classifying" }
func (Reviewing) Name() string   { return "reviewing" }
func (Editing) Name() string     { return "editing" }
func (Saving) Name() string      { return "saving" }
func (Complete) Name() string    { return "complete" }
func (Errored) Name() string     { return "error" }

func (Idle) attemptState()        {}
func (Capturing) attemptState()   {}
func (Optimizing) attemptState()  {}
func (Uploading) attemptState()   {}
func (Processing) attemptState()  {}
func (Extracting) attemptState()  {}
func (Classifying) attemptState() {}
func (Reviewing) attemptState()   {}
func (Editing) attemptState()     {}
func (Saving) attemptState()      {}
func (Complete) attemptState()    {}
func (Errored) attemptState()     {}
