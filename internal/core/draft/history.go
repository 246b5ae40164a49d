package draft

import "github.com/docuflow/capture/internal/core/domain"

// snapshot captures everything undo must restore.
type snapshot struct {
	fields      map[string]string
	modified    map[string]bool
	fieldErrors map[string][]domain.FieldError
}

func snapshotOf(d *domain.Draft) snapshot {
	s := snapshot{
		fields:      make(map[string]string, len(d.Fields)),
		modified:    make(map[string]bool, len(d.ModifiedFields)),
		fieldErrors: make(map[string][]domain.FieldError, len(d.FieldErrors)),
	}
	for k, v := range d.Fields {
		s.fields[k] = v
	}
	for k, v := range d.ModifiedFields {
		s.modified[k] = v
	}
	for k, v := range d.FieldErrors {
		s.fieldErrors[k] = append([]domain.FieldError(nil), v...)
	}
	return s
}

func (s snapshot) restoreInto(d *domain.Draft) {
	d.Fields = make(map[string]string, len(s.fields))
	for k, v := range s.fields {
		d.Fields[k] = v
	}
	d.ModifiedFields = make(map[string]bool, len(s.modified))
	for k, v := range s.modified {
		d.ModifiedFields[k] = v
	}
	d.FieldErrors = make(map[string][]domain.FieldError, len(s.fieldErrors))
	for k, v := range s.fieldErrors {
		d.FieldErrors[k] = append([]domain.FieldError(nil), v...)
	}
}

// history is a fixed-capacity arena of draft snapshots with a cursor. New
// entries truncate any redo tail; overflow drops the oldest entry, never the
// newest. The cursor always points at a valid entry.
type history struct {
	entries  []snapshot
	index    int
	capacity int
}

func newHistory(capacity int, initial snapshot) *history {
	if capacity < 2 {
		capacity = 2
	}
	return &history{
		entries:  []snapshot{initial},
		index:    0,
		capacity: capacity,
	}
}

func (h *history) push(s snapshot) {
	h.entries = append(h.entries[:h.index+1], s)
	if len(h.entries) > h.capacity {
		h.entries = h.entries[1:]
	}
	h.index = len(h.entries) - 1
}

func (h *history) canUndo() bool { return h.index > 0 }
func (h *history) canRedo() bool { return h.index < len(h.entries)-1 }

func (h *history) undo() (snapshot, bool) {
	if !h.canUndo() {
		return snapshot{}, false
	}
	h.index--
	return h.entries[h.index], true
}

func (h *history) redo() (snapshot, bool) {
	if !h.canRedo() {
		return snapshot{}, false
	}
	h.index++
	return h.entries[h.index], true
}

func (h *history) depth() int { return len(h.entries) }
