package flow

import (
	"context"
	"sort"
	"time"

	"github.com/docuflow/capture/internal/core/domain"
)

// Cleanup evicts flows older than their retention window and then trims the
// retained set to the configured cap, oldest first.
func (o *Orchestrator) Cleanup(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.cleanupLocked(o.clock.Now())
	o.persistLocked()
}

// cleanupLocked applies the retention policy. The flow occupying the active
// slot is never evicted, regardless of age or the cap: evicting it would
// silently abandon an in-use journey.
func (o *Orchestrator) cleanupLocked(now time.Time) {
	for id, f := range o.flows {
		if o.hasActive && id == o.activeID {
			continue
		}
		retention := o.cfg.IncompleteRetention
		if f.IsComplete {
			retention = o.cfg.CompleteRetention
		}
		if now.Sub(f.CreatedAt) > retention {
			delete(o.flows, id)
			o.logger.Debug("flow_evicted", "flow_id", id, "reason", "age", "complete", f.IsComplete)
		}
	}

	if len(o.flows) <= o.cfg.MaxRetained {
		return
	}

	allowed := o.cfg.MaxRetained
	ordered := make([]*domain.Flow, 0, len(o.flows))
	for id, f := range o.flows {
		if o.hasActive && id == o.activeID {
			allowed--
			continue
		}
		ordered = append(ordered, f)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	if allowed < 0 {
		allowed = 0
	}
	if len(ordered) <= allowed {
		return
	}
	for _, f := range ordered[allowed:] {
		delete(o.flows, f.ID)
		o.logger.Debug("flow_evicted", "flow_id", f.ID, "reason", "cap")
	}
}

// RetainedCount reports how many flows are currently held, for diagnostics.
func (o *Orchestrator) RetainedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.flows)
}
