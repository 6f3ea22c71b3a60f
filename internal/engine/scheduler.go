package engine

import (
	"context"
	"sort"
	"time"

	"github.com/ipcviz/backend/internal/shared/types"
)

// The scheduler unifies the two timer channels of the simulation, the
// transfer progress ticker and the fixed-delay resource releases, into one
// cooperative step. Releases carry absolute due times, so the fixed-duration
// hold contract survives the unification. Nothing here cancels a scheduled
// release: entries firing against removed entities resolve by id at fire
// time and fall through as no-ops.

type releaseKind int

const (
	releaseHold releaseKind = iota // timed release of a queue/memory hold
	releaseUnblock                 // expiry of a transient block
)

type regionAccess int

const (
	accessNone regionAccess = iota
	accessReadRelease
	accessWriteRelease
)

type pendingRelease struct {
	due          time.Time
	seq          int
	kind         releaseKind
	processID    string
	connectionID string
	regionID     string
	handle       string
	access       regionAccess
}

// Scheduler tracks pending one-shot releases. It is owned by the engine and
// mutated only under the engine lock.
type Scheduler struct {
	pending []pendingRelease
	seq     int
}

// NewScheduler creates an empty scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) schedule(r pendingRelease) {
	s.seq++
	r.seq = s.seq
	s.pending = append(s.pending, r)
}

// due pops every release whose time has come, in (due, registration) order
func (s *Scheduler) due(now time.Time) []pendingRelease {
	var fired []pendingRelease
	remaining := s.pending[:0]
	for _, r := range s.pending {
		if !r.due.After(now) {
			fired = append(fired, r)
		} else {
			remaining = append(remaining, r)
		}
	}
	s.pending = remaining
	sort.Slice(fired, func(i, j int) bool {
		if !fired[i].due.Equal(fired[j].due) {
			return fired[i].due.Before(fired[j].due)
		}
		return fired[i].seq < fired[j].seq
	})
	return fired
}

// hasPendingFor reports whether a connection still has a scheduled hold
// release outstanding.
func (s *Scheduler) hasPendingFor(connID string) bool {
	for _, r := range s.pending {
		if r.kind == releaseHold && r.connectionID == connID {
			return true
		}
	}
	return false
}

func (s *Scheduler) clear() {
	s.pending = nil
}

// Step advances the simulation by one tick at the given instant: every
// in-flight transfer progresses by the configured step, due releases fire,
// and the deadlock scan re-runs over the committed state.
func (e *Engine) Step(now time.Time) {
	e.mu.Lock()
	e.advanceTransfers(now)
	for _, r := range e.sched.due(now) {
		e.fireRelease(r)
	}
	e.analyze()
	e.updateGauges()
	events := e.drainEvents()
	e.mu.Unlock()
	e.publish(events)
}

// Run drives Step on the configured tick period until the context is
// cancelled. All mutation still funnels through the engine lock, so the
// ticker goroutine never races command callers.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.Step(now)
		}
	}
}

// advanceTransfers moves every in-flight transfer forward and completes the
// ones that reach 100. Must hold e.mu.
func (e *Engine) advanceTransfers(now time.Time) {
	ids := make([]string, 0, len(e.store.transfers))
	for tid := range e.store.transfers {
		ids = append(ids, tid)
	}
	sort.Strings(ids)

	for _, tid := range ids {
		t := e.store.transfers[tid]
		t.Progress += e.cfg.ProgressStep
		if t.Progress < 100 {
			continue
		}
		e.completeTransfer(t, now)
	}
}

// completeTransfer removes a finished transfer, decrements the owning
// queue's load (floor 0), and releases pipe endpoints, whose hold ends with
// the transfer rather than on a separate timer. Must hold e.mu.
func (e *Engine) completeTransfer(t *types.DataTransfer, now time.Time) {
	e.store.RemoveTransfer(t.ID)
	handle := e.transferHandles[t.ID]
	delete(e.transferHandles, t.ID)

	conn, cok := e.store.Connection(t.ConnectionID)
	if cok {
		if conn.Type == types.TypeQueue && conn.CurrentLoad > 0 {
			conn.CurrentLoad--
		}
		if conn.State != types.ConnectionDeadlocked &&
			!e.store.TransfersFor(conn.ID) &&
			!e.sched.hasPendingFor(conn.ID) {
			conn.State = types.ConnectionIdle
		}
	}

	if cok && conn.Type == types.TypePipe {
		if p, ok := e.store.Process(t.ProcessID); ok && p.State != types.ProcessDeadlocked {
			removeHandle(p, handle)
			if p.State == types.ProcessRunning {
				p.State = types.ProcessIdle
			}
		}
	}

	ctx := map[string]interface{}{
		"transfer_id":   t.ID,
		"connection_id": t.ConnectionID,
		"process_id":    t.ProcessID,
		"type":          string(t.Type),
	}
	e.emit(types.EventTransferCompleted, types.SeverityInfo, "transfer completed", "", ctx)
	if e.metrics != nil {
		e.metrics.IncTransfersCompleted()
	}
}
