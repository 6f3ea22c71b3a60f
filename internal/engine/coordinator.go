package engine

import (
	"fmt"

	"github.com/ipcviz/backend/internal/shared/id"
	"github.com/ipcviz/backend/internal/shared/types"
)

// The resource coordinator: the acquire/release state machine per IPC type.
// All checks precede all resource mutations, so a failed acquisition never
// leaves partial state behind. Blocking here is a modeled process state,
// never a suspended goroutine.

// send performs the producer-side acquisition between two processes.
// Must hold e.mu.
func (e *Engine) send(from, to string) error {
	producer, ok := e.store.Process(from)
	if !ok {
		return fmt.Errorf("send from %s: %w", from, ErrUnknownProcess)
	}
	if _, ok := e.store.Process(to); !ok {
		return fmt.Errorf("send to %s: %w", to, ErrUnknownProcess)
	}
	conn, ok := e.store.FindConnection(from, to)
	if !ok {
		return fmt.Errorf("send %s->%s: %w", from, to, ErrNoConnectionBetween)
	}
	if conn.State == types.ConnectionDeadlocked || producer.State == types.ProcessDeadlocked {
		return ErrDeadlocked
	}

	switch conn.Type {
	case types.TypePipe:
		e.acquirePipe(producer, conn, types.TransferProduce)
		return nil
	case types.TypeQueue:
		return e.produceQueue(producer, conn)
	case types.TypeMemory:
		return e.acquireWrite(producer, conn)
	default:
		return fmt.Errorf("connection %s: %w", conn.ID, ErrUnknownConnection)
	}
}

// consume performs the consumer-side acquisition. The consumer is the
// destination endpoint of the resolved connection. Must hold e.mu.
func (e *Engine) consume(from, to string) error {
	if _, ok := e.store.Process(from); !ok {
		return fmt.Errorf("consume from %s: %w", from, ErrUnknownProcess)
	}
	consumer, ok := e.store.Process(to)
	if !ok {
		return fmt.Errorf("consume to %s: %w", to, ErrUnknownProcess)
	}
	conn, ok := e.store.FindConnection(from, to)
	if !ok {
		return fmt.Errorf("consume %s->%s: %w", from, to, ErrNoConnectionBetween)
	}
	if conn.State == types.ConnectionDeadlocked || consumer.State == types.ProcessDeadlocked {
		return ErrDeadlocked
	}

	switch conn.Type {
	case types.TypePipe:
		e.acquirePipe(consumer, conn, types.TransferConsume)
		return nil
	case types.TypeQueue:
		return e.consumeQueue(consumer, conn)
	case types.TypeMemory:
		return e.acquireRead(consumer, conn)
	default:
		return fmt.Errorf("connection %s: %w", conn.ID, ErrUnknownConnection)
	}
}

// acquirePipe always succeeds: pipes are bidirectional and uncapacitated.
// The hold ends when the transfer completes, not on a separate timer.
func (e *Engine) acquirePipe(p *types.Process, conn *types.Connection, tt types.TransferType) {
	conn.State = types.ConnectionActive
	handle := e.grantHandle(p)
	t := e.startTransfer(p, conn, tt)
	e.transferHandles[t.ID] = handle
	e.recordAcquisition(conn.Type, tt)
}

// produceQueue attempts the producer-side queue acquisition. A full queue
// always fails with QueueFull; the transient-block draw happens only once
// the queue has room.
func (e *Engine) produceQueue(p *types.Process, conn *types.Connection) error {
	if conn.CurrentLoad >= conn.Capacity {
		e.recordFailure(conn.Type, ErrQueueFull)
		return fmt.Errorf("connection %s: %w", conn.ID, ErrQueueFull)
	}

	// Transient contention: a cosmetic short block with no resource wait
	// behind it. Probability is injectable; 0 disables the path entirely.
	if e.cfg.BlockProbability > 0 && e.rng.Float64() < e.cfg.BlockProbability {
		p.State = types.ProcessBlocked
		e.sched.schedule(pendingRelease{
			due:       e.now().Add(e.cfg.BlockDuration),
			kind:      releaseUnblock,
			processID: p.ID,
		})
		e.emit(types.EventResourceBlocked, types.SeverityInfo,
			fmt.Sprintf("%s hit transient contention on queue", p.Name),
			"", map[string]interface{}{
				"process_id":    p.ID,
				"connection_id": conn.ID,
				"transient":     true,
			})
		return nil
	}

	conn.CurrentLoad++
	conn.State = types.ConnectionActive
	handle := e.grantHandle(p)
	t := e.startTransfer(p, conn, types.TransferProduce)
	e.transferHandles[t.ID] = handle
	e.scheduleHoldRelease(p.ID, conn.ID, "", handle, accessNone)
	e.recordAcquisition(conn.Type, types.TransferProduce)

	if float64(conn.CurrentLoad) >= e.cfg.BottleneckThreshold*float64(conn.Capacity) {
		e.emit(types.EventBottleneck, types.SeverityWarning,
			fmt.Sprintf("queue %s at %d/%d capacity", conn.ID, conn.CurrentLoad, conn.Capacity),
			"", map[string]interface{}{
				"connection_id": conn.ID,
				"current_load":  conn.CurrentLoad,
				"capacity":      conn.Capacity,
			})
	}
	return nil
}

// consumeQueue attempts the consumer-side queue acquisition. An empty queue
// blocks the consumer for the fixed transient duration and reports
// QueueEmpty; nothing else changes.
func (e *Engine) consumeQueue(p *types.Process, conn *types.Connection) error {
	if conn.CurrentLoad == 0 {
		p.State = types.ProcessBlocked
		e.sched.schedule(pendingRelease{
			due:       e.now().Add(e.cfg.BlockDuration),
			kind:      releaseUnblock,
			processID: p.ID,
		})
		e.emit(types.EventResourceBlocked, types.SeverityInfo,
			fmt.Sprintf("%s blocked on empty queue", p.Name),
			"", map[string]interface{}{
				"process_id":    p.ID,
				"connection_id": conn.ID,
				"transient":     true,
			})
		e.recordFailure(conn.Type, ErrQueueEmpty)
		return fmt.Errorf("connection %s: %w", conn.ID, ErrQueueEmpty)
	}

	conn.CurrentLoad--
	conn.State = types.ConnectionActive
	handle := e.grantHandle(p)
	t := e.startTransfer(p, conn, types.TransferConsume)
	e.transferHandles[t.ID] = handle
	e.scheduleHoldRelease(p.ID, conn.ID, "", handle, accessNone)
	e.recordAcquisition(conn.Type, types.TransferConsume)
	return nil
}

// acquireWrite attempts the exclusive writer acquisition on the region
// behind a memory connection. Write ownership is tracked via the semaphore,
// not a per-process access tag.
func (e *Engine) acquireWrite(p *types.Process, conn *types.Connection) error {
	region, ok := e.store.Region(conn.RegionID)
	if !ok {
		return fmt.Errorf("region %s: %w", conn.RegionID, ErrUnknownConnection)
	}

	if region.Semaphore.HasWriter || region.Semaphore.CurrentReaders > 0 {
		// A genuine wait, resolved only by a later release.
		p.State = types.ProcessBlocked
		rid := region.ID
		p.WaitingFor = &rid
		e.emit(types.EventResourceBlocked, types.SeverityWarning,
			fmt.Sprintf("%s blocked waiting for write access", p.Name),
			"", map[string]interface{}{
				"process_id": p.ID,
				"region_id":  region.ID,
				"mode":       string(types.AccessWrite),
			})
		e.recordFailure(conn.Type, ErrMemoryLocked)
		return fmt.Errorf("region %s: %w", region.ID, ErrMemoryLocked)
	}

	// The region record is shared by every connection referencing it, so
	// this single mutation is visible through all of them at once.
	region.Semaphore.HasWriter = true
	conn.State = types.ConnectionActive
	handle := e.grantHandle(p)
	t := e.startTransfer(p, conn, types.TransferProduce)
	e.transferHandles[t.ID] = handle
	e.scheduleHoldRelease(p.ID, conn.ID, region.ID, handle, accessWriteRelease)
	e.recordAcquisition(conn.Type, types.TransferProduce)
	return nil
}

// acquireRead attempts a shared reader acquisition on the region behind a
// memory connection.
func (e *Engine) acquireRead(p *types.Process, conn *types.Connection) error {
	region, ok := e.store.Region(conn.RegionID)
	if !ok {
		return fmt.Errorf("region %s: %w", conn.RegionID, ErrUnknownConnection)
	}

	if region.Semaphore.HasWriter {
		p.State = types.ProcessBlocked
		rid := region.ID
		p.WaitingFor = &rid
		e.emit(types.EventResourceBlocked, types.SeverityWarning,
			fmt.Sprintf("%s blocked waiting for read access", p.Name),
			"", map[string]interface{}{
				"process_id": p.ID,
				"region_id":  region.ID,
				"mode":       string(types.AccessRead),
			})
		e.recordFailure(conn.Type, ErrMemoryLocked)
		return fmt.Errorf("region %s: %w", region.ID, ErrMemoryLocked)
	}
	if region.Semaphore.CurrentReaders >= region.Semaphore.MaxReaders {
		// Reported to the caller for a later retry; the process does not
		// block on this path.
		e.recordFailure(conn.Type, ErrMaxReadersReached)
		return fmt.Errorf("region %s: %w", region.ID, ErrMaxReadersReached)
	}

	region.Semaphore.CurrentReaders++
	conn.State = types.ConnectionActive
	handle := e.grantHandle(p)
	p.MemoryAccess = &types.MemoryAccess{Mode: types.AccessRead, RegionID: region.ID}
	t := e.startTransfer(p, conn, types.TransferConsume)
	e.transferHandles[t.ID] = handle
	e.scheduleHoldRelease(p.ID, conn.ID, region.ID, handle, accessReadRelease)
	e.recordAcquisition(conn.Type, types.TransferConsume)
	return nil
}

// fireRelease executes one scheduled release. Entities removed since
// registration resolve to no-ops; deadlocked processes stay deadlocked
// (terminal until an external reset). Must hold e.mu.
func (e *Engine) fireRelease(r pendingRelease) {
	p, pok := e.store.Process(r.processID)

	if r.kind == releaseUnblock {
		// Transient block expiry: back to idle if still transiently blocked.
		if pok && p.State == types.ProcessBlocked && p.WaitingFor == nil {
			p.State = types.ProcessIdle
		}
		return
	}

	if pok && p.State == types.ProcessDeadlocked {
		return
	}

	if r.regionID != "" {
		if region, ok := e.store.Region(r.regionID); ok {
			switch r.access {
			case accessWriteRelease:
				region.Semaphore.HasWriter = false
			case accessReadRelease:
				if region.Semaphore.CurrentReaders > 0 {
					region.Semaphore.CurrentReaders--
				}
			}
		}
	}

	if pok {
		removeHandle(p, r.handle)
		if r.regionID != "" && p.MemoryAccess != nil && p.MemoryAccess.RegionID == r.regionID {
			p.MemoryAccess = nil
		}
		// A wait on some other region outlives this release; only the
		// matching region (or no wait at all) lets the process go idle.
		if p.WaitingFor == nil {
			p.State = types.ProcessIdle
		} else if r.regionID != "" && *p.WaitingFor == r.regionID {
			p.WaitingFor = nil
			p.State = types.ProcessIdle
		}
	}

	if conn, ok := e.store.Connection(r.connectionID); ok {
		if conn.State != types.ConnectionDeadlocked &&
			!e.store.TransfersFor(conn.ID) &&
			!e.sched.hasPendingFor(conn.ID) {
			conn.State = types.ConnectionIdle
		}
	}

	woken := e.wakeWaiters(r.regionID)

	ctx := map[string]interface{}{
		"process_id":    r.processID,
		"connection_id": r.connectionID,
	}
	if r.regionID != "" {
		ctx["region_id"] = r.regionID
	}
	if len(woken) > 0 {
		ctx["woken"] = woken
	}
	name := r.processID
	if pok {
		name = p.Name
	}
	e.emit(types.EventResourceReleased, types.SeverityInfo,
		fmt.Sprintf("%s released its resource hold", name), "", ctx)
}

// wakeWaiters unblocks every non-deadlocked process waiting on the region.
// All eligible waiters are released in the same step; no ordering or
// fairness is guaranteed, and their original operation is not retried.
func (e *Engine) wakeWaiters(regionID string) []string {
	if regionID == "" {
		return nil
	}
	var woken []string
	for _, pid := range e.store.sortedProcessIDs() {
		w := e.store.processes[pid]
		if w.State != types.ProcessBlocked || w.WaitingFor == nil || *w.WaitingFor != regionID {
			continue
		}
		w.State = types.ProcessIdle
		w.WaitingFor = nil
		woken = append(woken, pid)
	}
	return woken
}

// startTransfer creates and registers a transfer for an acquisition
func (e *Engine) startTransfer(p *types.Process, conn *types.Connection, tt types.TransferType) *types.DataTransfer {
	t := &types.DataTransfer{
		ID:           id.NewTransferID().String(),
		ConnectionID: conn.ID,
		ProcessID:    p.ID,
		StartTime:    e.now(),
		Progress:     0,
		Size:         1 + e.rng.Intn(5),
		Type:         tt,
	}
	e.store.AddTransfer(t)
	e.emit(types.EventTransferStarted, types.SeverityInfo,
		fmt.Sprintf("%s started a %s transfer", p.Name, tt),
		"", map[string]interface{}{
			"transfer_id":   t.ID,
			"connection_id": conn.ID,
			"process_id":    p.ID,
			"type":          string(tt),
		})
	return t
}

// grantHandle marks a process running with a fresh resource handle
func (e *Engine) grantHandle(p *types.Process) string {
	handle := id.NewResourceID().String()
	p.Resources = append(p.Resources, handle)
	p.State = types.ProcessRunning
	return handle
}

func (e *Engine) scheduleHoldRelease(pid, cid, rid, handle string, access regionAccess) {
	e.sched.schedule(pendingRelease{
		due:          e.now().Add(e.cfg.ReleaseDelay),
		kind:         releaseHold,
		processID:    pid,
		connectionID: cid,
		regionID:     rid,
		handle:       handle,
		access:       access,
	})
}

func removeHandle(p *types.Process, handle string) {
	if handle == "" {
		return
	}
	for i, h := range p.Resources {
		if h == handle {
			p.Resources = append(p.Resources[:i], p.Resources[i+1:]...)
			return
		}
	}
}

func (e *Engine) recordAcquisition(ct types.ConnectionType, tt types.TransferType) {
	if e.metrics != nil {
		e.metrics.IncAcquisition(string(ct), string(tt))
	}
}

func (e *Engine) recordFailure(ct types.ConnectionType, err error) {
	if e.metrics != nil {
		e.metrics.IncAcquisitionFailure(string(ct), ErrorCode(err))
	}
}
