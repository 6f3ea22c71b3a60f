package engine

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ipcviz/backend/internal/infrastructure/logging"
	"github.com/ipcviz/backend/internal/infrastructure/monitoring"
	"github.com/ipcviz/backend/internal/shared/id"
	"github.com/ipcviz/backend/internal/shared/types"
)

// Config holds the simulation tunables. Everything time- or
// probability-shaped is injectable so tests can run deterministically.
type Config struct {
	TickPeriod           time.Duration // progress ticker period
	ProgressStep         int           // per-tick transfer progress increment
	ReleaseDelay         time.Duration // fixed queue/memory hold duration
	BlockDuration        time.Duration // fixed transient-block duration
	BlockProbability     float64       // transient producer-block chance, 0 disables
	DefaultQueueCapacity int
	DefaultMaxReaders    int
	BottleneckThreshold  float64 // queue load fraction that triggers the alarm
	Seed                 int64   // RNG seed, 0 means time-based
}

// DefaultConfig returns the stock simulation tuning
func DefaultConfig() Config {
	return Config{
		TickPeriod:           200 * time.Millisecond,
		ProgressStep:         10,
		ReleaseDelay:         3 * time.Second,
		BlockDuration:        1500 * time.Millisecond,
		BlockProbability:     0.15,
		DefaultQueueCapacity: 10,
		DefaultMaxReaders:    5,
		BottleneckThreshold:  0.8,
	}
}

// Emitter receives structured events from the engine. The engine publishes
// only after its lock is released, never from inside a mutation.
type Emitter interface {
	Publish(types.Event)
}

// Engine is the single owner of the simulation state. Every command,
// query, and timer callback serializes through one mutex, which makes all
// acquisition, release, and analysis steps atomic relative to each other.
type Engine struct {
	mu    sync.Mutex
	cfg   Config
	store *Store
	sched *Scheduler
	rng   *rand.Rand
	now   func() time.Time

	// resource handle granted alongside each transfer, released with it
	transferHandles map[string]string

	pending   []types.Event // collected during a mutation, published after
	saturated bool          // edge-trigger state for the saturation alarm

	emitter Emitter
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// New creates an engine with the given configuration
func New(cfg Config) *Engine {
	if cfg.ProgressStep <= 0 {
		cfg.ProgressStep = 10
	}
	if cfg.BottleneckThreshold <= 0 {
		cfg.BottleneckThreshold = 0.8
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	e := &Engine{
		cfg:             cfg,
		sched:           NewScheduler(),
		rng:             rand.New(rand.NewSource(seed)),
		now:             time.Now,
		transferHandles: make(map[string]string),
		log:             logging.NewDefault(),
	}
	e.store = NewStore(cfg.DefaultQueueCapacity, cfg.DefaultMaxReaders, func() time.Time { return e.now() })
	return e
}

// WithEmitter attaches the event sink
func (e *Engine) WithEmitter(emitter Emitter) *Engine {
	e.emitter = emitter
	return e
}

// WithLogger replaces the default logger
func (e *Engine) WithLogger(log *logging.Logger) *Engine {
	e.log = log
	return e
}

// WithMetrics adds metrics tracking
func (e *Engine) WithMetrics(m *monitoring.Metrics) *Engine {
	e.metrics = m
	return e
}

// WithClock replaces the time source, for tests
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CreateProcess registers a new process and returns a copy of its record
func (e *Engine) CreateProcess(name string, pos types.Position) types.Process {
	e.mu.Lock()
	p := e.store.CreateProcess(name, pos)
	e.emit(types.EventProcessCreated, types.SeverityInfo,
		fmt.Sprintf("process %s created", p.Name), "",
		map[string]interface{}{"process_id": p.ID, "name": p.Name})
	e.updateGauges()
	cp := copyProcess(p)
	events := e.drainEvents()
	e.mu.Unlock()
	e.publish(events)
	return cp
}

// RemoveProcess deletes a process and every connection touching it.
// Pending release callbacks that captured the process resolve by id later
// and fall through as no-ops.
func (e *Engine) RemoveProcess(pid string) error {
	e.mu.Lock()
	removed, ok := e.store.RemoveProcess(pid)
	var events []types.Event
	if ok {
		e.emit(types.EventProcessRemoved, types.SeverityInfo,
			fmt.Sprintf("process %s removed", pid), "",
			map[string]interface{}{"process_id": pid, "removed_connections": removed})
		e.analyze()
		e.updateGauges()
		events = e.drainEvents()
	}
	e.mu.Unlock()
	e.publish(events)
	if !ok {
		return fmt.Errorf("remove %s: %w", pid, ErrUnknownProcess)
	}
	return nil
}

// CreateConnection registers a directed connection of the given type
func (e *Engine) CreateConnection(from, to string, ctype types.ConnectionType, params ConnectionParams) (types.Connection, error) {
	e.mu.Lock()
	conn, err := e.store.CreateConnection(from, to, ctype, params)
	var cp types.Connection
	if err != nil {
		e.emit(types.EventConnectionRejected, types.SeverityWarning,
			fmt.Sprintf("connection %s->%s rejected", from, to), "",
			map[string]interface{}{"from": from, "to": to, "type": string(ctype), "reason": ErrorCode(err)})
	} else {
		cp = *conn
		e.emit(types.EventConnectionCreated, types.SeverityInfo,
			fmt.Sprintf("%s connection created", ctype), "",
			map[string]interface{}{"connection_id": conn.ID, "from": from, "to": to, "type": string(ctype)})
		e.updateGauges()
	}
	events := e.drainEvents()
	e.mu.Unlock()
	e.publish(events)
	return cp, err
}

// Send performs the producer-side acquisition over the connection between
// the pair, then re-runs the deadlock scan against the committed state.
func (e *Engine) Send(from, to string) error {
	e.mu.Lock()
	err := e.send(from, to)
	e.analyze()
	e.updateGauges()
	events := e.drainEvents()
	e.mu.Unlock()
	e.publish(events)
	return err
}

// Consume performs the consumer-side acquisition, then re-runs the
// deadlock scan.
func (e *Engine) Consume(from, to string) error {
	e.mu.Lock()
	err := e.consume(from, to)
	e.analyze()
	e.updateGauges()
	events := e.drainEvents()
	e.mu.Unlock()
	e.publish(events)
	return err
}

// Snapshot returns an immutable copy of the full simulation state
func (e *Engine) Snapshot() types.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Snapshot()
}

// Processes lists all processes
func (e *Engine) Processes() []types.Process {
	return e.Snapshot().Processes
}

// Connections lists all connections
func (e *Engine) Connections() []types.Connection {
	return e.Snapshot().Connections
}

// Transfers lists all in-flight transfers
func (e *Engine) Transfers() []types.DataTransfer {
	return e.Snapshot().Transfers
}

// Cycles lists all detected deadlock cycles, resolved ones included
func (e *Engine) Cycles() []types.DeadlockCycle {
	return e.Snapshot().Cycles
}

// Reset is the external recovery path out of the terminal deadlocked
// state: processes return to idle, queue loads and region semaphores
// clear, transfers and pending releases drop, and open cycles flip to
// resolved. Processes and connections themselves survive.
func (e *Engine) Reset() {
	e.mu.Lock()
	for _, p := range e.store.processes {
		p.State = types.ProcessIdle
		p.WaitingFor = nil
		p.MemoryAccess = nil
		p.Resources = []string{}
	}
	for _, c := range e.store.connections {
		c.State = types.ConnectionIdle
		c.CurrentLoad = 0
	}
	for _, r := range e.store.regions {
		r.Semaphore.CurrentReaders = 0
		r.Semaphore.HasWriter = false
	}
	e.store.transfers = make(map[string]*types.DataTransfer)
	e.transferHandles = make(map[string]string)
	for _, c := range e.store.cycles {
		c.Resolved = true
	}
	e.sched.clear()
	e.saturated = false
	e.updateGauges()
	e.mu.Unlock()
	e.log.Info("simulation reset")
}

// Clear drops the whole simulation, processes and connections included
func (e *Engine) Clear() {
	e.mu.Lock()
	e.store = NewStore(e.cfg.DefaultQueueCapacity, e.cfg.DefaultMaxReaders, func() time.Time { return e.now() })
	e.transferHandles = make(map[string]string)
	e.sched.clear()
	e.saturated = false
	e.updateGauges()
	e.mu.Unlock()
	e.log.Info("simulation cleared")
}

// analyze re-runs both deadlock signals over a snapshot taken after the
// triggering mutation has fully committed. Must hold e.mu.
func (e *Engine) analyze() {
	snap := e.store.Snapshot()

	for _, cyc := range DetectCycles(snap) {
		cyc := cyc
		e.markDeadlocked(&cyc, snap)
	}

	// The saturation alarm is edge-triggered so a persistent everyone-busy
	// state does not flood the log on every tick.
	sat := Saturated(snap)
	if sat && !e.saturated {
		e.emit(types.EventSaturation, types.SeverityWarning,
			"all processes are engaged; the system may be approaching deadlock",
			"", map[string]interface{}{"process_count": len(snap.Processes)})
	}
	e.saturated = sat
}

// markDeadlocked transitions every implicated entity into the terminal
// deadlocked state, records the cycle, and emits the high-severity event.
// Must hold e.mu.
func (e *Engine) markDeadlocked(cyc *types.DeadlockCycle, snap types.Snapshot) {
	names := make([]string, 0, len(cyc.ProcessIDs))
	held := make(map[string]interface{}, len(cyc.ProcessIDs))
	for _, pid := range cyc.ProcessIDs {
		p, ok := e.store.Process(pid)
		if !ok {
			continue
		}
		p.State = types.ProcessDeadlocked
		names = append(names, p.Name)
		summary := map[string]interface{}{"held": len(p.Resources)}
		if p.WaitingFor != nil {
			summary["waiting_for"] = *p.WaitingFor
		}
		held[p.Name] = summary
	}
	for _, cid := range cyc.ConnectionIDs {
		if c, ok := e.store.Connection(cid); ok {
			c.State = types.ConnectionDeadlocked
		}
	}
	e.store.AddCycle(cyc)

	details := ""
	for i, n := range names {
		if i > 0 {
			details += " -> "
		}
		details += n
	}
	if len(names) > 0 {
		details += " -> " + names[0]
	}

	e.emit(types.EventDeadlock, types.SeverityCritical,
		fmt.Sprintf("deadlock detected: %d processes in circular wait", len(names)),
		details, map[string]interface{}{
			"cycle_id":       cyc.ID,
			"processes":      names,
			"process_ids":    cyc.ProcessIDs,
			"connection_ids": cyc.ConnectionIDs,
			"resources":      held,
			"suggestions":    SuggestMitigations(snap, *cyc),
		})
	if e.metrics != nil {
		e.metrics.IncDeadlocks()
	}
}

// emit queues an event for publication after the current mutation commits.
// Must hold e.mu.
func (e *Engine) emit(kind types.EventKind, sev types.Severity, msg, details string, ctx map[string]interface{}) {
	e.pending = append(e.pending, types.Event{
		ID:        id.NewEventID().String(),
		Kind:      kind,
		Message:   msg,
		Details:   details,
		Severity:  sev,
		Context:   ctx,
		Timestamp: e.now(),
	})
}

// drainEvents hands the pending batch to the caller. Must hold e.mu.
func (e *Engine) drainEvents() []types.Event {
	events := e.pending
	e.pending = nil
	return events
}

// publish pushes events to the emitter and the log, outside the lock
func (e *Engine) publish(events []types.Event) {
	for _, evt := range events {
		if e.emitter != nil {
			e.emitter.Publish(evt)
		}
		fields := []zap.Field{
			zap.String("kind", string(evt.Kind)),
			zap.String("event_id", evt.ID),
		}
		switch evt.Severity {
		case types.SeverityCritical:
			e.log.Error(evt.Message, fields...)
		case types.SeverityWarning:
			e.log.Warn(evt.Message, fields...)
		default:
			e.log.Debug(evt.Message, fields...)
		}
	}
}

// updateGauges refreshes the live entity gauges. Must hold e.mu.
func (e *Engine) updateGauges() {
	if e.metrics == nil {
		return
	}
	e.metrics.SetProcesses(len(e.store.processes))
	e.metrics.SetConnections(len(e.store.connections))
	e.metrics.SetTransfers(len(e.store.transfers))
}
