package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipcviz/backend/internal/shared/types"
)

// buildMemoryRing wires three processes writing into each other's shared
// memory and drives all three sends, which produces a circular wait.
func buildMemoryRing(t *testing.T, e *Engine) (types.Process, types.Process, types.Process) {
	t.Helper()
	a := e.CreateProcess("a", types.Position{})
	b := e.CreateProcess("b", types.Position{})
	c := e.CreateProcess("c", types.Position{})

	for _, pair := range [][2]string{{a.ID, b.ID}, {b.ID, c.ID}, {c.ID, a.ID}} {
		_, err := e.CreateConnection(pair[0], pair[1], types.TypeMemory, ConnectionParams{})
		require.NoError(t, err)
	}
	require.NoError(t, e.Send(a.ID, b.ID))
	require.NoError(t, e.Send(b.ID, c.ID))
	require.NoError(t, e.Send(c.ID, a.ID))
	return a, b, c
}

func TestMemoryRingDeadlock(t *testing.T) {
	e, _, emitter := newTestEngine(func(cfg *Config) {
		cfg.ReleaseDelay = time.Hour
	})
	a, b, c := buildMemoryRing(t, e)

	for _, pid := range []string{a.ID, b.ID, c.ID} {
		assert.Equal(t, types.ProcessDeadlocked, findProcess(t, e, pid).State)
	}
	for _, conn := range e.Connections() {
		assert.Equal(t, types.ConnectionDeadlocked, conn.State)
	}

	cycles := e.Cycles()
	require.Len(t, cycles, 1)
	assert.Len(t, cycles[0].ProcessIDs, 4, "cycle lists the first process again at the end")
	assert.Equal(t, cycles[0].ProcessIDs[0], cycles[0].ProcessIDs[3])
	assert.Len(t, cycles[0].ConnectionIDs, 3)
	assert.False(t, cycles[0].Resolved)

	alarms := emitter.byKind(types.EventDeadlock)
	require.Len(t, alarms, 1)
	assert.Equal(t, types.SeverityCritical, alarms[0].Severity)
	assert.NotEmpty(t, alarms[0].Context["suggestions"])
}

func TestDeadlockedStateIsTerminal(t *testing.T) {
	e, clock, _ := newTestEngine(func(cfg *Config) {
		cfg.ReleaseDelay = time.Second
	})
	a, b, _ := buildMemoryRing(t, e)

	// Operations against deadlocked entities are refused.
	err := e.Send(a.ID, b.ID)
	assert.ErrorIs(t, err, ErrDeadlocked)
	err = e.Consume(a.ID, b.ID)
	assert.ErrorIs(t, err, ErrDeadlocked)

	// Timer releases do not dissolve a deadlock either.
	clock.Advance(5 * time.Second)
	e.Step(clock.Now())
	assert.Equal(t, types.ProcessDeadlocked, findProcess(t, e, a.ID).State)
}

func TestResetResolvesDeadlock(t *testing.T) {
	e, _, _ := newTestEngine(func(cfg *Config) {
		cfg.ReleaseDelay = time.Hour
	})
	a, b, _ := buildMemoryRing(t, e)

	e.Reset()

	// Entities survive, state clears.
	assert.Len(t, e.Processes(), 3)
	assert.Len(t, e.Connections(), 3)
	for _, p := range e.Processes() {
		assert.Equal(t, types.ProcessIdle, p.State)
		assert.Empty(t, p.Resources)
		assert.Nil(t, p.WaitingFor)
	}
	for _, c := range e.Connections() {
		assert.Equal(t, types.ConnectionIdle, c.State)
		assert.Zero(t, c.CurrentLoad)
	}
	for _, r := range e.Snapshot().Regions {
		assert.False(t, r.Semaphore.HasWriter)
		assert.Zero(t, r.Semaphore.CurrentReaders)
	}
	assert.Empty(t, e.Transfers())

	cycles := e.Cycles()
	require.Len(t, cycles, 1)
	assert.True(t, cycles[0].Resolved)

	// The system is usable again.
	require.NoError(t, e.Send(a.ID, b.ID))
}

func TestClearDropsEverything(t *testing.T) {
	e, _, _ := newTestEngine(nil)
	buildMemoryRing(t, e)

	e.Clear()

	snap := e.Snapshot()
	assert.Empty(t, snap.Processes)
	assert.Empty(t, snap.Connections)
	assert.Empty(t, snap.Regions)
	assert.Empty(t, snap.Transfers)
	assert.Empty(t, snap.Cycles)
}

func TestConnectionRejectedEvent(t *testing.T) {
	e, _, emitter := newTestEngine(nil)
	a := e.CreateProcess("a", types.Position{})
	b := e.CreateProcess("b", types.Position{})

	_, err := e.CreateConnection(a.ID, b.ID, types.TypeQueue, ConnectionParams{})
	require.NoError(t, err)
	_, err = e.CreateConnection(a.ID, b.ID, types.TypeQueue, ConnectionParams{})
	require.ErrorIs(t, err, ErrDuplicateConnection)

	rejected := emitter.byKind(types.EventConnectionRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "DuplicateConnection", rejected[0].Context["reason"])
}

func TestSaturationAlarmIsEdgeTriggered(t *testing.T) {
	e, _, emitter := newTestEngine(func(cfg *Config) {
		cfg.ReleaseDelay = time.Hour
	})
	a := e.CreateProcess("a", types.Position{})
	b := e.CreateProcess("b", types.Position{})
	_, err := e.CreateConnection(a.ID, b.ID, types.TypeQueue, ConnectionParams{})
	require.NoError(t, err)

	// One active connection touches both processes: saturated.
	require.NoError(t, e.Send(a.ID, b.ID))
	require.Len(t, emitter.byKind(types.EventSaturation), 1)

	// Staying saturated does not re-fire the alarm.
	require.NoError(t, e.Send(a.ID, b.ID))
	assert.Len(t, emitter.byKind(types.EventSaturation), 1)

	// Saturation is a warning that mutates nothing.
	assert.Equal(t, types.ProcessRunning, findProcess(t, e, a.ID).State)
	assert.Empty(t, e.Cycles())
}

func TestRemoveProcessDissolvesWait(t *testing.T) {
	e, _, _ := newTestEngine(func(cfg *Config) {
		cfg.ReleaseDelay = time.Hour
	})
	a := e.CreateProcess("a", types.Position{})
	b := e.CreateProcess("b", types.Position{})
	_, err := e.CreateConnection(a.ID, b.ID, types.TypeMemory, ConnectionParams{})
	require.NoError(t, err)
	_, err = e.CreateConnection(b.ID, a.ID, types.TypeMemory, ConnectionParams{})
	require.NoError(t, err)

	// Two-cycle: a holds b's region, b holds a's region.
	require.NoError(t, e.Send(a.ID, b.ID))
	require.NoError(t, e.Send(b.ID, a.ID))
	assert.Equal(t, types.ProcessDeadlocked, findProcess(t, e, a.ID).State)

	// Removing one participant takes its connections, and with them the
	// cycle's edges, out of the graph.
	require.NoError(t, e.RemoveProcess(b.ID))
	assert.Len(t, e.Connections(), 0)
	assert.Len(t, e.Processes(), 1)
}

func TestEventsCarryIdsAndTimestamps(t *testing.T) {
	e, clock, emitter := newTestEngine(nil)
	e.CreateProcess("a", types.Position{})

	created := emitter.byKind(types.EventProcessCreated)
	require.Len(t, created, 1)
	assert.NotEmpty(t, created[0].ID)
	assert.Equal(t, clock.Now(), created[0].Timestamp)
	assert.Equal(t, types.SeverityInfo, created[0].Severity)
}
