package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipcviz/backend/internal/shared/types"
)

func snapFrom(procs []string, conns []types.Connection) types.Snapshot {
	snap := types.Snapshot{TakenAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	for _, p := range procs {
		snap.Processes = append(snap.Processes, types.Process{ID: p, Name: p})
	}
	snap.Connections = conns
	return snap
}

func activeConn(id, from, to string) types.Connection {
	return types.Connection{ID: id, From: from, To: to, Type: types.TypeQueue, State: types.ConnectionActive}
}

func TestDetectCyclesThreeNodeRing(t *testing.T) {
	snap := snapFrom([]string{"pa", "pb", "pc"}, []types.Connection{
		activeConn("c1", "pa", "pb"),
		activeConn("c2", "pb", "pc"),
		activeConn("c3", "pc", "pa"),
	})

	cycles := DetectCycles(snap)
	require.Len(t, cycles, 1)

	cyc := cycles[0]
	assert.Equal(t, []string{"pa", "pb", "pc", "pa"}, cyc.ProcessIDs)
	assert.Equal(t, []string{"c1", "c2", "c3"}, cyc.ConnectionIDs)
	assert.Equal(t, snap.TakenAt, cyc.DetectedAt)
	assert.False(t, cyc.Resolved)
}

func TestDetectCyclesSelfLoop(t *testing.T) {
	snap := snapFrom([]string{"pa"}, []types.Connection{
		activeConn("c1", "pa", "pa"),
	})

	cycles := DetectCycles(snap)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"pa", "pa"}, cycles[0].ProcessIDs)
	assert.Equal(t, []string{"c1"}, cycles[0].ConnectionIDs)
}

func TestDetectCyclesAcyclic(t *testing.T) {
	snap := snapFrom([]string{"pa", "pb", "pc"}, []types.Connection{
		activeConn("c1", "pa", "pb"),
		activeConn("c2", "pa", "pc"),
		activeConn("c3", "pb", "pc"),
	})

	assert.Empty(t, DetectCycles(snap))
	assert.False(t, HasCycle(snap))
}

func TestDetectCyclesIgnoresIdleConnections(t *testing.T) {
	c3 := activeConn("c3", "pc", "pa")
	c3.State = types.ConnectionIdle
	snap := snapFrom([]string{"pa", "pb", "pc"}, []types.Connection{
		activeConn("c1", "pa", "pb"),
		activeConn("c2", "pb", "pc"),
		c3,
	})

	assert.Empty(t, DetectCycles(snap), "idle edges do not participate in the wait-for graph")
}

func TestDetectCyclesCycleWithTail(t *testing.T) {
	// pd feeds into the ring but is not part of it.
	snap := snapFrom([]string{"pa", "pb", "pc", "pd"}, []types.Connection{
		activeConn("c1", "pa", "pb"),
		activeConn("c2", "pb", "pc"),
		activeConn("c3", "pc", "pa"),
		activeConn("c4", "pd", "pa"),
	})

	cycles := DetectCycles(snap)
	require.Len(t, cycles, 1)
	assert.NotContains(t, cycles[0].ProcessIDs, "pd")
	assert.Len(t, cycles[0].ProcessIDs, 4)
}

func TestDetectCyclesDeterministic(t *testing.T) {
	snap := snapFrom([]string{"pa", "pb", "pc"}, []types.Connection{
		activeConn("c2", "pb", "pc"),
		activeConn("c3", "pc", "pa"),
		activeConn("c1", "pa", "pb"),
	})

	first := DetectCycles(snap)
	second := DetectCycles(snap)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ProcessIDs, second[0].ProcessIDs)
	assert.Equal(t, first[0].ConnectionIDs, second[0].ConnectionIDs)
}

func TestSaturated(t *testing.T) {
	// All processes touched by active connections.
	snap := snapFrom([]string{"pa", "pb"}, []types.Connection{
		activeConn("c1", "pa", "pb"),
	})
	assert.True(t, Saturated(snap))

	// Saturation can fire on acyclic states; the cycle scan stays negative.
	assert.False(t, HasCycle(snap))

	// One untouched process defeats the alarm.
	snap = snapFrom([]string{"pa", "pb", "pc"}, []types.Connection{
		activeConn("c1", "pa", "pb"),
	})
	assert.False(t, Saturated(snap))

	// A single process never saturates.
	snap = snapFrom([]string{"pa"}, nil)
	assert.False(t, Saturated(snap))

	// No active connections at all.
	snap = snapFrom([]string{"pa", "pb"}, nil)
	assert.False(t, Saturated(snap))
}

func TestSuggestMitigations(t *testing.T) {
	snap := snapFrom([]string{"pa", "pb"}, []types.Connection{
		{ID: "cq", From: "pa", To: "pb", Type: types.TypeQueue, State: types.ConnectionActive},
		{ID: "cm", From: "pb", To: "pa", Type: types.TypeMemory, State: types.ConnectionActive},
	})
	cycle := types.DeadlockCycle{
		ProcessIDs:    []string{"pa", "pb", "pa"},
		ConnectionIDs: []string{"cq", "cm"},
	}

	suggestions := SuggestMitigations(snap, cycle)
	require.NotEmpty(t, suggestions)

	joined := ""
	for _, s := range suggestions {
		joined += s + "\n"
	}
	assert.Contains(t, joined, "queue capacity")
	assert.Contains(t, joined, "fixed global order")
}
