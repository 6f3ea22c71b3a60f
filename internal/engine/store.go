package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/ipcviz/backend/internal/shared/id"
	"github.com/ipcviz/backend/internal/shared/types"
)

// ConnectionParams carries optional per-type connection settings
type ConnectionParams struct {
	Capacity   int // queue: bounded capacity
	MaxReaders int // memory: reader limit for a freshly created region
}

// Store is the canonical owner of process, connection, and region records.
// It performs no blocking logic itself and is mutated only by the engine,
// which serializes access; Store carries no lock of its own.
type Store struct {
	processes   map[string]*types.Process
	connections map[string]*types.Connection
	regions     map[string]*types.MemoryRegion
	regionRefs  map[string]int // region id -> referencing connection count
	transfers   map[string]*types.DataTransfer
	cycles      []*types.DeadlockCycle

	procSeq int // for default display names P1, P2, ...

	defaultCapacity   int
	defaultMaxReaders int
	now               func() time.Time
}

// NewStore creates an empty entity store
func NewStore(defaultCapacity, defaultMaxReaders int, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		processes:         make(map[string]*types.Process),
		connections:       make(map[string]*types.Connection),
		regions:           make(map[string]*types.MemoryRegion),
		regionRefs:        make(map[string]int),
		transfers:         make(map[string]*types.DataTransfer),
		defaultCapacity:   defaultCapacity,
		defaultMaxReaders: defaultMaxReaders,
		now:               now,
	}
}

// CreateProcess registers a new idle process. An empty name gets the next
// default display name (P1, P2, ...).
func (s *Store) CreateProcess(name string, pos types.Position) *types.Process {
	s.procSeq++
	if name == "" {
		name = fmt.Sprintf("P%d", s.procSeq)
	}
	p := &types.Process{
		ID:        id.NewProcessID().String(),
		Name:      name,
		Position:  pos,
		State:     types.ProcessIdle,
		Resources: []string{},
		CreatedAt: s.now(),
	}
	s.processes[p.ID] = p
	return p
}

// Process returns the mutable record for an id
func (s *Store) Process(pid string) (*types.Process, bool) {
	p, ok := s.processes[pid]
	return p, ok
}

// Connection returns the mutable record for an id
func (s *Store) Connection(cid string) (*types.Connection, bool) {
	c, ok := s.connections[cid]
	return c, ok
}

// Region returns the mutable record for an id
func (s *Store) Region(rid string) (*types.MemoryRegion, bool) {
	r, ok := s.regions[rid]
	return r, ok
}

// RemoveProcess deletes a process, every connection touching it, and every
// transfer riding those connections. Regions left unreferenced are
// discarded. Returns the removed connection ids, or false for an unknown
// process.
func (s *Store) RemoveProcess(pid string) ([]string, bool) {
	if _, ok := s.processes[pid]; !ok {
		return nil, false
	}

	var removed []string
	for cid, c := range s.connections {
		if c.From == pid || c.To == pid {
			removed = append(removed, cid)
		}
	}
	sort.Strings(removed)
	for _, cid := range removed {
		s.removeConnection(cid)
	}

	// Drop transfers owned by the process itself (pipe transfers it started
	// over a surviving connection cannot exist once the process is gone).
	for tid, t := range s.transfers {
		if t.ProcessID == pid {
			delete(s.transfers, tid)
		}
	}

	delete(s.processes, pid)
	return removed, true
}

// removeConnection deletes one connection, its transfers, and its region
// reference.
func (s *Store) removeConnection(cid string) {
	c, ok := s.connections[cid]
	if !ok {
		return
	}
	for tid, t := range s.transfers {
		if t.ConnectionID == cid {
			delete(s.transfers, tid)
		}
	}
	if c.RegionID != "" {
		s.regionRefs[c.RegionID]--
		if s.regionRefs[c.RegionID] <= 0 {
			delete(s.regionRefs, c.RegionID)
			delete(s.regions, c.RegionID)
		}
	}
	delete(s.connections, cid)
}

// CreateConnection registers a directed connection between two known
// processes. An equivalent connection (same directed pair and type, or the
// reverse pair for pipes) is rejected. Memory connections targeting a
// process that already has an inbound memory connection share its region.
func (s *Store) CreateConnection(from, to string, ctype types.ConnectionType, params ConnectionParams) (*types.Connection, error) {
	if _, ok := s.processes[from]; !ok {
		return nil, fmt.Errorf("from %s: %w", from, ErrUnknownProcess)
	}
	if _, ok := s.processes[to]; !ok {
		return nil, fmt.Errorf("to %s: %w", to, ErrUnknownProcess)
	}

	for _, c := range s.connections {
		if c.Type != ctype {
			continue
		}
		if c.From == from && c.To == to {
			return nil, ErrDuplicateConnection
		}
		if ctype == types.TypePipe && c.From == to && c.To == from {
			return nil, ErrDuplicateConnection
		}
	}

	conn := &types.Connection{
		ID:        id.NewConnectionID().String(),
		From:      from,
		To:        to,
		Type:      ctype,
		State:     types.ConnectionIdle,
		CreatedAt: s.now(),
	}

	switch ctype {
	case types.TypeQueue:
		conn.Capacity = params.Capacity
		if conn.Capacity <= 0 {
			conn.Capacity = s.defaultCapacity
		}
	case types.TypeMemory:
		conn.RegionID = s.regionFor(to, params.MaxReaders)
		s.regionRefs[conn.RegionID]++
	}

	s.connections[conn.ID] = conn
	return conn, nil
}

// regionFor returns the region shared by memory connections targeting the
// given process, creating it on first use.
func (s *Store) regionFor(to string, maxReaders int) string {
	for _, c := range s.connections {
		if c.Type == types.TypeMemory && c.To == to {
			return c.RegionID
		}
	}
	if maxReaders <= 0 {
		maxReaders = s.defaultMaxReaders
	}
	region := &types.MemoryRegion{
		ID: id.NewRegionID().String(),
		Semaphore: types.Semaphore{
			MaxReaders: maxReaders,
		},
	}
	s.regions[region.ID] = region
	return region.ID
}

// FindConnection resolves the connection a send/consume between two
// processes addresses: directional for queue/memory, either direction for
// pipes. Directional matches win over a reverse pipe match.
func (s *Store) FindConnection(from, to string) (*types.Connection, bool) {
	var reverse *types.Connection
	var best *types.Connection
	for _, c := range s.connections {
		if c.From == from && c.To == to {
			if best == nil || c.ID < best.ID {
				best = c
			}
		}
		if c.Type == types.TypePipe && c.From == to && c.To == from {
			if reverse == nil || c.ID < reverse.ID {
				reverse = c
			}
		}
	}
	if best != nil {
		return best, true
	}
	if reverse != nil {
		return reverse, true
	}
	return nil, false
}

// AddTransfer registers an in-flight transfer
func (s *Store) AddTransfer(t *types.DataTransfer) {
	s.transfers[t.ID] = t
}

// RemoveTransfer drops a transfer by id
func (s *Store) RemoveTransfer(tid string) {
	delete(s.transfers, tid)
}

// TransfersFor reports whether a connection still has in-flight transfers
func (s *Store) TransfersFor(cid string) bool {
	for _, t := range s.transfers {
		if t.ConnectionID == cid {
			return true
		}
	}
	return false
}

// AddCycle appends a detected deadlock cycle
func (s *Store) AddCycle(c *types.DeadlockCycle) {
	s.cycles = append(s.cycles, c)
}

// Snapshot returns an immutable deep copy of the whole store, entities
// sorted by id so downstream consumers see a deterministic order.
func (s *Store) Snapshot() types.Snapshot {
	snap := types.Snapshot{
		Processes:   make([]types.Process, 0, len(s.processes)),
		Connections: make([]types.Connection, 0, len(s.connections)),
		Regions:     make([]types.MemoryRegion, 0, len(s.regions)),
		Transfers:   make([]types.DataTransfer, 0, len(s.transfers)),
		Cycles:      make([]types.DeadlockCycle, 0, len(s.cycles)),
		TakenAt:     s.now(),
	}
	for _, p := range s.processes {
		snap.Processes = append(snap.Processes, copyProcess(p))
	}
	for _, c := range s.connections {
		snap.Connections = append(snap.Connections, *c)
	}
	for _, r := range s.regions {
		snap.Regions = append(snap.Regions, *r)
	}
	for _, t := range s.transfers {
		snap.Transfers = append(snap.Transfers, *t)
	}
	for _, c := range s.cycles {
		snap.Cycles = append(snap.Cycles, copyCycle(c))
	}
	sort.Slice(snap.Processes, func(i, j int) bool { return snap.Processes[i].ID < snap.Processes[j].ID })
	sort.Slice(snap.Connections, func(i, j int) bool { return snap.Connections[i].ID < snap.Connections[j].ID })
	sort.Slice(snap.Regions, func(i, j int) bool { return snap.Regions[i].ID < snap.Regions[j].ID })
	sort.Slice(snap.Transfers, func(i, j int) bool { return snap.Transfers[i].ID < snap.Transfers[j].ID })
	sort.Slice(snap.Cycles, func(i, j int) bool { return snap.Cycles[i].ID < snap.Cycles[j].ID })
	return snap
}

func copyProcess(p *types.Process) types.Process {
	cp := *p
	cp.Resources = append([]string(nil), p.Resources...)
	if p.WaitingFor != nil {
		w := *p.WaitingFor
		cp.WaitingFor = &w
	}
	if p.MemoryAccess != nil {
		m := *p.MemoryAccess
		cp.MemoryAccess = &m
	}
	return cp
}

func copyCycle(c *types.DeadlockCycle) types.DeadlockCycle {
	cp := *c
	cp.ProcessIDs = append([]string(nil), c.ProcessIDs...)
	cp.ConnectionIDs = append([]string(nil), c.ConnectionIDs...)
	return cp
}

// sortedProcessIDs returns process ids in deterministic order
func (s *Store) sortedProcessIDs() []string {
	ids := make([]string, 0, len(s.processes))
	for pid := range s.processes {
		ids = append(ids, pid)
	}
	sort.Strings(ids)
	return ids
}
