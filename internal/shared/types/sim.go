package types

import "time"

// ProcessState represents process lifecycle states
type ProcessState string

const (
	ProcessIdle       ProcessState = "idle"
	ProcessRunning    ProcessState = "running"
	ProcessBlocked    ProcessState = "blocked"
	ProcessDeadlocked ProcessState = "deadlocked"
)

// ConnectionState represents connection lifecycle states
type ConnectionState string

const (
	ConnectionIdle       ConnectionState = "idle"
	ConnectionActive     ConnectionState = "active"
	ConnectionDeadlocked ConnectionState = "deadlocked"
)

// ConnectionType identifies the IPC mechanism a connection models
type ConnectionType string

const (
	TypePipe   ConnectionType = "pipe"
	TypeQueue  ConnectionType = "queue"
	TypeMemory ConnectionType = "memory"
)

// AccessMode distinguishes shared-memory access grants
type AccessMode string

const (
	AccessRead  AccessMode = "read"
	AccessWrite AccessMode = "write"
)

// Position is opaque to the core; the canvas layer owns its meaning
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MemoryAccess records which region a process currently holds and how
type MemoryAccess struct {
	Mode     AccessMode `json:"mode"`
	RegionID string     `json:"region_id"`
}

// Process represents a simulated process
type Process struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Position     Position      `json:"position"`
	State        ProcessState  `json:"state"`
	Resources    []string      `json:"resources"` // Opaque resource handles currently held
	WaitingFor   *string       `json:"waiting_for,omitempty"`
	MemoryAccess *MemoryAccess `json:"memory_access,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Semaphore guards a shared-memory region with exclusive-writer,
// shared-reader discipline
type Semaphore struct {
	MaxReaders     int  `json:"max_readers"`
	CurrentReaders int  `json:"current_readers"`
	HasWriter      bool `json:"has_writer"`
}

// MemoryRegion is shared by every connection that references it
type MemoryRegion struct {
	ID        string    `json:"id"`
	Semaphore Semaphore `json:"semaphore"`
}

// Connection represents a directed IPC link between two processes
type Connection struct {
	ID          string          `json:"id"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Type        ConnectionType  `json:"type"`
	State       ConnectionState `json:"state"`
	Capacity    int             `json:"capacity,omitempty"`     // queue only
	CurrentLoad int             `json:"current_load,omitempty"` // queue only
	RegionID    string          `json:"region_id,omitempty"`    // memory only
	CreatedAt   time.Time       `json:"created_at"`
}

// TransferType distinguishes producer-side and consumer-side transfers
type TransferType string

const (
	TransferProduce TransferType = "produce"
	TransferConsume TransferType = "consume"
)

// DataTransfer is an in-flight transfer advanced by the scheduler
type DataTransfer struct {
	ID           string       `json:"id"`
	ConnectionID string       `json:"connection_id"`
	ProcessID    string       `json:"process_id"`
	StartTime    time.Time    `json:"start_time"`
	Progress     int          `json:"progress"` // 0-100
	Size         int          `json:"size"`     // cosmetic, 1-5
	Type         TransferType `json:"type"`
}

// DeadlockCycle records one detected cycle in the wait-for graph.
// ProcessIDs lists the cycle with the first process repeated at the end;
// ConnectionIDs lists the edges along it.
type DeadlockCycle struct {
	ID            string    `json:"id"`
	ProcessIDs    []string  `json:"process_ids"`
	ConnectionIDs []string  `json:"connection_ids"`
	DetectedAt    time.Time `json:"detected_at"`
	Resolved      bool      `json:"resolved"`
}

// Snapshot is an immutable copy of the full simulation state
type Snapshot struct {
	Processes   []Process       `json:"processes"`
	Connections []Connection    `json:"connections"`
	Regions     []MemoryRegion  `json:"regions"`
	Transfers   []DataTransfer  `json:"transfers"`
	Cycles      []DeadlockCycle `json:"cycles"`
	TakenAt     time.Time       `json:"taken_at"`
}
