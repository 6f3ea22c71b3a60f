// Package id provides centralized ID generation for the simulation core.
//
// Every entity the engine issues gets a prefixed ULID (proc_*, conn_*,
// region_*, xfer_*, cycle_*, res_*, evt_*). ULIDs are lexicographically
// sortable, which the analyzer relies on for a deterministic node visit
// order, and the prefixes keep log output readable.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ProcessID identifies a simulated process
type ProcessID string

// ConnectionID identifies an IPC connection
type ConnectionID string

// RegionID identifies a shared-memory region
type RegionID string

// TransferID identifies an in-flight data transfer
type TransferID string

// CycleID identifies a detected deadlock cycle
type CycleID string

// ResourceID identifies an opaque resource handle held by a process
type ResourceID string

// EventID identifies an emitted event
type EventID string

const (
	ProcessPrefix  = "proc"
	ConnPrefix     = "conn"
	RegionPrefix   = "region"
	TransferPrefix = "xfer"
	CyclePrefix    = "cycle"
	ResourcePrefix = "res"
	EventPrefix    = "evt"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: rand.Reader,
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewProcessID generates a new process ID
func NewProcessID() ProcessID {
	return ProcessID(Default().GenerateWithPrefix(ProcessPrefix))
}

// NewConnectionID generates a new connection ID
func NewConnectionID() ConnectionID {
	return ConnectionID(Default().GenerateWithPrefix(ConnPrefix))
}

// NewRegionID generates a new memory region ID
func NewRegionID() RegionID {
	return RegionID(Default().GenerateWithPrefix(RegionPrefix))
}

// NewTransferID generates a new transfer ID
func NewTransferID() TransferID {
	return TransferID(Default().GenerateWithPrefix(TransferPrefix))
}

// NewCycleID generates a new deadlock cycle ID
func NewCycleID() CycleID {
	return CycleID(Default().GenerateWithPrefix(CyclePrefix))
}

// NewResourceID generates a new resource handle ID
func NewResourceID() ResourceID {
	return ResourceID(Default().GenerateWithPrefix(ResourcePrefix))
}

// NewEventID generates a new event ID
func NewEventID() EventID {
	return EventID(Default().GenerateWithPrefix(EventPrefix))
}

func (id ProcessID) String() string    { return string(id) }
func (id ConnectionID) String() string { return string(id) }
func (id RegionID) String() string     { return string(id) }
func (id TransferID) String() string   { return string(id) }
func (id CycleID) String() string      { return string(id) }
func (id ResourceID) String() string   { return string(id) }
func (id EventID) String() string      { return string(id) }

// IsValid checks if an ID carries the given prefix and a parseable ULID
func IsValid(id, prefix string) bool {
	raw, ok := strings.CutPrefix(id, prefix+"_")
	if !ok {
		return false
	}
	_, err := ulid.Parse(raw)
	return err == nil
}

// Timestamp extracts the creation time from a prefixed ID
func Timestamp(id string) (time.Time, error) {
	_, raw, ok := strings.Cut(id, "_")
	if !ok {
		return time.Time{}, fmt.Errorf("id %q has no prefix", id)
	}
	parsed, err := ulid.Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
