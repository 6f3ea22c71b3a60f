package engine

import "errors"

// Expected, recoverable failure conditions. None are fatal to the engine;
// a failed acquisition never partially mutates resource state.
var (
	ErrDuplicateConnection = errors.New("duplicate connection")
	ErrQueueFull           = errors.New("queue full")
	ErrQueueEmpty          = errors.New("queue empty")
	ErrMemoryLocked        = errors.New("memory locked")
	ErrMaxReadersReached   = errors.New("max readers reached")
	ErrUnknownProcess      = errors.New("unknown process")
	ErrUnknownConnection   = errors.New("unknown connection")
	ErrNoConnectionBetween = errors.New("no connection between processes")
	ErrDeadlocked          = errors.New("entity is deadlocked")
)

// ErrorCode maps an engine error to a stable string code for API clients
// and the log stream.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateConnection):
		return "DuplicateConnection"
	case errors.Is(err, ErrQueueFull):
		return "QueueFull"
	case errors.Is(err, ErrQueueEmpty):
		return "QueueEmpty"
	case errors.Is(err, ErrMemoryLocked):
		return "MemoryLocked"
	case errors.Is(err, ErrMaxReadersReached):
		return "MaxReadersReached"
	case errors.Is(err, ErrUnknownProcess):
		return "UnknownProcess"
	case errors.Is(err, ErrUnknownConnection):
		return "UnknownConnection"
	case errors.Is(err, ErrNoConnectionBetween):
		return "NoConnectionBetween"
	case errors.Is(err, ErrDeadlocked):
		return "Deadlocked"
	default:
		return "Internal"
	}
}
