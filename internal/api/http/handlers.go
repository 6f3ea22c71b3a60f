package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ipcviz/backend/internal/engine"
	"github.com/ipcviz/backend/internal/events"
	"github.com/ipcviz/backend/internal/scenario"
	"github.com/ipcviz/backend/internal/shared/types"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	engine    *engine.Engine
	broker    *events.Broker
	scenarios *scenario.Runner
}

// NewHandlers creates a new handler set
func NewHandlers(eng *engine.Engine, broker *events.Broker, scenarios *scenario.Runner) *Handlers {
	return &Handlers{
		engine:    eng,
		broker:    broker,
		scenarios: scenarios,
	}
}

// createProcessRequest is the body of POST /processes
type createProcessRequest struct {
	Name     string         `json:"name"`
	Position types.Position `json:"position"`
}

// createConnectionRequest is the body of POST /connections
type createConnectionRequest struct {
	From       string `json:"from" binding:"required"`
	To         string `json:"to" binding:"required"`
	Type       string `json:"type" binding:"required"`
	Capacity   int    `json:"capacity"`
	MaxReaders int    `json:"max_readers"`
}

// transferRequest is the body of POST /send and POST /consume
type transferRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "IPC Deadlock Simulator (Go)",
		"version": "0.2.0",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	snap := h.engine.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"processes":   len(snap.Processes),
		"connections": len(snap.Connections),
		"transfers":   len(snap.Transfers),
		"subscribers": h.broker.SubscriberCount(),
	})
}

// CreateProcess spawns a simulated process
func (h *Handlers) CreateProcess(c *gin.Context) {
	var req createProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p := h.engine.CreateProcess(req.Name, req.Position)
	c.JSON(http.StatusCreated, gin.H{"process": p})
}

// RemoveProcess deletes a process and its connections
func (h *Handlers) RemoveProcess(c *gin.Context) {
	pid := c.Param("id")

	if err := h.engine.RemoveProcess(pid); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "process_id": pid})
}

// ListProcesses lists all processes
func (h *Handlers) ListProcesses(c *gin.Context) {
	procs := h.engine.Processes()
	c.JSON(http.StatusOK, gin.H{
		"processes": procs,
		"count":     len(procs),
	})
}

// CreateConnection establishes an IPC channel between two processes
func (h *Handlers) CreateConnection(c *gin.Context) {
	var req createConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctype := types.ConnectionType(req.Type)
	switch ctype {
	case types.TypePipe, types.TypeQueue, types.TypeMemory:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be pipe, queue, or memory"})
		return
	}

	conn, err := h.engine.CreateConnection(req.From, req.To, ctype, engine.ConnectionParams{
		Capacity:   req.Capacity,
		MaxReaders: req.MaxReaders,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"connection": conn})
}

// ListConnections lists all connections
func (h *Handlers) ListConnections(c *gin.Context) {
	conns := h.engine.Connections()
	c.JSON(http.StatusOK, gin.H{
		"connections": conns,
		"count":       len(conns),
	})
}

// Send performs the producer-side acquisition between two processes
func (h *Handlers) Send(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.engine.Send(req.From, req.To); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Consume performs the consumer-side acquisition between two processes
func (h *Handlers) Consume(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.engine.Consume(req.From, req.To); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListTransfers lists in-flight data transfers
func (h *Handlers) ListTransfers(c *gin.Context) {
	transfers := h.engine.Transfers()
	c.JSON(http.StatusOK, gin.H{
		"transfers": transfers,
		"count":     len(transfers),
	})
}

// ListDeadlocks lists detected deadlock cycles, resolved ones included
func (h *Handlers) ListDeadlocks(c *gin.Context) {
	cycles := h.engine.Cycles()
	c.JSON(http.StatusOK, gin.H{
		"deadlocks": cycles,
		"count":     len(cycles),
	})
}

// State returns a full snapshot of the simulation
func (h *Handlers) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Snapshot())
}

// ListEvents returns the retained event history
func (h *Handlers) ListEvents(c *gin.Context) {
	history := h.broker.History()
	c.JSON(http.StatusOK, gin.H{
		"events": history,
		"count":  len(history),
	})
}

// Reset returns every entity to idle and resolves open deadlocks
func (h *Handlers) Reset(c *gin.Context) {
	h.engine.Reset()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Clear drops the whole simulation
func (h *Handlers) Clear(c *gin.Context) {
	h.engine.Clear()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListScenarios lists the loaded demo scenarios
func (h *Handlers) ListScenarios(c *gin.Context) {
	if h.scenarios == nil {
		c.JSON(http.StatusOK, gin.H{"scenarios": []string{}, "count": 0})
		return
	}
	names := h.scenarios.Names()
	c.JSON(http.StatusOK, gin.H{
		"scenarios": names,
		"count":     len(names),
	})
}

// RunScenario clears the simulation and replays a named scenario
func (h *Handlers) RunScenario(c *gin.Context) {
	if h.scenarios == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no scenarios loaded"})
		return
	}
	name := c.Param("name")

	result, err := h.scenarios.Run(name)
	if err != nil {
		if errors.Is(err, scenario.ErrUnknownScenario) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// respondError maps simulation errors onto HTTP statuses, keeping the
// stable error code in the body for clients.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrUnknownProcess),
		errors.Is(err, engine.ErrUnknownConnection),
		errors.Is(err, engine.ErrNoConnectionBetween):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrDuplicateConnection),
		errors.Is(err, engine.ErrQueueFull),
		errors.Is(err, engine.ErrQueueEmpty),
		errors.Is(err, engine.ErrMemoryLocked),
		errors.Is(err, engine.ErrMaxReadersReached),
		errors.Is(err, engine.ErrDeadlocked):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"code":  engine.ErrorCode(err),
	})
}
