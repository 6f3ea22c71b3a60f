package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ipcviz/backend/internal/engine"
	"github.com/ipcviz/backend/internal/events"
	"github.com/ipcviz/backend/internal/infrastructure/logging"
	"github.com/ipcviz/backend/internal/infrastructure/monitoring"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in dev
	},
}

const writeTimeout = 10 * time.Second

// Handler manages WebSocket connections
type Handler struct {
	engine  *engine.Engine
	broker  *events.Broker
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewHandler creates a new WebSocket handler
func NewHandler(eng *engine.Engine, broker *events.Broker, log *logging.Logger, metrics *monitoring.Metrics) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{
		engine:  eng,
		broker:  broker,
		log:     log,
		metrics: metrics,
	}
}

// clientMessage is what clients may send us
type clientMessage struct {
	Type string `json:"type"`
}

// HandleConnection handles WebSocket upgrade and message flow
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	sub := h.broker.Subscribe()
	defer h.broker.Unsubscribe(sub.ID)

	// Writes come from both the event pump and the reader loop, so they
	// serialize through one mutex.
	var writeMu sync.Mutex
	send := func(kind string, payload interface{}) error {
		data, err := sonic.Marshal(map[string]interface{}{
			"type":      kind,
			"payload":   payload,
			"timestamp": time.Now().Unix(),
		})
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
		if h.metrics != nil {
			h.metrics.RecordWSMessage("out", kind)
		}
		return nil
	}

	send("system", gin.H{"message": "Connected to IPC Deadlock Simulator (Go)"})

	done := make(chan struct{})

	// Event pump: broker -> client
	go func() {
		for {
			select {
			case evt, ok := <-sub.C:
				if !ok {
					return
				}
				if err := send("event", evt); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Reader loop: client -> server
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg clientMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			send("error", gin.H{"message": "malformed message"})
			continue
		}
		if h.metrics != nil {
			h.metrics.RecordWSMessage("in", msg.Type)
		}

		switch msg.Type {
		case "ping":
			send("pong", nil)
		case "snapshot":
			send("snapshot", h.engine.Snapshot())
		default:
			send("error", gin.H{"message": "unknown message type"})
		}
	}

	close(done)
}
