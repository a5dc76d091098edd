package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/freightdesk/relay/internal/infrastructure/monitoring"
	"github.com/freightdesk/relay/internal/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The daemon is a local sidecar; origin policy belongs to the
		// deployment's reverse proxy.
		return true
	},
}

// statusFrame is one outbound stream message. IsLoading is derived from
// the snapshot so clients need not recompute it.
type statusFrame struct {
	Type      string            `json:"type"`
	Status    relay.QueueStatus `json:"status"`
	IsLoading bool              `json:"is_loading"`
	Timestamp int64             `json:"timestamp"`
}

// Handler manages status-stream WebSocket connections.
type Handler struct {
	relay   *relay.Relay
	log     *zap.Logger
	metrics *monitoring.Metrics
}

// NewHandler creates a WebSocket handler.
func NewHandler(rl *relay.Relay, log *zap.Logger, metrics *monitoring.Metrics) *Handler {
	return &Handler{relay: rl, log: log, metrics: metrics}
}

// HandleConnection upgrades the request and streams status snapshots
// until the client disconnects.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}

	// Latest-wins buffer: a slow client sees fewer frames, never stale
	// ones out of order.
	updates := make(chan relay.QueueStatus, 1)
	unsub := h.relay.Subscribe(func(st relay.QueueStatus) {
		select {
		case updates <- st:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- st:
			default:
			}
		}
	})
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case st := <-updates:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			frame := statusFrame{
				Type:      "status",
				Status:    st,
				IsLoading: st.IsLoading(),
				Timestamp: time.Now().Unix(),
			}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
