package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/certscan/backend/internal/logging"
	"github.com/certscan/backend/internal/models"
	"github.com/certscan/backend/internal/resizer"
	"github.com/certscan/backend/internal/workspace"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WebSocket message types for the event stream
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypePong      = "pong"
	MsgTypeError     = "error"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// WSMessage is the envelope of every frame on the event stream. Workspace
// events use their event type as Type.
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// connectedPayload is sent once so a page can render without extra requests.
type connectedPayload struct {
	Queue   workspace.QueueSnapshot `json:"queue"`
	Run     models.RunStatus        `json:"run"`
	Columns []resizer.Column        `json:"columns"`
}

// WebSocketHandler streams workspace events to connected pages
type WebSocketHandler struct {
	ws       *workspace.Workspace
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler creates a new event stream handler
func NewWebSocketHandler(ws *workspace.Workspace, logger *slog.Logger) EventsHandler {
	return &WebSocketHandler{
		ws: ws,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		logger: logging.Component(logger, "events"),
	}
}

// HandleEvents upgrades the connection and forwards hub events until the
// client goes away
func (wsh *WebSocketHandler) HandleEvents(c echo.Context) error {
	conn, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	events, unsubscribe := wsh.ws.Events.Subscribe()
	defer unsubscribe()

	wsh.logger.Debug("event stream connected", "remote", c.RealIP(), "subscribers", wsh.ws.Events.Subscribers())

	var writeMu sync.Mutex
	send := func(msg WSMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(msg)
	}

	if err := send(wsh.message(MsgTypeConnected, connectedPayload{
		Queue:   wsh.ws.Snapshot(),
		Run:     wsh.ws.Runner.Status(),
		Columns: wsh.ws.Columns.Widths(),
	}, time.Now())); err != nil {
		return nil
	}

	closed := make(chan struct{})
	go wsh.readLoop(conn, send, closed)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			wsh.logger.Debug("event stream disconnected", "remote", c.RealIP())
			return nil
		case <-c.Request().Context().Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if err := send(wsh.message(string(e.Type), e.Payload, e.Timestamp)); err != nil {
				return nil
			}
		case <-ticker.C:
			writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			writeMu.Unlock()
			if err != nil {
				return nil
			}
		}
	}
}

// readLoop answers client pings and notices when the connection closes.
func (wsh *WebSocketHandler) readLoop(conn *websocket.Conn, send func(WSMessage) error, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(4 * 1024)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsh.logger.Debug("event stream read error", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))

		switch msg.Type {
		case MsgTypePing:
			_ = send(WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
		default:
			_ = send(wsh.message(MsgTypeError, map[string]string{
				"message": "Unknown message type: " + msg.Type,
				"code":    "INVALID_TYPE",
			}, time.Now()))
		}
	}
}

func (wsh *WebSocketHandler) message(msgType string, payload interface{}, ts time.Time) WSMessage {
	msg := WSMessage{Type: msgType, Timestamp: ts.UnixMilli()}
	if payload == nil {
		return msg
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		wsh.logger.Warn("failed to encode event payload", "type", msgType, "error", err)
		return msg
	}
	msg.Payload = raw
	return msg
}
