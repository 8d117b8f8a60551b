package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/nsvirk/attendanceapi/internal/api/middleware"
	"github.com/nsvirk/attendanceapi/internal/service"
	"github.com/nsvirk/attendanceapi/pkg/utils/response"
	"github.com/nsvirk/attendanceapi/pkg/utils/zaplogger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// inbound is a message sent by the browser tab
type inbound struct {
	Type     string `json:"type"`
	Visible  *bool  `json:"visible,omitempty"`
	NoticeID string `json:"notice_id,omitempty"`
}

// outbound is a message pushed to the browser tab
type outbound struct {
	Type     string                `json:"type"`
	Notice   *service.Notice       `json:"notice,omitempty"`
	NoticeID string                `json:"notice_id,omitempty"`
	Kind     service.ChallengeKind `json:"kind,omitempty"`
	Event    json.RawMessage       `json:"event,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// wsClient queues messages for one connection. Tracker timers call into it,
// so it never blocks: a full buffer drops the message.
type wsClient struct {
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func newWSClient() *wsClient {
	return &wsClient{send: make(chan []byte, wsSendBuffer)}
}

func (c *wsClient) push(msg outbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		zaplogger.Warn("Websocket buffer full, message dropped", zaplogger.Fields{"type": msg.Type})
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *wsClient) NoticeRaised(n service.Notice) {
	c.push(outbound{Type: "notice", Notice: &n})
}

func (c *wsClient) NoticeDismissed(id string) {
	c.push(outbound{Type: "notice_dismissed", NoticeID: id})
}

func (c *wsClient) NoticeRemoved(id string) {
	c.push(outbound{Type: "notice_removed", NoticeID: id})
}

func (c *wsClient) ArmChallenge(kind service.ChallengeKind) {
	c.push(outbound{Type: "challenge", Kind: kind})
}

func (c *wsClient) SessionEnded() {
	c.push(outbound{Type: "session_closed"})
}

// WSHandler serves the per-tab tracking socket and the admin event feed
type WSHandler struct {
	trackers  *service.TrackerService
	publisher *service.PublishService
}

// NewWSHandler creates a new WSHandler
func NewWSHandler(trackers *service.TrackerService, publisher *service.PublishService) *WSHandler {
	return &WSHandler{trackers: trackers, publisher: publisher}
}

// Track upgrades one browser tab. The tab reports activity, visibility and
// notice acknowledgements; the server pushes challenge notices. A dropped
// connection stops the tab's timers and leaves the session to the reconciler.
func (h *WSHandler) Track(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	sessionID := c.QueryParam("session_id")
	client := newWSClient()

	tracker, err := h.trackers.Open(c.Request().Context(), actor.UserID, sessionID, client, client)
	if err != nil {
		return sessionError(c, err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		tracker.Stop()
		client.close()
		return nil
	}
	defer conn.Close()
	defer client.close()
	defer tracker.Stop()

	go writePump(conn, client.send)

	ctx := c.Request().Context()
	keepAlive(conn)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		var msg inbound
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		switch msg.Type {
		case "activity":
			tracker.Activity(ctx)
		case "focus":
			tracker.Focus(ctx)
		case "visibility":
			if msg.Visible != nil {
				tracker.Visibility(ctx, *msg.Visible)
			}
		case "ack":
			if err := tracker.Acknowledge(msg.NoticeID); err != nil {
				client.push(outbound{Type: "error", NoticeID: msg.NoticeID, Error: err.Error()})
			}
		case "unload":
			tracker.Unload()
			return nil
		}
	}
}

// Events streams session change events to an admin
func (h *WSHandler) Events(c echo.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := h.publisher.Subscribe(ctx)
	if err != nil {
		return response.ErrorResponse(c, http.StatusInternalServerError, response.ServerException, err.Error())
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}
	defer conn.Close()

	client := newWSClient()
	defer client.close()
	go writePump(conn, client.send)

	go func() {
		for event := range events {
			if !json.Valid([]byte(event)) {
				continue
			}
			client.push(outbound{Type: "session", Event: json.RawMessage(event)})
		}
	}()

	// the feed is one-way; reading only serves pongs and close frames
	keepAlive(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				zaplogger.Debug("Event feed closed", zaplogger.Fields{"error": err})
			}
			return nil
		}
	}
}

func keepAlive(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
}

// writePump copies queued messages to the connection and pings it
func writePump(conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case msg, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
