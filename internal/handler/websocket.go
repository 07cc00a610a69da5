package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"convo-server/internal/middleware"
	"convo-server/internal/pubsub"
	"convo-server/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	Resolver *middleware.Resolver
	Broker   pubsub.Broker
}

type clientFrame struct {
	Type           string `json:"type"`
	Channel        string `json:"channel,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	SID            string `json:"sid,omitempty"`
}

type serverFrame struct {
	Type    string `json:"type"`
	SID     string `json:"sid,omitempty"`
	Channel string `json:"channel,omitempty"`
	Body    any    `json:"body,omitempty"`
	Error   string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsWriter serializes writes from the read loop and the per-subscription
// pump goroutines onto one socket.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) write(frame serverFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// Serve authorizes the connection once at establishment, then serves
// subscribe/unsubscribe frames until the socket closes. Teardown always
// closes the session, which releases every broker registration it holds.
func (h *WebSocketHandler) Serve(c *gin.Context) {
	credential := c.Query("token")
	if credential == "" {
		credential = c.GetHeader("Authorization")
	}
	user, ok := h.Resolver.Resolve(c.Request.Context(), credential)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	sess := session.New(h.Broker)
	if err := sess.Authorize(user); err != nil {
		_ = ws.Close()
		return
	}
	defer func() {
		sess.Close()
		_ = ws.Close()
	}()

	writer := &wsWriter{conn: ws}

	ws.SetReadLimit(1024 * 1024)
	const pongWait = 60 * time.Second
	const writeWait = 10 * time.Second
	pingPeriod := (pongWait * 9) / 10

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() {
		closeOnce.Do(func() {
			close(done)
		})
	}
	defer closeDone()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(writeWait)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					_ = ws.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case "ping":
			_ = writer.write(serverFrame{Type: "pong"})
		case "subscribe":
			h.subscribe(c, sess, writer, frame)
		case "unsubscribe":
			if frame.SID != "" {
				sess.Detach(frame.SID)
			}
		}
	}
}

func (h *WebSocketHandler) subscribe(c *gin.Context, sess *session.Session, writer *wsWriter, frame clientFrame) {
	user := sess.User()

	var topic pubsub.Topic
	switch frame.Channel {
	case "conversation":
		if frame.ConversationID == "" {
			_ = writer.write(serverFrame{Type: "error", Error: "Missing conversation_id"})
			return
		}
		member, err := h.Resolver.Store.IsParticipant(c.Request.Context(), frame.ConversationID, user.ID)
		if err != nil || !member {
			_ = writer.write(serverFrame{Type: "error", Error: "Not a participant"})
			return
		}
		topic = pubsub.ConversationTopic(frame.ConversationID)
	case "conversationList":
		topic = pubsub.ConversationListTopic(user.ID)
	default:
		_ = writer.write(serverFrame{Type: "error", Error: "Unknown channel"})
		return
	}

	sid, sub, err := sess.Attach(topic)
	if err != nil {
		_ = writer.write(serverFrame{Type: "error", Error: "Subscription failed"})
		return
	}

	if err := writer.write(serverFrame{Type: "subscribed", SID: sid, Channel: frame.Channel}); err != nil {
		sess.Detach(sid)
		return
	}

	go func() {
		for payload := range sub.C() {
			if err := writer.write(serverFrame{Type: "event", SID: sid, Channel: frame.Channel, Body: payload}); err != nil {
				return
			}
		}
	}()
}
