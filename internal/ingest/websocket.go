package ingest

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/torosent/crankprom/internal/sample"
)

// StreamHandler upgrades to a WebSocket and reads one sample or batch per message.
// Every message is answered: {"accepted": n} or {"error": "..."}. A bad message does
// not end the stream.
type StreamHandler struct {
	sink     Sink
	log      *logrus.Entry
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

const closeWriteWait = time.Second

func NewStreamHandler(sink Sink, log *logrus.Entry) *StreamHandler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &StreamHandler{
		sink: sink,
		log:  log.WithField("source", SourceWebSocket),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	if !h.track(conn) {
		_ = conn.Close()
		return
	}
	defer h.untrack(conn)

	conn.SetReadLimit(maxBodyBytes)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.WithError(err).Warn("sample stream closed unexpectedly")
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		samples, err := sample.DecodeBatch(data)
		if err != nil {
			h.log.WithError(err).Debug("rejected sample message")
			if werr := conn.WriteJSON(errorResponse{Error: err.Error()}); werr != nil {
				return
			}
			continue
		}
		for _, s := range samples {
			h.sink.OnSample(s)
		}
		if err := conn.WriteJSON(acceptedResponse{Accepted: len(samples)}); err != nil {
			return
		}
	}
}

// Close ends every open stream. http.Server.Shutdown does not track hijacked connections.
func (h *StreamHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(closeWriteWait))
		_ = conn.Close()
	}
}

func (h *StreamHandler) track(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn] = struct{}{}
	return true
}

func (h *StreamHandler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	_ = conn.Close()
}
