package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/photo-relay/internal/logging"
)

// Receiver object and method names expected by the host runtime.
const (
	ReceiverObject               = "ImageReceiver"
	MethodImageChunk             = "OnImageChunk"
	MethodTransferComplete       = "OnImageTransferComplete"
	MethodCameraPermissionDenied = "OnCameraPermissionDenied"
)

// ErrNotAttached indicates no host runtime is currently connected.
var ErrNotAttached = errors.New("no host runtime attached")

// Message is the wire frame delivered to the host runtime.
type Message struct {
	Object  string `json:"object"`
	Method  string `json:"method"`
	Payload string `json:"payload"`
}

// Hub holds a single host runtime connection slot. A newly attached
// connection supersedes the previous one.
type Hub struct {
	logger *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewHub constructs an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{logger: logger.Named("bridge")}
}

// Run attaches conn as the host runtime channel and blocks reading it until
// it closes. Incoming frames are discarded; the bridge is one-directional.
func (h *Hub) Run(conn *websocket.Conn) {
	h.attach(conn)
	defer h.detach(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) attach(conn *websocket.Conn) {
	h.mu.Lock()
	prev := h.conn
	h.conn = conn
	h.mu.Unlock()

	if prev != nil {
		h.logger.Warn("superseding previously attached host runtime")
		prev.Close()
	}
	h.logger.Info("host runtime attached", zap.String("remote", conn.RemoteAddr().String()))
}

func (h *Hub) detach(conn *websocket.Conn) {
	h.mu.Lock()
	if h.conn == conn {
		h.conn = nil
	}
	h.mu.Unlock()

	conn.Close()
	h.logger.Info("host runtime detached")
}

// Ready reports whether a host runtime is attached. Callers must treat
// readiness as a precondition for Send, not a guarantee it will succeed.
func (h *Hub) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

// Send delivers one named message frame to the attached host runtime.
func (h *Hub) Send(ctx context.Context, object, method, payload string) error {
	if err := ctx.Err(); err != nil {
		return logging.NewOperationError("bridge.send", "", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn == nil {
		return ErrNotAttached
	}
	if err := h.conn.WriteJSON(Message{Object: object, Method: method, Payload: payload}); err != nil {
		wrapped := logging.NewOperationError("bridge.send", "", err)
		h.logger.Error("failed to write to host runtime", zap.Error(wrapped), zap.String("method", method))
		return wrapped
	}
	return nil
}
