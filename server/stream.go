package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/TFMV/forcegraph/render"
	"github.com/TFMV/forcegraph/surface"
	"github.com/TFMV/forcegraph/viewport"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Gesture events are small
	maxMessageSize = 4 * 1024
)

// StreamMessage is what the stream writes: either a frame or an error
// about the last gesture event received.
type StreamMessage struct {
	Type  string        `json:"type"`
	Frame *render.Frame `json:"frame,omitempty"`
	Error string        `json:"error,omitempty"`
}

// streamClient is one websocket subscriber to a surface. Frames go through
// a one-slot mailbox; a slow client sees the latest frame, not every one.
type streamClient struct {
	id      string
	conn    *websocket.Conn
	surface *surface.Surface
	logger  *zap.Logger

	frames chan render.Frame
	errs   chan string
	done   chan struct{}
}

func newStreamClient(conn *websocket.Conn, s *surface.Surface, logger *zap.Logger) *streamClient {
	id := uuid.New().String()
	return &streamClient{
		id:      id,
		conn:    conn,
		surface: s,
		logger:  logger.With(zap.String("connectionID", id), zap.String("graph", s.GraphID())),
		frames:  make(chan render.Frame, 1),
		errs:    make(chan string, 8),
		done:    make(chan struct{}),
	}
}

// push is registered as a tick listener and must not block.
func (c *streamClient) push(f render.Frame) {
	select {
	case c.frames <- f:
		return
	default:
	}
	select {
	case <-c.frames:
		droppedFrames.Inc()
	default:
	}
	select {
	case c.frames <- f:
	default:
	}
}

// run serves the connection until the peer goes away.
func (c *streamClient) run() {
	streamClients.Inc()
	defer streamClients.Dec()

	cancel := c.surface.OnTick(c.push)
	c.push(c.surface.Frame())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump()
	}()

	c.readPump()
	cancel()
	close(c.done)
	wg.Wait()
	c.logger.Info("Stream client disconnected")
}

// readPump applies gesture events sent by the client.
func (c *streamClient) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var event viewport.Event
		if err := c.conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		if err := c.surface.Viewport().Apply(event); err != nil {
			select {
			case c.errs <- err.Error():
			default:
			}
			continue
		}
		// The simulation may be resting, so the gesture gets its own frame.
		c.push(c.surface.Frame())
	}
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var msg StreamMessage
		select {
		case f := <-c.frames:
			msg = StreamMessage{Type: "frame", Frame: &f}
		case e := <-c.errs:
			msg = StreamMessage{Type: "error", Error: e}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
			continue
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			c.logger.Debug("Failed to write message", zap.Error(err))
			return
		}
	}
}

// streamRegistry tracks live connections so Serve can close them on
// shutdown. http.Server.Shutdown leaves hijacked connections alone.
type streamRegistry struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	wg     sync.WaitGroup
	closed bool
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{conns: make(map[*websocket.Conn]struct{})}
}

func (r *streamRegistry) add(conn *websocket.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.conns[conn] = struct{}{}
	r.wg.Add(1)
	return true
}

func (r *streamRegistry) remove(conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn]; ok {
		delete(r.conns, conn)
		r.wg.Done()
	}
}

// closeAll closes every connection and waits for their handlers to exit.
func (r *streamRegistry) closeAll() {
	r.mu.Lock()
	r.closed = true
	for conn := range r.conns {
		conn.Close()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func newUpgrader(origins []string) websocket.Upgrader {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || allowed[origin]
		},
	}
}
