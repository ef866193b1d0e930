package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hanabi-live/hanabi-server-go/internal/protocol"
	"github.com/hanabi-live/hanabi-server-go/internal/user"
)

var (
	// ErrClosed is returned by Send once the connection is shutting down.
	ErrClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned when the client does not keep up. The
	// connection is closed.
	ErrSendBufferFull = errors.New("send buffer full")
)

const rateWarning = "You are sending messages too fast. Please slow down."

// ConnOptions tunes one websocket connection.
type ConnOptions struct {
	ReadLimit    int64
	WriteWait    time.Duration
	PongWait     time.Duration
	SendBuffer   int
	MessageRate  float64
	MessageBurst int
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.MessageRate <= 0 {
		o.MessageRate = 10
	}
	if o.MessageBurst <= 0 {
		o.MessageBurst = 20
	}
	return o
}

// Conn adapts a gorilla websocket to user.Conn. Writes go through a single
// goroutine; reads start once handlers are attached.
type Conn struct {
	ws      *websocket.Conn
	opts    ConnOptions
	limiter *rate.Limiter
	logger  *zap.Logger
	send    chan []byte
	quit    chan struct{}

	mu       sync.Mutex
	closed   bool
	attached bool
	handlers user.Handlers

	closeOnce sync.Once
}

var _ user.Conn = (*Conn)(nil)

// NewConn wraps ws and starts its write loop.
func NewConn(ws *websocket.Conn, opts ConnOptions, logger *zap.Logger) *Conn {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Conn{
		ws:      ws,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.MessageRate), opts.MessageBurst),
		logger:  logger.With(zap.String("remote_addr", ws.RemoteAddr().String())),
		send:    make(chan []byte, opts.SendBuffer),
		quit:    make(chan struct{}),
	}
	go c.writePump()
	return c
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// Send queues one frame without blocking.
func (c *Conn) Send(command string, payload any) error {
	frame, err := protocol.Encode(command, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		c.logger.Warn("send buffer full, closing connection", zap.String("command", command))
		c.shutdownLocked()
		return ErrSendBufferFull
	}
}

// Terminate queues an error notice and closes the connection after it has
// been written.
func (c *Conn) Terminate(notice string) {
	frame, err := protocol.Encode("error", map[string]string{"error": notice})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err == nil {
		select {
		case c.send <- frame:
		default:
		}
	}
	c.shutdownLocked()
}

// Attach installs the handlers and starts reading. Attaching a connection
// that is already closed fires the close handler.
func (c *Conn) Attach(h user.Handlers) {
	c.mu.Lock()
	if c.attached {
		c.mu.Unlock()
		return
	}
	c.attached = true
	c.handlers = h
	closed := c.closed
	c.mu.Unlock()

	if closed {
		go c.fireClose()
		return
	}
	go c.readPump()
}

func (c *Conn) shutdownLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.quit)
}

func (c *Conn) shutdown() {
	c.mu.Lock()
	c.shutdownLocked()
	c.mu.Unlock()
}

func (c *Conn) fireClose() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		onClose := c.handlers.OnClose
		c.mu.Unlock()
		if onClose != nil {
			onClose()
		}
	})
}

func (c *Conn) readPump() {
	defer func() {
		c.shutdown()
		c.fireClose()
	}()

	c.ws.SetReadLimit(c.opts.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		if !c.limiter.Allow() {
			_ = c.Send("warning", map[string]string{"warning": rateWarning})
			continue
		}

		c.mu.Lock()
		onMessage := c.handlers.OnMessage
		c.mu.Unlock()
		if onMessage != nil {
			onMessage(message)
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.shutdown()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		case <-c.quit:
			c.flush()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Conn) flush() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	return c.ws.WriteMessage(messageType, data)
}
