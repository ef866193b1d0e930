// Package usertest provides an in-memory user.Conn for tests.
package usertest

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hanabi-live/hanabi-server-go/internal/user"
)

// ErrTerminated is returned by Send after Terminate.
var ErrTerminated = errors.New("connection terminated")

// Message is one command sent to a Conn.
type Message struct {
	Command string
	Payload any
}

// Decode unmarshals the payload into v by round-tripping it through JSON.
func (m Message) Decode(v any) error {
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Conn records everything sent to it and lets tests drive inbound traffic.
type Conn struct {
	mu         sync.Mutex
	addr       string
	sent       []Message
	handlers   user.Handlers
	attached   bool
	terminated bool
	notice     string
	changed    chan struct{}
}

var _ user.Conn = (*Conn)(nil)

// NewConn returns an open connection.
func NewConn(addr string) *Conn {
	return &Conn{addr: addr, changed: make(chan struct{})}
}

func (c *Conn) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// Send records the message.
func (c *Conn) Send(command string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated {
		return ErrTerminated
	}
	c.sent = append(c.sent, Message{Command: command, Payload: payload})
	c.notifyLocked()
	return nil
}

// Terminate records the notice and fires the close handler once.
func (c *Conn) Terminate(notice string) {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	c.notice = notice
	onClose := c.handlers.OnClose
	c.notifyLocked()
	c.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}

// Attach installs the handlers.
func (c *Conn) Attach(h user.Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
	c.attached = true
	c.notifyLocked()
}

// RemoteAddr returns the address given to NewConn.
func (c *Conn) RemoteAddr() string {
	return c.addr
}

// Receive simulates an inbound frame.
func (c *Conn) Receive(data []byte) {
	c.mu.Lock()
	onMessage := c.handlers.OnMessage
	c.mu.Unlock()
	if onMessage != nil {
		onMessage(data)
	}
}

// Close simulates the peer going away.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	onClose := c.handlers.OnClose
	c.notifyLocked()
	c.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}

// Attached reports whether handlers were installed.
func (c *Conn) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached
}

// Terminated reports whether the connection was closed and the notice it got.
func (c *Conn) Terminated() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated, c.notice
}

// Sent returns a copy of every message sent so far.
func (c *Conn) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.sent...)
}

// Commands returns the command of every message sent so far.
func (c *Conn) Commands() []string {
	sent := c.Sent()
	out := make([]string, len(sent))
	for i, m := range sent {
		out[i] = m.Command
	}
	return out
}

// Last returns the most recent message with the given command.
func (c *Conn) Last(command string) (Message, bool) {
	sent := c.Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].Command == command {
			return sent[i], true
		}
	}
	return Message{}, false
}

// WaitFor blocks until a message with the given command has been sent and
// returns the first one. It fails the test after timeout.
func (c *Conn) WaitFor(t testing.TB, command string, timeout time.Duration) Message {
	t.Helper()
	deadline := time.After(timeout)
	for {
		c.mu.Lock()
		for _, m := range c.sent {
			if m.Command == command {
				c.mu.Unlock()
				return m
			}
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-deadline:
			t.Fatalf("timed out waiting for %q, got %v", command, c.Commands())
			return Message{}
		}
	}
}

// WaitUntil blocks until cond returns true for the messages sent so far.
func (c *Conn) WaitUntil(t testing.TB, timeout time.Duration, cond func([]Message) bool) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		c.mu.Lock()
		ok := cond(c.sent)
		changed := c.changed
		c.mu.Unlock()
		if ok {
			return
		}
		select {
		case <-changed:
		case <-deadline:
			t.Fatalf("timed out waiting for condition, got %v", c.Commands())
			return
		}
	}
}
