package ws

import (
	"sync"

	"golang.org/x/net/websocket"
)

// Client is one websocket connection with its outbound queue. A client
// that cannot keep up is disconnected rather than allowed to stall the
// publish path.
type Client struct {
	conn *websocket.Conn
	out  chan []byte

	mu       sync.RWMutex
	closed   bool
	channels map[string]struct{}
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:     conn,
		out:      make(chan []byte, 64),
		channels: map[string]struct{}{},
	}
}

// send queues the payload unless the client is already closed. The
// closed check holds the lock across the channel send so a concurrent
// close cannot slip between the check and the send.
func (c *Client) send(payload []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.out <- payload:
	default:
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
}

// close marks the client dead and closes the outbound queue exactly
// once. Publishers observing the flag drop the payload instead of
// sending on the closed channel.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.out)
}

func (c *Client) addChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channel] = struct{}{}
}

func (c *Client) listChannels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	return out
}
