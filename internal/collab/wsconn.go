package collab

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultWriteWait       = 10 * time.Second
	defaultPongWait        = 60 * time.Second
	defaultMaxMessageBytes = 1 << 20
)

type WSOptions struct {
	WriteWait       time.Duration
	PongWait        time.Duration
	MaxMessageBytes int64
}

func (o WSOptions) withDefaults() WSOptions {
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = defaultMaxMessageBytes
	}
	return o
}

var errConnClosed = errors.New("connection closed")

// WSConn adapts a gorilla websocket to Conn. It serializes writes, keeps the
// peer alive with pings, and drops the peer when pongs stop arriving.
type WSConn struct {
	conn *websocket.Conn
	opts WSOptions

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func NewWSConn(conn *websocket.Conn, opts WSOptions) *WSConn {
	opts = opts.withDefaults()
	c := &WSConn{conn: conn, opts: opts, done: make(chan struct{})}

	conn.SetReadLimit(opts.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	go c.pingLoop()
	return c
}

func (c *WSConn) pingLoop() {
	ticker := time.NewTicker(c.opts.PongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				return
			}
		}
	}
}

func (c *WSConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *WSConn) WriteMessage(data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WSConn) Close(code CloseCode, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		frame := websocket.FormatCloseMessage(int(code), reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(c.opts.WriteWait))
		err = c.conn.Close()
	})
	return err
}

// IsNormalClose reports whether a read error is an ordinary peer departure.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
