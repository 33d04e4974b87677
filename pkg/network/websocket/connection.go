package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// deadlinedConn puts a deadline on every write to the socket.
// Control frames (ping, close) may be sent from any goroutine,
// data frames only from the writer pump.
type deadlinedConn struct {
	sock *websocket.Conn
	wt   time.Duration
}

func newConn(sock *websocket.Conn, wt time.Duration) deadlinedConn {
	return deadlinedConn{sock: sock, wt: wt}
}

// keepAlive limits incoming messages to limit bytes. With a non-zero pong the
// next read fails unless a pong arrives within that time after each one.
func (c *deadlinedConn) keepAlive(limit int64, pong time.Duration) {
	c.sock.SetReadLimit(limit)
	if pong <= 0 {
		return
	}
	_ = c.sock.SetReadDeadline(time.Now().Add(pong))
	c.sock.SetPongHandler(func(string) error { return c.sock.SetReadDeadline(time.Now().Add(pong)) })
}

func (c *deadlinedConn) read() ([]byte, error) {
	_, message, err := c.sock.ReadMessage()
	return message, err
}

func (c *deadlinedConn) text(message []byte) error {
	if err := c.sock.SetWriteDeadline(time.Now().Add(c.wt)); err != nil {
		return err
	}
	return c.sock.WriteMessage(websocket.TextMessage, message)
}

func (c *deadlinedConn) ping() error {
	return c.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.wt))
}

// bye tells the other side that the connection closes normally.
func (c *deadlinedConn) bye() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return c.sock.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.wt))
}

func (c *deadlinedConn) close() error { return c.sock.Close() }
