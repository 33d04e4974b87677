package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/castline/screencast/pkg/com"
	"github.com/castline/screencast/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 64 * 1024
	pingTime       = pongTime * 9 / 10
	pongTime       = 60 * time.Second
	writeWait      = 10 * time.Second

	defaultBuffer = 64
)

type WS struct {
	id   com.Uid
	conn deadlinedConn
	send chan []byte
	log  *logger.Logger

	OnMessage WSMessageHandler

	pingPong bool

	once     sync.Once
	closed   chan struct{}
	shutdown sync.WaitGroup
	Done     chan struct{}
}

type WSMessageHandler func(message []byte)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	WriteBufferPool: &sync.Pool{},
}

// NewServer upgrades the request into a websocket connection.
// The buffer is the number of outgoing messages held for a slow peer.
func NewServer(w http.ResponseWriter, r *http.Request, buffer int, log *logger.Logger) (*WS, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, true, buffer, log), nil
}

func Dial(ctx context.Context, address string, log *logger.Logger) (*WS, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, address, nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, false, defaultBuffer, log), nil
}

func newSocket(conn *websocket.Conn, pingPong bool, buffer int, log *logger.Logger) *WS {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	id := com.NewUid()
	return &WS{
		id:       id,
		conn:     newConn(conn, writeWait),
		send:     make(chan []byte, buffer),
		log:      log.Extend(log.With().Str("c", "ws").Str("cid", id.Short())),
		pingPong: pingPong,
		closed:   make(chan struct{}),
		Done:     make(chan struct{}),
	}
}

// Start runs the read and write pumps, OnMessage should be set before.
func (ws *WS) Start() {
	ws.shutdown.Add(2)
	go ws.writer()
	go ws.reader()
	go func() {
		ws.shutdown.Wait()
		_ = ws.conn.close()
		close(ws.Done)
		ws.log.Debug().Msg("closed")
	}()
}

func (ws *WS) Id() com.Uid { return ws.id }

// reader pumps messages from the websocket connection to the OnMessage callback.
// Blocking, must be called as goroutine. Serializes all websocket reads.
func (ws *WS) reader() {
	defer func() {
		ws.Close()
		ws.shutdown.Done()
	}()
	if ws.pingPong {
		ws.conn.keepAlive(maxMessageSize, pongTime)
	} else {
		ws.conn.keepAlive(maxMessageSize, 0)
	}
	for {
		message, err := ws.conn.read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ws.log.Warn().Err(err).Msg("read")
			}
			return
		}
		ws.log.Debug().Bytes("m", message).Msg("read")
		if ws.OnMessage != nil {
			ws.OnMessage(message)
		}
	}
}

// writer pumps messages from the send channel to the websocket connection.
// Blocking, must be called as goroutine. Serializes all websocket writes.
func (ws *WS) writer() {
	var tick <-chan time.Time
	if ws.pingPong {
		ticker := time.NewTicker(pingTime)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer ws.shutdown.Done()
	for {
		select {
		case message := <-ws.send:
			if err := ws.conn.text(message); err != nil {
				ws.log.Warn().Err(err).Msg("write")
				ws.Close()
				_ = ws.conn.close()
				return
			}
		case <-tick:
			if err := ws.conn.ping(); err != nil {
				ws.Close()
				_ = ws.conn.close()
				return
			}
		case <-ws.closed:
			ws.flush()
			_ = ws.conn.bye()
			// unblocks the reader
			_ = ws.conn.close()
			return
		}
	}
}

func (ws *WS) flush() {
	for {
		select {
		case message := <-ws.send:
			if err := ws.conn.text(message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Write queues the message without blocking.
// It returns false when the connection is closed or its buffer is full.
func (ws *WS) Write(data []byte) bool {
	select {
	case <-ws.closed:
		return false
	default:
	}
	select {
	case ws.send <- data:
		return true
	default:
		ws.log.Warn().Msg("the outgoing buffer is full, message dropped")
		return false
	}
}

// Close starts the connection shutdown, Done is closed at the end.
func (ws *WS) Close() { ws.once.Do(func() { close(ws.closed) }) }
