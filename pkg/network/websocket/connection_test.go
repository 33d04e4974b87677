package websocket

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pair returns the server end of a fresh connection and the raw client end.
func pair(t *testing.T) (*deadlinedConn, *websocket.Conn) {
	t.Helper()
	socks := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sock, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		socks <- sock
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case sock := <-socks:
		conn := newConn(sock, time.Second)
		t.Cleanup(func() { _ = conn.close() })
		return &conn, client
	case <-time.After(time.Second):
		t.Fatal("no server connection")
	}
	return nil, nil
}

func TestConnText(t *testing.T) {
	conn, client := pair(t)
	require.NoError(t, conn.text([]byte("hi")))

	typ, m, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, typ)
	assert.Equal(t, "hi", string(m))
}

func TestConnReadLimit(t *testing.T) {
	conn, client := pair(t)
	conn.keepAlive(8, 0)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("12345678")))
	m, err := conn.read()
	require.NoError(t, err)
	assert.Equal(t, "12345678", string(m))

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("123456789")))
	_, err = conn.read()
	assert.ErrorIs(t, err, websocket.ErrReadLimit)
}

func TestConnPongTimeout(t *testing.T) {
	conn, _ := pair(t)
	// the client never reads, so pings stay unanswered
	conn.keepAlive(1024, 100*time.Millisecond)
	require.NoError(t, conn.ping())

	start := time.Now()
	_, err := conn.read()
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
	assert.Less(t, time.Since(start), time.Second)
}

func TestConnPongExtendsDeadline(t *testing.T) {
	conn, client := pair(t)
	// reading on the client answers the pings
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()
	conn.keepAlive(1024, 200*time.Millisecond)

	read := make(chan error, 1)
	go func() {
		m, err := conn.read()
		if err == nil && string(m) != "late" {
			err = assert.AnError
		}
		read <- err
	}()

	for i := 0; i < 8; i++ {
		require.NoError(t, conn.ping())
		time.Sleep(50 * time.Millisecond)
	}
	select {
	case err := <-read:
		t.Fatalf("the read ended before the message, %v", err)
	default:
	}

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("late")))
	select {
	case err := <-read:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
}

func TestConnBye(t *testing.T) {
	conn, client := pair(t)
	require.NoError(t, conn.bye())

	_, _, err := client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
