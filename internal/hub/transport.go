package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// wsTransport wraps a websocket connection behind the Transport interface.
// Roster broadcasts, live pushes and relays all write from other
// connections' goroutines, so writes are serialized by a mutex.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
	once sync.Once
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Send(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) Close() error {
	var err error
	t.once.Do(func() {
		err = t.conn.Close()
	})
	return err
}
