package gateway

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/panoquest/panoquest/go/internal/game"
)

func TestBroadcastDuringDisconnectDoesNotPanic(t *testing.T) {
	hub := NewHub(DefaultConnectionConfig())
	event := &SessionEvent{
		ID:        "e-1",
		GameCode:  "AB12",
		Type:      game.EventPlayerJoined,
		Timestamp: time.Now().UTC(),
		Data:      []byte(`{}`),
	}

	// A client can disconnect (unregister closes its send channel from the
	// pumps) while the hub goroutine is fanning an event out to the room.
	for i := 0; i < 5000; i++ {
		conn := &Connection{ID: "c-1", GameCode: "AB12", Send: make(chan []byte, 1), hub: hub}
		hub.register(conn)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.handleBroadcast(event)
		}()
		go func() {
			defer wg.Done()
			hub.unregister(conn)
		}()
		wg.Wait()
	}

	connections, games := hub.Stats()
	assert.Zero(t, connections)
	assert.Zero(t, games)
}

func TestTrySendAfterClose(t *testing.T) {
	conn := &Connection{Send: make(chan []byte, 1)}

	sent, open := conn.trySend([]byte("a"))
	assert.True(t, sent)
	assert.True(t, open)

	sent, open = conn.trySend([]byte("b"))
	assert.False(t, sent, "buffer full")
	assert.True(t, open)

	conn.closeSend()
	conn.closeSend() // idempotent

	sent, open = conn.trySend([]byte("c"))
	assert.False(t, sent)
	assert.False(t, open)
}
