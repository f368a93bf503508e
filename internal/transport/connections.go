// Package transport exposes the game-session engine's public operation
// surface over a websocket connection per player, and implements
// server.ClientChannel by writing JSON push messages back over those same
// connections. Grounded on the teacher's internal/net/ws package: one
// goroutine per connection reading client messages in a loop, a
// registry mapping player id to live connection for outbound pushes.
package transport

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// connections is the thread-safe registry of live player connections,
// grounded on Hub.Subscribe/Disconnect's playerID->conn bookkeeping in the
// teacher's hub.go.
type connections struct {
	mu    sync.RWMutex
	byID  map[int32]*conn
}

type conn struct {
	writeMu sync.Mutex
	ws      *websocket.Conn
}

func newConnections() *connections {
	return &connections{byID: make(map[int32]*conn)}
}

func (c *connections) add(playerID int32, ws *websocket.Conn) *conn {
	entry := &conn{ws: ws}
	c.mu.Lock()
	c.byID[playerID] = entry
	c.mu.Unlock()
	return entry
}

func (c *connections) remove(playerID int32) {
	c.mu.Lock()
	delete(c.byID, playerID)
	c.mu.Unlock()
}

func (c *connections) get(playerID int32) *conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byID[playerID]
}

// send marshals v as JSON and writes it to playerID's connection, if
// connected. A disconnected or unknown player is silently a no-op: pushes
// race with disconnects by nature of being unsolicited.
func (c *connections) send(playerID int32, v any) error {
	entry := c.get(playerID)
	if entry == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	entry.writeMu.Lock()
	defer entry.writeMu.Unlock()
	return entry.ws.WriteMessage(websocket.TextMessage, data)
}
