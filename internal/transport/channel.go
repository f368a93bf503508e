package transport

import (
	"context"

	server "gamesession/server"
)

// Channel adapts the connection registry to server.ClientChannel. Every
// method is a best-effort push: a missing recipient connection (already
// disconnected) is not an error, matching the teacher's broadcast-to-
// whoever's-still-connected semantics in hub.go.
type Channel struct {
	conns *connections
}

// NewChannel constructs a Channel backed by a fresh connection registry.
// The returned *connections is also handed to the HTTP handler that
// registers/deregisters connections as they are accepted and closed.
func NewChannel() (*Channel, *connections) {
	c := newConnections()
	return &Channel{conns: c}, c
}

type pushEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (c *Channel) StartGameProcess(ctx context.Context, g *server.Game, player *server.Player) error {
	return c.conns.send(player.ID, pushEnvelope{Type: "startGameProcess", Data: map[string]any{"gameId": g.ID}})
}

func (c *Channel) HostGame(ctx context.Context, g *server.Game, host *server.Player) error {
	return c.conns.send(host.ID, pushEnvelope{Type: "hostGame", Data: map[string]any{"gameId": g.ID}})
}

func (c *Channel) ConnectToHost(ctx context.Context, player *server.Player, g *server.Game) error {
	return c.conns.send(player.ID, pushEnvelope{Type: "connectToHost", Data: map[string]any{"gameId": g.ID}})
}

func (c *Channel) ConnectToPeer(ctx context.Context, from, to *server.Player, offerer bool) error {
	payload := map[string]any{"peerId": to.ID, "offerer": offerer}
	if err := c.conns.send(from.ID, pushEnvelope{Type: "connectToPeer", Data: payload}); err != nil {
		return err
	}
	return c.conns.send(to.ID, pushEnvelope{Type: "connectToPeer", Data: map[string]any{"peerId": from.ID, "offerer": !offerer}})
}

func (c *Channel) DisconnectPlayerFromGame(ctx context.Context, targetID int32, receivers []*server.Player) error {
	payload := map[string]any{"playerId": targetID}
	for _, receiver := range receivers {
		if err := c.conns.send(receiver.ID, pushEnvelope{Type: "disconnectPlayerFromGame", Data: payload}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) SendGameList(ctx context.Context, list []*server.GameSnapshot, recipient *server.Player) error {
	if recipient == nil {
		c.conns.mu.RLock()
		ids := make([]int32, 0, len(c.conns.byID))
		for id := range c.conns.byID {
			ids = append(ids, id)
		}
		c.conns.mu.RUnlock()
		for _, id := range ids {
			if err := c.conns.send(id, pushEnvelope{Type: "gameList", Data: list}); err != nil {
				return err
			}
		}
		return nil
	}
	return c.conns.send(recipient.ID, pushEnvelope{Type: "gameList", Data: list})
}

func (c *Channel) BroadcastGameResult(ctx context.Context, msg server.GameResultMessage) error {
	for playerID := range msg.Results {
		if err := c.conns.send(playerID, pushEnvelope{Type: "gameResult", Data: msg}); err != nil {
			return err
		}
	}
	return nil
}
