package collaborators

import (
	"context"
	"sync"

	server "gamesession/server"
)

// Directory is an in-memory server.PlayerDirectory backed by a registration
// callback from internal/transport's connection handler, independent of
// the Engine's own in-process Player map (collaborators.go's doc comment
// on PlayerDirectory: "independent of the in-process Player aggregate the
// engine itself owns").
type Directory struct {
	mu       sync.RWMutex
	players  map[int32]*server.Player
	OnOnline func(player *server.Player)
}

func NewDirectory() *Directory {
	return &Directory{players: make(map[int32]*server.Player)}
}

// Register records player as online. Called by internal/transport when a
// connection is accepted. If OnOnline is set, it runs after the player is
// recorded, reintroducing the source's onPlayerOnlineEvent "send the full
// active-game list to a newly online player" behavior (SPEC_FULL.md's
// supplemented-features section).
func (d *Directory) Register(player *server.Player) {
	d.mu.Lock()
	d.players[player.ID] = player
	d.mu.Unlock()
	if d.OnOnline != nil {
		d.OnOnline(player)
	}
}

// Unregister drops player from the online set. Called when a connection
// closes.
func (d *Directory) Unregister(id int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.players, id)
}

func (d *Directory) GetOnlinePlayer(ctx context.Context, id int32) (*server.Player, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.players[id]
	return p, ok
}

var _ server.PlayerDirectory = (*Directory)(nil)
