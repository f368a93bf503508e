package collaborators

import (
	"context"
	"sync"

	server "gamesession/server"
)

// DivisionBoard is an in-memory server.DivisionService, recording ladder
// 1v1 division results (spec.md §4.6's two-player-game special case).
type DivisionBoard struct {
	mu      sync.Mutex
	results []DivisionResult
}

// DivisionResult is one recorded PostResult call, for tests.
type DivisionResult struct {
	PlayerOne int32
	PlayerTwo int32
	Winner    *int32
}

func NewDivisionBoard() *DivisionBoard {
	return &DivisionBoard{}
}

func (d *DivisionBoard) PostResult(ctx context.Context, playerOne, playerTwo int32, winner *int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, DivisionResult{PlayerOne: playerOne, PlayerTwo: playerTwo, Winner: winner})
	return nil
}

// Results returns a copy of every recorded result, for tests.
func (d *DivisionBoard) Results() []DivisionResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DivisionResult, len(d.results))
	copy(out, d.results)
	return out
}

var _ server.DivisionService = (*DivisionBoard)(nil)
