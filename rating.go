package server

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ratingQueue orders pending rating updates across overlapping games so
// that no two games sharing a player have their ratings applied out of
// start-time order (spec.md §4.8). Grounded on
// gamesAwaitingRatingUpdate/hasRatingDependentGame/
// processGamesAwaitingRatingUpdate in GameService.java.
//
// Concurrent drain triggers (every reportGameEnded, every removePlayer that
// empties a game) are coalesced with a singleflight.Group: at most one
// drain scan runs at a time, and a second trigger arriving mid-scan simply
// waits for the in-flight scan rather than starting a redundant one.
type ratingQueue struct {
	mu      sync.Mutex
	pending []*Game
	group   singleflight.Group
}

func newRatingQueue() *ratingQueue {
	return &ratingQueue{}
}

// enqueue adds g to the pending queue if not already present.
func (q *ratingQueue) enqueue(g *Game) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, existing := range q.pending {
		if existing.ID == g.ID {
			return
		}
	}
	q.pending = append(q.pending, g)
}

// hasRatingDependentPredecessor reports whether g shares a connected player
// with another PLAYING game that started strictly before g (spec.md §4.8).
// candidates is the full set of currently active games (from the
// Registry), independent of the pending queue itself.
func hasRatingDependentPredecessor(g *Game, candidates []*Game) bool {
	g.mu.Lock()
	gStart := g.StartTime
	gPlayers := g.connectedPlayerIDs()
	g.mu.Unlock()
	if gStart == nil {
		return false
	}

	playerSet := make(map[int32]bool, len(gPlayers))
	for _, id := range gPlayers {
		playerSet[id] = true
	}

	for _, other := range candidates {
		if other.ID == g.ID {
			continue
		}
		other.mu.Lock()
		otherState := other.State
		otherStart := other.StartTime
		otherPlayers := other.connectedPlayerIDs()
		other.mu.Unlock()

		if otherState != GamePlaying || otherStart == nil {
			continue
		}
		if !otherStart.Before(*gStart) {
			continue
		}
		for _, id := range otherPlayers {
			if playerSet[id] {
				return true
			}
		}
	}
	return false
}

// drain scans the pending queue in start-time order and serves every game
// with no rating-dependent predecessor, via apply. Games that still have a
// predecessor remain queued. Coalesced through singleflight so concurrent
// callers share one scan.
func (q *ratingQueue) drain(ctx context.Context, candidates []*Game, apply func(ctx context.Context, g *Game) error) {
	q.group.Do("drain", func() (any, error) {
		q.drainOnce(ctx, candidates, apply)
		return nil, nil
	})
}

func (q *ratingQueue) drainOnce(ctx context.Context, candidates []*Game, apply func(ctx context.Context, g *Game) error) {
	q.mu.Lock()
	ordered := append([]*Game(nil), q.pending...)
	q.mu.Unlock()

	sort.Slice(ordered, func(i, j int) bool {
		ordered[i].mu.Lock()
		ti := ordered[i].StartTime
		ordered[i].mu.Unlock()
		ordered[j].mu.Lock()
		tj := ordered[j].StartTime
		ordered[j].mu.Unlock()
		if ti == nil || tj == nil {
			return false
		}
		return ti.Before(*tj)
	})

	var remaining []*Game
	for _, g := range ordered {
		if hasRatingDependentPredecessor(g, candidates) {
			remaining = append(remaining, g)
			continue
		}
		if err := apply(ctx, g); err != nil {
			remaining = append(remaining, g)
			continue
		}
	}

	q.mu.Lock()
	q.pending = remaining
	q.mu.Unlock()
}

// length reports the current pending-queue depth, used for telemetry.
func (q *ratingQueue) length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
