package collaborators

import (
	"context"
	"sync"

	server "gamesession/server"
)

const (
	defaultInitialMean      = 1500.0
	defaultInitialDeviation = 500.0
	minDeviation            = 75.0
)

// ratingBucket holds one player's rating in one of the two buckets the
// engine distinguishes (spec.md §6: RatingType).
type ratingBucket struct {
	mean      float64
	deviation float64
}

// RatingStore is an in-memory server.RatingService. It is not a faithful
// reimplementation of any particular rating algorithm — the engine only
// depends on UpdateRatings/InitLadder1v1Rating/InitGlobalRating as an
// external collaborator boundary (spec.md §4.8) — but applies a
// symmetric, zero-sum mean adjustment toward the winning side with
// decaying deviation, which is enough to exercise the serializer's
// ordering guarantees end to end.
type RatingStore struct {
	mu     sync.Mutex
	global map[int32]ratingBucket
	ladder map[int32]ratingBucket
}

// NewRatingStore constructs an empty RatingStore; new players are
// initialized to defaultInitialMean/defaultInitialDeviation on first
// request.
func NewRatingStore() *RatingStore {
	return &RatingStore{
		global: make(map[int32]ratingBucket),
		ladder: make(map[int32]ratingBucket),
	}
}

func (r *RatingStore) InitLadder1v1Rating(ctx context.Context, playerID int32) (float64, float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.ladder[playerID]
	if !ok {
		b = ratingBucket{mean: defaultInitialMean, deviation: defaultInitialDeviation}
		r.ladder[playerID] = b
	}
	return b.mean, b.deviation, nil
}

func (r *RatingStore) InitGlobalRating(ctx context.Context, playerID int32) (float64, float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.global[playerID]
	if !ok {
		b = ratingBucket{mean: defaultInitialMean, deviation: defaultInitialDeviation}
		r.global[playerID] = b
	}
	return b.mean, b.deviation, nil
}

// UpdateRatings adjusts every non-observer player's stored rating based on
// their GamePlayerStats.Team relative to the winner implied by the score
// sign (higher score wins); draws (equal top score) leave ratings
// unchanged. noTeamID entries (spec.md §6, NoTeamID) and observers
// (server.ObserversTeam) are skipped.
func (r *RatingStore) UpdateRatings(ctx context.Context, stats []*server.GamePlayerStats, noTeamID int32, ratingType server.RatingType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.global
	if ratingType == server.RatingLadder1v1 {
		bucket = r.ladder
	}

	bestScore := -1 << 31
	for _, s := range stats {
		if s.Team == noTeamID || s.Team == server.ObserversTeam || s.Score == nil {
			continue
		}
		if *s.Score > bestScore {
			bestScore = *s.Score
		}
	}

	winners := make(map[int32]bool)
	tie := false
	for _, s := range stats {
		if s.Team == noTeamID || s.Team == server.ObserversTeam || s.Score == nil {
			continue
		}
		if *s.Score == bestScore {
			winners[s.Team] = true
		}
	}
	if len(winners) > 1 {
		tie = true
	}

	const step = 16.0
	for _, s := range stats {
		if s.Team == noTeamID || s.Team == server.ObserversTeam {
			continue
		}
		b, ok := bucket[s.PlayerID]
		if !ok {
			b = ratingBucket{mean: defaultInitialMean, deviation: defaultInitialDeviation}
		}
		if !tie {
			if winners[s.Team] {
				b.mean += step
			} else {
				b.mean -= step
			}
		}
		b.deviation *= 0.9
		if b.deviation < minDeviation {
			b.deviation = minDeviation
		}
		bucket[s.PlayerID] = b
	}
	return nil
}

var _ server.RatingService = (*RatingStore)(nil)
