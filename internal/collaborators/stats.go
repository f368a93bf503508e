package collaborators

import (
	"context"
	"sync"

	server "gamesession/server"
)

// StatsSink is an in-memory server.ArmyStatisticsService, recording the
// per-player stats blobs the engine forwards both at end processing
// (spec.md §4.6 step 8) and on a client-submitted ReportArmyStatistics call.
type StatsSink struct {
	mu      sync.Mutex
	records []processedStat
}

type processedStat struct {
	Game  int32
	Stats *server.GamePlayerStats
}

func NewStatsSink() *StatsSink {
	return &StatsSink{}
}

func (s *StatsSink) Process(ctx context.Context, stats *server.GamePlayerStats, g *server.GameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, processedStat{Game: g.ID, Stats: stats})
	return nil
}

// Count reports how many stats records have been processed, for tests.
func (s *StatsSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

var _ server.ArmyStatisticsService = (*StatsSink)(nil)
