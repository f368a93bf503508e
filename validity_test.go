package server

import (
	"context"
	"testing"
	"time"
)

type fakeModService struct {
	ranked     bool
	coop       bool
	featuredOK bool
	ladder1v1  bool
}

func (f fakeModService) GetFeaturedMod(ctx context.Context, technicalName string) (FeaturedMod, bool, error) {
	if !f.featuredOK {
		return FeaturedMod{}, false, nil
	}
	return FeaturedMod{TechnicalName: technicalName}, true, nil
}
func (f fakeModService) IsLadder1v1(ctx context.Context, technicalName string) (bool, error) {
	return f.ladder1v1, nil
}
func (f fakeModService) IsCoop(ctx context.Context, technicalName string) (bool, error) {
	return f.coop, nil
}
func (f fakeModService) IsModRanked(ctx context.Context, technicalName string) (bool, error) {
	return f.ranked, nil
}
func (f fakeModService) FindModVersionsByUIDs(ctx context.Context, uids []string) ([]ModVersionRef, error) {
	return nil, nil
}
func (f fakeModService) GetLatestFileVersions(ctx context.Context, technicalName string) (map[string]int, error) {
	return nil, nil
}

type fakeMapService struct {
	found  bool
	ranked bool
}

func (f fakeMapService) FindMap(ctx context.Context, fileName string) (MapInfo, bool, error) {
	return MapInfo{FileName: fileName, Ranked: f.ranked}, f.found, nil
}
func (f fakeMapService) IncrementTimesPlayed(ctx context.Context, fileName string) error { return nil }

func newTestEngine() *Engine {
	return NewEngine(0, EngineConfig{})
}

func TestVoteIsRankedNoModServiceDefaultsValid(t *testing.T) {
	e := newTestEngine()
	g := newTestGame()
	if got := voteIsRanked(context.Background(), g, e); got != ValidityValid {
		t.Fatalf("voteIsRanked = %v, want %v", got, ValidityValid)
	}
}

func TestVoteIsRankedUnrankedMod(t *testing.T) {
	e := NewEngine(0, EngineConfig{Mods: fakeModService{ranked: false}})
	g := newTestGame()
	if got := voteIsRanked(context.Background(), g, e); got != ValidityUnranked {
		t.Fatalf("voteIsRanked = %v, want %v", got, ValidityUnranked)
	}
}

func TestVoteVictoryConditionCoopSkipsCheck(t *testing.T) {
	e := NewEngine(0, EngineConfig{Mods: fakeModService{coop: true}})
	g := newTestGame()
	g.VictoryCondition = "ANYTHING"
	if got := voteVictoryCondition(context.Background(), g, e); got != ValidityValid {
		t.Fatalf("voteVictoryCondition = %v, want %v", got, ValidityValid)
	}
}

func TestVoteVictoryConditionRejectsNonDemoralization(t *testing.T) {
	e := newTestEngine()
	g := newTestGame()
	g.VictoryCondition = "DOMINATION"
	if got := voteVictoryCondition(context.Background(), g, e); got != ValidityWrongVictoryCond {
		t.Fatalf("voteVictoryCondition = %v, want %v", got, ValidityWrongVictoryCond)
	}
}

func TestVoteFreeForAllDetectsAllSoloTeams(t *testing.T) {
	g := newTestGame()
	g.PlayerStats[1] = &GamePlayerStats{PlayerID: 1, Team: 2}
	g.PlayerStats[2] = &GamePlayerStats{PlayerID: 2, Team: 3}
	g.PlayerStats[3] = &GamePlayerStats{PlayerID: 3, Team: 4}

	e := newTestEngine()
	if got := voteFreeForAll(context.Background(), g, e); got != ValidityFreeForAll {
		t.Fatalf("voteFreeForAll = %v, want %v", got, ValidityFreeForAll)
	}
}

func TestVoteFreeForAllIgnoresObservers(t *testing.T) {
	g := newTestGame()
	g.PlayerStats[1] = &GamePlayerStats{PlayerID: 1, Team: 2}
	g.PlayerStats[2] = &GamePlayerStats{PlayerID: 2, Team: 2}
	g.PlayerStats[3] = &GamePlayerStats{PlayerID: 3, Team: ObserversTeam}

	e := newTestEngine()
	if got := voteFreeForAll(context.Background(), g, e); got != ValidityValid {
		t.Fatalf("voteFreeForAll = %v, want %v", got, ValidityValid)
	}
}

func TestVoteEvenTeamsRejectsUnbalanced(t *testing.T) {
	g := newTestGame()
	g.PlayerStats[1] = &GamePlayerStats{PlayerID: 1, Team: 2}
	g.PlayerStats[2] = &GamePlayerStats{PlayerID: 2, Team: 2}
	g.PlayerStats[3] = &GamePlayerStats{PlayerID: 3, Team: 3}

	e := newTestEngine()
	if got := voteEvenTeams(context.Background(), g, e); got != ValidityUnevenTeams {
		t.Fatalf("voteEvenTeams = %v, want %v", got, ValidityUnevenTeams)
	}
}

func TestVoteEvenTeamsAllowsEqualSizes(t *testing.T) {
	g := newTestGame()
	g.PlayerStats[1] = &GamePlayerStats{PlayerID: 1, Team: 2}
	g.PlayerStats[2] = &GamePlayerStats{PlayerID: 2, Team: 3}

	e := newTestEngine()
	if got := voteEvenTeams(context.Background(), g, e); got != ValidityValid {
		t.Fatalf("voteEvenTeams = %v, want %v", got, ValidityValid)
	}
}

func TestVoteFogOfWarRejectsNonExplored(t *testing.T) {
	g := newTestGame()
	g.applyGlobalOption(OptionFogOfWar, "none")
	e := newTestEngine()
	if got := voteFogOfWar(context.Background(), g, e); got != ValidityBadFogOfWar {
		t.Fatalf("voteFogOfWar = %v, want %v", got, ValidityBadFogOfWar)
	}
}

func TestVoteRankedMapRejectsUnrankedMap(t *testing.T) {
	g := newTestGame()
	e := NewEngine(0, EngineConfig{Maps: fakeMapService{found: true, ranked: false}})
	if got := voteRankedMap(context.Background(), g, e); got != ValidityBadMap {
		t.Fatalf("voteRankedMap = %v, want %v", got, ValidityBadMap)
	}
}

func TestVoteRankedMapAcceptsRankedMap(t *testing.T) {
	g := newTestGame()
	e := NewEngine(0, EngineConfig{Maps: fakeMapService{found: true, ranked: true}})
	if got := voteRankedMap(context.Background(), g, e); got != ValidityValid {
		t.Fatalf("voteRankedMap = %v, want %v", got, ValidityValid)
	}
}

func TestVoteSinglePlayerRequiresTwoHumans(t *testing.T) {
	g := newTestGame()
	g.PlayerStats[1] = &GamePlayerStats{PlayerID: 1}
	e := newTestEngine()
	if got := voteSinglePlayer(context.Background(), g, e); got != ValiditySinglePlayer {
		t.Fatalf("voteSinglePlayer = %v, want %v", got, ValiditySinglePlayer)
	}
}

func TestVoteUnknownResultWithNoReports(t *testing.T) {
	g := newTestGame()
	e := newTestEngine()
	if got := voteUnknownResult(context.Background(), g, e); got != ValidityUnknownResult {
		t.Fatalf("voteUnknownResult = %v, want %v", got, ValidityUnknownResult)
	}
}

func TestVoteTooShortBelowThreshold(t *testing.T) {
	g := newTestGame()
	g.PlayerStats[1] = &GamePlayerStats{PlayerID: 1}
	g.PlayerStats[2] = &GamePlayerStats{PlayerID: 2}
	start := time.Now()
	end := start.Add(1 * time.Second)
	g.StartTime = &start
	g.EndTime = &end

	e := newTestEngine()
	if got := voteTooShort(context.Background(), g, e); got != ValidityTooShort {
		t.Fatalf("voteTooShort = %v, want %v", got, ValidityTooShort)
	}
}

func TestVoteTooShortNoTimesIsValid(t *testing.T) {
	g := newTestGame()
	e := newTestEngine()
	if got := voteTooShort(context.Background(), g, e); got != ValidityValid {
		t.Fatalf("voteTooShort = %v, want %v", got, ValidityValid)
	}
}

func TestVoteHasAI(t *testing.T) {
	g := newTestGame()
	e := newTestEngine()
	if got := voteHasAI(context.Background(), g, e); got != ValidityValid {
		t.Fatalf("voteHasAI = %v, want %v", got, ValidityValid)
	}
	g.applyAIOption("rat1", OptionArmy, "1")
	if got := voteHasAI(context.Background(), g, e); got != ValidityHasAI {
		t.Fatalf("voteHasAI = %v, want %v", got, ValidityHasAI)
	}
}

func TestAdjudicateValidityReturnsFirstNonValidVote(t *testing.T) {
	g := newTestGame()
	g.applyGlobalOption(OptionFogOfWar, "none")
	e := newTestEngine()
	if got := e.adjudicateValidity(context.Background(), g); got != ValidityBadFogOfWar {
		t.Fatalf("adjudicateValidity = %v, want %v", got, ValidityBadFogOfWar)
	}
}

func TestAdjudicateValidityAllValidReturnsValid(t *testing.T) {
	g := newTestGame()
	g.PlayerStats[1] = &GamePlayerStats{PlayerID: 1}
	g.PlayerStats[2] = &GamePlayerStats{PlayerID: 2}
	g.ReportedArmyResults[1] = map[int32]ArmyResult{}
	e := newTestEngine()
	if got := e.adjudicateValidity(context.Background(), g); got != ValidityValid {
		t.Fatalf("adjudicateValidity = %v, want %v", got, ValidityValid)
	}
}
