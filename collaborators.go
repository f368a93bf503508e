package server

import (
	"context"
	"time"
)

// This file declares the external collaborator interfaces the core engine
// consumes (spec.md §6). Concrete adapters (sqlite persistence, websocket
// client channel, in-memory fakes for map/mod/rating/stats/division/player
// lookups) live under internal/ and are wired together in internal/app.

// ClientChannel issues transport-level commands to connected game clients.
// Grounded on ClientService in GameService.java.
type ClientChannel interface {
	StartGameProcess(ctx context.Context, g *Game, player *Player) error
	HostGame(ctx context.Context, g *Game, host *Player) error
	ConnectToHost(ctx context.Context, player *Player, g *Game) error
	ConnectToPeer(ctx context.Context, from, to *Player, offerer bool) error
	DisconnectPlayerFromGame(ctx context.Context, targetID int32, receivers []*Player) error
	SendGameList(ctx context.Context, list []*GameSnapshot, recipient *Player) error
	BroadcastGameResult(ctx context.Context, msg GameResultMessage) error
}

// GameRepository persists Games across the two points spec.md §9 calls
// out: an insert at LAUNCHING and a save at end processing, plus the
// startup id-seeding and post-crash validity sweep.
type GameRepository interface {
	Insert(ctx context.Context, g *GameRecord) error
	Save(ctx context.Context, g *GameRecord) error
	FindMaxID(ctx context.Context) (int32, error)
	UpdateUnfinishedGamesValidity(ctx context.Context, validity Validity) (int, error)
}

// MapService resolves map metadata and ranked status.
type MapService interface {
	FindMap(ctx context.Context, fileName string) (MapInfo, bool, error)
	IncrementTimesPlayed(ctx context.Context, fileName string) error
}

// MapInfo is the subset of map metadata the engine consults.
type MapInfo struct {
	FileName string
	Ranked   bool
}

// ModService resolves featured-mod metadata and sim-mod version references.
type ModService interface {
	GetFeaturedMod(ctx context.Context, technicalName string) (FeaturedMod, bool, error)
	IsLadder1v1(ctx context.Context, technicalName string) (bool, error)
	IsCoop(ctx context.Context, technicalName string) (bool, error)
	IsModRanked(ctx context.Context, technicalName string) (bool, error)
	FindModVersionsByUIDs(ctx context.Context, uids []string) ([]ModVersionRef, error)
	GetLatestFileVersions(ctx context.Context, technicalName string) (map[string]int, error)
}

// FeaturedMod is the metadata the engine needs about a featured mod.
type FeaturedMod struct {
	TechnicalName string
	Rankable      bool
	Version       int
}

// RatingType distinguishes which rating bucket a game's result feeds.
type RatingType string

const (
	RatingGlobal    RatingType = "GLOBAL"
	RatingLadder1v1 RatingType = "LADDER_1V1"
)

// RatingService applies rating updates. Grounded on
// ratingService.updateRatings/initLadder1v1Rating/initGlobalRating in
// GameService.java.
type RatingService interface {
	UpdateRatings(ctx context.Context, stats []*GamePlayerStats, noTeamID int32, ratingType RatingType) error
	InitLadder1v1Rating(ctx context.Context, playerID int32) (mean, deviation float64, err error)
	InitGlobalRating(ctx context.Context, playerID int32) (mean, deviation float64, err error)
}

// ArmyStatisticsService post-processes a single player's per-game stats.
type ArmyStatisticsService interface {
	Process(ctx context.Context, stats *GamePlayerStats, g *GameRecord) error
}

// DivisionService posts 1v1 ladder division results.
type DivisionService interface {
	PostResult(ctx context.Context, playerOne, playerTwo int32, winner *int32) error
}

// PlayerDirectory resolves online players by id, independent of the
// in-process Player aggregate the engine itself owns.
type PlayerDirectory interface {
	GetOnlinePlayer(ctx context.Context, id int32) (*Player, bool)
}

// GameSnapshot is the broadcast-facing view of a Game (spec.md §4.9):
// never includes the password itself, only whether one is set.
type GameSnapshot struct {
	ID                   int32
	Title                string
	Visibility           Visibility
	PasswordPresent      bool
	State                GameState
	FeaturedMod          string
	SimMods              []ModVersionRef
	MapFolder            string
	HostLogin            string
	Players              []GameSnapshotPlayer
	MaxPlayers           int
	StartTime            *time.Time
	MinRating            *int
	MaxRating            *int
	FeaturedModVersion   int
	FeaturedModFileVersions map[string]int
}

// GameSnapshotPlayer is one roster entry in a GameSnapshot.
type GameSnapshotPlayer struct {
	ID    int32
	Login string
	Team  int32
}

// GameResultMessage is broadcast once end processing computes results
// (spec.md §4.6).
type GameResultMessage struct {
	GameID  int32
	Draw    bool
	Results map[int32]ArmyResult
}

// GameRecord is the persistence-facing projection of a Game, decoupled
// from the in-memory aggregate (spec.md §9: Games are arena-owned,
// persistence sees a plain record).
type GameRecord struct {
	ID               int32
	Title            string
	FeaturedMod      string
	MapFileName      string
	HostID           int32
	State            GameState
	Validity         Validity
	StartTime        *time.Time
	EndTime          *time.Time
	PlayerStats      []*GamePlayerStats
}

// snapshotLocked builds a GameSnapshot from the current Game state. Must be
// called while holding g.mu.
func (g *Game) snapshotLocked() *GameSnapshot {
	players := make([]GameSnapshotPlayer, 0, len(g.ConnectedPlayers))
	for id, p := range g.ConnectedPlayers {
		team := int32(0)
		if stats, ok := g.PlayerStats[id]; ok {
			team = stats.Team
		}
		players = append(players, GameSnapshotPlayer{ID: p.ID, Login: p.Login, Team: team})
	}
	hostLogin := ""
	if g.Host != nil {
		hostLogin = g.Host.Login
	}
	return &GameSnapshot{
		ID:              g.ID,
		Title:           g.Title,
		Visibility:      g.Visibility,
		PasswordPresent: g.HasPassword(),
		State:           g.State,
		FeaturedMod:     g.FeaturedMod,
		SimMods:         append([]ModVersionRef(nil), g.SimMods...),
		MapFolder:       g.MapFolder,
		HostLogin:       hostLogin,
		Players:         players,
		MaxPlayers:      g.MaxPlayers,
		StartTime:       g.StartTime,
		MinRating:       g.MinRating,
		MaxRating:       g.MaxRating,
	}
}

// toRecord projects the Game into its persistence-facing GameRecord. Must
// be called while holding g.mu.
func (g *Game) toRecord() *GameRecord {
	hostID := int32(0)
	if g.Host != nil {
		hostID = g.Host.ID
	}
	stats := make([]*GamePlayerStats, 0, len(g.PlayerStats))
	for _, s := range g.PlayerStats {
		stats = append(stats, s)
	}
	return &GameRecord{
		ID:          g.ID,
		Title:       g.Title,
		FeaturedMod: g.FeaturedMod,
		MapFileName: g.MapFileName,
		HostID:      hostID,
		State:       g.State,
		Validity:    g.Validity,
		StartTime:   g.StartTime,
		EndTime:     g.EndTime,
		PlayerStats: stats,
	}
}
