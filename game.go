package server

import (
	"sync"
	"time"
)

// Reserved team ids (spec.md §6).
const (
	NoTeamID      int32 = 1
	ObserversTeam int32 = -1
)

// Visibility controls whether a game is listed to the general public or
// only to the host's friends. Grounded on GameVisibility in GameService.java.
type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityFriends Visibility = "FRIENDS"
)

// GameState is the lifecycle state of a Game (spec.md §3).
type GameState string

const (
	GameInitializing GameState = "INITIALIZING"
	GameOpen         GameState = "OPEN"
	GamePlaying      GameState = "PLAYING"
	GameEnded        GameState = "ENDED"
	GameClosed       GameState = "CLOSED"
)

var gameStateTransitions = map[GameState]map[GameState]bool{
	GameOpen:    {GameInitializing: true},
	GamePlaying: {GameOpen: true},
	GameEnded:   {GamePlaying: true},
	GameClosed: {
		GameInitializing: true,
		GameOpen:         true,
		GameEnded:         true,
	},
}

func legalGameTransition(from, to GameState) bool {
	preds, ok := gameStateTransitions[to]
	if !ok {
		return false
	}
	return preds[from]
}

// Validity is the per-game verdict deciding whether results may affect
// ratings (spec.md §4.7, glossary).
type Validity string

const (
	ValidityValid                Validity = "VALID"
	ValidityUnranked             Validity = "UNRANKED"
	ValidityBadFeaturedMod       Validity = "BAD_FEATURED_MOD"
	ValidityWrongVictoryCond     Validity = "WRONG_VICTORY_CONDITION"
	ValidityFreeForAll           Validity = "FREE_FOR_ALL"
	ValidityUnevenTeams          Validity = "UNEVEN_TEAMS_NOT_RANKED"
	ValidityBadFogOfWar          Validity = "BAD_FOG_OF_WAR"
	ValidityCheatsEnabled        Validity = "CHEATS_ENABLED"
	ValidityPrebuiltEnabled      Validity = "PREBUILT_ENABLED"
	ValidityNoRushEnabled        Validity = "NO_RUSH_ENABLED"
	ValidityRestrictedCategories Validity = "HAS_RESTRICTED_CATEGORIES"
	ValidityUnknownResult        Validity = "UNKNOWN_RESULT"
	ValidityBadMap               Validity = "BAD_MAP"
	ValidityBadUnitCount         Validity = "DESYNC"
	ValidityMutualDraw           Validity = "MUTUAL_DRAW"
	ValiditySinglePlayer         Validity = "SINGLE_PLAYER"
	ValidityTooShort             Validity = "TOO_SHORT"
	ValidityHasAI                Validity = "HAS_AI"
	ValidityTeamsUnlocked        Validity = "TEAMS_UNLOCKED"
	ValidityTeamSpawn            Validity = "TEAM_SPAWN"
	ValidityCivilians            Validity = "CIVILIANS_REVEALED"
	ValidityWrongDifficulty      Validity = "WRONG_DIFFICULTY"
	ValidityExpansionDisabled    Validity = "EXPANSION_DISABLED"
)

// Outcome is an army's reported result (spec.md §3).
type Outcome string

const (
	OutcomeVictory Outcome = "VICTORY"
	OutcomeDefeat  Outcome = "DEFEAT"
	OutcomeDraw    Outcome = "DRAW"
	OutcomeUnknown Outcome = "UNKNOWN"
)

// ArmyResult is a value type: equality over all fields is what "most
// reported" grouping is computed on (spec.md §3).
type ArmyResult struct {
	ArmyID  int32
	Outcome Outcome
	Score   int
}

// GamePlayerStats is the per-game, per-player stats record captured at
// launch and settled at end processing (spec.md §3).
type GamePlayerStats struct {
	PlayerID  int32
	Team      int32
	Faction   int32
	Color     int32
	StartSpot int32
	Mean      float64
	Deviation float64
	Score     *int
	ScoreTime *time.Time
}

// ModVersionRef identifies one sim-mod version bound to a game.
type ModVersionRef struct {
	UID         string
	DisplayName string
}

// Game is one active match. It is the serialization unit of the engine
// (spec.md §5): every public Engine operation touching this Game holds mu
// for the full duration of its mutation.
//
// Game references connected Players by pointer (it owns the roster for its
// own lifetime) but Players reference back only by game id (player.go),
// avoiding an owning reference cycle per spec.md §9.
type Game struct {
	mu sync.Mutex

	ID    int32
	Title string

	password   string
	Visibility Visibility

	FeaturedMod string
	MapFileName string
	MapFolder   string

	MinRating *int
	MaxRating *int

	MaxPlayers int
	LobbyMode  string

	VictoryCondition string

	Host  *Player
	State GameState

	Validity Validity

	StartTime *time.Time
	EndTime   *time.Time

	DesyncCount    int
	RatingEnforced bool
	MutualDraw     bool

	Options       map[string]string
	PlayerOptions map[int32]map[string]string
	AIOptions     map[string]map[string]string
	SimMods       []ModVersionRef

	ConnectedPlayers map[int32]*Player
	PlayerStats      map[int32]*GamePlayerStats

	ReportedArmyResults map[int32]map[int32]ArmyResult
	MutualDrawAcceptors map[int32]bool
	GameEndedReporters  map[int32]bool
}

// NewGame constructs a Game in state INITIALIZING, registered to the given
// host Player.
func NewGame(id int32, title, featuredMod, mapFileName string, visibility Visibility, minRating, maxRating *int, host *Player, lobbyMode string) *Game {
	return &Game{
		ID:                  id,
		Title:               title,
		Visibility:          visibility,
		FeaturedMod:         featuredMod,
		MapFileName:         mapFileName,
		MinRating:           minRating,
		MaxRating:           maxRating,
		MaxPlayers:          12,
		LobbyMode:           lobbyMode,
		Host:                host,
		State:               GameInitializing,
		Validity:            ValidityValid,
		Options:             make(map[string]string),
		PlayerOptions:       make(map[int32]map[string]string),
		AIOptions:           make(map[string]map[string]string),
		ConnectedPlayers:    make(map[int32]*Player),
		PlayerStats:         make(map[int32]*GamePlayerStats),
		ReportedArmyResults: make(map[int32]map[int32]ArmyResult),
		MutualDrawAcceptors: make(map[int32]bool),
		GameEndedReporters:  make(map[int32]bool),
	}
}

// HasPassword reports whether a password is set, without exposing it.
func (g *Game) HasPassword() bool {
	return g.password != ""
}

// checkPassword compares candidate against the stored password. Must be
// called while holding g.mu.
func (g *Game) checkPassword(candidate string) bool {
	return g.password == "" || g.password == candidate
}

// setPassword installs the game's password. Must be called while holding g.mu.
func (g *Game) setPassword(password string) {
	g.password = password
}

// transitionTo performs a validated state transition. Returns false if the
// transition is illegal; callers in end-of-game processing treat an illegal
// transition here as a bug to log and swallow (spec.md §7), never panic.
func (g *Game) transitionTo(to GameState) bool {
	if !legalGameTransition(g.State, to) {
		return false
	}
	g.State = to
	return true
}

// isHost reports whether player is this game's current host.
func (g *Game) isHost(player *Player) bool {
	return g.Host != nil && player != nil && g.Host.ID == player.ID
}

// addConnectedPlayer registers player in the roster. Must be called while
// holding g.mu.
func (g *Game) addConnectedPlayer(p *Player) {
	g.ConnectedPlayers[p.ID] = p
}

// removeConnectedPlayer deregisters a player from the roster and drops its
// per-game bookkeeping sets. Must be called while holding g.mu.
func (g *Game) removeConnectedPlayer(id int32) {
	delete(g.ConnectedPlayers, id)
	delete(g.MutualDrawAcceptors, id)
	delete(g.GameEndedReporters, id)
}

// connectedPlayerIDs returns a snapshot of currently connected player ids.
// Must be called while holding g.mu.
func (g *Game) connectedPlayerIDs() []int32 {
	ids := make([]int32, 0, len(g.ConnectedPlayers))
	for id := range g.ConnectedPlayers {
		ids = append(ids, id)
	}
	return ids
}

// nonObserverConnectedPlayers returns connected players that have a
// GamePlayerStats entry whose team is not the observers id; players on the
// "no team" id are included. Used by mutual-draw and
// several validity voters. Must be called while holding g.mu.
func (g *Game) nonObserverConnectedPlayers() []int32 {
	out := make([]int32, 0, len(g.ConnectedPlayers))
	for id := range g.ConnectedPlayers {
		stats, ok := g.PlayerStats[id]
		if !ok {
			continue
		}
		if stats.Team == ObserversTeam {
			continue
		}
		out = append(out, id)
	}
	return out
}
