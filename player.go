package server

import "sync"

// PlayerGameState is one player's view of its relationship to its current
// game (spec.md §3). Grounded on PlayerGameState in GameService.java/
// ClientService; IDLE exists in the source as a state the engine explicitly
// ignores rather than acts on.
type PlayerGameState string

const (
	PlayerStateNone         PlayerGameState = "NONE"
	PlayerStateInitializing PlayerGameState = "INITIALIZING"
	PlayerStateLobby        PlayerGameState = "LOBBY"
	PlayerStateLaunching    PlayerGameState = "LAUNCHING"
	PlayerStateEnded        PlayerGameState = "ENDED"
	PlayerStateClosed       PlayerGameState = "CLOSED"
	PlayerStateIdle         PlayerGameState = "IDLE"
)

// playerStateTransitions enumerates, for each target state, the set of
// legal predecessor states a call to updatePlayerGameState may transition
// from. IDLE is legal from any state and is always a no-op (logged only).
// This table is not given verbatim in spec.md (only the per-state side
// effects in §4.3 are); it is inferred from those side effects and recorded
// here, not in source, since original_source's equivalent guard lives in
// scattered Requests.verify calls rather than a single table.
var playerStateTransitions = map[PlayerGameState]map[PlayerGameState]bool{
	PlayerStateInitializing: {PlayerStateNone: true},
	PlayerStateLobby:        {PlayerStateInitializing: true},
	PlayerStateLaunching:    {PlayerStateLobby: true},
	PlayerStateEnded: {
		PlayerStateLobby:     true,
		PlayerStateLaunching: true,
	},
	PlayerStateClosed: {
		PlayerStateInitializing: true,
		PlayerStateLobby:        true,
		PlayerStateLaunching:    true,
		PlayerStateEnded:        true,
	},
}

func legalPlayerTransition(from, to PlayerGameState) bool {
	if to == PlayerStateIdle {
		return true
	}
	preds, ok := playerStateTransitions[to]
	if !ok {
		return false
	}
	return preds[from]
}

// Player is a directory-owned aggregate: it references its current game by
// id only, never by pointer, so that Game and Player never form a reference
// cycle (spec.md §9 design note). Games hold a *Player for each connected
// participant; Players hold only a game id.
type Player struct {
	mu sync.Mutex

	ID    int32
	Login string

	state         PlayerGameState
	currentGameID int32 // 0 means "no current game"
	joinFuture    *GameFuture
}

// NewPlayer constructs a Player in state NONE with no current game.
func NewPlayer(id int32, login string) *Player {
	return &Player{ID: id, Login: login, state: PlayerStateNone}
}

// State returns the player's current player-game state.
func (p *Player) State() PlayerGameState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// CurrentGameID returns the id of the player's current game, or 0 if none.
func (p *Player) CurrentGameID() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentGameID
}

// attachToGame sets the player's current game and resets its state to
// INITIALIZING, installing a fresh join future. Callers do not hold the
// target game's g.mu when calling it; the player's own mutex guards it.
func (p *Player) attachToGame(gameID int32) *GameFuture {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentGameID = gameID
	p.state = PlayerStateInitializing
	p.joinFuture = NewGameFuture()
	return p.joinFuture
}

// detach clears the player's current game and state, cancelling any pending
// join future. Called during removePlayer (§4.4).
func (p *Player) detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.joinFuture != nil {
		p.joinFuture.Cancel()
		p.joinFuture = nil
	}
	p.currentGameID = 0
	p.state = PlayerStateNone
}

// setState performs an unconditional state write, used once a transition
// has already been validated by the caller.
func (p *Player) setState(state PlayerGameState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
}

// future returns the player's pending join future, if any.
func (p *Player) future() *GameFuture {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.joinFuture
}

// completeFuture fulfils the player's pending join future with g, if one is
// outstanding, and clears it.
func (p *Player) completeFuture(g *Game) {
	p.mu.Lock()
	future := p.joinFuture
	p.joinFuture = nil
	p.mu.Unlock()
	if future != nil {
		future.Complete(g)
	}
}
