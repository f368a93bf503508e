// Package server implements the game-session coordinator: the in-memory
// set of active games, their lifecycle and per-player state machines,
// multi-reporter result reconciliation, validity adjudication, and
// cross-game rating serialization. Durable storage, the wire transport,
// and rating/map/mod/stats/division lookups are external collaborators
// consumed through the interfaces in collaborators.go.
package server

import (
	"context"
	"strconv"
	"sync"
	"time"

	"gamesession/server/internal/telemetry"
	"gamesession/server/logging"
	"gamesession/server/logging/lifecycle"
)

// EngineConfig wires the collaborators and ambient-stack adapters an
// Engine needs. Every collaborator is optional; a nil collaborator is
// treated as "not configured" and the engine skips the capability it backs
// without logging.
type EngineConfig struct {
	Clients    ClientChannel
	Repository GameRepository
	Maps       MapService
	Mods       ModService
	Rating     RatingService
	Stats      ArmyStatisticsService
	Divisions  DivisionService
	Players    PlayerDirectory

	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
}

// Engine is the process-wide singleton coordinating every active game.
// Constructed once and passed explicitly to callers rather than reached
// via a global (spec.md §9).
type Engine struct {
	registry    *Registry
	broadcaster *Broadcaster
	rating      *ratingQueue

	playersMu sync.RWMutex
	players   map[int32]*Player

	clients   ClientChannel
	repo      GameRepository
	maps      MapService
	mods      ModService
	ratingSvc RatingService
	stats     ArmyStatisticsService
	divisions DivisionService
	playerDir PlayerDirectory

	logger    telemetry.Logger
	metrics   telemetry.Metrics
	publisher logging.Publisher
}

// NewEngine constructs an Engine whose id counter is seeded from seed
// (ordinarily GameRepository.FindMaxID at boot, per §4.1).
func NewEngine(seed int32, cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}

	e := &Engine{
		registry:  NewRegistry(seed),
		rating:    newRatingQueue(),
		players:   make(map[int32]*Player),
		clients:   cfg.Clients,
		repo:      cfg.Repository,
		maps:      cfg.Maps,
		mods:      cfg.Mods,
		ratingSvc: cfg.Rating,
		stats:     cfg.Stats,
		divisions: cfg.Divisions,
		playerDir: cfg.Players,
		logger:    logger,
		metrics:   cfg.Metrics,
		publisher: publisher,
	}
	e.broadcaster = NewBroadcaster(e.publishSnapshot)
	return e
}

func (e *Engine) publishSnapshot(ctx context.Context, snapshot *GameSnapshot) {
	if e.clients == nil {
		return
	}
	if err := e.clients.SendGameList(ctx, []*GameSnapshot{snapshot}, nil); err != nil {
		e.logger.Printf("broadcast failed for game %d: %v", snapshot.ID, err)
	}
}

func (e *Engine) addMetric(key string, delta uint64) {
	if e.metrics != nil {
		e.metrics.Add(key, delta)
	}
}

func (e *Engine) entity(p *Player) logging.EntityRef {
	if p == nil {
		return logging.EntityRef{Kind: logging.EntityKindSystem}
	}
	return logging.EntityRef{ID: strconv.Itoa(int(p.ID)), Kind: logging.EntityKindPlayer}
}

func (e *Engine) gameEntity(g *Game) logging.EntityRef {
	return logging.EntityRef{ID: strconv.Itoa(int(g.ID)), Kind: logging.EntityKindGame}
}

// EnsurePlayer returns the directory-owned Player for id, creating one in
// state NONE if this is the first time the engine has seen it.
func (e *Engine) EnsurePlayer(id int32, login string) *Player {
	e.playersMu.Lock()
	defer e.playersMu.Unlock()
	if p, ok := e.players[id]; ok {
		return p
	}
	p := NewPlayer(id, login)
	e.players[id] = p
	return p
}

// markDirtyNow flushes a snapshot immediately (used on state-machine
// transitions, spec.md §4.9). Must be called without holding g.mu.
func (e *Engine) markDirtyNow(ctx context.Context, g *Game) {
	g.mu.Lock()
	snapshot := g.snapshotLocked()
	g.mu.Unlock()
	e.broadcaster.MarkDirty(ctx, snapshot, 0, 0)
}

// markDirtyDebounced schedules a coalesced broadcast (used on option
// updates and other non-transition mutations). Must be called without
// holding g.mu.
func (e *Engine) markDirtyDebounced(ctx context.Context, g *Game, minDelay, maxDelay time.Duration) {
	g.mu.Lock()
	snapshot := g.snapshotLocked()
	g.mu.Unlock()
	e.broadcaster.MarkDirty(ctx, snapshot, minDelay, maxDelay)
}

const (
	defaultMinDelay = 1 * time.Second
	defaultMaxDelay = 5 * time.Second
)

// --- 4.2 Game creation and joining -----------------------------------

// CreateGameParams bundles createGame's parameters (spec.md §4.2).
type CreateGameParams struct {
	Title        string
	FeaturedMod  string
	MapFileName  string
	Password     string
	Visibility   Visibility
	MinRating    *int
	MaxRating    *int
	LobbyMode    string
}

// CreateGame implements createGame(...) → future<Game> (spec.md §4.2).
func (e *Engine) CreateGame(ctx context.Context, player *Player, params CreateGameParams) (*GameFuture, error) {
	if params.Visibility == "" {
		params.Visibility = VisibilityPublic
	}

	if gameID := player.CurrentGameID(); gameID != 0 {
		existing := e.registry.Find(gameID)
		if existing != nil {
			existing.mu.Lock()
			state := existing.State
			existing.mu.Unlock()
			if state != GameInitializing {
				return nil, newRequestError(ErrAlreadyInGame)
			}
			if err := e.RemovePlayer(ctx, player); err != nil {
				return nil, err
			}
		}
	}

	if e.mods != nil {
		if _, found, err := e.mods.GetFeaturedMod(ctx, params.FeaturedMod); err != nil || !found {
			return nil, newRequestError(ErrInvalidFeaturedMod, params.FeaturedMod)
		}
	}

	id := e.registry.AllocateID()
	g := NewGame(id, params.Title, params.FeaturedMod, params.MapFileName, params.Visibility, params.MinRating, params.MaxRating, player, params.LobbyMode)
	if params.Password != "" {
		g.setPassword(params.Password)
	}
	e.registry.Insert(g)
	e.addMetric("games.created", 1)

	future := player.attachToGame(id)

	if e.clients != nil {
		if err := e.clients.StartGameProcess(ctx, g, player); err != nil {
			e.logger.Printf("startGameProcess failed for game %d: %v", id, err)
		}
	}

	lifecycle.GameStateChanged(ctx, e.publisher, e.gameEntity(g), lifecycle.GameStateChangedPayload{From: "", To: string(GameInitializing)}, nil)
	return future, nil
}

// JoinGame implements joinGame(...) → future<Game> (spec.md §4.2).
func (e *Engine) JoinGame(ctx context.Context, gameID int32, password string, player *Player) (*GameFuture, error) {
	if player.CurrentGameID() != 0 {
		return nil, newRequestError(ErrAlreadyInGame)
	}

	g := e.registry.Find(gameID)
	if g == nil {
		return nil, newRequestError(ErrNoSuchGame, gameID)
	}

	g.mu.Lock()
	if g.State != GameOpen {
		g.mu.Unlock()
		return nil, newRequestError(ErrGameNotJoinable, gameID)
	}
	if !g.checkPassword(password) {
		g.mu.Unlock()
		return nil, newRequestError(ErrInvalidPassword)
	}
	g.mu.Unlock()

	future := player.attachToGame(gameID)

	if e.clients != nil {
		if err := e.clients.StartGameProcess(ctx, g, player); err != nil {
			e.logger.Printf("startGameProcess failed for game %d: %v", gameID, err)
		}
	}
	return future, nil
}

// --- 4.3 Player-Game state transitions --------------------------------

// UpdatePlayerGameState implements updatePlayerGameState(newState, player)
// (spec.md §4.3).
func (e *Engine) UpdatePlayerGameState(ctx context.Context, player *Player, newState PlayerGameState) error {
	gameID := player.CurrentGameID()
	if gameID == 0 {
		return newRequestError(ErrNotInAGame)
	}
	g := e.registry.Find(gameID)
	if g == nil {
		return newRequestError(ErrNotInAGame)
	}

	from := player.State()
	if newState == PlayerStateIdle {
		e.logger.Printf("player %d reported IDLE, ignoring", player.ID)
		return nil
	}
	if !legalPlayerTransition(from, newState) {
		return newRequestError(ErrInvalidPlayerGameStateTransition, from, newState)
	}

	lifecycle.PlayerStateChanged(ctx, e.publisher, e.entity(player), lifecycle.PlayerStateChangedPayload{
		GameID: strconv.Itoa(int(gameID)),
		From:   string(from),
		To:     string(newState),
	}, nil)

	switch newState {
	case PlayerStateLobby:
		return e.onPlayerLobby(ctx, g, player)
	case PlayerStateLaunching:
		return e.onPlayerLaunching(ctx, g, player)
	case PlayerStateEnded:
		player.setState(PlayerStateEnded)
		return e.ReportGameEnded(ctx, player)
	case PlayerStateClosed:
		return e.RemovePlayer(ctx, player)
	}
	player.setState(newState)
	return nil
}

func (e *Engine) onPlayerLobby(ctx context.Context, g *Game, player *Player) error {
	g.mu.Lock()
	isHost := g.isHost(player)
	var peers []*Player
	if !isHost {
		for _, p := range g.ConnectedPlayers {
			peers = append(peers, p)
		}
	}
	if isHost {
		g.transitionTo(GameOpen)
	}
	g.addConnectedPlayer(player)
	g.mu.Unlock()

	player.setState(PlayerStateLobby)

	if e.clients != nil {
		if isHost {
			if err := e.clients.HostGame(ctx, g, player); err != nil {
				e.logger.Printf("hostGame failed for game %d: %v", g.ID, err)
			}
		} else {
			if err := e.clients.ConnectToHost(ctx, player, g); err != nil {
				e.logger.Printf("connectToHost failed for game %d: %v", g.ID, err)
			}
			for _, peer := range peers {
				if err := e.clients.ConnectToPeer(ctx, player, peer, true); err != nil {
					e.logger.Printf("connectToPeer failed for game %d: %v", g.ID, err)
				}
			}
		}
	}

	if e.ratingSvc != nil {
		mean, dev, err := e.initialRating(ctx, g, player.ID)
		if err == nil {
			g.mu.Lock()
			stats, ok := g.PlayerStats[player.ID]
			if !ok {
				stats = &GamePlayerStats{PlayerID: player.ID}
				g.PlayerStats[player.ID] = stats
			}
			stats.Mean, stats.Deviation = mean, dev
			g.mu.Unlock()
		}
	}

	player.completeFuture(g)
	if isHost {
		e.markDirtyNow(ctx, g)
	}
	return nil
}

func (e *Engine) initialRating(ctx context.Context, g *Game, playerID int32) (float64, float64, error) {
	ladder := false
	if e.mods != nil {
		if v, err := e.mods.IsLadder1v1(ctx, g.FeaturedMod); err == nil {
			ladder = v
		}
	}
	if ladder {
		return e.ratingSvc.InitLadder1v1Rating(ctx, playerID)
	}
	return e.ratingSvc.InitGlobalRating(ctx, playerID)
}

func (e *Engine) onPlayerLaunching(ctx context.Context, g *Game, player *Player) error {
	g.mu.Lock()
	if !g.isHost(player) {
		g.mu.Unlock()
		return nil
	}
	if !g.transitionTo(GamePlaying) {
		g.mu.Unlock()
		return nil
	}
	now := time.Now()
	g.StartTime = &now
	for id := range g.ConnectedPlayers {
		opts := g.PlayerOptions[id]
		stats := &GamePlayerStats{PlayerID: id}
		if n, ok := parseInt(opts[OptionTeam]); ok {
			stats.Team = int32(n)
		}
		if n, ok := parseInt(opts[OptionFaction]); ok {
			stats.Faction = int32(n)
		}
		if n, ok := parseInt(opts[OptionColor]); ok {
			stats.Color = int32(n)
		}
		if n, ok := parseInt(opts[OptionStartSpot]); ok {
			stats.StartSpot = int32(n)
		}
		if existing, ok := g.PlayerStats[id]; ok {
			stats.Mean, stats.Deviation = existing.Mean, existing.Deviation
		}
		g.PlayerStats[id] = stats
	}
	record := g.toRecord()
	g.mu.Unlock()

	player.setState(PlayerStateLaunching)
	e.addMetric("games.state.PLAYING", 1)

	if e.repo != nil {
		if err := e.repo.Insert(ctx, record); err != nil {
			e.logger.Printf("persist insert failed for game %d: %v", g.ID, err)
		}
	}

	lifecycle.GameStateChanged(ctx, e.publisher, e.gameEntity(g), lifecycle.GameStateChangedPayload{From: string(GameOpen), To: string(GamePlaying)}, nil)
	e.markDirtyNow(ctx, g)
	return nil
}

// --- 4.4 Removal and host-abandonment ----------------------------------

// RemovePlayer implements removePlayer(game, player) (spec.md §4.4). The
// game is derived from the player's current-game id.
func (e *Engine) RemovePlayer(ctx context.Context, player *Player) error {
	gameID := player.CurrentGameID()
	if gameID == 0 {
		return nil
	}
	g := e.registry.Find(gameID)
	player.detach()
	if g == nil {
		return nil
	}
	return e.removeFromGame(ctx, g, player)
}

func (e *Engine) removeFromGame(ctx context.Context, g *Game, player *Player) error {
	g.mu.Lock()
	_, wasConnected := g.ConnectedPlayers[player.ID]
	g.removeConnectedPlayer(player.ID)
	wasHost := g.isHost(player)
	state := g.State
	empty := len(g.ConnectedPlayers) == 0
	var cascade []*Player
	if wasHost && state == GameOpen {
		for _, p := range g.ConnectedPlayers {
			cascade = append(cascade, p)
		}
	}
	g.mu.Unlock()

	if !wasConnected && len(cascade) == 0 {
		return nil
	}

	if e.clients != nil {
		var receivers []*Player
		g.mu.Lock()
		for _, p := range g.ConnectedPlayers {
			receivers = append(receivers, p)
		}
		g.mu.Unlock()
		if err := e.clients.DisconnectPlayerFromGame(ctx, player.ID, receivers); err != nil {
			e.logger.Printf("disconnectPlayerFromGame failed for game %d: %v", g.ID, err)
		}
	}

	for _, peer := range cascade {
		if err := e.RemovePlayer(ctx, peer); err != nil {
			e.logger.Printf("cascade removal failed for game %d player %d: %v", g.ID, peer.ID, err)
		}
	}

	g.mu.Lock()
	state = g.State
	empty = len(g.ConnectedPlayers) == 0
	g.mu.Unlock()

	if empty {
		switch state {
		case GameInitializing, GameOpen:
			e.closeGame(ctx, g)
		case GamePlaying:
			e.endProcessing(ctx, g)
		}
		return nil
	}

	e.markDirtyDebounced(ctx, g, defaultMinDelay, defaultMaxDelay)
	return nil
}

func (e *Engine) closeGame(ctx context.Context, g *Game) {
	g.mu.Lock()
	g.transitionTo(GameClosed)
	g.mu.Unlock()
	e.registry.Remove(g)
	e.broadcaster.Cancel(g.ID)
	e.addMetric("games.state.CLOSED", 1)
	lifecycle.GameStateChanged(ctx, e.publisher, e.gameEntity(g), lifecycle.GameStateChangedPayload{To: string(GameClosed)}, nil)
}

// --- 4.5 Option updates --------------------------------------------------

func (e *Engine) requireHost(player *Player) (*Game, error) {
	gameID := player.CurrentGameID()
	if gameID == 0 {
		return nil, nil // missing current-game: logged and discarded by caller
	}
	g := e.registry.Find(gameID)
	if g == nil {
		return nil, nil
	}
	g.mu.Lock()
	isHost := g.isHost(player)
	g.mu.Unlock()
	if !isHost {
		return nil, newRequestError(ErrHostOnlyOption)
	}
	return g, nil
}

// UpdateGameOption implements updateGameOption (spec.md §4.5).
func (e *Engine) UpdateGameOption(ctx context.Context, host *Player, key, value string) error {
	g, err := e.requireHost(host)
	if err != nil {
		return err
	}
	if g == nil {
		e.logger.Printf("updateGameOption with no current game for player %d", host.ID)
		return nil
	}
	g.mu.Lock()
	g.applyGlobalOption(key, value)
	g.mu.Unlock()
	e.markDirtyDebounced(ctx, g, defaultMinDelay, defaultMaxDelay)
	return nil
}

// UpdatePlayerOption implements updatePlayerOption (spec.md §4.5).
func (e *Engine) UpdatePlayerOption(ctx context.Context, host *Player, targetPlayerID int32, key, value string) error {
	g, err := e.requireHost(host)
	if err != nil {
		return err
	}
	if g == nil {
		e.logger.Printf("updatePlayerOption with no current game for player %d", host.ID)
		return nil
	}
	g.mu.Lock()
	if g.State != GameOpen {
		g.mu.Unlock()
		return newRequestError(ErrInvalidGameState, g.State)
	}
	g.applyPlayerOption(targetPlayerID, key, value)
	g.mu.Unlock()
	e.markDirtyDebounced(ctx, g, defaultMinDelay, defaultMaxDelay)
	return nil
}

// UpdateAIOption implements updateAiOption (spec.md §4.5).
func (e *Engine) UpdateAIOption(ctx context.Context, host *Player, aiName, key, value string) error {
	g, err := e.requireHost(host)
	if err != nil {
		return err
	}
	if g == nil {
		e.logger.Printf("updateAiOption with no current game for player %d", host.ID)
		return nil
	}
	g.mu.Lock()
	if g.State != GameOpen {
		g.mu.Unlock()
		return newRequestError(ErrInvalidGameState, g.State)
	}
	g.applyAIOption(aiName, key, value)
	g.mu.Unlock()
	e.markDirtyDebounced(ctx, g, defaultMinDelay, defaultMaxDelay)
	return nil
}

// ClearSlot implements clearSlot(game, slotId) (spec.md §4.5). Idempotent.
func (e *Engine) ClearSlot(ctx context.Context, host *Player, slotID string) error {
	g, err := e.requireHost(host)
	if err != nil {
		return err
	}
	if g == nil {
		return nil
	}
	g.mu.Lock()
	g.clearSlot(slotID)
	g.mu.Unlock()
	e.markDirtyDebounced(ctx, g, defaultMinDelay, defaultMaxDelay)
	return nil
}

// UpdateGameMods implements updateGameMods: replaces the sim-mod list from
// resolved mod-version references (spec.md §12 supplement).
func (e *Engine) UpdateGameMods(ctx context.Context, host *Player, uids []string) error {
	g, err := e.requireHost(host)
	if err != nil {
		return err
	}
	if g == nil || e.mods == nil {
		return nil
	}
	refs, err := e.mods.FindModVersionsByUIDs(ctx, uids)
	if err != nil {
		e.logger.Printf("findModVersionsByUids failed for game %d: %v", g.ID, err)
		return nil
	}
	g.mu.Lock()
	g.SimMods = refs
	g.mu.Unlock()
	e.markDirtyDebounced(ctx, g, defaultMinDelay, defaultMaxDelay)
	return nil
}

// UpdateGameModsCount implements updateGameModsCount: a reported count of
// exactly zero clears the sim-mod list (spec.md §12 supplement).
func (e *Engine) UpdateGameModsCount(ctx context.Context, host *Player, count int) error {
	g, err := e.requireHost(host)
	if err != nil {
		return err
	}
	if g == nil {
		return nil
	}
	if count != 0 {
		return nil
	}
	g.mu.Lock()
	g.SimMods = nil
	g.mu.Unlock()
	e.markDirtyDebounced(ctx, g, defaultMinDelay, defaultMaxDelay)
	return nil
}

// ReportDesync increments the game's desync counter.
func (e *Engine) ReportDesync(ctx context.Context, player *Player) error {
	gameID := player.CurrentGameID()
	if gameID == 0 {
		e.logger.Printf("reportDesync with no current game for player %d", player.ID)
		return nil
	}
	g := e.registry.Find(gameID)
	if g == nil {
		return nil
	}
	g.mu.Lock()
	g.DesyncCount++
	g.mu.Unlock()
	return nil
}

// --- 4.6 End-of-game processing ------------------------------------------

// ReportGameEnded implements reportGameEnded(player) (spec.md §4.6).
// Idempotent: a reporter already recorded is a no-op.
func (e *Engine) ReportGameEnded(ctx context.Context, player *Player) error {
	gameID := player.CurrentGameID()
	if gameID == 0 {
		return newRequestError(ErrNotInAGame)
	}
	g := e.registry.Find(gameID)
	if g == nil {
		return newRequestError(ErrNotInAGame)
	}

	g.mu.Lock()
	if g.GameEndedReporters[player.ID] {
		g.mu.Unlock()
		return nil
	}
	g.GameEndedReporters[player.ID] = true
	allReported := true
	for id := range g.ConnectedPlayers {
		if !g.GameEndedReporters[id] {
			allReported = false
			break
		}
	}
	alreadyEnded := g.State == GameEnded
	g.mu.Unlock()

	if allReported && !alreadyEnded {
		e.endProcessing(ctx, g)
	}
	return nil
}

// endProcessing runs the steps of spec.md §4.6. Idempotent: if the game is
// already ENDED it returns immediately. Validity adjudication runs under
// g.mu, including the voters' read-only mod and map lookups; the rating
// queue drain and the remaining collaborator RPCs run without holding g.mu.
func (e *Engine) endProcessing(ctx context.Context, g *Game) {
	g.mu.Lock()
	if g.State == GameEnded || g.State == GameClosed {
		g.mu.Unlock()
		return
	}
	wasPlaying := g.State == GamePlaying
	if wasPlaying {
		now := time.Now()
		g.EndTime = &now
		if !g.transitionTo(GameEnded) {
			g.mu.Unlock()
			return
		}
	}
	g.mu.Unlock()

	if !wasPlaying {
		e.finishClosure(ctx, g)
		return
	}

	e.addMetric("games.state.ENDED", 1)
	lifecycle.GameStateChanged(ctx, e.publisher, e.gameEntity(g), lifecycle.GameStateChangedPayload{From: string(GamePlaying), To: string(GameEnded)}, nil)

	g.mu.Lock()
	validity := e.adjudicateValidity(ctx, g)
	g.Validity = validity
	ratingEnforced := g.RatingEnforced
	mapFile := g.MapFileName
	g.mu.Unlock()

	lifecycle.ValidityDecided(ctx, e.publisher, e.gameEntity(g), lifecycle.ValidityDecidedPayload{Validity: string(validity)}, nil)

	e.rating.enqueue(g)
	lifecycle.RatingEnqueued(ctx, e.publisher, e.gameEntity(g), lifecycle.RatingQueuePayload{QueueLength: e.rating.length()}, nil)
	if validity == ValidityValid || ratingEnforced {
		e.drainRatingQueue(ctx)
	}

	if e.maps != nil && mapFile != "" {
		if err := e.maps.IncrementTimesPlayed(ctx, mapFile); err != nil {
			e.logger.Printf("incrementTimesPlayed failed for game %d: %v", g.ID, err)
		}
	}

	g.mu.Lock()
	mostReported := g.mostReportedArmyResults()
	results := g.playerResults(mostReported)
	draw := anyDraw(results)
	now := time.Now()
	for playerID, result := range results {
		if stats, ok := g.PlayerStats[playerID]; ok {
			score := result.Score
			stats.Score = &score
			stats.ScoreTime = &now
		}
	}
	playerStatsSnapshot := make([]*GamePlayerStats, 0, len(g.PlayerStats))
	for _, s := range g.PlayerStats {
		playerStatsSnapshot = append(playerStatsSnapshot, s)
	}
	record := g.toRecord()
	g.mu.Unlock()

	if e.clients != nil {
		if err := e.clients.BroadcastGameResult(ctx, GameResultMessage{GameID: g.ID, Draw: draw, Results: results}); err != nil {
			e.logger.Printf("broadcastGameResult failed for game %d: %v", g.ID, err)
		}
	}

	if e.divisions != nil && (validity == ValidityValid || ratingEnforced) {
		e.postDivisionResults(ctx, g, playerStatsSnapshot, results)
	}

	if e.repo != nil {
		if err := e.repo.Save(ctx, record); err != nil {
			e.logger.Printf("persist save failed for game %d: %v", g.ID, err)
		}
	}

	if e.stats != nil {
		for _, stats := range playerStatsSnapshot {
			if err := e.stats.Process(ctx, stats, record); err != nil {
				e.logger.Printf("army statistics processing failed for game %d player %d: %v", g.ID, stats.PlayerID, err)
			}
		}
	}

	e.finishClosure(ctx, g)
}

func (e *Engine) postDivisionResults(ctx context.Context, g *Game, stats []*GamePlayerStats, results map[int32]ArmyResult) {
	if len(stats) != 2 {
		return
	}
	a, b := stats[0], stats[1]
	var winner *int32
	ra, okA := results[a.PlayerID]
	rb, okB := results[b.PlayerID]
	if okA && ra.Outcome == OutcomeVictory {
		winner = &a.PlayerID
	} else if okB && rb.Outcome == OutcomeVictory {
		winner = &b.PlayerID
	}
	if err := e.divisions.PostResult(ctx, a.PlayerID, b.PlayerID, winner); err != nil {
		e.logger.Printf("divisionService.postResult failed for game %d: %v", g.ID, err)
	}
}

func (e *Engine) finishClosure(ctx context.Context, g *Game) {
	g.mu.Lock()
	empty := len(g.ConnectedPlayers) == 0
	g.mu.Unlock()
	if empty {
		e.closeGame(ctx, g)
	}
}

func (e *Engine) drainRatingQueue(ctx context.Context) {
	candidates := e.registry.Snapshot()
	e.rating.drain(ctx, candidates, e.applyRating)
}

func (e *Engine) applyRating(ctx context.Context, g *Game) error {
	g.mu.Lock()
	featuredMod := g.FeaturedMod
	valid := g.Validity == ValidityValid || g.RatingEnforced
	stats := make([]*GamePlayerStats, 0, len(g.PlayerStats))
	for _, s := range g.PlayerStats {
		stats = append(stats, s)
	}
	g.mu.Unlock()

	if !valid {
		return nil
	}
	if e.ratingSvc == nil {
		return nil
	}
	ratingType := RatingGlobal
	if e.mods != nil {
		if ladder, err := e.mods.IsLadder1v1(ctx, featuredMod); err == nil && ladder {
			ratingType = RatingLadder1v1
		}
	}
	if err := e.ratingSvc.UpdateRatings(ctx, stats, NoTeamID, ratingType); err != nil {
		return err
	}
	lifecycle.RatingServed(ctx, e.publisher, e.gameEntity(g), lifecycle.RatingQueuePayload{QueueLength: e.rating.length()}, nil)
	return nil
}

// EnforceRating implements enforceRating: forces rating/division updates
// past a non-VALID verdict (spec.md §4.7).
func (e *Engine) EnforceRating(ctx context.Context, player *Player) error {
	gameID := player.CurrentGameID()
	if gameID == 0 {
		return newRequestError(ErrNotInAGame)
	}
	g := e.registry.Find(gameID)
	if g == nil {
		return newRequestError(ErrNotInAGame)
	}
	g.mu.Lock()
	g.RatingEnforced = true
	g.mu.Unlock()
	return nil
}

// ReportArmyScore implements reportArmyScore(reporter, armyId, score)
// (spec.md §4.6).
func (e *Engine) ReportArmyScore(ctx context.Context, reporter *Player, armyID int32, score int) error {
	gameID := reporter.CurrentGameID()
	if gameID == 0 {
		e.logger.Printf("reportArmyScore with no current game for player %d", reporter.ID)
		return nil
	}
	g := e.registry.Find(gameID)
	if g == nil {
		return nil
	}
	g.mu.Lock()
	ok := g.recordArmyScore(reporter.ID, armyID, score)
	g.mu.Unlock()
	if !ok {
		e.logger.Printf("reportArmyScore for unknown army %d in game %d", armyID, gameID)
	}
	return nil
}

// ReportArmyOutcome implements reportArmyOutcome(reporter, armyId, outcome,
// score) (spec.md §4.6).
func (e *Engine) ReportArmyOutcome(ctx context.Context, reporter *Player, armyID int32, outcome Outcome, score int) error {
	gameID := reporter.CurrentGameID()
	if gameID == 0 {
		e.logger.Printf("reportArmyOutcome with no current game for player %d", reporter.ID)
		return nil
	}
	g := e.registry.Find(gameID)
	if g == nil {
		return nil
	}
	g.mu.Lock()
	ok := g.recordArmyOutcome(reporter.ID, armyID, outcome, score)
	g.mu.Unlock()
	if !ok {
		e.logger.Printf("reportArmyOutcome for unknown army %d in game %d", armyID, gameID)
	}
	return nil
}

// ReportArmyStatistics forwards a raw per-army statistics payload to the
// stats collaborator for a still-active game (distinct from the
// post-end-processing Process call the engine itself drives; this is the
// client-submitted feed named in spec.md §6's public operation surface).
func (e *Engine) ReportArmyStatistics(ctx context.Context, reporter *Player, record *GameRecord) error {
	if e.stats == nil {
		return nil
	}
	gameID := reporter.CurrentGameID()
	if gameID == 0 {
		return nil
	}
	g := e.registry.Find(gameID)
	if g == nil {
		return nil
	}
	g.mu.Lock()
	stats, ok := g.PlayerStats[reporter.ID]
	g.mu.Unlock()
	if !ok {
		return nil
	}
	if err := e.stats.Process(ctx, stats, record); err != nil {
		e.logger.Printf("reportArmyStatistics processing failed for game %d player %d: %v", gameID, reporter.ID, err)
	}
	return nil
}

// --- 4.10 Session restoration ---------------------------------------------

// RestoreGameSession implements restoreGameSession(player, gameId)
// (spec.md §4.10).
func (e *Engine) RestoreGameSession(ctx context.Context, player *Player, gameID int32) (*GameFuture, error) {
	if player.CurrentGameID() != 0 {
		return nil, newRequestError(ErrAlreadyInGame)
	}
	g := e.registry.Find(gameID)
	if g == nil {
		return nil, newRequestError(ErrCantRestoreGameDoesntExist, gameID)
	}

	g.mu.Lock()
	state := g.State
	_, hasStats := g.PlayerStats[player.ID]
	g.mu.Unlock()

	if state != GameOpen && state != GamePlaying {
		return nil, newRequestError(ErrCantRestoreGameDoesntExist, gameID)
	}
	if state == GamePlaying && !hasStats {
		return nil, newRequestError(ErrCantRestoreGameNotParticipant, gameID)
	}

	future := player.attachToGame(gameID)
	g.mu.Lock()
	g.addConnectedPlayer(player)
	g.mu.Unlock()

	player.setState(PlayerStateInitializing)
	player.setState(PlayerStateLobby)
	player.completeFuture(g)
	if state == GamePlaying {
		player.setState(PlayerStateLaunching)
	}

	e.markDirtyNow(ctx, g)
	return future, nil
}

// --- 4.11 Mutual draw ------------------------------------------------------

// MutuallyAgreeDraw implements mutuallyAgreeDraw(player) (spec.md §4.11).
func (e *Engine) MutuallyAgreeDraw(ctx context.Context, player *Player) error {
	gameID := player.CurrentGameID()
	if gameID == 0 {
		return newRequestError(ErrNotInAGame)
	}
	g := e.registry.Find(gameID)
	if g == nil {
		return newRequestError(ErrNotInAGame)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.State != GamePlaying {
		return newRequestError(ErrInvalidGameState, g.State)
	}
	stats, ok := g.PlayerStats[player.ID]
	if !ok || stats.Team == ObserversTeam || stats.Team == 0 {
		return newRequestError(ErrInvalidGameState, g.State)
	}
	g.MutualDrawAcceptors[player.ID] = true

	nonObservers := g.nonObserverConnectedPlayers()
	allAccepted := len(nonObservers) > 0
	for _, id := range nonObservers {
		if !g.MutualDrawAcceptors[id] {
			allAccepted = false
			break
		}
	}
	if allAccepted {
		g.MutualDraw = true
	}
	return nil
}

// --- 4.12 Peer disconnect order ---------------------------------------------

// DisconnectPlayerFromGame implements disconnectPlayerFromGame(requester,
// targetId) (spec.md §4.12): a transport-level instruction that does not
// remove the target from the Game.
func (e *Engine) DisconnectPlayerFromGame(ctx context.Context, requester *Player, targetID int32) error {
	gameID := requester.CurrentGameID()
	if gameID == 0 {
		return newRequestError(ErrNotInAGame)
	}
	g := e.registry.Find(gameID)
	if g == nil {
		return newRequestError(ErrNotInAGame)
	}
	if e.clients == nil {
		return nil
	}
	g.mu.Lock()
	var receivers []*Player
	for id, p := range g.ConnectedPlayers {
		if id == requester.ID || id == targetID {
			continue
		}
		receivers = append(receivers, p)
	}
	g.mu.Unlock()
	return e.clients.DisconnectPlayerFromGame(ctx, targetID, receivers)
}

// --- Startup maintenance ----------------------------------------------------

// UpdateUnfinishedGamesValidity implements updateUnfinishedGamesValidity: a
// maintenance operation run once at process start, after the id counter is
// seeded, marking any previously-persisted non-terminal game as unrankable
// due to abrupt restart (spec.md §12 supplement).
func (e *Engine) UpdateUnfinishedGamesValidity(ctx context.Context) error {
	if e.repo == nil {
		return nil
	}
	_, err := e.repo.UpdateUnfinishedGamesValidity(ctx, ValidityUnknownResult)
	return err
}

// GameListFor returns the snapshot list of currently active games visible
// to player, used when a player directory reports a player coming online
// (spec.md §12 supplement, onPlayerOnlineEvent in original_source).
func (e *Engine) GameListFor(player *Player) []*GameSnapshot {
	games := e.registry.Snapshot()
	out := make([]*GameSnapshot, 0, len(games))
	for _, g := range games {
		g.mu.Lock()
		out = append(out, g.snapshotLocked())
		g.mu.Unlock()
	}
	return out
}

