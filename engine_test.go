package server

import (
	"context"
	"sync"
	"testing"
)

// fakeClientChannel is a hand-built recording fake, in the teacher's own
// no-mocking-library test style: every call is appended to a slice the test
// can assert against.
type fakeClientChannel struct {
	mu sync.Mutex

	started         []int32
	hosted          []int32
	connectedToHost []int32
	disconnects     []int32
	// disconnectReceivers holds, per DisconnectPlayerFromGame call, the ids
	// of the players the disconnect was sent to.
	disconnectReceivers [][]int32
	results             []GameResultMessage
}

func (f *fakeClientChannel) StartGameProcess(ctx context.Context, g *Game, player *Player) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, g.ID)
	return nil
}
func (f *fakeClientChannel) HostGame(ctx context.Context, g *Game, host *Player) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hosted = append(f.hosted, g.ID)
	return nil
}
func (f *fakeClientChannel) ConnectToHost(ctx context.Context, player *Player, g *Game) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectedToHost = append(f.connectedToHost, player.ID)
	return nil
}
func (f *fakeClientChannel) ConnectToPeer(ctx context.Context, from, to *Player, offerer bool) error {
	return nil
}
func (f *fakeClientChannel) DisconnectPlayerFromGame(ctx context.Context, targetID int32, receivers []*Player) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, targetID)
	ids := make([]int32, 0, len(receivers))
	for _, r := range receivers {
		ids = append(ids, r.ID)
	}
	f.disconnectReceivers = append(f.disconnectReceivers, ids)
	return nil
}
func (f *fakeClientChannel) SendGameList(ctx context.Context, list []*GameSnapshot, recipient *Player) error {
	return nil
}
func (f *fakeClientChannel) BroadcastGameResult(ctx context.Context, msg GameResultMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, msg)
	return nil
}

// fakeRepository is an in-memory GameRepository fake.
type fakeRepository struct {
	mu       sync.Mutex
	inserted []*GameRecord
	saved    []*GameRecord
}

func (f *fakeRepository) Insert(ctx context.Context, g *GameRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, g)
	return nil
}
func (f *fakeRepository) Save(ctx context.Context, g *GameRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, g)
	return nil
}
func (f *fakeRepository) FindMaxID(ctx context.Context) (int32, error) { return 0, nil }
func (f *fakeRepository) UpdateUnfinishedGamesValidity(ctx context.Context, validity Validity) (int, error) {
	return 0, nil
}

// fakeRatingService records every UpdateRatings call without touching the
// stats values, and returns a fixed initial rating.
type fakeRatingService struct {
	mu      sync.Mutex
	updates int
}

func (f *fakeRatingService) UpdateRatings(ctx context.Context, stats []*GamePlayerStats, noTeamID int32, ratingType RatingType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	return nil
}
func (f *fakeRatingService) InitLadder1v1Rating(ctx context.Context, playerID int32) (float64, float64, error) {
	return 1500, 500, nil
}
func (f *fakeRatingService) InitGlobalRating(ctx context.Context, playerID int32) (float64, float64, error) {
	return 1500, 500, nil
}

func newFullyWiredEngine() (*Engine, *fakeClientChannel, *fakeRepository, *fakeRatingService) {
	channel := &fakeClientChannel{}
	repo := &fakeRepository{}
	rating := &fakeRatingService{}
	e := NewEngine(0, EngineConfig{
		Clients:    channel,
		Repository: repo,
		Rating:     rating,
		Mods:       fakeModService{featuredOK: true},
	})
	return e, channel, repo, rating
}

type fakeDivisionService struct {
	mu    sync.Mutex
	posts int
}

func (f *fakeDivisionService) PostResult(ctx context.Context, playerOne, playerTwo int32, winner *int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts++
	return nil
}

// TestApplyRatingAndDivisionsStayGatedAcrossDeferredDrain exercises the gate
// that was missing from applyRating/endProcessing's division-post call: an
// invalid game that could not be drained immediately (no other game to piggy
// back the drain on) still must not have its rating applied or its division
// result posted once a later game's endProcessing triggers a queue-wide
// drain, re-checking Validity/RatingEnforced at apply time rather than only
// once at enqueue (spec.md §4.7).
func TestApplyRatingAndDivisionsStayGatedAcrossDeferredDrain(t *testing.T) {
	channel := &fakeClientChannel{}
	rating := &fakeRatingService{}
	divisions := &fakeDivisionService{}
	e := NewEngine(0, EngineConfig{
		Clients:   channel,
		Rating:    rating,
		Divisions: divisions,
		Mods:      fakeModService{featuredOK: true, ranked: true},
	})
	ctx := context.Background()

	// Game A: single player, adjudicated invalid (ValiditySinglePlayer),
	// enqueued but its own endProcessing call never drains (validity !=
	// VALID, not enforced).
	hostA := NewPlayer(1, "hostA")
	e.CreateGame(ctx, hostA, CreateGameParams{FeaturedMod: "faf"})
	e.UpdatePlayerGameState(ctx, hostA, PlayerStateLobby)
	e.UpdatePlayerGameState(ctx, hostA, PlayerStateLaunching)
	e.UpdatePlayerGameState(ctx, hostA, PlayerStateEnded)

	if rating.updates != 0 {
		t.Fatalf("rating.updates = %d, want 0 right after an invalid game's own endProcessing", rating.updates)
	}
	if e.rating.length() != 1 {
		t.Fatalf("rating queue length = %d, want 1 (invalid game stays queued, undrained)", e.rating.length())
	}

	// Game B: two players, rating-enforced, whose own endProcessing drains the whole
	// queue, including the still-enqueued invalid game A.
	hostB := NewPlayer(2, "hostB")
	joinerB := NewPlayer(3, "joinerB")
	joinLobby(t, e, hostB, joinerB)
	e.UpdatePlayerOption(ctx, hostB, hostB.ID, OptionArmy, "1")
	e.UpdatePlayerOption(ctx, hostB, joinerB.ID, OptionArmy, "2")
	e.UpdatePlayerGameState(ctx, hostB, PlayerStateLaunching)
	e.UpdatePlayerGameState(ctx, joinerB, PlayerStateLaunching)
	// A test game ends within nanoseconds of starting, which voteTooShort
	// would otherwise flag; force game B through as if rating-enforced so
	// the assertions below exercise the gate on game A specifically.
	if err := e.EnforceRating(ctx, hostB); err != nil {
		t.Fatalf("EnforceRating() error = %v", err)
	}
	e.ReportArmyOutcome(ctx, hostB, 1, OutcomeVictory, 10)
	e.ReportArmyOutcome(ctx, hostB, 2, OutcomeDefeat, 0)
	e.UpdatePlayerGameState(ctx, hostB, PlayerStateEnded)
	e.UpdatePlayerGameState(ctx, joinerB, PlayerStateEnded)

	if rating.updates != 1 {
		t.Fatalf("rating.updates = %d, want 1 (only the rating-enforced game B), invalid game A must stay gated at apply time", rating.updates)
	}
	if divisions.posts != 1 {
		t.Fatalf("divisions.posts = %d, want 1 (only the rating-enforced game B)", divisions.posts)
	}
	if e.rating.length() != 0 {
		t.Fatalf("rating queue length = %d, want 0 after game B's drain (A is dropped as inapplicable, not left pending)", e.rating.length())
	}
}

func TestEndProcessingAppliesRatingWhenEnforcedDespiteInvalidGame(t *testing.T) {
	channel := &fakeClientChannel{}
	rating := &fakeRatingService{}
	e := NewEngine(0, EngineConfig{
		Clients: channel,
		Rating:  rating,
		Mods:    fakeModService{featuredOK: true},
	})
	host := NewPlayer(1, "host")
	ctx := context.Background()
	e.CreateGame(ctx, host, CreateGameParams{FeaturedMod: "faf"})
	e.UpdatePlayerGameState(ctx, host, PlayerStateLobby)
	e.UpdatePlayerGameState(ctx, host, PlayerStateLaunching)
	if err := e.EnforceRating(ctx, host); err != nil {
		t.Fatalf("EnforceRating() error = %v", err)
	}
	e.UpdatePlayerGameState(ctx, host, PlayerStateEnded)

	if rating.updates == 0 {
		t.Fatalf("expected rating update to still run when RatingEnforced overrides an invalid verdict")
	}
}

func TestCreateGameAssignsIncrementingIDsAndAttachesHost(t *testing.T) {
	e, channel, _, _ := newFullyWiredEngine()
	host := NewPlayer(1, "host")

	future, err := e.CreateGame(context.Background(), host, CreateGameParams{Title: "t", FeaturedMod: "faf", MapFileName: "scmp_001"})
	if err != nil {
		t.Fatalf("CreateGame() error = %v", err)
	}
	if future == nil {
		t.Fatalf("CreateGame() future = nil")
	}
	if host.CurrentGameID() != 1 {
		t.Fatalf("host.CurrentGameID() = %d, want 1", host.CurrentGameID())
	}
	if len(channel.started) != 1 {
		t.Fatalf("StartGameProcess calls = %d, want 1", len(channel.started))
	}

	second := NewPlayer(2, "host2")
	_, err = e.CreateGame(context.Background(), second, CreateGameParams{Title: "t2", FeaturedMod: "faf", MapFileName: "scmp_002"})
	if err != nil {
		t.Fatalf("second CreateGame() error = %v", err)
	}
	if second.CurrentGameID() != 2 {
		t.Fatalf("second host.CurrentGameID() = %d, want 2", second.CurrentGameID())
	}
}

func TestCreateGameRejectsUnknownFeaturedMod(t *testing.T) {
	e := NewEngine(0, EngineConfig{Mods: fakeModService{featuredOK: false}})
	host := NewPlayer(1, "host")

	_, err := e.CreateGame(context.Background(), host, CreateGameParams{FeaturedMod: "nonexistent"})
	reqErr, ok := err.(*RequestError)
	if !ok || reqErr.Code != ErrInvalidFeaturedMod {
		t.Fatalf("CreateGame() error = %v, want ErrInvalidFeaturedMod", err)
	}
}

func TestJoinGameRejectsAlreadyInGame(t *testing.T) {
	e, _, _, _ := newFullyWiredEngine()
	host := NewPlayer(1, "host")
	e.CreateGame(context.Background(), host, CreateGameParams{FeaturedMod: "faf"})

	_, err := e.JoinGame(context.Background(), 1, "", host)
	reqErr, ok := err.(*RequestError)
	if !ok || reqErr.Code != ErrAlreadyInGame {
		t.Fatalf("JoinGame() error = %v, want ErrAlreadyInGame", err)
	}
}

func TestJoinGameRejectsUnknownGame(t *testing.T) {
	e, _, _, _ := newFullyWiredEngine()
	joiner := NewPlayer(2, "joiner")

	_, err := e.JoinGame(context.Background(), 999, "", joiner)
	reqErr, ok := err.(*RequestError)
	if !ok || reqErr.Code != ErrNoSuchGame {
		t.Fatalf("JoinGame() error = %v, want ErrNoSuchGame", err)
	}
}

func TestJoinGameRejectsWrongPassword(t *testing.T) {
	e, _, _, _ := newFullyWiredEngine()
	host := NewPlayer(1, "host")
	e.CreateGame(context.Background(), host, CreateGameParams{FeaturedMod: "faf", Password: "secret"})
	e.UpdatePlayerGameState(context.Background(), host, PlayerStateLobby)

	joiner := NewPlayer(2, "joiner")
	_, err := e.JoinGame(context.Background(), 1, "wrong", joiner)
	reqErr, ok := err.(*RequestError)
	if !ok || reqErr.Code != ErrInvalidPassword {
		t.Fatalf("JoinGame() error = %v, want ErrInvalidPassword", err)
	}
}

func TestJoinGameRejectsNonOpenGame(t *testing.T) {
	e, _, _, _ := newFullyWiredEngine()
	host := NewPlayer(1, "host")
	e.CreateGame(context.Background(), host, CreateGameParams{FeaturedMod: "faf"})
	// Host has not yet transitioned to LOBBY/OPEN.
	joiner := NewPlayer(2, "joiner")
	_, err := e.JoinGame(context.Background(), 1, "", joiner)
	reqErr, ok := err.(*RequestError)
	if !ok || reqErr.Code != ErrGameNotJoinable {
		t.Fatalf("JoinGame() error = %v, want ErrGameNotJoinable", err)
	}
}

func TestUpdatePlayerGameStateHostToLobbyOpensGame(t *testing.T) {
	e, channel, _, _ := newFullyWiredEngine()
	host := NewPlayer(1, "host")
	e.CreateGame(context.Background(), host, CreateGameParams{FeaturedMod: "faf"})

	if err := e.UpdatePlayerGameState(context.Background(), host, PlayerStateLobby); err != nil {
		t.Fatalf("UpdatePlayerGameState() error = %v", err)
	}

	g := e.registry.Find(1)
	g.mu.Lock()
	state := g.State
	g.mu.Unlock()
	if state != GameOpen {
		t.Fatalf("game state = %v, want %v", state, GameOpen)
	}
	if len(channel.hosted) != 1 {
		t.Fatalf("HostGame calls = %d, want 1", len(channel.hosted))
	}
}

func TestUpdatePlayerGameStateInvalidTransitionRejected(t *testing.T) {
	e, _, _, _ := newFullyWiredEngine()
	host := NewPlayer(1, "host")
	e.CreateGame(context.Background(), host, CreateGameParams{FeaturedMod: "faf"})

	err := e.UpdatePlayerGameState(context.Background(), host, PlayerStateLaunching)
	reqErr, ok := err.(*RequestError)
	if !ok || reqErr.Code != ErrInvalidPlayerGameStateTransition {
		t.Fatalf("UpdatePlayerGameState() error = %v, want ErrInvalidPlayerGameStateTransition", err)
	}
}

func TestUpdatePlayerGameStateIdleIsAlwaysIgnored(t *testing.T) {
	e, _, _, _ := newFullyWiredEngine()
	host := NewPlayer(1, "host")
	e.CreateGame(context.Background(), host, CreateGameParams{FeaturedMod: "faf"})

	if err := e.UpdatePlayerGameState(context.Background(), host, PlayerStateIdle); err != nil {
		t.Fatalf("UpdatePlayerGameState(IDLE) error = %v, want nil", err)
	}
	if host.State() != PlayerStateInitializing {
		t.Fatalf("host.State() = %v, want unchanged INITIALIZING", host.State())
	}
}

// joinLobby drives host and a joiner from CreateGame through LOBBY, mirroring
// the wire sequence a real client pair would issue.
func joinLobby(t *testing.T, e *Engine, host, joiner *Player) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.CreateGame(ctx, host, CreateGameParams{FeaturedMod: "faf", MapFileName: "scmp_001"}); err != nil {
		t.Fatalf("CreateGame() error = %v", err)
	}
	if err := e.UpdatePlayerGameState(ctx, host, PlayerStateLobby); err != nil {
		t.Fatalf("host UpdatePlayerGameState(LOBBY) error = %v", err)
	}
	gameID := host.CurrentGameID()
	if _, err := e.JoinGame(ctx, gameID, "", joiner); err != nil {
		t.Fatalf("JoinGame() error = %v", err)
	}
	if err := e.UpdatePlayerGameState(ctx, joiner, PlayerStateLobby); err != nil {
		t.Fatalf("joiner UpdatePlayerGameState(LOBBY) error = %v", err)
	}
}

func TestFullLifecycleCreateJoinLaunchEndPersists(t *testing.T) {
	e, channel, repo, ratingSvc := newFullyWiredEngine()
	host := NewPlayer(1, "host")
	joiner := NewPlayer(2, "joiner")
	ctx := context.Background()

	joinLobby(t, e, host, joiner)

	e.UpdatePlayerOption(ctx, host, joiner.ID, OptionArmy, "2")
	e.UpdateGameOption(ctx, host, OptionTeam, "2")
	e.UpdatePlayerOption(ctx, host, host.ID, OptionArmy, "1")
	e.UpdatePlayerOption(ctx, host, host.ID, OptionTeam, "2")
	e.UpdatePlayerOption(ctx, host, joiner.ID, OptionTeam, "2")

	if err := e.UpdatePlayerGameState(ctx, host, PlayerStateLaunching); err != nil {
		t.Fatalf("host UpdatePlayerGameState(LAUNCHING) error = %v", err)
	}
	if err := e.UpdatePlayerGameState(ctx, joiner, PlayerStateLaunching); err != nil {
		t.Fatalf("joiner UpdatePlayerGameState(LAUNCHING) error = %v", err)
	}

	if len(repo.inserted) != 1 {
		t.Fatalf("repo.Insert calls = %d, want 1 (only the host transition inserts)", len(repo.inserted))
	}

	// A test game ends within nanoseconds of starting, which voteTooShort
	// would otherwise flag; force the rating/division updates through the
	// same way a real short-but-legitimate game's host would.
	if err := e.EnforceRating(ctx, host); err != nil {
		t.Fatalf("EnforceRating() error = %v", err)
	}

	e.ReportArmyOutcome(ctx, host, 1, OutcomeVictory, 10)
	e.ReportArmyOutcome(ctx, host, 2, OutcomeDefeat, 0)
	e.ReportArmyOutcome(ctx, joiner, 1, OutcomeVictory, 10)
	e.ReportArmyOutcome(ctx, joiner, 2, OutcomeDefeat, 0)

	if err := e.ReportGameEnded(ctx, host); err != nil {
		t.Fatalf("host ReportGameEnded() error = %v", err)
	}
	if err := e.ReportGameEnded(ctx, joiner); err != nil {
		t.Fatalf("joiner ReportGameEnded() error = %v", err)
	}

	if len(channel.results) != 1 {
		t.Fatalf("BroadcastGameResult calls = %d, want 1", len(channel.results))
	}
	if len(repo.saved) != 1 {
		t.Fatalf("repo.Save calls = %d, want 1", len(repo.saved))
	}
	if ratingSvc.updates == 0 {
		t.Fatalf("expected rating update to run for a rating-enforced game")
	}

	g := e.registry.Find(host.CurrentGameID())
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.State != GameEnded {
		t.Fatalf("game state = %v, want %v", g.State, GameEnded)
	}
}

func TestUpdatePlayerGameStateEndedAdvancesPlayerState(t *testing.T) {
	e, _, _, _ := newFullyWiredEngine()
	host := NewPlayer(1, "host")
	joiner := NewPlayer(2, "joiner")
	joinLobby(t, e, host, joiner)
	ctx := context.Background()
	e.UpdatePlayerGameState(ctx, host, PlayerStateLaunching)
	e.UpdatePlayerGameState(ctx, joiner, PlayerStateLaunching)

	if err := e.UpdatePlayerGameState(ctx, host, PlayerStateEnded); err != nil {
		t.Fatalf("UpdatePlayerGameState(ENDED) error = %v", err)
	}
	if host.State() != PlayerStateEnded {
		t.Fatalf("host.State() = %v, want %v", host.State(), PlayerStateEnded)
	}
}

func TestReportGameEndedIsIdempotentPerReporter(t *testing.T) {
	e, channel, _, _ := newFullyWiredEngine()
	host := NewPlayer(1, "host")
	joiner := NewPlayer(2, "joiner")
	joinLobby(t, e, host, joiner)
	e.UpdatePlayerGameState(context.Background(), host, PlayerStateLaunching)
	e.UpdatePlayerGameState(context.Background(), joiner, PlayerStateLaunching)

	ctx := context.Background()
	e.ReportGameEnded(ctx, host)
	e.ReportGameEnded(ctx, host)
	e.ReportGameEnded(ctx, joiner)

	if len(channel.results) != 1 {
		t.Fatalf("BroadcastGameResult calls = %d, want 1 (double-report from host must not double-end)", len(channel.results))
	}
}

func TestRemovePlayerHostAbandonmentCascadesDuringOpen(t *testing.T) {
	e, channel, _, _ := newFullyWiredEngine()
	host := NewPlayer(1, "host")
	joiner := NewPlayer(2, "joiner")
	joinLobby(t, e, host, joiner)

	if err := e.RemovePlayer(context.Background(), host); err != nil {
		t.Fatalf("RemovePlayer(host) error = %v", err)
	}

	if joiner.CurrentGameID() != 0 {
		t.Fatalf("joiner.CurrentGameID() = %d, want 0 after host abandonment cascades", joiner.CurrentGameID())
	}
	if len(channel.disconnects) == 0 {
		t.Fatalf("expected a DisconnectPlayerFromGame call for the abandoning host")
	}
	if e.registry.Find(1) != nil {
		t.Fatalf("empty game should have been closed and removed from the registry")
	}
}

func TestRemovePlayerNonHostDoesNotCascade(t *testing.T) {
	e, _, _, _ := newFullyWiredEngine()
	host := NewPlayer(1, "host")
	joiner := NewPlayer(2, "joiner")
	joinLobby(t, e, host, joiner)

	if err := e.RemovePlayer(context.Background(), joiner); err != nil {
		t.Fatalf("RemovePlayer(joiner) error = %v", err)
	}

	if host.CurrentGameID() != 1 {
		t.Fatalf("host.CurrentGameID() = %d, want unchanged 1", host.CurrentGameID())
	}
	if e.registry.Find(1) == nil {
		t.Fatalf("game should still be active after a non-host leaves")
	}
}

func TestRemovePlayerWithNoCurrentGameIsNoop(t *testing.T) {
	e, _, _, _ := newFullyWiredEngine()
	p := NewPlayer(1, "lonely")
	if err := e.RemovePlayer(context.Background(), p); err != nil {
		t.Fatalf("RemovePlayer() error = %v, want nil", err)
	}
}

func TestMutuallyAgreeDrawRequiresAllNonObserversToAccept(t *testing.T) {
	e, _, _, _ := newFullyWiredEngine()
	host := NewPlayer(1, "host")
	joiner := NewPlayer(2, "joiner")
	joinLobby(t, e, host, joiner)

	ctx := context.Background()
	e.UpdatePlayerOption(ctx, host, host.ID, OptionTeam, "2")
	e.UpdatePlayerOption(ctx, host, joiner.ID, OptionTeam, "3")
	e.UpdatePlayerGameState(ctx, host, PlayerStateLaunching)
	e.UpdatePlayerGameState(ctx, joiner, PlayerStateLaunching)

	if err := e.MutuallyAgreeDraw(ctx, host); err != nil {
		t.Fatalf("MutuallyAgreeDraw(host) error = %v", err)
	}
	g := e.registry.Find(host.CurrentGameID())
	g.mu.Lock()
	draw := g.MutualDraw
	g.mu.Unlock()
	if draw {
		t.Fatalf("MutualDraw = true after only one acceptor, want false")
	}

	if err := e.MutuallyAgreeDraw(ctx, joiner); err != nil {
		t.Fatalf("MutuallyAgreeDraw(joiner) error = %v", err)
	}
	g.mu.Lock()
	draw = g.MutualDraw
	g.mu.Unlock()
	if !draw {
		t.Fatalf("MutualDraw = false after all non-observers accepted, want true")
	}
}

func TestMutuallyAgreeDrawRejectsOutsideOfPlaying(t *testing.T) {
	e, _, _, _ := newFullyWiredEngine()
	host := NewPlayer(1, "host")
	joiner := NewPlayer(2, "joiner")
	joinLobby(t, e, host, joiner)

	err := e.MutuallyAgreeDraw(context.Background(), host)
	reqErr, ok := err.(*RequestError)
	if !ok || reqErr.Code != ErrInvalidGameState {
		t.Fatalf("MutuallyAgreeDraw() error = %v, want ErrInvalidGameState", err)
	}
}

func TestRestoreGameSessionRejectsNonParticipantDuringPlaying(t *testing.T) {
	e, _, _, _ := newFullyWiredEngine()
	host := NewPlayer(1, "host")
	joiner := NewPlayer(2, "joiner")
	joinLobby(t, e, host, joiner)
	ctx := context.Background()
	e.UpdatePlayerGameState(ctx, host, PlayerStateLaunching)
	e.UpdatePlayerGameState(ctx, joiner, PlayerStateLaunching)

	outsider := NewPlayer(3, "outsider")
	_, err := e.RestoreGameSession(ctx, outsider, host.CurrentGameID())
	reqErr, ok := err.(*RequestError)
	if !ok || reqErr.Code != ErrCantRestoreGameNotParticipant {
		t.Fatalf("RestoreGameSession() error = %v, want ErrCantRestoreGameNotParticipant", err)
	}
}

func TestRestoreGameSessionAllowsParticipant(t *testing.T) {
	e, _, _, _ := newFullyWiredEngine()
	host := NewPlayer(1, "host")
	joiner := NewPlayer(2, "joiner")
	joinLobby(t, e, host, joiner)
	ctx := context.Background()
	e.UpdatePlayerGameState(ctx, host, PlayerStateLaunching)
	e.UpdatePlayerGameState(ctx, joiner, PlayerStateLaunching)
	e.RemovePlayer(ctx, joiner)

	future, err := e.RestoreGameSession(ctx, joiner, host.CurrentGameID())
	if err != nil {
		t.Fatalf("RestoreGameSession() error = %v", err)
	}
	if future == nil {
		t.Fatalf("RestoreGameSession() future = nil")
	}
	if joiner.State() != PlayerStateLaunching {
		t.Fatalf("joiner.State() = %v, want %v after restoring into a PLAYING game", joiner.State(), PlayerStateLaunching)
	}
}

func TestDisconnectPlayerFromGameExcludesRequesterAndTarget(t *testing.T) {
	e, channel, _, _ := newFullyWiredEngine()
	host := NewPlayer(1, "host")
	joiner := NewPlayer(2, "joiner")
	joinLobby(t, e, host, joiner)

	third := NewPlayer(3, "third")
	e.JoinGame(context.Background(), host.CurrentGameID(), "", third)
	e.UpdatePlayerGameState(context.Background(), third, PlayerStateLobby)

	if err := e.DisconnectPlayerFromGame(context.Background(), host, joiner.ID); err != nil {
		t.Fatalf("DisconnectPlayerFromGame() error = %v", err)
	}
	if len(channel.disconnects) != 1 || channel.disconnects[0] != joiner.ID {
		t.Fatalf("disconnects = %v, want [%d]", channel.disconnects, joiner.ID)
	}
	if got := channel.disconnectReceivers[0]; len(got) != 1 || got[0] != third.ID {
		t.Fatalf("disconnect receivers = %v, want [%d] (requester and target excluded)", got, third.ID)
	}
}

func TestEnsurePlayerReturnsSamePlayerForRepeatedCalls(t *testing.T) {
	e, _, _, _ := newFullyWiredEngine()
	first := e.EnsurePlayer(1, "login")
	second := e.EnsurePlayer(1, "login")
	if first != second {
		t.Fatalf("EnsurePlayer() returned different players for the same id")
	}
}
