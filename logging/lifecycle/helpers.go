// Package lifecycle publishes structured events for game and player-game
// state transitions, validity verdicts, and rating-serialization decisions.
package lifecycle

import (
	"context"

	"gamesession/server/logging"
)

const (
	// EventGameStateChanged is emitted whenever a Game's state machine transitions.
	EventGameStateChanged logging.EventType = "lifecycle.game_state_changed"
	// EventPlayerStateChanged is emitted whenever a Player's game-state transitions.
	EventPlayerStateChanged logging.EventType = "lifecycle.player_state_changed"
	// EventValidityDecided is emitted once the validity adjudicator reaches a verdict.
	EventValidityDecided logging.EventType = "lifecycle.validity_decided"
	// EventRatingEnqueued is emitted when a game is queued for rating serialization.
	EventRatingEnqueued logging.EventType = "lifecycle.rating_enqueued"
	// EventRatingServed is emitted when a queued game is drained and sent to the rating collaborator.
	EventRatingServed logging.EventType = "lifecycle.rating_served"
)

// GameStateChangedPayload captures a Game state machine transition.
type GameStateChangedPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// PlayerStateChangedPayload captures a Player game-state transition.
type PlayerStateChangedPayload struct {
	GameID string `json:"gameId"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// ValidityDecidedPayload captures the validity adjudicator's verdict for a game.
type ValidityDecidedPayload struct {
	Validity string `json:"validity"`
	Voter    string `json:"voter"`
}

// RatingQueuePayload captures a rating-queue enqueue or drain decision.
type RatingQueuePayload struct {
	QueueLength int `json:"queueLength"`
}

// GameStateChanged publishes a game state transition event.
func GameStateChanged(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload GameStateChangedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventGameStateChanged,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}

// PlayerStateChanged publishes a player game-state transition event.
func PlayerStateChanged(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload PlayerStateChangedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlayerStateChanged,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}

// ValidityDecided publishes the validity adjudicator's verdict for a game.
func ValidityDecided(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload ValidityDecidedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventValidityDecided,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryValidity,
		Payload:  payload,
		Extra:    extra,
	})
}

// RatingEnqueued publishes an event when a game joins the rating-pending queue.
func RatingEnqueued(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload RatingQueuePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRatingEnqueued,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryRating,
		Payload:  payload,
		Extra:    extra,
	})
}

// RatingServed publishes an event when a game is drained from the rating-pending queue.
func RatingServed(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload RatingQueuePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRatingServed,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryRating,
		Payload:  payload,
		Extra:    extra,
	})
}
