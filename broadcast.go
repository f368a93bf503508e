package server

import (
	"context"
	"sync"
	"time"
)

// Broadcaster coalesces markDirty calls for the same game id arriving
// within [minDelay, maxDelay] into a single snapshot broadcast, taking the
// most recent snapshot as the value (spec.md §4.9). minDelay=maxDelay=0
// forces an immediate flush, used on state-machine transitions.
//
// Grounded on the teacher's broadcastState/dirty-tracking shape in the
// now-deleted hub.go, generalized from "broadcast every tick" to
// "debounce-coalesce per game id", which is what spec.md's dirty-set model
// actually calls for.
type Broadcaster struct {
	mu      sync.Mutex
	pending map[int32]*pendingBroadcast
	publish func(ctx context.Context, snapshot *GameSnapshot)
}

type pendingBroadcast struct {
	snapshot *GameSnapshot
	timer    *time.Timer
	firstAt  time.Time
}

// NewBroadcaster constructs a Broadcaster that invokes publish for each
// coalesced snapshot.
func NewBroadcaster(publish func(ctx context.Context, snapshot *GameSnapshot)) *Broadcaster {
	return &Broadcaster{
		pending: make(map[int32]*pendingBroadcast),
		publish: publish,
	}
}

// MarkDirty schedules snapshot for a coalesced broadcast. A zero
// (minDelay, maxDelay) flushes immediately and cancels any pending timer
// for this game id.
func (b *Broadcaster) MarkDirty(ctx context.Context, snapshot *GameSnapshot, minDelay, maxDelay time.Duration) {
	if minDelay <= 0 && maxDelay <= 0 {
		b.mu.Lock()
		if existing, ok := b.pending[snapshot.ID]; ok {
			existing.timer.Stop()
			delete(b.pending, snapshot.ID)
		}
		b.mu.Unlock()
		b.publish(ctx, snapshot)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.pending[snapshot.ID]
	if !ok {
		entry := &pendingBroadcast{snapshot: snapshot, firstAt: time.Now()}
		delay := minDelay
		entry.timer = time.AfterFunc(delay, func() { b.flush(ctx, snapshot.ID) })
		b.pending[snapshot.ID] = entry
		return
	}

	// Last-write-wins aggregation: keep the newest snapshot value, but
	// respect the original maxDelay ceiling rather than resetting it on
	// every mark (which would starve the flush under sustained mutation).
	existing.snapshot = snapshot
	elapsed := time.Since(existing.firstAt)
	if elapsed >= maxDelay {
		existing.timer.Stop()
		delete(b.pending, snapshot.ID)
		b.mu.Unlock()
		b.publish(ctx, snapshot)
		b.mu.Lock()
		return
	}
}

func (b *Broadcaster) flush(ctx context.Context, gameID int32) {
	b.mu.Lock()
	entry, ok := b.pending[gameID]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.pending, gameID)
	snapshot := entry.snapshot
	b.mu.Unlock()
	b.publish(ctx, snapshot)
}

// Cancel drops any pending broadcast for gameID without publishing it, used
// when a game is removed from the Registry before its debounce window
// elapses.
func (b *Broadcaster) Cancel(gameID int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.pending[gameID]; ok {
		existing.timer.Stop()
		delete(b.pending, gameID)
	}
}
