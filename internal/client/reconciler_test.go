package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlayer struct {
	mu          sync.Mutex
	currentTime float64
	duration    float64
	paused      bool

	playErr  error
	pauseErr error
	seekErr  error

	playCalls  int
	pauseCalls int
	seekCalls  int
}

func (p *fakePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentTime
}

func (p *fakePlayer) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

func (p *fakePlayer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *fakePlayer) SetCurrentTime(t float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seekCalls++
	if p.seekErr != nil {
		return p.seekErr
	}
	p.currentTime = t
	return nil
}

func (p *fakePlayer) Play(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playCalls++
	if p.playErr != nil {
		return p.playErr
	}
	p.paused = false
	return nil
}

func (p *fakePlayer) Pause(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauseCalls++
	if p.pauseErr != nil {
		return p.pauseErr
	}
	p.paused = true
	return nil
}

// newTestReconciler pins the clock so suppression windows are deterministic.
func newTestReconciler(player *fakePlayer, clock *time.Time) *Reconciler {
	r := NewReconciler(player, "self", slog.Default())
	r.now = func() time.Time { return *clock }
	return r
}

func TestApplyDiscardsSelfEcho(t *testing.T) {
	ctx := context.Background()
	player := &fakePlayer{currentTime: 10, paused: true}
	clock := time.Unix(0, 0)
	r := newTestReconciler(player, &clock)

	err := r.Apply(ctx, SyncInstruction{Type: EventPlay, CurrentTime: 100, UserId: "self"})
	require.NoError(t, err)
	assert.Zero(t, player.playCalls)
	assert.Zero(t, player.seekCalls)
	assert.False(t, r.Suppressed(), "a discarded echo must not raise suppression")
}

func TestApplyDriftCorrection(t *testing.T) {
	ctx := context.Background()
	clock := time.Unix(0, 0)

	// Drift under the threshold is tolerated.
	player := &fakePlayer{currentTime: 10.0, paused: false}
	r := newTestReconciler(player, &clock)
	err := r.Apply(ctx, SyncInstruction{Type: EventSeek, CurrentTime: 10.9, UserId: "other"})
	require.NoError(t, err)
	assert.Zero(t, player.seekCalls)
	assert.Equal(t, 10.0, player.CurrentTime())

	// Drift over the threshold forces the position.
	err = r.Apply(ctx, SyncInstruction{Type: EventSeek, CurrentTime: 12.0, UserId: "other"})
	require.NoError(t, err)
	assert.Equal(t, 1, player.seekCalls)
	assert.Equal(t, 12.0, player.CurrentTime())

	// Drift of exactly the threshold is still tolerated; only strictly greater
	// drift seeks.
	err = r.Apply(ctx, SyncInstruction{Type: EventSeek, CurrentTime: 13.0, UserId: "other"})
	require.NoError(t, err)
	assert.Equal(t, 1, player.seekCalls)
	assert.Equal(t, 12.0, player.CurrentTime())
}

func TestApplyPlayPauseConditioned(t *testing.T) {
	ctx := context.Background()
	clock := time.Unix(0, 0)
	player := &fakePlayer{currentTime: 10, paused: false}
	r := newTestReconciler(player, &clock)

	// Play against an already-playing player is a no-op.
	err := r.Apply(ctx, SyncInstruction{Type: EventPlay, CurrentTime: 10, UserId: "other"})
	require.NoError(t, err)
	assert.Zero(t, player.playCalls)

	err = r.Apply(ctx, SyncInstruction{Type: EventPause, CurrentTime: 10, UserId: "other"})
	require.NoError(t, err)
	assert.Equal(t, 1, player.pauseCalls)
	assert.True(t, player.Paused())

	// Pause against an already-paused player is a no-op.
	err = r.Apply(ctx, SyncInstruction{Type: EventPause, CurrentTime: 10, UserId: "other"})
	require.NoError(t, err)
	assert.Equal(t, 1, player.pauseCalls)

	err = r.Apply(ctx, SyncInstruction{Type: EventPlay, CurrentTime: 10, UserId: "other"})
	require.NoError(t, err)
	assert.Equal(t, 1, player.playCalls)
	assert.False(t, player.Paused())
}

func TestSuppressionCooldown(t *testing.T) {
	ctx := context.Background()
	clock := time.Unix(0, 0)
	player := &fakePlayer{currentTime: 10, paused: true}
	r := newTestReconciler(player, &clock)

	err := r.Apply(ctx, SyncInstruction{Type: EventPlay, CurrentTime: 10, UserId: "other"})
	require.NoError(t, err)
	assert.True(t, r.Suppressed(), "suppression holds during the cooldown")

	clock = clock.Add(400 * time.Millisecond)
	assert.True(t, r.Suppressed())

	clock = clock.Add(200 * time.Millisecond)
	assert.False(t, r.Suppressed(), "suppression releases after the cooldown")
}

func TestSuppressionReleasedOnError(t *testing.T) {
	ctx := context.Background()
	clock := time.Unix(0, 0)
	player := &fakePlayer{currentTime: 10, paused: true, playErr: errors.New("autoplay blocked")}
	r := newTestReconciler(player, &clock)

	err := r.Apply(ctx, SyncInstruction{Type: EventPlay, CurrentTime: 10, UserId: "other"})
	require.Error(t, err)
	assert.Equal(t, 1, player.playCalls, "failed instructions are not retried")

	clock = clock.Add(defaultCooldown + time.Millisecond)
	assert.False(t, r.Suppressed(), "an error path must still release suppression")
}

func TestApplyUnknownTypeIgnored(t *testing.T) {
	ctx := context.Background()
	clock := time.Unix(0, 0)
	player := &fakePlayer{currentTime: 10, paused: true}
	r := newTestReconciler(player, &clock)

	err := r.Apply(ctx, SyncInstruction{Type: "rewind", CurrentTime: 10, UserId: "other"})
	require.NoError(t, err)
	assert.Zero(t, player.playCalls)
	assert.Zero(t, player.pauseCalls)
}
