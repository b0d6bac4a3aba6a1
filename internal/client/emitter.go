package client

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Sender carries outbound sync instructions to the relay. Implemented by
// Session.
type Sender interface {
	SendVideoEvent(ctx context.Context, eventType string, currentTime float64) error
}

type suppressor interface {
	Suppressed() bool
}

// Emitter turns native player events into outbound video events. While the
// reconciler's suppression flag is raised, player events are side effects of
// synchronization and are swallowed instead of re-broadcast.
type Emitter struct {
	player  Player
	sender  Sender
	guard   suppressor
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewEmitter(player Player, sender Sender, guard suppressor, logger *slog.Logger) *Emitter {
	return &Emitter{
		player: player,
		sender: sender,
		guard:  guard,
		// Position reports are bounded to one per second under continuous
		// playback.
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		logger:  logger,
	}
}

func (e *Emitter) OnPlay(ctx context.Context) {
	e.emit(ctx, EventPlay)
}

func (e *Emitter) OnPause(ctx context.Context) {
	e.emit(ctx, EventPause)
}

func (e *Emitter) OnSeeked(ctx context.Context) {
	e.emit(ctx, EventSeek)
}

// OnTimeUpdate reports the playback position for periodic drift correction,
// throttled by the rate limiter.
func (e *Emitter) OnTimeUpdate(ctx context.Context) {
	if !e.limiter.Allow() {
		return
	}

	e.emit(ctx, EventSeek)
}

func (e *Emitter) emit(ctx context.Context, eventType string) {
	if e.guard.Suppressed() {
		e.logger.DebugContext(ctx, "suppressed player event", "type", eventType)
		return
	}

	if err := e.sender.SendVideoEvent(ctx, eventType, e.player.CurrentTime()); err != nil {
		e.logger.WarnContext(ctx, "failed to send video event", "type", eventType, "error", err)
	}
}
