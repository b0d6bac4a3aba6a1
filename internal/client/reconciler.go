package client

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

const (
	EventPlay  = "play"
	EventPause = "pause"
	EventSeek  = "seek"
)

// SyncInstruction describes a play/pause/seek action propagated from another
// participant. Timestamp is a logging/ordering hint only.
type SyncInstruction struct {
	Type        string  `json:"type"`
	CurrentTime float64 `json:"currentTime"`
	Timestamp   int64   `json:"timestamp"`
	UserId      string  `json:"userId"`
}

const (
	// defaultDriftThreshold is the drift in seconds beyond which the player's
	// position is forcibly set. Below it the drift is tolerated.
	defaultDriftThreshold = 1.0
	// defaultCooldown keeps the suppression flag raised after an instruction
	// is applied, long enough for the resulting native player events to fire.
	defaultCooldown = 500 * time.Millisecond
)

// Reconciler applies incoming sync instructions to the local player and
// guards against the resulting player events being re-emitted as new
// user-originated instructions.
type Reconciler struct {
	player         Player
	userId         string
	driftThreshold float64
	cooldown       time.Duration
	logger         *slog.Logger

	mu              sync.Mutex
	applying        bool
	suppressedUntil time.Time
	now             func() time.Time
}

func NewReconciler(player Player, userId string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		player:         player,
		userId:         userId,
		driftThreshold: defaultDriftThreshold,
		cooldown:       defaultCooldown,
		logger:         logger,
		now:            time.Now,
	}
}

// Suppressed reports whether player events should currently be treated as
// side effects of reconciliation rather than user actions.
func (r *Reconciler) Suppressed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.applying || r.now().Before(r.suppressedUntil)
}

// Apply reconciles the local player with the instruction. The suppression
// flag is raised for the duration and released after the cooldown on every
// exit path, including player errors. Failed instructions are not retried.
func (r *Reconciler) Apply(ctx context.Context, instruction SyncInstruction) error {
	if instruction.UserId == r.userId {
		// Second-layer self-echo defense behind the server-side exclusion:
		// after a reconnect the server may only know our new connection
		// identity.
		r.logger.DebugContext(ctx, "discarded self-echo instruction", "type", instruction.Type)
		return nil
	}

	r.beginApply()
	defer r.endApply()

	drift := math.Abs(instruction.CurrentTime - r.player.CurrentTime())
	if drift > r.driftThreshold {
		r.logger.DebugContext(ctx, "correcting drift",
			"drift", drift,
			"target", instruction.CurrentTime,
		)
		if err := r.player.SetCurrentTime(instruction.CurrentTime); err != nil {
			r.logger.WarnContext(ctx, "failed to seek player", "error", err)
			return fmt.Errorf("failed to seek player: %w", err)
		}
	}

	switch instruction.Type {
	case EventPlay:
		if r.player.Paused() {
			if err := r.player.Play(ctx); err != nil {
				r.logger.WarnContext(ctx, "failed to resume player", "error", err)
				return fmt.Errorf("failed to resume player: %w", err)
			}
		}
	case EventPause:
		if !r.player.Paused() {
			if err := r.player.Pause(ctx); err != nil {
				r.logger.WarnContext(ctx, "failed to pause player", "error", err)
				return fmt.Errorf("failed to pause player: %w", err)
			}
		}
	case EventSeek:
		// Position already handled by the drift correction above.
	default:
		r.logger.WarnContext(ctx, "unknown sync instruction type", "type", instruction.Type)
	}

	return nil
}

func (r *Reconciler) beginApply() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applying = true
}

func (r *Reconciler) endApply() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applying = false
	r.suppressedUntil = r.now().Add(r.cooldown)
}
