package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrNotConnected = errors.New("not connected to server")

const (
	defaultReconnectBase = 3 * time.Second
	defaultReconnectMax  = 30 * time.Second
)

type Config struct {
	// ServerURL is the relay's websocket endpoint, e.g. ws://host:3001/ws.
	ServerURL string
	UserId    string
	UserName  string
	// ReconnectBase and ReconnectMax bound the jittered exponential backoff
	// between connection attempts.
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	// OnPlayerAttached is called when a player handle is attached, so the
	// host environment can wire the emitter to the player's native events.
	OnPlayerAttached func(*Emitter)
	// OnRoomInfo receives answers to RequestRoomInfo. A nil pointer means
	// the room does not exist.
	OnRoomInfo func(*RoomInfo)
	Logger     *slog.Logger
}

type RoomInfo struct {
	RoomId           string            `json:"roomId"`
	ParticipantCount int               `json:"participantCount"`
	Participants     []ParticipantInfo `json:"participants"`
	VideoState       VideoStateInfo    `json:"videoState"`
}

type ParticipantInfo struct {
	Id       string `json:"id"`
	UserId   string `json:"userId"`
	Name     string `json:"name"`
	JoinedAt int64  `json:"joinedAt"`
	LastSeen int64  `json:"lastSeen"`
}

type VideoStateInfo struct {
	IsPlaying   bool    `json:"isPlaying"`
	CurrentTime float64 `json:"currentTime"`
	LastUpdate  int64   `json:"lastUpdate"`
}

// Session owns the client's connection to the relay: it serializes inbound
// sync instructions into the reconciler, re-joins the current room after every
// reconnect, and drops (never buffers) outbound instructions while
// disconnected.
type Session struct {
	cfg      Config
	store    StateStore
	detector VideoDetector
	dialer   *websocket.Dialer
	logger   *slog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	player     Player
	reconciler *Reconciler
}

func NewSession(cfg Config, store StateStore, detector VideoDetector) (*Session, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server url is required")
	}
	if cfg.UserId == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = defaultReconnectBase
	}
	if cfg.ReconnectMax < cfg.ReconnectBase {
		cfg.ReconnectMax = defaultReconnectMax
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if store == nil {
		store = NewMemoryStateStore()
	}

	s := &Session{
		cfg:      cfg,
		store:    store,
		detector: detector,
		dialer:   websocket.DefaultDialer,
		logger:   cfg.Logger,
	}

	s.updateState(context.Background(), func(state *State) {
		state.UserId = cfg.UserId
		state.UserName = cfg.UserName
	})

	return s, nil
}

// Run connects to the relay and keeps the connection alive until ctx is
// cancelled. Connection loss triggers a jittered exponential backoff and an
// automatic re-join of the current room, since the server runs the implicit
// leave path the moment the old connection drops.
func (s *Session) Run(ctx context.Context) error {
	backoff := s.cfg.ReconnectBase
	for {
		conn, _, err := s.dialer.DialContext(ctx, s.cfg.ServerURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.InfoContext(ctx, "failed to connect to server", "error", err, "retry_in", backoff)
			if !sleepCtx(ctx, withJitter(backoff)) {
				return ctx.Err()
			}
			backoff = s.nextBackoff(backoff)
			continue
		}

		s.logger.InfoContext(ctx, "connected to server", "url", s.cfg.ServerURL)
		backoff = s.cfg.ReconnectBase
		s.setConn(conn)
		s.updateState(ctx, func(state *State) {
			state.ConnectionStatus.Connected = true
		})

		if roomId := s.currentRoomId(ctx); roomId != "" {
			if err := s.sendJoin(ctx, roomId); err != nil {
				s.logger.WarnContext(ctx, "failed to re-join room", "room_id", roomId, "error", err)
			}
		}

		err = s.readLoop(ctx, conn)
		s.setConn(nil)
		s.updateState(ctx, func(state *State) {
			state.ConnectionStatus.Connected = false
		})

		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.InfoContext(ctx, "disconnected from server", "error", err, "retry_in", backoff)
		if !sleepCtx(ctx, withJitter(backoff)) {
			return ctx.Err()
		}
		backoff = s.nextBackoff(backoff)
	}
}

// AttachPlayer binds a player handle, building the reconciler and an emitter
// for it. The emitter is handed to OnPlayerAttached as well, for wiring up
// native event callbacks.
func (s *Session) AttachPlayer(player Player) *Emitter {
	reconciler := NewReconciler(player, s.cfg.UserId, s.logger)
	emitter := NewEmitter(player, s, reconciler, s.logger)

	s.mu.Lock()
	s.player = player
	s.reconciler = reconciler
	s.mu.Unlock()

	if s.cfg.OnPlayerAttached != nil {
		s.cfg.OnPlayerAttached(emitter)
	}

	return emitter
}

// JoinRoom asks the relay to join roomId. An empty roomId lets the server
// generate one; the authoritative id arrives with room_joined.
func (s *Session) JoinRoom(ctx context.Context, roomId string) error {
	if err := s.sendJoin(ctx, roomId); err != nil {
		return err
	}

	s.updateState(ctx, func(state *State) {
		state.CurrentRoomId = roomId
	})

	return nil
}

func (s *Session) LeaveRoom(ctx context.Context) error {
	if err := s.send(ctx, "leave_room", struct{}{}); err != nil {
		return err
	}

	s.updateState(ctx, func(state *State) {
		state.CurrentRoomId = ""
		state.ConnectionStatus.ParticipantCount = 0
	})

	return nil
}

func (s *Session) SendVideoEvent(ctx context.Context, eventType string, currentTime float64) error {
	return s.send(ctx, "video_event", map[string]any{
		"type":        eventType,
		"currentTime": currentTime,
	})
}

func (s *Session) RequestRoomInfo(ctx context.Context, roomId string) error {
	return s.send(ctx, "get_room_info", map[string]any{"roomId": roomId})
}

func (s *Session) sendJoin(ctx context.Context, roomId string) error {
	return s.send(ctx, "join_room", map[string]any{
		"roomId":   roomId,
		"userId":   s.cfg.UserId,
		"userName": s.cfg.UserName,
	})
}

// send writes one outbound envelope. Instructions generated while
// disconnected are dropped, not buffered.
func (s *Session) send(ctx context.Context, event string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		s.logger.DebugContext(ctx, "dropped outbound event while disconnected", "event", event)
		return ErrNotConnected
	}

	return s.conn.WriteJSON(map[string]any{
		"event":     event,
		"data":      data,
		"timestamp": time.Now().UnixMilli(),
	})
}

type inboundEnvelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// readLoop dispatches inbound events serially; no two reconciliation
// applications overlap.
func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg inboundEnvelope
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.WarnContext(ctx, "failed to parse server message", "error", err)
			continue
		}

		s.handleServerEvent(ctx, msg)
	}
}

func (s *Session) handleServerEvent(ctx context.Context, msg inboundEnvelope) {
	switch msg.Event {
	case "room_joined":
		var payload struct {
			RoomId       string            `json:"roomId"`
			Participants []ParticipantInfo `json:"participants"`
			VideoState   VideoStateInfo    `json:"videoState"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			s.logger.WarnContext(ctx, "malformed room_joined payload", "error", err)
			return
		}
		s.logger.InfoContext(ctx, "joined room", "room_id", payload.RoomId, "participants", len(payload.Participants))
		s.updateState(ctx, func(state *State) {
			state.CurrentRoomId = payload.RoomId
			state.ConnectionStatus.ParticipantCount = len(payload.Participants)
		})
		s.ensurePlayer(ctx)

	case "user_joined", "user_left":
		var payload struct {
			ParticipantCount int `json:"participantCount"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			s.logger.WarnContext(ctx, "malformed presence payload", "error", err)
			return
		}
		s.updateState(ctx, func(state *State) {
			state.ConnectionStatus.ParticipantCount = payload.ParticipantCount
		})

	case "sync_video":
		var instruction SyncInstruction
		if err := json.Unmarshal(msg.Data, &instruction); err != nil {
			s.logger.WarnContext(ctx, "malformed sync_video payload", "error", err)
			return
		}
		s.applySync(ctx, instruction)

	case "room_info":
		if s.cfg.OnRoomInfo == nil {
			return
		}
		if string(msg.Data) == "null" || len(msg.Data) == 0 {
			s.cfg.OnRoomInfo(nil)
			return
		}
		var info RoomInfo
		if err := json.Unmarshal(msg.Data, &info); err != nil {
			s.logger.WarnContext(ctx, "malformed room_info payload", "error", err)
			return
		}
		s.cfg.OnRoomInfo(&info)

	case "error":
		var payload struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(msg.Data, &payload)
		s.logger.WarnContext(ctx, "server error", "message", payload.Message)

	default:
		s.logger.DebugContext(ctx, "unknown server event", "event", msg.Event)
	}
}

func (s *Session) applySync(ctx context.Context, instruction SyncInstruction) {
	s.mu.Lock()
	reconciler := s.reconciler
	s.mu.Unlock()

	if reconciler == nil {
		s.logger.DebugContext(ctx, "no player attached, sync instruction ignored", "type", instruction.Type)
		return
	}

	if err := reconciler.Apply(ctx, instruction); err != nil {
		s.logger.WarnContext(ctx, "failed to apply sync instruction", "error", err)
	}
}

func (s *Session) ensurePlayer(ctx context.Context) {
	s.mu.Lock()
	attached := s.player != nil
	s.mu.Unlock()

	if attached || s.detector == nil {
		return
	}

	info, player, err := s.detector.Detect(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "video detection failed", "error", err)
		return
	}
	if !info.HasVideo || player == nil {
		s.logger.InfoContext(ctx, "no video on page", "platform", info.Platform)
		return
	}

	s.logger.InfoContext(ctx, "video detected", "platform", info.Platform, "video_count", info.VideoCount)
	s.AttachPlayer(player)
}

func (s *Session) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

func (s *Session) currentRoomId(ctx context.Context) string {
	state, err := s.store.Load(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load state", "error", err)
		return ""
	}

	return state.CurrentRoomId
}

func (s *Session) updateState(ctx context.Context, apply func(*State)) {
	state, err := s.store.Load(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load state", "error", err)
		return
	}

	apply(&state)

	if err := s.store.Save(ctx, state); err != nil {
		s.logger.WarnContext(ctx, "failed to save state", "error", err)
	}
}

func (s *Session) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > s.cfg.ReconnectMax {
		next = s.cfg.ReconnectMax
	}

	return next
}

// withJitter spreads retries over [d/2, d] so a fleet of clients does not
// reconnect in lockstep.
func withJitter(d time.Duration) time.Duration {
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
