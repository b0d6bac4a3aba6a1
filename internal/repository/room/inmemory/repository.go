package inmemory

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/watchsync/server/internal/repository/room"
)

type roomState struct {
	createdAt    int64
	videoState   room.VideoState
	participants map[string]room.Participant
}

// repo is the default room store: a single mutex-guarded table owned by this
// struct. All registry mutations, including delete-on-empty, happen under one
// lock section so concurrent handlers never observe a room without
// participants.
type repo struct {
	mu     sync.RWMutex
	rooms  map[string]*roomState
	logger *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		rooms:  make(map[string]*roomState),
		logger: logger,
	}
}

func (r *repo) EnsureRoom(ctx context.Context, params *room.EnsureRoomParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[params.RoomId]; exists {
		return nil
	}

	r.rooms[params.RoomId] = &roomState{
		createdAt: params.CreatedAt,
		videoState: room.VideoState{
			IsPlaying:   false,
			CurrentTime: 0,
			LastUpdate:  params.CreatedAt,
		},
		participants: make(map[string]room.Participant),
	}
	r.logger.DebugContext(ctx, "room created", "room_id", params.RoomId)

	return nil
}

func (r *repo) GetRoom(ctx context.Context, roomId string) (room.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, exists := r.rooms[roomId]
	if !exists {
		return room.Room{}, room.ErrRoomNotFound
	}

	return room.Room{
		Id:         roomId,
		CreatedAt:  state.createdAt,
		VideoState: state.videoState,
	}, nil
}

func (r *repo) GetRoomIds(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := maps.Keys(r.rooms)
	sort.Strings(ids)

	return ids, nil
}

func (r *repo) SetParticipant(ctx context.Context, params *room.SetParticipantParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exists := r.rooms[params.RoomId]
	if !exists {
		return room.ErrRoomNotFound
	}

	state.participants[params.ParticipantId] = room.Participant{
		Id:       params.ParticipantId,
		UserId:   params.UserId,
		Name:     params.Name,
		JoinedAt: params.JoinedAt,
		LastSeen: params.LastSeen,
	}

	return nil
}

func (r *repo) RemoveParticipant(ctx context.Context, params *room.RemoveParticipantParams) (room.RemoveParticipantResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exists := r.rooms[params.RoomId]
	if !exists {
		return room.RemoveParticipantResult{}, room.ErrRoomNotFound
	}

	if _, exists := state.participants[params.ParticipantId]; !exists {
		return room.RemoveParticipantResult{}, room.ErrParticipantNotFound
	}

	delete(state.participants, params.ParticipantId)

	result := room.RemoveParticipantResult{Remaining: len(state.participants)}
	if result.Remaining == 0 {
		delete(r.rooms, params.RoomId)
		result.RoomDeleted = true
		r.logger.DebugContext(ctx, "empty room deleted", "room_id", params.RoomId)
	}

	return result, nil
}

func (r *repo) GetParticipants(ctx context.Context, roomId string) ([]room.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, exists := r.rooms[roomId]
	if !exists {
		return nil, room.ErrRoomNotFound
	}

	participants := maps.Values(state.participants)
	sort.Slice(participants, func(i, j int) bool {
		if participants[i].JoinedAt != participants[j].JoinedAt {
			return participants[i].JoinedAt < participants[j].JoinedAt
		}
		return participants[i].Id < participants[j].Id
	})

	return participants, nil
}

func (r *repo) GetParticipantIds(ctx context.Context, roomId string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, exists := r.rooms[roomId]
	if !exists {
		return nil, room.ErrRoomNotFound
	}

	return maps.Keys(state.participants), nil
}

func (r *repo) GetParticipantCount(ctx context.Context, roomId string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, exists := r.rooms[roomId]
	if !exists {
		return 0, room.ErrRoomNotFound
	}

	return len(state.participants), nil
}

func (r *repo) UpdateLastSeen(ctx context.Context, params *room.UpdateLastSeenParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exists := r.rooms[params.RoomId]
	if !exists {
		return room.ErrRoomNotFound
	}

	participant, exists := state.participants[params.ParticipantId]
	if !exists {
		return room.ErrParticipantNotFound
	}

	participant.LastSeen = params.LastSeen
	state.participants[params.ParticipantId] = participant

	return nil
}

func (r *repo) GetVideoState(ctx context.Context, roomId string) (room.VideoState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, exists := r.rooms[roomId]
	if !exists {
		return room.VideoState{}, room.ErrRoomNotFound
	}

	return state.videoState, nil
}

func (r *repo) UpdateVideoState(ctx context.Context, params *room.UpdateVideoStateParams) (room.VideoState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exists := r.rooms[params.RoomId]
	if !exists {
		return room.VideoState{}, room.ErrRoomNotFound
	}

	if params.IsPlaying != nil {
		state.videoState.IsPlaying = *params.IsPlaying
	}
	state.videoState.CurrentTime = params.CurrentTime
	// lastUpdate is monotonically non-decreasing: two events applied in either
	// order still leave the later timestamp in place (last-write-wins on the
	// rest of the state).
	if params.UpdatedAt > state.videoState.LastUpdate {
		state.videoState.LastUpdate = params.UpdatedAt
	}

	return state.videoState, nil
}
