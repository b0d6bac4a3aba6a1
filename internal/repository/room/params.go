package room

type EnsureRoomParams struct {
	RoomId    string
	CreatedAt int64
}

type SetParticipantParams struct {
	ParticipantId string
	UserId        string
	Name          string
	JoinedAt      int64
	LastSeen      int64
	RoomId        string
}

type RemoveParticipantParams struct {
	ParticipantId string
	RoomId        string
}

// RemoveParticipantResult reports the room's state after the removal so the
// caller never has to re-read a room that may already be gone.
type RemoveParticipantResult struct {
	Remaining   int
	RoomDeleted bool
}

type UpdateLastSeenParams struct {
	ParticipantId string
	RoomId        string
	LastSeen      int64
}

// UpdateVideoStateParams carries a video event's effect on the room state.
// IsPlaying is nil for seek events, which leave the play flag untouched.
type UpdateVideoStateParams struct {
	RoomId      string
	IsPlaying   *bool
	CurrentTime float64
	UpdatedAt   int64
}
