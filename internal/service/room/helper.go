package room

import (
	roomRepo "github.com/watchsync/server/internal/repository/room"
)

const roomIdLength = 8

func (s service) generateRoomId() string {
	return s.generator.GenerateRandomString(roomIdLength)
}

// defaultDisplayName mirrors the extension's fallback label: a suffix of the
// user id when no name was supplied.
func defaultDisplayName(userId, name string) string {
	if name != "" {
		return name
	}

	suffix := userId
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}

	return "User " + suffix
}

func toParticipant(p roomRepo.Participant) Participant {
	return Participant{
		Id:       p.Id,
		UserId:   p.UserId,
		Name:     p.Name,
		JoinedAt: p.JoinedAt,
		LastSeen: p.LastSeen,
	}
}

func toParticipants(list []roomRepo.Participant) []Participant {
	participants := make([]Participant, 0, len(list))
	for _, p := range list {
		participants = append(participants, toParticipant(p))
	}

	return participants
}

func toVideoState(vs roomRepo.VideoState) VideoState {
	return VideoState{
		IsPlaying:   vs.IsPlaying,
		CurrentTime: vs.CurrentTime,
		LastUpdate:  vs.LastUpdate,
	}
}
