package room

type VideoState struct {
	IsPlaying   bool    `json:"isPlaying" redis:"is_playing"`
	CurrentTime float64 `json:"currentTime" redis:"current_time"`
	LastUpdate  int64   `json:"lastUpdate" redis:"last_update"`
}

// Participant is one connection's membership record. Id is the transport
// connection id, UserId the stable client-chosen identity that may repeat
// across reconnects.
type Participant struct {
	Id       string `json:"id" redis:"id"`
	UserId   string `json:"userId" redis:"user_id"`
	Name     string `json:"name" redis:"name"`
	JoinedAt int64  `json:"joinedAt" redis:"joined_at"`
	LastSeen int64  `json:"lastSeen" redis:"last_seen"`
}

type Room struct {
	Id         string     `json:"id"`
	CreatedAt  int64      `json:"createdAt"`
	VideoState VideoState `json:"videoState"`
}
