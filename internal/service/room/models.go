package room

type Participant struct {
	Id       string `json:"id"`
	UserId   string `json:"userId"`
	Name     string `json:"name"`
	JoinedAt int64  `json:"joinedAt"`
	LastSeen int64  `json:"lastSeen"`
}

type VideoState struct {
	IsPlaying   bool    `json:"isPlaying"`
	CurrentTime float64 `json:"currentTime"`
	LastUpdate  int64   `json:"lastUpdate"`
}

type RoomSummary struct {
	Id               string     `json:"id"`
	ParticipantCount int        `json:"participantCount"`
	CreatedAt        int64      `json:"createdAt"`
	VideoState       VideoState `json:"videoState"`
}

type Stats struct {
	Rooms      int `json:"rooms"`
	TotalUsers int `json:"totalUsers"`
}
