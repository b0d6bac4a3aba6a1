package connection

// Binding ties a transport connection's identity to its room membership. It
// lives in a side table instead of on the connection object so identity is
// decoupled from the transport's lifetime.
type Binding struct {
	ConnId string
	RoomId string
	UserId string
}
