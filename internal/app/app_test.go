package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchsync/server/internal/controller"
	connInmemory "github.com/watchsync/server/internal/repository/connection/inmemory"
	roomInmemory "github.com/watchsync/server/internal/repository/room/inmemory"
	"github.com/watchsync/server/internal/service/room"
)

type wsEnvelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

func newTestServer(t *testing.T) *httptest.Server {
	return newTestServerWithLimit(t, 25)
}

func newTestServerWithLimit(t *testing.T, membersLimit int) *httptest.Server {
	t.Helper()
	logger := slog.Default()

	roomRepo := roomInmemory.NewRepo(logger)
	connRepo := connInmemory.NewRepo(logger)
	roomService := room.NewService(roomRepo, connRepo, membersLimit, logger)
	ctrl := controller.NewController(roomService, logger)

	srv := httptest.NewServer(ctrl.GetMux())
	t.Cleanup(srv.Close)

	return srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

func readEvent(t *testing.T, conn *websocket.Conn) wsEnvelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wsEnvelope
	require.NoError(t, conn.ReadJSON(&msg))
	assert.NotZero(t, msg.Timestamp, "every outbound frame is stamped")

	return msg
}

func TestWatchSessionFlow(t *testing.T) {
	slog.SetLogLoggerLevel(slog.LevelDebug)
	srv := newTestServer(t)

	// Alice opens the room.
	alice := dialWS(t, srv)
	sendEvent(t, alice, "join_room", map[string]any{
		"roomId": "ROOM42",
		"userId": "user-alice",
	})

	joined := readEvent(t, alice)
	require.Equal(t, "room_joined", joined.Event)
	var joinedData struct {
		RoomId       string `json:"roomId"`
		Participants []struct {
			UserId string `json:"userId"`
			Name   string `json:"name"`
		} `json:"participants"`
		VideoState struct {
			IsPlaying   bool    `json:"isPlaying"`
			CurrentTime float64 `json:"currentTime"`
		} `json:"videoState"`
	}
	require.NoError(t, json.Unmarshal(joined.Data, &joinedData))
	assert.Equal(t, "ROOM42", joinedData.RoomId)
	require.Len(t, joinedData.Participants, 1)
	assert.False(t, joinedData.VideoState.IsPlaying)

	// Bob joins the same room.
	bob := dialWS(t, srv)
	sendEvent(t, bob, "join_room", map[string]any{
		"roomId":   "ROOM42",
		"userId":   "user-bob",
		"userName": "Bob",
	})

	bobJoined := readEvent(t, bob)
	require.Equal(t, "room_joined", bobJoined.Event)
	require.NoError(t, json.Unmarshal(bobJoined.Data, &joinedData))
	assert.Len(t, joinedData.Participants, 2)

	aliceSaw := readEvent(t, alice)
	require.Equal(t, "user_joined", aliceSaw.Event)
	var userJoinedData struct {
		Participant struct {
			UserId string `json:"userId"`
			Name   string `json:"name"`
		} `json:"participant"`
		ParticipantCount int `json:"participantCount"`
	}
	require.NoError(t, json.Unmarshal(aliceSaw.Data, &userJoinedData))
	assert.Equal(t, "user-bob", userJoinedData.Participant.UserId)
	assert.Equal(t, "Bob", userJoinedData.Participant.Name)
	assert.Equal(t, 2, userJoinedData.ParticipantCount)

	// Keep-alive produces no reply and no error frame.
	sendEvent(t, alice, "alive", map[string]any{})

	// Alice presses play. Only Bob hears it.
	sendEvent(t, alice, "video_event", map[string]any{
		"type":        "play",
		"currentTime": 42.5,
	})

	sync := readEvent(t, bob)
	require.Equal(t, "sync_video", sync.Event)
	var syncData struct {
		Type        string  `json:"type"`
		CurrentTime float64 `json:"currentTime"`
		Timestamp   int64   `json:"timestamp"`
		UserId      string  `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(sync.Data, &syncData))
	assert.Equal(t, "play", syncData.Type)
	assert.Equal(t, 42.5, syncData.CurrentTime)
	assert.Equal(t, "user-alice", syncData.UserId)
	assert.NotZero(t, syncData.Timestamp)

	// Room info reflects the shared state.
	sendEvent(t, bob, "get_room_info", map[string]any{"roomId": "ROOM42"})
	info := readEvent(t, bob)
	require.Equal(t, "room_info", info.Event)
	var infoData struct {
		RoomId           string `json:"roomId"`
		ParticipantCount int    `json:"participantCount"`
		VideoState       struct {
			IsPlaying   bool    `json:"isPlaying"`
			CurrentTime float64 `json:"currentTime"`
		} `json:"videoState"`
	}
	require.NoError(t, json.Unmarshal(info.Data, &infoData))
	assert.Equal(t, 2, infoData.ParticipantCount)
	assert.True(t, infoData.VideoState.IsPlaying)
	assert.Equal(t, 42.5, infoData.VideoState.CurrentTime)

	// Unknown rooms answer with a null payload, not an error.
	sendEvent(t, bob, "get_room_info", map[string]any{"roomId": "NOSUCH"})
	missing := readEvent(t, bob)
	require.Equal(t, "room_info", missing.Event)
	assert.Equal(t, "null", string(missing.Data))

	// Bob leaves explicitly; Alice is told.
	sendEvent(t, bob, "leave_room", map[string]any{})
	left := readEvent(t, alice)
	require.Equal(t, "user_left", left.Event)
	var leftData struct {
		UserId           string `json:"userId"`
		ParticipantCount int    `json:"participantCount"`
	}
	require.NoError(t, json.Unmarshal(left.Data, &leftData))
	assert.Equal(t, "user-bob", leftData.UserId)
	assert.Equal(t, 1, leftData.ParticipantCount)

	// Alice's disconnect empties and deletes the room.
	alice.Close()
	require.Eventually(t, func() bool {
		stats := getJSON(t, srv, "/status")
		return stats["rooms"].(float64) == 0 && stats["totalUsers"].(float64) == 0
	}, 2*time.Second, 50*time.Millisecond)
}

func TestProtocolErrors(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)

	// Malformed JSON answers with an error but keeps the connection open.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg := readEvent(t, conn)
	require.Equal(t, "error", msg.Event)
	assert.JSONEq(t, `{"message":"Invalid message format"}`, string(msg.Data))

	sendEvent(t, conn, "dance", map[string]any{})
	msg = readEvent(t, conn)
	require.Equal(t, "error", msg.Event)
	assert.JSONEq(t, `{"message":"Unknown event type"}`, string(msg.Data))

	// Video events from outside any room are rejected.
	sendEvent(t, conn, "video_event", map[string]any{"type": "play", "currentTime": 1})
	msg = readEvent(t, conn)
	require.Equal(t, "error", msg.Event)
	assert.JSONEq(t, `{"message":"Not in a room"}`, string(msg.Data))

	sendEvent(t, conn, "join_room", map[string]any{"roomId": "ROOM1"})
	msg = readEvent(t, conn)
	require.Equal(t, "error", msg.Event)
	var errData struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &errData))
	assert.Contains(t, errData.Message, "userId")

	// The connection survived all of it.
	sendEvent(t, conn, "join_room", map[string]any{"roomId": "ROOM1", "userId": "user-1"})
	msg = readEvent(t, conn)
	assert.Equal(t, "room_joined", msg.Event)
}

func TestVideoEventUnknownType(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)

	sendEvent(t, conn, "join_room", map[string]any{"roomId": "ROOM1", "userId": "user-1"})
	msg := readEvent(t, conn)
	require.Equal(t, "room_joined", msg.Event)

	sendEvent(t, conn, "video_event", map[string]any{"type": "rewind", "currentTime": 1})
	msg = readEvent(t, conn)
	require.Equal(t, "error", msg.Event)
	assert.JSONEq(t, `{"message":"Unknown video event type"}`, string(msg.Data))
}

func TestSwitchToFullRoomOverWS(t *testing.T) {
	srv := newTestServerWithLimit(t, 1)

	alice := dialWS(t, srv)
	sendEvent(t, alice, "join_room", map[string]any{"roomId": "OLD1", "userId": "user-alice"})
	msg := readEvent(t, alice)
	require.Equal(t, "room_joined", msg.Event)

	carol := dialWS(t, srv)
	sendEvent(t, carol, "join_room", map[string]any{"roomId": "OLD1", "userId": "user-carol"})
	msg = readEvent(t, carol)
	require.Equal(t, "error", msg.Event)
	assert.JSONEq(t, `{"message":"Room is full"}`, string(msg.Data))

	bob := dialWS(t, srv)
	sendEvent(t, bob, "join_room", map[string]any{"roomId": "FULL1", "userId": "user-bob"})
	msg = readEvent(t, bob)
	require.Equal(t, "room_joined", msg.Event)

	// Alice's switch into the full room is rejected without evicting her.
	sendEvent(t, alice, "join_room", map[string]any{"roomId": "FULL1", "userId": "user-alice"})
	msg = readEvent(t, alice)
	require.Equal(t, "error", msg.Event)
	assert.JSONEq(t, `{"message":"Room is full"}`, string(msg.Data))

	sendEvent(t, alice, "get_room_info", map[string]any{"roomId": "OLD1"})
	msg = readEvent(t, alice)
	require.Equal(t, "room_info", msg.Event)
	var infoData struct {
		RoomId           string `json:"roomId"`
		ParticipantCount int    `json:"participantCount"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &infoData))
	assert.Equal(t, "OLD1", infoData.RoomId)
	assert.Equal(t, 1, infoData.ParticipantCount)

	// She can still act in her room.
	sendEvent(t, alice, "video_event", map[string]any{"type": "pause", "currentTime": 3})
	sendEvent(t, alice, "get_room_info", map[string]any{"roomId": "OLD1"})
	msg = readEvent(t, alice)
	require.Equal(t, "room_info", msg.Event)
}

func TestRESTEndpoints(t *testing.T) {
	srv := newTestServer(t)

	conn := dialWS(t, srv)
	sendEvent(t, conn, "join_room", map[string]any{"roomId": "ROOM7", "userId": "user-1"})
	msg := readEvent(t, conn)
	require.Equal(t, "room_joined", msg.Event)

	stats := getJSON(t, srv, "/status")
	assert.Equal(t, "running", stats["status"])
	assert.Equal(t, float64(1), stats["rooms"])
	assert.Equal(t, float64(1), stats["totalUsers"])
	assert.NotEmpty(t, stats["timestamp"])

	roomsResp := getJSON(t, srv, "/rooms")
	rooms, ok := roomsResp["rooms"].([]any)
	require.True(t, ok)
	require.Len(t, rooms, 1)
	entry := rooms[0].(map[string]any)
	assert.Equal(t, "ROOM7", entry["id"])
	assert.Equal(t, float64(1), entry["participantCount"])
}

func getJSON(t *testing.T, srv *httptest.Server, path string) map[string]any {
	t.Helper()

	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return body
}
