package wsrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	errors []error
}

func (r *recorder) addEvent(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) addError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *recorder) snapshot() ([]string, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...), append([]error(nil), r.errors...)
}

func TestServeConn(t *testing.T) {
	rec := &recorder{}

	router := New(func(ctx context.Context, conn *websocket.Conn, err error) {
		rec.addError(err)
	})
	router.Handle("ping", func(ctx context.Context, conn *websocket.Conn, data json.RawMessage) error {
		var payload struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return ErrInvalidMessage
		}
		rec.addEvent("ping:" + payload.Value)
		return nil
	})

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		router.ServeConn(r.Context(), conn)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))
	require.NoError(t, conn.WriteJSON(map[string]any{"event": "nope", "data": nil}))
	require.NoError(t, conn.WriteJSON(map[string]any{"event": "ping", "data": map[string]any{"value": "a"}}))

	// The loop must have survived both bad frames to process the good one.
	require.Eventually(t, func() bool {
		events, _ := rec.snapshot()
		return len(events) == 1
	}, 2*time.Second, 10*time.Millisecond)

	events, errs := rec.snapshot()
	assert.Equal(t, []string{"ping:a"}, events)
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], ErrInvalidMessage)
	assert.ErrorIs(t, errs[1], ErrUnknownEvent)
}
