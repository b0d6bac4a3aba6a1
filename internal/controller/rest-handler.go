package controller

import (
	"net/http"
	"time"

	"github.com/watchsync/server/pkg/rest"
)

func (c *controller) Status(w http.ResponseWriter, r *http.Request) {
	stats, err := c.roomService.GetStats(r.Context())
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to get stats", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "failed to get stats"})
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{
		"status":     "running",
		"rooms":      stats.Rooms,
		"totalUsers": stats.TotalUsers,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (c *controller) Rooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := c.roomService.ListRooms(r.Context())
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to list rooms", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "failed to list rooms"})
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"rooms": rooms})
}
