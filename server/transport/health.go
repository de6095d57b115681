package transport

import (
	"net/http"
	"time"
)

type healthStatus struct {
	Status    string `json:"status"`
	Sessions  int    `json:"sessions"`
	UptimeSec int64  `json:"uptimeSec"`
}

// HandleHealth serves the liveness probe.
func (t *Transport) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", statusMethodNotAllowed)
			return
		}
		sendJSONResponse(w, http.StatusOK, healthStatus{
			Status:    "ok",
			Sessions:  t.sessionManager.SessionCount(),
			UptimeSec: int64(time.Since(t.startedAt).Seconds()),
		}, t.logger)
	}
}
