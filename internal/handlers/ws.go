package handlers

import (
	"net/http"

	"github.com/eldtechnologies/chatline/internal/api/middleware"
	"github.com/eldtechnologies/chatline/internal/metrics"
)

// ServeWS upgrades an authenticated request to a websocket and attaches
// it to the hub. The token arrives as the token query parameter.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if h.hub.Count(claims.Subject) >= maxSocketsPerIdentity {
		metrics.RateLimitHits.WithLabelValues("/ws").Inc()
		h.Error(w, http.StatusTooManyRequests, "too many open connections")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade")
		return
	}
	h.hub.Serve(conn, claims.Subject)
}
