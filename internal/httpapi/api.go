package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const healthTimeout = 2 * time.Second

type healthResponse struct {
	Status      string `json:"status"`
	Subscribers int    `json:"subscribers"`
}

func (s *server) apiHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.Hub != nil {
		resp.Subscribers = s.Hub.Subscribers()
	}
	if s.HealthCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.HealthCheck(ctx); err != nil {
			log.Error().Err(err).Msg("health check failed")
			resp.Status = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
