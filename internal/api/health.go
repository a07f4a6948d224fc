package api

import (
	"net/http"

	"github.com/concurhq/consent-exchange/internal/domain"
	"github.com/concurhq/consent-exchange/internal/engine"
)

// HealthResponse reports service liveness plus the snapshot of each
// configured ACK peer, when peer tracking is enabled.
type HealthResponse struct {
	Status  string                      `json:"status"`
	Service string                      `json:"service"`
	Peers   map[string]engine.PeerState `json:"peers,omitempty"`
}

// HealthHandler returns the health check handler. peerHealth may be nil
// when Redis is not configured.
func HealthHandler(serviceName string, targets map[domain.AckKind]string, peerHealth *engine.PeerHealth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "healthy",
			Service: serviceName,
		}

		if peerHealth != nil {
			resp.Peers = make(map[string]engine.PeerState, len(targets))
			for kind, url := range targets {
				resp.Peers[string(kind)] = peerHealth.State(r.Context(), url)
			}
		}

		respondJSON(w, http.StatusOK, resp)
	}
}
