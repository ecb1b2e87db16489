package archiveserver

import (
	"net/http"

	"himawari-desktop/internal/common"
	"himawari-desktop/internal/ratelimit"
)

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	Provider  string                    `json:"provider"`
	Latest    string                    `json:"latest,omitempty"`
	Days      int                       `json:"days"`
	Snapshots int                       `json:"snapshots"`
	SizeBytes int64                     `json:"size_bytes"`
	RateLimit *ratelimit.RateLimitEvent `json:"rate_limit,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Provider: common.DisplayNameHimawari}

	if latest, err := s.lookupLatest(); err == nil {
		resp.Latest = latest.RelativeURL()
	}
	if s.opts.Stats != nil {
		resp.Days, resp.Snapshots, resp.SizeBytes = s.opts.Stats.Stats()
	}
	if s.opts.RateLimits != nil {
		resp.RateLimit = s.opts.RateLimits.GetCurrentState(common.ProviderHimawari)
	}

	writeJSON(w, http.StatusOK, resp)
}
