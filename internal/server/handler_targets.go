package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/herald/internal/models"
	"github.com/woozymasta/herald/internal/targets"
)

// errQueueFull is reported when a registration is dropped.
var errQueueFull = errors.New("registration queue full")

// handleRegisterTarget validates a target and queues it for its first query.
// The target joins the poll list once that query succeeds.
func (s *Server) handleRegisterTarget(w http.ResponseWriter, r *http.Request) {
	ip := GetRealIP(r, s.trustProxy)
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	var req models.TargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Debug().Err(err).Str("ip", ip).Msg("Invalid JSON")
		writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}

	t := targets.Target{Name: req.Name, Host: req.Host, Port: req.Port}
	if err := t.Validate(); err != nil {
		log.Debug().Err(err).Str("ip", ip).Msg("Invalid target")
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	select {
	case s.queue <- targetJob{Target: t, IP: ip}:
		log.Trace().Str("ip", ip).Str("target", t.String()).Msg("Target queued")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "key": t.Key()})
	default:
		log.Warn().Err(errQueueFull).Str("ip", ip).Str("target", t.String()).Msg("Target registration dropped")
		writeError(w, http.StatusTooManyRequests, errQueueFull.Error(), "")
	}
}

// worker is a background goroutine that processes jobs from the registration queue.
func (s *Server) worker() {
	defer s.wg.Done()

	for job := range s.queue {
		s.processJob(job)
	}
}

// processJob queries a registered target once and adds it to the poll list when it answers.
// The poller stores the outcome either way.
func (s *Server) processJob(job targetJob) {
	logCtx := log.With().
		Str("ip", job.IP).
		Str("target", job.Target.Name).
		Str("address", job.Target.Address()).
		Logger()

	res := s.poller.PollTarget(s.ctx, job.Target)
	if !res.Online() {
		logCtx.Warn().Err(res.Err).Msg("Target did not answer, not registered")
		return
	}

	if s.poller.AddTarget(job.Target) {
		logCtx.Info().Str("server_name", res.Info.Name).Msg("Target registered")
	} else {
		logCtx.Debug().Msg("Target already registered")
	}
}
