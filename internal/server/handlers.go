package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/herald/internal/a2s"
	"github.com/woozymasta/herald/internal/models"
	"github.com/woozymasta/herald/internal/targets"
	"github.com/woozymasta/herald/internal/vars"
)

// statusView is a stored status with derived fields.
type statusView struct {
	models.ServerStatus
	HumanPlayers int `json:"human_players"`
}

func newStatusView(s models.ServerStatus) statusView {
	return statusView{ServerStatus: s, HumanPlayers: s.HumanPlayers()}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg, kind string) {
	writeJSON(w, code, errorResponse{Error: msg, Kind: kind})
}

// endpoint reads the host and port query parameters.
func endpoint(r *http.Request) (string, int, bool) {
	host := r.URL.Query().Get("host")
	port, err := strconv.Atoi(r.URL.Query().Get("port"))
	if host == "" || err != nil || port < 1 || port > 65535 {
		return "", 0, false
	}

	return host, port, true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, vars.Info())
}

// handleServers returns every cached server status.
func (s *Server) handleServers(w http.ResponseWriter, _ *http.Request) {
	statuses, err := s.storage.GetStatuses()
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch statuses")
		writeError(w, http.StatusInternalServerError, "database error", "")
		return
	}

	views := make([]statusView, len(statuses))
	for i, st := range statuses {
		views[i] = newStatusView(st)
	}

	writeJSON(w, http.StatusOK, views)
}

// handleGetServer returns the cached status of one server.
// Query params: ?host=1.2.3.4&port=27015
func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	host, port, ok := endpoint(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid host or port", "")
		return
	}

	status, err := s.storage.GetStatus(targets.Target{Host: host, Port: port}.Key())
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch status")
		writeError(w, http.StatusInternalServerError, "database error", "")
		return
	}
	if status == nil {
		writeError(w, http.StatusNotFound, "server not found", "")
		return
	}

	writeJSON(w, http.StatusOK, newStatusView(*status))
}

// handleDeleteServer removes a server from the poll list and its cached status.
// Query params: ?host=1.2.3.4&port=27015
func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	host, port, ok := endpoint(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid host or port", "")
		return
	}

	key := targets.Target{Host: host, Port: port}.Key()
	untracked := s.poller.RemoveTarget(key)

	deleted, err := s.storage.DeleteStatus(key)
	if err != nil {
		log.Error().Err(err).Str("host", host).Int("port", port).Msg("Failed to delete status")
		writeError(w, http.StatusInternalServerError, "database error", "")
		return
	}

	if deleted == 0 && !untracked {
		writeError(w, http.StatusNotFound, "server not found", "")
		return
	}

	log.Info().
		Str("host", host).
		Int("port", port).
		Bool("untracked", untracked).
		Msg("Server removed manually")

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "deleted": deleted, "untracked": untracked})
}

// handleServerQuery performs a live A2S query to a specific game server.
// Query params: ?host=1.2.3.4&port=27015
func (s *Server) handleServerQuery(w http.ResponseWriter, r *http.Request) {
	host, port, ok := endpoint(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid host or port", "")
		return
	}

	info, err := s.client.Query(r.Context(), host, port)
	if err != nil {
		kind := a2s.KindName(err)
		code := http.StatusBadGateway
		if a2s.Retryable(err) {
			code = http.StatusGatewayTimeout
		}

		log.Debug().Err(err).Str("kind", kind).Str("host", host).Int("port", port).Msg("Live query failed")
		writeError(w, code, err.Error(), kind)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// handlePoll starts an extra poll cycle.
func (s *Server) handlePoll(w http.ResponseWriter, _ *http.Request) {
	s.poller.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
