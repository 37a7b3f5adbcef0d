package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jholhewres/sagebot/pkg/sagebot/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth answers the unauthenticated liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleCounters serves the process counters at the root path.
func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	counters, err := s.counters.All()
	if err != nil {
		s.logger.Error("list counters", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read counters")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"counters": counters,
		"uptime":   time.Since(s.startedAt).Round(time.Second).String(),
	})
}

type teachRequest struct {
	Trigger  string `json:"trigger"`
	Response string `json:"response"`
}

// handleTeach routes /teach/{serverID} and /teach/{serverID}/{id}.
func (s *Server) handleTeach(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/teach/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "server id required")
		return
	}
	serverID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.listPatterns(w, serverID)
	case len(parts) == 1 && r.Method == http.MethodPost:
		s.addPattern(w, r, serverID)
	case len(parts) == 2 && r.Method == http.MethodDelete:
		s.removePattern(w, serverID, parts[1])
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listPatterns(w http.ResponseWriter, serverID string) {
	patterns, err := s.patterns.List(serverID)
	if err != nil {
		s.logger.Error("list patterns", "server_id", serverID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list patterns")
		return
	}
	if patterns == nil {
		patterns = []store.Pattern{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"patterns": patterns})
}

func (s *Server) addPattern(w http.ResponseWriter, r *http.Request, serverID string) {
	var req teachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Trigger == "" || req.Response == "" {
		writeError(w, http.StatusBadRequest, "trigger and response are required")
		return
	}

	id, err := s.patterns.Add(serverID, req.Trigger, req.Response)
	if err != nil {
		if errors.Is(err, store.ErrEmptyTrigger) {
			writeError(w, http.StatusBadRequest, "trigger must not be empty")
			return
		}
		s.logger.Error("add pattern", "server_id", serverID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add pattern")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) removePattern(w http.ResponseWriter, serverID, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pattern id")
		return
	}

	removed, err := s.patterns.Remove(serverID, id)
	if err != nil {
		s.logger.Error("remove pattern", "server_id", serverID, "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove pattern")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "pattern not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}
