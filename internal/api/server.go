// Package api implements the daemon's localhost HTTP surface: a thin
// net/http mux translating JSON requests into calls on one
// internal/engine.Engine. The handlers hold no state beyond the Engine
// reference.
package api

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/curioushi/ftm/internal/engine"
	"github.com/curioushi/ftm/internal/ftmerr"
	"github.com/curioushi/ftm/internal/tracelog"
)

// Server routes API requests to one Engine. /api/shutdown calls
// Engine.RequestShutdown, the notification cmd/ftmd waits on alongside OS
// signals.
type Server struct {
	eng *engine.Engine
	mux *http.ServeMux
}

// New builds a Server bound to eng and registers every API route.
func New(eng *engine.Engine) *Server {
	s := &Server{eng: eng, mux: http.NewServeMux()}
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/checkout", s.handleCheckout)
	s.mux.HandleFunc("/api/files", s.handleFiles)
	s.mux.HandleFunc("/api/history", s.handleHistory)
	s.mux.HandleFunc("/api/activity", s.handleActivity)
	s.mux.HandleFunc("/api/scan", s.handleScan)
	s.mux.HandleFunc("/api/clean", s.handleClean)
	s.mux.HandleFunc("/api/restore", s.handleRestore)
	s.mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("/api/diff", s.handleDiff)
	s.mux.HandleFunc("/api/config", s.handleConfig)
	s.mux.HandleFunc("/api/shutdown", s.handleShutdown)
	return s
}

// ServeHTTP implements http.Handler, logging every request at the HTTP
// trace target before dispatching to the mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tracelog.HTTP.Printf("%s %s", r.Method, r.URL.Path)
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders the {"message": "..."} error envelope, mapping err
// to a status code via ftmerr.Status.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, ftmerr.Status(err), map[string]string{"message": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) bool {
	if r.Method != allowed {
		w.Header().Set("Allow", allowed)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "method not allowed"})
		return true
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	state, root := s.eng.Status()
	resp := map[string]any{
		"status": "idle",
		"pid":    os.Getpid(),
	}
	if state == engine.Watching {
		resp["status"] = "watching"
		resp["watch_dir"] = root
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodPost) {
		return
	}
	var body struct {
		Directory string `json:"directory"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, ftmerr.ErrPathInvalid)
		return
	}
	if err := s.eng.Checkout(body.Directory); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"directory": body.Directory})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	files, err := s.eng.Files(includeDeleted)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	file := r.URL.Query().Get("file")
	if file == "" {
		writeError(w, ftmerr.ErrPathInvalid)
		return
	}
	entries, err := s.eng.History(file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	since, err := parseTimeOrDefault(q.Get("since"), time.Unix(0, 0).UTC())
	if err != nil {
		writeError(w, ftmerr.ErrPathInvalid)
		return
	}
	until, err := parseTimeOrDefault(q.Get("until"), time.Now().UTC())
	if err != nil {
		writeError(w, ftmerr.ErrPathInvalid)
		return
	}
	includeDeleted := q.Get("include_deleted") == "true"

	entries, err := s.eng.Activity(since, until, includeDeleted)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func parseTimeOrDefault(raw string, def time.Time) (time.Time, error) {
	if raw == "" {
		return def, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodPost) {
		return
	}
	report, err := s.eng.Scan()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodPost) {
		return
	}
	report, err := s.eng.Clean()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodPost) {
		return
	}
	var body struct {
		File           string `json:"file"`
		ChecksumPrefix string `json:"checksum_prefix"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, ftmerr.ErrPathInvalid)
		return
	}
	if err := s.eng.Restore(body.File, body.ChecksumPrefix); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file": body.File})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	checksum := r.URL.Query().Get("checksum")
	if checksum == "" {
		writeError(w, ftmerr.ErrPathInvalid)
		return
	}
	data, err := s.eng.Snapshot(checksum)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	file, from, to := q.Get("file"), q.Get("from"), q.Get("to")
	if file == "" || from == "" || to == "" {
		writeError(w, ftmerr.ErrPathInvalid)
		return
	}

	hunks, err := s.eng.Diff(r.Context(), file, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hunks": hunks})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		key := r.URL.Query().Get("key")
		if key == "" {
			writeError(w, ftmerr.ErrPathInvalid)
			return
		}
		value, err := s.eng.GetConfig(key)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})

	case http.MethodPost:
		var body struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, ftmerr.ErrPathInvalid)
			return
		}
		if err := s.eng.SetConfig(body.Key, body.Value); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"key": body.Key, "value": body.Value})

	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "method not allowed"})
	}
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodPost) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
	s.eng.RequestShutdown()
}
