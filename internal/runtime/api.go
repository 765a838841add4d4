package runtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/lingo-labs/lingo-core/internal/history"
	"github.com/lingo-labs/lingo-core/internal/session"
)

type sessionView struct {
	SessionID      string `json:"session_id,omitempty"`
	State          string `json:"state"`
	TranslatedText string `json:"translated_text,omitempty"`
	Language       string `json:"language,omitempty"`
	ErrorKind      string `json:"error_kind,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

func viewOf(snap session.Snapshot) sessionView {
	view := sessionView{
		SessionID:      snap.SessionID,
		State:          string(snap.State),
		TranslatedText: snap.TranslatedText,
		Language:       snap.Language,
	}
	if snap.Err != nil {
		view.ErrorKind = string(snap.Err.Kind)
		view.ErrorMessage = snap.Err.Message
	}
	return view
}

func (r *Runtime) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/session", r.handleSessionGet)
	mux.HandleFunc("POST /v1/session/start", r.handleSessionStart)
	mux.HandleFunc("POST /v1/session/stop", r.handleSessionStop)
	mux.HandleFunc("POST /v1/session/dismiss", r.handleSessionDismiss)
	mux.HandleFunc("GET /v1/history", r.handleHistory)
	mux.HandleFunc("GET /v1/devices", r.handleDevices)
	mux.HandleFunc("PUT /v1/settings/credential", r.handleCredentialPut)
}

func (r *Runtime) handleSessionGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(r.sessions.Controller().Snapshot()))
}

func (r *Runtime) handleSessionStart(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(r.sessions.Controller().Start(req.Context())))
}

func (r *Runtime) handleSessionStop(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(r.sessions.Controller().Stop(req.Context())))
}

func (r *Runtime) handleSessionDismiss(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(r.sessions.Controller().Dismiss()))
}

// handleHistory lists recent sessions; with ?session_id= it returns the
// event timeline of one session instead.
func (r *Runtime) handleHistory(w http.ResponseWriter, req *http.Request) {
	limit := 0
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	if sessionID := strings.TrimSpace(req.URL.Query().Get("session_id")); sessionID != "" {
		events, err := r.store.ListSessionEvents(req.Context(), sessionID, limit)
		if err != nil {
			r.logger.Error("failed to list session events", slog.String("error", err.Error()))
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "events": events})
		return
	}

	records, err := r.store.ListSessions(req.Context(), limit)
	if err != nil {
		r.logger.Error("failed to list sessions", slog.String("error", err.Error()))
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []history.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": records})
}

func (r *Runtime) handleDevices(w http.ResponseWriter, _ *http.Request) {
	nodes := r.registry.Query(nil)
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

type credentialRequest struct {
	APIKey string `json:"api_key"`
}

// handleCredentialPut stores a new translation credential and clears
// the rejected marker. The new key takes effect on the next restart;
// the response says so explicitly.
func (r *Runtime) handleCredentialPut(w http.ResponseWriter, req *http.Request) {
	var body credentialRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	key := strings.TrimSpace(body.APIKey)
	if key == "" {
		http.Error(w, "api_key must not be empty", http.StatusBadRequest)
		return
	}
	if err := r.store.PutSetting(req.Context(), history.SettingAPIKey, key); err != nil {
		r.logger.Error("failed to store credential", slog.String("error", err.Error()))
		http.Error(w, "failed to store credential", http.StatusInternalServerError)
		return
	}
	if err := r.store.PutSetting(req.Context(), history.SettingCredentialValid, "true"); err != nil {
		r.logger.Warn("failed to reset credential flag", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored", "note": "takes effect on next restart"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
