package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vango-dev/chartsync/pkg/hoversync"
	"github.com/vango-dev/chartsync/pkg/seriessync"
)

// Prefs is the wire form of the two hover sync preferences.
type Prefs struct {
	SyncHoverEnabled   bool `json:"syncHoverEnabled"`
	SyncTooltipEnabled bool `json:"syncTooltipEnabled"`
}

// PrefsUpdate changes one or both preferences. Hover is applied first.
type PrefsUpdate struct {
	SyncHoverEnabled   *bool `json:"syncHoverEnabled,omitempty"`
	SyncTooltipEnabled *bool `json:"syncTooltipEnabled,omitempty"`
}

// HoverUpdate sets or clears a chart's hover. A null index clears it.
type HoverUpdate struct {
	Index json.RawMessage `json:"index"`
}

// SeriesKeys lists the live series channels.
type SeriesKeys struct {
	Keys []string `json:"keys"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetHover(w http.ResponseWriter, r *http.Request) {
	if chartID := r.URL.Query().Get("chart"); chartID != "" {
		writeJSON(w, http.StatusOK, s.svc.Hover.View(chartID))
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Hover.State())
}

func (s *Server) handlePutHover(w http.ResponseWriter, r *http.Request) {
	chartID := chi.URLParam(r, "chartID")

	var body HoverUpdate
	if !s.decode(w, r, &body) {
		return
	}
	switch {
	case len(body.Index) == 0:
		writeError(w, http.StatusBadRequest, "index is required")
		return
	case string(body.Index) == "null":
		s.svc.Hover.ClearHover(chartID)
	default:
		index, err := strconv.Atoi(string(body.Index))
		if err != nil {
			writeError(w, http.StatusBadRequest, "index must be an integer or null")
			return
		}
		s.svc.Hover.SetHover(chartID, index)
	}
	writeJSON(w, http.StatusOK, s.svc.Hover.View(chartID))
}

func (s *Server) handleDeleteHover(w http.ResponseWriter, r *http.Request) {
	chartID := chi.URLParam(r, "chartID")
	s.svc.Hover.ClearHover(chartID)
	writeJSON(w, http.StatusOK, s.svc.Hover.View(chartID))
}

func (s *Server) handleGetPrefs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, prefsOf(s.svc.Hover.State()))
}

func (s *Server) handlePutPrefs(w http.ResponseWriter, r *http.Request) {
	var body PrefsUpdate
	if !s.decode(w, r, &body) {
		return
	}
	if body.SyncHoverEnabled == nil && body.SyncTooltipEnabled == nil {
		writeError(w, http.StatusBadRequest, "syncHoverEnabled or syncTooltipEnabled is required")
		return
	}

	if body.SyncHoverEnabled != nil {
		s.svc.Hover.SetSyncHoverEnabled(*body.SyncHoverEnabled)
	}
	if body.SyncTooltipEnabled != nil {
		s.svc.Hover.SetSyncTooltipEnabled(*body.SyncTooltipEnabled)
	}
	writeJSON(w, http.StatusOK, prefsOf(s.svc.Hover.State()))
}

func (s *Server) handleListSeries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SeriesKeys{Keys: s.svc.Series.Keys()})
}

func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Series.State(chi.URLParam(r, "key")))
}

func (s *Server) handlePatchSeries(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxMessageSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body too large")
		return
	}
	patches, err := seriessync.ParsePatch(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.svc.Series.UpdateState(key, patches...)
	writeJSON(w, http.StatusOK, s.svc.Series.State(key))
}

func (s *Server) handleDeleteSeries(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if purge, _ := strconv.ParseBool(r.URL.Query().Get("purge")); purge {
		s.svc.Series.Cleanup(key)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.svc.Series.ClearState(key)
	writeJSON(w, http.StatusOK, s.svc.Series.State(key))
}

// decode reads a JSON body into v, answering 400 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxMessageSize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeError(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

func prefsOf(st hoversync.State) Prefs {
	return Prefs{SyncHoverEnabled: st.SyncHoverEnabled, SyncTooltipEnabled: st.SyncTooltipEnabled}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
