// Package api serves the dashboard read surface and the observer push channel.
package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"uplink-monitor/pkg/model"
	"uplink-monitor/pkg/store"
)

// Deps are the collaborators the routes read from.
type Deps struct {
	Status  func() model.Status
	Audit   store.Reader
	LogPath string // audit file offered for download; empty disables the route
	Hub     *Hub
	Metrics http.Handler
	Log     *zap.Logger
}

// RegisterRoutes wires the HTTP handlers on the provided mux.
func RegisterRoutes(mux *http.ServeMux, d Deps) {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, d.Status(), log)
	})

	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		offset := queryInt(r, "offset", 0)
		limit := queryInt(r, "limit", 50)
		if limit > 500 {
			limit = 500
		}
		items, total, err := d.Audit.Page(offset, limit)
		if err != nil {
			log.Error("read audit log failed", zap.Error(err))
			http.Error(w, "failed to read events", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items":  items,
			"total":  total,
			"offset": offset,
			"limit":  limit,
		}, log)
	})

	mux.HandleFunc("/api/events/tail", func(w http.ResponseWriter, r *http.Request) {
		n := queryInt(r, "n", 20)
		if n > 500 {
			n = 500
		}
		items, _, err := d.Audit.Page(0, n)
		if err != nil {
			http.Error(w, "failed to read events", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items}, log)
	})

	if d.LogPath != "" {
		mux.HandleFunc("/api/events/download", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(d.LogPath)+`"`)
			http.ServeFile(w, r, d.LogPath)
		})
	}

	if d.Hub != nil {
		mux.HandleFunc("/ws", d.Hub.ServeWS)
	}
	if d.Metrics != nil {
		mux.Handle("/metrics", d.Metrics)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any, log *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("failed to write response", zap.Error(err))
	}
}
