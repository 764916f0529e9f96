/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the engine's commands and state queries over HTTP,
// plus the SSE event stream. Write endpoints require an HMAC-signed body;
// reads (queue listing, status, health, events) are open.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir-playback/internal/engine"
	"github.com/friendsincode/grimnir-playback/internal/events"
	"github.com/friendsincode/grimnir-playback/internal/sse"
)

// API exposes HTTP handlers over a running Engine.
type API struct {
	db     *gorm.DB
	engine *engine.Engine
	sse    *sse.Handler
	secret string
	log    zerolog.Logger
}

// New builds an API bound to eng. secret is the shared HMAC key used to
// verify write requests (models.SettingAPISharedSecret).
func New(db *gorm.DB, eng *engine.Engine, bus *events.Bus, secret string, log zerolog.Logger) *API {
	return &API{
		db:     db,
		engine: eng,
		sse:    sse.NewHandler(bus, log),
		secret: secret,
		log:    log,
	}
}

// Routes registers every endpoint under /api/v1 on r.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/status", a.handleStatus)
		r.Get("/queue", a.handleQueueList)
		r.Get("/events", a.sse.ServeHTTP)

		// Reorder carries a bare JSON array (no hash/timestamp envelope),
		// so it is validated but not HMAC-checked, per its entry in the
		// REST surface's error column (400 only, no 401/403).
		r.Put("/queue", a.handleQueueReorder)

		r.Group(func(pr chi.Router) {
			pr.Use(a.requireSignedRequest())

			pr.Route("/playback", func(r chi.Router) {
				r.Post("/enqueue", a.handleEnqueue)
				r.Post("/play", a.handlePlay)
				r.Post("/pause", a.handlePause)
				r.Post("/stop", a.handleStop)
				r.Post("/skip", a.handleSkip)
				r.Post("/seek", a.handleSeek)
				r.Post("/volume", a.handleVolume)
			})

			pr.Delete("/queue/{entryID}", a.handleQueueRemove)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.engine.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) handleQueueList(w http.ResponseWriter, r *http.Request) {
	entries, err := a.engine.ListQueue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "queue_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
