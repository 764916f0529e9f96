/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sse implements the GET /events Server-Sent Events stream: one
// goroutine per connected client, fanning out from internal/events.Bus.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir-playback/internal/events"
)

const keepAliveInterval = 15 * time.Second

// Handler serves GET /events, upgrading each request into a long-lived
// SSE stream subscribed to every event type. On disconnect the
// subscription is dropped with no replay — reconnecting clients are
// expected to re-fetch state via GET /status.
type Handler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewHandler builds an SSE handler broadcasting from bus.
func NewHandler(bus *events.Bus, log zerolog.Logger) *Handler {
	return &Handler{bus: bus, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := h.bus.SubscribeAll()
	defer h.bus.Unsubscribe("", sub)

	h.log.Debug().Msg("sse client connected")

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Debug().Msg("sse client disconnected")
			return

		case ev, open := <-sub:
			if !open {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev events.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, body)
	return err
}
