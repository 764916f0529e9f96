/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir-playback/internal/engine"
	"github.com/friendsincode/grimnir-playback/internal/models"
	"github.com/friendsincode/grimnir-playback/internal/mixer"
	"github.com/friendsincode/grimnir-playback/internal/queue"
)

type enqueueResponse struct {
	Status        string               `json:"status"`
	QueueEntryID  string               `json:"queue_entry_id"`
	PlayOrder     int64                `json:"play_order"`
	AppliedTiming models.AppliedTiming `json:"applied_timing"`
}

func (a *API) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PassageID string             `json:"passage_id"`
		FilePath  string             `json:"file_path"`
		Overrides *models.Overrides  `json:"overrides"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if req.Overrides != nil && !overridesValid(req.Overrides) {
		writeError(w, http.StatusBadRequest, "invalid_overrides")
		return
	}

	var passage models.Passage
	where := a.db.WithContext(r.Context())
	if req.PassageID != "" {
		where = where.Where("passage_id = ?", req.PassageID)
	} else {
		where = where.Where("file_path = ?", req.FilePath)
	}
	if err := where.First(&passage).Error; err != nil {
		writeError(w, http.StatusNotFound, "file_missing")
		return
	}
	if _, err := os.Stat(passage.FilePath); err != nil {
		writeError(w, http.StatusNotFound, "file_missing")
		return
	}

	entry, at, err := a.engine.Enqueue(r.Context(), passage.ID, req.Overrides)
	if err != nil {
		if errors.Is(err, queue.ErrPassageNotFound) {
			writeError(w, http.StatusNotFound, "file_missing")
			return
		}
		a.log.Error().Err(err).Msg("enqueue failed")
		writeError(w, http.StatusInternalServerError, "enqueue_failed")
		return
	}

	writeJSON(w, http.StatusOK, enqueueResponse{
		Status:        "ok",
		QueueEntryID:  entry.ID,
		PlayOrder:     entry.PlayOrder,
		AppliedTiming: at,
	})
}

func overridesValid(o *models.Overrides) bool {
	if o.FadeInCurve != nil && !models.IsValidFadeCurve(*o.FadeInCurve) {
		return false
	}
	if o.FadeOutCurve != nil && !models.IsValidFadeCurve(*o.FadeOutCurve) {
		return false
	}
	if o.FadeInDurationTicks != nil && *o.FadeInDurationTicks < 0 {
		return false
	}
	if o.FadeOutDurationTicks != nil && *o.FadeOutDurationTicks < 0 {
		return false
	}
	return true
}

func (a *API) handlePlay(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Play(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "play_failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Pause(r.Context()); err != nil {
		if errors.Is(err, engine.ErrPauseInvalidState) {
			writeError(w, http.StatusBadRequest, "invalid_state_for_pause")
			return
		}
		writeError(w, http.StatusInternalServerError, "pause_failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Stop(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "stop_failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSkip(w http.ResponseWriter, r *http.Request) {
	err := a.engine.Skip(r.Context())
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, engine.ErrSkipCooldown):
		writeError(w, http.StatusTooManyRequests, "skip_throttled")
	case errors.Is(err, engine.ErrQueueEmpty):
		writeError(w, http.StatusBadRequest, "queue_empty")
	default:
		a.log.Error().Err(err).Msg("skip failed")
		writeError(w, http.StatusInternalServerError, "skip_failed")
	}
}

func (a *API) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PositionTicks int64 `json:"position_ticks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	err := a.engine.Seek(r.Context(), req.PositionTicks)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, engine.ErrSeekInvalidState), errors.Is(err, mixer.ErrInvalidStateForSeek):
		writeError(w, http.StatusBadRequest, "invalid_state_for_seek")
	default:
		writeError(w, http.StatusInternalServerError, "seek_failed")
	}
}

func (a *API) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume float32 `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if err := a.engine.SetVolume(r.Context(), req.Volume); err != nil {
		if errors.Is(err, engine.ErrInvalidVolume) {
			writeError(w, http.StatusBadRequest, "out_of_range")
			return
		}
		writeError(w, http.StatusInternalServerError, "volume_failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleQueueRemove(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryID")
	if err := a.engine.Remove(r.Context(), entryID); err != nil {
		if errors.Is(err, queue.ErrEntryNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "remove_failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleQueueReorder(w http.ResponseWriter, r *http.Request) {
	var reqs []queue.ReorderRequest
	var body []struct {
		QueueEntryID string `json:"queue_entry_id"`
		PlayOrder    int64  `json:"play_order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	for _, b := range body {
		reqs = append(reqs, queue.ReorderRequest{QueueEntryID: b.QueueEntryID, PlayOrder: b.PlayOrder})
	}
	if err := a.engine.Reorder(r.Context(), reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_reorder")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
