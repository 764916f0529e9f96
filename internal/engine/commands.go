/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/friendsincode/grimnir-playback/internal/events"
	"github.com/friendsincode/grimnir-playback/internal/mixer"
	"github.com/friendsincode/grimnir-playback/internal/models"
	"github.com/friendsincode/grimnir-playback/internal/queue"
	"github.com/friendsincode/grimnir-playback/internal/telemetry"
	"github.com/friendsincode/grimnir-playback/internal/tick"
)

// recordCommand increments the command counter with "ok" or "error"
// depending on whether err is nil, and returns err unchanged so callers
// can write `return recordCommand("skip", e.doSkip(ctx))`.
func recordCommand(command string, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	telemetry.EngineCommandsTotal.WithLabelValues(command, outcome).Inc()
	return err
}

// Enqueue appends passageID to the queue, assigning a decode chain
// immediately if the ladder's active chain budget allows it.
func (e *Engine) Enqueue(ctx context.Context, passageID string, overrides *models.Overrides) (entry *models.QueueEntry, at models.AppliedTiming, err error) {
	defer func() { recordCommand("enqueue", err) }()
	entry, at, err = e.queue.Enqueue(ctx, passageID, overrides)
	if err != nil {
		return nil, models.AppliedTiming{}, err
	}
	e.refreshOrder(ctx)
	e.assignUnassigned(ctx)
	e.publishQueueChanged(events.TriggerEnqueue)
	return entry, at, nil
}

// Play transitions to Playing. If the mixer is idle and the queue is
// non-empty, it starts (or waits to start, once decoded) the front
// entry; otherwise it resumes a paused mixer in place.
func (e *Engine) Play(ctx context.Context) (err error) {
	defer func() { recordCommand("play", err) }()
	wasPlaying := e.State() == StatePlaying
	e.setState(StatePlaying)
	if wasPlaying {
		return nil
	}

	if e.mix.State() == mixer.StateIdle {
		e.assignUnassigned(ctx)
		e.startFrontIfPlaying(ctx)
	} else {
		e.mix.Resume(0)
	}
	e.publishStateChanged()
	return nil
}

// Pause applies the mixer's decay envelope and moves to Paused.
func (e *Engine) Pause(ctx context.Context) (err error) {
	defer func() { recordCommand("pause", err) }()
	if e.State() != StatePlaying {
		return ErrPauseInvalidState
	}
	e.mix.Pause()
	e.setState(StatePaused)
	e.publishStateChanged()
	return nil
}

// Stop releases every assigned chain, idles the mixer, and moves to
// Stopped. The queue itself is untouched.
func (e *Engine) Stop(ctx context.Context) (err error) {
	defer func() { recordCommand("stop", err) }()
	e.mix.Detach()

	e.mu.Lock()
	ids := make([]string, 0, len(e.assigned))
	for id := range e.assigned {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	for _, id := range ids {
		e.releaseChain(id)
	}

	e.setState(StateStopped)
	e.publishStateChanged()
	return nil
}

// Skip forces the mixer into the next passage, subject to a cooldown
// between user-initiated skips. If the next chain is not yet armed for
// crossfade, the front entry is dropped outright and the queue advances
// to whatever is ready.
func (e *Engine) Skip(ctx context.Context) (err error) {
	defer func() { recordCommand("skip", err) }()
	e.mu.Lock()
	if time.Since(e.lastSkip) < skipCooldown {
		e.mu.Unlock()
		return ErrSkipCooldown
	}
	order := append([]models.QueueEntry(nil), e.order...)
	e.mu.Unlock()

	if len(order) == 0 {
		return ErrQueueEmpty
	}

	e.mu.Lock()
	e.lastSkip = time.Now()
	e.mu.Unlock()

	if e.mix.ForceCrossfade() {
		return nil // onCrossfadeCompleted retires the outgoing entry once the frame boundary passes
	}

	front := order[0]
	e.mix.Detach()
	e.releaseChain(front.ID)
	if err := e.queue.Remove(ctx, front.ID); err != nil && !errors.Is(err, queue.ErrEntryNotFound) {
		return fmt.Errorf("skip: remove front entry: %w", err)
	}
	e.refreshOrder(ctx)
	e.assignUnassigned(ctx)
	e.startFrontIfPlaying(ctx)
	e.publishQueueChanged(events.TriggerRemove)
	return nil
}

// Seek repositions the current (Single-state) source to positionTicks,
// measured from the containing file's start, same origin as the
// passage's own timing fields.
func (e *Engine) Seek(ctx context.Context, positionTicks int64) (err error) {
	defer func() { recordCommand("seek", err) }()
	if e.State() != StatePlaying || e.mix.State() != mixer.StateSingle {
		return ErrSeekInvalidState
	}

	e.mu.Lock()
	order := append([]models.QueueEntry(nil), e.order...)
	e.mu.Unlock()
	if len(order) == 0 {
		return ErrQueueEmpty
	}

	front := order[0]
	at := e.timingFor(front.ID)
	frame := tick.Samples(tick.Tick(positionTicks-at.Start), e.settings.WorkingSampleRate)
	return e.mix.Seek(front.ID, frame)
}

// SetVolume updates the audio device's master gain, persists it, and
// broadcasts VolumeChanged.
func (e *Engine) SetVolume(ctx context.Context, v float32) (err error) {
	defer func() { recordCommand("set_volume", err) }()
	if v < 0 || v > 1 {
		return ErrInvalidVolume
	}
	e.device.SetVolume(v)
	e.persistVolume(ctx, v)
	e.bus.Publish(events.Event{
		Type:           events.TypeVolumeChanged,
		TimestampTicks: e.nowTicks(),
		Payload:        events.VolumeChangedPayload{Volume: v},
	})
	return nil
}

func (e *Engine) persistVolume(ctx context.Context, v float32) {
	setting := models.Setting{Key: models.SettingVolume, Value: fmt.Sprintf("%.4f", v)}
	if err := e.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&setting).Error; err != nil {
		e.log.Error().Err(err).Msg("failed to persist volume setting")
	}
}

// Remove deletes entryID from the queue. Removing the current entry
// while playing is treated as a skip, per the queue's advancement rules.
func (e *Engine) Remove(ctx context.Context, entryID string) (err error) {
	defer func() { recordCommand("remove", err) }()
	e.mu.Lock()
	order := e.order
	isFront := len(order) > 0 && order[0].ID == entryID
	e.mu.Unlock()

	if isFront && e.State() == StatePlaying {
		return e.Skip(ctx)
	}

	e.releaseChain(entryID)
	if err := e.queue.Remove(ctx, entryID); err != nil {
		return err
	}
	e.refreshOrder(ctx)
	e.assignUnassigned(ctx)
	e.publishQueueChanged(events.TriggerRemove)
	return nil
}

// Reorder rewrites play_order for the given entries.
func (e *Engine) Reorder(ctx context.Context, reqs []queue.ReorderRequest) (err error) {
	defer func() { recordCommand("reorder", err) }()
	if err := e.queue.Reorder(ctx, reqs); err != nil {
		return err
	}
	e.refreshOrder(ctx)
	e.publishQueueChanged(events.TriggerReorder)
	return nil
}

// ListQueue returns the queue's current play_order-ascending contents.
func (e *Engine) ListQueue(ctx context.Context) ([]models.QueueEntry, error) {
	return e.queue.List(ctx)
}

// PassagePath resolves a passage id to its on-disk file path, for
// existence checks performed before enqueueing.
func (e *Engine) PassagePath(ctx context.Context, passageID string) (string, error) {
	var passage models.Passage
	if err := e.db.WithContext(ctx).Where("passage_id = ?", passageID).First(&passage).Error; err != nil {
		return "", err
	}
	return passage.FilePath, nil
}

// Status is a point-in-time snapshot of playback state for GET /status.
type Status struct {
	State          State  `json:"state"`
	Volume         float32 `json:"volume"`
	CurrentEntryID string `json:"current_entry_id,omitempty"`
	PositionTicks  *int64 `json:"position_ticks,omitempty"`
	QueueLen       int    `json:"queue_len"`
}

// Status reports the engine's current state, volume, queue length, and
// (if a source is playing) the current entry and its position.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	entries, err := e.queue.List(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{State: e.State(), Volume: e.device.Volume(), QueueLen: len(entries)}
	if entryID, frames, ok := e.mix.OutgoingPosition(); ok {
		at := e.timingFor(entryID)
		posTicks := int64(tick.FromSamples(frames, e.settings.WorkingSampleRate)) + at.Start
		st.CurrentEntryID = entryID
		st.PositionTicks = &posTicks
	}
	return st, nil
}
