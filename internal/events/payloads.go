/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "github.com/friendsincode/grimnir-playback/internal/models"

// MixerStateContext distinguishes an immediate passage start from one
// that began mid-crossfade.
type MixerStateContext struct {
	Crossfading *CrossfadingContext `json:"Crossfading,omitempty"`
}

// CrossfadingContext names the outgoing passage when a PassageStarted
// event fires as the incoming side of a crossfade.
type CrossfadingContext struct {
	OutgoingEntryID string `json:"outgoing_entry_id"`
}

type PassageStartedPayload struct {
	QueueEntryID      string               `json:"queue_entry_id"`
	PassageID         string               `json:"passage_id"`
	AppliedTiming     models.AppliedTiming `json:"applied_timing"`
	MixerStateContext MixerStateContext    `json:"mixer_state_context"`
}

type PassageCompletedPayload struct {
	QueueEntryID string `json:"queue_entry_id"`
	PassageID    string `json:"passage_id"`
}

type PassageDecodeFailedPayload struct {
	QueueEntryID string `json:"queue_entry_id"`
	Reason       string `json:"reason"`
}

type PassageDecoderPanicPayload struct {
	QueueEntryID string `json:"queue_entry_id"`
}

type PlaybackProgressPayload struct {
	QueueEntryID string `json:"queue_entry_id"`
	PositionTicks int64 `json:"position_ticks"`
}

type PlaybackStateChangedPayload struct {
	State string `json:"state"`
}

// QueueChangedTrigger enumerates why a QueueChanged event fired.
type QueueChangedTrigger string

const (
	TriggerEnqueue            QueueChangedTrigger = "enqueue"
	TriggerRemove             QueueChangedTrigger = "remove"
	TriggerReorder            QueueChangedTrigger = "reorder"
	TriggerStartupRestore     QueueChangedTrigger = "startup_restore"
	TriggerCorruptionRecovery QueueChangedTrigger = "corruption_recovery"
)

type QueueChangedPayload struct {
	Trigger QueueChangedTrigger   `json:"trigger"`
	Entries []models.QueueEntry   `json:"entries"`
}

type VolumeChangedPayload struct {
	Volume float32 `json:"volume"`
}

type CrossfadeCompletedPayload struct {
	OutgoingEntryID string `json:"outgoing_entry_id"`
	IncomingEntryID string `json:"incoming_entry_id"`
}

type BufferUnderrunPayload struct {
	ChainIndex   int    `json:"chain_index"`
	QueueEntryID string `json:"queue_entry_id"`
}

type FatalErrorPayload struct {
	Reason string `json:"reason"`
}
