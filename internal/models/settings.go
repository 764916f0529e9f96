/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

// Setting is a single key/value row in the settings table. Values are
// stored as text and parsed by internal/engine.LoadSettings.
type Setting struct {
	Key   string `gorm:"primaryKey;column:key"`
	Value string `gorm:"column:value"`
}

// TableName overrides the GORM default pluralization.
func (Setting) TableName() string {
	return "settings"
}

// Known setting keys.
const (
	SettingMaximumDecodeStreams       = "maximum_decode_streams"
	SettingPlayoutRingbufferSize      = "playout_ringbuffer_size"
	SettingPlayoutRingbufferHeadroom  = "playout_ringbuffer_headroom"
	SettingMinPlaybackBuffer          = "min_playback_buffer"
	SettingDecodeWorkPeriod           = "decode_work_period"
	SettingBufferUnderrunRecoveryMs   = "buffer_underrun_recovery_timeout_ms"
	SettingWorkingSampleRate          = "working_sample_rate"
	SettingPositionEventIntervalMs    = "position_event_interval_ms"
	SettingVolume                     = "volume"
	SettingAPISharedSecret            = "api_shared_secret"
)
