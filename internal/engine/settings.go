/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/grimnir-playback/internal/models"
)

// Settings is the engine's runtime configuration, loaded from the
// settings table at startup. Every field has a usable default so a fresh
// database still boots.
type Settings struct {
	MaximumDecodeStreams         int
	RingbufferSize               int // frames
	RingbufferHeadroom           int // frames
	MinPlaybackBuffer            int // frames
	DecodeWorkPeriod             int // frames per decode unit
	BufferUnderrunRecoveryTimeout time.Duration
	WorkingSampleRate            int
	PositionEventInterval        time.Duration
	Volume                       float32
	APISharedSecret              string
}

func defaultSettings() Settings {
	return Settings{
		MaximumDecodeStreams:          12,
		RingbufferSize:                1 << 17,
		RingbufferHeadroom:            1 << 13,
		MinPlaybackBuffer:             1 << 14,
		DecodeWorkPeriod:              4096,
		BufferUnderrunRecoveryTimeout: 500 * time.Millisecond,
		WorkingSampleRate:             44100,
		PositionEventInterval:         500 * time.Millisecond,
		Volume:                        1.0,
	}
}

// LoadSettings reads every row in the settings table and overlays it onto
// the defaults; missing or unparsable keys keep their default value.
func LoadSettings(ctx context.Context, db *gorm.DB) (Settings, error) {
	s := defaultSettings()

	var rows []models.Setting
	if err := db.WithContext(ctx).Find(&rows).Error; err != nil {
		return s, err
	}

	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r.Key] = r.Value
	}

	if v, ok := atoiOK(values[models.SettingMaximumDecodeStreams]); ok {
		s.MaximumDecodeStreams = v
	}
	if v, ok := atoiOK(values[models.SettingPlayoutRingbufferSize]); ok {
		s.RingbufferSize = v
	}
	if v, ok := atoiOK(values[models.SettingPlayoutRingbufferHeadroom]); ok {
		s.RingbufferHeadroom = v
	}
	if v, ok := atoiOK(values[models.SettingMinPlaybackBuffer]); ok {
		s.MinPlaybackBuffer = v
	}
	if v, ok := atoiOK(values[models.SettingDecodeWorkPeriod]); ok {
		s.DecodeWorkPeriod = v
	}
	if v, ok := atoiOK(values[models.SettingBufferUnderrunRecoveryMs]); ok {
		s.BufferUnderrunRecoveryTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := atoiOK(values[models.SettingWorkingSampleRate]); ok {
		s.WorkingSampleRate = v
	}
	if v, ok := atoiOK(values[models.SettingPositionEventIntervalMs]); ok {
		s.PositionEventInterval = time.Duration(v) * time.Millisecond
	}
	if v, ok := values[models.SettingVolume]; ok {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			s.Volume = float32(f)
		}
	}
	if v, ok := values[models.SettingAPISharedSecret]; ok {
		s.APISharedSecret = v
	}

	return s, nil
}

func atoiOK(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
