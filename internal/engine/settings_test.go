/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir-playback/internal/models"
)

func newSettingsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Setting{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func TestLoadSettingsUsesDefaultsOnEmptyTable(t *testing.T) {
	db := newSettingsTestDB(t)
	s, err := LoadSettings(context.Background(), db)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	want := defaultSettings()
	if s != want {
		t.Fatalf("expected defaults %+v, got %+v", want, s)
	}
}

func TestLoadSettingsOverlaysStoredValues(t *testing.T) {
	db := newSettingsTestDB(t)
	rows := []models.Setting{
		{Key: models.SettingMaximumDecodeStreams, Value: "4"},
		{Key: models.SettingWorkingSampleRate, Value: "48000"},
		{Key: models.SettingVolume, Value: "0.5"},
		{Key: models.SettingBufferUnderrunRecoveryMs, Value: "750"},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	s, err := LoadSettings(context.Background(), db)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if s.MaximumDecodeStreams != 4 {
		t.Errorf("expected 4 decode streams, got %d", s.MaximumDecodeStreams)
	}
	if s.WorkingSampleRate != 48000 {
		t.Errorf("expected 48000 sample rate, got %d", s.WorkingSampleRate)
	}
	if s.Volume != 0.5 {
		t.Errorf("expected volume 0.5, got %v", s.Volume)
	}
	if s.BufferUnderrunRecoveryTimeout != 750*time.Millisecond {
		t.Errorf("expected 750ms recovery timeout, got %v", s.BufferUnderrunRecoveryTimeout)
	}
	// Untouched keys keep their default.
	if s.MinPlaybackBuffer != defaultSettings().MinPlaybackBuffer {
		t.Errorf("expected default min playback buffer, got %d", s.MinPlaybackBuffer)
	}
}

func TestLoadSettingsIgnoresUnparsableValue(t *testing.T) {
	db := newSettingsTestDB(t)
	if err := db.Create(&models.Setting{Key: models.SettingMaximumDecodeStreams, Value: "not-a-number"}).Error; err != nil {
		t.Fatalf("seed settings: %v", err)
	}
	s, err := LoadSettings(context.Background(), db)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if s.MaximumDecodeStreams != defaultSettings().MaximumDecodeStreams {
		t.Errorf("expected default to survive unparsable value, got %d", s.MaximumDecodeStreams)
	}
}
