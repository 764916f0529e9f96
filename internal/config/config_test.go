/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import "testing"

func TestLoadReadsDBDSN(t *testing.T) {
	t.Setenv("PLAYBACKCORE_DB_DSN", "file:playback.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN != "file:playback.db" {
		t.Fatalf("unexpected DSN: %q", cfg.DBDSN)
	}
}

func TestLoadRejectsMissingDSN(t *testing.T) {
	if _, err := Load(); err == nil {
		t.Fatal("expected load to fail without a DSN")
	}
}

func TestLoadRejectsUnsupportedBackend(t *testing.T) {
	t.Setenv("PLAYBACKCORE_DB_DSN", "file:playback.db")
	t.Setenv("PLAYBACKCORE_DB_BACKEND", "mongodb")

	if _, err := Load(); err == nil {
		t.Fatal("expected load to fail for an unsupported backend")
	}
}

func TestLoadDefaultsToSQLite(t *testing.T) {
	t.Setenv("PLAYBACKCORE_DB_DSN", "file:playback.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("expected sqlite default, got %q", cfg.DBBackend)
	}
}
