/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package queue

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir-playback/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Passage{}, &models.QueueEntry{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func seedPassage(t *testing.T, db *gorm.DB, id, path string) {
	t.Helper()
	p := &models.Passage{
		ID:           id,
		FilePath:     path,
		StartTicks:   0,
		EndTicks:     1_000_000,
		FadeInEndTicks:    100_000,
		FadeOutStartTicks: 900_000,
		FadeInCurve:  models.FadeCurveLinear,
		FadeOutCurve: models.FadeCurveLinear,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed passage: %v", err)
	}
}

func TestEnqueueAssignsIncreasingPlayOrder(t *testing.T) {
	db := newTestDB(t)
	tmp := filepath.Join(t.TempDir(), "track.wav")
	os.WriteFile(tmp, []byte("fake"), 0o644)
	seedPassage(t, db, "p1", tmp)

	m := NewManager(db, zerolog.Nop())
	e1, _, err := m.Enqueue(context.Background(), "p1", nil)
	if err != nil {
		t.Fatal(err)
	}
	e2, _, err := m.Enqueue(context.Background(), "p1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if e2.PlayOrder <= e1.PlayOrder {
		t.Fatalf("expected increasing play_order, got %d then %d", e1.PlayOrder, e2.PlayOrder)
	}
}

func TestEnqueueUnknownPassage(t *testing.T) {
	db := newTestDB(t)
	m := NewManager(db, zerolog.Nop())
	_, _, err := m.Enqueue(context.Background(), "missing", nil)
	if err != ErrPassageNotFound {
		t.Fatalf("expected ErrPassageNotFound, got %v", err)
	}
}

func TestRemoveUnknownEntry(t *testing.T) {
	db := newTestDB(t)
	m := NewManager(db, zerolog.Nop())
	if err := m.Remove(context.Background(), "nope"); err != ErrEntryNotFound {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestLoadFromDBDropsMissingFile(t *testing.T) {
	db := newTestDB(t)
	seedPassage(t, db, "p1", "/does/not/exist.wav")
	m := NewManager(db, zerolog.Nop())

	if _, _, err := m.Enqueue(context.Background(), "p1", nil); err != nil {
		t.Fatal(err)
	}

	valid, dropped, err := m.LoadFromDB(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if dropped != 1 || len(valid) != 0 {
		t.Fatalf("expected 1 dropped, 0 valid; got dropped=%d valid=%d", dropped, len(valid))
	}
}

func TestReorderRewritesPlayOrder(t *testing.T) {
	db := newTestDB(t)
	tmp := filepath.Join(t.TempDir(), "track.wav")
	os.WriteFile(tmp, []byte("fake"), 0o644)
	seedPassage(t, db, "p1", tmp)

	m := NewManager(db, zerolog.Nop())
	e1, _, _ := m.Enqueue(context.Background(), "p1", nil)
	e2, _, _ := m.Enqueue(context.Background(), "p1", nil)

	err := m.Reorder(context.Background(), []ReorderRequest{
		{QueueEntryID: e1.ID, PlayOrder: 500},
		{QueueEntryID: e2.ID, PlayOrder: 100},
	})
	if err != nil {
		t.Fatal(err)
	}

	entries, err := m.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].ID != e2.ID {
		t.Fatalf("expected e2 first after reorder, got %s", entries[0].ID)
	}
}
