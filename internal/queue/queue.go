/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package queue implements the ordered, database-backed list of queue
// entries: enqueue, removal, reorder, and startup validation against the
// referenced passages and their on-disk files.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir-playback/internal/models"
)

// playOrderStep is the default spacing left between play_order values on
// enqueue, so entries can later be reordered without a full rewrite.
const playOrderStep = 1000

var (
	// ErrEntryNotFound indicates the referenced queue entry does not exist.
	ErrEntryNotFound = errors.New("queue: entry not found")

	// ErrPassageNotFound indicates the referenced passage does not exist.
	ErrPassageNotFound = errors.New("queue: passage not found")
)

// Manager owns the ordered list of queue entries and their persistence.
type Manager struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewManager builds a queue manager over db.
func NewManager(db *gorm.DB, logger zerolog.Logger) *Manager {
	return &Manager{db: db, logger: logger}
}

// Enqueue resolves applied timing from the passage and overrides, writes
// a new queue row, and returns both. The row is committed before this
// call returns (eager persistence).
func (m *Manager) Enqueue(ctx context.Context, passageID string, overrides *models.Overrides) (*models.QueueEntry, models.AppliedTiming, error) {
	var passage models.Passage
	if err := m.db.WithContext(ctx).Where("passage_id = ?", passageID).First(&passage).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.AppliedTiming{}, ErrPassageNotFound
		}
		return nil, models.AppliedTiming{}, fmt.Errorf("enqueue: load passage: %w", err)
	}

	applied := models.ResolveAppliedTiming(&passage, overrides)

	var maxOrder int64
	if err := m.db.WithContext(ctx).Model(&models.QueueEntry{}).
		Select("COALESCE(MAX(play_order), 0)").Scan(&maxOrder).Error; err != nil {
		return nil, models.AppliedTiming{}, fmt.Errorf("enqueue: compute play_order: %w", err)
	}

	entry := &models.QueueEntry{
		ID:         uuid.New().String(),
		PassageID:  passageID,
		PlayOrder:  maxOrder + playOrderStep,
		Overrides:  overrides,
		EnqueuedAt: time.Now().UnixNano(),
	}
	if err := m.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, models.AppliedTiming{}, fmt.Errorf("enqueue: persist entry: %w", err)
	}

	return entry, applied, nil
}

// Remove deletes entryID's row. The caller (engine) is responsible for
// coordinating chain release and mixer advancement when the removed
// entry was the current passage.
func (m *Manager) Remove(ctx context.Context, entryID string) error {
	res := m.db.WithContext(ctx).Where("queue_entry_id = ?", entryID).Delete(&models.QueueEntry{})
	if res.Error != nil {
		return fmt.Errorf("remove entry %s: %w", entryID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// ReorderRequest is one entry's new position in a PUT /queue reorder.
type ReorderRequest struct {
	QueueEntryID string
	PlayOrder    int64
}

// Reorder rewrites play_order for every listed entry in a single
// serializable transaction, so the queue is never observed half-reordered.
func (m *Manager) Reorder(ctx context.Context, reqs []ReorderRequest) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range reqs {
			res := tx.Model(&models.QueueEntry{}).
				Where("queue_entry_id = ?", r.QueueEntryID).
				Update("play_order", r.PlayOrder)
			if res.Error != nil {
				return fmt.Errorf("reorder entry %s: %w", r.QueueEntryID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: %s", ErrEntryNotFound, r.QueueEntryID)
			}
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

// List returns all entries in play_order ascending order.
func (m *Manager) List(ctx context.Context) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	if err := m.db.WithContext(ctx).Order("play_order ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return entries, nil
}

// LoadFromDB reads all entries in play_order order, dropping (and
// logging a warning for) any whose passage no longer exists or whose
// referenced file is missing from disk. The caller is responsible for
// emitting a QueueChanged(corruption_recovery) event if anything was
// dropped.
func (m *Manager) LoadFromDB(ctx context.Context) (valid []models.QueueEntry, dropped int, err error) {
	entries, err := m.List(ctx)
	if err != nil {
		return nil, 0, err
	}

	for _, e := range entries {
		var passage models.Passage
		perr := m.db.WithContext(ctx).Where("passage_id = ?", e.PassageID).First(&passage).Error
		if errors.Is(perr, gorm.ErrRecordNotFound) {
			m.logger.Warn().Str("queue_entry_id", e.ID).Str("passage_id", e.PassageID).Msg("dropping queue entry: passage not found")
			m.dropInvalid(ctx, e.ID)
			dropped++
			continue
		}
		if perr != nil {
			return nil, dropped, fmt.Errorf("load_from_db: query passage %s: %w", e.PassageID, perr)
		}

		if _, statErr := os.Stat(passage.FilePath); statErr != nil {
			m.logger.Warn().Str("queue_entry_id", e.ID).Str("file_path", passage.FilePath).Msg("dropping queue entry: file missing")
			m.dropInvalid(ctx, e.ID)
			dropped++
			continue
		}

		valid = append(valid, e)
	}
	return valid, dropped, nil
}

func (m *Manager) dropInvalid(ctx context.Context, entryID string) {
	if err := m.db.WithContext(ctx).Where("queue_entry_id = ?", entryID).Delete(&models.QueueEntry{}).Error; err != nil {
		m.logger.Error().Err(err).Str("queue_entry_id", entryID).Msg("failed to drop invalid queue entry")
	}
}
