/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir-playback/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
// The queue table is the only runtime state this module persists;
// passages are owned and migrated externally, but AutoMigrate is
// idempotent against an existing, compatible table.
func Migrate(database *gorm.DB) error {
	return database.AutoMigrate(
		&models.Passage{},
		&models.QueueEntry{},
		&models.Setting{},
	)
}
