package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcwatch/assets"
)

// runMigrations applies embedded SQL files that are not yet recorded in
// schema_migrations, each in its own transaction, in file name order.
func runMigrations(db *sqlx.DB) error {
	const migrationTableSchema = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME
	);`

	if _, err := db.Exec(migrationTableSchema); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	files, err := migrationFiles()
	if err != nil {
		return err
	}

	for _, file := range files {
		var exists int
		err := db.Get(&exists, "SELECT 1 FROM schema_migrations WHERE version = ?", file)
		if err == nil {
			continue
		} else if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check migration status: %w", err)
		}

		if err := applyMigration(db, file); err != nil {
			return err
		}
	}

	return nil
}

func migrationFiles() ([]string, error) {
	files, err := assets.Migrations()
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations dir: %w", err)
	}
	return files, nil
}

func applyMigration(db *sqlx.DB, file string) error {
	log.Info().Str("file", file).Msg("Applying database migration...")

	content, err := assets.Migration(file)
	if err != nil {
		return fmt.Errorf("failed to read migration file %s: %w", file, err)
	}

	tx, err := db.Beginx()
	if err != nil {
		return err
	}

	if _, err := tx.Exec(content); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to exec migration %s: %w", file, err)
	}

	if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", file, time.Now().UTC()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record migration %s: %w", file, err)
	}

	return tx.Commit()
}
