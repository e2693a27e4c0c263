package database

import (
	"fmt"
	"os"

	"github.com/ferryqueue/ferrysim/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MigratedSuffix is appended to a backup file once its runs are copied.
const MigratedSuffix = ".migrated"

// MigrateBackups copies the runs of every SQLite backup in dir into the
// connected database. Successfully migrated files are renamed with
// MigratedSuffix and their paths returned. A run already present in the
// destination is left untouched along with its samples and events.
func (m *Manager) MigrateBackups(dir string) ([]string, error) {
	if m.DB == nil {
		return nil, fmt.Errorf("database not connected")
	}

	paths, err := GetBackupDBPaths(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading backup directory: %w", err)
	}
	if len(paths) == 0 {
		m.Logger.Info().Str("dir", dir).Msg("No backups to migrate")
		return nil, nil
	}

	var migrated []string
	for _, path := range paths {
		copied, err := m.migrateFile(path)
		if err != nil {
			m.Logger.Error().Err(err).Str("path", path).Msg("Error migrating backup")
			continue
		}
		if err := os.Rename(path, path+MigratedSuffix); err != nil {
			m.Logger.Error().Err(err).Str("path", path).Msg("Error renaming migrated backup")
			continue
		}
		m.Logger.Info().Str("path", path).Int("runs", copied).Msg("Migrated backup")
		migrated = append(migrated, path)
	}
	return migrated, nil
}

func (m *Manager) migrateFile(path string) (int, error) {
	src := NewManager(m.Logger)
	if err := src.ConnectSQLite(path); err != nil {
		return 0, err
	}
	defer src.Close()

	var runs []model.Run
	if err := src.DB.Find(&runs).Error; err != nil {
		return 0, fmt.Errorf("error reading runs: %w", err)
	}

	copied := 0
	for _, run := range runs {
		err := m.DB.Transaction(func(tx *gorm.DB) error {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&run)
			if res.Error != nil {
				return fmt.Errorf("error inserting run %s: %w", run.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				m.Logger.Debug().Str("run", run.ID).Msg("Run already present, skipping")
				return nil
			}
			if err := migrateTable[model.TickSample](src.DB, tx, run.ID, func(t *model.TickSample) { t.ID = 0 }); err != nil {
				return err
			}
			if err := migrateTable[model.RunEvent](src.DB, tx, run.ID, func(e *model.RunEvent) { e.ID = 0 }); err != nil {
				return err
			}
			copied++
			return nil
		})
		if err != nil {
			return copied, err
		}
	}
	return copied, nil
}

// migrateTable copies the rows of run from src into dst in batches.
// reset clears the source's auto-increment key so dst assigns its own.
func migrateTable[M any](src, dst *gorm.DB, runID string, reset func(*M)) error {
	var batch []M
	var table M
	res := src.Model(&table).Where("run_id = ?", runID).FindInBatches(&batch, 2000, func(_ *gorm.DB, _ int) error {
		for i := range batch {
			reset(&batch[i])
		}
		return dst.Create(&batch).Error
	})
	if res.Error != nil {
		return fmt.Errorf("error migrating %T rows: %w", table, res.Error)
	}
	return nil
}
