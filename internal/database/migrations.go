package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Iam-samyog/EduCircle/internal/decks"
	"github.com/Iam-samyog/EduCircle/internal/goals"
	"github.com/Iam-samyog/EduCircle/internal/notes"
)

const (
	migrationClampGoalProgress    = "2026-02-01_clamp_goal_progress"
	migrationBackfillCardVersions = "2026-02-20_backfill_flashcard_versions"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func migrations() []migrationDefinition {
	return []migrationDefinition{
		{name: migrationClampGoalProgress, apply: clampGoalProgress},
		{name: migrationBackfillCardVersions, apply: backfillFlashcardVersions},
	}
}

// applyMigrations runs each named migration once, recording it in
// db_migrations inside the same transaction.
func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range migrations() {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func clampGoalProgress(db *gorm.DB) error {
	if err := db.Model(&goals.Goal{}).Where("progress > ?", goals.ProgressComplete).Update("progress", goals.ProgressComplete).Error; err != nil {
		return err
	}
	return db.Model(&goals.Goal{}).Where("progress < 0").Update("progress", 0).Error
}

func backfillFlashcardVersions(db *gorm.DB) error {
	if err := db.Model(&notes.Note{}).Where("version < 1").Update("version", 1).Error; err != nil {
		return err
	}
	return db.Model(&decks.Deck{}).Where("version < 1").Update("version", 1).Error
}
