package db

import (
	"time"

	"gorm.io/gorm"
)

// MigrationRecord is the append-only log of applied schema steps, keyed by
// "<timestamp>_<name>". AutoMigrate handles columns; the recorded steps cover
// everything AutoMigrate cannot express (partial uniques, FTS, expressions).
type MigrationRecord struct {
	Name      string    `gorm:"column:name;primaryKey" json:"name"`
	AppliedAt time.Time `gorm:"column:applied_at;not null;default:now()" json:"applied_at"`
}

func (MigrationRecord) TableName() string { return "schema_migration" }

type migrationStep struct {
	name string
	run  func(db *gorm.DB) error
}

func applyOnce(db *gorm.DB, steps []migrationStep) error {
	for _, step := range steps {
		var count int64
		if err := db.Model(&MigrationRecord{}).Where("name = ?", step.name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if err := step.run(db); err != nil {
			return err
		}
		if err := db.Create(&MigrationRecord{Name: step.name, AppliedAt: time.Now().UTC()}).Error; err != nil {
			return err
		}
	}
	return nil
}
