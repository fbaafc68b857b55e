package db

import (
	"fmt"

	types "github.com/yungbote/recall-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Callers (auth + webhooks)
		// =========================
		&types.Caller{},

		// =========================
		// Content graph
		// =========================
		&types.Content{},
		&types.ContentChunk{},
		&types.ContentLink{},
		&types.Entity{},
		&types.ContentEntityEdge{},
		&types.TagAlias{},

		// =========================
		// Jobs / worker
		// =========================
		&types.PipelineJob{},

		// =========================
		// Migration log
		// =========================
		&MigrationRecord{},
	)
}

func EnsureContentIndexes(db *gorm.DB) error {
	steps := []migrationStep{
		{
			// dedup backstop: one live content row per resource key
			name: "20250301_content_resource_key_unique",
			run: func(db *gorm.DB) error {
				return db.Exec(`
					CREATE UNIQUE INDEX IF NOT EXISTS idx_content_resource_key_active
					ON content ((metadata->>'resource_key'))
					WHERE deleted_at IS NULL AND metadata->>'resource_key' IS NOT NULL;
				`).Error
			},
		},
		{
			name: "20250301_content_chunk_fts",
			run: func(db *gorm.DB) error {
				return db.Exec(`
					CREATE INDEX IF NOT EXISTS idx_content_chunk_fts
					ON content_chunk
					USING GIN (to_tsvector('english', text));
				`).Error
			},
		},
		{
			name: "20250301_content_link_source",
			run: func(db *gorm.DB) error {
				return db.Exec(`
					CREATE INDEX IF NOT EXISTS idx_content_link_source
					ON content_link (source_content_id, link_type);
				`).Error
			},
		},
		{
			name: "20250414_content_status_version",
			run: func(db *gorm.DB) error {
				return db.Exec(`
					CREATE INDEX IF NOT EXISTS idx_content_status_version
					ON content (processing_status, pipeline_version)
					WHERE deleted_at IS NULL;
				`).Error
			},
		},
	}
	if err := applyOnce(db, steps); err != nil {
		return fmt.Errorf("ensure content indexes: %w", err)
	}
	return nil
}

func EnsureEntityIndexes(db *gorm.DB) error {
	steps := []migrationStep{
		{
			// normalized_name identifies an entity within its type
			name: "20250301_entity_type_normalized_unique",
			run: func(db *gorm.DB) error {
				return db.Exec(`
					CREATE UNIQUE INDEX IF NOT EXISTS idx_entity_type_normalized
					ON entity (entity_type, normalized_name)
					WHERE deleted_at IS NULL;
				`).Error
			},
		},
		{
			name: "20250301_entity_name_lower",
			run: func(db *gorm.DB) error {
				return db.Exec(`
					CREATE INDEX IF NOT EXISTS idx_entity_name_lower
					ON entity (lower(name));
				`).Error
			},
		},
	}
	if err := applyOnce(db, steps); err != nil {
		return fmt.Errorf("ensure entity indexes: %w", err)
	}
	return nil
}

func EnsureJobIndexes(db *gorm.DB) error {
	steps := []migrationStep{
		{
			// single active job per resource key; submission races resolve here
			name: "20250301_pipeline_job_active_unique",
			run: func(db *gorm.DB) error {
				return db.Exec(`
					CREATE UNIQUE INDEX IF NOT EXISTS idx_pipeline_job_active_key
					ON pipeline_job (resource_key)
					WHERE status IN ('pending', 'processing') AND deleted_at IS NULL;
				`).Error
			},
		},
		{
			name: "20250301_pipeline_job_claim_order",
			run: func(db *gorm.DB) error {
				return db.Exec(`
					CREATE INDEX IF NOT EXISTS idx_pipeline_job_claim
					ON pipeline_job (status, created_at)
					WHERE deleted_at IS NULL;
				`).Error
			},
		},
	}
	if err := applyOnce(db, steps); err != nil {
		return fmt.Errorf("ensure job indexes: %w", err)
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureContentIndexes(s.db); err != nil {
		s.log.Error("Content index migration failed", "error", err)
		return err
	}
	if err := EnsureEntityIndexes(s.db); err != nil {
		s.log.Error("Entity index migration failed", "error", err)
		return err
	}
	if err := EnsureJobIndexes(s.db); err != nil {
		s.log.Error("Job index migration failed", "error", err)
		return err
	}
	return nil
}
