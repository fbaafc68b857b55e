package repos

import (
	"github.com/yungbote/recall-backend/internal/data/repos/auth"
	"github.com/yungbote/recall-backend/internal/data/repos/contents"
	"github.com/yungbote/recall-backend/internal/data/repos/entities"
	"github.com/yungbote/recall-backend/internal/data/repos/jobs"
	"github.com/yungbote/recall-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type ContentRepo = contents.ContentRepo
type ContentChunkRepo = contents.ContentChunkRepo
type ContentLinkRepo = contents.ContentLinkRepo
type ContentFilter = contents.ContentFilter
type ChunkCandidateFilter = contents.ChunkCandidateFilter
type TagCount = contents.TagCount

type EntityRepo = entities.EntityRepo
type ContentEntityEdgeRepo = entities.ContentEntityEdgeRepo
type TagAliasRepo = entities.TagAliasRepo
type EntityFilter = entities.EntityFilter

type PipelineJobRepo = jobs.PipelineJobRepo
type JobFilter = jobs.JobFilter

type CallerRepo = auth.CallerRepo

func NewContentRepo(db *gorm.DB, baseLog *logger.Logger) ContentRepo {
	return contents.NewContentRepo(db, baseLog)
}
func NewContentChunkRepo(db *gorm.DB, baseLog *logger.Logger) ContentChunkRepo {
	return contents.NewContentChunkRepo(db, baseLog)
}
func NewContentLinkRepo(db *gorm.DB, baseLog *logger.Logger) ContentLinkRepo {
	return contents.NewContentLinkRepo(db, baseLog)
}

func NewEntityRepo(db *gorm.DB, baseLog *logger.Logger) EntityRepo {
	return entities.NewEntityRepo(db, baseLog)
}
func NewContentEntityEdgeRepo(db *gorm.DB, baseLog *logger.Logger) ContentEntityEdgeRepo {
	return entities.NewContentEntityEdgeRepo(db, baseLog)
}
func NewTagAliasRepo(db *gorm.DB, baseLog *logger.Logger) TagAliasRepo {
	return entities.NewTagAliasRepo(db, baseLog)
}

func NewPipelineJobRepo(db *gorm.DB, baseLog *logger.Logger) PipelineJobRepo {
	return jobs.NewPipelineJobRepo(db, baseLog)
}

func NewCallerRepo(db *gorm.DB, baseLog *logger.Logger) CallerRepo {
	return auth.NewCallerRepo(db, baseLog)
}
