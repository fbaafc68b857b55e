package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/recall-backend/internal/data/repos"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

type Repos struct {
	Contents   repos.ContentRepo
	Chunks     repos.ContentChunkRepo
	Links      repos.ContentLinkRepo
	Entities   repos.EntityRepo
	Edges      repos.ContentEntityEdgeRepo
	TagAliases repos.TagAliasRepo
	Jobs       repos.PipelineJobRepo
	Callers    repos.CallerRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Contents:   repos.NewContentRepo(db, log),
		Chunks:     repos.NewContentChunkRepo(db, log),
		Links:      repos.NewContentLinkRepo(db, log),
		Entities:   repos.NewEntityRepo(db, log),
		Edges:      repos.NewContentEntityEdgeRepo(db, log),
		TagAliases: repos.NewTagAliasRepo(db, log),
		Jobs:       repos.NewPipelineJobRepo(db, log),
		Callers:    repos.NewCallerRepo(db, log),
	}
}
