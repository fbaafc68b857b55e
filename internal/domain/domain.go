package domain

import (
	"github.com/yungbote/recall-backend/internal/domain/auth"
	"github.com/yungbote/recall-backend/internal/domain/content"
	"github.com/yungbote/recall-backend/internal/domain/entities"
	"github.com/yungbote/recall-backend/internal/domain/jobs"
)

// Aliases so call sites can import a single package for model types.

type Content = content.Content
type ContentChunk = content.ContentChunk
type ContentLink = content.ContentLink

type Entity = entities.Entity
type ContentEntityEdge = entities.ContentEntityEdge
type TagAlias = entities.TagAlias

type PipelineJob = jobs.PipelineJob

type Caller = auth.Caller
