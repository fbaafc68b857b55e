package entity

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/recall-backend/internal/data/graph"
	"github.com/yungbote/recall-backend/internal/data/repos"
	types "github.com/yungbote/recall-backend/internal/domain"
	ent "github.com/yungbote/recall-backend/internal/domain/entities"
	"github.com/yungbote/recall-backend/internal/enrich"
	"github.com/yungbote/recall-backend/internal/normalization"
	"github.com/yungbote/recall-backend/internal/observability"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/platform/neo4jdb"
)

// Edge confidences by origin. Pre-detected entities were seen literally in
// the content (a URL or a known name), topic extractions come straight from
// the model, additional entities are the model's weakest claims.
const (
	confidencePreDetected = 0.9
	confidenceTopic       = 0.85
	confidenceAdditional  = 0.7
)

// Resolution reports what one resolve pass linked to a content.
type Resolution struct {
	Entities   []*types.Entity
	Edges      []*types.ContentEntityEdge
	TopicLinks []graph.TopicLink
	Created    int
}

// Resolver turns the enricher's verdicts into entity rows and typed
// content->entity edges, creating topic ancestors as needed and mirroring
// the result to the graph store.
type Resolver interface {
	Resolve(dbc dbctx.Context, contentID uuid.UUID, detections []Detection, res *enrich.Result) (*Resolution, error)
}

type resolver struct {
	log      *logger.Logger
	entities repos.EntityRepo
	edges    repos.ContentEntityEdgeRepo
	matcher  Matcher
	graphDB  *neo4jdb.Client
}

// NewResolver wires the persistence half of entity resolution. graphDB may
// be nil; mirroring is then skipped.
func NewResolver(log *logger.Logger, entities repos.EntityRepo, edges repos.ContentEntityEdgeRepo, matcher Matcher, graphDB *neo4jdb.Client) (Resolver, error) {
	if log == nil {
		return nil, fmt.Errorf("log cannot be nil")
	}
	if entities == nil {
		return nil, fmt.Errorf("entities cannot be nil")
	}
	if edges == nil {
		return nil, fmt.Errorf("edges cannot be nil")
	}
	if matcher == nil {
		return nil, fmt.Errorf("matcher cannot be nil")
	}
	return &resolver{
		log:      log.With("service", "EntityResolver"),
		entities: entities,
		edges:    edges,
		matcher:  matcher,
		graphDB:  graphDB,
	}, nil
}

func (r *resolver) Resolve(dbc dbctx.Context, contentID uuid.UUID, detections []Detection, res *enrich.Result) (*Resolution, error) {
	if contentID == uuid.Nil {
		return nil, enrich.NewStageError(enrich.StageEntityResolve, enrich.CodeEntityResolveError, fmt.Errorf("content id required"))
	}
	if res == nil {
		return nil, enrich.NewStageError(enrich.StageEntityResolve, enrich.CodeEntityResolveError, fmt.Errorf("enrichment result required"))
	}
	if err := r.matcher.Ensure(dbc); err != nil {
		// Alias lookups degrade to misses; name lookups still work.
		r.log.Warn("keyword index unavailable for alias lookups", "error", err)
	}

	pass := &resolvePass{
		r:         r,
		dbc:       dbc,
		contentID: contentID,
		resolved:  map[string]*types.Entity{},
		edgeBest:  map[uuid.UUID]*types.ContentEntityEdge{},
	}

	if err := pass.preDetected(detections, res); err != nil {
		return nil, enrich.AsStageError(err, enrich.StageEntityResolve, enrich.CodeEntityResolveError)
	}
	if err := pass.topics(res.Topics); err != nil {
		return nil, enrich.AsStageError(err, enrich.StageEntityResolve, enrich.CodeEntityResolveError)
	}
	if err := pass.additional(res.AdditionalEntities); err != nil {
		return nil, enrich.AsStageError(err, enrich.StageEntityResolve, enrich.CodeEntityResolveError)
	}

	out := pass.finish()
	r.writeEdges(dbc, contentID, out.Edges)
	r.mirror(dbc, contentID, out)

	r.log.Info("entities resolved",
		"content_id", contentID,
		"entities", len(out.Entities),
		"created", out.Created,
		"edges", len(out.Edges))
	return out, nil
}

// resolvePass accumulates one content's entities and edges so the edge set
// can be deduplicated before the single delete-then-upsert write.
type resolvePass struct {
	r         *resolver
	dbc       dbctx.Context
	contentID uuid.UUID

	resolved   map[string]*types.Entity
	order      []*types.Entity
	created    int
	edgeBest   map[uuid.UUID]*types.ContentEntityEdge
	edgeOrder  []uuid.UUID
	topicLinks []graph.TopicLink
}

func (p *resolvePass) preDetected(detections []Detection, res *enrich.Result) error {
	for _, det := range detections {
		v, ok := res.ValidationFor(det.Name)
		if !ok || !v.Confirmed {
			continue
		}
		e, err := p.findOrCreate(det.Name, det.EntityType, det.Description, det.Metadata, det.Source)
		if err != nil {
			return err
		}
		if e == nil {
			continue
		}
		edgeType := v.EdgeType
		if !ent.ValidEdgeType(edgeType) {
			edgeType = ent.EdgeMentions
		}
		p.addEdge(e.ID, edgeType, confidencePreDetected, det.Source)
	}
	return nil
}

func (p *resolvePass) topics(topics []enrich.TopicExtraction) error {
	for _, t := range topics {
		var prev *types.Entity
		for i := range t.Path {
			topic, err := p.findOrCreateTopic(t.Path[i], t.Path[:i])
			if err != nil {
				return err
			}
			if topic == nil {
				continue
			}
			if prev != nil && prev.ID != topic.ID {
				p.topicLinks = append(p.topicLinks, graph.TopicLink{ParentID: prev.ID, ChildID: topic.ID})
			}
			prev = topic
		}
		if prev != nil {
			p.addEdge(prev.ID, ent.EdgeDiscusses, confidenceTopic, ent.SourceAIExtracted)
		}
	}
	return nil
}

func (p *resolvePass) additional(extras []enrich.ExtractedEntity) error {
	for _, x := range extras {
		e, err := p.findOrCreate(x.Name, x.EntityType, x.Description, nil, ent.SourceAIExtracted)
		if err != nil {
			return err
		}
		if e == nil {
			continue
		}
		p.addEdge(e.ID, ent.EdgeMentions, confidenceAdditional, ent.SourceAIExtracted)
	}
	return nil
}

// findOrCreate resolves by (normalized_name, entity_type), then by alias,
// then creates. Existing rows are returned untouched.
func (p *resolvePass) findOrCreate(name, entityType, description string, metadata map[string]any, source string) (*types.Entity, error) {
	name = strings.TrimSpace(name)
	normalized := normalization.Name(name)
	if name == "" || normalized == "" || !ent.ValidType(entityType) {
		return nil, nil
	}
	cacheKey := entityType + "|" + normalized
	if e, ok := p.resolved[cacheKey]; ok {
		return e, nil
	}

	e, err := p.r.entities.GetByTypeAndNormalizedName(p.dbc, entityType, normalized)
	if err != nil {
		return nil, fmt.Errorf("lookup entity %q: %w", name, err)
	}
	if e == nil {
		if id, ok := p.r.matcher.EntityByAlias(name); ok {
			e, err = p.r.entities.GetByID(p.dbc, id)
			if err != nil {
				return nil, fmt.Errorf("lookup alias target for %q: %w", name, err)
			}
		}
	}
	if e == nil {
		e, err = p.create(name, entityType, normalized, description, metadata, source, nil, "")
		if err != nil {
			return nil, err
		}
	}

	p.remember(cacheKey, e)
	return e, nil
}

// findOrCreateTopic upserts one node of a topic path. ancestors is the
// prefix of the path before this node.
func (p *resolvePass) findOrCreateTopic(name string, ancestors []string) (*types.Entity, error) {
	name = strings.TrimSpace(name)
	normalized := normalization.Name(name)
	if name == "" || normalized == "" {
		return nil, nil
	}
	cacheKey := ent.TypeTopic + "|" + normalized
	if e, ok := p.resolved[cacheKey]; ok {
		return e, nil
	}

	e, err := p.r.entities.GetByTypeAndNormalizedName(p.dbc, ent.TypeTopic, normalized)
	if err != nil {
		return nil, fmt.Errorf("lookup topic %q: %w", name, err)
	}
	if e == nil {
		parent := ""
		if len(ancestors) > 0 {
			parent = ancestors[len(ancestors)-1]
		}
		e, err = p.create(name, ent.TypeTopic, normalized, "", nil, ent.SourceAIExtracted, ancestors, parent)
		if err != nil {
			return nil, err
		}
	}

	p.remember(cacheKey, e)
	return e, nil
}

func (p *resolvePass) create(name, entityType, normalized, description string, metadata map[string]any, source string, hierarchy []string, parentTopic string) (*types.Entity, error) {
	meta := map[string]any{}
	for k, v := range metadata {
		meta[k] = v
	}
	if parentTopic != "" {
		meta[ent.MetaParentTopic] = parentTopic
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal entity metadata: %w", err)
	}
	if hierarchy == nil {
		hierarchy = []string{}
	}
	hierJSON, err := json.Marshal(hierarchy)
	if err != nil {
		return nil, fmt.Errorf("marshal entity hierarchy: %w", err)
	}

	row := &types.Entity{
		EntityType:     entityType,
		Name:           name,
		NormalizedName: normalized,
		Description:    description,
		Hierarchy:      datatypes.JSON(hierJSON),
		Metadata:       datatypes.JSON(metaJSON),
		Source:         source,
	}
	if _, err := p.r.entities.Create(p.dbc, []*types.Entity{row}); err != nil {
		return nil, fmt.Errorf("create entity %q: %w", name, err)
	}
	p.created++
	return row, nil
}

func (p *resolvePass) remember(cacheKey string, e *types.Entity) {
	if e == nil {
		return
	}
	if _, seen := p.resolved[cacheKey]; !seen {
		p.order = append(p.order, e)
	}
	p.resolved[cacheKey] = e
}

// addEdge keeps at most one edge per entity, preferring the highest
// confidence origin when several stages surface the same entity.
func (p *resolvePass) addEdge(entityID uuid.UUID, edgeType string, confidence float64, source string) {
	if entityID == uuid.Nil {
		return
	}
	if cur, ok := p.edgeBest[entityID]; ok {
		if confidence > cur.Confidence {
			cur.EdgeType = edgeType
			cur.Confidence = confidence
			cur.Source = source
		}
		return
	}
	p.edgeBest[entityID] = &types.ContentEntityEdge{
		ContentID:  p.contentID,
		EntityID:   entityID,
		EdgeType:   edgeType,
		Confidence: confidence,
		Source:     source,
	}
	p.edgeOrder = append(p.edgeOrder, entityID)
}

func (p *resolvePass) finish() *Resolution {
	edges := make([]*types.ContentEntityEdge, 0, len(p.edgeOrder))
	for _, id := range p.edgeOrder {
		edges = append(edges, p.edgeBest[id])
	}
	return &Resolution{
		Entities:   p.order,
		Edges:      edges,
		TopicLinks: p.topicLinks,
		Created:    p.created,
	}
}

// writeEdges replaces the content's edge set. Reprocessing recreates edges
// rather than accumulating them; failures here are logged, never fatal.
func (r *resolver) writeEdges(dbc dbctx.Context, contentID uuid.UUID, edges []*types.ContentEntityEdge) {
	if err := r.edges.DeleteByContentIDs(dbc, []uuid.UUID{contentID}); err != nil {
		r.log.Warn("clearing previous edges failed", "content_id", contentID, "error", err)
	}
	if len(edges) == 0 {
		return
	}
	if err := r.edges.Upsert(dbc, edges); err != nil {
		r.log.Warn("edge upsert failed", "content_id", contentID, "edges", len(edges), "error", err)
		return
	}
	metrics := observability.Current()
	for _, e := range edges {
		metrics.IncEntityEdge(e.EdgeType, e.Source)
	}
}

func (r *resolver) mirror(dbc dbctx.Context, contentID uuid.UUID, out *Resolution) {
	if r.graphDB == nil {
		return
	}
	if err := graph.SyncEntities(dbc.Ctx, r.graphDB, r.log, out.Entities, out.TopicLinks); err != nil {
		r.log.Warn("graph entity sync failed", "content_id", contentID, "error", err)
	}
	if err := graph.SyncEdges(dbc.Ctx, r.graphDB, r.log, contentID, out.Edges); err != nil {
		r.log.Warn("graph edge sync failed", "content_id", contentID, "error", err)
	}
}
