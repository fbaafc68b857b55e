package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/recall-backend/internal/data/graph"
	"github.com/yungbote/recall-backend/internal/data/repos"
	types "github.com/yungbote/recall-backend/internal/domain"
	"github.com/yungbote/recall-backend/internal/domain/entities"
	"github.com/yungbote/recall-backend/internal/http/response"
	"github.com/yungbote/recall-backend/internal/normalization"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/platform/neo4jdb"
)

type EntityHandler struct {
	log      *logger.Logger
	entities repos.EntityRepo
	edges    repos.ContentEntityEdgeRepo
	contents repos.ContentRepo
	graph    *neo4jdb.Client
}

func NewEntityHandler(log *logger.Logger, entityRepo repos.EntityRepo, edges repos.ContentEntityEdgeRepo, contents repos.ContentRepo, graphClient *neo4jdb.Client) *EntityHandler {
	return &EntityHandler{
		log:      log.With("handler", "EntityHandler"),
		entities: entityRepo,
		edges:    edges,
		contents: contents,
		graph:    graphClient,
	}
}

// GET /entities
func (h *EntityHandler) List(c *gin.Context) {
	filter := repos.EntityFilter{
		Types:  csvParam(c, "type"),
		Search: c.Query("q"),
		Source: c.Query("source"),
		Limit:  intParam(c, "limit", 50, 500),
		Offset: intParam(c, "offset", 0, 1<<30),
	}
	items, total, err := h.entities.List(dbctx.Context{Ctx: c.Request.Context()}, filter)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "ENTITY_LIST_FAILED", err)
		return
	}
	response.RespondOK(c, gin.H{"entities": items, "total": total})
}

// GET /entities/:id
func (h *EntityHandler) Get(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	ent, err := h.entities.GetByID(dbc, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "ENTITY_LOOKUP_FAILED", err)
		return
	}
	if ent == nil {
		response.RespondError(c, http.StatusNotFound, "ENTITY_NOT_FOUND", fmt.Errorf("entity %s not found", id))
		return
	}
	counts, err := h.edges.CountByEntityIDs(dbc, []uuid.UUID{id})
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "EDGE_COUNT_FAILED", err)
		return
	}
	response.RespondOK(c, gin.H{"entity": ent, "content_count": counts[id]})
}

// GET /entities/:id/content
func (h *EntityHandler) Content(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	ent, err := h.entities.GetByID(dbc, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "ENTITY_LOOKUP_FAILED", err)
		return
	}
	if ent == nil {
		response.RespondError(c, http.StatusNotFound, "ENTITY_NOT_FOUND", fmt.Errorf("entity %s not found", id))
		return
	}
	edgeRows, err := h.edges.GetByEntityIDs(dbc, []uuid.UUID{id})
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "EDGE_LOOKUP_FAILED", err)
		return
	}
	contentIDs := make([]uuid.UUID, 0, len(edgeRows))
	for _, e := range edgeRows {
		contentIDs = append(contentIDs, e.ContentID)
	}
	rows, err := h.contents.GetByIDs(dbc, contentIDs)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "CONTENT_LOOKUP_FAILED", err)
		return
	}
	byID := make(map[uuid.UUID]*types.Content, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	type linkedContent struct {
		Content    *types.Content `json:"content"`
		EdgeType   string         `json:"edge_type"`
		Confidence float64        `json:"confidence"`
	}
	out := make([]linkedContent, 0, len(edgeRows))
	for _, e := range edgeRows {
		row, ok := byID[e.ContentID]
		if !ok {
			continue
		}
		out = append(out, linkedContent{Content: row, EdgeType: e.EdgeType, Confidence: e.Confidence})
	}
	response.RespondOK(c, gin.H{"entity": ent, "content": out, "total": len(out)})
}

// topicNode is one node of the topic hierarchy tree. Children are ordered
// by name for stable output.
type topicNode struct {
	ID       uuid.UUID    `json:"id"`
	Name     string       `json:"name"`
	Children []*topicNode `json:"children,omitempty"`
}

// GET /entities/topics
func (h *EntityHandler) Topics(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	topics, err := h.listAll(dbc, []string{entities.TypeTopic})
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "ENTITY_LIST_FAILED", err)
		return
	}
	response.RespondOK(c, gin.H{"topics": buildTopicTree(topics), "total": len(topics)})
}

// listAll pages through every entity of the given types.
func (h *EntityHandler) listAll(dbc dbctx.Context, entityTypes []string) ([]*types.Entity, error) {
	const page = 200
	var out []*types.Entity
	offset := 0
	for {
		rows, _, err := h.entities.List(dbc, repos.EntityFilter{Types: entityTypes, Limit: page, Offset: offset})
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
		if len(rows) < page {
			return out, nil
		}
		offset += page
	}
}

// buildTopicTree arranges topic entities by their hierarchy paths. The
// resolver upserts every ancestor, so parents normally exist; topics whose
// parent is missing anyway surface as roots rather than vanishing.
func buildTopicTree(topics []*types.Entity) []*topicNode {
	type keyed struct {
		ent  *types.Entity
		path []string
	}
	items := make([]keyed, 0, len(topics))
	for _, t := range topics {
		var ancestors []string
		if len(t.Hierarchy) > 0 {
			_ = json.Unmarshal(t.Hierarchy, &ancestors)
		}
		items = append(items, keyed{ent: t, path: append(ancestors, t.Name)})
	}
	// Parents before children, siblings alphabetical.
	sort.Slice(items, func(i, j int) bool {
		if len(items[i].path) != len(items[j].path) {
			return len(items[i].path) < len(items[j].path)
		}
		return strings.Join(items[i].path, "/") < strings.Join(items[j].path, "/")
	})

	nodes := map[string]*topicNode{}
	var roots []*topicNode
	for _, it := range items {
		key := normalizedPath(it.path)
		if _, dup := nodes[key]; dup {
			continue
		}
		node := &topicNode{ID: it.ent.ID, Name: it.ent.Name}
		nodes[key] = node
		if len(it.path) > 1 {
			if parent, ok := nodes[normalizedPath(it.path[:len(it.path)-1])]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}

func normalizedPath(parts []string) string {
	norm := make([]string, 0, len(parts))
	for _, p := range parts {
		norm = append(norm, normalization.Name(p))
	}
	return strings.Join(norm, "/")
}

// GET /entities/duplicates?max_distance=N
func (h *EntityHandler) Duplicates(c *gin.Context) {
	maxDistance := intParam(c, "max_distance", 2, 5)
	items, err := h.listAll(dbctx.Context{Ctx: c.Request.Context()}, csvParam(c, "type"))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "ENTITY_LIST_FAILED", err)
		return
	}
	// Names only collide within a type; repo "vim" and person "Vim" are not
	// duplicates of each other.
	byType := map[string][]*types.Entity{}
	for _, e := range items {
		byType[e.EntityType] = append(byType[e.EntityType], e)
	}
	type dupGroup struct {
		EntityType string          `json:"entity_type"`
		Entities   []*types.Entity `json:"entities"`
	}
	var groups []dupGroup
	for _, entityType := range sortedKeys(byType) {
		found := normalization.NearDuplicateGroups(byType[entityType], func(e *types.Entity) string {
			return e.NormalizedName
		}, maxDistance)
		for _, g := range found {
			groups = append(groups, dupGroup{EntityType: entityType, Entities: g})
		}
	}
	response.RespondOK(c, gin.H{"groups": groups, "max_distance": maxDistance})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type entityPatch struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	AddAliases  []string `json:"add_aliases"`
}

// PATCH /entities/:id
func (h *EntityHandler) Patch(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req entityPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	if req.Name == nil && req.Description == nil && len(req.AddAliases) == 0 {
		response.RespondError(c, http.StatusBadRequest, "EMPTY_PATCH", fmt.Errorf("no updatable fields in body"))
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	ent, err := h.entities.GetByID(dbc, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "ENTITY_LOOKUP_FAILED", err)
		return
	}
	if ent == nil {
		response.RespondError(c, http.StatusNotFound, "ENTITY_NOT_FOUND", fmt.Errorf("entity %s not found", id))
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			response.RespondError(c, http.StatusBadRequest, "INVALID_NAME", fmt.Errorf("name must not be empty"))
			return
		}
		normalized := normalization.Name(name)
		existing, err := h.entities.GetByTypeAndNormalizedName(dbc, ent.EntityType, normalized)
		if err != nil {
			response.RespondError(c, http.StatusInternalServerError, "ENTITY_LOOKUP_FAILED", err)
			return
		}
		if existing != nil && existing.ID != ent.ID {
			response.RespondError(c, http.StatusConflict, "ENTITY_EXISTS",
				fmt.Errorf("%s %q already exists", ent.EntityType, name))
			return
		}
		updates["name"] = name
		updates["normalized_name"] = normalized
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if len(req.AddAliases) > 0 {
		merged, err := mergeAliases(ent.Metadata, req.AddAliases)
		if err != nil {
			response.RespondError(c, http.StatusInternalServerError, "ENTITY_UPDATE_FAILED", err)
			return
		}
		updates["metadata"] = merged
	}

	if err := h.entities.UpdateFields(dbc, id, updates); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "ENTITY_UPDATE_FAILED", err)
		return
	}
	fresh, err := h.entities.GetByID(dbc, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "ENTITY_LOOKUP_FAILED", err)
		return
	}
	if fresh != nil {
		if err := graph.SyncEntities(c.Request.Context(), h.graph, h.log, []*types.Entity{fresh}, nil); err != nil {
			h.log.Warn("entity mirror sync failed", "entity_id", id, "error", err)
		}
	}
	response.RespondOK(c, gin.H{"entity": fresh})
}

// mergeAliases appends normalized alias variants to metadata.aliases,
// keeping prior entries and order.
func mergeAliases(metadata datatypes.JSON, additions []string) (datatypes.JSON, error) {
	meta := map[string]any{}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &meta)
	}
	var aliases []string
	if raw, ok := meta[entities.MetaAliases]; ok {
		if list, ok := raw.([]any); ok {
			for _, v := range list {
				if s, ok := v.(string); ok {
					aliases = append(aliases, s)
				}
			}
		}
	}
	seen := map[string]bool{}
	for _, a := range aliases {
		seen[normalization.Name(a)] = true
	}
	for _, a := range additions {
		n := normalization.Name(a)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		aliases = append(aliases, n)
	}
	meta[entities.MetaAliases] = aliases
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// DELETE /entities/:id
func (h *EntityHandler) Delete(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	ent, err := h.entities.GetByID(dbc, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "ENTITY_LOOKUP_FAILED", err)
		return
	}
	if ent == nil {
		response.RespondError(c, http.StatusNotFound, "ENTITY_NOT_FOUND", fmt.Errorf("entity %s not found", id))
		return
	}
	if err := h.edges.DeleteByEntityIDs(dbc, []uuid.UUID{id}); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "EDGE_DELETE_FAILED", err)
		return
	}
	if err := h.entities.SoftDelete(dbc, id); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "ENTITY_DELETE_FAILED", err)
		return
	}
	if err := graph.RemoveEntity(c.Request.Context(), h.graph, h.log, id); err != nil {
		h.log.Warn("entity mirror removal failed", "entity_id", id, "error", err)
	}
	response.RespondOK(c, gin.H{"deleted": id})
}
