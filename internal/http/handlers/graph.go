package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/recall-backend/internal/data/graph"
	"github.com/yungbote/recall-backend/internal/data/repos"
	"github.com/yungbote/recall-backend/internal/http/response"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/platform/neo4jdb"
)

// bfsNodeCap bounds the SQL neighborhood walk so a hub node cannot pull the
// whole corpus into one response.
const bfsNodeCap = 500

type GraphHandler struct {
	log      *logger.Logger
	contents repos.ContentRepo
	links    repos.ContentLinkRepo
	entities repos.EntityRepo
	edges    repos.ContentEntityEdgeRepo
	graph    *neo4jdb.Client
}

func NewGraphHandler(log *logger.Logger, contents repos.ContentRepo, links repos.ContentLinkRepo, entityRepo repos.EntityRepo, edges repos.ContentEntityEdgeRepo, graphClient *neo4jdb.Client) *GraphHandler {
	return &GraphHandler{
		log:      log.With("handler", "GraphHandler"),
		contents: contents,
		links:    links,
		entities: entityRepo,
		edges:    edges,
		graph:    graphClient,
	}
}

// GET /graph
func (h *GraphHandler) Overview(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	rows, total, err := h.contents.List(dbc, repos.ContentFilter{Limit: intParam(c, "limit", 100, 200)})
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "CONTENT_LIST_FAILED", err)
		return
	}

	contentIDs := make([]uuid.UUID, 0, len(rows))
	nodes := make([]graph.Node, 0, len(rows))
	inView := map[uuid.UUID]bool{}
	for _, row := range rows {
		contentIDs = append(contentIDs, row.ID)
		inView[row.ID] = true
		nodes = append(nodes, graph.Node{ID: row.ID.String(), Label: "Content", Name: row.Title, Kind: row.ContentType})
	}

	var edges []graph.Edge
	linkRows, err := h.links.GetBySourceContentIDs(dbc, contentIDs)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "LINK_LOOKUP_FAILED", err)
		return
	}
	for _, l := range linkRows {
		if l.TargetContentID == nil || !inView[*l.TargetContentID] {
			continue
		}
		edges = append(edges, graph.Edge{
			FromID: l.SourceContentID.String(),
			ToID:   l.TargetContentID.String(),
			Type:   l.LinkType,
		})
	}

	edgeRows, err := h.edges.GetByContentIDs(dbc, contentIDs)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "EDGE_LOOKUP_FAILED", err)
		return
	}
	entityIDs := map[uuid.UUID]bool{}
	for _, e := range edgeRows {
		entityIDs[e.EntityID] = true
	}
	entityRows, err := h.entities.GetByIDs(dbc, keys(entityIDs))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "ENTITY_LOOKUP_FAILED", err)
		return
	}
	known := map[uuid.UUID]bool{}
	for _, ent := range entityRows {
		known[ent.ID] = true
		nodes = append(nodes, graph.Node{ID: ent.ID.String(), Label: "Entity", Name: ent.Name, Kind: ent.EntityType})
	}
	for _, e := range edgeRows {
		if !known[e.EntityID] {
			continue
		}
		edges = append(edges, graph.Edge{
			FromID:     e.ContentID.String(),
			ToID:       e.EntityID.String(),
			Type:       e.EdgeType,
			Confidence: e.Confidence,
		})
	}

	out := gin.H{"nodes": nodes, "edges": edges, "content_total": total}
	if stats, err := graph.Stats(c.Request.Context(), h.graph, h.log); err != nil {
		h.log.Warn("mirror stats unavailable", "error", err)
	} else if stats != nil {
		out["mirror"] = stats
	}
	response.RespondOK(c, out)
}

// GET /graph/neighborhood/:id
func (h *GraphHandler) Neighborhood(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	depth := intParam(c, "depth", 1, 3)
	if depth < 1 {
		depth = 1
	}

	result, err := graph.Neighborhood(c.Request.Context(), h.graph, h.log, id, depth)
	if err != nil {
		h.log.Warn("mirror neighborhood failed, falling back to sql", "id", id, "error", err)
	}
	if result == nil {
		result, err = h.sqlNeighborhood(dbctx.Context{Ctx: c.Request.Context()}, id, depth)
		if err != nil {
			response.RespondError(c, http.StatusInternalServerError, "NEIGHBORHOOD_FAILED", err)
			return
		}
	}
	if result == nil {
		response.RespondError(c, http.StatusNotFound, "NODE_NOT_FOUND", fmt.Errorf("no content or entity %s", id))
		return
	}
	response.RespondOK(c, result)
}

// sqlNeighborhood walks content links and entity edges breadth-first. It
// serves deployments without a graph mirror and mirrors that have not seen
// the node yet.
func (h *GraphHandler) sqlNeighborhood(dbc dbctx.Context, id uuid.UUID, depth int) (*graph.NeighborhoodResult, error) {
	root, err := h.lookupNode(dbc, id)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}

	result := &graph.NeighborhoodResult{Root: *root, Depth: depth, Nodes: []graph.Node{*root}}
	seen := map[uuid.UUID]bool{id: true}
	edgeSeen := map[string]bool{}
	rootIsContent := root.Label == "Content"

	contentFrontier := []uuid.UUID{}
	entityFrontier := []uuid.UUID{}
	if rootIsContent {
		contentFrontier = append(contentFrontier, id)
	} else {
		entityFrontier = append(entityFrontier, id)
	}

	addEdge := func(e graph.Edge) {
		key := e.FromID + "|" + e.ToID + "|" + e.Type
		if edgeSeen[key] {
			return
		}
		edgeSeen[key] = true
		result.Edges = append(result.Edges, e)
	}

	for hop := 0; hop < depth; hop++ {
		if len(contentFrontier) == 0 && len(entityFrontier) == 0 {
			break
		}
		if len(seen) >= bfsNodeCap {
			break
		}
		nextContents := map[uuid.UUID]bool{}
		nextEntities := map[uuid.UUID]bool{}

		if len(contentFrontier) > 0 {
			out, err := h.links.GetBySourceContentIDs(dbc, contentFrontier)
			if err != nil {
				return nil, err
			}
			for _, l := range out {
				if l.TargetContentID == nil {
					continue
				}
				addEdge(graph.Edge{FromID: l.SourceContentID.String(), ToID: l.TargetContentID.String(), Type: l.LinkType})
				nextContents[*l.TargetContentID] = true
			}
			in, err := h.links.GetByTargetContentIDs(dbc, contentFrontier)
			if err != nil {
				return nil, err
			}
			for _, l := range in {
				addEdge(graph.Edge{FromID: l.SourceContentID.String(), ToID: l.TargetContentID.String(), Type: l.LinkType})
				nextContents[l.SourceContentID] = true
			}
			edgeRows, err := h.edges.GetByContentIDs(dbc, contentFrontier)
			if err != nil {
				return nil, err
			}
			for _, e := range edgeRows {
				addEdge(graph.Edge{FromID: e.ContentID.String(), ToID: e.EntityID.String(), Type: e.EdgeType, Confidence: e.Confidence})
				nextEntities[e.EntityID] = true
			}
		}
		if len(entityFrontier) > 0 {
			edgeRows, err := h.edges.GetByEntityIDs(dbc, entityFrontier)
			if err != nil {
				return nil, err
			}
			for _, e := range edgeRows {
				addEdge(graph.Edge{FromID: e.ContentID.String(), ToID: e.EntityID.String(), Type: e.EdgeType, Confidence: e.Confidence})
				nextContents[e.ContentID] = true
			}
		}

		contentFrontier = contentFrontier[:0]
		entityFrontier = entityFrontier[:0]
		for cid := range nextContents {
			if seen[cid] || len(seen) >= bfsNodeCap {
				continue
			}
			seen[cid] = true
			contentFrontier = append(contentFrontier, cid)
		}
		for eid := range nextEntities {
			if seen[eid] || len(seen) >= bfsNodeCap {
				continue
			}
			seen[eid] = true
			entityFrontier = append(entityFrontier, eid)
		}

		contentRows, err := h.contents.GetByIDs(dbc, contentFrontier)
		if err != nil {
			return nil, err
		}
		for _, row := range contentRows {
			result.Nodes = append(result.Nodes, graph.Node{ID: row.ID.String(), Label: "Content", Name: row.Title, Kind: row.ContentType})
		}
		entityRows, err := h.entities.GetByIDs(dbc, entityFrontier)
		if err != nil {
			return nil, err
		}
		for _, row := range entityRows {
			result.Nodes = append(result.Nodes, graph.Node{ID: row.ID.String(), Label: "Entity", Name: row.Name, Kind: row.EntityType})
		}
	}

	// Drop edges pointing outside the walked set; the mirror query has the
	// same property because it unwinds relationships of matched paths.
	inSet := map[string]bool{id.String(): true}
	for _, n := range result.Nodes {
		inSet[n.ID] = true
	}
	kept := result.Edges[:0]
	for _, e := range result.Edges {
		if inSet[e.FromID] && inSet[e.ToID] {
			kept = append(kept, e)
		}
	}
	result.Edges = kept
	return result, nil
}

func (h *GraphHandler) lookupNode(dbc dbctx.Context, id uuid.UUID) (*graph.Node, error) {
	row, err := h.contents.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if row != nil {
		return &graph.Node{ID: row.ID.String(), Label: "Content", Name: row.Title, Kind: row.ContentType}, nil
	}
	ent, err := h.entities.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if ent != nil {
		return &graph.Node{ID: ent.ID.String(), Label: "Entity", Name: ent.Name, Kind: ent.EntityType}, nil
	}
	return nil, nil
}

func keys(m map[uuid.UUID]bool) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
