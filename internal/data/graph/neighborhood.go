package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/platform/neo4jdb"
)

type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Name  string `json:"name"`
	Kind  string `json:"kind,omitempty"`
}

type Edge struct {
	FromID     string  `json:"from_id"`
	ToID       string  `json:"to_id"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence,omitempty"`
}

type NeighborhoodResult struct {
	Root  Node   `json:"root"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
	Depth int    `json:"depth"`
}

type MirrorStats struct {
	Contents int64 `json:"contents"`
	Entities int64 `json:"entities"`
	Edges    int64 `json:"edges"`
}

// Neighborhood walks the mirror around a content or entity node. Depth is
// clamped to [1,3]; neo4j cannot parameterize the hop bound so the validated
// value is formatted into the pattern.
func Neighborhood(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, id uuid.UUID, depth int) (*NeighborhoodResult, error) {
	if client == nil || client.Driver == nil {
		return nil, nil
	}
	if id == uuid.Nil {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if depth < 1 {
		depth = 1
	}
	if depth > 3 {
		depth = 3
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rootRes, err := tx.Run(ctx, `
MATCH (n {id: $id})
RETURN n.id AS id, labels(n) AS labels,
       coalesce(n.title, n.name, '') AS name,
       coalesce(n.entity_type, n.content_type, '') AS kind
LIMIT 1
`, map[string]any{"id": id.String()})
		if err != nil {
			return nil, err
		}
		if !rootRes.Next(ctx) {
			if err := rootRes.Err(); err != nil {
				return nil, err
			}
			return nil, nil
		}
		result := &NeighborhoodResult{Depth: depth}
		result.Root = nodeFromRecord(rootRes.Record())

		nodeRes, err := tx.Run(ctx, fmt.Sprintf(`
MATCH p = ({id: $id})-[*1..%d]-(m)
UNWIND nodes(p) AS n
RETURN DISTINCT n.id AS id, labels(n) AS labels,
       coalesce(n.title, n.name, '') AS name,
       coalesce(n.entity_type, n.content_type, '') AS kind
`, depth), map[string]any{"id": id.String()})
		if err != nil {
			return nil, err
		}
		for nodeRes.Next(ctx) {
			result.Nodes = append(result.Nodes, nodeFromRecord(nodeRes.Record()))
		}
		if err := nodeRes.Err(); err != nil {
			return nil, err
		}

		relRes, err := tx.Run(ctx, fmt.Sprintf(`
MATCH p = ({id: $id})-[*1..%d]-(m)
UNWIND relationships(p) AS r
RETURN DISTINCT startNode(r).id AS from_id, endNode(r).id AS to_id,
       type(r) AS rel_type, coalesce(r.confidence, 0.0) AS confidence
`, depth), map[string]any{"id": id.String()})
		if err != nil {
			return nil, err
		}
		for relRes.Next(ctx) {
			rec := relRes.Record()
			result.Edges = append(result.Edges, Edge{
				FromID:     stringValue(rec, "from_id"),
				ToID:       stringValue(rec, "to_id"),
				Type:       stringValue(rec, "rel_type"),
				Confidence: floatValue(rec, "confidence"),
			})
		}
		if err := relRes.Err(); err != nil {
			return nil, err
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return out.(*NeighborhoodResult), nil
}

// Stats counts mirror nodes and typed edges for the overview endpoint and the
// postgres<->neo4j drift check.
func Stats(ctx context.Context, client *neo4jdb.Client, log *logger.Logger) (*MirrorStats, error) {
	if client == nil || client.Driver == nil {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`
CALL { MATCH (c:Content) RETURN count(c) AS contents }
CALL { MATCH (e:Entity) RETURN count(e) AS entities }
CALL { MATCH (:Content)-[r:%s]->(:Entity) RETURN count(r) AS edges }
RETURN contents, entities, edges
`, allRelTypes), nil)
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return &MirrorStats{}, nil
		}
		rec := res.Record()
		return &MirrorStats{
			Contents: intValue(rec, "contents"),
			Entities: intValue(rec, "entities"),
			Edges:    intValue(rec, "edges"),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*MirrorStats), nil
}

func nodeFromRecord(rec *neo4j.Record) Node {
	n := Node{
		ID:   stringValue(rec, "id"),
		Name: stringValue(rec, "name"),
		Kind: stringValue(rec, "kind"),
	}
	if raw, ok := rec.Get("labels"); ok {
		if labels, ok := raw.([]any); ok && len(labels) > 0 {
			if s, ok := labels[0].(string); ok {
				n.Label = s
			}
		}
	}
	return n
}

func stringValue(rec *neo4j.Record, key string) string {
	raw, ok := rec.Get(key)
	if !ok || raw == nil {
		return ""
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", raw)
}

func floatValue(rec *neo4j.Record, key string) float64 {
	raw, ok := rec.Get(key)
	if !ok || raw == nil {
		return 0
	}
	switch v := raw.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func intValue(rec *neo4j.Record, key string) int64 {
	raw, ok := rec.Get(key)
	if !ok || raw == nil {
		return 0
	}
	switch v := raw.(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}
