package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/yungbote/recall-backend/internal/domain"
	ent "github.com/yungbote/recall-backend/internal/domain/entities"
	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/platform/neo4jdb"
)

// The neo4j mirror shadows the postgres entity graph for neighborhood-style
// traversals. Postgres stays the source of truth: every function here is a
// no-op on a nil client and callers log (never propagate) sync failures.

// TopicLink is a parent -> child relationship between topic entities.
type TopicLink struct {
	ParentID uuid.UUID
	ChildID  uuid.UUID
}

func EnsureSchema(ctx context.Context, client *neo4jdb.Client, log *logger.Logger) {
	if client == nil || client.Driver == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	stmts := []string{
		`CREATE CONSTRAINT content_id_unique IF NOT EXISTS FOR (c:Content) REQUIRE c.id IS UNIQUE`,
		`CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`,
		`CREATE INDEX entity_normalized_name IF NOT EXISTS FOR (e:Entity) ON (e.normalized_name)`,
	}
	for _, q := range stmts {
		if res, err := session.Run(ctx, q, nil); err != nil {
			if log != nil {
				log.Warn("neo4j schema init failed (continuing)", "error", err)
			}
		} else {
			_, _ = res.Consume(ctx)
		}
	}
}

func SyncContent(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, resourceKey string, c *types.Content) error {
	if client == nil || client.Driver == nil {
		return nil
	}
	if c == nil || c.ID == uuid.Nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	node := map[string]any{
		"id":           c.ID.String(),
		"resource_key": resourceKey,
		"content_type": c.ContentType,
		"title":        truncateString(c.Title, 500),
		"author":       c.Author,
		"tier":         c.Tier,
		"quality_score": func() int64 {
			if c.QualityScore == nil {
				return 0
			}
			return int64(*c.QualityScore)
		}(),
		"status":     c.ProcessingStatus,
		"created_at": c.CreatedAt.UTC().Format(time.RFC3339Nano),
		"synced_at":  now,
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (c:Content {id: $node.id})
SET c += $node
`, map[string]any{"node": node})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

func SyncEntities(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, entities []*types.Entity, links []TopicLink) error {
	if client == nil || client.Driver == nil {
		return nil
	}
	if len(entities) == 0 && len(links) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	nodes := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		if e == nil || e.ID == uuid.Nil {
			continue
		}
		nodes = append(nodes, map[string]any{
			"id":              e.ID.String(),
			"entity_type":     e.EntityType,
			"name":            e.Name,
			"normalized_name": e.NormalizedName,
			"description":     truncateString(e.Description, 900),
			"source":          e.Source,
			"hierarchy_json": func() string {
				if len(e.Hierarchy) == 0 {
					return ""
				}
				return string(e.Hierarchy)
			}(),
			"created_at": e.CreatedAt.UTC().Format(time.RFC3339Nano),
			"synced_at":  now,
		})
	}

	linkRels := make([]map[string]any, 0, len(links))
	for _, l := range links {
		if l.ParentID == uuid.Nil || l.ChildID == uuid.Nil || l.ParentID == l.ChildID {
			continue
		}
		linkRels = append(linkRels, map[string]any{
			"parent_id": l.ParentID.String(),
			"child_id":  l.ChildID.String(),
			"synced_at": now,
		})
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if len(nodes) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $nodes AS n
MERGE (e:Entity {id: n.id})
SET e += n
`, map[string]any{"nodes": nodes})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}

		if len(linkRels) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $rels AS r
MERGE (p:Entity {id: r.parent_id})
MERGE (c:Entity {id: r.child_id})
MERGE (p)-[e:PARENT_OF]->(c)
SET e.synced_at = r.synced_at
`, map[string]any{"rels": linkRels})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// SyncEdges replaces the typed content->entity relationships for one content.
// Reprocessing rewrites a content's edge set, so stale relationships from the
// previous run are cleared first.
func SyncEdges(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, contentID uuid.UUID, edges []*types.ContentEntityEdge) error {
	if client == nil || client.Driver == nil {
		return nil
	}
	if contentID == uuid.Nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	byType := map[string][]map[string]any{}
	for _, e := range edges {
		if e == nil || e.ContentID == uuid.Nil || e.EntityID == uuid.Nil {
			continue
		}
		if e.ContentID != contentID {
			continue
		}
		rel := relTypeFor(e.EdgeType)
		if rel == "" {
			continue
		}
		byType[rel] = append(byType[rel], map[string]any{
			"content_id": e.ContentID.String(),
			"entity_id":  e.EntityID.String(),
			"confidence": e.Confidence,
			"source":     e.Source,
			"synced_at":  now,
		})
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`
MATCH (c:Content {id: $id})-[e:%s]->(:Entity)
DELETE e
`, allRelTypes), map[string]any{"id": contentID.String()})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		for rel, rels := range byType {
			res, err := tx.Run(ctx, fmt.Sprintf(`
UNWIND $rels AS r
MERGE (c:Content {id: r.content_id})
MERGE (e:Entity {id: r.entity_id})
MERGE (c)-[x:%s]->(e)
SET x.confidence = r.confidence,
    x.source = r.source,
    x.synced_at = r.synced_at
`, rel), map[string]any{"rels": rels})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func RemoveContent(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, contentID uuid.UUID) error {
	if client == nil || client.Driver == nil {
		return nil
	}
	if contentID == uuid.Nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:Content {id: $id})
DETACH DELETE c
`, map[string]any{"id": contentID.String()})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

func RemoveEntity(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, entityID uuid.UUID) error {
	if client == nil || client.Driver == nil {
		return nil
	}
	if entityID == uuid.Nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (e:Entity {id: $id})
DETACH DELETE e
`, map[string]any{"id": entityID.String()})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

// allRelTypes is the Cypher alternation of every typed content->entity
// relationship, used when clearing a content's edge set.
const allRelTypes = "DISCUSSES|MENTIONS|USES|CITES|DEMONSTRATES"

func relTypeFor(edgeType string) string {
	switch edgeType {
	case ent.EdgeDiscusses:
		return "DISCUSSES"
	case ent.EdgeMentions:
		return "MENTIONS"
	case ent.EdgeUses:
		return "USES"
	case ent.EdgeCites:
		return "CITES"
	case ent.EdgeDemonstrates:
		return "DEMONSTRATES"
	}
	return ""
}

func truncateString(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}
