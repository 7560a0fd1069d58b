// Package export pushes the entity graph to external graph databases.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/brunobiangulo/nelgraph/graph"
	"github.com/brunobiangulo/nelgraph/kb"
)

const defaultTimeout = 10 * time.Second

// Config configures the Neo4j connection. An empty URI disables the sink.
type Config struct {
	URI      string        `json:"uri" yaml:"uri"`
	User     string        `json:"user" yaml:"user"`
	Password string        `json:"password" yaml:"password"`
	Database string        `json:"database" yaml:"database"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

// PushStats reports what a Push wrote.
type PushStats struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// Neo4jSink writes entities as (:Entity) nodes and edges as [:RELATED]
// relationships.
type Neo4jSink struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jSink connects and verifies connectivity. It returns nil, nil when
// no URI is configured.
func NewNeo4jSink(ctx context.Context, cfg Config) (*Neo4jSink, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, nil
	}
	user := cfg.User
	if user == "" {
		user = "neo4j"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, cfg.Password, ""), func(c *neo4j.Config) {
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("export.NewNeo4jSink: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("export.NewNeo4jSink: verify connectivity: %w", err)
	}

	slog.Info("export: connected to neo4j", "uri", uri, "database", cfg.Database)
	return &Neo4jSink{driver: driver, database: cfg.Database}, nil
}

// Push merges the graph into Neo4j in a single write transaction. Entity
// properties come from k when the node is a knowledge-base entity.
func (s *Neo4jSink) Push(ctx context.Context, k *kb.KB, kg *graph.KnowledgeGraph) (PushStats, error) {
	nodes := nodeRows(k, kg)
	edges := edgeRows(kg)

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	if res, err := session.Run(ctx,
		`CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`, nil); err != nil {
		slog.Warn("export: neo4j schema init failed (continuing)", "error", err)
	} else {
		_, _ = res.Consume(ctx)
	}

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
		if len(edges) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $edges AS r
MATCH (a:Entity {id: r.source})
MATCH (b:Entity {id: r.target})
MERGE (a)-[e:RELATED]->(b)
SET e.types = r.types,
    e.type = r.type,
    e.weight = r.weight
`, map[string]any{"edges": edges})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return PushStats{}, fmt.Errorf("export.Push: %w", err)
	}

	stats := PushStats{Nodes: len(nodes), Edges: len(edges)}
	slog.Info("export: pushed graph to neo4j", "nodes", stats.Nodes, "edges", stats.Edges)
	return stats, nil
}

// Close releases the driver. It is safe on a nil sink.
func (s *Neo4jSink) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	err := s.driver.Close(ctx)
	s.driver = nil
	return err
}

func nodeRows(k *kb.KB, kg *graph.KnowledgeGraph) []map[string]any {
	nodes := kg.Nodes()
	rows := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		row := map[string]any{
			"id":    n.KBID,
			"name":  n.Name,
			"type":  n.Type,
			"color": graph.ColorFor(n.Type),
		}
		if k != nil {
			if e, ok := k.Get(n.KBID); ok {
				row["description"] = e.Description
				row["wikipedia"] = e.Wikipedia
				row["aliases"] = append([]string{}, e.Aliases...)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func edgeRows(kg *graph.KnowledgeGraph) []map[string]any {
	edges := kg.Edges()
	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		types := append([]string{}, e.Types...)
		primary := ""
		if len(types) > 0 {
			primary = types[0]
		}
		rows = append(rows, map[string]any{
			"source": e.F.KBID,
			"target": e.T.KBID,
			"type":   primary,
			"types":  types,
			"weight": e.W,
		})
	}
	return rows
}
