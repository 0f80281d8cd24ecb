package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/bmcp/codegraph/internal/config"
)

// Client wraps the Neo4j driver and provides code-graph operations.
type Client struct {
	driver neo4j.DriverWithContext
	logger *slog.Logger
}

// NewClient creates a new Neo4j client from configuration.
func NewClient(cfg config.Neo4jConfig, logger *slog.Logger) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Client{driver: driver, logger: logger}, nil
}

// EnsureIndexes creates canonical_id indexes for the labels MERGE and MATCH
// hit hardest. Node uniqueness is carried by gid, which the identity scheme
// already guarantees.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	session := c.Session(ctx)
	defer session.Close(ctx)
	_, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, label := range indexedLabels {
			query := fmt.Sprintf(createCanonicalIndex, "canonical_id_index_"+strings.ToLower(label), label)
			if _, err := tx.Run(ctx, query, nil); err != nil {
				return nil, fmt.Errorf("create canonical_id index for %s: %w", label, err)
			}
		}
		return nil, nil
	})
	return err
}

// Close releases the Neo4j driver resources.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// Verify checks connectivity to Neo4j.
func (c *Client) Verify(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// Session returns a new write-mode Neo4j session.
func (c *Client) Session(ctx context.Context) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
}

// ReadQuery runs a read-only Cypher query and returns the rows keyed by the
// query's return names. Callers must screen the query before passing it in;
// the session's read mode is the only guard applied here.
func (c *Client) ReadQuery(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	rows, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]map[string]any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			out = append(out, rec.AsMap())
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("read query: %w", err)
	}
	return rows, nil
}
