package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ErrNotFound is returned when a node lookup matches nothing.
var ErrNotFound = errors.New("graph: node not found")

// Node is a read-side view of a graph node.
type Node struct {
	GID         string         `json:"gid"`
	CanonicalID string         `json:"canonical_id"`
	Labels      []string       `json:"labels"`
	Properties  map[string]any `json:"properties"`
}

// NodeByGID fetches a single node by its graph key.
func (c *Client) NodeByGID(ctx context.Context, gid string) (Node, error) {
	nodes, err := c.queryNodes(ctx, nodeByGID, map[string]any{"gid": gid})
	if err != nil {
		return Node{}, err
	}
	if len(nodes) == 0 {
		return Node{}, ErrNotFound
	}
	return nodes[0], nil
}

// NodeByCanonicalID fetches a single node by canonical id.
func (c *Client) NodeByCanonicalID(ctx context.Context, canonicalID string) (Node, error) {
	nodes, err := c.queryNodes(ctx, nodeByCanonicalID, map[string]any{"canonical_id": canonicalID})
	if err != nil {
		return Node{}, err
	}
	if len(nodes) == 0 {
		return Node{}, ErrNotFound
	}
	return nodes[0], nil
}

// Callers returns nodes with a CALLS or CALLS_API edge into the given node.
func (c *Client) Callers(ctx context.Context, gid string) ([]Node, error) {
	return c.queryNodes(ctx, callersOfNode, map[string]any{"gid": gid})
}

// Callees returns nodes the given node calls.
func (c *Client) Callees(ctx context.Context, gid string) ([]Node, error) {
	return c.queryNodes(ctx, calleesOfNode, map[string]any{"gid": gid})
}

// EndpointsByPath returns ApiEndpoint nodes whose route matches path.
func (c *Client) EndpointsByPath(ctx context.Context, path string) ([]Node, error) {
	return c.queryNodes(ctx, endpointsByPath, map[string]any{"path": path})
}

// APICallsByPath returns stored ApiCall nodes targeting the given URL path.
func (c *Client) APICallsByPath(ctx context.Context, path string) ([]Node, error) {
	return c.queryNodes(ctx, apiCallsByPath, map[string]any{"path": path})
}

// TablesByName returns Table nodes matching name case-insensitively.
func (c *Client) TablesByName(ctx context.Context, name string) ([]Node, error) {
	return c.queryNodes(ctx, tablesByName, map[string]any{"name": name})
}

// QueriesReferencingTable returns DatabaseQuery nodes whose extracted table
// list contains name.
func (c *Client) QueriesReferencingTable(ctx context.Context, name string) ([]Node, error) {
	return c.queryNodes(ctx, queriesReferencingTable, map[string]any{"name": name})
}

func (c *Client) queryNodes(ctx context.Context, query string, params map[string]any) ([]Node, error) {
	session := c.Session(ctx)
	defer session.Close(ctx)

	rows, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var out []Node
		for result.Next(ctx) {
			rec := result.Record()
			n := Node{Properties: map[string]any{}}
			if v, ok := rec.Get("gid"); ok && v != nil {
				n.GID, _ = v.(string)
			}
			if v, ok := rec.Get("canonical_id"); ok && v != nil {
				n.CanonicalID, _ = v.(string)
			}
			if v, ok := rec.Get("labels"); ok && v != nil {
				if raw, ok := v.([]any); ok {
					for _, l := range raw {
						if s, ok := l.(string); ok {
							n.Labels = append(n.Labels, s)
						}
					}
				}
			}
			if v, ok := rec.Get("props"); ok && v != nil {
				if m, ok := v.(map[string]any); ok {
					n.Properties = m
				}
			}
			out = append(out, n)
		}
		return out, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	return rows.([]Node), nil
}
