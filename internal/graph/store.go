package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/bmcp/codegraph/pkg/models"
)

// labelPattern accepts exactly the label shapes the resolver produces,
// including Original_<type> for unmapped analyzer types.
var labelPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func validLabel(label string) bool {
	return labelPattern.MatchString(label)
}

// pendingRel is one PendingRelationship row read back from the graph.
type pendingRel struct {
	SourceGID         string
	TargetCanonicalID string
	Type              string
	Props             map[string]any
}

// UpsertNodes merges node stubs by gid, grouped by label set so each group
// is a single UNWIND statement. After each group it opportunistically
// resolves pendings that reference the new nodes from either side.
func (c *Client) UpsertNodes(ctx context.Context, nodes []models.NodeStub) error {
	if len(nodes) == 0 {
		return nil
	}

	groups := make(map[string][]models.NodeStub)
	for _, n := range nodes {
		labels := n.Labels
		if len(labels) == 0 {
			labels = []string{"Node"}
		}
		for _, l := range labels {
			if !validLabel(l) {
				return fmt.Errorf("invalid node label %q", l)
			}
		}
		groups[strings.Join(labels, ":")] = append(groups[strings.Join(labels, ":")], n)
	}

	// deterministic group order keeps retries and logs stable
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	session := c.Session(ctx)
	defer session.Close(ctx)

	for _, labelStr := range keys {
		group := groups[labelStr]
		batch := make([]map[string]any, 0, len(group))
		canonicalIDs := make([]string, 0, len(group))
		for _, n := range group {
			batch = append(batch, map[string]any{
				"gid":   n.GID,
				"props": nodeProps(n),
			})
			canonicalIDs = append(canonicalIDs, n.CanonicalID)
		}

		query := fmt.Sprintf(upsertNodes, labelStr)
		_, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, query, map[string]any{"batch": batch})
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("upsert %d nodes (%s): %w", len(group), labelStr, err)
		}
		c.logger.Debug("upserted nodes",
			slog.Int("count", len(group)), slog.String("labels", labelStr))

		for _, cid := range canonicalIDs {
			if err := c.resolvePendingForNode(ctx, session, cid); err != nil {
				c.logger.Warn("opportunistic pending resolution failed",
					slog.String("canonical_id", cid), slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

// nodeProps flattens a stub into the property map stored on the node.
func nodeProps(n models.NodeStub) map[string]any {
	props := make(map[string]any, len(n.Properties)+4)
	for k, v := range n.Properties {
		props[k] = v
	}
	props["gid"] = n.GID
	props["canonical_id"] = n.CanonicalID
	props["name"] = n.Name
	props["file_path"] = n.FilePath
	props["language"] = n.Language
	return props
}

// UpsertRelationships merges relationship stubs grouped by type. Stubs whose
// source or target is missing become PendingRelationship placeholders in the
// same session, so no edge is ever silently lost.
func (c *Client) UpsertRelationships(ctx context.Context, rels []models.RelStub) error {
	if len(rels) == 0 {
		return nil
	}

	groups := make(map[string][]models.RelStub)
	for _, r := range rels {
		relType := r.Type
		if relType == "" {
			relType = models.RelRelatedTo
		}
		if !models.ValidRelationshipType(relType) {
			return fmt.Errorf("relationship type %q not in vocabulary", r.Type)
		}
		groups[relType] = append(groups[relType], r)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	session := c.Session(ctx)
	defer session.Close(ctx)

	for _, relType := range keys {
		group := groups[relType]
		if err := c.upsertRelationshipGroup(ctx, session, relType, group); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) upsertRelationshipGroup(ctx context.Context, session neo4j.SessionWithContext,
	relType string, group []models.RelStub) error {

	batch := make([]map[string]any, 0, len(group))
	for _, r := range group {
		props := r.Properties
		if props == nil {
			props = map[string]any{}
		}
		batch = append(batch, map[string]any{
			"source_gid":          r.SourceGID,
			"target_canonical_id": r.TargetCanonicalID,
			"props":               props,
		})
	}

	query := fmt.Sprintf(upsertRelationships, relType)
	created, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{"batch": batch})
		if err != nil {
			return nil, err
		}
		pairs := make(map[[2]string]bool)
		for result.Next(ctx) {
			rec := result.Record()
			src, _ := rec.Get("source_gid")
			tgt, _ := rec.Get("target_canonical_id")
			pairs[[2]string{src.(string), tgt.(string)}] = true
		}
		return pairs, result.Err()
	})
	if err != nil {
		return fmt.Errorf("upsert %d relationships (%s): %w", len(group), relType, err)
	}

	createdPairs := created.(map[[2]string]bool)
	var pending []map[string]any
	for _, r := range group {
		if createdPairs[[2]string{r.SourceGID, r.TargetCanonicalID}] {
			continue
		}
		propsJSON, err := json.Marshal(r.Properties)
		if err != nil {
			return fmt.Errorf("marshal pending relationship properties: %w", err)
		}
		pending = append(pending, map[string]any{
			"source_gid":          r.SourceGID,
			"target_canonical_id": r.TargetCanonicalID,
			"type":                relType,
			"props_json":          string(propsJSON),
		})
	}
	if len(pending) == 0 {
		return nil
	}

	_, err = neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, createPendingRelationships, map[string]any{"batch": pending})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("create %d pending relationships (%s): %w", len(pending), relType, err)
	}
	c.logger.Info("created pending relationships",
		slog.Int("count", len(pending)), slog.String("type", relType))
	return nil
}

// resolvePendingForNode resolves placeholders that reference canonicalID as
// target, then placeholders whose source is the node carrying canonicalID.
func (c *Client) resolvePendingForNode(ctx context.Context, session neo4j.SessionWithContext, canonicalID string) error {
	for _, query := range []string{pendingForTarget, pendingForSource} {
		pendings, err := c.fetchPendings(ctx, session, query, map[string]any{"canonical_id": canonicalID})
		if err != nil {
			return err
		}
		if err := c.resolvePendings(ctx, session, pendings); err != nil {
			return err
		}
	}
	return nil
}

// ResolveAllPending drains the PendingRelationship backlog in batches.
// Placeholders whose endpoints are still missing survive to the next run.
func (c *Client) ResolveAllPending(ctx context.Context, batchSize int) (int, error) {
	session := c.Session(ctx)
	defer session.Close(ctx)

	total := 0
	seen := make(map[[3]string]bool)
	for {
		pendings, err := c.fetchPendings(ctx, session, pendingBatch, map[string]any{"limit": batchSize})
		if err != nil {
			return total, err
		}
		// drop placeholders already attempted this run; their endpoints
		// are missing and LIMIT would return them forever
		fresh := pendings[:0]
		for _, p := range pendings {
			key := [3]string{p.SourceGID, p.TargetCanonicalID, p.Type}
			if !seen[key] {
				seen[key] = true
				fresh = append(fresh, p)
			}
		}
		if len(fresh) == 0 {
			return total, nil
		}

		resolved, err := c.resolvePendingsCounted(ctx, session, fresh)
		if err != nil {
			return total, err
		}
		total += resolved
		if len(pendings) < batchSize {
			return total, nil
		}
	}
}

func (c *Client) fetchPendings(ctx context.Context, session neo4j.SessionWithContext,
	query string, params map[string]any) ([]pendingRel, error) {

	rows, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var out []pendingRel
		for result.Next(ctx) {
			rec := result.Record()
			p := pendingRel{Props: map[string]any{}}
			if v, ok := rec.Get("source_gid"); ok && v != nil {
				p.SourceGID = v.(string)
			}
			if v, ok := rec.Get("target_canonical_id"); ok && v != nil {
				p.TargetCanonicalID = v.(string)
			}
			if v, ok := rec.Get("type"); ok && v != nil {
				p.Type = v.(string)
			}
			if v, ok := rec.Get("props_json"); ok && v != nil {
				if s, ok := v.(string); ok && s != "" && s != "null" {
					if err := json.Unmarshal([]byte(s), &p.Props); err != nil {
						p.Props = map[string]any{}
					}
				}
			}
			out = append(out, p)
		}
		return out, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch pending relationships: %w", err)
	}
	return rows.([]pendingRel), nil
}

func (c *Client) resolvePendings(ctx context.Context, session neo4j.SessionWithContext, pendings []pendingRel) error {
	_, err := c.resolvePendingsCounted(ctx, session, pendings)
	return err
}

func (c *Client) resolvePendingsCounted(ctx context.Context, session neo4j.SessionWithContext, pendings []pendingRel) (int, error) {
	if len(pendings) == 0 {
		return 0, nil
	}

	groups := make(map[string][]pendingRel)
	for _, p := range pendings {
		if !models.ValidRelationshipType(p.Type) {
			c.logger.Warn("pending relationship with unknown type skipped",
				slog.String("type", p.Type))
			continue
		}
		groups[p.Type] = append(groups[p.Type], p)
	}

	total := 0
	for relType, group := range groups {
		var exact, byName []map[string]any
		for _, p := range group {
			row := map[string]any{
				"source_gid":          p.SourceGID,
				"target_canonical_id": p.TargetCanonicalID,
				"props":               p.Props,
			}
			if name, ok := heuristicCallName(p.TargetCanonicalID); ok && relType == models.RelCalls {
				row["name"] = name
				byName = append(byName, row)
				continue
			}
			exact = append(exact, row)
		}

		for _, part := range []struct {
			query string
			batch []map[string]any
		}{
			{fmt.Sprintf(resolvePending, relType), exact},
			{fmt.Sprintf(resolvePendingByName, relType), byName},
		} {
			if len(part.batch) == 0 {
				continue
			}
			n, err := c.runResolveBatch(ctx, session, part.query, part.batch, relType)
			if err != nil {
				return total, err
			}
			if n > 0 {
				total += n
				c.logger.Info("resolved pending relationships",
					slog.Int("count", n), slog.String("type", relType))
			}
		}
	}
	return total, nil
}

func (c *Client) runResolveBatch(ctx context.Context, session neo4j.SessionWithContext,
	query string, batch []map[string]any, relType string) (int, error) {

	resolved, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{"batch": batch, "type": relType})
		if err != nil {
			return 0, err
		}
		rec, err := result.Single(ctx)
		if err != nil {
			return 0, nil
		}
		n, _ := rec.Get("resolved")
		count, _ := n.(int64)
		return int(count), nil
	})
	if err != nil {
		return 0, fmt.Errorf("resolve pending relationships (%s): %w", relType, err)
	}
	return resolved.(int), nil
}

// heuristicCallName extracts the bare name from an analyzer call-target
// canonical of the form <lang>::Function::<name> or
// <lang>::Object::<obj>::Method::<name>. Definition canonicals carry a file
// path and signature and never match these shapes.
func heuristicCallName(target string) (string, bool) {
	parts := strings.Split(target, "::")
	switch {
	case len(parts) == 3 && parts[1] == "Function":
		return parts[2], parts[2] != ""
	case len(parts) == 5 && parts[1] == "Object" && parts[3] == "Method":
		return parts[4], parts[4] != ""
	}
	return "", false
}

// PruneFile removes graph state owned by filePath that a fresh analysis no
// longer produced: nodes absent from keepGIDs, placeholders referencing
// them, and the outgoing edges of the surviving nodes. Runs before the
// authoritative result is merged, so a modified file fully replaces its
// previous version.
func (c *Client) PruneFile(ctx context.Context, filePath string, keepGIDs []string) error {
	session := c.Session(ctx)
	defer session.Close(ctx)

	params := map[string]any{"path": filePath, "keep": keepGIDs}
	for _, query := range []string{pruneFileStaleNodes, pruneFileEdges} {
		_, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, query, params)
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("prune file %s: %w", filePath, err)
		}
	}
	c.logger.Debug("pruned stale file state", slog.String("path", filePath))
	return nil
}

// DeleteNodes removes nodes by gid with a CONTAINS|DEFINES cascade, taking
// placeholders that reference any removed node with them.
func (c *Client) DeleteNodes(ctx context.Context, gids []string) error {
	if len(gids) == 0 {
		return nil
	}
	session := c.Session(ctx)
	defer session.Close(ctx)

	for _, gid := range gids {
		_, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, deleteNodeCascade, map[string]any{"gid": gid})
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("delete node %s: %w", gid, err)
		}
		c.logger.Info("deleted node cascade", slog.String("gid", gid))
	}
	return nil
}

// DeleteRelationships removes edges and matching placeholders. An empty Type
// matches any relationship type between the pair.
func (c *Client) DeleteRelationships(ctx context.Context, dels []models.RelDeletion) error {
	if len(dels) == 0 {
		return nil
	}
	session := c.Session(ctx)
	defer session.Close(ctx)

	for _, d := range dels {
		params := map[string]any{
			"source_gid":          d.SourceGID,
			"target_canonical_id": d.TargetCanonicalID,
			"type":                d.Type,
		}
		_, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
			if _, err := tx.Run(ctx, deleteRelationship, params); err != nil {
				return nil, err
			}
			_, err := tx.Run(ctx, deletePendingRelationship, params)
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("delete relationship %s -> %s: %w", d.SourceGID, d.TargetCanonicalID, err)
		}
	}
	return nil
}

// Wipe removes every node and relationship. Used by full scans that request
// a clean slate.
func (c *Client) Wipe(ctx context.Context) error {
	session := c.Session(ctx)
	defer session.Close(ctx)
	_, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, wipeGraph, nil)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("wipe graph: %w", err)
	}
	c.logger.Info("graph wiped")
	return nil
}

// MaterializeExternalTargets creates an External node for every pending
// relationship target that no analyzer produced. The edges themselves are
// attached by the next resolution pass. Operator-triggered, once the
// pending backlog has settled.
func (c *Client) MaterializeExternalTargets(ctx context.Context) (int, error) {
	session := c.Session(ctx)
	defer session.Close(ctx)

	n, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, materializeExternalTargets, nil)
		if err != nil {
			return 0, err
		}
		rec, err := result.Single(ctx)
		if err != nil {
			return 0, nil
		}
		v, _ := rec.Get("created")
		count, _ := v.(int64)
		return int(count), nil
	})
	if err != nil {
		return 0, fmt.Errorf("materialize external targets: %w", err)
	}
	if created := n.(int); created > 0 {
		c.logger.Info("materialized external targets", slog.Int("count", created))
		return created, nil
	}
	return 0, nil
}

// PendingCount returns the current number of placeholder nodes.
func (c *Client) PendingCount(ctx context.Context) (int, error) {
	session := c.Session(ctx)
	defer session.Close(ctx)
	n, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, countPending, nil)
		if err != nil {
			return 0, err
		}
		rec, err := result.Single(ctx)
		if err != nil {
			return 0, err
		}
		v, _ := rec.Get("count")
		count, _ := v.(int64)
		return int(count), nil
	})
	if err != nil {
		return 0, fmt.Errorf("count pending relationships: %w", err)
	}
	return n.(int), nil
}
