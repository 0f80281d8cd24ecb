// Package resolver turns raw analyzer output into final graph deltas. It
// assigns canonical labels, maps analyzer relationship types onto the closed
// vocabulary, and applies cross-language heuristics (API URL matching, SQL
// table and column extraction) against both the current batch and the graph.
package resolver

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"unicode"

	"github.com/bmcp/codegraph/internal/graph"
	"github.com/bmcp/codegraph/internal/identity"
	"github.com/bmcp/codegraph/pkg/models"
)

// Lookup answers heuristic questions against already-ingested nodes, so
// matches land regardless of which side of a pair arrived first. Satisfied
// by graph.Client.
type Lookup interface {
	EndpointsByPath(ctx context.Context, path string) ([]graph.Node, error)
	APICallsByPath(ctx context.Context, path string) ([]graph.Node, error)
	TablesByName(ctx context.Context, name string) ([]graph.Node, error)
	QueriesReferencingTable(ctx context.Context, name string) ([]graph.Node, error)
}

// Engine resolves one AnalyzerResult at a time.
type Engine struct {
	lookup Lookup
	logger *slog.Logger
}

// NewEngine creates a resolver. lookup may be nil, in which case only
// in-batch heuristics apply.
func NewEngine(lookup Lookup, logger *slog.Logger) *Engine {
	return &Engine{lookup: lookup, logger: logger}
}

// batch indexes the canonicalized nodes of one result for heuristics.
type batch struct {
	endpoints map[string]string // normalized path -> canonical_id
	tables    map[string]string // lower(name) -> canonical_id
	columns   map[string]string // lower(name) -> canonical_id
	apiCalls  []models.NodeStub
	queries   []models.NodeStub
}

// Resolve canonicalizes nodes and relationships and appends heuristic edges.
// The input is not modified.
func (e *Engine) Resolve(ctx context.Context, result models.AnalyzerResult) models.AnalyzerResult {
	out := result
	out.NodesUpserted = nil
	out.RelationshipsUpserted = nil

	b := &batch{
		endpoints: make(map[string]string),
		tables:    make(map[string]string),
		columns:   make(map[string]string),
	}

	seen := make(map[string]bool)
	targetTypes := make(map[string]string)
	for _, node := range result.NodesUpserted {
		resolved, primary := canonicalizeNode(node)

		if definitionTypes[primary] && seen[resolved.CanonicalID] {
			e.logger.Warn("duplicate definition dropped",
				slog.String("canonical_id", resolved.CanonicalID),
				slog.String("type", primary))
			continue
		}
		seen[resolved.CanonicalID] = true
		if _, ok := targetTypes[resolved.CanonicalID]; !ok {
			targetTypes[resolved.CanonicalID] = primary
		}

		switch primary {
		case "ApiEndpoint":
			if path := normalizeURLPath(stringProp(resolved, "path", "name")); path != "" {
				b.endpoints[path] = resolved.CanonicalID
			}
		case "Table":
			if name := stringProp(resolved, "name"); name != "" {
				b.tables[strings.ToLower(name)] = resolved.CanonicalID
			}
		case "Column":
			if name := stringProp(resolved, "name"); name != "" {
				b.columns[strings.ToLower(name)] = resolved.CanonicalID
			}
		case "ApiCall":
			resolved = annotateAPICall(resolved)
			b.apiCalls = append(b.apiCalls, resolved)
		case "DatabaseQuery":
			resolved = annotateQuery(resolved)
			b.queries = append(b.queries, resolved)
		}

		out.NodesUpserted = append(out.NodesUpserted, resolved)
	}

	edgeSeen := make(map[[3]string]bool)
	for _, rel := range result.RelationshipsUpserted {
		mapped := rel
		mapped.Type = refineRelType(canonicalRelType(rel.Type), targetTypes[rel.TargetCanonicalID])
		mapped.Properties = withProvenance(rel.Properties, result.Analyzer, rel.Type)
		if mapped.Type == models.RelImports {
			if fc := importFileCanonical(rel.TargetCanonicalID, result.Language); fc != "" {
				mapped.Properties["module"] = rel.TargetCanonicalID
				mapped.TargetCanonicalID = fc
			}
		}
		key := [3]string{mapped.SourceGID, mapped.TargetCanonicalID, mapped.Type}
		if edgeSeen[key] {
			continue
		}
		edgeSeen[key] = true
		out.RelationshipsUpserted = append(out.RelationshipsUpserted, mapped)
	}

	for _, rel := range e.heuristicEdges(ctx, b) {
		key := [3]string{rel.SourceGID, rel.TargetCanonicalID, rel.Type}
		if edgeSeen[key] {
			continue
		}
		edgeSeen[key] = true
		rel.Properties = withProvenance(rel.Properties, result.Analyzer, rel.Type)
		out.RelationshipsUpserted = append(out.RelationshipsUpserted, rel)
	}

	return out
}

// canonicalizeNode maps the analyzer node type onto final labels and returns
// the primary mapped type.
func canonicalizeNode(node models.NodeStub) (models.NodeStub, string) {
	analyzerType := "Unknown"
	if len(node.Labels) > 0 && node.Labels[0] != "" {
		analyzerType = node.Labels[0]
	}

	mapped, ok := nodeTypeMap[analyzerType]
	if !ok {
		mapped = "Unknown"
	}

	labels := []string{mapped}
	if node.Language != "" {
		labels = append(labels, capitalize(node.Language))
	}
	if mapped == "Unknown" && analyzerType != "Unknown" {
		labels = append(labels, "Original_"+analyzerType)
	}

	node.Labels = labels
	return node, mapped
}

// moduleExtensions maps a language to the file extension its module paths
// resolve to. Languages without a module-to-file convention are absent.
var moduleExtensions = map[string]string{
	"python":     ".py",
	"javascript": ".js",
	"typescript": ".ts",
}

// importFileCanonical predicts the canonical id of the file a module path
// points at, so an IMPORTS edge resolves through the pending mechanism
// whichever side is ingested first. Relative modules, wildcards and
// languages without a module convention keep their raw target; imports of
// modules outside the repository simply stay pending.
func importFileCanonical(module, language string) string {
	ext, ok := moduleExtensions[language]
	if !ok || module == "" || module == "*" || strings.HasPrefix(module, ".") {
		return ""
	}
	// already a canonical id, e.g. from a manual hint comment
	if strings.Contains(module, "::") {
		return ""
	}
	filePath := strings.ReplaceAll(module, ".", "/") + ext
	canonical, _, err := identity.Generate(identity.Request{
		FilePath:     filePath,
		EntityType:   identity.EntityFile,
		Name:         path.Base(filePath),
		LanguageHint: language,
	})
	if err != nil {
		return ""
	}
	return canonical
}

// withProvenance copies props and stamps which analyzer produced the edge
// and what it originally called it.
func withProvenance(props map[string]any, analyzer, originalType string) map[string]any {
	out := make(map[string]any, len(props)+2)
	for k, v := range props {
		out[k] = v
	}
	out["analyzer"] = analyzer
	out["original_relationship_type"] = originalType
	return out
}

func canonicalRelType(t string) string {
	if mapped, ok := relTypeMap[t]; ok {
		return mapped
	}
	return models.RelRelatedTo
}

// refineRelType specializes a generic relationship type when the target is in
// the same batch and its node type implies a more precise edge. Targets not
// in the batch resolve later as pendings and keep the generic type.
func refineRelType(relType, targetType string) string {
	switch {
	case relType == models.RelCalls && targetType == "ApiEndpoint":
		return models.RelCallsAPI
	case relType == models.RelQueries && targetType == "Table":
		return models.RelQueriesTable
	case relType == models.RelAccesses && targetType == "Column":
		return models.RelUsesColumn
	}
	return relType
}

// annotateQuery stores the extracted table and column lists on the query
// node, so later-arriving schema nodes can find it in the graph.
func annotateQuery(node models.NodeStub) models.NodeStub {
	query := stringProp(node, "query")
	if query == "" {
		return node
	}
	tables, columns := parseSQLQuery(query)

	props := make(map[string]any, len(node.Properties)+2)
	for k, v := range node.Properties {
		props[k] = v
	}
	props["tables"] = lowered(tables)
	props["columns"] = lowered(columns)
	node.Properties = props
	return node
}

// annotateAPICall stores the normalized path on the call node, so
// later-arriving endpoints can find it in the graph.
func annotateAPICall(node models.NodeStub) models.NodeStub {
	path := normalizeURLPath(stringProp(node, "url", "path"))
	if path == "" {
		return node
	}

	props := make(map[string]any, len(node.Properties)+1)
	for k, v := range node.Properties {
		props[k] = v
	}
	props["url_path"] = path
	node.Properties = props
	return node
}

// heuristicEdges produces cross-language edges. Both directions are checked
// for every pair type: new callers against known targets, and new targets
// against callers already in the graph.
func (e *Engine) heuristicEdges(ctx context.Context, b *batch) []models.RelStub {
	var edges []models.RelStub

	for _, call := range b.apiCalls {
		path := normalizeURLPath(stringProp(call, "url", "path"))
		if path == "" {
			continue
		}
		if target, ok := b.endpoints[path]; ok {
			edges = append(edges, apiEdge(call.GID, target))
			continue
		}
		for _, endpoint := range e.lookupNodes(ctx, "endpoints by path", path, e.endpointsByPath) {
			edges = append(edges, apiEdge(call.GID, endpoint.CanonicalID))
		}
	}

	// stored call sites pointing at endpoints that only just appeared
	for path, endpointCanonical := range b.endpoints {
		for _, call := range e.lookupNodes(ctx, "api calls by path", path, e.apiCallsByPath) {
			edges = append(edges, apiEdge(call.GID, endpointCanonical))
		}
	}

	for _, query := range b.queries {
		queryText := stringProp(query, "query")
		relType := queryRelType(queryText)
		tables, columns := parseSQLQuery(queryText)

		for _, table := range tables {
			if target, ok := b.tables[strings.ToLower(table)]; ok {
				edges = append(edges, tableEdge(query.GID, target, relType))
				continue
			}
			for _, node := range e.lookupNodes(ctx, "tables by name", table, e.tablesByName) {
				edges = append(edges, tableEdge(query.GID, node.CanonicalID, relType))
			}
		}
		for _, column := range columns {
			if target, ok := b.columns[strings.ToLower(column)]; ok {
				edges = append(edges, models.RelStub{
					SourceGID:         query.GID,
					TargetCanonicalID: target,
					Type:              models.RelUsesColumn,
					Properties:        map[string]any{"heuristic_match": "column_name_in_query"},
				})
			}
		}
	}

	// stored queries referencing tables that only just appeared
	for name, tableCanonical := range b.tables {
		for _, query := range e.lookupNodes(ctx, "queries referencing table", name, e.queriesReferencingTable) {
			relType := queryRelType(stringProp(nodeAsStub(query), "query"))
			edges = append(edges, tableEdge(query.GID, tableCanonical, relType))
		}
	}

	return edges
}

func apiEdge(sourceGID, targetCanonical string) models.RelStub {
	return models.RelStub{
		SourceGID:         sourceGID,
		TargetCanonicalID: targetCanonical,
		Type:              models.RelCallsAPI,
		Properties:        map[string]any{"heuristic_match": "url_path"},
	}
}

func tableEdge(sourceGID, targetCanonical, relType string) models.RelStub {
	return models.RelStub{
		SourceGID:         sourceGID,
		TargetCanonicalID: targetCanonical,
		Type:              relType,
		Properties:        map[string]any{"heuristic_match": "table_name_in_query"},
	}
}

type lookupFunc func(ctx context.Context, key string) ([]graph.Node, error)

func (e *Engine) lookupNodes(ctx context.Context, what, key string, fn lookupFunc) []graph.Node {
	if e.lookup == nil {
		return nil
	}
	nodes, err := fn(ctx, key)
	if err != nil {
		// heuristics are best effort; the periodic pending resolution
		// will catch anything we miss here
		e.logger.Warn("graph lookup failed",
			slog.String("lookup", what), slog.String("key", key),
			slog.String("error", err.Error()))
		return nil
	}
	return nodes
}

func (e *Engine) endpointsByPath(ctx context.Context, key string) ([]graph.Node, error) {
	return e.lookup.EndpointsByPath(ctx, key)
}

func (e *Engine) apiCallsByPath(ctx context.Context, key string) ([]graph.Node, error) {
	return e.lookup.APICallsByPath(ctx, key)
}

func (e *Engine) tablesByName(ctx context.Context, key string) ([]graph.Node, error) {
	return e.lookup.TablesByName(ctx, key)
}

func (e *Engine) queriesReferencingTable(ctx context.Context, key string) ([]graph.Node, error) {
	return e.lookup.QueriesReferencingTable(ctx, key)
}

func nodeAsStub(n graph.Node) models.NodeStub {
	return models.NodeStub{GID: n.GID, CanonicalID: n.CanonicalID, Properties: n.Properties}
}

func stringProp(node models.NodeStub, keys ...string) string {
	for _, k := range keys {
		if v, ok := node.Properties[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func lowered(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
