package resolver

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/bmcp/codegraph/internal/graph"
	"github.com/bmcp/codegraph/pkg/models"
)

type fakeLookup struct {
	endpoints map[string][]graph.Node
	apiCalls  map[string][]graph.Node
	tables    map[string][]graph.Node
	queries   map[string][]graph.Node
}

func (f *fakeLookup) EndpointsByPath(_ context.Context, path string) ([]graph.Node, error) {
	return f.endpoints[path], nil
}

func (f *fakeLookup) APICallsByPath(_ context.Context, path string) ([]graph.Node, error) {
	return f.apiCalls[path], nil
}

func (f *fakeLookup) TablesByName(_ context.Context, name string) ([]graph.Node, error) {
	return f.tables[name], nil
}

func (f *fakeLookup) QueriesReferencingTable(_ context.Context, name string) ([]graph.Node, error) {
	return f.queries[name], nil
}

func testEngine(lookup Lookup) *Engine {
	return NewEngine(lookup, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func stub(gid, canonical, analyzerType string, props map[string]any) models.NodeStub {
	return models.NodeStub{
		GID:         gid,
		CanonicalID: canonical,
		Language:    "python",
		Labels:      []string{analyzerType},
		Properties:  props,
	}
}

func findEdge(rels []models.RelStub, source, target, relType string) *models.RelStub {
	for i := range rels {
		r := rels[i]
		if r.SourceGID == source && r.TargetCanonicalID == target && r.Type == relType {
			return &rels[i]
		}
	}
	return nil
}

func TestResolveCanonicalizesLabels(t *testing.T) {
	e := testEngine(nil)
	out := e.Resolve(context.Background(), models.AnalyzerResult{
		Language: "python",
		NodesUpserted: []models.NodeStub{
			stub("g1", "a.py::File::a.py::Function::f()", "FunctionDefinition", nil),
		},
	})

	if len(out.NodesUpserted) != 1 {
		t.Fatalf("nodes = %d, want 1", len(out.NodesUpserted))
	}
	labels := out.NodesUpserted[0].Labels
	if len(labels) != 2 || labels[0] != "Function" || labels[1] != "Python" {
		t.Errorf("labels = %v, want [Function Python]", labels)
	}
}

func TestResolveUnmappedTypeKeepsOriginal(t *testing.T) {
	e := testEngine(nil)
	out := e.Resolve(context.Background(), models.AnalyzerResult{
		NodesUpserted: []models.NodeStub{
			stub("g1", "a.py::File::a.py::weird", "WeirdThing", nil),
		},
		RelationshipsUpserted: []models.RelStub{
			{SourceGID: "g1", TargetCanonicalID: "x", Type: "WEIRD_REL"},
		},
	})

	labels := out.NodesUpserted[0].Labels
	found := false
	for _, l := range labels {
		if l == "Original_WeirdThing" {
			found = true
		}
	}
	if !found || labels[0] != "Unknown" {
		t.Errorf("labels = %v, want Unknown plus Original_WeirdThing", labels)
	}

	if out.RelationshipsUpserted[0].Type != models.RelRelatedTo {
		t.Errorf("rel type = %q, want RELATED_TO fallback", out.RelationshipsUpserted[0].Type)
	}
}

func TestResolveDropsDuplicateDefinitions(t *testing.T) {
	e := testEngine(nil)
	canonical := "a.py::File::a.py::Function::f()"
	out := e.Resolve(context.Background(), models.AnalyzerResult{
		NodesUpserted: []models.NodeStub{
			stub("g1", canonical, "FunctionDefinition", map[string]any{"start_line": 1}),
			stub("g1", canonical, "FunctionDefinition", map[string]any{"start_line": 9}),
		},
	})

	if len(out.NodesUpserted) != 1 {
		t.Fatalf("nodes = %d, want 1 (first definition wins)", len(out.NodesUpserted))
	}
	if out.NodesUpserted[0].Properties["start_line"] != 1 {
		t.Error("later duplicate replaced the first definition")
	}
}

func TestAPIMatchingInBatch(t *testing.T) {
	e := testEngine(nil)
	out := e.Resolve(context.Background(), models.AnalyzerResult{
		NodesUpserted: []models.NodeStub{
			stub("call1", "front.py::call", "ApiCallHint", map[string]any{"url": "/api/users?id=1"}),
			stub("ep1", "back.py::endpoint", "ApiEndpointHint", map[string]any{"path": "/api/users"}),
		},
	})

	edge := findEdge(out.RelationshipsUpserted, "call1", "back.py::endpoint", models.RelCallsAPI)
	if edge == nil {
		t.Fatalf("CALLS_API edge missing, got %v", out.RelationshipsUpserted)
	}
	if edge.Properties["heuristic_match"] != "url_path" {
		t.Errorf("heuristic_match = %v", edge.Properties)
	}
}

func TestAPIMatchingAgainstStoredEndpoint(t *testing.T) {
	lookup := &fakeLookup{
		endpoints: map[string][]graph.Node{
			"api/users": {{GID: "stored-ep", CanonicalID: "back.py::endpoint"}},
		},
	}
	e := testEngine(lookup)
	out := e.Resolve(context.Background(), models.AnalyzerResult{
		NodesUpserted: []models.NodeStub{
			stub("call1", "front.py::call", "ApiCallHint", map[string]any{"url": "api/users"}),
		},
	})

	if findEdge(out.RelationshipsUpserted, "call1", "back.py::endpoint", models.RelCallsAPI) == nil {
		t.Errorf("expected edge to stored endpoint, got %v", out.RelationshipsUpserted)
	}
}

func TestEndpointMatchesStoredCalls(t *testing.T) {
	lookup := &fakeLookup{
		apiCalls: map[string][]graph.Node{
			"api/users": {{GID: "stored-call", CanonicalID: "front.py::call"}},
		},
	}
	e := testEngine(lookup)
	out := e.Resolve(context.Background(), models.AnalyzerResult{
		NodesUpserted: []models.NodeStub{
			stub("ep1", "back.py::endpoint", "ApiEndpointHint", map[string]any{"path": "/api/users"}),
		},
	})

	if findEdge(out.RelationshipsUpserted, "stored-call", "back.py::endpoint", models.RelCallsAPI) == nil {
		t.Errorf("arrival order should not matter, got %v", out.RelationshipsUpserted)
	}
}

func TestSQLMatchingInBatch(t *testing.T) {
	e := testEngine(nil)
	out := e.Resolve(context.Background(), models.AnalyzerResult{
		NodesUpserted: []models.NodeStub{
			stub("q1", "app.py::query", "DatabaseQueryHint",
				map[string]any{"query": "SELECT name FROM users WHERE id = 1"}),
			stub("t1", "schema.sql::users", "DatabaseTableHint", map[string]any{"name": "users"}),
			stub("c1", "schema.sql::users.name", "DatabaseColumnHint", map[string]any{"name": "name"}),
		},
	})

	if findEdge(out.RelationshipsUpserted, "q1", "schema.sql::users", models.RelReadsTable) == nil {
		t.Errorf("READS_TABLE edge missing, got %v", out.RelationshipsUpserted)
	}
	if findEdge(out.RelationshipsUpserted, "q1", "schema.sql::users.name", models.RelUsesColumn) == nil {
		t.Errorf("USES_COLUMN edge missing, got %v", out.RelationshipsUpserted)
	}
}

func TestSQLModifyClassification(t *testing.T) {
	e := testEngine(nil)
	out := e.Resolve(context.Background(), models.AnalyzerResult{
		NodesUpserted: []models.NodeStub{
			stub("q1", "app.py::query", "DatabaseQueryHint",
				map[string]any{"query": "UPDATE users SET name = 'x'"}),
			stub("t1", "schema.sql::users", "DatabaseTableHint", map[string]any{"name": "users"}),
		},
	})

	if findEdge(out.RelationshipsUpserted, "q1", "schema.sql::users", models.RelModifiesTable) == nil {
		t.Errorf("MODIFIES_TABLE edge missing, got %v", out.RelationshipsUpserted)
	}
}

func TestTableMatchesStoredQueries(t *testing.T) {
	lookup := &fakeLookup{
		queries: map[string][]graph.Node{
			"users": {{
				GID:         "stored-q",
				CanonicalID: "app.py::query",
				Properties:  map[string]any{"query": "SELECT * FROM users"},
			}},
		},
	}
	e := testEngine(lookup)
	out := e.Resolve(context.Background(), models.AnalyzerResult{
		NodesUpserted: []models.NodeStub{
			stub("t1", "schema.sql::users", "DatabaseTableHint", map[string]any{"name": "users"}),
		},
	})

	if findEdge(out.RelationshipsUpserted, "stored-q", "schema.sql::users", models.RelReadsTable) == nil {
		t.Errorf("stored query should link to new table, got %v", out.RelationshipsUpserted)
	}
}

func TestQueryNodeAnnotated(t *testing.T) {
	e := testEngine(nil)
	out := e.Resolve(context.Background(), models.AnalyzerResult{
		NodesUpserted: []models.NodeStub{
			stub("q1", "app.py::query", "DatabaseQueryHint",
				map[string]any{"query": "SELECT name FROM Users"}),
		},
	})

	tables, _ := out.NodesUpserted[0].Properties["tables"].([]string)
	if len(tables) != 1 || tables[0] != "users" {
		t.Errorf("tables property = %v, want [users]", out.NodesUpserted[0].Properties["tables"])
	}
}

func TestImportTargetRewrittenToFileCanonical(t *testing.T) {
	e := testEngine(nil)
	out := e.Resolve(context.Background(), models.AnalyzerResult{
		Language: "python",
		RelationshipsUpserted: []models.RelStub{
			{SourceGID: "python:main", TargetCanonicalID: "pkg.module", Type: "IMPORTS"},
			{SourceGID: "python:main", TargetCanonicalID: ".sibling", Type: "IMPORTS"},
		},
	})

	rewritten := out.RelationshipsUpserted[0]
	if rewritten.TargetCanonicalID != "pkg/module.py::File::module.py" {
		t.Errorf("import target = %q", rewritten.TargetCanonicalID)
	}
	if rewritten.Properties["module"] != "pkg.module" {
		t.Errorf("module prop = %v", rewritten.Properties["module"])
	}

	// relative imports keep their raw target
	if got := out.RelationshipsUpserted[1].TargetCanonicalID; got != ".sibling" {
		t.Errorf("relative import target = %q", got)
	}
}

func TestImportTargetAlreadyCanonicalKept(t *testing.T) {
	e := testEngine(nil)
	canonical := "other.py::File::other.py"
	out := e.Resolve(context.Background(), models.AnalyzerResult{
		Language: "python",
		RelationshipsUpserted: []models.RelStub{
			{SourceGID: "python:main", TargetCanonicalID: canonical, Type: "IMPORTS"},
		},
	})

	if got := out.RelationshipsUpserted[0].TargetCanonicalID; got != canonical {
		t.Errorf("manual hint import target = %q, want %q", got, canonical)
	}
}

func TestResolveRefinesTypeByTargetNode(t *testing.T) {
	e := testEngine(nil)
	out := e.Resolve(context.Background(), models.AnalyzerResult{
		NodesUpserted: []models.NodeStub{
			stub("ep1", "back.py::endpoint", "ApiEndpointHint", map[string]any{"path": "/api/users"}),
			stub("t1", "schema.sql::users", "DatabaseTableHint", map[string]any{"name": "users"}),
			stub("c1", "schema.sql::users.name", "DatabaseColumnHint", map[string]any{"name": "name"}),
		},
		RelationshipsUpserted: []models.RelStub{
			{SourceGID: "fn1", TargetCanonicalID: "back.py::endpoint", Type: "CALLS"},
			{SourceGID: "q1", TargetCanonicalID: "schema.sql::users", Type: "QUERIES_HINT"},
			{SourceGID: "q1", TargetCanonicalID: "schema.sql::users.name", Type: "ACCESSES"},
		},
	})

	if findEdge(out.RelationshipsUpserted, "fn1", "back.py::endpoint", models.RelCallsAPI) == nil {
		t.Errorf("CALLS to an endpoint should become CALLS_API, got %v", out.RelationshipsUpserted)
	}
	if findEdge(out.RelationshipsUpserted, "q1", "schema.sql::users", models.RelQueriesTable) == nil {
		t.Errorf("QUERIES to a table should become QUERIES_TABLE, got %v", out.RelationshipsUpserted)
	}
	if findEdge(out.RelationshipsUpserted, "q1", "schema.sql::users.name", models.RelUsesColumn) == nil {
		t.Errorf("ACCESSES to a column should become USES_COLUMN, got %v", out.RelationshipsUpserted)
	}
}

func TestResolveKeepsGenericTypeForUnknownTarget(t *testing.T) {
	e := testEngine(nil)
	out := e.Resolve(context.Background(), models.AnalyzerResult{
		RelationshipsUpserted: []models.RelStub{
			{SourceGID: "q1", TargetCanonicalID: "not-in-batch", Type: "QUERIES_HINT"},
		},
	})

	if findEdge(out.RelationshipsUpserted, "q1", "not-in-batch", models.RelQueries) == nil {
		t.Errorf("target outside the batch should keep QUERIES, got %v", out.RelationshipsUpserted)
	}
}

func TestRelationshipProvenance(t *testing.T) {
	e := testEngine(nil)
	out := e.Resolve(context.Background(), models.AnalyzerResult{
		Analyzer: "python_analyzer",
		RelationshipsUpserted: []models.RelStub{
			{SourceGID: "g1", TargetCanonicalID: "x", Type: "FETCHES_HINT"},
		},
	})

	rel := out.RelationshipsUpserted[0]
	if rel.Type != models.RelCallsAPI {
		t.Fatalf("type = %q, want CALLS_API", rel.Type)
	}
	if rel.Properties["analyzer"] != "python_analyzer" {
		t.Errorf("analyzer = %v", rel.Properties["analyzer"])
	}
	if rel.Properties["original_relationship_type"] != "FETCHES_HINT" {
		t.Errorf("original_relationship_type = %v", rel.Properties["original_relationship_type"])
	}
}

func TestAPICallNodeAnnotated(t *testing.T) {
	e := testEngine(nil)
	out := e.Resolve(context.Background(), models.AnalyzerResult{
		NodesUpserted: []models.NodeStub{
			stub("call1", "front.py::call", "ApiCallHint",
				map[string]any{"url": "https://api.example.com/api/users?limit=5"}),
		},
	})

	if got := out.NodesUpserted[0].Properties["url_path"]; got != "api/users" {
		t.Errorf("url_path property = %v, want api/users", got)
	}
}

func TestHeuristicEdgeDeduplicated(t *testing.T) {
	e := testEngine(nil)
	out := e.Resolve(context.Background(), models.AnalyzerResult{
		NodesUpserted: []models.NodeStub{
			stub("call1", "front.py::call", "ApiCallHint", map[string]any{"url": "/api/users"}),
			stub("ep1", "back.py::endpoint", "ApiEndpointHint", map[string]any{"path": "/api/users"}),
		},
		RelationshipsUpserted: []models.RelStub{
			{SourceGID: "call1", TargetCanonicalID: "back.py::endpoint", Type: "CALLS_API"},
		},
	})

	count := 0
	for _, r := range out.RelationshipsUpserted {
		if r.SourceGID == "call1" && r.TargetCanonicalID == "back.py::endpoint" && r.Type == models.RelCallsAPI {
			count++
		}
	}
	if count != 1 {
		t.Errorf("edge emitted %d times, want 1", count)
	}
}
