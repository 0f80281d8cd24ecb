package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeQueryRunner struct {
	rows []map[string]any
	err  error
	last string
}

func (f *fakeQueryRunner) ReadQuery(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	f.last = cypher
	return f.rows, f.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIsDestructive(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"MATCH (n) RETURN n LIMIT 10", false},
		{"MATCH (n:Function) WHERE n.name = 'x' RETURN n", false},
		{"MATCH (n) DETACH DELETE n", true},
		{"match (n) delete n", true},
		{"MATCH (n) REMOVE n.prop RETURN n", true},
		{"DROP INDEX canonical_id_index_file", true},
		{"CREATE (n:Hack) RETURN n", true},
		{"MERGE (n:Hack) RETURN n", true},
		{"MATCH (n) SET n.x = 1 RETURN n", true},
		{"CALL dbms.listConfig()", true},
		{"CALL apoc.export.csv.all('out.csv', {})", true},
		{"LOAD CSV FROM 'file:///x.csv' AS row RETURN row", true},
	}
	for _, tt := range tests {
		if got := IsDestructive(tt.query); got != tt.want {
			t.Errorf("IsDestructive(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestQueryRunRejectsDestructive(t *testing.T) {
	runner := &fakeQueryRunner{}
	h := NewQueryHandler(discard(), runner)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query",
		strings.NewReader(`{"query": "MATCH (n) DETACH DELETE n"}`))
	rec := httptest.NewRecorder()
	h.Run(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if runner.last != "" {
		t.Error("destructive query reached the graph")
	}
}

func TestQueryRunRequiresQuery(t *testing.T) {
	h := NewQueryHandler(discard(), &fakeQueryRunner{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"query": "  "}`))
	rec := httptest.NewRecorder()
	h.Run(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestQueryRunSuccess(t *testing.T) {
	runner := &fakeQueryRunner{rows: []map[string]any{{"name": "run"}}}
	h := NewQueryHandler(discard(), runner)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query",
		strings.NewReader(`{"query": "MATCH (n:Function) RETURN n.name AS name"}`))
	rec := httptest.NewRecorder()
	h.Run(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestQueryRunGraphFailure(t *testing.T) {
	h := NewQueryHandler(discard(), &fakeQueryRunner{err: errors.New("neo4j down")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query",
		strings.NewReader(`{"query": "MATCH (n) RETURN n"}`))
	rec := httptest.NewRecorder()
	h.Run(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
