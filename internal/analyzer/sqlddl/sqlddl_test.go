package sqlddl

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/bmcp/codegraph/pkg/models"
)

const fixture = `
CREATE TABLE users (
    id SERIAL PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    org_id INTEGER REFERENCES orgs (id)
);

CREATE TABLE orgs (
    id SERIAL PRIMARY KEY,
    name TEXT
);

CREATE VIEW active_users AS
    SELECT u.id, u.email FROM users u JOIN orgs o ON u.org_id = o.id;

-- bmcp:imports shared/schema.sql::File::schema.sql
`

func analyze(t *testing.T, source string) models.AnalyzerResult {
	t.Helper()
	a := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	result, err := a.Analyze(context.Background(), "db/schema.sql", []byte(source))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	return result
}

func findNode(result models.AnalyzerResult, label, name string) (models.NodeStub, bool) {
	for _, n := range result.NodesUpserted {
		if len(n.Labels) > 0 && n.Labels[0] == label && n.Name == name {
			return n, true
		}
	}
	return models.NodeStub{}, false
}

func findRel(result models.AnalyzerResult, relType, targetCanonical string) (models.RelStub, bool) {
	for _, r := range result.RelationshipsUpserted {
		if r.Type == relType && r.TargetCanonicalID == targetCanonical {
			return r, true
		}
	}
	return models.RelStub{}, false
}

func TestAnalyzeTables(t *testing.T) {
	result := analyze(t, fixture)

	table, ok := findNode(result, "DatabaseTableHint", "users")
	if !ok {
		t.Fatal("no DatabaseTableHint for users")
	}
	want := "db/schema.sql::File::schema.sql::Table::users"
	if table.CanonicalID != want {
		t.Errorf("table canonical = %q, want %q", table.CanonicalID, want)
	}
	if _, ok := findRel(result, models.RelContains, want); !ok {
		t.Error("file does not CONTAIN the table")
	}
}

func TestAnalyzeColumns(t *testing.T) {
	result := analyze(t, fixture)

	col, ok := findNode(result, "DatabaseColumnHint", "email")
	if !ok {
		t.Fatal("no DatabaseColumnHint for email")
	}
	if col.Properties["data_type"] != "text" {
		t.Errorf("data_type = %v, want text", col.Properties["data_type"])
	}
	if col.Properties["not_null"] != true {
		t.Error("email should be not_null")
	}

	id, ok := findNode(result, "DatabaseColumnHint", "id")
	if !ok {
		t.Fatal("no DatabaseColumnHint for id")
	}
	if id.Properties["primary_key"] != true {
		t.Error("id should be primary_key")
	}

	tableCanonical := "db/schema.sql::File::schema.sql::Table::users"
	if _, ok := findRel(result, models.RelContains, tableCanonical+"::Column::email"); !ok {
		t.Error("table does not CONTAIN the column")
	}
}

func TestAnalyzeForeignKey(t *testing.T) {
	result := analyze(t, fixture)

	rel, ok := findRel(result, models.RelReferences, "db/schema.sql::File::schema.sql::Table::orgs")
	if !ok {
		t.Fatal("no REFERENCES edge for the foreign key")
	}
	if rel.Properties["constraint"] != "foreign_key" {
		t.Errorf("constraint = %v", rel.Properties["constraint"])
	}
}

func TestAnalyzeView(t *testing.T) {
	result := analyze(t, fixture)

	view, ok := findNode(result, "DatabaseTableHint", "active_users")
	if !ok {
		t.Fatal("no node for the view")
	}
	if view.Properties["is_view"] != true {
		t.Error("view not marked is_view")
	}

	usersCanonical := "db/schema.sql::File::schema.sql::Table::users"
	if _, ok := findRel(result, models.RelReads, usersCanonical); !ok {
		t.Error("view does not READ its source table")
	}
	orgsCanonical := "db/schema.sql::File::schema.sql::Table::orgs"
	if _, ok := findRel(result, models.RelReads, orgsCanonical); !ok {
		t.Error("view does not READ its joined table")
	}
}

func TestAnalyzeManualHint(t *testing.T) {
	result := analyze(t, fixture)

	rel, ok := findRel(result, models.RelImports, "shared/schema.sql::File::schema.sql")
	if !ok {
		t.Fatal("manual hint comment did not produce an IMPORTS edge")
	}
	if rel.Properties["manual_hint"] != true {
		t.Error("manual hint edge not marked")
	}
}

func TestAnalyzeInvalidSQL(t *testing.T) {
	a := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := a.Analyze(context.Background(), "bad.sql", []byte("CREATE TABEL broken ("))
	if err == nil {
		t.Fatal("expected error for invalid SQL")
	}
}
