// Package sqlddl analyzes SQL schema files with pg_query, producing table
// and column hint nodes for the graph.
package sqlddl

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/bmcp/codegraph/internal/analyzer"
	"github.com/bmcp/codegraph/internal/identity"
	"github.com/bmcp/codegraph/pkg/models"
)

const language = "sql"

const identityCacheSize = 1024

// Analyzer implements analyzer.Analyzer for SQL DDL files.
type Analyzer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Analyzer {
	return &Analyzer{logger: logger}
}

func (a *Analyzer) Language() string { return language }

// Analyze parses source as PostgreSQL SQL and emits one DatabaseTableHint
// per CREATE TABLE or CREATE VIEW, with DatabaseColumnHint children.
func (a *Analyzer) Analyze(ctx context.Context, filePath string, source []byte) (models.AnalyzerResult, error) {
	tree, err := pg_query.Parse(string(source))
	if err != nil {
		return models.AnalyzerResult{}, fmt.Errorf("parse %s: %w", filePath, err)
	}

	ids, err := analyzer.NewIdentityCache(identityCacheSize)
	if err != nil {
		return models.AnalyzerResult{}, fmt.Errorf("identity cache: %w", err)
	}

	w := &walker{filePath: filePath, ids: ids, logger: a.logger}
	if err := w.emitFile(); err != nil {
		return models.AnalyzerResult{}, err
	}
	for _, stmt := range tree.Stmts {
		w.walkStatement(stmt)
	}

	result := models.AnalyzerResult{
		FilePath:              filePath,
		Language:              language,
		NodesUpserted:         w.nodes,
		RelationshipsUpserted: w.rels,
	}
	result.RelationshipsUpserted = append(result.RelationshipsUpserted,
		analyzer.ScanHintComments(source, "--", w.fileGID)...)
	return result, nil
}

type walker struct {
	filePath string
	ids      *analyzer.IdentityCache
	logger   *slog.Logger

	fileGID       string
	fileCanonical string

	nodes []models.NodeStub
	rels  []models.RelStub
}

func (w *walker) emitFile() error {
	canonical, gid, err := w.ids.Generate(identity.Request{
		FilePath:     w.filePath,
		EntityType:   identity.EntityFile,
		Name:         path.Base(w.filePath),
		LanguageHint: language,
	})
	if err != nil {
		return fmt.Errorf("file identity: %w", err)
	}
	w.fileGID = gid
	w.fileCanonical = canonical
	w.nodes = append(w.nodes, models.NodeStub{
		GID:         gid,
		CanonicalID: canonical,
		Name:        path.Base(w.filePath),
		FilePath:    w.filePath,
		Language:    language,
		Labels:      []string{"File"},
		Properties:  map[string]any{"path": w.filePath},
	})
	return nil
}

func (w *walker) walkStatement(rawStmt *pg_query.RawStmt) {
	if rawStmt.Stmt == nil {
		return
	}
	node := rawStmt.Stmt
	switch {
	case node.GetCreateStmt() != nil:
		w.walkCreateTable(node.GetCreateStmt())
	case node.GetViewStmt() != nil:
		w.walkCreateView(node.GetViewStmt())
	}
}

func (w *walker) walkCreateTable(stmt *pg_query.CreateStmt) {
	if stmt.Relation == nil {
		return
	}
	tableName := stmt.Relation.Relname

	tableCanonical, tableGID, err := w.ids.Generate(identity.Request{
		FilePath:          w.filePath,
		EntityType:        identity.EntityTable,
		Name:              tableName,
		ParentCanonicalID: w.fileCanonical,
		LanguageHint:      language,
	})
	if err != nil {
		w.logger.Warn("table identity failed", slog.String("name", tableName), slog.String("error", err.Error()))
		return
	}

	props := map[string]any{"qualified_name": rangeVarQualified(stmt.Relation)}
	if stmt.Relation.Schemaname != "" {
		props["schema"] = stmt.Relation.Schemaname
	}

	w.nodes = append(w.nodes, models.NodeStub{
		GID:         tableGID,
		CanonicalID: tableCanonical,
		Name:        tableName,
		FilePath:    w.filePath,
		Language:    language,
		Labels:      []string{"DatabaseTableHint"},
		Properties:  props,
	})
	w.rels = append(w.rels, models.RelStub{
		SourceGID:         w.fileGID,
		TargetCanonicalID: tableCanonical,
		Type:              models.RelContains,
	})

	for _, elt := range stmt.TableElts {
		if colDef := elt.GetColumnDef(); colDef != nil {
			w.walkColumn(colDef, tableCanonical, tableGID)
			continue
		}
		// table-level foreign keys
		if con := elt.GetConstraint(); con != nil && con.Contype == pg_query.ConstrType_CONSTR_FOREIGN {
			w.emitForeignKey(tableGID, con)
		}
	}
}

func (w *walker) walkColumn(colDef *pg_query.ColumnDef, tableCanonical, tableGID string) {
	colCanonical, colGID, err := w.ids.Generate(identity.Request{
		FilePath:          w.filePath,
		EntityType:        identity.EntityColumn,
		Name:              colDef.Colname,
		ParentCanonicalID: tableCanonical,
		LanguageHint:      language,
	})
	if err != nil {
		w.logger.Warn("column identity failed", slog.String("name", colDef.Colname), slog.String("error", err.Error()))
		return
	}

	props := map[string]any{}
	if colDef.TypeName != nil {
		props["data_type"] = typeNameString(colDef.TypeName)
	}
	for _, c := range colDef.Constraints {
		con := c.GetConstraint()
		if con == nil {
			continue
		}
		switch con.Contype {
		case pg_query.ConstrType_CONSTR_NOTNULL:
			props["not_null"] = true
		case pg_query.ConstrType_CONSTR_PRIMARY:
			props["primary_key"] = true
		case pg_query.ConstrType_CONSTR_UNIQUE:
			props["unique"] = true
		case pg_query.ConstrType_CONSTR_FOREIGN:
			w.emitForeignKey(colGID, con)
		}
	}

	w.nodes = append(w.nodes, models.NodeStub{
		GID:         colGID,
		CanonicalID: colCanonical,
		Name:        colDef.Colname,
		FilePath:    w.filePath,
		Language:    language,
		Labels:      []string{"DatabaseColumnHint"},
		Properties:  props,
	})
	w.rels = append(w.rels, models.RelStub{
		SourceGID:         tableGID,
		TargetCanonicalID: colCanonical,
		Type:              models.RelContains,
	})
}

// emitForeignKey targets the referenced table's canonical id in this file.
// Cross-file references stay pending until the defining schema file lands.
func (w *walker) emitForeignKey(sourceGID string, con *pg_query.Constraint) {
	if con.Pktable == nil {
		return
	}
	targetCanonical, _, err := w.ids.Generate(identity.Request{
		FilePath:          w.filePath,
		EntityType:        identity.EntityTable,
		Name:              con.Pktable.Relname,
		ParentCanonicalID: w.fileCanonical,
		LanguageHint:      language,
	})
	if err != nil {
		return
	}

	props := map[string]any{"constraint": "foreign_key"}
	var cols []string
	for _, attr := range con.PkAttrs {
		if s := attr.GetString_(); s != nil {
			cols = append(cols, s.Sval)
		}
	}
	if len(cols) > 0 {
		props["referenced_columns"] = cols
	}

	w.rels = append(w.rels, models.RelStub{
		SourceGID:         sourceGID,
		TargetCanonicalID: targetCanonical,
		Type:              models.RelReferences,
		Properties:        props,
	})
}

// walkCreateView emits the view as a table hint marked is_view, with READS
// hints for every table in the defining query's FROM clause.
func (w *walker) walkCreateView(stmt *pg_query.ViewStmt) {
	if stmt.View == nil {
		return
	}
	viewName := stmt.View.Relname

	viewCanonical, viewGID, err := w.ids.Generate(identity.Request{
		FilePath:          w.filePath,
		EntityType:        identity.EntityTable,
		Name:              viewName,
		ParentCanonicalID: w.fileCanonical,
		LanguageHint:      language,
	})
	if err != nil {
		w.logger.Warn("view identity failed", slog.String("name", viewName), slog.String("error", err.Error()))
		return
	}

	w.nodes = append(w.nodes, models.NodeStub{
		GID:         viewGID,
		CanonicalID: viewCanonical,
		Name:        viewName,
		FilePath:    w.filePath,
		Language:    language,
		Labels:      []string{"DatabaseTableHint"},
		Properties:  map[string]any{"is_view": true, "qualified_name": rangeVarQualified(stmt.View)},
	})
	w.rels = append(w.rels, models.RelStub{
		SourceGID:         w.fileGID,
		TargetCanonicalID: viewCanonical,
		Type:              models.RelContains,
	})

	if stmt.Query == nil {
		return
	}
	if sel := stmt.Query.GetSelectStmt(); sel != nil {
		for _, from := range sel.FromClause {
			w.emitViewSource(viewGID, from)
		}
	}
}

func (w *walker) emitViewSource(viewGID string, node *pg_query.Node) {
	if node == nil {
		return
	}
	if rv := node.GetRangeVar(); rv != nil {
		targetCanonical, _, err := w.ids.Generate(identity.Request{
			FilePath:          w.filePath,
			EntityType:        identity.EntityTable,
			Name:              rv.Relname,
			ParentCanonicalID: w.fileCanonical,
			LanguageHint:      language,
		})
		if err != nil {
			return
		}
		w.rels = append(w.rels, models.RelStub{
			SourceGID:         viewGID,
			TargetCanonicalID: targetCanonical,
			Type:              models.RelReads,
			Properties:        map[string]any{"via": "view_definition"},
		})
	}
	if jt := node.GetJoinExpr(); jt != nil {
		w.emitViewSource(viewGID, jt.Larg)
		w.emitViewSource(viewGID, jt.Rarg)
	}
}

func rangeVarQualified(rv *pg_query.RangeVar) string {
	if rv.Schemaname != "" {
		return rv.Schemaname + "." + rv.Relname
	}
	return rv.Relname
}

func typeNameString(tn *pg_query.TypeName) string {
	parts := make([]string, 0, len(tn.Names))
	for _, n := range tn.Names {
		if s := n.GetString_(); s != nil {
			if s.Sval == "pg_catalog" {
				continue
			}
			parts = append(parts, s.Sval)
		}
	}
	return strings.Join(parts, ".")
}
