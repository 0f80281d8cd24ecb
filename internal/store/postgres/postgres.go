// Package postgres mirrors the graph's symbol inventory into a relational
// side store. The mirror backs flat queries the graph is poor at (per-file
// listings, run history) and is rebuildable from a full scan at any time.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bmcp/codegraph/internal/config"
	"github.com/bmcp/codegraph/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS symbols (
    gid          TEXT PRIMARY KEY,
    canonical_id TEXT NOT NULL,
    name         TEXT NOT NULL,
    node_type    TEXT NOT NULL,
    file_path    TEXT NOT NULL,
    language     TEXT NOT NULL,
    properties   JSONB NOT NULL DEFAULT '{}',
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS symbols_file_path_idx ON symbols (file_path);
CREATE INDEX IF NOT EXISTS symbols_canonical_idx ON symbols (canonical_id);

CREATE TABLE IF NOT EXISTS analysis_runs (
    id            BIGSERIAL PRIMARY KEY,
    file_path     TEXT NOT NULL,
    language      TEXT NOT NULL,
    analyzer      TEXT NOT NULL,
    error         TEXT NOT NULL DEFAULT '',
    nodes         INTEGER NOT NULL DEFAULT 0,
    relationships INTEGER NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS analysis_runs_file_path_idx ON analysis_runs (file_path);
`

const upsertSymbol = `
INSERT INTO symbols (gid, canonical_id, name, node_type, file_path, language, properties, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (gid) DO UPDATE SET
    canonical_id = EXCLUDED.canonical_id,
    name         = EXCLUDED.name,
    node_type    = EXCLUDED.node_type,
    file_path    = EXCLUDED.file_path,
    language     = EXCLUDED.language,
    properties   = EXCLUDED.properties,
    updated_at   = now()
`

// Store wraps a pgx pool with the mirror's queries.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// EnsureSchema creates the mirror tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// RecordResult applies one analyzer result to the mirror in a single
// transaction: symbol upserts, symbol deletions, and a run history row.
func (s *Store) RecordResult(ctx context.Context, result models.AnalyzerResult) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, n := range result.NodesUpserted {
		props, err := json.Marshal(n.Properties)
		if err != nil {
			return fmt.Errorf("encode properties for %s: %w", n.GID, err)
		}
		nodeType := ""
		if len(n.Labels) > 0 {
			nodeType = n.Labels[0]
		}
		if _, err := tx.Exec(ctx, upsertSymbol,
			n.GID, n.CanonicalID, n.Name, nodeType, n.FilePath, n.Language, props); err != nil {
			return fmt.Errorf("upsert symbol %s: %w", n.GID, err)
		}
	}

	if len(result.NodesDeleted) > 0 {
		// file deletions take their contained symbols with them, so the
		// file_path cascade runs before the direct gid delete
		if _, err := tx.Exec(ctx,
			`DELETE FROM symbols WHERE file_path IN (
			     SELECT file_path FROM symbols
			     WHERE gid = ANY($1::text[]) AND node_type = 'File'
			 )`, result.NodesDeleted); err != nil {
			return fmt.Errorf("delete contained symbols: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM symbols WHERE gid = ANY($1::text[])`, result.NodesDeleted); err != nil {
			return fmt.Errorf("delete symbols: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO analysis_runs (file_path, language, analyzer, error, nodes, relationships)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		result.FilePath, result.Language, result.Analyzer, result.Error,
		len(result.NodesUpserted), len(result.RelationshipsUpserted)); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	return tx.Commit(ctx)
}

// Wipe truncates the mirror tables. The graph itself is untouched.
func (s *Store) Wipe(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE symbols, analysis_runs`); err != nil {
		return fmt.Errorf("wipe mirror: %w", err)
	}
	return nil
}

// Symbol is one mirrored graph node.
type Symbol struct {
	GID         string         `json:"gid"`
	CanonicalID string         `json:"canonical_id"`
	Name        string         `json:"name"`
	NodeType    string         `json:"node_type"`
	FilePath    string         `json:"file_path"`
	Language    string         `json:"language"`
	Properties  map[string]any `json:"properties"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// SymbolsByFile lists the mirrored symbols defined in one file.
func (s *Store) SymbolsByFile(ctx context.Context, filePath string) ([]Symbol, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT gid, canonical_id, name, node_type, file_path, language, properties, updated_at
		 FROM symbols
		 WHERE file_path = $1
		 ORDER BY canonical_id`, filePath)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()
	return scanSymbols(rows)
}

// SearchSymbols matches symbol names case-insensitively.
func (s *Store) SearchSymbols(ctx context.Context, name string, limit int) ([]Symbol, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT gid, canonical_id, name, node_type, file_path, language, properties, updated_at
		 FROM symbols
		 WHERE name ILIKE '%' || $1 || '%'
		 ORDER BY name
		 LIMIT $2`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("search symbols: %w", err)
	}
	defer rows.Close()
	return scanSymbols(rows)
}

func scanSymbols(rows pgx.Rows) ([]Symbol, error) {
	var items []Symbol
	for rows.Next() {
		var (
			sym   Symbol
			props []byte
		)
		if err := rows.Scan(&sym.GID, &sym.CanonicalID, &sym.Name, &sym.NodeType,
			&sym.FilePath, &sym.Language, &props, &sym.UpdatedAt); err != nil {
			return nil, err
		}
		if len(props) > 0 {
			if err := json.Unmarshal(props, &sym.Properties); err != nil {
				return nil, fmt.Errorf("decode properties for %s: %w", sym.GID, err)
			}
		}
		items = append(items, sym)
	}
	return items, rows.Err()
}

// Run is one analysis run history row.
type Run struct {
	ID            int64     `json:"id"`
	FilePath      string    `json:"file_path"`
	Language      string    `json:"language"`
	Analyzer      string    `json:"analyzer"`
	Error         string    `json:"error"`
	Nodes         int       `json:"nodes"`
	Relationships int       `json:"relationships"`
	CreatedAt     time.Time `json:"created_at"`
}

// RecentRuns lists the newest analysis runs.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, file_path, language, analyzer, error, nodes, relationships, created_at
		 FROM analysis_runs
		 ORDER BY id DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var items []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.FilePath, &r.Language, &r.Analyzer,
			&r.Error, &r.Nodes, &r.Relationships, &r.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
