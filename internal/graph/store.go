// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/story-engine/pkg/types"
)

// DBFile is the SQLite database name inside the data directory.
const DBFile = "graph.db"

// Store persists a graph in SQLite: one row per node and one per edge,
// each carrying its JSON record.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates dir/graph.db and its schema.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS nodes (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			node_type TEXT NOT NULL,
			record TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS edges (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			target TEXT NOT NULL,
			relation TEXT NOT NULL,
			record TEXT NOT NULL,
			UNIQUE (source, target, relation)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(node_type)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_relation ON edges(relation)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save replaces the stored graph with g in a single transaction.
func (s *Store) Save(ctx context.Context, g *Graph) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM edges`, `DELETE FROM nodes`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clearing graph: %w", err)
		}
	}

	nodeStmt, err := tx.PrepareContext(ctx, `INSERT INTO nodes (id, node_type, record) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing node insert: %w", err)
	}
	defer nodeStmt.Close()

	for _, n := range g.Nodes() {
		rec, err := types.MarshalNode(n)
		if err != nil {
			return err
		}
		if _, err := nodeStmt.ExecContext(ctx, n.NodeID(), string(n.NodeType()), string(rec)); err != nil {
			return fmt.Errorf("inserting node %s: %w", n.NodeID(), err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `INSERT INTO edges (source, target, relation, record) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing edge insert: %w", err)
	}
	defer edgeStmt.Close()

	for _, e := range g.Edges() {
		rec, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := edgeStmt.ExecContext(ctx, e.Source, e.Target, string(e.Relation()), string(rec)); err != nil {
			return fmt.Errorf("inserting edge %s -[%s]-> %s: %w", e.Source, e.Relation(), e.Target, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing graph: %w", err)
	}
	return nil
}

// Load rebuilds the stored graph in its original insertion order.
func (s *Store) Load(ctx context.Context) (*Graph, error) {
	g := New()

	rows, err := s.db.QueryContext(ctx, `SELECT record FROM nodes ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec string
		if err := rows.Scan(&rec); err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		n, err := types.UnmarshalNode([]byte(rec))
		if err != nil {
			return nil, err
		}
		g.AddNode(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}

	edgeRows, err := s.db.QueryContext(ctx, `SELECT record FROM edges ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var rec string
		if err := edgeRows.Scan(&rec); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		var e types.Edge
		if err := json.Unmarshal([]byte(rec), &e); err != nil {
			return nil, err
		}
		g.AddEdge(e)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edges: %w", err)
	}
	return g, nil
}

// Counts returns the number of stored nodes and edges.
func (s *Store) Counts(ctx context.Context) (nodes, edges int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM nodes`).Scan(&nodes); err != nil {
		return 0, 0, fmt.Errorf("counting nodes: %w", err)
	}
	if err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM edges`).Scan(&edges); err != nil {
		return 0, 0, fmt.Errorf("counting edges: %w", err)
	}
	return nodes, edges, nil
}
