// Package store persists conversation graphs in SQLite. It is the
// persistence collaborator behind a surface: it hands out row ids for new
// nodes and links and serves {nodes, links} snapshots back.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/TFMV/forcegraph/models"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Table names.
const (
	ConversationTable = "Conversation"
	NodeTable         = "Node"
	LinkTable         = "Link"
)

var (
	// ErrGraphNotFound is returned when no conversation has the given id.
	ErrGraphNotFound = errors.New("graph not found")
	// ErrInvalidID is returned for ids that are not row ids.
	ErrInvalidID = errors.New("invalid id")
	// ErrUnknownTable is returned by Count for tables outside the schema.
	ErrUnknownTable = errors.New("unknown table")
)

const schema = `
CREATE TABLE IF NOT EXISTS Conversation (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT
);
CREATE TABLE IF NOT EXISTS Node (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	graphId INTEGER,
	name TEXT,
	FOREIGN KEY (graphId) REFERENCES Conversation(id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS Link (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	graphId INTEGER,
	sourceNodeId INTEGER,
	targetNodeId INTEGER,
	FOREIGN KEY (graphId) REFERENCES Conversation(id) ON DELETE CASCADE,
	FOREIGN KEY (sourceNodeId) REFERENCES Node(id) ON DELETE CASCADE,
	FOREIGN KEY (targetNodeId) REFERENCES Node(id) ON DELETE CASCADE
);`

// StoredGraph is a conversation with its graph data. Node and link ids
// are row ids rendered as strings.
type StoredGraph struct {
	ID   string           `json:"id"`
	Name string           `json:"name"`
	Data models.GraphData `json:"data"`
}

// Store wraps a SQLite database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps the
	// foreign_keys pragma in effect for every statement.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Store{db: db, logger: logger}
	if err := s.CreateTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("Database opened", zap.String("path", path))
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateTables creates the schema if it does not exist.
func (s *Store) CreateTables(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insert(ctx context.Context, x execer, query string, args ...any) (int64, error) {
	res, err := x.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertConversation adds a conversation and returns its id.
func (s *Store) InsertConversation(ctx context.Context, name string) (int64, error) {
	id, err := insert(ctx, s.db, `INSERT INTO Conversation (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return id, nil
}

// InsertNode adds a node to a conversation and returns its id.
func (s *Store) InsertNode(ctx context.Context, graphID int64, name string) (int64, error) {
	id, err := insert(ctx, s.db, `INSERT INTO Node (graphId, name) VALUES (?, ?)`, graphID, name)
	if err != nil {
		return 0, fmt.Errorf("failed to insert node: %w", err)
	}
	s.logger.Debug("Inserted node", zap.Int64("graph", graphID), zap.Int64("node", id))
	return id, nil
}

// InsertLink adds a link between two node rows and returns its id.
func (s *Store) InsertLink(ctx context.Context, graphID, sourceID, targetID int64) (int64, error) {
	id, err := insert(ctx, s.db,
		`INSERT INTO Link (graphId, sourceNodeId, targetNodeId) VALUES (?, ?, ?)`,
		graphID, sourceID, targetID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert link: %w", err)
	}
	s.logger.Debug("Inserted link", zap.Int64("graph", graphID), zap.Int64("link", id))
	return id, nil
}

// CreateGraph stores a conversation with its nodes and links in one
// transaction. Input node ids are local to data; they are mapped to new
// row ids. Links naming unknown nodes are skipped and logged.
func (s *Store) CreateGraph(ctx context.Context, name string, data models.GraphData) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	graphID, err := insert(ctx, tx, `INSERT INTO Conversation (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to insert conversation: %w", err)
	}

	rowIDs := make(map[models.FlexID]int64, len(data.Nodes))
	for _, n := range data.Nodes {
		id, err := insert(ctx, tx, `INSERT INTO Node (graphId, name) VALUES (?, ?)`, graphID, n.Name)
		if err != nil {
			return 0, fmt.Errorf("failed to insert node %q: %w", n.ID, err)
		}
		rowIDs[n.ID] = id
	}

	for _, l := range data.Links {
		source, sok := rowIDs[l.Source]
		target, tok := rowIDs[l.Target]
		if !sok || !tok {
			s.logger.Warn("Skipping link with unknown endpoint",
				zap.String("graph", name),
				zap.String("source", l.Source.String()),
				zap.String("target", l.Target.String()))
			continue
		}
		if _, err := insert(ctx, tx,
			`INSERT INTO Link (graphId, sourceNodeId, targetNodeId) VALUES (?, ?, ?)`,
			graphID, source, target); err != nil {
			return 0, fmt.Errorf("failed to insert link %s-%s: %w", l.Source, l.Target, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit graph: %w", err)
	}
	s.logger.Info("Graph created",
		zap.Int64("id", graphID),
		zap.String("name", name),
		zap.Int("nodes", len(data.Nodes)))
	return graphID, nil
}

// GetGraph loads a conversation and its graph data.
func (s *Store) GetGraph(ctx context.Context, id int64) (StoredGraph, error) {
	var name sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT name FROM Conversation WHERE id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredGraph{}, fmt.Errorf("%w: %d", ErrGraphNotFound, id)
	}
	if err != nil {
		return StoredGraph{}, fmt.Errorf("failed to load conversation %d: %w", id, err)
	}

	g := StoredGraph{
		ID:   strconv.FormatInt(id, 10),
		Name: name.String,
		Data: models.GraphData{Nodes: []models.NodeData{}, Links: []models.LinkData{}},
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM Node WHERE graphId = ? ORDER BY id`, id)
	if err != nil {
		return StoredGraph{}, fmt.Errorf("failed to load nodes: %w", err)
	}
	for rows.Next() {
		var nodeID int64
		var nodeName sql.NullString
		if err := rows.Scan(&nodeID, &nodeName); err != nil {
			rows.Close()
			return StoredGraph{}, fmt.Errorf("failed to scan node: %w", err)
		}
		g.Data.Nodes = append(g.Data.Nodes, models.NodeData{ID: rowID(nodeID), Name: nodeName.String})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return StoredGraph{}, fmt.Errorf("failed to load nodes: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT sourceNodeId, targetNodeId FROM Link WHERE graphId = ? ORDER BY id`, id)
	if err != nil {
		return StoredGraph{}, fmt.Errorf("failed to load links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var source, target int64
		if err := rows.Scan(&source, &target); err != nil {
			return StoredGraph{}, fmt.Errorf("failed to scan link: %w", err)
		}
		g.Data.Links = append(g.Data.Links, models.LinkData{Source: rowID(source), Target: rowID(target)})
	}
	if err := rows.Err(); err != nil {
		return StoredGraph{}, fmt.Errorf("failed to load links: %w", err)
	}
	return g, nil
}

// ListGraphs loads every conversation in id order.
func (s *Store) ListGraphs(ctx context.Context) ([]StoredGraph, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM Conversation ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	graphs := make([]StoredGraph, 0, len(ids))
	for _, id := range ids {
		g, err := s.GetGraph(ctx, id)
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}

// Count returns the number of rows in one of the schema tables.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	switch table {
	case ConversationTable, NodeTable, LinkTable:
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// DeleteAll removes every conversation, node and link.
func (s *Store) DeleteAll(ctx context.Context) error {
	for _, table := range []string{LinkTable, NodeTable, ConversationTable} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	s.logger.Info("Deleted all data")
	return nil
}

// CreateNode implements surface.Persister.
func (s *Store) CreateNode(ctx context.Context, graphID, name string) (string, error) {
	gid, err := parseRowID(graphID)
	if err != nil {
		return "", err
	}
	id, err := s.InsertNode(ctx, gid, name)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

// CreateLink implements surface.Persister.
func (s *Store) CreateLink(ctx context.Context, graphID, sourceID, targetID string) (string, error) {
	gid, err := parseRowID(graphID)
	if err != nil {
		return "", err
	}
	src, err := parseRowID(sourceID)
	if err != nil {
		return "", err
	}
	dst, err := parseRowID(targetID)
	if err != nil {
		return "", err
	}
	id, err := s.InsertLink(ctx, gid, src, dst)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

// ParseGraphID converts a graph id string to a row id.
func ParseGraphID(id string) (int64, error) {
	return parseRowID(id)
}

func parseRowID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return n, nil
}

func rowID(id int64) models.FlexID {
	return models.FlexID(strconv.FormatInt(id, 10))
}
