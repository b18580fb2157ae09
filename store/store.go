// Package store keeps tree mesh snapshots in a SQLite database. Each
// snapshot holds the tree state and, when known, the configuration it was
// built from, both as JSON.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/notargets/discretize/config"
	"github.com/notargets/discretize/tree"
	"go.uber.org/zap"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// ErrNotFound is returned for an unknown snapshot id.
var ErrNotFound = errors.New("store: snapshot not found")

// Snapshot is one saved tree.
type Snapshot struct {
	ID      uuid.UUID
	Name    string
	Created time.Time
	State   tree.State
	Config  *config.MeshConfig
}

// Info is the listing form of a snapshot.
type Info struct {
	ID      uuid.UUID
	Name    string
	Created time.Time
	Cells   int
}

// Store is safe for concurrent use.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.log = l } }

// Open creates or opens the database at path.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = "meshes.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created INTEGER NOT NULL,
		cells INTEGER NOT NULL,
		state BLOB NOT NULL,
		config BLOB
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}
	s := &Store{db: db, path: path, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s, nil
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error { return s.db.Close() }

// Save stores the current state of m under name.
func (s *Store) Save(ctx context.Context, name string, m *tree.Mesh, cfg *config.MeshConfig) (uuid.UUID, error) {
	return s.SaveState(ctx, name, m.State(), cfg)
}

// SaveState stores st under name and returns the new snapshot id.
func (s *Store) SaveState(ctx context.Context, name string, st tree.State, cfg *config.MeshConfig) (uuid.UUID, error) {
	state, err := json.Marshal(st)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode state: %w", err)
	}
	var raw []byte
	if cfg != nil {
		if raw, err = json.Marshal(cfg); err != nil {
			return uuid.Nil, fmt.Errorf("encode config: %w", err)
		}
	}
	id := uuid.New()
	created := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots(id,name,created,cells,state,config) VALUES(?,?,?,?,?,?)`,
		id.String(), name, created.UnixNano(), len(st.Leaves), state, raw); err != nil {
		return uuid.Nil, fmt.Errorf("insert snapshot: %w", err)
	}
	s.log.Debug("snapshot saved", zap.Stringer("id", id), zap.String("name", name), zap.Int("cells", len(st.Leaves)))
	return id, nil
}

// Load returns the snapshot with the given id.
func (s *Store) Load(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		snap         Snapshot
		created      int64
		state, cfg   []byte
		idText, name string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id,name,created,state,config FROM snapshots WHERE id = ?`, id.String()).
		Scan(&idText, &name, &created, &state, &cfg)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("select snapshot: %w", err)
	}
	snap.ID, snap.Name, snap.Created = id, name, time.Unix(0, created).UTC()
	if err := json.Unmarshal(state, &snap.State); err != nil {
		return Snapshot{}, fmt.Errorf("decode state: %w", err)
	}
	if len(cfg) > 0 {
		snap.Config = new(config.MeshConfig)
		if err := json.Unmarshal(cfg, snap.Config); err != nil {
			return Snapshot{}, fmt.Errorf("decode config: %w", err)
		}
	}
	return snap, nil
}

// Restore loads a snapshot and rebuilds its finalized tree.
func (s *Store) Restore(ctx context.Context, id uuid.UUID, opts ...tree.Option) (*tree.Mesh, error) {
	snap, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := tree.FromState(snap.State, opts...)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", id, err)
	}
	return m, nil
}

// List returns every snapshot, oldest first.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id,name,created,cells FROM snapshots ORDER BY created, id`)
	if err != nil {
		return nil, fmt.Errorf("select snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Info
	for rows.Next() {
		var (
			in      Info
			idText  string
			created int64
		)
		if err := rows.Scan(&idText, &in.Name, &created, &in.Cells); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if in.ID, err = uuid.Parse(idText); err != nil {
			return nil, fmt.Errorf("parse id %q: %w", idText, err)
		}
		in.Created = time.Unix(0, created).UTC()
		out = append(out, in)
	}
	return out, rows.Err()
}

// Delete removes a snapshot.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
