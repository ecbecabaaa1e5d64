// Package storage provides SQLite-backed storage for formation meshes and
// an archive of simulation results. The archive is a side channel: searches
// never read from it.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/GoSim-25-26J-441/co2sim-core/internal/formation"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

// DB wraps a SQLite connection
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	conn, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS formations (
		name TEXT PRIMARY KEY,
		cells INTEGER NOT NULL,
		vertices_json TEXT NOT NULL,
		faces_json TEXT NOT NULL,
		depths_json TEXT NOT NULL,
		imported_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS simulation_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		formation TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		params_json TEXT NOT NULL,
		masses_json TEXT NOT NULL,
		time_json TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_run ON simulation_results(run_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// FormationInfo summarizes a stored formation
type FormationInfo struct {
	Name       string    `db:"name" json:"name"`
	Cells      int       `db:"cells" json:"cells"`
	ImportedAt time.Time `db:"imported_at" json:"imported_at"`
}

type formationRow struct {
	Name     string `db:"name"`
	Vertices string `db:"vertices_json"`
	Faces    string `db:"faces_json"`
	Depths   string `db:"depths_json"`
}

// ImportFormation stores f, replacing any formation with the same name
func (db *DB) ImportFormation(ctx context.Context, f *formation.Formation) error {
	vertices, err := json.Marshal(f.Vertices)
	if err != nil {
		return fmt.Errorf("encode vertices: %w", err)
	}
	faces, err := json.Marshal(f.Faces)
	if err != nil {
		return fmt.Errorf("encode faces: %w", err)
	}
	depths, err := json.Marshal(f.Depths)
	if err != nil {
		return fmt.Errorf("encode depths: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO formations (name, cells, vertices_json, faces_json, depths_json, imported_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			cells = excluded.cells,
			vertices_json = excluded.vertices_json,
			faces_json = excluded.faces_json,
			depths_json = excluded.depths_json,
			imported_at = excluded.imported_at
	`, f.Name, f.CellCount(), string(vertices), string(faces), string(depths), time.Now().UTC())
	return err
}

// Load reads the named formation. It satisfies formation.Source.
func (db *DB) Load(ctx context.Context, name string) (*formation.Formation, error) {
	var row formationRow
	err := db.conn.GetContext(ctx, &row,
		"SELECT name, vertices_json, faces_json, depths_json FROM formations WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", formation.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load formation %s: %w", name, err)
	}

	var vertices []models.Location
	var faces [][]int
	var depths []float64
	if err := json.Unmarshal([]byte(row.Vertices), &vertices); err != nil {
		return nil, fmt.Errorf("decode vertices of %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(row.Faces), &faces); err != nil {
		return nil, fmt.Errorf("decode faces of %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(row.Depths), &depths); err != nil {
		return nil, fmt.Errorf("decode depths of %s: %w", name, err)
	}

	f, err := formation.New(row.Name, vertices, faces)
	if err != nil {
		return nil, err
	}
	f.Depths = depths
	return f, nil
}

// ListFormations returns every stored formation, ordered by name
func (db *DB) ListFormations(ctx context.Context) ([]FormationInfo, error) {
	var out []FormationInfo
	err := db.conn.SelectContext(ctx, &out, "SELECT name, cells, imported_at FROM formations ORDER BY name")
	return out, err
}

// ArchivedResult is one simulation result written by a run
type ArchivedResult struct {
	RunID      string                      `json:"run_id"`
	Parameters models.SimulationParameters `json:"parameters"`
	Result     *models.SimulationResult    `json:"result"`
	CreatedAt  time.Time                   `json:"created_at"`
}

type resultRow struct {
	RunID     string    `db:"run_id"`
	X         float64   `db:"x"`
	Y         float64   `db:"y"`
	Params    string    `db:"params_json"`
	Masses    string    `db:"masses_json"`
	Time      string    `db:"time_json"`
	CreatedAt time.Time `db:"created_at"`
}

// SaveResult archives one simulation result
func (db *DB) SaveResult(ctx context.Context, runID string, params models.SimulationParameters, res *models.SimulationResult) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	masses, err := json.Marshal(res.Masses)
	if err != nil {
		return fmt.Errorf("encode masses: %w", err)
	}
	times, err := json.Marshal(res.Time)
	if err != nil {
		return fmt.Errorf("encode time: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO simulation_results (run_id, formation, x, y, params_json, masses_json, time_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, params.Formation, res.Location.X, res.Location.Y, string(paramsJSON), string(masses), string(times), time.Now().UTC())
	return err
}

// ListResults returns the results archived by a run in insertion order
func (db *DB) ListResults(ctx context.Context, runID string) ([]ArchivedResult, error) {
	var rows []resultRow
	err := db.conn.SelectContext(ctx, &rows, `
		SELECT run_id, x, y, params_json, masses_json, time_json, created_at
		FROM simulation_results WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}

	out := make([]ArchivedResult, 0, len(rows))
	for _, row := range rows {
		ar := ArchivedResult{
			RunID:     row.RunID,
			Result:    &models.SimulationResult{Location: models.Location{X: row.X, Y: row.Y}},
			CreatedAt: row.CreatedAt,
		}
		if err := json.Unmarshal([]byte(row.Params), &ar.Parameters); err != nil {
			return nil, fmt.Errorf("decode parameters: %w", err)
		}
		if err := json.Unmarshal([]byte(row.Masses), &ar.Result.Masses); err != nil {
			return nil, fmt.Errorf("decode masses: %w", err)
		}
		if err := json.Unmarshal([]byte(row.Time), &ar.Result.Time); err != nil {
			return nil, fmt.Errorf("decode time: %w", err)
		}
		out = append(out, ar)
	}
	return out, nil
}
