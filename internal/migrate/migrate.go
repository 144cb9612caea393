// Package migrate applies the numbered SQL files under migrations/ and
// tracks them in schema_migrations.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

// Pattern: 001_name.sql
var filePattern = regexp.MustCompile(`^(\d{3})_(.+)\.sql$`)

// Migration represents a database migration
type Migration struct {
	Version   int
	Name      string
	Up        string
	Down      string
	Applied   bool
	AppliedAt *time.Time
}

// Load reads every migration file in dir, sorted by version
func Load(dir string) ([]Migration, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []Migration
	seen := map[int]string{}
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		matches := filePattern.FindStringSubmatch(file.Name())
		if len(matches) != 3 {
			continue
		}
		version, _ := strconv.Atoi(matches[1])
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %03d used by both %s and %s", version, prev, file.Name())
		}
		seen[version] = file.Name()

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file: %w", err)
		}
		up, down, err := split(string(content))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version: version,
			Name:    matches[2],
			Up:      up,
			Down:    down,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// split separates the Up and Down sections of a migration file
func split(content string) (string, string, error) {
	upAt := strings.Index(content, upMarker)
	if upAt < 0 {
		return "", "", fmt.Errorf("missing %q section", upMarker)
	}
	body := content[upAt+len(upMarker):]

	downAt := strings.Index(body, downMarker)
	if downAt < 0 {
		return strings.TrimSpace(body), "", nil
	}
	return strings.TrimSpace(body[:downAt]), strings.TrimSpace(body[downAt+len(downMarker):]), nil
}

// Runner applies and rolls back migrations against one database
type Runner struct {
	db *sql.DB
}

func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

// EnsureTable creates the schema_migrations tracking table
func (r *Runner) EnsureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// applied retrieves all applied migrations from database
func (r *Runner) applied(ctx context.Context) (map[int]*time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	out := map[int]*time.Time{}
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		out[version] = &at
	}
	return out, rows.Err()
}

// Status marks which migrations have been applied
func (r *Runner) Status(ctx context.Context, migrations []Migration) ([]Migration, error) {
	applied, err := r.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(migrations))
	for i, m := range migrations {
		if at, ok := applied[m.Version]; ok {
			m.Applied = true
			m.AppliedAt = at
		}
		out[i] = m
	}
	return out, nil
}

// Up applies all pending migrations in order and returns the ones it ran
func (r *Runner) Up(ctx context.Context, migrations []Migration) ([]Migration, error) {
	status, err := r.Status(ctx, migrations)
	if err != nil {
		return nil, err
	}

	var ran []Migration
	for _, m := range status {
		if m.Applied {
			continue
		}
		if err := r.apply(ctx, m); err != nil {
			return ran, fmt.Errorf("failed to apply migration %03d_%s: %w", m.Version, m.Name, err)
		}
		ran = append(ran, m)
	}
	return ran, nil
}

// Down rolls back the most recently applied migration. It returns nil
// when nothing is applied.
func (r *Runner) Down(ctx context.Context, migrations []Migration) (*Migration, error) {
	status, err := r.Status(ctx, migrations)
	if err != nil {
		return nil, err
	}

	for i := len(status) - 1; i >= 0; i-- {
		m := status[i]
		if !m.Applied {
			continue
		}
		if m.Down == "" {
			return nil, fmt.Errorf("no rollback defined for migration version %d", m.Version)
		}
		if err := r.rollback(ctx, m); err != nil {
			return nil, fmt.Errorf("failed to rollback migration %03d_%s: %w", m.Version, m.Name, err)
		}
		return &m, nil
	}
	return nil, nil
}

func (r *Runner) apply(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.Version, m.Name); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

func (r *Runner) rollback(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.Down); err != nil {
		return fmt.Errorf("failed to execute rollback SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", m.Version); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	return tx.Commit()
}
