package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"pizzeria-be/internal/db"
	"pizzeria-be/internal/logger"

	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Runner applies "-- +migrate Up/Down" SQL files in file name order and
// records applied versions in schema_migrations.
type Runner struct {
	db   *sql.DB
	fsys fs.FS
	dir  string
	log  *zap.Logger
}

// New returns a Runner over the migrations compiled into the binary.
func New(conn *sql.DB) *Runner {
	return NewWithFS(conn, embedded, "migrations")
}

func NewWithFS(conn *sql.DB, fsys fs.FS, dir string) *Runner {
	return &Runner{db: conn, fsys: fsys, dir: dir, log: logger.Component("migrate")}
}

func (r *Runner) ensureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}
	return nil
}

func (r *Runner) files() ([]string, error) {
	files, err := fs.Glob(r.fsys, path.Join(r.dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// Up applies every migration not yet recorded and returns their versions.
func (r *Runner) Up(ctx context.Context) ([]string, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	files, err := r.files()
	if err != nil {
		return nil, err
	}

	applied := []string{}
	for _, file := range files {
		version := path.Base(file)

		var exists bool
		err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
		).Scan(&exists)
		if err != nil {
			return applied, fmt.Errorf("failed to check migration status: %w", err)
		}
		if exists {
			r.log.Debug("skipping applied migration", zap.String("version", version))
			continue
		}

		content, err := fs.ReadFile(r.fsys, file)
		if err != nil {
			return applied, fmt.Errorf("failed to read %s: %w", file, err)
		}
		upSQL := extractMigrationPart(string(content), "Up")

		r.log.Info("applying migration", zap.String("version", version))
		err = db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, upSQL); err != nil {
				return fmt.Errorf("migration failed (%s): %w", version, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
				return fmt.Errorf("failed to record migration version: %w", err)
			}
			return nil
		})
		if err != nil {
			return applied, err
		}
		applied = append(applied, version)
	}
	return applied, nil
}

// Down rolls back the most recently applied migration and returns its
// version, or "" when nothing is applied.
func (r *Runner) Down(ctx context.Context) (string, error) {
	if err := r.ensureTable(ctx); err != nil {
		return "", err
	}
	files, err := r.files()
	if err != nil {
		return "", err
	}

	var lastVersion string
	err = r.db.QueryRowContext(ctx,
		`SELECT version FROM schema_migrations ORDER BY applied_at DESC, version DESC LIMIT 1`,
	).Scan(&lastVersion)
	if errors.Is(err, sql.ErrNoRows) {
		r.log.Info("no migrations to roll back")
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get last applied migration: %w", err)
	}

	file := ""
	for _, f := range files {
		if path.Base(f) == lastVersion {
			file = f
			break
		}
	}
	if file == "" {
		return "", fmt.Errorf("migration file not found for version: %s", lastVersion)
	}

	content, err := fs.ReadFile(r.fsys, file)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	downSQL := extractMigrationPart(string(content), "Down")

	r.log.Info("rolling back migration", zap.String("version", lastVersion))
	err = db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, downSQL); err != nil {
			return fmt.Errorf("rollback failed (%s): %w", lastVersion, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, lastVersion); err != nil {
			return fmt.Errorf("failed to remove migration record: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return lastVersion, nil
}

func extractMigrationPart(content, section string) string {
	var part strings.Builder
	inPart := false

	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, "-- +migrate "+section) {
			inPart = true
			continue
		}
		if inPart && strings.HasPrefix(line, "-- +migrate") {
			break
		}
		if inPart {
			part.WriteString(line + "\n")
		}
	}
	return part.String()
}
