package devapi

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is one schema version with its up and down SQL.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			dirty INTEGER NOT NULL DEFAULT 0
		)
	`)
	return err
}

// CurrentVersion returns the schema version and whether the last migration
// failed half way.
func CurrentVersion(ctx context.Context, db *sql.DB) (int, bool, error) {
	var version, dirty int
	err := db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, dirty == 1, nil
}

func setVersion(ctx context.Context, db *sql.DB, version int, dirty bool) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		return err
	}
	if version == 0 {
		return nil
	}
	d := 0
	if dirty {
		d = 1
	}
	_, err := db.ExecContext(ctx, `INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)`, version, d)
	return err
}

var upPattern = regexp.MustCompile(`^(\d+)_(.+)\.up\.sql$`)

// LoadMigrations reads the embedded migrations sorted by version.
func LoadMigrations() ([]Migration, error) {
	var result []Migration
	err := fs.WalkDir(migrationFiles, "migrations", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		m := upPattern.FindStringSubmatch(path.Base(p))
		if m == nil {
			return nil
		}
		version, _ := strconv.Atoi(m[1])

		up, err := fs.ReadFile(migrationFiles, p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		// Down migrations are optional.
		down, _ := fs.ReadFile(migrationFiles, path.Join("migrations", fmt.Sprintf("%03d_%s.down.sql", version, m[2])))

		result = append(result, Migration{Version: version, Name: m[2], UpSQL: string(up), DownSQL: string(down)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	return result, nil
}

func runMigration(ctx context.Context, db *sql.DB, m Migration, up bool) error {
	direction, content, target := "up", m.UpSQL, m.Version
	if !up {
		direction, content, target = "down", m.DownSQL, m.Version-1
	}

	if err := setVersion(ctx, db, m.Version, true); err != nil {
		return fmt.Errorf("setting dirty flag: %w", err)
	}
	for _, stmt := range strings.Split(content, ";") {
		if stmt = strings.TrimSpace(stmt); stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d %s: %w\nSQL: %s", m.Version, direction, err, stmt)
		}
	}
	if err := setVersion(ctx, db, target, false); err != nil {
		return fmt.Errorf("clearing dirty flag: %w", err)
	}
	return nil
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, db *sql.DB, log logrus.FieldLogger) error {
	return MigrateTo(ctx, db, math.MaxInt, log)
}

// MigrateTo applies pending migrations up to and including target.
func MigrateTo(ctx context.Context, db *sql.DB, target int, log logrus.FieldLogger) error {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}
	current, dirty, err := CurrentVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", current)
	}
	all, err := LoadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	applied := 0
	for _, m := range all {
		if m.Version <= current {
			continue
		}
		if m.Version > target {
			break
		}
		if err := runMigration(ctx, db, m, true); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"version": m.Version, "name": m.Name}).Info("applied migration")
		applied++
	}
	if applied == 0 {
		log.WithField("version", current).Debug("schema up to date")
	}
	return nil
}

// Rollback migrates down to target.
func Rollback(ctx context.Context, db *sql.DB, target int) error {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}
	current, dirty, err := CurrentVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", current)
	}
	all, err := LoadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	for i := len(all) - 1; i >= 0; i-- {
		m := all[i]
		if m.Version > current {
			continue
		}
		if m.Version <= target {
			break
		}
		if m.DownSQL == "" {
			return fmt.Errorf("no down migration for version %d", m.Version)
		}
		if err := runMigration(ctx, db, m, false); err != nil {
			return err
		}
	}
	return nil
}
