package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	migrationsDir = "sql/migrations"
	// Ключ advisory lock, общий для всех инстансов, запускающих миграции.
	migrationLockKey = int64(20240601)

	schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

var (
	//go:embed sql/migrations/*.sql
	embeddedMigrations embed.FS

	migrationFileRe = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)
)

type direction string

const (
	directionUp   direction = "up"
	directionDown direction = "down"
)

// migration - пара up/down скриптов одной версии схемы.
type migration struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

// MigrationState описывает состояние схемы.
type MigrationState struct {
	// Version - последняя применённая версия, 0 для пустой базы.
	Version int64
	// Applied - количество применённых миграций.
	Applied int
	// Available - количество миграций, встроенных в бинарник.
	Available int
}

// Pending возвращает количество ещё не применённых миграций.
func (s MigrationState) Pending() int {
	if s.Available < s.Applied {
		return 0
	}
	return s.Available - s.Applied
}

// MigrateUp применяет up-миграции. steps=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, directionUp, steps)
}

// MigrateDown откатывает steps миграций, минимум одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.migrate(ctx, directionDown, steps)
}

// MigrationStatus возвращает текущее состояние схемы.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationState, error) {
	if s == nil || s.db == nil {
		return MigrationState{}, errStoreNotInitialized
	}

	migrations, err := readMigrations(embeddedMigrations)
	if err != nil {
		return MigrationState{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(queryCtx, schemaMigrationsDDL); err != nil {
		return MigrationState{}, fmt.Errorf("ensure migration table: %w", err)
	}

	state := MigrationState{Available: len(migrations)}
	if err := s.db.QueryRowContext(queryCtx,
		`SELECT COALESCE(MAX(version), 0), COUNT(*) FROM schema_migrations`,
	).Scan(&state.Version, &state.Applied); err != nil {
		return MigrationState{}, fmt.Errorf("query migration status: %w", err)
	}
	return state, nil
}

func (s *Store) migrate(ctx context.Context, dir direction, steps int) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	if dir != directionUp && dir != directionDown {
		return fmt.Errorf("unsupported migration direction: %s", dir)
	}

	migrations, err := readMigrations(embeddedMigrations)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	session := &migrationSession{conn: conn}
	unlock, err := session.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := conn.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	applied, err := session.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range plan(migrations, applied, dir, steps) {
		if err := session.apply(ctx, m, dir); err != nil {
			return err
		}
	}
	return nil
}

// plan выбирает миграции для применения: up по возрастанию версий, down по убыванию.
func plan(migrations []migration, applied map[int64]bool, dir direction, steps int) []migration {
	selected := make([]migration, 0, len(migrations))
	if dir == directionUp {
		for _, m := range migrations {
			if !applied[m.Version] {
				selected = append(selected, m)
			}
		}
	} else {
		for i := len(migrations) - 1; i >= 0; i-- {
			if applied[migrations[i].Version] {
				selected = append(selected, migrations[i])
			}
		}
	}

	if steps > 0 && len(selected) > steps {
		selected = selected[:steps]
	}
	return selected
}

type migrationSession struct {
	conn *sql.Conn
}

func (m *migrationSession) lock(ctx context.Context) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := m.conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	return func() {
		_, _ = m.conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}, nil
}

func (m *migrationSession) appliedVersions(ctx context.Context) (map[int64]bool, error) {
	rows, err := m.conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

// apply выполняет скрипт и правку schema_migrations в одной транзакции.
func (m *migrationSession) apply(ctx context.Context, mig migration, dir direction) (err error) {
	label := fmt.Sprintf("%s migration %d_%s", dir, mig.Version, mig.Name)

	tx, err := m.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", label, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	script, bookkeeping, args := mig.Up, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, []any{mig.Version, mig.Name}
	if dir == directionDown {
		script, bookkeeping, args = mig.Down, `DELETE FROM schema_migrations WHERE version = $1`, []any{mig.Version}
	}

	if _, err = tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("execute %s: %w", label, err)
	}
	if _, err = tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return fmt.Errorf("record %s: %w", label, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", label, err)
	}
	return nil
}

// readMigrations собирает пары NNNN_name.up.sql / NNNN_name.down.sql из fsys.
func readMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.Glob(fsys, path.Join(migrationsDir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(entries) == 0 {
		return nil, errors.New("no migration files found")
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		file := path.Base(entry)
		parts := migrationFileRe.FindStringSubmatch(file)
		if parts == nil {
			return nil, fmt.Errorf("invalid migration file name: %s", file)
		}

		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version from %s: %w", file, err)
		}

		raw, err := fs.ReadFile(fsys, entry)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", file)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{Version: version, Name: parts[2]}
			byVersion[version] = m
		}
		if m.Name != parts[2] {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, m.Name, parts[2])
		}

		target := &m.Up
		if direction(parts[3]) == directionDown {
			target = &m.Down
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", parts[3], version)
		}
		*target = body
	}

	result := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %d_%s must have both up and down files", m.Version, m.Name)
		}
		result = append(result, *m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	return result, nil
}
