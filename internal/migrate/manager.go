package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const historyTable = "schema_migrations"

// Manager applies the circulation schema from .up.sql/.down.sql pairs on disk.
// Applied file names are recorded in schema_migrations so Up is idempotent.
type Manager struct {
	db  *sql.DB
	dir string
}

func NewManager(db *sql.DB, dir string) *Manager {
	return &Manager{db: db, dir: dir}
}

// Up applies all pending migrations in lexical order and returns their names.
func (m *Manager) Up(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := m.appliedSet(ctx)
	if err != nil {
		return nil, err
	}
	files, err := collectSQL(m.dir, ".up.sql")
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, mig := range files {
		if done[mig.base] {
			continue
		}
		if err := m.execFile(ctx, mig.path); err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", mig.base, err)
		}
		if _, err := m.db.ExecContext(ctx,
			`insert into schema_migrations(name, applied_at) values ($1, $2)`,
			mig.base, time.Now().UTC()); err != nil {
			return applied, err
		}
		applied = append(applied, mig.base)
	}
	return applied, nil
}

// Down rolls back the most recently applied migration.
func (m *Manager) Down(ctx context.Context) (string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return "", err
	}
	history, err := m.applied(ctx)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", errors.New("no migrations applied")
	}
	last := history[len(history)-1]
	downPath := strings.TrimSuffix(filepath.Join(m.dir, last), ".up.sql") + ".down.sql"
	if _, err := os.Stat(downPath); err != nil {
		return "", fmt.Errorf("missing down migration for %s", last)
	}
	if err := m.execFile(ctx, downPath); err != nil {
		return "", fmt.Errorf("rollback migration %s: %w", last, err)
	}
	if _, err := m.db.ExecContext(ctx, `delete from schema_migrations where name = $1`, last); err != nil {
		return "", err
	}
	return last, nil
}

// Status reports applied migrations in order, and the ones still pending.
func (m *Manager) Status(ctx context.Context) (applied, pending []string, err error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, nil, err
	}
	applied, err = m.applied(ctx)
	if err != nil {
		return nil, nil, err
	}
	done, err := m.appliedSet(ctx)
	if err != nil {
		return nil, nil, err
	}
	files, err := collectSQL(m.dir, ".up.sql")
	if err != nil {
		return nil, nil, err
	}
	for _, mig := range files {
		if !done[mig.base] {
			pending = append(pending, mig.base)
		}
	}
	return applied, pending, nil
}

func (m *Manager) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf(`
		create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		);`, historyTable))
	return err
}

// execFile runs one migration file inside a single transaction.
func (m *Manager) execFile(ctx context.Context, path string) error {
	sqlBytes, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range SplitStatements(string(sqlBytes)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) appliedSet(ctx context.Context) (map[string]bool, error) {
	names, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

func (m *Manager) applied(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s order by applied_at asc, name asc`, historyTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

type sqlFile struct {
	base string
	path string
}

func collectSQL(dir, suffix string) ([]sqlFile, error) {
	if dir == "" {
		return nil, nil
	}
	var files []sqlFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), suffix) {
			files = append(files, sqlFile{base: d.Name(), path: path})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].base < files[j].base
	})
	return files, nil
}

// SplitStatements splits SQL text on semicolons outside string literals.
func SplitStatements(sql string) []string {
	var stmts []string
	var current strings.Builder
	var inString bool
	for _, r := range sql {
		switch r {
		case '\'':
			current.WriteRune(r)
			inString = !inString
		case ';':
			current.WriteRune(r)
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
