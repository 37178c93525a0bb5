// Package migrate applies file-driven SQL migrations and seed scripts.
// Bookkeeping lives in two tables keyed by file name, so reruns are
// idempotent and scripts apply in lexical order.
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

	"go.uber.org/zap"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"

	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Manager runs migration and seed scripts from disk against one database.
type Manager struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
	log           *zap.Logger
}

// Option configures Manager.
type Option func(*Manager)

// WithLogger attaches a logger; by default the manager is silent.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewManager constructs a Manager.
func NewManager(db *sql.DB, migrationsDir, seedsDir string, opts ...Option) *Manager {
	m := &Manager{
		db:            db,
		migrationsDir: migrationsDir,
		seedsDir:      seedsDir,
		log:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies every pending migration and returns how many ran.
func (m *Manager) Up(ctx context.Context) (int, error) {
	if err := m.ensureTables(ctx); err != nil {
		return 0, err
	}
	return m.applyPending(ctx, migrationsTable, m.migrationsDir, upSuffix)
}

// Seed applies every pending seed script and returns how many ran.
func (m *Manager) Seed(ctx context.Context) (int, error) {
	if err := m.ensureTables(ctx); err != nil {
		return 0, err
	}
	return m.applyPending(ctx, seedsTable, m.seedsDir, ".sql")
}

// Down rolls back the most recently applied migration.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	applied, err := m.appliedInOrder(ctx, migrationsTable)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return errors.New("no migrations applied")
	}
	last := applied[len(applied)-1]
	downPath := strings.TrimSuffix(filepath.Join(m.migrationsDir, last), upSuffix) + downSuffix
	if _, err := os.Stat(downPath); err != nil {
		return fmt.Errorf("missing down migration for %s", last)
	}
	if err := m.runFile(ctx, downPath); err != nil {
		return fmt.Errorf("rollback migration %s: %w", last, err)
	}
	if _, err := m.db.ExecContext(ctx,
		`delete from `+migrationsTable+` where name = $1`, last); err != nil {
		return err
	}
	m.log.Info("migration rolled back", zap.String("name", last))
	return nil
}

// Status returns applied migrations in application order.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureTables(ctx); err != nil {
		return nil, err
	}
	return m.appliedInOrder(ctx, migrationsTable)
}

func (m *Manager) applyPending(ctx context.Context, table, dir, suffix string) (int, error) {
	done, err := m.appliedSet(ctx, table)
	if err != nil {
		return 0, err
	}
	scripts, err := loadScripts(dir, suffix)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, script := range scripts {
		if done[script.name] {
			continue
		}
		if err := m.runFile(ctx, script.path); err != nil {
			return applied, fmt.Errorf("apply %s: %w", script.name, err)
		}
		if _, err := m.db.ExecContext(ctx,
			`insert into `+table+`(name, applied_at) values ($1, $2)`,
			script.name, time.Now().UTC()); err != nil {
			return applied, err
		}
		m.log.Info("script applied", zap.String("name", script.name))
		applied++
	}
	return applied, nil
}

func (m *Manager) ensureTables(ctx context.Context) error {
	for _, table := range []string{migrationsTable, seedsTable} {
		ddl := `create table if not exists ` + table + ` (
			name text primary key,
			applied_at timestamptz not null default now()
		)`
		if _, err := m.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// runFile executes one script, all statements in one transaction.
func (m *Manager) runFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitSQL(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) appliedSet(ctx context.Context, table string) (map[string]bool, error) {
	names, err := m.appliedInOrder(ctx, table)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set, nil
}

func (m *Manager) appliedInOrder(ctx context.Context, table string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		`select name from `+table+` order by applied_at asc, name asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

type script struct {
	name string
	path string
}

func loadScripts(dir, suffix string) ([]script, error) {
	if dir == "" {
		return nil, nil
	}
	var scripts []script
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		scripts = append(scripts, script{name: d.Name(), path: path})
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].name < scripts[j].name })
	return scripts, nil
}

// splitSQL splits a script on semicolons outside single-quoted strings.
// Good enough for DDL and seed files; no dollar-quoting support.
func splitSQL(input string) []string {
	var stmts []string
	var current strings.Builder
	inString := false
	for _, r := range input {
		current.WriteRune(r)
		switch r {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
