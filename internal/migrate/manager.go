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
	"time"
)

//go:embed sql/*.sql
var embedded embed.FS

const (
	defaultMigrationsTable = "schema_migrations"
	// advisoryLockKey serialises concurrent runners against one database.
	advisoryLockKey = 0x7465737365726100
)

// Embedded returns the schema migrations compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

// Manager applies *.up.sql / *.down.sql pairs from a file system.
type Manager struct {
	db              *sql.DB
	files           fs.FS
	migrationsTable string
	lock            bool
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable overrides the default migrations bookkeeping table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.migrationsTable = name
		}
	}
}

// WithoutLock skips the session advisory lock, for databases that lack it.
func WithoutLock() Option {
	return func(m *Manager) { m.lock = false }
}

// NewManager constructs a Manager reading migrations from files.
func NewManager(db *sql.DB, files fs.FS, opts ...Option) *Manager {
	m := &Manager{
		db:              db,
		files:           files,
		migrationsTable: defaultMigrationsTable,
		lock:            true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies all pending migrations and returns the names it applied.
func (m *Manager) Up(ctx context.Context) ([]string, error) {
	var applied []string
	err := m.withLock(ctx, func(conn *sql.Conn) error {
		if err := m.ensureTable(ctx, conn); err != nil {
			return err
		}
		executed, err := m.listExecuted(ctx, conn)
		if err != nil {
			return err
		}
		files, err := collectSQL(m.files, ".up.sql")
		if err != nil {
			return err
		}
		for _, name := range files {
			if executed[name] {
				continue
			}
			if err := m.exec(ctx, conn, name, func(tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, m.migrationsTable),
					name, time.Now().UTC())
				return err
			}); err != nil {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
			applied = append(applied, name)
		}
		return nil
	})
	return applied, err
}

// Down rolls back the most recent applied migration and returns its name.
func (m *Manager) Down(ctx context.Context) (string, error) {
	var rolled string
	err := m.withLock(ctx, func(conn *sql.Conn) error {
		if err := m.ensureTable(ctx, conn); err != nil {
			return err
		}
		executed, err := m.history(ctx, conn)
		if err != nil {
			return err
		}
		if len(executed) == 0 {
			return errors.New("no migrations applied")
		}
		last := executed[len(executed)-1]
		down := strings.TrimSuffix(last, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(m.files, down); err != nil {
			return fmt.Errorf("missing down migration for %s", last)
		}
		if err := m.exec(ctx, conn, down, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, fmt.Sprintf(`delete from %s where name = $1`, m.migrationsTable), last)
			return err
		}); err != nil {
			return fmt.Errorf("rollback migration %s: %w", last, err)
		}
		rolled = last
		return nil
	})
	return rolled, err
}

// Status returns applied migrations in order.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if err := m.ensureTable(ctx, conn); err != nil {
		return nil, err
	}
	return m.history(ctx, conn)
}

func (m *Manager) withLock(ctx context.Context, fn func(*sql.Conn) error) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if m.lock {
		if _, err := conn.ExecContext(ctx, `select pg_advisory_lock($1)`, int64(advisoryLockKey)); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		defer func() {
			_, _ = conn.ExecContext(context.WithoutCancel(ctx), `select pg_advisory_unlock($1)`, int64(advisoryLockKey))
		}()
	}
	return fn(conn)
}

func (m *Manager) ensureTable(ctx context.Context, conn *sql.Conn) error {
	ddl := fmt.Sprintf(`
		create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		);`, m.migrationsTable)
	_, err := conn.ExecContext(ctx, ddl)
	return err
}

// exec runs every statement of a file and the bookkeeping step in one
// transaction.
func (m *Manager) exec(ctx context.Context, conn *sql.Conn, name string, record func(*sql.Tx) error) error {
	sqlBytes, err := fs.ReadFile(m.files, name)
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(sqlBytes)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if err := record(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *Manager) listExecuted(ctx context.Context, conn *sql.Conn) (map[string]bool, error) {
	names, err := m.history(ctx, conn)
	if err != nil {
		return nil, err
	}
	result := make(map[string]bool, len(names))
	for _, name := range names {
		result[name] = true
	}
	return result, nil
}

func (m *Manager) history(ctx context.Context, conn *sql.Conn) ([]string, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`select name from %s order by name asc`, m.migrationsTable))
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

func collectSQL(files fs.FS, suffix string) ([]string, error) {
	if files == nil {
		return nil, nil
	}
	var names []string
	err := fs.WalkDir(files, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), suffix) {
			names = append(names, path.Clean(p))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// splitStatements splits SQL on semicolons outside single-quoted literals and
// drops line comments.
func splitStatements(sql string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
	)
	for _, line := range strings.SplitAfter(sql, "\n") {
		if !inString && strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for _, r := range line {
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
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
