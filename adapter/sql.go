package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/go-json-experiment/json"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/fulldump/todostore/record"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// SQL stores every namespace in one table, a record per row with its JSON payload.
type SQL struct {
	Driver string

	db     *sql.DB
	mutex  sync.Mutex // serializes position allocation
	closed bool
}

func OpenSQLite(filename string) (*SQL, error) {
	if dir := filepath.Dir(filename); dir != "" {
		err := os.MkdirAll(dir, 0o750)
		if err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	return OpenSQL(DriverSQLite, filename)
}

func OpenSQL(driver, dsn string) (*SQL, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one connection keeps sqlite writers from fighting for the lock
		db.SetMaxOpenConns(1)
	}

	ctx := context.Background()
	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s := &SQL{Driver: driver, db: db}
	_, err = s.exec(ctx, `CREATE TABLE IF NOT EXISTS records (
		namespace TEXT NOT NULL,
		id TEXT NOT NULL,
		position BIGINT NOT NULL,
		payload TEXT NOT NULL,
		PRIMARY KEY (namespace, id)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}

	return s, nil
}

// rebind turns ? placeholders into $n for postgres.
func (s *SQL) rebind(query string) string {
	if s.Driver != DriverPostgres {
		return query
	}
	b := strings.Builder{}
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (s *SQL) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

// Namespaces lists the namespaces holding at least one record.
func (s *SQL) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT namespace FROM records ORDER BY namespace`)
	if err != nil {
		return nil, fmt.Errorf("select namespaces: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := []string{}
	for rows.Next() {
		var name string
		err := rows.Scan(&name)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		result = append(result, name)
	}
	return result, rows.Err()
}

func (s *SQL) Drop(ctx context.Context, namespace string) error {
	_, err := s.exec(ctx, `DELETE FROM records WHERE namespace = ?`, namespace)
	return wrap("drop", namespace, "", err)
}

func (s *SQL) Namespace(name string) *SQLNamespace {
	return &SQLNamespace{Name: name, sql: s}
}

func (s *SQL) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQL) isClosed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.closed
}

type SQLNamespace struct {
	Name string
	sql  *SQL
}

func (n *SQLNamespace) Create(ctx context.Context, r record.Record) (string, error) {
	r, id := prepare(r)
	if n.sql.isClosed() {
		return "", wrap("create", n.Name, id, ErrClosed)
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return "", wrap("create", n.Name, id, err)
	}

	n.sql.mutex.Lock()
	defer n.sql.mutex.Unlock()

	_, err = n.sql.exec(ctx, `INSERT INTO records (namespace, id, position, payload)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM records WHERE namespace = ?), ?)
		ON CONFLICT (namespace, id) DO UPDATE SET payload = excluded.payload`,
		n.Name, id, n.Name, string(payload))
	if err != nil {
		return "", wrap("create", n.Name, id, err)
	}

	return id, nil
}

func (n *SQLNamespace) Update(ctx context.Context, r record.Record) error {
	id := r.ID()
	if n.sql.isClosed() {
		return wrap("update", n.Name, id, ErrClosed)
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return wrap("update", n.Name, id, err)
	}

	result, err := n.sql.exec(ctx, `UPDATE records SET payload = ? WHERE namespace = ? AND id = ?`,
		string(payload), n.Name, id)
	if err != nil {
		return wrap("update", n.Name, id, err)
	}
	return wrap("update", n.Name, id, expectOne(result))
}

func (n *SQLNamespace) Delete(ctx context.Context, id string) error {
	if n.sql.isClosed() {
		return wrap("delete", n.Name, id, ErrClosed)
	}

	result, err := n.sql.exec(ctx, `DELETE FROM records WHERE namespace = ? AND id = ?`, n.Name, id)
	if err != nil {
		return wrap("delete", n.Name, id, err)
	}
	return wrap("delete", n.Name, id, expectOne(result))
}

func (n *SQLNamespace) Get(ctx context.Context, id string) (record.Record, error) {
	if n.sql.isClosed() {
		return nil, wrap("get", n.Name, id, ErrClosed)
	}

	var payload string
	err := n.sql.db.QueryRowContext(ctx,
		n.sql.rebind(`SELECT payload FROM records WHERE namespace = ? AND id = ?`), n.Name, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrap("get", n.Name, id, ErrNotFound)
	}
	if err != nil {
		return nil, wrap("get", n.Name, id, err)
	}

	r := record.Record{}
	err = json.Unmarshal([]byte(payload), &r)
	if err != nil {
		return nil, wrap("get", n.Name, id, fmt.Errorf("decode payload: %w", err))
	}
	return r, nil
}

func (n *SQLNamespace) ReadAll(ctx context.Context) ([]record.Record, error) {
	if n.sql.isClosed() {
		return nil, wrap("read", n.Name, "", ErrClosed)
	}

	rows, err := n.sql.db.QueryContext(ctx,
		n.sql.rebind(`SELECT id, payload FROM records WHERE namespace = ? ORDER BY position`), n.Name)
	if err != nil {
		return nil, wrap("read", n.Name, "", err)
	}
	defer func() { _ = rows.Close() }()

	result := []record.Record{}
	for rows.Next() {
		var id, payload string
		err := rows.Scan(&id, &payload)
		if err != nil {
			return nil, wrap("read", n.Name, "", fmt.Errorf("scan: %w", err))
		}
		r := record.Record{}
		err = json.Unmarshal([]byte(payload), &r)
		if err != nil {
			return nil, wrap("read", n.Name, id, fmt.Errorf("decode payload: %w", err))
		}
		result = append(result, r)
	}

	return result, wrap("read", n.Name, "", rows.Err())
}

func expectOne(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
