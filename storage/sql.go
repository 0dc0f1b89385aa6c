package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type dialect struct {
	driver    string
	blobType  string
	numbered  bool
	singleCon bool
}

var (
	sqliteDialect   = dialect{driver: "sqlite", blobType: "BLOB", singleCon: true}
	postgresDialect = dialect{driver: "pgx", blobType: "BYTEA", numbered: true}
)

// bind rewrites ? placeholders to $n for drivers that need it.
func (d dialect) bind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore keeps all collections in one table keyed by (collection, key).
type SQLStore struct {
	db *sql.DB
	d  dialect
}

// OpenSQLite opens or creates the database file at path.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	return openSQL(ctx, sqliteDialect, dsn)
}

// OpenPostgres connects to databaseURL through the pgx driver.
func OpenPostgres(ctx context.Context, databaseURL string) (*SQLStore, error) {
	return openSQL(ctx, postgresDialect, databaseURL)
}

func openSQL(ctx context.Context, d dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if d.singleCon {
		db.SetMaxOpenConns(1)
	} else {
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetMaxIdleConns(5)
		db.SetMaxOpenConns(10)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := &SQLStore{db: db, d: d}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS workflow_kv (
	collection TEXT NOT NULL,
	item_key TEXT NOT NULL,
	data ` + s.d.blobType + ` NOT NULL,
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (collection, item_key)
)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		s.d.bind(`SELECT data FROM workflow_kv WHERE collection = ? AND item_key = ?`),
		collection, key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *SQLStore) Put(ctx context.Context, collection, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, s.d.bind(`INSERT INTO workflow_kv (collection, item_key, data, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (collection, item_key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`),
		collection, key, value, time.Now().UnixNano(),
	)
	return err
}

func (s *SQLStore) Delete(ctx context.Context, collection, key string) error {
	_, err := s.db.ExecContext(ctx,
		s.d.bind(`DELETE FROM workflow_kv WHERE collection = ? AND item_key = ?`),
		collection, key,
	)
	return err
}

func (s *SQLStore) GetAll(ctx context.Context, collection string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		s.d.bind(`SELECT data FROM workflow_kv WHERE collection = ?`),
		collection,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := [][]byte{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		values = append(values, data)
	}
	return values, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
