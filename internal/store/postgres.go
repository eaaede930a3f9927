package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore is the reference IndexStore backend. It follows the
// connection-pool-tuning idiom used throughout the retrieval pack's
// database/sql call sites: a bounded pool of long-lived connections shared
// by every crawler worker and the query server, each call scoped to a
// context so a hung query can't wedge a caller forever.
type PostgresStore struct {
	db *sql.DB
}

// DSN builds a libpq-style connection string from the discrete fields spec
// §6 requires in the config file.
func DSN(host, port, name, user, password string) string {
	return fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		host, port, name, user, password,
	)
}

// NewPostgresStore opens a connection pool against dsn and verifies
// reachability with a bounded ping before returning.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, unavailable(err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable(err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id SERIAL PRIMARY KEY,
			url TEXT UNIQUE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS words (
			id SERIAL PRIMARY KEY,
			word TEXT UNIQUE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS word_doc (
			word_id INTEGER NOT NULL REFERENCES words(id),
			doc_id INTEGER NOT NULL REFERENCES documents(id),
			frequency INTEGER NOT NULL,
			PRIMARY KEY (word_id, doc_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return unavailableOrIntegrity(err)
		}
	}
	return nil
}

// UpsertDocument uses Postgres's ON CONFLICT DO UPDATE ... RETURNING idiom
// rather than the original SELECT-then-INSERT the distilled source used
// (see DESIGN.md): a single round trip is atomic with respect to racing
// callers, which a separate SELECT followed by INSERT is not.
func (s *PostgresStore) UpsertDocument(ctx context.Context, url string) (int64, error) {
	const q = `
		INSERT INTO documents (url) VALUES ($1)
		ON CONFLICT (url) DO UPDATE SET url = EXCLUDED.url
		RETURNING id`
	var id int64
	if err := s.db.QueryRowContext(ctx, q, url).Scan(&id); err != nil {
		return 0, unavailableOrIntegrity(err)
	}
	return id, nil
}

func (s *PostgresStore) UpsertWord(ctx context.Context, word string) (int64, error) {
	const q = `
		INSERT INTO words (word) VALUES ($1)
		ON CONFLICT (word) DO UPDATE SET word = EXCLUDED.word
		RETURNING id`
	var id int64
	if err := s.db.QueryRowContext(ctx, q, word).Scan(&id); err != nil {
		return 0, unavailableOrIntegrity(err)
	}
	return id, nil
}

// PutPosting mirrors the distilled source's conflict policy exactly:
// ON CONFLICT DO UPDATE SET frequency = EXCLUDED.frequency, i.e. the most
// recent call for a (wordID, docID) pair wins.
func (s *PostgresStore) PutPosting(ctx context.Context, wordID, docID int64, count int) error {
	const q = `
		INSERT INTO word_doc (word_id, doc_id, frequency) VALUES ($1, $2, $3)
		ON CONFLICT (word_id, doc_id) DO UPDATE SET frequency = EXCLUDED.frequency`
	if _, err := s.db.ExecContext(ctx, q, wordID, docID, count); err != nil {
		return unavailableOrIntegrity(err)
	}
	return nil
}

// Search requires every term in terms to be present on the returned
// document, ranked by the summed frequency across those terms and, on
// ties, ascending url.
func (s *PostgresStore) Search(ctx context.Context, terms []string, limit int) ([]Posting, error) {
	if len(terms) == 0 || len(terms) > 4 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	placeholders := make([]string, len(terms))
	args := make([]any, 0, len(terms)+2)
	for i, term := range terms {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, term)
	}
	args = append(args, len(terms), limit)

	q := fmt.Sprintf(`
		SELECT d.url, SUM(wd.frequency) AS score
		FROM documents d
		JOIN word_doc wd ON d.id = wd.doc_id
		JOIN words w ON w.id = wd.word_id
		WHERE w.word IN (%s)
		GROUP BY d.id
		HAVING COUNT(DISTINCT w.word) = $%d
		ORDER BY score DESC, d.url ASC
		LIMIT $%d`, strings.Join(placeholders, ", "), len(terms)+1, len(terms)+2)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailableOrIntegrity(err)
	}
	defer rows.Close()

	var results []Posting
	for rows.Next() {
		var p Posting
		if err := rows.Scan(&p.URL, &p.Score); err != nil {
			return nil, integrity(err)
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailableOrIntegrity(err)
	}
	// Defensive, deterministic re-sort: the SQL ORDER BY already guarantees
	// this, kept so callers exercising a store stub without a real optimizer
	// still observe the documented tie-break.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].URL < results[j].URL
	})
	return results, nil
}

func unavailableOrIntegrity(err error) error {
	var netErr net.Error
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return unavailable(err)
	}
	return integrity(err)
}
