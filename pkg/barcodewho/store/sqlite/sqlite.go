package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/features"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/ngram"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/sparse"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/store"
)

// sqliteStore implements store.Store on one SQLite file.
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled and creates the
// schema if needed.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", errors.Join(internalerr.ErrStoreUnavailable, err))
	}

	// One writer; the facade serializes access anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", errors.Join(internalerr.ErrStoreUnavailable, err))
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := checkVersion(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS hashes (
	hash TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS feature_columns (
	pos INTEGER PRIMARY KEY,
	name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS feature_rows (
	seq INTEGER PRIMARY KEY,
	handle TEXT NOT NULL,
	category TEXT NOT NULL,
	obs_id TEXT NOT NULL,
	vals BLOB NOT NULL,
	UNIQUE(handle, category, obs_id)
);

CREATE TABLE IF NOT EXISTS feature_aggregates (
	handle TEXT NOT NULL,
	category TEXT NOT NULL,
	mean BLOB NOT NULL,
	std BLOB NOT NULL,
	count INTEGER NOT NULL,
	PRIMARY KEY(handle, category)
);

CREATE TABLE IF NOT EXISTS ngram_rows (
	n INTEGER NOT NULL,
	seq INTEGER NOT NULL,
	handle TEXT NOT NULL,
	category TEXT NOT NULL,
	obs_id TEXT NOT NULL,
	hist BLOB NOT NULL,
	PRIMARY KEY(n, seq)
);

CREATE TABLE IF NOT EXISTS ngram_means (
	n INTEGER NOT NULL,
	handle TEXT NOT NULL,
	category TEXT NOT NULL,
	hist BLOB NOT NULL,
	PRIMARY KEY(n, handle, category)
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES ('schema_version', ?) ON CONFLICT(key) DO NOTHING`,
		strconv.Itoa(store.SchemaVersion))
	return err
}

func checkVersion(ctx context.Context, db *sql.DB) error {
	var v string
	if err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&v); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != strconv.Itoa(store.SchemaVersion) {
		return fmt.Errorf("schema version %s, want %d: %w", v, store.SchemaVersion, internalerr.ErrCorrupt)
	}
	return nil
}

var dataTables = []string{
	"hashes", "feature_columns", "feature_rows", "feature_aggregates", "ngram_rows", "ngram_means",
}

// Reset deletes all data but keeps the schema.
func (s *sqliteStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := clearData(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func clearData(ctx context.Context, tx *sql.Tx) error {
	for _, t := range dataTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("clear %s: %w", t, err)
		}
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM meta WHERE key IN ('latest_update_time', 'max_n')`)
	return err
}

// Save replaces all stored data in one transaction.
func (s *sqliteStore) Save(ctx context.Context, snap store.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := clearData(ctx, tx); err != nil {
		return err
	}
	if err := saveHashes(ctx, tx, snap.Hashes); err != nil {
		return fmt.Errorf("save hashes: %w", err)
	}
	if err := saveFeatures(ctx, tx, snap); err != nil {
		return fmt.Errorf("save features: %w", err)
	}
	if err := saveNGrams(ctx, tx, snap); err != nil {
		return fmt.Errorf("save ngrams: %w", err)
	}
	if err := setMeta(ctx, tx, "max_n", strconv.Itoa(snap.MaxN)); err != nil {
		return err
	}
	if !snap.Watermark.IsZero() {
		if err := setMeta(ctx, tx, "latest_update_time", snap.Watermark.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func setMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value)
	return err
}

func saveHashes(ctx context.Context, tx *sql.Tx, hashes []string) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO hashes(hash) VALUES (?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, h := range hashes {
		if _, err := stmt.ExecContext(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

func saveFeatures(ctx context.Context, tx *sql.Tx, snap store.Snapshot) error {
	for i, c := range snap.Columns {
		if _, err := tx.ExecContext(ctx, `INSERT INTO feature_columns(pos, name) VALUES (?, ?)`, i, c); err != nil {
			return err
		}
	}

	rows, err := tx.PrepareContext(ctx, `INSERT INTO feature_rows(handle, category, obs_id, vals) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for _, id := range sortedKeys(snap.FeatureRows) {
		for _, r := range snap.FeatureRows[id] {
			blob, err := msgpack.Marshal(r.Values)
			if err != nil {
				return err
			}
			if _, err := rows.ExecContext(ctx, id.Handle, id.Category, r.ID, blob); err != nil {
				return err
			}
		}
	}

	aggs, err := tx.PrepareContext(ctx, `INSERT INTO feature_aggregates(handle, category, mean, std, count) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer aggs.Close()
	for id, mean := range snap.Features.Mean {
		mb, err := msgpack.Marshal(mean)
		if err != nil {
			return err
		}
		sb, err := msgpack.Marshal(snap.Features.Std[id])
		if err != nil {
			return err
		}
		if _, err := aggs.ExecContext(ctx, id.Handle, id.Category, mb, sb, snap.Features.General[id].Count); err != nil {
			return err
		}
	}
	return nil
}

func saveNGrams(ctx context.Context, tx *sql.Tx, snap store.Snapshot) error {
	rows, err := tx.PrepareContext(ctx, `INSERT INTO ngram_rows(n, seq, handle, category, obs_id, hist) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for i, table := range snap.NGramRows {
		for seq, r := range table {
			blob, err := sparse.Encode(r.Hist)
			if err != nil {
				return err
			}
			if _, err := rows.ExecContext(ctx, i+1, seq, r.Key.Handle, r.Key.Category, r.ID, blob); err != nil {
				return err
			}
		}
	}

	means, err := tx.PrepareContext(ctx, `INSERT INTO ngram_means(n, handle, category, hist) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer means.Close()
	for i, m := range snap.NGramMeans {
		for id, v := range m {
			blob, err := sparse.Encode(v)
			if err != nil {
				return err
			}
			if _, err := means.ExecContext(ctx, i+1, id.Handle, id.Category, blob); err != nil {
				return err
			}
		}
	}
	return nil
}

// Load reads the whole database.
func (s *sqliteStore) Load(ctx context.Context) (store.Snapshot, error) {
	var snap store.Snapshot
	meta, err := s.loadMeta(ctx)
	if err != nil {
		return snap, err
	}
	if v, ok := meta["latest_update_time"]; ok {
		if snap.Watermark, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return snap, fmt.Errorf("parse watermark %q: %w", v, errors.Join(internalerr.ErrCorrupt, err))
		}
	}
	if v, ok := meta["max_n"]; ok {
		if snap.MaxN, err = strconv.Atoi(v); err != nil {
			return snap, fmt.Errorf("parse max_n %q: %w", v, errors.Join(internalerr.ErrCorrupt, err))
		}
	}

	if snap.Hashes, err = s.loadHashes(ctx); err != nil {
		return snap, fmt.Errorf("load hashes: %w", err)
	}
	if err := s.loadFeatures(ctx, &snap); err != nil {
		return snap, fmt.Errorf("load features: %w", err)
	}
	if err := s.loadNGrams(ctx, &snap); err != nil {
		return snap, fmt.Errorf("load ngrams: %w", err)
	}
	return snap, nil
}

func (s *sqliteStore) loadMeta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *sqliteStore) loadHashes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT hash FROM hashes ORDER BY hash`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *sqliteStore) loadFeatures(ctx context.Context, snap *store.Snapshot) error {
	cols, err := s.db.QueryContext(ctx, `SELECT name FROM feature_columns ORDER BY pos`)
	if err != nil {
		return err
	}
	for cols.Next() {
		var name string
		if err := cols.Scan(&name); err != nil {
			cols.Close()
			return err
		}
		snap.Columns = append(snap.Columns, name)
	}
	cols.Close()
	if err := cols.Err(); err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT handle, category, obs_id, vals FROM feature_rows ORDER BY seq`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id identity.Key
		var obsID string
		var blob []byte
		if err := rows.Scan(&id.Handle, &id.Category, &obsID, &blob); err != nil {
			return err
		}
		vals, err := decodeFloats(blob, len(snap.Columns))
		if err != nil {
			return fmt.Errorf("row %v/%s: %w", id, obsID, err)
		}
		if snap.FeatureRows == nil {
			snap.FeatureRows = make(map[identity.Key][]features.Row)
		}
		snap.FeatureRows[id] = append(snap.FeatureRows[id], features.Row{ID: obsID, Values: vals})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	snap.Features = features.Snapshot{
		Columns: append([]string(nil), snap.Columns...),
		Mean:    make(map[identity.Key][]float64),
		Std:     make(map[identity.Key][]float64),
		General: make(map[identity.Key]features.General),
	}
	aggs, err := s.db.QueryContext(ctx, `SELECT handle, category, mean, std, count FROM feature_aggregates`)
	if err != nil {
		return err
	}
	defer aggs.Close()
	for aggs.Next() {
		var id identity.Key
		var mb, sb []byte
		var count int
		if err := aggs.Scan(&id.Handle, &id.Category, &mb, &sb, &count); err != nil {
			return err
		}
		mean, err := decodeFloats(mb, len(snap.Columns))
		if err != nil {
			return err
		}
		std, err := decodeFloats(sb, len(snap.Columns))
		if err != nil {
			return err
		}
		snap.Features.Mean[id] = mean
		snap.Features.Std[id] = std
		snap.Features.General[id] = features.General{Handle: id.Handle, Category: id.Category, Count: count}
	}
	return aggs.Err()
}

func (s *sqliteStore) loadNGrams(ctx context.Context, snap *store.Snapshot) error {
	if snap.MaxN == 0 {
		return nil
	}
	snap.NGramRows = make([][]ngram.Row, snap.MaxN)
	snap.NGramMeans = make([]map[identity.Key]sparse.Vector, snap.MaxN)
	for i := range snap.NGramMeans {
		snap.NGramMeans[i] = make(map[identity.Key]sparse.Vector)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT n, handle, category, obs_id, hist FROM ngram_rows ORDER BY n, seq`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var n int
		var r ngram.Row
		var blob []byte
		if err := rows.Scan(&n, &r.Key.Handle, &r.Key.Category, &r.ID, &blob); err != nil {
			return err
		}
		if n < 1 || n > snap.MaxN {
			return fmt.Errorf("row length %d outside 1..%d: %w", n, snap.MaxN, internalerr.ErrCorrupt)
		}
		if r.Hist, err = sparse.Decode(blob); err != nil {
			return err
		}
		snap.NGramRows[n-1] = append(snap.NGramRows[n-1], r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	means, err := s.db.QueryContext(ctx, `SELECT n, handle, category, hist FROM ngram_means`)
	if err != nil {
		return err
	}
	defer means.Close()
	for means.Next() {
		var n int
		var id identity.Key
		var blob []byte
		if err := means.Scan(&n, &id.Handle, &id.Category, &blob); err != nil {
			return err
		}
		if n < 1 || n > snap.MaxN {
			return fmt.Errorf("mean length %d outside 1..%d: %w", n, snap.MaxN, internalerr.ErrCorrupt)
		}
		v, err := sparse.Decode(blob)
		if err != nil {
			return err
		}
		snap.NGramMeans[n-1][id] = v
	}
	return means.Err()
}

func decodeFloats(blob []byte, width int) ([]float64, error) {
	var vals []float64
	if err := msgpack.Unmarshal(blob, &vals); err != nil {
		return nil, errors.Join(internalerr.ErrCorrupt, err)
	}
	if len(vals) != width {
		return nil, fmt.Errorf("%d values for %d columns: %w", len(vals), width, internalerr.ErrCorrupt)
	}
	return vals, nil
}

func sortedKeys[V any](m map[identity.Key]V) []identity.Key {
	keys := make([]identity.Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	identity.Sort(keys)
	return keys
}
