package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a Store backed by a single SQLite file. Documents are kept as
// JSON blobs keyed by (collection, id); filters are evaluated in-process
// after a collection scan, which is fine at 1:1-chat scale.
type SQLite struct {
	db *sql.DB

	retry retryPolicy

	mu      sync.Mutex
	subs    map[int]*subscriber
	nextSub int
}

// Open creates a SQLite-backed store with WAL mode and busy timeout.
// Transactions start immediate so the read-then-write merge in Update and
// Batch takes the write lock up front, where the busy timeout applies,
// instead of failing the deferred lock upgrade with SQLITE_BUSY.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &SQLite{
		db:    db,
		retry: defaultRetryPolicy(),
		subs:  make(map[int]*subscriber),
	}, nil
}

// Close closes the database and terminates all live subscriptions.
func (s *SQLite) Close() error {
	s.mu.Lock()
	entries := make([]*subscriber, 0, len(s.subs))
	for _, entry := range s.subs {
		entries = append(entries, entry)
	}
	s.mu.Unlock()
	for _, entry := range entries {
		entry.sub.Cancel()
	}
	return s.db.Close()
}

func (s *SQLite) Create(ctx context.Context, collection string, data map[string]any, id string) (string, error) {
	if id == "" {
		id = uuid.New().String()
	}
	blob, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	err = s.retry.do(ctx, func() error {
		now := time.Now().UnixMilli()
		_, execErr := s.db.ExecContext(ctx, `
			INSERT INTO documents (collection, id, data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			collection, id, string(blob), now, now)
		return execErr
	})
	if err != nil {
		return "", err
	}
	s.notify(collection)
	return id, nil
}

func (s *SQLite) Get(ctx context.Context, collection, id string) (*Document, error) {
	var (
		blob               string
		createdAt, updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT data, created_at, updated_at FROM documents
		WHERE collection = ? AND id = ?`, collection, id).
		Scan(&blob, &createdAt, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return decodeDocument(id, blob, createdAt, updated)
}

func (s *SQLite) Query(ctx context.Context, collection string, filters []Filter, orderBy *OrderBy, limit int) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, data, created_at, updated_at FROM documents
		WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()

	var docs []Document
	for rows.Next() {
		var (
			id                 string
			blob               string
			createdAt, updated int64
		)
		if err := rows.Scan(&id, &blob, &createdAt, &updated); err != nil {
			return nil, err
		}
		doc, err := decodeDocument(id, blob, createdAt, updated)
		if err != nil {
			return nil, err
		}
		if matchesAll(doc.Data, filters) {
			docs = append(docs, *doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if orderBy != nil {
		sortDocs(docs, *orderBy)
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *SQLite) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := updateInTx(ctx, tx, collection, id, partial); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	s.notify(collection)
	return nil
}

func (s *SQLite) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.notify(collection)
	return nil
}

func (s *SQLite) Batch(ctx context.Context, writes []Write) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	touched := make(map[string]struct{})
	for _, w := range writes {
		touched[w.Collection] = struct{}{}
		switch w.Kind {
		case WriteCreate:
			id := w.ID
			if id == "" {
				id = uuid.New().String()
			}
			blob, err := json.Marshal(w.Data)
			if err != nil {
				return fmt.Errorf("encode document: %w", err)
			}
			now := time.Now().UnixMilli()
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO documents (collection, id, data, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?)`,
				w.Collection, id, string(blob), now, now); err != nil {
				return fmt.Errorf("batch create %s: %w", w.Collection, err)
			}
		case WriteUpdate:
			if err := updateInTx(ctx, tx, w.Collection, w.ID, w.Data); err != nil {
				return err
			}
		case WriteDelete:
			res, err := tx.ExecContext(ctx, `
				DELETE FROM documents WHERE collection = ? AND id = ?`,
				w.Collection, w.ID)
			if err != nil {
				return fmt.Errorf("batch delete %s/%s: %w", w.Collection, w.ID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("batch delete %s/%s: %w", w.Collection, w.ID, ErrNotFound)
			}
		default:
			return fmt.Errorf("unknown batch write kind %q", w.Kind)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	for c := range touched {
		s.notify(c)
	}
	return nil
}

// updateInTx merges partial data into an existing document inside tx.
func updateInTx(ctx context.Context, tx *sql.Tx, collection, id string, partial map[string]any) error {
	var blob string
	err := tx.QueryRowContext(ctx, `
		SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s/%s: %w", collection, id, err)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	for k, v := range partial {
		if v == nil {
			delete(data, k)
			continue
		}
		data[k] = v
	}

	merged, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		string(merged), time.Now().UnixMilli(), collection, id)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

func decodeDocument(id, blob string, createdAt, updatedAt int64) (*Document, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return &Document{
		ID:        id,
		Data:      data,
		CreatedAt: time.UnixMilli(createdAt),
		UpdatedAt: time.UnixMilli(updatedAt),
	}, nil
}

func matchesAll(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if !matches(data[f.Field], f) {
			return false
		}
	}
	return true
}

func matches(got any, f Filter) bool {
	switch f.Op {
	case OpEq:
		return valueEq(got, f.Value)
	case OpNeq:
		return !valueEq(got, f.Value)
	case OpLt, OpLte, OpGt, OpGte:
		c, ok := compare(got, f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case OpLt:
			return c < 0
		case OpLte:
			return c <= 0
		case OpGt:
			return c > 0
		default:
			return c >= 0
		}
	case OpContains:
		arr, ok := got.([]any)
		if !ok {
			return false
		}
		for _, el := range arr {
			if valueEq(el, f.Value) {
				return true
			}
		}
		return false
	case OpContainsAny:
		arr, ok := got.([]any)
		if !ok {
			return false
		}
		for _, want := range asSlice(f.Value) {
			for _, el := range arr {
				if valueEq(el, want) {
					return true
				}
			}
		}
		return false
	case OpIn:
		for _, want := range asSlice(f.Value) {
			if valueEq(got, want) {
				return true
			}
		}
		return false
	case OpNotIn:
		for _, want := range asSlice(f.Value) {
			if valueEq(got, want) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// valueEq compares a decoded JSON value against a caller-supplied Go value.
// Numbers compare numerically since JSON decoding yields float64.
func valueEq(got, want any) bool {
	if gf, ok := toFloat(got); ok {
		if wf, ok := toFloat(want); ok {
			return gf == wf
		}
		return false
	}
	return got == want
}

func compare(got, want any) (int, bool) {
	if gf, ok := toFloat(got); ok {
		wf, ok := toFloat(want)
		if !ok {
			return 0, false
		}
		switch {
		case gf < wf:
			return -1, true
		case gf > wf:
			return 1, true
		default:
			return 0, true
		}
	}
	gs, ok := got.(string)
	if !ok {
		return 0, false
	}
	ws, ok := want.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(gs, ws), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func asSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, el := range s {
			out[i] = el
		}
		return out
	default:
		return []any{v}
	}
}

func sortDocs(docs []Document, by OrderBy) {
	sort.SliceStable(docs, func(i, j int) bool {
		c, ok := compare(docs[i].Data[by.Field], docs[j].Data[by.Field])
		if !ok {
			return false
		}
		if by.Desc {
			return c > 0
		}
		return c < 0
	})
}
