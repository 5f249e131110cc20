package docstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func testStore(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMigrateIdempotent(t *testing.T) {
	s := testStore(t)

	result, err := s.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestCreateAndGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CollectionUsers, map[string]any{"name": "alice", "phone": "+1555"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}

	doc, err := s.Get(ctx, CollectionUsers, id)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Data["name"] != "alice" {
		t.Errorf("name = %v, want alice", doc.Data["name"])
	}
	if doc.CreatedAt.IsZero() || doc.UpdatedAt.IsZero() {
		t.Error("timestamps not stamped")
	}
}

func TestCreateWithExplicitID(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CollectionUsers, map[string]any{"name": "bob"}, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if id != "user-1" {
		t.Errorf("id = %q, want user-1", id)
	}

	// Duplicate id is not transient and must fail without retrying.
	if _, err := s.Create(ctx, CollectionUsers, map[string]any{"name": "imposter"}, "user-1"); err == nil {
		t.Error("duplicate create should fail")
	}
}

func TestGetNotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.Get(context.Background(), CollectionUsers, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateMergesPartial(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CollectionUsers, map[string]any{"name": "carol", "status": "online"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Update(ctx, CollectionUsers, id, map[string]any{"status": "away"}); err != nil {
		t.Fatal(err)
	}

	doc, err := s.Get(ctx, CollectionUsers, id)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Data["status"] != "away" {
		t.Errorf("status = %v, want away", doc.Data["status"])
	}
	if doc.Data["name"] != "carol" {
		t.Errorf("name = %v, want carol (merge must keep other fields)", doc.Data["name"])
	}
}

func TestUpdateNilDeletesField(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CollectionMessages, map[string]any{"content": "hello", "order": 1}, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Update(ctx, CollectionMessages, id, map[string]any{"content": nil}); err != nil {
		t.Fatal(err)
	}

	doc, err := s.Get(ctx, CollectionMessages, id)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := doc.Data["content"]; ok {
		t.Error("content should have been removed")
	}
}

func TestUpdateNotFound(t *testing.T) {
	s := testStore(t)
	err := s.Update(context.Background(), CollectionUsers, "missing", map[string]any{"a": 1})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateConcurrentWriters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CollectionConversations, map[string]any{"seed": true}, "")
	if err != nil {
		t.Fatal(err)
	}

	// Each writer merges its own field. Transactions start immediate, so
	// concurrent writers queue on the write lock under the busy timeout
	// instead of failing the deferred lock upgrade.
	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			field := fmt.Sprintf("f%d", i)
			errs <- s.Update(ctx, CollectionConversations, id, map[string]any{field: i})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	doc, err := s.Get(ctx, CollectionConversations, id)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < writers; i++ {
		if _, ok := doc.Data[fmt.Sprintf("f%d", i)]; !ok {
			t.Errorf("field f%d missing after concurrent merges", i)
		}
	}
}

func TestDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CollectionTabs, map[string]any{"name": "General"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, CollectionTabs, id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, CollectionTabs, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound after delete", err)
	}
	if err := s.Delete(ctx, CollectionTabs, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestQueryFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	seed := []map[string]any{
		{"tabId": "t1", "order": 1, "deleted": false, "participants": []any{"a", "b"}},
		{"tabId": "t1", "order": 2, "deleted": true, "participants": []any{"a", "c"}},
		{"tabId": "t2", "order": 3, "deleted": false, "participants": []any{"b", "c"}},
	}
	for i, d := range seed {
		if _, err := s.Create(ctx, CollectionMessages, d, fmt.Sprintf("m%d", i+1)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name    string
		filters []Filter
		wantIDs []string
	}{
		{"eq", []Filter{Where("tabId", OpEq, "t1")}, []string{"m1", "m2"}},
		{"neq", []Filter{Where("tabId", OpNeq, "t1")}, []string{"m3"}},
		{"gt", []Filter{Where("order", OpGt, 1)}, []string{"m2", "m3"}},
		{"gte", []Filter{Where("order", OpGte, 2)}, []string{"m2", "m3"}},
		{"lt", []Filter{Where("order", OpLt, 2)}, []string{"m1"}},
		{"lte", []Filter{Where("order", OpLte, 2)}, []string{"m1", "m2"}},
		{"combined", []Filter{Where("tabId", OpEq, "t1"), Where("deleted", OpEq, false)}, []string{"m1"}},
		{"array-contains", []Filter{Where("participants", OpContains, "a")}, []string{"m1", "m2"}},
		{"array-contains-any", []Filter{Where("participants", OpContainsAny, []string{"b"})}, []string{"m1", "m3"}},
		{"in", []Filter{Where("tabId", OpIn, []string{"t2"})}, []string{"m3"}},
		{"not-in", []Filter{Where("tabId", OpNotIn, []string{"t1"})}, []string{"m3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Query(ctx, CollectionMessages, tt.filters, &OrderBy{Field: "order"}, 0)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, d := range docs {
				got = append(got, d.ID)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %v, want %v", got, tt.wantIDs)
			}
			for i := range got {
				if got[i] != tt.wantIDs[i] {
					t.Fatalf("got %v, want %v", got, tt.wantIDs)
				}
			}
		})
	}
}

func TestQueryOrderAndLimit(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if _, err := s.Create(ctx, CollectionMessages, map[string]any{"order": i}, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	docs, err := s.Query(ctx, CollectionMessages, nil, &OrderBy{Field: "order", Desc: true}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	if docs[0].ID != "m5" || docs[1].ID != "m4" {
		t.Errorf("got [%s %s], want [m5 m4]", docs[0].ID, docs[1].ID)
	}
}

func TestBatchAtomic(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, CollectionTabs, map[string]any{"order": 0}, "t1"); err != nil {
		t.Fatal(err)
	}

	// A batch containing an update on a missing id must leave no trace.
	err := s.Batch(ctx, []Write{
		{Kind: WriteUpdate, Collection: CollectionTabs, ID: "t1", Data: map[string]any{"order": 7}},
		{Kind: WriteUpdate, Collection: CollectionTabs, ID: "missing", Data: map[string]any{"order": 8}},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	doc, err := s.Get(ctx, CollectionTabs, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := doc.Data["order"].(float64); got != 0 {
		t.Errorf("order = %v, want 0 (failed batch must roll back)", doc.Data["order"])
	}

	// A valid batch applies all writes.
	err = s.Batch(ctx, []Write{
		{Kind: WriteCreate, Collection: CollectionTabs, ID: "t2", Data: map[string]any{"order": 1}},
		{Kind: WriteUpdate, Collection: CollectionTabs, ID: "t1", Data: map[string]any{"order": 2}},
	})
	if err != nil {
		t.Fatal(err)
	}
	docs, err := s.Query(ctx, CollectionTabs, nil, &OrderBy{Field: "order"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d tabs, want 2", len(docs))
	}
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	s := testStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := s.Subscribe(ctx, CollectionTabs, []Filter{Where("conversationId", OpEq, "c1")}, &OrderBy{Field: "order"})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	// Initial snapshot is empty.
	select {
	case docs := <-sub.Snapshots():
		if len(docs) != 0 {
			t.Fatalf("initial snapshot has %d docs, want 0", len(docs))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for initial snapshot")
	}

	if _, err := s.Create(ctx, CollectionTabs, map[string]any{"conversationId": "c1", "order": 0}, "t1"); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case docs := <-sub.Snapshots():
			if len(docs) == 1 && docs[0].ID == "t1" {
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for updated snapshot")
		}
	}
}

func TestSubscribeCancel(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, CollectionTabs, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	<-sub.Snapshots()
	sub.Cancel()

	select {
	case _, ok := <-sub.Snapshots():
		if ok {
			// A snapshot may have been in flight; the channel must
			// still close afterwards.
			if _, ok := <-sub.Snapshots(); ok {
				t.Error("channel still open after cancel")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}

func TestRetryTransientOnly(t *testing.T) {
	p := retryPolicy{
		attempts: 3,
		backoff:  func(int) time.Duration { return 0 },
		sleep:    func(context.Context, time.Duration) error { return nil },
	}

	t.Run("permanent error fails immediately", func(t *testing.T) {
		calls := 0
		err := p.do(context.Background(), func() error {
			calls++
			return errors.New("constraint violation")
		})
		if err == nil || calls != 1 {
			t.Errorf("calls = %d, err = %v; want 1 call, immediate error", calls, err)
		}
		if errors.Is(err, ErrUnavailable) {
			t.Error("permanent error must not be reported as ErrUnavailable")
		}
	})

	t.Run("transient error exhausts budget", func(t *testing.T) {
		calls := 0
		err := p.do(context.Background(), func() error {
			calls++
			return errors.New("database is locked")
		})
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("err = %v, want ErrUnavailable", err)
		}
	})

	t.Run("transient error recovers", func(t *testing.T) {
		calls := 0
		err := p.do(context.Background(), func() error {
			calls++
			if calls < 2 {
				return errors.New("timeout")
			}
			return nil
		})
		if err != nil || calls != 2 {
			t.Errorf("calls = %d, err = %v; want recovery on attempt 2", calls, err)
		}
	})
}

func TestBackoffSchedule(t *testing.T) {
	p := defaultRetryPolicy()
	if got := p.backoff(1); got != 2*time.Second {
		t.Errorf("backoff(1) = %v, want 2s", got)
	}
	if got := p.backoff(2); got != 4*time.Second {
		t.Errorf("backoff(2) = %v, want 4s", got)
	}
}
