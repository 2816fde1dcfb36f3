package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mcontarini/converse/internal/kv"
	"github.com/mcontarini/converse/internal/logger"
	"github.com/mcontarini/converse/internal/observability"
)

var metricsSeq atomic.Int64

func testMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("test_session_%d", metricsSeq.Add(1)))
}

func newTestStore() (*Store, *kv.MemoryStore) {
	kvs := kv.NewMemoryStore()
	store := NewStore(kvs, RetentionTTL, HistoryLimit, testMetrics(), logger.NewNop())
	return store, kvs
}

func TestStoreWriteReadRoundTrip(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	written, err := store.Write(ctx, "u1", StateMainMenu, map[string]any{"step": "greeting"})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if written.ID == "" {
		t.Fatalf("Write() should mint a session id")
	}

	got, err := store.Read(ctx, "u1")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.State != StateMainMenu {
		t.Fatalf("State = %q, want %q", got.State, StateMainMenu)
	}
	if got.Context["step"] != "greeting" {
		t.Fatalf("Context = %+v, want step=greeting", got.Context)
	}
	if got.ID != written.ID {
		t.Fatalf("ID changed across read: %q vs %q", got.ID, written.ID)
	}
}

func TestStoreWritePreservesIdentityAndHistory(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	first, err := store.Write(ctx, "u1", StateIdle, nil)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := store.AppendHistory(ctx, "u1", "user", "hello"); err != nil {
		t.Fatalf("AppendHistory() error = %v", err)
	}

	second, err := store.Write(ctx, "u1", StateAddingEventName, map[string]any{"draft": "party"})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("rewrite minted a new id: %q vs %q", second.ID, first.ID)
	}
	if len(second.History) != 1 || second.History[0].Content != "hello" {
		t.Fatalf("rewrite lost history: %+v", second.History)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("rewrite changed CreatedAt")
	}
}

func TestStoreReadAbsent(t *testing.T) {
	store, _ := newTestStore()
	if _, err := store.Read(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read() error = %v, want ErrNotFound", err)
	}
}

func TestStoreMalformedRecordReadsAsAbsent(t *testing.T) {
	store, kvs := newTestStore()
	ctx := context.Background()

	if err := kvs.Set(ctx, KeyPrefix+"u1", "{not json", 0); err != nil {
		t.Fatalf("seed malformed record: %v", err)
	}
	if _, err := store.Read(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read() of malformed record error = %v, want ErrNotFound", err)
	}
}

func TestStoreClearIsIdempotent(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	if _, err := store.Write(ctx, "u1", StateIdle, nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := store.Clear(ctx, "u1"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := store.Clear(ctx, "u1"); err != nil {
		t.Fatalf("second Clear() error = %v", err)
	}
	if _, err := store.Read(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read() after Clear error = %v, want ErrNotFound", err)
	}
}

func TestAppendHistoryEvictsOldestBeyondLimit(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	if _, err := store.Write(ctx, "u1", StateIdle, nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	for i := 1; i <= 25; i++ {
		if err := store.AppendHistory(ctx, "u1", "user", fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("AppendHistory(#%d) error = %v", i, err)
		}
	}

	got, err := store.Read(ctx, "u1")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got.History) != HistoryLimit {
		t.Fatalf("history length = %d, want %d", len(got.History), HistoryLimit)
	}
	for i, turn := range got.History {
		want := fmt.Sprintf("turn %d", i+6)
		if turn.Content != want {
			t.Fatalf("history[%d] = %q, want %q", i, turn.Content, want)
		}
	}
}

func TestAppendHistoryWithoutSessionIsNoOp(t *testing.T) {
	store, kvs := newTestStore()
	ctx := context.Background()

	if err := store.AppendHistory(ctx, "ghost", "user", "anyone there?"); err != nil {
		t.Fatalf("AppendHistory() on missing session error = %v, want nil", err)
	}
	if _, err := kvs.Get(ctx, KeyPrefix+"ghost"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("no-op append should not create a record, got err = %v", err)
	}
}

func TestAppendHistoryRefreshesActivityAndTTL(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	if _, err := store.Write(ctx, "u1", StateIdle, nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	later := base.Add(time.Hour)
	store.now = func() time.Time { return later }
	if err := store.AppendHistory(ctx, "u1", "assistant", "done"); err != nil {
		t.Fatalf("AppendHistory() error = %v", err)
	}

	got, err := store.Read(ctx, "u1")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !got.LastActivity.Equal(later) {
		t.Fatalf("LastActivity = %v, want %v", got.LastActivity, later)
	}
	if !got.ExpiresAt.Equal(later.Add(RetentionTTL)) {
		t.Fatalf("ExpiresAt = %v, want %v", got.ExpiresAt, later.Add(RetentionTTL))
	}
}

func TestListActive(t *testing.T) {
	store, kvs := newTestStore()
	ctx := context.Background()

	for _, user := range []string{"a", "b", "c"} {
		if _, err := store.Write(ctx, user, StateMainMenu, nil); err != nil {
			t.Fatalf("Write(%q) error = %v", user, err)
		}
	}
	// Malformed records are skipped, not fatal.
	if err := kvs.Set(ctx, KeyPrefix+"broken", "}{", 0); err != nil {
		t.Fatalf("seed malformed record: %v", err)
	}

	sessions, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("ListActive() returned %d sessions, want 3", len(sessions))
	}
}
