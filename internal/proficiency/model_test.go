package proficiency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mcontarini/converse/internal/kv"
	"github.com/mcontarini/converse/internal/logger"
	"github.com/mcontarini/converse/internal/observability"
)

var metricsSeq atomic.Int64

func testMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("test_proficiency_%d", metricsSeq.Add(1)))
}

func newTestModel() (*Model, *kv.MemoryStore) {
	kvs := kv.NewMemoryStore()
	return NewModel(kvs, IdleThreshold, testMetrics(), logger.NewNop()), kvs
}

func TestClassifyTable(t *testing.T) {
	tests := []struct {
		name string
		m    Metrics
		want Level
	}{
		{
			name: "below message floor is novice regardless of other counters",
			m:    Metrics{TotalMessages: 14, NLPSuccessCount: 14, CommandUsageCount: 14},
			want: LevelNovice,
		},
		{
			name: "heavy command user with high success rate is expert",
			m:    Metrics{TotalMessages: 40, NLPSuccessCount: 30, NLPFailureCount: 5, CommandUsageCount: 10},
			want: LevelExpert,
		},
		{
			name: "decent success rate without commands is intermediate",
			m:    Metrics{TotalMessages: 20, NLPSuccessCount: 12, NLPFailureCount: 8},
			want: LevelIntermediate,
		},
		{
			name: "many messages but poor success rate stays novice",
			m:    Metrics{TotalMessages: 50, NLPSuccessCount: 10, NLPFailureCount: 40},
			want: LevelNovice,
		},
		{
			name: "no nlp samples means zero success rate",
			m:    Metrics{TotalMessages: 30},
			want: LevelNovice,
		},
		{
			name: "expert thresholds are strict inequalities",
			m:    Metrics{TotalMessages: 40, NLPSuccessCount: 28, NLPFailureCount: 12, CommandUsageCount: 8},
			want: LevelIntermediate,
		},
		{
			name: "expert checked before intermediate",
			m:    Metrics{TotalMessages: 100, NLPSuccessCount: 90, NLPFailureCount: 5, CommandUsageCount: 30},
			want: LevelExpert,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(&tt.m); got != tt.want {
				t.Fatalf("classify(%+v) = %q, want %q", tt.m, got, tt.want)
			}
		})
	}
}

func TestRecordBootstrapsOnFirstMessage(t *testing.T) {
	model, _ := newTestModel()
	ctx := context.Background()

	model.Record(ctx, "u1", EventMessage)

	m, err := model.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if m.TotalMessages != 1 {
		t.Fatalf("TotalMessages = %d, want 1", m.TotalMessages)
	}
	if m.SessionCount != 1 {
		t.Fatalf("SessionCount = %d, want 1", m.SessionCount)
	}
	if m.FirstMessageAt.IsZero() {
		t.Fatalf("FirstMessageAt should be stamped")
	}
}

func TestRecordNonMessageBeforeBootstrapIsNoOp(t *testing.T) {
	model, _ := newTestModel()
	ctx := context.Background()

	for _, kind := range []EventKind{EventNLPSuccess, EventNLPFailure, EventMenuRequest, EventCommandUsage, EventError} {
		model.Record(ctx, "u1", kind)
	}
	if _, err := model.Get(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("non-message events must not create a record, got err = %v", err)
	}

	// After the first message, the same events count.
	model.Record(ctx, "u1", EventMessage)
	model.Record(ctx, "u1", EventNLPSuccess)
	model.Record(ctx, "u1", EventMenuRequest)

	m, err := model.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if m.NLPSuccessCount != 1 || m.MenuRequestCount != 1 {
		t.Fatalf("counters = %+v, want nlp_success=1 menu_request=1", m)
	}
	if m.LastMenuRequestTime == nil {
		t.Fatalf("LastMenuRequestTime should be stamped by a menu request")
	}
}

func TestClassifyReflectsLatestWrite(t *testing.T) {
	model, _ := newTestModel()
	ctx := context.Background()

	for i := 0; i < 14; i++ {
		model.Record(ctx, "u1", EventMessage)
	}
	if got := model.Classify(ctx, "u1"); got != LevelNovice {
		t.Fatalf("Classify() = %q, want novice at 14 messages", got)
	}

	model.Record(ctx, "u1", EventMessage)
	model.Record(ctx, "u1", EventNLPSuccess)
	if got := model.Classify(ctx, "u1"); got != LevelIntermediate {
		t.Fatalf("Classify() = %q, want intermediate at 15 messages", got)
	}
}

func TestClassifyFailsOpenToNovice(t *testing.T) {
	model, _ := newTestModel()
	model.kv = failingKV{}
	if got := model.Classify(context.Background(), "u1"); got != LevelNovice {
		t.Fatalf("Classify() with store down = %q, want novice", got)
	}
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	model, _ := newTestModel()
	model.kv = failingKV{}
	// Must not panic or surface the failure.
	model.Record(context.Background(), "u1", EventMessage)
}

func TestIsIdle(t *testing.T) {
	model, _ := newTestModel()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	model.now = func() time.Time { return base }

	if !model.IsIdle(nil) {
		t.Fatalf("IsIdle(nil) = false, want true")
	}

	recent := base.Add(-30 * time.Second)
	if model.IsIdle(&recent) {
		t.Fatalf("IsIdle(30s ago) = true, want false")
	}

	stale := base.Add(-61 * time.Second)
	if !model.IsIdle(&stale) {
		t.Fatalf("IsIdle(61s ago) = false, want true")
	}
}

func TestReportContainsLevelAndCounters(t *testing.T) {
	model, _ := newTestModel()
	ctx := context.Background()

	model.Record(ctx, "u1", EventMessage)
	model.Record(ctx, "u1", EventCommandUsage)

	report, err := model.Report(ctx, "u1")
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	for _, want := range []string{"u1", "novice", "messages", "commands used"} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, error) {
	return "", errors.New("store down")
}

func (failingKV) Set(context.Context, string, string, time.Duration) error {
	return errors.New("store down")
}

func (failingKV) Expire(context.Context, string, time.Duration) error {
	return errors.New("store down")
}

func (failingKV) Del(context.Context, string) error {
	return errors.New("store down")
}

func (failingKV) Incr(context.Context, string) (int64, error) {
	return 0, errors.New("store down")
}

func (failingKV) Keys(context.Context, string) ([]string, error) {
	return nil, errors.New("store down")
}

func (failingKV) Ping(context.Context) error { return errors.New("store down") }

func (failingKV) Close() error { return nil }
