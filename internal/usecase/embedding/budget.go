package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/calliope-hq/calliope/internal/domain"
)

// BudgetAction defines behavior when token budget is exceeded.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but allows the request.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject blocks the request.
	BudgetActionReject BudgetAction = "reject"
)

// Workload labels split token spend by what drove it. Limits apply to the
// total; the breakdown tells an operator whether a blown budget came from
// background regeneration or from search traffic.
const (
	// WorkloadIngest is entity vector regeneration (worker and inline worker).
	WorkloadIngest = "ingest"
	// WorkloadQuery is query embedding on the search path.
	WorkloadQuery = "query"
)

// BudgetStore is the persistence interface for budget counters.
// Implementations must be idempotent (IncrBy can be called repeatedly).
type BudgetStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// usageWindow is one rolling accounting window (day or month). used resets
// when the window boundary passes; limit 0 means unlimited.
type usageWindow struct {
	used  int64
	limit int64
	start time.Time
	trunc func(time.Time) time.Time
}

// roll resets the counter if the window boundary has passed. Returns true
// when a reset happened.
func (w *usageWindow) roll(now time.Time) bool {
	current := w.trunc(now)
	if !current.After(w.start) {
		return false
	}
	w.used = 0
	w.start = current
	return true
}

func (w *usageWindow) exceeded() bool {
	return w.limit > 0 && w.used >= w.limit
}

// remaining returns tokens left in the window, -1 if unlimited.
func (w *usageWindow) remaining() int64 {
	if w.limit == 0 {
		return -1
	}
	if left := w.limit - w.used; left > 0 {
		return left
	}
	return 0
}

// BudgetTracker enforces daily and monthly token caps across all embedding
// calls, and attributes spend to workloads (ingest vs query). Check is the
// hot path and stays in-memory; Record updates counters first and then
// write-behinds to the store.
type BudgetTracker struct {
	mu        sync.Mutex
	day       usageWindow
	month     usageWindow
	byKind    map[string]int64 // daily spend per workload, resets with day
	action    BudgetAction
	provider  string
	store     BudgetStore
	logger    *zap.Logger
}

// NewBudgetTracker creates a budget tracker with the given limits.
func NewBudgetTracker(
	provider string, dailyLimit, monthlyLimit int64,
	action BudgetAction, logger *zap.Logger,
) *BudgetTracker {
	now := time.Now().UTC()
	return &BudgetTracker{
		day:      usageWindow{limit: dailyLimit, start: truncateToDay(now), trunc: truncateToDay},
		month:    usageWindow{limit: monthlyLimit, start: truncateToMonth(now), trunc: truncateToMonth},
		byKind:   make(map[string]int64),
		action:   action,
		provider: provider,
		logger:   logger,
	}
}

// WithStore attaches a persistence store and loads current totals, so a
// restart mid-day does not forget what was already spent.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = store
	now := time.Now().UTC()

	if val, err := store.Get(ctx, b.totalKey("daily", now)); err == nil {
		b.day.used = val
	} else {
		b.logger.Warn("Failed to load daily budget from store", zap.Error(err))
	}
	if val, err := store.Get(ctx, b.totalKey("monthly", now)); err == nil {
		b.month.used = val
	} else {
		b.logger.Warn("Failed to load monthly budget from store", zap.Error(err))
	}

	b.logger.Info("Budget loaded from store",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.day.used),
		zap.Int64("monthly_used", b.month.used),
	)
	return b
}

// totalKey is the persisted counter for a window: calliope:budget:<provider>:daily:2026-08-30.
func (b *BudgetTracker) totalKey(window string, t time.Time) string {
	layout := "2006-01-02"
	if window == "monthly" {
		layout = "2006-01"
	}
	return fmt.Sprintf("%sbudget:%s:%s:%s", domain.KeyPrefix, b.provider, window, t.Format(layout))
}

// workloadKey is the per-workload daily breakdown: calliope:budget:<provider>:ingest:daily:2026-08-30.
func (b *BudgetTracker) workloadKey(workload string, t time.Time) string {
	return fmt.Sprintf("%sbudget:%s:%s:daily:%s",
		domain.KeyPrefix, b.provider, workload, t.Format("2006-01-02"))
}

// Check verifies the budget allows a new request. In-memory only (hot path).
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWindows()

	if !b.day.exceeded() && !b.month.exceeded() {
		return nil
	}

	if b.action == BudgetActionReject {
		return domain.ErrEmbeddingQuotaExceeded
	}

	// action=warn: log with the workload breakdown and let it through.
	b.logger.Warn("Token budget exceeded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.day.used),
		zap.Int64("daily_limit", b.day.limit),
		zap.Int64("monthly_used", b.month.used),
		zap.Int64("monthly_limit", b.month.limit),
		zap.Int64("ingest_today", b.byKind[WorkloadIngest]),
		zap.Int64("query_today", b.byKind[WorkloadQuery]),
	)
	return nil
}

// Record registers consumed tokens against a workload. In-memory counters
// update first, then the totals and the workload breakdown go to the store
// write-behind.
func (b *BudgetTracker) Record(workload string, tokens int64) {
	b.mu.Lock()
	b.rollWindows()
	b.day.used += tokens
	b.month.used += tokens
	b.byKind[workload] += tokens
	store := b.store
	now := time.Now().UTC()
	dailyKey := b.totalKey("daily", now)
	monthlyKey := b.totalKey("monthly", now)
	kindKey := b.workloadKey(workload, now)
	b.mu.Unlock()

	if store == nil {
		return
	}

	// Background context so store writes never block or outlive the caller's
	// request deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, key := range []string{dailyKey, monthlyKey, kindKey} {
		if err := store.IncrBy(ctx, key, tokens); err != nil {
			b.logger.Warn("Failed to persist budget counter", zap.String("key", key), zap.Error(err))
		}
	}
}

// RemainingDaily returns tokens left in the daily budget (-1 if unlimited).
func (b *BudgetTracker) RemainingDaily() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollWindows()
	return b.day.remaining()
}

// RemainingMonthly returns tokens left in the monthly budget (-1 if unlimited).
func (b *BudgetTracker) RemainingMonthly() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollWindows()
	return b.month.remaining()
}

// DailyUsed returns tokens consumed today across all workloads.
func (b *BudgetTracker) DailyUsed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollWindows()
	return b.day.used
}

// MonthlyUsed returns tokens consumed this month across all workloads.
func (b *BudgetTracker) MonthlyUsed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollWindows()
	return b.month.used
}

// WorkloadDailyUsed returns today's spend attributed to one workload.
func (b *BudgetTracker) WorkloadDailyUsed(workload string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollWindows()
	return b.byKind[workload]
}

// rollWindows advances both windows; the workload breakdown follows the day.
func (b *BudgetTracker) rollWindows() {
	now := time.Now().UTC()
	if b.day.roll(now) {
		b.byKind = make(map[string]int64)
	}
	b.month.roll(now)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
