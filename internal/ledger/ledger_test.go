package ledger

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&BalanceEntry{}))
	return NewService(db)
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestSetBudgetAndRead(t *testing.T) {
	svc := newTestService(t)
	wallet, asset := uuid.New(), uuid.New()

	require.NoError(t, svc.SetBudget(wallet, asset, d(1000)))

	available, err := svc.Available(wallet, asset)
	require.NoError(t, err)
	assert.True(t, available.Equal(d(1000)))

	total, err := svc.Total(wallet, asset)
	require.NoError(t, err)
	assert.True(t, total.Equal(d(1000)))
}

func TestSetBudgetRejectsDuplicate(t *testing.T) {
	svc := newTestService(t)
	wallet, asset := uuid.New(), uuid.New()

	require.NoError(t, svc.SetBudget(wallet, asset, d(1000)))
	assert.ErrorIs(t, svc.SetBudget(wallet, asset, d(2000)), ErrEntryExists)
}

func TestLockUnlockSpendCycle(t *testing.T) {
	svc := newTestService(t)
	wallet, asset := uuid.New(), uuid.New()
	require.NoError(t, svc.SetBudget(wallet, asset, d(1000)))

	require.NoError(t, svc.Lock(wallet, asset, d(600)))
	entry, err := svc.Entry(wallet, asset)
	require.NoError(t, err)
	assert.True(t, entry.Available.Equal(d(400)))
	assert.True(t, entry.Locked.Equal(d(600)))

	require.NoError(t, svc.Unlock(wallet, asset, d(100)))
	require.NoError(t, svc.Spend(wallet, asset, d(500)))

	entry, err = svc.Entry(wallet, asset)
	require.NoError(t, err)
	assert.True(t, entry.Available.Equal(d(500)))
	assert.True(t, entry.Locked.Equal(d(0)))
	assert.True(t, entry.Spent.Equal(d(500)))

	// conservation: the three buckets always sum to the initial budget
	assert.True(t, entry.Total().Equal(d(1000)))
}

func TestLockFailureLeavesEntryUntouched(t *testing.T) {
	svc := newTestService(t)
	wallet, asset := uuid.New(), uuid.New()
	require.NoError(t, svc.SetBudget(wallet, asset, d(100)))

	before, err := svc.Entry(wallet, asset)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Lock(wallet, asset, d(101)), ErrInsufficientFunds)

	after, err := svc.Entry(wallet, asset)
	require.NoError(t, err)
	assert.True(t, before.Available.Equal(after.Available))
	assert.True(t, before.Locked.Equal(after.Locked))
	assert.True(t, before.Spent.Equal(after.Spent))
}

func TestUnlockAndSpendGuardLocked(t *testing.T) {
	svc := newTestService(t)
	wallet, asset := uuid.New(), uuid.New()
	require.NoError(t, svc.SetBudget(wallet, asset, d(100)))
	require.NoError(t, svc.Lock(wallet, asset, d(40)))

	assert.ErrorIs(t, svc.Unlock(wallet, asset, d(50)), ErrInvariantViolation)
	assert.ErrorIs(t, svc.Spend(wallet, asset, d(50)), ErrInvariantViolation)
}

func TestUnknownEntry(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Available(uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrUnknownEntry)

	assert.ErrorIs(t, svc.Lock(uuid.New(), uuid.New(), d(1)), ErrUnknownEntry)
}

func TestCreditCreatesEntry(t *testing.T) {
	svc := newTestService(t)
	wallet, asset := uuid.New(), uuid.New()

	require.NoError(t, svc.Credit(wallet, asset, d(250)))
	available, err := svc.Available(wallet, asset)
	require.NoError(t, err)
	assert.True(t, available.Equal(d(250)))

	require.NoError(t, svc.Credit(wallet, asset, d(50)))
	available, err = svc.Available(wallet, asset)
	require.NoError(t, err)
	assert.True(t, available.Equal(d(300)))
}

func TestOverflowRejected(t *testing.T) {
	svc := newTestService(t)
	wallet, asset := uuid.New(), uuid.New()

	huge := decimal.New(1, 37)
	assert.ErrorIs(t, svc.SetBudget(wallet, asset, huge), ErrOverflow)
}

func TestUnspendCompensation(t *testing.T) {
	svc := newTestService(t)
	wallet, asset := uuid.New(), uuid.New()
	require.NoError(t, svc.SetBudget(wallet, asset, d(100)))
	require.NoError(t, svc.Lock(wallet, asset, d(100)))
	require.NoError(t, svc.Spend(wallet, asset, d(100)))

	require.NoError(t, svc.Unspend(wallet, asset, d(100)))
	require.NoError(t, svc.Unlock(wallet, asset, d(100)))

	available, err := svc.Available(wallet, asset)
	require.NoError(t, err)
	assert.True(t, available.Equal(d(100)))
}

func TestSummary(t *testing.T) {
	svc := newTestService(t)
	w1, w2, asset := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, svc.SetBudget(w1, asset, d(1000)))
	require.NoError(t, svc.SetBudget(w2, asset, d(500)))
	require.NoError(t, svc.Lock(w1, asset, d(400)))
	require.NoError(t, svc.Spend(w1, asset, d(400)))

	summary, err := svc.Summary()
	require.NoError(t, err)
	assert.EqualValues(t, 2, summary.EntryCount)
	assert.True(t, summary.TotalSpent.Equal(d(400)))
	assert.True(t, summary.TotalAvailable.Equal(d(1100)))
	assert.InDelta(t, 26.6, summary.UtilizationPercent(), 0.2)
}

func TestConcurrentLocksNeverOverspend(t *testing.T) {
	svc := newTestService(t)
	wallet, asset := uuid.New(), uuid.New()
	require.NoError(t, svc.SetBudget(wallet, asset, d(10)))

	var wg sync.WaitGroup
	successes := make(chan struct{}, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Lock(wallet, asset, d(1)); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	assert.LessOrEqual(t, count, 10)

	entry, err := svc.Entry(wallet, asset)
	require.NoError(t, err)
	assert.False(t, entry.Available.IsNegative())
	assert.True(t, entry.Total().Equal(d(10)))
}
