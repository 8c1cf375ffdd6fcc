// ABOUTME: Tests for the refill scheduler
// ABOUTME: Covers due/not-due sweeps, error tolerance and clean shutdown without leaked goroutines

package refill

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yigit201107/OpenTrackBot/internal/ledger"
	"github.com/yigit201107/OpenTrackBot/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func newTestLedger(st *store.MockStore) *ledger.Ledger {
	return ledger.New(st, ledger.Options{
		AdminID:      "42",
		FreeRequests: 3,
		Now:          func() time.Time { return now },
	})
}

func TestSweep_RefillsDueUser(t *testing.T) {
	st := store.NewMockStore()
	st.PutQuota(&store.QuotaRecord{UserID: "1001", CreditsRemaining: 1, LastRefillAt: now.Add(-25 * time.Hour)})

	sched := New(newTestLedger(st), time.Hour, nil)
	refilled, err := sched.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, refilled)

	rec, err := st.GetQuota(context.Background(), "1001")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.CreditsRemaining)
	assert.True(t, rec.LastRefillAt.Equal(now))
}

func TestSweep_SkipsRecentAndFull(t *testing.T) {
	st := store.NewMockStore()
	st.PutQuota(&store.QuotaRecord{UserID: "recent", CreditsRemaining: 0, LastRefillAt: now.Add(-23 * time.Hour)})
	st.PutQuota(&store.QuotaRecord{UserID: "full", CreditsRemaining: 3, LastRefillAt: now.Add(-72 * time.Hour)})

	sched := New(newTestLedger(st), time.Hour, nil)
	refilled, err := sched.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, refilled)

	rec, err := st.GetQuota(context.Background(), "recent")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.CreditsRemaining)
}

func TestSweep_DoesNotCreateUnknownUsers(t *testing.T) {
	st := store.NewMockStore()

	sched := New(newTestLedger(st), time.Hour, nil)
	_, err := sched.Sweep(context.Background())
	require.NoError(t, err)

	n, err := st.CountQuotas(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweep_StoreError(t *testing.T) {
	st := store.NewMockStore()
	st.SetError(errors.New("database is locked"))

	sched := New(newTestLedger(st), time.Hour, nil)
	_, err := sched.Sweep(context.Background())
	assert.ErrorIs(t, err, ledger.ErrStoreUnavailable)
}

// flakyLedger fails the first few listings, then reports one due user per sweep.
type flakyLedger struct {
	failures atomic.Int32
	refills  atomic.Int32

	mu    sync.Mutex
	calls []string
}

func (f *flakyLedger) Now() time.Time { return now }

func (f *flakyLedger) DueForRefill(ctx context.Context, now time.Time) ([]string, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("transient")
	}
	return []string{"1001", "1002"}, nil
}

func (f *flakyLedger) RefillIfDue(ctx context.Context, userID string, now time.Time) (bool, error) {
	f.mu.Lock()
	f.calls = append(f.calls, userID)
	f.mu.Unlock()

	if userID == "1001" {
		return false, errors.New("row locked")
	}
	f.refills.Add(1)
	return true, nil
}

func TestSweep_ContinuesPastUserFailure(t *testing.T) {
	led := &flakyLedger{}

	sched := New(led, time.Hour, nil)
	refilled, err := sched.Sweep(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, refilled, "second user is refilled even though the first failed")
	assert.Equal(t, []string{"1001", "1002"}, led.calls)
}

func TestRun_RecoversAfterTransientErrors(t *testing.T) {
	led := &flakyLedger{}
	led.failures.Store(3)

	sched := New(led, 5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	require.Eventually(t, func() bool {
		return led.refills.Load() > 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_Stop(t *testing.T) {
	st := store.NewMockStore()
	sched := New(newTestLedger(st), time.Hour, nil)

	done := make(chan error, 1)
	go func() { done <- sched.Run(context.Background()) }()

	sched.Stop()
	sched.Stop() // idempotent

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestRun_SweepsOnStart(t *testing.T) {
	st := store.NewMockStore()
	st.PutQuota(&store.QuotaRecord{UserID: "1001", CreditsRemaining: 0, LastRefillAt: now.Add(-30 * time.Hour)})

	sched := New(newTestLedger(st), time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	require.Eventually(t, func() bool {
		rec, err := st.GetQuota(context.Background(), "1001")
		return err == nil && rec.CreditsRemaining == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestNew_DefaultInterval(t *testing.T) {
	sched := New(&flakyLedger{}, 0, nil)
	assert.Equal(t, DefaultInterval, sched.interval)
}
