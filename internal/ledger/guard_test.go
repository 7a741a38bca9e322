package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/errs"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newGuard(t *testing.T) *Guard {
	return NewGuard(zaptest.NewLogger(t).Sugar(), metrics.New())
}

func TestGuardSerializesSameAccount(t *testing.T) {
	g := newGuard(t)
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Do(ctx, 1, func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), maxInside)
	require.Zero(t, g.held())
}

func TestGuardAccountsAreIndependent(t *testing.T) {
	g := newGuard(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = g.Do(ctx, 1, func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	done := make(chan error, 1)
	go func() {
		done <- g.Do(ctx, 2, func(context.Context) error { return nil })
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("account 2 blocked by account 1")
	}
	close(release)
}

func TestGuardWaitHonorsContext(t *testing.T) {
	g := newGuard(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = g.Do(context.Background(), 7, func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := g.Do(ctx, 7, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, called)

	close(release)
	require.Eventually(t, func() bool { return g.held() == 0 }, time.Second, 5*time.Millisecond)
}

func TestGuardRetryPolicy(t *testing.T) {
	unavailable := errors.Join(errs.ErrStorageUnavailable, errors.New("conn reset"))
	indeterminate := errors.Join(errs.ErrStorageUnavailable, errs.ErrCommitIndeterminate)

	tests := []struct {
		name      string
		results   []error
		wantCalls int
		wantErr   error
	}{
		{"success", []error{nil}, 1, nil},
		{"domain error is final", []error{errs.ErrInsufficientFunds}, 1, errs.ErrInsufficientFunds},
		{"conflict then success", []error{errs.ErrWriteConflict, nil}, 2, nil},
		{"conflict twice", []error{errs.ErrWriteConflict, errs.ErrWriteConflict}, 2, errs.ErrConcurrentUpdateConflict},
		{"unavailable then success", []error{unavailable, nil}, 2, nil},
		{"unavailable twice", []error{unavailable, unavailable}, 2, errs.ErrStorageUnavailable},
		{"commit outcome unknown", []error{indeterminate}, 1, errs.ErrCommitIndeterminate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGuard(t)
			calls := 0
			err := g.Do(context.Background(), 1, func(context.Context) error {
				res := tt.results[calls]
				calls++
				return res
			})

			require.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.wantErr)
			}
			require.NotErrorIs(t, err, errs.ErrWriteConflict)
		})
	}
}

func TestGuardRetryMetrics(t *testing.T) {
	m := metrics.New()
	g := NewGuard(zaptest.NewLogger(t).Sugar(), m)

	first := true
	err := g.Do(context.Background(), 1, func(context.Context) error {
		if first {
			first = false
			return errs.ErrWriteConflict
		}
		return nil
	})
	require.NoError(t, err)

	err = g.Do(context.Background(), 1, func(context.Context) error { return errs.ErrWriteConflict })
	require.ErrorIs(t, err, errs.ErrConcurrentUpdateConflict)

	require.Equal(t, 2, testutil.CollectAndCount(m.Registry(), "smm_panel_ledger_guard_retries_total"))
}
