package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/errs"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/metrics"
	"go.uber.org/zap"
)

type accountLock struct {
	ch   chan struct{}
	refs int
}

// Guard serializes mutations of one account inside this process and retries
// a unit of work once when storage reports a lost race or a transient
// failure. Row locks and versioned writes in storage cover other processes.
type Guard struct {
	mu    sync.Mutex
	locks map[int64]*accountLock

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewGuard(logger *zap.SugaredLogger, m *metrics.Metrics) *Guard {
	return &Guard{
		locks:   make(map[int64]*accountLock),
		logger:  logger,
		metrics: m,
	}
}

// Do runs fn while holding the account's lock. fn must be a complete unit of
// work: it is run a second time on a retryable failure.
func (g *Guard) Do(ctx context.Context, accountID int64, fn func(ctx context.Context) error) error {
	release, err := g.acquire(ctx, accountID)
	if err != nil {
		return err
	}
	defer release()

	err = fn(ctx)
	if !retryable(err) {
		return err
	}

	g.logger.Debugw("retrying account mutation", "account_id", accountID, "error", err)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	err = fn(ctx)
	g.metrics.GuardRetry(err)
	if errors.Is(err, errs.ErrWriteConflict) {
		g.logger.Warnw("account mutation lost race twice", "account_id", accountID)
		return fmt.Errorf("%w: account %d", errs.ErrConcurrentUpdateConflict, accountID)
	}
	return err
}

func retryable(err error) bool {
	if err == nil || errors.Is(err, errs.ErrCommitIndeterminate) {
		return false
	}
	return errors.Is(err, errs.ErrWriteConflict) || errors.Is(err, errs.ErrStorageUnavailable)
}

func (g *Guard) acquire(ctx context.Context, accountID int64) (func(), error) {
	g.mu.Lock()
	l, ok := g.locks[accountID]
	if !ok {
		l = &accountLock{ch: make(chan struct{}, 1)}
		g.locks[accountID] = l
	}
	l.refs++
	g.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			g.unref(accountID, l)
		}, nil
	case <-ctx.Done():
		g.unref(accountID, l)
		return nil, ctx.Err()
	}
}

func (g *Guard) unref(accountID int64, l *accountLock) {
	g.mu.Lock()
	defer g.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(g.locks, accountID)
	}
}

// held reports how many accounts have a lock entry.
func (g *Guard) held() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.locks)
}
