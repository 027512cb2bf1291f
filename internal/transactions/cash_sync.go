package transactions

import (
	"fmt"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"go.uber.org/zap"
)

const (
	cashSyncHour        = 7
	cashSyncMinute      = 45
	cashSyncQuietPeriod = 10 * time.Second
	cashSyncVerifyDelay = 10 * time.Second
	maxCashSyncFailures = 5
)

// cashSync tracks the daily overwrite of the cash book from the brokerage.
type cashSync struct {
	// running is held from the start of a sync until its verification ends.
	running sync.Mutex

	mu       sync.Mutex
	lastDate time.Time
	failures int
}

func (c *cashSync) syncedOn(date time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastDate.Equal(date)
}

func (c *cashSync) markSynced(date time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastDate = date
}

func (c *cashSync) succeeded() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures = 0
}

// failed records a failure, clears the sync date so the next check retries,
// and returns the failure count.
func (c *cashSync) failed() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures++
	c.lastDate = time.Time{}

	return c.failures
}

func (c *cashSync) exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.failures >= maxCashSyncFailures
}

// maybeSyncCash overwrites the cash book once per trading day after 07:45
// exchange time, when no fill arrived during the quiet period.
func (h *Handler) maybeSyncCash() {
	now := h.clock.Now()
	local := now.In(h.calendar.Location())
	date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())

	if !h.calendar.IsTradingDay(local) || h.cash.exhausted() || h.cash.syncedOn(date) {
		return
	}

	if local.Hour()*60+local.Minute() < cashSyncHour*60+cashSyncMinute {
		return
	}

	h.eventMu.Lock()
	lastFill := h.lastFill
	h.eventMu.Unlock()

	if !lastFill.IsZero() && now.Sub(lastFill) < cashSyncQuietPeriod {
		return
	}

	if !h.cash.running.TryLock() {
		return
	}

	h.syncCash(date)
}

// syncCash runs with cash.running held and releases it once the sync was
// verified or failed.
func (h *Handler) syncCash(date time.Time) {
	balances, err := h.cashBalance()
	if err != nil {
		h.cashSyncFailed(err)
		h.cash.running.Unlock()

		return
	}

	h.eventMu.Lock()
	fills := h.fills
	h.eventMu.Unlock()

	h.portfolio.CashBook.Overwrite(balances)
	h.cash.markSynced(date)

	h.logger.Info("Cash book synced from brokerage",
		zap.Time("date", date),
		zap.Int("currencies", len(balances)),
	)

	h.clock.AfterFunc(cashSyncVerifyDelay, func() {
		defer h.cash.running.Unlock()

		h.eventMu.Lock()
		landed := h.fills - fills
		h.eventMu.Unlock()

		if landed > 0 {
			h.cashSyncFailed(errors.Newf(errors.ErrCodeCashSyncFailed, "%d fills landed while the cash book was synced", landed))

			return
		}

		h.cash.succeeded()
	})
}

func (h *Handler) cashBalance() (balances []types.CashAmount, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrCodeBrokerageFailed, "brokerage cash balance panicked: %v", r)
		}
	}()

	return h.brokerage.GetCashBalance()
}

func (h *Handler) cashSyncFailed(err error) {
	failures := h.cash.failed()

	h.logger.Warn("Cash sync failed",
		zap.Int("failures", failures),
		zap.Error(err),
	)

	if failures >= maxCashSyncFailures {
		h.setFatal(errors.Wrap(errors.ErrCodeCashSyncFailed, fmt.Sprintf("cash sync failed %d times", failures), err))
	}
}
