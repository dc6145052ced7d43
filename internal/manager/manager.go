package manager

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/halcyongames/starhold/internal/shared"
)

// LeaveFinalizer processes due leave requests.
type LeaveFinalizer interface {
	FinalizeDueLeaves(ctx context.Context) (int, error)
}

// Dispatcher hands long-running work to the background task queue.
type Dispatcher interface {
	DispatchRentBilling(ctx context.Context) error
	DispatchIncomeSweep(ctx context.Context) error
}

// Config groups the scheduler cadences.
type Config struct {
	InviteSweepEvery time.Duration
	LeaveSweepEvery  time.Duration
	RentCheckEvery   time.Duration
	IncomeSweepEvery time.Duration
	// RentThrottle is the minimum spacing between rent-billing dispatches,
	// shared across every zone via Redis.
	RentThrottle time.Duration
}

// Manager runs the per-process periodic work off a cooperative tick. The zone
// loop calls Update with the elapsed time; each unit of work keeps its own
// accumulator and fires independently.
type Manager struct {
	invites    *InviteRegistry
	leaves     LeaveFinalizer
	dispatcher Dispatcher
	rdb        *redis.Client
	cfg        Config
	logger     *slog.Logger

	inviteAcc time.Duration
	leaveAcc  time.Duration
	rentAcc   time.Duration
	incomeAcc time.Duration

	leaveRunning atomic.Bool
}

// New builds Manager.
func New(invites *InviteRegistry, leaves LeaveFinalizer, dispatcher Dispatcher,
	rdb *redis.Client, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		invites:    invites,
		leaves:     leaves,
		dispatcher: dispatcher,
		rdb:        rdb,
		cfg:        cfg,
		logger:     logger,
	}
}

// Update advances every accumulator by elapsed and runs whatever came due.
// Invite expiry and the dispatch checks run inline; leave finalization runs
// in its own goroutine behind a re-entrancy guard so a slow sweep never
// stalls the tick or overlaps itself.
func (m *Manager) Update(ctx context.Context, elapsed time.Duration) {
	m.inviteAcc += elapsed
	if m.inviteAcc >= m.cfg.InviteSweepEvery {
		m.inviteAcc = 0
		if n := m.invites.Sweep(ctx); n > 0 {
			m.logger.Debug("invites expired", slog.Int("count", n))
		}
	}

	m.leaveAcc += elapsed
	if m.leaveAcc >= m.cfg.LeaveSweepEvery {
		m.leaveAcc = 0
		m.sweepLeaves(ctx)
	}

	m.rentAcc += elapsed
	if m.rentAcc >= m.cfg.RentCheckEvery {
		m.rentAcc = 0
		m.checkRentBilling(ctx)
	}

	m.incomeAcc += elapsed
	if m.incomeAcc >= m.cfg.IncomeSweepEvery {
		m.incomeAcc = 0
		if err := m.dispatcher.DispatchIncomeSweep(ctx); err != nil {
			m.logger.Error("income sweep dispatch", slog.Any("error", err))
		}
	}
}

func (m *Manager) sweepLeaves(ctx context.Context) {
	if !m.leaveRunning.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer m.leaveRunning.Store(false)
		n, err := m.leaves.FinalizeDueLeaves(ctx)
		if err != nil {
			m.logger.Error("leave sweep", slog.Any("error", err))
			return
		}
		if n > 0 {
			m.logger.Info("leaves finalized", slog.Int("count", n))
		}
	}()
}

// checkRentBilling dispatches the rent batch at most once per throttle window
// across all zones. SETNX with the window as TTL makes winning the slot and
// recording the run a single atomic step.
func (m *Manager) checkRentBilling(ctx context.Context) {
	won, err := m.rdb.SetNX(ctx, shared.RentBillingLastRunKey,
		time.Now().Unix(), m.cfg.RentThrottle).Result()
	if err != nil {
		m.logger.Error("rent throttle check", slog.Any("error", err))
		return
	}
	if !won {
		return
	}
	// Fire-and-forget: the queue owns retries from here.
	if err := m.dispatcher.DispatchRentBilling(ctx); err != nil {
		m.logger.Error("rent billing dispatch", slog.Any("error", err))
	}
}
