package hangar

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/halcyongames/starhold/internal/corp"
	"github.com/halcyongames/starhold/internal/messaging"
	"github.com/halcyongames/starhold/internal/platform/db"
	"github.com/halcyongames/starhold/internal/roles"
)

// TxRepository groups the per-hangar billing writes.
type TxRepository interface {
	DebitCorporation(ctx context.Context, corporationID, amount int64) error
	ExtendLease(ctx context.Context, hangarID int64, start, end time.Time) error
	MarkLeaseExpired(ctx context.Context, hangarID int64) error
	LogTransaction(ctx context.Context, t corp.Transaction) error
}

// RepositoryPort abstracts persistence for the billing run.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository, uow *db.UnitOfWork) error) error
	ListHangars(ctx context.Context) ([]Hangar, error)
	GetSite(ctx context.Context, siteID int64) (Site, error)
}

// StandingPort resolves how an owning corporation regards a tenant.
type StandingPort interface {
	Standing(ctx context.Context, ownerCorp, towardCorp int64) (int, error)
}

// Billing runs the periodic hangar rent batch. Each hangar is billed in its
// own transaction so already-processed hangars keep their effects even when a
// later hangar fails.
type Billing struct {
	repo      RepositoryPort
	standings StandingPort
	messenger messaging.Messenger
	// defaultPeriod covers sites whose row carries no rent period.
	defaultPeriod time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewBilling builds Billing.
func NewBilling(repo RepositoryPort, standings StandingPort, messenger messaging.Messenger,
	defaultPeriod time.Duration, logger *slog.Logger) *Billing {
	return &Billing{
		repo:          repo,
		standings:     standings,
		messenger:     messenger,
		defaultPeriod: defaultPeriod,
		logger:        logger,
		now:           time.Now,
	}
}

// Run bills every hangar under the corporate storage hierarchy. A single
// hangar's failure is logged and the loop continues.
func (b *Billing) Run(ctx context.Context) error {
	hangars, err := b.repo.ListHangars(ctx)
	if err != nil {
		return err
	}
	for _, h := range hangars {
		if err := b.billHangar(ctx, h); err != nil {
			b.logger.Error("hangar billing",
				slog.Int64("hangar", h.ID),
				slog.Int64("corporation", h.CorporationID),
				slog.Any("error", err))
		}
	}
	return nil
}

func (b *Billing) billHangar(ctx context.Context, h Hangar) error {
	site, err := b.repo.GetSite(ctx, h.SiteID)
	if err != nil {
		return err
	}

	// Standing gate: a failing check skips this cycle. A grace period, not a
	// penalty.
	if site.OwnerCorporationID != 0 && site.OwnerCorporationID != h.CorporationID && site.StandingLimit > 0 {
		standing, err := b.standings.Standing(ctx, site.OwnerCorporationID, h.CorporationID)
		if err != nil {
			return err
		}
		if standing < site.StandingLimit {
			b.logger.Debug("hangar billing skipped on standing",
				slog.Int64("hangar", h.ID),
				slog.Int("standing", standing))
			return nil
		}
	}

	now := b.now()
	if h.LeaseEnd.After(now) {
		return nil
	}

	return b.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, uow *db.UnitOfWork) error {
		if err := tx.DebitCorporation(ctx, h.CorporationID, site.RentPrice); err != nil {
			if !errors.Is(err, corp.ErrInsufficientFunds) {
				return err
			}
			// Lock the contents and tell the people holding the purse.
			if err := tx.MarkLeaseExpired(ctx, h.ID); err != nil {
				return err
			}
			uow.Defer(func() {
				b.notifyFinancial(ctx, h, site)
			})
			return nil
		}

		period := site.RentPeriod
		if period <= 0 {
			period = b.defaultPeriod
		}
		if err := tx.ExtendLease(ctx, h.ID, now, now.Add(period)); err != nil {
			return err
		}
		return tx.LogTransaction(ctx, corp.Transaction{
			CorporationID: h.CorporationID,
			Amount:        -site.RentPrice,
			Reason:        "hangar rent",
			CreatedAt:     now,
		})
	})
}

func (b *Billing) notifyFinancial(ctx context.Context, h Hangar, site Site) {
	if b.messenger == nil {
		return
	}
	err := b.messenger.SendToRole(ctx, h.CorporationID, roles.Financial, messaging.Message{
		Command: "corporationHangarRentUnpaid",
		Data: map[string]any{
			"hangarID": h.ID,
			"price":    site.RentPrice,
		},
	})
	if err != nil {
		b.logger.Warn("rent notification", slog.Int64("hangar", h.ID), slog.Any("error", err))
	}
}
