// Package service implements the shop operations. Every mutating operation
// runs as one repository transaction: its preconditions are checked in a
// fixed order and the first failure aborts the whole operation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/editionshop/internal/crypto"
	"github.com/alanyoungcy/editionshop/internal/domain"
	"github.com/alanyoungcy/editionshop/internal/metrics"
	"github.com/alanyoungcy/editionshop/internal/notify"
)

// DefaultMinimumNativeBalance is funded into a native treasury holder when a
// market is created so the account always carries a balance.
const DefaultMinimumNativeBalance uint64 = 890_880

// Clock supplies the instant an operation runs at.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Core carries the collaborators shared by every shop service.
type Core struct {
	repo       domain.Repository
	derive     *crypto.Deriver
	clock      Clock
	limits     domain.TextLimits
	minNative  uint64
	locks      domain.LockManager
	lockTTL    time.Duration
	bus        domain.SignalBus
	cache      domain.MarketCache
	notifier   *notify.Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	eventsChan string
}

// Option configures a Core.
type Option func(*Core)

// WithClock overrides the system clock.
func WithClock(c Clock) Option { return func(core *Core) { core.clock = c } }

// WithTextLimits overrides the padded text widths.
func WithTextLimits(l domain.TextLimits) Option { return func(core *Core) { core.limits = l } }

// WithMinimumNativeBalance overrides the native treasury funding amount.
func WithMinimumNativeBalance(v uint64) Option { return func(core *Core) { core.minNative = v } }

// WithLocks gates market mutations behind a distributed lock. Acquire must
// fail fast when the lock is held.
func WithLocks(l domain.LockManager, ttl time.Duration) Option {
	return func(core *Core) {
		core.locks = l
		core.lockTTL = ttl
	}
}

// WithSignalBus publishes committed operations as events on channel.
func WithSignalBus(bus domain.SignalBus, channel string) Option {
	return func(core *Core) {
		core.bus = bus
		core.eventsChan = channel
	}
}

// WithMarketCache serves market reads from cache and drops entries after
// every market mutation.
func WithMarketCache(mc domain.MarketCache) Option { return func(core *Core) { core.cache = mc } }

// WithNotifier forwards committed operations to chat webhooks.
func WithNotifier(n *notify.Notifier) Option { return func(core *Core) { core.notifier = n } }

// WithMetrics records operation outcomes.
func WithMetrics(m *metrics.Metrics) Option { return func(core *Core) { core.metrics = m } }

// NewCore creates a Core over repo.
func NewCore(repo domain.Repository, derive *crypto.Deriver, logger *slog.Logger, opts ...Option) *Core {
	c := &Core{
		repo:       repo,
		derive:     derive,
		clock:      SystemClock{},
		limits:     domain.DefaultTextLimits(),
		minNative:  DefaultMinimumNativeBalance,
		lockTTL:    10 * time.Second,
		logger:     logger,
		eventsChan: DefaultEventsChannel,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Deriver returns the address deriver used by the services.
func (c *Core) Deriver() *crypto.Deriver { return c.derive }

// execute runs fn in one transaction, optionally behind the distributed lock
// for lockKey, and records the outcome under op.
func (c *Core) execute(ctx context.Context, op string, lockKey string, fn func(ctx context.Context, tx domain.Tx) error) error {
	started := time.Now()
	err := c.lockedTx(ctx, lockKey, fn)
	c.metrics.ObserveOperation(op, started, err)
	return err
}

func (c *Core) lockedTx(ctx context.Context, lockKey string, fn func(ctx context.Context, tx domain.Tx) error) error {
	if c.locks != nil && lockKey != "" {
		unlock, err := c.locks.Acquire(ctx, "shop:lock:"+lockKey, c.lockTTL)
		if err != nil {
			return err
		}
		defer unlock()
	}
	return c.repo.InTx(ctx, fn)
}

// view runs fn in a read-only transaction.
func (c *Core) view(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return c.repo.View(ctx, fn)
}

// announce publishes a committed event and forwards it to the notifier.
// Failures are logged only; the operation has already committed.
func (c *Core) announce(ctx context.Context, ev Event) {
	if c.bus != nil {
		payload, err := ev.Marshal()
		if err == nil {
			err = c.bus.Publish(ctx, c.eventsChan, payload)
		}
		if err == nil {
			err = c.bus.StreamAppend(ctx, c.eventsChan, payload)
		}
		if err != nil {
			c.logger.WarnContext(ctx, "service: publish event failed",
				slog.String("event", ev.Kind),
				slog.String("error", err.Error()),
			)
		}
	}
	if c.notifier != nil {
		if err := c.notifier.Notify(ctx, ev.Notification()); err != nil {
			c.logger.WarnContext(ctx, "service: notify failed",
				slog.String("event", ev.Kind),
				slog.String("error", err.Error()),
			)
		}
	}
}

// record appends an audit entry inside tx.
func record(ctx context.Context, tx domain.Tx, event string, detail map[string]any) error {
	if err := tx.Audit().Log(ctx, event, detail); err != nil {
		return fmt.Errorf("audit %s: %w", event, err)
	}
	return nil
}

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }

func mulU64(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, domain.ErrMathOverflow
	}
	return lo, nil
}

func addU64(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, domain.ErrMathOverflow
	}
	return sum, nil
}

// ensureAccount opens a token account at addr when absent. An existing
// account must carry mint and owner.
func ensureAccount(ctx context.Context, tx domain.Tx, addr, mint, owner common.Address) error {
	acc, err := tx.Tokens().Account(ctx, addr)
	switch {
	case err == nil:
		if acc.Mint != mint {
			return domain.ErrMintMismatch
		}
		if acc.Owner != owner {
			return domain.ErrPublicKeyMismatch
		}
		return nil
	case isNotFound(err):
		return tx.Tokens().OpenAccount(ctx, domain.TokenAccount{Address: addr, Mint: mint, Owner: owner})
	default:
		return err
	}
}

func optU64(v *uint64) any {
	if v == nil {
		return nil
	}
	return *v
}

// invalidate drops a cached market. Failures are non-fatal; the entry
// expires on its own.
func (c *Core) invalidate(ctx context.Context, addr common.Address) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx, addr); err != nil {
		c.logger.WarnContext(ctx, "service: cache invalidate failed",
			slog.String("market", addr.Hex()),
			slog.String("error", err.Error()),
		)
	}
}
