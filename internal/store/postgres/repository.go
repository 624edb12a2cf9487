package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/editionshop/internal/domain"
)

// Postgres error codes mapped to domain errors.
const (
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// querier is the subset of pgx.Tx the stores run statements through.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements domain.Repository. Rows read inside InTx are locked
// with SELECT ... FOR UPDATE NOWAIT, so a row held by a concurrent
// transaction fails the read with domain.ErrRecordLocked instead of waiting.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository over pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InTx runs fn in a read-committed transaction and commits when it returns
// nil.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return r.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, " FOR UPDATE NOWAIT", fn)
}

// View runs fn in a read-only transaction without row locks.
func (r *Repository) View(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return r.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly}, "", fn)
}

func (r *Repository) run(ctx context.Context, opts pgx.TxOptions, lock string, fn func(ctx context.Context, tx domain.Tx) error) error {
	ptx, err := r.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	// Rollback after a successful Commit is a no-op.
	defer func() { _ = ptx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, &shopTx{q: ptx, lock: lock}); err != nil {
		return err
	}
	if err := ptx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", mapErr(err))
	}
	return nil
}

// shopTx binds the stores to one pgx transaction.
type shopTx struct {
	q    querier
	lock string
}

func (t *shopTx) Stores() domain.StoreStore                     { return &StoreStore{t} }
func (t *shopTx) SellingResources() domain.SellingResourceStore { return &SellingResourceStore{t} }
func (t *shopTx) Markets() domain.MarketStore                   { return &MarketStore{t} }
func (t *shopTx) TradeHistories() domain.TradeHistoryStore      { return &TradeHistoryStore{t} }
func (t *shopTx) PrimaryCreators() domain.PrimaryCreatorsStore  { return &PrimaryCreatorsStore{t} }
func (t *shopTx) PayoutTickets() domain.PayoutTicketStore       { return &PayoutTicketStore{t} }
func (t *shopTx) Tokens() domain.TokenLedger                    { return &TokenLedger{t} }
func (t *shopTx) Audit() domain.AuditStore                      { return &AuditStore{t} }

// mapErr translates driver errors into domain errors, keeping the original
// message.
func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s", domain.ErrRecordLocked, pgErr.Message)
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, pgErr.ConstraintName)
		}
	}
	return err
}

// inserted reports a conflict-free INSERT ... ON CONFLICT DO NOTHING.
func inserted(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// updated reports an UPDATE that hit exactly one row.
func updated(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// uint64 values travel as NUMERIC text so the full range survives.

func numText(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func optNumText(v *uint64) *string {
	if v == nil {
		return nil
	}
	s := numText(*v)
	return &s
}

func parseNum(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("postgres: numeric %q: %w", s, err)
	}
	return v, nil
}

func parseOptNum(s *string) (*uint64, error) {
	if s == nil {
		return nil, nil
	}
	v, err := parseNum(*s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

var _ domain.Repository = (*Repository)(nil)
