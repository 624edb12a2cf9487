// Package memory implements domain.Repository in process memory. Records read
// by a transaction are try-locked until it finishes; writes are buffered and
// applied only on commit.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/editionshop/internal/domain"
)

var errReadOnly = errors.New("memory: write in read-only transaction")

type recordKey struct {
	kind string
	addr common.Address
}

type state struct {
	stores    map[common.Address]domain.Store
	resources map[common.Address]domain.SellingResource
	markets   map[common.Address]domain.Market
	histories map[common.Address]domain.TradeHistory
	creators  map[common.Address]domain.PrimaryMetadataCreators
	tickets   map[common.Address]domain.PayoutTicket
	accounts  map[common.Address]domain.TokenAccount
	masters   map[common.Address]domain.MasterEdition
	metadata  map[common.Address]domain.Metadata
	editions  map[common.Address]domain.Edition
	audit     []domain.AuditEntry
}

// Repository is an in-memory domain.Repository.
type Repository struct {
	mu     sync.RWMutex
	s      state
	locks  map[recordKey]uint64
	nextTx uint64
	now    func() time.Time
}

// NewRepository returns an empty repository.
func NewRepository() *Repository {
	return &Repository{
		s: state{
			stores:    make(map[common.Address]domain.Store),
			resources: make(map[common.Address]domain.SellingResource),
			markets:   make(map[common.Address]domain.Market),
			histories: make(map[common.Address]domain.TradeHistory),
			creators:  make(map[common.Address]domain.PrimaryMetadataCreators),
			tickets:   make(map[common.Address]domain.PayoutTicket),
			accounts:  make(map[common.Address]domain.TokenAccount),
			masters:   make(map[common.Address]domain.MasterEdition),
			metadata:  make(map[common.Address]domain.Metadata),
			editions:  make(map[common.Address]domain.Edition),
		},
		locks: make(map[recordKey]uint64),
		now:   time.Now,
	}
}

// InTx runs fn as one transaction.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	t := r.begin(false)
	defer r.release(t)

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.commit(t)
	return nil
}

// View runs fn without locks. Writes fail.
func (r *Repository) View(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return fn(ctx, r.begin(true))
}

func (r *Repository) begin(readOnly bool) *tx {
	r.mu.Lock()
	r.nextTx++
	id := r.nextTx
	r.mu.Unlock()
	return &tx{
		repo:     r,
		id:       id,
		readOnly: readOnly,
		writes:   make(map[recordKey]any),
	}
}

func (r *Repository) release(t *tx) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range t.held {
		if r.locks[k] == t.id {
			delete(r.locks, k)
		}
	}
}

func (r *Repository) commit(t *tx) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range t.writes {
		switch rec := v.(type) {
		case domain.Store:
			r.s.stores[k.addr] = rec
		case domain.SellingResource:
			r.s.resources[k.addr] = rec
		case domain.Market:
			r.s.markets[k.addr] = rec
		case domain.TradeHistory:
			r.s.histories[k.addr] = rec
		case domain.PrimaryMetadataCreators:
			r.s.creators[k.addr] = rec
		case domain.PayoutTicket:
			r.s.tickets[k.addr] = rec
		case domain.TokenAccount:
			r.s.accounts[k.addr] = rec
		case domain.MasterEdition:
			r.s.masters[k.addr] = rec
		case domain.Metadata:
			r.s.metadata[k.addr] = rec
		case domain.Edition:
			r.s.editions[k.addr] = rec
		}
	}
	for _, e := range t.audit {
		e.ID = int64(len(r.s.audit) + 1)
		r.s.audit = append(r.s.audit, e)
	}
}

// tx is one transaction over the repository.
type tx struct {
	repo     *Repository
	id       uint64
	readOnly bool
	held     map[recordKey]struct{}
	writes   map[recordKey]any
	audit    []domain.AuditEntry
}

func (t *tx) lock(k recordKey) error {
	if t.readOnly {
		return nil
	}
	r := t.repo
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.locks[k]; ok && owner != t.id {
		return fmt.Errorf("memory: %s %s: %w", k.kind, k.addr.Hex(), domain.ErrRecordLocked)
	}
	r.locks[k] = t.id
	if t.held == nil {
		t.held = make(map[recordKey]struct{})
	}
	t.held[k] = struct{}{}
	return nil
}

func (t *tx) put(k recordKey, v any) error {
	if t.readOnly {
		return errReadOnly
	}
	if err := t.lock(k); err != nil {
		return err
	}
	t.writes[k] = v
	return nil
}

// load locks k and returns its current value, preferring buffered writes.
func load[T any](t *tx, kind string, addr common.Address, base func(*state) map[common.Address]T) (T, bool, error) {
	var zero T
	k := recordKey{kind, addr}
	if err := t.lock(k); err != nil {
		return zero, false, err
	}
	if v, ok := t.writes[k]; ok {
		return v.(T), true, nil
	}
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	v, ok := base(&t.repo.s)[addr]
	return v, ok, nil
}

func get[T any](t *tx, kind string, addr common.Address, base func(*state) map[common.Address]T) (T, error) {
	v, ok, err := load(t, kind, addr, base)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, fmt.Errorf("memory: %s %s: %w", kind, addr.Hex(), domain.ErrNotFound)
	}
	return v, nil
}

func create[T any](t *tx, kind string, addr common.Address, v T, base func(*state) map[common.Address]T) error {
	if t.readOnly {
		return errReadOnly
	}
	_, ok, err := load(t, kind, addr, base)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("memory: %s %s: %w", kind, addr.Hex(), domain.ErrAlreadyExists)
	}
	return t.put(recordKey{kind, addr}, v)
}

func update[T any](t *tx, kind string, addr common.Address, v T, base func(*state) map[common.Address]T) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, err := get(t, kind, addr, base); err != nil {
		return err
	}
	return t.put(recordKey{kind, addr}, v)
}

// scan returns the committed rows merged with this transaction's writes.
// It takes no locks.
func scan[T any](t *tx, kind string, base func(*state) map[common.Address]T, keep func(T) bool) []T {
	t.repo.mu.RLock()
	merged := make(map[common.Address]T)
	for a, v := range base(&t.repo.s) {
		merged[a] = v
	}
	t.repo.mu.RUnlock()
	for k, v := range t.writes {
		if k.kind == kind {
			merged[k.addr] = v.(T)
		}
	}
	out := make([]T, 0, len(merged))
	for _, v := range merged {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func (t *tx) Stores() domain.StoreStore                     { return storeStore{t} }
func (t *tx) SellingResources() domain.SellingResourceStore { return resourceStore{t} }
func (t *tx) Markets() domain.MarketStore                   { return marketStore{t} }
func (t *tx) TradeHistories() domain.TradeHistoryStore      { return historyStore{t} }
func (t *tx) PrimaryCreators() domain.PrimaryCreatorsStore  { return creatorsStore{t} }
func (t *tx) PayoutTickets() domain.PayoutTicketStore       { return ticketStore{t} }
func (t *tx) Tokens() domain.TokenLedger                    { return ledger{t} }
func (t *tx) Audit() domain.AuditStore                      { return auditStore{t} }

func storesOf(s *state) map[common.Address]domain.Store                     { return s.stores }
func resourcesOf(s *state) map[common.Address]domain.SellingResource        { return s.resources }
func marketsOf(s *state) map[common.Address]domain.Market                   { return s.markets }
func historiesOf(s *state) map[common.Address]domain.TradeHistory           { return s.histories }
func creatorsOf(s *state) map[common.Address]domain.PrimaryMetadataCreators { return s.creators }
func ticketsOf(s *state) map[common.Address]domain.PayoutTicket             { return s.tickets }
func accountsOf(s *state) map[common.Address]domain.TokenAccount            { return s.accounts }
func mastersOf(s *state) map[common.Address]domain.MasterEdition            { return s.masters }
func metadataOf(s *state) map[common.Address]domain.Metadata                { return s.metadata }
func editionsOf(s *state) map[common.Address]domain.Edition                 { return s.editions }

type storeStore struct{ t *tx }

func (s storeStore) Create(_ context.Context, st domain.Store) error {
	return create(s.t, "store", st.Address, st, storesOf)
}

func (s storeStore) Get(_ context.Context, addr common.Address) (domain.Store, error) {
	return get(s.t, "store", addr, storesOf)
}

type resourceStore struct{ t *tx }

func (s resourceStore) Create(_ context.Context, r domain.SellingResource) error {
	return create(s.t, "selling_resource", r.Address, r, resourcesOf)
}

func (s resourceStore) Get(_ context.Context, addr common.Address) (domain.SellingResource, error) {
	return get(s.t, "selling_resource", addr, resourcesOf)
}

func (s resourceStore) Update(_ context.Context, r domain.SellingResource) error {
	return update(s.t, "selling_resource", r.Address, r, resourcesOf)
}

type marketStore struct{ t *tx }

func (s marketStore) Create(_ context.Context, m domain.Market) error {
	return create(s.t, "market", m.Address, m, marketsOf)
}

func (s marketStore) Get(_ context.Context, addr common.Address) (domain.Market, error) {
	return get(s.t, "market", addr, marketsOf)
}

func (s marketStore) Update(_ context.Context, m domain.Market) error {
	return update(s.t, "market", m.Address, m, marketsOf)
}

func (s marketStore) ListByStore(_ context.Context, store common.Address, opts domain.ListOpts) ([]domain.Market, error) {
	out := scan(s.t, "market", marketsOf, func(m domain.Market) bool {
		if m.Store != store {
			return false
		}
		if opts.Since != nil && m.CreatedAt.Before(*opts.Since) {
			return false
		}
		if opts.Until != nil && !m.CreatedAt.Before(*opts.Until) {
			return false
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Address.Cmp(out[j].Address) < 0
	})
	return page(out, opts), nil
}

type historyStore struct{ t *tx }

func (s historyStore) Get(_ context.Context, addr common.Address) (domain.TradeHistory, error) {
	return get(s.t, "trade_history", addr, historiesOf)
}

func (s historyStore) Put(_ context.Context, h domain.TradeHistory) error {
	return s.t.put(recordKey{"trade_history", h.Address}, h)
}

type creatorsStore struct{ t *tx }

func (s creatorsStore) Create(_ context.Context, p domain.PrimaryMetadataCreators) error {
	p.Creators = append([]domain.Creator(nil), p.Creators...)
	return create(s.t, "primary_creators", p.Address, p, creatorsOf)
}

func (s creatorsStore) Get(_ context.Context, addr common.Address) (domain.PrimaryMetadataCreators, error) {
	return get(s.t, "primary_creators", addr, creatorsOf)
}

type ticketStore struct{ t *tx }

func (s ticketStore) Create(_ context.Context, pt domain.PayoutTicket) error {
	return create(s.t, "payout_ticket", pt.Address, pt, ticketsOf)
}

func (s ticketStore) Get(_ context.Context, addr common.Address) (domain.PayoutTicket, error) {
	return get(s.t, "payout_ticket", addr, ticketsOf)
}

func (s ticketStore) ListByMarket(_ context.Context, market common.Address) ([]domain.PayoutTicket, error) {
	out := scan(s.t, "payout_ticket", ticketsOf, func(pt domain.PayoutTicket) bool {
		return pt.Market == market
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type auditStore struct{ t *tx }

func (s auditStore) Log(_ context.Context, event string, detail map[string]any) error {
	if s.t.readOnly {
		return errReadOnly
	}
	s.t.audit = append(s.t.audit, domain.AuditEntry{
		Event:     event,
		Detail:    detail,
		CreatedAt: s.t.repo.now().UTC(),
	})
	return nil
}

func (s auditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.t.repo.mu.RLock()
	var out []domain.AuditEntry
	for _, e := range s.t.repo.s.audit {
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !e.CreatedAt.Before(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	s.t.repo.mu.RUnlock()
	return page(out, opts), nil
}

func page[T any](rows []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(rows) {
			return nil
		}
		rows = rows[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(rows) {
		rows = rows[:opts.Limit]
	}
	return rows
}
