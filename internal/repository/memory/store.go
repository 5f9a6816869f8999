// Package memory is a transactional in-memory implementation of the
// repository layer. One transaction runs at a time; writes made inside it
// are undone on rollback. Reads and writes outside a transaction wait for
// the open one to finish, so they only ever see committed state.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ideahub/backend/internal/models"
)

var errNotSupported = errors.New("memory: SQL is not supported")

var errNoTx = errors.New("memory: write outside an open transaction")

type Store struct {
	sem chan struct{}

	mu           sync.RWMutex
	users        map[uuid.UUID]*models.User
	wallets      map[uuid.UUID]*models.Wallet
	walletByUser map[uuid.UUID]uuid.UUID
	entries      []*models.Transaction
	escrows      map[uuid.UUID]*models.Escrow
	tasks        map[uuid.UUID]*models.Task
	disputes     map[uuid.UUID]*models.Dispute
	items        map[uuid.UUID]*models.MarketplaceItem
	purchases    map[uuid.UUID]*models.Purchase
}

// New returns an empty store holding only the platform account and wallet.
func New() *Store {
	s := &Store{
		sem:          make(chan struct{}, 1),
		users:        make(map[uuid.UUID]*models.User),
		wallets:      make(map[uuid.UUID]*models.Wallet),
		walletByUser: make(map[uuid.UUID]uuid.UUID),
		escrows:      make(map[uuid.UUID]*models.Escrow),
		tasks:        make(map[uuid.UUID]*models.Task),
		disputes:     make(map[uuid.UUID]*models.Dispute),
		items:        make(map[uuid.UUID]*models.MarketplaceItem),
		purchases:    make(map[uuid.UUID]*models.Purchase),
	}
	now := time.Now().UTC()
	s.users[models.PlatformUserID] = &models.User{
		ID: models.PlatformUserID, Email: "platform@ideahub.internal", Name: "Platform",
		Role: models.RoleAdmin, Skills: []string{}, CreatedAt: now,
	}
	s.wallets[models.PlatformUserID] = &models.Wallet{
		ID: models.PlatformUserID, UserID: models.PlatformUserID,
		Address: "0x0000000000000000000000000000000000000001", CreatedAt: now, UpdatedAt: now,
	}
	s.walletByUser[models.PlatformUserID] = models.PlatformUserID
	return s
}

// PutUser inserts or replaces a user verbatim, including ranking stats.
// Intended for fixtures.
func (s *Store) PutUser(u *models.User) {
	_ = s.autocommit(func() error {
		cp := cloneUser(u)
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now().UTC()
		}
		s.users[u.ID] = cp
		return nil
	})
}

// Begin waits for the store's single writer slot.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	select {
	case s.sem <- struct{}{}:
		return &Tx{s: s}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// write runs fn under the data lock and records its undo step on tx.
func (s *Store) write(tx pgx.Tx, fn func() (undo func(), err error)) error {
	t, ok := tx.(*Tx)
	if !ok || t.s != s {
		return errNoTx
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return errNoTx
	}
	s.mu.Lock()
	undo, err := fn()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if undo != nil {
		t.undo = append(t.undo, undo)
	}
	return nil
}

// read runs fn under the read lock. With a tx, fn sees that transaction's
// own writes; without one it waits for the writer slot so it never observes
// a transaction that may still roll back.
func (s *Store) read(tx pgx.Tx, fn func() error) error {
	if tx != nil {
		t, ok := tx.(*Tx)
		if !ok || t.s != s || t.closed() {
			return errNoTx
		}
	} else {
		s.sem <- struct{}{}
		defer func() { <-s.sem }()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn()
}

// autocommit applies a single-statement write between transactions.
func (s *Store) autocommit(fn func() error) error {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint, Message: "duplicate key value violates unique constraint"}
}

// Tx is the store's pgx.Tx. Only Commit and Rollback do anything; the SQL
// methods exist to satisfy the interface.
type Tx struct {
	s    *Store
	mu   sync.Mutex
	undo []func()
	done bool
}

func (t *Tx) closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *Tx) Commit(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.undo = nil
	<-t.s.sem
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.s.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.s.mu.Unlock()
	t.undo = nil
	<-t.s.sem
	return nil
}

func (t *Tx) Begin(context.Context) (pgx.Tx, error) { return nil, errNotSupported }
func (t *Tx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errNotSupported
}
func (t *Tx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, errNotSupported }
func (t *Tx) QueryRow(context.Context, string, ...any) pgx.Row        { return errRow{} }
func (t *Tx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errNotSupported
}
func (t *Tx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *Tx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, errNotSupported
}
func (t *Tx) Conn() *pgx.Conn { return nil }

type errRow struct{}

func (errRow) Scan(...any) error { return errNotSupported }

func cloneUser(u *models.User) *models.User {
	cp := *u
	cp.Skills = append([]string{}, u.Skills...)
	return &cp
}

func cloneWallet(w *models.Wallet) *models.Wallet {
	cp := *w
	return &cp
}

func cloneEntry(e *models.Transaction) *models.Transaction {
	cp := *e
	return &cp
}

func cloneEscrow(e *models.Escrow) *models.Escrow {
	cp := *e
	return &cp
}

func cloneTask(t *models.Task) *models.Task {
	cp := *t
	return &cp
}

func cloneDispute(d *models.Dispute) *models.Dispute {
	cp := *d
	return &cp
}

func cloneItem(it *models.MarketplaceItem) *models.MarketplaceItem {
	cp := *it
	return &cp
}

func clonePurchase(p *models.Purchase) *models.Purchase {
	cp := *p
	return &cp
}

func uuidPtr(id uuid.UUID) *uuid.UUID { return &id }

func timePtr(t time.Time) *time.Time { return &t }
