// Package memory is an in-process storage adapter with the locking behaviour
// of the postgres adapter: row locks held until commit, unique keys reserved
// by the first writer, and staged writes visible only to their own transaction.
package memory

import (
	"context"
	"fmt"
	"sync"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store holds committed state for every repository.
type Store struct {
	mu           sync.RWMutex
	users        map[uuid.UUID]domain.User
	wallets      map[uuid.UUID]domain.Wallet
	transactions map[uuid.UUID]domain.Transaction
	apiKeys      map[uuid.UUID]domain.APIKey
	events       map[string]domain.WebhookEvent
	audit        []domain.AuditLog

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:        make(map[uuid.UUID]domain.User),
		wallets:      make(map[uuid.UUID]domain.Wallet),
		transactions: make(map[uuid.UUID]domain.Transaction),
		apiKeys:      make(map[uuid.UUID]domain.APIKey),
		events:       make(map[string]domain.WebhookEvent),
		locks:        make(map[string]chan struct{}),
	}
}

// Begin starts a transaction. It implements ports.DBTransactor.
func (s *Store) Begin(_ context.Context) (pgx.Tx, error) {
	return &Tx{
		store:        s,
		held:         make(map[string]struct{}),
		users:        make(map[uuid.UUID]domain.User),
		wallets:      make(map[uuid.UUID]domain.Wallet),
		transactions: make(map[uuid.UUID]domain.Transaction),
		apiKeys:      make(map[uuid.UUID]domain.APIKey),
		events:       make(map[string]domain.WebhookEvent),
	}, nil
}

// AuditLogs returns a copy of the recorded audit entries.
func (s *Store) AuditLogs() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditLog(nil), s.audit...)
}

func (s *Store) lockChan(key string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

// Tx is a unit of work against a Store. Only Commit and Rollback of pgx.Tx are supported.
type Tx struct {
	pgx.Tx

	store *Store
	done  bool
	held  map[string]struct{}

	users        map[uuid.UUID]domain.User
	wallets      map[uuid.UUID]domain.Wallet
	transactions map[uuid.UUID]domain.Transaction
	apiKeys      map[uuid.UUID]domain.APIKey
	events       map[string]domain.WebhookEvent
}

// lock acquires the named row lock for the rest of the transaction.
// It blocks while another transaction holds it, or until ctx is done.
func (t *Tx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	select {
	case t.store.lockChan(key) <- struct{}{}:
		t.held[key] = struct{}{}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
	}
}

// Commit publishes staged writes and releases every lock.
func (t *Tx) Commit(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	s := t.store
	s.mu.Lock()
	for id, u := range t.users {
		s.users[id] = u
	}
	for id, w := range t.wallets {
		s.wallets[id] = w
	}
	for id, txn := range t.transactions {
		s.transactions[id] = txn
	}
	for id, k := range t.apiKeys {
		s.apiKeys[id] = k
	}
	for key, e := range t.events {
		s.events[key] = e
	}
	s.mu.Unlock()
	t.finish()
	return nil
}

// Rollback discards staged writes and releases every lock.
func (t *Tx) Rollback(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.finish()
	return nil
}

func (t *Tx) finish() {
	t.done = true
	for key := range t.held {
		<-t.store.lockChan(key)
	}
	t.held = nil
}

func txOf(tx pgx.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t == nil {
		return nil, fmt.Errorf("memory: foreign transaction %T", tx)
	}
	if t.done {
		return nil, pgx.ErrTxClosed
	}
	return t, nil
}

func duplicate(constraint string) error {
	return fmt.Errorf("%s: %w", constraint, ports.ErrDuplicateKey)
}
