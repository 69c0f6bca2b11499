// Package memory provides an in-memory implementation of the core persistence
// store used for tests, ephemeral environments, and as the transactional
// engine behind the durable backends.
package memory

import (
	"context"
	"errors"
	"fishercore/pkg/domain"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// FisherRecord aliases domain.FisherRecord for in-memory persistence operations.
	FisherRecord = domain.FisherRecord
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

// CommitHook runs after rules pass and before the transaction state is
// published. A hook error aborts the transaction. Durable backends use it to
// write the changed records in the same unit of work.
type CommitHook func(ctx context.Context, changes []Change) error

// Loader reads the authoritative state from a durable backend.
type Loader func(ctx context.Context) (Snapshot, error)

// maxConflictAttempts bounds how often a transaction is replayed after its
// commit hook reports domain.ErrConflict.
const maxConflictAttempts = 5

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithCommitHook installs a hook invoked on every successful transaction.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.hook = hook }
}

// WithLoader makes the backend the source of truth: every transaction and
// View starts from loader's state instead of the cached copy, and a
// transaction whose hook reports domain.ErrConflict is replayed on fresh state.
func WithLoader(loader Loader) Option {
	return func(s *Store) { s.loader = loader }
}

type memoryState struct {
	fishers map[string]FisherRecord
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Fishers map[string]FisherRecord `json:"fishers"`
}

func newMemoryState() memoryState {
	return memoryState{fishers: make(map[string]FisherRecord)}
}

func (s memoryState) clone() memoryState {
	cloned := memoryState{fishers: make(map[string]FisherRecord, len(s.fishers))}
	for k, v := range s.fishers {
		cloned.fishers[k] = v
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	return Snapshot{Fishers: state.clone().fishers}
}

// memoryStateFromSnapshot rebuilds state keyed by the derived address. Entries
// stored under a stale key are re-keyed and their rank re-derived so imported
// data always satisfies the record invariants.
func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for _, rec := range s.Fishers {
		rec.Address = domain.DeriveAddress(rec.Wallet)
		rec.Rank = domain.RankForReputation(rec.Reputation)
		state.fishers[rec.Address] = rec
	}
	return state
}

// Store provides an in-memory transactional store for fisher records.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	hook   CommitHook
	loader Loader
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine for integration points.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListFishers returns all records ordered by address.
func (v transactionView) ListFishers() []FisherRecord {
	return sortedFishers(v.state.fishers)
}

// FindFisher retrieves a record by derived address.
func (v transactionView) FindFisher(address string) (FisherRecord, bool) {
	rec, ok := v.state.fishers[address]
	return rec, ok
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Writers are serialized; the copy is only published when fn, every rule, and
// the commit hook succeed. With a loader, fn may run more than once.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 1; ; attempt++ {
		res, err := s.runLocked(ctx, fn)
		if s.loader == nil || !errors.Is(err, domain.ErrConflict) || attempt == maxConflictAttempts {
			return res, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
	}
}

func (s *Store) runLocked(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	if s.loader != nil {
		snapshot, err := s.loader(ctx)
		if err != nil {
			return Result{}, err
		}
		s.state = memoryStateFromSnapshot(snapshot)
	}

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.hook != nil && len(tx.changes) > 0 {
		if err := s.hook(ctx, tx.changes); err != nil {
			return result, err
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	if s.loader != nil {
		snapshot, err := s.loader(ctx)
		if err != nil {
			return err
		}
		state := memoryStateFromSnapshot(snapshot)
		return fn(newTransactionView(&state))
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// GetFisher returns the committed record stored at address. With a loader it
// reflects the state as of the last transaction; use View for a fresh read.
func (s *Store) GetFisher(address string) (FisherRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.state.fishers[address]
	return rec, ok
}

// ListFishers returns all committed records ordered by address.
func (s *Store) ListFishers() []FisherRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedFishers(s.state.fishers)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindFisher exposes record lookup within the transaction scope.
func (tx *transaction) FindFisher(address string) (FisherRecord, bool) {
	rec, ok := tx.state.fishers[address]
	return rec, ok
}

// CreateFisher stores a new record keyed by the address derived from its wallet.
func (tx *transaction) CreateFisher(rec FisherRecord) (FisherRecord, error) {
	if rec.Wallet.IsZero() {
		return FisherRecord{}, fmt.Errorf("%w: fisher wallet required", domain.ErrInvalidInput)
	}
	rec.Address = domain.DeriveAddress(rec.Wallet)
	if _, exists := tx.state.fishers[rec.Address]; exists {
		return FisherRecord{}, fmt.Errorf("fisher %s: %w", rec.Wallet, domain.ErrAlreadyExists)
	}
	rec.CreatedAt = tx.now
	rec.UpdatedAt = tx.now
	rec.Version = 1
	tx.state.fishers[rec.Address] = rec
	tx.recordChange(Change{Entity: domain.EntityFisher, Action: domain.ActionCreate, After: rec})
	return rec, nil
}

// UpdateFisher mutates a record using the provided mutator function.
func (tx *transaction) UpdateFisher(address string, mutator func(*FisherRecord) error) (FisherRecord, error) {
	current, ok := tx.state.fishers[address]
	if !ok {
		return FisherRecord{}, fmt.Errorf("fisher at %s: %w", address, domain.ErrNotFound)
	}
	before := current
	if err := mutator(&current); err != nil {
		return FisherRecord{}, err
	}
	current.Wallet = before.Wallet
	current.Address = before.Address
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	tx.state.fishers[address] = current
	tx.recordChange(Change{Entity: domain.EntityFisher, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

func sortedFishers(m map[string]FisherRecord) []FisherRecord {
	out := make([]FisherRecord, 0, len(m))
	for _, rec := range m {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
