package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	FindFisher(address string) (FisherRecord, bool)
	// CreateFisher stores a new record. It fails with ErrAlreadyExists when the
	// record's address is taken.
	CreateFisher(FisherRecord) (FisherRecord, error)
	// UpdateFisher applies mutator to a copy of the stored record. Wallet and
	// Address are restored after the mutator runs. Missing records fail with
	// ErrNotFound.
	UpdateFisher(address string, mutator func(*FisherRecord) error) (FisherRecord, error)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListFishers() []FisherRecord
	FindFisher(address string) (FisherRecord, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetFisher(address string) (FisherRecord, bool)
	ListFishers() []FisherRecord
}
