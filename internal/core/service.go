package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"fishercore/internal/infra/persistence/memory"
	"fishercore/pkg/domain"

	"github.com/google/uuid"
)

// Operation names reported to tracers, metrics and audit.
const (
	OpInitializeFisher = "initialize_fisher"
	OpRecordCatch      = "record_catch"
	OpGetFisherStats   = "get_fisher_stats"
	OpListCatches      = "list_catches"
)

// Service is the fisher record store: it creates records, applies catches
// and serves stats on top of a transactional PersistentStore.
type Service struct {
	store   PersistentStore
	logger  Logger
	clock   Clock
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	sinks   []EventSink
	archive *CatchArchive
	locks   *walletLocks
	newID   func() (uuid.UUID, error)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used for event and audit timestamps.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetricsRecorder installs an operation metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder installs an audit recorder for mutating operations.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithEventSink adds a sink receiving committed catch events.
func WithEventSink(sink EventSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
}

// WithCatchArchive stores every catch event in archive and enables ListCatches.
func WithCatchArchive(archive *CatchArchive) Option {
	return func(s *Service) {
		if archive != nil {
			s.archive = archive
			s.sinks = append(s.sinks, archive)
		}
	}
}

// NewService constructs a service backed by the supplied store. Without
// WithClock the store's clock is used when it exposes one.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		audit:   noopAuditRecorder{},
		locks:   newWalletLocks(),
		newID:   uuid.NewV7,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = ClockFunc(func() time.Time { return time.Now().UTC() })
		if nf, ok := store.(interface{ NowFunc() func() time.Time }); ok {
			if fn := nf.NowFunc(); fn != nil {
				s.clock = ClockFunc(fn)
			}
		}
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Close releases the store when it holds external resources.
func (s *Service) Close() error {
	if c, ok := s.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// InitializeFisher creates the record owned by actor. The actor's wallet is
// the identity; a second call for the same wallet fails with ErrAlreadyExists
// and leaves the stored record untouched.
func (s *Service) InitializeFisher(ctx context.Context, actor Actor) (rec FisherRecord, err error) {
	address := domain.DeriveAddress(actor.Wallet)
	ctx, op := s.begin(ctx, OpInitializeFisher)
	defer func() { op.end(ctx, ActionCreate, address, actor, err) }()

	if actor.Wallet.IsZero() {
		return FisherRecord{}, fmt.Errorf("%w: actor wallet required", domain.ErrUnauthorized)
	}
	unlock := s.locks.lock(address)
	defer unlock()

	var created FisherRecord
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateFisher(domain.NewFisherRecord(actor.Wallet))
		return err
	})
	if err != nil {
		return FisherRecord{}, err
	}
	s.logger.Info("fisher initialized", "wallet", created.Wallet.String(), "address", created.Address)
	return created, nil
}

// RecordCatch applies one catch to wallet's record on behalf of actor. Input
// is validated before the record is touched; the counters, reputation and
// rank advance together or not at all.
func (s *Service) RecordCatch(ctx context.Context, wallet Wallet, actor Actor, tokenRef string, score int) (rec FisherRecord, err error) {
	address := domain.DeriveAddress(wallet)
	ctx, op := s.begin(ctx, OpRecordCatch)
	defer func() { op.end(ctx, ActionUpdate, address, actor, err) }()

	validScore, err := domain.ValidateScore(score)
	if err != nil {
		return FisherRecord{}, err
	}
	ref, err := NormalizeTokenRef(tokenRef)
	if err != nil {
		return FisherRecord{}, err
	}

	unlock := s.locks.lock(address)
	defer unlock()

	var (
		updated FisherRecord
		award   domain.CatchAward
	)
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		current, ok := tx.FindFisher(address)
		if !ok {
			return fmt.Errorf("fisher %s: %w", wallet, domain.ErrNotFound)
		}
		if !actor.Owns(current) {
			return fmt.Errorf("fisher %s: %w", wallet, domain.ErrUnauthorized)
		}
		var err error
		updated, err = tx.UpdateFisher(address, func(r *FisherRecord) error {
			next, a, err := domain.ApplyCatch(*r, validScore)
			if err != nil {
				return fmt.Errorf("fisher %s: %w", wallet, err)
			}
			award = a
			*r = next
			return nil
		})
		return err
	})
	if err != nil {
		return FisherRecord{}, err
	}

	s.publish(ctx, CatchEvent{
		Wallet:     updated.Wallet,
		Address:    updated.Address,
		TokenRef:   ref,
		Score:      validScore,
		BigFish:    award.BigFish,
		Points:     award.Points,
		Reputation: updated.Reputation,
		Rank:       updated.Rank,
		RecordedAt: s.clock.Now(),
	})
	return updated, nil
}

// GetFisherStats returns the public stats for wallet. Reads never take the
// wallet lock and observe only committed state.
func (s *Service) GetFisherStats(ctx context.Context, wallet Wallet) (stats FisherStats, err error) {
	ctx, op := s.begin(ctx, OpGetFisherStats)
	defer func() { op.finish(ctx, err) }()

	address := domain.DeriveAddress(wallet)
	err = s.store.View(ctx, func(view TransactionView) error {
		rec, ok := view.FindFisher(address)
		if !ok {
			return fmt.Errorf("fisher %s: %w", wallet, domain.ErrNotFound)
		}
		stats = rec.Stats()
		return nil
	})
	if err != nil {
		return FisherStats{}, err
	}
	return stats, nil
}

// ListCatches returns the archived catch events for wallet, oldest first.
func (s *Service) ListCatches(ctx context.Context, wallet Wallet) (events []CatchEvent, err error) {
	ctx, op := s.begin(ctx, OpListCatches)
	defer func() { op.finish(ctx, err) }()

	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	address := domain.DeriveAddress(wallet)
	err = s.store.View(ctx, func(view TransactionView) error {
		if _, ok := view.FindFisher(address); !ok {
			return fmt.Errorf("fisher %s: %w", wallet, domain.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.archive.List(ctx, address)
}

// publish fans an event out to every sink. Sink failures are logged; the
// catch is already committed.
func (s *Service) publish(ctx context.Context, event CatchEvent) {
	id, err := s.newID()
	if err != nil {
		s.logger.Warn("catch event id", "error", err)
		id = uuid.New()
	}
	event.ID = id
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			s.logger.Error("catch event sink failed", "event_id", event.ID.String(), "wallet", event.Wallet.String(), "error", err)
		}
	}
}

type operation struct {
	s       *Service
	name    string
	span    TraceSpan
	started time.Time
}

func (s *Service) begin(ctx context.Context, name string) (context.Context, *operation) {
	ctx, span := s.tracer.Start(ctx, name)
	return ctx, &operation{s: s, name: name, span: span, started: s.clock.Now()}
}

// finish closes the span and records metrics; it returns the duration.
func (op *operation) finish(ctx context.Context, err error) time.Duration {
	duration := op.s.clock.Now().Sub(op.started)
	op.span.End(err)
	op.s.metrics.Observe(ctx, op.name, err == nil, duration)
	if err != nil {
		op.s.logger.Debug("operation failed", "operation", op.name, "error", err, "retryable", domain.IsRetryable(err))
	}
	return duration
}

// end is finish plus an audit entry, used by mutating operations.
func (op *operation) end(ctx context.Context, action Action, entityID string, actor Actor, err error) {
	duration := op.finish(ctx, err)
	entry := AuditEntry{
		Operation: op.name,
		Entity:    EntityFisher,
		Action:    action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: op.s.clock.Now(),
	}
	if !actor.Wallet.IsZero() {
		entry.Actor = actor.Wallet.String()
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		var rv RuleViolationError
		if errors.As(err, &rv) {
			op.s.logger.Warn("rule violation", "operation", op.name, "entity_id", entityID, "error", err)
		}
	}
	op.s.audit.Record(ctx, entry)
}
