package core

import (
	"context"
	"fmt"

	"fishercore/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine with the built-in record invariants.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewRankConsistencyRule())
	engine.Register(NewBigFishBoundRule())
	engine.Register(NewMonotonicCountersRule())
	engine.Register(NewIdentityImmutableRule())
	return engine
}

// changedFishers yields the post-state of every fisher touched by the transaction.
func changedFishers(changes []Change) []FisherRecord {
	out := make([]FisherRecord, 0, len(changes))
	for _, change := range changes {
		if change.Entity != EntityFisher {
			continue
		}
		if rec, ok := change.After.(FisherRecord); ok {
			out = append(out, rec)
		}
	}
	return out
}

func blockFisher(rule string, rec FisherRecord, format string, args ...any) Violation {
	return Violation{
		Rule:     rule,
		Severity: SeverityBlock,
		Message:  fmt.Sprintf(format, args...),
		Entity:   EntityFisher,
		EntityID: rec.Address,
	}
}

// NewRankConsistencyRule blocks commits where a stored rank disagrees with
// the rank derived from reputation.
func NewRankConsistencyRule() Rule { return rankConsistencyRule{} }

type rankConsistencyRule struct{}

func (rankConsistencyRule) Name() string { return "rank_consistency" }

func (r rankConsistencyRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	var res Result
	for _, rec := range changedFishers(changes) {
		if want := RankForReputation(rec.Reputation); rec.Rank != want {
			res.Violations = append(res.Violations, blockFisher(r.Name(), rec,
				"fisher %s has rank %s but reputation %d implies %s", rec.Wallet, rec.Rank, rec.Reputation, want))
		}
	}
	return res, nil
}

// NewBigFishBoundRule blocks commits where big fish sightings exceed total catches.
func NewBigFishBoundRule() Rule { return bigFishBoundRule{} }

type bigFishBoundRule struct{}

func (bigFishBoundRule) Name() string { return "big_fish_bound" }

func (r bigFishBoundRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	var res Result
	for _, rec := range changedFishers(changes) {
		if rec.BigFishSpotted > rec.TotalCatches {
			res.Violations = append(res.Violations, blockFisher(r.Name(), rec,
				"fisher %s spotted %d big fish in %d catches", rec.Wallet, rec.BigFishSpotted, rec.TotalCatches))
		}
	}
	return res, nil
}

// NewMonotonicCountersRule blocks updates that move any counter backwards.
func NewMonotonicCountersRule() Rule { return monotonicCountersRule{} }

type monotonicCountersRule struct{}

func (monotonicCountersRule) Name() string { return "monotonic_counters" }

func (r monotonicCountersRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	var res Result
	for _, change := range changes {
		before, okBefore := change.Before.(FisherRecord)
		after, okAfter := change.After.(FisherRecord)
		if change.Action != ActionUpdate || !okBefore || !okAfter {
			continue
		}
		switch {
		case after.TotalCatches < before.TotalCatches:
			res.Violations = append(res.Violations, blockFisher(r.Name(), after, "total_catches decreased from %d to %d", before.TotalCatches, after.TotalCatches))
		case after.BigFishSpotted < before.BigFishSpotted:
			res.Violations = append(res.Violations, blockFisher(r.Name(), after, "big_fish_spotted decreased from %d to %d", before.BigFishSpotted, after.BigFishSpotted))
		case after.Reputation < before.Reputation:
			res.Violations = append(res.Violations, blockFisher(r.Name(), after, "reputation decreased from %d to %d", before.Reputation, after.Reputation))
		}
	}
	return res, nil
}

// NewIdentityImmutableRule blocks records whose address is not derived from
// their wallet, and updates that change the owning wallet.
func NewIdentityImmutableRule() Rule { return identityImmutableRule{} }

type identityImmutableRule struct{}

func (identityImmutableRule) Name() string { return "identity_immutable" }

func (r identityImmutableRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	var res Result
	for _, change := range changes {
		after, ok := change.After.(FisherRecord)
		if !ok {
			continue
		}
		if after.Address != domain.DeriveAddress(after.Wallet) {
			res.Violations = append(res.Violations, blockFisher(r.Name(), after, "address %s is not derived from wallet %s", after.Address, after.Wallet))
			continue
		}
		if before, ok := change.Before.(FisherRecord); ok && before.Wallet != after.Wallet {
			res.Violations = append(res.Violations, blockFisher(r.Name(), after, "owner changed from %s to %s", before.Wallet, after.Wallet))
		}
	}
	return res, nil
}
