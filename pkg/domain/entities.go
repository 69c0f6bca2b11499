// Package domain defines the fisher reputation record, its derived rank, and
// the rule evaluation and persistence primitives used by fishercore.
package domain

import (
	"fmt"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityFisher identifies a per-wallet fisher reputation record.
	EntityFisher EntityType = "fisher"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// FisherRecord is the single reputation record owned by a wallet.
type FisherRecord struct {
	Wallet         Wallet    `json:"wallet"`
	Address        string    `json:"address"`
	TotalCatches   uint64    `json:"total_catches"`
	BigFishSpotted uint64    `json:"big_fish_spotted"`
	Reputation     uint64    `json:"reputation"`
	Rank           Rank      `json:"rank"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	// Version counts committed writes; durable stores use it to detect a
	// concurrent writer.
	Version uint64 `json:"version"`
}

// NewFisherRecord returns a zeroed record for wallet at the lowest rank.
func NewFisherRecord(wallet Wallet) FisherRecord {
	return FisherRecord{
		Wallet:  wallet,
		Address: DeriveAddress(wallet),
		Rank:    RankMinnow,
	}
}

// Stats returns the read-only view of the record.
func (r FisherRecord) Stats() FisherStats {
	return FisherStats{
		Wallet:         r.Wallet,
		TotalCatches:   r.TotalCatches,
		BigFishSpotted: r.BigFishSpotted,
		Reputation:     r.Reputation,
		Rank:           r.Rank,
	}
}

// FisherStats is the public snapshot returned by stats queries.
type FisherStats struct {
	Wallet         Wallet `json:"wallet"`
	TotalCatches   uint64 `json:"total_catches"`
	BigFishSpotted uint64 `json:"big_fish_spotted"`
	Reputation     uint64 `json:"reputation"`
	Rank           Rank   `json:"rank"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate the mutations captured in the audit trail. Fisher
// records are never deleted by the core.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return fmt.Sprintf("transaction blocked by rule %s: %s", v.Rule, v.Message)
		}
	}
	return "transaction blocked by rules"
}
