package core

import "fishercore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	FisherRecord       = domain.FisherRecord
	FisherStats        = domain.FisherStats
	Rank               = domain.Rank
	Wallet             = domain.Wallet
	Actor              = domain.Actor
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const EntityFisher = domain.EntityFisher

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
)

const (
	RankMinnow  = domain.RankMinnow
	RankFisher  = domain.RankFisher
	RankCaptain = domain.RankCaptain
	RankAdmiral = domain.RankAdmiral
)

// RankForReputation maps cumulative reputation to its tier.
func RankForReputation(reputation uint64) Rank { return domain.RankForReputation(reputation) }

// NewRulesEngine constructs an engine with no rules registered.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
