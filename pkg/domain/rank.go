package domain

import "fmt"

// Rank is the tier derived from a fisher's cumulative reputation.
type Rank uint8

// Ranks in ascending order. The zero value is the lowest tier.
const (
	RankMinnow Rank = iota
	RankFisher
	RankCaptain
	RankAdmiral
)

// Upper reputation bound (inclusive) of each tier below Admiral.
const (
	minnowMaxReputation  uint64 = 100
	fisherMaxReputation  uint64 = 500
	captainMaxReputation uint64 = 1000
)

// RankForReputation maps any reputation value onto its tier.
func RankForReputation(reputation uint64) Rank {
	switch {
	case reputation <= minnowMaxReputation:
		return RankMinnow
	case reputation <= fisherMaxReputation:
		return RankFisher
	case reputation <= captainMaxReputation:
		return RankCaptain
	default:
		return RankAdmiral
	}
}

// ReputationToNextRank reports how many more points are needed to reach the
// next tier. Admirals have nothing left to reach and get 0.
func ReputationToNextRank(reputation uint64) uint64 {
	switch RankForReputation(reputation) {
	case RankMinnow:
		return minnowMaxReputation + 1 - reputation
	case RankFisher:
		return fisherMaxReputation + 1 - reputation
	case RankCaptain:
		return captainMaxReputation + 1 - reputation
	default:
		return 0
	}
}

// Valid reports whether r is one of the defined tiers.
func (r Rank) Valid() bool { return r <= RankAdmiral }

// Next returns the following tier, or r itself for Admiral.
func (r Rank) Next() Rank {
	if r >= RankAdmiral {
		return RankAdmiral
	}
	return r + 1
}

func (r Rank) String() string {
	switch r {
	case RankMinnow:
		return "Minnow"
	case RankFisher:
		return "Fisher"
	case RankCaptain:
		return "Captain"
	case RankAdmiral:
		return "Admiral"
	default:
		return fmt.Sprintf("Rank(%d)", uint8(r))
	}
}

// ParseRank resolves a rank name as produced by String.
func ParseRank(s string) (Rank, error) {
	for r := RankMinnow; r <= RankAdmiral; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return RankMinnow, fmt.Errorf("%w: unknown rank %q", ErrInvalidInput, s)
}

// MarshalText encodes the rank by name.
func (r Rank) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: rank %d out of range", ErrInvalidInput, uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a rank name.
func (r *Rank) UnmarshalText(text []byte) error {
	parsed, err := ParseRank(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
