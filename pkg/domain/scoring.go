package domain

import (
	"fmt"
	"math/bits"
)

// Catch scoring policy.
const (
	// MaxScore is the highest accepted big fish score.
	MaxScore = 100
	// BigFishThreshold is exceeded (strictly) by big fish catches.
	BigFishThreshold = 70
	// BigFishPoints is the reputation awarded for a big fish catch.
	BigFishPoints uint64 = 50
	// RegularPoints is the reputation awarded for any other catch.
	RegularPoints uint64 = 10
)

// CatchAward describes what a single catch is worth.
type CatchAward struct {
	BigFish bool
	Points  uint64
}

// AwardFor scores a catch. The score must already be validated.
func AwardFor(score uint8) CatchAward {
	if score > BigFishThreshold {
		return CatchAward{BigFish: true, Points: BigFishPoints}
	}
	return CatchAward{Points: RegularPoints}
}

// ValidateScore rejects scores outside 0..=MaxScore.
func ValidateScore(score int) (uint8, error) {
	if score < 0 || score > MaxScore {
		return 0, fmt.Errorf("%w: score %d outside 0..%d", ErrInvalidInput, score, MaxScore)
	}
	return uint8(score), nil
}

// ApplyCatch returns the record advanced by one catch. The input record is
// never modified; on overflow the zero record and ErrOverflow are returned.
func ApplyCatch(record FisherRecord, score uint8) (FisherRecord, CatchAward, error) {
	award := AwardFor(score)
	next := record

	var err error
	if next.TotalCatches, err = checkedAdd(record.TotalCatches, 1, "total_catches"); err != nil {
		return FisherRecord{}, CatchAward{}, err
	}
	if award.BigFish {
		if next.BigFishSpotted, err = checkedAdd(record.BigFishSpotted, 1, "big_fish_spotted"); err != nil {
			return FisherRecord{}, CatchAward{}, err
		}
	}
	if next.Reputation, err = checkedAdd(record.Reputation, award.Points, "reputation"); err != nil {
		return FisherRecord{}, CatchAward{}, err
	}
	next.Rank = RankForReputation(next.Reputation)
	return next, award, nil
}

func checkedAdd(a, b uint64, field string) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %s", ErrOverflow, field)
	}
	return sum, nil
}
