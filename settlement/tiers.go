// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	ErrEmptyTiers      = errors.New("empty tier table")
	ErrTiersNotSorted  = errors.New("tier thresholds must be ascending")
	ErrRateOutOfBounds = errors.New("tier rate exceeds 10000 bps")
)

// Tier maps values up to Threshold onto Rate (in bps).
type Tier struct {
	Threshold *uint256.Int
	Rate      uint64
}

// TierTable is an ascending, immutable list of tiers whose last threshold is
// the maximum uint256 so every lookup matches.
type TierTable struct {
	tiers []Tier
}

// NewTierTable copies tiers, checks they ascend and forces the last
// threshold to the maximum value. The input is not sorted.
func NewTierTable(tiers []Tier) (*TierTable, error) {
	if len(tiers) == 0 {
		return nil, ErrEmptyTiers
	}
	cp := make([]Tier, len(tiers))
	for i, tier := range tiers {
		if tier.Rate > BasisPoints {
			return nil, fmt.Errorf("%w: tier %d rate %d", ErrRateOutOfBounds, i, tier.Rate)
		}
		threshold := new(uint256.Int)
		if tier.Threshold != nil {
			threshold.Set(tier.Threshold)
		}
		if i > 0 && threshold.Cmp(cp[i-1].Threshold) < 0 && i != len(tiers)-1 {
			return nil, fmt.Errorf("%w: tier %d", ErrTiersNotSorted, i)
		}
		cp[i] = Tier{Threshold: threshold, Rate: tier.Rate}
	}
	cp[len(cp)-1].Threshold = new(uint256.Int).SetAllOne()
	return &TierTable{tiers: cp}, nil
}

// RateBelow returns the rate of the first tier with value < threshold.
// Fee tables use this comparison.
func (t *TierTable) RateBelow(value *uint256.Int) uint64 {
	for _, tier := range t.tiers {
		if value.Lt(tier.Threshold) {
			return tier.Rate
		}
	}
	// value is the maximum uint256
	return t.tiers[len(t.tiers)-1].Rate
}

// RateAtMost returns the rate of the first tier with value <= threshold.
// Subsidy tables use this comparison.
func (t *TierTable) RateAtMost(value *uint256.Int) uint64 {
	for _, tier := range t.tiers {
		if value.Cmp(tier.Threshold) <= 0 {
			return tier.Rate
		}
	}
	return t.tiers[len(t.tiers)-1].Rate
}

// Tiers returns a copy of the table.
func (t *TierTable) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	for i, tier := range t.tiers {
		out[i] = Tier{Threshold: new(uint256.Int).Set(tier.Threshold), Rate: tier.Rate}
	}
	return out
}

// Len returns the number of tiers.
func (t *TierTable) Len() int {
	return len(t.tiers)
}
