/*
Copyright 2024 Meterline Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package meterline

import (
	"github.com/shopspring/decimal"

	"github.com/meterline/meterline/config"
)

// PricingStrategy prices work items. consumedSoFar is the account's lifetime
// billed count before the item being priced, which positions tiered plans on
// the right tier. TotalPrice prices a quantity from a standing start, summing
// per-tier contributions.
type PricingStrategy interface {
	UnitPrice(consumedSoFar int64) decimal.Decimal
	TotalPrice(quantity int64) decimal.Decimal
}

// FixedPricing charges the same price for every work item.
type FixedPricing struct {
	Price decimal.Decimal
}

func (p FixedPricing) UnitPrice(_ int64) decimal.Decimal {
	return p.Price
}

func (p FixedPricing) TotalPrice(quantity int64) decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(quantity))
}

// TieredPricing charges by cumulative volume. A tier covers units up to its
// UpTo bound; the final tier has UpTo = 0 and covers everything beyond the
// last bound.
type TieredPricing struct {
	Tiers []config.PriceTier
}

func (p TieredPricing) UnitPrice(consumedSoFar int64) decimal.Decimal {
	for _, tier := range p.Tiers {
		if tier.UpTo == 0 || consumedSoFar < tier.UpTo {
			return decimal.NewFromFloat(tier.UnitPrice)
		}
	}
	// Past every bounded tier, stay on the last one.
	last := p.Tiers[len(p.Tiers)-1]
	return decimal.NewFromFloat(last.UnitPrice)
}

func (p TieredPricing) TotalPrice(quantity int64) decimal.Decimal {
	total := decimal.Zero
	var covered int64
	for _, tier := range p.Tiers {
		if covered >= quantity {
			break
		}
		span := quantity - covered
		if tier.UpTo > 0 && tier.UpTo-covered < span {
			span = tier.UpTo - covered
		}
		if span <= 0 {
			continue
		}
		total = total.Add(decimal.NewFromFloat(tier.UnitPrice).Mul(decimal.NewFromInt(span)))
		covered += span
	}
	if covered < quantity {
		// Every tier is bounded; the last one absorbs the rest.
		last := p.Tiers[len(p.Tiers)-1]
		total = total.Add(decimal.NewFromFloat(last.UnitPrice).Mul(decimal.NewFromInt(quantity - covered)))
	}
	return total
}

// NewPricingStrategy builds the configured strategy: tiered when tiers are
// present, flat unit price otherwise.
func NewPricingStrategy(conf *config.BillingConfig) PricingStrategy {
	if len(conf.Tiers) > 0 {
		return TieredPricing{Tiers: conf.Tiers}
	}
	return FixedPricing{Price: decimal.NewFromFloat(conf.UnitPrice)}
}
