package pack

import (
	"sort"

	"github.com/shopspring/decimal"
)

var gramsPerKilogram = decimal.NewFromInt(1000)

// PackStats folds the items once. Each item contributes weight*quantity and
// price*quantity; worn items go to WornWeight, everything else to BaseWeight.
// TotalWeight is taken from the two converted partitions so that
// BaseWeight+WornWeight == TotalWeight holds exactly in float64.
func PackStats(items []GearItem) Stats {
	var base, worn, consumable, price decimal.Decimal
	for _, item := range items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		w := decimal.NewFromFloat(item.Weight).Mul(qty)
		c := decimal.NewFromFloat(item.Price).Mul(qty)

		price = price.Add(c)
		if item.IsConsumable {
			consumable = consumable.Add(w)
		}
		if item.IsWorn {
			worn = worn.Add(w)
		} else {
			base = base.Add(w)
		}
	}
	return newStats(base.InexactFloat64(), worn.InexactFloat64(), consumable.InexactFloat64(), price.InexactFloat64())
}

func newStats(base, worn, consumable, price float64) Stats {
	return Stats{
		TotalWeight:      base + worn,
		BaseWeight:       base,
		WornWeight:       worn,
		ConsumableWeight: consumable,
		TotalPrice:       price,
	}
}

// Add sums two Stats field by field. The total is rebuilt from the summed
// partitions rather than added on its own.
func (s Stats) Add(o Stats) Stats {
	return newStats(
		s.BaseWeight+o.BaseWeight,
		s.WornWeight+o.WornWeight,
		s.ConsumableWeight+o.ConsumableWeight,
		s.TotalPrice+o.TotalPrice,
	)
}

type ParticipantStats struct {
	ParticipantID string `json:"participantId"`
	OwnerName     string `json:"ownerName"`
	Stats         Stats  `json:"stats"`
}

// GroupStats returns per-participant stats in pack order plus the group total.
func GroupStats(t Trip) ([]ParticipantStats, Stats) {
	per := make([]ParticipantStats, 0, len(t.Participants))
	var total Stats
	for _, p := range t.Participants {
		s := PackStats(p.Items)
		per = append(per, ParticipantStats{ParticipantID: p.ID, OwnerName: p.OwnerName, Stats: s})
		total = total.Add(s)
	}
	return per, total
}

// Kilograms converts grams for display, rounded to two decimals.
func Kilograms(grams float64) float64 {
	return decimal.NewFromFloat(grams).Div(gramsPerKilogram).Round(2).InexactFloat64()
}

type CategoryWeight struct {
	Category Category `json:"category"`
	Grams    float64  `json:"grams"`
	Kg       float64  `json:"kg"`
}

// CategoryBreakdown totals weight per category, heaviest first. Categories
// without items are omitted.
func CategoryBreakdown(items []GearItem) []CategoryWeight {
	sums := map[Category]decimal.Decimal{}
	for _, item := range items {
		w := decimal.NewFromFloat(item.Weight).Mul(decimal.NewFromInt(int64(item.Quantity)))
		sums[item.Category] = sums[item.Category].Add(w)
	}

	out := make([]CategoryWeight, 0, len(sums))
	for _, c := range Categories {
		sum, ok := sums[c]
		if !ok {
			continue
		}
		grams := sum.InexactFloat64()
		out = append(out, CategoryWeight{Category: c, Grams: grams, Kg: Kilograms(grams)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Grams > out[j].Grams
	})
	return out
}

type ParticipantCategories struct {
	ParticipantID string               `json:"participantId"`
	OwnerName     string               `json:"ownerName"`
	Kg            map[Category]float64 `json:"kg"`
}

// CategoryMatrix returns, for every participant, kilograms per canonical
// category with zero entries included.
func CategoryMatrix(t Trip) []ParticipantCategories {
	out := make([]ParticipantCategories, 0, len(t.Participants))
	for _, p := range t.Participants {
		row := ParticipantCategories{
			ParticipantID: p.ID,
			OwnerName:     p.OwnerName,
			Kg:            make(map[Category]float64, len(Categories)),
		}
		for _, c := range Categories {
			row.Kg[c] = 0
		}
		for _, cw := range CategoryBreakdown(p.Items) {
			row.Kg[cw.Category] = cw.Kg
		}
		out = append(out, row)
	}
	return out
}

type CategoryGroup struct {
	Category Category   `json:"category"`
	Items    []GearItem `json:"items"`
}

// GroupByCategory groups items by category in order of first appearance.
func GroupByCategory(items []GearItem) []CategoryGroup {
	index := map[Category]int{}
	var groups []CategoryGroup
	for _, item := range items {
		i, ok := index[item.Category]
		if !ok {
			i = len(groups)
			index[item.Category] = i
			groups = append(groups, CategoryGroup{Category: item.Category})
		}
		groups[i].Items = append(groups[i].Items, item)
	}
	return groups
}
