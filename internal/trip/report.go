package trip

import "github.com/jany-pan/packwise/internal/pack"

// Kilos carries the presentation figures of a Stats value.
type Kilos struct {
	Total      float64 `json:"total"`
	Base       float64 `json:"base"`
	Worn       float64 `json:"worn"`
	Consumable float64 `json:"consumable"`
}

func kilosOf(s pack.Stats) Kilos {
	return Kilos{
		Total:      pack.Kilograms(s.TotalWeight),
		Base:       pack.Kilograms(s.BaseWeight),
		Worn:       pack.Kilograms(s.WornWeight),
		Consumable: pack.Kilograms(s.ConsumableWeight),
	}
}

type ParticipantReport struct {
	pack.ParticipantStats
	Kg         Kilos                 `json:"kg"`
	Categories []pack.CategoryWeight `json:"categories"`
	Groups     []pack.CategoryGroup  `json:"itemsByCategory"`
}

// Report is everything the stats view renders for one trip.
type Report struct {
	TripID       string                       `json:"tripId"`
	Participants []ParticipantReport          `json:"participants"`
	Group        pack.Stats                   `json:"group"`
	GroupKg      Kilos                        `json:"groupKg"`
	Matrix       []pack.ParticipantCategories `json:"matrix"`
}

func BuildReport(id string, doc pack.Trip) Report {
	per, group := pack.GroupStats(doc)
	out := Report{
		TripID:       id,
		Participants: make([]ParticipantReport, 0, len(per)),
		Group:        group,
		GroupKg:      kilosOf(group),
		Matrix:       pack.CategoryMatrix(doc),
	}
	for i, ps := range per {
		out.Participants = append(out.Participants, ParticipantReport{
			ParticipantStats: ps,
			Kg:               kilosOf(ps.Stats),
			Categories:       pack.CategoryBreakdown(doc.Participants[i].Items),
			Groups:           pack.GroupByCategory(doc.Participants[i].Items),
		})
	}
	return out
}
