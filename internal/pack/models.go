package pack

import "encoding/json"

// GearItem is one piece of equipment. Weight is grams per unit, Price is
// currency units per unit.
type GearItem struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Category     Category `json:"category"`
	Weight       float64  `json:"weight"`
	Price        float64  `json:"price"`
	Quantity     int      `json:"quantity"`
	IsWorn       bool     `json:"isWorn"`
	IsConsumable bool     `json:"isConsumable"`
	IsChecked    bool     `json:"isChecked,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	Link         string   `json:"link,omitempty"`
}

func (g *GearItem) UnmarshalJSON(data []byte) error {
	type alias GearItem
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*g = GearItem(raw)
	if g.Category == "" {
		g.Category = CategoryMisc
	}
	if g.Quantity < 1 {
		g.Quantity = 1
	}
	return nil
}

type ParticipantPack struct {
	ID        string     `json:"id"`
	OwnerName string     `json:"ownerName"`
	Items     []GearItem `json:"items"`
}

// Trip is the aggregate root and the unit of persistence and sync.
type Trip struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	LeaderName   string            `json:"leaderName"`
	LeaderID     string            `json:"leaderId,omitempty"`
	RouteURL     string            `json:"routeUrl,omitempty"`
	Participants []ParticipantPack `json:"participants"`
}

// Stats is derived from a pack's items and never stored. All figures are grams
// or currency units, unrounded.
type Stats struct {
	TotalWeight      float64 `json:"totalWeight"`
	BaseWeight       float64 `json:"baseWeight"`
	WornWeight       float64 `json:"wornWeight"`
	ConsumableWeight float64 `json:"consumableWeight"`
	TotalPrice       float64 `json:"totalPrice"`
}

type RecentTrip struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	LastVisited int64  `json:"lastVisited"`
}

func (t Trip) Participant(id string) (ParticipantPack, bool) {
	for _, p := range t.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return ParticipantPack{}, false
}

func (t Trip) ItemCount() int {
	n := 0
	for _, p := range t.Participants {
		n += len(p.Items)
	}
	return n
}

// Encode serializes a trip in the stored document format.
func Encode(t Trip) ([]byte, error) {
	if t.Participants == nil {
		t.Participants = []ParticipantPack{}
	}
	return json.Marshal(t)
}

// Decode parses a stored document, normalizing legacy categories and quantities.
func Decode(data []byte) (Trip, error) {
	var t Trip
	if err := json.Unmarshal(data, &t); err != nil {
		return Trip{}, err
	}
	for i := range t.Participants {
		if t.Participants[i].Items == nil {
			t.Participants[i].Items = []GearItem{}
		}
	}
	return t, nil
}
