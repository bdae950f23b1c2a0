package pack

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Flag string

const (
	FlagWorn       Flag = "isWorn"
	FlagConsumable Flag = "isConsumable"
	FlagChecked    Flag = "isChecked"
)

// NewTrip builds a fresh document with one empty pack per name, leader first.
func NewTrip(name, leaderName, routeURL string, participantNames []string) (Trip, error) {
	name = strings.TrimSpace(name)
	leaderName = strings.TrimSpace(leaderName)
	if name == "" || leaderName == "" {
		return Trip{}, ErrInvalidTrip
	}

	packs := []ParticipantPack{newPack(leaderName)}
	for _, n := range participantNames {
		if n = strings.TrimSpace(n); n != "" {
			packs = append(packs, newPack(n))
		}
	}

	return Trip{
		ID:           uuid.NewString(),
		Name:         name,
		LeaderName:   leaderName,
		RouteURL:     NormalizeURL(routeURL),
		Participants: packs,
	}, nil
}

// ValidateTrip checks a document supplied whole by a client.
func ValidateTrip(t Trip) error {
	if strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.LeaderName) == "" {
		return ErrInvalidTrip
	}
	if len(t.Participants) == 0 {
		return ErrNoParticipants
	}
	return nil
}

func newPack(owner string) ParticipantPack {
	return ParticipantPack{ID: uuid.NewString(), OwnerName: owner, Items: []GearItem{}}
}

// PlaceholderLabel is the owner-name prefix for participants added without a name.
func PlaceholderLabel(lang string) string {
	if lang == "sk" {
		return "Účastník"
	}
	return "Participant"
}

// AddParticipant appends an empty pack named "<label> <n>" and returns the new
// document along with the new pack's ID.
func (t Trip) AddParticipant(label string) (Trip, string) {
	if label == "" {
		label = PlaceholderLabel("")
	}
	p := newPack(fmt.Sprintf("%s %d", label, len(t.Participants)+1))

	next := t
	next.Participants = make([]ParticipantPack, 0, len(t.Participants)+1)
	next.Participants = append(next.Participants, t.Participants...)
	next.Participants = append(next.Participants, p)
	return next, p.ID
}

// ValidateItem enforces the fields a user must fill before an item is added.
func ValidateItem(item GearItem) error {
	if strings.TrimSpace(item.Name) == "" || item.Weight <= 0 || item.Price < 0 {
		return ErrInvalidItem
	}
	return nil
}

// AddItem appends a copy of item with a fresh ID to the addressed pack.
func (t Trip) AddItem(participantID string, item GearItem) (Trip, GearItem, error) {
	item.ID = uuid.NewString()
	item.Category = NormalizeCategory(string(item.Category))
	if item.Quantity < 1 {
		item.Quantity = 1
	}

	next, err := t.updatePack(participantID, func(p ParticipantPack) (ParticipantPack, error) {
		items := make([]GearItem, 0, len(p.Items)+1)
		items = append(items, p.Items...)
		p.Items = append(items, item)
		return p, nil
	})
	if err != nil {
		return t, GearItem{}, err
	}
	return next, item, nil
}

func (t Trip) RemoveItem(participantID, itemID string) (Trip, error) {
	return t.updatePack(participantID, func(p ParticipantPack) (ParticipantPack, error) {
		items := make([]GearItem, 0, len(p.Items))
		for _, item := range p.Items {
			if item.ID != itemID {
				items = append(items, item)
			}
		}
		if len(items) == len(p.Items) {
			return p, ErrItemNotFound
		}
		p.Items = items
		return p, nil
	})
}

// ToggleItemFlag flips one boolean flag on one item; nothing else changes.
func (t Trip) ToggleItemFlag(participantID, itemID string, flag Flag) (Trip, error) {
	switch flag {
	case FlagWorn, FlagConsumable, FlagChecked:
	default:
		return t, fmt.Errorf("%w: %q", ErrUnknownFlag, flag)
	}

	return t.updatePack(participantID, func(p ParticipantPack) (ParticipantPack, error) {
		items := make([]GearItem, len(p.Items))
		copy(items, p.Items)
		for i := range items {
			if items[i].ID != itemID {
				continue
			}
			switch flag {
			case FlagWorn:
				items[i].IsWorn = !items[i].IsWorn
			case FlagConsumable:
				items[i].IsConsumable = !items[i].IsConsumable
			case FlagChecked:
				items[i].IsChecked = !items[i].IsChecked
			}
			p.Items = items
			return p, nil
		}
		return p, ErrItemNotFound
	})
}

// updatePack rebuilds the participant slice with only the addressed pack
// replaced. Other packs keep sharing their item storage with t.
func (t Trip) updatePack(participantID string, fn func(ParticipantPack) (ParticipantPack, error)) (Trip, error) {
	for i, p := range t.Participants {
		if p.ID != participantID {
			continue
		}
		updated, err := fn(p)
		if err != nil {
			return t, err
		}
		next := t
		next.Participants = make([]ParticipantPack, len(t.Participants))
		copy(next.Participants, t.Participants)
		next.Participants[i] = updated
		return next, nil
	}
	return t, fmt.Errorf("%w: %s", ErrParticipantNotFound, participantID)
}
