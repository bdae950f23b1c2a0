package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/jany-pan/packwise/internal/pack"
)

// memGateway is an in-memory document store that pushes every update to all
// subscribers of the document, the way the hosted store does.
type memGateway struct {
	mu        sync.Mutex
	docs      map[string]pack.Trip
	subs      map[string]map[chan pack.Trip]struct{}
	updates   []pack.Trip
	fetchErr  error
	updateErr error
	subErr    error
}

func newMemGateway() *memGateway {
	return &memGateway{
		docs: map[string]pack.Trip{},
		subs: map[string]map[chan pack.Trip]struct{}{},
	}
}

func (g *memGateway) seed(doc pack.Trip) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := uuid.NewString()
	g.docs[id] = doc
	return id
}

func (g *memGateway) Fetch(_ context.Context, id string) (pack.Trip, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchErr != nil {
		return pack.Trip{}, g.fetchErr
	}
	doc, ok := g.docs[id]
	if !ok {
		return pack.Trip{}, pack.ErrTripNotFound
	}
	return doc, nil
}

func (g *memGateway) Insert(_ context.Context, doc pack.Trip) (string, error) {
	return g.seed(doc), nil
}

func (g *memGateway) Update(_ context.Context, id string, doc pack.Trip) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.updateErr != nil {
		return g.updateErr
	}
	if _, ok := g.docs[id]; !ok {
		return pack.ErrTripNotFound
	}
	g.docs[id] = doc
	g.updates = append(g.updates, doc)
	for ch := range g.subs[id] {
		select {
		case ch <- doc:
		default:
		}
	}
	return nil
}

func (g *memGateway) Subscribe(_ context.Context, id string) (<-chan pack.Trip, func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.subErr != nil {
		return nil, nil, g.subErr
	}
	ch := make(chan pack.Trip, 16)
	if g.subs[id] == nil {
		g.subs[id] = map[chan pack.Trip]struct{}{}
	}
	g.subs[id][ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			delete(g.subs[id], ch)
			close(ch)
		})
	}
	return ch, cancel, nil
}

// push delivers doc to subscribers without storing it, like a stale or
// foreign write arriving late.
func (g *memGateway) push(id string, doc pack.Trip) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for ch := range g.subs[id] {
		ch <- doc
	}
}

func (g *memGateway) updateCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.updates)
}

func (g *memGateway) lastUpdate() pack.Trip {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.updates[len(g.updates)-1]
}

func (g *memGateway) subscribers(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs[id])
}

type failingStore struct{}

var errDisk = errors.New("disk full")

func (failingStore) Get(context.Context, string) (string, bool, error) { return "", false, errDisk }
func (failingStore) Set(context.Context, string, string) error          { return errDisk }
