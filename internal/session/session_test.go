package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jany-pan/packwise/internal/insight"
	"github.com/jany-pan/packwise/internal/localstore"
	"github.com/jany-pan/packwise/internal/metrics"
	"github.com/jany-pan/packwise/internal/pack"
)

const testDebounce = 30 * time.Millisecond

func newSession(gw Gateway, store LocalStore, opts ...func(*Options)) *Session {
	o := Options{Debounce: testDebounce}
	for _, fn := range opts {
		fn(&o)
	}
	return New(gw, store, o)
}

func alpsTrek(t *testing.T) pack.Trip {
	t.Helper()
	doc, err := pack.NewTrip("Alps Trek", "Ana", "", []string{"Boris"})
	require.NoError(t, err)
	return doc
}

func tent() pack.GearItem {
	return pack.GearItem{Name: "Tent", Category: pack.CategoryShelter, Weight: 2000, Price: 150, Quantity: 1}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond)
}

func TestStartWithoutTripStaysUnloaded(t *testing.T) {
	s := newSession(newMemGateway(), localstore.NewMemory())
	require.NoError(t, s.Start(context.Background(), ""))

	assert.Equal(t, ModeUnloaded, s.Mode())
	_, ok := s.Trip()
	assert.False(t, ok)
	_, err := s.AddItem(context.Background(), "p", tent())
	assert.ErrorIs(t, err, ErrNoTrip)
	_, err = s.AddParticipant(context.Background())
	assert.ErrorIs(t, err, ErrNoTrip)
	assert.ErrorIs(t, s.MakeEditable(context.Background()), ErrNoTrip)
	assert.ErrorIs(t, s.Start(context.Background(), ""), ErrStarted)
}

func TestStartLocalAndPersistSynchronously(t *testing.T) {
	ctx := context.Background()
	store := localstore.NewMemory()
	doc := alpsTrek(t)
	data, err := pack.Encode(doc)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, KeyTrip, string(data)))

	gw := newMemGateway()
	s := newSession(gw, store)
	require.NoError(t, s.Start(ctx, ""))
	require.Equal(t, ModeLocal, s.Mode())
	assert.Equal(t, doc.Participants[0].ID, s.ActiveParticipant())

	_, err = s.AddItem(ctx, doc.Participants[0].ID, tent())
	require.NoError(t, err)

	raw, found, err := store.Get(ctx, KeyTrip)
	require.NoError(t, err)
	require.True(t, found)
	stored, err := pack.Decode([]byte(raw))
	require.NoError(t, err)
	assert.Len(t, stored.Participants[0].Items, 1)
	assert.Zero(t, gw.updateCount())
}

func TestStartIgnoresMalformedLocalData(t *testing.T) {
	ctx := context.Background()
	store := localstore.NewMemory()
	require.NoError(t, store.Set(ctx, KeyTrip, "{not json"))

	s := newSession(nil, store)
	require.NoError(t, s.Start(ctx, ""))
	assert.Equal(t, ModeUnloaded, s.Mode())
}

func TestLocalRoundTripNormalizesLegacyCategories(t *testing.T) {
	ctx := context.Background()
	store := localstore.NewMemory()
	legacy := `{"id":"t1","name":"Tatry","leaderName":"Ana","participants":[
		{"id":"p1","ownerName":"Ana","items":[
			{"id":"i1","name":"Stove","category":"Cooking","weight":300,"price":40,"quantity":1,"isWorn":false,"isConsumable":false},
			{"id":"i2","name":"Gas","category":"Food & Gas","weight":230,"price":6,"quantity":2,"isWorn":false,"isConsumable":true},
			{"id":"i3","name":"Rope","category":"Climbing","weight":900,"price":80,"quantity":1,"isWorn":false,"isConsumable":false}]},
		{"id":"p2","ownerName":"Boris","items":[]}]}`
	require.NoError(t, store.Set(ctx, KeyTrip, legacy))

	s := newSession(nil, store)
	require.NoError(t, s.Start(ctx, ""))
	doc, ok := s.Trip()
	require.True(t, ok)
	require.Len(t, doc.Participants, 2)
	items := doc.Participants[0].Items
	require.Len(t, items, 3)
	assert.Equal(t, pack.CategoryKitchen, items[0].Category)
	assert.Equal(t, pack.CategoryKitchen, items[1].Category)
	assert.Equal(t, pack.CategoryMisc, items[2].Category)
	assert.Equal(t, 2, items[1].Quantity)
	assert.True(t, items[1].IsConsumable)
}

func TestStartSharedSubscribes(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	doc := alpsTrek(t)
	id := gw.seed(doc)

	s := newSession(gw, localstore.NewMemory(), func(o *Options) { o.Now = func() time.Time { return time.UnixMilli(42) } })
	require.NoError(t, s.Start(ctx, id))
	defer s.Close(ctx)

	assert.Equal(t, ModeShared, s.Mode())
	assert.Equal(t, id, s.SharedID())
	assert.Equal(t, doc.Participants[0].ID, s.ActiveParticipant())
	assert.Equal(t, 1, gw.subscribers(id))
	assert.Equal(t, []pack.RecentTrip{{ID: id, Name: "Alps Trek", LastVisited: 42}}, s.RecentTrips(ctx))
}

func TestStartSharedNotFoundPolicies(t *testing.T) {
	ctx := context.Background()
	local := alpsTrek(t)
	data, err := pack.Encode(local)
	require.NoError(t, err)

	for _, tc := range []struct {
		policy NotFoundPolicy
		want   Mode
	}{
		{PolicyEmpty, ModeUnloaded},
		{PolicyLocal, ModeLocal},
	} {
		t.Run(string(tc.policy), func(t *testing.T) {
			store := localstore.NewMemory()
			require.NoError(t, store.Set(ctx, KeyTrip, string(data)))
			s := newSession(newMemGateway(), store, func(o *Options) { o.NotFoundPolicy = tc.policy })

			require.NoError(t, s.Start(ctx, "missing"))
			assert.Equal(t, tc.want, s.Mode())
			assert.Empty(t, s.SharedID())
		})
	}

	gw := newMemGateway()
	gw.fetchErr = errors.New("network down")
	s := newSession(gw, localstore.NewMemory())
	require.NoError(t, s.Start(ctx, "any"))
	assert.Equal(t, ModeUnloaded, s.Mode())
}

func TestParseNotFoundPolicy(t *testing.T) {
	assert.Equal(t, PolicyLocal, ParseNotFoundPolicy(" LOCAL "))
	assert.Equal(t, PolicyEmpty, ParseNotFoundPolicy("whatever"))
	assert.Equal(t, PolicyEmpty, ParseNotFoundPolicy(""))
}

func TestSharedEditsAreDebounced(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	doc := alpsTrek(t)
	id := gw.seed(doc)
	reg := prometheus.NewRegistry()

	s := newSession(gw, localstore.NewMemory(), func(o *Options) { o.Metrics = metrics.NewSync(reg) })
	require.NoError(t, s.Start(ctx, id))
	defer s.Close(ctx)

	ana := doc.Participants[0].ID
	for i := 0; i < 3; i++ {
		item := tent()
		item.Name = fmt.Sprintf("Item %d", i)
		_, err := s.AddItem(ctx, ana, item)
		require.NoError(t, err)
	}
	assert.Zero(t, gw.updateCount(), "save must wait for the debounce window")

	eventually(t, func() bool { return gw.updateCount() == 1 })
	time.Sleep(3 * testDebounce)
	assert.Equal(t, 1, gw.updateCount())

	saved := gw.lastUpdate()
	require.Len(t, saved.Participants[0].Items, 3)
	assert.Equal(t, "Item 2", saved.Participants[0].Items[2].Name)
}

func TestSharedSaveFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	doc := alpsTrek(t)
	id := gw.seed(doc)
	gw.updateErr = errors.New("offline")

	s := newSession(gw, localstore.NewMemory())
	require.NoError(t, s.Start(ctx, id))
	defer s.Close(ctx)

	_, err := s.AddItem(ctx, doc.Participants[0].ID, tent())
	require.NoError(t, err)
	time.Sleep(3 * testDebounce)

	current, _ := s.Trip()
	assert.Len(t, current.Participants[0].Items, 1, "in-memory document stays authoritative")
}

func TestTwoInstancesSeeEachOthersEdits(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	doc := alpsTrek(t)
	id := gw.seed(doc)

	a := newSession(gw, localstore.NewMemory())
	b := newSession(gw, localstore.NewMemory())
	require.NoError(t, a.Start(ctx, id))
	defer a.Close(ctx)
	require.NoError(t, b.Start(ctx, id))
	defer b.Close(ctx)

	var pushed atomic.Int32
	b.OnChange(func(pack.Trip) { pushed.Add(1) })

	ana := doc.Participants[0].ID
	_, err := a.AddItem(ctx, ana, tent())
	require.NoError(t, err)

	eventually(t, func() bool {
		current, _ := b.Trip()
		return len(current.Participants[0].Items) == 1
	})
	per, _, err := b.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2000.0, per[0].Stats.BaseWeight)
	assert.Equal(t, 150.0, per[0].Stats.TotalPrice)
	assert.Equal(t, pack.Stats{}, per[1].Stats)
	assert.GreaterOrEqual(t, pushed.Load(), int32(1))
}

func TestPushOverwritesUnconditionally(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	doc := alpsTrek(t)
	id := gw.seed(doc)

	s := newSession(gw, localstore.NewMemory(), func(o *Options) { o.Debounce = time.Hour })
	require.NoError(t, s.Start(ctx, id))
	defer s.Close(ctx)

	_, err := s.AddItem(ctx, doc.Participants[0].ID, tent())
	require.NoError(t, err)

	stale := doc
	stale.Name = "Stale"
	gw.push(id, stale)

	eventually(t, func() bool {
		current, _ := s.Trip()
		return current.Name == "Stale"
	})
	current, _ := s.Trip()
	assert.Empty(t, current.Participants[0].Items, "newer local edit is lost to the pushed document")
}

func TestOwnSaveEchoRevertsLaterEdit(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	doc := alpsTrek(t)
	id := gw.seed(doc)

	s := newSession(gw, localstore.NewMemory(), func(o *Options) { o.Debounce = time.Hour })
	require.NoError(t, s.Start(ctx, id))

	ana := doc.Participants[0].ID
	_, err := s.AddItem(ctx, ana, tent())
	require.NoError(t, err)
	sent, _ := s.Trip()

	stove := tent()
	stove.Name = "Stove"
	_, err = s.AddItem(ctx, ana, stove)
	require.NoError(t, err)

	gw.push(id, sent)
	eventually(t, func() bool {
		current, _ := s.Trip()
		return len(current.Participants[0].Items) == 1
	})

	require.NoError(t, s.Close(ctx))
	saved := gw.lastUpdate()
	require.Len(t, saved.Participants[0].Items, 1, "pending save carries the echoed document")
	assert.Equal(t, "Tent", saved.Participants[0].Items[0].Name)
}

func TestPushKeepsActiveParticipantWhenPresent(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	doc := alpsTrek(t)
	id := gw.seed(doc)

	s := newSession(gw, localstore.NewMemory())
	require.NoError(t, s.Start(ctx, id))
	defer s.Close(ctx)
	boris := doc.Participants[1].ID
	require.NoError(t, s.SetActiveParticipant(boris))
	assert.ErrorIs(t, s.SetActiveParticipant("ghost"), pack.ErrParticipantNotFound)

	renamed := doc
	renamed.Name = "Renamed"
	gw.push(id, renamed)
	eventually(t, func() bool {
		current, _ := s.Trip()
		return current.Name == "Renamed"
	})
	assert.Equal(t, boris, s.ActiveParticipant())

	solo := doc
	solo.Participants = doc.Participants[:1]
	gw.push(id, solo)
	eventually(t, func() bool { return s.ActiveParticipant() == doc.Participants[0].ID })
}

func TestMakeEditable(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	doc := alpsTrek(t)
	id := gw.seed(doc)
	store := localstore.NewMemory()

	s := newSession(gw, store, func(o *Options) { o.Debounce = time.Hour })
	require.NoError(t, s.Start(ctx, id))

	_, err := s.AddItem(ctx, doc.Participants[0].ID, tent())
	require.NoError(t, err)
	require.NoError(t, s.MakeEditable(ctx))

	assert.Equal(t, 1, gw.updateCount(), "pending save is flushed before detaching")
	assert.Equal(t, ModeLocal, s.Mode())
	assert.Empty(t, s.SharedID())
	assert.Zero(t, gw.subscribers(id))

	raw, found, err := store.Get(ctx, KeyTrip)
	require.NoError(t, err)
	require.True(t, found)
	snapshot, err := pack.Decode([]byte(raw))
	require.NoError(t, err)
	assert.Len(t, snapshot.Participants[0].Items, 1)

	_, err = s.AddItem(ctx, doc.Participants[1].ID, tent())
	require.NoError(t, err)
	time.Sleep(3 * testDebounce)
	assert.Equal(t, 1, gw.updateCount(), "local edits never go remote")

	assert.ErrorIs(t, s.MakeEditable(ctx), ErrNotShared)
	_, err = s.ShareLink("https://packwise.app/")
	assert.ErrorIs(t, err, ErrNotShared)
}

func TestCreateTrip(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	s := newSession(gw, localstore.NewMemory())
	require.NoError(t, s.Start(ctx, ""))

	_, err := s.CreateTrip(ctx, " ", "Ana", "", nil)
	assert.ErrorIs(t, err, pack.ErrInvalidTrip)

	doc, err := s.CreateTrip(ctx, "Alps Trek", "Ana", "maps.example.com/alps", []string{"Boris"})
	require.NoError(t, err)
	defer s.Close(ctx)

	require.Equal(t, ModeShared, s.Mode())
	id := s.SharedID()
	require.NotEmpty(t, id)
	assert.Equal(t, "https://maps.example.com/alps", doc.RouteURL)
	assert.Equal(t, doc.Participants[0].ID, s.ActiveParticipant())
	assert.Equal(t, 1, gw.subscribers(id))

	stored, err := gw.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, doc, stored)

	link, err := s.ShareLink("https://packwise.app/?lang=sk#top")
	require.NoError(t, err)
	assert.Equal(t, "https://packwise.app/?id="+id, link)
	assert.Equal(t, id, pack.SharedID(link))

	recent := s.RecentTrips(ctx)
	require.Len(t, recent, 1)
	assert.Equal(t, id, recent[0].ID)
}

func TestCreateTripWithoutGateway(t *testing.T) {
	s := newSession(nil, localstore.NewMemory())
	_, err := s.CreateTrip(context.Background(), "Trip", "Ana", "", nil)
	assert.ErrorIs(t, err, ErrNoGateway)
}

func TestAddParticipantUsesLanguageLabel(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	id := gw.seed(alpsTrek(t))
	store := localstore.NewMemory()
	require.NoError(t, store.Set(ctx, KeyLang, "sk"))

	s := newSession(gw, store)
	require.NoError(t, s.Start(ctx, id))
	defer s.Close(ctx)
	assert.Equal(t, "sk", s.Language())

	pid, err := s.AddParticipant(ctx)
	require.NoError(t, err)
	assert.Equal(t, pid, s.ActiveParticipant())
	doc, _ := s.Trip()
	assert.Equal(t, "Účastník 3", doc.Participants[2].OwnerName)

	require.NoError(t, s.SetLanguage(ctx, "de"))
	assert.Equal(t, "en", s.Language())
	raw, _, _ := store.Get(ctx, KeyLang)
	assert.Equal(t, "en", raw)
}

func TestMutationErrorsSurface(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	doc := alpsTrek(t)
	id := gw.seed(doc)
	s := newSession(gw, localstore.NewMemory())
	require.NoError(t, s.Start(ctx, id))
	defer s.Close(ctx)

	_, err := s.AddItem(ctx, "ghost", tent())
	assert.ErrorIs(t, err, pack.ErrParticipantNotFound)
	_, err = s.AddItem(ctx, doc.Participants[0].ID, pack.GearItem{Name: "Tent"})
	assert.ErrorIs(t, err, pack.ErrInvalidItem)
	assert.ErrorIs(t, s.RemoveItem(ctx, doc.Participants[0].ID, "ghost"), pack.ErrItemNotFound)
	assert.ErrorIs(t, s.ToggleItemFlag(ctx, doc.Participants[0].ID, "ghost", pack.FlagWorn), pack.ErrItemNotFound)

	item, err := s.AddItem(ctx, doc.Participants[0].ID, tent())
	require.NoError(t, err)
	require.NoError(t, s.ToggleItemFlag(ctx, doc.Participants[0].ID, item.ID, pack.FlagWorn))
	_, group, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2000.0, group.WornWeight)
	require.NoError(t, s.RemoveItem(ctx, doc.Participants[0].ID, item.ID))
	_, group, _ = s.Stats()
	assert.Equal(t, pack.Stats{}, group)
}

func TestCloseFlushesPendingSave(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	doc := alpsTrek(t)
	id := gw.seed(doc)

	s := newSession(gw, localstore.NewMemory(), func(o *Options) { o.Debounce = time.Hour })
	require.NoError(t, s.Start(ctx, id))
	_, err := s.AddItem(ctx, doc.Participants[0].ID, tent())
	require.NoError(t, err)

	require.NoError(t, s.Close(ctx))
	assert.Equal(t, 1, gw.updateCount())
	assert.Zero(t, gw.subscribers(id))

	gw.updateErr = errors.New("offline")
	s2 := newSession(gw, localstore.NewMemory(), func(o *Options) { o.Debounce = time.Hour })
	require.NoError(t, s2.Start(ctx, id))
	_, err = s2.AddItem(ctx, doc.Participants[0].ID, tent())
	require.NoError(t, err)
	assert.Error(t, s2.Close(ctx))
}

func TestSubscribeFailureStillShared(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	id := gw.seed(alpsTrek(t))
	gw.subErr = errors.New("ws refused")

	s := newSession(gw, localstore.NewMemory())
	require.NoError(t, s.Start(ctx, id))
	assert.Equal(t, ModeShared, s.Mode())
	require.NoError(t, s.Close(ctx))
}

func TestLocalStoreFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	s := newSession(newMemGateway(), failingStore{})
	require.NoError(t, s.Start(ctx, ""))
	assert.Equal(t, ModeUnloaded, s.Mode())
	assert.Nil(t, s.RecentTrips(ctx))
}

type stubGenerator struct {
	calls int
	lang  string
}

func (g *stubGenerator) Generate(_ context.Context, items []pack.GearItem, _ pack.Stats, lang string) ([]insight.Insight, error) {
	g.calls++
	g.lang = lang
	return []insight.Insight{{Title: "Items", Advice: fmt.Sprint(len(items)), Priority: insight.PriorityLow}}, nil
}

func TestInsights(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	doc := alpsTrek(t)
	id := gw.seed(doc)
	gen := &stubGenerator{}

	s := newSession(gw, localstore.NewMemory(), func(o *Options) { o.Insights = gen })
	require.NoError(t, s.Start(ctx, id))
	defer s.Close(ctx)
	ana := doc.Participants[0].ID

	_, err := s.AddItem(ctx, ana, tent())
	require.NoError(t, err)
	_, err = s.Insights(ctx, ana)
	assert.ErrorIs(t, err, insight.ErrTooFewItems)
	assert.Zero(t, gen.calls)

	_, err = s.AddItem(ctx, ana, tent())
	require.NoError(t, err)
	out, err := s.Insights(ctx, ana)
	require.NoError(t, err)
	assert.Equal(t, "2", out[0].Advice)
	assert.Equal(t, "en", gen.lang)

	_, err = s.Insights(ctx, "ghost")
	assert.ErrorIs(t, err, pack.ErrParticipantNotFound)

	noGen := newSession(gw, localstore.NewMemory())
	_, err = noGen.Insights(ctx, ana)
	assert.ErrorIs(t, err, ErrNoTrip)
}
