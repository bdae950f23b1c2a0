// Package session owns the trip document of one running client instance: it
// loads it, applies mutations, persists them locally or remotely and applies
// documents pushed by collaborators.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/jany-pan/packwise/internal/insight"
	"github.com/jany-pan/packwise/internal/metrics"
	"github.com/jany-pan/packwise/internal/pack"
)

const (
	KeyTrip   = "packwise-trip"
	KeyLang   = "packwise-lang"
	KeyRecent = "packwise-recent"

	DefaultDebounce = time.Second
	saveTimeout     = 10 * time.Second
)

var (
	ErrNoTrip    = errors.New("session: no trip loaded")
	ErrNotShared = errors.New("session: trip is not shared")
	ErrStarted   = errors.New("session: already started")
	ErrNoGateway = errors.New("session: no remote gateway configured")
)

// Gateway is the remote document store.
type Gateway interface {
	Fetch(ctx context.Context, id string) (pack.Trip, error)
	Insert(ctx context.Context, doc pack.Trip) (string, error)
	Update(ctx context.Context, id string, doc pack.Trip) error
	Subscribe(ctx context.Context, id string) (<-chan pack.Trip, func(), error)
}

// LocalStore is the device-local key/value fallback.
type LocalStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type Mode int

const (
	ModeUnloaded Mode = iota
	ModeLocal
	ModeShared
)

func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeShared:
		return "shared"
	default:
		return "unloaded"
	}
}

// NotFoundPolicy decides what happens when a shared identity cannot be loaded.
type NotFoundPolicy string

const (
	// PolicyEmpty stays unloaded so the user is routed to trip creation.
	PolicyEmpty NotFoundPolicy = "empty"
	// PolicyLocal falls back to the device-local copy.
	PolicyLocal NotFoundPolicy = "local"
)

func ParseNotFoundPolicy(raw string) NotFoundPolicy {
	if strings.EqualFold(strings.TrimSpace(raw), string(PolicyLocal)) {
		return PolicyLocal
	}
	return PolicyEmpty
}

type Options struct {
	Debounce       time.Duration
	NotFoundPolicy NotFoundPolicy
	Logger         zerolog.Logger
	Metrics        *metrics.Sync
	Insights       insight.Generator
	Now            func() time.Time
}

type Session struct {
	gw    Gateway
	local LocalStore
	opts  Options
	saver *debouncer

	mu          sync.Mutex
	mode        Mode
	sharedID    string
	doc         pack.Trip
	active      string
	lang        string
	unsubscribe func()
	listenDone  chan struct{}
	listeners   []func(pack.Trip)
	started     bool
}

func New(gw Gateway, local LocalStore, opts Options) *Session {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.NotFoundPolicy == "" {
		opts.NotFoundPolicy = PolicyEmpty
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Session{gw: gw, local: local, opts: opts, lang: "en"}
	s.saver = newDebouncer(opts.Debounce, s.saveRemote)
	return s
}

// OnChange registers fn to be called with every new document, whether it came
// from a local mutation or a push.
func (s *Session) OnChange(fn func(pack.Trip)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Start loads the document. A non-empty sharedID selects the remote document,
// otherwise the local copy is used. Load failures leave the session usable and
// are only logged.
func (s *Session) Start(ctx context.Context, sharedID string) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrStarted
	}
	s.started = true
	s.mu.Unlock()

	s.loadLanguage(ctx)

	sharedID = strings.TrimSpace(sharedID)
	if sharedID == "" {
		s.loadLocal(ctx)
		return nil
	}

	doc, err := s.fetch(ctx, sharedID)
	if err == nil {
		s.enterShared(ctx, sharedID, doc)
		return nil
	}

	log := s.opts.Logger.Warn().Err(err).Str("trip_id", sharedID)
	if errors.Is(err, pack.ErrTripNotFound) {
		log.Msg("shared trip not found")
	} else {
		log.Msg("shared trip fetch failed")
	}
	if s.opts.NotFoundPolicy == PolicyLocal {
		s.loadLocal(ctx)
	}
	return nil
}

func (s *Session) fetch(ctx context.Context, id string) (pack.Trip, error) {
	if s.gw == nil {
		return pack.Trip{}, ErrNoGateway
	}
	return s.gw.Fetch(ctx, id)
}

func (s *Session) loadLocal(ctx context.Context) {
	raw, found, err := s.local.Get(ctx, KeyTrip)
	if err != nil {
		s.opts.Logger.Warn().Err(err).Msg("local store read failed")
		return
	}
	if !found || strings.TrimSpace(raw) == "" {
		return
	}
	doc, err := pack.Decode([]byte(raw))
	if err != nil {
		s.opts.Logger.Warn().Err(err).Msg("ignoring malformed local trip")
		return
	}

	s.mu.Lock()
	s.mode = ModeLocal
	s.doc = doc
	s.active = firstPack(doc)
	s.mu.Unlock()
	s.notify(doc)
}

// enterShared adopts doc under id and opens the push subscription.
func (s *Session) enterShared(ctx context.Context, id string, doc pack.Trip) {
	s.mu.Lock()
	s.mode = ModeShared
	s.sharedID = id
	s.doc = doc
	s.active = firstPack(doc)
	s.mu.Unlock()

	s.subscribe(ctx, id)
	s.rememberRecent(ctx, id, doc.Name)
	s.notify(doc)
}

func (s *Session) subscribe(ctx context.Context, id string) {
	updates, cancel, err := s.gw.Subscribe(context.WithoutCancel(ctx), id)
	if err != nil {
		s.opts.Logger.Warn().Err(err).Str("trip_id", id).Msg("push subscription failed")
		return
	}
	done := make(chan struct{})

	s.mu.Lock()
	s.unsubscribe = cancel
	s.listenDone = done
	s.mu.Unlock()

	go s.listen(id, updates, done)
}

func (s *Session) listen(id string, updates <-chan pack.Trip, done chan struct{}) {
	defer close(done)
	for doc := range updates {
		s.applyRemote(id, doc)
	}
}

// applyRemote replaces the held document with a pushed one. Last writer wins:
// there is no version check, a stale push overwrites newer local edits.
func (s *Session) applyRemote(id string, doc pack.Trip) {
	s.mu.Lock()
	if s.mode != ModeShared || s.sharedID != id {
		s.mu.Unlock()
		return
	}
	// Pushes are not filtered by origin. The echo of this session's own save
	// overwrites edits made after that save went out, and a save still pending
	// then sends the echoed document.
	s.doc = doc
	if _, ok := doc.Participant(s.active); !ok {
		s.active = firstPack(doc)
	}
	s.mu.Unlock()

	s.opts.Metrics.PushApplied()
	s.notify(doc)
}

// detach flushes any pending remote save and closes the subscription.
func (s *Session) detach(ctx context.Context) error {
	_, err := s.saver.Flush()

	s.mu.Lock()
	cancel, done := s.unsubscribe, s.listenDone
	s.unsubscribe, s.listenDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			err = multierr.Append(err, ctx.Err())
		}
	}
	return err
}

func (s *Session) saveRemote() error {
	s.mu.Lock()
	mode, id, doc := s.mode, s.sharedID, s.doc
	s.mu.Unlock()
	if mode != ModeShared || id == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	err := s.gw.Update(ctx, id, doc)
	s.opts.Metrics.Save("remote", err)
	if err != nil {
		s.opts.Logger.Warn().Err(err).Str("trip_id", id).Msg("remote save failed")
		return err
	}
	s.opts.Logger.Debug().Str("trip_id", id).Msg("remote save")
	return nil
}

func (s *Session) saveLocal(ctx context.Context, doc pack.Trip) error {
	data, err := pack.Encode(doc)
	if err == nil {
		err = s.local.Set(ctx, KeyTrip, string(data))
	}
	s.opts.Metrics.Save("local", err)
	if err != nil {
		s.opts.Logger.Warn().Err(err).Msg("local save failed")
	}
	return err
}

// mutate applies fn to the held document and persists the result. Persistence
// errors never reach the caller.
func (s *Session) mutate(ctx context.Context, fn func(pack.Trip) (pack.Trip, error)) (pack.Trip, error) {
	s.mu.Lock()
	if s.mode == ModeUnloaded {
		s.mu.Unlock()
		return pack.Trip{}, ErrNoTrip
	}
	next, err := fn(s.doc)
	if err != nil {
		s.mu.Unlock()
		return pack.Trip{}, err
	}
	s.doc = next
	switch s.mode {
	case ModeShared:
		s.saver.Schedule()
	case ModeLocal:
		_ = s.saveLocal(ctx, next)
	}
	s.mu.Unlock()

	s.notify(next)
	return next, nil
}

func (s *Session) notify(doc pack.Trip) {
	s.mu.Lock()
	listeners := append([]func(pack.Trip){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(doc)
	}
}

// CreateTrip builds a new document, stores it remotely to obtain its shared
// identity and switches the session to it.
func (s *Session) CreateTrip(ctx context.Context, name, leaderName, routeURL string, participants []string) (pack.Trip, error) {
	doc, err := pack.NewTrip(name, leaderName, routeURL, participants)
	if err != nil {
		return pack.Trip{}, err
	}
	if s.gw == nil {
		return pack.Trip{}, ErrNoGateway
	}
	id, err := s.gw.Insert(ctx, doc)
	s.opts.Metrics.Save("remote", err)
	if err != nil {
		return pack.Trip{}, fmt.Errorf("create trip: %w", err)
	}

	if err := s.detach(ctx); err != nil {
		s.opts.Logger.Warn().Err(err).Msg("detaching previous trip")
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.enterShared(ctx, id, doc)
	s.opts.Logger.Info().Str("trip_id", id).Msg("trip created")
	return doc, nil
}

// MakeEditable turns the shared document into a device-local copy. There is
// no way back to the shared identity.
func (s *Session) MakeEditable(ctx context.Context) error {
	s.mu.Lock()
	mode := s.mode
	s.mu.Unlock()
	switch mode {
	case ModeUnloaded:
		return ErrNoTrip
	case ModeLocal:
		return ErrNotShared
	}

	if _, err := s.saver.Flush(); err != nil {
		s.opts.Logger.Warn().Err(err).Msg("flushing before detach")
	}

	s.mu.Lock()
	s.mode = ModeLocal
	s.sharedID = ""
	doc := s.doc
	s.mu.Unlock()

	err := s.detach(ctx)
	if saveErr := s.saveLocal(ctx, doc); saveErr != nil {
		err = multierr.Append(err, saveErr)
	}
	return err
}

func (s *Session) AddParticipant(ctx context.Context) (string, error) {
	label := pack.PlaceholderLabel(s.Language())
	var id string
	_, err := s.mutate(ctx, func(doc pack.Trip) (pack.Trip, error) {
		next, newID := doc.AddParticipant(label)
		id = newID
		return next, nil
	})
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.active = id
	s.mu.Unlock()
	return id, nil
}

func (s *Session) AddItem(ctx context.Context, participantID string, item pack.GearItem) (pack.GearItem, error) {
	if err := pack.ValidateItem(item); err != nil {
		return pack.GearItem{}, err
	}
	var added pack.GearItem
	_, err := s.mutate(ctx, func(doc pack.Trip) (pack.Trip, error) {
		next, it, err := doc.AddItem(participantID, item)
		added = it
		return next, err
	})
	return added, err
}

func (s *Session) RemoveItem(ctx context.Context, participantID, itemID string) error {
	_, err := s.mutate(ctx, func(doc pack.Trip) (pack.Trip, error) {
		return doc.RemoveItem(participantID, itemID)
	})
	return err
}

func (s *Session) ToggleItemFlag(ctx context.Context, participantID, itemID string, flag pack.Flag) error {
	_, err := s.mutate(ctx, func(doc pack.Trip) (pack.Trip, error) {
		return doc.ToggleItemFlag(participantID, itemID, flag)
	})
	return err
}

// Trip returns the held document; ok is false while unloaded.
func (s *Session) Trip() (pack.Trip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc, s.mode != ModeUnloaded
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) SharedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sharedID
}

func (s *Session) ActiveParticipant() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) SetActiveParticipant(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeUnloaded {
		return ErrNoTrip
	}
	if _, ok := s.doc.Participant(id); !ok {
		return fmt.Errorf("%w: %s", pack.ErrParticipantNotFound, id)
	}
	s.active = id
	return nil
}

// Stats aggregates the held document.
func (s *Session) Stats() ([]pack.ParticipantStats, pack.Stats, error) {
	doc, ok := s.Trip()
	if !ok {
		return nil, pack.Stats{}, ErrNoTrip
	}
	per, group := pack.GroupStats(doc)
	return per, group, nil
}

// ShareLink returns pageURL carrying the shared identity.
func (s *Session) ShareLink(pageURL string) (string, error) {
	id := s.SharedID()
	if id == "" {
		return "", ErrNotShared
	}
	return pack.ShareLink(pageURL, id)
}

// Insights asks the generator about one participant's pack.
func (s *Session) Insights(ctx context.Context, participantID string) ([]insight.Insight, error) {
	doc, ok := s.Trip()
	if !ok {
		return nil, ErrNoTrip
	}
	p, found := doc.Participant(participantID)
	if !found {
		return nil, fmt.Errorf("%w: %s", pack.ErrParticipantNotFound, participantID)
	}
	if err := insight.CheckItems(p.Items); err != nil {
		return nil, err
	}
	if s.opts.Insights == nil {
		return nil, insight.ErrGenerationFailed
	}
	return s.opts.Insights.Generate(ctx, p.Items, pack.PackStats(p.Items), s.Language())
}

// Close flushes a pending save and stops listening for pushes.
func (s *Session) Close(ctx context.Context) error {
	return s.detach(ctx)
}

func firstPack(doc pack.Trip) string {
	if len(doc.Participants) == 0 {
		return ""
	}
	return doc.Participants[0].ID
}
