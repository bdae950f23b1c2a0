package session

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jany-pan/packwise/internal/pack"
)

const maxRecent = 10

func normalizeLanguage(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), "sk") {
		return "sk"
	}
	return "en"
}

func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lang
}

// SetLanguage switches between "en" and "sk"; anything else means "en".
func (s *Session) SetLanguage(ctx context.Context, lang string) error {
	lang = normalizeLanguage(lang)
	s.mu.Lock()
	s.lang = lang
	s.mu.Unlock()
	return s.local.Set(ctx, KeyLang, lang)
}

func (s *Session) loadLanguage(ctx context.Context) {
	raw, found, err := s.local.Get(ctx, KeyLang)
	if err != nil {
		s.opts.Logger.Warn().Err(err).Msg("reading language preference")
		return
	}
	if !found {
		return
	}
	s.mu.Lock()
	s.lang = normalizeLanguage(raw)
	s.mu.Unlock()
}

// RecentTrips lists shared trips opened on this device, most recent first.
func (s *Session) RecentTrips(ctx context.Context) []pack.RecentTrip {
	raw, found, err := s.local.Get(ctx, KeyRecent)
	if err != nil || !found {
		return nil
	}
	var recent []pack.RecentTrip
	if err := json.Unmarshal([]byte(raw), &recent); err != nil {
		s.opts.Logger.Warn().Err(err).Msg("ignoring malformed recent trips")
		return nil
	}
	return recent
}

func (s *Session) rememberRecent(ctx context.Context, id, name string) {
	entry := pack.RecentTrip{ID: id, Name: name, LastVisited: s.opts.Now().UnixMilli()}
	recent := []pack.RecentTrip{entry}
	for _, r := range s.RecentTrips(ctx) {
		if r.ID != id {
			recent = append(recent, r)
		}
	}
	if len(recent) > maxRecent {
		recent = recent[:maxRecent]
	}
	data, err := json.Marshal(recent)
	if err == nil {
		err = s.local.Set(ctx, KeyRecent, string(data))
	}
	if err != nil {
		s.opts.Logger.Warn().Err(err).Msg("saving recent trips")
	}
}
