// Package gateway is the client side of the hosted trip document store.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jany-pan/packwise/internal/pack"
)

const errorBodyLimit int64 = 1024

var errBaseURLRequired = errors.New("gateway base url is required")

// Remote talks to the packwise API over HTTP and its websocket stream.
type Remote struct {
	baseURL    *url.URL
	httpClient *http.Client
	dialer     *websocket.Dialer
	log        zerolog.Logger
}

type Option func(*Remote)

func WithHTTPClient(client *http.Client) Option {
	return func(r *Remote) {
		if client != nil {
			r.httpClient = client
		}
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(r *Remote) {
		if d != nil {
			r.dialer = d
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(r *Remote) { r.log = log }
}

func New(baseURL string, opts ...Option) (*Remote, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}

	r := &Remote{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		dialer:     websocket.DefaultDialer,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

type record struct {
	ID   string    `json:"id"`
	Trip pack.Trip `json:"trip"`
}

// Fetch returns pack.ErrTripNotFound when the identity is unknown.
func (r *Remote) Fetch(ctx context.Context, id string) (pack.Trip, error) {
	var rec record
	if err := r.do(ctx, http.MethodGet, "/trips/"+url.PathEscape(id), nil, &rec); err != nil {
		return pack.Trip{}, err
	}
	return rec.Trip, nil
}

// Insert stores doc and returns the identity assigned by the server.
func (r *Remote) Insert(ctx context.Context, doc pack.Trip) (string, error) {
	var rec record
	if err := r.do(ctx, http.MethodPost, "/trips", doc, &rec); err != nil {
		return "", err
	}
	if rec.ID == "" {
		return "", errors.New("insert trip: empty identity in response")
	}
	return rec.ID, nil
}

func (r *Remote) Update(ctx context.Context, id string, doc pack.Trip) error {
	return r.do(ctx, http.MethodPut, "/trips/"+url.PathEscape(id), doc, nil)
}

// Subscribe streams every document pushed for id until cancel is called or
// ctx ends. The channel is closed when the stream stops.
func (r *Remote) Subscribe(ctx context.Context, id string) (<-chan pack.Trip, func(), error) {
	wsURL := *r.baseURL
	if wsURL.Scheme == "https" {
		wsURL.Scheme = "wss"
	} else {
		wsURL.Scheme = "ws"
	}
	wsURL.Path = strings.TrimRight(wsURL.Path, "/") + "/stream/trips/" + url.PathEscape(id)

	conn, resp, err := r.dialer.DialContext(ctx, wsURL.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe %s: %w", id, err)
	}

	out := make(chan pack.Trip)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = conn.Close()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	go func() {
		defer close(out)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-done:
				default:
					r.log.Warn().Err(err).Str("trip_id", id).Msg("trip stream closed")
				}
				return
			}
			doc, err := pack.Decode(msg)
			if err != nil {
				r.log.Warn().Err(err).Str("trip_id", id).Msg("skipping malformed pushed document")
				continue
			}
			select {
			case out <- doc:
			case <-done:
				return
			}
		}
	}()

	return out, cancel, nil
}

func (r *Remote) do(ctx context.Context, method, path string, body any, dest any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return pack.ErrTripNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
