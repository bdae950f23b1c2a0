package trip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/jany-pan/packwise/internal/db"
	"github.com/jany-pan/packwise/internal/metrics"
	"github.com/jany-pan/packwise/internal/pack"
)

// Record is a stored trip document. ID is the shared identity, distinct from
// the document's own id.
type Record struct {
	ID        string    `json:"id"`
	Trip      pack.Trip `json:"trip"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Broadcaster pushes a full document to the subscribers of a trip.
type Broadcaster interface {
	Broadcast(tripID string, payload []byte)
}

type Service struct {
	db      db.Querier
	hub     Broadcaster
	metrics *metrics.Sync
	log     zerolog.Logger
}

type Option func(*Service)

func WithHub(hub Broadcaster) Option {
	return func(s *Service) { s.hub = hub }
}

func WithMetrics(m *metrics.Sync) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func NewService(db db.Querier, opts ...Option) *Service {
	s := &Service{db: db, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert stores a new document and assigns its shared identity.
func (s *Service) Insert(ctx context.Context, doc pack.Trip) (Record, error) {
	data, err := pack.Encode(doc)
	if err != nil {
		return Record{}, err
	}
	rec := Record{ID: uuid.NewString(), Trip: doc}
	row := s.db.QueryRow(ctx, `
		INSERT INTO trips (id, trip_data)
		VALUES ($1, $2)
		RETURNING created_at, updated_at
	`, rec.ID, data)
	err = row.Scan(&rec.CreatedAt, &rec.UpdatedAt)
	s.metrics.Save("remote", err)
	if err != nil {
		return Record{}, fmt.Errorf("insert trip: %w", err)
	}
	s.log.Info().Str("trip_id", rec.ID).Msg("trip created")
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Record{}, pack.ErrTripNotFound
	}
	return load(ctx, s.db, id, selectTrip)
}

// Update overwrites the stored document (last writer wins) and pushes it to
// every subscriber.
func (s *Service) Update(ctx context.Context, id string, doc pack.Trip) (Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Record{}, pack.ErrTripNotFound
	}
	data, err := pack.Encode(doc)
	if err != nil {
		return Record{}, err
	}
	rec, err := store(ctx, s.db, id, doc, data)
	s.metrics.Save("remote", err)
	if err != nil {
		return Record{}, err
	}
	s.broadcast(id, data)
	return rec, nil
}

// Mutate applies fn to the stored document inside a transaction that holds the
// row lock, so concurrent operations on one trip are serialized instead of
// overwriting each other.
func (s *Service) Mutate(ctx context.Context, id string, fn func(pack.Trip) (pack.Trip, error)) (Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Record{}, pack.ErrTripNotFound
	}

	var (
		rec  Record
		data []byte
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := load(ctx, tx, id, selectTripForUpdate)
		if err != nil {
			return err
		}
		next, err := fn(current.Trip)
		if err != nil {
			return err
		}
		if data, err = pack.Encode(next); err != nil {
			return err
		}
		rec, err = store(ctx, tx, id, next, data)
		return err
	})
	if data != nil {
		s.metrics.Save("remote", err)
	}
	if err != nil {
		return Record{}, err
	}
	s.broadcast(id, data)
	return rec, nil
}

// withTx runs fn in a transaction, rolling back when fn fails.
func (s *Service) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.log.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Service) broadcast(id string, data []byte) {
	if s.hub != nil {
		s.hub.Broadcast(id, data)
	}
}

const (
	selectTrip = `
		SELECT trip_data, created_at, updated_at
		FROM trips WHERE id=$1
	`
	selectTripForUpdate = `
		SELECT trip_data, created_at, updated_at
		FROM trips WHERE id=$1
		FOR UPDATE
	`
)

// rowQuerier is satisfied by the pool and by a pgx.Tx.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func load(ctx context.Context, q rowQuerier, id, query string) (Record, error) {
	var data []byte
	rec := Record{ID: id}
	if err := q.QueryRow(ctx, query, id).Scan(&data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, pack.ErrTripNotFound
		}
		return Record{}, fmt.Errorf("get trip: %w", err)
	}
	doc, err := pack.Decode(data)
	if err != nil {
		return Record{}, fmt.Errorf("decode trip %s: %w", id, err)
	}
	rec.Trip = doc
	return rec, nil
}

func store(ctx context.Context, q rowQuerier, id string, doc pack.Trip, data []byte) (Record, error) {
	rec := Record{ID: id, Trip: doc}
	row := q.QueryRow(ctx, `
		UPDATE trips
		SET trip_data=$2, updated_at=now()
		WHERE id=$1
		RETURNING created_at, updated_at
	`, id, data)
	if err := row.Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, pack.ErrTripNotFound
		}
		return Record{}, fmt.Errorf("update trip: %w", err)
	}
	return rec, nil
}

func (s *Service) Report(ctx context.Context, id string) (Report, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return Report{}, err
	}
	return BuildReport(id, rec.Trip), nil
}
