// Package savestore keeps host save envelopes in named SQLite slots.
package savestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"extlayer/internal/savestore/migrations"
	"extlayer/internal/storage/sqlitemigrate"
	"extlayer/logging"
	"extlayer/logging/persistence"
)

var (
	ErrNotFound    = errors.New("savestore: slot not found")
	ErrInvalidSlot = errors.New("savestore: invalid slot")
)

const maxNameLen = 128

// Slot is one stored save.
type Slot struct {
	Name     string
	Session  string
	Frame    uint64
	Checksum uint64
	Objects  int
	Payload  []byte
	SavedAt  time.Time
}

// Summary describes a slot without its payload.
type Summary struct {
	Name     string    `json:"name"`
	Session  string    `json:"session"`
	Frame    uint64    `json:"frame"`
	Checksum string    `json:"checksum"`
	Objects  int       `json:"objects"`
	Bytes    int       `json:"bytes"`
	SavedAt  time.Time `json:"savedAt"`
}

// Option customises a Store.
type Option func(*Store)

// WithPublisher routes slot events to pub.
func WithPublisher(pub logging.Publisher) Option {
	return func(s *Store) {
		if pub != nil {
			s.publisher = pub
		}
	}
}

// WithClock overrides the time source used for SavedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store persists save slots in SQLite.
type Store struct {
	sqlDB     *sql.DB
	publisher logging.Publisher
	tracer    trace.Tracer
	now       func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the slot database at path and applies embedded migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	s := &Store{
		sqlDB:     sqlDB,
		publisher: logging.NopPublisher(),
		tracer:    otel.Tracer("extlayer/savestore"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidSlot)
	}
	if len(name) > maxNameLen {
		return "", fmt.Errorf("%w: name longer than %d bytes", ErrInvalidSlot, maxNameLen)
	}
	return name, nil
}

// Put writes slot, replacing any slot with the same name. A zero SavedAt is
// stamped with the store clock.
func (s *Store) Put(ctx context.Context, slot Slot) error {
	ctx, span := s.tracer.Start(ctx, "savestore.Put")
	defer span.End()
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := normalizeName(slot.Name)
	if err != nil {
		return err
	}
	if len(slot.Payload) == 0 {
		return fmt.Errorf("%w: payload is required", ErrInvalidSlot)
	}
	if slot.Objects < 0 {
		return fmt.Errorf("%w: negative object count", ErrInvalidSlot)
	}
	savedAt := slot.SavedAt
	if savedAt.IsZero() {
		savedAt = s.now()
	}
	span.SetAttributes(attribute.String("savestore.slot", name), attribute.Int("savestore.bytes", len(slot.Payload)))

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO save_slots (name, session_id, frame, checksum, object_count, payload, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   session_id = excluded.session_id,
		   frame = excluded.frame,
		   checksum = excluded.checksum,
		   object_count = excluded.object_count,
		   payload = excluded.payload,
		   saved_at = excluded.saved_at`,
		name,
		slot.Session,
		int64(slot.Frame),
		int64(slot.Checksum),
		slot.Objects,
		slot.Payload,
		toMillis(savedAt),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("put save slot: %w", err)
	}
	persistence.SlotStored(ctx, s.publisher, persistence.World(slot.Session), persistence.SlotPayload{
		Slot:    name,
		Session: slot.Session,
		Bytes:   len(slot.Payload),
	}, nil)
	return nil
}

// Get returns the slot called name.
func (s *Store) Get(ctx context.Context, name string) (Slot, error) {
	ctx, span := s.tracer.Start(ctx, "savestore.Get")
	defer span.End()
	if err := ctx.Err(); err != nil {
		return Slot{}, err
	}
	name, err := normalizeName(name)
	if err != nil {
		return Slot{}, err
	}

	var (
		slot     Slot
		frame    int64
		checksum int64
		savedAt  int64
	)
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT name, session_id, frame, checksum, object_count, payload, saved_at
		 FROM save_slots WHERE name = ?`, name)
	if err := row.Scan(&slot.Name, &slot.Session, &frame, &checksum, &slot.Objects, &slot.Payload, &savedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Slot{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		span.RecordError(err)
		return Slot{}, fmt.Errorf("get save slot: %w", err)
	}
	slot.Frame = uint64(frame)
	slot.Checksum = uint64(checksum)
	slot.SavedAt = fromMillis(savedAt)
	return slot, nil
}

// List returns every slot, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	ctx, span := s.tracer.Start(ctx, "savestore.List")
	defer span.End()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT name, session_id, frame, checksum, object_count, length(payload), saved_at
		 FROM save_slots ORDER BY saved_at DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list save slots: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			summary  Summary
			frame    int64
			checksum int64
			savedAt  int64
		)
		if err := rows.Scan(&summary.Name, &summary.Session, &frame, &checksum, &summary.Objects, &summary.Bytes, &savedAt); err != nil {
			return nil, fmt.Errorf("scan save slot: %w", err)
		}
		summary.Frame = uint64(frame)
		summary.Checksum = fmt.Sprintf("%016x", uint64(checksum))
		summary.SavedAt = fromMillis(savedAt)
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list save slots: %w", err)
	}
	return out, nil
}

// Delete removes the slot called name.
func (s *Store) Delete(ctx context.Context, name string) error {
	ctx, span := s.tracer.Start(ctx, "savestore.Delete")
	defer span.End()
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := normalizeName(name)
	if err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM save_slots WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete save slot: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete save slot: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	persistence.SlotDeleted(ctx, s.publisher, persistence.World(""), persistence.SlotPayload{Slot: name}, nil)
	return nil
}
