package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/talentscout/talentscout/internal/candidate"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrRecordUnavailable is returned for ids that were never created,
// were erased, or are past their retention deadline. Callers cannot
// distinguish the three cases on purpose.
var ErrRecordUnavailable = errors.New("record unavailable")

// Store persists candidate records as self-contained JSON documents in
// SQLite. All access to a given record id is serialized.
type Store struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open opens (or creates) the store at path. Use ":memory:" for an
// ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS candidates (
	id TEXT PRIMARY KEY,
	document TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL
);
`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a fresh record in the greeting phase with the given
// retention window.
func (s *Store) Create(ctx context.Context, retention time.Duration) (*candidate.Record, error) {
	if retention <= 0 {
		retention = candidate.DefaultRetention
	}

	now := time.Now().UTC()
	record := &candidate.Record{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(retention),
		Phase:     candidate.Greeting,
	}

	if err := s.insert(ctx, record); err != nil {
		return nil, err
	}

	return record, nil
}

// Get loads a record. An expired record is deleted on the spot and
// reported as unavailable.
func (s *Store) Get(ctx context.Context, id string) (*candidate.Record, error) {
	lock := s.recordLock(id)
	lock.Lock()
	defer lock.Unlock()

	return s.load(ctx, id, time.Now().UTC())
}

// Update applies the mutator to the record under the per-id lock and
// persists the result. If the mutator returns an error nothing is
// written.
func (s *Store) Update(ctx context.Context, id string, mutate func(*candidate.Record) error) (*candidate.Record, error) {
	lock := s.recordLock(id)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.load(ctx, id, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := mutate(record); err != nil {
		return nil, err
	}

	if err := s.save(ctx, record); err != nil {
		return nil, err
	}

	return record, nil
}

// Erase hard-deletes a record unconditionally, regardless of its
// retention deadline (right to erasure).
func (s *Store) Erase(ctx context.Context, id string) error {
	lock := s.recordLock(id)
	lock.Lock()
	defer lock.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM candidates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("erase record: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecordUnavailable
	}

	return nil
}

// PurgeExpired deletes every record whose retention deadline passed and
// returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM candidates WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired records: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}

	return int(n), nil
}

func (s *Store) insert(ctx context.Context, record *candidate.Record) error {
	document, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record document: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO candidates (id, document, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		record.ID, string(document), record.CreatedAt, record.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	return nil
}

func (s *Store) save(ctx context.Context, record *candidate.Record) error {
	document, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record document: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE candidates SET document = ?, expires_at = ? WHERE id = ?`,
		string(document), record.ExpiresAt, record.ID,
	)
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}

	return nil
}

func (s *Store) load(ctx context.Context, id string, now time.Time) (*candidate.Record, error) {
	var document string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM candidates WHERE id = ?`, id,
	).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}

	var record candidate.Record
	if err := json.Unmarshal([]byte(document), &record); err != nil {
		return nil, fmt.Errorf("decode record document: %w", err)
	}

	if record.Expired(now) {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM candidates WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("delete expired record: %w", err)
		}
		return nil, ErrRecordUnavailable
	}

	return &record, nil
}

func (s *Store) recordLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}
