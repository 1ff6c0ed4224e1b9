package reviews

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

// SessionStore keeps in-progress wizards keyed by requester id.
type SessionStore interface {
	Get(ctx context.Context, requesterID int64) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, requesterID int64) error
	// Claim removes and returns the session only if it is still at step.
	// Of two concurrent claims at most one gets a session; the other gets nil.
	Claim(ctx context.Context, requesterID int64, step Step) (*Session, error)
}

type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[int64]Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[int64]Session)}
}

func (m *MemorySessionStore) Get(_ context.Context, requesterID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[requesterID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemorySessionStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.RequesterID] = *s
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, requesterID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, requesterID)
	return nil
}

func (m *MemorySessionStore) Claim(_ context.Context, requesterID int64, step Step) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[requesterID]
	if !ok || s.Step != step {
		return nil, nil
	}
	delete(m.sessions, requesterID)
	return &s, nil
}

type PostgresSessionStore struct {
	db *sqlx.DB
}

func NewPostgresSessionStore(db *sqlx.DB) *PostgresSessionStore {
	return &PostgresSessionStore{db: db}
}

type sessionRow struct {
	Session
	Draft []byte `db:"draft"`
}

func (p *PostgresSessionStore) Get(ctx context.Context, requesterID int64) (*Session, error) {
	var row sessionRow
	err := p.db.GetContext(ctx, &row, `
		SELECT requester_id, requester_handle, step, draft, updated_at
		FROM review_sessions
		WHERE requester_id = $1
	`, requesterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	s := row.Session
	if err := json.Unmarshal(row.Draft, &s.Draft); err != nil {
		return nil, fmt.Errorf("decode draft of requester %d: %w", requesterID, err)
	}
	return &s, nil
}

func (p *PostgresSessionStore) Save(ctx context.Context, s *Session) error {
	draft, err := json.Marshal(s.Draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO review_sessions (requester_id, requester_handle, step, draft, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (requester_id) DO UPDATE
		SET requester_handle = EXCLUDED.requester_handle, step = EXCLUDED.step, draft = EXCLUDED.draft, updated_at = NOW()
	`, s.RequesterID, s.RequesterHandle, s.Step, draft)
	return err
}

func (p *PostgresSessionStore) Delete(ctx context.Context, requesterID int64) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM review_sessions WHERE requester_id = $1`, requesterID)
	return err
}

func (p *PostgresSessionStore) Claim(ctx context.Context, requesterID int64, step Step) (*Session, error) {
	var row sessionRow
	err := p.db.GetContext(ctx, &row, `
		DELETE FROM review_sessions
		WHERE requester_id = $1 AND step = $2
		RETURNING requester_id, requester_handle, step, draft, updated_at
	`, requesterID, step)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	s := row.Session
	if err := json.Unmarshal(row.Draft, &s.Draft); err != nil {
		return nil, fmt.Errorf("decode draft of requester %d: %w", requesterID, err)
	}
	return &s, nil
}
