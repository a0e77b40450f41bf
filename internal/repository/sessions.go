package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jmwagner/plausch/internal/domain"
)

// SessionRepository is the durable source of truth for sessions. Every
// write is scoped by both session id and owner id; the core never
// issues an unscoped write.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, owner_id, title, title_state, messages, is_public, public_id, spend::text, created_at`

// SelectByOwner returns all sessions of one owner, newest first.
func (r *SessionRepository) SelectByOwner(ctx context.Context, owner uuid.UUID) ([]*domain.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE owner_id = $1 ORDER BY created_at DESC`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	return sessions, nil
}

// Insert creates a session and returns the stored row.
func (r *SessionRepository) Insert(ctx context.Context, owner uuid.UUID, title string, state domain.TitleState) (*domain.Session, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO sessions (owner_id, title, title_state, messages)
		 VALUES ($1, $2, $3, '[]'::jsonb)
		 RETURNING `+sessionColumns,
		owner, title, string(state),
	)
	s, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

// UpdateMessages persists the full message sequence and accumulated
// spend for one session.
func (r *SessionRepository) UpdateMessages(ctx context.Context, id, owner uuid.UUID, messages []domain.Message, spend decimal.Decimal) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET messages = $1, spend = $2::numeric WHERE id = $3 AND owner_id = $4`,
		payload, spend.String(), id, owner,
	)
	if err != nil {
		return fmt.Errorf("update messages: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// UpdateTitleIfPlaceholder applies a synthesized title only while the
// stored row is still placeholder-titled. Returns false when the row
// has been renamed in the meantime; the caller drops the title.
func (r *SessionRepository) UpdateTitleIfPlaceholder(ctx context.Context, id, owner uuid.UUID, title string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET title = $1, title_state = $2
		 WHERE id = $3 AND owner_id = $4 AND title_state = $5`,
		title, string(domain.TitleAutoSet), id, owner, string(domain.TitlePlaceholder),
	)
	if err != nil {
		return false, fmt.Errorf("update auto title: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateTitle persists a title and its provenance tag.
func (r *SessionRepository) UpdateTitle(ctx context.Context, id, owner uuid.UUID, title string, state domain.TitleState) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET title = $1, title_state = $2 WHERE id = $3 AND owner_id = $4`,
		title, string(state), id, owner,
	)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// UpdateShare flips the public flag of a shareable session. A row
// without a public id cannot be shared and reports ErrSharingUnavailable.
func (r *SessionRepository) UpdateShare(ctx context.Context, id, owner uuid.UUID, isPublic bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET is_public = $1 WHERE id = $2 AND owner_id = $3 AND public_id IS NOT NULL`,
		isPublic, id, owner,
	)
	if err != nil {
		return fmt.Errorf("update share: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var unshareable bool
		err := r.pool.QueryRow(ctx,
			`SELECT public_id IS NULL FROM sessions WHERE id = $1 AND owner_id = $2`,
			id, owner,
		).Scan(&unshareable)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return domain.ErrSessionNotFound
		case err != nil:
			return fmt.Errorf("check share support: %w", err)
		case unshareable:
			return domain.ErrSharingUnavailable
		}
		return domain.ErrSessionNotFound
	}
	return nil
}

// Delete removes a session owned by owner.
func (r *SessionRepository) Delete(ctx context.Context, id, owner uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM sessions WHERE id = $1 AND owner_id = $2`,
		id, owner,
	)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// scanSession maps one row onto the domain shape. The sharing
// capability is decided here, once at load time: only rows carrying
// both sharing columns yield a ShareState.
func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s         domain.Session
		msgsJSON  []byte
		isPublic  *bool
		publicID  *uuid.UUID
		spendText string
	)
	if err := row.Scan(&s.ID, &s.OwnerID, &s.Title, (*string)(&s.TitleState), &msgsJSON, &isPublic, &publicID, &spendText, &s.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if len(msgsJSON) > 0 {
		if err := json.Unmarshal(msgsJSON, &s.Messages); err != nil {
			return nil, fmt.Errorf("unmarshal messages: %w", err)
		}
	}
	if s.Messages == nil {
		s.Messages = []domain.Message{}
	}

	if isPublic != nil && publicID != nil {
		s.Share = &domain.ShareState{IsPublic: *isPublic, PublicID: *publicID}
	}

	spend, err := decimal.NewFromString(spendText)
	if err != nil {
		return nil, fmt.Errorf("parse spend: %w", err)
	}
	s.Spend = spend

	return &s, nil
}
