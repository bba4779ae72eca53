package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-chat-service/internal/domain"
)

// Sentinel errors shared by every repository implementation. The pgx
// implementations translate driver errors into these before returning.
var (
	ErrNotFound    = errors.New("record not found")
	ErrStaleStatus = errors.New("status changed concurrently")
	ErrDuplicate   = errors.New("duplicate record")
)

// SessionFilter captures listing parameters for the agent console.
type SessionFilter struct {
	Status        *domain.SessionStatus
	TenantID      *string
	AgentID       *string
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

// SessionRepository encapsulates session persistence.
//
// UpdateStatus is a compare-and-swap: it persists the full session record
// only when the stored status still equals expected, and returns
// ErrStaleStatus otherwise. That check is the durable half of the
// registry's per-session serialization.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByPublicID(ctx context.Context, publicID string) (*domain.Session, error)
	UpdateStatus(ctx context.Context, session *domain.Session, expected domain.SessionStatus) error
	TouchLastMessage(ctx context.Context, sessionID string, at time.Time) error
	ListWithFilter(ctx context.Context, filter SessionFilter) ([]domain.Session, error)
}

type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository instantiates the Postgres-backed repository.
func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

const sessionColumns = `id, public_id, customer_id, tenant_id, agent_id, status, category, priority,
               close_reason, rating, feedback, created_at, last_message_at, closed_at`

func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	const query = `
        INSERT INTO chat_sessions (public_id, customer_id, tenant_id, agent_id, status, category, priority)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, last_message_at`
	return r.pool.QueryRow(ctx, query,
		session.PublicID,
		session.CustomerID,
		session.TenantID,
		session.AgentID,
		session.Status,
		session.Category,
		session.Priority,
	).Scan(&session.ID, &session.CreatedAt, &session.LastMessageAt)
}

func (r *sessionRepository) GetByPublicID(ctx context.Context, publicID string) (*domain.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM chat_sessions WHERE public_id=$1`, sessionColumns)
	var session domain.Session
	if err := r.pool.QueryRow(ctx, query, publicID).Scan(
		&session.ID,
		&session.PublicID,
		&session.CustomerID,
		&session.TenantID,
		&session.AgentID,
		&session.Status,
		&session.Category,
		&session.Priority,
		&session.CloseReason,
		&session.Rating,
		&session.Feedback,
		&session.CreatedAt,
		&session.LastMessageAt,
		&session.ClosedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) UpdateStatus(ctx context.Context, session *domain.Session, expected domain.SessionStatus) error {
	const query = `
        UPDATE chat_sessions
        SET agent_id=$1, status=$2, close_reason=$3, rating=$4, feedback=$5, closed_at=$6
        WHERE id=$7 AND status=$8`
	cmd, err := r.pool.Exec(ctx, query,
		session.AgentID,
		session.Status,
		session.CloseReason,
		session.Rating,
		session.Feedback,
		session.ClosedAt,
		session.ID,
		expected,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *sessionRepository) TouchLastMessage(ctx context.Context, sessionID string, at time.Time) error {
	const query = `UPDATE chat_sessions SET last_message_at=$1 WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, at, sessionID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sessionRepository) ListWithFilter(ctx context.Context, filter SessionFilter) ([]domain.Session, error) {
	base := fmt.Sprintf(`SELECT %s FROM chat_sessions`, sessionColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.TenantID != nil {
		args = append(args, *filter.TenantID)
		clauses = append(clauses, fmt.Sprintf("tenant_id=$%d", len(args)))
	}
	if filter.AgentID != nil {
		args = append(args, *filter.AgentID)
		clauses = append(clauses, fmt.Sprintf("agent_id=$%d", len(args)))
	}
	if filter.CreatedBefore != nil {
		args = append(args, *filter.CreatedBefore)
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}

	// Waiting sessions form the assignment queue: priority first, oldest
	// first within a band. Everything else lists by recent activity.
	orderBy := "last_message_at DESC"
	if filter.Status != nil && *filter.Status == domain.SessionStatusWaiting {
		orderBy = `CASE priority
                WHEN 'URGENT' THEN 4 WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 ELSE 1
            END DESC, created_at ASC`
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), orderBy, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSessions(rows pgx.Rows) ([]domain.Session, error) {
	var result []domain.Session
	for rows.Next() {
		var session domain.Session
		if err := rows.Scan(
			&session.ID,
			&session.PublicID,
			&session.CustomerID,
			&session.TenantID,
			&session.AgentID,
			&session.Status,
			&session.Category,
			&session.Priority,
			&session.CloseReason,
			&session.Rating,
			&session.Feedback,
			&session.CreatedAt,
			&session.LastMessageAt,
			&session.ClosedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, session)
	}
	return result, rows.Err()
}
