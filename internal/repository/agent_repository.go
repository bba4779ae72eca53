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

// AgentFilter defines query params for agent listing.
type AgentFilter struct {
	OnlineOnly bool
	Limit      int
	Offset     int
}

// AgentRepository handles persistence for support agents.
//
// IncrementLoad is conditional: it succeeds only while
// current_load < max_concurrent_chats and returns ErrStaleStatus at the
// boundary, so two racing assignments can never push an agent past
// capacity. DecrementLoad never drops the counter below zero.
type AgentRepository interface {
	Create(ctx context.Context, agent *domain.Agent) error
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	GetByEmail(ctx context.Context, email string) (*domain.Agent, error)
	List(ctx context.Context, filter AgentFilter) ([]domain.Agent, error)
	SetPresence(ctx context.Context, id string, online bool, since time.Time) error
	IncrementLoad(ctx context.Context, id string) error
	DecrementLoad(ctx context.Context, id string) error
}

type agentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository instantiates the Postgres-backed repository.
func NewAgentRepository(pool *pgxpool.Pool) AgentRepository {
	return &agentRepository{pool: pool}
}

const agentColumns = `id, user_id, email, password_hash, display_name, is_online, online_since,
               capabilities, current_load, max_concurrent_chats, created_at, updated_at`

func (r *agentRepository) Create(ctx context.Context, agent *domain.Agent) error {
	const query = `
        INSERT INTO agents (user_id, email, password_hash, display_name, is_online, capabilities, max_concurrent_chats)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		agent.UserID,
		agent.Email,
		agent.PasswordHash,
		agent.DisplayName,
		agent.IsOnline,
		agent.Capabilities,
		agent.MaxConcurrentChats,
	).Scan(&agent.ID, &agent.CreatedAt, &agent.UpdatedAt)
}

func (r *agentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	query := fmt.Sprintf(`SELECT %s FROM agents WHERE id=$1`, agentColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *agentRepository) GetByEmail(ctx context.Context, email string) (*domain.Agent, error) {
	query := fmt.Sprintf(`SELECT %s FROM agents WHERE email=$1`, agentColumns)
	return r.fetchSingle(ctx, query, email)
}

func (r *agentRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Agent, error) {
	var agent domain.Agent
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&agent.ID,
		&agent.UserID,
		&agent.Email,
		&agent.PasswordHash,
		&agent.DisplayName,
		&agent.IsOnline,
		&agent.OnlineSince,
		&agent.Capabilities,
		&agent.CurrentLoad,
		&agent.MaxConcurrentChats,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepository) List(ctx context.Context, filter AgentFilter) ([]domain.Agent, error) {
	query := fmt.Sprintf(`SELECT %s FROM agents`, agentColumns)
	clauses := []string{}
	if filter.OnlineOnly {
		clauses = append(clauses, "is_online = TRUE")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at ASC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Agent
	for rows.Next() {
		var agent domain.Agent
		if err := rows.Scan(
			&agent.ID,
			&agent.UserID,
			&agent.Email,
			&agent.PasswordHash,
			&agent.DisplayName,
			&agent.IsOnline,
			&agent.OnlineSince,
			&agent.Capabilities,
			&agent.CurrentLoad,
			&agent.MaxConcurrentChats,
			&agent.CreatedAt,
			&agent.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, agent)
	}
	return result, rows.Err()
}

func (r *agentRepository) SetPresence(ctx context.Context, id string, online bool, since time.Time) error {
	// online_since only moves on the offline -> online flip.
	const query = `
        UPDATE agents
        SET is_online=$1,
            online_since=CASE WHEN $1 AND NOT is_online THEN $2 ELSE online_since END,
            updated_at=NOW()
        WHERE id=$3`
	cmd, err := r.pool.Exec(ctx, query, online, since, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *agentRepository) IncrementLoad(ctx context.Context, id string) error {
	const query = `
        UPDATE agents SET current_load = current_load + 1, updated_at=NOW()
        WHERE id=$1 AND current_load < max_concurrent_chats`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *agentRepository) DecrementLoad(ctx context.Context, id string) error {
	const query = `
        UPDATE agents SET current_load = current_load - 1, updated_at=NOW()
        WHERE id=$1 AND current_load > 0`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}
