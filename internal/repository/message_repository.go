package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-chat-service/internal/domain"
)

// MessageRepository manages the append-only per-session message log.
//
// Append assigns msg.Seq, the next sequence number for the session. When
// msg.ClientKey collides with an already-persisted message in the same
// session the implementation returns ErrDuplicate without writing.
type MessageRepository interface {
	Append(ctx context.Context, msg *domain.Message) error
	GetByClientKey(ctx context.Context, sessionID, clientKey string) (*domain.Message, error)
	ListSince(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]domain.Message, error)
	MarkRead(ctx context.Context, sessionID string, upToSeq int64, role domain.PartyRole) error
	UnreadCount(ctx context.Context, sessionID string, role domain.PartyRole) (int, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds the Postgres-backed repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Append(ctx context.Context, msg *domain.Message) error {
	// Seq assignment and insert happen in one statement; callers hold the
	// per-session lock, so the MAX(seq) read cannot interleave with another
	// append on the same session. The unique index is the backstop.
	const query = `
        INSERT INTO chat_messages (session_id, seq, sender_id, sender_type, sender_name, body, client_key, read_by)
        SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4, $5, $6, $7
        FROM chat_messages WHERE session_id = $1
        RETURNING seq, created_at`
	err := r.pool.QueryRow(ctx, query,
		msg.SessionID,
		msg.SenderID,
		msg.SenderType,
		msg.SenderName,
		msg.Body,
		msg.ClientKey,
		rolesToStrings(msg.ReadBy),
	).Scan(&msg.Seq, &msg.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *messageRepository) GetByClientKey(ctx context.Context, sessionID, clientKey string) (*domain.Message, error) {
	const query = `
        SELECT seq, session_id, sender_id, sender_type, sender_name, body, client_key, read_by, created_at
        FROM chat_messages WHERE session_id=$1 AND client_key=$2`
	return r.fetchSingle(ctx, query, sessionID, clientKey)
}

func (r *messageRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Message, error) {
	var msg domain.Message
	var readBy []string
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&msg.Seq,
		&msg.SessionID,
		&msg.SenderID,
		&msg.SenderType,
		&msg.SenderName,
		&msg.Body,
		&msg.ClientKey,
		&readBy,
		&msg.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	msg.ReadBy = stringsToRoles(readBy)
	return &msg, nil
}

func (r *messageRepository) ListSince(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	const query = `
        SELECT seq, session_id, sender_id, sender_type, sender_name, body, client_key, read_by, created_at
        FROM chat_messages WHERE session_id=$1 AND seq > $2
        ORDER BY seq ASC LIMIT $3`
	rows, err := r.pool.Query(ctx, query, sessionID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		var readBy []string
		if err := rows.Scan(
			&msg.Seq,
			&msg.SessionID,
			&msg.SenderID,
			&msg.SenderType,
			&msg.SenderName,
			&msg.Body,
			&msg.ClientKey,
			&readBy,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		msg.ReadBy = stringsToRoles(readBy)
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *messageRepository) MarkRead(ctx context.Context, sessionID string, upToSeq int64, role domain.PartyRole) error {
	const query = `
        UPDATE chat_messages SET read_by = array_append(read_by, $1)
        WHERE session_id=$2 AND seq <= $3 AND NOT ($1 = ANY(read_by))`
	_, err := r.pool.Exec(ctx, query, string(role), sessionID, upToSeq)
	return err
}

func (r *messageRepository) UnreadCount(ctx context.Context, sessionID string, role domain.PartyRole) (int, error) {
	const query = `
        SELECT COUNT(*) FROM chat_messages
        WHERE session_id=$1 AND NOT ($2 = ANY(read_by))`
	var count int
	if err := r.pool.QueryRow(ctx, query, sessionID, string(role)).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func rolesToStrings(roles []domain.PartyRole) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}

func stringsToRoles(values []string) []domain.PartyRole {
	if len(values) == 0 {
		return nil
	}
	out := make([]domain.PartyRole, 0, len(values))
	for _, v := range values {
		out = append(out, domain.PartyRole(v))
	}
	return out
}
