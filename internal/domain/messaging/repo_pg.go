package messaging

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/carebridge/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type messageRepoPG struct{ pool *pgxpool.Pool }

func NewMessageRepoPG(pool *pgxpool.Pool) MessageRepository {
	return &messageRepoPG{pool: pool}
}

func (r *messageRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const messageCols = `id, seq, conversation_id, sender_id, receiver_id, text, read, created_at`

func (r *messageRepoPG) scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.Seq, &m.ConversationID, &m.SenderID, &m.ReceiverID,
		&m.Text, &m.Read, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	return &m, err
}

func (r *messageRepoPG) Append(ctx context.Context, m *Message) error {
	m.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, text)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING seq, created_at`,
		m.ID, m.ConversationID, m.SenderID, m.ReceiverID, m.Text).Scan(&m.Seq, &m.CreatedAt)
}

func (r *messageRepoPG) History(ctx context.Context, conversationID string) ([]*Message, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+messageCols+` FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, seq ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Message
	for rows.Next() {
		m, err := r.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *messageRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	return r.scanMessage(r.conn(ctx).QueryRow(ctx, `SELECT `+messageCols+` FROM messages WHERE id = $1`, id))
}

func (r *messageRepoPG) MarkRead(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE messages SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}
