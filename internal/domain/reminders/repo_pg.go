package reminders

import (
	"context"
	"errors"
	"time"

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

type reminderRepoPG struct{ pool *pgxpool.Pool }

func NewReminderRepoPG(pool *pgxpool.Pool) ReminderRepository {
	return &reminderRepoPG{pool: pool}
}

func (r *reminderRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const reminderCols = `id, user_id, title, message, schedule, active, last_fired_at, created_at, updated_at`

func (r *reminderRepoPG) scanReminder(row pgx.Row) (*Reminder, error) {
	var rem Reminder
	err := row.Scan(&rem.ID, &rem.UserID, &rem.Title, &rem.Message, &rem.Schedule,
		&rem.Active, &rem.LastFiredAt, &rem.CreatedAt, &rem.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReminderNotFound
	}
	return &rem, err
}

func (r *reminderRepoPG) Create(ctx context.Context, rem *Reminder) error {
	rem.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO reminders (id, user_id, title, message, schedule, active)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		rem.ID, rem.UserID, rem.Title, rem.Message, rem.Schedule, rem.Active)
	return err
}

func (r *reminderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return r.scanReminder(r.conn(ctx).QueryRow(ctx, `SELECT `+reminderCols+` FROM reminders WHERE id = $1`, id))
}

func (r *reminderRepoPG) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Reminder, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM reminders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+reminderCols+` FROM reminders
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collect(rows, r.scanReminder)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *reminderRepoPG) ListActive(ctx context.Context) ([]*Reminder, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+reminderCols+` FROM reminders WHERE active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows, r.scanReminder)
}

func (r *reminderRepoPG) Update(ctx context.Context, rem *Reminder) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE reminders SET title=$2, message=$3, schedule=$4, active=$5, updated_at=NOW()
		WHERE id = $1`,
		rem.ID, rem.Title, rem.Message, rem.Schedule, rem.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReminderNotFound
	}
	return nil
}

func (r *reminderRepoPG) MarkFired(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE reminders SET last_fired_at=$2 WHERE id = $1`, id, at)
	return err
}

func (r *reminderRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReminderNotFound
	}
	return nil
}

func collect(rows pgx.Rows, scan func(pgx.Row) (*Reminder, error)) ([]*Reminder, error) {
	var items []*Reminder
	for rows.Next() {
		rem, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rem)
	}
	return items, rows.Err()
}
