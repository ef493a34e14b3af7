package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/beaconhq/beacon-api/internal/models"
)

type IntentRepository interface {
	Create(ctx context.Context, intent models.NotificationIntent) (models.NotificationIntent, error)
	GetByID(ctx context.Context, id string) (models.NotificationIntent, error)
	ListRecent(ctx context.Context, limit int) ([]models.NotificationIntent, error)
	// ListDue returns intents that have never been sent and whose scheduled
	// time is absent or has passed.
	ListDue(ctx context.Context, now time.Time) ([]models.NotificationIntent, error)
	// MarkSent sets sent_at, guarded by sent_at IS NULL. It reports whether
	// this call claimed the intent; false means another path got there first.
	MarkSent(ctx context.Context, id string, sentAt time.Time) (bool, error)
	// IncrementSentCount adds n to the aggregate counter with a single
	// atomic UPDATE. Never implemented as read-then-write: concurrent waves
	// (scheduler + resend) would lose increments.
	IncrementSentCount(ctx context.Context, id string, n int64) error
}

type intentRepository struct {
	db *sql.DB
}

func NewIntentRepository(db *sql.DB) IntentRepository {
	return &intentRepository{db: db}
}

const intentColumns = `
	id, title, message, priority, link,
	audience_user_ids, audience_group_ids, audience_roles,
	channel_email, scheduled_at, sent_at, sent_count,
	created_by, created_by_role, created_at`

func (r *intentRepository) Create(ctx context.Context, intent models.NotificationIntent) (models.NotificationIntent, error) {
	const query = `
		INSERT INTO app.notification_intents
			(id, title, message, priority, link,
			 audience_user_ids, audience_group_ids, audience_roles,
			 channel_email, scheduled_at, created_by, created_by_role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + intentColumns

	row := r.db.QueryRowContext(ctx, query,
		intent.ID,
		intent.Title,
		intent.Message,
		intent.Priority,
		nullString(intent.Link),
		pq.Array(orEmpty(intent.Audience.UserIDs)),
		pq.Array(orEmpty(intent.Audience.GroupIDs)),
		pq.Array(orEmpty(intent.Audience.Roles)),
		intent.Channels.Email,
		nullTime(intent.ScheduledAt),
		intent.CreatedBy,
		intent.CreatedByRole,
	)
	created, err := scanIntent(row)
	if err != nil {
		return models.NotificationIntent{}, errors.Wrap(err, "insert notification intent")
	}
	return created, nil
}

func (r *intentRepository) GetByID(ctx context.Context, id string) (models.NotificationIntent, error) {
	const query = `
		SELECT ` + intentColumns + `
		FROM app.notification_intents
		WHERE id = $1`
	return scanIntent(r.db.QueryRowContext(ctx, query, id))
}

func (r *intentRepository) ListRecent(ctx context.Context, limit int) ([]models.NotificationIntent, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	const query = `
		SELECT ` + intentColumns + `
		FROM app.notification_intents
		ORDER BY created_at DESC
		LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIntents(rows)
}

func (r *intentRepository) ListDue(ctx context.Context, now time.Time) ([]models.NotificationIntent, error) {
	const query = `
		SELECT ` + intentColumns + `
		FROM app.notification_intents
		WHERE sent_at IS NULL
		  AND (scheduled_at IS NULL OR scheduled_at <= $1)
		ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIntents(rows)
}

func (r *intentRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) (bool, error) {
	const query = `
		UPDATE app.notification_intents
		SET sent_at = $2
		WHERE id = $1 AND sent_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, sentAt)
	if err != nil {
		return false, errors.Wrap(err, "mark intent sent")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *intentRepository) IncrementSentCount(ctx context.Context, id string, n int64) error {
	const query = `
		UPDATE app.notification_intents
		SET sent_count = sent_count + $2
		WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, n)
	if err != nil {
		return errors.Wrap(err, "increment sent count")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func collectIntents(rows *sql.Rows) ([]models.NotificationIntent, error) {
	var intents []models.NotificationIntent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return intents, nil
}

func scanIntent(scanner interface {
	Scan(dest ...interface{}) error
}) (models.NotificationIntent, error) {
	var (
		intent      models.NotificationIntent
		link        sql.NullString
		userIDs     pq.StringArray
		groupIDs    pq.StringArray
		roles       pq.StringArray
		scheduledAt sql.NullTime
		sentAt      sql.NullTime
	)
	if err := scanner.Scan(
		&intent.ID,
		&intent.Title,
		&intent.Message,
		&intent.Priority,
		&link,
		&userIDs,
		&groupIDs,
		&roles,
		&intent.Channels.Email,
		&scheduledAt,
		&sentAt,
		&intent.SentCount,
		&intent.CreatedBy,
		&intent.CreatedByRole,
		&intent.CreatedAt,
	); err != nil {
		return models.NotificationIntent{}, err
	}

	intent.Channels.InApp = true
	intent.Link = link.String
	intent.Audience.UserIDs = userIDs
	intent.Audience.GroupIDs = groupIDs
	intent.Audience.Roles = roles
	if scheduledAt.Valid {
		t := scheduledAt.Time
		intent.ScheduledAt = &t
	}
	if sentAt.Valid {
		t := sentAt.Time
		intent.SentAt = &t
	}
	return intent, nil
}

// orEmpty maps a nil slice to an empty one. The audience columns are NOT
// NULL, and pq.Array binds a nil slice as SQL NULL rather than '{}'.
func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
