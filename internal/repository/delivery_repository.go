package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/beaconhq/beacon-api/internal/models"
)

type DeliveryRepository interface {
	// CreateBatch writes one wave of deliveries in a single transaction.
	// Rows are upserts keyed by the deterministic delivery id, so replaying
	// a wave replaces prior rows (and resets their read/click history)
	// instead of duplicating them. All-or-nothing: a partial wave is never
	// observable as committed state.
	CreateBatch(ctx context.Context, deliveries []models.Delivery) error
	GetByID(ctx context.Context, id string) (models.Delivery, error)
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]models.Delivery, error)
	ListByIntent(ctx context.Context, intentID string) ([]models.Delivery, error)
	MarkRead(ctx context.Context, recipientID, deliveryID string) (models.Delivery, error)
	// MarkClicked records click analytics on an existing delivery and
	// returns the updated row (including the stored link to redirect to).
	MarkClicked(ctx context.Context, id, source string) (models.Delivery, error)
	Stats(ctx context.Context, intentID string) (models.IntentStat, error)
}

type deliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) DeliveryRepository {
	return &deliveryRepository{db: db}
}

const deliveryColumns = `
	id, intent_id, recipient_id, title, message, priority, link,
	delivered_at, read_at, clicked_at, clicked_from`

func (r *deliveryRepository) CreateBatch(ctx context.Context, deliveries []models.Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin delivery batch")
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO app.notification_deliveries
			(id, intent_id, recipient_id, title, message, priority, link, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title        = EXCLUDED.title,
			message      = EXCLUDED.message,
			priority     = EXCLUDED.priority,
			link         = EXCLUDED.link,
			delivered_at = EXCLUDED.delivered_at,
			read_at      = NULL,
			clicked_at   = NULL,
			clicked_from = NULL`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return errors.Wrap(err, "prepare delivery upsert")
	}
	defer stmt.Close()

	for _, d := range deliveries {
		if _, err := stmt.ExecContext(ctx,
			d.ID,
			d.IntentID,
			d.RecipientID,
			d.Title,
			d.Message,
			d.Priority,
			nullString(d.Link),
			d.DeliveredAt,
		); err != nil {
			return errors.Wrapf(err, "upsert delivery %s", d.ID)
		}
	}

	return errors.Wrap(tx.Commit(), "commit delivery batch")
}

func (r *deliveryRepository) GetByID(ctx context.Context, id string) (models.Delivery, error) {
	const query = `
		SELECT ` + deliveryColumns + `
		FROM app.notification_deliveries
		WHERE id = $1`
	return scanDelivery(r.db.QueryRowContext(ctx, query, id))
}

func (r *deliveryRepository) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]models.Delivery, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	const query = `
		SELECT ` + deliveryColumns + `
		FROM app.notification_deliveries
		WHERE recipient_id = $1
		ORDER BY delivered_at DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

func (r *deliveryRepository) ListByIntent(ctx context.Context, intentID string) ([]models.Delivery, error) {
	const query = `
		SELECT ` + deliveryColumns + `
		FROM app.notification_deliveries
		WHERE intent_id = $1
		ORDER BY recipient_id`
	rows, err := r.db.QueryContext(ctx, query, intentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

func (r *deliveryRepository) MarkRead(ctx context.Context, recipientID, deliveryID string) (models.Delivery, error) {
	const query = `
		UPDATE app.notification_deliveries
		SET read_at = NOW()
		WHERE id = $1 AND recipient_id = $2
		RETURNING ` + deliveryColumns
	return scanDelivery(r.db.QueryRowContext(ctx, query, deliveryID, recipientID))
}

func (r *deliveryRepository) MarkClicked(ctx context.Context, id, source string) (models.Delivery, error) {
	const query = `
		UPDATE app.notification_deliveries
		SET clicked_at = NOW(), clicked_from = $2
		WHERE id = $1
		RETURNING ` + deliveryColumns
	return scanDelivery(r.db.QueryRowContext(ctx, query, id, source))
}

func (r *deliveryRepository) Stats(ctx context.Context, intentID string) (models.IntentStat, error) {
	const query = `
		SELECT
			i.sent_count,
			COUNT(d.id)                                   AS delivered,
			COUNT(d.id) FILTER (WHERE d.read_at IS NOT NULL)    AS read,
			COUNT(d.id) FILTER (WHERE d.clicked_at IS NOT NULL) AS clicked
		FROM app.notification_intents i
		LEFT JOIN app.notification_deliveries d ON d.intent_id = i.id
		WHERE i.id = $1
		GROUP BY i.id, i.sent_count`

	stat := models.IntentStat{IntentID: intentID}
	err := r.db.QueryRowContext(ctx, query, intentID).Scan(
		&stat.SentCount,
		&stat.Delivered,
		&stat.Read,
		&stat.Clicked,
	)
	if err != nil {
		return models.IntentStat{}, err
	}
	if stat.Delivered > 0 {
		stat.ReadRate = float64(stat.Read) / float64(stat.Delivered)
	}
	return stat, nil
}

func collectDeliveries(rows *sql.Rows) ([]models.Delivery, error) {
	var deliveries []models.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deliveries, nil
}

func scanDelivery(scanner interface {
	Scan(dest ...interface{}) error
}) (models.Delivery, error) {
	var (
		d           models.Delivery
		link        sql.NullString
		readAt      sql.NullTime
		clickedAt   sql.NullTime
		clickedFrom sql.NullString
	)
	if err := scanner.Scan(
		&d.ID,
		&d.IntentID,
		&d.RecipientID,
		&d.Title,
		&d.Message,
		&d.Priority,
		&link,
		&d.DeliveredAt,
		&readAt,
		&clickedAt,
		&clickedFrom,
	); err != nil {
		return models.Delivery{}, err
	}

	d.Link = link.String
	d.ClickedFrom = clickedFrom.String
	if readAt.Valid {
		t := readAt.Time
		d.ReadAt = &t
	}
	if clickedAt.Valid {
		t := clickedAt.Time
		d.ClickedAt = &t
	}
	return d, nil
}
