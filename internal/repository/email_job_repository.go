package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/beaconhq/beacon-api/internal/models"
)

type EmailJobRepository interface {
	Enqueue(ctx context.Context, job models.EmailJob) (models.EmailJob, error)
	// ClaimNextPending picks one pending job and flips it to EmailJobSending
	// using FOR UPDATE SKIP LOCKED, so concurrent mail workers never grab
	// the same job. Returns sql.ErrNoRows when the queue is empty.
	ClaimNextPending(ctx context.Context) (models.EmailJob, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

type emailJobRepository struct {
	db *sql.DB
}

func NewEmailJobRepository(db *sql.DB) EmailJobRepository {
	return &emailJobRepository{db: db}
}

const emailJobColumns = `
	id, to_email, subject, html, intent_id, recipient_id,
	original_link, status, created_at, sent_at`

func (r *emailJobRepository) Enqueue(ctx context.Context, job models.EmailJob) (models.EmailJob, error) {
	const query = `
		INSERT INTO app.email_jobs
			(id, to_email, subject, html, intent_id, recipient_id, original_link, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + emailJobColumns

	row := r.db.QueryRowContext(ctx, query,
		job.ID,
		job.ToEmail,
		job.Subject,
		job.HTML,
		job.IntentID,
		job.RecipientID,
		nullString(job.OriginalLink),
		models.EmailJobPending,
	)
	created, err := scanEmailJob(row)
	if err != nil {
		return models.EmailJob{}, errors.Wrap(err, "enqueue email job")
	}
	return created, nil
}

func (r *emailJobRepository) ClaimNextPending(ctx context.Context) (models.EmailJob, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.EmailJob{}, errors.Wrap(err, "begin email claim")
	}
	defer tx.Rollback()

	const query = `
		SELECT ` + emailJobColumns + `
		FROM app.email_jobs
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	job, err := scanEmailJob(tx.QueryRowContext(ctx, query))
	if err != nil {
		return models.EmailJob{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE app.email_jobs
		SET status = $2
		WHERE id = $1`, job.ID, models.EmailJobSending); err != nil {
		return models.EmailJob{}, errors.Wrap(err, "claim email job")
	}

	if err := tx.Commit(); err != nil {
		return models.EmailJob{}, errors.Wrap(err, "commit email claim")
	}
	job.Status = models.EmailJobSending
	return job, nil
}

func (r *emailJobRepository) MarkSent(ctx context.Context, id string) error {
	const query = `
		UPDATE app.email_jobs
		SET status = 'sent', sent_at = NOW()
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return errors.Wrap(err, "mark email job sent")
}

func (r *emailJobRepository) MarkFailed(ctx context.Context, id string) error {
	const query = `
		UPDATE app.email_jobs
		SET status = 'failed'
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return errors.Wrap(err, "mark email job failed")
}

func scanEmailJob(scanner interface {
	Scan(dest ...interface{}) error
}) (models.EmailJob, error) {
	var (
		job          models.EmailJob
		originalLink sql.NullString
		sentAt       sql.NullTime
	)
	if err := scanner.Scan(
		&job.ID,
		&job.ToEmail,
		&job.Subject,
		&job.HTML,
		&job.IntentID,
		&job.RecipientID,
		&originalLink,
		&job.Status,
		&job.CreatedAt,
		&sentAt,
	); err != nil {
		return models.EmailJob{}, err
	}

	job.OriginalLink = originalLink.String
	if sentAt.Valid {
		t := sentAt.Time
		job.SentAt = &t
	}
	return job, nil
}
