package worker

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/beaconhq/beacon-api/internal/models"
)

type fakeJobQueue struct {
	mu   sync.Mutex
	jobs []models.EmailJob
}

func (q *fakeJobQueue) Enqueue(_ context.Context, job models.EmailJob) (models.EmailJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Status = models.EmailJobPending
	q.jobs = append(q.jobs, job)
	return job, nil
}

func (q *fakeJobQueue) ClaimNextPending(_ context.Context) (models.EmailJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, job := range q.jobs {
		if job.Status == models.EmailJobPending {
			q.jobs[i].Status = models.EmailJobSending
			return q.jobs[i], nil
		}
	}
	return models.EmailJob{}, sql.ErrNoRows
}

func (q *fakeJobQueue) MarkSent(_ context.Context, id string) error {
	return q.setStatus(id, models.EmailJobSent)
}

func (q *fakeJobQueue) MarkFailed(_ context.Context, id string) error {
	return q.setStatus(id, models.EmailJobFailed)
}

func (q *fakeJobQueue) setStatus(id string, status models.EmailJobStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, job := range q.jobs {
		if job.ID == id {
			q.jobs[i].Status = status
			return nil
		}
	}
	return sql.ErrNoRows
}

func (q *fakeJobQueue) statuses() map[string]models.EmailJobStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := map[string]models.EmailJobStatus{}
	for _, job := range q.jobs {
		out[job.ID] = job.Status
	}
	return out
}

type fakeMailer struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]bool
}

func (m *fakeMailer) Send(job models.EmailJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[job.ID] {
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, job.ID)
	return nil
}

func TestMailWorkerDrainsQueue(t *testing.T) {
	queue := &fakeJobQueue{}
	for _, id := range []string{"j1", "j2", "j3"} {
		queue.Enqueue(context.Background(), models.EmailJob{ID: id, ToEmail: id + "@example.com"})
	}
	mailer := &fakeMailer{failFor: map[string]bool{"j2": true}}

	w := NewMailWorker(queue, mailer, time.Second, zerolog.Nop())
	w.drain(context.Background())

	statuses := queue.statuses()
	assert.Equal(t, models.EmailJobSent, statuses["j1"])
	assert.Equal(t, models.EmailJobFailed, statuses["j2"], "a failing job is marked failed, not retried forever")
	assert.Equal(t, models.EmailJobSent, statuses["j3"], "one failing job does not stop the drain")
	assert.ElementsMatch(t, []string{"j1", "j3"}, mailer.sent)
}

func TestClaimedJobCarriesSendingStatus(t *testing.T) {
	queue := &fakeJobQueue{}
	queue.Enqueue(context.Background(), models.EmailJob{ID: "j1", ToEmail: "j1@example.com"})

	job, err := queue.ClaimNextPending(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, models.EmailJobSending, job.Status)
}

func TestMailWorkerDrainStopsOnEmptyQueue(t *testing.T) {
	queue := &fakeJobQueue{}
	mailer := &fakeMailer{}

	w := NewMailWorker(queue, mailer, time.Second, zerolog.Nop())
	w.drain(context.Background())

	assert.Empty(t, mailer.sent)
}

func TestMailWorkerStopsOnContextCancel(t *testing.T) {
	queue := &fakeJobQueue{}
	w := NewMailWorker(queue, &fakeMailer{}, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on cancellation")
	}
}
