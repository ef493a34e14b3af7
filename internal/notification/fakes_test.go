package notification

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/beaconhq/beacon-api/internal/models"
)

// In-memory repository fakes shared by the tests in this package.

type memUserRepo struct {
	users  map[string]models.User // by id
	groups map[string][]string    // group id -> member user ids
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{
		users:  map[string]models.User{},
		groups: map[string][]string{},
	}
}

func (m *memUserRepo) addUser(id, email string, roles ...models.UserRole) {
	m.users[id] = models.User{ID: id, Email: email, IsActive: true, Roles: models.EnsureDefaultRole(roles)}
}

func (m *memUserRepo) addToGroup(groupID string, userIDs ...string) {
	m.groups[groupID] = append(m.groups[groupID], userIDs...)
}

func (m *memUserRepo) CreateUser(email, password, firstName, lastName string, roles []models.UserRole) (models.User, error) {
	return models.User{}, errors.New("not supported")
}

func (m *memUserRepo) AuthenticateUser(email, password string) (models.User, error) {
	return models.User{}, errors.New("not supported")
}

func (m *memUserRepo) GetUserByID(userID string) (models.User, error) {
	user, ok := m.users[userID]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memUserRepo) GetUserByEmail(email string) (models.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, sql.ErrNoRows
}

func (m *memUserRepo) ListUsersByGroup(groupID string) ([]models.User, error) {
	var members []models.User
	for _, id := range m.groups[groupID] {
		if user, ok := m.users[id]; ok {
			members = append(members, user)
		}
	}
	return members, nil
}

type memIntentRepo struct {
	mu            sync.Mutex
	intents       map[string]models.NotificationIntent
	failIncrement bool
}

func newMemIntentRepo() *memIntentRepo {
	return &memIntentRepo{intents: map[string]models.NotificationIntent{}}
}

func (m *memIntentRepo) get(id string) models.NotificationIntent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.intents[id]
}

func (m *memIntentRepo) Create(_ context.Context, intent models.NotificationIntent) (models.NotificationIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent.CreatedAt = time.Now()
	intent.Channels.InApp = true
	m.intents[intent.ID] = intent
	return intent, nil
}

func (m *memIntentRepo) GetByID(_ context.Context, id string) (models.NotificationIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[id]
	if !ok {
		return models.NotificationIntent{}, sql.ErrNoRows
	}
	return intent, nil
}

func (m *memIntentRepo) ListRecent(_ context.Context, limit int) ([]models.NotificationIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var intents []models.NotificationIntent
	for _, intent := range m.intents {
		intents = append(intents, intent)
	}
	return intents, nil
}

func (m *memIntentRepo) ListDue(_ context.Context, now time.Time) ([]models.NotificationIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []models.NotificationIntent
	for _, intent := range m.intents {
		if intent.Due(now) {
			due = append(due, intent)
		}
	}
	return due, nil
}

func (m *memIntentRepo) MarkSent(_ context.Context, id string, sentAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[id]
	if !ok || intent.SentAt != nil {
		return false, nil
	}
	intent.SentAt = &sentAt
	m.intents[id] = intent
	return true, nil
}

func (m *memIntentRepo) IncrementSentCount(_ context.Context, id string, n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIncrement {
		return errors.New("increment failed")
	}
	intent, ok := m.intents[id]
	if !ok {
		return sql.ErrNoRows
	}
	intent.SentCount += n
	m.intents[id] = intent
	return nil
}

type memDeliveryRepo struct {
	mu         sync.Mutex
	deliveries map[string]models.Delivery
	failBatch  bool
}

func newMemDeliveryRepo() *memDeliveryRepo {
	return &memDeliveryRepo{deliveries: map[string]models.Delivery{}}
}

func (m *memDeliveryRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deliveries)
}

func (m *memDeliveryRepo) get(id string) (models.Delivery, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	return d, ok
}

func (m *memDeliveryRepo) CreateBatch(_ context.Context, deliveries []models.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failBatch {
		return errors.New("batch write failed")
	}
	for _, d := range deliveries {
		// Upsert semantics: replacing a row resets read/click history.
		m.deliveries[d.ID] = d
	}
	return nil
}

func (m *memDeliveryRepo) GetByID(_ context.Context, id string) (models.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return models.Delivery{}, sql.ErrNoRows
	}
	return d, nil
}

func (m *memDeliveryRepo) ListByRecipient(_ context.Context, recipientID string, limit int) ([]models.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Delivery
	for _, d := range m.deliveries {
		if d.RecipientID == recipientID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDeliveryRepo) ListByIntent(_ context.Context, intentID string) ([]models.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Delivery
	for _, d := range m.deliveries {
		if d.IntentID == intentID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDeliveryRepo) MarkRead(_ context.Context, recipientID, deliveryID string) (models.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[deliveryID]
	if !ok || d.RecipientID != recipientID {
		return models.Delivery{}, sql.ErrNoRows
	}
	now := time.Now()
	d.ReadAt = &now
	m.deliveries[deliveryID] = d
	return d, nil
}

func (m *memDeliveryRepo) MarkClicked(_ context.Context, id, source string) (models.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return models.Delivery{}, sql.ErrNoRows
	}
	now := time.Now()
	d.ClickedAt = &now
	d.ClickedFrom = source
	m.deliveries[id] = d
	return d, nil
}

func (m *memDeliveryRepo) Stats(_ context.Context, intentID string) (models.IntentStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stat := models.IntentStat{IntentID: intentID}
	for _, d := range m.deliveries {
		if d.IntentID != intentID {
			continue
		}
		stat.Delivered++
		if d.ReadAt != nil {
			stat.Read++
		}
		if d.ClickedAt != nil {
			stat.Clicked++
		}
	}
	return stat, nil
}

type memEmailJobRepo struct {
	mu   sync.Mutex
	jobs []models.EmailJob
}

func newMemEmailJobRepo() *memEmailJobRepo {
	return &memEmailJobRepo{}
}

func (m *memEmailJobRepo) all() []models.EmailJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.EmailJob(nil), m.jobs...)
}

func (m *memEmailJobRepo) Enqueue(_ context.Context, job models.EmailJob) (models.EmailJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Status = models.EmailJobPending
	job.CreatedAt = time.Now()
	m.jobs = append(m.jobs, job)
	return job, nil
}

func (m *memEmailJobRepo) ClaimNextPending(_ context.Context) (models.EmailJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, job := range m.jobs {
		if job.Status == models.EmailJobPending {
			m.jobs[i].Status = models.EmailJobSending
			return m.jobs[i], nil
		}
	}
	return models.EmailJob{}, sql.ErrNoRows
}

func (m *memEmailJobRepo) MarkSent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, job := range m.jobs {
		if job.ID == id {
			now := time.Now()
			m.jobs[i].Status = models.EmailJobSent
			m.jobs[i].SentAt = &now
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memEmailJobRepo) MarkFailed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, job := range m.jobs {
		if job.ID == id {
			m.jobs[i].Status = models.EmailJobFailed
			return nil
		}
	}
	return sql.ErrNoRows
}

// recordingEmailer captures the audiences handed to the email side channel
// and signals on a channel so tests can wait for the async handoff.
type recordingEmailer struct {
	mu     sync.Mutex
	calls  []Audience
	notify chan struct{}
}

func newRecordingEmailer() *recordingEmailer {
	return &recordingEmailer{notify: make(chan struct{}, 8)}
}

func (r *recordingEmailer) EnqueueEmails(_ context.Context, _ models.NotificationIntent, audience Audience) {
	r.mu.Lock()
	r.calls = append(r.calls, audience)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recordingEmailer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
