package models

import (
	"fmt"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// NormalizePriority maps unknown values to PriorityNormal so that a bad
// payload never produces an unrenderable inbox row.
func NormalizePriority(p Priority) Priority {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return p
	default:
		return PriorityNormal
	}
}

// AudienceSpec describes who an intent targets: explicit user ids, group
// ids, and an optional role filter applied to group expansion only.
type AudienceSpec struct {
	UserIDs  []string `json:"user_ids"`
	GroupIDs []string `json:"group_ids"`
	Roles    []string `json:"roles,omitempty"`
}

// IsEmpty reports whether the spec targets nobody. A role filter alone
// does not make a spec valid.
func (a AudienceSpec) IsEmpty() bool {
	return len(a.UserIDs) == 0 && len(a.GroupIDs) == 0
}

// Channels selects delivery paths. InApp is always true; the inbox record
// is the channel of record.
type Channels struct {
	InApp bool `json:"in_app"`
	Email bool `json:"email"`
}

// NotificationIntent is the durable audit artifact for one authored
// message. It is created once and mutated only by the scheduler setting
// SentAt and by fan-out waves incrementing SentCount.
type NotificationIntent struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Message       string       `json:"message"`
	Priority      Priority     `json:"priority"`
	Link          string       `json:"link,omitempty"`
	Audience      AudienceSpec `json:"audience"`
	Channels      Channels     `json:"channels"`
	ScheduledAt   *time.Time   `json:"scheduled_at,omitempty"`
	SentAt        *time.Time   `json:"sent_at,omitempty"`
	SentCount     int64        `json:"sent_count"`
	CreatedBy     string       `json:"created_by"`
	CreatedByRole UserRole     `json:"created_by_role"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Due reports whether the intent should fan out at t: never sent, and
// either unscheduled or past its scheduled time.
func (n *NotificationIntent) Due(t time.Time) bool {
	if n.SentAt != nil {
		return false
	}
	return n.ScheduledAt == nil || !n.ScheduledAt.After(t)
}

// DeliveryID builds the deterministic per-recipient delivery key. The
// format is wire-visible: tracking links already sent by email encode it,
// so it must never change.
func DeliveryID(intentID, recipientID string) string {
	return fmt.Sprintf("%s_%s", intentID, recipientID)
}

// Delivery is one recipient's inbox record for one fan-out wave. Its id is
// DeliveryID(IntentID, RecipientID); re-running fan-out for the same pair
// overwrites the row, resetting read/click history for the new wave.
type Delivery struct {
	ID          string     `json:"id"`
	IntentID    string     `json:"intent_id"`
	RecipientID string     `json:"recipient_id"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Priority    Priority   `json:"priority"`
	Link        string     `json:"link,omitempty"`
	DeliveredAt time.Time  `json:"delivered_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	ClickedAt   *time.Time `json:"clicked_at,omitempty"`
	ClickedFrom string     `json:"clicked_from,omitempty"`
}

type EmailJobStatus string

const (
	EmailJobPending EmailJobStatus = "pending"
	EmailJobSending EmailJobStatus = "sending"
	EmailJobSent    EmailJobStatus = "sent"
	EmailJobFailed  EmailJobStatus = "failed"
)

// EmailJob is one outbound mail, queued by the email side channel and
// drained by the mail worker.
type EmailJob struct {
	ID           string         `json:"id"`
	ToEmail      string         `json:"to_email"`
	Subject      string         `json:"subject"`
	HTML         string         `json:"html"`
	IntentID     string         `json:"intent_id"`
	RecipientID  string         `json:"recipient_id"`
	OriginalLink string         `json:"original_link,omitempty"`
	Status       EmailJobStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	SentAt       *time.Time     `json:"sent_at,omitempty"`
}
