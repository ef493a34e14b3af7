package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeliveryID(t *testing.T) {
	// Wire-visible format: tracking links in already-sent emails encode it.
	assert.Equal(t, "intent-1_user-9", DeliveryID("intent-1", "user-9"))
}

func TestNormalizePriority(t *testing.T) {
	tests := []struct {
		in   Priority
		want Priority
	}{
		{PriorityLow, PriorityLow},
		{PriorityNormal, PriorityNormal},
		{PriorityHigh, PriorityHigh},
		{Priority("urgent"), PriorityNormal},
		{Priority(""), PriorityNormal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePriority(tt.in))
	}
}

func TestAudienceSpecIsEmpty(t *testing.T) {
	assert.True(t, AudienceSpec{}.IsEmpty())
	assert.True(t, AudienceSpec{Roles: []string{"admin"}}.IsEmpty())
	assert.False(t, AudienceSpec{UserIDs: []string{"u1"}}.IsEmpty())
	assert.False(t, AudienceSpec{GroupIDs: []string{"g1"}}.IsEmpty())
}

func TestIntentDue(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	unscheduled := NotificationIntent{}
	assert.True(t, unscheduled.Due(now))

	scheduled := NotificationIntent{ScheduledAt: &future}
	assert.False(t, scheduled.Due(now))
	assert.True(t, scheduled.Due(future))

	sent := NotificationIntent{SentAt: &past}
	assert.False(t, sent.Due(now))

	duePast := NotificationIntent{ScheduledAt: &past}
	assert.True(t, duePast.Due(now))
}
