// Package notify delivers payment reminders to participants. Delivery is
// side-effecting only; the engine never depends on it for control flow.
package notify

import (
	"context"
	"time"
)

// Reminder is the payload handed to the delivery channel: who owes what, for
// which booking, and by when.
type Reminder struct {
	ParticipantName  string
	ParticipantEmail string
	AmountDue        int64
	Currency         string
	Description      string
	Deadline         time.Time
	PayURL           string
}

// Notifier is the messaging collaborator.
type Notifier interface {
	SendReminder(ctx context.Context, r Reminder) error
}
