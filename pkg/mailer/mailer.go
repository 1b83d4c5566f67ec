package mailer

import (
	"context"
	"time"
)

// Message is a rendered notification ready for delivery.
type Message struct {
	Subject  string
	Body     string
	HTMLBody string
	To       []string
}

// ScheduleWindow is the furthest in the future SendGrid accepts a send_at;
// instants beyond it are rejected with a 4xx and must be delivered by
// another path.
const ScheduleWindow = 72 * time.Hour

// Mailer abstracts the outbound notification sender. SendNow delivers
// immediately; ScheduleAt hands the message to the provider's own timer and
// returns an opaque provider handle for the queued send.
type Mailer interface {
	SendNow(ctx context.Context, msg Message) (string, error)
	ScheduleAt(ctx context.Context, msg Message, at time.Time) (string, error)
}
