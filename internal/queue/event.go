// Package queue carries booking audit events over RabbitMQ.  The API
// publishes one message per confirmed or cancelled session; the audit
// consumer appends them to a log file.  Delivery is fire-and-forget from
// the booking core's point of view.
package queue

import "time"

// Queue names double as event types.
const (
	QueueBookingConfirmed = "booking.confirmed"
	QueueBookingCancelled = "booking.cancelled"
)

// Queues lists every queue the audit consumer reads.
var Queues = []string{QueueBookingConfirmed, QueueBookingCancelled}

// BookingEvent is published when a session is confirmed or cancelled.
// It contains enough information for downstream consumers to log, notify,
// or trigger analytics without querying the primary database.
type BookingEvent struct {
	Type             string    `json:"type"`
	SessionID        string    `json:"session_id"`
	ConfirmationCode string    `json:"confirmation_code"`
	UserID           uint64    `json:"user_id"`
	ShowID           uint64    `json:"show_id"`
	SeatLabels       []string  `json:"seats"`
	TotalAmountCents uint32    `json:"total_amount_cents"`
	OccurredAt       time.Time `json:"occurred_at"`
}
