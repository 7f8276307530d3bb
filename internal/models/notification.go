package models

import "time"

// Notification statuses used for async delivery-status callbacks.
const (
	NotificationSending   = "Sending"
	NotificationDelivered = ""
)

// Notification records one delivery attempt for idempotency and for async
// status callbacks from carriers. Created immediately before the transport
// attempt, updated with the outcome after it completes.
type Notification struct {
	Code        string      `json:"code"`
	CheckCode   *string     `json:"check_code,omitempty"` // nil for test sends
	ChannelCode string      `json:"channel_code"`
	CheckStatus CheckStatus `json:"check_status"`
	CreatedAt   time.Time   `json:"created_at"`

	// Error holds "Sending" while in flight, "" on success, or the final
	// error message.
	Error string `json:"error"`
}
