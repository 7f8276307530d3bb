package models

import "time"

// Reasons recorded on status flips.
const (
	ReasonPing    = "ping"
	ReasonFail    = "fail"
	ReasonTimeout = "timeout"
	ReasonLate    = "late"
	ReasonManual  = "manual"
)

// Flip is an append-only record of one status transition. Flips drive
// notification dispatch and downtime statistics; they are never mutated
// after creation except for the worker claim on Processed.
type Flip struct {
	ID        int64       `json:"-"`
	CheckCode string      `json:"check_code"`
	CreatedAt time.Time   `json:"timestamp"`
	Processed *time.Time  `json:"-"`
	OldStatus CheckStatus `json:"old_status"`
	NewStatus CheckStatus `json:"new_status"`
	Reason    string      `json:"reason"`
}

// Actionable reports whether the flip should fan out notifications.
// Transitions into grace, and recoveries from the new and paused states,
// are recorded but never announced.
func (f *Flip) Actionable() bool {
	if f.NewStatus == StatusUp && (f.OldStatus == StatusNew || f.OldStatus == StatusPaused) {
		return false
	}
	return f.NewStatus == StatusUp || f.NewStatus == StatusDown
}
