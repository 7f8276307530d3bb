package models

import "time"

// PingAction classifies an inbound ping.
type PingAction string

const (
	ActionSuccess PingAction = ""
	ActionStart   PingAction = "start"
	ActionFail    PingAction = "fail"
	ActionIgn     PingAction = "ign"
)

// Ping is an immutable record of one inbound heartbeat request.
type Ping struct {
	ID         int64      `json:"-"`
	CheckCode  string     `json:"-"`
	N          int        `json:"n"`
	CreatedAt  time.Time  `json:"date"`
	Action     PingAction `json:"type"`
	Scheme     string     `json:"scheme"`
	RemoteAddr string     `json:"remote_addr"`
	Method     string     `json:"method"`
	UserAgent  string     `json:"ua"`
	Body       string     `json:"-"`
	ExitStatus *int       `json:"exit_status,omitempty"`
}
