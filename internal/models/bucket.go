package models

import "time"

// TokenBucket is the persisted state of one rate-limit key. Tokens never
// exceed the capacity configured for the key's purpose; refill happens
// lazily on each authorization check.
type TokenBucket struct {
	Key     string    `json:"key"`
	Tokens  float64   `json:"tokens"`
	Updated time.Time `json:"updated"`
}
