package uuidutil

import "github.com/google/uuid"

// New returns a fresh random code for checks, channels and notifications.
func New() string {
	return uuid.New().String()
}

func IsValid(code string) bool {
	_, err := uuid.Parse(code)
	return err == nil
}
