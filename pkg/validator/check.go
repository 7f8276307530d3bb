package validator

import (
	"time"

	"pulsekeep/internal/models"
	"pulsekeep/internal/schedule"
)

// Timeout and grace bounds accepted through the API.
const (
	MinDuration = time.Minute
	MaxDuration = 31 * 24 * time.Hour
)

func ValidateKind(kind string) bool {
	validKinds := map[string]bool{
		"simple":     true,
		"cron":       true,
		"oncalendar": true,
	}
	return validKinds[kind]
}

func ValidateDuration(d time.Duration) bool {
	return d >= MinDuration && d <= MaxDuration
}

func ValidateTz(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// ValidateSchedule parses the schedule expression for the given kind and
// confirms it has at least one future occurrence.
func ValidateSchedule(kind models.CheckKind, spec string) bool {
	now := time.Now()
	switch kind {
	case models.KindCron:
		_, err := schedule.NewCronSim(spec, now)
		return err == nil
	case models.KindOnCalendar:
		it, err := schedule.NewOnCalendar(spec, now)
		if err != nil {
			return false
		}
		_, ok := it.Next()
		return ok
	}
	return true
}
