package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SyntaxError reports a malformed schedule expression. It is only returned
// from the constructors, never during iteration.
type SyntaxError struct {
	Expr string
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("bad schedule %q: %s", e.Expr, e.Msg)
}

func syntaxErr(expr, format string, args ...any) *SyntaxError {
	return &SyntaxError{Expr: expr, Msg: fmt.Sprintf(format, args...)}
}

type cronField int

const (
	fieldMinute cronField = iota
	fieldHour
	fieldDay
	fieldMonth
	fieldDOW
)

var fieldBounds = [5][2]int{
	{0, 59}, // minute
	{0, 23}, // hour
	{1, 31}, // day-of-month
	{1, 12}, // month
	{0, 7},  // day-of-week, both 0 and 7 mean Sunday
}

var symbolicDays = []string{"SUN", "MON", "TUE", "WED", "THU", "FRI", "SAT"}
var symbolicMonths = []string{"JAN", "FEB", "MAR", "APR", "MAY", "JUN",
	"JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}

// Maximum day count per month, with February at 29.
var daysInMonth = [13]int{0, 31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// nthDay is a "DOW#n" constraint: the n-th given weekday of the month.
type nthDay struct {
	dow int
	nth int
}

type intSet map[int]bool

func fullSet(f cronField) intSet {
	s := make(intSet)
	for v := fieldBounds[f][0]; v <= fieldBounds[f][1]; v++ {
		s[v] = true
	}
	return s
}

func (s intSet) min() int {
	first := true
	var m int
	for v := range s {
		if first || v < m {
			m = v
			first = false
		}
	}
	return m
}

func (s intSet) equal(other intSet) bool {
	if len(s) != len(other) {
		return false
	}
	for v := range s {
		if !other[v] {
			return false
		}
	}
	return true
}

func (s intSet) sorted() []int {
	out := make([]int, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// fieldValue parses a single numeric or symbolic value for the given field.
func fieldValue(f cronField, expr, s string) (int, error) {
	upper := strings.ToUpper(s)
	if f == fieldMonth {
		for i, name := range symbolicMonths {
			if upper == name {
				return i + 1, nil
			}
		}
	}
	if f == fieldDOW {
		for i, name := range symbolicDays {
			if upper == name {
				return i, nil
			}
		}
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, syntaxErr(expr, "bad value %q", s)
	}
	if v < fieldBounds[f][0] || v > fieldBounds[f][1] {
		return 0, syntaxErr(expr, "value %d out of range", v)
	}
	return v, nil
}

// parsed holds the result of parsing one cron field.
type parsed struct {
	values intSet
	nth    map[nthDay]bool // only for day-of-week
	last   bool            // only for day-of-month ("L")
}

func parseCronField(f cronField, expr, s string) (parsed, error) {
	p := parsed{values: make(intSet), nth: make(map[nthDay]bool)}

	if s == "*" {
		p.values = fullSet(f)
		return p, nil
	}

	for _, term := range strings.Split(s, ",") {
		if err := parseTerm(f, expr, term, &p); err != nil {
			return p, err
		}
	}
	return p, nil
}

func parseTerm(f cronField, expr, s string, p *parsed) error {
	if f == fieldDOW && strings.Contains(s, "#") {
		dowStr, nthStr, _ := strings.Cut(s, "#")
		nth, err := strconv.Atoi(nthStr)
		if err != nil || nth < 1 || nth > 5 {
			return syntaxErr(expr, "bad value %q", s)
		}
		dow, err := fieldValue(f, expr, dowStr)
		if err != nil {
			return err
		}
		p.nth[nthDay{dow: dow % 7, nth: nth}] = true
		return nil
	}

	if base, stepStr, found := strings.Cut(s, "/"); found {
		step, err := strconv.Atoi(stepStr)
		if err != nil {
			return syntaxErr(expr, "bad step %q", stepStr)
		}
		if step == 0 {
			return syntaxErr(expr, "step cannot be zero")
		}

		var items []int
		if base == "*" {
			items = fullSet(f).sorted()
		} else if start, end, isRange := strings.Cut(base, "-"); isRange {
			lo, err := fieldValue(f, expr, start)
			if err != nil {
				return err
			}
			hi, err := fieldValue(f, expr, end)
			if err != nil {
				return err
			}
			if hi < lo {
				return syntaxErr(expr, "range end cannot be smaller than start")
			}
			for v := lo; v <= hi; v++ {
				items = append(items, v)
			}
		} else {
			// A single value with a step extends to the top of the range.
			lo, err := fieldValue(f, expr, base)
			if err != nil {
				return err
			}
			for v := lo; v <= fieldBounds[f][1]; v++ {
				items = append(items, v)
			}
		}

		for i := 0; i < len(items); i += step {
			p.values[items[i]] = true
		}
		return nil
	}

	if start, end, isRange := strings.Cut(s, "-"); isRange {
		lo, err := fieldValue(f, expr, start)
		if err != nil {
			return err
		}
		hi, err := fieldValue(f, expr, end)
		if err != nil {
			return err
		}
		if hi < lo {
			return syntaxErr(expr, "range end cannot be smaller than start")
		}
		for v := lo; v <= hi; v++ {
			p.values[v] = true
		}
		return nil
	}

	if f == fieldDay && (s == "L" || s == "l") {
		p.last = true
		return nil
	}

	v, err := fieldValue(f, expr, s)
	if err != nil {
		return err
	}
	p.values[v] = true
	return nil
}

// CronSim produces the infinite sequence of future instants matching a
// five-field cron expression, starting strictly after a reference time.
//
// The computation advances one field at a time (month, then day, hour,
// minute) and restarts the lower-order checks whenever a higher-order field
// rolls over, so it never scans minute by minute across month boundaries.
type CronSim struct {
	minutes intSet
	hours   intSet
	days    intSet
	dayLast bool
	months  intSet

	weekdays    intSet
	nthWeekdays map[nthDay]bool

	// dt is the simulation cursor. In wall-clock mode it carries UTC as a
	// stand-in zone and fixupLoc holds the real zone; conversion happens at
	// the very end of each Next call.
	dt       time.Time
	loc      *time.Location
	fixupLoc *time.Location
}

// NewCronSim parses expr and positions the iterator at from. The first
// Next() result is strictly after from.
func NewCronSim(expr string, from time.Time) (*CronSim, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, syntaxErr(expr, "expected 5 fields, got %d", len(parts))
	}

	minutes, err := parseCronField(fieldMinute, expr, parts[0])
	if err != nil {
		return nil, err
	}
	hours, err := parseCronField(fieldHour, expr, parts[1])
	if err != nil {
		return nil, err
	}
	days, err := parseCronField(fieldDay, expr, parts[2])
	if err != nil {
		return nil, err
	}
	months, err := parseCronField(fieldMonth, expr, parts[3])
	if err != nil {
		return nil, err
	}
	dows, err := parseCronField(fieldDOW, expr, parts[4])
	if err != nil {
		return nil, err
	}

	s := &CronSim{
		minutes:     minutes.values,
		hours:       hours.values,
		days:        days.values,
		dayLast:     days.last,
		months:      months.values,
		weekdays:    make(intSet),
		nthWeekdays: dows.nth,
	}

	// 7 is an alias for Sunday.
	for v := range dows.values {
		s.weekdays[v%7] = true
	}
	fullDOW := make(intSet)
	for v := 0; v <= 6; v++ {
		fullDOW[v] = true
	}

	dayUnrestricted := s.days.equal(fullSet(fieldDay)) && !s.dayLast
	dowUnrestricted := s.weekdays.equal(fullDOW) && len(s.nthWeekdays) == 0

	// Standard cron semantics: if exactly one of day-of-month and
	// day-of-week is restricted, only the restricted one constrains. If
	// both are restricted, a day matching either one matches.
	if dayUnrestricted && !dowUnrestricted {
		s.days = make(intSet)
	}
	if dowUnrestricted && !dayUnrestricted {
		s.weekdays = make(intSet)
	}

	// Reject day-of-month values that no allowed month can ever reach.
	if len(s.days) > 0 && !s.dayLast && s.days.min() > 29 {
		maxDays := 0
		for m := range s.months {
			if daysInMonth[m] > maxDays {
				maxDays = daysInMonth[m]
			}
		}
		if s.days.min() > maxDays {
			return nil, syntaxErr(expr, "day-of-month %d is out of reach for the allowed months", s.days.min())
		}
	}

	loc := from.Location()
	s.loc = loc
	s.dt = time.Date(from.Year(), from.Month(), from.Day(), from.Hour(), from.Minute(), 0, 0, loc)

	if loc != time.UTC && loc != nil {
		// Jobs firing at a small number of specific wall-clock times per
		// day are computed in naive wall-clock time and localized at the
		// very end, mimicking conventional cron behavior around DST
		// transitions. Jobs with "*" minutes or hours step through real
		// time instead and let zone normalization do its thing.
		if !strings.HasPrefix(parts[0], "*") && !strings.HasPrefix(parts[1], "*") {
			s.fixupLoc = loc
			s.loc = time.UTC
			s.dt = time.Date(from.Year(), from.Month(), from.Day(), from.Hour(), from.Minute(), 0, 0, time.UTC)
		}
	}

	return s, nil
}

func (s *CronSim) tick(minutes int) {
	s.dt = s.dt.Add(time.Duration(minutes) * time.Minute)
}

// advanceMinute rolls the minute component forward until it satisfies the
// constraints. Reports whether the cursor moved.
func (s *CronSim) advanceMinute() bool {
	if s.minutes[s.dt.Minute()] {
		return false
	}

	if len(s.minutes) == 1 {
		// Jump straight to the target minute instead of looping.
		target := s.minutes.min()
		delta := (target - s.dt.Minute() + 60) % 60
		s.tick(delta)
	}

	for !s.minutes[s.dt.Minute()] {
		s.tick(1)
		if s.dt.Minute() == 0 {
			// Hour rolled over, re-check the higher-order fields.
			break
		}
	}
	return true
}

func (s *CronSim) advanceHour() bool {
	if s.hours[s.dt.Hour()] {
		return false
	}

	s.dt = time.Date(s.dt.Year(), s.dt.Month(), s.dt.Day(), s.dt.Hour(), 0, 0, 0, s.loc)
	for !s.hours[s.dt.Hour()] {
		s.tick(60)
		if s.dt.Hour() == 0 {
			// Day rolled over, re-check month and day.
			break
		}
	}
	return true
}

func (s *CronSim) matchDay(year int, month time.Month, day int) bool {
	if s.days[day] {
		return true
	}

	if s.dayLast && day == lastDayOfMonth(year, month) {
		return true
	}

	dow := int(time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Weekday())
	if s.weekdays[dow] {
		return true
	}

	idx := (day + 6) / 7
	return s.nthWeekdays[nthDay{dow: dow, nth: idx}]
}

func (s *CronSim) advanceDay() bool {
	y, m, d := s.dt.Date()
	if s.matchDay(y, m, d) {
		return false
	}

	for !s.matchDay(y, m, d) {
		y, m, d = nextDate(y, m, d)
		if d == 1 {
			// A new month, re-check the month constraint first.
			break
		}
	}

	s.dt = time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	return true
}

func (s *CronSim) advanceMonth() {
	if s.months[int(s.dt.Month())] {
		return
	}

	y, m := s.dt.Year(), s.dt.Month()
	for !s.months[int(m)] {
		m++
		if m > time.December {
			m = time.January
			y++
		}
	}

	s.dt = time.Date(y, m, 1, 0, 0, 0, 0, s.loc)
}

// Next returns the next matching instant. The sequence is infinite and
// strictly increasing.
func (s *CronSim) Next() time.Time {
	s.tick(1)

	for {
		s.advanceMonth()

		if s.advanceDay() {
			continue
		}
		if s.advanceHour() {
			continue
		}
		if s.advanceMinute() {
			continue
		}

		if s.fixupLoc == nil {
			return s.dt
		}

		// Convert the naive wall-clock result to a zone-aware instant.
		t, ok := localizeWallClock(s.dt, s.fixupLoc)
		if !ok {
			// This wall-clock time does not exist (spring-forward gap).
			// Skip it and keep searching from the next candidate minute.
			s.tick(1)
			continue
		}
		return t
	}
}

// localizeWallClock maps a naive wall-clock time onto loc. On an ambiguous
// repeated time (fall-back) it picks the earlier, DST occurrence. Reports
// ok=false for wall-clock times that do not exist in loc.
func localizeWallClock(naive time.Time, loc *time.Location) (time.Time, bool) {
	y, mo, d := naive.Date()
	h, mi := naive.Hour(), naive.Minute()

	t := time.Date(y, mo, d, h, mi, 0, 0, loc)
	if t.Hour() != h || t.Minute() != mi || t.Day() != d {
		return time.Time{}, false
	}

	// If stepping back one hour lands on the same wall clock, the time is
	// ambiguous and t is the second occurrence; prefer the first one.
	if e := t.Add(-time.Hour); e.Hour() == h && e.Minute() == mi && e.Day() == d {
		return e, true
	}
	return t, true
}

func lastDayOfMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func nextDate(y int, m time.Month, d int) (int, time.Month, int) {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return t.Year(), t.Month(), t.Day()
}
