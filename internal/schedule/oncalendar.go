package schedule

import (
	"strconv"
	"strings"
	"time"
)

// Year values outside this window are a syntax error; an iterator that runs
// past maxYear is exhausted.
const (
	minYear = 1970
	maxYear = 2199
)

var weekdayNames = map[string]int{
	"SUN": 0, "SUNDAY": 0,
	"MON": 1, "MONDAY": 1,
	"TUE": 2, "TUESDAY": 2,
	"WED": 3, "WEDNESDAY": 3,
	"THU": 4, "THURSDAY": 4,
	"FRI": 5, "FRIDAY": 5,
	"SAT": 6, "SATURDAY": 6,
}

// onCalExpr is a single parsed OnCalendar-style expression:
//
//	[DOW[,DOW..DOW]] [[YYYY-]MM-DD] [HH:MM[:SS]]
//
// Each date/time component accepts "*", plain values, "a..b" ranges,
// "/step" suffixes and comma-separated lists. Unlike cron, a restricted
// weekday list is ANDed with the day-of-month constraint.
type onCalExpr struct {
	years    intSet
	months   intSet
	days     intSet
	hours    intSet
	minutes  intSet
	seconds  intSet
	weekdays intSet // empty means unrestricted

	dt       time.Time
	loc      *time.Location
	fixupLoc *time.Location
	done     bool
}

// parseOnCalComponent parses one date/time component into a value set.
func parseOnCalComponent(expr, s string, lo, hi int) (intSet, error) {
	out := make(intSet)
	if s == "*" {
		for v := lo; v <= hi; v++ {
			out[v] = true
		}
		return out, nil
	}

	for _, term := range strings.Split(s, ",") {
		step := 1
		if base, stepStr, found := strings.Cut(term, "/"); found {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n == 0 {
				return nil, syntaxErr(expr, "bad step %q", stepStr)
			}
			step = n
			term = base
		}

		start, end := term, term
		if a, b, isRange := strings.Cut(term, ".."); isRange {
			start, end = a, b
		} else if term == "*" {
			start, end = strconv.Itoa(lo), strconv.Itoa(hi)
		} else if step > 1 {
			// "n/step" extends to the top of the range, as in systemd.
			end = strconv.Itoa(hi)
		}

		a, err := strconv.Atoi(start)
		if err != nil {
			return nil, syntaxErr(expr, "bad value %q", start)
		}
		b, err := strconv.Atoi(end)
		if err != nil {
			return nil, syntaxErr(expr, "bad value %q", end)
		}
		if a < lo || b > hi {
			return nil, syntaxErr(expr, "value out of range in %q", term)
		}
		if b < a {
			return nil, syntaxErr(expr, "range end cannot be smaller than start")
		}
		for v := a; v <= b; v += step {
			out[v] = true
		}
	}
	return out, nil
}

func parseOnCalWeekdays(expr, s string) (intSet, error) {
	out := make(intSet)
	for _, term := range strings.Split(s, ",") {
		start, end := term, term
		if a, b, isRange := strings.Cut(term, ".."); isRange {
			start, end = a, b
		}

		a, ok := weekdayNames[strings.ToUpper(start)]
		if !ok {
			return nil, syntaxErr(expr, "bad weekday %q", start)
		}
		b, ok := weekdayNames[strings.ToUpper(end)]
		if !ok {
			return nil, syntaxErr(expr, "bad weekday %q", end)
		}

		// Ranges wrap through the end of the week: Fri..Mon is valid.
		for v := a; ; v = (v + 1) % 7 {
			out[v] = true
			if v == b {
				break
			}
		}
	}
	return out, nil
}

func newOnCalExpr(expr string, from time.Time) (*onCalExpr, error) {
	parts := strings.Fields(expr)
	if len(parts) == 0 || len(parts) > 3 {
		return nil, syntaxErr(expr, "expected 1 to 3 components, got %d", len(parts))
	}

	e := &onCalExpr{weekdays: make(intSet)}
	datePart, timePart := "", ""

	for i, part := range parts {
		switch {
		case i == 0 && part[0] >= 'A' && part[0] <= 'z' && !strings.ContainsAny(part, ":-"):
			wd, err := parseOnCalWeekdays(expr, part)
			if err != nil {
				return nil, err
			}
			e.weekdays = wd
		case strings.Contains(part, ":"):
			if timePart != "" {
				return nil, syntaxErr(expr, "duplicate time component")
			}
			timePart = part
		case strings.Contains(part, "-"):
			if datePart != "" {
				return nil, syntaxErr(expr, "duplicate date component")
			}
			datePart = part
		default:
			return nil, syntaxErr(expr, "unrecognized component %q", part)
		}
	}

	var err error
	e.years, err = parseOnCalComponent(expr, "*", minYear, maxYear)
	if err != nil {
		return nil, err
	}
	e.months = fullSet(fieldMonth)
	e.days = fullSet(fieldDay)

	if datePart != "" {
		pieces := strings.Split(datePart, "-")
		if len(pieces) == 2 {
			pieces = append([]string{"*"}, pieces...)
		}
		if len(pieces) != 3 {
			return nil, syntaxErr(expr, "bad date component %q", datePart)
		}
		if e.years, err = parseOnCalComponent(expr, pieces[0], minYear, maxYear); err != nil {
			return nil, err
		}
		if e.months, err = parseOnCalComponent(expr, pieces[1], 1, 12); err != nil {
			return nil, err
		}
		if e.days, err = parseOnCalComponent(expr, pieces[2], 1, 31); err != nil {
			return nil, err
		}
	}

	// Time defaults to midnight when omitted.
	e.hours = intSet{0: true}
	e.minutes = intSet{0: true}
	e.seconds = intSet{0: true}
	restrictedTime := true

	if timePart != "" {
		pieces := strings.Split(timePart, ":")
		if len(pieces) == 2 {
			pieces = append(pieces, "0")
		}
		if len(pieces) != 3 {
			return nil, syntaxErr(expr, "bad time component %q", timePart)
		}
		if e.hours, err = parseOnCalComponent(expr, pieces[0], 0, 23); err != nil {
			return nil, err
		}
		if e.minutes, err = parseOnCalComponent(expr, pieces[1], 0, 59); err != nil {
			return nil, err
		}
		if e.seconds, err = parseOnCalComponent(expr, pieces[2], 0, 59); err != nil {
			return nil, err
		}
		restrictedTime = !strings.HasPrefix(pieces[0], "*") && !strings.HasPrefix(pieces[1], "*")
	}

	// Same day-of-month sanity check as cron: a day no allowed month can
	// reach is a configuration error, not an infinite loop.
	if e.days.min() > 29 {
		maxDays := 0
		for m := range e.months {
			if daysInMonth[m] > maxDays {
				maxDays = daysInMonth[m]
			}
		}
		if e.days.min() > maxDays {
			return nil, syntaxErr(expr, "day-of-month %d is out of reach for the allowed months", e.days.min())
		}
	}

	loc := from.Location()
	e.loc = loc
	e.dt = time.Date(from.Year(), from.Month(), from.Day(), from.Hour(), from.Minute(), from.Second(), 0, loc)

	if loc != time.UTC && restrictedTime {
		e.fixupLoc = loc
		e.loc = time.UTC
		e.dt = time.Date(from.Year(), from.Month(), from.Day(), from.Hour(), from.Minute(), from.Second(), 0, time.UTC)
	}

	return e, nil
}

func (e *onCalExpr) matchDay(y int, m time.Month, d int) bool {
	if !e.days[d] {
		return false
	}
	if len(e.weekdays) == 0 {
		return true
	}
	dow := int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Weekday())
	return e.weekdays[dow]
}

// next advances the cursor to the next matching instant. Reports ok=false
// once the year range is exhausted.
func (e *onCalExpr) next() (time.Time, bool) {
	if e.done {
		return time.Time{}, false
	}
	e.dt = e.dt.Add(time.Second)

	for {
		y, m, d := e.dt.Date()
		if y > maxYear {
			e.done = true
			return time.Time{}, false
		}

		if !e.years[y] {
			e.dt = time.Date(y+1, time.January, 1, 0, 0, 0, 0, e.loc)
			continue
		}
		if !e.months[int(m)] {
			m++
			if m > time.December {
				m = time.January
				y++
			}
			e.dt = time.Date(y, m, 1, 0, 0, 0, 0, e.loc)
			continue
		}
		if !e.matchDay(y, m, d) {
			ny, nm, nd := nextDate(y, m, d)
			e.dt = time.Date(ny, nm, nd, 0, 0, 0, 0, e.loc)
			continue
		}
		if !e.hours[e.dt.Hour()] {
			e.dt = time.Date(y, m, d, e.dt.Hour()+1, 0, 0, 0, e.loc)
			continue
		}
		if !e.minutes[e.dt.Minute()] {
			e.dt = time.Date(y, m, d, e.dt.Hour(), e.dt.Minute()+1, 0, 0, e.loc)
			continue
		}
		if !e.seconds[e.dt.Second()] {
			e.dt = e.dt.Add(time.Second)
			continue
		}

		if e.fixupLoc == nil {
			return e.dt, true
		}

		t, ok := localizeWallClockSec(e.dt, e.fixupLoc)
		if !ok {
			e.dt = e.dt.Add(time.Minute)
			continue
		}
		return t, true
	}
}

// localizeWallClockSec is localizeWallClock with second precision; DST
// offsets never split a minute, so the existence checks stay the same.
func localizeWallClockSec(naive time.Time, loc *time.Location) (time.Time, bool) {
	y, mo, d := naive.Date()
	h, mi, sec := naive.Hour(), naive.Minute(), naive.Second()

	t := time.Date(y, mo, d, h, mi, sec, 0, loc)
	if t.Hour() != h || t.Minute() != mi || t.Day() != d {
		return time.Time{}, false
	}
	if e := t.Add(-time.Hour); e.Hour() == h && e.Minute() == mi && e.Day() == d {
		return e, true
	}
	return t, true
}

// OnCalendar iterates future instants matching one or more newline-separated
// OnCalendar-style expressions, merging them into a single increasing
// sequence.
type OnCalendar struct {
	exprs  []*onCalExpr
	peeked []time.Time
	valid  []bool
}

func NewOnCalendar(spec string, from time.Time) (*OnCalendar, error) {
	o := &OnCalendar{}
	for _, line := range strings.Split(spec, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		e, err := newOnCalExpr(line, from)
		if err != nil {
			return nil, err
		}
		o.exprs = append(o.exprs, e)
	}
	if len(o.exprs) == 0 {
		return nil, syntaxErr(spec, "empty expression")
	}

	o.peeked = make([]time.Time, len(o.exprs))
	o.valid = make([]bool, len(o.exprs))
	for i, e := range o.exprs {
		o.peeked[i], o.valid[i] = e.next()
	}
	return o, nil
}

// Next returns the earliest upcoming instant across all expressions.
// Reports ok=false once every expression is exhausted.
func (o *OnCalendar) Next() (time.Time, bool) {
	best := -1
	for i := range o.exprs {
		if !o.valid[i] {
			continue
		}
		if best == -1 || o.peeked[i].Before(o.peeked[best]) {
			best = i
		}
	}
	if best == -1 {
		return time.Time{}, false
	}

	result := o.peeked[best]
	// Advance every expression sitting on the same instant so duplicates
	// collapse into one.
	for i := range o.exprs {
		if o.valid[i] && o.peeked[i].Equal(result) {
			o.peeked[i], o.valid[i] = o.exprs[i].next()
		}
	}
	return result, true
}
