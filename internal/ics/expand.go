package ics

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "slidecycle/internal/log"
	"slidecycle/internal/model"
	"slidecycle/internal/schedule"
)

// Window returns the period a key covers: the calendar day containing t
// for date keys, the ISO week (Monday to Monday) for week keys.
func Window(mode model.KeyMode, t time.Time) (start, end time.Time, err error) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch mode {
	case model.KeyDate:
		return day, day.AddDate(0, 0, 1), nil
	case model.KeyWeek:
		offset := (int(day.Weekday()) + 6) % 7 // days since Monday
		monday := day.AddDate(0, 0, -offset)
		return monday, monday.AddDate(0, 0, 7), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("ics: unknown key mode %q", mode)
	}
}

type occurrence struct {
	start   time.Time
	summary string
}

// EntriesFor turns events active during the key window around now into
// schedule entries keyed with now's key, ordered by occurrence start. The
// entries therefore always match the run's key; a later one wins.
func EntriesFor(events []Event, mode model.KeyMode, now time.Time) ([]model.Entry, error) {
	key, err := schedule.KeyFor(mode, now)
	if err != nil {
		return nil, err
	}
	rangeStart, rangeEnd, err := Window(mode, now)
	if err != nil {
		return nil, err
	}

	overrides := make(map[string][]Event)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		}
	}

	var occs []occurrence
	for _, ev := range events {
		if ev.IsOverride() || ev.RawRRule == "" {
			if overlaps(ev.Start, ev.End, rangeStart, rangeEnd) {
				occs = append(occs, occurrence{start: ev.Start, summary: ev.Summary})
			}
			continue
		}
		occs = append(occs, expandRecurring(ev, overrides[ev.UID], rangeStart, rangeEnd)...)
	}

	sort.SliceStable(occs, func(i, j int) bool { return occs[i].start.Before(occs[j].start) })

	out := make([]model.Entry, 0, len(occs))
	for _, o := range occs {
		out = append(out, model.Entry{Key: key, Value: o.summary})
	}
	return out, nil
}

func expandRecurring(ev Event, overrides []Event, rangeStart, rangeEnd time.Time) []occurrence {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Warn("ics: failed to parse RRULE", "uid", ev.UID, "rrule", ev.RawRRule, "err", err)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the lower bound by the event duration so occurrences that
	// started earlier but still run into the window are found.
	dur := ev.End.Sub(ev.Start)
	after := rangeStart.Add(-dur).In(ev.Start.Location())
	before := rangeEnd.In(ev.Start.Location())

	var out []occurrence
	for _, start := range set.Between(after, before, true) {
		if overridden(overrides, start) {
			continue
		}
		if overlaps(start, start.Add(dur), rangeStart, rangeEnd) {
			out = append(out, occurrence{start: start, summary: ev.Summary})
		}
	}
	return out
}

func overridden(overrides []Event, start time.Time) bool {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return true
		}
	}
	return false
}

// overlaps reports whether [start, end) intersects [rangeStart, rangeEnd).
// Zero-length events count when their instant lies in the range.
func overlaps(start, end, rangeStart, rangeEnd time.Time) bool {
	if !end.After(start) {
		return !start.Before(rangeStart) && start.Before(rangeEnd)
	}
	return start.Before(rangeEnd) && end.After(rangeStart)
}
