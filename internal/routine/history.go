package routine

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

// MaxHistoryDays is the widest history range served before clamping.
const MaxHistoryDays = 90

// History is the deduplicated completion history of one item.
type History struct {
	Events   []CompletionEvent            `json:"events"`
	ByWeek   map[string][]CompletionEvent `json:"byWeek"`
	ByMonth  map[string][]CompletionEvent `json:"byMonth"`
	Stats    HistoryStats                 `json:"stats"`
	Rejected []string                     `json:"rejected,omitempty"`
}

// HistoryStats summarizes a history's events.
type HistoryStats struct {
	Total         int `json:"total"`
	CurrentStreak int `json:"currentStreak"`
	LongestStreak int `json:"longestStreak"`
}

// BuildHistory flattens every stored shape of the records into one event per calendar day,
// ascending by date.
func BuildHistory(records []HistoryRecord, section Section, itemID string) History {
	return collect(records, section, itemID, nil)
}

// BuildHistoryInRange is BuildHistory restricted to events whose day lies within window.
func BuildHistoryInRange(records []HistoryRecord, section Section, itemID string, window Bounds) History {
	from, to := DateKey(window.Start), DateKey(window.End)
	return collect(records, section, itemID, func(key string) bool {
		return key >= from && key <= to
	})
}

func collect(records []HistoryRecord, section Section, itemID string, keep func(string) bool) History {
	ordered := slices.Clone(records)
	slices.SortStableFunc(ordered, func(a, b HistoryRecord) int {
		return a.Date.Compare(b.Date)
	})

	seen := make(map[string]struct{})
	var events []CompletionEvent
	var rejected []string

	for _, rec := range ordered {
		for _, adapt := range Adapters {
			found, bad := adapt(rec, section, itemID)
			rejected = append(rejected, bad...)
			for _, ev := range found {
				if keep != nil && !keep(ev.Date) {
					continue
				}
				if _, dup := seen[ev.Date]; dup {
					continue
				}
				seen[ev.Date] = struct{}{}
				events = append(events, ev)
			}
		}
	}

	slices.SortStableFunc(events, func(a, b CompletionEvent) int {
		return cmp.Compare(a.Date, b.Date)
	})

	h := History{
		Events:   events,
		ByWeek:   make(map[string][]CompletionEvent),
		ByMonth:  make(map[string][]CompletionEvent),
		Rejected: rejected,
	}
	if h.Events == nil {
		h.Events = []CompletionEvent{}
	}

	for _, ev := range events {
		d, err := time.Parse(DateLayout, ev.Date)
		if err != nil {
			continue
		}
		week := DateKey(WeekStart(d))
		month := d.Format("2006-01")
		h.ByWeek[week] = append(h.ByWeek[week], ev)
		h.ByMonth[month] = append(h.ByMonth[month], ev)
	}

	h.Stats = HistoryStats{Total: len(events)}
	h.Stats.CurrentStreak, h.Stats.LongestStreak = streaks(events)
	return h
}

// streaks measures runs of consecutive calendar days over sorted events. The current
// streak is the run ending at the latest event.
func streaks(events []CompletionEvent) (current, longest int) {
	if len(events) == 0 {
		return 0, 0
	}

	current, longest = 1, 1
	prev, _ := time.Parse(DateLayout, events[0].Date)
	for _, ev := range events[1:] {
		d, err := time.Parse(DateLayout, ev.Date)
		if err != nil {
			continue
		}
		if daysBetween(prev, d) == 1 {
			current++
		} else {
			current = 1
		}
		longest = max(longest, current)
		prev = d
	}
	return current, longest
}

// RangeClamp describes a history window after limiting its width.
type RangeClamp struct {
	Window    Bounds `json:"window"`
	Clamped   bool   `json:"clamped"`
	Requested Bounds `json:"requested"`
}

// ClampRange normalizes start and end to whole days and limits the span to maxDays
// (MaxHistoryDays when maxDays < 1), counted from start.
func ClampRange(start, end time.Time, maxDays int) (RangeClamp, error) {
	if maxDays < 1 {
		maxDays = MaxHistoryDays
	}

	from := StartOfDay(start)
	to := StartOfDay(end)
	if to.Before(from) {
		return RangeClamp{}, fmt.Errorf("%w: range end %s is before start %s", ErrInvalidDate, DateKey(to), DateKey(from))
	}

	out := RangeClamp{Requested: Bounds{Start: from, End: EndOfDay(to)}}
	if daysBetween(from, to)+1 > maxDays {
		to = from.AddDate(0, 0, maxDays-1)
		out.Clamped = true
	}
	out.Window = Bounds{Start: from, End: EndOfDay(to)}
	return out, nil
}
