package routine

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Source tags which stored shape a completion event was recovered from.
type Source string

const (
	SourceDirect     Source = "direct"
	SourceHistoryMap Source = "history_map"
	SourceSnapshot   Source = "snapshot"
	SourceWeekly     Source = "completions_by_week"
)

// LegacyHistory carries the completion shapes written by older record versions.
type LegacyHistory struct {
	// History maps section, then date key, then item id to a completed flag.
	History map[Section]map[string]map[string]bool `json:"historial,omitempty"`
	// Snapshots are full per-date copies of a routine's sections.
	Snapshots []Snapshot `json:"historialRutinas,omitempty"`
	// CompletionsByWeek maps section, then item id, to the dates it was completed.
	CompletionsByWeek map[Section]map[string]WeekCompletions `json:"completacionesPorSemana,omitempty"`
}

// Empty reports whether no legacy shape holds any data.
func (l LegacyHistory) Empty() bool {
	return len(l.History) == 0 && len(l.Snapshots) == 0 && len(l.CompletionsByWeek) == 0
}

// Snapshot is an embedded copy of a routine's sections for one date.
type Snapshot struct {
	Date     string   `json:"fecha"`
	Sections Sections `json:"secciones"`
}

// WeekCompletions is a list of completion date strings. It decodes from either a JSON
// array of strings or an object of date string to boolean (true entries only).
type WeekCompletions []string

func (w *WeekCompletions) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*w = list
		return nil
	}

	var flags map[string]bool
	if err := json.Unmarshal(data, &flags); err != nil {
		return err
	}
	out := make([]string, 0, len(flags))
	for date, done := range flags {
		if done {
			out = append(out, date)
		}
	}
	sort.Strings(out)
	*w = out
	return nil
}

// HistoryRecord is the read-side view of a stored routine used by the aggregator.
type HistoryRecord struct {
	ID       uuid.UUID
	Date     time.Time
	Sections Sections
	Legacy   LegacyHistory
}

// CompletionEvent is one recovered completion of an item on a calendar day.
type CompletionEvent struct {
	Section   Section   `json:"section"`
	ItemID    string    `json:"itemId"`
	Date      string    `json:"date"`
	RoutineID uuid.UUID `json:"routineId"`
	Source    Source    `json:"source"`
}

// Adapter recovers completion events for one item from one stored shape. Date
// strings that cannot be parsed are returned separately.
type Adapter func(rec HistoryRecord, section Section, itemID string) (events []CompletionEvent, rejected []string)

// Adapters lists the shape adapters in probing order. Earlier adapters win ties.
var Adapters = []Adapter{directAdapter, historyMapAdapter, snapshotAdapter, weeklyAdapter}

func newEvent(rec HistoryRecord, section Section, itemID string, date time.Time, src Source) CompletionEvent {
	return CompletionEvent{
		Section:   section,
		ItemID:    itemID,
		Date:      DateKey(date),
		RoutineID: rec.ID,
		Source:    src,
	}
}

func directAdapter(rec HistoryRecord, section Section, itemID string) ([]CompletionEvent, []string) {
	if done, ok := rec.Sections.Get(section, itemID); !ok || !done || rec.Date.IsZero() {
		return nil, nil
	}
	return []CompletionEvent{newEvent(rec, section, itemID, StartOfDay(rec.Date), SourceDirect)}, nil
}

func historyMapAdapter(rec HistoryRecord, section Section, itemID string) ([]CompletionEvent, []string) {
	byDate := rec.Legacy.History[section]
	if len(byDate) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(byDate))
	for k := range byDate {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var events []CompletionEvent
	var rejected []string
	for _, key := range keys {
		if !byDate[key][itemID] {
			continue
		}
		date, err := ParseDate(key)
		if err != nil {
			rejected = append(rejected, key)
			continue
		}
		events = append(events, newEvent(rec, section, itemID, date, SourceHistoryMap))
	}
	return events, rejected
}

func snapshotAdapter(rec HistoryRecord, section Section, itemID string) ([]CompletionEvent, []string) {
	var events []CompletionEvent
	var rejected []string
	for _, snap := range rec.Legacy.Snapshots {
		if done, ok := snap.Sections.Get(section, itemID); !ok || !done {
			continue
		}
		date, err := ParseDate(snap.Date)
		if err != nil {
			rejected = append(rejected, snap.Date)
			continue
		}
		events = append(events, newEvent(rec, section, itemID, date, SourceSnapshot))
	}
	return events, rejected
}

func weeklyAdapter(rec HistoryRecord, section Section, itemID string) ([]CompletionEvent, []string) {
	dates := rec.Legacy.CompletionsByWeek[section][itemID]
	var events []CompletionEvent
	var rejected []string
	for _, raw := range dates {
		date, err := ParseDate(raw)
		if err != nil {
			rejected = append(rejected, raw)
			continue
		}
		events = append(events, newEvent(rec, section, itemID, date, SourceWeekly))
	}
	return events, rejected
}
