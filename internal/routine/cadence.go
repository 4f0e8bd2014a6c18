package routine

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// CadenceType selects the rule deciding when an item is due.
type CadenceType string

const (
	CadenceDaily   CadenceType = "DAILY"
	CadenceWeekly  CadenceType = "WEEKLY"
	CadenceMonthly CadenceType = "MONTHLY"
	CadenceCustom  CadenceType = "CUSTOM"
)

// Period is the calendar unit a CUSTOM cadence counts in.
type Period string

const (
	PeriodDay   Period = "EVERY_DAY"
	PeriodWeek  Period = "EVERY_WEEK"
	PeriodMonth Period = "EVERY_MONTH"
)

// Bounds is an inclusive [Start, End] window.
type Bounds struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Completion is a single completion inside the active period.
type Completion struct {
	Date  time.Time `json:"date"`
	Value int       `json:"value"`
}

// CadenceConfig holds an item's cadence rule plus the tracker state for its current period.
type CadenceConfig struct {
	Type        CadenceType `json:"tipo"`
	Period      Period      `json:"periodo"`
	Frequency   int         `json:"frecuencia"`
	DaysOfWeek  []int       `json:"diasSemana,omitempty"`
	DaysOfMonth []int       `json:"diasMes,omitempty"`
	Active      bool        `json:"activo"`

	LastCompletion *time.Time `json:"ultimaCompletacion,omitempty"`
	// PreviousCompletion is the latest completion on a calendar day before LastCompletion's.
	PreviousCompletion  *time.Time   `json:"completacionAnterior,omitempty"`
	ProgressCurrent     int          `json:"progresoActual"`
	CurrentPeriod       *Bounds      `json:"periodoActual,omitempty"`
	CompletionsInPeriod []Completion `json:"completacionesPeriodo,omitempty"`
}

// DefaultCadence is the built-in config for items with no request or template config.
func DefaultCadence() CadenceConfig {
	return CadenceConfig{Type: CadenceDaily, Period: PeriodDay, Frequency: 1, Active: true}
}

// UnmarshalJSON starts from DefaultCadence so documents written before a field existed
// (notably "activo") decode as active daily items.
func (c *CadenceConfig) UnmarshalJSON(data []byte) error {
	type plain CadenceConfig
	decoded := plain(DefaultCadence())
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*c = CadenceConfig(decoded)
	return nil
}

// ParseCadenceType accepts the enum name and its lowercase spellings.
func ParseCadenceType(raw string) (CadenceType, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", "DAILY", "DIARIO":
		return CadenceDaily, nil
	case "WEEKLY", "SEMANAL":
		return CadenceWeekly, nil
	case "MONTHLY", "MENSUAL":
		return CadenceMonthly, nil
	case "CUSTOM", "PERSONALIZADO":
		return CadenceCustom, nil
	}
	return "", fmt.Errorf("%w: unsupported type %q", ErrInvalidCadence, raw)
}

// ParsePeriod accepts the enum name and the bare unit.
func ParsePeriod(raw string) (Period, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", "EVERY_DAY", "DAY", "CADA_DIA":
		return PeriodDay, nil
	case "EVERY_WEEK", "WEEK", "CADA_SEMANA":
		return PeriodWeek, nil
	case "EVERY_MONTH", "MONTH", "CADA_MES":
		return PeriodMonth, nil
	}
	return "", fmt.Errorf("%w: unsupported period %q", ErrInvalidCadence, raw)
}

// Validate checks the rule fields without touching tracker state.
func (c CadenceConfig) Validate() error {
	if _, err := ParseCadenceType(string(c.Type)); err != nil {
		return err
	}
	if _, err := ParsePeriod(string(c.Period)); err != nil {
		return err
	}
	if c.Frequency < 0 {
		return fmt.Errorf("%w: frequency must be positive", ErrInvalidCadence)
	}
	return nil
}

// Normalize returns a copy with defaults applied and invariants restored.
func (c CadenceConfig) Normalize() CadenceConfig {
	out := c.Clone()

	if t, err := ParseCadenceType(string(out.Type)); err == nil {
		out.Type = t
	} else {
		out.Type = CadenceDaily
	}
	if p, err := ParsePeriod(string(out.Period)); err == nil {
		out.Period = p
	} else {
		out.Period = PeriodDay
	}
	if out.Frequency < 1 {
		out.Frequency = 1
	}
	if out.ProgressCurrent < 0 {
		out.ProgressCurrent = 0
	}
	out.DaysOfWeek = filterRange(out.DaysOfWeek, 0, 6)
	out.DaysOfMonth = filterRange(out.DaysOfMonth, 1, 31)
	if out.CurrentPeriod != nil && out.CurrentPeriod.End.Before(out.CurrentPeriod.Start) {
		out.CurrentPeriod = &Bounds{Start: out.CurrentPeriod.End, End: out.CurrentPeriod.Start}
	}

	return out
}

// Clone returns a copy that shares no slices or pointers with c.
func (c CadenceConfig) Clone() CadenceConfig {
	out := c
	out.DaysOfWeek = slices.Clone(c.DaysOfWeek)
	out.DaysOfMonth = slices.Clone(c.DaysOfMonth)
	out.CompletionsInPeriod = slices.Clone(c.CompletionsInPeriod)
	if c.LastCompletion != nil {
		v := *c.LastCompletion
		out.LastCompletion = &v
	}
	if c.PreviousCompletion != nil {
		v := *c.PreviousCompletion
		out.PreviousCompletion = &v
	}
	if c.CurrentPeriod != nil {
		v := *c.CurrentPeriod
		out.CurrentPeriod = &v
	}
	return out
}

func filterRange(values []int, lo, hi int) []int {
	if len(values) == 0 {
		return nil
	}
	out := make([]int, 0, len(values))
	for _, v := range values {
		if v >= lo && v <= hi && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// IsDue decides whether the item should be completed on now's calendar date.
// Calendar comparisons use the fields of now's location. A nil config is due.
func IsDue(cfg *CadenceConfig, now time.Time) bool {
	if cfg == nil {
		return true
	}
	return dueWithLast(cfg, cfg.LastCompletion, now)
}

// DueOn decides whether the item was due on the given day, as of the start of that
// day: a completion made on the day itself does not count against it.
func DueOn(cfg *CadenceConfig, dayInLoc time.Time) bool {
	if cfg == nil {
		return true
	}
	last := cfg.LastCompletion
	if last != nil && !last.In(dayInLoc.Location()).Before(dayStart(dayInLoc)) {
		last = cfg.PreviousCompletion
		if last != nil && !last.In(dayInLoc.Location()).Before(dayStart(dayInLoc)) {
			last = nil
		}
	}
	return dueWithLast(cfg, last, dayInLoc)
}

func dueWithLast(cfg *CadenceConfig, last *time.Time, now time.Time) bool {
	if !cfg.Active {
		return false
	}
	if last == nil {
		return true
	}

	lastLocal := last.In(now.Location())

	switch cfg.Type {
	case CadenceWeekly:
		return lastLocal.Before(WeekStart(now))
	case CadenceMonthly:
		return lastLocal.Before(MonthStart(now))
	case CadenceCustom:
		return elapsedUnits(cfg.Period, lastLocal, now) >= max(1, cfg.Frequency)
	default:
		return !sameDate(lastLocal, now)
	}
}

func elapsedUnits(period Period, from, to time.Time) int {
	switch period {
	case PeriodWeek:
		return daysBetween(from, to) / 7
	case PeriodMonth:
		return monthsBetween(from, to)
	default:
		return daysBetween(from, to)
	}
}

// PeriodBounds returns the calendar window containing now for the config's unit.
// CUSTOM uses its period unit; frequency never widens the window.
func PeriodBounds(cfg *CadenceConfig, now time.Time) Bounds {
	unit := PeriodDay
	if cfg != nil {
		switch cfg.Type {
		case CadenceWeekly:
			unit = PeriodWeek
		case CadenceMonthly:
			unit = PeriodMonth
		case CadenceCustom:
			unit = cfg.Period
		}
	}

	var start, next time.Time
	switch unit {
	case PeriodWeek:
		start = WeekStart(now)
		next = start.AddDate(0, 0, 7)
	case PeriodMonth:
		start = MonthStart(now)
		next = start.AddDate(0, 1, 0)
	default:
		start = dayStart(now)
		next = start.AddDate(0, 0, 1)
	}

	return Bounds{Start: start, End: next.Add(-time.Millisecond)}
}

// ScheduledOn consults the advisory day-of-week and day-of-month filters.
// An item with no filters is scheduled every day.
func ScheduledOn(cfg *CadenceConfig, dayInLoc time.Time) bool {
	if cfg == nil {
		return true
	}
	if len(cfg.DaysOfWeek) > 0 && !slices.Contains(cfg.DaysOfWeek, int(dayInLoc.Weekday())) {
		return false
	}
	if len(cfg.DaysOfMonth) > 0 && !slices.Contains(cfg.DaysOfMonth, dayInLoc.Day()) {
		return false
	}
	return true
}

// HasTracker reports whether any progress-tracking state is set.
func (c CadenceConfig) HasTracker() bool {
	return c.LastCompletion != nil || c.PreviousCompletion != nil || c.CurrentPeriod != nil ||
		c.ProgressCurrent != 0 || len(c.CompletionsInPeriod) > 0
}

// WithTrackerFrom returns c's rule fields combined with prev's tracker state.
func (c CadenceConfig) WithTrackerFrom(prev CadenceConfig) CadenceConfig {
	out := c.Clone()
	p := prev.Clone()
	out.LastCompletion = p.LastCompletion
	out.PreviousCompletion = p.PreviousCompletion
	out.ProgressCurrent = p.ProgressCurrent
	out.CurrentPeriod = p.CurrentPeriod
	out.CompletionsInPeriod = p.CompletionsInPeriod
	return out
}

// RuleOnly returns a copy with all tracker state cleared.
func (c CadenceConfig) RuleOnly() CadenceConfig {
	return c.WithTrackerFrom(CadenceConfig{})
}
