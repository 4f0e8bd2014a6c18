package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/rutinas/internal/db"
	"github.com/rutinas/internal/logger"
	"github.com/rutinas/internal/routine"
)

// ErrRoutineNotFound is returned when a routine does not exist or belongs to another user.
var ErrRoutineNotFound = errors.New("routine not found")

// RoutineStore is the storage the routine service runs against.
type RoutineStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*db.Routine, error)
	FindRoutine(ctx context.Context, userID uuid.UUID, date time.Time) (*db.Routine, error)
	FindLatestBefore(ctx context.Context, userID uuid.UUID, date time.Time) (*db.Routine, error)
	FindRoutinesInRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]db.Routine, error)
	ExistsForDate(ctx context.Context, userID uuid.UUID, date time.Time, exclude uuid.UUID) (uuid.UUID, bool, error)
	InsertRoutine(ctx context.Context, r *db.Routine) error
	UpdateRoutine(ctx context.Context, id uuid.UUID, patch db.RoutinePatch) (*db.Routine, error)
	Mutate(ctx context.Context, id uuid.UUID, fn func(*db.Routine) error) (*db.Routine, error)
}

// UserDirectory supplies the per-user preferences routines depend on.
type UserDirectory interface {
	EnsureUser(ctx context.Context, userID uuid.UUID) (*db.User, error)
	Timezone(ctx context.Context, userID uuid.UUID) (string, error)
	Template(ctx context.Context, userID uuid.UUID) (*db.RoutineTemplate, error)
}

// CreateRoutineInput describes a new routine. Sections and Config are optional and
// take precedence over the user's template. Completion flags always start false.
type CreateRoutineInput struct {
	Date     string
	Sections routine.Sections
	Config   routine.ConfigSet
}

// HistoryQuery selects one item's history. Empty dates default to a window ending today.
type HistoryQuery struct {
	Section string
	ItemID  string
	Start   string
	End     string
}

// HistoryResult is an item's history plus the effective range.
type HistoryResult struct {
	routine.History
	Range   routine.RangeClamp `json:"range"`
	Warning string             `json:"warning,omitempty"`
}

// RoutineService orchestrates the routine engine over the store.
type RoutineService struct {
	store   RoutineStore
	users   UserDirectory
	guard   *DuplicateGuard
	maxDays int
	log     *logger.Logger
	now     func() time.Time
}

func NewRoutineService(store RoutineStore, users UserDirectory, maxDays int, log *logger.Logger) *RoutineService {
	if maxDays < 1 {
		maxDays = routine.MaxHistoryDays
	}
	return &RoutineService{
		store:   store,
		users:   users,
		guard:   NewDuplicateGuard(store, log),
		maxDays: maxDays,
		log:     log.With("service", "RoutineService"),
		now:     time.Now,
	}
}

// GetRoutine returns one of the user's routines.
func (s *RoutineService) GetRoutine(ctx context.Context, userID, routineID uuid.UUID) (*db.Routine, error) {
	r, err := s.store.FindByID(ctx, routineID)
	if err != nil {
		return nil, err
	}
	if r == nil || r.UserID != userID {
		return nil, ErrRoutineNotFound
	}
	return r, nil
}

// CreateRoutine creates the user's routine for the normalized input date.
// An existing routine for that day yields *routine.DuplicateRoutineError.
func (s *RoutineService) CreateRoutine(ctx context.Context, userID uuid.UUID, input CreateRoutineInput) (*db.Routine, error) {
	date, err := routine.ParseDate(input.Date)
	if err != nil {
		return nil, err
	}

	reqSections, reqConfigs, err := sanitizeItems(input.Sections, input.Config)
	if err != nil {
		return nil, err
	}

	if _, err := s.users.EnsureUser(ctx, userID); err != nil {
		return nil, err
	}
	tz, err := s.users.Timezone(ctx, userID)
	if err != nil {
		return nil, err
	}

	tpl, err := s.users.Template(ctx, userID)
	if err != nil {
		return nil, err
	}

	prev, err := s.store.FindLatestBefore(ctx, userID, date)
	if err != nil {
		return nil, err
	}

	sections, configs := resolveConfig(reqSections, reqConfigs, tpl, prev)
	rec := &db.Routine{
		UserID:   userID,
		Date:     date,
		Sections: datatypes.NewJSONType(sections),
		Config:   datatypes.NewJSONType(configs),
	}
	rec.SetRatios(routine.ComputeRatios(sections, configs, dayIn(date, routine.LoadLocation(tz))))

	if err := s.guard.Insert(ctx, rec); err != nil {
		return nil, err
	}

	s.log.Info("routine created", "routine_id", rec.ID, "user_id", userID, "date", routine.DateKey(date))
	return rec, nil
}

// GetOrCreateToday returns the user's routine for today in their timezone, creating it
// if needed. created reports whether this call inserted it.
func (s *RoutineService) GetOrCreateToday(ctx context.Context, userID uuid.UUID) (rec *db.Routine, created bool, err error) {
	tz, err := s.users.Timezone(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	today := routine.Today(s.now(), tz)

	existing, err := s.store.FindRoutine(ctx, userID, today)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	rec, err = s.CreateRoutine(ctx, userID, CreateRoutineInput{Date: routine.DateKey(today)})
	var dup *routine.DuplicateRoutineError
	if errors.As(err, &dup) {
		winner, findErr := s.store.FindByID(ctx, dup.ExistingID)
		if findErr != nil {
			return nil, false, findErr
		}
		if winner == nil {
			return nil, false, err
		}
		return winner, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// ToggleItem sets an item's completed flag. A false to true change records a completion,
// true to false reverts that day's completion; setting the stored value again is a no-op.
// Ratios are recomputed on every call.
func (s *RoutineService) ToggleItem(ctx context.Context, userID, routineID uuid.UUID, section, itemID string, value bool) (*db.Routine, error) {
	sec, id, err := parseItem(section, itemID)
	if err != nil {
		return nil, err
	}
	loc, err := s.locationFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	updated, err := s.mutateOwned(ctx, userID, routineID, func(r *db.Routine) error {
		sections := r.Sections.Data().Clone()
		configs := r.Config.Data().Clone()

		current, _ := sections.Get(sec, id)
		cfg := routine.DefaultCadence()
		if existing := configs.Lookup(sec, id); existing != nil {
			cfg = *existing
		}

		at := completionInstant(r.Date, now, loc)
		switch {
		case value && !current:
			cfg = routine.RecordCompletion(cfg, at)
		case !value && current:
			cfg = routine.UndoCompletion(cfg, at)
		}

		sections.Set(sec, id, value)
		configs.Put(sec, id, cfg)
		r.Sections = datatypes.NewJSONType(sections)
		r.Config = datatypes.NewJSONType(configs)
		r.SetRatios(routine.ComputeRatios(sections, configs, dayIn(r.Date, loc)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("routine item toggled", "routine_id", routineID, "section", sec, "item", id, "value", value)
	return updated, nil
}

// IsItemDue evaluates the item's cadence. Today's routine is evaluated at the current
// instant; routines for other days as of the start of their day.
func (s *RoutineService) IsItemDue(ctx context.Context, userID, routineID uuid.UUID, section, itemID string) (bool, error) {
	sec, id, err := parseItem(section, itemID)
	if err != nil {
		return false, err
	}
	r, err := s.GetRoutine(ctx, userID, routineID)
	if err != nil {
		return false, err
	}
	loc, err := s.locationFor(ctx, userID)
	if err != nil {
		return false, err
	}

	cfg := r.Config.Data().Lookup(sec, id)
	now := s.now().In(loc)
	if routine.DateKey(now) == routine.DateKey(r.Date.UTC()) {
		return routine.IsDue(cfg, now), nil
	}
	return routine.DueOn(cfg, dayIn(r.Date, loc)), nil
}

// GetHistory returns the deduplicated completion history of one item. Ranges wider
// than the configured maximum are clamped and reported through Warning.
func (s *RoutineService) GetHistory(ctx context.Context, userID uuid.UUID, q HistoryQuery) (*HistoryResult, error) {
	sec, id, err := parseItem(q.Section, q.ItemID)
	if err != nil {
		return nil, err
	}

	var end time.Time
	if strings.TrimSpace(q.End) == "" {
		tz, err := s.users.Timezone(ctx, userID)
		if err != nil {
			return nil, err
		}
		end = routine.Today(s.now(), tz)
	} else if end, err = routine.ParseDate(q.End); err != nil {
		return nil, err
	}

	start := end.AddDate(0, 0, -(s.maxDays - 1))
	if strings.TrimSpace(q.Start) != "" {
		if start, err = routine.ParseDate(q.Start); err != nil {
			return nil, err
		}
	}

	clamp, err := routine.ClampRange(start, end, s.maxDays)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.FindRoutinesInRange(ctx, userID, clamp.Window.Start, clamp.Window.End)
	if err != nil {
		return nil, err
	}
	records := make([]routine.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.HistoryRecord())
	}

	out := &HistoryResult{
		History: routine.BuildHistoryInRange(records, sec, id, clamp.Window),
		Range:   clamp,
	}
	if clamp.Clamped {
		out.Warning = fmt.Sprintf("date range exceeds %d days; showing %s to %s",
			s.maxDays, routine.DateKey(clamp.Window.Start), routine.DateKey(clamp.Window.End))
		s.log.Info("history range clamped", "user_id", userID,
			"requested_end", routine.DateKey(clamp.Requested.End), "end", routine.DateKey(clamp.Window.End))
	}
	if len(out.Rejected) > 0 {
		s.log.Warn("unparsable legacy history dates skipped", "user_id", userID, "count", len(out.Rejected))
	}
	return out, nil
}

// UpdateRoutineDate moves a routine to another day, refusing days another routine holds.
func (s *RoutineService) UpdateRoutineDate(ctx context.Context, userID, routineID uuid.UUID, dateInput string) (*db.Routine, error) {
	date, err := routine.ParseDate(dateInput)
	if err != nil {
		return nil, err
	}
	r, err := s.GetRoutine(ctx, userID, routineID)
	if err != nil {
		return nil, err
	}
	if r.Date.Equal(date) {
		return r, nil
	}
	loc, err := s.locationFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	ratios := routine.ComputeRatios(r.Sections.Data(), r.Config.Data(), dayIn(date, loc))
	updated, err := s.guard.Redate(ctx, r, db.RoutinePatch{Date: &date, Ratios: &ratios})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrRoutineNotFound
	}
	s.log.Info("routine date changed", "routine_id", routineID, "from", routine.DateKey(r.Date), "to", routine.DateKey(date))
	return updated, nil
}

// UpdateItemConfig replaces an item's cadence rule. Tracker state is kept unless the
// new config carries its own.
func (s *RoutineService) UpdateItemConfig(ctx context.Context, userID, routineID uuid.UUID, section, itemID string, cfg routine.CadenceConfig) (*db.Routine, error) {
	sec, id, err := parseItem(section, itemID)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := s.locationFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.mutateOwned(ctx, userID, routineID, func(r *db.Routine) error {
		sections := r.Sections.Data().Clone()
		configs := r.Config.Data().Clone()

		next := cfg.Normalize()
		if existing := configs.Lookup(sec, id); existing != nil && !next.HasTracker() {
			next = next.WithTrackerFrom(*existing)
		}
		configs.Put(sec, id, next)
		if _, ok := sections.Get(sec, id); !ok {
			sections.Set(sec, id, false)
		}

		r.Sections = datatypes.NewJSONType(sections)
		r.Config = datatypes.NewJSONType(configs)
		r.SetRatios(routine.ComputeRatios(sections, configs, dayIn(r.Date, loc)))
		return nil
	})
}

func (s *RoutineService) mutateOwned(ctx context.Context, userID, routineID uuid.UUID, fn func(*db.Routine) error) (*db.Routine, error) {
	updated, err := s.store.Mutate(ctx, routineID, func(r *db.Routine) error {
		if r.UserID != userID {
			return ErrRoutineNotFound
		}
		return fn(r)
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrRoutineNotFound
	}
	return updated, nil
}

func (s *RoutineService) locationFor(ctx context.Context, userID uuid.UUID) (*time.Location, error) {
	tz, err := s.users.Timezone(ctx, userID)
	if err != nil {
		return nil, err
	}
	return routine.LoadLocation(tz), nil
}

func parseItem(section, itemID string) (routine.Section, string, error) {
	sec, err := routine.ParseSection(section)
	if err != nil {
		return "", "", err
	}
	id, err := routine.NormalizeItemID(itemID)
	if err != nil {
		return "", "", err
	}
	return sec, id, nil
}

// resolveConfig merges request items, the user's template and built-in defaults into a
// self-contained item set. Tracker state carries over from the previous routine.
func resolveConfig(reqSections routine.Sections, reqConfigs routine.ConfigSet, tpl *db.RoutineTemplate, prev *db.Routine) (routine.Sections, routine.ConfigSet) {
	var tplSections routine.Sections
	var tplConfigs routine.ConfigSet
	if tpl != nil {
		tplSections = tpl.Sections.Data()
		tplConfigs = tpl.Config.Data()
	}
	var prevConfigs routine.ConfigSet
	if prev != nil {
		prevConfigs = prev.Config.Data()
	}

	sections := routine.NewSections()
	configs := routine.ConfigSet{}

	for _, section := range routine.AllSections {
		for id := range tplSections[section] {
			sections.Set(section, id, false)
		}
		for id := range reqSections[section] {
			sections.Set(section, id, false)
		}

		for _, id := range sections.ItemIDs(section) {
			var cfg routine.CadenceConfig
			switch {
			case reqConfigs.Lookup(section, id) != nil:
				cfg = reqConfigs[section][id]
			case tplConfigs.Lookup(section, id) != nil:
				cfg = tplConfigs[section][id].RuleOnly()
			default:
				cfg = routine.DefaultCadence()
			}
			cfg = cfg.Normalize()
			if last := prevConfigs.Lookup(section, id); last != nil && !cfg.HasTracker() {
				cfg = cfg.WithTrackerFrom(*last)
			}
			configs.Put(section, id, cfg)
		}
	}
	return sections, configs
}

// dayIn is midnight of the marker's calendar date in loc.
func dayIn(marker time.Time, loc *time.Location) time.Time {
	y, m, d := marker.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// completionInstant places a completion on the routine's calendar date at the current
// wall clock time in loc.
func completionInstant(marker, now time.Time, loc *time.Location) time.Time {
	y, m, d := marker.UTC().Date()
	local := now.In(loc)
	return time.Date(y, m, d, local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), loc)
}
