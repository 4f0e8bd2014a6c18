package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rutinas/internal/routine"
)

// ErrDuplicateKey signals that a write violated the one-routine-per-user-per-day index.
var ErrDuplicateKey = errors.New("duplicate routine key")

// RoutinePatch lists the routine fields an update may change. Nil fields are left as stored.
type RoutinePatch struct {
	Date     *time.Time
	Sections *routine.Sections
	Config   *routine.ConfigSet
	Ratios   *routine.Ratios
}

// RoutineStore persists routines through gorm.
type RoutineStore struct {
	db *gorm.DB
}

func NewRoutineStore(gdb *gorm.DB) *RoutineStore {
	return &RoutineStore{db: gdb}
}

// FindByID returns the routine or nil when it does not exist.
func (s *RoutineStore) FindByID(ctx context.Context, id uuid.UUID) (*Routine, error) {
	var r Routine
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find routine: %w", err)
	}
	return &r, nil
}

// FindRoutine returns the user's routine for a normalized date, or nil.
func (s *RoutineStore) FindRoutine(ctx context.Context, userID uuid.UUID, date time.Time) (*Routine, error) {
	var r Routine
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND date = ?", userID, date.UTC()).
		First(&r).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find routine by date: %w", err)
	}
	return &r, nil
}

// FindRoutinesInRange returns the user's routines with start <= date <= end, oldest first.
func (s *RoutineStore) FindRoutinesInRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]Routine, error) {
	var out []Routine
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND date >= ? AND date <= ?", userID, start.UTC(), end.UTC()).
		Order("date asc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}
	return out, nil
}

// FindLatestBefore returns the user's most recent routine dated strictly before date, or nil.
func (s *RoutineStore) FindLatestBefore(ctx context.Context, userID uuid.UUID, date time.Time) (*Routine, error) {
	var r Routine
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND date < ?", userID, date.UTC()).
		Order("date desc").
		First(&r).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find previous routine: %w", err)
	}
	return &r, nil
}

// ExistsForDate reports the id of another routine holding the user's date, if any.
// exclude lets a routine being re-dated ignore itself.
func (s *RoutineStore) ExistsForDate(ctx context.Context, userID uuid.UUID, date time.Time, exclude uuid.UUID) (uuid.UUID, bool, error) {
	var ids []uuid.UUID
	q := s.db.WithContext(ctx).Model(&Routine{}).
		Where("user_id = ? AND date = ?", userID, date.UTC())
	if exclude != uuid.Nil {
		q = q.Where("id <> ?", exclude)
	}
	if err := q.Limit(1).Pluck("id", &ids).Error; err != nil {
		return uuid.Nil, false, fmt.Errorf("check routine date: %w", err)
	}
	if len(ids) == 0 {
		return uuid.Nil, false, nil
	}
	return ids[0], true, nil
}

// InsertRoutine creates the routine. A unique index violation returns ErrDuplicateKey.
func (s *RoutineStore) InsertRoutine(ctx context.Context, r *Routine) error {
	r.Date = r.Date.UTC()
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert routine: %w", err)
	}
	return nil
}

// UpdateRoutine applies the patch and returns the updated routine, or nil when it does not exist.
func (s *RoutineStore) UpdateRoutine(ctx context.Context, id uuid.UUID, patch RoutinePatch) (*Routine, error) {
	return s.Mutate(ctx, id, func(r *Routine) error {
		patch.apply(r)
		return nil
	})
}

// Mutate runs a locked read-modify-write of one routine inside a transaction.
// It returns nil when the routine does not exist. Errors returned by fn abort the write.
func (s *RoutineStore) Mutate(ctx context.Context, id uuid.UUID, fn func(*Routine) error) (*Routine, error) {
	var out *Routine
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r Routine
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&r, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := fn(&r); err != nil {
			return err
		}
		r.Date = r.Date.UTC()
		if err := tx.Save(&r).Error; err != nil {
			return err
		}
		out = &r
		return nil
	})
	if err != nil {
		if isDuplicateKey(err) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return out, nil
}

func (p RoutinePatch) apply(r *Routine) {
	if p.Date != nil {
		r.Date = p.Date.UTC()
	}
	if p.Sections != nil {
		r.Sections = datatypes.NewJSONType(*p.Sections)
	}
	if p.Config != nil {
		r.Config = datatypes.NewJSONType(*p.Config)
	}
	if p.Ratios != nil {
		r.SetRatios(*p.Ratios)
	}
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, ErrDuplicateKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
