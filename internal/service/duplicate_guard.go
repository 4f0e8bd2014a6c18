package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rutinas/internal/db"
	"github.com/rutinas/internal/logger"
	"github.com/rutinas/internal/routine"
)

// DuplicateGuard keeps at most one routine per user per day. The pre-check gives a
// friendly conflict; the store's unique index settles races, and the loser is told
// the winner's id.
type DuplicateGuard struct {
	store RoutineStore
	log   *logger.Logger
}

func NewDuplicateGuard(store RoutineStore, log *logger.Logger) *DuplicateGuard {
	return &DuplicateGuard{store: store, log: log.With("component", "DuplicateGuard")}
}

// AssertNoDuplicate fails with *routine.DuplicateRoutineError when another routine holds
// (userID, date). exclude names a routine to ignore, uuid.Nil for none.
func (g *DuplicateGuard) AssertNoDuplicate(ctx context.Context, userID uuid.UUID, date time.Time, exclude uuid.UUID) error {
	id, exists, err := g.store.ExistsForDate(ctx, userID, date, exclude)
	if err != nil {
		return err
	}
	if exists {
		return &routine.DuplicateRoutineError{ExistingID: id}
	}
	return nil
}

// Insert creates the routine after the pre-check.
func (g *DuplicateGuard) Insert(ctx context.Context, r *db.Routine) error {
	if err := g.AssertNoDuplicate(ctx, r.UserID, r.Date, uuid.Nil); err != nil {
		return err
	}
	err := g.store.InsertRoutine(ctx, r)
	if errors.Is(err, db.ErrDuplicateKey) {
		return g.resolveConflict(ctx, r.UserID, r.Date, uuid.Nil)
	}
	return err
}

// Redate applies a patch that moves a routine to patch.Date, re-running the check
// without the routine itself.
func (g *DuplicateGuard) Redate(ctx context.Context, r *db.Routine, patch db.RoutinePatch) (*db.Routine, error) {
	if patch.Date == nil {
		return nil, fmt.Errorf("%w: missing target date", routine.ErrInvalidDate)
	}
	date := *patch.Date
	if err := g.AssertNoDuplicate(ctx, r.UserID, date, r.ID); err != nil {
		return nil, err
	}
	updated, err := g.store.UpdateRoutine(ctx, r.ID, patch)
	if errors.Is(err, db.ErrDuplicateKey) {
		return nil, g.resolveConflict(ctx, r.UserID, date, r.ID)
	}
	return updated, err
}

func (g *DuplicateGuard) resolveConflict(ctx context.Context, userID uuid.UUID, date time.Time, exclude uuid.UUID) error {
	id, exists, err := g.store.ExistsForDate(ctx, userID, date, exclude)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("insert routine %s: %w", routine.DateKey(date), db.ErrDuplicateKey)
	}
	g.log.Warn("lost routine creation race", "user_id", userID, "date", routine.DateKey(date), "existing_id", id)
	return &routine.DuplicateRoutineError{ExistingID: id}
}
