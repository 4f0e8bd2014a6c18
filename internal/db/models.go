package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/rutinas/internal/routine"
)

// User holds the per-user preferences the routine engine consumes.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// RoutineTemplate is a user's saved default item set and cadence configuration.
type RoutineTemplate struct {
	ID        uuid.UUID                              `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID                              `gorm:"type:uuid;not null;uniqueIndex"`
	Sections  datatypes.JSONType[routine.Sections]  `gorm:"not null"`
	Config    datatypes.JSONType[routine.ConfigSet] `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *RoutineTemplate) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Routine is one user's routine for one calendar day.
// UserID + Date carries a unique index: at most one routine per user per day.
type Routine struct {
	ID              uuid.UUID                                      `gorm:"type:uuid;primaryKey"`
	UserID          uuid.UUID                                      `gorm:"type:uuid;not null;uniqueIndex:idx_routine_user_date,priority:1"`
	Date            time.Time                                      `gorm:"not null;uniqueIndex:idx_routine_user_date,priority:2"`
	Sections        datatypes.JSONType[routine.Sections]           `gorm:"not null"`
	Config          datatypes.JSONType[routine.ConfigSet]          `gorm:"not null"`
	Legacy          datatypes.JSONType[routine.LegacyHistory]
	CompletionRatio float64
	RatioBySection  datatypes.JSONType[map[routine.Section]float64]
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (r *Routine) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// SetRatios stores computed completion ratios on the record.
func (r *Routine) SetRatios(ratios routine.Ratios) {
	r.CompletionRatio = ratios.Overall
	r.RatioBySection = datatypes.NewJSONType(ratios.BySection)
}

// HistoryRecord exposes the record to the history aggregator.
func (r Routine) HistoryRecord() routine.HistoryRecord {
	return routine.HistoryRecord{
		ID:       r.ID,
		Date:     r.Date.UTC(),
		Sections: r.Sections.Data(),
		Legacy:   r.Legacy.Data(),
	}
}
