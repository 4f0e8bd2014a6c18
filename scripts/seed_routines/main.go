package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/rutinas/internal/config"
	"github.com/rutinas/internal/db"
	"github.com/rutinas/internal/routine"
)

// Seeds one user with a month of routines. Older days are written in the legacy
// completion shapes so the history endpoint has each of them to merge.
func main() {
	userFlag := flag.String("user", "", "user id to seed (random when empty)")
	days := flag.Int("days", 30, "number of days to seed, ending yesterday")
	flag.Parse()

	cfg := config.Load()
	gdb, err := db.Init(db.Options{
		Driver: cfg.DatabaseDriver,
		Path:   cfg.DatabasePath,
		DSN:    cfg.DatabaseDSN,
	})
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	userID := uuid.New()
	if *userFlag != "" {
		if userID, err = uuid.Parse(*userFlag); err != nil {
			log.Fatalf("invalid user id: %v", err)
		}
	}

	if err := gdb.FirstOrCreate(&db.User{ID: userID, Timezone: cfg.DefaultTimezone}).Error; err != nil {
		log.Fatalf("failed to create user: %v", err)
	}

	end := routine.Today(time.Now(), cfg.DefaultTimezone).AddDate(0, 0, -1)
	store := db.NewRoutineStore(gdb)
	created := 0
	for _, r := range buildSeedRoutines(userID, end, *days) {
		if err := store.InsertRoutine(context.Background(), r); err != nil {
			if errors.Is(err, db.ErrDuplicateKey) {
				continue
			}
			log.Fatalf("failed to insert routine %s: %v", routine.DateKey(r.Date), err)
		}
		created++
	}

	log.Printf("seeded %d routines for user %s", created, userID)
	log.Printf("try: curl -H 'X-User-ID: %s' 'http://localhost:%s/api/history?section=bodyCare&item=ducha'", userID, cfg.Port)
}

// buildSeedRoutines cycles through the stored shapes: direct flags, a history map,
// an embedded snapshot and completions-by-week lists.
func buildSeedRoutines(userID uuid.UUID, end time.Time, days int) []*db.Routine {
	out := make([]*db.Routine, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := end.AddDate(0, 0, -i)
		key := routine.DateKey(day)
		done := i%3 != 2

		sections := routine.NewSections()
		sections.Set(routine.SectionNutrition, "agua", i%2 == 0)
		sections.Set(routine.SectionExercise, "caminar", false)
		sections.Set(routine.SectionBodyCare, "ducha", false)

		var legacy routine.LegacyHistory
		switch i % 4 {
		case 0:
			sections.Set(routine.SectionBodyCare, "ducha", done)
		case 1:
			legacy.History = map[routine.Section]map[string]map[string]bool{
				routine.SectionBodyCare: {key: {"ducha": done}},
			}
		case 2:
			snap := routine.NewSections()
			snap.Set(routine.SectionBodyCare, "ducha", done)
			legacy.Snapshots = []routine.Snapshot{{Date: key, Sections: snap}}
		case 3:
			if done {
				legacy.CompletionsByWeek = map[routine.Section]map[string]routine.WeekCompletions{
					routine.SectionBodyCare: {"ducha": {day.Format(time.RFC3339)}},
				}
			}
		}

		configs := routine.ConfigSet{}
		configs.Put(routine.SectionExercise, "caminar", routine.CadenceConfig{
			Type:       routine.CadenceWeekly,
			Period:     routine.PeriodWeek,
			Frequency:  1,
			DaysOfWeek: []int{1, 3, 5},
			Active:     true,
		}.Normalize())

		r := &db.Routine{
			UserID:   userID,
			Date:     day,
			Sections: datatypes.NewJSONType(sections),
			Config:   datatypes.NewJSONType(configs),
			Legacy:   datatypes.NewJSONType(legacy),
		}
		r.SetRatios(routine.ComputeRatios(sections, configs, day))
		out = append(out, r)
	}
	return out
}
