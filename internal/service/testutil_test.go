package service

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rutinas/internal/cache"
	"github.com/rutinas/internal/db"
	applog "github.com/rutinas/internal/logger"
)

var dbSeq atomic.Int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:service-%d-%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

type testServices struct {
	db       *gorm.DB
	store    *db.RoutineStore
	users    *UserService
	routines *RoutineService
}

func setupServices(t *testing.T, gdb *gorm.DB) testServices {
	t.Helper()
	if gdb == nil {
		gdb = openTestDB(t)
	}
	log := applog.Nop()
	store := db.NewRoutineStore(gdb)
	users := NewUserService(gdb, cache.NewMemoryTimezoneCache(time.Minute), "America/Santiago", log)
	return testServices{
		db:       gdb,
		store:    store,
		users:    users,
		routines: NewRoutineService(store, users, 90, log),
	}
}

func santiago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Santiago")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func fixedNow(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}
