package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Options selects and tunes the database connection.
type Options struct {
	Driver string // sqlite or postgres
	Path   string // sqlite file
	DSN    string // postgres connection string
	Silent bool
}

// Init opens the configured database and runs the schema migration.
// An empty sqlite path falls back to rutinas.db.
func Init(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "postgres":
		if strings.TrimSpace(opts.DSN) == "" {
			return nil, errors.New("postgres driver requires DATABASE_DSN")
		}
		dialector = postgres.Open(opts.DSN)
	default:
		path := strings.TrimSpace(opts.Path)
		if path == "" {
			path = "rutinas.db"
		}
		if err := ensureParentDir(path); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(path)
	}

	cfg := &gorm.Config{TranslateError: true}
	if opts.Silent {
		cfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	gdb, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

// Migrate creates or updates the tables of the routine models.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&User{}, &RoutineTemplate{}, &Routine{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func ensureParentDir(path string) error {
	if strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}
