package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rutinas/internal/cache"
	"github.com/rutinas/internal/db"
	"github.com/rutinas/internal/logger"
	"github.com/rutinas/internal/routine"
)

var (
	// ErrUserNotFound is returned when the user has no stored profile.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidTimezone is returned for names that are not loadable IANA timezones.
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// UserService owns user preferences: timezone and the saved routine template.
type UserService struct {
	db        *gorm.DB
	cache     cache.TimezoneCache
	defaultTZ string
	log       *logger.Logger
}

func NewUserService(gdb *gorm.DB, tzCache cache.TimezoneCache, defaultTZ string, log *logger.Logger) *UserService {
	if !routine.ValidTimezone(defaultTZ) {
		defaultTZ = routine.DefaultTimezone
	}
	return &UserService{
		db:        gdb,
		cache:     tzCache,
		defaultTZ: defaultTZ,
		log:       log.With("service", "UserService"),
	}
}

// Get returns the stored user.
func (s *UserService) Get(ctx context.Context, userID uuid.UUID) (*db.User, error) {
	var u db.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// EnsureUser returns the user, creating an empty profile on first sight.
func (s *UserService) EnsureUser(ctx context.Context, userID uuid.UUID) (*db.User, error) {
	u, err := s.Get(ctx, userID)
	if !errors.Is(err, ErrUserNotFound) {
		return u, err
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&db.User{ID: userID}).Error
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return s.Get(ctx, userID)
}

// Timezone returns the user's IANA timezone. Unknown users and invalid stored
// names resolve to the default timezone.
func (s *UserService) Timezone(ctx context.Context, userID uuid.UUID) (string, error) {
	if s.cache != nil {
		tz, ok, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.log.Warn("timezone cache read failed", "user_id", userID, "error", err)
		} else if ok {
			return tz, nil
		}
	}

	tz := s.defaultTZ
	var u db.User
	err := s.db.WithContext(ctx).Select("id", "timezone").First(&u, "id = ?", userID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return "", fmt.Errorf("load timezone: %w", err)
	case routine.ValidTimezone(u.Timezone):
		tz = strings.TrimSpace(u.Timezone)
	case u.Timezone != "":
		s.log.Warn("stored timezone is invalid, using default", "user_id", userID, "timezone", u.Timezone)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, tz); err != nil {
			s.log.Warn("timezone cache write failed", "user_id", userID, "error", err)
		}
	}
	return tz, nil
}

// SetTimezone validates and stores the user's timezone preference.
func (s *UserService) SetTimezone(ctx context.Context, userID uuid.UUID, tz string) error {
	tz = strings.TrimSpace(tz)
	if !routine.ValidTimezone(tz) {
		return fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}

	u := db.User{ID: userID, Timezone: tz}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"timezone", "updated_at"}),
	}).Create(&u).Error
	if err != nil {
		return fmt.Errorf("save timezone: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, userID); err != nil {
			s.log.Warn("timezone cache invalidate failed", "user_id", userID, "error", err)
		}
	}
	return nil
}

// Template returns the user's saved routine template, or nil when none exists.
func (s *UserService) Template(ctx context.Context, userID uuid.UUID) (*db.RoutineTemplate, error) {
	var tpl db.RoutineTemplate
	if err := s.db.WithContext(ctx).First(&tpl, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load template: %w", err)
	}
	return &tpl, nil
}

// SaveTemplate stores the user's default items and cadence rules. Tracker state is
// never kept on a template and completion flags are reset.
func (s *UserService) SaveTemplate(ctx context.Context, userID uuid.UUID, sections routine.Sections, configs routine.ConfigSet) (*db.RoutineTemplate, error) {
	cleanSections, cleanConfigs, err := sanitizeItems(sections, configs)
	if err != nil {
		return nil, err
	}
	for section, items := range cleanSections {
		for id := range items {
			items[id] = false
		}
		for id, cfg := range cleanConfigs[section] {
			cleanConfigs[section][id] = cfg.RuleOnly()
		}
	}

	tpl := db.RoutineTemplate{
		UserID:   userID,
		Sections: datatypes.NewJSONType(cleanSections),
		Config:   datatypes.NewJSONType(cleanConfigs),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"sections", "config", "updated_at"}),
	}).Create(&tpl).Error
	if err != nil {
		return nil, fmt.Errorf("save template: %w", err)
	}

	saved, err := s.Template(ctx, userID)
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// sanitizeItems validates section names and item keys and normalizes every config.
// Items that only have a config are added to the sections as not completed.
func sanitizeItems(sections routine.Sections, configs routine.ConfigSet) (routine.Sections, routine.ConfigSet, error) {
	outSections := routine.NewSections()
	outConfigs := routine.ConfigSet{}

	for rawSection, items := range sections {
		section, err := routine.ParseSection(string(rawSection))
		if err != nil {
			return nil, nil, err
		}
		for rawID, done := range items {
			id, err := routine.NormalizeItemID(rawID)
			if err != nil {
				return nil, nil, err
			}
			outSections.Set(section, id, done)
		}
	}

	for rawSection, items := range configs {
		section, err := routine.ParseSection(string(rawSection))
		if err != nil {
			return nil, nil, err
		}
		for rawID, cfg := range items {
			id, err := routine.NormalizeItemID(rawID)
			if err != nil {
				return nil, nil, err
			}
			if err := cfg.Validate(); err != nil {
				return nil, nil, err
			}
			outConfigs.Put(section, id, cfg.Normalize())
			if _, ok := outSections.Get(section, id); !ok {
				outSections.Set(section, id, false)
			}
		}
	}

	return outSections, outConfigs, nil
}
