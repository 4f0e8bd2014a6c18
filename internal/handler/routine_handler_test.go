package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rutinas/internal/cache"
	"github.com/rutinas/internal/db"
	"github.com/rutinas/internal/logger"
	"github.com/rutinas/internal/service"
)

func setupHandlerTest(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:handler-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	log := logger.Nop()
	users := service.NewUserService(gdb, cache.NewMemoryTimezoneCache(time.Minute), "America/Santiago", log)
	routines := service.NewRoutineService(db.NewRoutineStore(gdb), users, 90, log)

	router := gin.New()
	NewAPI(routines, users, log).RegisterRoutes(router.Group("/api"))
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, userID uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		req.Header.Set(UserIDHeader, userID.String())
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

type routineEnvelope struct {
	Routine struct {
		ID              uuid.UUID                  `json:"id"`
		Date            string                     `json:"date"`
		DateInstant     time.Time                  `json:"dateInstant"`
		Sections        map[string]map[string]bool `json:"sections"`
		CompletionRatio float64                    `json:"completionRatio"`
	} `json:"routine"`
	Created bool `json:"created"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

func TestRoutineEndpointsRequireUser(t *testing.T) {
	router := setupHandlerTest(t)

	rec := doJSON(t, router, http.MethodGet, "/api/routines/today", uuid.Nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/routines/today", nil)
	req.Header.Set(UserIDHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed id, got %d", rec.Code)
	}
}

func TestCreateRoutineConflictReturnsExistingID(t *testing.T) {
	router := setupHandlerTest(t)
	userID := uuid.New()

	body := gin.H{"date": "2024-03-27", "sections": gin.H{"bodyCare": gin.H{"ducha": false}}}
	rec := doJSON(t, router, http.MethodPost, "/api/routines", userID, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[routineEnvelope](t, rec)
	if created.Routine.Date != "2024-03-27" {
		t.Fatalf("unexpected date %q", created.Routine.Date)
	}
	if !created.Routine.DateInstant.Equal(time.Date(2024, 3, 27, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected instant %s", created.Routine.DateInstant)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/routines", userID, body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	conflict := decode[struct {
		ExistingID uuid.UUID `json:"existing_id"`
	}](t, rec)
	if conflict.ExistingID != created.Routine.ID {
		t.Fatalf("expected existing_id %s, got %s", created.Routine.ID, conflict.ExistingID)
	}
}

func TestCreateRoutineValidation(t *testing.T) {
	router := setupHandlerTest(t)
	userID := uuid.New()

	cases := []struct {
		name string
		body any
	}{
		{name: "missing date", body: gin.H{}},
		{name: "malformed date", body: gin.H{"date": "27/03/2024"}},
		{name: "unknown section", body: gin.H{"date": "2024-03-27", "sections": gin.H{"garage": gin.H{"x": true}}}},
		{name: "bad cadence", body: gin.H{"date": "2024-03-27", "config": gin.H{"bodyCare": gin.H{"ducha": gin.H{"tipo": "YEARLY"}}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/routines", userID, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestToggleAndDueEndpoints(t *testing.T) {
	router := setupHandlerTest(t)
	userID := uuid.New()

	rec := doJSON(t, router, http.MethodGet, "/api/routines/today", userID, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on first access, got %d", rec.Code)
	}
	today := decode[routineEnvelope](t, rec)
	if !today.Created {
		t.Fatalf("expected created flag")
	}

	rec = doJSON(t, router, http.MethodGet, "/api/routines/today", userID, nil)
	if rec.Code != http.StatusOK || decode[routineEnvelope](t, rec).Routine.ID != today.Routine.ID {
		t.Fatalf("expected the same routine on second access, got %d", rec.Code)
	}

	path := "/api/routines/" + today.Routine.ID.String()
	rec = doJSON(t, router, http.MethodPatch, path+"/items", userID, gin.H{"section": "nutricion", "itemId": "agua", "value": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	toggled := decode[routineEnvelope](t, rec)
	if !toggled.Routine.Sections["nutricion"]["agua"] || toggled.Routine.CompletionRatio != 1 {
		t.Fatalf("unexpected toggle result: %+v", toggled.Routine)
	}

	rec = doJSON(t, router, http.MethodGet, path+"/due?section=nutricion&item=agua", userID, nil)
	due := decode[struct {
		Due bool `json:"due"`
	}](t, rec)
	if rec.Code != http.StatusOK || due.Due {
		t.Fatalf("expected completed daily item not due, got %d %v", rec.Code, due.Due)
	}

	rec = doJSON(t, router, http.MethodPatch, path+"/items", userID, gin.H{"section": "nutricion", "itemId": "agua"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without value, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodPatch, path+"/items", userID, gin.H{"section": "garage", "itemId": "agua", "value": true})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown section, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, path, uuid.New(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's routine, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/routines/nope", userID, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestUpdateDateAndConfigEndpoints(t *testing.T) {
	router := setupHandlerTest(t)
	userID := uuid.New()

	first := decode[routineEnvelope](t, doJSON(t, router, http.MethodPost, "/api/routines", userID, gin.H{"date": "2024-03-01"}))
	second := decode[routineEnvelope](t, doJSON(t, router, http.MethodPost, "/api/routines", userID, gin.H{"date": "2024-03-02"}))

	rec := doJSON(t, router, http.MethodPut, "/api/routines/"+first.Routine.ID.String()+"/date", userID, gin.H{"date": "2024-03-02"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if got := decode[map[string]any](t, rec)["existing_id"]; got != second.Routine.ID.String() {
		t.Fatalf("expected existing_id %s, got %v", second.Routine.ID, got)
	}

	rec = doJSON(t, router, http.MethodPut, "/api/routines/"+first.Routine.ID.String()+"/date", userID, gin.H{"date": "2024-03-05"})
	if rec.Code != http.StatusOK || decode[routineEnvelope](t, rec).Routine.Date != "2024-03-05" {
		t.Fatalf("expected move to succeed, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPut, "/api/routines/"+first.Routine.ID.String()+"/config", userID, gin.H{
		"section": "ejercicio",
		"itemId":  "pesas",
		"config":  gin.H{"tipo": "CUSTOM", "periodo": "EVERY_WEEK", "frecuencia": 2},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Routine struct {
			Config map[string]map[string]struct {
				Type      string `json:"tipo"`
				Frequency int    `json:"frecuencia"`
				Active    bool   `json:"activo"`
			} `json:"config"`
		} `json:"routine"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	pesas := payload.Routine.Config["ejercicio"]["pesas"]
	if pesas.Type != "CUSTOM" || pesas.Frequency != 2 || !pesas.Active {
		t.Fatalf("unexpected config %+v", pesas)
	}
}

func TestHistoryEndpointReportsClamp(t *testing.T) {
	router := setupHandlerTest(t)
	userID := uuid.New()

	r := decode[routineEnvelope](t, doJSON(t, router, http.MethodPost, "/api/routines", userID, gin.H{"date": "2024-01-10"}))
	doJSON(t, router, http.MethodPatch, "/api/routines/"+r.Routine.ID.String()+"/items", userID, gin.H{"section": "cleaning", "itemId": "cocina", "value": true})

	rec := doJSON(t, router, http.MethodGet, "/api/history?section=cleaning&item=cocina&start=2024-01-01&end=2024-12-31", userID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Events []struct {
			Date   string `json:"date"`
			Source string `json:"source"`
		} `json:"events"`
		Range struct {
			End     string `json:"end"`
			Clamped bool   `json:"clamped"`
		} `json:"range"`
		Warning string `json:"warning"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Events) != 1 || body.Events[0].Date != "2024-01-10" || body.Events[0].Source != "direct" {
		t.Fatalf("unexpected events %+v", body.Events)
	}
	if !body.Range.Clamped || body.Range.End != "2024-03-30" || body.Warning == "" {
		t.Fatalf("expected clamp warning, got %+v %q", body.Range, body.Warning)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/history?section=cleaning&item=cocina&start=2024-02-01&end=2024-01-01", userID, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted range, got %d", rec.Code)
	}
}

func TestTimezoneAndTemplateEndpoints(t *testing.T) {
	router := setupHandlerTest(t)
	userID := uuid.New()

	rec := doJSON(t, router, http.MethodGet, "/api/users/me/timezone", userID, nil)
	if got := decode[map[string]string](t, rec)["timezone"]; got != "America/Santiago" {
		t.Fatalf("expected default timezone, got %q", got)
	}

	rec = doJSON(t, router, http.MethodPut, "/api/users/me/timezone", userID, gin.H{"timezone": "Mars/Base"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid timezone, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodPut, "/api/users/me/timezone", userID, gin.H{"timezone": "Europe/Madrid"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/users/me/timezone", userID, nil)
	if got := decode[map[string]string](t, rec)["timezone"]; got != "Europe/Madrid" {
		t.Fatalf("expected updated timezone, got %q", got)
	}

	rec = doJSON(t, router, http.MethodPut, "/api/users/me/template", userID, gin.H{
		"sections": gin.H{"bodyCare": gin.H{"ducha": true}},
		"config":   gin.H{"bodyCare": gin.H{"ducha": gin.H{"tipo": "WEEKLY"}}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	created := decode[routineEnvelope](t, doJSON(t, router, http.MethodPost, "/api/routines", userID, gin.H{"date": "2024-05-01"}))
	if done, ok := created.Routine.Sections["bodyCare"]["ducha"]; !ok || done {
		t.Fatalf("expected template item on new routine, got %v", created.Routine.Sections)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/users/me/template", userID, nil)
	var tpl struct {
		Config map[string]map[string]struct {
			Type string `json:"tipo"`
		} `json:"config"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &tpl); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tpl.Config["bodyCare"]["ducha"].Type != "WEEKLY" {
		t.Fatalf("unexpected template %+v", tpl)
	}
}
