package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rutinas/internal/db"
	"github.com/rutinas/internal/routine"
	"github.com/rutinas/internal/service"
)

type routinePayload struct {
	ID                       uuid.UUID                   `json:"id"`
	UserID                   uuid.UUID                   `json:"userId"`
	Date                     string                      `json:"date"`
	DateInstant              time.Time                   `json:"dateInstant"`
	Sections                 routine.Sections            `json:"sections"`
	Config                   routine.ConfigSet           `json:"config"`
	CompletionRatio          float64                     `json:"completionRatio"`
	CompletionRatioBySection map[routine.Section]float64 `json:"completionRatioBySection"`
	CreatedAt                time.Time                   `json:"createdAt"`
	UpdatedAt                time.Time                   `json:"updatedAt"`
}

type createRoutineRequest struct {
	Date     string            `json:"date" binding:"required,routinedate"`
	Sections routine.Sections  `json:"sections"`
	Config   routine.ConfigSet `json:"config"`
}

type routineDateRequest struct {
	Date string `json:"date" binding:"required,routinedate"`
}

type toggleItemRequest struct {
	Section string `json:"section" binding:"required,section"`
	ItemID  string `json:"itemId" binding:"required"`
	Value   *bool  `json:"value" binding:"required"`
}

type itemConfigRequest struct {
	Section string                `json:"section" binding:"required,section"`
	ItemID  string                `json:"itemId" binding:"required"`
	Config  routine.CadenceConfig `json:"config"`
}

func routineToPayload(r *db.Routine) routinePayload {
	return routinePayload{
		ID:                       r.ID,
		UserID:                   r.UserID,
		Date:                     routine.DateKey(r.Date.UTC()),
		DateInstant:              r.Date.UTC(),
		Sections:                 r.Sections.Data(),
		Config:                   r.Config.Data(),
		CompletionRatio:          r.CompletionRatio,
		CompletionRatioBySection: r.RatioBySection.Data(),
		CreatedAt:                r.CreatedAt,
		UpdatedAt:                r.UpdatedAt,
	}
}

// CreateRoutine creates the caller's routine for a day.
func (a *API) CreateRoutine(c *gin.Context) {
	var req createRoutineRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := a.routines.CreateRoutine(c.Request.Context(), currentUser(c), service.CreateRoutineInput{
		Date:     req.Date,
		Sections: req.Sections,
		Config:   req.Config,
	})
	if err != nil {
		a.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"routine": routineToPayload(r)})
}

// GetToday returns the caller's routine for today, creating it on first access.
func (a *API) GetToday(c *gin.Context) {
	r, created, err := a.routines.GetOrCreateToday(c.Request.Context(), currentUser(c))
	if err != nil {
		a.handleError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"routine": routineToPayload(r), "created": created})
}

// GetRoutine returns one routine.
func (a *API) GetRoutine(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	r, err := a.routines.GetRoutine(c.Request.Context(), currentUser(c), id)
	if err != nil {
		a.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"routine": routineToPayload(r)})
}

// UpdateRoutineDate moves a routine to another day.
func (a *API) UpdateRoutineDate(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req routineDateRequest
	if !bindJSON(c, &req) {
		return
	}
	r, err := a.routines.UpdateRoutineDate(c.Request.Context(), currentUser(c), id, req.Date)
	if err != nil {
		a.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"routine": routineToPayload(r)})
}

// ToggleItem sets an item's completed flag.
func (a *API) ToggleItem(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req toggleItemRequest
	if !bindJSON(c, &req) {
		return
	}
	r, err := a.routines.ToggleItem(c.Request.Context(), currentUser(c), id, req.Section, req.ItemID, *req.Value)
	if err != nil {
		a.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"routine": routineToPayload(r)})
}

// UpdateItemConfig replaces an item's cadence rule.
func (a *API) UpdateItemConfig(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req itemConfigRequest
	if !bindJSON(c, &req) {
		return
	}
	r, err := a.routines.UpdateItemConfig(c.Request.Context(), currentUser(c), id, req.Section, req.ItemID, req.Config)
	if err != nil {
		a.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"routine": routineToPayload(r)})
}

// IsItemDue reports whether an item of the routine is due.
func (a *API) IsItemDue(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	section, item := c.Query("section"), c.Query("item")
	due, err := a.routines.IsItemDue(c.Request.Context(), currentUser(c), id, section, item)
	if err != nil {
		a.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"section": section, "item": item, "due": due})
}

// GetHistory returns an item's completion history.
func (a *API) GetHistory(c *gin.Context) {
	result, err := a.routines.GetHistory(c.Request.Context(), currentUser(c), service.HistoryQuery{
		Section: c.Query("section"),
		ItemID:  c.Query("item"),
		Start:   c.Query("start"),
		End:     c.Query("end"),
	})
	if err != nil {
		a.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events":  result.Events,
		"byWeek":  result.ByWeek,
		"byMonth": result.ByMonth,
		"stats":   result.Stats,
		"range": gin.H{
			"start":   routine.DateKey(result.Range.Window.Start),
			"end":     routine.DateKey(result.Range.Window.End),
			"clamped": result.Range.Clamped,
		},
		"warning": result.Warning,
	})
}
