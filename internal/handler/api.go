package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rutinas/internal/logger"
	"github.com/rutinas/internal/service"
)

// UserIDHeader carries the authenticated user id set by the upstream auth layer.
const UserIDHeader = "X-User-ID"

const userIDContextKey = "__user_id"

// API bundles shared dependencies for HTTP handlers.
type API struct {
	routines *service.RoutineService
	users    *service.UserService
	log      *logger.Logger
}

// NewAPI constructs a handler set with shared services.
func NewAPI(routines *service.RoutineService, users *service.UserService, log *logger.Logger) *API {
	RegisterValidators()
	return &API{
		routines: routines,
		users:    users,
		log:      log.With("component", "handler"),
	}
}

// RegisterRoutes mounts the routine API on rg. Every route requires a user id.
func (a *API) RegisterRoutes(rg *gin.RouterGroup) {
	rg.Use(RequireUser())

	rg.POST("/routines", a.CreateRoutine)
	rg.GET("/routines/today", a.GetToday)
	rg.GET("/routines/:id", a.GetRoutine)
	rg.PUT("/routines/:id/date", a.UpdateRoutineDate)
	rg.PATCH("/routines/:id/items", a.ToggleItem)
	rg.PUT("/routines/:id/config", a.UpdateItemConfig)
	rg.GET("/routines/:id/due", a.IsItemDue)

	rg.GET("/history", a.GetHistory)

	rg.GET("/users/me/timezone", a.GetTimezone)
	rg.PUT("/users/me/timezone", a.SetTimezone)
	rg.GET("/users/me/template", a.GetTemplate)
	rg.PUT("/users/me/template", a.SaveTemplate)
}

// RequireUser rejects requests without a valid user id header.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader(UserIDHeader))
		if err != nil || id == uuid.Nil {
			respondError(c, http.StatusUnauthorized, "missing or invalid "+UserIDHeader+" header")
			c.Abort()
			return
		}
		c.Set(userIDContextKey, id)
		c.Next()
	}
}

func currentUser(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(userIDContextKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
