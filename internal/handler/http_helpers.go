package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rutinas/internal/routine"
	"github.com/rutinas/internal/service"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, describeBindError(err))
		return false
	}
	return true
}

func describeBindError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

func parseUUIDParam(c *gin.Context, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(key))
	if err != nil {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("invalid %s", key))
		return uuid.Nil, false
	}
	return id, true
}

func (a *API) handleError(c *gin.Context, err error) {
	var dup *routine.DuplicateRoutineError
	switch {
	case errors.As(err, &dup):
		c.JSON(http.StatusConflict, gin.H{"error": dup.Error(), "existing_id": dup.ExistingID})
	case errors.Is(err, routine.ErrInvalidDate),
		errors.Is(err, routine.ErrUnknownSection),
		errors.Is(err, routine.ErrInvalidItem),
		errors.Is(err, routine.ErrInvalidCadence),
		errors.Is(err, service.ErrInvalidTimezone):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrRoutineNotFound):
		respondError(c, http.StatusNotFound, "routine not found")
	case errors.Is(err, service.ErrUserNotFound):
		respondError(c, http.StatusNotFound, "user not found")
	default:
		a.log.Error("request failed", "path", c.FullPath(), "error", err)
		respondError(c, http.StatusInternalServerError, "internal error")
	}
}
