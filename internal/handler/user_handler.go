package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rutinas/internal/routine"
)

type timezoneRequest struct {
	Timezone string `json:"timezone" binding:"required,timezone"`
}

type templateRequest struct {
	Sections routine.Sections  `json:"sections"`
	Config   routine.ConfigSet `json:"config"`
}

// GetTimezone returns the caller's effective timezone.
func (a *API) GetTimezone(c *gin.Context) {
	tz, err := a.users.Timezone(c.Request.Context(), currentUser(c))
	if err != nil {
		a.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timezone": tz})
}

// SetTimezone stores the caller's timezone preference.
func (a *API) SetTimezone(c *gin.Context) {
	var req timezoneRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := a.users.SetTimezone(c.Request.Context(), currentUser(c), req.Timezone); err != nil {
		a.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timezone": req.Timezone})
}

// GetTemplate returns the caller's saved routine template, or empty sections.
func (a *API) GetTemplate(c *gin.Context) {
	tpl, err := a.users.Template(c.Request.Context(), currentUser(c))
	if err != nil {
		a.handleError(c, err)
		return
	}
	if tpl == nil {
		c.JSON(http.StatusOK, gin.H{"sections": routine.NewSections(), "config": routine.ConfigSet{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sections": tpl.Sections.Data(), "config": tpl.Config.Data()})
}

// SaveTemplate replaces the caller's routine template.
func (a *API) SaveTemplate(c *gin.Context) {
	var req templateRequest
	if !bindJSON(c, &req) {
		return
	}
	tpl, err := a.users.SaveTemplate(c.Request.Context(), currentUser(c), req.Sections, req.Config)
	if err != nil {
		a.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sections": tpl.Sections.Data(), "config": tpl.Config.Data()})
}
