package handler

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/rutinas/internal/routine"
)

var registerOnce sync.Once

// RegisterValidators adds the routine tags to gin's validator:
// "routinedate" accepts any input ParseDate understands, "section" one of the fixed sections.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("routinedate", func(fl validator.FieldLevel) bool {
			_, err := routine.ParseDate(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("section", func(fl validator.FieldLevel) bool {
			_, err := routine.ParseSection(fl.Field().String())
			return err == nil
		})
	})
}
