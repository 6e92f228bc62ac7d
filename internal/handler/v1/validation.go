package v1

import (
	"sync"

	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain/appointment"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators adds the "hhmm" tag to gin's validator engine.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
			return appointment.ValidClock(fl.Field().String())
		})
	})
}
