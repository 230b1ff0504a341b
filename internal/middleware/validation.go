package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/alert-engine/internal/model"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationConfig represents validation middleware configuration
type ValidationConfig struct {
	CustomValidators    map[string]validator.Func
	CustomErrorMessages map[string]string
}

func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		CustomValidators: map[string]validator.Func{
			"severity": validateSeverity,
		},
		CustomErrorMessages: map[string]string{
			"required": "Field is required",
			"uuid":     "Must be a UUID",
			"max":      "Value is too long",
			"severity": "Must be one of low, medium, high, critical",
		},
	}
}

func validateSeverity(fl validator.FieldLevel) bool {
	_, err := model.ParseSeverity(fl.Field().String())
	return err == nil
}

// RegisterValidators installs custom tags on gin's validator. Call once at
// startup, before any request is bound.
func RegisterValidators(config ValidationConfig) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	for tag, fn := range config.CustomValidators {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return nil
}

// Validation renders binding failures as a field list.
func Validation(config ValidationConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Check for validation errors
		if len(c.Errors) > 0 && !c.Writer.Written() {
			var validationErrors []ValidationError
			for _, err := range c.Errors {
				var errs validator.ValidationErrors
				if errors.As(err.Err, &errs) {
					for _, e := range errs {
						msg := config.CustomErrorMessages[e.Tag()]
						if msg == "" {
							msg = e.Error()
						}
						validationErrors = append(validationErrors, ValidationError{
							Field:   e.Field(),
							Message: msg,
						})
					}
				}
			}

			if len(validationErrors) > 0 {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"errors": validationErrors,
				})
				return
			}
		}
	}
}
