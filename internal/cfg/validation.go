package cfg

import (
	"errors"
	"fmt"
	"strings"

	"eta-service/internal/common"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("loglevel", validateLogLevel); err != nil {
		panic(fmt.Sprintf("register loglevel validation: %v", err))
	}
	return v
}

func validateLogLevel(fl validator.FieldLevel) bool {
	_, err := zerolog.ParseLevel(fl.Field().String())
	return err == nil && fl.Field().String() != ""
}

// validateSettings runs the struct tag rules and the duration range checks
// that tags cannot express.
func validateSettings(settings *Settings) error {
	if err := validate.Struct(settings); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	if settings.PredictTimeout < common.MinPredictTimeout || settings.PredictTimeout > common.MaxPredictTimeout {
		return fmt.Errorf("predict timeout must be between %v and %v, got %v",
			common.MinPredictTimeout, common.MaxPredictTimeout, settings.PredictTimeout)
	}
	if settings.ShutdownTimeout <= 0 || settings.ShutdownTimeout > common.MaxShutdownTimeout {
		return fmt.Errorf("shutdown timeout must be between 0 and %v, got %v",
			common.MaxShutdownTimeout, settings.ShutdownTimeout)
	}
	if settings.CacheTTL < 0 {
		return fmt.Errorf("cache TTL cannot be negative, got %v", settings.CacheTTL)
	}

	return nil
}

func formatValidationErrors(errs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", e.Field(), e.Tag(), e.Param(), e.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s (got %v)", e.Field(), e.Tag(), e.Value()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
