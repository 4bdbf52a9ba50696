package validator

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/go-playground/validator"

	"eventDesk/internal/model"
)

var (
	global     *validator.Validate
	clockRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

	dangerousPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<\s*(script|iframe|object|embed)\b`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)\bon\w+\s*=`),
		regexp.MustCompile(`\.\.[/\\]`),
		regexp.MustCompile(`(?i);\s*(drop|delete|insert|update|alter|create|exec)\b`),
		regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`),
		regexp.MustCompile(`--\s*$`),
	}
)

const (
	ErrInvalidFormat      = "Invalid format"
	ErrFieldRequired      = "Field is required"
	ErrFieldExceedsMaxLen = "Field exceeds maximum length"
	ErrFieldBelowMinLen   = "Field is below minimum length"
	ErrFieldExceedsMaxVal = "Field exceeds maximum value"
	ErrFieldBelowMinVal   = "Field is below minimum value"
	ErrUnknownValidation  = "Unknown validation error"
)

func init() {
	SetValidator(New())
}

func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("date", validateDate)
	_ = v.RegisterValidation("clock", validateClock)
	_ = v.RegisterValidation("eventtype", validateEventType)
	_ = v.RegisterValidation("status", validateStatus)
	_ = v.RegisterValidation("safetext", validateSafeText)
	_ = v.RegisterValidation("positive", validatePositiveInt)
	return v
}

func SetValidator(v *validator.Validate) {
	global = v
}

func Validator() *validator.Validate {
	return global
}

func validateDate(fl validator.FieldLevel) bool {
	_, err := time.Parse(model.DateLayout, fl.Field().String())
	return err == nil
}

func validateClock(fl validator.FieldLevel) bool {
	return clockRegex.MatchString(fl.Field().String())
}

func validateEventType(fl validator.FieldLevel) bool {
	return model.EventType(fl.Field().String()).Valid()
}

func validateStatus(fl validator.FieldLevel) bool {
	return model.Status(fl.Field().String()).Valid()
}

func validateSafeText(fl validator.FieldLevel) bool {
	return SafeText(fl.Field().String())
}

func validatePositiveInt(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(int)
	return ok && val > 0
}

// SafeText reports whether s is free of markup injection, path traversal
// and stacked SQL statements.
func SafeText(s string) bool {
	for _, p := range dangerousPatterns {
		if p.MatchString(s) {
			return false
		}
	}
	return true
}

func Validate(ctx context.Context, structure any) error {
	return parseValidationErrors(Validator().StructCtx(ctx, structure))
}

func parseValidationErrors(err error) error {
	if err == nil {
		return nil
	}
	vErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	if len(vErrors) == 0 {
		return nil
	}
	ve := vErrors[0]
	var msg string
	switch ve.Tag() {
	case "date", "clock", "email", "url", "uri":
		msg = ErrInvalidFormat
	case "required":
		msg = ErrFieldRequired
	case "max":
		msg = ErrFieldExceedsMaxLen
	case "min":
		msg = ErrFieldBelowMinLen
	case "lt", "lte":
		msg = ErrFieldExceedsMaxVal
	case "gt", "gte":
		msg = ErrFieldBelowMinVal
	case "eventtype":
		msg = "Unknown event type"
	case "status":
		msg = "Unknown registration status"
	case "safetext":
		msg = "Field contains forbidden content"
	case "positive":
		msg = "Value must be positive"
	default:
		msg = ErrUnknownValidation
	}
	return errors.New(msg + ": " + ve.Namespace())
}
