package booking

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/santiagopena171/app-agenda/services/booking-service/internal/clock"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
)

// CreateRequest is what a client at the head of the queue submits to book a slot.
type CreateRequest struct {
	BusinessID  string `json:"business_id" validate:"required,max=128"`
	ServiceID   string `json:"service_id" validate:"required,max=128"`
	SessionID   string `json:"session_id" validate:"required,max=128"`
	Date        string `json:"date" validate:"required,calendar_date"`
	StartTime   string `json:"start_time" validate:"required,clock_time"`
	ClientName  string `json:"client_name" validate:"client_name"`
	ClientPhone string `json:"client_phone" validate:"phone_digits"`
}

var phonePattern = regexp.MustCompile(`^\d{8,15}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	must := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}
	must("phone_digits", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	must("client_name", func(fl validator.FieldLevel) bool {
		n := utf8.RuneCountInString(strings.TrimSpace(fl.Field().String()))
		return n >= 2 && n <= 50
	})
	must("clock_time", func(fl validator.FieldLevel) bool {
		_, err := clock.TimeToMinutes(fl.Field().String())
		return err == nil
	})
	must("calendar_date", func(fl validator.FieldLevel) bool {
		_, err := clock.ParseDate(fl.Field().String())
		return err == nil
	})
	return v
}

var fieldMessages = map[string]string{
	"phone_digits":  "must contain 8-15 digits",
	"client_name":   "must be between 2 and 50 characters",
	"clock_time":    "must be HH:MM",
	"calendar_date": "must be YYYY-MM-DD",
	"required":      "is required",
	"max":           "is too long",
}

// normalize trims free-text input before validation.
func (r *CreateRequest) normalize() {
	r.BusinessID = strings.TrimSpace(r.BusinessID)
	r.ServiceID = strings.TrimSpace(r.ServiceID)
	r.SessionID = strings.TrimSpace(r.SessionID)
	r.Date = strings.TrimSpace(r.Date)
	r.StartTime = strings.TrimSpace(r.StartTime)
	r.ClientName = strings.TrimSpace(r.ClientName)
	r.ClientPhone = strings.TrimSpace(r.ClientPhone)
}

// Validate reports the first invalid field as model.ErrInvalidArgument.
func (r CreateRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg, ok := fieldMessages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		return fmt.Errorf("%w: %s %s", model.ErrInvalidArgument, fe.Field(), msg)
	}
	return fmt.Errorf("%w: %w", model.ErrInvalidArgument, err)
}
