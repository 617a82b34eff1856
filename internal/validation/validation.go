// Package validation checks and normalizes inbound recommendation requests.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/activity-advisor-service/internal/models"
)

// ErrInvalidRequest is returned for any malformed recommendation request. Messages name the offending field.
var ErrInvalidRequest = fmt.Errorf("%w: invalid request", models.ErrInvalidArgument)

// MaxActivityLen bounds a single activity identifier in runes.
const MaxActivityLen = 40

// LocationInput is the JSON location object. Pointers distinguish 0 from missing.
type LocationInput struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

// RecommendRequest is the JSON body of POST /recommend.
type RecommendRequest struct {
	Location    *LocationInput `json:"location" validate:"required"`
	Date        string         `json:"date" validate:"required,datetime=2006-01-02"`
	Preferences []string       `json:"preferences" validate:"required,min=1,max=10,dive,required,activity"`
}

// Recommendation is a validated request ready for the recommend service.
type Recommendation struct {
	Location   models.Location
	Date       time.Time
	Activities []string
}

// Validator wraps a configured go-playground validator. Safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator with the custom "activity" tag registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("activity", func(fl validator.FieldLevel) bool {
		return ValidActivityID(fl.Field().String())
	})
	return &Validator{v: v}
}

// Recommend validates req and converts it. The returned error wraps ErrInvalidRequest.
func (v *Validator) Recommend(req RecommendRequest) (Recommendation, error) {
	if err := v.v.Struct(req); err != nil {
		return Recommendation{}, describe(err)
	}
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		return Recommendation{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidRequest)
	}
	return Recommendation{
		Location:   models.Location{Latitude: *req.Location.Latitude, Longitude: *req.Location.Longitude},
		Date:       date,
		Activities: req.Preferences,
	}, nil
}

// describe turns validator errors into one message listing each failing field.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fieldPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gte", "lte":
		if strings.HasSuffix(field, "latitude") {
			return field + " must be between -90 and 90"
		}
		return field + " must be between -180 and 180"
	case "datetime":
		return field + " must be YYYY-MM-DD"
	case "min":
		return field + " must list at least one activity"
	case "max":
		return field + " lists too many activities"
	case "activity":
		return field + " is not a valid activity name"
	default:
		return field + " is invalid"
	}
}

// fieldPath drops the root struct name: "RecommendRequest.location.latitude" -> "location.latitude".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// ValidActivityID reports whether s is a plausible activity identifier: 1..MaxActivityLen runes of
// letters (Unicode), digits, space, hyphen or underscore.
func ValidActivityID(s string) bool {
	r := []rune(strings.TrimSpace(s))
	if len(r) == 0 || len(r) > MaxActivityLen {
		return false
	}
	for _, c := range r {
		if !isAllowedActivityRune(c) {
			return false
		}
	}
	return true
}

func isAllowedActivityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', '-', '_':
		return true
	}
	return false
}
