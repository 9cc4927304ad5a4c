package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"carecal/pkg/logger"
	"carecal/pkg/model"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// Details renders the errors keyed by field for an API error payload.
func (v ValidationErrors) Details() map[string]any {
	details := make(map[string]any, len(v))
	for _, err := range v {
		if prev, ok := details[err.Field]; ok {
			details[err.Field] = fmt.Sprintf("%s; %s", prev, err.Message)
			continue
		}
		details[err.Field] = err.Message
	}
	return details
}

type RuleValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewRuleValidator(log *logger.Logger) *RuleValidator {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	custom := map[string]validator.Func{
		"civil_date":       validateCivilDate,
		"time_of_day":      validateTimeOfDay,
		"recurrence_kind":  validateRecurrenceKind,
		"location_kind":    validateLocationKind,
		"appointment_kind": validateAppointmentKind,
	}
	for tag, fn := range custom {
		if err := v.RegisterValidation(tag, fn); err != nil {
			log.Fatal(fmt.Sprintf("Failed to register '%s' validator", tag), "error", err)
		}
	}
	v.RegisterStructValidation(validateRule, model.AvailabilityRule{})

	return &RuleValidator{
		validate: v,
		logger:   log,
	}
}

func validateCivilDate(fl validator.FieldLevel) bool {
	_, err := time.Parse(model.DateLayout, fl.Field().String())
	return err == nil
}

func validateTimeOfDay(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	_, err := time.Parse(model.TimeLayout, s)
	return err == nil && len(s) == len(model.TimeLayout)
}

func validateRecurrenceKind(fl validator.FieldLevel) bool {
	return model.RecurrenceKind(fl.Field().String()).Valid()
}

func validateLocationKind(fl validator.FieldLevel) bool {
	return model.LocationKind(fl.Field().String()).Valid()
}

func validateAppointmentKind(fl validator.FieldLevel) bool {
	_, ok := model.AppointmentKind(fl.Field().String()).MaxMinAdvanceHours()
	return ok
}

// validateRule checks the invariants that span several fields. Field-level
// format errors are reported separately, so unparseable values are skipped here.
func validateRule(sl validator.StructLevel) {
	rule := sl.Current().Interface().(model.AvailabilityRule)

	startMin, startOK := clock(rule.StartTime)
	endMin, endOK := clock(rule.EndTime)
	if startOK && endOK {
		if endMin <= startMin {
			sl.ReportError(rule.EndTime, "end_time", "EndTime", "after_start_time", "")
		} else if endMin-startMin < rule.SlotDurationMinutes+rule.BufferMinutes {
			sl.ReportError(rule.EndTime, "end_time", "EndTime", "window_fits_slot", "")
		}
	}

	start, startDateOK := date(rule.StartDate)
	end, endDateOK := date(rule.EndDate)
	if startDateOK && endDateOK && !end.After(start) {
		sl.ReportError(rule.EndDate, "end_date", "EndDate", "after_start_date", "")
	}
	inRange := func(s string) bool {
		d, ok := date(s)
		if !ok || !startDateOK {
			return true
		}
		if d.Before(start) {
			return false
		}
		return !endDateOK || !d.After(end)
	}

	switch {
	case rule.RecurrenceKind == model.RecurrenceWeekly && rule.DayOfWeek == 0:
		sl.ReportError(rule.DayOfWeek, "day_of_week", "DayOfWeek", "required_if_weekly", "")
	case rule.RecurrenceKind != model.RecurrenceWeekly && rule.DayOfWeek != 0:
		sl.ReportError(rule.DayOfWeek, "day_of_week", "DayOfWeek", "only_if_weekly", "")
	}

	switch {
	case rule.RecurrenceKind == model.RecurrenceCustom && len(rule.CustomDates) == 0:
		sl.ReportError(rule.CustomDates, "custom_dates", "CustomDates", "required_if_custom", "")
	case rule.RecurrenceKind != model.RecurrenceCustom && len(rule.CustomDates) > 0:
		sl.ReportError(rule.CustomDates, "custom_dates", "CustomDates", "only_if_custom", "")
	}
	for _, d := range rule.CustomDates {
		if !inRange(d) {
			sl.ReportError(rule.CustomDates, "custom_dates", "CustomDates", "within_rule_dates", d)
			break
		}
	}
	for _, d := range rule.ExcludedDates {
		if !inRange(d) {
			sl.ReportError(rule.ExcludedDates, "excluded_dates", "ExcludedDates", "within_rule_dates", d)
			break
		}
	}

	if rule.LocationKind == model.LocationInPerson && strings.TrimSpace(rule.LocationDetails) == "" {
		sl.ReportError(rule.LocationDetails, "location_details", "LocationDetails", "required_if_in_person", "")
	}

	if ceiling, ok := rule.AppointmentKind.MaxMinAdvanceHours(); ok && rule.MinAdvanceBookingHours > ceiling {
		sl.ReportError(rule.MinAdvanceBookingHours, "min_advance_booking_hours", "MinAdvanceBookingHours",
			"appointment_ceiling", fmt.Sprintf("%d", ceiling))
	}
}

func clock(s string) (int, bool) {
	t, err := time.Parse(model.TimeLayout, s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

func date(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	d, err := time.Parse(model.DateLayout, s)
	return d, err == nil
}

func (v *RuleValidator) Validate(rule *model.AvailabilityRule) error {
	if err := v.validate.Struct(rule); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *RuleValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "timezone":
			message = "time_zone must be an IANA time zone name"
		case "civil_date":
			message = fmt.Sprintf("%s must be a date in YYYY-MM-DD format", err.Field())
		case "time_of_day":
			message = fmt.Sprintf("%s must be a time in HH:MM 24-hour format", err.Field())
		case "recurrence_kind":
			message = "recurrence_kind must be one of ONE_TIME, DAILY, WEEKLY, CUSTOM"
		case "location_kind":
			message = "location_kind must be IN_PERSON or VIRTUAL"
		case "appointment_kind":
			message = "appointment_kind must be one of CONSULTATION, FOLLOW_UP, PROCEDURE, THERAPY, ROUTINE_CHECKUP, EMERGENCY"
		case "after_start_time":
			message = "end_time must be after start_time"
		case "window_fits_slot":
			message = "the time window must fit at least one slot plus buffer"
		case "after_start_date":
			message = "end_date must be after start_date"
		case "required_if_weekly":
			message = "day_of_week is required for WEEKLY rules"
		case "only_if_weekly":
			message = "day_of_week is only allowed for WEEKLY rules"
		case "required_if_custom":
			message = "custom_dates is required for CUSTOM rules"
		case "only_if_custom":
			message = "custom_dates is only allowed for CUSTOM rules"
		case "within_rule_dates":
			message = fmt.Sprintf("%s contains %s outside the rule's date range", err.Field(), err.Param())
		case "required_if_in_person":
			message = "location_details is required for IN_PERSON rules"
		case "appointment_ceiling":
			message = fmt.Sprintf("min_advance_booking_hours must be at most %s for this appointment kind", err.Param())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
