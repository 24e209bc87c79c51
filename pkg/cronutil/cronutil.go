// Package cronutil validates AWS schedule expressions.
//
// Glue and QuickSight accept "cron(...)" with six fields
// (minutes, hours, day-of-month, month, day-of-week, year)
// or "rate(value unit)". The services reject invalid expressions
// only at call time; this package catches the obvious mistakes
// before any API call is made.
package cronutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/robfig/cron"
)

var (
	yearField = regexp.MustCompile(`^(\*|[0-9*,/-]+)$`)

	// AWS extensions robfig's parser does not speak.
	domQualifier = regexp.MustCompile(`^(L|LW|[1-9][0-9]?W)$`)
	dowQualifier = regexp.MustCompile(`^([1-7]|SUN|MON|TUE|WED|THU|FRI|SAT)L$|^[1-7]#[1-5]$`)

	dowNumber = regexp.MustCompile(`[0-9]+`)
)

// Validate returns an error if the expression is not a valid
// AWS schedule expression.
func Validate(expr string) error {
	switch {
	case strings.HasPrefix(expr, "cron(") && strings.HasSuffix(expr, ")"):
		return validateCron(strings.TrimSuffix(strings.TrimPrefix(expr, "cron("), ")"))
	case strings.HasPrefix(expr, "rate(") && strings.HasSuffix(expr, ")"):
		return validateRate(strings.TrimSuffix(strings.TrimPrefix(expr, "rate("), ")"))
	}
	return fmt.Errorf("schedule expression %q must be cron(...) or rate(...)", expr)
}

func validateCron(inner string) error {
	fields := strings.Fields(inner)
	if len(fields) != 6 {
		return fmt.Errorf("cron expression %q must have 6 fields, got %d", inner, len(fields))
	}

	dom, dow := fields[2], fields[4]
	if dom != "?" && dow != "?" {
		return fmt.Errorf("cron expression %q must use '?' in day-of-month or day-of-week", inner)
	}

	if !yearField.MatchString(fields[5]) {
		return fmt.Errorf("cron expression %q has invalid year field %q", inner, fields[5])
	}

	// AWS allows '?' where the standard syntax wants '*', counts
	// day-of-week 1-7 instead of 0-6, and adds the L/W/# qualifiers.
	// Check the qualifiers locally and map the rest back so the
	// field-level parser can check ranges, steps and names.
	std := make([]string, 5)
	copy(std, fields[:5])
	if strings.ContainsAny(std[2], "LW") {
		if !domQualifier.MatchString(std[2]) {
			return fmt.Errorf("cron expression %q has invalid day-of-month field %q", inner, std[2])
		}
		std[2] = "*"
	}
	if strings.ContainsAny(std[4], "L#") {
		if !dowQualifier.MatchString(std[4]) {
			return fmt.Errorf("cron expression %q has invalid day-of-week field %q", inner, std[4])
		}
		std[4] = "*"
	}
	std[4] = shiftDayOfWeek(std[4])
	for i, f := range std {
		if f == "?" {
			std[i] = "*"
		}
	}
	if _, err := cron.ParseStandard(strings.Join(std, " ")); err != nil {
		return fmt.Errorf("cron expression %q is invalid: %v", inner, err)
	}
	return nil
}

// shiftDayOfWeek maps the AWS 1-7 (SUN-SAT) day numbering onto the
// standard 0-6 the parser expects. Step counts after '/' are left
// alone; day names match in both dialects.
func shiftDayOfWeek(field string) string {
	parts := strings.Split(field, ",")
	for i, p := range parts {
		base, step, hasStep := strings.Cut(p, "/")
		base = dowNumber.ReplaceAllStringFunc(base, func(s string) string {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 || n > 7 {
				return s
			}
			return strconv.Itoa(n - 1)
		})
		if hasStep {
			base += "/" + step
		}
		parts[i] = base
	}
	return strings.Join(parts, ",")
}

func validateRate(inner string) error {
	fields := strings.Fields(inner)
	if len(fields) != 2 {
		return fmt.Errorf("rate expression %q must be 'value unit'", inner)
	}
	v, err := strconv.Atoi(fields[0])
	if err != nil || v <= 0 {
		return fmt.Errorf("rate expression %q has invalid value %q", inner, fields[0])
	}
	unit := fields[1]
	switch unit {
	case "minute", "hour", "day":
		if v != 1 {
			return fmt.Errorf("rate expression %q must use plural unit for value %d", inner, v)
		}
	case "minutes", "hours", "days":
		if v == 1 {
			return fmt.Errorf("rate expression %q must use singular unit for value 1", inner)
		}
	default:
		return fmt.Errorf("rate expression %q has invalid unit %q", inner, unit)
	}
	return nil
}
