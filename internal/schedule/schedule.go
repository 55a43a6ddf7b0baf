// Package schedule computes how long a connection must wait before its next run.
//
// Three schedule kinds are supported:
//
//   - manual: the connection only runs on an explicit trigger
//   - basic: a fixed interval expressed as units of a time unit ("every 6 hours")
//   - cron: a cron expression evaluated in an explicit timezone
//
// Cron schedules are debounced so that two runs never start within MinCronInterval of
// each other, even when the scheduler wakes up late.
package schedule

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Type is the kind of schedule attached to a connection
type Type string

const (
	// TypeManual means the connection only runs when triggered
	TypeManual Type = "manual"

	// TypeBasic means the connection runs at a fixed interval
	TypeBasic Type = "basic"

	// TypeCron means the connection runs according to a cron expression
	TypeCron Type = "cron"
)

// TimeUnit is the unit of a basic schedule
type TimeUnit string

// Supported time units for basic schedules
const (
	TimeUnitMinutes TimeUnit = "minutes"
	TimeUnitHours   TimeUnit = "hours"
	TimeUnitDays    TimeUnit = "days"
	TimeUnitWeeks   TimeUnit = "weeks"
	TimeUnitMonths  TimeUnit = "months"
)

const (
	// MinCronInterval is the minimum spacing between two cron-triggered runs
	MinCronInterval = 60 * time.Second

	// Forever is the wait returned for schedules that never fire on their own
	Forever = time.Duration(math.MaxInt64)
)

// ErrInvalidSchedule is wrapped by every ConfigError
var ErrInvalidSchedule = errors.New("invalid schedule")

// ConfigError is returned when a schedule descriptor cannot be evaluated.
// Configuration errors are never retried automatically.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidSchedule and the underlying parse error
func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidSchedule, e.Err}
	}
	return []error{ErrInvalidSchedule}
}

// Descriptor describes when a connection should run
type Descriptor struct {
	Type Type `yaml:"type" json:"type"`

	// Units and TimeUnit define a basic schedule
	Units    int64    `yaml:"units,omitempty" json:"units,omitempty"`
	TimeUnit TimeUnit `yaml:"timeUnit,omitempty" json:"timeUnit,omitempty"`

	// CronExpression and Timezone define a cron schedule
	CronExpression string `yaml:"cronExpression,omitempty" json:"cronExpression,omitempty"`
	Timezone       string `yaml:"timezone,omitempty" json:"timezone,omitempty"`
}

// Validate checks that the descriptor can be evaluated
func (d Descriptor) Validate() error {
	switch d.Type {
	case TypeManual:
		return nil
	case TypeBasic:
		_, err := d.Interval()
		return err
	case TypeCron:
		_, _, err := d.cronSchedule()
		return err
	case "":
		return &ConfigError{Field: "schedule.type", Message: "schedule is required"}
	default:
		return &ConfigError{Field: "schedule.type", Message: fmt.Sprintf("unsupported schedule type %q", d.Type)}
	}
}

// Interval returns the duration of a basic schedule
func (d Descriptor) Interval() (time.Duration, error) {
	if d.Units <= 0 {
		return 0, &ConfigError{Field: "schedule.units", Message: "must be greater than zero"}
	}

	var unit time.Duration
	switch d.TimeUnit {
	case TimeUnitMinutes:
		unit = time.Minute
	case TimeUnitHours:
		unit = time.Hour
	case TimeUnitDays:
		unit = 24 * time.Hour
	case TimeUnitWeeks:
		unit = 7 * 24 * time.Hour
	case TimeUnitMonths:
		unit = 30 * 24 * time.Hour
	default:
		return 0, &ConfigError{Field: "schedule.timeUnit", Message: fmt.Sprintf("unsupported time unit %q", d.TimeUnit)}
	}

	return time.Duration(d.Units) * unit, nil
}

// cronParser accepts five- or six-field expressions (optional leading seconds) and the
// "?" placeholder used by Quartz-style expressions.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (d Descriptor) cronSchedule() (cron.Schedule, *time.Location, error) {
	expr := strings.TrimSpace(d.CronExpression)
	if expr == "" {
		return nil, nil, &ConfigError{Field: "schedule.cronExpression", Message: "cron expression is required"}
	}

	// Quartz expressions may carry a trailing year field; only the wildcard form is accepted.
	fields := strings.Fields(expr)
	if len(fields) == 7 {
		if fields[6] != "*" {
			return nil, nil, &ConfigError{Field: "schedule.cronExpression", Message: "year field is not supported"}
		}
		expr = strings.Join(fields[:6], " ")
	}

	if d.Timezone == "" {
		return nil, nil, &ConfigError{Field: "schedule.timezone", Message: "timezone is required for cron schedules"}
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return nil, nil, &ConfigError{Field: "schedule.timezone", Message: "unknown timezone", Err: err}
	}

	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, nil, &ConfigError{Field: "schedule.cronExpression", Message: "cannot parse cron expression", Err: err}
	}

	return sched, loc, nil
}
