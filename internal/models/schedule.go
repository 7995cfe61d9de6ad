package models

import (
	"fmt"
	"strings"
	"time"
)

// ClassSchedule is a recurring weekly slot that sessions are generated from.
type ClassSchedule struct {
	ID               string    `db:"id" json:"id"`
	ClassTypeID      string    `db:"class_type_id" json:"class_type_id"`
	ProfessorID      *string   `db:"professor_id" json:"professor_id,omitempty"`
	DayOfWeek        int       `db:"day_of_week" json:"day_of_week"`
	StartTime        string    `db:"start_time" json:"start_time"`
	EndTime          string    `db:"end_time" json:"end_time"`
	Location         *string   `db:"location" json:"location,omitempty"`
	CapacityOverride *int      `db:"capacity_override" json:"capacity_override,omitempty"`
	Active           bool      `db:"active" json:"active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// ClassScheduleDetail joins the class type used for display and generation.
type ClassScheduleDetail struct {
	ClassSchedule
	ClassTypeName     string `db:"class_type_name" json:"class_type_name"`
	ClassTypeColor    string `db:"class_type_color" json:"class_type_color"`
	ClassTypeCapacity int    `db:"class_type_capacity" json:"class_type_capacity"`
	ClassTypeActive   bool   `db:"class_type_active" json:"class_type_active"`
}

// EffectiveCapacity returns the override when set, else the class type default.
func (d ClassScheduleDetail) EffectiveCapacity() int {
	if d.CapacityOverride != nil && *d.CapacityOverride > 0 {
		return *d.CapacityOverride
	}
	return d.ClassTypeCapacity
}

// ClassScheduleFilter describes query params for listing schedules.
type ClassScheduleFilter struct {
	ClassTypeID string
	ProfessorID string
	DayOfWeek   *int
	Active      *bool
}

// ParseClockTime accepts "15:04" or "15:04:05" and returns hours and minutes.
func ParseClockTime(raw string) (hour, minute int, err error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, perr := time.Parse(layout, raw); perr == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	return 0, 0, fmt.Errorf("invalid clock time %q", raw)
}

// ClockMinutes converts a clock string to minutes since midnight.
func ClockMinutes(raw string) (int, error) {
	h, m, err := ParseClockTime(raw)
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}
