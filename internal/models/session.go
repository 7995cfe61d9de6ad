package models

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a class session.
type SessionStatus string

// Session statuses.
const (
	SessionStatusScheduled  SessionStatus = "scheduled"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusCancelled  SessionStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusScheduled, SessionStatusInProgress, SessionStatusCompleted, SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo implements scheduled → in_progress → completed and
// scheduled → cancelled.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case SessionStatusScheduled:
		return next == SessionStatusInProgress || next == SessionStatusCancelled
	case SessionStatusInProgress:
		return next == SessionStatusCompleted
	case SessionStatusCompleted, SessionStatusCancelled:
		return false
	default:
		return false
	}
}

// ClassSession is one dated occurrence of a class with its own capacity.
type ClassSession struct {
	ID                     string        `db:"id" json:"id"`
	ClassTypeID            string        `db:"class_type_id" json:"class_type_id"`
	ScheduleID             *string       `db:"schedule_id" json:"schedule_id,omitempty"`
	ProfessorID            *string       `db:"professor_id" json:"professor_id,omitempty"`
	SessionDate            time.Time     `db:"session_date" json:"session_date"`
	StartTime              string        `db:"start_time" json:"start_time"`
	EndTime                string        `db:"end_time" json:"end_time"`
	Location               *string       `db:"location" json:"location,omitempty"`
	MaxCapacity            int           `db:"max_capacity" json:"max_capacity"`
	CurrentEnrollmentCount int           `db:"current_enrollment_count" json:"current_enrollment_count"`
	Status                 SessionStatus `db:"status" json:"status"`
	CancellationReason     *string       `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt              time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time     `db:"updated_at" json:"updated_at"`
}

// AvailableSeats returns remaining capacity, never negative.
func (s ClassSession) AvailableSeats() int {
	if free := s.MaxCapacity - s.CurrentEnrollmentCount; free > 0 {
		return free
	}
	return 0
}

// StartsAt resolves the session's start instant in loc.
func (s ClassSession) StartsAt(loc *time.Location) (time.Time, error) {
	return combine(s.SessionDate, s.StartTime, loc)
}

// EndsAt resolves the session's end instant in loc.
func (s ClassSession) EndsAt(loc *time.Location) (time.Time, error) {
	return combine(s.SessionDate, s.EndTime, loc)
}

func combine(date time.Time, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	h, m, err := ParseClockTime(clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("session time: %w", err)
	}
	y, mo, d := date.Date()
	return time.Date(y, mo, d, h, m, 0, 0, loc), nil
}

// ClassSessionDetail enriches a session with catalog display data.
type ClassSessionDetail struct {
	ClassSession
	ClassTypeName  string `db:"class_type_name" json:"class_type_name"`
	ClassTypeColor string `db:"class_type_color" json:"class_type_color"`
	WaitlistCount  int    `db:"waitlist_count" json:"waitlist_count"`
}

// ClassSessionFilter describes query params for listing sessions.
type ClassSessionFilter struct {
	From        *time.Time
	To          *time.Time
	ClassTypeID string
	ProfessorID string
	Status      SessionStatus
	Page        int
	PageSize    int
}
