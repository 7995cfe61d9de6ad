package models

import "time"

// EnrollmentStatus represents the lifecycle of a class enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentStatusConfirmed EnrollmentStatus = "confirmed"
	EnrollmentStatusAttended  EnrollmentStatus = "attended"
	EnrollmentStatusCancelled EnrollmentStatus = "cancelled"
	EnrollmentStatusNoShow    EnrollmentStatus = "no_show"
)

// Valid reports whether s is a known status.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusEnrolled, EnrollmentStatusConfirmed, EnrollmentStatusAttended,
		EnrollmentStatusCancelled, EnrollmentStatusNoShow:
		return true
	default:
		return false
	}
}

// Active reports whether the enrollment occupies a seat.
func (s EnrollmentStatus) Active() bool {
	switch s {
	case EnrollmentStatusEnrolled, EnrollmentStatusConfirmed:
		return true
	default:
		return false
	}
}

// CanTransitionTo encodes enrolled → confirmed → attended, and
// enrolled|confirmed → cancelled|no_show. Attended, cancelled and no_show are terminal.
func (s EnrollmentStatus) CanTransitionTo(next EnrollmentStatus) bool {
	switch s {
	case EnrollmentStatusEnrolled:
		switch next {
		case EnrollmentStatusConfirmed, EnrollmentStatusAttended, EnrollmentStatusCancelled, EnrollmentStatusNoShow:
			return true
		}
		return false
	case EnrollmentStatusConfirmed:
		switch next {
		case EnrollmentStatusAttended, EnrollmentStatusCancelled, EnrollmentStatusNoShow:
			return true
		}
		return false
	case EnrollmentStatusAttended, EnrollmentStatusCancelled, EnrollmentStatusNoShow:
		return false
	default:
		return false
	}
}

// ClassEnrollment is one student's claim on a seat in a session.
type ClassEnrollment struct {
	ID                 string           `db:"id" json:"id"`
	SessionID          string           `db:"session_id" json:"session_id"`
	StudentID          string           `db:"student_id" json:"student_id"`
	Status             EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt         time.Time        `db:"enrolled_at" json:"enrolled_at"`
	ConfirmedAt        *time.Time       `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CheckedInAt        *time.Time       `db:"checked_in_at" json:"checked_in_at,omitempty"`
	CancelledAt        *time.Time       `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason *string          `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	WaitlistEntryID    *string          `db:"waitlist_entry_id" json:"waitlist_entry_id,omitempty"`
}

// EnrollOutcome tells the caller which branch enroll took.
type EnrollOutcome string

const (
	EnrollOutcomeEnrolled   EnrollOutcome = "ENROLLED"
	EnrollOutcomeWaitlisted EnrollOutcome = "WAITLISTED"
)

// EnrollResult is the result of enroll: exactly one of Enrollment or
// WaitlistEntry is set, matching Outcome.
type EnrollResult struct {
	Outcome       EnrollOutcome       `json:"outcome"`
	Position      int                 `json:"position,omitempty"`
	Enrollment    *ClassEnrollment    `json:"enrollment,omitempty"`
	WaitlistEntry *ClassWaitlistEntry `json:"waitlist_entry,omitempty"`
}
