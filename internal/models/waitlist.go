package models

import "time"

// WaitlistStatus is the lifecycle state of a waitlist entry.
type WaitlistStatus string

// Waitlist statuses.
const (
	WaitlistStatusWaiting   WaitlistStatus = "waiting"
	WaitlistStatusNotified  WaitlistStatus = "notified"
	WaitlistStatusEnrolled  WaitlistStatus = "enrolled"
	WaitlistStatusExpired   WaitlistStatus = "expired"
	WaitlistStatusCancelled WaitlistStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s WaitlistStatus) Valid() bool {
	switch s {
	case WaitlistStatusWaiting, WaitlistStatusNotified, WaitlistStatusEnrolled,
		WaitlistStatusExpired, WaitlistStatusCancelled:
		return true
	default:
		return false
	}
}

// Active reports whether the entry still holds a position in line.
func (s WaitlistStatus) Active() bool {
	switch s {
	case WaitlistStatusWaiting, WaitlistStatusNotified:
		return true
	default:
		return false
	}
}

// CanTransitionTo encodes waiting → notified → enrolled|expired, a direct
// waiting → enrolled auto-claim, and waiting|notified → cancelled.
func (s WaitlistStatus) CanTransitionTo(next WaitlistStatus) bool {
	switch s {
	case WaitlistStatusWaiting:
		switch next {
		case WaitlistStatusNotified, WaitlistStatusEnrolled, WaitlistStatusCancelled:
			return true
		}
		return false
	case WaitlistStatusNotified:
		switch next {
		case WaitlistStatusEnrolled, WaitlistStatusExpired, WaitlistStatusCancelled:
			return true
		}
		return false
	case WaitlistStatusEnrolled, WaitlistStatusExpired, WaitlistStatusCancelled:
		return false
	default:
		return false
	}
}

// ClassWaitlistEntry is a queued claim for a full session. Active entries of a
// session hold positions 1..N in added_at order.
type ClassWaitlistEntry struct {
	ID         string         `db:"id" json:"id"`
	SessionID  string         `db:"session_id" json:"session_id"`
	StudentID  string         `db:"student_id" json:"student_id"`
	Position   int            `db:"position" json:"position"`
	Status     WaitlistStatus `db:"status" json:"status"`
	AddedAt    time.Time      `db:"added_at" json:"added_at"`
	NotifiedAt *time.Time     `db:"notified_at" json:"notified_at,omitempty"`
	ExpiresAt  *time.Time     `db:"expires_at" json:"expires_at,omitempty"`
	ResolvedAt *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
}

// StudentClaims lists a student's active enrollments and waitlist entries.
type StudentClaims struct {
	StudentID       string               `json:"student_id"`
	Enrollments     []ClassEnrollment    `json:"enrollments"`
	WaitlistEntries []ClassWaitlistEntry `json:"waitlist_entries"`
}

// WaitlistEventType names messages published for the notification dispatcher.
type WaitlistEventType string

const (
	WaitlistEventPromoted WaitlistEventType = "waitlist.promoted"
	WaitlistEventNotified WaitlistEventType = "waitlist.notified"
	WaitlistEventExpired  WaitlistEventType = "waitlist.expired"
)

// WaitlistEvent is emitted after commit whenever a waitlist entry changes hands.
type WaitlistEvent struct {
	Type         WaitlistEventType `json:"type"`
	EntryID      string            `json:"entry_id"`
	SessionID    string            `json:"session_id"`
	StudentID    string            `json:"student_id"`
	EnrollmentID string            `json:"enrollment_id,omitempty"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}
