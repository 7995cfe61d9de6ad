package dto

// EnrollRequest asks for a seat in a session. StudentID is only honoured for
// staff callers; students always enroll themselves.
type EnrollRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
	StudentID string `json:"studentId"`
}

// CancelEnrollmentRequest carries an optional cancellation reason.
type CancelEnrollmentRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=500"`
}
