package dto

// GenerateSessionsRequest expands schedules over an inclusive date window.
// Dates use the YYYY-MM-DD layout.
type GenerateSessionsRequest struct {
	ScheduleID string `json:"scheduleId"`
	From       string `json:"from" validate:"required,datetime=2006-01-02"`
	To         string `json:"to" validate:"required,datetime=2006-01-02"`
}

// CancelSessionRequest cancels a scheduled session.
type CancelSessionRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// SessionListQuery captures list filters from the query string.
type SessionListQuery struct {
	From        string `form:"from" validate:"omitempty,datetime=2006-01-02"`
	To          string `form:"to" validate:"omitempty,datetime=2006-01-02"`
	ClassTypeID string `form:"classTypeId"`
	ProfessorID string `form:"professorId"`
	Status      string `form:"status" validate:"omitempty,oneof=scheduled in_progress completed cancelled"`
	Page        int    `form:"page"`
	PageSize    int    `form:"limit"`
}
