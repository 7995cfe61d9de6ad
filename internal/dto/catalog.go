package dto

// CreateClassTypeRequest defines a new bookable modality.
type CreateClassTypeRequest struct {
	Name            string  `json:"name" validate:"required,max=120"`
	Description     *string `json:"description" validate:"omitempty,max=1000"`
	DurationMinutes int     `json:"durationMinutes" validate:"required,min=5,max=600"`
	MaxCapacity     int     `json:"maxCapacity" validate:"required,min=1,max=1000"`
	Color           string  `json:"color" validate:"omitempty,hexcolor"`
	Active          *bool   `json:"active"`
}

// UpdateClassTypeRequest applies administrative edits. Existing sessions keep
// the capacity they were generated with.
type UpdateClassTypeRequest struct {
	Name            *string `json:"name" validate:"omitempty,max=120"`
	Description     *string `json:"description" validate:"omitempty,max=1000"`
	DurationMinutes *int    `json:"durationMinutes" validate:"omitempty,min=5,max=600"`
	MaxCapacity     *int    `json:"maxCapacity" validate:"omitempty,min=1,max=1000"`
	Color           *string `json:"color" validate:"omitempty,hexcolor"`
	Active          *bool   `json:"active"`
}

// CreateClassScheduleRequest defines a recurring weekly slot.
type CreateClassScheduleRequest struct {
	ClassTypeID      string  `json:"classTypeId" validate:"required"`
	ProfessorID      *string `json:"professorId"`
	DayOfWeek        *int    `json:"dayOfWeek" validate:"required,min=0,max=6"`
	StartTime        string  `json:"startTime" validate:"required"`
	EndTime          string  `json:"endTime" validate:"required"`
	Location         *string `json:"location" validate:"omitempty,max=120"`
	CapacityOverride *int    `json:"capacityOverride" validate:"omitempty,min=1,max=1000"`
}

// UpdateClassScheduleRequest edits a schedule. Only future generation is affected.
type UpdateClassScheduleRequest struct {
	ProfessorID      *string `json:"professorId"`
	DayOfWeek        *int    `json:"dayOfWeek" validate:"omitempty,min=0,max=6"`
	StartTime        *string `json:"startTime"`
	EndTime          *string `json:"endTime"`
	Location         *string `json:"location" validate:"omitempty,max=120"`
	CapacityOverride *int    `json:"capacityOverride" validate:"omitempty,min=1,max=1000"`
	Active           *bool   `json:"active"`
}
