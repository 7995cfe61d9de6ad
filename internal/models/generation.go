package models

// GenerationResult reports what one schedule produced over a window.
type GenerationResult struct {
	ScheduleID string   `json:"schedule_id"`
	Created    int      `json:"created"`
	Existing   int      `json:"existing"`
	SessionIDs []string `json:"session_ids,omitempty"`
}

// GenerationSkip records a schedule that was not expanded and why.
type GenerationSkip struct {
	ScheduleID string `json:"schedule_id"`
	Reason     string `json:"reason"`
}

// GenerationReport aggregates a batch generation run.
type GenerationReport struct {
	Results []GenerationResult `json:"results"`
	Skipped []GenerationSkip   `json:"skipped"`
}
