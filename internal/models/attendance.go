package models

// RosterCloseResult summarises closing a session roster after it started.
type RosterCloseResult struct {
	SessionID     string   `json:"session_id"`
	MarkedNoShow  int      `json:"marked_no_show"`
	EnrollmentIDs []string `json:"enrollment_ids"`
}

// CountDrift is a session whose cached enrollment count disagreed with its rows.
type CountDrift struct {
	SessionID string `db:"session_id" json:"session_id"`
	Cached    int    `db:"cached" json:"cached"`
	Actual    int    `db:"actual" json:"actual"`
}
