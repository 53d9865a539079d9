package model

import "time"

// RunStatus is the outcome of a fetch run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunUpToDate RunStatus = "up_to_date"
	RunDone     RunStatus = "done"
	RunFailed   RunStatus = "failed"
)

// Run is one invocation of the fetcher.
type Run struct {
	ID        string    `json:"id" db:"id"`
	Provider  string    `json:"provider" db:"provider"`
	FromLabel string    `json:"from_label" db:"from_label"`
	Status    RunStatus `json:"status" db:"status"`

	// Available is the number of threads listed under FromLabel.
	Available int `json:"available" db:"available"`

	// Fetched is the number of threads imported.
	Fetched int `json:"fetched" db:"fetched"`

	// Error holds the failure message of a failed run.
	Error string `json:"error" db:"error"`

	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at" db:"finished_at"`
}

// ImportRecord describes one thread turned into a note.
type ImportRecord struct {
	ID       string `json:"id"`
	RunID    string `json:"run_id"`
	ThreadID string `json:"thread_id"`

	// NotePath is the vault path of the created note.
	NotePath string `json:"note_path"`
	Subject  string `json:"subject"`

	// Attachments are the vault paths of the extracted attachments.
	Attachments []string `json:"attachments"`

	// Trashed reports whether the thread was moved to the trash.
	Trashed bool `json:"trashed"`

	ImportedAt time.Time `json:"imported_at"`
}
