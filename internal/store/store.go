package store

import (
	"context"

	"github.com/nhle/mailnote/internal/model"
)

// Store defines the persistence interface of the import ledger: fetch
// runs, the threads each run imported, and the notifications it emitted.
type Store interface {
	// === Runs ===

	// CreateRun inserts run, assigning an ID when it has none.
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, run model.Run) error
	GetRuns(ctx context.Context, limit int) ([]model.Run, error)

	// === Imports ===

	RecordImport(ctx context.Context, rec model.ImportRecord) error
	GetImports(ctx context.Context, limit int) ([]model.ImportRecord, error)
	GetImportsForThread(ctx context.Context, threadID string) ([]model.ImportRecord, error)

	// === Notifications ===

	CreateNotification(ctx context.Context, n model.Notification) error
	GetNotifications(ctx context.Context, limit int) ([]model.Notification, error)
}
