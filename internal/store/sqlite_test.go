package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/mailnote/internal/model"
	"github.com/nhle/mailnote/tests/testutil"
)

func TestRunLifecycle(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	run := &model.Run{Provider: "gmail", FromLabel: "INBOX"}
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.ID == "" {
		t.Fatal("CreateRun did not assign an ID")
	}
	if run.Status != model.RunRunning {
		t.Errorf("Status = %q, want running", run.Status)
	}

	run.Status = model.RunDone
	run.Available = 120
	run.Fetched = 100
	if err := s.FinishRun(ctx, *run); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := s.GetRuns(ctx, 10)
	if err != nil {
		t.Fatalf("GetRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	got := runs[0]
	if got.Status != model.RunDone || got.Available != 120 || got.Fetched != 100 {
		t.Errorf("run = %+v", got)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
}

func TestFinishUnknownRun(t *testing.T) {
	s := testutil.NewTestStore(t)
	err := s.FinishRun(context.Background(), model.Run{ID: "missing", Status: model.RunFailed})
	if err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestImports(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	run := &model.Run{Provider: "gmail", FromLabel: "INBOX"}
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []model.ImportRecord{
		{
			RunID: run.ID, ThreadID: "t1", NotePath: "Mail/First.md",
			Subject: "First", ImportedAt: base,
		},
		{
			RunID: run.ID, ThreadID: "t2", NotePath: "Mail/Second.md",
			Subject: "Second", Attachments: []string{"Mail/attachments/a.pdf"},
			Trashed: true, ImportedAt: base.Add(time.Minute),
		},
	}
	for _, rec := range records {
		if err := s.RecordImport(ctx, rec); err != nil {
			t.Fatalf("RecordImport(%s): %v", rec.ThreadID, err)
		}
	}

	got, err := s.GetImports(ctx, 10)
	if err != nil {
		t.Fatalf("GetImports: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d imports, want 2", len(got))
	}
	if got[0].ThreadID != "t2" {
		t.Errorf("first import = %s, want newest first", got[0].ThreadID)
	}
	if !got[0].Trashed || len(got[0].Attachments) != 1 || got[0].Attachments[0] != "Mail/attachments/a.pdf" {
		t.Errorf("import = %+v", got[0])
	}
	if got[1].Trashed || len(got[1].Attachments) != 0 {
		t.Errorf("import = %+v", got[1])
	}
	if !got[1].ImportedAt.Equal(base) {
		t.Errorf("ImportedAt = %v, want %v", got[1].ImportedAt, base)
	}

	limited, err := s.GetImports(ctx, 1)
	if err != nil {
		t.Fatalf("GetImports(1): %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit ignored: got %d", len(limited))
	}

	forThread, err := s.GetImportsForThread(ctx, "t1")
	if err != nil {
		t.Fatalf("GetImportsForThread: %v", err)
	}
	if len(forThread) != 1 || forThread[0].NotePath != "Mail/First.md" {
		t.Errorf("imports for t1 = %+v", forThread)
	}
}

func TestImportRequiresRun(t *testing.T) {
	s := testutil.NewTestStore(t)
	err := s.RecordImport(context.Background(), model.ImportRecord{
		RunID: "no-such-run", ThreadID: "t1", NotePath: "Mail/x.md",
	})
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestNotifications(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for _, msg := range []string{"Fetch starting", "Your inbox is up to date"} {
		if err := s.CreateNotification(ctx, model.Notification{Provider: "gmail", Message: msg}); err != nil {
			t.Fatalf("CreateNotification: %v", err)
		}
	}

	got, err := s.GetNotifications(ctx, 10)
	if err != nil {
		t.Fatalf("GetNotifications: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d notifications, want 2", len(got))
	}
	if got[0].Message != "Your inbox is up to date" {
		t.Errorf("newest = %q", got[0].Message)
	}
	if got[0].ID == "" {
		t.Error("notification ID not assigned")
	}
}
