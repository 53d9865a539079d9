package notify_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nhle/mailnote/internal/model"
	"github.com/nhle/mailnote/internal/notify"
	"github.com/nhle/mailnote/tests/testutil"
)

func TestMessages(t *testing.T) {
	tests := []struct {
		got  notify.Event
		want string
	}{
		{notify.Progress(40), "40% fetched"},
		{notify.Fetched(100), "100 mails fetched."},
		{notify.Remaining(20), "There are 20 mails not fetched."},
		{notify.SetupRequired(), "Please set up authorization first"},
		{notify.Failed(errors.New("boom")), "Fetch failed: boom"},
	}
	for _, tt := range tests {
		if tt.got.Message != tt.want {
			t.Errorf("Message = %q, want %q", tt.got.Message, tt.want)
		}
	}
	if p := notify.Progress(60); p.Kind != notify.KindProgress || p.Percent != 60 {
		t.Errorf("Progress(60) = %+v", p)
	}
}

func TestMultiSkipsNil(t *testing.T) {
	var got []string
	record := notify.Func(func(_ context.Context, e notify.Event) {
		got = append(got, e.Message)
	})

	n := notify.Multi(record, nil, record)
	n.Notify(context.Background(), notify.Info(notify.MsgFetchStarting))

	if len(got) != 2 {
		t.Fatalf("delivered %d times, want 2", len(got))
	}
}

func TestLogNotifierLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	n := notify.NewLogNotifier(zap.New(core))
	ctx := context.Background()

	n.Notify(ctx, notify.Info(notify.MsgUpToDate))
	n.Notify(ctx, notify.SetupRequired())
	n.Notify(ctx, notify.Failed(errors.New("x")))

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("got %d log entries, want 3", len(entries))
	}
	wantLevels := []zapcore.Level{zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != wantLevels[i] {
			t.Errorf("entry %d level = %v, want %v", i, e.Level, wantLevels[i])
		}
	}
	if msg := entries[0].ContextMap()["message"]; msg != notify.MsgUpToDate {
		t.Errorf("message field = %v", msg)
	}
}

func TestStoreNotifier(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	run := &model.Run{Provider: "gmail", FromLabel: "INBOX"}
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	n := notify.NewStoreNotifier(s, "gmail", zap.NewNop())
	e := notify.Fetched(3)
	e.RunID = run.ID
	n.Notify(ctx, e)

	got, err := s.GetNotifications(ctx, 10)
	if err != nil {
		t.Fatalf("GetNotifications: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d notifications", len(got))
	}
	if got[0].Message != "3 mails fetched." || got[0].RunID != run.ID || got[0].Provider != "gmail" {
		t.Errorf("notification = %+v", got[0])
	}
}

func TestWriterNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewWriterNotifier(&buf)
	n.Notify(context.Background(), notify.Info(notify.MsgFetchStarting))
	n.Notify(context.Background(), notify.Progress(20))

	if buf.String() != "Fetch starting\n20% fetched\n" {
		t.Errorf("output = %q", buf.String())
	}
}
