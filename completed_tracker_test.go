package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestCompletedTracker_MarkAndReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "completed.csv")
	maria := Contact{Name: "Maria", Phone: "5511988888888"}

	tracker, err := NewCompletedTracker(path, "Olá {nome}", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCompletedTracker() error: %v", err)
	}
	if tracker.IsCompleted(maria) {
		t.Fatalf("fresh tracker must not report completion")
	}

	if err := tracker.MarkCompleted(maria); err != nil {
		t.Fatalf("MarkCompleted() error: %v", err)
	}
	if !tracker.IsCompleted(maria) || tracker.Count() != 1 {
		t.Fatalf("expected contact to be completed")
	}

	reloaded, err := NewCompletedTracker(path, "Olá {nome}", zerolog.Nop())
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if !reloaded.IsCompleted(maria) {
		t.Fatalf("expected completion to survive reload")
	}

	otherTemplate, err := NewCompletedTracker(path, "Promoção nova", zerolog.Nop())
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if otherTemplate.IsCompleted(maria) {
		t.Fatalf("a different template must not count as completed")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || lines[0] != "name,phone_number,hash,timestamp" {
		t.Fatalf("unexpected ledger contents: %q", data)
	}
}

func TestCompletedTracker_ObserveOnlySuccesses(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "completed.csv")
	tracker, err := NewCompletedTracker(path, "hi", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCompletedTracker() error: %v", err)
	}

	ok := Contact{Name: "Ana", Phone: "5521999990001"}
	failed := Contact{Name: "Bruno", Phone: "5521999990002"}
	tracker.Observe(SendResult{Contact: ok, Status: StatusSuccess})
	tracker.Observe(SendResult{Contact: failed, Status: StatusFailure, Reason: "number blocked"})

	if !tracker.IsCompleted(ok) {
		t.Fatalf("successful send must be recorded")
	}
	if tracker.IsCompleted(failed) {
		t.Fatalf("failed send must not be recorded")
	}
}

func TestCompletedTracker_InvalidLedger(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "completed.csv")
	if err := os.WriteFile(path, []byte("foo,bar\n1,2\n"), 0o600); err != nil {
		t.Fatalf("write ledger: %v", err)
	}
	if _, err := NewCompletedTracker(path, "hi", zerolog.Nop()); err == nil {
		t.Fatalf("expected error for ledger without required columns")
	}
}

func TestCompletedTracker_SkipsRerunThroughSession(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "completed.csv")
	cfg := &Config{Files: FilesConfig{CompletedCSVPath: path}, Sending: SendingConfig{SkipCompleted: true}}
	contacts := testContacts()

	runOnce := func() *SendRun {
		t.Helper()
		opts, err := newSessionOptions(cfg, "hi {nome}", &fakeSender{}, zerolog.Nop())
		if err != nil {
			t.Fatalf("newSessionOptions() error: %v", err)
		}
		opts.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
		s := NewSession(contacts, "hi {nome}", opts)
		confirmSession(t, s)
		run, err := s.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		return run
	}

	first := runOnce()
	if first.Sent() != len(contacts) {
		t.Fatalf("expected all contacts sent on first run, got %d", first.Sent())
	}

	second := runOnce()
	if second.Sent() != 0 || second.Total() != len(contacts) {
		t.Fatalf("expected every contact skipped on rerun, got sent=%d total=%d", second.Sent(), second.Total())
	}
	for _, r := range second.Results {
		if r.Reason != reasonAlreadySent {
			t.Fatalf("unexpected reason %q", r.Reason)
		}
	}
}

func TestCompletedTracker_EmptyLedgerGetsHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "completed.csv")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("create empty ledger: %v", err)
	}

	tracker, err := NewCompletedTracker(path, "hi", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCompletedTracker() error: %v", err)
	}
	maria := Contact{Name: "Maria", Phone: "5511988888888"}
	if err := tracker.MarkCompleted(maria); err != nil {
		t.Fatalf("MarkCompleted() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if !strings.HasPrefix(string(data), "name,phone_number,hash,timestamp\n") {
		t.Fatalf("expected header in a previously empty ledger, got %q", data)
	}

	reloaded, err := NewCompletedTracker(path, "hi", zerolog.Nop())
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if !reloaded.IsCompleted(maria) {
		t.Fatalf("expected completion to survive reload")
	}
}
