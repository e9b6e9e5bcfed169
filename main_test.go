package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func cliConfig(t *testing.T, contacts, template string) *Config {
	t.Helper()

	dir := t.TempDir()
	contactsPath := filepath.Join(dir, "contacts.txt")
	templatePath := filepath.Join(dir, "message.txt")
	if err := os.WriteFile(contactsPath, []byte(contacts), 0o600); err != nil {
		t.Fatalf("write contacts: %v", err)
	}
	if err := os.WriteFile(templatePath, []byte(template), 0o600); err != nil {
		t.Fatalf("write template: %v", err)
	}

	return &Config{
		Files: FilesConfig{
			ContactsPath: contactsPath,
			TemplatePath: templatePath,
			ReportDir:    filepath.Join(dir, "reports"),
		},
		Phone: PhoneConfig{CountryCode: "55", MobilePrefix: "9", FallbackName: "Cliente"},
	}
}

func reportFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "send_report_*.csv"))
	if err != nil {
		t.Fatalf("glob reports: %v", err)
	}
	return matches
}

func TestRunCLI_SendsAndWritesReport(t *testing.T) {
	t.Parallel()

	cfg := cliConfig(t, "Maria, 11988888888\ninvalid\n(11) 97777-7777\n", "Olá {nome}!")
	sender := &fakeSender{}
	var out bytes.Buffer

	err := runCLI(context.Background(), cfg, sender, zerolog.Nop(), strings.NewReader("yes\n"), &out, false)
	if err != nil {
		t.Fatalf("runCLI() error: %v", err)
	}

	if len(sender.calls) != 2 || sender.calls[0] != "5511988888888" || sender.calls[1] != "5511977777777" {
		t.Fatalf("unexpected sends: %v", sender.calls)
	}
	if sender.messages[1] != "Olá!" {
		t.Fatalf("unexpected message for unnamed contact: %q", sender.messages[1])
	}
	if !strings.Contains(out.String(), "Olá Maria!") {
		t.Fatalf("expected the sample message to be shown, got %q", out.String())
	}

	reports := reportFiles(t, cfg.Files.ReportDir)
	if len(reports) != 1 {
		t.Fatalf("expected one report file, got %v", reports)
	}
	data, err := os.ReadFile(reports[0])
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if strings.Count(strings.TrimSpace(string(data)), "\n") != 2 {
		t.Fatalf("expected header plus 2 rows, got %q", data)
	}
}

func TestRunCLI_DeclinedConfirmationSendsNothing(t *testing.T) {
	t.Parallel()

	cfg := cliConfig(t, "Maria, 11988888888\n", "hi")
	sender := &fakeSender{}

	err := runCLI(context.Background(), cfg, sender, zerolog.Nop(), strings.NewReader("no\n"), &bytes.Buffer{}, false)
	if err != nil {
		t.Fatalf("runCLI() error: %v", err)
	}
	if len(sender.calls) != 0 {
		t.Fatalf("expected no sends, got %v", sender.calls)
	}
	if reports := reportFiles(t, cfg.Files.ReportDir); len(reports) != 0 {
		t.Fatalf("expected no report, got %v", reports)
	}
}

func TestRunCLI_FailuresAreReported(t *testing.T) {
	t.Parallel()

	cfg := cliConfig(t, "Maria, 11988888888\n", "hi")
	sender := &fakeSender{fail: map[string]error{"5511988888888": errors.New("number blocked")}}

	err := runCLI(context.Background(), cfg, sender, zerolog.Nop(), nil, &bytes.Buffer{}, true)
	if !errors.Is(err, errSendFailures) {
		t.Fatalf("expected errSendFailures, got %v", err)
	}
	if reports := reportFiles(t, cfg.Files.ReportDir); len(reports) != 1 {
		t.Fatalf("expected report even when sends fail, got %v", reports)
	}
}

func TestRunCLI_NoValidContacts(t *testing.T) {
	t.Parallel()

	cfg := cliConfig(t, "invalid\n", "hi")
	err := runCLI(context.Background(), cfg, &fakeSender{}, zerolog.Nop(), nil, &bytes.Buffer{}, true)
	if !errors.Is(err, ErrNoContacts) {
		t.Fatalf("expected ErrNoContacts, got %v", err)
	}
}

func TestRunCLI_MissingAttachmentAbortsBeforeSending(t *testing.T) {
	t.Parallel()

	cfg := cliConfig(t, "Maria, 11988888888\n", "hi")
	cfg.Files.AttachmentPath = filepath.Join(t.TempDir(), "missing.png")
	sender := &fakeSender{}

	err := runCLI(context.Background(), cfg, sender, zerolog.Nop(), nil, &bytes.Buffer{}, true)
	if !errors.Is(err, ErrAttachmentIO) {
		t.Fatalf("expected ErrAttachmentIO, got %v", err)
	}
	if len(sender.calls) != 0 {
		t.Fatalf("expected no sends, got %v", sender.calls)
	}
}

func TestConfirm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{"yes\n", true},
		{"  YES  \n", true},
		{"y\n", false},
		{"", false},
	}
	for _, tt := range tests {
		got, err := confirm(strings.NewReader(tt.input), &bytes.Buffer{}, 3)
		if err != nil {
			t.Fatalf("confirm(%q) error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Fatalf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewSender_DryRunIsSimulated(t *testing.T) {
	t.Parallel()

	cfg := &Config{Sending: SendingConfig{SuccessProbability: 1, Seed: 3}}
	sender, closeFn, err := newSender(context.Background(), cfg, true, zerolog.Nop())
	if err != nil {
		t.Fatalf("newSender() error: %v", err)
	}
	defer closeFn()

	if _, ok := sender.(*SimulatedSender); !ok {
		t.Fatalf("expected simulated sender, got %T", sender)
	}
	if err := sender.Send(context.Background(), "5511988888888", "hi", nil); err != nil {
		t.Fatalf("expected success with probability 1, got %v", err)
	}
}
