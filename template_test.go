package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPersonalizer_Personalize(t *testing.T) {
	t.Parallel()

	p := NewPersonalizer("")
	named := Contact{Name: "Maria", Phone: "5511988888888"}
	anonymous := Contact{Phone: "5511977777777"}

	tests := []struct {
		name     string
		template string
		contact  Contact
		want     string
	}{
		{"no tokens", "Promoção de hoje!", named, "Promoção de hoje!"},
		{"portuguese tokens", "Olá {nome}, seu número é {numero}", named, "Olá Maria, seu número é 5511988888888"},
		{"english tokens", "Hi {name} ({phone})", named, "Hi Maria (5511988888888)"},
		{"repeated tokens", "{nome} {nome} {name}", named, "Maria Maria Maria"},
		{"greeting rewrite", "Olá {nome}! texto", anonymous, "Olá! texto"},
		{"oi rewrite", "Oi {nome}, tudo bem?", anonymous, "Oi, tudo bem?"},
		{"english greeting rewrite", "Hello {name}!", anonymous, "Hello!"},
		{"fallback label", "Caro {nome}, ligue para {numero}", anonymous, "Caro Cliente, ligue para 5511977777777"},
		{"fallback english", "Dear {name}", anonymous, "Dear Cliente"},
	}

	for _, tt := range tests {
		if got := p.Personalize(tt.template, tt.contact); got != tt.want {
			t.Fatalf("%s: Personalize() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestPersonalizer_CustomFallback(t *testing.T) {
	t.Parallel()

	p := NewPersonalizer("Customer")
	got := p.Personalize("Dear {name}", Contact{Phone: "5511977777777"})
	if got != "Dear Customer" {
		t.Fatalf("expected custom fallback, got %q", got)
	}
}

func TestPersonalizer_NameTokensBeforePhoneTokens(t *testing.T) {
	t.Parallel()

	// A name containing a phone token is substituted once the name is in place.
	p := NewPersonalizer("")
	got := p.Personalize("Oi {nome}", Contact{Name: "{numero}", Phone: "5511988888888"})
	if got != "Oi 5511988888888" {
		t.Fatalf("unexpected substitution order result: %q", got)
	}
}

func TestLoadTemplate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "message.txt")
	if err := os.WriteFile(path, []byte("\r\nOlá {nome}!\r\nLinha dois\r\n\r\n"), 0o600); err != nil {
		t.Fatalf("write template: %v", err)
	}

	got, err := LoadTemplate(path)
	if err != nil {
		t.Fatalf("LoadTemplate() error: %v", err)
	}
	if got != "Olá {nome}!\nLinha dois" {
		t.Fatalf("unexpected template: %q", got)
	}

	if _, err := LoadTemplate(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatalf("expected error for missing template")
	}
}
