package main

import (
	"fmt"
	"os"
	"strings"
)

const DefaultFallbackName = "Cliente"

// greetingRewrite shortens a greeting when the contact has no name, so that
// "Olá {nome}!" reads "Olá!" instead of "Olá Cliente!".
type greetingRewrite struct {
	from, to string
}

var defaultGreetings = []greetingRewrite{
	{"Olá {nome}", "Olá"},
	{"Oi {nome}", "Oi"},
	{"Hello {name}", "Hello"},
	{"Hi {name}", "Hi"},
}

// Personalizer fills the {nome}/{name} and {numero}/{phone} placeholders of a
// message template. Substitution is literal; there is no escaping.
type Personalizer struct {
	fallbackName string
	greetings    []greetingRewrite
}

func NewPersonalizer(fallbackName string) *Personalizer {
	if fallbackName == "" {
		fallbackName = DefaultFallbackName
	}
	return &Personalizer{
		fallbackName: fallbackName,
		greetings:    defaultGreetings,
	}
}

func (p *Personalizer) Personalize(template string, contact Contact) string {
	msg := template

	// Name tokens are replaced before phone tokens.
	if contact.Name != "" {
		msg = strings.ReplaceAll(msg, "{nome}", contact.Name)
		msg = strings.ReplaceAll(msg, "{name}", contact.Name)
	} else {
		for _, g := range p.greetings {
			msg = strings.ReplaceAll(msg, g.from, g.to)
		}
		msg = strings.ReplaceAll(msg, "{nome}", p.fallbackName)
		msg = strings.ReplaceAll(msg, "{name}", p.fallbackName)
	}

	msg = strings.ReplaceAll(msg, "{numero}", contact.Phone)
	msg = strings.ReplaceAll(msg, "{phone}", contact.Phone)

	return msg
}

// LoadTemplate reads a message template from disk. Surrounding whitespace is
// trimmed; interior line breaks are kept.
func LoadTemplate(filePath string) (string, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read template file: %w", err)
	}
	return strings.TrimSpace(strings.ReplaceAll(string(content), "\r\n", "\n")), nil
}
