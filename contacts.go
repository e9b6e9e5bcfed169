package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Contact is one parsed recipient. Phone is normalized; Original is the input
// line it came from and is kept for display in reports.
type Contact struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Original string `json:"original"`
}

// ContactParser turns freeform text into contacts using a phone policy.
type ContactParser struct {
	policy PhonePolicy
}

func NewContactParser(policy PhonePolicy) *ContactParser {
	return &ContactParser{policy: policy}
}

// Parse reads one contact per non-blank line. "Name, phone" lines carry a name,
// bare lines are only a phone. Lines with an invalid phone are dropped.
func (p *ContactParser) Parse(text string) []Contact {
	contacts, _ := p.parse(text)
	return contacts
}

// ParseStats is Parse plus the number of non-blank lines that were considered,
// so callers can tell how many lines were rejected.
func (p *ContactParser) ParseStats(text string) (contacts []Contact, lines int) {
	return p.parse(text)
}

func (p *ContactParser) parse(text string) ([]Contact, int) {
	var contacts []Contact
	lines := 0

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lines++

		name, phone := "", trimmed
		if before, after, ok := strings.Cut(trimmed, ","); ok {
			name = strings.TrimSpace(before)
			phone = strings.TrimSpace(after)
		}

		contact, ok := p.newContact(name, phone, line)
		if !ok {
			continue
		}
		contacts = append(contacts, contact)
	}

	return contacts, lines
}

func (p *ContactParser) newContact(name, phone, original string) (Contact, bool) {
	if !p.policy.Validate(phone) {
		return Contact{}, false
	}
	formatted := p.policy.Format(phone)
	if !p.policy.Validate(formatted) {
		return Contact{}, false
	}
	return Contact{
		Name:     name,
		Phone:    formatted,
		Original: original,
	}, true
}

// LoadContactsFile reads contacts from disk. Files ending in .csv need a header
// with "name" and "phone_number" (or "phone") columns; anything else is parsed
// as freeform text.
func (p *ContactParser) LoadContactsFile(filePath string) ([]Contact, error) {
	if strings.EqualFold(filepath.Ext(filePath), ".csv") {
		return p.loadCSV(filePath)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read contacts file: %w", err)
	}
	return p.Parse(string(data)), nil
}

func (p *ContactParser) loadCSV(filePath string) ([]Contact, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("CSV file is empty")
	}

	nameIdx := columnIndex(records[0], "name")
	phoneIdx := columnIndex(records[0], "phone_number", "phone")
	if nameIdx == -1 || phoneIdx == -1 {
		return nil, fmt.Errorf("CSV must contain 'name' and 'phone_number' columns")
	}

	contacts := make([]Contact, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) <= nameIdx || len(row) <= phoneIdx {
			continue
		}

		contact, ok := p.newContact(cell(row, nameIdx), cell(row, phoneIdx), strings.Join(row, ","))
		if !ok {
			continue
		}
		contacts = append(contacts, contact)
	}

	return contacts, nil
}

// columnIndex finds the first header column matching one of names, ignoring
// case and surrounding space. It returns -1 when none matches.
func columnIndex(header []string, names ...string) int {
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(col))
		for _, name := range names {
			if col == name {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
