package main

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type CompletedContact struct {
	Name      string
	Phone     string
	Hash      string
	Timestamp string
}

// CompletedTracker is an append-only CSV ledger of delivered messages. A
// contact counts as completed when the same phone and name already received
// the same template.
type CompletedTracker struct {
	filePath  string
	template  string
	completed map[string]CompletedContact // key: hash
	logger    zerolog.Logger
}

func NewCompletedTracker(filePath, template string, logger zerolog.Logger) (*CompletedTracker, error) {
	tracker := &CompletedTracker{
		filePath:  filePath,
		template:  template,
		completed: make(map[string]CompletedContact),
		logger:    logger,
	}

	if err := tracker.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load completed contacts: %w", err)
	}

	return tracker, nil
}

func (ct *CompletedTracker) hash(contact Contact) string {
	sum := sha256.Sum256([]byte(contact.Phone + "|" + contact.Name + "|" + ct.template))
	return hex.EncodeToString(sum[:])
}

func (ct *CompletedTracker) load() error {
	file, err := os.Open(ct.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read completed CSV: %w", err)
	}

	if len(records) == 0 {
		return nil
	}

	header := records[0]
	nameIdx := columnIndex(header, "name")
	phoneIdx := columnIndex(header, "phone_number", "phone")
	hashIdx := columnIndex(header, "hash")
	timestampIdx := columnIndex(header, "timestamp", "date")
	if nameIdx == -1 || phoneIdx == -1 || hashIdx == -1 {
		return fmt.Errorf("completed CSV must contain 'name', 'phone_number', and 'hash' columns")
	}

	for _, row := range records[1:] {
		entry := CompletedContact{
			Name:      cell(row, nameIdx),
			Phone:     cell(row, phoneIdx),
			Hash:      cell(row, hashIdx),
			Timestamp: cell(row, timestampIdx),
		}
		if entry.Hash != "" {
			ct.completed[entry.Hash] = entry
		}
	}

	ct.logger.Info().
		Int("count", len(ct.completed)).
		Str("path", ct.filePath).
		Msg("loaded completed contacts")

	return nil
}

func (ct *CompletedTracker) IsCompleted(contact Contact) bool {
	_, exists := ct.completed[ct.hash(contact)]
	return exists
}

func (ct *CompletedTracker) MarkCompleted(contact Contact) error {
	entry := CompletedContact{
		Name:      contact.Name,
		Phone:     contact.Phone,
		Hash:      ct.hash(contact),
		Timestamp: time.Now().Format(reportTimeLayout),
	}
	ct.completed[entry.Hash] = entry

	return ct.appendToFile(entry)
}

// Observe records successful results in the ledger. It fits SessionOptions.OnResult.
func (ct *CompletedTracker) Observe(result SendResult) {
	if result.Status != StatusSuccess {
		return
	}
	if err := ct.MarkCompleted(result.Contact); err != nil {
		ct.logger.Warn().Err(err).Str("phone", result.Contact.Phone).Msg("failed to mark contact as completed")
	}
}

var completedColumns = []string{"name", "phone_number", "hash", "timestamp"}

func (ct *CompletedTracker) appendToFile(entry CompletedContact) error {
	info, statErr := os.Stat(ct.filePath)
	needsHeader := os.IsNotExist(statErr) || (statErr == nil && info.Size() == 0)

	file, err := os.OpenFile(ct.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open completed CSV: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if needsHeader {
		_ = writer.Write(completedColumns)
	}
	_ = writer.Write([]string{entry.Name, entry.Phone, entry.Hash, entry.Timestamp})
	writer.Flush()

	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to append to completed CSV: %w", err)
	}
	return nil
}

func (ct *CompletedTracker) Count() int {
	return len(ct.completed)
}
