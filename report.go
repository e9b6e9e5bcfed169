package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
	"unicode/utf8"
)

const (
	displayMessageLimit = 50
	ellipsis            = "..."
	reportTimeLayout    = "2006-01-02 15:04:05"
)

var reportColumns = []string{"timestamp", "name", "phone", "message", "status", "error", "file_attached"}

// TruncateMessage shortens message to displayMessageLimit runes followed by an
// ellipsis. Shorter messages are returned unchanged.
func TruncateMessage(message string) string {
	if utf8.RuneCountInString(message) <= displayMessageLimit {
		return message
	}
	runes := []rune(message)
	return string(runes[:displayMessageLimit]) + ellipsis
}

type ReportRow struct {
	Timestamp    string
	Name         string
	Phone        string
	Message      string
	Status       string
	Error        string
	FileAttached bool
}

func (r ReportRow) record() []string {
	return []string{
		r.Timestamp,
		r.Name,
		r.Phone,
		r.Message,
		r.Status,
		r.Error,
		strconv.FormatBool(r.FileAttached),
	}
}

// Report is the tabular form of a SendRun, one row per result.
type Report struct {
	RunID       string
	Rows        []ReportRow
	Sent        int
	Failed      int
	SuccessRate float64
}

func BuildReport(run *SendRun) Report {
	report := Report{
		RunID:       run.ID,
		Rows:        make([]ReportRow, 0, len(run.Results)),
		Sent:        run.Sent(),
		Failed:      run.Failed(),
		SuccessRate: run.SuccessRate(),
	}
	for _, res := range run.Results {
		report.Rows = append(report.Rows, ReportRow{
			Timestamp:    res.Timestamp.Format(reportTimeLayout),
			Name:         res.Contact.Name,
			Phone:        res.Contact.Phone,
			Message:      TruncateMessage(res.Message),
			Status:       string(res.Status),
			Error:        res.Reason,
			FileAttached: res.Attachment,
		})
	}
	return report
}

// WriteCSV writes the header followed by every row.
func (r Report) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(reportColumns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range r.Rows {
		if err := writer.Write(row.record()); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// ReportFilename names an exported report after its generation time.
func ReportFilename(t time.Time) string {
	return fmt.Sprintf("send_report_%s.csv", t.Format("20060102_150405"))
}
