package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
)

var (
	// ErrNoContacts means a run was requested without any valid contact.
	ErrNoContacts = errors.New("no valid contacts")
	// ErrEmptyMessage means the message template is blank.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNotConfirmed is returned by Run when the session was never confirmed.
	ErrNotConfirmed = errors.New("send run not confirmed")
	// ErrInvalidState is returned for a transition the session state forbids.
	ErrInvalidState = errors.New("invalid session state")
	// ErrAttachmentIO means the attachment could not be read before the run.
	ErrAttachmentIO = errors.New("attachment could not be read")
	// ErrAutomationTimeout means a bounded wait on a WhatsApp Web element expired.
	ErrAutomationTimeout = errors.New("timed out waiting for page element")
	// ErrSessionNotFound means no pending session exists under an ID.
	ErrSessionNotFound = errors.New("session not found or already sent")
)

// Sender delivers one message to one phone number. A nil error means success;
// otherwise the error text is recorded as the failure reason.
type Sender interface {
	Send(ctx context.Context, phone, message string, attachment *Attachment) error
}

// Attachment is a file read into memory once before a run and shared by every
// send attempt of that run.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

func NewAttachment(filename string, data []byte) *Attachment {
	return &Attachment{
		Filename:    filepath.Base(filename),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}
}

// LoadAttachment reads the file at filePath. An empty path yields no attachment.
func LoadAttachment(filePath string) (*Attachment, error) {
	if filePath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttachmentIO, err)
	}
	return NewAttachment(filePath, data), nil
}
