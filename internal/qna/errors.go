package qna

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yanizio/mqa/internal/form"
)

// ErrDuplicate marks a registration or edit whose question exactly matches
// an existing record.
var ErrDuplicate = errors.New("question already registered")

// ErrNoUploader is reported per file when attachments arrive but no drive
// backend is configured.
var ErrNoUploader = errors.New("attachments are disabled")

// ErrTooLarge is reported per file above the configured size limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// ValidationError lists missing or malformed fields.  No store call has
// been made when it is returned.
type ValidationError struct {
	Fields []form.ErrorField
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Name)
	}
	return "invalid submission: " + strings.Join(names, ", ")
}

// DuplicateError carries the records that blocked the write.
type DuplicateError struct {
	Matches []Suggestion
}

func (e *DuplicateError) Error() string {
	if len(e.Matches) == 0 {
		return ErrDuplicate.Error()
	}
	return fmt.Sprintf("%s (record %d)", ErrDuplicate, e.Matches[0].Record.Seq)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }

// StoreError wraps a tabular store failure.  Op names the store call.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "store " + e.Op + ": " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

// UploadError wraps the failure of one attachment.
type UploadError struct {
	File string
	Err  error
}

func (e *UploadError) Error() string { return "upload " + e.File + ": " + e.Err.Error() }
func (e *UploadError) Unwrap() error { return e.Err }
