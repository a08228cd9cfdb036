// internal/form/submit.go
//
// mqa – Forms subsystem: consolidated Submit helper.
//
// Context
//   Most handlers want one call that parses the POST body (urlencoded or
//   multipart), validates input, and returns the clean values or a
//   validation error.  HandleSubmit provides that convenience so component
//   code stays terse.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
)

// Submission is the outcome of a successful HandleSubmit.
type Submission struct {
	Values Values
	Files  map[string][]*multipart.FileHeader
}

// HandleSubmit parses r, validates against formID, and returns the sanitized
// data.  maxMemory bounds the in-memory part of a multipart body.  On
// validation failure it returns a validation error (check with
// IsValidationError / FieldErrors).  On unexpected system failures it
// returns a generic error.
func HandleSubmit(formID string, r *http.Request, maxMemory int64) (Submission, error) {
	var files map[string][]*multipart.FileHeader
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return Submission{}, err
		}
		if r.MultipartForm != nil {
			files = r.MultipartForm.File
		}
	} else if err := r.ParseForm(); err != nil {
		return Submission{}, err
	}

	clean, upload, errs := ValidateForm(formID, r.PostForm, files)
	if len(errs) > 0 {
		return Submission{}, validationError{Fields: errs}
	}
	return Submission{Values: clean, Files: upload}, nil
}

// IsValidationError reports whether err came from failed ValidateForm.
func IsValidationError(err error) bool {
	var ve validationError
	return errors.As(err, &ve)
}

// FieldErrors returns the field failures carried by a validation error, or
// nil for any other error.
func FieldErrors(err error) []ErrorField {
	var ve validationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}
