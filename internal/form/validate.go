// internal/form/validate.go
//
// mqa – Forms subsystem: server-side validation and sanitization.
//
// Context
//   The renderer outputs HTML containing a CSRF token and timestamp.  When the
//   browser posts user input, this file verifies the submission: CSRF, timing,
//   required fields, type constraints, regex patterns, option values, length
//   limits, and file fields.  It returns trimmed values that business logic
//   can trust.
//
// Workflow
//   •  ValidateForm retrieves the FormDef and checks CSRF + render timestamp
//      before per-field validation.
//   •  Each field is validated and trimmed by type.  Errors are captured in
//      []ErrorField so templates can highlight exact issues.
//   •  On success a Values map of clean strings is returned; file fields are
//      returned separately as multipart headers.
//   •  On failure callers wrap the []ErrorField in validationError (see
//      submit.go) and treat it as a user error, not a 500.
//
// Notes
//   Values are NOT HTML-escaped here.  They are stored verbatim and escaped
//   by html/template at render time.
//
//------------------------------------------------------------------------------

package form

import (
	"fmt"
	"mime/multipart"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// -----------------------------------------------------------------------------
// Error types
// -----------------------------------------------------------------------------

// ErrorField describes a single validation failure so the template can render
// a field-level message.  Name is empty for form-level failures.
type ErrorField struct {
	Name    string // field name
	Message string // user-facing message
}

// validationError wraps []ErrorField and satisfies the error interface.
//
// It allows callers (HandleSubmit, component handlers) to distinguish user
// input errors from system failures via errors.As / IsValidationError.
type validationError struct{ Fields []ErrorField }

func (ve validationError) Error() string { return "form validation failed" }

// -----------------------------------------------------------------------------
// Timing window
// -----------------------------------------------------------------------------

var (
	minFill atomic.Int64 // nanoseconds
	maxFill atomic.Int64
)

func init() {
	minFill.Store(int64(2 * time.Second))
	maxFill.Store(int64(30 * time.Minute))
}

// SetTiming overrides how soon after render a form may be submitted and how
// long it stays valid.  A zero min disables the too-fast check.
func SetTiming(min, max time.Duration) {
	minFill.Store(int64(min))
	if max > 0 {
		maxFill.Store(int64(max))
	}
}

// -----------------------------------------------------------------------------
// Public API
// -----------------------------------------------------------------------------

// Values holds sanitized submission values keyed by field name.  Checkbox
// fields carry "true" when ticked.
type Values map[string]string

// ValidateForm validates posted form data (already parsed into url.Values) for
// formID.  files carries multipart file headers and may be nil for urlencoded
// posts.  A non-empty error slice means UI re-render is required.
func ValidateForm(formID string, posted url.Values, files map[string][]*multipart.FileHeader) (Values, map[string][]*multipart.FileHeader, []ErrorField) {
	fd, ok := GetFormDef(formID)
	if !ok {
		return nil, nil, []ErrorField{{Name: "", Message: "Unknown form."}}
	}

	var errs []ErrorField
	clean := make(Values)
	upload := make(map[string][]*multipart.FileHeader)

	// -------------------------------------------------------------------------
	// Form-level checks: CSRF + render timestamp
	// -------------------------------------------------------------------------
	if !verifyCSRF(posted.Get("csrf_token")) {
		errs = append(errs, ErrorField{"", "Security token invalid.  Please refresh and try again."})
		return nil, nil, errs
	}
	if msg := checkTiming(posted.Get("render_ts")); msg != "" {
		errs = append(errs, ErrorField{"", msg})
		return nil, nil, errs
	}

	// -------------------------------------------------------------------------
	// Per-field validation
	// -------------------------------------------------------------------------
	for _, f := range fd.Fields {
		if f.Type == "file" {
			hs := postedFiles(files, f.Name)
			if f.Required && len(hs) == 0 {
				errs = append(errs, ErrorField{f.Name, requiredMsg(&f)})
				continue
			}
			if !f.Multiple && len(hs) > 1 {
				errs = append(errs, ErrorField{f.Name, "Only one file may be attached."})
				continue
			}
			if len(hs) > 0 {
				upload[f.Name] = hs
			}
			continue
		}

		raw, present := extractValue(posted, &f)

		// Required
		if f.Required && (!present || strings.TrimSpace(raw) == "") {
			errs = append(errs, ErrorField{f.Name, requiredMsg(&f)})
			continue
		}
		// Empty optional – nothing more to do.
		if !present || strings.TrimSpace(raw) == "" {
			continue
		}

		val, perr := validateAndSanitize(&f, raw)
		if perr != "" {
			errs = append(errs, ErrorField{f.Name, perr})
			continue
		}
		clean[f.Name] = val
	}

	return clean, upload, errs
}

// -----------------------------------------------------------------------------
// Form-level helpers
// -----------------------------------------------------------------------------

func verifyCSRF(token string) bool {
	return token != "" && VerifyToken(token)
}

// checkTiming ensures the form was not submitted suspiciously fast or too late.
// Returns empty string on success, user-visible message on failure.
func checkTiming(tsRaw string) string {
	if tsRaw == "" {
		return "Timestamp missing.  Please reload the page."
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return "Bad timestamp.  Please retry."
	}
	delta := time.Since(time.UnixMicro(ts))
	switch {
	case delta < time.Duration(minFill.Load()):
		return "Form submitted too quickly.  Please enter the fields manually."
	case delta > time.Duration(maxFill.Load()):
		return "Form expired.  Please reload and submit again."
	default:
		return ""
	}
}

// -----------------------------------------------------------------------------
// Field-level helpers
// -----------------------------------------------------------------------------

// extractValue obtains the raw submitted value for field f.
func extractValue(v url.Values, f *FieldDef) (string, bool) {
	raw, ok := v[f.Name]
	if !ok || len(raw) == 0 {
		return "", false
	}
	return raw[0], true
}

// postedFiles drops empty parts; browsers post one for an untouched input.
func postedFiles(files map[string][]*multipart.FileHeader, name string) []*multipart.FileHeader {
	var out []*multipart.FileHeader
	for _, h := range files[name] {
		if h != nil && h.Filename != "" && h.Size > 0 {
			out = append(out, h)
		}
	}
	return out
}

func validateAndSanitize(f *FieldDef, raw string) (string, string) {
	val := strings.TrimSpace(raw)

	switch f.Type {
	case "text", "textarea", "hidden":
		if msg := lengthCheck(f, val); msg != "" {
			return "", msg
		}
		if f.Pattern != "" && !regexMatch(f.Pattern, val) {
			return "", patternMsg(f)
		}
		return val, ""

	case "email":
		if msg := lengthCheck(f, val); msg != "" {
			return "", msg
		}
		if _, err := mail.ParseAddress(val); err != nil {
			return "", invalidMsg(f)
		}
		return val, ""

	case "password":
		if msg := lengthCheck(f, val); msg != "" {
			return "", msg
		}
		return val, ""

	case "number":
		if msg := lengthCheck(f, val); msg != "" {
			return "", msg
		}
		if _, err := strconv.ParseFloat(val, 64); err != nil {
			return "", invalidMsg(f)
		}
		return val, ""

	case "date":
		if _, err := time.Parse("2006-01-02", val); err != nil {
			return "", invalidMsg(f)
		}
		return val, ""

	case "checkbox":
		// Checked = true, unchecked not present.
		return "true", ""

	case "select", "radio":
		if !optionAllowed(f.Options, val) {
			return "", invalidMsg(f)
		}
		return val, ""

	default:
		return "", fmt.Sprintf("Unsupported field type %q.", f.Type)
	}
}

// lengthCheck validates minlength / maxlength rules in characters.
func lengthCheck(f *FieldDef, s string) string {
	n := utf8.RuneCountInString(s)
	if f.MinLength > 0 && n < f.MinLength {
		return fmt.Sprintf("Must be at least %d characters.", f.MinLength)
	}
	if f.MaxLength > 0 && n > f.MaxLength {
		return fmt.Sprintf("Must be at most %d characters.", f.MaxLength)
	}
	return ""
}

func regexMatch(pattern, s string) bool {
	re, _ := regexp.Compile(pattern) // pattern pre-validated at load
	return re.MatchString(s)
}

func optionAllowed(opts []string, v string) bool {
	for _, o := range opts {
		if o == v {
			return true
		}
	}
	return false
}

// user-friendly default messages
func requiredMsg(f *FieldDef) string {
	if f.ErrorMsg != "" {
		return f.ErrorMsg
	}
	return "This field is required."
}
func invalidMsg(f *FieldDef) string {
	if f.ErrorMsg != "" {
		return f.ErrorMsg
	}
	return "Invalid input."
}
func patternMsg(f *FieldDef) string {
	if f.ErrorMsg != "" {
		return f.ErrorMsg
	}
	return "Input does not match required format."
}
