// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `internal/config/loader.go` calls `validateStruct` immediately after it
// unmarshals the merged Koanf tree into a `Config` instance.  Any tag
// mismatch or validation error aborts startup, ensuring the binary never
// runs with partial, malformed, or missing configuration.
//
// Besides the tag rules, one cross-field rule lives here: the Google
// backends need a service-account credential, given either as a file path
// or as inline JSON.
//
// Notes
// -----
//   • Oxford commas, two spaces after periods.
//   • Section dividers use the simple comment style requested.

package config

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

//
// validator instance (package-level singleton)
//

var v = validator.New()

//
// public API
//

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	if err := v.Struct(c); err != nil {
		return err
	}
	needsGoogle := c.Store.Backend == "gsheets" || c.Drive.Backend == "gdrive"
	if needsGoogle && c.Store.CredentialsFile == "" && c.Store.CredentialsJSON == "" {
		return errors.New("config: store.credentials_file or store.credentials_json is required for Google backends")
	}
	if c.Matcher.WarnThreshold > c.Matcher.ExactThreshold {
		return errors.New("config: matcher.warn_threshold must not exceed matcher.exact_threshold")
	}
	return nil
}
