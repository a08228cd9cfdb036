// internal/config/model.go
//
// Typed configuration model for mqa.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                       – dotenv values,
//   • `conf/mqa.yaml`                       – primary static file,
//   • `MQA_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *before* unmarshalling, so the model never
// stores Vault URIs, only plain strings.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.  Koanf ignores `yaml` tags
//     unless configured otherwise.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
	ForceHTTPS bool   `koanf:"force_https"`
}

//
// Store section
//

// Store selects the tabular store holding the Q&A sheet.
//
// `memory` keeps rows in-process and is meant for demos and tests.
// `mysql` emulates a sheet in one table; the DSN usually carries a
// `vault:` reference for the password.  `gsheets` talks to a real Google
// spreadsheet with a service-account credential.
type Store struct {
	Backend         string `koanf:"backend"          validate:"required,oneof=memory mysql gsheets"`
	SheetName       string `koanf:"sheet_name"       validate:"required"`
	DSN             string `koanf:"dsn"              validate:"required_if=Backend mysql"`
	SpreadsheetID   string `koanf:"spreadsheet_id"   validate:"required_if=Backend gsheets"`
	CredentialsFile string `koanf:"credentials_file"`
	CredentialsJSON string `koanf:"credentials_json"`
}

//
// Drive section
//

// Drive selects where attachments go.  `none` disables uploads.
type Drive struct {
	Backend       string `koanf:"backend"         validate:"required,oneof=none gdrive s3 local"`
	FolderID      string `koanf:"folder_id"`
	Bucket        string `koanf:"bucket"          validate:"required_if=Backend s3"`
	Region        string `koanf:"region"`
	Endpoint      string `koanf:"endpoint"        validate:"omitempty,url"`
	AccessKeyID   string `koanf:"access_key_id"`
	SecretKey     string `koanf:"secret_key"`
	UsePathStyle  bool   `koanf:"use_path_style"`
	PublicBaseURL string `koanf:"public_base_url" validate:"required_if=Backend s3"`
	LocalPath     string `koanf:"local_path"      validate:"required_if=Backend local"`
	MaxBytes      int64  `koanf:"max_bytes"       validate:"gte=0"`
}

//
// Matcher section
//

// Matcher holds similarity thresholds.
type Matcher struct {
	ExactThreshold   float64 `koanf:"exact_threshold"   validate:"gt=0,lte=1"`
	WarnThreshold    float64 `koanf:"warn_threshold"    validate:"gte=0,lte=1"`
	SuggestThreshold float64 `koanf:"suggest_threshold" validate:"gte=0,lte=1"`
	Limit            int     `koanf:"limit"             validate:"gte=1,lte=20"`
	FoldCase         bool    `koanf:"fold_case"`
}

//
// Form section
//

// Form holds submission rules.
type Form struct {
	AnswerRequired bool   `koanf:"answer_required"`
	MinFillSeconds int    `koanf:"min_fill_seconds" validate:"gte=0"`
	CSRFKey        string `koanf:"csrf_key"`
}

//
// Locate section
//

// Locate picks the row-resolution strategy for edit and delete.
type Locate struct {
	Strategy string `koanf:"strategy" validate:"required,oneof=position search"`
}

//
// Log and Geo sections
//

// Log configures the file logger.  Dir defaults to <root>/logs.
type Log struct {
	Dir   string `koanf:"dir"`
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
}

// Geo points at an optional GeoLite2 City database.
type Geo struct {
	DBPath string `koanf:"db_path"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.  The loader
// discovers `Root` (repo root or MQA_ROOT override) so later code can
// build absolute file paths.
type Paths struct {
	Root string // MQA_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP    HTTP    `koanf:"http"`
	Store   Store   `koanf:"store"`
	Drive   Drive   `koanf:"drive"`
	Matcher Matcher `koanf:"matcher"`
	Form    Form    `koanf:"form"`
	Locate  Locate  `koanf:"locate"`
	Log     Log     `koanf:"log"`
	Geo     Geo     `koanf:"geo"`
	Paths   Paths   `koanf:"-"` // not loaded from config files
}

// defaults seeds every field a minimal mqa.yaml may omit.
func defaults() Config {
	return Config{
		HTTP:  HTTP{ListenAddr: ":8080"},
		Store: Store{Backend: "memory", SheetName: "qna"},
		Drive: Drive{Backend: "none", MaxBytes: 10 << 20},
		Matcher: Matcher{
			ExactThreshold:   1.0,
			WarnThreshold:    0.65,
			SuggestThreshold: 0.65,
			Limit:            3,
		},
		Form:   Form{AnswerRequired: true, MinFillSeconds: 2},
		Locate: Locate{Strategy: "position"},
		Log:    Log{Level: "info"},
	}
}
