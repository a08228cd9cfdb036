// internal/drive/drive.go
//
// Attachment upload collaborator.
//
// Context
// -------
// Records may carry files (screenshots, guide PDFs).  Each file is pushed to
// a drive backend in one blocking call and described by a
// record.Attachment, which is then serialised into the record's last
// column.  Backends:
//
//   - Google – Google Drive, shared anyone-with-link as reader.
//   - S3     – any S3-compatible bucket behind a public base URL.
//   - Local  – a directory on disk served by the web process.
//
// Notes
// -----
//   - Browsers often post application/octet-stream; DetectMIME sniffs the
//     bytes in that case.
//   - Object keys use ULIDs so they sort by upload time.
//   - Oxford commas, two spaces after periods.
package drive

import (
	"context"
	"crypto/rand"
	"errors"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"

	"github.com/yanizio/mqa/internal/record"
)

// ErrEmptyFile is returned for zero-byte uploads.
var ErrEmptyFile = errors.New("drive: file is empty")

// Uploader stores one file and describes where it can be viewed.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename, mime string) (record.Attachment, error)
}

// DetectMIME returns declared unless it is blank or generic, in which case
// the content is sniffed.
func DetectMIME(data []byte, declared string) string {
	declared = strings.TrimSpace(declared)
	if i := strings.IndexByte(declared, ';'); i != -1 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return mimetype.Detect(data).String()
}

// IsImage reports whether mime is an image type.
func IsImage(mime string) bool { return strings.HasPrefix(mime, "image/") }

// NewID returns a lowercase ULID string.  The random part comes from
// crypto/rand since the id is the only secret in a Drive or S3 URL.
func NewID() string {
	return strings.ToLower(ulid.MustNew(ulid.Now(), rand.Reader).String())
}

// objectKey builds "attachments/<ulid>/<clean name>".
func objectKey(id, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	return "attachments/" + id + "/" + name
}
