package drive

import (
	"bytes"
	"context"
	"fmt"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/yanizio/mqa/internal/record"
)

// Google uploads into a Drive folder and shares each file by link.
type Google struct {
	svc      *drive.Service
	folderID string
}

// NewGoogle builds a Drive client.  folderID may be empty (My Drive root).
func NewGoogle(ctx context.Context, folderID string, opts ...option.ClientOption) (*Google, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return &Google{svc: svc, folderID: folderID}, nil
}

func (g *Google) Upload(ctx context.Context, data []byte, filename, mime string) (record.Attachment, error) {
	if len(data) == 0 {
		return record.Attachment{}, ErrEmptyFile
	}
	mime = DetectMIME(data, mime)

	meta := &drive.File{Name: filename, MimeType: mime}
	if g.folderID != "" {
		meta.Parents = []string{g.folderID}
	}

	f, err := g.svc.Files.Create(meta).
		Media(bytes.NewReader(data), googleapi.ContentType(mime)).
		Fields("id", "name", "mimeType", "webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return record.Attachment{}, fmt.Errorf("drive create %s: %w", filename, err)
	}

	perm := &drive.Permission{Type: "anyone", Role: "reader"}
	if _, err := g.svc.Permissions.Create(f.Id, perm).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		return record.Attachment{}, fmt.Errorf("drive share %s: %w", filename, err)
	}

	view := f.WebViewLink
	if view == "" {
		view = "https://drive.google.com/file/d/" + f.Id + "/view"
	}
	return record.Attachment{
		ID:       f.Id,
		Name:     f.Name,
		MIME:     f.MimeType,
		ViewURL:  view,
		EmbedURL: "https://drive.google.com/uc?export=view&id=" + f.Id,
		IsImage:  IsImage(f.MimeType),
	}, nil
}
