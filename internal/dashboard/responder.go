package dashboard

import (
	"context"
	"mime"
	"net/http"
	"strconv"

	"github.com/TheLazyLemur/benpdf/internal/core"
	"github.com/TheLazyLemur/benpdf/internal/permission"
	"github.com/pkg/errors"
)

var _ core.Downloader = (*AttachmentResponder)(nil)

// AttachmentResponder is the browser download trigger: it answers the form
// submission with the artifact as an attachment.
type AttachmentResponder struct {
	w       http.ResponseWriter
	written bool
}

// NewAttachmentResponder creates a responder writing to w.
func NewAttachmentResponder(w http.ResponseWriter) *AttachmentResponder {
	return &AttachmentResponder{w: w}
}

// Written reports whether response headers have been sent.
func (r *AttachmentResponder) Written() bool {
	return r.written
}

// Download writes the artifact with its derived filename.
func (r *AttachmentResponder) Download(ctx context.Context, d core.DownloadDescriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := permission.SafeName(d.Filename)
	if name == "" {
		name = core.MIMEFilename(d.MIMEType)
	}

	h := r.w.Header()
	h.Set("Content-Type", d.MIMEType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	h.Set("Content-Length", strconv.Itoa(len(d.Bytes)))
	h.Set("X-Content-Type-Options", "nosniff")
	r.w.WriteHeader(http.StatusOK)
	r.written = true

	if _, err := r.w.Write(d.Bytes); err != nil {
		return errors.Wrap(err, "writing attachment")
	}
	return nil
}
