package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TheLazyLemur/benpdf/internal/core"
	"github.com/TheLazyLemur/benpdf/internal/permission"
	"github.com/pkg/errors"
)

var _ core.Downloader = (*FileSaver)(nil)

// FileSaver is the terminal download trigger: it writes artifacts into a
// directory, never overwriting an existing file.
type FileSaver struct {
	dir   string
	Saved string
}

func NewFileSaver(dir string) *FileSaver {
	return &FileSaver{dir: dir}
}

// Download writes d under the saver's directory. Unsafe names fall back to
// the MIME-based default and clashes get a " (n)" suffix before the
// extension.
func (s *FileSaver) Download(ctx context.Context, d core.DownloadDescriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.Wrapf(err, "creating %s", s.dir)
	}

	name := d.Filename
	if permission.SafeName(name) == "" {
		name = core.MIMEFilename(d.MIMEType)
	}
	path, err := permission.Resolve(s.dir, name)
	if err != nil {
		return err
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if os.IsExist(err) {
			path = fmt.Sprintf("%s (%d)%s", stem, i, ext)
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "creating %s", path)
		}
		if _, err := f.Write(d.Bytes); err != nil {
			f.Close()
			os.Remove(path)
			return errors.Wrapf(err, "writing %s", path)
		}
		if err := f.Close(); err != nil {
			return errors.Wrapf(err, "closing %s", path)
		}
		s.Saved = path
		return nil
	}
}
