package fliersvc

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/trezcool/mulespace/core"
)

const jpegQuality = 85

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// Store saves event fliers as JPEG under <media root>/<flier dir>, downscaled to a maximum width.
type Store struct {
	dir      string
	urlDir   string
	maxWidth int
}

func NewStore(conf *core.Config) *Store {
	return &Store{
		dir:      filepath.Join(conf.Media.Root, conf.Media.FlierDir),
		urlDir:   path.Join(conf.Media.URL, conf.Media.FlierDir),
		maxWidth: conf.Media.FlierMaxWidth,
	}
}

// Save decodes r (JPEG, PNG or GIF), applies its EXIF orientation, resizes it and returns its public path.
func (s *Store) Save(eventID int64, r io.Reader) (string, error) {
	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return "", errors.Wrap(err, "reading flier")
	}
	if !allowedTypes[http.DetectContentType(head)] {
		return "", core.NewFieldError("flier", "flier must be a JPEG, PNG or GIF image")
	}

	img, err := imaging.Decode(br, imaging.AutoOrientation(true))
	if err != nil {
		return "", core.NewFieldError("flier", "flier image could not be decoded")
	}
	if s.maxWidth > 0 && img.Bounds().Dx() > s.maxWidth {
		img = imaging.Resize(img, s.maxWidth, 0, imaging.Lanczos)
	}

	if err = os.MkdirAll(s.dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating flier dir")
	}
	name := fmt.Sprintf("event_%d.jpg", eventID)
	if err = imaging.Save(img, filepath.Join(s.dir, name), imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", errors.Wrap(err, "saving flier")
	}
	return path.Join(s.urlDir, name), nil
}
