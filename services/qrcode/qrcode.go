package qrsvc

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"

	"github.com/trezcool/mulespace/core"
)

const size = 300

// Generator renders check-in QR codes under <media root>/<qr dir>.
type Generator struct {
	dir      string
	urlDir   string
	baseURL  string
	recovery qrcode.RecoveryLevel
}

func NewGenerator(conf *core.Config) *Generator {
	return &Generator{
		dir:      filepath.Join(conf.Media.Root, conf.Media.QRCodeDir),
		urlDir:   path.Join(conf.Media.URL, conf.Media.QRCodeDir),
		baseURL:  conf.FrontendBaseURL,
		recovery: qrcode.Medium,
	}
}

// CheckInURL is the URL encoded in the QR code of an event.
func (g *Generator) CheckInURL(eventID int64) string {
	return fmt.Sprintf("%s/api/attendance/check-in?event_id=%d", g.baseURL, eventID)
}

func fileName(eventID int64) string {
	return fmt.Sprintf("event_%d.png", eventID)
}

// PNG encodes the QR code of an event without touching the disk.
func (g *Generator) PNG(eventID int64) ([]byte, error) {
	png, err := qrcode.Encode(g.CheckInURL(eventID), g.recovery, size)
	return png, errors.Wrap(err, "encoding QR code")
}

// Generate writes the QR code PNG of an event and returns its public path.
func (g *Generator) Generate(eventID int64) (string, error) {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating QR code dir")
	}
	fp := filepath.Join(g.dir, fileName(eventID))
	if err := qrcode.WriteFile(g.CheckInURL(eventID), g.recovery, size, fp); err != nil {
		return "", errors.Wrap(err, "writing QR code")
	}
	return path.Join(g.urlDir, fileName(eventID)), nil
}
