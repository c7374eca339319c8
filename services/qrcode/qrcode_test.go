package qrsvc

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mulespace/core"
)

func newTestGenerator(t *testing.T) (*Generator, string) {
	root := t.TempDir()
	conf := &core.Config{
		FrontendBaseURL: "http://campus.test",
		Media:           core.MediaConfig{Root: root, URL: "/static", QRCodeDir: "qrcodes"},
	}
	return NewGenerator(conf), root
}

func TestGenerator_CheckInURL(t *testing.T) {
	g, _ := newTestGenerator(t)
	assert.Equal(t, "http://campus.test/api/attendance/check-in?event_id=42", g.CheckInURL(42))
}

func TestGenerator_Generate(t *testing.T) {
	g, root := newTestGenerator(t)

	p, err := g.Generate(7)
	require.NoError(t, err)
	assert.Equal(t, "/static/qrcodes/event_7.png", p)

	data, err := os.ReadFile(filepath.Join(root, "qrcodes", "event_7.png"))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, size, img.Bounds().Dx())
}

func TestGenerator_PNG(t *testing.T) {
	g, _ := newTestGenerator(t)

	data, err := g.PNG(3)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
}
