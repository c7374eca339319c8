package fliersvc

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mulespace/core"
)

func newTestStore(t *testing.T) (*Store, string) {
	root := t.TempDir()
	return NewStore(&core.Config{
		Media: core.MediaConfig{Root: root, URL: "/static", FlierDir: "fliers", FlierMaxWidth: 100},
	}), root
}

func pngBytes(t *testing.T, w, h int) *bytes.Buffer {
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf
}

func TestStore_Save(t *testing.T) {
	tests := []struct {
		name  string
		w, h  int
		wantW int
		wantH int
	}{
		{name: "wide image is downscaled", w: 400, h: 200, wantW: 100, wantH: 50},
		{name: "small image is kept", w: 80, h: 40, wantW: 80, wantH: 40},
	}
	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, root := newTestStore(t)
			id := int64(i + 1)

			p, err := s.Save(id, pngBytes(t, tc.w, tc.h))
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(p, "/static/fliers/event_"))

			img, err := imaging.Open(filepath.Join(root, "fliers", filepath.Base(p)))
			require.NoError(t, err)
			assert.Equal(t, image.Pt(tc.wantW, tc.wantH), img.Bounds().Size())
		})
	}
}

func TestStore_SaveRejectsNonImages(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Save(1, strings.NewReader("%PDF-1.4 not an image"))
	require.Error(t, err)
	verr, ok := errors.Cause(err).(*core.ValidationError)
	require.True(t, ok)
	assert.Equal(t, "flier", verr.Fields[0].Field)
}
