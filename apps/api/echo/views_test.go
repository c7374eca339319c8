package echoapi

import (
	"bytes"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appfs "github.com/trezcool/mulespace/fs"
)

func Test_newViewRenderer(t *testing.T) {
	t.Run("embedded pages", func(t *testing.T) {
		r, err := newViewRenderer(appfs.FS, true)
		require.NoError(t, err)
		for _, page := range []string{
			"index", "login", "register", "events", "event_detail", "calendar",
			"my_events", "admin", "student", "checkin", "profile",
		} {
			assert.Contains(t, r.templates, page)
		}
		assert.NotContains(t, r.templates, "_base")

		var buf bytes.Buffer
		require.NoError(t, r.Render(&buf, "index", viewPage{AppName: "MuleSpace", Title: "Welcome"}, nil))
		assert.Contains(t, buf.String(), "<title>Welcome | MuleSpace</title>")

		assert.Error(t, r.Render(&buf, "nowhere", viewPage{}, nil))
	})

	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{
			name: "broken page",
			fsys: fstest.MapFS{
				"assets/templates/views/_base.gohtml": {Data: []byte(`{{define "base"}}{{template "content" .}}{{end}}`)},
				"assets/templates/views/index.gohtml": {Data: []byte(`{{define "content"}}{{if .Title}}{{end}}`)},
			},
		},
		{
			name: "missing base",
			fsys: fstest.MapFS{
				"assets/templates/views/index.gohtml": {Data: []byte(`{{define "content"}}{{end}}`)},
			},
		},
		{
			name: "no pages",
			fsys: fstest.MapFS{
				"assets/templates/views/_base.gohtml": {Data: []byte(`{{define "base"}}{{end}}`)},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := newViewRenderer(tt.fsys, true)
			assert.Error(t, err)
			assert.Nil(t, r)
		})
	}
}
