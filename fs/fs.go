// Package appfs embeds the files the binaries need at runtime: migrations, templates and the common-password list.
package appfs

import "embed"

//go:embed migrations all:assets
var FS embed.FS
