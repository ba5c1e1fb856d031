package migrations

import "embed"

// EmbeddedFS holds the goose migrations so binaries can migrate without a
// checkout of this directory.
//
//go:embed *.sql
var EmbeddedFS embed.FS
