// Package web holds the embedded templates and static assets.
package web

import "embed"

// Templates holds the page templates under templates/.
//
//go:embed templates/*.html
var Templates embed.FS

// Static holds the assets served under /static/.
//
//go:embed static
var Static embed.FS
