// Package web holds the embedded HTML templates and static assets.
package web

import "embed"

// Templates contains templates/*.html.
//
//go:embed templates
var Templates embed.FS

// Static contains static/*, served under /static/.
//
//go:embed static
var Static embed.FS
