package web

import "embed"

// DistFS holds the widget page and its assets.
//
//go:embed dist
var DistFS embed.FS
