package web

import "embed"

// FS holds the monitor page served by internal/monitor.
//
//go:embed *.html *.css *.js
var FS embed.FS
