// Package scripts embeds the Risor discovery scripts.
package scripts

import "embed"

// FS holds discover/{language}.risor.
//
//go:embed discover/*.risor
var FS embed.FS
