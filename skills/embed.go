// Package skills embeds the default skill documents installed by
// "eckert init" and used when no skills directory is configured.
package skills

import "embed"

// Defaults holds the bundled *.md skill files.
//
//go:embed *.md
var Defaults embed.FS
