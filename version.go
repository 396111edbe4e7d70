package arepl

import _ "embed"

// Version is the arepl release, read from the VERSION file.
//
//go:embed VERSION
var Version string
