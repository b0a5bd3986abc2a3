// Package version exposes build version metadata.
package version

// Version is set at build time via -ldflags.
var Version = "dev"
