// Package buildinfo holds the daemon's version string.
package buildinfo

// Version is overridden at build time via:
//   go build -ldflags "-X github.com/hluisi/roguehunter/internal/buildinfo.Version=1.2.3"
var Version = "0.1.0-dev"
