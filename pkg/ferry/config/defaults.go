// Package config provides configuration management for ferry.
package config

import "time"

// Default configuration values for ferry.
const (
	// DefaultMode is the placement mode used when --mirror is not given.
	DefaultMode = "normal"

	// DefaultCancelGrace is how long to wait for the peer to acknowledge a
	// cancel after an error or interrupt before exiting anyway.
	DefaultCancelGrace = 5 * time.Second

	// DefaultTerminateGrace is the shorter wait used on SIGTERM.
	DefaultTerminateGrace = 2 * time.Second

	// DefaultCompressMinSize is the size a file must exceed before
	// compression is requested for it.
	DefaultCompressMinSize = "4KiB"

	// DefaultLogMaxSize is the log size that triggers rotation.
	DefaultLogMaxSize = "10MB"
)

// DefaultComponents are the per-component log levels written by
// WriteDefault.
var DefaultComponents = map[string]string{
	"transfer":  "info",
	"session":   "info",
	"transport": "warn",
	"journal":   "info",
}
