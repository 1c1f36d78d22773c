// Package config reads service settings from a file overlaid by defaults and
// environment variables.
package config

import (
	"io"
	"time"
)

// Config is the read-only view of the settings used across the service.
// Missing or unparsable values yield the zero value of the requested type.
type Config interface {
	io.Closer

	GetBool(key string) bool
	GetString(key string) string
	GetInt(key string) int
	GetInt64(key string) int64
	GetFloat64(key string) float64

	// GetSecond and GetMinute read an integer count of the unit.
	GetSecond(key string) time.Duration
	GetMinute(key string) time.Duration

	// GetBinary decodes a base64 value. Invalid input yields nil.
	GetBinary(key string) []byte

	// GetArray reads either a list or a comma separated string. Elements are
	// trimmed and empty ones are dropped.
	GetArray(key string) []string
}
