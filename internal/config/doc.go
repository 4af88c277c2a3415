// Package config handles configuration loading, parsing, and validation
// from environment variables (prefixed SCRY_) and an optional YAML file.
// It provides type-safe access to settings for the scheduler, the lock
// service, and the outer HTTP surface.
package config
