// Package config loads, normalizes, and validates texbuild configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// CLI needs; the [build] section is also the floor layer of per-document
// option resolution, underneath magic comments and sidecar settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
