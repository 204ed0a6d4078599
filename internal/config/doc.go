// Package config loads, validates, and defaults rendition's TOML configuration.
package config
