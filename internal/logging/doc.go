// Package logging builds slog loggers with rendition's console and JSON
// handlers and provides shared attribute helpers.
package logging
