// Package daemon runs the long-lived rendition process: the worker loop, the
// HTTP API, and the single-instance lock.
package daemon
