// Package preflight validates the runtime environment before daemon startup.
package preflight
