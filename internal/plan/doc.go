// Package plan expands requested transcode variants into deterministic task
// specs and owns the variant token and output naming conventions.
package plan
