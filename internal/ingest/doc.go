// Package ingest validates source uploads and registers transcode work.
package ingest
