// Package queue persists transcode assets and tasks in SQLite and implements
// the claim protocol that hands tasks to workers exactly once.
package queue
