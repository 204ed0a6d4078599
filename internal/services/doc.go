// Package services defines the shared error taxonomy used to classify
// ingestion, storage, and engine failures.
package services
