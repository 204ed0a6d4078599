// Package workflow runs the polling worker loop that turns queued transcode
// tasks into rendered outputs.
package workflow
