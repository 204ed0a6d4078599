// Command rendition is the CLI and daemon entry point for the transcode
// fan-out service.
package main
