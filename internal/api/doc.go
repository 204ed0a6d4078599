// Package api defines the transport representations shared by the HTTP
// surface and the CLI.
package api
