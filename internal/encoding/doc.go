// Package encoding shells out to ffmpeg to render variant outputs.
package encoding
