// Package audio probes audio containers for their duration. Only simple
// PCM WAV files are supported; anything else is reported as ErrDecode.
package audio
