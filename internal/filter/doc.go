// Package filter decides, per language, whether a transcript is admitted
// into a corpus, and tokenizes admitted text into vocabulary symbols.
package filter
