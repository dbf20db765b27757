// Package annotate turns one metadata line into corpus samples.
//
// A Worker resolves the audio file, probes its duration, phonemizes the
// transcript and writes a metadata record next to the audio. The record
// doubles as a resumability marker: a later run that finds a valid record
// reuses it without touching the audio, the phonemizer or the disk.
package annotate
