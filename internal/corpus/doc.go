// Package corpus writes language corpora and merges them.
//
// A corpus is a directory holding raw.arrow (an Arrow IPC archive with
// audio_path, text and duration columns), duration.json, vocab.txt and
// summary.json.
package corpus
