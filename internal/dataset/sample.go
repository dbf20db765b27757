package dataset

import "github.com/thaitts/corpusprep/internal/ttypes"

// Sample is one admitted row of a language corpus.
type Sample struct {
	ID        string
	AudioPath string
	Duration  float64
	Text      string
	// Tokens is Text split by the configured tokenizer; it is what the
	// archive and vocabulary see.
	Tokens   []string
	Phoneme  string
	Language ttypes.Language
}
