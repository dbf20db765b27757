package g2p

import (
	"strings"
	"unicode"

	"github.com/thaitts/corpusprep/internal/ttypes"
)

// Segmenter splits transcripts into sentences and sentences into tokens.
type Segmenter struct {
	// Terminators end a sentence. The terminator stays with its sentence.
	Terminators string
}

// NewSegmenter returns a segmenter using Latin and CJK sentence terminators.
func NewSegmenter() *Segmenter {
	return &Segmenter{Terminators: ".!?。！？"}
}

// Sentences splits text into trimmed, non-empty sentences. Thai marks
// sentence breaks with spaces, so for Thai every whitespace run is a break.
func (s *Segmenter) Sentences(text string, lang ttypes.Language) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if t := strings.TrimSpace(cur.String()); t != "" {
			out = append(out, t)
		}
		cur.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		if lang == ttypes.LanguageThai && unicode.IsSpace(r) {
			flush()
			continue
		}
		cur.WriteRune(r)
		if strings.ContainsRune(s.Terminators, r) {
			// Keep runs like "?!" together.
			if i+1 < len(runes) && strings.ContainsRune(s.Terminators, runes[i+1]) {
				continue
			}
			flush()
		}
	}
	flush()
	return out
}

// Tokens splits a sentence into word tokens and single-space tokens.
// Whitespace runs collapse to one " " token; punctuation is dropped.
func (s *Segmenter) Tokens(sentence string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}

	for _, r := range strings.TrimSpace(sentence) {
		switch {
		case unicode.IsSpace(r):
			flush()
			if len(out) > 0 && out[len(out)-1] != " " {
				out = append(out, " ")
			}
		case unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsDigit(r) || r == '\'' || r == '-':
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return out
}
