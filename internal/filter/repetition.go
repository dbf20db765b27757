package filter

import "unicode"

// Repetition detects degenerate transcripts such as stutter duplication.
type Repetition struct {
	// Length is the window size, in runes, of the repeated-substring check.
	Length int
	// Tolerance is how many times a window may occur before the text is rejected.
	Tolerance int
	// MaxRun rejects any letter repeated this many times in a row. Digit and
	// punctuation runs are allowed. Zero disables it.
	MaxRun int
}

// Found reports whether text repeats itself.
func (r Repetition) Found(text string) bool {
	runes := []rune(text)

	if r.MaxRun > 1 {
		run := 1
		for i := 1; i < len(runes); i++ {
			if runes[i] == runes[i-1] && unicode.IsLetter(runes[i]) {
				run++
				if run >= r.MaxRun {
					return true
				}
			} else {
				run = 1
			}
		}
	}

	if r.Length <= 0 || len(runes) < r.Length {
		return false
	}
	counts := make(map[string]int)
	for i := 0; i+r.Length <= len(runes); i++ {
		w := string(runes[i : i+r.Length])
		counts[w]++
		if counts[w] > r.Tolerance {
			return true
		}
	}
	return false
}
