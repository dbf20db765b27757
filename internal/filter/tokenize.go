package filter

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mozillazg/go-pinyin"
	"github.com/thaitts/corpusprep/internal/ttypes"
)

// Tokenize splits text into vocabulary symbols with the given tokenizer.
func Tokenize(text string, tok ttypes.Tokenizer) []string {
	if tok == ttypes.TokenizerPinyin {
		return tokenizePinyin(text)
	}
	return tokenizeChars(text)
}

func tokenizeChars(text string) []string {
	out := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

var quoteReplacer = strings.NewReplacer(";", ",", "“", `"`, "”", `"`, "‘", "'", "’", "'")

func isChinese(r rune) bool {
	return r >= '\u3100' && r <= '\u9fff'
}

// tokenizePinyin keeps Latin text as characters and replaces every Chinese
// character by a space token followed by its tone-numbered pinyin syllable.
func tokenizePinyin(text string) []string {
	args := pinyin.NewArgs()
	args.Style = pinyin.Tone3

	text = quoteReplacer.Replace(text)
	var out []string
	for _, seg := range segments(text) {
		if isASCII(seg) {
			// Separate consecutive words the way a word segmenter would.
			if len(out) > 0 && utf8.RuneCountInString(seg) > 1 && !strings.Contains(` :'"`, out[len(out)-1]) {
				out = append(out, " ")
			}
			out = append(out, tokenizeChars(seg)...)
			continue
		}
		for _, r := range seg {
			if !isChinese(r) {
				out = append(out, string(r))
				continue
			}
			py := pinyin.LazyPinyin(string(r), args)
			out = append(out, " ")
			if len(py) == 0 {
				out = append(out, string(r))
				continue
			}
			out = append(out, py[0])
		}
	}
	return out
}

// segments splits text into runs of ASCII letters/digits, single ASCII
// symbols and runs of non-ASCII text.
func segments(text string) []string {
	var segs []string
	var cur strings.Builder
	curWord := false
	flush := func() {
		if cur.Len() > 0 {
			segs = append(segs, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if !curWord {
				flush()
				curWord = true
			}
			cur.WriteRune(r)
		case r < utf8.RuneSelf:
			flush()
			curWord = false
			segs = append(segs, string(r))
		default:
			if curWord {
				flush()
				curWord = false
			}
			cur.WriteRune(r)
		}
	}
	flush()
	return segs
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
