// Package ttypes contains shared types for the corpus pipeline.
// This package is used to break import cycles between dataset, filter, g2p, annotate and corpus packages.
package ttypes

import (
	"fmt"
	"strings"
)

// Language identifies the language of a sample.
type Language string

const (
	// LanguageThai is Thai (GigaSpeech2 shards).
	LanguageThai Language = "TH"

	// LanguageEnglish is English (Emilia shards).
	LanguageEnglish Language = "EN"

	// LanguageChinese is Mandarin Chinese.
	LanguageChinese Language = "ZH"
)

// Languages lists every supported language in canonical order.
var Languages = []Language{LanguageThai, LanguageEnglish, LanguageChinese}

// ParseLanguage normalizes a language code ("th", "TH", " Th ") to a Language.
func ParseLanguage(s string) (Language, error) {
	l := Language(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Languages {
		if l == known {
			return l, nil
		}
	}
	return "", fmt.Errorf("unsupported language %q", s)
}

// Lower returns the lower-case code written into metadata records.
func (l Language) Lower() string {
	return strings.ToLower(string(l))
}

// String returns the canonical upper-case code.
func (l Language) String() string {
	return string(l)
}

// Reason explains why a record did not become a sample.
type Reason string

const (
	// ReasonNone means the record was admitted.
	ReasonNone Reason = ""

	// ReasonOptOut marks a sample ID on the curated block-list.
	ReasonOptOut Reason = "opt_out"

	// ReasonForbiddenChar marks text containing an artifact character.
	ReasonForbiddenChar Reason = "forbidden_char"

	// ReasonRepetition marks a degenerate, repeating transcript.
	ReasonRepetition Reason = "repetition"

	// ReasonMissingAudio marks a record whose audio file does not exist.
	ReasonMissingAudio Reason = "missing_audio"

	// ReasonDecodeError marks audio that could not be decoded.
	ReasonDecodeError Reason = "decode_error"

	// ReasonG2PFailure marks a record dropped because phonemization failed.
	ReasonG2PFailure Reason = "g2p_failure"

	// ReasonMalformedLine marks an input line that is not "path|transcript".
	ReasonMalformedLine Reason = "malformed_line"

	// ReasonError marks an unexpected per-record failure.
	ReasonError Reason = "error"
)

// Reasons lists every rejection reason in report order.
var Reasons = []Reason{
	ReasonOptOut,
	ReasonForbiddenChar,
	ReasonRepetition,
	ReasonMissingAudio,
	ReasonDecodeError,
	ReasonG2PFailure,
	ReasonMalformedLine,
	ReasonError,
}

// IsFilter reports whether the reason comes from the per-language filter
// rather than from processing.
func (r Reason) IsFilter() bool {
	switch r {
	case ReasonOptOut, ReasonForbiddenChar, ReasonRepetition:
		return true
	default:
		return false
	}
}

// Tokenizer selects how sample text is split into vocabulary symbols.
type Tokenizer string

const (
	// TokenizerChar splits text into unicode code points.
	TokenizerChar Tokenizer = "char"

	// TokenizerPinyin converts Chinese characters to tone-numbered pinyin syllables.
	TokenizerPinyin Tokenizer = "pinyin"
)

// ParseTokenizer validates a tokenizer name.
func ParseTokenizer(s string) (Tokenizer, error) {
	switch t := Tokenizer(strings.ToLower(strings.TrimSpace(s))); t {
	case TokenizerChar, TokenizerPinyin:
		return t, nil
	default:
		return "", fmt.Errorf("unsupported tokenizer %q (expected char or pinyin)", s)
	}
}

// EngineType represents the G2P client selection.
type EngineType string

const (
	// EngineRemote phonemizes through the HTTP G2P service.
	EngineRemote EngineType = "remote"

	// EngineDict phonemizes in-process with a pronunciation dictionary.
	EngineDict EngineType = "dict"

	// EngineExec phonemizes in-process by invoking a phonemizer command.
	EngineExec EngineType = "exec"

	// EngineNone disables phonemization.
	EngineNone EngineType = "none"
)
