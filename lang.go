package main

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
	"github.com/thaitts/corpusprep/internal/ttypes"
)

// languageNames maps accepted spellings to language codes.
var languageNames = map[string]ttypes.Language{
	"th":       ttypes.LanguageThai,
	"thai":     ttypes.LanguageThai,
	"en":       ttypes.LanguageEnglish,
	"english":  ttypes.LanguageEnglish,
	"zh":       ttypes.LanguageChinese,
	"chinese":  ttypes.LanguageChinese,
	"mandarin": ttypes.LanguageChinese,
}

var languageCandidates = []string{"th", "thai", "en", "english", "zh", "chinese", "mandarin"}

// parseLanguages resolves language arguments to their lower-case codes.
// Unknown names fail with the closest known spelling as a suggestion.
func parseLanguages(args []string) ([]string, error) {
	codes := make([]string, 0, len(args))
	for _, arg := range args {
		name := strings.ToLower(strings.TrimSpace(arg))
		lang, ok := languageNames[name]
		if !ok {
			return nil, unknownLanguage(arg)
		}
		codes = append(codes, lang.Lower())
	}
	return codes, nil
}

func unknownLanguage(arg string) error {
	matches := fuzzy.Find(strings.ToLower(arg), languageCandidates)
	if len(matches) == 0 {
		return fmt.Errorf("unknown language %q (supported: th, en, zh)", arg)
	}
	return fmt.Errorf("unknown language %q, did you mean %q?", arg, matches[0].Str)
}

func completeLanguages(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	used := make(map[string]bool, len(args))
	for _, a := range args {
		if l, ok := languageNames[strings.ToLower(a)]; ok {
			used[l.Lower()] = true
		}
	}
	var out []string
	for _, l := range ttypes.Languages {
		if !used[l.Lower()] {
			out = append(out, l.Lower())
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
