package filter

import (
	"strings"

	"github.com/thaitts/corpusprep/internal/ttypes"
	"golang.org/x/text/width"
)

// Decision is the outcome of filtering one record.
type Decision struct {
	Admitted bool
	Reason   ttypes.Reason
	// Text is the admitted text, possibly transformed.
	Text string
}

// Rules are the filter settings of one language.
type Rules struct {
	OptOut     map[string]struct{}
	Forbidden  string
	Repetition *Repetition
	// WidenPunctuation converts ASCII , ! ? to their full-width forms.
	WidenPunctuation bool
}

// Filter applies per-language rules. Languages without rules admit everything.
type Filter struct {
	rules map[ttypes.Language]Rules
}

// New creates a filter from explicit rules.
func New(rules map[ttypes.Language]Rules) *Filter {
	if rules == nil {
		rules = make(map[ttypes.Language]Rules)
	}
	return &Filter{rules: rules}
}

// DefaultRules returns the curated rules for each language.
func DefaultRules() map[ttypes.Language]Rules {
	return map[ttypes.Language]Rules{
		ttypes.LanguageChinese: {
			OptOut:           toSet(defaultOptOutZH),
			Forbidden:        defaultForbiddenZH,
			Repetition:       &Repetition{Length: 2, Tolerance: 10, MaxRun: 4},
			WidenPunctuation: true,
		},
		ttypes.LanguageEnglish: {
			OptOut:     toSet(defaultOptOutEN),
			Forbidden:  defaultForbiddenEN,
			Repetition: &Repetition{Length: 4, Tolerance: 10, MaxRun: 4},
		},
		ttypes.LanguageThai: {},
	}
}

// Default returns a filter with DefaultRules.
func Default() *Filter {
	return New(DefaultRules())
}

// Rules returns the rules applied to lang.
func (f *Filter) Rules(lang ttypes.Language) Rules {
	return f.rules[lang]
}

// Check decides whether the record identified by wavid is admitted.
func (f *Filter) Check(wavid, text string, lang ttypes.Language) Decision {
	r, ok := f.rules[lang]
	if !ok {
		return Decision{Admitted: true, Text: text}
	}

	if _, blocked := r.OptOut[wavid]; blocked {
		return Decision{Reason: ttypes.ReasonOptOut}
	}
	if r.Forbidden != "" && strings.ContainsAny(text, r.Forbidden) {
		return Decision{Reason: ttypes.ReasonForbiddenChar}
	}
	if r.Repetition != nil && r.Repetition.Found(text) {
		return Decision{Reason: ttypes.ReasonRepetition}
	}

	if r.WidenPunctuation {
		text = widenPunctuation(text)
	}
	return Decision{Admitted: true, Text: text}
}

var widened = map[rune]rune{}

func init() {
	for _, r := range ",!?" {
		w := []rune(width.Widen.String(string(r)))
		widened[r] = w[0]
	}
}

func widenPunctuation(text string) string {
	return strings.Map(func(r rune) rune {
		if w, ok := widened[r]; ok {
			return w
		}
		return r
	}, text)
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// AddOptOut extends the opt-out set of lang.
func (f *Filter) AddOptOut(lang ttypes.Language, ids ...string) {
	r := f.rules[lang]
	if r.OptOut == nil {
		r.OptOut = make(map[string]struct{}, len(ids))
	}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			r.OptOut[id] = struct{}{}
		}
	}
	f.rules[lang] = r
}
