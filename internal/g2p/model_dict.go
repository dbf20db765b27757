package g2p

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	tipag2p "github.com/temporal-IPA/tipa/pkg/g2p"
	"github.com/temporal-IPA/tipa/pkg/phono"
	"github.com/thaitts/corpusprep/internal/ttypes"
)

// DictModel looks tokens up in IPA pronunciation dictionaries using the
// tipa deterministic scanner. Each matched dictionary fragment becomes one
// phoneme.
type DictModel struct {
	name    string
	scanner scanner
}

type scanner interface {
	Scan(text string, tolerant bool) tipag2p.Result
}

// LoadDictModel loads the main dictionary and an optional final
// (fallback) dictionary.
func LoadDictModel(mainPath, finalPath string) (*DictModel, error) {
	mainDict, err := loadDictionary(mainPath)
	if err != nil {
		return nil, NewError(ErrorCodeModelLoad, "main dictionary", err)
	}

	var finalDict phono.Dictionary
	if strings.TrimSpace(finalPath) != "" {
		finalDict, err = loadDictionary(finalPath)
		if err != nil {
			return nil, NewError(ErrorCodeModelLoad, "final dictionary", err)
		}
	}

	return &DictModel{
		name:    "dict:" + filepath.Base(mainPath),
		scanner: tipag2p.NewDeterminist(mainDict, finalDict),
	}, nil
}

func loadDictionary(path string) (phono.Dictionary, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("empty dictionary path: %w", ErrModelLoad)
	}
	dir, file := filepath.Split(filepath.Clean(path))
	if dir == "" {
		dir = "."
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return phono.LoadPaths(os.DirFS(dir), phono.MergeModeAppend, file)
}

// Phonemize scans token and returns its fragments in text order.
func (m *DictModel) Phonemize(_ context.Context, token string, _ ttypes.Language) (string, error) {
	res := m.scanner.Scan(token, true)
	if len(res.Fragments) == 0 {
		return "", fmt.Errorf("%w: %q", ErrNoPronunciation, token)
	}

	frags := res.Fragments
	sort.SliceStable(frags, func(i, j int) bool { return frags[i].Pos < frags[j].Pos })

	phones := make([]string, 0, len(frags))
	for _, f := range frags {
		if ipa := strings.TrimSpace(string(f.IPA)); ipa != "" {
			phones = append(phones, ipa)
		}
	}
	return strings.Join(phones, " "), nil
}

// Name identifies the dictionary.
func (m *DictModel) Name() string { return m.name }

// Close is a no-op; dictionaries live in memory.
func (m *DictModel) Close() error { return nil }
