package g2p

import (
	"context"
	"fmt"

	"github.com/thaitts/corpusprep/internal/ttypes"
)

// StaticModel maps tokens to fixed phoneme strings.
type StaticModel map[string]string

// Phonemize returns the mapped phonemes or ErrNoPronunciation.
func (m StaticModel) Phonemize(_ context.Context, token string, _ ttypes.Language) (string, error) {
	ph, ok := m[token]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNoPronunciation, token)
	}
	return ph, nil
}

func (StaticModel) Name() string { return "static" }
func (StaticModel) Close() error { return nil }
