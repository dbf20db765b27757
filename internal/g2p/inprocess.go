package g2p

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/thaitts/corpusprep/internal/cache"
	"github.com/thaitts/corpusprep/internal/ttypes"
)

// Model phonemizes one token at a time.
type Model interface {
	// Phonemize returns the space-separated phonemes of token.
	Phonemize(ctx context.Context, token string, lang ttypes.Language) (string, error)
	// Name identifies the model for cache namespacing.
	Name() string
	Close() error
}

// InProcessOptions configures an InProcess client.
type InProcessOptions struct {
	// TokenSeparator joins the phonemes of one token (default "-").
	TokenSeparator string
	// Punctuation is appended to every phonemized sentence (default ".").
	Punctuation string

	Segmenter *Segmenter
	Cache     *cache.Manager
	Logger    *log.Logger
}

// InProcess runs a Model owned by the calling worker.
type InProcess struct {
	model  Model
	opts   InProcessOptions
	logger *log.Logger
}

// NewInProcess wraps an already loaded model.
func NewInProcess(model Model, opts InProcessOptions) *InProcess {
	if opts.TokenSeparator == "" {
		opts.TokenSeparator = "-"
	}
	if opts.Punctuation == "" {
		opts.Punctuation = "."
	}
	if opts.Segmenter == nil {
		opts.Segmenter = NewSegmenter()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &InProcess{model: model, opts: opts, logger: logger}
}

// Convert phonemizes text sentence by sentence. Any token failure fails
// the whole conversion with StatusInference.
func (c *InProcess) Convert(ctx context.Context, text string, lang ttypes.Language) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return failed(NewError(ErrorCodeEmptyInput, "nothing to phonemize", ErrEmptyInput))
	}

	sentences := c.opts.Segmenter.Sentences(text, lang)
	phonemized := make([]string, 0, len(sentences))
	for _, sentence := range sentences {
		tokens := c.opts.Segmenter.Tokens(sentence)
		if len(tokens) == 0 {
			continue
		}

		parts := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			if err := ctx.Err(); err != nil {
				return failed(NewError(ErrorCodeTimeout, "conversion interrupted", err))
			}
			if strings.TrimSpace(tok) == "" {
				parts = append(parts, "")
				continue
			}
			ph, err := c.token(ctx, tok, lang)
			if err != nil {
				c.logger.Warn("g2p inference failed",
					"model", c.model.Name(),
					"text", textPrefix(text, 30),
					"token", tok,
					"error", err)
				return failed(NewError(ErrorCodeInference, "model inference failed", err))
			}
			parts = append(parts, ph)
		}

		joined := strings.ReplaceAll(strings.Join(parts, " "), "  ", " ")
		phonemized = append(phonemized, joined+c.opts.Punctuation)
	}

	return ok(strings.TrimSpace(strings.Join(phonemized, " ")))
}

func (c *InProcess) token(ctx context.Context, tok string, lang ttypes.Language) (string, error) {
	var key string
	if c.opts.Cache != nil {
		key = cache.Key(c.model.Name()+":"+lang.String(), tok)
		if ph, ok := c.opts.Cache.GetString(key); ok {
			return ph, nil
		}
	}

	raw, err := c.model.Phonemize(ctx, tok, lang)
	if err != nil {
		return "", err
	}
	ph := strings.Join(strings.Fields(raw), c.opts.TokenSeparator)

	if c.opts.Cache != nil {
		if err := c.opts.Cache.PutString(key, ph); err != nil {
			c.logger.Debug("phoneme cache write failed", "error", err)
		}
	}
	return ph, nil
}

// Close releases the model.
func (c *InProcess) Close() error {
	return c.model.Close()
}
