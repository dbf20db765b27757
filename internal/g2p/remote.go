package g2p

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/thaitts/corpusprep/internal/cache"
	"github.com/thaitts/corpusprep/internal/ttypes"
	"golang.org/x/time/rate"
)

// Granularity selects how much text goes into one remote request.
type Granularity string

const (
	// GranularityText sends the whole transcript in one request.
	GranularityText Granularity = "text"
	// GranularitySentence sends one request per sentence.
	GranularitySentence Granularity = "sentence"
)

// RemoteConfig configures the HTTP phonemizer client.
type RemoteConfig struct {
	// URL is the full endpoint, e.g. http://localhost:8000/g2p/.
	URL string

	// ConnectTimeout bounds dialing (default 2s).
	ConnectTimeout time.Duration
	// ReadTimeout bounds waiting for the response headers. Zero waits forever.
	ReadTimeout time.Duration

	Granularity Granularity

	// MaxRetries is the number of extra attempts for retryable failures.
	MaxRetries int
	// RetryBackoff is the base delay between attempts (default 200ms).
	RetryBackoff time.Duration

	// RequestsPerSecond limits the request rate. Zero disables limiting.
	RequestsPerSecond float64
}

type g2pRequest struct {
	Text string `json:"text"`
}

type g2pResponse struct {
	Phoneme *string `json:"phoneme"`
}

// Remote posts text to a phonemizer service.
type Remote struct {
	cfg       RemoteConfig
	client    *http.Client
	limiter   *rate.Limiter
	segmenter *Segmenter
	cache     *cache.Manager
	logger    *log.Logger
}

// NewRemote creates a client. The cache and logger may be nil.
func NewRemote(cfg RemoteConfig, c *cache.Manager, logger *log.Logger) (*Remote, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, NewError(ErrorCodeUnavailable, "remote G2P URL is required", nil)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.Granularity == "" {
		cfg.Granularity = GranularityText
	}
	if logger == nil {
		logger = log.Default()
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Remote{
		cfg:       cfg,
		client:    &http.Client{Transport: transport},
		limiter:   limiter,
		segmenter: NewSegmenter(),
		cache:     c,
		logger:    logger,
	}, nil
}

// Convert phonemizes text remotely. Failures are logged with a prefix of
// the text and reported through the Result status.
func (r *Remote) Convert(ctx context.Context, text string, lang ttypes.Language) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return failed(NewError(ErrorCodeEmptyInput, "nothing to phonemize", ErrEmptyInput))
	}

	chunks := []string{text}
	if r.cfg.Granularity == GranularitySentence {
		chunks = r.segmenter.Sentences(text, lang)
	}

	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		ph, err := r.convertChunk(ctx, chunk, lang)
		if err != nil {
			r.logger.Warn("g2p request failed",
				"url", r.cfg.URL,
				"text", textPrefix(text, 30),
				"error", err)
			return failed(err)
		}
		out = append(out, ph)
	}
	return ok(strings.Join(out, " "))
}

func (r *Remote) convertChunk(ctx context.Context, text string, lang ttypes.Language) (string, error) {
	var key string
	if r.cache != nil {
		key = cache.Key("remote:"+r.cfg.URL+":"+lang.String(), text)
		if ph, ok := r.cache.GetString(key); ok {
			return ph, nil
		}
	}

	var err error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", NewError(ErrorCodeTimeout, "retry interrupted", ctx.Err())
			case <-time.After(time.Duration(attempt) * r.cfg.RetryBackoff):
			}
			r.logger.Debug("retrying g2p request", "attempt", attempt, "error", err)
		}

		var ph string
		ph, err = r.post(ctx, text)
		if err == nil {
			if r.cache != nil {
				if cerr := r.cache.PutString(key, ph); cerr != nil {
					r.logger.Debug("phoneme cache write failed", "error", cerr)
				}
			}
			return ph, nil
		}

		var ge *Error
		if !errors.As(err, &ge) || !ge.IsRetryable() {
			break
		}
	}
	return "", err
}

func (r *Remote) post(ctx context.Context, text string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", NewError(ErrorCodeTimeout, "rate limit wait cancelled", err)
	}

	body, err := json.Marshal(g2pRequest{Text: text})
	if err != nil {
		return "", NewError(ErrorCodeTransport, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", NewError(ErrorCodeTransport, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", NewError(ErrorCodeTimeout, "request timed out", err)
		}
		return "", NewError(ErrorCodeTransport, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		if isTimeout(err) {
			return "", NewError(ErrorCodeTimeout, "reading response timed out", err)
		}
		return "", NewError(ErrorCodeTransport, "read response", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return "", NewError(ErrorCodeServer, fmt.Sprintf("server returned %d", resp.StatusCode), errors.New(strings.TrimSpace(string(data))))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", NewError(ErrorCodeRejected, fmt.Sprintf("server returned %d", resp.StatusCode), errors.New(strings.TrimSpace(string(data))))
	}

	var parsed g2pResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", NewError(ErrorCodeMalformed, "decode response", err)
	}
	if parsed.Phoneme == nil {
		return "", NewError(ErrorCodeMalformed, "response has no phoneme field", nil)
	}
	return *parsed.Phoneme, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Close releases idle connections.
func (r *Remote) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
