package g2p

import (
	"context"
	"errors"

	"github.com/thaitts/corpusprep/internal/ttypes"
)

// Status classifies the outcome of a conversion.
type Status string

const (
	StatusOK          Status = "ok"
	StatusEmptyInput  Status = "empty_input"
	StatusTimeout     Status = "timeout"
	StatusServerError Status = "server_error"
	StatusMalformed   Status = "malformed"
	StatusTransport   Status = "transport"
	StatusInference   Status = "inference"
)

// Result is the outcome of Client.Convert. Phoneme is empty unless Status is StatusOK.
type Result struct {
	Phoneme string
	Status  Status
	Err     error
}

// OK reports whether the conversion succeeded.
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Client converts text to a phoneme string.
type Client interface {
	Convert(ctx context.Context, text string, lang ttypes.Language) Result
	Close() error
}

func ok(phoneme string) Result {
	return Result{Phoneme: phoneme, Status: StatusOK}
}

func failed(err error) Result {
	var ge *Error
	if errors.As(err, &ge) {
		return Result{Status: ge.Status(), Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Result{Status: StatusTimeout, Err: err}
	}
	return Result{Status: StatusTransport, Err: err}
}

// textPrefix returns the first n runes of text, for log lines.
func textPrefix(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n])
}

// nopClient is used when phonemization is disabled.
type nopClient struct{}

func (nopClient) Convert(context.Context, string, ttypes.Language) Result { return ok("") }
func (nopClient) Close() error                                          { return nil }
