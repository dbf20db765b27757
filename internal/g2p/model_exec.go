package g2p

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/thaitts/corpusprep/internal/ttypes"
)

// ExecConfig describes an external phonemizer command. The token is written
// to the command's stdin and the phonemes are read from stdout.
type ExecConfig struct {
	Command string
	// Args may contain {lang}, replaced by the lower-case language code.
	Args []string
	// Timeout bounds each invocation (default 10s).
	Timeout time.Duration
}

// ExecModel phonemizes by running an external command once per token.
// The command runs pinned to one accelerator through CUDA_VISIBLE_DEVICES
// in the child environment only.
type ExecModel struct {
	path   string
	args   []string
	device int
	env    []string
	cfg    ExecConfig
}

// NewExecModel resolves the command and pins it to device.
func NewExecModel(cfg ExecConfig, device int) (*ExecModel, error) {
	if cfg.Command == "" {
		return nil, NewError(ErrorCodeModelLoad, "phonemizer command is required", ErrModelLoad)
	}
	path, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, NewError(ErrorCodeModelLoad, "phonemizer command not found", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	env := append(os.Environ(), "CUDA_VISIBLE_DEVICES="+strconv.Itoa(device))
	return &ExecModel{path: path, args: cfg.Args, device: device, env: env, cfg: cfg}, nil
}

// Device returns the accelerator index the model is pinned to.
func (m *ExecModel) Device() int { return m.device }

// Phonemize runs the command for one token.
func (m *ExecModel) Phonemize(ctx context.Context, token string, lang ttypes.Language) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	args := make([]string, len(m.args))
	for i, a := range m.args {
		args[i] = strings.ReplaceAll(a, "{lang}", lang.Lower())
	}

	cmd := exec.CommandContext(ctx, m.path, args...)
	cmd.Env = m.env
	// Pre-configured stdin so the child never waits on us.
	cmd.Stdin = strings.NewReader(token)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", NewError(ErrorCodeTimeout, "phonemizer timed out", ctx.Err())
		}
		return "", fmt.Errorf("phonemizer failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", fmt.Errorf("%w: %q", ErrNoPronunciation, token)
	}
	return out, nil
}

// Name identifies the command and its arguments.
func (m *ExecModel) Name() string {
	return "exec:" + m.cfg.Command + " " + strings.Join(m.args, " ")
}

// Close is a no-op; each call owns its process.
func (m *ExecModel) Close() error { return nil }
