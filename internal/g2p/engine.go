package g2p

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/thaitts/corpusprep/internal/cache"
	"github.com/thaitts/corpusprep/internal/ttypes"
)

// Config selects and configures a G2P engine.
type Config struct {
	Engine ttypes.EngineType

	Remote RemoteConfig

	// DictPath and FinalDictPath configure the dict engine.
	DictPath      string
	FinalDictPath string

	Exec ExecConfig

	TokenSeparator string
	Punctuation    string
}

// ParseEngine normalizes an engine name.
func ParseEngine(name string) (ttypes.EngineType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "remote", "http":
		return ttypes.EngineRemote, nil
	case "dict", "tipa":
		return ttypes.EngineDict, nil
	case "exec", "command":
		return ttypes.EngineExec, nil
	case "none", "off":
		return ttypes.EngineNone, nil
	default:
		return ttypes.EngineNone, fmt.Errorf("%w: %s\n\nSupported engines:\n  - remote (HTTP phonemizer service)\n  - dict (pronunciation dictionary)\n  - exec (external phonemizer command)\n  - none (no phonemes)", ErrInvalidEngine, name)
	}
}

// New builds the client for one worker slot. In-process models are loaded
// here, pinned to device; a load failure is fatal to the slot only.
func New(cfg Config, device int, c *cache.Manager, logger *log.Logger) (Client, error) {
	opts := InProcessOptions{
		TokenSeparator: cfg.TokenSeparator,
		Punctuation:    cfg.Punctuation,
		Cache:          c,
		Logger:         logger,
	}

	switch cfg.Engine {
	case ttypes.EngineRemote:
		return NewRemote(cfg.Remote, c, logger)
	case ttypes.EngineDict:
		m, err := LoadDictModel(cfg.DictPath, cfg.FinalDictPath)
		if err != nil {
			return nil, err
		}
		return NewInProcess(m, opts), nil
	case ttypes.EngineExec:
		m, err := NewExecModel(cfg.Exec, device)
		if err != nil {
			return nil, err
		}
		return NewInProcess(m, opts), nil
	case ttypes.EngineNone:
		return nopClient{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEngine, cfg.Engine)
	}
}

// ValidationResult contains the result of engine validation
type ValidationResult struct {
	Engine    ttypes.EngineType
	Available bool
	Error     error
	// Guidance provides setup instructions if validation failed
	Guidance string
	Details  map[string]string
}

// Validate checks that the configured engine can be constructed, without
// loading models or contacting the service.
func Validate(cfg Config) *ValidationResult {
	result := &ValidationResult{
		Engine:  cfg.Engine,
		Details: make(map[string]string),
	}

	switch cfg.Engine {
	case ttypes.EngineRemote:
		u, err := url.Parse(cfg.Remote.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			result.Error = fmt.Errorf("invalid g2p url %q", cfg.Remote.URL)
			result.Guidance = "Set g2p.url to the phonemizer endpoint, e.g.\n  g2p:\n    engine: remote\n    url: http://localhost:8000/g2p/"
			return result
		}
		result.Details["url"] = u.String()
		result.Details["granularity"] = string(cfg.Remote.Granularity)

	case ttypes.EngineDict:
		if _, err := os.Stat(cfg.DictPath); err != nil {
			result.Error = fmt.Errorf("dictionary not accessible: %w", err)
			result.Guidance = "Set g2p.dict to an IPA dictionary file readable by tipa"
			return result
		}
		result.Details["dict"] = cfg.DictPath
		if cfg.FinalDictPath != "" {
			if _, err := os.Stat(cfg.FinalDictPath); err != nil {
				result.Error = fmt.Errorf("final dictionary not accessible: %w", err)
				result.Guidance = "Fix or remove g2p.final_dict"
				return result
			}
			result.Details["final_dict"] = cfg.FinalDictPath
		}

	case ttypes.EngineExec:
		path, err := exec.LookPath(cfg.Exec.Command)
		if err != nil {
			result.Error = fmt.Errorf("phonemizer command not found in PATH: %w", err)
			result.Guidance = "Set g2p.command to a program that reads a token on stdin and prints space-separated phonemes"
			return result
		}
		result.Details["command"] = path

	case ttypes.EngineNone:
		result.Details["note"] = "phonemization disabled; Thai phoneme samples are not emitted"

	default:
		result.Error = fmt.Errorf("%w: %s", ErrInvalidEngine, cfg.Engine)
		result.Guidance = "Supported engines: remote, dict, exec, none"
		return result
	}

	result.Available = true
	return result
}
