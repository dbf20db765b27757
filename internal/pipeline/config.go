package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/thaitts/corpusprep/internal/annotate"
	"github.com/thaitts/corpusprep/internal/cache"
	"github.com/thaitts/corpusprep/internal/corpus"
	"github.com/thaitts/corpusprep/internal/g2p"
	"github.com/thaitts/corpusprep/internal/ttypes"
	"github.com/thaitts/corpusprep/utils"
)

// ErrNoLanguages is returned when a run selects no language.
var ErrNoLanguages = errors.New("no languages selected")

// LanguageConfig locates the input of one language.
type LanguageConfig struct {
	Language ttypes.Language
	// Input is the metadata file of "relative/audio/path|transcript" lines.
	Input     string
	AudioRoot string
	Layout    annotate.Layout
	// OptOut adds sample IDs to the built-in block-list.
	OptOut     []string
	OptOutFile string
}

// Config is the typed configuration of a run.
type Config struct {
	Languages []LanguageConfig

	// Output is the directory corpora are created in.
	Output string
	// Dataset overrides the generated corpus name.
	Dataset  string
	Combined bool

	Tokenizer ttypes.Tokenizer
	Format    corpus.Format
	BatchSize int

	Workers int
	Devices int
	Policy  annotate.Policy

	G2P g2p.Config

	// CacheDir holds one disk cache per worker slot. Empty keeps caches in memory.
	CacheDir string
	Cache    cache.Config

	// MetricsFile receives the prometheus textfile export when set.
	MetricsFile string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Output:    ".",
		Tokenizer: ttypes.TokenizerChar,
		Format:    corpus.FormatStream,
		BatchSize: 1000,
		Devices:   1,
		Policy:    annotate.PolicyDegrade,
		G2P: g2p.Config{
			Engine: ttypes.EngineRemote,
			Remote: g2p.RemoteConfig{
				URL:            "http://localhost:8000/g2p/",
				ConnectTimeout: 2 * time.Second,
				Granularity:    g2p.GranularityText,
				RetryBackoff:   200 * time.Millisecond,
			},
			Exec:           g2p.ExecConfig{Timeout: 10 * time.Second},
			TokenSeparator: "-",
			Punctuation:    ".",
		},
		Cache: cache.DefaultConfig(),
	}
}

// LoadConfigFromViper builds the configuration of a run over langs. Every
// language reads its settings from the languages.<code> table.
func LoadConfigFromViper(langs []string) (Config, error) {
	cfg := DefaultConfig()

	if viper.IsSet("output") {
		cfg.Output = viper.GetString("output")
	}
	cfg.Dataset = viper.GetString("dataset")
	cfg.Combined = viper.GetBool("combined")
	cfg.MetricsFile = utils.ExpandPath(viper.GetString("metrics_file"))

	var err error
	if viper.IsSet("tokenizer") {
		if cfg.Tokenizer, err = ttypes.ParseTokenizer(viper.GetString("tokenizer")); err != nil {
			return cfg, err
		}
	}
	if viper.IsSet("format") {
		if cfg.Format, err = corpus.ParseFormat(viper.GetString("format")); err != nil {
			return cfg, err
		}
	}
	if viper.IsSet("g2p_failure") {
		if cfg.Policy, err = annotate.ParsePolicy(viper.GetString("g2p_failure")); err != nil {
			return cfg, err
		}
	}
	if viper.IsSet("batch_size") {
		cfg.BatchSize = viper.GetInt("batch_size")
	}
	if viper.IsSet("workers") {
		cfg.Workers = viper.GetInt("workers")
	}
	if viper.IsSet("devices") {
		cfg.Devices = viper.GetInt("devices")
	}

	if cfg.G2P, err = loadG2PConfig(cfg.G2P); err != nil {
		return cfg, err
	}
	loadCacheConfig(&cfg)

	for _, code := range langs {
		lang, err := ttypes.ParseLanguage(code)
		if err != nil {
			return cfg, err
		}
		cfg.Languages = append(cfg.Languages, loadLanguageConfig(lang))
	}

	cfg.Output = utils.ExpandPath(cfg.Output)
	return cfg, nil
}

func loadLanguageConfig(lang ttypes.Language) LanguageConfig {
	key := "languages." + lang.Lower() + "."
	lc := LanguageConfig{
		Language:   lang,
		Input:      utils.ExpandPath(viper.GetString(key + "input")),
		AudioRoot:  utils.ExpandPath(viper.GetString(key + "audio_root")),
		Layout:     annotate.Layout(strings.ToLower(viper.GetString(key + "layout"))),
		OptOut:     viper.GetStringSlice(key + "opt_out"),
		OptOutFile: utils.ExpandPath(viper.GetString(key + "opt_out_file")),
	}
	if lc.Layout == "" {
		lc.Layout = annotate.LayoutRelative
	}
	return lc
}

func loadG2PConfig(cfg g2p.Config) (g2p.Config, error) {
	if viper.IsSet("g2p.engine") {
		engine, err := g2p.ParseEngine(viper.GetString("g2p.engine"))
		if err != nil {
			return cfg, err
		}
		cfg.Engine = engine
	}

	if viper.IsSet("g2p.url") {
		cfg.Remote.URL = viper.GetString("g2p.url")
	}
	if viper.IsSet("g2p.connect_timeout") {
		cfg.Remote.ConnectTimeout = viper.GetDuration("g2p.connect_timeout")
	}
	if viper.IsSet("g2p.read_timeout") {
		cfg.Remote.ReadTimeout = viper.GetDuration("g2p.read_timeout")
	}
	if viper.IsSet("g2p.granularity") {
		switch g := g2p.Granularity(strings.ToLower(viper.GetString("g2p.granularity"))); g {
		case g2p.GranularityText, g2p.GranularitySentence:
			cfg.Remote.Granularity = g
		default:
			return cfg, fmt.Errorf("unsupported g2p granularity %q (expected text or sentence)", g)
		}
	}
	if viper.IsSet("g2p.retries") {
		cfg.Remote.MaxRetries = viper.GetInt("g2p.retries")
	}
	if viper.IsSet("g2p.retry_backoff") {
		cfg.Remote.RetryBackoff = viper.GetDuration("g2p.retry_backoff")
	}
	if viper.IsSet("g2p.rate") {
		cfg.Remote.RequestsPerSecond = viper.GetFloat64("g2p.rate")
	}

	cfg.DictPath = utils.ExpandPath(viper.GetString("g2p.dict"))
	cfg.FinalDictPath = utils.ExpandPath(viper.GetString("g2p.final_dict"))

	if viper.IsSet("g2p.command") {
		cfg.Exec.Command = viper.GetString("g2p.command")
	}
	if viper.IsSet("g2p.args") {
		cfg.Exec.Args = viper.GetStringSlice("g2p.args")
	}
	if viper.IsSet("g2p.exec_timeout") {
		cfg.Exec.Timeout = viper.GetDuration("g2p.exec_timeout")
	}
	if viper.IsSet("g2p.token_separator") {
		cfg.TokenSeparator = viper.GetString("g2p.token_separator")
	}
	if viper.IsSet("g2p.punctuation") {
		cfg.Punctuation = viper.GetString("g2p.punctuation")
	}
	return cfg, nil
}

func loadCacheConfig(cfg *Config) {
	cfg.CacheDir = utils.ExpandPath(viper.GetString("cache.dir"))
	if viper.IsSet("cache.memory_mb") {
		cfg.Cache.MemoryCapacity = viper.GetInt64("cache.memory_mb") * 1024 * 1024
	}
	if viper.IsSet("cache.disk_mb") {
		cfg.Cache.DiskCapacity = viper.GetInt64("cache.disk_mb") * 1024 * 1024
	}
	if viper.IsSet("cache.compression") {
		cfg.Cache.CompressionLevel = viper.GetInt("cache.compression")
	}
	if viper.IsSet("cache.ttl") {
		cfg.Cache.TTL = viper.GetDuration("cache.ttl")
	}
}

// Validate checks the configuration before any work starts.
func (c Config) Validate(annotateOnly bool) error {
	if len(c.Languages) == 0 {
		return ErrNoLanguages
	}
	seen := make(map[ttypes.Language]bool)
	for _, lc := range c.Languages {
		if seen[lc.Language] {
			return fmt.Errorf("language %s selected twice", lc.Language)
		}
		seen[lc.Language] = true

		if lc.Input == "" {
			return fmt.Errorf("no input for %s: set languages.%s.input", lc.Language, lc.Language.Lower())
		}
		if _, err := os.Stat(lc.Input); err != nil {
			return fmt.Errorf("input for %s is not accessible: %w", lc.Language, err)
		}
		if lc.Layout != annotate.LayoutRelative && lc.Layout != annotate.LayoutFlat {
			return fmt.Errorf("unsupported layout %q for %s (expected relative or flat)", lc.Layout, lc.Language)
		}
	}

	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.Devices < 1 {
		return fmt.Errorf("devices must be at least 1, got %d", c.Devices)
	}
	if !annotateOnly && c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", c.BatchSize)
	}
	if res := g2p.Validate(c.G2P); !res.Available {
		if res.Guidance != "" {
			return fmt.Errorf("%w\n\n%s", res.Error, res.Guidance)
		}
		return res.Error
	}
	return nil
}

// DatasetName returns the corpus directory name for langs.
func (c Config) DatasetName(langs ...ttypes.Language) string {
	codes := make([]string, len(langs))
	for i, l := range langs {
		codes[i] = l.String()
	}
	name := "Custom_" + strings.Join(codes, "_") + "_" + string(c.Tokenizer)
	if c.Dataset == "" {
		return name
	}
	if len(langs) == 1 && len(c.Languages) > 1 && !c.Combined {
		return c.Dataset + "_" + langs[0].String()
	}
	return c.Dataset
}

// OptOutIDs returns the configured block-list additions of lc, including
// the IDs listed one per line in OptOutFile.
func (lc LanguageConfig) OptOutIDs() ([]string, error) {
	ids := append([]string(nil), lc.OptOut...)
	if lc.OptOutFile == "" {
		return ids, nil
	}
	f, err := os.Open(lc.OptOutFile)
	if err != nil {
		return nil, fmt.Errorf("unable to open opt-out list: %w", err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" && !strings.HasPrefix(id, "#") {
			ids = append(ids, id)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("unable to read opt-out list: %w", err)
	}
	return ids, nil
}
