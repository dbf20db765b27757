package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/thaitts/corpusprep/internal/annotate"
	"github.com/thaitts/corpusprep/internal/corpus"
	"github.com/thaitts/corpusprep/internal/g2p"
	"github.com/thaitts/corpusprep/internal/ttypes"
)

func TestLoadConfigFromViper(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("output", "/srv/corpora/")
	viper.Set("tokenizer", "pinyin")
	viper.Set("format", "file")
	viper.Set("workers", 8)
	viper.Set("devices", 2)
	viper.Set("g2p_failure", "skip")
	viper.Set("g2p.engine", "http")
	viper.Set("g2p.url", "http://g2p:8000/g2p/")
	viper.Set("g2p.read_timeout", "30s")
	viper.Set("g2p.granularity", "sentence")
	viper.Set("g2p.rate", 5.0)
	viper.Set("cache.dir", "/tmp/cache")
	viper.Set("cache.memory_mb", 4)
	viper.Set("languages.zh.input", "/data/zh.txt")
	viper.Set("languages.zh.audio_root", "/data/zh")
	viper.Set("languages.zh.layout", "FLAT")
	viper.Set("languages.zh.opt_out", []string{"ZH_X"})

	cfg, err := LoadConfigFromViper([]string{"zh"})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Output != "/srv/corpora" || cfg.Tokenizer != ttypes.TokenizerPinyin || cfg.Format != corpus.FormatFile {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Workers != 8 || cfg.Devices != 2 || cfg.Policy != annotate.PolicySkip {
		t.Errorf("workers = %d, devices = %d, policy = %q", cfg.Workers, cfg.Devices, cfg.Policy)
	}
	want := g2p.RemoteConfig{
		URL:               "http://g2p:8000/g2p/",
		ConnectTimeout:    2 * time.Second,
		ReadTimeout:       30 * time.Second,
		Granularity:       g2p.GranularitySentence,
		RetryBackoff:      200 * time.Millisecond,
		RequestsPerSecond: 5,
	}
	if cfg.G2P.Engine != ttypes.EngineRemote || !reflect.DeepEqual(cfg.G2P.Remote, want) {
		t.Errorf("g2p = %+v", cfg.G2P)
	}
	if cfg.CacheDir != "/tmp/cache" || cfg.Cache.MemoryCapacity != 4*1024*1024 {
		t.Errorf("cache dir = %q, capacity = %d", cfg.CacheDir, cfg.Cache.MemoryCapacity)
	}

	wantLang := LanguageConfig{
		Language:  ttypes.LanguageChinese,
		Input:     "/data/zh.txt",
		AudioRoot: "/data/zh",
		Layout:    annotate.LayoutFlat,
		OptOut:    []string{"ZH_X"},
	}
	if !reflect.DeepEqual(cfg.Languages, []LanguageConfig{wantLang}) {
		t.Errorf("languages = %+v", cfg.Languages)
	}
}

func TestLoadConfigFromViper_Errors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
		langs []string
	}{
		{"unknown language", "", nil, []string{"fr"}},
		{"bad tokenizer", "tokenizer", "bpe", nil},
		{"bad format", "format", "parquet", nil},
		{"bad policy", "g2p_failure", "retry", nil},
		{"bad engine", "g2p.engine", "espeak", nil},
		{"bad granularity", "g2p.granularity", "word", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			if tt.key != "" {
				viper.Set(tt.key, tt.value)
			}
			if _, err := LoadConfigFromViper(tt.langs); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	input := filepath.Join(t.TempDir(), "th.txt")
	if err := os.WriteFile(input, []byte("a.wav|x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.Languages = []LanguageConfig{{Language: ttypes.LanguageThai, Input: input, Layout: annotate.LayoutRelative}}
		return cfg
	}

	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"no languages", func(c *Config) { c.Languages = nil }, "no languages"},
		{"twice", func(c *Config) { c.Languages = append(c.Languages, c.Languages[0]) }, "selected twice"},
		{"no input", func(c *Config) { c.Languages[0].Input = "" }, "no input for TH"},
		{"missing input", func(c *Config) { c.Languages[0].Input = input + ".gone" }, "not accessible"},
		{"bad layout", func(c *Config) { c.Languages[0].Layout = "nested" }, "unsupported layout"},
		{"devices", func(c *Config) { c.Devices = 0 }, "devices"},
		{"batch", func(c *Config) { c.BatchSize = 0 }, "batch_size"},
		{"bad url", func(c *Config) { c.G2P.Remote.URL = "localhost" }, "invalid g2p url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := cfg.Validate(false)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}

	cfg := valid()
	cfg.Languages = nil
	if err := cfg.Validate(false); !errors.Is(err, ErrNoLanguages) {
		t.Errorf("err = %v, want ErrNoLanguages", err)
	}
}

func TestConfig_DatasetName(t *testing.T) {
	th, en := ttypes.LanguageThai, ttypes.LanguageEnglish
	tests := []struct {
		name     string
		dataset  string
		combined bool
		selected int
		langs    []ttypes.Language
		want     string
	}{
		{"generated", "", false, 1, []ttypes.Language{th}, "Custom_TH_char"},
		{"combined", "", true, 2, []ttypes.Language{th, en}, "Custom_TH_EN_char"},
		{"override", "Giga", false, 1, []ttypes.Language{th}, "Giga"},
		{"override per language", "Giga", false, 2, []ttypes.Language{en}, "Giga_EN"},
		{"override combined", "Giga", true, 2, []ttypes.Language{th, en}, "Giga"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Dataset = tt.dataset
			cfg.Combined = tt.combined
			cfg.Languages = make([]LanguageConfig, tt.selected)
			if got := cfg.DatasetName(tt.langs...); got != tt.want {
				t.Errorf("DatasetName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLanguageConfig_OptOutIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "optout.txt")
	if err := os.WriteFile(path, []byte("# mislabeled\nEN_A\n\n  EN_B  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	lc := LanguageConfig{OptOut: []string{"EN_C"}, OptOutFile: path}
	ids, err := lc.OptOutIDs()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{"EN_C", "EN_A", "EN_B"}) {
		t.Errorf("ids = %q", ids)
	}
}
