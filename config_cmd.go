package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# directory corpora are written to
output: "."
# corpus name (default Custom_<LANGS>_<tokenizer>)
dataset: ""
# text tokenizer: char or pinyin
tokenizer: "char"
# archive format: stream or file
format: "stream"
# rows per archive record batch
batch_size: 1000
# worker goroutines (0 uses one per CPU, or one per device)
workers: 0
# accelerators the workers are spread over
devices: 1
# what to do when phonemization fails: degrade (keep, no phonemes) or skip
g2p_failure: "degrade"
# prometheus textfile export
# metrics_file: "/var/lib/node_exporter/corpusprep.prom"

# grapheme-to-phoneme conversion
g2p:
  # engine: remote, dict, exec or none
  engine: "remote"
  url: "http://localhost:8000/g2p/"
  connect_timeout: "2s"
  # zero waits for the service forever
  read_timeout: "0s"
  # text sends whole transcripts, sentence one request per sentence
  granularity: "text"
  retries: 0
  retry_backoff: "200ms"
  # requests per second per worker (0 is unlimited)
  rate: 0
  # dict engine
  # dict: "~/dicts/th.ipa"
  # final_dict: "~/dicts/th-final.ipa"
  # exec engine: reads a token on stdin, prints phonemes; {lang} is replaced
  # command: "phonemize"
  # args: ["--lang", "{lang}"]
  exec_timeout: "10s"
  token_separator: "-"

# phoneme cache
cache:
  # one disk cache per worker below this directory; empty keeps it in memory
  dir: ""
  memory_mb: 16
  disk_mb: 256
  compression: 3
  ttl: "720h"

# inputs, one table per language code (th, en, zh)
languages:
  th:
    input: ""
    audio_root: ""
    # relative joins audio_root and the line path, flat uses the file name only
    layout: "relative"
    opt_out_file: ""
  en:
    input: ""
    audio_root: ""
    layout: "relative"
  zh:
    input: ""
    audio_root: ""
    layout: "relative"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the corpusprep config file",
	Long:    paragraph(fmt.Sprintf("\n%s the corpusprep config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("corpusprep config\ncorpusprep config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("corpusprep", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
