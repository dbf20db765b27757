package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/thaitts/corpusprep/internal/annotate"
	"github.com/thaitts/corpusprep/internal/audio/audiotest"
	"github.com/thaitts/corpusprep/internal/corpus"
	"github.com/thaitts/corpusprep/internal/dataset"
	"github.com/thaitts/corpusprep/internal/dispatch"
	"github.com/thaitts/corpusprep/internal/ttypes"
)

var quietLogger = log.New(io.Discard)

// g2pServer answers every request with phoneme and counts requests.
func g2pServer(t *testing.T, phoneme string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"phoneme": phoneme})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

// fixture writes wav files under root/audio and a metadata file listing lines.
func fixture(t *testing.T, root, name string, wavs []string, lines ...string) LanguageConfig {
	t.Helper()
	audioRoot := filepath.Join(root, "audio")
	for _, rel := range wavs {
		path := filepath.Join(audioRoot, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := audiotest.WriteTone(path, 16000, 1); err != nil {
			t.Fatal(err)
		}
	}
	input := filepath.Join(root, name)
	if err := os.WriteFile(input, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return LanguageConfig{Input: input, AudioRoot: audioRoot}
}

func testConfig(root string) Config {
	cfg := DefaultConfig()
	cfg.Output = filepath.Join(root, "out")
	cfg.Workers = 2
	cfg.BatchSize = 2
	cfg.G2P.Engine = ttypes.EngineNone
	return cfg
}

func TestRun_PrepareThai(t *testing.T) {
	root := t.TempDir()
	srv, calls := g2pServer(t, "s-a1-w-a2-t-d-i-i")

	lc := fixture(t, root, "th.txt", []string{"th/a.wav", "th/b.wav"},
		"th/a.wav|สวัสดี",
		"th/b.wav|ครับ",
		"th/missing.wav|ไม่มี",
		"no separator",
	)
	lc.Language = ttypes.LanguageThai
	lc.Layout = "relative"

	cfg := testConfig(root)
	cfg.Languages = []LanguageConfig{lc}
	cfg.G2P.Engine = ttypes.EngineRemote
	cfg.G2P.Remote.URL = srv.URL + "/g2p/"
	cfg.MetricsFile = filepath.Join(root, "corpusprep.prom")

	var updates atomic.Int32
	rep, err := Run(context.Background(), cfg, Options{
		Logger: quietLogger,
		Tracker: func(string) Tracker {
			return trackerFunc(func(dispatch.Progress) { updates.Add(1) })
		},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(rep.Corpora) != 1 {
		t.Fatalf("got %d corpora", len(rep.Corpora))
	}
	c := rep.Corpora[0]
	if c.Lines != 4 || c.Admitted != 2 || c.Annotated != 2 || c.Samples != 4 {
		t.Errorf("corpus report = %+v", c)
	}
	if c.Rejected["missing_audio"] != 1 || c.Rejected["malformed_line"] != 1 {
		t.Errorf("rejections = %v", c.Rejected)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("g2p calls = %d, want 2", got)
	}
	if updates.Load() != 4 {
		t.Errorf("progress updates = %d, want 4", updates.Load())
	}

	dir := filepath.Join(root, "out", "Custom_TH_char")
	if c.Dir != dir {
		t.Errorf("Dir = %q, want %q", c.Dir, dir)
	}
	rows, err := corpus.ReadRows(filepath.Join(dir, corpus.ArchiveFile))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("archive has %d rows, want 4", len(rows))
	}
	var phonemeRows int
	for _, row := range rows {
		if !strings.HasPrefix(row.Text, " ") {
			t.Errorf("Thai text %q lacks the leading space", row.Text)
		}
		if row.Text == " s-a1-w-a2-t-d-i-i" {
			phonemeRows++
		}
	}
	if phonemeRows != 2 {
		t.Errorf("got %d phoneme rows, want 2", phonemeRows)
	}

	rec, err := dataset.ReadRecord(filepath.Join(root, "audio", "th", "a.json"))
	if err != nil {
		t.Fatalf("metadata record: %v", err)
	}
	if rec.Phone2 != "s a1 w a2 t d i i" || rec.Language != "th" {
		t.Errorf("record = %+v", rec)
	}

	if _, err := os.Stat(cfg.MetricsFile); err != nil {
		t.Errorf("metrics file not written: %v", err)
	}

	// A second run reuses every record and calls the service no more.
	rep, err = Run(context.Background(), cfg, Options{Logger: quietLogger})
	if err != nil {
		t.Fatal(err)
	}
	c = rep.Corpora[0]
	if c.Resumed != 2 || c.Annotated != 0 || c.Samples != 4 {
		t.Errorf("second run = %+v", c)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("g2p calls after resume = %d, want 2", got)
	}
	if rep.RunID == "" {
		t.Error("run id is empty")
	}
}

type trackerFunc func(dispatch.Progress)

func (f trackerFunc) Update(p dispatch.Progress) { f(p) }
func (f trackerFunc) Stop()                      {}

func TestRun_Combined(t *testing.T) {
	root := t.TempDir()
	th := fixture(t, root, "th.txt", []string{"th/a.wav"}, "th/a.wav|สวัสดี")
	th.Language = ttypes.LanguageThai
	th.Layout = "relative"
	en := fixture(t, root, "en.txt", []string{"en/EN_B00013_S00913.wav", "en/EN_X.wav"},
		"en/EN_B00013_S00913.wav|blocked sample",
		"en/EN_X.wav|hello there",
	)
	en.Language = ttypes.LanguageEnglish
	en.Layout = "relative"

	cfg := testConfig(root)
	cfg.Languages = []LanguageConfig{th, en}
	cfg.Combined = true

	rep, err := Run(context.Background(), cfg, Options{Logger: quietLogger})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Corpora) != 1 {
		t.Fatalf("got %d corpora, want 1", len(rep.Corpora))
	}
	c := rep.Corpora[0]
	if c.Language != "TH_EN" || c.Lines != 3 || c.Rejected["opt_out"] != 1 {
		t.Errorf("corpus report = %+v", c)
	}
	// No phonemes without an engine, so Thai yields a single sample.
	if c.Samples != 2 {
		t.Errorf("Samples = %d, want 2", c.Samples)
	}

	var summary corpus.Summary
	b, err := os.ReadFile(filepath.Join(root, "out", "Custom_TH_EN_char", corpus.SummaryFile))
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(b, &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Language != "TH_EN" || summary.BadCounts["opt_out"] != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRun_AnnotateOnly(t *testing.T) {
	root := t.TempDir()
	lc := fixture(t, root, "en.txt", []string{"en/a.wav"}, "en/a.wav|test test test test test")
	lc.Language = ttypes.LanguageEnglish
	lc.Layout = "relative"

	cfg := testConfig(root)
	cfg.Languages = []LanguageConfig{lc}

	rep, err := Run(context.Background(), cfg, Options{AnnotateOnly: true, Logger: quietLogger})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Command != "annotate" || rep.Corpora[0].Annotated != 1 {
		t.Errorf("report = %+v", rep)
	}
	if _, err := dataset.ReadRecord(filepath.Join(root, "audio", "en", "a.json")); err != nil {
		t.Errorf("metadata record: %v", err)
	}
	if _, err := os.Stat(cfg.Output); !os.IsNotExist(err) {
		t.Error("annotate must not create a corpus")
	}
}

func TestRun_Failures(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		root := t.TempDir()
		lc := fixture(t, root, "th.txt", nil)
		lc.Language = ttypes.LanguageThai
		cfg := testConfig(root)
		cfg.Languages = []LanguageConfig{lc}

		_, err := Run(context.Background(), cfg, Options{Logger: quietLogger})
		if !errors.Is(err, dataset.ErrNoEntries) {
			t.Fatalf("err = %v, want ErrNoEntries", err)
		}
	})

	t.Run("every slot fails", func(t *testing.T) {
		root := t.TempDir()
		lc := fixture(t, root, "th.txt", []string{"a.wav"}, "a.wav|x")
		lc.Language = ttypes.LanguageThai
		lc.Layout = "relative"
		cfg := testConfig(root)
		cfg.Languages = []LanguageConfig{lc}
		cfg.G2P.Engine = ttypes.EngineDict
		cfg.G2P.DictPath = filepath.Join(root, "missing.dict")

		rep, err := Run(context.Background(), cfg, Options{Logger: quietLogger})
		if !errors.Is(err, dispatch.ErrNoWorkers) {
			t.Fatalf("err = %v, want ErrNoWorkers", err)
		}
		if rep.FailedSlots != 2 {
			t.Errorf("FailedSlots = %d, want 2", rep.FailedSlots)
		}
	})
}

func TestErrorFile(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"th/a.wav|text", "th/a.wav"},
		{"garbage", "garbage"},
	}
	for _, tt := range tests {
		if got := errorFile(annotate.Outcome{Line: tt.line}); got != tt.want {
			t.Errorf("errorFile(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}
