package annotate

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/thaitts/corpusprep/internal/audio/audiotest"
	"github.com/thaitts/corpusprep/internal/dataset"
	"github.com/thaitts/corpusprep/internal/filter"
	"github.com/thaitts/corpusprep/internal/g2p"
	"github.com/thaitts/corpusprep/internal/ttypes"
)

var quietLogger = log.New(io.Discard)

// fakeClient returns a fixed result and counts calls.
type fakeClient struct {
	result g2p.Result
	calls  int
}

func (c *fakeClient) Convert(context.Context, string, ttypes.Language) g2p.Result {
	c.calls++
	return c.result
}

func (c *fakeClient) Close() error { return nil }

func okClient(ph string) *fakeClient {
	return &fakeClient{result: g2p.Result{Phoneme: ph, Status: g2p.StatusOK}}
}

func writeWav(t *testing.T, path string, seconds float64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := audiotest.WriteTone(path, 16000, seconds); err != nil {
		t.Fatal(err)
	}
}

func newWorker(client g2p.Client, opts Options) *Worker {
	return NewWorker(client, filter.Default(), opts, quietLogger)
}

func TestWorker_ThaiScenario(t *testing.T) {
	root := t.TempDir()
	wav := filepath.Join(root, "th", "gigaspeech2", "wavs", "a1.wav")
	writeWav(t, wav, 1.5)

	client := okClient("s-a1-w-a2-d-i-i-k-r-a1-p")
	w := newWorker(client, Options{Language: ttypes.LanguageThai, AudioRoot: root})

	out := w.Process(context.Background(), "th/gigaspeech2/wavs/a1.wav|สวัสดีครับ")
	if !out.Admitted() {
		t.Fatalf("line rejected: %s (%v)", out.Reason, out.Err)
	}
	if len(out.Samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(out.Samples))
	}

	text, phone := out.Samples[0], out.Samples[1]
	if text.Text != " สวัสดีครับ" {
		t.Errorf("text sample = %q", text.Text)
	}
	if phone.Text != " s-a1-w-a2-d-i-i-k-r-a1-p" {
		t.Errorf("phoneme sample = %q", phone.Text)
	}
	if text.Duration != phone.Duration {
		t.Errorf("durations differ: %f vs %f", text.Duration, phone.Duration)
	}
	if math.Abs(text.Duration-1.5) > 0.001 {
		t.Errorf("duration = %f, want 1.5", text.Duration)
	}
	if text.AudioPath != wav || phone.AudioPath != wav {
		t.Errorf("audio paths = %q, %q", text.AudioPath, phone.AudioPath)
	}
	if len(text.Tokens) != len([]rune(text.Text)) {
		t.Errorf("char tokens = %q", text.Tokens)
	}

	rec, err := dataset.ReadRecord(filepath.Join(filepath.Dir(wav), "a1.json"))
	if err != nil {
		t.Fatalf("metadata record not written: %v", err)
	}
	if rec.ID != "a1.wav" || rec.Language != "th" {
		t.Errorf("record id/language = %q/%q", rec.ID, rec.Language)
	}
	if rec.Phone2 != "s a1 w a2 d i i k r a1 p" {
		t.Errorf("phone2 = %q", rec.Phone2)
	}
	if !out.Annotated || out.Resumed {
		t.Errorf("Annotated/Resumed = %v/%v", out.Annotated, out.Resumed)
	}
}

func TestWorker_Rejections(t *testing.T) {
	root := t.TempDir()
	writeWav(t, filepath.Join(root, "en", "EN_B00001_S00001.wav"), 1)
	writeWav(t, filepath.Join(root, "en", "EN_B00013_S00913.wav"), 1)
	if err := os.WriteFile(filepath.Join(root, "en", "broken.wav"), []byte("not audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		line string
		want ttypes.Reason
	}{
		{"malformed", "only-a-path", ttypes.ReasonMalformedLine},
		{"too many fields", "a.wav|b|c", ttypes.ReasonMalformedLine},
		{"missing audio", "en/nope.wav|hello", ttypes.ReasonMissingAudio},
		{"decode error", "en/broken.wav|hello", ttypes.ReasonDecodeError},
		{"repetition", "en/EN_B00001_S00001.wav|aaaa test test test test", ttypes.ReasonRepetition},
		{"opt-out", "en/EN_B00013_S00913.wav|hello there", ttypes.ReasonOptOut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorker(okClient("x"), Options{Language: ttypes.LanguageEnglish, AudioRoot: root})
			out := w.Process(context.Background(), tt.line)
			if out.Reason != tt.want {
				t.Errorf("Reason = %q, want %q (err %v)", out.Reason, tt.want, out.Err)
			}
			if len(out.Samples) != 0 {
				t.Errorf("rejected line produced %d samples", len(out.Samples))
			}
			if out.Line != tt.line {
				t.Errorf("Line = %q", out.Line)
			}
		})
	}
}

func TestWorker_MissingAudioWritesNothing(t *testing.T) {
	root := t.TempDir()
	client := okClient("x")
	w := newWorker(client, Options{Language: ttypes.LanguageThai, AudioRoot: root})

	out := w.Process(context.Background(), "missing.wav|สวัสดี")
	if out.Reason != ttypes.ReasonMissingAudio {
		t.Fatalf("Reason = %q", out.Reason)
	}
	if client.calls != 0 {
		t.Error("phonemizer should not be called for missing audio")
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Errorf("unexpected files written: %v", entries)
	}
}

func TestWorker_Idempotent(t *testing.T) {
	root := t.TempDir()
	wav := filepath.Join(root, "a1.wav")
	writeWav(t, wav, 0.5)
	meta := filepath.Join(root, "a1.json")

	client := okClient("k-r-a1-p")
	w := newWorker(client, Options{Language: ttypes.LanguageThai, AudioRoot: root})
	line := "a1.wav|ครับ"

	first := w.Process(context.Background(), line)
	if !first.Annotated {
		t.Fatalf("first run did not annotate: %+v", first)
	}
	info1, err := os.Stat(meta)
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(10 * time.Millisecond)
	second := w.Process(context.Background(), line)
	if !second.Resumed || second.Annotated {
		t.Errorf("second run Resumed/Annotated = %v/%v", second.Resumed, second.Annotated)
	}
	if client.calls != 1 {
		t.Errorf("phonemizer called %d times, want 1", client.calls)
	}

	info2, err := os.Stat(meta)
	if err != nil {
		t.Fatal(err)
	}
	if !info2.ModTime().Equal(info1.ModTime()) {
		t.Error("metadata record was rewritten on the second run")
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 2 {
		t.Errorf("directory has %d entries, want 2", len(entries))
	}

	if len(second.Samples) != len(first.Samples) {
		t.Fatalf("sample counts differ: %d vs %d", len(second.Samples), len(first.Samples))
	}
	for i := range first.Samples {
		if first.Samples[i].Text != second.Samples[i].Text || first.Samples[i].Duration != second.Samples[i].Duration {
			t.Errorf("sample %d differs: %+v vs %+v", i, first.Samples[i], second.Samples[i])
		}
	}
}

func TestWorker_ResumedRecordNeedsAudio(t *testing.T) {
	root := t.TempDir()
	wav := filepath.Join(root, "a1.wav")
	writeWav(t, wav, 0.5)

	client := okClient("k-r-a1-p")
	w := newWorker(client, Options{Language: ttypes.LanguageThai, AudioRoot: root})
	line := "a1.wav|ครับ"

	if first := w.Process(context.Background(), line); !first.Annotated {
		t.Fatalf("first run did not annotate: %+v", first)
	}
	if err := os.Remove(wav); err != nil {
		t.Fatal(err)
	}

	out := w.Process(context.Background(), line)
	if out.Reason != ttypes.ReasonMissingAudio {
		t.Errorf("Reason = %q, want %q", out.Reason, ttypes.ReasonMissingAudio)
	}
	if len(out.Samples) != 0 {
		t.Errorf("got %d samples for deleted audio", len(out.Samples))
	}
}

func TestWorker_ResumeUsesResolvedAudioPath(t *testing.T) {
	root := t.TempDir()
	wav := filepath.Join(root, "a1.wav")
	writeWav(t, wav, 0.5)

	rec := dataset.NewRecord("a1.wav", "/old/location/a1.wav", 0.5, "ครับ", "k-r-a1-p", "th")
	if err := dataset.WriteRecord(filepath.Join(root, "a1.json"), rec); err != nil {
		t.Fatal(err)
	}

	client := okClient("unused")
	w := newWorker(client, Options{Language: ttypes.LanguageThai, AudioRoot: root})
	out := w.Process(context.Background(), "a1.wav|ครับ")

	if !out.Resumed {
		t.Fatalf("record was not resumed: %+v", out)
	}
	if client.calls != 0 {
		t.Errorf("phonemizer called %d times", client.calls)
	}
	if len(out.Samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(out.Samples))
	}
	for i, s := range out.Samples {
		if s.AudioPath != wav {
			t.Errorf("sample %d AudioPath = %q, want %q", i, s.AudioPath, wav)
		}
	}
}

func TestWorker_InvalidRecordIsReannotated(t *testing.T) {
	root := t.TempDir()
	writeWav(t, filepath.Join(root, "a1.wav"), 0.5)
	if err := os.WriteFile(filepath.Join(root, "a1.json"), []byte(`{"id": "a1.wav", "duration": 1}`), 0o644); err != nil {
		t.Fatal(err)
	}

	client := okClient("k")
	w := newWorker(client, Options{Language: ttypes.LanguageThai, AudioRoot: root})
	out := w.Process(context.Background(), "a1.wav|ครับ")

	if out.Resumed || !out.Annotated {
		t.Errorf("Resumed/Annotated = %v/%v", out.Resumed, out.Annotated)
	}
	if client.calls != 1 {
		t.Errorf("phonemizer called %d times", client.calls)
	}
	if _, err := dataset.ReadRecord(filepath.Join(root, "a1.json")); err != nil {
		t.Errorf("record still invalid: %v", err)
	}
}

func TestWorker_G2PFailurePolicy(t *testing.T) {
	failing := func() *fakeClient {
		return &fakeClient{result: g2p.Result{Status: g2p.StatusTimeout, Err: errors.New("deadline")}}
	}

	t.Run("skip", func(t *testing.T) {
		root := t.TempDir()
		writeWav(t, filepath.Join(root, "a1.wav"), 0.5)

		w := newWorker(failing(), Options{Language: ttypes.LanguageThai, AudioRoot: root, Policy: PolicySkip})
		out := w.Process(context.Background(), "a1.wav|ครับ")
		if out.Reason != ttypes.ReasonG2PFailure {
			t.Errorf("Reason = %q", out.Reason)
		}
		if out.G2P != g2p.StatusTimeout {
			t.Errorf("G2P status = %q", out.G2P)
		}
		if _, err := os.Stat(filepath.Join(root, "a1.json")); err == nil {
			t.Error("skipped record should not be written")
		}
	})

	t.Run("degrade", func(t *testing.T) {
		root := t.TempDir()
		writeWav(t, filepath.Join(root, "a1.wav"), 0.5)

		w := newWorker(failing(), Options{Language: ttypes.LanguageThai, AudioRoot: root})
		out := w.Process(context.Background(), "a1.wav|ครับ")
		if !out.Admitted() {
			t.Fatalf("Reason = %q", out.Reason)
		}
		if len(out.Samples) != 1 {
			t.Errorf("got %d samples, want only the text sample", len(out.Samples))
		}
	})
}

func TestWorker_AnnotateOnly(t *testing.T) {
	root := t.TempDir()
	writeWav(t, filepath.Join(root, "EN_B00001_S00001.wav"), 0.5)

	w := newWorker(okClient("x"), Options{Language: ttypes.LanguageEnglish, AudioRoot: root, AnnotateOnly: true})
	out := w.Process(context.Background(), "EN_B00001_S00001.wav|aaaa test test test test")
	if !out.Annotated || len(out.Samples) != 0 || !out.Admitted() {
		t.Errorf("annotate-only outcome = %+v", out)
	}
}

func TestWorker_FlatLayout(t *testing.T) {
	root := t.TempDir()
	writeWav(t, filepath.Join(root, "a1.wav"), 0.5)

	w := newWorker(okClient("x"), Options{Language: ttypes.LanguageEnglish, AudioRoot: root, Layout: LayoutFlat})
	out := w.Process(context.Background(), "some/deep/dir/a1.wav|hello")
	if !out.Admitted() {
		t.Fatalf("Reason = %q (%v)", out.Reason, out.Err)
	}
	if out.Samples[0].AudioPath != filepath.Join(root, "a1.wav") {
		t.Errorf("AudioPath = %q", out.Samples[0].AudioPath)
	}
	if len(out.Samples) != 1 {
		t.Errorf("english line produced %d samples", len(out.Samples))
	}
}

func TestWorker_ChinesePinyin(t *testing.T) {
	root := t.TempDir()
	writeWav(t, filepath.Join(root, "ZH_B00001_S00001.wav"), 0.5)

	w := newWorker(okClient(""), Options{
		Language:  ttypes.LanguageChinese,
		AudioRoot: root,
		Tokenizer: ttypes.TokenizerPinyin,
	})
	out := w.Process(context.Background(), "ZH_B00001_S00001.wav|你好,")
	if !out.Admitted() {
		t.Fatalf("Reason = %q", out.Reason)
	}
	s := out.Samples[0]
	if s.Text != "你好，" {
		t.Errorf("Text = %q", s.Text)
	}
	want := []string{" ", "ni3", " ", "hao3", "，"}
	if len(s.Tokens) != len(want) {
		t.Fatalf("Tokens = %q, want %q", s.Tokens, want)
	}
	for i := range want {
		if s.Tokens[i] != want[i] {
			t.Errorf("Tokens = %q, want %q", s.Tokens, want)
			break
		}
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": PolicyDegrade, "SKIP": PolicySkip, "degrade": PolicyDegrade} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("retry"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
