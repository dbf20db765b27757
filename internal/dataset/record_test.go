package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRecord_RoundTripThroughDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a1.json")

	rec := NewRecord("a1.wav", filepath.Join(dir, "a1.wav"), 1.5, "สวัสดีครับ", "s-a1-w k-r-a1-p.", "th")
	if rec.Phone2 != "s a1 w k r a1 p." {
		t.Errorf("Phone2 = %q", rec.Phone2)
	}
	if err := WriteRecord(path, rec); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}

	got, err := ReadRecord(path)
	if err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	if got != rec {
		t.Errorf("record mismatch:\n got %+v\nwant %+v", got, rec)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the record file, found %d entries", len(entries))
	}
}

func TestReadRecord_RejectsPartialRecords(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{name: "missing phone2", content: `{"id":"a","wav":"a.wav","duration":1,"text":"x","phone":"y","language":"th"}`},
		{name: "zero duration", content: `{"id":"a","wav":"a.wav","duration":0,"text":"x","phone":"y","phone2":"y","language":"th"}`},
		{name: "corrupt json", content: `{"id":"a",`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := ReadRecord(path); !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("expected ErrInvalidRecord, got %v", err)
			}
		})
	}
}

func TestMetadataPath(t *testing.T) {
	if got := MetadataPath("/data/wavs/a1.wav"); got != "/data/wavs/a1.json" {
		t.Errorf("MetadataPath = %q", got)
	}
	if got := Stem("/data/wavs/EN_B00013_S00913.mp3"); got != "EN_B00013_S00913" {
		t.Errorf("Stem = %q", got)
	}
}
