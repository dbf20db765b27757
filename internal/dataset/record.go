package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidRecord is returned when a metadata file is missing required keys.
var ErrInvalidRecord = errors.New("invalid metadata record")

// requiredKeys are the keys every metadata file must carry.
var requiredKeys = []string{"id", "wav", "duration", "text", "phone", "phone2", "language"}

// Record is the per-record metadata file written next to each audio file.
// Its presence marks the audio as already annotated.
type Record struct {
	ID       string  `json:"id"`
	Wav      string  `json:"wav"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Phone    string  `json:"phone"`
	Phone2   string  `json:"phone2"`
	Language string  `json:"language"`
}

// NewRecord builds a record, deriving phone2 from phone.
func NewRecord(id, wav string, duration float64, text, phone, language string) Record {
	return Record{
		ID:       id,
		Wav:      wav,
		Duration: duration,
		Text:     text,
		Phone:    phone,
		Phone2:   strings.ReplaceAll(phone, "-", " "),
		Language: language,
	}
}

// Validate checks the record's field values.
func (r Record) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	case r.Wav == "":
		return fmt.Errorf("%w: empty wav", ErrInvalidRecord)
	case r.Duration <= 0:
		return fmt.Errorf("%w: duration %f", ErrInvalidRecord, r.Duration)
	case r.Language == "":
		return fmt.Errorf("%w: empty language", ErrInvalidRecord)
	}
	return nil
}

// MetadataPath returns the metadata file path for an audio file:
// same directory and stem with a .json extension.
func MetadataPath(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".json"
}

// Stem returns the file name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReadRecord loads and validates a metadata file. Records missing any
// required key are rejected rather than partially trusted.
func ReadRecord(path string) (Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(b, &keys); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	var missing []string
	for _, k := range requiredKeys {
		if _, ok := keys[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Record{}, fmt.Errorf("%w: missing keys %s", ErrInvalidRecord, strings.Join(missing, ", "))
	}

	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// WriteRecord writes rec to path atomically (temp file, then rename), so
// an interrupted run never leaves a truncated marker behind.
func WriteRecord(path string, rec Record) error {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode record: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("unable to create record: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("unable to write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("unable to write record: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("unable to write record: %w", err)
	}
	return nil
}
