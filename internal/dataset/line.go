package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrMalformedLine is returned for lines that are not "path|transcript".
var ErrMalformedLine = errors.New("malformed metadata line")

// ErrNoEntries is returned when a metadata file has no non-empty lines.
var ErrNoEntries = errors.New("no entries in metadata")

// RawLine is one "relative/audio/path|transcript" row of a metadata file.
type RawLine struct {
	RelPath    string
	Transcript string
	LineNo     int
}

// ParseLine splits a metadata line into its audio path and transcript.
// The transcript is NFC-normalized.
func ParseLine(line string) (RawLine, error) {
	parts := strings.Split(strings.TrimSpace(line), "|")
	if len(parts) != 2 {
		return RawLine{}, fmt.Errorf("%w: expected 2 fields, got %d", ErrMalformedLine, len(parts))
	}
	rel := strings.TrimSpace(parts[0])
	if rel == "" {
		return RawLine{}, fmt.Errorf("%w: empty audio path", ErrMalformedLine)
	}
	return RawLine{
		RelPath:    rel,
		Transcript: norm.NFC.String(parts[1]),
	}, nil
}

// ReadLines returns every non-empty line of r.
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("unable to read metadata: %w", err)
	}
	return lines, nil
}

// ReadLinesFile reads a metadata file, failing with ErrNoEntries when it is empty.
func ReadLinesFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open metadata: %w", err)
	}
	defer f.Close() //nolint:errcheck

	lines, err := ReadLines(f)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEntries, path)
	}
	return lines, nil
}
