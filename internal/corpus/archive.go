package corpus

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/thaitts/corpusprep/internal/ttypes"
)

// File names inside a corpus directory.
const (
	ArchiveFile  = "raw.arrow"
	DurationFile = "duration.json"
	VocabFile    = "vocab.txt"
	SummaryFile  = "summary.json"
)

// Column names of the archive.
const (
	ColAudioPath = "audio_path"
	ColText      = "text"
	ColDuration  = "duration"
)

// Format is the Arrow IPC flavour of an archive.
type Format string

const (
	// FormatStream is the Arrow IPC streaming format.
	FormatStream Format = "stream"
	// FormatFile is the Arrow IPC random-access file format.
	FormatFile Format = "file"
)

// ParseFormat validates an archive format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatStream, nil
	case FormatStream, FormatFile:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported archive format %q (expected stream or file)", s)
	}
}

var fileMagic = []byte("ARROW1")

// Schema returns the archive schema for a tokenizer. Pinyin archives store
// the token list; character archives store the text itself.
func Schema(tok ttypes.Tokenizer) *arrow.Schema {
	var text arrow.DataType = arrow.BinaryTypes.String
	if tok == ttypes.TokenizerPinyin {
		text = arrow.ListOf(arrow.BinaryTypes.String)
	}
	return arrow.NewSchema([]arrow.Field{
		{Name: ColAudioPath, Type: arrow.BinaryTypes.String},
		{Name: ColText, Type: text},
		{Name: ColDuration, Type: arrow.PrimitiveTypes.Float64},
	}, nil)
}

// recordWriter is implemented by both ipc.Writer and ipc.FileWriter.
type recordWriter interface {
	Write(rec arrow.Record) error
	Close() error
}

func newRecordWriter(w io.Writer, format Format, schema *arrow.Schema, mem memory.Allocator) (recordWriter, error) {
	if format == FormatFile {
		return ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	}
	return ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem)), nil
}

// DetectFormat reports the format of the archive at path from its magic bytes.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck

	head := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		return "", fmt.Errorf("unable to read archive header: %w", err)
	}
	if bytes.Equal(head, fileMagic) {
		return FormatFile, nil
	}
	return FormatStream, nil
}

// archiveReader iterates the record batches of either archive format.
type archiveReader struct {
	f      *os.File
	format Format
	stream *ipc.Reader
	file   *ipc.FileReader
	next   int
	cur    arrow.Record
	err    error
}

func openArchive(path string, mem memory.Allocator) (*archiveReader, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := &archiveReader{f: f, format: format}
	if format == FormatFile {
		r.file, err = ipc.NewFileReader(f, ipc.WithAllocator(mem))
	} else {
		r.stream, err = ipc.NewReader(f, ipc.WithAllocator(mem))
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to open archive %s: %w", path, err)
	}
	return r, nil
}

func (r *archiveReader) Schema() *arrow.Schema {
	if r.file != nil {
		return r.file.Schema()
	}
	return r.stream.Schema()
}

// Next advances to the next batch. The batch is valid until the following call.
func (r *archiveReader) Next() bool {
	if r.stream != nil {
		if !r.stream.Next() {
			r.err = r.stream.Err()
			return false
		}
		r.cur = r.stream.Record()
		return true
	}
	if r.next >= r.file.NumRecords() {
		return false
	}
	r.cur, r.err = r.file.Record(r.next)
	r.next++
	return r.err == nil
}

func (r *archiveReader) Record() arrow.Record { return r.cur }

func (r *archiveReader) Err() error {
	if errors.Is(r.err, io.EOF) {
		return nil
	}
	return r.err
}

func (r *archiveReader) Close() error {
	if r.stream != nil {
		r.stream.Release()
	}
	if r.file != nil {
		_ = r.file.Close()
	}
	return r.f.Close()
}

// Row is one decoded archive row.
type Row struct {
	AudioPath string
	// Text holds the text column; for list archives the tokens are concatenated.
	Text     string
	Tokens   []string
	Duration float64
}

// ReadRows decodes every row of an archive.
func ReadRows(path string) ([]Row, error) {
	r, err := openArchive(path, memory.NewGoAllocator())
	if err != nil {
		return nil, err
	}
	defer r.Close() //nolint:errcheck

	var rows []Row
	for r.Next() {
		rec := r.Record()
		paths, ok := column(rec, ColAudioPath).(*array.String)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not utf8", ErrSchemaMismatch, ColAudioPath)
		}
		durations, ok := column(rec, ColDuration).(*array.Float64)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not float64", ErrSchemaMismatch, ColDuration)
		}
		text := column(rec, ColText)
		if text == nil {
			return nil, fmt.Errorf("%w: missing %s column", ErrSchemaMismatch, ColText)
		}

		for i := 0; i < int(rec.NumRows()); i++ {
			row := Row{AudioPath: paths.Value(i), Duration: durations.Value(i)}
			switch col := text.(type) {
			case *array.String:
				row.Text = col.Value(i)
			case *array.List:
				values := col.ListValues().(*array.String)
				start, end := col.ValueOffsets(i)
				for j := start; j < end; j++ {
					row.Tokens = append(row.Tokens, values.Value(int(j)))
				}
				row.Text = strings.Join(row.Tokens, "")
			default:
				return nil, fmt.Errorf("%w: unexpected %s type %s", ErrSchemaMismatch, ColText, text.DataType())
			}
			rows = append(rows, row)
		}
	}
	return rows, r.Err()
}

func column(rec arrow.Record, name string) arrow.Array {
	idx := rec.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return nil
	}
	return rec.Column(idx[0])
}
