package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// ErrDecode is returned when a file is missing, unreadable or not a PCM WAV container.
var ErrDecode = errors.New("audio decode failed")

const (
	formatPCM        = 1
	formatExtensible = 0xFFFE
)

// Info describes a decoded WAV header.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int64
}

// Duration returns the length of the audio in seconds.
func (i Info) Duration() float64 {
	if i.SampleRate == 0 {
		return 0
	}
	return float64(i.Frames) / float64(i.SampleRate)
}

// Probe returns the duration in seconds of the WAV file at path,
// computed as frame count divided by sample rate.
func Probe(path string) (float64, error) {
	info, err := ReadInfo(path)
	if err != nil {
		return 0, err
	}
	return info.Duration(), nil
}

// ReadInfo decodes the WAV header of path and locates its PCM chunk.
func ReadInfo(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	defer f.Close() //nolint:errcheck

	d := wav.NewDecoder(f)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return Info{}, fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
	}
	if d.SampleRate == 0 {
		return Info{}, fmt.Errorf("%w: %s is not a valid wav file", ErrDecode, path)
	}
	if d.WavAudioFormat != formatPCM && d.WavAudioFormat != formatExtensible {
		return Info{}, fmt.Errorf("%w: %s has unsupported audio format %d", ErrDecode, path, d.WavAudioFormat)
	}
	if err := d.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
	}

	info := Info{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}
	frameSize := info.Channels * info.BitDepth / 8
	if info.SampleRate <= 0 || frameSize <= 0 {
		return Info{}, fmt.Errorf("%w: %s has an invalid header (rate=%d, frame=%d)", ErrDecode, path, info.SampleRate, frameSize)
	}
	info.Frames = int64(d.PCMSize) / int64(frameSize)
	if info.Frames == 0 {
		return Info{}, fmt.Errorf("%w: %s contains no frames", ErrDecode, path)
	}
	return info, nil
}
