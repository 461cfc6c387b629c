package export

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat is returned for files Duration cannot read.
var ErrUnsupportedFormat = errors.New("export: unsupported audio format")

// Duration reports the play length of a local .mp3 or .wav file.
func Duration(file string) (time.Duration, error) {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".mp3":
		return mp3Duration(file)
	case ".wav", ".wave":
		return wavDuration(file)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(file))
	}
}

func mp3Duration(file string) (time.Duration, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return 0, fmt.Errorf("export: couldn't read %s: %w", file, err)
	}
	decoder, err := mp3.NewDecoder(bytes.NewReader(b))
	if err != nil {
		return 0, fmt.Errorf("export: couldn't decode mp3: %w", err)
	}
	// The decoder emits 16-bit stereo PCM: 4 bytes per sample frame.
	frames := decoder.Length() / 4
	if decoder.SampleRate() <= 0 {
		return 0, fmt.Errorf("export: mp3 has no sample rate")
	}
	return time.Duration(frames) * time.Second / time.Duration(decoder.SampleRate()), nil
}

// A PCM fmt chunk is 16 bytes; WAVE_FORMAT_EXTENSIBLE stretches it to 40.
const (
	wavFmtMin = 16
	wavFmtMax = 64
)

func wavDuration(file string) (time.Duration, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, fmt.Errorf("export: couldn't open %s: %w", file, err)
	}
	defer f.Close()

	var header [12]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return 0, fmt.Errorf("export: couldn't read wav header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return 0, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedFormat)
	}
	var byteRate uint32
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(f, chunk[:]); err != nil {
			return 0, fmt.Errorf("export: wav data chunk not found: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])
		switch id {
		case "fmt ":
			if size < wavFmtMin || size > wavFmtMax {
				return 0, fmt.Errorf("%w: wav fmt chunk of %d bytes", ErrUnsupportedFormat, size)
			}
			var body [wavFmtMin]byte
			if _, err := io.ReadFull(f, body[:]); err != nil {
				return 0, fmt.Errorf("export: couldn't read wav fmt chunk: %w", err)
			}
			if _, err := f.Seek(int64(size-wavFmtMin), io.SeekCurrent); err != nil {
				return 0, fmt.Errorf("export: couldn't skip wav fmt extension: %w", err)
			}
			byteRate = binary.LittleEndian.Uint32(body[8:12])
		case "data":
			if byteRate == 0 {
				return 0, fmt.Errorf("export: wav data before fmt chunk")
			}
			return time.Duration(size) * time.Second / time.Duration(byteRate), nil
		default:
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				return 0, fmt.Errorf("export: couldn't skip wav chunk %q: %w", id, err)
			}
		}
		// Chunks are word aligned.
		if size%2 == 1 {
			if _, err := f.Seek(1, io.SeekCurrent); err != nil {
				return 0, fmt.Errorf("export: couldn't skip wav padding: %w", err)
			}
		}
	}
}
