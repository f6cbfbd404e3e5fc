package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tcolgate/mp3"
)

// FallbackBytesPerSecond approximates duration from size when an artifact's
// metadata cannot be read: 128 kbit/s, a typical TTS MP3 bitrate.
const FallbackBytesPerSecond = 16000

// Measurement is the playback length of one artifact.
type Measurement struct {
	Duration time.Duration
	// Approximate is set when the duration was derived from file size.
	Approximate bool
}

func (m Measurement) Seconds() float64 { return m.Duration.Seconds() }

// Prober measures artifact durations.
type Prober interface {
	Duration(path string) (Measurement, error)
}

// FileProber reads durations from WAV headers and MP3 frame headers and
// falls back to a size estimate for anything else.
type FileProber struct{}

func (FileProber) Duration(path string) (Measurement, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Measurement{}, err
	}
	if st.IsDir() {
		return Measurement{}, fmt.Errorf("%s is a directory", path)
	}

	var d time.Duration
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		var info WAVInfo
		info, err = ReadWAVFileInfo(path)
		d = info.Duration()
	case ".mp3":
		d, err = MP3Duration(path)
	default:
		err = errUnknownContainer
	}
	if err == nil && d > 0 {
		return Measurement{Duration: d}, nil
	}
	return EstimateFromSize(st.Size()), nil
}

var errUnknownContainer = errors.New("unknown container")

// EstimateFromSize approximates the duration of size bytes of audio.
func EstimateFromSize(size int64) Measurement {
	secs := float64(size) / FallbackBytesPerSecond
	return Measurement{
		Duration:    time.Duration(secs * float64(time.Second)),
		Approximate: true,
	}
}

// MP3Duration sums frame durations from the MPEG frame headers.
func MP3Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var (
		total   time.Duration
		frame   mp3.Frame
		skipped int
		frames  int
	)
	dec := mp3.NewDecoder(f)
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return 0, fmt.Errorf("decode mp3 frame %d: %w", frames, err)
		}
		total += frame.Duration()
		frames++
	}
	if frames == 0 {
		return 0, fmt.Errorf("no mp3 frames in %s", path)
	}
	return total, nil
}
