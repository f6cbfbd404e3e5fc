package audio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Combined is the artifact produced by joining several artifacts.
type Combined struct {
	Path     string
	Duration Measurement
}

// Combiner concatenates ordered artifacts into one. WAV inputs are joined
// sample-exact, MP3 inputs frame by frame, anything else through ffmpeg.
type Combiner struct {
	FFmpeg FFmpeg
	Prober Prober
}

func (c Combiner) Combine(ctx context.Context, paths []string, outputPath string) (Combined, error) {
	if len(paths) == 0 {
		return Combined{}, fmt.Errorf("no artifacts to combine")
	}

	var err error
	switch commonExt(paths) {
	case ".wav":
		err = ConcatWAVFiles(paths, outputPath)
	case ".mp3":
		err = concatMP3Files(paths, outputPath)
	default:
		err = c.FFmpeg.Concat(ctx, paths, outputPath)
	}
	if err != nil {
		_ = os.Remove(outputPath)
		return Combined{}, err
	}

	prober := c.Prober
	if prober == nil {
		prober = FileProber{}
	}
	m, err := prober.Duration(outputPath)
	if err != nil {
		return Combined{}, fmt.Errorf("measure combined artifact: %w", err)
	}
	return Combined{Path: outputPath, Duration: m}, nil
}

func commonExt(paths []string) string {
	ext := strings.ToLower(filepath.Ext(paths[0]))
	for _, p := range paths[1:] {
		if strings.ToLower(filepath.Ext(p)) != ext {
			return ""
		}
	}
	return ext
}

// concatMP3Files appends the frame streams of each input, dropping ID3 tags
// so the result parses as one continuous stream.
func concatMP3Files(paths []string, outputPath string) error {
	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	for _, p := range paths {
		if err := appendMP3Frames(w, p); err != nil {
			_ = out.Close()
			return fmt.Errorf("append %s: %w", p, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func appendMP3Frames(w io.Writer, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	start := id3v2Size(b)
	end := len(b)
	if end-start >= 128 && string(b[end-128:end-125]) == "TAG" {
		end -= 128
	}
	if start > end {
		return fmt.Errorf("truncated id3 tag")
	}
	_, err = w.Write(b[start:end])
	return err
}

// id3v2Size returns the length of a leading ID3v2 tag, or 0.
func id3v2Size(b []byte) int {
	if len(b) < 10 || string(b[0:3]) != "ID3" {
		return 0
	}
	// Tag size is a 28-bit syncsafe integer excluding the 10 byte header.
	size := int(b[6]&0x7f)<<21 | int(b[7]&0x7f)<<14 | int(b[8]&0x7f)<<7 | int(b[9]&0x7f)
	size += 10
	if b[5]&0x10 != 0 {
		size += 10 // footer present
	}
	if size > len(b) {
		return len(b)
	}
	return size
}
