package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// FFmpeg runs conversions through the ffmpeg binary.
type FFmpeg struct {
	Path string
}

func (f FFmpeg) bin() string {
	if p := strings.TrimSpace(f.Path); p != "" {
		return p
	}
	return "ffmpeg"
}

// ConvertToWAV writes a 16 kHz mono PCM16 copy of src, the input format
// speech models expect.
func (f FFmpeg) ConvertToWAV(ctx context.Context, src, dst string) error {
	return f.run(ctx, "convert",
		"-i", src,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		dst,
		"-y",
	)
}

// Concat joins inputs with the concat demuxer without re-encoding.
func (f FFmpeg) Concat(ctx context.Context, inputs []string, dst string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no inputs to concat")
	}
	list, err := os.CreateTemp("", "shadowing-concat-*.txt")
	if err != nil {
		return err
	}
	defer os.Remove(list.Name())

	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			_ = list.Close()
			return err
		}
		// Single quotes inside paths are escaped per the concat demuxer syntax.
		if _, err := fmt.Fprintf(list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`)); err != nil {
			_ = list.Close()
			return err
		}
	}
	if err := list.Close(); err != nil {
		return err
	}

	return f.run(ctx, "concat",
		"-f", "concat",
		"-safe", "0",
		"-i", list.Name(),
		"-c", "copy",
		dst,
		"-y",
	)
}

func (f FFmpeg) run(ctx context.Context, op string, args ...string) error {
	cmd := exec.CommandContext(ctx, f.bin(), args...)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		// ffmpeg prints its banner first; the useful part is at the end.
		if len(detail) > 4<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(4<<10):])
		}
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Errorf("ffmpeg %s failed: %s", op, detail)
	}
	return nil
}
