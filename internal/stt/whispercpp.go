package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/ent0n29/shadowing/internal/audio"
)

type WhisperConfig struct {
	CLI       string
	ModelPath string
	Threads   int
	FFmpeg    audio.FFmpeg
}

// WhisperCPP runs the whisper.cpp command line tool with JSON output.
type WhisperCPP struct {
	cliPath   string
	modelPath string
	threads   int
	ffmpeg    audio.FFmpeg
}

func NewWhisperCPP(cfg WhisperConfig) (*WhisperCPP, error) {
	cli := strings.TrimSpace(cfg.CLI)
	if cli == "" {
		cli = "whisper-cli"
	}
	cliPath, err := exec.LookPath(cli)
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp CLI not found (%s)", cli)
	}
	modelPath := strings.TrimSpace(cfg.ModelPath)
	if modelPath == "" {
		return nil, fmt.Errorf("LOCAL_WHISPER_MODEL_PATH is required")
	}
	if !filepath.IsAbs(modelPath) {
		if wd, err := os.Getwd(); err == nil {
			modelPath = filepath.Join(wd, modelPath)
		}
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("whisper.cpp model not found: %s", modelPath)
	}

	threads := cfg.Threads
	if threads < 0 {
		return nil, fmt.Errorf("LOCAL_WHISPER_THREADS must be >= 0")
	}
	if threads == 0 {
		threads = runtime.NumCPU()
		if threads > 8 {
			threads = 8
		}
		if threads < 2 {
			threads = 2
		}
	}
	return &WhisperCPP{cliPath: cliPath, modelPath: modelPath, threads: threads, ffmpeg: cfg.FFmpeg}, nil
}

func (w *WhisperCPP) Transcribe(ctx context.Context, audioPath string, opts Options) (Result, error) {
	tmpDir, err := os.MkdirTemp("", "shadowing-whisper-*")
	if err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(tmpDir)

	wavPath := filepath.Join(tmpDir, "audio.wav")
	if err := w.ffmpeg.ConvertToWAV(ctx, audioPath, wavPath); err != nil {
		return Result{}, err
	}
	info, err := audio.ReadWAVFileInfo(wavPath)
	if err != nil {
		return Result{}, err
	}

	language := strings.TrimSpace(opts.Language)
	if language == "" {
		language = "auto"
	}
	outPrefix := filepath.Join(tmpDir, "out")
	args := []string{
		"-m", w.modelPath,
		"-f", wavPath,
		"-l", language,
		"-oj",
		"-of", outPrefix,
		"-t", strconv.Itoa(w.threads),
	}
	if opts.Task == TaskTranslate {
		args = append(args, "-tr")
	}
	if opts.WordTimestamps {
		// Split on word boundaries so segment times stay tight.
		args = append(args, "-sow")
	}

	cmd := exec.CommandContext(ctx, w.cliPath, args...)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		detail := strings.TrimSpace(stderr.String())
		// whisper.cpp can be extremely chatty; keep errors readable.
		if len(detail) > 8<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(8<<10):])
		}
		if detail == "" {
			detail = err.Error()
		}
		return Result{}, fmt.Errorf("whisper.cpp failed: %s", detail)
	}

	b, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return Result{}, err
	}
	res, err := parseWhisperJSON(b)
	if err != nil {
		return Result{}, err
	}
	res.Duration = info.Duration().Seconds()
	return res, nil
}

type whisperJSON struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// parseWhisperJSON reads the -oj output; offsets are milliseconds.
func parseWhisperJSON(b []byte) (Result, error) {
	var doc whisperJSON
	if err := json.Unmarshal(b, &doc); err != nil {
		return Result{}, fmt.Errorf("decode whisper.cpp json: %w", err)
	}
	if doc.Transcription == nil {
		return Result{}, errors.New("whisper.cpp json has no transcription")
	}
	res := Result{Language: doc.Result.Language, Segments: make([]Segment, 0, len(doc.Transcription))}
	for _, t := range doc.Transcription {
		res.Segments = append(res.Segments, Segment{
			Text:  t.Text,
			Start: float64(t.Offsets.From) / 1000,
			End:   float64(t.Offsets.To) / 1000,
		})
	}
	return res, nil
}
