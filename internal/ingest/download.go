package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Download is a fetched remote media item.
type Download struct {
	AudioPath     string
	Title         string
	Duration      float64
	ThumbnailPath string
}

// Downloader fetches the audio of a remote media URL.
type Downloader interface {
	Download(ctx context.Context, url string) (Download, error)
}

// YTDLP downloads the best audio stream with yt-dlp.
type YTDLP struct {
	cliPath string
	dir     string
}

func NewYTDLP(cli, dir string) (*YTDLP, error) {
	cli = strings.TrimSpace(cli)
	if cli == "" {
		cli = "yt-dlp"
	}
	cliPath, err := exec.LookPath(cli)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp CLI not found (%s)", cli)
	}
	return &YTDLP{cliPath: cliPath, dir: dir}, nil
}

type ytdlpInfo struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Duration          float64 `json:"duration"`
	Filename          string  `json:"_filename"`
	RequestedDownload []struct {
		Filepath string `json:"filepath"`
	} `json:"requested_downloads"`
}

func (y *YTDLP) Download(ctx context.Context, url string) (Download, error) {
	if err := os.MkdirAll(y.dir, 0o755); err != nil {
		return Download{}, err
	}
	cmd := exec.CommandContext(ctx, y.cliPath,
		"-f", "bestaudio[ext=m4a]/bestaudio/best",
		"--no-playlist",
		"--write-thumbnail",
		"--print-json",
		"-o", filepath.Join(y.dir, "%(id)s.%(ext)s"),
		url,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Download{}, ctxErr
		}
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 4<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(4<<10):])
		}
		if detail == "" {
			detail = err.Error()
		}
		return Download{}, fmt.Errorf("yt-dlp failed: %s", detail)
	}

	info, err := parseYTDLPOutput(stdout.Bytes())
	if err != nil {
		return Download{}, err
	}
	audioPath := info.Filename
	if len(info.RequestedDownload) > 0 && info.RequestedDownload[0].Filepath != "" {
		audioPath = info.RequestedDownload[0].Filepath
	}
	if audioPath == "" {
		return Download{}, fmt.Errorf("yt-dlp did not report an output file")
	}
	if _, err := os.Stat(audioPath); err != nil {
		return Download{}, fmt.Errorf("downloaded audio missing: %w", err)
	}
	return Download{
		AudioPath:     audioPath,
		Title:         info.Title,
		Duration:      info.Duration,
		ThumbnailPath: findThumbnail(y.dir, info.ID),
	}, nil
}

// parseYTDLPOutput decodes the last JSON line of yt-dlp's stdout.
func parseYTDLPOutput(out []byte) (ytdlpInfo, error) {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var info ytdlpInfo
		if err := json.Unmarshal(line, &info); err != nil {
			return ytdlpInfo{}, fmt.Errorf("decode yt-dlp output: %w", err)
		}
		return info, nil
	}
	return ytdlpInfo{}, fmt.Errorf("yt-dlp printed no metadata")
}

func findThumbnail(dir, id string) string {
	if id == "" {
		return ""
	}
	for _, ext := range []string{".jpg", ".webp", ".png", ".jpeg"} {
		p := filepath.Join(dir, id+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
