package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

const (
	DefaultEdgeVoice = "en-US-JennyNeural"
	DefaultEdgeRate  = "+0%"
)

// EdgeSynthesizer drives the edge-tts command line client.
type EdgeSynthesizer struct {
	cliPath string
}

func NewEdgeSynthesizer(cli string) (*EdgeSynthesizer, error) {
	cli = strings.TrimSpace(cli)
	if cli == "" {
		cli = "edge-tts"
	}
	cliPath, err := exec.LookPath(cli)
	if err != nil {
		return nil, fmt.Errorf("edge-tts CLI not found (%s)", cli)
	}
	return &EdgeSynthesizer{cliPath: cliPath}, nil
}

func (s *EdgeSynthesizer) Synthesize(ctx context.Context, text, base string, voice Voice) (Artifact, error) {
	if strings.TrimSpace(text) == "" {
		return Artifact{}, fmt.Errorf("edge-tts: empty text")
	}
	name := strings.TrimSpace(voice.Name)
	if name == "" {
		name = DefaultEdgeVoice
	}
	rate := strings.TrimSpace(voice.Rate)
	if rate == "" {
		rate = DefaultEdgeRate
	}
	out := base + FormatMP3.Ext()

	// --rate=VALUE keeps negative rates from being parsed as flags.
	cmd := exec.CommandContext(ctx, s.cliPath,
		"--voice", name,
		"--rate="+rate,
		"--text", text,
		"--write-media", out,
	)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(out)
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 4<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(4<<10):])
		}
		if detail == "" {
			detail = err.Error()
		}
		return Artifact{}, fmt.Errorf("edge-tts failed: %s", detail)
	}
	if fi, err := os.Stat(out); err != nil || fi.Size() == 0 {
		_ = os.Remove(out)
		return Artifact{}, fmt.Errorf("edge-tts produced no audio")
	}
	return Artifact{Path: out, Format: FormatMP3, Provider: "edge"}, nil
}
