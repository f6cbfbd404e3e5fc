package tts

import (
	"context"
	"strconv"
	"strings"
)

type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
)

// Ext returns the file extension for the format, including the dot.
func (f Format) Ext() string { return "." + string(f) }

// Voice selects how text is spoken. Backends ignore fields they cannot honor.
type Voice struct {
	Name         string
	Rate         string // relative rate, e.g. "+0%", "-10%"
	LanguageCode string
}

// Artifact is an audio file produced by a Synthesizer.
type Artifact struct {
	Path     string
	Format   Format
	Provider string
}

// Synthesizer turns text into an audio file.
//
// base is the output path without extension; the synthesizer appends the
// extension of the format it produces and reports the final path in the
// Artifact. On error no file is left at the output path.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, base string, voice Voice) (Artifact, error)
}

// rateMultiplier converts a relative rate such as "+25%" to a speed factor.
func rateMultiplier(rate string) float64 {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return 1
	}
	pct, err := strconv.ParseFloat(strings.TrimSuffix(rate, "%"), 64)
	if err != nil {
		return 1
	}
	m := 1 + pct/100
	if m <= 0 {
		return 1
	}
	return m
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
