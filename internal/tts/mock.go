package tts

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ent0n29/shadowing/internal/audio"
)

const mockSampleRate = 16000

// MockSynthesizer writes silent WAV files whose length follows the text
// length. It is used when no speech backend is configured.
type MockSynthesizer struct {
	PerCharacter time.Duration
}

func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{PerCharacter: 60 * time.Millisecond}
}

func (s *MockSynthesizer) Synthesize(ctx context.Context, text, base string, _ Voice) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Artifact{}, fmt.Errorf("mock tts: empty text")
	}
	per := s.PerCharacter
	if per <= 0 {
		per = 60 * time.Millisecond
	}
	d := time.Duration(utf8.RuneCountInString(text)) * per
	samples := int(d.Seconds() * mockSampleRate)

	out := base + FormatWAV.Ext()
	if err := audio.WriteWAVPCM16LEFile(out, make([]byte, samples*2), mockSampleRate); err != nil {
		return Artifact{}, err
	}
	return Artifact{Path: out, Format: FormatWAV, Provider: "mock"}, nil
}
