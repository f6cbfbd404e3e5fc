package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/shadowing/internal/audio"
	"github.com/ent0n29/shadowing/internal/config"
	"github.com/ent0n29/shadowing/internal/stt"
	"github.com/ent0n29/shadowing/internal/tts"
)

type speechSetup struct {
	synth            tts.Synthesizer
	voice            tts.Voice
	resolvedProvider string
	detail           string
	cleanup          func() error
}

func resolveSpeech(ctx context.Context, cfg config.Config) (speechSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.TTSProvider))
	if mode == "" {
		mode = "auto"
	}
	voice := tts.Voice{
		Name:         strings.TrimSpace(cfg.TTSVoice),
		Rate:         cfg.TTSRate,
		LanguageCode: cfg.TTSLanguageCode,
	}

	tryElevenLabs := func(fatal bool) (speechSetup, bool, error) {
		if strings.TrimSpace(cfg.ElevenLabsAPIKey) == "" {
			if fatal {
				return speechSetup{}, false, fmt.Errorf("TTS_PROVIDER=elevenlabs but ELEVENLABS_API_KEY is not set")
			}
			return speechSetup{}, false, nil
		}
		s, err := tts.NewElevenLabsSynthesizer(tts.ElevenLabsConfig{
			APIKey:    cfg.ElevenLabsAPIKey,
			WSBaseURL: cfg.ElevenLabsWSBaseURL,
			VoiceID:   cfg.ElevenLabsTTSVoice,
			ModelID:   cfg.ElevenLabsTTSModel,
		})
		if err != nil {
			if fatal {
				return speechSetup{}, false, fmt.Errorf("elevenlabs tts init failed: %w", err)
			}
			return speechSetup{}, false, nil
		}
		return speechSetup{synth: s, voice: voice, resolvedProvider: "elevenlabs", detail: "elevenlabs"}, true, nil
	}

	tryGoogle := func(fatal bool) (speechSetup, bool, error) {
		if !fatal && !cfg.GoogleTTSEnabled {
			return speechSetup{}, false, nil
		}
		s, err := tts.NewGoogleSynthesizer(ctx, tts.GoogleConfig{
			CredentialsFile: cfg.GoogleTTSCredentialsFile,
			VoiceName:       cfg.GoogleTTSVoice,
		})
		if err != nil {
			if fatal {
				return speechSetup{}, false, fmt.Errorf("google tts init failed: %w", err)
			}
			return speechSetup{}, false, nil
		}
		return speechSetup{synth: s, voice: voice, resolvedProvider: "google", detail: "google cloud tts", cleanup: s.Close}, true, nil
	}

	tryEdge := func(fatal bool) (speechSetup, bool, error) {
		s, err := tts.NewEdgeSynthesizer(cfg.EdgeTTSCLI)
		if err != nil {
			if fatal {
				return speechSetup{}, false, fmt.Errorf("edge tts init failed: %w", err)
			}
			return speechSetup{}, false, nil
		}
		return speechSetup{synth: s, voice: voice, resolvedProvider: "edge", detail: "edge-tts"}, true, nil
	}

	mock := func(detail string) speechSetup {
		return speechSetup{synth: tts.NewMockSynthesizer(), voice: voice, resolvedProvider: "mock", detail: detail}
	}

	switch mode {
	case "elevenlabs":
		setup, _, err := tryElevenLabs(true)
		return setup, err
	case "google":
		setup, _, err := tryGoogle(true)
		return setup, err
	case "edge":
		setup, _, err := tryEdge(true)
		return setup, err
	case "mock":
		return mock("mock"), nil
	case "auto":
		var available []speechSetup
		for _, try := range []func(bool) (speechSetup, bool, error){tryElevenLabs, tryGoogle, tryEdge} {
			setup, ok, err := try(false)
			if err != nil {
				return speechSetup{}, err
			}
			if ok {
				available = append(available, setup)
			}
		}
		// Only the first two are used; release the rest.
		for _, extra := range available[min(len(available), 2):] {
			if extra.cleanup != nil {
				_ = extra.cleanup()
			}
		}
		switch len(available) {
		case 0:
			return mock("mock (no elevenlabs key, google tts disabled and edge-tts unavailable)"), nil
		case 1:
			return available[0], nil
		}
		primary, fallback := available[0], available[1]
		return speechSetup{
			synth:            tts.NewFailoverSynthesizer(primary.synth, fallback.synth),
			voice:            voice,
			resolvedProvider: primary.resolvedProvider,
			detail:           fmt.Sprintf("%s (automatic %s fallback)", primary.detail, fallback.resolvedProvider),
			cleanup:          joinCleanup(primary.cleanup, fallback.cleanup),
		}, nil
	default:
		return speechSetup{}, fmt.Errorf("invalid TTS_PROVIDER: %q (expected auto|edge|google|elevenlabs|mock)", cfg.TTSProvider)
	}
}

// resolveTranscription picks the speech-to-text engine. Loading is deferred
// to the first transcription so a missing whisper model does not block startup.
func resolveTranscription(cfg config.Config) (stt.Model, string, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.STTProvider)) {
	case "", "whisper":
		return stt.Lazy(func() (stt.Model, error) {
			m, err := stt.NewWhisperCPP(stt.WhisperConfig{
				CLI:       cfg.LocalWhisperCLI,
				ModelPath: cfg.LocalWhisperModelPath,
				Threads:   cfg.LocalWhisperThreads,
				FFmpeg:    audio.FFmpeg{Path: cfg.FFmpegCLI},
			})
			if err != nil {
				return nil, err
			}
			return m, nil
		}), "whisper", nil
	case "openai":
		m, err := stt.NewOpenAIModel(stt.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAISTTModel,
		})
		if err != nil {
			return nil, "", fmt.Errorf("openai stt init failed: %w", err)
		}
		return m, "openai", nil
	default:
		return nil, "", fmt.Errorf("invalid STT_PROVIDER: %q (expected whisper|openai)", cfg.STTProvider)
	}
}

func joinCleanup(fns ...func() error) func() error {
	return func() error {
		var errs []string
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if err := fn(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}
}
