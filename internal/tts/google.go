package tts

import (
	"context"
	"fmt"
	"os"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"
)

type GoogleConfig struct {
	// CredentialsFile is optional; application default credentials are used otherwise.
	CredentialsFile string
	// VoiceName is a Google voice such as "en-US-Neural2-F". Empty lets the
	// service pick one for the language.
	VoiceName string
}

// GoogleSynthesizer uses Google Cloud Text-to-Speech with MP3 output.
type GoogleSynthesizer struct {
	voiceName  string
	synthesize func(context.Context, *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error)
	close      func() error
}

func NewGoogleSynthesizer(ctx context.Context, cfg GoogleConfig) (*GoogleSynthesizer, error) {
	var opts []option.ClientOption
	if f := strings.TrimSpace(cfg.CredentialsFile); f != "" {
		opts = append(opts, option.WithCredentialsFile(f))
	}
	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create google tts client: %w", err)
	}
	return &GoogleSynthesizer{
		voiceName: strings.TrimSpace(cfg.VoiceName),
		synthesize: func(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
			return client.SynthesizeSpeech(ctx, req)
		},
		close: client.Close,
	}, nil
}

func (s *GoogleSynthesizer) Synthesize(ctx context.Context, text, base string, voice Voice) (Artifact, error) {
	lang := strings.TrimSpace(voice.LanguageCode)
	if lang == "" {
		lang = "en-US"
	}
	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: lang,
			Name:         s.voiceName,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			SpeakingRate:  clamp(rateMultiplier(voice.Rate), 0.25, 4.0),
		},
	}
	resp, err := s.synthesize(ctx, req)
	if err != nil {
		return Artifact{}, fmt.Errorf("google tts: %w", err)
	}
	if len(resp.GetAudioContent()) == 0 {
		return Artifact{}, fmt.Errorf("google tts returned no audio")
	}
	out := base + FormatMP3.Ext()
	if err := os.WriteFile(out, resp.GetAudioContent(), 0o644); err != nil {
		_ = os.Remove(out)
		return Artifact{}, err
	}
	return Artifact{Path: out, Format: FormatMP3, Provider: "google"}, nil
}

func (s *GoogleSynthesizer) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
