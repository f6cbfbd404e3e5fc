package tts

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type ElevenLabsConfig struct {
	APIKey       string
	WSBaseURL    string
	VoiceID      string
	ModelID      string
	OutputFormat string
	Stability    float64
	Similarity   float64
}

// ElevenLabsSynthesizer speaks through the ElevenLabs stream-input
// websocket and collects the audio chunks into one MP3 file.
type ElevenLabsSynthesizer struct {
	cfg    ElevenLabsConfig
	dialer *websocket.Dialer
}

func NewElevenLabsSynthesizer(cfg ElevenLabsConfig) (*ElevenLabsSynthesizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("ELEVENLABS_API_KEY is required")
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		return nil, fmt.Errorf("ELEVENLABS_TTS_VOICE_ID is required")
	}
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	if cfg.Stability <= 0 {
		cfg.Stability = 0.42
	}
	if cfg.Similarity <= 0 {
		cfg.Similarity = 0.85
	}
	cfg.Stability = clamp(cfg.Stability, 0, 1)
	cfg.Similarity = clamp(cfg.Similarity, 0, 1)
	return &ElevenLabsSynthesizer{cfg: cfg, dialer: websocket.DefaultDialer}, nil
}

type elevenMessage struct {
	Audio       string `json:"audio"`
	IsFinal     bool   `json:"isFinal"`
	IsFinalAlt  bool   `json:"is_final"`
	Error       string `json:"error"`
	MessageType string `json:"message_type"`
}

func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text, base string, voice Voice) (Artifact, error) {
	u, err := url.Parse(strings.TrimRight(s.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(s.cfg.VoiceID) + "/stream-input")
	if err != nil {
		return Artifact{}, err
	}
	q := u.Query()
	q.Set("model_id", s.cfg.ModelID)
	q.Set("output_format", s.cfg.OutputFormat)
	q.Set("auto_mode", "true")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", s.cfg.APIKey)

	conn, _, err := s.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return Artifact{}, fmt.Errorf("dial tts websocket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	messages := []map[string]any{
		{
			"text": " ",
			"voice_settings": map[string]any{
				"stability":        s.cfg.Stability,
				"similarity_boost": s.cfg.Similarity,
				"speed":            clamp(rateMultiplier(voice.Rate), 0.7, 1.2),
			},
		},
		{"text": strings.TrimSpace(text) + " ", "try_trigger_generation": true},
		{"text": ""},
	}
	for _, m := range messages {
		if err := conn.WriteJSON(m); err != nil {
			return Artifact{}, fmt.Errorf("write tts websocket: %w", err)
		}
	}

	out := base + FormatMP3.Ext()
	f, err := os.Create(out)
	if err != nil {
		return Artifact{}, err
	}
	w := bufio.NewWriter(f)
	fail := func(err error) (Artifact, error) {
		_ = f.Close()
		_ = os.Remove(out)
		return Artifact{}, err
	}

	written := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return fail(ctx.Err())
			}
			// The server closes the socket after the final chunk.
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && written > 0 {
				break
			}
			return fail(fmt.Errorf("read tts websocket: %w", err))
		}
		var msg elevenMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return fail(fmt.Errorf("elevenlabs %s: %s", msg.MessageType, msg.Error))
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return fail(fmt.Errorf("decode audio chunk: %w", err))
			}
			n, err := w.Write(chunk)
			if err != nil {
				return fail(err)
			}
			written += n
		}
		if msg.IsFinal || msg.IsFinalAlt {
			break
		}
	}
	if written == 0 {
		return fail(fmt.Errorf("elevenlabs returned no audio"))
	}
	if err := w.Flush(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(out)
		return Artifact{}, err
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return Artifact{Path: out, Format: FormatMP3, Provider: "elevenlabs"}, nil
}
