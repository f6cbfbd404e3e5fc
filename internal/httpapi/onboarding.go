package httpapi

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type onboardingCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type onboardingStatusResponse struct {
	Providers Providers         `json:"providers"`
	Checks    []onboardingCheck `json:"checks"`
}

func (s *Server) handleOnboardingStatus(w http.ResponseWriter, _ *http.Request) {
	checks := make([]onboardingCheck, 0, 10)
	checks = append(checks, s.speechChecks()...)
	checks = append(checks, s.transcriptionChecks()...)
	checks = append(checks, s.toolChecks()...)
	checks = append(checks, s.scorerCheck(), s.storeCheck())

	respondJSON(w, http.StatusOK, onboardingStatusResponse{
		Providers: s.providers,
		Checks:    checks,
	})
}

func (s *Server) speechChecks() []onboardingCheck {
	out := []onboardingCheck{{
		ID:     "tts_provider",
		Status: "ok",
		Label:  "Speech synthesis",
		Detail: s.providers.TTS,
	}}
	if strings.Contains(s.providers.TTS, "mock") {
		out[0].Status = "warn"
		out[0].Fix = "Install edge-tts or configure ELEVENLABS_API_KEY / GOOGLE_TTS_ENABLED; document audio is silent with the mock voice."
	}

	switch s.cfg.TTSProvider {
	case "auto", "edge":
		out = append(out, lookPathCheck("edge_tts_cli", "edge-tts CLI", s.cfg.EdgeTTSCLI, "warn", "pip install edge-tts"))
	case "elevenlabs":
		if s.cfg.ElevenLabsAPIKey == "" {
			out = append(out, onboardingCheck{
				ID:     "elevenlabs_key",
				Status: "error",
				Label:  "ElevenLabs API key",
				Detail: "ELEVENLABS_API_KEY is not set",
				Fix:    "Set ELEVENLABS_API_KEY or switch to TTS_PROVIDER=edge.",
			})
		} else {
			out = append(out, onboardingCheck{ID: "elevenlabs_key", Status: "ok", Label: "ElevenLabs API key", Detail: "present"})
		}
	case "google":
		out = append(out, fileCheck("google_tts_credentials", "Google Cloud credentials", s.cfg.GoogleTTSCredentialsFile, "warn",
			"Set GOOGLE_TTS_CREDENTIALS_FILE or rely on application default credentials."))
	}
	return out
}

func (s *Server) transcriptionChecks() []onboardingCheck {
	switch s.cfg.STTProvider {
	case "openai":
		if s.cfg.OpenAIAPIKey == "" {
			return []onboardingCheck{{
				ID:     "openai_key",
				Status: "error",
				Label:  "Speech-to-text (OpenAI)",
				Detail: "OPENAI_API_KEY is not set",
				Fix:    "Set OPENAI_API_KEY or switch to STT_PROVIDER=whisper.",
			}}
		}
		return []onboardingCheck{{ID: "openai_key", Status: "ok", Label: "Speech-to-text (OpenAI)", Detail: "present"}}
	default:
		return []onboardingCheck{
			lookPathCheck("whisper_cli", "Whisper (speech-to-text)", s.cfg.LocalWhisperCLI, "error",
				"Build whisper.cpp and set LOCAL_WHISPER_CLI."),
			fileCheck("whisper_model", "Whisper model", s.cfg.LocalWhisperModelPath, "error",
				"Download a ggml model and set LOCAL_WHISPER_MODEL_PATH."),
		}
	}
}

func (s *Server) toolChecks() []onboardingCheck {
	return []onboardingCheck{
		lookPathCheck("ffmpeg", "ffmpeg", s.cfg.FFmpegCLI, "warn",
			"Install ffmpeg; it is needed to decode recordings and join mixed audio."),
		lookPathCheck("yt_dlp", "yt-dlp (media download)", s.cfg.YTDLPCLI, "warn",
			"Install yt-dlp to ingest media URLs."),
	}
}

func (s *Server) scorerCheck() onboardingCheck {
	c := onboardingCheck{
		ID:     "scorers",
		Status: "ok",
		Label:  "Evaluation scorers",
		Detail: strings.Join(s.providers.Scorers, " -> "),
	}
	if len(s.providers.Scorers) <= 1 {
		c.Status = "warn"
		c.Fix = "Configure LLM_PROVIDER (ollama|claude|gemini) for richer feedback; only similarity scoring is active."
	}
	return c
}

func (s *Server) storeCheck() onboardingCheck {
	if s.providers.StoreMode == "postgres" {
		return onboardingCheck{ID: "store", Status: "ok", Label: "Persistence", Detail: "postgres"}
	}
	return onboardingCheck{
		ID:     "store",
		Status: "warn",
		Label:  "Persistence",
		Detail: "in-memory only",
		Fix:    "Set DATABASE_URL to persist materials across restarts.",
	}
}

func lookPathCheck(id, label, cli, failStatus, fix string) onboardingCheck {
	cli = strings.TrimSpace(cli)
	if cli == "" {
		return onboardingCheck{ID: id, Status: failStatus, Label: label, Detail: "not configured", Fix: fix}
	}
	if _, err := exec.LookPath(cli); err != nil {
		return onboardingCheck{ID: id, Status: failStatus, Label: label, Detail: fmt.Sprintf("%s not found", cli), Fix: fix}
	}
	return onboardingCheck{ID: id, Status: "ok", Label: label, Detail: fmt.Sprintf("%s found", cli)}
}

func fileCheck(id, label, path, failStatus, fix string) onboardingCheck {
	path = strings.TrimSpace(path)
	if path == "" {
		return onboardingCheck{ID: id, Status: failStatus, Label: label, Detail: "not configured", Fix: fix}
	}
	if !filepath.IsAbs(path) {
		if wd, err := os.Getwd(); err == nil {
			path = filepath.Join(wd, path)
		}
	}
	if _, err := os.Stat(path); err != nil {
		return onboardingCheck{ID: id, Status: failStatus, Label: label, Detail: "file missing", Fix: fix}
	}
	return onboardingCheck{ID: id, Status: "ok", Label: label, Detail: "present"}
}
