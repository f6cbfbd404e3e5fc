package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the shadowing service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	DataDir          string
	MaxUploadBytes   int64

	DatabaseURL string

	SegmentMaxCount int

	TTSProvider     string
	TTSVoice        string
	TTSRate         string
	TTSLanguageCode string
	EdgeTTSCLI      string

	ElevenLabsAPIKey    string
	ElevenLabsWSBaseURL string
	ElevenLabsTTSVoice  string
	ElevenLabsTTSModel  string

	GoogleTTSEnabled         bool
	GoogleTTSVoice           string
	GoogleTTSCredentialsFile string

	STTProvider           string
	STTWorkers            int
	STTLanguage           string
	LocalWhisperCLI       string
	LocalWhisperModelPath string
	LocalWhisperThreads   int
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAISTTModel        string

	LLMProvider           string
	LLMFallbackProvider   string
	LLMTimeout            time.Duration
	LLMCacheSize          int
	OllamaBaseURL         string
	OllamaModel           string
	ClaudeAPIKey          string
	ClaudeModel           string
	GeminiProjectID       string
	GeminiLocation        string
	GeminiModel           string
	GeminiCredentialsFile string

	YTDLPCLI  string
	FFmpegCLI string
}

// MaterialsDir holds synthesized, downloaded and uploaded material audio.
func (c Config) MaterialsDir() string { return filepath.Join(c.DataDir, "materials") }

// RecordingsDir holds learner practice recordings.
func (c Config) RecordingsDir() string { return filepath.Join(c.DataDir, "recordings") }

// LoadDotEnv loads a .env file into the process environment when present.
// Variables already set are not overridden.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "shadowing"),
		DataDir:          envOrDefault("APP_DATA_DIR", "data"),
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		TTSProvider:      strings.ToLower(envOrDefault("TTS_PROVIDER", "auto")),
		TTSVoice:         stringsTrimSpace("TTS_VOICE"),
		TTSRate:          envOrDefault("TTS_RATE", "+0%"),
		TTSLanguageCode:  envOrDefault("TTS_LANGUAGE_CODE", "en-US"),
		EdgeTTSCLI:       envOrDefault("EDGE_TTS_CLI", "edge-tts"),

		ElevenLabsAPIKey:    stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsWSBaseURL: envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		ElevenLabsTTSVoice:  envOrDefault("ELEVENLABS_TTS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		ElevenLabsTTSModel:  envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_multilingual_v2"),

		GoogleTTSVoice:           stringsTrimSpace("GOOGLE_TTS_VOICE"),
		GoogleTTSCredentialsFile: stringsTrimSpace("GOOGLE_TTS_CREDENTIALS_FILE"),

		STTProvider:           strings.ToLower(envOrDefault("STT_PROVIDER", "whisper")),
		STTLanguage:           stringsTrimSpace("STT_LANGUAGE"),
		LocalWhisperCLI:       envOrDefault("LOCAL_WHISPER_CLI", "whisper-cli"),
		LocalWhisperModelPath: envOrDefault("LOCAL_WHISPER_MODEL_PATH", ".models/whisper/ggml-base.bin"),
		OpenAIAPIKey:          stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:         envOrDefault("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAISTTModel:        envOrDefault("OPENAI_STT_MODEL", "whisper-1"),

		LLMProvider:           strings.ToLower(envOrDefault("LLM_PROVIDER", "ollama")),
		LLMFallbackProvider:   strings.ToLower(stringsTrimSpace("LLM_FALLBACK_PROVIDER")),
		OllamaBaseURL:         envOrDefault("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:           envOrDefault("OLLAMA_MODEL", "llama3.2"),
		ClaudeAPIKey:          stringsTrimSpace("CLAUDE_API_KEY"),
		ClaudeModel:           envOrDefault("CLAUDE_MODEL", "claude-3-haiku-20240307"),
		GeminiProjectID:       stringsTrimSpace("GEMINI_PROJECT_ID"),
		GeminiLocation:        envOrDefault("GEMINI_LOCATION", "us-central1"),
		GeminiModel:           envOrDefault("GEMINI_MODEL", "gemini-2.0-flash-001"),
		GeminiCredentialsFile: stringsTrimSpace("GEMINI_CREDENTIALS_FILE"),

		YTDLPCLI:  envOrDefault("YTDLP_CLI", "yt-dlp"),
		FFmpegCLI: envOrDefault("FFMPEG_CLI", "ffmpeg"),

		ShutdownTimeout: 15 * time.Second,
		LLMTimeout:      60 * time.Second,
		LLMCacheSize:    1024,
		SegmentMaxCount: 10,
		STTWorkers:      2,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTimeout, err = durationFromEnv("LLM_TIMEOUT", cfg.LLMTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMCacheSize, err = intFromEnv("LLM_CACHE_SIZE", cfg.LLMCacheSize)
	if err != nil {
		return Config{}, err
	}
	cfg.SegmentMaxCount, err = intFromEnv("SEGMENT_MAX_COUNT", cfg.SegmentMaxCount)
	if err != nil {
		return Config{}, err
	}
	cfg.STTWorkers, err = intFromEnv("STT_WORKERS", cfg.STTWorkers)
	if err != nil {
		return Config{}, err
	}
	cfg.LocalWhisperThreads, err = intFromEnv("LOCAL_WHISPER_THREADS", cfg.LocalWhisperThreads)
	if err != nil {
		return Config{}, err
	}
	cfg.GoogleTTSEnabled, err = boolFromEnv("GOOGLE_TTS_ENABLED", cfg.GoogleTTSEnabled)
	if err != nil {
		return Config{}, err
	}
	maxUploadMB, err := intFromEnv("APP_MAX_UPLOAD_MB", 200)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxUploadBytes = int64(maxUploadMB) << 20

	if cfg.SegmentMaxCount <= 0 {
		return Config{}, fmt.Errorf("SEGMENT_MAX_COUNT must be positive")
	}
	if cfg.STTWorkers <= 0 {
		return Config{}, fmt.Errorf("STT_WORKERS must be positive")
	}
	if cfg.LocalWhisperThreads < 0 {
		return Config{}, fmt.Errorf("LOCAL_WHISPER_THREADS must be >= 0")
	}
	if cfg.LLMCacheSize < 0 {
		return Config{}, fmt.Errorf("LLM_CACHE_SIZE must be >= 0")
	}
	if cfg.LLMTimeout <= 0 {
		return Config{}, fmt.Errorf("LLM_TIMEOUT must be positive")
	}
	if maxUploadMB <= 0 {
		return Config{}, fmt.Errorf("APP_MAX_UPLOAD_MB must be positive")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return Config{}, fmt.Errorf("APP_DATA_DIR must not be empty")
	}
	switch cfg.TTSProvider {
	case "auto", "edge", "google", "elevenlabs", "mock":
	default:
		return Config{}, fmt.Errorf("TTS_PROVIDER must be one of auto|edge|google|elevenlabs|mock, got %q", cfg.TTSProvider)
	}
	switch cfg.STTProvider {
	case "whisper", "openai":
	default:
		return Config{}, fmt.Errorf("STT_PROVIDER must be one of whisper|openai, got %q", cfg.STTProvider)
	}
	for key, v := range map[string]string{
		"LLM_PROVIDER":          cfg.LLMProvider,
		"LLM_FALLBACK_PROVIDER": cfg.LLMFallbackProvider,
	} {
		switch v {
		case "", "ollama", "claude", "gemini", "basic":
		default:
			return Config{}, fmt.Errorf("%s must be one of ollama|claude|gemini|basic, got %q", key, v)
		}
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
