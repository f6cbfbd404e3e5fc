package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ent0n29/shadowing/internal/config"
	"github.com/ent0n29/shadowing/internal/evaluate"
)

// resolveScorers builds the remote part of the evaluation chain in
// LLM_PROVIDER, LLM_FALLBACK_PROVIDER order. The similarity scorer is
// appended by the evaluator itself. With LLM_CACHE_SIZE > 0 each remote
// scorer is wrapped in a result cache.
func resolveScorers(ctx context.Context, cfg config.Config, logger *slog.Logger) ([]evaluate.Scorer, func() error, error) {
	var (
		remote   []evaluate.Scorer
		scorers  []evaluate.Scorer
		cleanups []func() error
		seen     = map[string]bool{}
	)
	for _, name := range []string{cfg.LLMProvider, cfg.LLMFallbackProvider} {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || name == "basic" || seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case "ollama":
			remote = append(remote, evaluate.NewOllamaScorer(evaluate.OllamaConfig{
				BaseURL: cfg.OllamaBaseURL,
				Model:   cfg.OllamaModel,
				Timeout: cfg.LLMTimeout,
			}))
		case "claude":
			if strings.TrimSpace(cfg.ClaudeAPIKey) == "" {
				logger.Warn("claude scorer configured without CLAUDE_API_KEY; it will decline every request")
			}
			remote = append(remote, evaluate.NewClaudeScorer(evaluate.ClaudeConfig{
				APIKey:  cfg.ClaudeAPIKey,
				Model:   cfg.ClaudeModel,
				Timeout: cfg.LLMTimeout,
			}))
		case "gemini":
			s, err := evaluate.NewGeminiScorer(ctx, evaluate.GeminiConfig{
				ProjectID:       cfg.GeminiProjectID,
				Location:        cfg.GeminiLocation,
				Model:           cfg.GeminiModel,
				CredentialsFile: cfg.GeminiCredentialsFile,
				Timeout:         cfg.LLMTimeout,
			})
			if err != nil {
				// The rest of the chain still works without it.
				logger.Warn("gemini scorer unavailable", "err", err)
				continue
			}
			remote = append(remote, s)
			cleanups = append(cleanups, s.Close)
		default:
			_ = joinCleanup(cleanups...)()
			return nil, nil, fmt.Errorf("invalid LLM provider: %q (expected ollama|claude|gemini|basic)", name)
		}
	}

	for _, s := range remote {
		if cfg.LLMCacheSize <= 0 {
			scorers = append(scorers, s)
			continue
		}
		cached, err := evaluate.NewCachedScorer(s, int64(cfg.LLMCacheSize))
		if err != nil {
			_ = joinCleanup(cleanups...)()
			return nil, nil, err
		}
		scorers = append(scorers, cached)
		cleanups = append(cleanups, cached.Close)
	}
	return scorers, joinCleanup(cleanups...), nil
}
