package engine

import (
	"fmt"

	"github.com/germanamz/tabletalk/pkg/modeladapter"
	"github.com/germanamz/tabletalk/pkg/providers/anthropic"
	"github.com/germanamz/tabletalk/pkg/providers/openai"
	"github.com/germanamz/tabletalk/pkg/providers/scripted"
)

// buildCompleter creates the Completer for cfg. If rate limiting is
// configured, the completer is wrapped with a RateLimitedCompleter.
func buildCompleter(cfg ProviderConfig) (modeladapter.Completer, error) {
	var c modeladapter.Completer

	switch cfg.Kind {
	case ProviderOpenAI:
		a := openai.New(cfg.BaseURL, cfg.APIKey, cfg.Model)
		applyTuning(&a.ModelAdapter, cfg)
		c = a
	case ProviderAnthropic:
		a := anthropic.New(cfg.BaseURL, cfg.APIKey, cfg.Model)
		applyTuning(&a.ModelAdapter, cfg)
		c = a
	case ProviderScripted:
		s := scripted.New(cfg.Script...)
		s.Loop = cfg.Loop
		c = s
	default:
		return nil, fmt.Errorf("engine: unknown provider kind %q", cfg.Kind)
	}

	if rl := cfg.RateLimit; rl.enabled() {
		c = modeladapter.NewRateLimitedCompleter(c, modeladapter.RateLimitOpts{
			RPM:        rl.RPM,
			InputTPM:   rl.InputTPM,
			OutputTPM:  rl.OutputTPM,
			MaxRetries: rl.MaxRetries,
			BaseDelay:  rl.BaseDelay,
		})
	}

	return c, nil
}

func applyTuning(a *modeladapter.ModelAdapter, cfg ProviderConfig) {
	if cfg.Temperature != 0 {
		a.Temperature = cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		a.MaxTokens = cfg.MaxTokens
	}
}
