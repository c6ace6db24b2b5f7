package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// KnownProviders lists the LLM provider names the default registry knows.
// [Validate] warns about names outside this list.
var KnownProviders = []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg is coherent. It returns a joined error listing
// every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	errs = append(errs, validateBackends(cfg)...)
	errs = append(errs, validatePersonas(cfg)...)

	n := cfg.Narration
	if n.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("narration.max_retries %d must not be negative", n.MaxRetries))
	}
	if n.HistoryThreshold < 0 {
		errs = append(errs, fmt.Errorf("narration.history_threshold %d must not be negative", n.HistoryThreshold))
	}
	if n.Temperature < 0 || n.Temperature > 2 {
		errs = append(errs, fmt.Errorf("narration.temperature %.2f is out of range [0, 2]", n.Temperature))
	}
	if n.InitialPenalty != nil && (*n.InitialPenalty < 0 || *n.InitialPenalty > 2) {
		errs = append(errs, fmt.Errorf("narration.initial_penalty %.2f is out of range [0, 2]", *n.InitialPenalty))
	}
	if n.RetryDelay < 0 || n.Debounce < 0 || n.BufferMaxAge < 0 {
		errs = append(errs, errors.New("narration durations must not be negative"))
	}
	if n.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("narration.buffer_size %d must not be negative", n.BufferSize))
	}

	if d := cfg.Sinks.Discord; d != nil {
		if d.Token == "" {
			errs = append(errs, errors.New("sinks.discord.token is required"))
		}
		if d.ChannelID == "" {
			errs = append(errs, errors.New("sinks.discord.channel_id is required"))
		}
	}
	if r := cfg.Observability.TraceSampleRatio; r != nil && (*r < 0 || *r > 1) {
		errs = append(errs, fmt.Errorf("observability.trace_sample_ratio %.2f is out of range [0, 1]", *r))
	}
	if cfg.Storage.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("storage.redis_db %d must not be negative", cfg.Storage.RedisDB))
	}

	return errors.Join(errs...)
}

func validateBackends(cfg *Config) []error {
	var errs []error
	seen := make(map[string]int, len(cfg.Backends))
	active := 0
	for i, b := range cfg.Backends {
		prefix := fmt.Sprintf("backends[%d]", i)
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[b.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of backends[%d]", prefix, b.Name, prev))
			}
			seen[b.Name] = i
		}
		if b.Provider == "" {
			errs = append(errs, fmt.Errorf("%s.provider is required", prefix))
		} else if !slices.Contains(KnownProviders, b.Provider) {
			slog.Warn("config: unknown provider name, may be a typo or third-party provider",
				"backend", b.Name,
				"provider", b.Provider,
				"known", KnownProviders,
			)
		}
		if b.SwitchCadence < 0 {
			errs = append(errs, fmt.Errorf("%s.switch_cadence %d must not be negative", prefix, b.SwitchCadence))
		}
		if b.UseSecondary && b.SecondaryModel == "" {
			errs = append(errs, fmt.Errorf("%s.use_secondary requires secondary_model", prefix))
		}
		if b.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout must not be negative", prefix))
		}
		if b.Active {
			active++
			if b.Model == "" {
				errs = append(errs, fmt.Errorf("%s.model is required for the active backend", prefix))
			}
		}
	}
	for i, b := range cfg.Backends {
		for _, fb := range b.Fallbacks {
			switch {
			case fb == b.Name:
				errs = append(errs, fmt.Errorf("backends[%d].fallbacks lists the backend itself", i))
			case cfg.Backend(fb) == nil:
				errs = append(errs, fmt.Errorf("backends[%d].fallbacks: unknown backend %q", i, fb))
			}
		}
	}
	if len(cfg.Backends) > 0 && active != 1 {
		errs = append(errs, fmt.Errorf("exactly one backend must be active, found %d", active))
	}
	if len(cfg.Backends) == 0 && len(cfg.Personas) > 0 {
		slog.Warn("config: no backends configured; personas will stay silent")
	}
	return errs
}

func validatePersonas(cfg *Config) []error {
	var errs []error
	seen := make(map[string]int, len(cfg.Personas))
	for i, p := range cfg.Personas {
		prefix := fmt.Sprintf("personas[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[p.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of personas[%d]", prefix, p.Name, prev))
			}
			seen[p.Name] = i
		}
		if p.PhraseMaxWords < 0 || p.HistoryMaxWords < 0 {
			errs = append(errs, fmt.Errorf("%s word limits must not be negative", prefix))
		}
		if p.SpeakInterval < 0 {
			errs = append(errs, fmt.Errorf("%s.speak_interval must not be negative", prefix))
		}
	}
	return errs
}
