package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Loader reads configuration. Tests can override Lookup to inject
// deterministic maps. Missing DotEnv and File paths are ignored.
type Loader struct {
	Lookup func(string) (string, bool)
	DotEnv string
	File   string
}

// Load merges the ini file, the .env file and the environment, then
// validates the result. Real environment variables win over .env entries.
func (l Loader) Load() (Config, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if l.DotEnv != "" {
		dot, err := godotenv.Read(l.DotEnv)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", l.DotEnv, err)
		default:
			lookup = layered(lookup, dot)
		}
	}

	var cfg Config
	if l.File != "" {
		if err := applyIni(l.File, &cfg); err != nil {
			return Config{}, err
		}
	}

	overrideString(lookup, "AIWORDS_DATA_DIR", &cfg.DataDir)
	overrideString(lookup, "AIWORDS_STORE", &cfg.Store)
	overrideString(lookup, "AIWORDS_WORDS_FILE", &cfg.WordsFile)
	overrideString(lookup, "AIWORDS_IMAGES_DIR", &cfg.ImagesDir)
	overrideString(lookup, "AIWORDS_LOG_LEVEL", &cfg.LogLevel)
	overrideString(lookup, "AIWORDS_AUDIO_SOURCE", &cfg.AudioSource)
	overrideString(lookup, "AIWORDS_CAPTURE_COMMAND", &cfg.CaptureCommand)
	overrideString(lookup, "OPENAI_API_KEY", &cfg.OpenAIAPIKey)
	overrideString(lookup, "AIWORDS_OPENAI_BASE_URL", &cfg.OpenAIBaseURL)
	overrideString(lookup, "AIWORDS_WHISPER_MODEL", &cfg.WhisperModel)
	overrideString(lookup, "AIWORDS_LANGUAGE", &cfg.Language)
	overrideString(lookup, "NVIDIA_API_KEY", &cfg.LLMAPIKey)
	overrideString(lookup, "AIWORDS_LLM_BASE_URL", &cfg.LLMBaseURL)
	overrideString(lookup, "AIWORDS_LLM_MODEL", &cfg.LLMModel)
	overrideString(lookup, "TAVILY_API_KEY", &cfg.TavilyAPIKey)
	overrideString(lookup, "AIWORDS_LISTEN_ADDR", &cfg.ListenAddr)
	overrideString(lookup, "AIWORDS_SERVICE_NAME", &cfg.ServiceName)

	if err := overrideInt(lookup, "AIWORDS_SAMPLE_RATE", &cfg.SampleRate); err != nil {
		return Config{}, err
	}
	if err := overrideInt(lookup, "AIWORDS_MAX_ITERATIONS", &cfg.MaxIterations); err != nil {
		return Config{}, err
	}
	if err := overrideDuration(lookup, "AIWORDS_SEGMENT_DURATION", &cfg.SegmentDuration); err != nil {
		return Config{}, err
	}
	if err := overrideDuration(lookup, "AIWORDS_MAX_EXECUTION_TIME", &cfg.MaxExecutionTime); err != nil {
		return Config{}, err
	}
	if err := overrideBool(lookup, "AIWORDS_USE_STUB_STT", &cfg.UseStubSTT); err != nil {
		return Config{}, err
	}
	if err := overrideBool(lookup, "AIWORDS_ADVERTISE", &cfg.Advertise); err != nil {
		return Config{}, err
	}
	if raw, ok := lookup("AIWORDS_SEED"); ok && strings.TrimSpace(raw) != "" {
		seed, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: AIWORDS_SEED: %w", err)
		}
		cfg.Seed = &seed
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// layered consults primary first and falls back to values.
func layered(primary func(string) (string, bool), values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := primary(key); ok {
			return v, true
		}
		v, ok := values[key]
		return v, ok
	}
}

// applyIni reads root-section keys from an ini file.
func applyIni(path string, cfg *Config) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	sec := file.Section("")

	strs := map[string]*string{
		"data_dir":        &cfg.DataDir,
		"store":           &cfg.Store,
		"words_file":      &cfg.WordsFile,
		"images_dir":      &cfg.ImagesDir,
		"log_level":       &cfg.LogLevel,
		"audio_source":    &cfg.AudioSource,
		"capture_command": &cfg.CaptureCommand,
		"openai_base_url": &cfg.OpenAIBaseURL,
		"whisper_model":   &cfg.WhisperModel,
		"language":        &cfg.Language,
		"llm_base_url":    &cfg.LLMBaseURL,
		"llm_model":       &cfg.LLMModel,
		"listen_addr":     &cfg.ListenAddr,
		"service_name":    &cfg.ServiceName,
	}
	for key, target := range strs {
		if v := strings.TrimSpace(sec.Key(key).String()); v != "" {
			*target = v
		}
	}

	if sec.HasKey("sample_rate") {
		v, err := sec.Key("sample_rate").Int()
		if err != nil {
			return fmt.Errorf("config: sample_rate: %w", err)
		}
		cfg.SampleRate = v
	}
	if sec.HasKey("max_iterations") {
		v, err := sec.Key("max_iterations").Int()
		if err != nil {
			return fmt.Errorf("config: max_iterations: %w", err)
		}
		cfg.MaxIterations = v
	}
	if sec.HasKey("segment_duration") {
		v, err := sec.Key("segment_duration").Duration()
		if err != nil {
			return fmt.Errorf("config: segment_duration: %w", err)
		}
		cfg.SegmentDuration = v
	}
	if sec.HasKey("max_execution_time") {
		v, err := sec.Key("max_execution_time").Duration()
		if err != nil {
			return fmt.Errorf("config: max_execution_time: %w", err)
		}
		cfg.MaxExecutionTime = v
	}
	if v, err := sec.Key("use_stub_stt").Bool(); err == nil {
		cfg.UseStubSTT = v
	}
	if v, err := sec.Key("advertise").Bool(); err == nil {
		cfg.Advertise = v
	}
	if sec.HasKey("seed") {
		v, err := sec.Key("seed").Uint64()
		if err != nil {
			return fmt.Errorf("config: seed: %w", err)
		}
		cfg.Seed = &v
	}
	return nil
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if lookup == nil || target == nil {
		return
	}
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = n
	return nil
}

func overrideDuration(lookup func(string) (string, bool), key string, target *time.Duration) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = d
	return nil
}

func overrideBool(lookup func(string) (string, bool), key string, target *bool) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = b
	return nil
}
