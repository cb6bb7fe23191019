// Package config loads aiwords settings from a .env file, an ini file and
// the environment, in increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hergott/ai-words-assistant/internal/audio"
	"github.com/hergott/ai-words-assistant/internal/candidates"
)

const (
	DefaultDataDir          = "data"
	DefaultStore            = StoreFile
	DefaultAudioSource      = "command"
	DefaultSampleRate       = audio.DefaultSampleRate
	DefaultSegmentDuration  = audio.DefaultSegmentDuration
	DefaultLanguage         = "en"
	DefaultLLMBaseURL       = candidates.DefaultBaseURL
	DefaultLLMModel         = candidates.DefaultModel
	DefaultMaxIterations    = candidates.DefaultMaxIterations
	DefaultMaxExecutionTime = candidates.DefaultMaxExecutionTime
	DefaultListenAddr       = "127.0.0.1:8765"
	DefaultServiceName      = "aiwords"
	DefaultLogLevel         = "info"
	DefaultIniFile          = "aiwords.ini"
	DefaultDotEnvFile       = ".env"
)

// Transcript store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Config holds every runtime setting.
type Config struct {
	DataDir   string
	Store     string
	WordsFile string
	ImagesDir string
	LogLevel  string

	AudioSource     string
	CaptureCommand  string
	SampleRate      int
	SegmentDuration time.Duration

	OpenAIAPIKey  string
	OpenAIBaseURL string
	WhisperModel  string
	Language      string
	UseStubSTT    bool

	LLMAPIKey        string
	LLMBaseURL       string
	LLMModel         string
	TavilyAPIKey     string
	MaxIterations    int
	MaxExecutionTime time.Duration

	ListenAddr  string
	Advertise   bool
	ServiceName string

	// Seed makes slotting reproducible when set.
	Seed *uint64
}

// Validate applies defaults and rejects out-of-range values.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.Store == "" {
		c.Store = DefaultStore
	}
	c.Store = strings.ToLower(c.Store)
	if c.Store != StoreFile && c.Store != StoreSQLite {
		return fmt.Errorf("config: store must be %q or %q, got %q", StoreFile, StoreSQLite, c.Store)
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.AudioSource == "" {
		c.AudioSource = DefaultAudioSource
	}
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.SampleRate < 0 {
		return fmt.Errorf("config: sample_rate must be > 0, got %d", c.SampleRate)
	}
	if c.SegmentDuration == 0 {
		c.SegmentDuration = DefaultSegmentDuration
	}
	if c.SegmentDuration < time.Second {
		return fmt.Errorf("config: segment_duration must be >= 1s, got %s", c.SegmentDuration)
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.LLMBaseURL == "" {
		c.LLMBaseURL = DefaultLLMBaseURL
	}
	if c.LLMModel == "" {
		c.LLMModel = DefaultLLMModel
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("config: max_iterations must be >= 1, got %d", c.MaxIterations)
	}
	if c.MaxExecutionTime == 0 {
		c.MaxExecutionTime = DefaultMaxExecutionTime
	}
	if c.MaxExecutionTime < 0 {
		return fmt.Errorf("config: max_execution_time must be > 0, got %s", c.MaxExecutionTime)
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	return nil
}
