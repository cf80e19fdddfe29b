package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Audio         AudioConfig         `yaml:"audio"`
	Game          SourceConfig        `yaml:"game"`
	Mic           SourceConfig        `yaml:"mic"`
	Preview       PreviewConfig       `yaml:"preview"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Translation   TranslationConfig   `yaml:"translation"`
	Glossary      GlossaryConfig      `yaml:"glossary"`
	Overlay       OverlayConfig       `yaml:"overlay"`
	History       HistoryConfig       `yaml:"history"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// AudioConfig contains parameters shared by both capture sources
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	BlockSize  int `yaml:"block_size"`  // samples per chunk
	QueueSize  int `yaml:"queue_size"`  // chunks buffered per source
}

// SourceConfig contains per-source capture and segmentation parameters
type SourceConfig struct {
	ListenAddress        string  `yaml:"listen_address"`
	Language             string  `yaml:"language"`
	SilenceRMS           float64 `yaml:"silence_rms"`
	NoiseGate            float64 `yaml:"noise_gate"`
	BandPassEnabled      bool    `yaml:"band_pass_enabled"`
	BandPassLow          float64 `yaml:"band_pass_low"`  // Hz
	BandPassHigh         float64 `yaml:"band_pass_high"` // Hz
	MinUtterance         float64 `yaml:"min_utterance"`  // seconds
	MaxUtterance         float64 `yaml:"max_utterance"`  // seconds
	SilenceTrigger       int     `yaml:"silence_trigger"` // consecutive silent chunks
	StrictLanguageFilter bool    `yaml:"strict_language_filter"`
	LanguageConfidence   float64 `yaml:"language_confidence"`
}

// PreviewConfig contains live preview transcription parameters
type PreviewConfig struct {
	Enabled     bool    `yaml:"enabled"`
	MinDuration float64 `yaml:"min_duration"` // seconds
	Interval    float64 `yaml:"interval"`     // seconds
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// TranslationConfig contains translation engine configuration
type TranslationConfig struct {
	Engine   string `yaml:"engine"` // "http" or "openai"
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  int    `yaml:"timeout"` // seconds
}

// GlossaryConfig contains post-translation rewriting configuration
type GlossaryConfig struct {
	Enabled          bool   `yaml:"enabled"`
	RulesFile        string `yaml:"rules_file"`
	TransliterateMic bool   `yaml:"transliterate_mic"`
}

// OverlayConfig contains overlay HTTP server configuration
type OverlayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// HistoryConfig contains utterance history configuration
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.setDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults fills in tunables left at their zero value
func (c *Config) setDefaults() {
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.BlockSize == 0 {
		c.Audio.BlockSize = 1024
	}
	if c.Audio.QueueSize == 0 {
		c.Audio.QueueSize = 300
	}

	for _, src := range []*SourceConfig{&c.Game, &c.Mic} {
		if src.SilenceRMS == 0 {
			src.SilenceRMS = 0.005
		}
		if src.NoiseGate == 0 {
			src.NoiseGate = src.SilenceRMS
		}
		if src.BandPassLow == 0 {
			src.BandPassLow = 300
		}
		if src.BandPassHigh == 0 {
			src.BandPassHigh = 3000
		}
		if src.MinUtterance == 0 {
			src.MinUtterance = 0.8
		}
		if src.MaxUtterance == 0 {
			src.MaxUtterance = 20
		}
		if src.SilenceTrigger == 0 {
			src.SilenceTrigger = 10
		}
		if src.LanguageConfidence == 0 {
			src.LanguageConfidence = 0.8
		}
	}

	if c.Preview.MinDuration == 0 {
		c.Preview.MinDuration = 1.0
	}
	if c.Preview.Interval == 0 {
		c.Preview.Interval = 1.2
	}

	if c.Transcription.Timeout == 0 {
		c.Transcription.Timeout = 30
	}
	if c.Transcription.MaxRetries == 0 {
		c.Transcription.MaxRetries = 3
	}
	if c.Transcription.MaxConcurrent == 0 {
		c.Transcription.MaxConcurrent = 4
	}

	if c.Translation.Engine == "" {
		c.Translation.Engine = "openai"
	}
	if c.Translation.Timeout == 0 {
		c.Translation.Timeout = 15
	}

	if c.History.Path == "" {
		c.History.Path = "history.db"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Game.Validate(); err != nil {
		return fmt.Errorf("game config: %w", err)
	}

	if err := c.Mic.Validate(); err != nil {
		return fmt.Errorf("mic config: %w", err)
	}

	if c.Game.Language == c.Mic.Language {
		return fmt.Errorf("game and mic languages must differ, both are %q", c.Game.Language)
	}

	if err := c.Preview.Validate(); err != nil {
		return fmt.Errorf("preview config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Translation.Validate(); err != nil {
		return fmt.Errorf("translation config: %w", err)
	}

	if err := c.Overlay.Validate(); err != nil {
		return fmt.Errorf("overlay config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates shared audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 8000 && a.SampleRate != 16000 && a.SampleRate != 48000 {
		return fmt.Errorf("sample_rate must be 8000, 16000 or 48000 Hz, got %d", a.SampleRate)
	}

	if a.BlockSize < 64 || a.BlockSize > 65536 {
		return fmt.Errorf("block_size must be between 64 and 65536 samples, got %d", a.BlockSize)
	}

	if a.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", a.QueueSize)
	}

	return nil
}

// Validate validates a capture source configuration
func (s *SourceConfig) Validate() error {
	if s.ListenAddress == "" {
		return fmt.Errorf("listen_address cannot be empty")
	}

	if s.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}

	if s.SilenceRMS <= 0 || s.SilenceRMS >= 1 {
		return fmt.Errorf("silence_rms must be between 0 and 1 (exclusive), got %f", s.SilenceRMS)
	}

	if s.NoiseGate < s.SilenceRMS {
		return fmt.Errorf("noise_gate (%f) must not be below silence_rms (%f)", s.NoiseGate, s.SilenceRMS)
	}

	if s.BandPassEnabled && s.BandPassHigh <= s.BandPassLow {
		return fmt.Errorf("band_pass_high (%f) must be greater than band_pass_low (%f)",
			s.BandPassHigh, s.BandPassLow)
	}

	if s.MinUtterance <= 0 {
		return fmt.Errorf("min_utterance must be positive, got %f", s.MinUtterance)
	}

	if s.MaxUtterance <= s.MinUtterance {
		return fmt.Errorf("max_utterance (%f) must be greater than min_utterance (%f)",
			s.MaxUtterance, s.MinUtterance)
	}

	if s.SilenceTrigger < 1 {
		return fmt.Errorf("silence_trigger must be at least 1, got %d", s.SilenceTrigger)
	}

	if s.LanguageConfidence <= 0 || s.LanguageConfidence > 1 {
		return fmt.Errorf("language_confidence must be between 0 and 1, got %f", s.LanguageConfidence)
	}

	return nil
}

// Validate validates preview configuration
func (p *PreviewConfig) Validate() error {
	if !p.Enabled {
		return nil
	}

	if p.MinDuration <= 0 {
		return fmt.Errorf("min_duration must be positive, got %f", p.MinDuration)
	}

	if p.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %f", p.Interval)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates translation configuration
func (t *TranslationConfig) Validate() error {
	switch t.Engine {
	case "http":
		if t.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty for the http engine")
		}
	case "openai":
		if t.APIKey == "" {
			return fmt.Errorf("api_key cannot be empty for the openai engine")
		}
	default:
		return fmt.Errorf("engine must be 'http' or 'openai', got '%s'", t.Engine)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	return nil
}

// Validate validates overlay configuration
func (o *OverlayConfig) Validate() error {
	if o.Enabled {
		if o.Port < 1 || o.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", o.Port)
		}

		if o.Address == "" {
			return fmt.Errorf("address cannot be empty when the overlay is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// EffectiveNoiseGate returns the speech energy gate for finalized
// utterances. Band-pass filtering removes energy outside the voice band,
// so the gate is relaxed when the filter is on.
func (s *SourceConfig) EffectiveNoiseGate() float64 {
	if s.BandPassEnabled {
		return s.NoiseGate * 0.7
	}
	return s.NoiseGate
}

// GetMinUtteranceDuration returns min_utterance as a time.Duration
func (s *SourceConfig) GetMinUtteranceDuration() time.Duration {
	return time.Duration(s.MinUtterance * float64(time.Second))
}

// GetMaxUtteranceDuration returns max_utterance as a time.Duration
func (s *SourceConfig) GetMaxUtteranceDuration() time.Duration {
	return time.Duration(s.MaxUtterance * float64(time.Second))
}

// GetMinDuration returns the preview min_duration as a time.Duration
func (p *PreviewConfig) GetMinDuration() time.Duration {
	return time.Duration(p.MinDuration * float64(time.Second))
}

// GetInterval returns the preview interval as a time.Duration
func (p *PreviewConfig) GetInterval() time.Duration {
	return time.Duration(p.Interval * float64(time.Second))
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the translation timeout as a time.Duration
func (t *TranslationConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}
