package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"resumechat/internal/backend"
	"resumechat/internal/logger"
)

const envPrefix = "RESUMECHAT"

// Config stores runtime configuration for dictation and the chat backend.
type Config struct {
	Deepgram  DeepgramConfig
	Audio     AudioConfig
	Rules     RulesConfig
	Dictation DictationConfig
	Backend   backend.Config
	Log       logger.Config
	Metrics   MetricsConfig
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type RulesConfig struct {
	Path string
}

type DictationConfig struct {
	ShortPause     time.Duration
	MediumPause    time.Duration
	LongPause      time.Duration
	ResetGrace     time.Duration
	OverlapWindow  int
	Continuous     bool
	ChunkSize      int
	StreamingGrace time.Duration
}

type MetricsConfig struct {
	Addr string
}

// Options points Load at explicit files. Empty fields use the search paths.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// legacyEnv maps config keys to the bare variable names older setups export.
var legacyEnv = map[string][]string{
	"deepgram.apiKey":         {"DEEPGRAM_API_KEY"},
	"deepgram.apiBaseURL":     {"DEEPGRAM_API_BASE"},
	"deepgram.model":          {"DEEPGRAM_MODEL"},
	"deepgram.language":       {"DEEPGRAM_LANGUAGE"},
	"deepgram.smartFormat":    {"DEEPGRAM_SMART_FORMAT"},
	"audio.inputDevice":       {"DEEPGRAM_PULSE_SOURCE"},
	"dictation.streamingGrace": {"DEEPGRAM_STREAMING_GRACE_MS"},
}

var defaultDictation = DictationConfig{
	ShortPause:     2 * time.Second,
	MediumPause:    4 * time.Second,
	LongPause:      6 * time.Second,
	ResetGrace:     100 * time.Millisecond,
	OverlapWindow:  5,
	Continuous:     true,
	ChunkSize:      4096,
	StreamingGrace: 2 * time.Second,
}

// Load resolves configuration from defaults, an optional config.yaml, a .env
// file and environment variables, in increasing priority.
func Load(opts Options) (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	if err := loadEnvFile(opts.EnvFile); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		bound := append([]string{envName(key)}, names...)
		if err := v.BindEnv(append([]string{key}, bound...)...); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".config", "resumechat"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := Config{
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(v.GetString("deepgram.apiKey")),
			APIBaseURL:  strings.TrimSpace(v.GetString("deepgram.apiBaseURL")),
			Model:       strings.TrimSpace(v.GetString("deepgram.model")),
			Language:    strings.TrimSpace(v.GetString("deepgram.language")),
			SmartFormat: boolOrDefault(v.GetString("deepgram.smartFormat"), true),
		},
		Audio: AudioConfig{
			RecorderCommand: strings.TrimSpace(v.GetString("audio.recorderCommand")),
			InputFormat:     strings.TrimSpace(v.GetString("audio.inputFormat")),
			InputDevice:     strings.TrimSpace(v.GetString("audio.inputDevice")),
			SampleRate:      v.GetInt("audio.sampleRate"),
			Channels:        v.GetInt("audio.channels"),
		},
		Rules: RulesConfig{
			Path: strings.TrimSpace(v.GetString("rules.path")),
		},
		Dictation: DictationConfig{
			ShortPause:     durationOrZero(v.GetString("dictation.shortPause")),
			MediumPause:    durationOrZero(v.GetString("dictation.mediumPause")),
			LongPause:      durationOrZero(v.GetString("dictation.longPause")),
			ResetGrace:     durationOrZero(v.GetString("dictation.resetGrace")),
			OverlapWindow:  v.GetInt("dictation.overlapWindow"),
			Continuous:     boolOrDefault(v.GetString("dictation.continuous"), true),
			ChunkSize:      v.GetInt("dictation.chunkSize"),
			StreamingGrace: durationOrZero(v.GetString("dictation.streamingGrace")),
		},
		Log: logger.Config{
			Level:  strings.TrimSpace(v.GetString("log.level")),
			Format: strings.TrimSpace(v.GetString("log.format")),
			Output: strings.TrimSpace(v.GetString("log.output")),
		},
		Metrics: MetricsConfig{
			Addr: strings.TrimSpace(v.GetString("metrics.addr")),
		},
	}

	// Unmarshal walks every leaf key, so env overrides reach nested sections.
	var sections struct {
		Backend backend.Config `mapstructure:"backend"`
	}
	if err := v.Unmarshal(&sections); err != nil {
		return Config{}, fmt.Errorf("failed to decode backend config: %w", err)
	}
	cfg.Backend = sections.Backend

	cfg.applyFallbacks(home)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deepgram.apiKey", "")
	v.SetDefault("deepgram.apiBaseURL", "https://api.deepgram.com/v1")
	v.SetDefault("deepgram.model", "nova-2")
	v.SetDefault("deepgram.language", "en-US")
	v.SetDefault("deepgram.smartFormat", "true")

	v.SetDefault("audio.recorderCommand", "ffmpeg")
	v.SetDefault("audio.inputFormat", "pulse")
	v.SetDefault("audio.inputDevice", "default")
	v.SetDefault("audio.sampleRate", 16000)
	v.SetDefault("audio.channels", 1)

	v.SetDefault("rules.path", "")

	v.SetDefault("dictation.shortPause", "2s")
	v.SetDefault("dictation.mediumPause", "4s")
	v.SetDefault("dictation.longPause", "6s")
	v.SetDefault("dictation.resetGrace", "100ms")
	v.SetDefault("dictation.overlapWindow", 5)
	v.SetDefault("dictation.continuous", "true")
	v.SetDefault("dictation.chunkSize", 4096)
	v.SetDefault("dictation.streamingGrace", "2s")

	v.SetDefault("backend.url", "")
	v.SetDefault("backend.authorization", "")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.rateLimit", 5.0)
	v.SetDefault("backend.rateBurst", 10)
	v.SetDefault("backend.circuitBreaker.enabled", true)
	v.SetDefault("backend.circuitBreaker.maxRequests", 1)
	v.SetDefault("backend.circuitBreaker.interval", time.Minute)
	v.SetDefault("backend.circuitBreaker.timeout", 30*time.Second)
	v.SetDefault("backend.circuitBreaker.minRequests", 5)
	v.SetDefault("backend.circuitBreaker.failureThreshold", 0.6)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")

	v.SetDefault("metrics.addr", "")
}

func (c *Config) applyFallbacks(home string) {
	if c.Deepgram.APIBaseURL == "" {
		c.Deepgram.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if c.Deepgram.Model == "" {
		c.Deepgram.Model = "nova-2"
	}
	if c.Deepgram.Language == "" {
		c.Deepgram.Language = "en-US"
	}
	if c.Audio.RecorderCommand == "" {
		c.Audio.RecorderCommand = "ffmpeg"
	}
	if c.Audio.InputFormat == "" {
		c.Audio.InputFormat = "pulse"
	}
	if c.Audio.InputDevice == "" {
		c.Audio.InputDevice = "default"
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = 1
	}
	if c.Rules.Path == "" {
		c.Rules.Path = filepath.Join(home, ".config", "resumechat", "corrections.rules")
	}

	d := &c.Dictation
	if d.ShortPause <= 0 {
		d.ShortPause = defaultDictation.ShortPause
	}
	if d.MediumPause <= d.ShortPause {
		d.MediumPause = max(defaultDictation.MediumPause, d.ShortPause*2)
	}
	if d.LongPause <= d.MediumPause {
		d.LongPause = max(defaultDictation.LongPause, d.MediumPause+d.ShortPause)
	}
	if d.ResetGrace <= 0 {
		d.ResetGrace = defaultDictation.ResetGrace
	}
	if d.OverlapWindow <= 0 {
		d.OverlapWindow = defaultDictation.OverlapWindow
	}
	if d.ChunkSize < 256 {
		d.ChunkSize = defaultDictation.ChunkSize
	}
	if d.StreamingGrace <= 0 {
		d.StreamingGrace = defaultDictation.StreamingGrace
	}

	c.Backend.ApplyDefaults()
	c.Log.ApplyDefaults()
}

func loadEnvFile(path string) error {
	if path == "" {
		path = ".env"
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %q: %w", path, err)
	}
	return nil
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// durationOrZero accepts Go durations and bare millisecond counts.
func durationOrZero(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return 0
}

func boolOrDefault(value string, fallback bool) bool {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
