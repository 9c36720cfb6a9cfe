package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates all service configuration.
type Config struct {
	Server ServerConfig
	AI     AIConfig
	STT    STTConfig
	Twitch TwitchConfig
	Audio  AudioConfig
	Store  StoreConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	audio, err := loadAudioConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		AI:     ai,
		STT:    loadSTTConfig(),
		Twitch: loadTwitchConfig(),
		Audio:  audio,
		Store:  loadStoreConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "3000"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":3000" or "127.0.0.1:3000" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the translation model.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	MaxTokens   *int
}

// Enabled reports whether the required model credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds a model instance from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("translation model credentials missing: set ARK_API_KEY (or AK/SK) and ARK_MODEL")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

// STTConfig describes the speech-to-text service.
type STTConfig struct {
	APIKey string
	Model  string
}

// Enabled reports whether transcription can run.
func (c STTConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadSTTConfig() STTConfig {
	return STTConfig{
		APIKey: strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		Model:  getEnvOrDefault("STT_MODEL", "whisper-1"),
	}
}

// TwitchConfig describes the chat identity. Both values empty means
// anonymous read-only chat.
type TwitchConfig struct {
	BotName string
	Token   string
}

func loadTwitchConfig() TwitchConfig {
	return TwitchConfig{
		BotName: strings.TrimSpace(os.Getenv("BOT_NAME")),
		Token:   strings.TrimSpace(os.Getenv("TWITCH_TOKEN")),
	}
}

// AudioConfig tunes utterance segmentation.
type AudioConfig struct {
	RMSThreshold    float64
	MinSpeech       time.Duration
	TrailingSilence time.Duration
	MaxUtterance    time.Duration
	MinUtterance    time.Duration
}

func loadAudioConfig() (AudioConfig, error) {
	threshold, err := parseOptionalFloatEnv("AUDIO_RMS_THRESHOLD")
	if err != nil {
		return AudioConfig{}, err
	}

	cfg := AudioConfig{
		RMSThreshold:    500,
		MinSpeech:       200 * time.Millisecond,
		TrailingSilence: 800 * time.Millisecond,
		MaxUtterance:    30 * time.Second,
		MinUtterance:    400 * time.Millisecond,
	}
	if threshold != nil {
		cfg.RMSThreshold = *threshold
	}

	if cfg.MinSpeech, err = parseDurationEnv("AUDIO_MIN_SPEECH", cfg.MinSpeech); err != nil {
		return AudioConfig{}, err
	}
	if cfg.TrailingSilence, err = parseDurationEnv("AUDIO_TRAILING_SILENCE", cfg.TrailingSilence); err != nil {
		return AudioConfig{}, err
	}
	if cfg.MaxUtterance, err = parseDurationEnv("AUDIO_MAX_UTTERANCE", cfg.MaxUtterance); err != nil {
		return AudioConfig{}, err
	}
	if cfg.MinUtterance, err = parseDurationEnv("AUDIO_MIN_UTTERANCE", cfg.MinUtterance); err != nil {
		return AudioConfig{}, err
	}

	return cfg, nil
}

// StoreConfig describes the SQLite database location.
type StoreConfig struct {
	Path string
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{Path: getEnvOrDefault("DB_PATH", "data.db")}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
