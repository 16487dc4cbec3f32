package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Twilio      TwilioConfig      `mapstructure:"twilio"`
	Classifier  ClassifierConfig  `mapstructure:"classifier"`
	Dialogue    DialogueConfig    `mapstructure:"dialogue"`
	Transcripts TranscriptsConfig `mapstructure:"transcripts"`
	Database    DatabaseConfig    `mapstructure:"database"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port              int    `mapstructure:"port"`
	PublicURL         string `mapstructure:"public_url"`
	ValidateSignature bool   `mapstructure:"validate_signature"`
	RecordingsDir     string `mapstructure:"recordings_dir"`
	TranscriptionsDir string `mapstructure:"transcriptions_dir"`
	Voice             string `mapstructure:"voice"`
	Language          string `mapstructure:"language"`
	Hints             string `mapstructure:"hints"`
	GatherTimeout     string `mapstructure:"gather_timeout"`
	MaxSpeechLength   int    `mapstructure:"max_speech_length"`
}

type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
	ToNumber   string `mapstructure:"to_number"`
}

type ClassifierConfig struct {
	Backend      string  `mapstructure:"backend"`
	ModelDir     string  `mapstructure:"model_dir"`
	TrainingData string  `mapstructure:"training_data"`
	Threshold    float64 `mapstructure:"threshold"`
	EmbeddingDim int     `mapstructure:"embedding_dim"`
	HiddenUnits  int     `mapstructure:"hidden_units"`
	Epochs       int     `mapstructure:"epochs"`
	BatchSize    int     `mapstructure:"batch_size"`
	LearningRate float64 `mapstructure:"learning_rate"`
	Seed         int64   `mapstructure:"seed"`
}

type DialogueConfig struct {
	AgentNumber        string        `mapstructure:"agent_number"`
	MinConfidence      float64       `mapstructure:"min_confidence"`
	Script             []string      `mapstructure:"script"`
	EscalationKeywords []string      `mapstructure:"escalation_keywords"`
	ExitKeywords       []string      `mapstructure:"exit_keywords"`
	SessionTTL         time.Duration `mapstructure:"session_ttl"`
	ReapInterval       time.Duration `mapstructure:"reap_interval"`
}

type TranscriptsConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	password, _ := u.User.Password()
	port := 5432
	if u.Port() != "" {
		if _, err := fmt.Sscanf(u.Port(), "%d", &port); err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q", u.Port())
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.validate_signature", false)
	v.SetDefault("server.recordings_dir", "recordings")
	v.SetDefault("server.transcriptions_dir", "transcriptions")
	v.SetDefault("server.voice", "alice")
	v.SetDefault("server.language", "en-US")
	v.SetDefault("server.hints", "order,address,delivery,number,yes,no")
	v.SetDefault("server.gather_timeout", "1")
	v.SetDefault("server.max_speech_length", 256)

	v.SetDefault("classifier.backend", "local")
	v.SetDefault("classifier.model_dir", "model")
	v.SetDefault("classifier.training_data", "data/intents.txt")
	v.SetDefault("classifier.threshold", 0.85)
	v.SetDefault("classifier.embedding_dim", 16)
	v.SetDefault("classifier.hidden_units", 16)
	v.SetDefault("classifier.epochs", 100)
	v.SetDefault("classifier.batch_size", 32)
	v.SetDefault("classifier.learning_rate", 0.01)
	v.SetDefault("classifier.seed", 42)

	v.SetDefault("dialogue.min_confidence", 0.8)
	v.SetDefault("dialogue.session_ttl", "30m")
	v.SetDefault("dialogue.reap_interval", "1m")

	v.SetDefault("transcripts.backend", "file")
	v.SetDefault("transcripts.dir", "transcripts")

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("openai.model", "gpt-3.5-turbo")
	v.SetDefault("openai.max_tokens", 150)
	v.SetDefault("openai.temperature", 0.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig reads the YAML file at path (skipped when path is empty),
// applies defaults and environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// SERVER_PORT overrides server.port and so on.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	overrides := map[string]*string{
		"TWILIO_ACCOUNT_SID": &config.Twilio.AccountSID,
		"TWILIO_AUTH_TOKEN":  &config.Twilio.AuthToken,
		"TWILIO_FROM_NUMBER": &config.Twilio.FromNumber,
		"TWILIO_TO_NUMBER":   &config.Twilio.ToNumber,
		"NGROK_URL":          &config.Server.PublicURL,
		"AGENT_NUMBER":       &config.Dialogue.AgentNumber,
		"TELEGRAM_TOKEN":     &config.Telegram.Token,
		"OPENAI_API_KEY":     &config.OpenAI.APIKey,
	}
	for env, field := range overrides {
		if value := v.GetString(env); value != "" {
			*field = value
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Classifier.Backend {
	case "local", "openai":
	default:
		return fmt.Errorf("classifier.backend must be local or openai, got %q", c.Classifier.Backend)
	}
	if c.Classifier.Threshold <= 0 || c.Classifier.Threshold > 1 {
		return fmt.Errorf("classifier.threshold must be in (0, 1], got %v", c.Classifier.Threshold)
	}
	if c.Dialogue.MinConfidence < 0 || c.Dialogue.MinConfidence >= 1 {
		return fmt.Errorf("dialogue.min_confidence must be in [0, 1), got %v", c.Dialogue.MinConfidence)
	}

	switch c.Transcripts.Backend {
	case "file", "postgres", "none":
	default:
		return fmt.Errorf("transcripts.backend must be file, postgres or none, got %q", c.Transcripts.Backend)
	}

	if c.Server.ValidateSignature && (c.Twilio.AuthToken == "" || c.Server.PublicURL == "") {
		return fmt.Errorf("server.validate_signature needs twilio.auth_token and server.public_url")
	}
	return nil
}
