package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Node        NodeConfig      `yaml:"node"`
	History     HistoryConfig   `yaml:"history"`
	Capture     CaptureConfig   `yaml:"capture"`
	Session     SessionConfig   `yaml:"session"`
	Translate   TranslateConfig `yaml:"translate"`
	Speech      SpeechConfig    `yaml:"speech"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type NodeConfig struct {
	ID                string       `yaml:"id"`
	Role              string       `yaml:"role"`
	HeartbeatInterval int          `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int          `yaml:"heartbeat_timeout_ms"`
	Devices           []NodeDevice `yaml:"devices"`
}

type NodeDevice struct {
	Name       string            `yaml:"name"`
	Kind       string            `yaml:"kind"` // capture | playback
	Attributes map[string]string `yaml:"attributes"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type CaptureConfig struct {
	Mode             string `yaml:"mode"` // mock | exec
	Command          string `yaml:"command"`
	SampleRate       int    `yaml:"sample_rate"`
	Channels         int    `yaml:"channels"`
	FrameDurationMS  int    `yaml:"frame_duration_ms"`
	NoiseSuppression bool   `yaml:"noise_suppression"`
	ProcessingChain  bool   `yaml:"processing_chain"`
}

type SessionConfig struct {
	MinDurationMS   int    `yaml:"min_duration_ms"`
	ResetDelayMS    int    `yaml:"reset_delay_ms"`
	MinPayloadBytes int    `yaml:"min_payload_bytes"`
	SourceLanguage  string `yaml:"source_language"`
	TargetLanguage  string `yaml:"target_language"`
}

type TranslateConfig struct {
	Mode      string `yaml:"mode"` // mock | gemini | relay
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	ChatModel string `yaml:"chat_model"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type SpeechConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Mode            string        `yaml:"mode"` // mock | exec
	Command         string        `yaml:"command"`
	SampleRate      int           `yaml:"sample_rate"`
	Channels        int           `yaml:"channels"`
	ChunkDurationMS int           `yaml:"chunk_duration_ms"`
	Voices          []SpeechVoice `yaml:"voices"`
}

type SpeechVoice struct {
	Name     string `yaml:"name"`
	Language string `yaml:"language"`
	Default  bool   `yaml:"default"`
}

func Default() Config {
	return Config{
		RuntimeName: "lingo-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "lingo-node-1",
			Role:              "runtime",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
			Devices: []NodeDevice{
				{Name: "default-mic", Kind: "capture"},
				{Name: "default-speaker", Kind: "playback"},
			},
		},
		History: HistoryConfig{
			Path:          "./data/lingo-history.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Capture: CaptureConfig{
			Mode:             "mock",
			SampleRate:       16000,
			Channels:         1,
			FrameDurationMS:  100,
			NoiseSuppression: true,
			ProcessingChain:  true,
		},
		Session: SessionConfig{
			MinDurationMS:   1000,
			ResetDelayMS:    1000,
			MinPayloadBytes: 100,
			SourceLanguage:  "zh",
			TargetLanguage:  "en",
		},
		Translate: TranslateConfig{
			Mode:      "mock",
			Model:     "gemini-1.5-flash",
			ChatModel: "gpt-4o-mini",
			TimeoutMS: 30000,
		},
		Speech: SpeechConfig{
			Enabled:         true,
			Mode:            "mock",
			SampleRate:      22050,
			Channels:        1,
			ChunkDurationMS: 400,
			Voices: []SpeechVoice{
				{Name: "cn-lily", Language: "zh-CN"},
				{Name: "en-ava", Language: "en-US", Default: true},
			},
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LINGO_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LINGO_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LINGO_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LINGO_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LINGO_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LINGO_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LINGO_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LINGO_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "LINGO_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LINGO_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LINGO_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LINGO_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LINGO_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LINGO_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LINGO_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LINGO_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "LINGO_NODE_ID")
	overrideString(&cfg.Node.Role, "LINGO_NODE_ROLE")
	overrideInt(&cfg.Node.HeartbeatInterval, "LINGO_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "LINGO_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.History.Path, "LINGO_HISTORY_PATH")
	overrideString(&cfg.History.RetentionMode, "LINGO_HISTORY_RETENTION_MODE")
	overrideInt(&cfg.History.RetentionDays, "LINGO_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxSessions, "LINGO_HISTORY_MAX_SESSIONS")
	overrideBool(&cfg.History.VacuumOnStart, "LINGO_HISTORY_VACUUM_ON_START")
	overrideString(&cfg.Capture.Mode, "LINGO_CAPTURE_MODE")
	overrideString(&cfg.Capture.Command, "LINGO_CAPTURE_COMMAND")
	overrideInt(&cfg.Capture.SampleRate, "LINGO_CAPTURE_SAMPLE_RATE")
	overrideInt(&cfg.Capture.Channels, "LINGO_CAPTURE_CHANNELS")
	overrideInt(&cfg.Capture.FrameDurationMS, "LINGO_CAPTURE_FRAME_DURATION_MS")
	overrideBool(&cfg.Capture.NoiseSuppression, "LINGO_CAPTURE_NOISE_SUPPRESSION")
	overrideBool(&cfg.Capture.ProcessingChain, "LINGO_CAPTURE_PROCESSING_CHAIN")
	overrideInt(&cfg.Session.MinDurationMS, "LINGO_SESSION_MIN_DURATION_MS")
	overrideInt(&cfg.Session.ResetDelayMS, "LINGO_SESSION_RESET_DELAY_MS")
	overrideInt(&cfg.Session.MinPayloadBytes, "LINGO_SESSION_MIN_PAYLOAD_BYTES")
	overrideString(&cfg.Session.SourceLanguage, "LINGO_SESSION_SOURCE_LANGUAGE")
	overrideString(&cfg.Session.TargetLanguage, "LINGO_SESSION_TARGET_LANGUAGE")
	overrideString(&cfg.Translate.Mode, "LINGO_TRANSLATE_MODE")
	overrideString(&cfg.Translate.APIKey, "LINGO_TRANSLATE_API_KEY")
	overrideString(&cfg.Translate.BaseURL, "LINGO_TRANSLATE_BASE_URL")
	overrideString(&cfg.Translate.Model, "LINGO_TRANSLATE_MODEL")
	overrideString(&cfg.Translate.ChatModel, "LINGO_TRANSLATE_CHAT_MODEL")
	overrideInt(&cfg.Translate.TimeoutMS, "LINGO_TRANSLATE_TIMEOUT_MS")
	overrideBool(&cfg.Speech.Enabled, "LINGO_SPEECH_ENABLED")
	overrideString(&cfg.Speech.Mode, "LINGO_SPEECH_MODE")
	overrideString(&cfg.Speech.Command, "LINGO_SPEECH_COMMAND")
	overrideInt(&cfg.Speech.SampleRate, "LINGO_SPEECH_SAMPLE_RATE")
	overrideInt(&cfg.Speech.Channels, "LINGO_SPEECH_CHANNELS")
	overrideInt(&cfg.Speech.ChunkDurationMS, "LINGO_SPEECH_CHUNK_DURATION_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.HeartbeatInterval <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if cfg.Node.HeartbeatTimeout <= cfg.Node.HeartbeatInterval {
		return errors.New("node.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	if cfg.History.Path == "" {
		return errors.New("history.path must not be empty")
	}
	switch cfg.History.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("history.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Capture.Mode {
	case "mock", "exec":
	default:
		return errors.New("capture.mode must be one of mock|exec")
	}
	if cfg.Capture.Mode == "exec" && cfg.Capture.Command == "" {
		return errors.New("capture.command must be set when mode=exec")
	}
	if cfg.Capture.SampleRate <= 0 {
		return errors.New("capture.sample_rate must be positive")
	}
	if cfg.Capture.Channels <= 0 {
		return errors.New("capture.channels must be positive")
	}
	if cfg.Capture.FrameDurationMS <= 0 {
		return errors.New("capture.frame_duration_ms must be positive")
	}
	if cfg.Session.MinDurationMS < 0 {
		return errors.New("session.min_duration_ms must be >= 0")
	}
	if cfg.Session.ResetDelayMS < 0 {
		return errors.New("session.reset_delay_ms must be >= 0")
	}
	if cfg.Session.MinPayloadBytes < 0 {
		return errors.New("session.min_payload_bytes must be >= 0")
	}
	switch cfg.Translate.Mode {
	case "mock", "gemini", "relay":
	default:
		return errors.New("translate.mode must be one of mock|gemini|relay")
	}
	if cfg.Translate.Mode == "relay" && cfg.Translate.BaseURL == "" {
		return errors.New("translate.base_url must be set when mode=relay")
	}
	if cfg.Translate.TimeoutMS <= 0 {
		return errors.New("translate.timeout_ms must be positive")
	}
	if cfg.Speech.Enabled {
		switch cfg.Speech.Mode {
		case "mock", "exec":
		default:
			return errors.New("speech.mode must be one of mock|exec")
		}
		if cfg.Speech.Mode == "exec" && cfg.Speech.Command == "" {
			return errors.New("speech.command must be set when mode=exec")
		}
		if cfg.Speech.SampleRate <= 0 {
			return errors.New("speech.sample_rate must be positive")
		}
		if cfg.Speech.Channels <= 0 {
			return errors.New("speech.channels must be positive")
		}
	}
	return nil
}
