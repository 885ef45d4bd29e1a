package raceconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/visionlap/go/internal/race/session"
)

// Lap sources
const (
	LapSourceNATS      = "nats"
	LapSourceWebSocket = "websocket"
	LapSourceNone      = "none"
)

// Config holds the race control process settings.
type Config struct {
	Port           string
	LogLevel       string
	BackendURL     string
	BackendTimeout time.Duration

	LapSource     string
	NATSURL       string
	LapStream     string
	LapSubject    string
	LapConsumer   string
	EventsSubject string
	UpstreamWSURL string

	RaceConfigFile string
}

// NewConfigFromEnv reads the environment variables (with defaults).
func NewConfigFromEnv() Config {
	return Config{
		Port:           getEnv("PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		BackendURL:     getEnv("BACKEND_URL", "http://localhost:5000"),
		BackendTimeout: getEnvAsDuration("BACKEND_TIMEOUT", 5*time.Second),

		LapSource:     strings.ToLower(getEnv("LAP_SOURCE", LapSourceWebSocket)),
		NATSURL:       getEnv("NATS_URL", ""),
		LapStream:     getEnv("LAP_STREAM", "TIMING_EVENTS"),
		LapSubject:    getEnv("LAP_SUBJECT", "timing.laps.>"),
		LapConsumer:   getEnv("LAP_CONSUMER", "race-control-laps"),
		EventsSubject: getEnv("RACE_EVENTS_SUBJECT", "race.events"),
		UpstreamWSURL: getEnv("UPSTREAM_WS_URL", "ws://localhost:5000/ws/laps"),

		RaceConfigFile: getEnv("RACE_CONFIG_FILE", "race.yaml"),
	}
}

// Validate checks the combinations that cannot work at runtime.
func (c Config) Validate() error {
	switch c.LapSource {
	case LapSourceNATS:
		if c.NATSURL == "" {
			return errors.New("LAP_SOURCE=nats requires NATS_URL")
		}
	case LapSourceWebSocket:
		if c.UpstreamWSURL == "" {
			return errors.New("LAP_SOURCE=websocket requires UPSTREAM_WS_URL")
		}
	case LapSourceNone:
	default:
		return fmt.Errorf("unknown LAP_SOURCE %q", c.LapSource)
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive, got %s", c.BackendTimeout)
	}
	return nil
}

type raceFile struct {
	Race session.Config `yaml:"race"`
}

// LoadRaceDefaults reads the initial race settings from a YAML file. Keys missing from the
// file keep the built-in defaults; a missing file yields the defaults.
func LoadRaceDefaults(path string) (session.Config, error) {
	file := raceFile{Race: session.DefaultConfig()}
	if path == "" {
		return file.Race, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return file.Race, nil
	}
	if err != nil {
		return session.Config{}, fmt.Errorf("failed to read race config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &file); err != nil {
		return session.Config{}, fmt.Errorf("failed to parse race config: %w", err)
	}
	if err := file.Race.Validate(); err != nil {
		return session.Config{}, fmt.Errorf("race config %s: %w", path, err)
	}
	return file.Race, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("750ms") or whole seconds ("5")
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs := getEnvAsInt(key, -1); secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
